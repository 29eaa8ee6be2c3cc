// Copyright (c) 2014-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package chainspec defines ChainSpec, the single immutable bag of chain
// parameters threaded explicitly through every component at startup: K,
// finality depth, gas schedule, and chain id, never read from
// process-global variables. It is grounded on dagconfig.Params.
package chainspec

import (
	"math/big"
	"time"

	"github.com/ghostkasd/ghostkasd/internal/primitives"
)

// KType is the GhostDAG anticone-bound parameter's type.
type KType uint8

const (
	// DefaultK is the anticone bound the corpus uses.
	DefaultK KType = 18

	// DefaultFinalityDepth is the blue-score distance beyond which
	// reorgs are disallowed.
	DefaultFinalityDepth uint64 = 100

	// DefaultTimestampDeviationToleranceSeconds bounds how far into the
	// future (relative to the local clock) an incoming block's timestamp
	// may be. 132 seconds matches timestampDeviationTolerance (measured
	// in blocks at a ~1s target block time), a conservative bound for a
	// sub-second-to-few-second block time chain.
	DefaultTimestampDeviationToleranceSeconds int64 = 132

	// DefaultMergeSetSizeLimit caps how many merge parents the producer
	// will select beyond the selected parent. K/2, rounded down,
	// bounds the anticone growth a single block can introduce without
	// risking pushing many candidates red.
	DefaultMergeSetSizeLimit = int(DefaultK / 2)

	// DefaultMempoolMinGasPriceWei is the mempool admission floor on
	// effective gas price.
	DefaultMempoolMinGasPriceWei uint64 = 1_000_000_000 // 1 gwei

	// DefaultReplacementMarginPercent is the minimum percentage by which
	// a replacement transaction's effective gas price must exceed the
	// transaction it replaces.
	DefaultReplacementMarginPercent = 12

	// DefaultTreasuryFeeSharePercent is the percentage of a block's fees
	// (effective gas price times gas used, summed over its transactions)
	// routed to the treasury address.
	DefaultTreasuryFeeSharePercent = 10

	// DefaultMempoolTTL is how long a pending transaction may sit in the
	// mempool before it expires.
	DefaultMempoolTTL = 3 * time.Hour

	// DefaultPerSenderMempoolCap bounds how many pending transactions a
	// single sender may occupy in the mempool.
	DefaultPerSenderMempoolCap = 64

	// DefaultGlobalMempoolCap bounds the mempool's total transaction
	// count.
	DefaultGlobalMempoolCap = 50_000

	// DefaultBlockGasLimit is the per-block gas budget the producer and
	// executor enforce.
	DefaultBlockGasLimit uint64 = 30_000_000

	// DefaultBlockRewardWei is the fixed block subsidy credited to the
	// producer address.
	DefaultBlockRewardWei uint64 = 2_000_000_000_000_000_000 // 2 ghost

	// DefaultBlockTimeInterval is the producer's cooperative scheduling
	// period.
	DefaultBlockTimeInterval = 1 * time.Second

	// DefaultGasScheduleVersion seeds the forward-compatibility hook
	// described in SPEC_FULL.md's "Supplemented features" section.
	DefaultGasScheduleVersion uint32 = 1

	// FormatVersion is the on-disk layout version stamped into
	// chain_meta; mismatches refuse startup.
	FormatVersion uint32 = 1
)

// GasSchedule holds the per-operation gas costs the executor charges,
// covering the intrinsic-gas and per-kind gas requirements.
type GasSchedule struct {
	// IntrinsicGasBase is the fixed intrinsic cost of any transaction.
	IntrinsicGasBase uint64
	// IntrinsicGasPerPayloadByte is charged per byte of transaction
	// payload, in addition to IntrinsicGasBase.
	IntrinsicGasPerPayloadByte uint64
	// ContractCreateGas is charged on top of intrinsic gas for
	// ContractCreate transactions.
	ContractCreateGas uint64
	// AIKindBaseGas is the kind-specific base charge for AI transaction
	// kinds.
	AIKindBaseGas uint64
	// SStoreGas is the per-slot-write gas cost charged by the opcode
	// interpreter.
	SStoreGas uint64
	// SLoadGas is the per-slot-read gas cost charged by the opcode
	// interpreter.
	SLoadGas uint64
}

// DefaultGasSchedule provides coarse EVM-style costs without claiming
// full EVM fidelity.
var DefaultGasSchedule = GasSchedule{
	IntrinsicGasBase:           21_000,
	IntrinsicGasPerPayloadByte: 16,
	ContractCreateGas:          32_000,
	AIKindBaseGas:              50_000,
	SStoreGas:                  20_000,
	SLoadGas:                   800,
}

// ChainSpec is the single immutable bag of chain parameters passed
// explicitly to every component at startup.
type ChainSpec struct {
	// ChainID distinguishes this network from others for replay
	// protection on signed transactions.
	ChainID uint64

	// GenesisHash is the hash of the chain's genesis block.
	GenesisHash primitives.Hash

	// K is the GhostDAG anticone-bound parameter.
	K KType

	// FinalityDepth is the blue-score distance beyond which reorgs are
	// disallowed.
	FinalityDepth uint64

	// TimestampDeviationToleranceSeconds bounds how far into the future
	// an incoming block's timestamp may be, relative to the local clock.
	TimestampDeviationToleranceSeconds int64

	// MergeSetSizeLimit caps the number of merge parents the producer
	// selects beyond the selected parent.
	MergeSetSizeLimit int

	// MempoolMinGasPriceWei is the mempool admission floor.
	MempoolMinGasPriceWei uint64

	// ReplacementMarginPercent is the minimum percentage by which a
	// replacement transaction's effective gas price must exceed the one
	// it replaces.
	ReplacementMarginPercent int

	// TreasuryFeeSharePercent is the percentage of a block's fees
	// (effective gas price times gas used) routed to TreasuryAddress.
	TreasuryFeeSharePercent int

	// TreasuryAddress receives TreasuryFeeSharePercent of a block's fees.
	TreasuryAddress primitives.Address

	// MempoolTTL is how long a pending transaction may sit in the
	// mempool before it expires.
	MempoolTTL time.Duration

	// PerSenderMempoolCap bounds pending transactions per sender.
	PerSenderMempoolCap int

	// GlobalMempoolCap bounds the mempool's total transaction count.
	GlobalMempoolCap int

	// BlockGasLimit is the per-block gas budget.
	BlockGasLimit uint64

	// BlockRewardWei is the fixed block subsidy credited to the
	// producer.
	BlockRewardWei *big.Int

	// BlockTimeInterval is the producer's cooperative scheduling period.
	BlockTimeInterval time.Duration

	// GasSchedule holds per-operation gas costs.
	GasSchedule GasSchedule

	// GasScheduleVersion allows future rule changes to the gas schedule
	// to be versioned independently of FormatVersion.
	GasScheduleVersion uint32
}

// Default returns a ChainSpec populated with the corpus's documented
// defaults. Callers building a production chain should still set ChainID,
// GenesisHash and TreasuryAddress explicitly.
func Default() ChainSpec {
	return ChainSpec{
		K:                                   DefaultK,
		FinalityDepth:                       DefaultFinalityDepth,
		TimestampDeviationToleranceSeconds:  DefaultTimestampDeviationToleranceSeconds,
		MergeSetSizeLimit:                   DefaultMergeSetSizeLimit,
		MempoolMinGasPriceWei:               DefaultMempoolMinGasPriceWei,
		ReplacementMarginPercent:            DefaultReplacementMarginPercent,
		TreasuryFeeSharePercent:             DefaultTreasuryFeeSharePercent,
		MempoolTTL:                          DefaultMempoolTTL,
		PerSenderMempoolCap:                 DefaultPerSenderMempoolCap,
		GlobalMempoolCap:                    DefaultGlobalMempoolCap,
		BlockGasLimit:                       DefaultBlockGasLimit,
		BlockRewardWei:                      new(big.Int).SetUint64(DefaultBlockRewardWei),
		BlockTimeInterval:                   DefaultBlockTimeInterval,
		GasSchedule:                         DefaultGasSchedule,
		GasScheduleVersion:                  DefaultGasScheduleVersion,
	}
}
