package executor

import "github.com/pkg/errors"

// ErrNonceMismatch and ErrInsufficientFunds are the two skippable
// admission failures: ApplyBlock drops the offending transaction from the
// block rather than aborting it (the mempool is expected to reject them
// outright on submission; a bundle can still end up carrying one anyway,
// since Bundle does not simulate cumulative balance across multiple
// transactions from the same sender). Every other error below aborts the
// whole block: a transaction that trips one of them could only have
// reached the executor past a producer or validator that failed to
// pre-filter it.
var (
	// ErrSignatureMismatch is returned when the recovered signer does not
	// match the transaction's declared from_address.
	ErrSignatureMismatch = errors.New("recovered signer does not match declared from_address")

	// ErrNonceMismatch is returned when the sender account's nonce does
	// not equal the transaction's declared nonce.
	ErrNonceMismatch = errors.New("NonceMismatch")

	// ErrInsufficientFunds is returned when the sender's balance cannot
	// cover effective_gas_price*gas_limit + value.
	ErrInsufficientFunds = errors.New("InsufficientFunds")

	// ErrMissingRecipient is returned by a Transfer or ContractCall
	// transaction with no to_address.
	ErrMissingRecipient = errors.New("transaction kind requires a to_address")

	// ErrStateRootMismatch is returned on verification when the
	// recomputed state root does not match the block's declared
	// state_root.
	ErrStateRootMismatch = errors.New("recomputed state root does not match block.state_root")

	// ErrTransactionsRootMismatch is returned on verification when the
	// recomputed transactions root does not match the block's declared
	// transactions_root.
	ErrTransactionsRootMismatch = errors.New("recomputed transactions root does not match block.transactions_root")

	// ErrReceiptsRootMismatch is returned on verification when the
	// recomputed receipts root does not match the block's declared
	// receipts_root.
	ErrReceiptsRootMismatch = errors.New("recomputed receipts root does not match block.receipts_root")

	// ErrGasUsedMismatch is returned on verification when the recomputed
	// cumulative gas used does not match the block's declared gas_used.
	ErrGasUsedMismatch = errors.New("recomputed gas used does not match block.gas_used")

	// ErrUnskippedTransaction is returned on verification when re-execution
	// would have skipped a transaction the block still includes: a
	// conformant producer never includes a NonceMismatch/InsufficientFunds
	// transaction in the first place.
	ErrUnskippedTransaction = errors.New("block includes a transaction that re-execution would have skipped")

	// ErrBlockGasLimitExceeded is returned if a block's declared
	// transaction bundle would exceed the chain's block gas limit.
	ErrBlockGasLimitExceeded = errors.New("block gas limit exceeded")
)
