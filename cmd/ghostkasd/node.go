package main

import (
	"context"
	"encoding/hex"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/ghostkasd/ghostkasd/internal/chainspec"
	"github.com/ghostkasd/ghostkasd/internal/collaborators"
	"github.com/ghostkasd/ghostkasd/internal/dagstore"
	"github.com/ghostkasd/ghostkasd/internal/executor"
	"github.com/ghostkasd/ghostkasd/internal/ingress"
	"github.com/ghostkasd/ghostkasd/internal/kvstore"
	"github.com/ghostkasd/ghostkasd/internal/mempool"
	"github.com/ghostkasd/ghostkasd/internal/panics"
	"github.com/ghostkasd/ghostkasd/internal/primitives"
	"github.com/ghostkasd/ghostkasd/internal/producer"
	"github.com/ghostkasd/ghostkasd/internal/types"
)

// ghostkasd is a wrapper for all of a node's in-process services, mirroring
// the shape of the kaspad struct: collaborators held as fields,
// started/shutdown atomic guards, start/stop methods.
type ghostkasd struct {
	cfg     *config
	spec    chainspec.ChainSpec
	kv      *kvstore.Store
	store   *dagstore.Store
	pool    *mempool.Pool
	prod    *producer.Producer
	ingress *ingress.Handler
	net     collaborators.Network

	started, shutdown int32

	cancelProduceLoop context.CancelFunc
	cancelIngressLoop context.CancelFunc
}

// newGhostkasd wires up storage, the DAG store, the mempool and the
// producer, seeding genesis on first run. Use start to begin producing
// blocks.
func newGhostkasd(cfg *config) (*ghostkasd, error) {
	spec, err := specForNetwork(cfg)
	if err != nil {
		return nil, err
	}

	kv, err := kvstore.Open(cfg.DataDir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open data directory")
	}

	clock := collaborators.SystemClock{}

	store, err := dagstore.Open(kv, spec, clock)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open DAG store")
	}

	if err := seedGenesisIfEmpty(store, spec); err != nil {
		return nil, err
	}

	selectedTip, err := store.SelectedTip()
	if err != nil {
		return nil, errors.Wrap(err, "failed to select tip after genesis seeding")
	}
	tipHeader, err := store.Header(selectedTip)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load selected tip header")
	}

	accountSource, err := producer.NewAccountSource(kv, tipHeader.StateRoot)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open account trie at current tip")
	}
	pool := mempool.New(spec, clock, accountSource)

	signer, err := loadOrCreateProducerKey(cfg.ProducerKeyFile)
	if err != nil {
		return nil, err
	}

	exec := executor.New(spec, nil)
	prod := producer.New(spec, kv, store, pool, exec, clock, signer)
	ingressHandler := ingress.NewHandler(spec, kv, store, pool, exec)
	net := newLoopbackNetwork()

	log.Infof("node initialized, producer address %s, selected tip %s at height %d, mining=%t",
		signer.Address(), selectedTip, tipHeader.Height, cfg.Mining)

	return &ghostkasd{
		cfg:     cfg,
		spec:    spec,
		kv:      kv,
		store:   store,
		pool:    pool,
		prod:    prod,
		ingress: ingressHandler,
		net:     net,
	}, nil
}

// start begins the node's loops: the ingress loop always runs, consuming
// k.net's inbound channels; the production loop (one Produce call per
// ChainSpec.BlockTimeInterval tick, since internal/producer keeps no timer
// of its own) only runs with --mining, so a node started without it runs
// only the ingress path.
func (k *ghostkasd) start() {
	if atomic.AddInt32(&k.started, 1) != 1 {
		return
	}

	ingressCtx, cancelIngress := context.WithCancel(context.Background())
	k.cancelIngressLoop = cancelIngress
	panics.Go(log, func() { k.ingress.Run(ingressCtx, k.net) })

	if !k.cfg.Mining {
		log.Infof("mining disabled, running ingress-only")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	k.cancelProduceLoop = cancel

	panics.Go(log, func() { k.produceLoop(ctx) })
}

func (k *ghostkasd) produceLoop(ctx context.Context) {
	ticker := time.NewTicker(k.spec.BlockTimeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			k.pool.ExpireStale()
			header, txs, err := k.prod.Produce(ctx)
			if err != nil {
				log.Warnf("block production skipped: %s", err)
				continue
			}
			log.Infof("produced block %s (height %d, %d tx)", header.Hash(), header.Height, len(txs))
		}
	}
}

// stop gracefully shuts down the node's services.
func (k *ghostkasd) stop() error {
	if atomic.AddInt32(&k.shutdown, 1) != 1 {
		log.Infof("ghostkasd is already shutting down")
		return nil
	}

	log.Warnf("ghostkasd shutting down")

	if k.cancelProduceLoop != nil {
		k.cancelProduceLoop()
	}
	if k.cancelIngressLoop != nil {
		k.cancelIngressLoop()
	}

	if err := k.kv.Close(); err != nil {
		return errors.Wrap(err, "failed to close data directory")
	}
	return nil
}

// specForNetwork builds the ChainSpec for cfg.Network, overlaying the
// operator-supplied treasury address onto chainspec.Default(). Chain ID and
// genesis hash are derived deterministically from the network name so a
// mainnet node and a devnet node never share a DAG by accident.
func specForNetwork(cfg *config) (chainspec.ChainSpec, error) {
	spec := chainspec.Default()

	switch cfg.Network {
	case "mainnet":
		spec.ChainID = 1
	case "testnet":
		spec.ChainID = 2
	case "devnet":
		spec.ChainID = 3
	default:
		return chainspec.ChainSpec{}, errors.Errorf("unknown network %q", cfg.Network)
	}
	spec.GenesisHash = primitives.HashData([]byte("ghostkasd-genesis-" + cfg.Network))

	treasury, err := parseAddress(cfg.TreasuryAddressHex)
	if err != nil {
		return chainspec.ChainSpec{}, errors.Wrap(err, "invalid --treasury-address")
	}
	spec.TreasuryAddress = treasury

	return spec, nil
}

func parseAddress(s string) (primitives.Address, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return primitives.Address{}, err
	}
	return primitives.NewAddress(raw)
}

// seedGenesisIfEmpty admits the network's genesis block. SeedGenesis is a
// no-op if a block with the same hash was already seeded on a prior run, so
// this is safe to call unconditionally on every startup. Genesis has no
// parents, height 0, and the empty account trie root: the chain starts with
// no premine, relying on block rewards and the treasury fee split to
// bootstrap balances.
func seedGenesisIfEmpty(store *dagstore.Store, spec chainspec.ChainSpec) error {
	genesis := &types.BlockHeader{
		Timestamp: time.Unix(0, 0).UTC(),
		Height:    0,
		StateRoot: primitives.ZeroHash,
		GasLimit:  spec.BlockGasLimit,
	}
	if err := store.SeedGenesis(genesis); err != nil {
		return errors.Wrap(err, "failed to seed genesis block")
	}
	log.Infof("seeded genesis block %s for network chain id %d", genesis.Hash(), spec.ChainID)
	return nil
}
