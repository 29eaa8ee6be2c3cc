// Package collaborators declares the narrow interfaces the core consumes
// from its external collaborators: network transport, the AI
// execution engine, and time sources. Apart from SystemClock, the default
// Clock, none of these are implemented here — a concrete Network (P2P) or
// AIExecutor (model runtime) is out of this core's scope; cmd/ghostkasd
// supplies its adapters at startup.
package collaborators

import (
	"context"
	"time"

	"github.com/ghostkasd/ghostkasd/internal/primitives"
	"github.com/ghostkasd/ghostkasd/internal/types"
)

// Network delivers inbound gossip and accepts outbound broadcasts. Wire
// framing belongs entirely to the implementation; the core only ever
// produces and consumes the canonical block/transaction encodings.
type Network interface {
	// IncomingBlocks returns a channel of raw block encodings received
	// from peers.
	IncomingBlocks() <-chan []byte
	// IncomingTransactions returns a channel of raw transaction
	// encodings received from peers.
	IncomingTransactions() <-chan []byte
	// OutgoingBlock broadcasts a locally-produced or relayed block.
	OutgoingBlock(encoded []byte) error
	// OutgoingTransaction broadcasts a locally-accepted transaction.
	OutgoingTransaction(encoded []byte) error
}

// AIExecutorResult is the response to an AI-kind transaction dispatch.
type AIExecutorResult struct {
	Status  types.ReceiptStatus
	Output  []byte
	GasUsed uint64
	Logs    []types.Log
}

// AIExecutor runs AI transaction kinds (ModelDeploy, InferenceRequest,
// TrainingJob, LoRAAdapter). Implementations must be deterministic for a
// given (kind, payload) pair and side-effect free with respect to any state
// outside the returned result.
type AIExecutor interface {
	Execute(ctx context.Context, kind types.TxKind, payload []byte, gasBudget uint64) (AIExecutorResult, error)
}

// Clock supplies both a monotonic source (for timeouts and scheduling) and
// a wall-clock source (for block timestamp validation).
type Clock interface {
	// Now returns the current wall-clock time, used for timestamp
	// monotonicity and skew-tolerance checks.
	Now() time.Time
	// Monotonic returns a value only meaningful relative to other
	// Monotonic() calls from the same Clock, used for deadlines.
	Monotonic() time.Duration
}

// SystemClock is the Clock backed by the operating system's wall and
// monotonic sources, the default collaborator cmd/ghostkasd wires in.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now() }

// monotonicOrigin anchors SystemClock.Monotonic; time.Since reads the
// monotonic clock reading time.Now records.
var monotonicOrigin = time.Now()

// Monotonic implements Clock.
func (SystemClock) Monotonic() time.Duration {
	return time.Since(monotonicOrigin)
}

// BlockStream lets external collaborators subscribe to locally admitted
// block hashes.
type BlockStream interface {
	Subscribe() <-chan primitives.Hash
}
