package mempool

import "github.com/pkg/errors"

// Admission rejections returned by Pool.Admit.
var (
	// ErrSignatureInvalid is returned when the recovered signer does not
	// match the transaction's declared from_address.
	ErrSignatureInvalid = errors.New("recovered signer does not match declared from_address")

	// ErrGasPriceTooLow is returned when a transaction's effective gas
	// price falls below ChainSpec.MempoolMinGasPriceWei.
	ErrGasPriceTooLow = errors.New("effective gas price below mempool floor")

	// ErrStaleNonce is returned when a transaction's nonce is already
	// behind the sender's on-chain account nonce.
	ErrStaleNonce = errors.New("transaction nonce already spent on-chain")

	// ErrReplacementUnderpriced is returned when a transaction at an
	// already-occupied (sender, nonce) slot does not clear the
	// configured replacement-fee margin over the transaction it would
	// replace.
	ErrReplacementUnderpriced = errors.New("replacement transaction does not clear the required fee margin")

	// ErrPerSenderCapExceeded is returned when admitting a transaction
	// would push a single sender's pending transaction count past
	// ChainSpec.PerSenderMempoolCap.
	ErrPerSenderCapExceeded = errors.New("sender's pending transaction count exceeds the per-sender cap")

	// ErrPoolFull is returned when the pool is at ChainSpec.GlobalMempoolCap
	// and no lower-priority transaction from a different sender is
	// available to evict in its place.
	ErrPoolFull = errors.New("mempool is full")
)
