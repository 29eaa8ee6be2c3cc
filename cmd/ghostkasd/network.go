package main

// loopbackNetwork is the collaborators.Network cmd/ghostkasd wires in when
// no P2P transport is configured: it has no peers, so its inbound channels
// never yield anything and its outbound calls are no-ops. A real P2P
// adapter (out of this core's scope, per internal/collaborators' own
// package doc) only needs to satisfy collaborators.Network to replace it —
// the ingress consumption path in internal/ingress.Handler.Run never
// changes.
type loopbackNetwork struct {
	blocks       chan []byte
	transactions chan []byte
}

func newLoopbackNetwork() *loopbackNetwork {
	return &loopbackNetwork{
		blocks:       make(chan []byte),
		transactions: make(chan []byte),
	}
}

// IncomingBlocks implements collaborators.Network.
func (n *loopbackNetwork) IncomingBlocks() <-chan []byte { return n.blocks }

// IncomingTransactions implements collaborators.Network.
func (n *loopbackNetwork) IncomingTransactions() <-chan []byte { return n.transactions }

// OutgoingBlock implements collaborators.Network.
func (n *loopbackNetwork) OutgoingBlock(encoded []byte) error { return nil }

// OutgoingTransaction implements collaborators.Network.
func (n *loopbackNetwork) OutgoingTransaction(encoded []byte) error { return nil }
