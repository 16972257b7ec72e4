// Package peernet declares the peer-to-peer transport collaborator,
// kept external to the core: a bidirectional connection carrying
// {transaction, proof} pairs, with wire framing left opaque to the
// core. Only the interface and an in-memory double live here; a
// production socket/RPC transport is someone else's concern, same as
// the main chain's own consensus engine.
package peernet

import (
	"context"

	"github.com/scaleledger/scaleledger/ledger"
	"github.com/scaleledger/scaleledger/proof"
)

// Message is what crosses the wire on a send: a transaction and the
// proof that justifies it to the receiver.
type Message struct {
	Transaction *ledger.Transaction
	Proof       *proof.Proof
}

// Handler processes one inbound Message from peer id.
type Handler func(ctx context.Context, from ledger.NodeID, msg Message) error

// Transport is the peer transport contract: Send delivers msg to peer,
// Listen registers self to receive inbound messages until ctx ends.
type Transport interface {
	Send(ctx context.Context, peer *ledger.Node, msg Message) error
	Listen(ctx context.Context, self ledger.NodeID, handler Handler) error
}
