package peernet

import (
	"context"
	"log"
	"sync"

	"github.com/bobg/multichan"

	"github.com/scaleledger/scaleledger/ledger"
)

// LoopbackTransport is an in-memory Transport for tests and single-
// process multi-node simulation: one multichan per recipient, fanning
// inbound messages out to each node's Listen loop.
type LoopbackTransport struct {
	mu      sync.Mutex
	inboxes map[ledger.NodeID]*multichan.W
}

// NewLoopbackTransport returns an empty LoopbackTransport.
func NewLoopbackTransport() *LoopbackTransport {
	return &LoopbackTransport{inboxes: make(map[ledger.NodeID]*multichan.W)}
}

func (t *LoopbackTransport) inbox(id ledger.NodeID) *multichan.W {
	t.mu.Lock()
	defer t.mu.Unlock()
	w, ok := t.inboxes[id]
	if !ok {
		w = multichan.New((*Message)(nil))
		t.inboxes[id] = w
	}
	return w
}

// Send enqueues msg on peer's inbox. It never blocks.
func (t *LoopbackTransport) Send(_ context.Context, peer *ledger.Node, msg Message) error {
	t.inbox(peer.ID).Write(&msg)
	return nil
}

// Listen runs handler against every message delivered to self until ctx
// ends. A handler error is logged, not fatal: one bad message must not
// bring down the listener. LoopbackTransport does not record which node
// sent a message; the handler's from argument is always self.
func (t *LoopbackTransport) Listen(ctx context.Context, self ledger.NodeID, handler Handler) error {
	r := t.inbox(self).Reader()
	for {
		got, ok := r.Read(ctx)
		if !ok {
			return ctx.Err()
		}
		msg := got.(*Message)
		if err := handler(ctx, self, *msg); err != nil {
			log.Printf("peernet: handler error for node %d: %v", self, err)
		}
	}
}
