// Package ledgerd implements the CommunicationHelper orchestration
// layer: wiring one node's LocalStore, AbstractCache, BlockBuilder and
// peer Transport together, and running the send/receive loops that
// keep them in sync while the node is up.
package ledgerd

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/scaleledger/scaleledger/ledger"
	"github.com/scaleledger/scaleledger/ledgererr"
	"github.com/scaleledger/scaleledger/mainchain"
	"github.com/scaleledger/scaleledger/peernet"
	"github.com/scaleledger/scaleledger/proof"
	"github.com/scaleledger/scaleledger/store"
)

// workerPoolSize is the fixed number of workers handling inbound
// (transaction, proof) messages; each message is handled on a worker
// from this fixed pool.
const workerPoolSize = 8

// Daemon is one running node: its local state, its view of the main
// chain, its transport, and the block builder that turns its own
// outgoing transactions into blocks.
type Daemon struct {
	Store     *store.LocalStore
	Cache     *mainchain.AbstractCache
	Transport peernet.Transport
	Builder   *BlockBuilder

	// recvMu serializes receiveTransaction's LocalStore mutation,
	// keeping unspent-set and meta-knowledge updates atomic with
	// validation, independent of how many workers are otherwise
	// running concurrently.
	recvMu sync.Mutex

	inbound chan inboundMessage
}

type inboundMessage struct {
	from ledger.NodeID
	msg  peernet.Message
}

// NewDaemon wires a Daemon for own's LocalStore.
func NewDaemon(s *store.LocalStore, cache *mainchain.AbstractCache, t peernet.Transport, blockInterval time.Duration) *Daemon {
	return &Daemon{
		Store:     s,
		Cache:     cache,
		Transport: t,
		Builder:   NewBlockBuilder(s.Own, cache, blockInterval),
		inbound:   make(chan inboundMessage, 256),
	}
}

// Run starts the cache updater, block builder, inbound listener, and
// worker pool, blocking until ctx ends or one of them fails.
func (d *Daemon) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if err := d.Cache.InitialUpdate(ctx); err != nil {
		return err
	}

	g.Go(func() error { return d.Cache.Run(ctx) })
	g.Go(func() error { return d.Builder.Run(ctx) })
	g.Go(func() error {
		return d.Transport.Listen(ctx, d.Store.Own.ID, func(ctx context.Context, from ledger.NodeID, msg peernet.Message) error {
			select {
			case d.inbound <- inboundMessage{from: from, msg: msg}:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	})
	for i := 0; i < workerPoolSize; i++ {
		g.Go(func() error { return d.worker(ctx) })
	}

	return g.Wait()
}

func (d *Daemon) worker(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m := <-d.inbound:
			if err := d.receive(ctx, m.msg); err != nil {
				log.Printf("ledgerd: rejecting transaction from node %d: %v", m.from, err)
			}
		}
	}
}

// receive is CommunicationHelper's receive(tx,proof) = verify + commit
// to local state.
func (d *Daemon) receive(ctx context.Context, msg peernet.Message) error {
	if msg.Transaction.SenderID == nil {
		return nil
	}
	genesis, ok := d.Store.Own.Chain.BlockAt(0)
	if !ok {
		return nil
	}

	v := &proof.Verifier{
		Registry: d.Store.Registry,
		Genesis:  genesis,
		Meta:     d.Store.PeerMeta(*msg.Transaction.SenderID),
		Cache:    d.Cache,
		Consumed: d.Store,
		Unspent:  d.Store,
		Self:     d.Store.Own.ID,
	}

	d.recvMu.Lock()
	defer d.recvMu.Unlock()
	return v.Verify(ctx, msg.Transaction, msg.Proof)
}

// Send is CommunicationHelper's send(tx) = construct + transmit: it
// waits for tx to land in a block and for that block to be committed
// and visible in the cache, builds the minimal proof against
// what the receiver is believed to already know, and hands it to the
// transport.
func (d *Daemon) Send(ctx context.Context, tx *ledger.Transaction, receiverID ledger.NodeID) error {
	if err := d.Builder.Include(ctx, tx); err != nil {
		return err
	}

	receiver, err := d.Store.Node(ctx, receiverID)
	if err != nil {
		return err
	}
	peerMeta := d.Store.PeerMeta(receiverID)

	pf, err := proof.Construct(d.Store.Registry, d.Cache, tx, d.Store.Own, receiver, peerMeta)
	for ledgererr.Is(err, ledgererr.NotYetCommitted) {
		// The block builder commits tx's block after Include returns, and
		// the cache only sees that commit once it is refreshed.
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
		if err := d.Cache.Refresh(ctx); err != nil {
			return err
		}
		pf, err = proof.Construct(d.Store.Registry, d.Cache, tx, d.Store.Own, receiver, peerMeta)
	}
	if err != nil {
		return err
	}
	if err := d.Transport.Send(ctx, receiver, peernet.Message{Transaction: tx, Proof: pf}); err != nil {
		return err
	}

	// Optimistic advance: a sender's belief about a receiver's knowledge
	// may be stale, but advancing it after a successful send is the
	// common case that keeps later proofs small.
	for ownerID, blocks := range pf.ChainUpdates {
		if len(blocks) == 0 {
			continue
		}
		peerMeta.Advance(ownerID, blocks[len(blocks)-1].Number)
	}
	return nil
}
