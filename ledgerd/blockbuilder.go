package ledgerd

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/scaleledger/scaleledger/ledger"
	"github.com/scaleledger/scaleledger/mainchain"
)

// BlockBuilder batches an owner's outgoing transactions into blocks on a
// fixed interval and commits a signed Abstract for each finalized block
// to the main chain, retrying a failed commit on the next tick rather
// than blocking the batching loop on it.
//
// A mutex protects the block-in-progress while a single background
// goroutine drains the timer and closes it out; callers add to the
// in-progress block through Include, invoked by CommunicationHelper.Send.
type BlockBuilder struct {
	owner    *ledger.Node
	client   mainchain.Committer
	interval time.Duration

	mu       sync.Mutex
	pending  []*ledger.Transaction
	waiters  map[*ledger.Transaction]chan struct{}
	unsigned []mainchain.Abstract // committed blocks awaiting a successful Commit
}

// NewBlockBuilder returns a BlockBuilder that batches owner's outgoing
// transactions every interval and commits abstracts via client.
func NewBlockBuilder(owner *ledger.Node, client mainchain.Committer, interval time.Duration) *BlockBuilder {
	return &BlockBuilder{
		owner:    owner,
		client:   client,
		interval: interval,
		waiters:  make(map[*ledger.Transaction]chan struct{}),
	}
}

// Include adds tx to the block currently being assembled and blocks
// until it has been assigned a block number (or ctx ends).
func (b *BlockBuilder) Include(ctx context.Context, tx *ledger.Transaction) error {
	ch := make(chan struct{})
	b.mu.Lock()
	b.pending = append(b.pending, tx)
	b.waiters[tx] = ch
	b.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drives the batching loop until ctx ends.
func (b *BlockBuilder) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			b.tick(ctx)
		}
	}
}

// tick proposes a block from whatever is pending, then attempts to
// commit every abstract still owed to the main chain, oldest first.
func (b *BlockBuilder) tick(ctx context.Context) {
	b.mu.Lock()
	txs := b.pending
	waiters := b.waiters
	b.pending = nil
	b.waiters = make(map[*ledger.Transaction]chan struct{})
	b.mu.Unlock()

	if len(txs) > 0 {
		blk := b.owner.Chain.Propose(txs)
		for _, tx := range txs {
			close(waiters[tx])
		}

		abs := mainchain.Abstract{OwnerID: b.owner.ID, BlockNumber: blk.Number, BlockHash: blk.Hash()}
		abs.Sign(b.owner.PrivateKey)

		b.mu.Lock()
		b.unsigned = append(b.unsigned, abs)
		b.mu.Unlock()
	}

	b.retryCommits(ctx)
}

func (b *BlockBuilder) retryCommits(ctx context.Context) {
	b.mu.Lock()
	owed := b.unsigned
	b.unsigned = nil
	b.mu.Unlock()

	var stillOwed []mainchain.Abstract
	for _, abs := range owed {
		if _, err := b.client.Commit(ctx, abs); err != nil {
			log.Printf("ledgerd: commit of block %d failed, retrying next tick: %v", abs.BlockNumber, err)
			stillOwed = append(stillOwed, abs)
		}
	}

	b.mu.Lock()
	b.unsigned = append(stillOwed, b.unsigned...)
	b.mu.Unlock()
}
