package ledger

import "sync"

// Chain is a node's append-only, in-memory sequence of blocks. Position 0
// is the genesis block, a shared reference identical across all nodes.
//
// Height, BlockAt, TxByNumber and Propose give
// callers everything a persistence layer would otherwise need to
// expose, without requiring one: chain storage here is in-memory only.
type Chain struct {
	owner *Node

	mu      sync.RWMutex
	blocks  []*Block
	byTxNum map[uint32]*Transaction
}

// NewChain starts a Chain for owner with genesis installed at position 0.
// genesis is a shared reference: callers pass the same *Block for every
// node's chain.
func NewChain(owner *Node, genesis *Block) *Chain {
	c := &Chain{
		owner:   owner,
		blocks:  []*Block{genesis},
		byTxNum: make(map[uint32]*Transaction),
	}
	for _, tx := range genesis.Transactions {
		c.byTxNum[tx.Number] = tx
	}
	return c
}

// Height returns the number of the highest block on the chain (0 at
// genesis-only).
func (c *Chain) Height() uint32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return uint32(len(c.blocks) - 1)
}

// BlockAt returns the block at the given number, or (nil, false) if the
// chain isn't that long yet.
func (c *Chain) BlockAt(number uint32) (*Block, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if int(number) >= len(c.blocks) {
		return nil, false
	}
	return c.blocks[number], true
}

// TxByNumber looks up a transaction owned by this chain by its number,
// regardless of which block it landed in.
func (c *Chain) TxByNumber(number uint32) (*Transaction, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tx, ok := c.byTxNum[number]
	return tx, ok
}

// Propose appends a new block containing txs, owned by this chain's
// node, chained onto the current tip. It is the only way blocks are
// added; callers must be the chain's own owner (spec: "Blocks are
// appended by their owner only").
func (c *Chain) Propose(txs []*Transaction) *Block {
	c.mu.Lock()
	defer c.mu.Unlock()

	tip := c.blocks[len(c.blocks)-1]
	number := tip.Number + 1
	b := &Block{
		Number:            number,
		OwnerID:           c.owner.ID,
		PreviousBlockHash: tip.Hash(),
		Transactions:      txs,
	}
	for _, tx := range txs {
		tx.BlockNumber = &b.Number
		c.byTxNum[tx.Number] = tx
	}
	c.blocks = append(c.blocks, b)
	return b
}

// AppendRemote installs a block received from a peer's chain mirror.
// It is used by the proof verifier to extend the receiver's local
// mirror of another node's chain; number must be the current tip+1.
func (c *Chain) AppendRemote(b *Block) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blocks = append(c.blocks, b)
	for _, tx := range b.Transactions {
		c.byTxNum[tx.Number] = tx
	}
}

// CommitChecker reports whether a block hash has been observed committed
// on the main chain. AbstractCache implements this; Chain depends only
// on the interface to avoid importing the mainchain package.
type CommitChecker interface {
	IsPresent(hash [32]byte) bool
}

// NextCommittedBlock returns the lowest-numbered committed block with
// number >= from.Number on this chain, or (nil, false) if none is
// committed yet.
func (c *Chain) NextCommittedBlock(from *Block, cache CommitChecker) (*Block, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for n := from.Number; int(n) < len(c.blocks); n++ {
		b := c.blocks[n]
		if cache.IsPresent(b.Hash()) {
			return b, true
		}
	}
	return nil, false
}
