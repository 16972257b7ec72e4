package ledger

import "crypto/sha256"

// Block is an append-only element of a Chain. It is never mutated after
// Chain.Propose returns it. Owner is tracked by id, resolved against a
// Registry, not by embedding a *Node (that would recreate the Node/Chain
// reference cycle).
type Block struct {
	Number            uint32
	OwnerID           NodeID
	PreviousBlockHash [32]byte
	Transactions      []*Transaction

	hash     [32]byte
	hashedOK bool
}

// Hash computes (and memoizes) sha256(ownerID || number || prevHash ||
// concatenated transaction hashes), in transaction order.
func (b *Block) Hash() [32]byte {
	if b.hashedOK {
		return b.hash
	}
	var buf []byte
	buf = appendUint32(buf, b.OwnerID)
	buf = appendUint32(buf, b.Number)
	buf = append(buf, b.PreviousBlockHash[:]...)
	for _, tx := range b.Transactions {
		h := tx.Hash()
		buf = append(buf, h[:]...)
	}
	b.hash = sha256.Sum256(buf)
	b.hashedOK = true
	return b.hash
}
