package ledger

// NewGenesisBlock returns the shared genesis block (position 0) that
// every node's chain starts from. mints, if non-empty, seeds initial
// value with sender == nil (bottom) transactions.
func NewGenesisBlock(mints []*Transaction) *Block {
	zero := uint32(0)
	for _, tx := range mints {
		tx.BlockNumber = &zero
	}
	return &Block{
		Number:            0,
		OwnerID:           0,
		PreviousBlockHash: [32]byte{},
		Transactions:      mints,
	}
}
