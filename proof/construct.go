package proof

import (
	"github.com/pkg/errors"

	"github.com/scaleledger/scaleledger/ledger"
	"github.com/scaleledger/scaleledger/ledgererr"
)

// work is one pending unit in the explicit worklist that walks a
// transaction's sources back across chains and owners without
// recursion, bounding stack depth regardless of how deep a source
// chain runs.
type work struct {
	owner  *ledger.Node
	blocks []*ledger.Block // the newly-added suffix to scan for sources
}

// Construct builds the minimal Proof that lets receiver verify tx,
// given receiver's current meta-knowledge receiverMeta. registry
// resolves source owners by id; cache answers "is this block hash
// committed on the main chain".
//
// sender must be tx's sender (tx.SenderID == sender.ID); genesis/mint
// transactions are never proved (they need no provenance).
func Construct(registry *ledger.Registry, cache ledger.CommitChecker, tx *ledger.Transaction, sender *ledger.Node, receiver *ledger.Node, receiverMeta *ledger.MetaKnowledge) (*Proof, error) {
	if tx.BlockNumber == nil {
		return nil, ErrNotInBlock
	}

	b, ok := sender.Chain.BlockAt(*tx.BlockNumber)
	if !ok {
		return nil, errors.Errorf("sender chain has no block %d", *tx.BlockNumber)
	}
	c, ok := sender.Chain.NextCommittedBlock(b, cache)
	if !ok {
		return nil, ledgererr.New(ledgererr.NotYetCommitted, "transaction's block has no committed successor")
	}

	toSend := make(map[ledger.NodeID][]*ledger.Block)
	var worklist []work

	initial := receiverMeta.BlocksToSend(sender, c.Number)
	if len(initial) == 0 {
		// Receiver already has everything needed from sender.
		return &Proof{Transaction: tx, ChainUpdates: toSend}, nil
	}
	toSend[sender.ID] = initial
	worklist = append(worklist, work{owner: sender, blocks: initial})

	for len(worklist) > 0 {
		item := worklist[0]
		worklist = worklist[1:]

		for _, blk := range item.blocks {
			for _, btx := range blk.Transactions {
				for _, s := range btx.Sources {
					next, err := processSource(registry, cache, receiverMeta, toSend, s, sender, receiver)
					if err != nil {
						return nil, err
					}
					if next != nil {
						worklist = append(worklist, *next)
					}
				}
			}
		}
	}

	return &Proof{Transaction: tx, ChainUpdates: toSend}, nil
}

// processSource resolves one transaction source and, if it names a
// third-party owner whose chain the receiver doesn't fully have yet,
// merges the needed blocks into toSend and returns a work item for the
// newly-added suffix (or nil if nothing was new).
func processSource(registry *ledger.Registry, cache ledger.CommitChecker, receiverMeta *ledger.MetaKnowledge, toSend map[ledger.NodeID][]*ledger.Block, s ledger.SourceRef, sender, receiver *ledger.Node) (*work, error) {
	// Genesis mints need no proof; sender-owned blocks are already
	// scheduled; receiver already knows its own chain.
	if s.SenderID == ledger.MintSenderID || s.SenderID == sender.ID || s.SenderID == receiver.ID {
		return nil, nil
	}
	owner, ok := registry.Get(s.SenderID)
	if !ok {
		return nil, errors.Errorf("unknown source owner %d", s.SenderID)
	}

	srcTx, ok := owner.Chain.TxByNumber(s.Number)
	if !ok || srcTx.BlockNumber == nil {
		return nil, errors.Errorf("source tx %d/%d not placed in a block", s.SenderID, s.Number)
	}
	bs, ok := owner.Chain.BlockAt(*srcTx.BlockNumber)
	if !ok {
		return nil, errors.Errorf("owner chain missing block %d", *srcTx.BlockNumber)
	}
	cs, ok := owner.Chain.NextCommittedBlock(bs, cache)
	if !ok {
		return nil, ledgererr.New(ledgererr.NotYetCommitted, "source transaction's block has no committed successor")
	}

	candidate := receiverMeta.BlocksToSend(owner, cs.Number)
	if len(candidate) == 0 {
		return nil, nil
	}

	existing := toSend[owner.ID]
	if len(existing) == 0 {
		toSend[owner.ID] = candidate
		return &work{owner: owner, blocks: candidate}, nil
	}
	if len(candidate) <= len(existing) {
		return nil, nil
	}
	// Invariant: existing is a prefix of candidate, since both start at
	// receiverMeta[owner]+1 and are contiguous ascending slices.
	if existing[0].Number != candidate[0].Number {
		return nil, errors.Errorf("non-prefix meta-knowledge candidates for owner %d", owner.ID)
	}
	fresh := candidate[len(existing):]
	toSend[owner.ID] = candidate
	return &work{owner: owner, blocks: fresh}, nil
}
