package proof

import (
	"context"

	"github.com/scaleledger/scaleledger/ledger"
	"github.com/scaleledger/scaleledger/ledgercrypto"
	"github.com/scaleledger/scaleledger/ledgererr"
	"github.com/scaleledger/scaleledger/mainchain"
)

// ConsumedIndex guards against a source being accepted twice by the same
// receiver. Implemented by store against a persistent (in-memory) index.
type ConsumedIndex interface {
	Contains(ctx context.Context, s ledger.SourceRef) (bool, error)
	Record(ctx context.Context, s ledger.SourceRef) error
}

// UnspentSink receives transactions the verifier has accepted as payments
// to the local node.
type UnspentSink interface {
	Add(ctx context.Context, tx *ledger.Transaction) error
}

// Verifier runs ProofVerifier against one receiver's local state.
//
// Meta is the MetaKnowledge belonging to whichever peer sent this proof
// (normally tx.Sender): advancing it on success records "this peer has
// shown me at least this much of each chain", which is exactly what the
// receiver will later need if it constructs a proof back to that peer.
// It is not the receiver's knowledge of its own mirrors — Chain.Height
// answers that directly.
type Verifier struct {
	Registry *ledger.Registry
	Genesis  *ledger.Block
	Meta     *ledger.MetaKnowledge
	Cache    *mainchain.AbstractCache
	Consumed ConsumedIndex
	Unspent  UnspentSink
	Self     ledger.NodeID
}

// Verify validates tx against pf in the order spec'd by ProofVerifier,
// mutating local mirrors and the consumed-source index only on success.
func (v *Verifier) Verify(ctx context.Context, tx *ledger.Transaction, pf *Proof) error {
	if tx.SenderID == nil {
		return ledgererr.New(ledgererr.InvalidSignature, "genesis transactions are not sent for verification")
	}

	if err := v.mergeStructural(pf); err != nil {
		return err
	}
	if err := v.checkCommitted(ctx, pf); err != nil {
		return err
	}

	sender, ok := v.Registry.Get(*tx.SenderID)
	if !ok {
		return ledgererr.New(ledgererr.MissingBlock, "unknown transaction sender")
	}
	if !ledgercrypto.Verify(sender.PublicKey, tx.CanonicalBytes(), tx.Signature) {
		return ledgererr.New(ledgererr.InvalidSignature, "transaction signature does not verify")
	}

	if err := v.checkConservation(tx); err != nil {
		return err
	}
	if err := v.checkDoubleSpend(ctx, tx); err != nil {
		return err
	}

	v.advanceMeta(pf)

	if tx.Amount > 0 && tx.ReceiverID == v.Self && v.Unspent != nil {
		if err := v.Unspent.Add(ctx, tx); err != nil {
			return ledgererr.Wrap(ledgererr.TransportError, err, "recording unspent transaction")
		}
	}
	return nil
}

// mergeStructural installs every block in pf into the receiver's local
// mirror of its owner's chain. A block at a height the mirror already
// has must hash-match the stored copy; a block past the mirror's tip
// must land exactly at tip+1.
func (v *Verifier) mergeStructural(pf *Proof) error {
	for ownerID, blocks := range pf.ChainUpdates {
		owner := v.Registry.GetOrCreate(ownerID, v.Genesis)
		for _, b := range blocks {
			height := owner.Chain.Height()
			switch {
			case b.Number <= height:
				existing, _ := owner.Chain.BlockAt(b.Number)
				if existing.Hash() != b.Hash() {
					return ledgererr.New(ledgererr.MissingBlock, "proof block conflicts with known chain history")
				}
			case b.Number == height+1:
				owner.Chain.AppendRemote(b)
			default:
				return ledgererr.New(ledgererr.MissingBlock, "proof block leaves a gap in chain history")
			}
		}
	}
	return nil
}

// checkCommitted requires the last block of each chain-update entry to
// have a committed successor present in the AbstractCache, refreshing
// the cache once on a miss before giving up.
func (v *Verifier) checkCommitted(ctx context.Context, pf *Proof) error {
	for ownerID, blocks := range pf.ChainUpdates {
		if len(blocks) == 0 {
			continue
		}
		owner, _ := v.Registry.Get(ownerID)
		last := blocks[len(blocks)-1]
		if _, ok := owner.Chain.NextCommittedBlock(last, v.Cache); ok {
			continue
		}
		if err := v.Cache.Refresh(ctx); err != nil {
			return ledgererr.Wrap(ledgererr.TransportError, err, "refreshing abstract cache")
		}
		if _, ok := owner.Chain.NextCommittedBlock(last, v.Cache); !ok {
			return ledgererr.New(ledgererr.NotFinalized, "proof references a block not yet finalized on the main chain")
		}
	}
	return nil
}

// checkConservation locates every source transaction (genesis mints in
// the shared genesis block, everything else in a registered owner's
// mirrored chain), confirms its block is committed and that it was
// receivable by tx's sender, and sums its amount.
func (v *Verifier) checkConservation(tx *ledger.Transaction) error {
	var total uint64
	for _, s := range tx.Sources {
		srcTx, committed, err := v.locateSource(s)
		if err != nil {
			return err
		}
		if !committed {
			return ledgererr.New(ledgererr.NotFinalized, "source transaction's block is not finalized")
		}
		if srcTx.ReceiverID != *tx.SenderID {
			return ledgererr.New(ledgererr.ConservationViolation, "source was not receivable by the transaction's sender")
		}
		total += srcTx.Amount
	}
	if total != tx.Amount+tx.Remainder {
		return ledgererr.New(ledgererr.ConservationViolation, "sources do not balance against amount and remainder")
	}
	return nil
}

func (v *Verifier) locateSource(s ledger.SourceRef) (srcTx *ledger.Transaction, committed bool, err error) {
	if s.SenderID == ledger.MintSenderID {
		for _, mintTx := range v.Genesis.Transactions {
			if mintTx.Number == s.Number {
				return mintTx, true, nil
			}
		}
		return nil, false, ledgererr.New(ledgererr.MissingBlock, "unknown mint source")
	}

	owner, ok := v.Registry.Get(s.SenderID)
	if !ok {
		return nil, false, ledgererr.New(ledgererr.MissingBlock, "source references an unknown chain owner")
	}
	srcTx, ok = owner.Chain.TxByNumber(s.Number)
	if !ok || srcTx.BlockNumber == nil {
		return nil, false, ledgererr.New(ledgererr.MissingBlock, "source transaction not present in any known block")
	}
	blk, ok := owner.Chain.BlockAt(*srcTx.BlockNumber)
	if !ok {
		return nil, false, ledgererr.New(ledgererr.MissingBlock, "source transaction's block is unknown")
	}
	return srcTx, v.Cache.IsPresent(blk.Hash()), nil
}

// checkDoubleSpend rejects tx if any of its sources were consumed by a
// prior transaction this receiver already accepted, then records all of
// tx's sources as consumed.
func (v *Verifier) checkDoubleSpend(ctx context.Context, tx *ledger.Transaction) error {
	for _, s := range tx.Sources {
		used, err := v.Consumed.Contains(ctx, s)
		if err != nil {
			return ledgererr.Wrap(ledgererr.TransportError, err, "checking consumed-source index")
		}
		if used {
			return ledgererr.New(ledgererr.DoubleSpend, "source already consumed by a prior transaction")
		}
	}
	for _, s := range tx.Sources {
		if err := v.Consumed.Record(ctx, s); err != nil {
			return ledgererr.Wrap(ledgererr.TransportError, err, "recording consumed source")
		}
	}
	return nil
}

// advanceMeta bumps the proof-sender's MetaKnowledge entry for every
// owner a chain update touched, to its new tip.
func (v *Verifier) advanceMeta(pf *Proof) {
	for ownerID, blocks := range pf.ChainUpdates {
		if len(blocks) == 0 {
			continue
		}
		v.Meta.Advance(ownerID, blocks[len(blocks)-1].Number)
	}
}
