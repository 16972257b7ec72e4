package ledger

import (
	"crypto/sha256"
	"encoding/binary"
)

// MintSenderID is the sentinel written into the canonical signing bytes
// of a genesis/mint transaction, whose sender is bottom (no node owns
// the new value). It is never a valid registered Node id, so proof
// construction and verification both use it to recognize a mint source.
const MintSenderID NodeID = 0xFFFFFFFF

// SourceRef identifies a prior transaction consumed as an input, by the
// (senderID, number) pair that is a Transaction's identity — never by
// object reference, so proofs and chains built independently still
// compare equal.
type SourceRef struct {
	SenderID NodeID
	Number   uint32
}

// Transaction is immutable once placed in a block. Sender is nil for a
// genesis/mint transaction, which has no owning node.
type Transaction struct {
	Number      uint32
	SenderID    *NodeID // nil == genesis/mint
	ReceiverID  NodeID
	Amount      uint64
	Remainder   uint64
	Sources     []SourceRef // insertion order, never reordered
	BlockNumber *uint32     // nil until placed in a block
	Signature   []byte
}

// ID returns the transaction's identity pair. A mint transaction's
// SenderID component reads as MintSenderID.
func (t *Transaction) ID() SourceRef {
	sid := MintSenderID
	if t.SenderID != nil {
		sid = *t.SenderID
	}
	return SourceRef{SenderID: sid, Number: t.Number}
}

// IsMint reports whether t has no sender (a genesis issuance).
func (t *Transaction) IsMint() bool { return t.SenderID == nil }

// CanonicalBytes returns the byte string signed and verified for t:
//
//	sender.id (4B) || receiver.id (4B) || number (4B) || amount (8B) ||
//	remainder (8B) || for each source in insertion order:
//	    source.sender.id (4B) || source.number (4B)
//
// A mint transaction's sender.id field is written as MintSenderID,
// the sentinel value that stands in for a transaction with no sender.
func (t *Transaction) CanonicalBytes() []byte {
	buf := make([]byte, 0, 28+8*len(t.Sources))

	sid := MintSenderID
	if t.SenderID != nil {
		sid = *t.SenderID
	}
	buf = appendUint32(buf, sid)
	buf = appendUint32(buf, t.ReceiverID)
	buf = appendUint32(buf, t.Number)
	buf = appendUint64(buf, t.Amount)
	buf = appendUint64(buf, t.Remainder)
	for _, s := range t.Sources {
		buf = appendUint32(buf, s.SenderID)
		buf = appendUint32(buf, s.Number)
	}
	return buf
}

// Hash returns the digest of t folded into its owning block's hash.
func (t *Transaction) Hash() [32]byte {
	return sha256.Sum256(t.CanonicalBytes())
}

func appendUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendUint64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}
