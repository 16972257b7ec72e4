// Package mainchain declares the BFT main-chain client the core
// consumes (the concrete main chain's consensus engine itself is out
// of scope), plus the AbstractCache that mirrors committed block
// abstracts so the core can decide finality from a local set; the
// validation path goes to the network only on a cache miss (Refresh).
package mainchain

import (
	"context"
	"encoding/binary"

	"golang.org/x/crypto/ed25519"

	"github.com/scaleledger/scaleledger/ledger"
)

// Abstract is the value committed to the main chain: a signed claim
// that OwnerID's chain has a given block at BlockNumber with BlockHash.
type Abstract struct {
	OwnerID    ledger.NodeID
	BlockNumber uint32
	BlockHash  [32]byte
	Signature  []byte
}

// CanonicalBytes is the wire/signing encoding: fixed-width big-endian
// integers, then the hash, then the signature.
func (a Abstract) CanonicalBytes() []byte {
	buf := make([]byte, 0, 8+32+len(a.Signature))
	var tmp4 [4]byte
	binary.BigEndian.PutUint32(tmp4[:], a.OwnerID)
	buf = append(buf, tmp4[:]...)
	binary.BigEndian.PutUint32(tmp4[:], a.BlockNumber)
	buf = append(buf, tmp4[:]...)
	buf = append(buf, a.BlockHash[:]...)
	buf = append(buf, a.Signature...)
	return buf
}

// Sign populates a.Signature over the hash-and-header portion of
// CanonicalBytes (everything before the signature itself is appended).
func (a *Abstract) Sign(priv ed25519.PrivateKey) {
	unsigned := Abstract{OwnerID: a.OwnerID, BlockNumber: a.BlockNumber, BlockHash: a.BlockHash}
	a.Signature = ed25519.Sign(priv, unsigned.CanonicalBytes())
}

// Hash is the identifier used to ask AbstractCache whether this block
// has been committed: sha256 of the block hash alone is good enough
// once we've already confirmed ownerID/blockNumber out of band, but we
// key the cache by BlockHash directly rather than re-hashing it.
func (a Abstract) Hash() [32]byte { return a.BlockHash }

// Status is the result of the main chain's status RPC.
type Status struct {
	LatestHeight uint64
}

// Client is the three-operation surface the core needs from the main
// chain: status, query-by-height, and commit. Production implementations
// talk to a real BFT RPC endpoint; Memory is an in-process test double.
type Client interface {
	Status(ctx context.Context) (Status, error)
	Query(ctx context.Context, height uint64) ([]Abstract, error)
	Commit(ctx context.Context, a Abstract) ([32]byte, error)
}

// Committer is the narrow surface BlockBuilder needs: just enough to
// hand off a finalized block's abstract. Both Client and AbstractCache
// (which forwards to a Client under the hood) satisfy it, so a
// BlockBuilder can commit through either one directly.
type Committer interface {
	Commit(ctx context.Context, a Abstract) ([32]byte, error)
}
