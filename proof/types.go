// Package proof implements the two halves of the ledger's core: given a
// transaction, construct the minimal slice of chains that justifies it
// under a receiver's current meta-knowledge, and given a transaction
// plus a claimed proof, verify it against local state and the main
// chain's abstract cache.
package proof

import (
	"github.com/pkg/errors"

	"github.com/scaleledger/scaleledger/ledger"
)

// ErrNotInBlock is a programming-error sentinel: ProofConstructor was
// asked to prove a transaction that was never placed in a block.
var ErrNotInBlock = errors.New("transaction has no block number")

// Proof is the minimal bundle of blocks accompanying a transaction that
// lets the receiver verify provenance: one ordered slice of blocks per
// chain owner that contributed something new.
type Proof struct {
	Transaction *ledger.Transaction
	ChainUpdates map[ledger.NodeID][]*ledger.Block
}
