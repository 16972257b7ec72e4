// Package ledger implements the core data model of the scale-out
// distributed ledger: nodes, their per-node chains of blocks and
// transactions, and the meta-knowledge ratchet that tracks what each
// peer has already been shown.
//
// Node, Chain, Block and Transaction form a cyclic object graph in the
// informal model (a block's owner is a Node, a transaction's sources
// point back at other transactions owned by other Nodes). We break the
// cycle with a process-wide Registry keyed by Node id, with
// Transaction.Sources holding (ownerID, number) pairs resolved lazily
// against it.
package ledger

import (
	"sync"

	"golang.org/x/crypto/ed25519"
)

// NodeID identifies a Node. Node equality is by id, never by reference.
type NodeID = uint32

// Node is a participant's identity: its keys, network address, and
// chain. A LocalStore holds one Node per peer it knows about; for a
// peer other than itself, Chain is a local mirror built up as proofs
// are verified, not the peer's authoritative chain.
//
// MetaKnowledge is deliberately not a field here: "how much of each
// chain does peer P have" is knowledge belonging to the observer, not
// to the observed Node, so it lives on the observer's LocalStore
// (store.LocalStore.PeerMeta) instead.
type Node struct {
	ID         NodeID
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey // nil unless this handle is our own node
	Address    string

	Chain *Chain
}

// NewNode creates a Node with a fresh chain rooted at genesis. priv may
// be nil for a remote peer handle whose private key we never hold.
func NewNode(id NodeID, pub ed25519.PublicKey, priv ed25519.PrivateKey, addr string, genesis *Block) *Node {
	n := &Node{
		ID:         id,
		PublicKey:  pub,
		PrivateKey: priv,
		Address:    addr,
	}
	n.Chain = NewChain(n, genesis)
	return n
}

// Registry is the process-wide table of known Node handles, keyed by id.
// It is the thing that lets a Block or Transaction reference an "owner"
// without holding a direct pointer into a cycle.
type Registry struct {
	mu    sync.Mutex
	nodes map[NodeID]*Node
}

// NewRegistry returns an empty, ready-to-use Registry.
func NewRegistry() *Registry {
	return &Registry{nodes: make(map[NodeID]*Node)}
}

// Put registers or replaces the handle for n.ID.
func (r *Registry) Put(n *Node) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodes[n.ID] = n
}

// Get returns the Node for id, or (nil, false) if unknown.
func (r *Registry) Get(id NodeID) (*Node, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[id]
	return n, ok
}

// GetOrCreate returns the registered handle for id, creating a bare
// local mirror (genesis only, no known public key) if none exists yet.
// Used when a proof first mentions a third-party chain owner the
// receiver has never heard of directly.
func (r *Registry) GetOrCreate(id NodeID, genesis *Block) *Node {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n, ok := r.nodes[id]; ok {
		return n
	}
	n := NewNode(id, nil, nil, "", genesis)
	r.nodes[id] = n
	return n
}

// All returns a snapshot slice of every registered Node.
func (r *Registry) All() []*Node {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Node, 0, len(r.nodes))
	for _, n := range r.nodes {
		out = append(out, n)
	}
	return out
}
