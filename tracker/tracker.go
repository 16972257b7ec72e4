// Package tracker declares the node-registration and discovery
// collaborator, kept external to the core ledger logic: it only needs
// to register a new node's public key and periodically refresh its
// view of the network.
package tracker

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/crypto/ed25519"

	"github.com/scaleledger/scaleledger/ledger"
)

// Tracker registers nodes and reports the current membership set.
type Tracker interface {
	RegisterNode(ctx context.Context, pub ed25519.PublicKey, addr string) (*ledger.Node, error)
	UpdateNodes(ctx context.Context) (map[ledger.NodeID]*ledger.Node, error)
}

// Memory is an in-memory Tracker: every RegisterNode call is assigned
// the next free id, starting at 0. Registering the same public key twice
// yields two distinct nodes.
type Memory struct {
	genesis *ledger.Block

	mu     sync.Mutex
	nextID ledger.NodeID
	nodes  map[ledger.NodeID]*ledger.Node
}

// NewMemory returns a Tracker whose registered nodes share genesis as
// the position-0 block of their chain.
func NewMemory(genesis *ledger.Block) *Memory {
	return &Memory{genesis: genesis, nodes: make(map[ledger.NodeID]*ledger.Node)}
}

// RegisterNode assigns pub the next free NodeID and returns its handle.
func (m *Memory) RegisterNode(_ context.Context, pub ed25519.PublicKey, addr string) (*ledger.Node, error) {
	if len(pub) != ed25519.PublicKeySize {
		return nil, errors.New("registernode: malformed public key")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	n := ledger.NewNode(id, pub, nil, addr, m.genesis)
	m.nodes[id] = n
	return n, nil
}

// UpdateNodes returns a snapshot of every node registered so far.
func (m *Memory) UpdateNodes(context.Context) (map[ledger.NodeID]*ledger.Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[ledger.NodeID]*ledger.Node, len(m.nodes))
	for id, n := range m.nodes {
		out[id] = n
	}
	return out, nil
}
