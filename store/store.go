// Package store implements LocalStore, the passive per-node aggregate
// of node table, unspent set, and consumed-source index. Persistence is
// an in-memory sqlite connection: on-disk durability is out of scope,
// but the bobg/sqlutil-over-database/sql query-helper idiom is worth
// keeping for the handful of set-membership queries this package still
// needs, now that block storage itself moved onto ledger.Chain's
// in-memory slices.
package store

import (
	"context"
	"database/sql"
	"sync"

	"github.com/bobg/sqlutil"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/scaleledger/scaleledger/ledger"
	"github.com/scaleledger/scaleledger/tracker"
)

// LocalStore is the passive per-node aggregate: ownNode, a node table
// backed by the process Registry, the unspent set, and the per-peer
// meta-knowledge this node has observed.
type LocalStore struct {
	Own      *ledger.Node
	Registry *ledger.Registry
	Tracker  tracker.Tracker

	db *sql.DB

	mu       sync.Mutex
	peerMeta map[ledger.NodeID]*ledger.MetaKnowledge
}

// Open creates a LocalStore for own, backed by a fresh in-memory sqlite
// connection.
func Open(own *ledger.Node, registry *ledger.Registry, t tracker.Tracker) (*LocalStore, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, errors.Wrap(err, "opening local store")
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "creating local store schema")
	}
	registry.Put(own)
	return &LocalStore{
		Own:      own,
		Registry: registry,
		Tracker:  t,
		db:       db,
		peerMeta: make(map[ledger.NodeID]*ledger.MetaKnowledge),
	}, nil
}

// Close releases the store's database connection.
func (s *LocalStore) Close() error { return s.db.Close() }

// PeerMeta returns this node's ratchet on what peer id has already been
// shown, creating one (starting at "knows nothing beyond genesis") on
// first use. Its entries are advanced by proof.Verifier on every proof
// this store accepts from that peer, and read by proof.Construct when
// this store sends a transaction to that peer.
func (s *LocalStore) PeerMeta(id ledger.NodeID) *ledger.MetaKnowledge {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.peerMeta[id]
	if !ok {
		m = ledger.NewMetaKnowledge()
		s.peerMeta[id] = m
	}
	return m
}

// Node returns the Node handle for id, consulting the tracker for an
// updated membership set on a miss: a lookup that misses triggers a
// refresh from the tracker.
func (s *LocalStore) Node(ctx context.Context, id ledger.NodeID) (*ledger.Node, error) {
	if n, ok := s.Registry.Get(id); ok {
		return n, nil
	}
	nodes, err := s.Tracker.UpdateNodes(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "refreshing node table from tracker")
	}
	for _, n := range nodes {
		s.Registry.Put(n)
	}
	n, ok := nodes[id]
	if !ok {
		return nil, errors.Errorf("node %d: not known to tracker", id)
	}
	return n, nil
}

// Contains implements proof.ConsumedIndex.
func (s *LocalStore) Contains(ctx context.Context, src ledger.SourceRef) (bool, error) {
	var n int
	const q = `SELECT COUNT(*) FROM consumed_sources WHERE owner_id = $1 AND tx_number = $2`
	err := s.db.QueryRowContext(ctx, q, src.SenderID, src.Number).Scan(&n)
	if err != nil {
		return false, errors.Wrap(err, "checking consumed-source index")
	}
	return n > 0, nil
}

// Record implements proof.ConsumedIndex.
func (s *LocalStore) Record(ctx context.Context, src ledger.SourceRef) error {
	const q = `INSERT OR IGNORE INTO consumed_sources (owner_id, tx_number) VALUES ($1, $2)`
	_, err := s.db.ExecContext(ctx, q, src.SenderID, src.Number)
	return errors.Wrap(err, "recording consumed source")
}

// Add implements proof.UnspentSink: it records tx as a payment received
// by this node.
func (s *LocalStore) Add(ctx context.Context, tx *ledger.Transaction) error {
	sender := ledger.MintSenderID
	if tx.SenderID != nil {
		sender = *tx.SenderID
	}
	const q = `INSERT OR IGNORE INTO unspent (owner_id, tx_number, amount) VALUES ($1, $2, $3)`
	_, err := s.db.ExecContext(ctx, q, sender, tx.Number, tx.Amount)
	return errors.Wrap(err, "adding unspent transaction")
}

// Spend removes a transaction from the unspent set once this node has
// used it as a source in an outgoing transaction of its own.
func (s *LocalStore) Spend(ctx context.Context, owner ledger.NodeID, number uint32) error {
	const q = `DELETE FROM unspent WHERE owner_id = $1 AND tx_number = $2`
	_, err := s.db.ExecContext(ctx, q, owner, number)
	return errors.Wrap(err, "spending unspent transaction")
}

// Balance sums every amount this node still holds unspent, using
// sqlutil.ForQueryRows to scan the result set without hand-rolled
// rows.Next/Scan/Err boilerplate.
func (s *LocalStore) Balance(ctx context.Context) (uint64, error) {
	var total uint64
	err := sqlutil.ForQueryRows(ctx, s.db, `SELECT amount FROM unspent`, func(amount uint64) error {
		total += amount
		return nil
	})
	return total, errors.Wrap(err, "summing unspent balance")
}
