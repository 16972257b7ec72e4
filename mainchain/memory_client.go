package mainchain

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// Memory is an in-process main-chain test double: commits are recorded
// in height order as they arrive and "query" replays whatever landed at
// a given height. There is no real consensus here — Commit assigns the
// next height immediately — which is exactly the simplification a
// unit-test double for a BFT chain should make.
type Memory struct {
	mu        sync.Mutex
	committed *sync.Cond
	byHeight  [][]Abstract
}

// NewMemory returns an empty Memory chain. Height 0 is reserved (as
// Query and Status both treat height as 1-indexed, matching how
// AbstractCache counts "heights seen so far").
func NewMemory() *Memory {
	m := &Memory{byHeight: [][]Abstract{nil}}
	m.committed = sync.NewCond(&m.mu)
	return m
}

// Status reports the highest height with any committed abstracts.
func (m *Memory) Status(context.Context) (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{LatestHeight: uint64(len(m.byHeight) - 1)}, nil
}

// Query returns every abstract committed at height.
func (m *Memory) Query(_ context.Context, height uint64) ([]Abstract, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if height == 0 || int(height) >= len(m.byHeight) {
		return nil, errors.Errorf("no such height %d", height)
	}
	return m.byHeight[height], nil
}

// Commit appends a to the next height and wakes anyone waiting on
// NextHeight.
func (m *Memory) Commit(_ context.Context, a Abstract) ([32]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byHeight = append(m.byHeight, []Abstract{a})
	m.committed.Broadcast()
	return a.Hash(), nil
}

// NextHeight blocks until a height greater than after is committed, or
// ctx is done, returning the new latest height.
func (m *Memory) NextHeight(ctx context.Context, after uint64) (uint64, error) {
	ch := make(chan struct{})
	go func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for uint64(len(m.byHeight)-1) <= after {
			m.committed.Wait()
		}
		close(ch)
	}()
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-ch:
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return uint64(len(m.byHeight) - 1), nil
}
