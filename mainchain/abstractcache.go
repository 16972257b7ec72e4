package mainchain

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/bobg/multichan"
	starnet "github.com/interstellar/starlight/net"
	"github.com/pkg/errors"
)

// AbstractCache is an asynchronous, eventually-consistent mirror of the
// main chain's committed block-hash set. It is updated by a single
// serial worker (one logical goroutine, Run), and also synchronously by
// InitialUpdate and Refresh on the caller's goroutine; every write takes
// the lock. Readers only ever take a point-in-time snapshot via IsPresent.
//
// A single goroutine loop streams forward from a cursor with
// exponential backoff on failure. The "stream" is pulled by height
// rather than pushed, since MainChainClient.Query is request/response,
// not a subscription.
type AbstractCache struct {
	client Client

	mu      sync.RWMutex
	present map[[32]byte]struct{}
	height  uint64

	// heights broadcasts every height successfully advanced to, so that
	// other components (e.g. a verifier retrying after NotFinalized) can
	// wait for progress instead of polling.
	heights *multichan.W

	requests chan uint64
}

// NewAbstractCache returns a cache with no heights applied yet. Callers
// must run Run in a goroutine before relying on IsPresent, and should
// call InitialUpdate first to block until the first full sync succeeds.
func NewAbstractCache(client Client) *AbstractCache {
	return &AbstractCache{
		client:   client,
		present:  make(map[[32]byte]struct{}),
		heights:  multichan.New(uint64(0)),
		requests: make(chan uint64, 64),
	}
}

// IsPresent is a pure, never-blocking point read of the committed set.
func (c *AbstractCache) IsPresent(hash [32]byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.present[hash]
	return ok
}

// CurrentHeight returns the highest main-chain height fully applied so
// far. Every hash at a height <= CurrentHeight() is guaranteed present.
func (c *AbstractCache) CurrentHeight() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.height
}

// Commit forwards abstract a to the main chain. The hash will appear in
// IsPresent only once a subsequent NoteNewHeight (or the Run loop's own
// status polling) pulls it back in.
func (c *AbstractCache) Commit(ctx context.Context, a Abstract) ([32]byte, error) {
	hash, err := c.client.Commit(ctx, a)
	return hash, errors.Wrap(err, "committing abstract")
}

// NoteNewHeight asynchronously requests that the worker catch up
// through height h. It never blocks the caller.
func (c *AbstractCache) NoteNewHeight(h uint64) {
	select {
	case c.requests <- h:
	default:
		// worker is already behind; it will pick up the new target
		// once it re-polls Status in Run's idle loop.
	}
}

// InitialUpdate blocks the caller in a retry loop until the first full
// update succeeds. Callers should run this once before trusting
// IsPresent.
func (c *AbstractCache) InitialUpdate(ctx context.Context) error {
	for {
		st, err := c.client.Status(ctx)
		if err == nil {
			if err = c.advanceTo(ctx, st.LatestHeight); err == nil {
				return nil
			}
		}
		log.Printf("abstractcache: initial update failed, retrying in 1s: %v", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

// Run is the single serial updater: it processes NoteNewHeight requests
// and a slow idle poll of Status, applying backoff between failed
// attempts. It returns when ctx is done.
func (c *AbstractCache) Run(ctx context.Context) error {
	backoff := &starnet.Backoff{Base: 2 * time.Second}
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case target := <-c.requests:
			if err := c.advanceTo(ctx, target); err != nil {
				log.Printf("abstractcache: update to height %d failed: %v", target, err)
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(backoff.Next()):
				}
				continue
			}

		case <-ticker.C:
			st, err := c.client.Status(ctx)
			if err != nil {
				log.Printf("abstractcache: status poll failed: %v", err)
				continue
			}
			if err := c.advanceTo(ctx, st.LatestHeight); err != nil {
				log.Printf("abstractcache: update to height %d failed: %v", st.LatestHeight, err)
			}
		}
	}
}

// advanceTo queries every height in (currentHeight, target] and inserts
// their abstracts' hashes. On failure at height i it aborts without
// advancing past i-1.
func (c *AbstractCache) advanceTo(ctx context.Context, target uint64) error {
	start := c.CurrentHeight() + 1
	if target < start {
		return nil
	}

	newHashes := make(map[[32]byte]struct{})
	for i := start; i <= target; i++ {
		abs, err := c.client.Query(ctx, i)
		if err != nil {
			return errors.Wrapf(err, "querying height %d", i)
		}
		for _, a := range abs {
			newHashes[a.Hash()] = struct{}{}
		}
	}

	c.mu.Lock()
	for h := range newHashes {
		c.present[h] = struct{}{}
	}
	if target > c.height {
		c.height = target
	}
	c.mu.Unlock()

	c.heights.Write(target)
	return nil
}

// Refresh synchronously queries Status and advances the cache through
// the reported height before returning. Used by a verifier that hit
// NotFinalized and wants one on-demand catch-up attempt rather than
// waiting for the background worker's idle poll.
func (c *AbstractCache) Refresh(ctx context.Context) error {
	st, err := c.client.Status(ctx)
	if err != nil {
		return errors.Wrap(err, "refreshing abstract cache")
	}
	return c.advanceTo(ctx, st.LatestHeight)
}

// WaitForHeight blocks until CurrentHeight() >= at least the given
// height, or ctx is canceled. The proof verifier does not use it; its
// NotFinalized path calls Refresh instead.
func (c *AbstractCache) WaitForHeight(ctx context.Context, h uint64) {
	if c.CurrentHeight() >= h {
		return
	}
	r := c.heights.Reader()
	for c.CurrentHeight() < h {
		if _, ok := r.Read(ctx); !ok {
			return
		}
	}
}
