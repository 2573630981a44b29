// Package ledger provides the serialization primitive shared by every writer
// of a token's registry/reserve pair.
package ledger

import (
	"context"
	"sync"
	"time"

	"aurum/pkg/domain"
	dErrors "aurum/pkg/domain-errors"
)

// Guard serializes mutations per token using sharded mutexes. Instead of a
// single global lock, tokens are distributed across N shards by an FNV-1a
// hash of the token id, reducing contention when many tokens are active.
//
// Every multi-step mutation of a token's supply/reserve pair must run inside
// Do for the same token id; that is what makes the mint/burn sequences atomic
// with respect to each other.
const numShards = 128

// defaultTimeout bounds how long a mutation section may run.
const defaultTimeout = 5 * time.Second

type Guard struct {
	shards  [numShards]sync.Mutex
	timeout time.Duration
}

// GuardOption configures a Guard.
type GuardOption func(*Guard)

// WithTimeout overrides the per-section timeout.
func WithTimeout(d time.Duration) GuardOption {
	return func(g *Guard) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// NewGuard constructs a Guard.
func NewGuard(opts ...GuardOption) *Guard {
	g := &Guard{timeout: defaultTimeout}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Do runs fn while holding the shard lock for tokenID. The context passed to
// fn carries a deadline; fn must not retain the lock by spawning work that
// outlives it.
func (g *Guard) Do(ctx context.Context, tokenID domain.TokenID, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "mutation aborted: context cancelled")
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	shard := g.selectShard(tokenID)
	g.shards[shard].Lock()
	defer g.shards[shard].Unlock()

	// Check again after acquiring the lock.
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "mutation aborted: context cancelled")
	}

	return fn(ctx)
}

func (g *Guard) selectShard(tokenID domain.TokenID) int {
	return int(hashTokenID(tokenID) % numShards)
}

// hashTokenID uses FNV-1a for even shard distribution.
func hashTokenID(id domain.TokenID) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	s := id.String()
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime
	}
	return h
}
