package anchor

import (
	"context"
	"time"

	"dcp/internal/platform/redis"
	id "dcp/pkg/domain"
)

// CachedLedger reads anchored digests through Redis. Anchored digests are
// immutable on the ledger, so a positive cache entry can never go stale;
// misses and errors fall through to the ledger.
type CachedLedger struct {
	next  Ledger
	cache *redis.Client
	ttl   time.Duration
}

func NewCachedLedger(next Ledger, cache *redis.Client, ttl time.Duration) *CachedLedger {
	return &CachedLedger{next: next, cache: cache, ttl: ttl}
}

func digestKey(publicID id.PublicCredentialID) string {
	return "anchor:digest:" + string(publicID)
}

func (c *CachedLedger) Anchor(ctx context.Context, digest string, publicID id.PublicCredentialID) (string, error) {
	ref, err := c.next.Anchor(ctx, digest, publicID)
	if err != nil {
		return "", err
	}
	// Best effort; a failed cache write only costs a future ledger round trip.
	c.cache.Set(ctx, digestKey(publicID), digest, c.ttl)
	return ref, nil
}

func (c *CachedLedger) Lookup(ctx context.Context, publicID id.PublicCredentialID) (string, error) {
	// Cache trouble is not ledger trouble; any miss or error falls through.
	if cached, err := c.cache.Get(ctx, digestKey(publicID)).Result(); err == nil && cached != "" {
		return cached, nil
	}
	digest, err := c.next.Lookup(ctx, publicID)
	if err != nil {
		return "", err
	}
	c.cache.Set(ctx, digestKey(publicID), digest, c.ttl)
	return digest, nil
}

func (c *CachedLedger) TransactionDetails(ctx context.Context, txRef string) (*TransactionDetails, error) {
	return c.next.TransactionDetails(ctx, txRef)
}
