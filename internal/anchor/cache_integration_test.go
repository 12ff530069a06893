//go:build integration

package anchor_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"dcp/internal/anchor"
	"dcp/internal/platform/redis"
	id "dcp/pkg/domain"
	"dcp/pkg/platform/sentinel"
	"dcp/pkg/testutil/containers"
)

// countingLedger tracks how often the real ledger is consulted so the
// tests can tell cache hits from fall-throughs.
type countingLedger struct {
	lookups atomic.Int32
	anchors atomic.Int32
	digest  string
	err     error
}

func (l *countingLedger) Anchor(context.Context, string, id.PublicCredentialID) (string, error) {
	l.anchors.Add(1)
	return "0xabc123", l.err
}

func (l *countingLedger) Lookup(context.Context, id.PublicCredentialID) (string, error) {
	l.lookups.Add(1)
	return l.digest, l.err
}

func (l *countingLedger) TransactionDetails(context.Context, string) (*anchor.TransactionDetails, error) {
	return &anchor.TransactionDetails{TransactionHash: "0xabc123", Status: "confirmed"}, nil
}

type CachedLedgerSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	cache *redis.Client
}

func TestCachedLedgerSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(CachedLedgerSuite))
}

func (s *CachedLedgerSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redis = mgr.GetRedis(s.T())
	s.cache = &redis.Client{Client: s.redis.Client}
}

func (s *CachedLedgerSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

const cachedDigest = "616503b7da4c38e24c0aca9bc59b300fe2fa7597aa0a7b8abbbee6d810078b0f"

func (s *CachedLedgerSuite) TestLookupCachesDigest() {
	ctx := context.Background()
	underlying := &countingLedger{digest: cachedDigest}
	ledger := anchor.NewCachedLedger(underlying, s.cache, time.Minute)
	publicID := id.PublicCredentialID("DCP-20260314-ABCDEF01")

	for range 3 {
		digest, err := ledger.Lookup(ctx, publicID)
		s.Require().NoError(err)
		s.Equal(cachedDigest, digest)
	}

	s.Equal(int32(1), underlying.lookups.Load())
}

func (s *CachedLedgerSuite) TestAnchorPrimesCache() {
	ctx := context.Background()
	underlying := &countingLedger{digest: cachedDigest}
	ledger := anchor.NewCachedLedger(underlying, s.cache, time.Minute)
	publicID := id.PublicCredentialID("DCP-20260314-ABCDEF02")

	ref, err := ledger.Anchor(ctx, cachedDigest, publicID)
	s.Require().NoError(err)
	s.Equal("0xabc123", ref)

	digest, err := ledger.Lookup(ctx, publicID)
	s.Require().NoError(err)
	s.Equal(cachedDigest, digest)

	// Served from the cache entry the anchor wrote.
	s.Equal(int32(0), underlying.lookups.Load())
}

func (s *CachedLedgerSuite) TestLedgerErrorsAreNotCached() {
	ctx := context.Background()
	underlying := &countingLedger{err: sentinel.ErrUnavailable}
	ledger := anchor.NewCachedLedger(underlying, s.cache, time.Minute)
	publicID := id.PublicCredentialID("DCP-20260314-ABCDEF03")

	_, err := ledger.Lookup(ctx, publicID)
	s.Require().ErrorIs(err, sentinel.ErrUnavailable)

	// Recovery reaches the ledger again instead of a poisoned entry.
	underlying.err = nil
	underlying.digest = cachedDigest
	digest, err := ledger.Lookup(ctx, publicID)
	s.Require().NoError(err)
	s.Equal(cachedDigest, digest)
	s.Equal(int32(2), underlying.lookups.Load())
}

func (s *CachedLedgerSuite) TestDistinctCredentialsDoNotCollide() {
	ctx := context.Background()
	first := anchor.NewCachedLedger(&countingLedger{digest: cachedDigest}, s.cache, time.Minute)
	other := "9f2bca3100a065021d241f5d0b93ae650f952c7aeb94cab22138bb2d18e2f1aa"
	second := anchor.NewCachedLedger(&countingLedger{digest: other}, s.cache, time.Minute)

	digestA, err := first.Lookup(ctx, "DCP-20260314-AAAAAAAA")
	s.Require().NoError(err)
	digestB, err := second.Lookup(ctx, "DCP-20260314-BBBBBBBB")
	s.Require().NoError(err)

	s.Equal(cachedDigest, digestA)
	s.Equal(other, digestB)
}
