package anchor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	id "dcp/pkg/domain"
	"dcp/pkg/platform/sentinel"
)

// BreakerLedger shields the rest of the system from a misbehaving ledger
// gateway. After consecutive failures the circuit opens and calls fail fast
// with sentinel.ErrUnavailable; one probe per cooldown interval is let
// through, and consecutive probe successes close the circuit again.
//
// Issuance already treats ledger errors as advisory, so an open circuit
// degrades anchoring and anchor checks without blocking any credential
// operation.
type BreakerLedger struct {
	next Ledger

	mu           sync.Mutex
	open         bool
	failureCount int
	successCount int
	nextProbe    time.Time

	failureThreshold int
	successThreshold int
	cooldown         time.Duration
}

func NewBreakerLedger(next Ledger) *BreakerLedger {
	return &BreakerLedger{
		next:             next,
		failureThreshold: 5,
		successThreshold: 3,
		cooldown:         30 * time.Second,
	}
}

// allow reports whether a call may proceed. While open, only one probe per
// cooldown interval passes.
func (b *BreakerLedger) allow(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open {
		return true
	}
	if now.Before(b.nextProbe) {
		return false
	}
	b.nextProbe = now.Add(b.cooldown)
	return true
}

func (b *BreakerLedger) record(err error, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.failureCount++
		b.successCount = 0
		if !b.open && b.failureCount >= b.failureThreshold {
			b.open = true
			b.nextProbe = now.Add(b.cooldown)
		}
		return
	}
	if b.open {
		b.successCount++
		if b.successCount >= b.successThreshold {
			b.open = false
			b.failureCount = 0
			b.successCount = 0
		}
		return
	}
	b.failureCount = 0
}

func errCircuitOpen() error {
	return fmt.Errorf("ledger circuit open: %w", sentinel.ErrUnavailable)
}

// answered reports whether the gateway produced a definitive response.
// Clean misses and duplicate rejections mean the ledger is reachable and
// deciding; only transport and server failures count toward opening.
func answered(err error) error {
	if err == nil || errors.Is(err, sentinel.ErrNotFound) || errors.Is(err, sentinel.ErrConflict) {
		return nil
	}
	return err
}

func (b *BreakerLedger) Anchor(ctx context.Context, digest string, publicID id.PublicCredentialID) (string, error) {
	now := time.Now()
	if !b.allow(now) {
		return "", errCircuitOpen()
	}
	ref, err := b.next.Anchor(ctx, digest, publicID)
	b.record(answered(err), time.Now())
	return ref, err
}

func (b *BreakerLedger) Lookup(ctx context.Context, publicID id.PublicCredentialID) (string, error) {
	now := time.Now()
	if !b.allow(now) {
		return "", errCircuitOpen()
	}
	digest, err := b.next.Lookup(ctx, publicID)
	b.record(answered(err), time.Now())
	return digest, err
}

func (b *BreakerLedger) TransactionDetails(ctx context.Context, txRef string) (*TransactionDetails, error) {
	now := time.Now()
	if !b.allow(now) {
		return nil, errCircuitOpen()
	}
	details, err := b.next.TransactionDetails(ctx, txRef)
	b.record(answered(err), time.Now())
	return details, err
}
