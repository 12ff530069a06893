package anchor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "dcp/pkg/domain"
	dErrors "dcp/pkg/domain-errors"
	"dcp/pkg/platform/sentinel"
)

type fakeLedger struct {
	anchored  map[id.PublicCredentialID]string
	anchorErr error
	lookupErr error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{anchored: make(map[id.PublicCredentialID]string)}
}

func (f *fakeLedger) Anchor(_ context.Context, digest string, publicID id.PublicCredentialID) (string, error) {
	if f.anchorErr != nil {
		return "", f.anchorErr
	}
	if _, ok := f.anchored[publicID]; ok {
		return "", sentinel.ErrConflict
	}
	f.anchored[publicID] = digest
	return "0xref-" + string(publicID), nil
}

func (f *fakeLedger) Lookup(_ context.Context, publicID id.PublicCredentialID) (string, error) {
	if f.lookupErr != nil {
		return "", f.lookupErr
	}
	digest, ok := f.anchored[publicID]
	if !ok {
		return "", sentinel.ErrNotFound
	}
	return digest, nil
}

func (f *fakeLedger) TransactionDetails(context.Context, string) (*TransactionDetails, error) {
	return nil, sentinel.ErrNotFound
}

func TestServiceAnchor(t *testing.T) {
	ctx := context.Background()

	t.Run("anchors and returns ref", func(t *testing.T) {
		svc := New(newFakeLedger())
		ref, err := svc.Anchor(ctx, "deadbeef", testPublicID)
		require.NoError(t, err)
		assert.NotEmpty(t, ref)
	})

	t.Run("double anchoring conflicts", func(t *testing.T) {
		svc := New(newFakeLedger())
		_, err := svc.Anchor(ctx, "deadbeef", testPublicID)
		require.NoError(t, err)
		_, err = svc.Anchor(ctx, "deadbeef", testPublicID)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})

	t.Run("ledger failure reported as unavailable", func(t *testing.T) {
		ledger := newFakeLedger()
		ledger.anchorErr = sentinel.ErrUnavailable
		svc := New(ledger)
		_, err := svc.Anchor(ctx, "deadbeef", testPublicID)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))
	})
}

func TestServiceVerifyAnchor(t *testing.T) {
	ctx := context.Background()

	t.Run("matching digest", func(t *testing.T) {
		ledger := newFakeLedger()
		svc := New(ledger)
		_, err := svc.Anchor(ctx, "deadbeef", testPublicID)
		require.NoError(t, err)

		res, err := svc.VerifyAnchor(ctx, "deadbeef", testPublicID)
		require.NoError(t, err)
		assert.True(t, res.Matched)
		assert.Equal(t, "deadbeef", res.StoredDigest)
	})

	t.Run("hex comparison ignores case", func(t *testing.T) {
		ledger := newFakeLedger()
		svc := New(ledger)
		_, err := svc.Anchor(ctx, "DEADBEEF", testPublicID)
		require.NoError(t, err)

		res, err := svc.VerifyAnchor(ctx, "deadbeef", testPublicID)
		require.NoError(t, err)
		assert.True(t, res.Matched)
	})

	t.Run("mismatch keeps stored digest", func(t *testing.T) {
		ledger := newFakeLedger()
		svc := New(ledger)
		_, err := svc.Anchor(ctx, "deadbeef", testPublicID)
		require.NoError(t, err)

		res, err := svc.VerifyAnchor(ctx, "cafebabe", testPublicID)
		require.NoError(t, err)
		assert.False(t, res.Matched)
		assert.Equal(t, "deadbeef", res.StoredDigest)
	})

	t.Run("absent anchor is a mismatch not an error", func(t *testing.T) {
		svc := New(newFakeLedger())
		res, err := svc.VerifyAnchor(ctx, "deadbeef", testPublicID)
		require.NoError(t, err)
		assert.False(t, res.Matched)
		assert.Empty(t, res.StoredDigest)
	})

	t.Run("ledger failure reported as unavailable", func(t *testing.T) {
		ledger := newFakeLedger()
		ledger.lookupErr = sentinel.ErrUnavailable
		svc := New(ledger)
		_, err := svc.VerifyAnchor(ctx, "deadbeef", testPublicID)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))
	})
}
