package anchor

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	id "dcp/pkg/domain"
	dErrors "dcp/pkg/domain-errors"
	"dcp/pkg/platform/sentinel"
)

// VerifyResult reports an anchored-digest comparison. Never mutates anything.
type VerifyResult struct {
	Matched      bool   `json:"matched"`
	StoredDigest string `json:"stored_digest,omitempty"`
}

// Service wraps the ledger with digest comparison and audit logging.
type Service struct {
	ledger Ledger
	logger *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func New(ledger Ledger, opts ...Option) *Service {
	s := &Service{ledger: ledger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Anchor submits the digest to the ledger under the credential's public
// identifier and returns the transaction reference.
func (s *Service) Anchor(ctx context.Context, digest string, publicID id.PublicCredentialID) (string, error) {
	ref, err := s.ledger.Anchor(ctx, digest, publicID)
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return "", dErrors.New(dErrors.CodeConflict, "credential is already anchored")
		}
		return "", dErrors.Wrap(err, dErrors.CodeUnavailable, "ledger anchoring failed")
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "credential hash anchored",
			"public_id", publicID,
			"tx_ref", ref,
			"event", "anchor.submitted",
			"log_type", "audit",
		)
	}
	return ref, nil
}

// VerifyAnchor compares the presented digest against the ledger's stored one.
// Hex digests compare case-insensitively. An absent anchor is a mismatch, not
// an error; ledger unavailability is reported as CodeUnavailable so callers
// can degrade instead of failing.
func (s *Service) VerifyAnchor(ctx context.Context, digest string, publicID id.PublicCredentialID) (VerifyResult, error) {
	stored, err := s.ledger.Lookup(ctx, publicID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return VerifyResult{}, nil
		}
		return VerifyResult{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "ledger lookup failed")
	}
	return VerifyResult{
		Matched:      strings.EqualFold(stored, digest),
		StoredDigest: stored,
	}, nil
}

// TransactionDetails exposes the ledger transaction behind an anchor.
func (s *Service) TransactionDetails(ctx context.Context, txRef string) (*TransactionDetails, error) {
	details, err := s.ledger.TransactionDetails(ctx, txRef)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "transaction not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "ledger transaction lookup failed")
	}
	return details, nil
}
