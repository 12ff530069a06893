package verification

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	id "dcp/pkg/domain"
)

// SQLStore persists the audit trail through database/sql. The table is
// append-only; rows are never updated or deleted.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Append(ctx context.Context, r Record) error {
	var credentialID any
	if r.CredentialID != nil {
		credentialID = uuid.UUID(*r.CredentialID)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credential_verifications (id, credential_id, public_id, outcome,
			method, client_ip, user_agent, browser, platform, anchor_check_skipped, verified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		uuid.UUID(r.ID), credentialID, string(r.PublicID), string(r.Outcome),
		string(r.Method), r.ClientIP, r.UserAgent, r.Browser, r.Platform,
		r.AnchorCheckSkipped, r.VerifiedAt,
	)
	if err != nil {
		return fmt.Errorf("append verification: %w", err)
	}
	return nil
}

func (s *SQLStore) ListByPublicID(ctx context.Context, publicID id.PublicCredentialID) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, credential_id, public_id, outcome, method, client_ip, user_agent,
			browser, platform, anchor_check_skipped, verified_at
		FROM credential_verifications
		WHERE public_id = $1
		ORDER BY verified_at ASC`, string(publicID))
	if err != nil {
		return nil, fmt.Errorf("list verifications: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r            Record
			recordID     uuid.UUID
			credentialID uuid.NullUUID
			publicIDRaw  string
			outcome      string
			method       string
		)
		if err := rows.Scan(&recordID, &credentialID, &publicIDRaw, &outcome, &method,
			&r.ClientIP, &r.UserAgent, &r.Browser, &r.Platform,
			&r.AnchorCheckSkipped, &r.VerifiedAt); err != nil {
			return nil, fmt.Errorf("scan verification: %w", err)
		}
		r.ID = id.VerificationID(recordID)
		if credentialID.Valid {
			cid := id.CredentialID(credentialID.UUID)
			r.CredentialID = &cid
		}
		r.PublicID = id.PublicCredentialID(publicIDRaw)
		r.Outcome = Outcome(outcome)
		r.Method = Method(method)
		out = append(out, r)
	}
	return out, rows.Err()
}
