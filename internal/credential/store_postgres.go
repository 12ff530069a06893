package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	id "dcp/pkg/domain"
	"dcp/pkg/platform/sentinel"
)

const uniqueViolation = "23505"

// PostgresStore persists credentials in PostgreSQL via pgx.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const credentialColumns = `id, public_id, title, description, organization_id, template_id,
	issuer_id, recipient_id, recipient_name, recipient_email, credential_data,
	status, public, verification_url, content_hash, anchor_tx_ref, artifact_urls,
	issued_at, expires_at, revoked_at, revocation_reason, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, c *Credential) error {
	data, err := json.Marshal(c.CredentialData)
	if err != nil {
		return fmt.Errorf("encode credential data: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO credentials (`+credentialColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)`,
		uuid.UUID(c.ID), string(c.PublicID), c.Title, c.Description,
		uuid.UUID(c.OrgID), uuid.UUID(c.TemplateID), uuid.UUID(c.IssuerID), uuid.UUID(c.RecipientID),
		c.RecipientName, c.RecipientEmail, data, string(c.Status), c.Public,
		c.VerificationURL, c.ContentHash, c.AnchorTxRef, c.ArtifactURLs,
		c.IssuedAt, c.ExpiresAt, c.RevokedAt, c.RevocationReason, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("credential exists: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("create credential: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, credentialID id.CredentialID) (*Credential, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+credentialColumns+` FROM credentials WHERE id = $1`, uuid.UUID(credentialID))
	return scanCredential(row)
}

func (s *PostgresStore) FindByPublicID(ctx context.Context, publicID id.PublicCredentialID) (*Credential, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+credentialColumns+` FROM credentials WHERE public_id = $1`, string(publicID))
	return scanCredential(row)
}

func (s *PostgresStore) List(ctx context.Context, filter ListFilter) ([]*Credential, error) {
	var (
		clauses []string
		args    []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if len(filter.OrgIDs) > 0 {
		orgIDs := make([]uuid.UUID, len(filter.OrgIDs))
		for i, orgID := range filter.OrgIDs {
			orgIDs[i] = uuid.UUID(orgID)
		}
		clauses = append(clauses, "organization_id = ANY("+arg(orgIDs)+")")
	}
	if !filter.IssuerID.IsNil() {
		clauses = append(clauses, "issuer_id = "+arg(uuid.UUID(filter.IssuerID)))
	}
	if !filter.RecipientID.IsNil() {
		clauses = append(clauses, "recipient_id = "+arg(uuid.UUID(filter.RecipientID)))
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = "+arg(string(filter.Status)))
	}
	if filter.RecipientEmail != "" {
		clauses = append(clauses, "recipient_email ILIKE "+arg("%"+filter.RecipientEmail+"%"))
	}

	query := `SELECT ` + credentialColumns + ` FROM credentials`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var out []*Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Execute holds a row lock (SELECT ... FOR UPDATE) across validate and
// mutate so concurrent lifecycle transitions on the same credential
// serialize; a racing issue and revoke cannot interleave.
func (s *PostgresStore) Execute(ctx context.Context, credentialID id.CredentialID, validate func(*Credential) error, mutate func(*Credential) error) (*Credential, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin credential tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT `+credentialColumns+` FROM credentials WHERE id = $1 FOR UPDATE`, uuid.UUID(credentialID))
	c, err := scanCredential(row)
	if err != nil {
		return nil, err
	}
	if err := validate(c); err != nil {
		return nil, err
	}
	if err := mutate(c); err != nil {
		return nil, err
	}

	data, err := json.Marshal(c.CredentialData)
	if err != nil {
		return nil, fmt.Errorf("encode credential data: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE credentials SET title = $2, description = $3, recipient_name = $4,
			recipient_email = $5, credential_data = $6, status = $7, public = $8,
			content_hash = $9, anchor_tx_ref = $10, artifact_urls = $11,
			issued_at = $12, expires_at = $13, revoked_at = $14,
			revocation_reason = $15, updated_at = $16
		WHERE id = $1`,
		uuid.UUID(c.ID), c.Title, c.Description, c.RecipientName, c.RecipientEmail,
		data, string(c.Status), c.Public, c.ContentHash, c.AnchorTxRef, c.ArtifactURLs,
		c.IssuedAt, c.ExpiresAt, c.RevokedAt, c.RevocationReason, c.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("update credential: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit credential tx: %w", err)
	}
	return c, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCredential(row rowScanner) (*Credential, error) {
	var (
		c            Credential
		credentialID uuid.UUID
		publicID     string
		orgID        uuid.UUID
		templateID   uuid.UUID
		issuerID     uuid.UUID
		recipientID  uuid.UUID
		data         []byte
		status       string
	)
	err := row.Scan(&credentialID, &publicID, &c.Title, &c.Description, &orgID, &templateID,
		&issuerID, &recipientID, &c.RecipientName, &c.RecipientEmail, &data,
		&status, &c.Public, &c.VerificationURL, &c.ContentHash, &c.AnchorTxRef, &c.ArtifactURLs,
		&c.IssuedAt, &c.ExpiresAt, &c.RevokedAt, &c.RevocationReason, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("credential not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("scan credential: %w", err)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &c.CredentialData); err != nil {
			return nil, fmt.Errorf("decode credential data: %w", err)
		}
	}
	c.ID = id.CredentialID(credentialID)
	c.PublicID = id.PublicCredentialID(publicID)
	c.OrgID = id.OrgID(orgID)
	c.TemplateID = id.TemplateID(templateID)
	c.IssuerID = id.ActorID(issuerID)
	c.RecipientID = id.ActorID(recipientID)
	c.Status = Status(status)
	return &c, nil
}
