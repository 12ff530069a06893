package template

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	id "dcp/pkg/domain"
	"dcp/pkg/platform/sentinel"
)

const uniqueViolation = "23505"

// PostgresStore persists templates in PostgreSQL via pgx.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const templateColumns = `id, organization_id, name, design, status, created_by, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, t *Template) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO credential_templates (id, organization_id, name, design, status, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.UUID(t.ID), uuid.UUID(t.OrgID), t.Name, []byte(t.Design),
		string(t.Status), uuid.UUID(t.CreatedBy), t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("template exists: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("create template: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, templateID id.TemplateID) (*Template, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+templateColumns+` FROM credential_templates WHERE id = $1`, uuid.UUID(templateID))
	return scanTemplate(row)
}

func (s *PostgresStore) ListByOrg(ctx context.Context, orgID id.OrgID) ([]*Template, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+templateColumns+` FROM credential_templates
		WHERE organization_id = $1 ORDER BY created_at DESC`, uuid.UUID(orgID))
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var out []*Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Execute holds a row lock (SELECT ... FOR UPDATE) across validate and mutate
// so concurrent status transitions on the same template serialize.
func (s *PostgresStore) Execute(ctx context.Context, templateID id.TemplateID, validate func(*Template) error, mutate func(*Template) error) (*Template, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin template tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT `+templateColumns+` FROM credential_templates WHERE id = $1 FOR UPDATE`, uuid.UUID(templateID))
	t, err := scanTemplate(row)
	if err != nil {
		return nil, err
	}
	if err := validate(t); err != nil {
		return nil, err
	}
	if err := mutate(t); err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE credential_templates SET name = $2, design = $3, status = $4, updated_at = $5
		WHERE id = $1`,
		uuid.UUID(t.ID), t.Name, []byte(t.Design), string(t.Status), t.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("update template: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit template tx: %w", err)
	}
	return t, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTemplate(row rowScanner) (*Template, error) {
	var t Template
	var templateID, orgID, createdBy uuid.UUID
	var status string
	var design []byte
	err := row.Scan(&templateID, &orgID, &t.Name, &design, &status, &createdBy, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("template not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("scan template: %w", err)
	}
	t.ID = id.TemplateID(templateID)
	t.OrgID = id.OrgID(orgID)
	t.CreatedBy = id.ActorID(createdBy)
	t.Status = Status(status)
	t.Design = design
	return &t, nil
}
