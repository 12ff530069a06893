package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	id "dcp/pkg/domain"
	"dcp/pkg/email"
	"dcp/pkg/platform/sentinel"
)

const uniqueViolation = "23505"

// PostgresStore persists actors in PostgreSQL via pgx.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const actorColumns = `id, email, first_name, last_name, role, active, password_hash, created_at, updated_at`

func (s *PostgresStore) CreateIfEmailAvailable(ctx context.Context, actor *Actor) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO actors (id, email, first_name, last_name, role, active, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		uuid.UUID(actor.ID), email.Normalize(actor.Email), actor.FirstName, actor.LastName,
		string(actor.Role), actor.Active, actor.PasswordHash, actor.CreatedAt, actor.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("actor email taken: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("create actor: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, actorID id.ActorID) (*Actor, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+actorColumns+` FROM actors WHERE id = $1`, uuid.UUID(actorID))
	return scanActor(row)
}

func (s *PostgresStore) FindByEmail(ctx context.Context, address string) (*Actor, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+actorColumns+` FROM actors WHERE email = $1`, email.Normalize(address))
	return scanActor(row)
}

func (s *PostgresStore) Update(ctx context.Context, actor *Actor) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE actors SET first_name = $2, last_name = $3, role = $4, active = $5,
			password_hash = $6, updated_at = $7
		WHERE id = $1`,
		uuid.UUID(actor.ID), actor.FirstName, actor.LastName, string(actor.Role),
		actor.Active, actor.PasswordHash, actor.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update actor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("actor not found: %w", sentinel.ErrNotFound)
	}
	return nil
}

// Execute holds a row lock (SELECT ... FOR UPDATE) across validate and mutate
// so concurrent administrative actions on the same actor serialize.
func (s *PostgresStore) Execute(ctx context.Context, actorID id.ActorID, validate func(*Actor) error, mutate func(*Actor)) (*Actor, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin actor tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT `+actorColumns+` FROM actors WHERE id = $1 FOR UPDATE`, uuid.UUID(actorID))
	actor, err := scanActor(row)
	if err != nil {
		return nil, err
	}
	if err := validate(actor); err != nil {
		return nil, err
	}
	mutate(actor)

	if _, err := tx.Exec(ctx, `
		UPDATE actors SET first_name = $2, last_name = $3, role = $4, active = $5,
			password_hash = $6, updated_at = $7
		WHERE id = $1`,
		uuid.UUID(actor.ID), actor.FirstName, actor.LastName, string(actor.Role),
		actor.Active, actor.PasswordHash, actor.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("update actor: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit actor tx: %w", err)
	}
	return actor, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanActor(row rowScanner) (*Actor, error) {
	var actor Actor
	var actorID uuid.UUID
	var role string
	err := row.Scan(&actorID, &actor.Email, &actor.FirstName, &actor.LastName,
		&role, &actor.Active, &actor.PasswordHash, &actor.CreatedAt, &actor.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("actor not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("scan actor: %w", err)
	}
	actor.ID = id.ActorID(actorID)
	actor.Role = Role(role)
	return &actor, nil
}
