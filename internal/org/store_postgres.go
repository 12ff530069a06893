package org

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

// PostgresStore persists organizations and memberships via pgx.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) CreateIfNameAvailable(ctx context.Context, o *Organization) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO organizations (id, name, slug, verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.UUID(o.ID), o.Name, o.Slug, o.Verified, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("organization name taken: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("create organization: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, orgID id.OrgID) (*Organization, error) {
	var o Organization
	var rawID uuid.UUID
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, slug, verified, created_at, updated_at
		FROM organizations WHERE id = $1`, uuid.UUID(orgID)).
		Scan(&rawID, &o.Name, &o.Slug, &o.Verified, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("organization not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find organization: %w", err)
	}
	o.ID = id.OrgID(rawID)
	return &o, nil
}

func (s *PostgresStore) Update(ctx context.Context, o *Organization) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE organizations SET name = $2, slug = $3, verified = $4, updated_at = $5
		WHERE id = $1`,
		uuid.UUID(o.ID), o.Name, o.Slug, o.Verified, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update organization: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("organization not found: %w", sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) UpsertMembership(ctx context.Context, m *Membership) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO organization_members (actor_id, organization_id, role, joined_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (actor_id, organization_id) DO UPDATE SET role = EXCLUDED.role`,
		uuid.UUID(m.ActorID), uuid.UUID(m.OrgID), string(m.Role), m.JoinedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert membership: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindMembership(ctx context.Context, actorID id.ActorID, orgID id.OrgID) (*Membership, error) {
	var m Membership
	var rawActor, rawOrg uuid.UUID
	var role string
	err := s.pool.QueryRow(ctx, `
		SELECT actor_id, organization_id, role, joined_at
		FROM organization_members WHERE actor_id = $1 AND organization_id = $2`,
		uuid.UUID(actorID), uuid.UUID(orgID)).
		Scan(&rawActor, &rawOrg, &role, &m.JoinedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("membership not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find membership: %w", err)
	}
	m.ActorID = id.ActorID(rawActor)
	m.OrgID = id.OrgID(rawOrg)
	m.Role = MembershipRole(role)
	return &m, nil
}

func (s *PostgresStore) ListMemberOrgIDs(ctx context.Context, actorID id.ActorID) ([]id.OrgID, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT organization_id FROM organization_members WHERE actor_id = $1`,
		uuid.UUID(actorID))
	if err != nil {
		return nil, fmt.Errorf("list member orgs: %w", err)
	}
	defer rows.Close()

	var ids []id.OrgID
	for rows.Next() {
		var raw uuid.UUID
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan member org: %w", err)
		}
		ids = append(ids, id.OrgID(raw))
	}
	return ids, rows.Err()
}
