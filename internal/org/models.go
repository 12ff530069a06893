package org

import (
	"strings"
	"time"

	id "dcp/pkg/domain"
	dErrors "dcp/pkg/domain-errors"
)

// Organization owns credential templates and the credentials issued against
// them. Organizations are never deleted while credentials reference them.
type Organization struct {
	ID        id.OrgID  `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Verified  bool      `json:"verified"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewOrganization(orgID id.OrgID, name string, now time.Time) (*Organization, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "organization name cannot be empty")
	}
	if len(name) > 255 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "organization name must be 255 characters or less")
	}
	return &Organization{
		ID:        orgID,
		Name:      name,
		Slug:      slugify(name),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// MembershipRole is an actor's role within one organization, distinct from
// the actor's platform-wide role.
type MembershipRole string

const (
	MembershipAdmin  MembershipRole = "admin"
	MembershipMember MembershipRole = "member"
	MembershipViewer MembershipRole = "viewer"
)

func (r MembershipRole) Valid() bool {
	switch r {
	case MembershipAdmin, MembershipMember, MembershipViewer:
		return true
	}
	return false
}

// Membership links an actor to an organization.
// Invariant: at most one membership per (actor, organization) pair; AddMember
// upserts rather than duplicating.
type Membership struct {
	ActorID  id.ActorID     `json:"actor_id"`
	OrgID    id.OrgID       `json:"organization_id"`
	Role     MembershipRole `json:"role"`
	JoinedAt time.Time      `json:"joined_at"`
}

func slugify(name string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteByte('-')
			lastDash = true
		}
	}
	return strings.Trim(b.String(), "-")
}
