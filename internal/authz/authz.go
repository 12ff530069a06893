// Package authz decides whether an actor may perform an action on an
// organization or credential. Decisions are pure; absence of permission is a
// normal false result, and callers translate false into a forbidden error.
package authz

import (
	"context"

	"dcp/internal/identity"
	"dcp/internal/org"
	id "dcp/pkg/domain"
	dErrors "dcp/pkg/domain-errors"
)

type Action string

const (
	ActionRead           Action = "read"
	ActionWrite          Action = "write"
	ActionDelete         Action = "delete"
	ActionIssue          Action = "issue"
	ActionManageTemplate Action = "manage-template"
	ActionManageOrg      Action = "manage-org"
	ActionViewAnalytics  Action = "view-analytics"
)

// CredentialRef carries the credential attributes permission rules look at.
// Kept as a plain value so the evaluator needs no credential package import.
type CredentialRef struct {
	IssuerID    id.ActorID
	RecipientID id.ActorID
	Public      bool
}

// Resource is the target of a permission check: always an organization, and
// optionally a specific credential within it.
type Resource struct {
	OrgID      id.OrgID
	Credential *CredentialRef
}

func OrgResource(orgID id.OrgID) Resource {
	return Resource{OrgID: orgID}
}

func CredentialResource(orgID id.OrgID, ref CredentialRef) Resource {
	return Resource{OrgID: orgID, Credential: &ref}
}

// Decide applies the permission rules in precedence order; the first matching
// rule wins. membership may be nil when the actor has none in the resource's
// organization.
func Decide(actor *identity.Actor, res Resource, action Action, membership *org.Membership) bool {
	if actor == nil || !actor.Active {
		return false
	}
	if actor.Role == identity.RoleSuperAdmin {
		return true
	}
	if c := res.Credential; c != nil {
		switch action {
		case ActionRead:
			if actor.ID == c.RecipientID || actor.ID == c.IssuerID {
				return true
			}
			if c.Public {
				return true
			}
		case ActionWrite, ActionDelete:
			if actor.ID == c.IssuerID {
				return true
			}
		}
	}
	if membership == nil || membership.OrgID != res.OrgID {
		return false
	}
	switch action {
	case ActionRead, ActionWrite, ActionDelete:
		return true
	case ActionIssue, ActionManageTemplate, ActionViewAnalytics:
		return actor.Role == identity.RoleIssuerAdmin
	case ActionManageOrg:
		return actor.Role == identity.RoleIssuerAdmin || membership.Role == org.MembershipAdmin
	}
	return false
}

// MembershipReader resolves an actor's membership in an organization; nil
// without error means no membership.
type MembershipReader interface {
	MembershipOf(ctx context.Context, actorID id.ActorID, orgID id.OrgID) (*org.Membership, error)
}

// Evaluator wires Decide to membership data so services can gate operations
// with a single call.
type Evaluator struct {
	memberships MembershipReader
}

func NewEvaluator(memberships MembershipReader) *Evaluator {
	return &Evaluator{memberships: memberships}
}

func (e *Evaluator) CanAct(ctx context.Context, actor *identity.Actor, res Resource, action Action) (bool, error) {
	if actor == nil {
		return false, nil
	}
	// SuperAdmin and credential-ownership rules never need membership data;
	// skip the lookup when one of them already decides.
	if allowed := Decide(actor, res, action, nil); allowed {
		return true, nil
	}
	if !actor.Active || actor.Role == identity.RoleSuperAdmin {
		return false, nil
	}
	m, err := e.memberships.MembershipOf(ctx, actor.ID, res.OrgID)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve membership")
	}
	if m == nil {
		return false, nil
	}
	return Decide(actor, res, action, m), nil
}

// Require converts a false decision into a forbidden error with the action in
// the message, so every rejected operation reports which check failed.
func (e *Evaluator) Require(ctx context.Context, actor *identity.Actor, res Resource, action Action) error {
	allowed, err := e.CanAct(ctx, actor, res, action)
	if err != nil {
		return err
	}
	if !allowed {
		return dErrors.New(dErrors.CodeForbidden, "not permitted to "+string(action))
	}
	return nil
}
