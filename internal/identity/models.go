package identity

import (
	"time"

	id "dcp/pkg/domain"
	dErrors "dcp/pkg/domain-errors"
	"dcp/pkg/email"
)

// Role is an actor's platform-wide role, distinct from any per-organization
// membership role.
type Role string

const (
	RoleSuperAdmin  Role = "super_admin"
	RoleIssuerAdmin Role = "issuer_admin"
	RoleVerifier    Role = "verifier"
	RoleRecipient   Role = "recipient"
)

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleIssuerAdmin, RoleVerifier, RoleRecipient:
		return true
	}
	return false
}

// Actor is a platform user: an issuer, verifier, recipient, or administrator.
//
// Invariants:
//   - Email is non-empty, well-formed, and unique (store-enforced)
//   - Role is one of the Role constants; changing it requires an explicit
//     administrative action (ChangeRole), never an incidental update
//   - A disabled actor (Active=false) is authorized for nothing
//   - Actors are never hard-deleted; Disable soft-removes them
type Actor struct {
	ID           id.ActorID `json:"id"`
	Email        string     `json:"email"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	Role         Role       `json:"role"`
	Active       bool       `json:"active"`
	PasswordHash string     `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// NewActor constructs an actor, validating identity invariants.
func NewActor(actorID id.ActorID, address string, firstName, lastName string, role Role, now time.Time) (*Actor, error) {
	address = email.Normalize(address)
	if !email.Valid(address) {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "actor email is invalid")
	}
	if !role.Valid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "unknown actor role")
	}
	if firstName == "" {
		firstName, lastName = email.DeriveNameFromEmail(address)
	}
	return &Actor{
		ID:        actorID,
		Email:     address,
		FirstName: firstName,
		LastName:  lastName,
		Role:      role,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// DisplayName joins first and last name for artifact and notification use.
func (a *Actor) DisplayName() string {
	if a.LastName == "" {
		return a.FirstName
	}
	return a.FirstName + " " + a.LastName
}

// CanDisable checks the disable transition.
func (a *Actor) CanDisable() error {
	if !a.Active {
		return dErrors.New(dErrors.CodeInvariantViolation, "actor is already disabled")
	}
	return nil
}

// ApplyDisable soft-removes the actor. Call CanDisable first.
func (a *Actor) ApplyDisable(now time.Time) {
	a.Active = false
	a.UpdatedAt = now
}

// CanChangeRole reports whether the role transition is allowed. Validation
// of the caller's authority happens at the service layer.
func (a *Actor) CanChangeRole(role Role) error {
	if !role.Valid() {
		return dErrors.New(dErrors.CodeInvariantViolation, "unknown actor role")
	}
	return nil
}

// ApplyRoleChange records the new role. Call CanChangeRole first.
func (a *Actor) ApplyRoleChange(role Role, now time.Time) {
	a.Role = role
	a.UpdatedAt = now
}
