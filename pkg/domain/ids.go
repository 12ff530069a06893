// Package domain provides type-safe identifiers to prevent mixing up IDs at compile time.
package domain

import (
	"github.com/google/uuid"

	dErrors "dcp/pkg/domain-errors"
)

// Distinct ID types - compiler prevents passing ActorID where OrgID is expected.
type (
	ActorID        uuid.UUID
	OrgID          uuid.UUID
	TemplateID     uuid.UUID
	CredentialID   uuid.UUID
	VerificationID uuid.UUID
)

// Parse functions - use at trust boundaries (handlers, API inputs).

func ParseActorID(s string) (ActorID, error) {
	id, err := parseUUID(s, "actor ID")
	return ActorID(id), err
}

func ParseOrgID(s string) (OrgID, error) {
	id, err := parseUUID(s, "organization ID")
	return OrgID(id), err
}

func ParseTemplateID(s string) (TemplateID, error) {
	id, err := parseUUID(s, "template ID")
	return TemplateID(id), err
}

func ParseCredentialID(s string) (CredentialID, error) {
	id, err := parseUUID(s, "credential ID")
	return CredentialID(id), err
}

// String methods - for logging and debugging.

func (id ActorID) String() string        { return uuid.UUID(id).String() }
func (id OrgID) String() string          { return uuid.UUID(id).String() }
func (id TemplateID) String() string     { return uuid.UUID(id).String() }
func (id CredentialID) String() string   { return uuid.UUID(id).String() }
func (id VerificationID) String() string { return uuid.UUID(id).String() }

// IsNil checks - used for service-layer validation.

func (id ActorID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id OrgID) IsNil() bool          { return uuid.UUID(id) == uuid.Nil }
func (id TemplateID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id CredentialID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id VerificationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// Text marshaling - defined types do not inherit uuid.UUID's methods, so
// without these every JSON encoding would emit a raw byte array.

func (id ActorID) MarshalText() ([]byte, error)        { return []byte(id.String()), nil }
func (id OrgID) MarshalText() ([]byte, error)          { return []byte(id.String()), nil }
func (id TemplateID) MarshalText() ([]byte, error)     { return []byte(id.String()), nil }
func (id CredentialID) MarshalText() ([]byte, error)   { return []byte(id.String()), nil }
func (id VerificationID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *ActorID) UnmarshalText(b []byte) error {
	u, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*id = ActorID(u)
	return nil
}

func (id *OrgID) UnmarshalText(b []byte) error {
	u, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*id = OrgID(u)
	return nil
}

func (id *TemplateID) UnmarshalText(b []byte) error {
	u, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*id = TemplateID(u)
	return nil
}

func (id *CredentialID) UnmarshalText(b []byte) error {
	u, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*id = CredentialID(u)
	return nil
}

func (id *VerificationID) UnmarshalText(b []byte) error {
	u, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*id = VerificationID(u)
	return nil
}

// parseUUID is the shared validation logic.
// Note: Nil UUIDs are allowed here. Use IsNil() at the service layer for
// business validation, which allows store lookups to return proper
// "not found" errors for consistency.
func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be empty")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label+" format")
	}
	return id, nil
}
