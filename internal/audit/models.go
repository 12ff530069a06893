// Package audit carries the append-only event stream for credential
// lifecycle and verification activity. Events fan out to slog and, when
// configured, a Kafka topic.
package audit

import (
	"context"
	"time"
)

type EventType string

const (
	CredentialCreated EventType = "credential.created"
	CredentialUpdated EventType = "credential.updated"
	CredentialIssued  EventType = "credential.issued"
	CredentialRevoked EventType = "credential.revoked"

	CredentialVerified EventType = "credential.verified"

	ActorRegistered EventType = "actor.registered"
	ActorDisabled   EventType = "actor.disabled"

	TemplateCreated   EventType = "template.created"
	TemplateActivated EventType = "template.activated"
	TemplateArchived  EventType = "template.archived"

	OrganizationCreated EventType = "organization.created"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so sinks can fan out.
type Event struct {
	Type       EventType         `json:"type"`
	ActorID    string            `json:"actor_id,omitempty"`
	SubjectID  string            `json:"subject_id"`
	RequestID  string            `json:"request_id,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
	Details    map[string]string `json:"details,omitempty"`
}

// Publisher delivers events to a sink. Publishing never blocks domain logic
// and never surfaces an error to it; delivery problems are logged by the
// implementation.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// Store persists events for implementations that buffer through a worker.
type Store interface {
	Append(ctx context.Context, event Event) error
}
