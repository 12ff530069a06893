// Package notify tells recipients about credentials issued to them.
// Delivery is fire-and-forget; issuance never waits on a notification.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"dcp/internal/credential"
)

// LogNotifier records the notification instead of delivering it. Used in
// development and as the fallback when no delivery endpoint is configured.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) CredentialIssued(ctx context.Context, c *credential.Credential) {
	n.logger.InfoContext(ctx, "credential issued notification",
		"public_id", c.PublicID,
		"recipient_email", c.RecipientEmail,
		"title", c.Title,
	)
}

// WebhookNotifier posts issuance notifications to a delivery service.
type WebhookNotifier struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

func NewWebhookNotifier(endpoint string, logger *slog.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   logger,
	}
}

type issuedNotification struct {
	RecipientEmail  string `json:"recipient_email"`
	RecipientName   string `json:"recipient_name"`
	Title           string `json:"title"`
	PublicID        string `json:"public_id"`
	VerificationURL string `json:"verification_url"`
}

func (n *WebhookNotifier) CredentialIssued(ctx context.Context, c *credential.Credential) {
	body, err := json.Marshal(issuedNotification{
		RecipientEmail:  c.RecipientEmail,
		RecipientName:   c.RecipientName,
		Title:           c.Title,
		PublicID:        c.PublicID.String(),
		VerificationURL: c.VerificationURL,
	})
	if err != nil {
		n.logger.ErrorContext(ctx, "failed to encode notification", "public_id", c.PublicID, "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(body))
	if err != nil {
		n.logger.ErrorContext(ctx, "failed to build notification request", "public_id", c.PublicID, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.WarnContext(ctx, "notification delivery failed", "public_id", c.PublicID, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		n.logger.WarnContext(ctx, "notification delivery rejected",
			"public_id", c.PublicID,
			"status", resp.StatusCode,
		)
	}
}
