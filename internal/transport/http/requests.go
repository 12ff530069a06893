package httptransport

import (
	"time"

	"dcp/internal/credential"
)

type registerRequest struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Password  string `json:"password"`
	Role      string `json:"role"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type changeRoleRequest struct {
	Role string `json:"role"`
}

type tokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type createOrgRequest struct {
	Name string `json:"name"`
}

type addMemberRequest struct {
	ActorID string `json:"actor_id"`
	Role    string `json:"role"`
}

type createTemplateRequest struct {
	Name   string         `json:"name"`
	Design map[string]any `json:"design"`
}

type createCredentialRequest struct {
	TemplateID     string         `json:"template_id"`
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	RecipientEmail string         `json:"recipient_email"`
	RecipientName  string         `json:"recipient_name"`
	CredentialData map[string]any `json:"credential_data"`
	ExpiresAt      *time.Time     `json:"expires_at"`
	Public         bool           `json:"public"`
}

type createCredentialBulkRequest struct {
	Credentials []createCredentialRequest `json:"credentials"`
}

type updateCredentialRequest struct {
	Title          *string        `json:"title"`
	Description    *string        `json:"description"`
	RecipientName  *string        `json:"recipient_name"`
	RecipientEmail *string        `json:"recipient_email"`
	CredentialData map[string]any `json:"credential_data"`
	ExpiresAt      *time.Time     `json:"expires_at"`
	ClearExpiry    bool           `json:"clear_expiry"`
	Public         *bool          `json:"public"`
}

type revokeCredentialRequest struct {
	Reason string `json:"reason"`
}

type artifactCallbackRequest struct {
	CredentialID string `json:"credential_id"`
	ArtifactURL  string `json:"artifact_url"`
}

type bulkItemResponse struct {
	Index      int                    `json:"index"`
	Credential *credential.Credential `json:"credential,omitempty"`
	Error      string                 `json:"error,omitempty"`
}

func bulkResponse(results []credential.BulkResult) []bulkItemResponse {
	out := make([]bulkItemResponse, len(results))
	for i, res := range results {
		item := bulkItemResponse{Index: res.Index, Credential: res.Credential}
		if res.Err != nil {
			item.Error = res.Err.Error()
		}
		out[i] = item
	}
	return out
}
