package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"dcp/internal/anchor"
	"dcp/internal/authz"
	"dcp/internal/credential"
	"dcp/internal/identity"
	"dcp/internal/jwtauth"
	"dcp/internal/org"
	"dcp/internal/template"
	"dcp/internal/vc"
	"dcp/internal/verification"
)

// RouterSuite exercises the full HTTP surface against in-memory stores.
type RouterSuite struct {
	suite.Suite

	router      http.Handler
	credentials *credential.InMemoryStore
	records     *verification.InMemoryStore
	identities  *identity.Service

	adminToken string
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	identityStore := identity.NewInMemoryStore()
	s.identities = identity.New(identityStore)
	orgs := org.New(org.NewInMemoryStore())
	evaluator := authz.NewEvaluator(orgs)
	templateStore := template.NewInMemoryStore()
	templates := template.New(templateStore, evaluator)

	s.credentials = credential.NewInMemoryStore()
	credentials := credential.New(s.credentials, templateStore, s.identities, orgs, evaluator, "https://verify.example.com")

	s.records = verification.NewInMemoryStore()
	verifications := verification.New(credentials, anchor.New(anchor.NopLedger{}), s.records)

	tokens := jwtauth.New("test-signing-key", "dcp", time.Hour)

	s.router = NewRouter(Dependencies{
		Auth:           NewAuthHandler(s.identities, tokens, logger),
		Orgs:           NewOrgHandler(orgs, logger),
		Templates:      NewTemplateHandler(templates, logger),
		Credentials:    NewCredentialHandler(credentials, vc.New(orgs, "https://credentials.example.com"), logger),
		Verify:         NewVerifyHandler(verifications, anchor.New(anchor.NopLedger{}), logger),
		RequireAuth:    RequireAuth(tokens, s.identities, logger),
		CallbackSecret: "render-secret",
		Logger:         logger,
	})

	s.adminToken = s.register("admin@example.com", "issuer_admin")
}

// register creates an actor through the API and returns a login token.
func (s *RouterSuite) register(address, role string) string {
	status, _ := s.request(http.MethodPost, "/auth/register", "", map[string]any{
		"email":      address,
		"first_name": "Test",
		"last_name":  "User",
		"password":   "correct-horse-battery",
		"role":       role,
	})
	s.Require().Equal(http.StatusCreated, status)

	status, body := s.request(http.MethodPost, "/auth/login", "", map[string]any{
		"email":    address,
		"password": "correct-horse-battery",
	})
	s.Require().Equal(http.StatusOK, status)
	return body["access_token"].(string)
}

func (s *RouterSuite) request(method, path, token string, payload any) (int, map[string]any) {
	var reader io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)

	var body map[string]any
	_ = json.Unmarshal(rr.Body.Bytes(), &body)
	return rr.Code, body
}

func (s *RouterSuite) createOrg(name string) string {
	status, body := s.request(http.MethodPost, "/orgs", s.adminToken, map[string]any{"name": name})
	s.Require().Equal(http.StatusCreated, status)
	return body["id"].(string)
}

func (s *RouterSuite) createActiveTemplate(orgID string) string {
	status, body := s.request(http.MethodPost, "/orgs/"+orgID+"/templates", s.adminToken, map[string]any{
		"name":   "Course Completion",
		"design": map[string]any{"layout": "classic"},
	})
	s.Require().Equal(http.StatusCreated, status)
	templateID := body["id"].(string)

	status, _ = s.request(http.MethodPost, "/templates/"+templateID+"/activate", s.adminToken, nil)
	s.Require().Equal(http.StatusOK, status)
	return templateID
}

func (s *RouterSuite) createDraft(templateID string) map[string]any {
	status, body := s.request(http.MethodPost, "/credentials", s.adminToken, map[string]any{
		"template_id":     templateID,
		"title":           "Cloud Architecture Certificate",
		"recipient_email": "jane.doe@example.com",
		"recipient_name":  "Jane Doe",
	})
	s.Require().Equal(http.StatusCreated, status)
	return body
}

func (s *RouterSuite) TestHealthAndMetricsArePublic() {
	status, body := s.request(http.MethodGet, "/healthz", "", nil)
	s.Equal(http.StatusOK, status)
	s.Equal("ok", body["status"])

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	s.Equal(http.StatusOK, rr.Code)
}

func (s *RouterSuite) TestProtectedRoutesRequireToken() {
	status, body := s.request(http.MethodGet, "/credentials", "", nil)
	s.Equal(http.StatusUnauthorized, status)
	s.Equal("unauthorized", body["error"])

	status, _ = s.request(http.MethodGet, "/credentials", "not-a-token", nil)
	s.Equal(http.StatusUnauthorized, status)
}

func (s *RouterSuite) TestRegisterRejectsSuperAdmin() {
	status, _ := s.request(http.MethodPost, "/auth/register", "", map[string]any{
		"email":    "evil@example.com",
		"password": "pw-long-enough",
		"role":     "super_admin",
	})
	s.Equal(http.StatusForbidden, status)
}

func (s *RouterSuite) TestLoginRejectsWrongPassword() {
	status, _ := s.request(http.MethodPost, "/auth/login", "", map[string]any{
		"email":    "admin@example.com",
		"password": "wrong",
	})
	s.Equal(http.StatusUnauthorized, status)
}

func (s *RouterSuite) TestMe() {
	status, body := s.request(http.MethodGet, "/auth/me", s.adminToken, nil)
	s.Equal(http.StatusOK, status)
	s.Equal("admin@example.com", body["email"])
}

func (s *RouterSuite) TestCredentialLifecycleOverHTTP() {
	orgID := s.createOrg("Acme Institute")
	templateID := s.createActiveTemplate(orgID)
	draft := s.createDraft(templateID)
	credentialID := draft["id"].(string)
	publicID := draft["public_id"].(string)
	s.Equal("draft", draft["status"])

	// Drafts verify as invalid.
	status, body := s.request(http.MethodGet, "/verify/"+publicID, "", nil)
	s.Equal(http.StatusOK, status)
	s.Equal("invalid", body["outcome"])

	status, body = s.request(http.MethodPost, "/credentials/"+credentialID+"/issue", s.adminToken, nil)
	s.Require().Equal(http.StatusOK, status)
	s.Equal("issued", body["status"])
	s.NotEmpty(body["content_hash"])

	status, body = s.request(http.MethodGet, "/verify/"+publicID, "", nil)
	s.Equal(http.StatusOK, status)
	s.Equal("valid", body["outcome"])

	status, body = s.request(http.MethodPost, "/credentials/"+credentialID+"/revoke", s.adminToken, map[string]any{
		"reason": "issued in error",
	})
	s.Require().Equal(http.StatusOK, status)
	s.Equal("revoked", body["status"])

	status, body = s.request(http.MethodGet, "/verify/"+publicID, "", nil)
	s.Equal(http.StatusOK, status)
	s.Equal("revoked", body["outcome"])
	s.Equal("issued in error", body["revocation_reason"])
}

func (s *RouterSuite) TestVerifyUnknownIDIsWellFormedMiss() {
	status, body := s.request(http.MethodGet, "/verify/DCP-20260314-FFFFFFFF", "", nil)
	s.Equal(http.StatusOK, status)
	s.Equal("invalid", body["outcome"])

	status, _ = s.request(http.MethodGet, "/verify/garbage", "", nil)
	s.Equal(http.StatusBadRequest, status)
}

func (s *RouterSuite) TestVerificationHistoryForbiddenForRecipients() {
	token := s.register("recipient@example.com", "recipient")
	status, _ := s.request(http.MethodGet, "/verify/DCP-20260314-FFFFFFFF/history", token, nil)
	s.Equal(http.StatusForbidden, status)

	status, _ = s.request(http.MethodGet, "/verify/DCP-20260314-FFFFFFFF/history", s.adminToken, nil)
	s.Equal(http.StatusOK, status)
}

func (s *RouterSuite) TestExportIssuedCredential() {
	orgID := s.createOrg("Acme Institute")
	templateID := s.createActiveTemplate(orgID)
	draft := s.createDraft(templateID)
	credentialID := draft["id"].(string)

	// Drafts cannot be exported.
	status, _ := s.request(http.MethodGet, "/credentials/"+credentialID+"/export", s.adminToken, nil)
	s.Equal(http.StatusConflict, status)

	status, _ = s.request(http.MethodPost, "/credentials/"+credentialID+"/issue", s.adminToken, nil)
	s.Require().Equal(http.StatusOK, status)

	status, body := s.request(http.MethodGet, "/credentials/"+credentialID+"/export", s.adminToken, nil)
	s.Equal(http.StatusOK, status)
	s.Contains(fmt.Sprint(body["type"]), "VerifiableCredential")

	issuer, ok := body["issuer"].(map[string]any)
	s.Require().True(ok)
	s.Equal("Acme Institute", issuer["name"])
}

func (s *RouterSuite) TestBulkCreateReportsPerItemOutcomes() {
	orgID := s.createOrg("Acme Institute")
	templateID := s.createActiveTemplate(orgID)

	req := map[string]any{"credentials": []map[string]any{
		{
			"template_id":     templateID,
			"title":           "Certificate One",
			"recipient_email": "one@example.com",
		},
		{
			"template_id":     templateID,
			"title":           "",
			"recipient_email": "two@example.com",
		},
	}}
	raw, err := json.Marshal(req)
	s.Require().NoError(err)

	httpReq := httptest.NewRequest(http.MethodPost, "/credentials/bulk", bytes.NewReader(raw))
	httpReq.Header.Set("Authorization", "Bearer "+s.adminToken)
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, httpReq)
	s.Require().Equal(http.StatusMultiStatus, rr.Code)

	var results []bulkItemResponse
	s.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &results))
	s.Require().Len(results, 2)
	s.NotNil(results[0].Credential)
	s.Empty(results[0].Error)
	s.Nil(results[1].Credential)
	s.NotEmpty(results[1].Error)
}

func (s *RouterSuite) TestArtifactCallbackRequiresSecret() {
	orgID := s.createOrg("Acme Institute")
	templateID := s.createActiveTemplate(orgID)
	draft := s.createDraft(templateID)
	credentialID := draft["id"].(string)

	payload := map[string]any{
		"credential_id": credentialID,
		"artifact_url":  "https://cdn.example.com/certs/abc.pdf",
	}
	raw, err := json.Marshal(payload)
	s.Require().NoError(err)

	req := httptest.NewRequest(http.MethodPost, "/artifacts/callback", bytes.NewReader(raw))
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	s.Equal(http.StatusUnauthorized, rr.Code)

	req = httptest.NewRequest(http.MethodPost, "/artifacts/callback", bytes.NewReader(raw))
	req.Header.Set("X-Callback-Secret", "render-secret")
	rr = httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	s.Require().Equal(http.StatusOK, rr.Code)

	var updated map[string]any
	s.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &updated))
	s.Contains(fmt.Sprint(updated["artifact_urls"]), "abc.pdf")
}

func (s *RouterSuite) TestOrgMembershipManagement() {
	orgID := s.createOrg("Acme Institute")

	// A non-member admin cannot manage another organization's members.
	outsiderToken := s.register("outsider@example.com", "issuer_admin")
	status, _ := s.request(http.MethodPost, "/orgs/"+orgID+"/members", outsiderToken, map[string]any{
		"actor_id": "00000000-0000-0000-0000-000000000001",
		"role":     "member",
	})
	s.Equal(http.StatusForbidden, status)

	status, body := s.request(http.MethodGet, "/auth/me", outsiderToken, nil)
	s.Require().Equal(http.StatusOK, status)
	outsiderID := body["id"].(string)

	status, body = s.request(http.MethodPost, "/orgs/"+orgID+"/members", s.adminToken, map[string]any{
		"actor_id": outsiderID,
		"role":     "viewer",
	})
	s.Require().Equal(http.StatusCreated, status)
	s.Equal("viewer", body["role"])
}

func (s *RouterSuite) TestRequestIDEchoedBack() {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	s.Equal("req-42", rr.Header().Get("X-Request-ID"))
}

func (s *RouterSuite) TestListQueryParams() {
	orgID := s.createOrg("List Filters University")
	templateID := s.createActiveTemplate(orgID)
	s.createDraft(templateID)
	s.createDraft(templateID)

	listJSON := func(path string) []map[string]any {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer "+s.adminToken)
		rr := httptest.NewRecorder()
		s.router.ServeHTTP(rr, req)
		s.Require().Equal(http.StatusOK, rr.Code)

		var out []map[string]any
		s.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &out))
		return out
	}

	all := listJSON("/credentials")
	s.Require().GreaterOrEqual(len(all), 2)

	limited := listJSON("/credentials?limit=1")
	s.Require().Len(limited, 1)
	s.Equal(all[0]["id"], limited[0]["id"])

	offset := listJSON("/credentials?offset=1&limit=1")
	s.Require().Len(offset, 1)
	s.Equal(all[1]["id"], offset[0]["id"])

	byEmail := listJSON("/credentials?recipient_email=jane.doe")
	s.Require().NotEmpty(byEmail)
	for _, c := range byEmail {
		s.Contains(c["recipient_email"], "jane.doe")
	}

	status, body := s.request(http.MethodGet, "/credentials?limit=nope", s.adminToken, nil)
	s.Equal(http.StatusBadRequest, status)
	s.Equal("bad_request", body["error"])
}

func (s *RouterSuite) TestActorAdministration() {
	targetToken := s.register("target@example.com", "verifier")

	_, me := s.request(http.MethodGet, "/auth/me", targetToken, nil)
	targetID := me["id"].(string)

	s.Run("issuer admins cannot manage accounts", func() {
		status, body := s.request(http.MethodPost, "/actors/"+targetID+"/disable", s.adminToken, nil)
		s.Equal(http.StatusForbidden, status)
		s.Equal("forbidden", body["error"])
	})

	// Administrators are provisioned out of band; seed one directly.
	ctx := context.Background()
	_, err := s.identities.Register(ctx, "root@example.com", "Root", "Admin", "correct-horse-battery", identity.RoleSuperAdmin)
	s.Require().NoError(err)
	status, body := s.request(http.MethodPost, "/auth/login", "", map[string]any{
		"email":    "root@example.com",
		"password": "correct-horse-battery",
	})
	s.Require().Equal(http.StatusOK, status)
	rootToken := body["access_token"].(string)

	s.Run("role change", func() {
		status, body := s.request(http.MethodPost, "/actors/"+targetID+"/role", rootToken, map[string]any{"role": "issuer_admin"})
		s.Require().Equal(http.StatusOK, status)
		s.Equal("issuer_admin", body["role"])
	})

	s.Run("disable locks the actor out", func() {
		status, _ := s.request(http.MethodPost, "/actors/"+targetID+"/disable", rootToken, nil)
		s.Require().Equal(http.StatusOK, status)

		status, body := s.request(http.MethodGet, "/auth/me", targetToken, nil)
		s.Equal(http.StatusForbidden, status)
		s.Equal("forbidden", body["error"])
	})

	s.Run("malformed actor ID", func() {
		status, _ := s.request(http.MethodPost, "/actors/not-a-uuid/disable", rootToken, nil)
		s.Equal(http.StatusBadRequest, status)
	})
}
