package vc

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"dcp/internal/credential"
	"dcp/internal/org"
	id "dcp/pkg/domain"
	dErrors "dcp/pkg/domain-errors"
)

var testNow = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

type fakeOrgs struct {
	org *org.Organization
	err error
}

func (f *fakeOrgs) Get(context.Context, id.OrgID) (*org.Organization, error) {
	return f.org, f.err
}

func issuedCredential(t *testing.T) *credential.Credential {
	t.Helper()
	expires := testNow.Add(365 * 24 * time.Hour)
	c, err := credential.NewCredential(id.CredentialID(uuid.New()), credential.CreateParams{
		OrgID:          id.OrgID(uuid.New()),
		TemplateID:     id.TemplateID(uuid.New()),
		IssuerID:       id.ActorID(uuid.New()),
		RecipientID:    id.ActorID(uuid.New()),
		RecipientName:  "Jane Doe",
		RecipientEmail: "jane.doe@example.com",
		Title:          "Cloud Architecture Certificate",
		Description:    "Completed the advanced track",
		CredentialData: map[string]any{"grade": "A", "name": "should not win"},
		ExpiresAt:      &expires,
	}, "https://verify.example.com", testNow)
	require.NoError(t, err)
	require.NoError(t, c.ApplyIssue(testNow))
	return c
}

func TestExport(t *testing.T) {
	issuingOrg, err := org.NewOrganization(id.OrgID(uuid.New()), "Acme Institute", testNow)
	require.NoError(t, err)
	svc := New(&fakeOrgs{org: issuingOrg}, "https://credentials.example.com")

	c := issuedCredential(t)
	doc, err := svc.Export(context.Background(), c)
	require.NoError(t, err)

	require.Equal(t, []string{"VerifiableCredential", "DigitalCredential"}, doc.Type)
	require.Equal(t, c.VerificationURL, doc.ID)
	require.Equal(t, "Acme Institute", doc.Issuer.Name)
	require.Equal(t, "urn:uuid:"+issuingOrg.ID.String(), doc.Issuer.ID)
	require.Equal(t, "https://credentials.example.com/orgs/acme-institute", doc.Issuer.URL)
	require.Equal(t, "2026-03-14T10:00:00Z", doc.IssuanceDate)
	require.Equal(t, "2027-03-14T10:00:00Z", doc.ExpirationDate)

	require.Equal(t, "Jane Doe", doc.CredentialSubject["name"])
	require.Equal(t, "jane.doe@example.com", doc.CredentialSubject["email"])
	require.Equal(t, "A", doc.CredentialSubject["grade"])

	achievement, ok := doc.CredentialSubject["achievement"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "Cloud Architecture Certificate", achievement["name"])
	require.Equal(t, "Completed the advanced track", achievement["description"])
}

func TestExportContextShape(t *testing.T) {
	issuingOrg, err := org.NewOrganization(id.OrgID(uuid.New()), "Acme Institute", testNow)
	require.NoError(t, err)
	svc := New(&fakeOrgs{org: issuingOrg}, "https://credentials.example.com")

	doc, err := svc.Export(context.Background(), issuedCredential(t))
	require.NoError(t, err)

	raw, err := json.Marshal(doc)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))

	ctxList, ok := decoded["@context"].([]any)
	require.True(t, ok)
	require.Len(t, ctxList, 2)
	require.Equal(t, "https://www.w3.org/2018/credentials/v1", ctxList[0])

	vocab, ok := ctxList[1].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "https://digitalcredentials.com/vocab#", vocab["dcp"])
	require.Equal(t, "schema:name", vocab["name"])
}

func TestExportRejectsDrafts(t *testing.T) {
	svc := New(&fakeOrgs{}, "https://credentials.example.com")

	expires := testNow.Add(24 * time.Hour)
	c, err := credential.NewCredential(id.CredentialID(uuid.New()), credential.CreateParams{
		OrgID:          id.OrgID(uuid.New()),
		TemplateID:     id.TemplateID(uuid.New()),
		IssuerID:       id.ActorID(uuid.New()),
		RecipientID:    id.ActorID(uuid.New()),
		RecipientName:  "Jane Doe",
		RecipientEmail: "jane.doe@example.com",
		Title:          "Cloud Architecture Certificate",
		ExpiresAt:      &expires,
	}, "https://verify.example.com", testNow)
	require.NoError(t, err)

	_, err = svc.Export(context.Background(), c)
	require.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
}

func TestExportOmitsExpirationWhenUnset(t *testing.T) {
	issuingOrg, err := org.NewOrganization(id.OrgID(uuid.New()), "Acme Institute", testNow)
	require.NoError(t, err)
	svc := New(&fakeOrgs{org: issuingOrg}, "https://credentials.example.com")

	c := issuedCredential(t)
	c.ExpiresAt = nil

	doc, err := svc.Export(context.Background(), c)
	require.NoError(t, err)
	require.Empty(t, doc.ExpirationDate)

	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.NotContains(t, decoded, "expirationDate")
}
