package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"main/config"
	"main/model"
)

// IdentityClient talks to the external identity/sync system. The tokens it
// mints are opaque to this server: they are handed straight to the client and
// validated only by the identity system itself.
type IdentityClient struct {
	baseURL    string
	appID      string
	adminToken string
	httpClient *http.Client
}

func NewIdentityClient(cfg *config.Config) *IdentityClient {
	return &IdentityClient{
		baseURL:    cfg.IdentityBaseURL,
		appID:      cfg.IdentityAppID,
		adminToken: cfg.IdentityAdminToken,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Configured reports whether minting can work at all. Both the app identifier
// and the admin credential must be present; otherwise callers answer 503.
func (c *IdentityClient) Configured() bool {
	return c.appID != "" && c.adminToken != ""
}

// CreateToken mints an identity token for the given account email.
func (c *IdentityClient) CreateToken(ctx context.Context, email string) (string, error) {
	body := map[string]string{"app_id": c.appID, "email": email}

	var result struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "/admin/tokens", body, &result); err != nil {
		return "", err
	}
	if result.Token == "" {
		return "", fmt.Errorf("identity system returned an empty token")
	}
	return result.Token, nil
}

// GetUser resolves an account email to its identity-system user ID.
func (c *IdentityClient) GetUser(ctx context.Context, email string) (string, error) {
	path := "/admin/users?email=" + url.QueryEscape(email)

	var result struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return "", err
	}
	if result.ID == "" {
		return "", fmt.Errorf("identity system returned no user for %q", email)
	}
	return result.ID, nil
}

// UpdateUserType sets the kid/parent type attribute on an identity record.
func (c *IdentityClient) UpdateUserType(ctx context.Context, userID, principalType string) error {
	body := map[string]string{"type": principalType}
	return c.do(ctx, http.MethodPost, "/admin/users/"+url.PathEscape(userID)+"/type", body, nil)
}

// EnsureUserType stamps the type attribute on the record behind an email.
// Safe to repeat; the identity system treats it as an upsert of one field.
func (c *IdentityClient) EnsureUserType(ctx context.Context, email, principalType string) error {
	userID, err := c.GetUser(ctx, email)
	if err != nil {
		return err
	}
	return c.UpdateUserType(ctx, userID, principalType)
}

// FamilyMemberByID fetches one family-member record. Returns (nil, nil) when
// the member does not exist.
func (c *IdentityClient) FamilyMemberByID(ctx context.Context, id string) (*model.FamilyMember, error) {
	path := "/admin/query/family_members?id=" + url.QueryEscape(id)

	var result struct {
		FamilyMembers []model.FamilyMember `json:"familyMembers"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	if len(result.FamilyMembers) == 0 {
		return nil, nil
	}
	return &result.FamilyMembers[0], nil
}

func (c *IdentityClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	if c.baseURL == "" {
		return fmt.Errorf("identity base URL is not set")
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build identity request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.adminToken)
	req.Header.Set("X-App-ID", c.appID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("identity request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("identity system returned %d: %s", resp.StatusCode, string(payload))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode identity response: %w", err)
	}
	return nil
}
