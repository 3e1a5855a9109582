package spotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Strob0t/requestline/internal/domain"
	"github.com/Strob0t/requestline/internal/domain/tenant"
)

var errNotConnected = fmt.Errorf("%w: provider account not connected", domain.ErrAdapter)

// accessToken returns a usable token for tenantID, refreshing it when it is
// about to expire or when force is set. Concurrent refreshes for one tenant
// share a single token request.
func (c *Client) accessToken(ctx context.Context, tenantID string, force bool) (string, error) {
	cred, err := c.creds.Load(ctx, tenantID)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && cred == nil) {
		return "", errNotConnected
	}
	if err != nil {
		return "", fmt.Errorf("load credential: %w", err)
	}
	if !force && !cred.Expired(c.now(), refreshSkew) {
		return cred.AccessToken, nil
	}
	if cred.RefreshToken == "" {
		return "", errNotConnected
	}

	v, err, _ := c.refreshes.Do(tenantID, func() (any, error) {
		return c.refresh(ctx, cred)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Client) refresh(ctx context.Context, cred *tenant.ProviderCredential) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", cred.RefreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.accountsBase+"/api/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.clientID, c.clientSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: token refresh: %w", domain.ErrAdapter, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: token refresh status %d", domain.ErrAdapter, resp.StatusCode)
	}

	var tok struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil || tok.AccessToken == "" {
		return "", fmt.Errorf("%w: malformed token response", domain.ErrAdapter)
	}

	updated := *cred
	updated.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		updated.RefreshToken = tok.RefreshToken
	}
	updated.ExpiresAt = c.now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	if err := c.creds.Save(ctx, &updated); err != nil {
		return "", fmt.Errorf("save refreshed credential: %w", err)
	}
	return updated.AccessToken, nil
}
