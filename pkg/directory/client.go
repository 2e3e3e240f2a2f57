// Package directory is the HTTP client for the external identity service.
// The gateway uses it for two things: resolving session tokens to user ids
// (and revoking them), and reading/writing user profile metadata, which the
// metadata-backed credential store lives in.
package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var ErrSessionInvalid = errors.New("session is invalid or expired")

type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpc:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-api-key", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// ValidateSession resolves a session token to a user id. Returns
// ErrSessionInvalid when the directory rejects the token.
func (c *Client) ValidateSession(ctx context.Context, token string) (string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/v1/sessions/validate", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling directory: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", ErrSessionInvalid
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("directory returned status %d", resp.StatusCode)
	}
	var payload struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", err
	}
	if payload.UserID == "" {
		return "", fmt.Errorf("directory response missing user_id")
	}
	return payload.UserID, nil
}

// RevokeSession invalidates a session token.
func (c *Client) RevokeSession(ctx context.Context, token string) error {
	req, err := c.newRequest(ctx, http.MethodPost, "/v1/sessions/revoke", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("calling directory: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("directory returned status %d", resp.StatusCode)
	}
	return nil
}

// GetUserMetadata fetches one profile metadata attribute. A missing attribute
// (or unknown user) is (nil, nil), not an error.
func (c *Client) GetUserMetadata(ctx context.Context, userID, key string) (json.RawMessage, error) {
	path := fmt.Sprintf("/v1/users/%s/metadata/%s", url.PathEscape(userID), url.PathEscape(key))
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling directory: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("directory returned status %d", resp.StatusCode)
	}
	var payload struct {
		Value json.RawMessage `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	return payload.Value, nil
}

// SetUserMetadata writes one profile metadata attribute, replacing any
// previous value.
func (c *Client) SetUserMetadata(ctx context.Context, userID, key string, value json.RawMessage) error {
	body, err := json.Marshal(struct {
		Value json.RawMessage `json:"value"`
	}{Value: value})
	if err != nil {
		return err
	}
	path := fmt.Sprintf("/v1/users/%s/metadata/%s", url.PathEscape(userID), url.PathEscape(key))
	req, err := c.newRequest(ctx, http.MethodPut, path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("calling directory: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("directory returned status %d", resp.StatusCode)
	}
	return nil
}
