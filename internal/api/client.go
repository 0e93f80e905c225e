// Package api is the thin REST client for the storefront backend. Only
// the calls the coordination core needs are implemented; screen-level
// CRUD stays in the UI layer.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"storefront-core/internal/model"
)

// ErrTokenRejected marks an explicit backend rejection of the bearer
// token, as opposed to a connectivity failure. Only this error class is
// allowed to force a logout.
var ErrTokenRejected = errors.New("backend rejected auth token")

type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a client for the backend at baseURL. The injected
// http.Client decides timeout policy; the session initializer passes
// one without a timeout, matching the legacy client's background
// refresh behavior.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

type LoginResult struct {
	Token            string           `json:"token"`
	ExpiresInSeconds int              `json:"expiresIn"`
	Profile          model.UserRecord `json:"profile"`
}

func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	var result LoginResult
	err := c.postJSON(ctx, "/v1/auth/login", "", map[string]string{
		"email":    email,
		"password": password,
	}, &result)
	return result, err
}

// Profile fetches the canonical user profile for token.
func (c *Client) Profile(ctx context.Context, token string) (model.UserRecord, error) {
	var profile model.UserRecord
	err := c.getJSON(ctx, "/v1/profile", token, &profile)
	return profile, err
}

// RegisterPushToken tells the backend which FCM token this install
// receives pushes on.
func (c *Client) RegisterPushToken(ctx context.Context, token, fcmToken, deviceID string) error {
	return c.postJSON(ctx, "/v1/push-tokens", token, map[string]string{
		"token":    fcmToken,
		"deviceId": deviceID,
	}, nil)
}

// TicketComments lists the stored comments of a ticket, oldest first.
func (c *Client) TicketComments(ctx context.Context, token, ticketID string) ([]model.TicketComment, error) {
	var body struct {
		Comments []model.TicketComment `json:"comments"`
	}
	err := c.getJSON(ctx, "/v1/tickets/"+ticketID+"/comments", token, &body)
	return body.Comments, err
}

func (c *Client) getJSON(ctx context.Context, path, token string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, token, out)
}

func (c *Client) postJSON(ctx context.Context, path, token string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, token, out)
}

func (c *Client) do(req *http.Request, token string, out any) error {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		io.Copy(io.Discard, resp.Body)
		return ErrTokenRejected
	case resp.StatusCode >= 400:
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
