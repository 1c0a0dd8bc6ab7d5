package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	apperrors "github.com/Duong-Anh-Duc/KH/pkg/errors"
	"github.com/Duong-Anh-Duc/KH/pkg/httpclient"
)

const (
	accessTokenHeader  = "access-token"
	refreshTokenHeader = "refresh-token"
)

// ErrReauthRequired means the session is gone: the access token was rejected
// and a refresh did not recover it. Stored tokens have been cleared and the
// user must log in again.
var ErrReauthRequired = errors.New("re-authentication required")

var errNoRefreshToken = errors.New("no refresh token")

// Config configures an API client.
type Config struct {
	// BaseURL is the API root, e.g. "https://api.example.com/api/v1".
	BaseURL string
	// Service names the API in errors, logs and breaker metrics.
	Service string
	HTTP    httpclient.Config
	Breaker httpclient.CircuitBreakerConfig
}

// DefaultConfig returns client defaults for the given API root.
func DefaultConfig(baseURL string) Config {
	httpCfg := httpclient.DefaultConfig()
	httpCfg.Traced = false
	return Config{
		BaseURL: baseURL,
		Service: "elearning-api",
		HTTP:    httpCfg,
		Breaker: httpclient.DefaultCircuitBreakerConfig("elearning-api"),
	}
}

// API is a REST client that refreshes an expired access token once and
// retries the failed request before giving up.
type API struct {
	base    string
	service string
	http    *httpclient.CircuitBreakerClient
	tokens  TokenStore
	logger  *slog.Logger

	// refreshMu serializes refreshes so concurrent 401s spend one refresh
	// token.
	refreshMu sync.Mutex
}

// NewAPI creates an API client that reads and writes tokens through tokens.
func NewAPI(cfg Config, tokens TokenStore, logger *slog.Logger) *API {
	return &API{
		base:    strings.TrimRight(cfg.BaseURL, "/"),
		service: cfg.Service,
		http:    httpclient.NewCircuitBreakerClient(httpclient.New(cfg.HTTP), cfg.Breaker, logger),
		tokens:  tokens,
		logger:  logger,
	}
}

// Tokens returns the store the client reads credentials from.
func (a *API) Tokens() TokenStore { return a.tokens }

// Login authenticates and stores the issued token pair.
func (a *API) Login(ctx context.Context, email, password string) (*Session, error) {
	var out sessionResponse
	body := map[string]string{"email": email, "password": password}
	if err := a.public(ctx, http.MethodPost, "/login", body, &out); err != nil {
		return nil, err
	}
	a.tokens.Store(out.TokenPair)
	return out.User, nil
}

// Logout ends the server session and clears local tokens. Tokens are cleared
// even when the server call fails.
func (a *API) Logout(ctx context.Context) error {
	defer a.tokens.Clear()
	return a.authed(ctx, http.MethodPost, "/logout", nil, nil)
}

func (a *API) Me(ctx context.Context) (*Session, error) {
	var s Session
	if err := a.authed(ctx, http.MethodGet, "/me", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Notifications fetches the caller's full notification history, newest first.
func (a *API) Notifications(ctx context.Context) ([]Notification, error) {
	var list []Notification
	if err := a.authed(ctx, http.MethodGet, "/get-notifications", nil, &list); err != nil {
		return nil, err
	}
	if list == nil {
		list = []Notification{}
	}
	return list, nil
}

// MarkRead marks one of the caller's own notifications as read.
func (a *API) MarkRead(ctx context.Context, id string) (*Notification, error) {
	var n Notification
	if err := a.authed(ctx, http.MethodPut, "/update-notification/"+url.PathEscape(id), nil, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

func (a *API) UpdateInfo(ctx context.Context, name string) (*Session, error) {
	var s Session
	if err := a.authed(ctx, http.MethodPut, "/update-user-info", map[string]string{"name": name}, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (a *API) UpdatePassword(ctx context.Context, oldPassword, newPassword string) (*Session, error) {
	var s Session
	body := map[string]string{"oldPassword": oldPassword, "newPassword": newPassword}
	if err := a.authed(ctx, http.MethodPut, "/update-user-password", body, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Refresh exchanges the stored refresh token for a new pair. A rejected
// refresh clears the tokens and returns ErrReauthRequired.
func (a *API) Refresh(ctx context.Context) error {
	return a.refreshOrReauth(ctx, a.tokens.Load().AccessToken)
}

// public calls an endpoint that needs no credentials.
func (a *API) public(ctx context.Context, method, path string, body, out any) error {
	resp, _, err := a.send(ctx, method, path, body, false)
	if err != nil {
		return err
	}
	return a.decode(resp, out)
}

// authed calls a protected endpoint. A 401 triggers exactly one refresh and
// one retry.
func (a *API) authed(ctx context.Context, method, path string, body, out any) error {
	resp, used, err := a.send(ctx, method, path, body, true)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return a.decode(resp, out)
	}
	cause := httpclient.ParseResponseError(resp, a.service)
	a.logger.DebugContext(ctx, "access token rejected, refreshing",
		slog.String("path", path),
		slog.String("error", cause.Error()),
	)

	if err := a.refreshOrReauth(ctx, used); err != nil {
		return err
	}

	resp, _, err = a.send(ctx, method, path, body, true)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return a.reauth(httpclient.ParseResponseError(resp, a.service))
	}
	return a.decode(resp, out)
}

// refresh obtains a new pair unless another caller already replaced the
// access token that was rejected.
func (a *API) refresh(ctx context.Context, rejected string) error {
	a.refreshMu.Lock()
	defer a.refreshMu.Unlock()

	current := a.tokens.Load()
	if current.AccessToken != "" && current.AccessToken != rejected {
		return nil
	}
	if current.RefreshToken == "" {
		return errNoRefreshToken
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.base+"/refresh-token", http.NoBody)
	if err != nil {
		return fmt.Errorf("create refresh request: %w", err)
	}
	req.Header.Set(refreshTokenHeader, current.RefreshToken)

	resp, err := a.http.Do(ctx, req)
	if err != nil {
		return err
	}
	var out sessionResponse
	if err := a.decode(resp, &out); err != nil {
		return err
	}
	a.tokens.Store(out.TokenPair)
	return nil
}

// refreshOrReauth refreshes and turns a rejected refresh into
// ErrReauthRequired. Transport and upstream failures are returned as they
// are and leave the tokens in place.
func (a *API) refreshOrReauth(ctx context.Context, rejected string) error {
	err := a.refresh(ctx, rejected)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errNoRefreshToken), apperrors.IsAuthFailure(err):
		return a.reauth(err)
	default:
		return fmt.Errorf("refresh token: %w", err)
	}
}

func (a *API) reauth(cause error) error {
	a.tokens.Clear()
	a.logger.Warn("session could not be refreshed, re-authentication required",
		slog.String("error", cause.Error()),
	)
	return fmt.Errorf("%w: %w", ErrReauthRequired, cause)
}

// send issues one request. It returns the access token it presented so a
// later refresh can tell whether the rejected token is still current.
func (a *API) send(ctx context.Context, method, path string, body any, withAuth bool) (*http.Response, string, error) {
	var rdr io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, "", fmt.Errorf("encode request body: %w", err)
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.base+path, rdr)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	var access string
	if withAuth {
		pair := a.tokens.Load()
		access = pair.AccessToken
		req.Header.Set(accessTokenHeader, pair.AccessToken)
		req.Header.Set(refreshTokenHeader, pair.RefreshToken)
	}

	resp, err := a.http.Do(ctx, req)
	if err != nil {
		return nil, access, err
	}
	return resp, access, nil
}

// decode unwraps the {"data": ...} envelope of a 2xx response into out, or
// translates an error response. The body is always closed.
func (a *API) decode(resp *http.Response, out any) error {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return httpclient.ParseResponseError(resp, a.service)
	}
	defer func() { _ = resp.Body.Close() }()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	env := envelope{Data: out}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode %s response: %w", a.service, err)
	}
	return nil
}
