package xpost

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
)

// authorizer produces per-request authentication headers. Implementations
// own all credential material; nothing above this layer sees it.
type authorizer interface {
	// Headers returns a fresh header set for one request. It fails only
	// when required session identifiers are absent.
	Headers() (map[string]string, error)

	// IsAuthenticated is a best-effort, non-throwing probe of whether the
	// credentials are currently accepted by the service.
	IsAuthenticated(ctx context.Context) bool
}

// cookieAuth authenticates with browser session cookies. Headers are
// recomputed per call since the CSRF token can rotate mid-session.
type cookieAuth struct {
	store *CookieStore
	wire  wire
}

func (a *cookieAuth) Headers() (map[string]string, error) {
	csrf := a.store.CSRF()
	if csrf == "" {
		return nil, &ConfigError{Reason: "session lost ct0 cookie"}
	}
	return sessionHeaders(a.store.Header(), csrf), nil
}

func (a *cookieAuth) IsAuthenticated(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	h, err := a.Headers()
	if err != nil {
		return false
	}
	_, _, status, err := a.wire.DoWithHeaderOrder("GET", settingsEndpoint, h, nil, xHeaderOrder)
	if err != nil {
		slog.Debug("auth probe failed", slog.Any("error", err))
		return false
	}
	return status == 200
}

// appAuth authenticates with official app credentials. The app-only bearer
// token is obtained lazily and reused for the process lifetime; these tokens
// are long-lived in practice, so there is no refresh logic.
type appAuth struct {
	key    string
	secret string
	wire   wire

	mu     sync.Mutex
	bearer string
}

func newAppAuth(key, secret string, w wire) (*appAuth, error) {
	if key == "" || secret == "" {
		return nil, &ConfigError{Reason: "app key and secret are both required"}
	}
	return &appAuth{key: key, secret: secret, wire: w}, nil
}

func (a *appAuth) Headers() (map[string]string, error) {
	bearer, err := a.token()
	if err != nil {
		return nil, err
	}
	return appHeaders(bearer), nil
}

func (a *appAuth) IsAuthenticated(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	_, err := a.token()
	return err == nil
}

// token returns the cached app-only bearer, fetching it on first use.
func (a *appAuth) token() (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.bearer != "" {
		return a.bearer, nil
	}

	basic := base64.StdEncoding.EncodeToString([]byte(url.QueryEscape(a.key) + ":" + url.QueryEscape(a.secret)))
	headers := map[string]string{
		"authorization": "Basic " + basic,
		"content-type":  "application/x-www-form-urlencoded;charset=UTF-8",
		"user-agent":    defaultUserAgent,
	}
	body, _, status, err := a.wire.DoWithHeaderOrder("POST", oauthTokenURL, headers,
		strings.NewReader("grant_type=client_credentials"), xHeaderOrder)
	if err != nil {
		return "", fmt.Errorf("app token: %w", err)
	}
	if status != 200 {
		return "", &TransportError{Status: status, Message: firstErrorMessage(body), Payload: body}
	}

	var resp struct {
		TokenType   string `json:"token_type"`
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("app token: %w", err)
	}
	if resp.AccessToken == "" {
		return "", fmt.Errorf("app token: empty access_token in response")
	}
	a.bearer = resp.AccessToken
	slog.Debug("app bearer acquired")
	return a.bearer, nil
}
