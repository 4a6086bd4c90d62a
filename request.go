package xpost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// wire is the transport surface the executor needs. Satisfied by
// stealth.BrowserClient; tests substitute a double.
type wire interface {
	DoWithHeaderOrder(method, url string, headers map[string]string, body io.Reader, order []string) ([]byte, map[string]string, int, error)
}

// executor is the single authenticated call/response path every operation
// reuses: header injection, body encoding, decode, typed error translation.
// No operation has its own ad hoc error handling, and no retries happen here.
type executor struct {
	wire  wire
	auth  authorizer
	store *CookieStore // nil for the app-credential variant
}

// do executes one authenticated request. For GET, params are encoded into
// the query string (the service rejects bodies on GET); for other methods
// jsonBody is serialized as JSON when non-nil.
func (e *executor) do(ctx context.Context, method, rawURL string, params url.Values, jsonBody any, extra map[string]string) ([]byte, error) {
	if method == http.MethodGet && len(params) > 0 {
		sep := "?"
		if strings.Contains(rawURL, "?") {
			sep = "&"
		}
		rawURL += sep + params.Encode()
	}

	var body io.Reader
	if method != http.MethodGet && jsonBody != nil {
		payload, err := json.Marshal(jsonBody)
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
		body = bytes.NewReader(payload)
	}
	return e.roundTrip(ctx, method, rawURL, "", body, extra)
}

// doForm executes a form-encoded POST. The legacy (pre-GraphQL) endpoints
// reject JSON bodies; their transport conventions are preserved exactly.
func (e *executor) doForm(ctx context.Context, rawURL string, form url.Values, extra map[string]string) ([]byte, error) {
	return e.roundTrip(ctx, http.MethodPost, rawURL,
		"application/x-www-form-urlencoded", strings.NewReader(form.Encode()), extra)
}

// doRaw executes a request with a prebuilt body (multipart upload chunks).
func (e *executor) doRaw(ctx context.Context, method, rawURL, contentType string, body io.Reader, extra map[string]string) ([]byte, error) {
	return e.roundTrip(ctx, method, rawURL, contentType, body, extra)
}

func (e *executor) roundTrip(ctx context.Context, method, rawURL, contentType string, body io.Reader, extra map[string]string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Fresh headers on every call; the CSRF token can rotate between calls.
	headers, err := e.auth.Headers()
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		headers["content-type"] = contentType
	}
	for k, v := range extra {
		headers[k] = v
	}

	respBody, respHeaders, status, err := e.wire.DoWithHeaderOrder(method, rawURL, headers, body, xHeaderOrder)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, rawURL, err)
	}

	if e.store != nil {
		e.store.Refresh(respHeaders["set-cookie"])
	}

	if status < 200 || status >= 300 {
		// Some endpoints return plain diagnostic text; firstErrorMessage
		// tolerates non-JSON payloads and the raw body rides along either
		// way.
		return nil, &TransportError{Status: status, Message: firstErrorMessage(respBody), Payload: respBody}
	}
	return respBody, nil
}
