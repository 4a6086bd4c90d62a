package xpost

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// The service answers on two interchangeable public hostnames. Cookies are
// not shared between them automatically, so every record is written under
// each alias (host cookie and domain cookie variants).
var domainAliases = []string{
	"x.com",
	".x.com",
	"twitter.com",
	".twitter.com",
	"api.x.com",
	"api.twitter.com",
}

// canonicalDomain is the alias read back to validate the critical set.
const canonicalDomain = "x.com"

// criticalCookies are the session identifiers without which every
// authenticated call would silently fail authorization.
var criticalCookies = []string{"auth_token", "ct0", "twid"}

// Cookie is one browser cookie record as exported by an external login flow.
type Cookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain"`
	Path   string `json:"path"`
}

// ParseCookies decodes a JSON array of cookie records (the usual browser
// export format).
func ParseCookies(raw string) ([]Cookie, error) {
	var cookies []Cookie
	if err := json.Unmarshal([]byte(raw), &cookies); err != nil {
		return nil, fmt.Errorf("parse cookies: %w", err)
	}
	return cookies, nil
}

// CookieStore holds the session cookies replicated across all domain aliases
// of the service. Reads may run concurrently with the rare refresh write.
type CookieStore struct {
	mu  sync.RWMutex
	jar map[string]map[string]string // domain -> name -> value

	// order preserves first-seen cookie names so the assembled header is
	// stable across calls.
	order []string
}

// NewCookieStore replicates the given records across every domain alias and
// validates that the critical session cookies survived the round trip.
// Construction fails before any network call occurs.
func NewCookieStore(records []Cookie) (*CookieStore, error) {
	s := &CookieStore{jar: make(map[string]map[string]string, len(domainAliases))}
	for _, d := range domainAliases {
		s.jar[d] = make(map[string]string)
	}
	for _, c := range records {
		if c.Name == "" {
			continue
		}
		s.set(c.Name, c.Value)
	}

	// Read back from the canonical domain, exactly as a per-request header
	// assembly would.
	for _, name := range criticalCookies {
		if s.Get(name) == "" {
			return nil, &ConfigError{Reason: fmt.Sprintf("missing critical cookie %q", name)}
		}
	}
	return s, nil
}

// set writes a cookie under every alias.
func (s *CookieStore) set(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.jar[canonicalDomain][name]; !seen {
		s.order = append(s.order, name)
	}
	for _, d := range domainAliases {
		s.jar[d][name] = value
	}
}

// Get returns the named cookie's value on the canonical domain, or "".
func (s *CookieStore) Get(name string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.jar[canonicalDomain][name]
}

// CSRF returns the anti-forgery token cookie, or "" if absent.
func (s *CookieStore) CSRF() string {
	return s.Get("ct0")
}

// Header concatenates the cookies from all aliased domains into a single
// cookie header value, deduplicated by name in first-seen order.
func (s *CookieStore) Header() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var b strings.Builder
	seen := make(map[string]bool, len(s.order))
	for _, d := range domainAliases {
		for _, name := range s.order {
			v, ok := s.jar[d][name]
			if !ok || seen[name] {
				continue
			}
			seen[name] = true
			if b.Len() > 0 {
				b.WriteString("; ")
			}
			b.WriteString(name)
			b.WriteByte('=')
			b.WriteString(v)
		}
	}
	return b.String()
}

// cookieAttributes are set-cookie metadata keys, never cookie names.
var cookieAttributes = map[string]bool{
	"path":     true,
	"domain":   true,
	"expires":  true,
	"max-age":  true,
	"samesite": true,
	"secure":   true,
	"httponly": true,
	"priority": true,
}

// Refresh applies a set-cookie response header to the store. The service
// rotates ct0 mid-session; the executor feeds responses back through here so
// the next header assembly picks up the fresh token. The transport joins all
// set-cookie lines into one string, so every delimited part is scanned for a
// name=value pair rather than just the head of each line.
func (s *CookieStore) Refresh(setCookie string) {
	if setCookie == "" {
		return
	}
	parts := strings.FieldsFunc(setCookie, func(r rune) bool {
		return r == ';' || r == ',' || r == '\n'
	})
	for _, part := range parts {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || name == "" || value == "" {
			continue
		}
		if cookieAttributes[strings.ToLower(name)] {
			continue
		}
		s.set(name, value)
	}
}
