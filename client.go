package xpost

import (
	"context"
	"fmt"

	stealth "github.com/anatolykoptev/go-stealth"
)

// strategy is the capability set behind the client facade. Exactly one
// concrete strategy is bound at construction; no call site branches on it.
type strategy interface {
	CreatePost(ctx context.Context, req postRequest) (*Post, error)
	Post(ctx context.Context, id string) (*Post, error)
	Like(ctx context.Context, id string) error
	Repost(ctx context.Context, id string) error
	Follow(ctx context.Context, username string) error
	Search(ctx context.Context, query string, opts SearchOptions) (*SearchResult, error)
	Profile(ctx context.Context, username string) (*Profile, error)
}

// Client is the public protocol client. All operations are I/O-bound
// network calls; unrelated operations may run concurrently.
type Client struct {
	strategy strategy
	auth     authorizer
}

// NewClient creates a fully-wired client. Session cookies select the
// undocumented GraphQL surface; app credentials select the official API.
// Construction fails when the chosen credential set is incomplete, before
// any network call.
func NewClient(cfg ClientConfig) (*Client, error) {
	cfg.defaults()
	if len(cfg.Credentials.Cookies) == 0 && cfg.Credentials.AppKey == "" {
		return nil, &ConfigError{Reason: "no credentials: provide session cookies or app keys"}
	}

	opts := []stealth.ClientOption{
		stealth.WithHeaderOrder(xHeaderOrder),
	}
	if cfg.Proxy != "" {
		opts = append(opts, stealth.WithProxy(cfg.Proxy))
	}
	bc, err := stealth.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("stealth client: %w", err)
	}

	switch {
	case len(cfg.Credentials.Cookies) > 0:
		store, err := NewCookieStore(cfg.Credentials.Cookies)
		if err != nil {
			return nil, err
		}
		auth := &cookieAuth{store: store, wire: bc}
		exec := &executor{wire: bc, auth: auth, store: store}
		c := &Client{auth: auth}
		c.strategy = &graphqlStrategy{
			exec:     exec,
			uploader: &uploader{exec: exec, pollInterval: cfg.UploadPollInterval},
		}
		return c, nil

	default:
		api, err := newAPIStrategy(cfg.Credentials, bc, cfg.UploadPollInterval)
		if err != nil {
			return nil, err
		}
		return &Client{strategy: api, auth: api.reads.auth}, nil
	}
}

// IsAuthenticated is a best-effort probe of whether the configured
// credentials are currently accepted. Never returns an error.
func (c *Client) IsAuthenticated(ctx context.Context) bool {
	return c.auth.IsAuthenticated(ctx)
}

// SendPost creates a new post. Attachments upload first (concurrently with
// each other); text over the short-form limit routes to the long-form path.
func (c *Client) SendPost(ctx context.Context, text string, opts *PostOptions) (*Post, error) {
	req := postRequest{Text: text}
	if opts != nil {
		req.ReplyTo = opts.ReplyToID
		req.Media = opts.Media
		req.Poll = opts.Poll
	}
	return c.strategy.CreatePost(ctx, req)
}

// CreateQuote creates a post quoting another.
func (c *Client) CreateQuote(ctx context.Context, text, quotedID string, opts *PostOptions) (*Post, error) {
	req := postRequest{Text: text, QuoteID: quotedID}
	if opts != nil {
		req.ReplyTo = opts.ReplyToID
		req.Media = opts.Media
		req.Poll = opts.Poll
	}
	return c.strategy.CreatePost(ctx, req)
}

// GetPost fetches one post by id.
func (c *Client) GetPost(ctx context.Context, id string) (*Post, error) {
	return c.strategy.Post(ctx, id)
}

// LikePost likes a post by id.
func (c *Client) LikePost(ctx context.Context, id string) error {
	return c.strategy.Like(ctx, id)
}

// Repost reposts a post by id.
func (c *Client) Repost(ctx context.Context, id string) error {
	return c.strategy.Repost(ctx, id)
}

// FollowAccount follows a user by username.
func (c *Client) FollowAccount(ctx context.Context, username string) error {
	return c.strategy.Follow(ctx, username)
}

// SearchPosts runs one page of a search; pass the returned cursor back in
// opts to page forward.
func (c *Client) SearchPosts(ctx context.Context, query string, opts SearchOptions) (*SearchResult, error) {
	return c.strategy.Search(ctx, query, opts)
}

// GetProfile fetches a profile by username.
func (c *Client) GetProfile(ctx context.Context, username string) (*Profile, error) {
	return c.strategy.Profile(ctx, username)
}
