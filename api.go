package xpost

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dghubble/oauth1"
)

// apiStrategy wraps the official versioned API surface. It is selected when
// app-level OAuth credentials are configured instead of a session cookie.
// Reads ride the app-only bearer; writes are OAuth1-signed with the user
// token pair.
type apiStrategy struct {
	reads        *executor // app bearer
	writes       *executor // oauth1-signed wire
	pollInterval time.Duration

	mu     sync.Mutex
	selfID string
}

func newAPIStrategy(creds Credentials, w wire, pollInterval time.Duration) (*apiStrategy, error) {
	if creds.AccessToken == "" || creds.AccessSecret == "" {
		return nil, &ConfigError{Reason: "access token and secret are required for the API strategy"}
	}
	app, err := newAppAuth(creds.AppKey, creds.AppSecret, w)
	if err != nil {
		return nil, err
	}

	oauthCfg := oauth1.NewConfig(creds.AppKey, creds.AppSecret)
	token := oauth1.NewToken(creds.AccessToken, creds.AccessSecret)
	signed := oauthCfg.Client(oauth1.NoContext, token)

	return &apiStrategy{
		reads:        &executor{wire: w, auth: app},
		writes:       &executor{wire: &httpWire{client: signed}, auth: noAuth{}},
		pollInterval: pollInterval,
	}, nil
}

// noAuth is the authorizer for transports that inject their own
// Authorization header (OAuth1 signing happens in the round tripper).
type noAuth struct{}

func (noAuth) Headers() (map[string]string, error) {
	return map[string]string{
		"content-type": "application/json",
		"user-agent":   defaultUserAgent,
		"accept":       "*/*",
	}, nil
}

func (noAuth) IsAuthenticated(context.Context) bool { return true }

// httpWire adapts a net/http client to the wire interface. Signing
// transports wrap http.RoundTripper, so the stealth client cannot carry
// them.
type httpWire struct {
	client *http.Client
}

func (h *httpWire) DoWithHeaderOrder(method, rawURL string, headers map[string]string, body io.Reader, _ []string) ([]byte, map[string]string, int, error) {
	req, err := http.NewRequest(method, rawURL, body)
	if err != nil {
		return nil, nil, 0, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, nil, 0, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, 0, err
	}
	// The executor looks headers up lowercased, matching the stealth client.
	lower := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		lower[strings.ToLower(k)] = resp.Header.Get(k)
	}
	return respBody, lower, resp.StatusCode, nil
}

// --- v2 wire shapes ---

type v2Tweet struct {
	ID             string `json:"id"`
	Text           string `json:"text"`
	AuthorID       string `json:"author_id"`
	ConversationID string `json:"conversation_id"`
	CreatedAt      string `json:"created_at"`
	PublicMetrics  struct {
		LikeCount       int `json:"like_count"`
		RetweetCount    int `json:"retweet_count"`
		ReplyCount      int `json:"reply_count"`
		BookmarkCount   int `json:"bookmark_count"`
		ImpressionCount int `json:"impression_count"`
	} `json:"public_metrics"`
	PossiblySensitive bool `json:"possibly_sensitive"`
	ReferencedTweets  []struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	} `json:"referenced_tweets"`
}

type v2User struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Username        string `json:"username"`
	Description     string `json:"description"`
	Verified        bool   `json:"verified"`
	VerifiedType    string `json:"verified_type"`
	Location        string `json:"location"`
	URL             string `json:"url"`
	CreatedAt       string `json:"created_at"`
	ProfileImageURL string `json:"profile_image_url"`
	PublicMetrics   struct {
		FollowersCount int `json:"followers_count"`
		FollowingCount int `json:"following_count"`
		TweetCount     int `json:"tweet_count"`
	} `json:"public_metrics"`
}

func (t *v2Tweet) normalize() *Post {
	var createdAt time.Time
	if t.CreatedAt != "" {
		if ts, err := time.Parse(time.RFC3339, t.CreatedAt); err == nil {
			createdAt = ts
		}
	}
	p := &Post{
		ID:             t.ID,
		AuthorID:       t.AuthorID,
		Text:           t.Text,
		CreatedAt:      createdAt,
		ConversationID: t.ConversationID,
		Likes:          t.PublicMetrics.LikeCount,
		Reposts:        t.PublicMetrics.RetweetCount,
		Replies:        t.PublicMetrics.ReplyCount,
		Views:          t.PublicMetrics.ImpressionCount,
		BookmarkCount:  t.PublicMetrics.BookmarkCount,
		Sensitive:      t.PossiblySensitive,
	}
	for _, ref := range t.ReferencedTweets {
		switch ref.Type {
		case "quoted":
			p.IsQuoted = true
		case "replied_to":
			p.IsReply = true
			p.InReplyToID = ref.ID
		case "retweeted":
			p.IsRepost = true
		}
	}
	return p
}

func (u *v2User) normalize() *Profile {
	var joinedAt time.Time
	if u.CreatedAt != "" {
		if ts, err := time.Parse(time.RFC3339, u.CreatedAt); err == nil {
			joinedAt = ts
		}
	}
	return &Profile{
		ID:             u.ID,
		Username:       u.Username,
		DisplayName:    u.Name,
		Bio:            u.Description,
		Verified:       u.Verified,
		BlueVerified:   u.VerifiedType == "blue",
		FollowersCount: u.PublicMetrics.FollowersCount,
		FollowingCount: u.PublicMetrics.FollowingCount,
		PostCount:      u.PublicMetrics.TweetCount,
		AvatarURL:      u.ProfileImageURL,
		Location:       u.Location,
		Website:        u.URL,
		JoinedAt:       joinedAt,
	}
}

const tweetFields = "created_at,author_id,conversation_id,public_metrics,possibly_sensitive,referenced_tweets"
const userFields = "created_at,description,location,profile_image_url,public_metrics,url,verified,verified_type"

// --- strategy ops ---

func (a *apiStrategy) CreatePost(ctx context.Context, req postRequest) (*Post, error) {
	payload := map[string]any{"text": req.Text}
	if req.ReplyTo != "" {
		payload["reply"] = map[string]any{"in_reply_to_tweet_id": req.ReplyTo}
	}
	if req.QuoteID != "" {
		payload["quote_tweet_id"] = req.QuoteID
	}
	if req.Poll != nil {
		payload["poll"] = map[string]any{
			"options":          req.Poll.Labels,
			"duration_minutes": int(req.Poll.Duration.Minutes()),
		}
	}
	if len(req.Media) > 0 {
		// The official surface shares the media endpoint; uploads are
		// signed like every other write.
		up := &uploader{exec: a.writes, pollInterval: a.pollInterval}
		ids := make([]string, 0, len(req.Media))
		for _, m := range req.Media {
			id, err := up.Upload(ctx, m)
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
		payload["media"] = map[string]any{"media_ids": ids}
	}

	body, err := a.writes.do(ctx, http.MethodPost, apiV2Base+"/tweets", nil, payload, nil)
	if err != nil {
		return nil, fmt.Errorf("create tweet: %w", err)
	}
	var resp struct {
		Data v2Tweet `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("create tweet: %w", err)
	}
	if resp.Data.ID == "" {
		return nil, &NotFoundError{What: "created tweet in response"}
	}
	return resp.Data.normalize(), nil
}

func (a *apiStrategy) Post(ctx context.Context, id string) (*Post, error) {
	params := url.Values{"tweet.fields": {tweetFields}}
	body, err := a.reads.do(ctx, http.MethodGet, apiV2Base+"/tweets/"+id, params, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("tweet %s: %w", id, err)
	}
	var resp struct {
		Data *v2Tweet `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("tweet %s: %w", id, err)
	}
	if resp.Data == nil {
		return nil, &NotFoundError{What: "tweet " + id}
	}
	return resp.Data.normalize(), nil
}

func (a *apiStrategy) Like(ctx context.Context, id string) error {
	me, err := a.self(ctx)
	if err != nil {
		return err
	}
	_, err = a.writes.do(ctx, http.MethodPost, apiV2Base+"/users/"+me+"/likes", nil,
		map[string]string{"tweet_id": id}, nil)
	if err != nil {
		return fmt.Errorf("like %s: %w", id, err)
	}
	return nil
}

func (a *apiStrategy) Repost(ctx context.Context, id string) error {
	me, err := a.self(ctx)
	if err != nil {
		return err
	}
	_, err = a.writes.do(ctx, http.MethodPost, apiV2Base+"/users/"+me+"/retweets", nil,
		map[string]string{"tweet_id": id}, nil)
	if err != nil {
		return fmt.Errorf("retweet %s: %w", id, err)
	}
	return nil
}

func (a *apiStrategy) Follow(ctx context.Context, username string) error {
	profile, err := a.Profile(ctx, username)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", username, err)
	}
	me, err := a.self(ctx)
	if err != nil {
		return err
	}
	_, err = a.writes.do(ctx, http.MethodPost, apiV2Base+"/users/"+me+"/following", nil,
		map[string]string{"target_user_id": profile.ID}, nil)
	if err != nil {
		return fmt.Errorf("follow %s: %w", username, err)
	}
	return nil
}

func (a *apiStrategy) Search(ctx context.Context, query string, opts SearchOptions) (*SearchResult, error) {
	count := opts.MaxResults
	if count <= 0 {
		count = 20
	}
	params := url.Values{
		"query":        {query},
		"max_results":  {strconv.Itoa(count)},
		"tweet.fields": {tweetFields},
	}
	if opts.Cursor != "" {
		params.Set("next_token", opts.Cursor)
	}
	body, err := a.reads.do(ctx, http.MethodGet, apiV2Base+"/tweets/search/recent", params, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	var resp struct {
		Data []v2Tweet `json:"data"`
		Meta struct {
			NextToken string `json:"next_token"`
		} `json:"meta"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	result := &SearchResult{NextCursor: resp.Meta.NextToken}
	for i := range resp.Data {
		result.Posts = append(result.Posts, resp.Data[i].normalize())
	}
	return result, nil
}

func (a *apiStrategy) Profile(ctx context.Context, username string) (*Profile, error) {
	params := url.Values{"user.fields": {userFields}}
	body, err := a.reads.do(ctx, http.MethodGet, apiV2Base+"/users/by/username/"+username, params, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", username, err)
	}
	var resp struct {
		Data *v2User `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("user %s: %w", username, err)
	}
	if resp.Data == nil {
		return nil, &NotFoundError{What: "user " + username}
	}
	return resp.Data.normalize(), nil
}

// self resolves and caches the authenticated user's id, which the
// user-scoped write endpoints require in their path.
func (a *apiStrategy) self(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.selfID != "" {
		return a.selfID, nil
	}
	body, err := a.writes.do(ctx, http.MethodGet, apiV2Base+"/users/me", nil, nil, nil)
	if err != nil {
		return "", fmt.Errorf("users/me: %w", err)
	}
	var resp struct {
		Data v2User `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("users/me: %w", err)
	}
	if resp.Data.ID == "" {
		return "", &NotFoundError{What: "authenticated user"}
	}
	a.selfID = resp.Data.ID
	return a.selfID, nil
}
