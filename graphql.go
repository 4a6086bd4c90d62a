package xpost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
)

// standardPostLimit is the short-form length boundary. Posts above it route
// to the long-form creation path.
const standardPostLimit = 280

// graphqlStrategy drives the undocumented GraphQL surface with session
// cookies. It implements strategy.
type graphqlStrategy struct {
	exec     *executor
	uploader *uploader
}

// postRequest is the internal creation input shared by SendPost and Quote.
type postRequest struct {
	Text    string
	ReplyTo string
	QuoteID string
	Media   []MediaAttachment
	Poll    *PollRequest
}

func (g *graphqlStrategy) CreatePost(ctx context.Context, req postRequest) (*Post, error) {
	mediaIDs, err := g.uploadAll(ctx, req.Media)
	if err != nil {
		return nil, err
	}

	variables := map[string]any{
		"tweet_text":   req.Text,
		"dark_request": false,
		"media": map[string]any{
			"media_entities":     mediaEntities(mediaIDs),
			"possibly_sensitive": false,
		},
		"semantic_annotation_ids": []any{},
	}
	if req.ReplyTo != "" {
		variables["reply"] = map[string]any{
			"in_reply_to_tweet_id":   req.ReplyTo,
			"exclude_reply_user_ids": []any{},
		}
	}
	if req.QuoteID != "" {
		variables["attachment_url"] = "https://x.com/i/web/status/" + req.QuoteID
	}
	if req.Poll != nil {
		cardURI, err := g.createPollCard(ctx, req.Poll)
		if err != nil {
			return nil, err
		}
		variables["card_uri"] = cardURI
	}

	// Exactly one of the two creation paths is used per call.
	op := Endpoints["CreateTweet"]
	if utf8.RuneCountInString(req.Text) > standardPostLimit {
		op = Endpoints["CreateNoteTweet"]
	}

	body, err := g.exec.do(ctx, http.MethodPost, op.URL(), nil, map[string]any{
		"variables": variables,
		"features":  op.Features,
		"queryId":   op.ID,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op.Name, err)
	}
	return ParsePost(body)
}

// uploadAll pushes every attachment through the uploader, concurrently with
// each other. Order of the returned ids matches the input order. Each single
// upload stays internally sequential.
func (g *graphqlStrategy) uploadAll(ctx context.Context, media []MediaAttachment) ([]string, error) {
	if len(media) == 0 {
		return nil, nil
	}
	ids := make([]string, len(media))
	eg, ctx := errgroup.WithContext(ctx)
	for i, m := range media {
		eg.Go(func() error {
			id, err := g.uploader.Upload(ctx, m)
			if err != nil {
				return err
			}
			ids[i] = id
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return ids, nil
}

func mediaEntities(ids []string) []map[string]any {
	entities := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		entities = append(entities, map[string]any{
			"media_id":     id,
			"tagged_users": []any{},
		})
	}
	return entities
}

// createPollCard registers a poll card with the legacy cards service and
// returns its opaque reference for injection into the creation variables.
func (g *graphqlStrategy) createPollCard(ctx context.Context, poll *PollRequest) (string, error) {
	if len(poll.Labels) < 2 || len(poll.Labels) > 4 {
		return "", &ConfigError{Reason: fmt.Sprintf("poll needs 2-4 options, got %d", len(poll.Labels))}
	}

	cardData := map[string]any{
		"twitter:api:api:endpoint":      "1",
		"twitter:card":                  fmt.Sprintf("poll%dchoice_text_only", len(poll.Labels)),
		"twitter:long:duration_minutes": int(poll.Duration.Minutes()),
	}
	for i, label := range poll.Labels {
		cardData[fmt.Sprintf("twitter:string:choice%d_label", i+1)] = label
	}
	raw, err := json.Marshal(cardData)
	if err != nil {
		return "", err
	}

	body, err := g.exec.doForm(ctx, cardCreateEndpoint, url.Values{"card_data": {string(raw)}}, nil)
	if err != nil {
		return "", fmt.Errorf("card create: %w", err)
	}
	var resp struct {
		CardURI string `json:"card_uri"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("card create: %w", err)
	}
	if resp.CardURI == "" {
		return "", fmt.Errorf("card create: empty card_uri: %s", truncateBytes(body, 200))
	}
	return resp.CardURI, nil
}

func (g *graphqlStrategy) Post(ctx context.Context, id string) (*Post, error) {
	op := Endpoints["TweetResultByRestId"]
	variables := map[string]any{
		"tweetId":                id,
		"withCommunity":          false,
		"includePromotedContent": false,
		"withVoice":              false,
	}
	body, err := g.exec.do(ctx, http.MethodGet, op.URL(), graphqlParams(variables, op.Features), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op.Name, err)
	}
	p, err := ParsePost(body)
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return g.postDetail(ctx, id)
	}
	return p, err
}

// postDetail fetches a tweet through the conversation view. Some
// limited-visibility items are absent from the rest-id lookup but still
// surface as a timeline entry here.
func (g *graphqlStrategy) postDetail(ctx context.Context, id string) (*Post, error) {
	op := Endpoints["TweetDetail"]
	variables := map[string]any{
		"focalTweetId":           id,
		"with_replies":           false,
		"includePromotedContent": false,
	}
	body, err := g.exec.do(ctx, http.MethodGet, op.URL(), graphqlParams(variables, op.Features), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op.Name, err)
	}
	return ParsePost(body)
}

func (g *graphqlStrategy) Like(ctx context.Context, id string) error {
	return g.mutate(ctx, "FavoriteTweet", id)
}

func (g *graphqlStrategy) Repost(ctx context.Context, id string) error {
	return g.mutate(ctx, "CreateRetweet", id)
}

// mutate performs a simple id-keyed mutation. The full feature set ships
// even here; the service validates its shape on every operation. "already
// done" responses surface through the regular error path.
func (g *graphqlStrategy) mutate(ctx context.Context, operation, id string) error {
	op := Endpoints[operation]
	_, err := g.exec.do(ctx, http.MethodPost, op.URL(), nil, map[string]any{
		"variables": map[string]any{"tweet_id": id},
		"features":  op.Features,
		"queryId":   op.ID,
	}, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op.Name, err)
	}
	return nil
}

// Follow resolves the username to an id (the follow endpoint accepts only
// ids) and POSTs to the legacy endpoint with its pre-GraphQL transport
// conventions: form encoding and an explicit CSRF header.
func (g *graphqlStrategy) Follow(ctx context.Context, username string) error {
	profile, err := g.Profile(ctx, username)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", username, err)
	}

	form := url.Values{
		"user_id":                           {profile.ID},
		"include_profile_interstitial_type": {"1"},
		"skip_status":                       {"true"},
	}
	extra := map[string]string{
		"referer": "https://x.com/" + username,
	}
	if _, err := g.exec.doForm(ctx, followEndpoint, form, extra); err != nil {
		return fmt.Errorf("follow %s: %w", username, err)
	}
	slog.Debug("followed", slog.String("user", username))
	return nil
}

func (g *graphqlStrategy) Search(ctx context.Context, query string, opts SearchOptions) (*SearchResult, error) {
	op := Endpoints["SearchTimeline"]
	count := opts.MaxResults
	if count <= 0 {
		count = 20
	}
	mode := opts.Mode
	if mode == "" {
		mode = SearchTop
	}
	variables := map[string]any{
		"rawQuery":    query,
		"count":       count,
		"querySource": "typed_query",
		"product":     string(mode),
	}
	if opts.Cursor != "" {
		variables["cursor"] = opts.Cursor
	}
	body, err := g.exec.do(ctx, http.MethodGet, op.URL(), graphqlParams(variables, op.Features), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op.Name, err)
	}
	return ParseSearchPage(body)
}

func (g *graphqlStrategy) Profile(ctx context.Context, username string) (*Profile, error) {
	op := Endpoints["UserByScreenName"]
	variables := map[string]any{
		"screen_name":              username,
		"withSafetyModeUserFields": true,
	}
	body, err := g.exec.do(ctx, http.MethodGet, op.URL(), graphqlParams(variables, op.Features), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op.Name, err)
	}
	return ParseProfile(body)
}

// graphqlParams encodes variables and features for a GET-shaped GraphQL call.
func graphqlParams(variables, features map[string]any) url.Values {
	v, _ := json.Marshal(variables)
	f, _ := json.Marshal(features)
	return url.Values{
		"variables": {string(v)},
		"features":  {string(f)},
	}
}
