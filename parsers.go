package xpost

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// createdAtLayout is the legacy timestamp format the service still emits.
const createdAtLayout = "Mon Jan 02 15:04:05 +0000 2006"

// maxQuoteDepth bounds the recursive quoted/reposted unwrap. The server only
// embeds one level, but the walk is capped anyway.
const maxQuoteDepth = 2

// flexInt is a numeric field that sometimes arrives as a JSON string.
// Missing or null values decode to zero, never nil.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		*f = 0
		return nil
	}
	*f = flexInt(n)
	return nil
}

// --- Raw result shapes ---

type userResult struct {
	TypeName string `json:"__typename"`
	RestID   string `json:"rest_id"`
	Legacy   struct {
		Name              string   `json:"name"`
		ScreenName        string   `json:"screen_name"`
		Description       string   `json:"description"`
		FollowersCount    int      `json:"followers_count"`
		FriendsCount      int      `json:"friends_count"`
		StatusesCount     int      `json:"statuses_count"`
		CreatedAt         string   `json:"created_at"`
		Verified          bool     `json:"verified"`
		Location          string   `json:"location"`
		ProfileImageURL   string   `json:"profile_image_url_https"`
		ProfileBannerURL  string   `json:"profile_banner_url"`
		PinnedTweetIDsStr []string `json:"pinned_tweet_ids_str"`
		Entities          struct {
			URL struct {
				URLs []struct {
					ExpandedURL string `json:"expanded_url"`
				} `json:"urls"`
			} `json:"url"`
		} `json:"entities"`
	} `json:"legacy"`
	IsBlueVerified bool `json:"is_blue_verified"`
}

type mediaEntity struct {
	IDStr         string `json:"id_str"`
	Type          string `json:"type"`
	MediaURLHTTPS string `json:"media_url_https"`
	ExtAltText    string `json:"ext_alt_text"`
	VideoInfo     struct {
		Variants []struct {
			Bitrate     int    `json:"bitrate"`
			ContentType string `json:"content_type"`
			URL         string `json:"url"`
		} `json:"variants"`
	} `json:"video_info"`
}

type tweetLegacy struct {
	FullText             string  `json:"full_text"`
	CreatedAt            string  `json:"created_at"`
	ConversationIDStr    string  `json:"conversation_id_str"`
	InReplyToStatusIDStr string  `json:"in_reply_to_status_id_str"`
	UserIDStr            string  `json:"user_id_str"`
	FavoriteCount        flexInt `json:"favorite_count"`
	RetweetCount         flexInt `json:"retweet_count"`
	ReplyCount           flexInt `json:"reply_count"`
	BookmarkCount        flexInt `json:"bookmark_count"`
	IsQuoteStatus        bool    `json:"is_quote_status"`
	PossiblySensitive    bool    `json:"possibly_sensitive"`
	SelfThread           *struct {
		IDStr string `json:"id_str"`
	} `json:"self_thread"`
	RetweetedStatusResult *struct {
		Result *tweetResult `json:"result"`
	} `json:"retweeted_status_result"`
	ExtendedEntities struct {
		Media []mediaEntity `json:"media"`
	} `json:"extended_entities"`
	Entities struct {
		Media []mediaEntity `json:"media"`
	} `json:"entities"`
}

type tweetResult struct {
	TypeName string       `json:"__typename"`
	RestID   string       `json:"rest_id"`
	Tweet    *tweetResult `json:"tweet"` // TweetWithVisibilityResults wrapper
	Core     struct {
		UserResults struct {
			Result userResult `json:"result"`
		} `json:"user_results"`
	} `json:"core"`
	NoteTweet struct {
		NoteTweetResults struct {
			Result struct {
				Text string `json:"text"`
			} `json:"result"`
		} `json:"note_tweet_results"`
	} `json:"note_tweet"`
	Views struct {
		Count flexInt `json:"count"`
	} `json:"views"`
	QuotedStatusResult *struct {
		Result *tweetResult `json:"result"`
	} `json:"quoted_status_result"`
	Card   *cardResult `json:"card"`
	Legacy tweetLegacy `json:"legacy"`
}

type cardResult struct {
	RestID string `json:"rest_id"`
	Legacy struct {
		Name          string `json:"name"`
		BindingValues []struct {
			Key   string `json:"key"`
			Value struct {
				StringValue string `json:"string_value"`
			} `json:"value"`
		} `json:"binding_values"`
	} `json:"legacy"`
}

// --- Result location ---

// findTweetResult locates the real content item in a response body. The
// service nests it under different paths depending on which operation
// produced it; each known path is tried in a fixed priority order.
func findTweetResult(body []byte) (*tweetResult, error) {
	var raw struct {
		Data struct {
			CreateTweet *struct {
				TweetResults struct {
					Result *tweetResult `json:"result"`
				} `json:"tweet_results"`
			} `json:"create_tweet"`
			NoteTweetCreate *struct {
				TweetResults struct {
					Result *tweetResult `json:"result"`
				} `json:"tweet_results"`
			} `json:"notetweet_create"`
			TweetResult *struct {
				Result *tweetResult `json:"result"`
			} `json:"tweet_result"`
			ThreadedConversation *struct {
				Instructions []timelineInstruction `json:"instructions"`
			} `json:"threaded_conversation_with_injections_v2"`
		} `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal tweet response: %w", err)
	}
	if len(raw.Errors) > 0 {
		return nil, fmt.Errorf("api error: %s", raw.Errors[0].Message)
	}

	// 1. Direct creation result.
	if raw.Data.CreateTweet != nil && raw.Data.CreateTweet.TweetResults.Result != nil {
		return raw.Data.CreateTweet.TweetResults.Result, nil
	}
	if raw.Data.NoteTweetCreate != nil && raw.Data.NoteTweetCreate.TweetResults.Result != nil {
		return raw.Data.NoteTweetCreate.TweetResults.Result, nil
	}
	// 2. Detail-view result.
	if raw.Data.TweetResult != nil && raw.Data.TweetResult.Result != nil {
		return raw.Data.TweetResult.Result, nil
	}
	// 3. Timeline-entry result.
	if raw.Data.ThreadedConversation != nil {
		for _, instruction := range raw.Data.ThreadedConversation.Instructions {
			for _, entry := range instruction.Entries {
				if r := tweetFromEntry(entry); r != nil {
					return r, nil
				}
			}
		}
	}
	return nil, &NotFoundError{What: "tweet result in response"}
}

// ParsePost normalizes any of the known response shapes into a Post.
func ParsePost(body []byte) (*Post, error) {
	r, err := findTweetResult(body)
	if err != nil {
		return nil, err
	}
	return normalizeTweet(r, 0)
}

// normalizeTweet maps one raw tweet result into the canonical record.
// Quoted and reposted content are normalized by recursion, one level deep as
// embedded by the server.
func normalizeTweet(r *tweetResult, depth int) (*Post, error) {
	// Limited-visibility tweets arrive wrapped one level down.
	if r.Tweet != nil {
		r = r.Tweet
	}
	if r.TypeName == "TweetUnavailable" {
		return nil, &NotFoundError{What: "tweet unavailable"}
	}
	if r.RestID == "" {
		return nil, fmt.Errorf("empty tweet rest_id (typename=%s)", r.TypeName)
	}

	// Long-form override takes precedence over the standard text field.
	text := r.Legacy.FullText
	if note := r.NoteTweet.NoteTweetResults.Result.Text; note != "" {
		text = note
	}

	var createdAt time.Time
	if r.Legacy.CreatedAt != "" {
		if t, err := time.Parse(createdAtLayout, r.Legacy.CreatedAt); err == nil {
			createdAt = t
		}
	}

	p := &Post{
		ID:             r.RestID,
		AuthorID:       r.Legacy.UserIDStr,
		AuthorUsername: r.Core.UserResults.Result.Legacy.ScreenName,
		Text:           text,
		CreatedAt:      createdAt,
		ConversationID: r.Legacy.ConversationIDStr,
		InReplyToID:    r.Legacy.InReplyToStatusIDStr,
		Likes:          int(r.Legacy.FavoriteCount),
		Reposts:        int(r.Legacy.RetweetCount),
		Replies:        int(r.Legacy.ReplyCount),
		Views:          int(r.Views.Count),
		BookmarkCount:  int(r.Legacy.BookmarkCount),
		IsQuoted:       r.Legacy.IsQuoteStatus,
		IsReply:        r.Legacy.InReplyToStatusIDStr != "",
		IsSelfThread:   r.Legacy.SelfThread != nil,
		Sensitive:      r.Legacy.PossiblySensitive,
	}
	if p.AuthorID == "" {
		p.AuthorID = r.Core.UserResults.Result.RestID
	}

	media := r.Legacy.ExtendedEntities.Media
	if len(media) == 0 {
		media = r.Legacy.Entities.Media
	}
	p.Photos, p.Videos = splitMedia(media)

	if r.Card != nil {
		p.Poll = parsePollCard(r.Card)
	}

	if depth < maxQuoteDepth {
		if q := r.QuotedStatusResult; q != nil && q.Result != nil {
			quoted, err := normalizeTweet(q.Result, depth+1)
			if err != nil {
				slog.Debug("skip quoted tweet", slog.Any("error", err))
			} else {
				p.Quoted = quoted
				p.IsQuoted = true
			}
		}
		if rt := r.Legacy.RetweetedStatusResult; rt != nil && rt.Result != nil {
			reposted, err := normalizeTweet(rt.Result, depth+1)
			if err != nil {
				slog.Debug("skip reposted tweet", slog.Any("error", err))
			} else {
				p.Reposted = reposted
				p.IsRepost = true
			}
		}
	}
	return p, nil
}

// splitMedia divides attached media into photos and videos by the type
// discriminator. Video selection picks the highest-bitrate entry among
// playable MP4 variants; entries with no MP4 variant yield nothing.
func splitMedia(media []mediaEntity) ([]Photo, []Video) {
	var photos []Photo
	var videos []Video
	for _, m := range media {
		switch m.Type {
		case "photo":
			photos = append(photos, Photo{ID: m.IDStr, URL: m.MediaURLHTTPS, AltText: m.ExtAltText})
		case "video", "animated_gif":
			best := ""
			bestBitrate := -1
			for _, v := range m.VideoInfo.Variants {
				if v.ContentType != "video/mp4" {
					continue
				}
				if v.Bitrate > bestBitrate {
					bestBitrate = v.Bitrate
					best = v.URL
				}
			}
			if best == "" {
				continue
			}
			videos = append(videos, Video{ID: m.IDStr, URL: best, PreviewURL: m.MediaURLHTTPS})
		}
	}
	return photos, videos
}

// parsePollCard reconstructs a poll from card binding values. Returns nil if
// the card is not a poll card.
func parsePollCard(c *cardResult) *Poll {
	if !strings.HasPrefix(c.Legacy.Name, "poll") {
		return nil
	}
	values := make(map[string]string, len(c.Legacy.BindingValues))
	for _, bv := range c.Legacy.BindingValues {
		values[bv.Key] = bv.Value.StringValue
	}

	poll := &Poll{ID: c.RestID}
	for i := 1; ; i++ {
		label, ok := values[fmt.Sprintf("choice%d_label", i)]
		if !ok {
			break
		}
		votes, _ := strconv.Atoi(values[fmt.Sprintf("choice%d_count", i)])
		poll.Options = append(poll.Options, PollOption{Label: label, Votes: votes})
	}
	if end := values["end_datetime_utc"]; end != "" {
		if t, err := time.Parse(time.RFC3339, end); err == nil {
			poll.EndsAt = t
		}
	}
	if mins, err := strconv.Atoi(values["duration_minutes"]); err == nil {
		poll.Duration = time.Duration(mins) * time.Minute
	}
	poll.Final = values["counts_are_final"] == "true"
	return poll
}

// --- Profiles ---

// ParseProfile normalizes a UserByScreenName response.
func ParseProfile(body []byte) (*Profile, error) {
	var raw struct {
		Data struct {
			User struct {
				Result userResult `json:"result"`
			} `json:"user"`
		} `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal user response: %w", err)
	}
	if len(raw.Errors) > 0 {
		return nil, fmt.Errorf("api error: %s", raw.Errors[0].Message)
	}
	return normalizeUser(raw.Data.User.Result)
}

func normalizeUser(r userResult) (*Profile, error) {
	if r.TypeName == "UserUnavailable" {
		return nil, &NotFoundError{What: "user unavailable (suspended or restricted)"}
	}
	if r.RestID == "" {
		return nil, &NotFoundError{What: "user result in response"}
	}

	var joinedAt time.Time
	if r.Legacy.CreatedAt != "" {
		if t, err := time.Parse(createdAtLayout, r.Legacy.CreatedAt); err == nil {
			joinedAt = t
		}
	}
	website := ""
	if urls := r.Legacy.Entities.URL.URLs; len(urls) > 0 {
		website = urls[0].ExpandedURL
	}
	return &Profile{
		ID:             r.RestID,
		Username:       r.Legacy.ScreenName,
		DisplayName:    r.Legacy.Name,
		Bio:            strings.TrimSpace(r.Legacy.Description),
		Verified:       r.Legacy.Verified,
		BlueVerified:   r.IsBlueVerified,
		FollowersCount: r.Legacy.FollowersCount,
		FollowingCount: r.Legacy.FriendsCount,
		PostCount:      r.Legacy.StatusesCount,
		AvatarURL:      r.Legacy.ProfileImageURL,
		BannerURL:      r.Legacy.ProfileBannerURL,
		Location:       r.Legacy.Location,
		Website:        website,
		JoinedAt:       joinedAt,
	}, nil
}

// --- Timelines ---

type timelineInstruction struct {
	Type    string          `json:"type"`
	Entries []timelineEntry `json:"entries"`
	Entry   *timelineEntry  `json:"entry"`
}

type timelineEntry struct {
	EntryID string          `json:"entryId"`
	Content timelineContent `json:"content"`
}

type timelineContent struct {
	EntryType   string          `json:"entryType"`
	TypeName    string          `json:"__typename"`
	ItemContent json.RawMessage `json:"itemContent"`
	Value       string          `json:"value"`
	CursorType  string          `json:"cursorType"`
}

// tweetFromEntry extracts a raw tweet result from a timeline entry, or nil.
func tweetFromEntry(entry timelineEntry) *tweetResult {
	if entry.Content.ItemContent == nil {
		return nil
	}
	var item struct {
		TypeName     string `json:"__typename"`
		TweetResults struct {
			Result *tweetResult `json:"result"`
		} `json:"tweet_results"`
	}
	if err := json.Unmarshal(entry.Content.ItemContent, &item); err != nil {
		return nil
	}
	if item.TypeName != "TimelineTweet" {
		return nil
	}
	return item.TweetResults.Result
}

// ParseSearchPage normalizes a SearchTimeline response into ordered posts
// plus the opaque pagination cursor. The cursor lives in a sentinel entry in
// the result stream; its absence means no further pages exist.
func ParseSearchPage(body []byte) (*SearchResult, error) {
	var raw struct {
		Data struct {
			SearchByRawQuery struct {
				SearchTimeline struct {
					Timeline struct {
						Instructions []timelineInstruction `json:"instructions"`
					} `json:"timeline"`
				} `json:"search_timeline"`
			} `json:"search_by_raw_query"`
		} `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal search response: %w", err)
	}
	if len(raw.Errors) > 0 {
		return nil, fmt.Errorf("api error: %s", raw.Errors[0].Message)
	}

	result := &SearchResult{}
	for _, instruction := range raw.Data.SearchByRawQuery.SearchTimeline.Timeline.Instructions {
		entries := instruction.Entries
		if instruction.Entry != nil {
			entries = append(entries, *instruction.Entry)
		}
		for _, entry := range entries {
			if entry.Content.EntryType == "TimelineTimelineCursor" || entry.Content.TypeName == "TimelineTimelineCursor" {
				if entry.Content.CursorType == "Bottom" || strings.Contains(entry.EntryID, "cursor-bottom") {
					result.NextCursor = entry.Content.Value
				}
				continue
			}
			r := tweetFromEntry(entry)
			if r == nil {
				continue
			}
			p, err := normalizeTweet(r, 0)
			if err != nil {
				slog.Debug("skip search entry", slog.String("entry", entry.EntryID), slog.Any("error", err))
				continue
			}
			if strings.HasPrefix(entry.EntryID, "pinned") {
				p.IsPinned = true
			}
			result.Posts = append(result.Posts, p)
		}
	}
	return result, nil
}
