package xpost

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

// coreTweet is a raw tweet result used across fixtures.
const coreTweet = `{
	"__typename": "Tweet",
	"rest_id": "1001",
	"core": {"user_results": {"result": {
		"__typename": "User",
		"rest_id": "42",
		"legacy": {"screen_name": "tester", "name": "Test User"}
	}}},
	"views": {"count": "3500"},
	"legacy": {
		"full_text": "hello world",
		"created_at": "Mon Jan 02 15:04:05 +0000 2023",
		"conversation_id_str": "1001",
		"user_id_str": "42",
		"favorite_count": 7,
		"retweet_count": "2",
		"reply_count": 1,
		"bookmark_count": 4
	}
}`

func TestParsePostRecoversAllKnownShapes(t *testing.T) {
	shapes := map[string]string{
		"direct creation":    fmt.Sprintf(`{"data":{"create_tweet":{"tweet_results":{"result":%s}}}}`, coreTweet),
		"long-form creation": fmt.Sprintf(`{"data":{"notetweet_create":{"tweet_results":{"result":%s}}}}`, coreTweet),
		"detail view":        fmt.Sprintf(`{"data":{"tweet_result":{"result":%s}}}`, coreTweet),
		"timeline entry": fmt.Sprintf(`{"data":{"threaded_conversation_with_injections_v2":{"instructions":[{
			"type":"TimelineAddEntries",
			"entries":[
				{"entryId":"cursor-top-0","content":{"entryType":"TimelineTimelineCursor","value":"TOP"}},
				{"entryId":"tweet-1001","content":{"entryType":"TimelineTimelineItem","itemContent":{
					"__typename":"TimelineTweet","tweet_results":{"result":%s}}}}
			]}]}}}`, coreTweet),
	}

	for name, body := range shapes {
		t.Run(name, func(t *testing.T) {
			p, err := ParsePost([]byte(body))
			require.NoError(t, err)
			require.Equal(t, "1001", p.ID)
			require.Equal(t, "42", p.AuthorID)
			require.Equal(t, "tester", p.AuthorUsername)
			require.Equal(t, "hello world", p.Text)
			require.Equal(t, 7, p.Likes)
			require.Equal(t, 2, p.Reposts, "string metric must coerce to number")
			require.Equal(t, 3500, p.Views)
			require.Equal(t, 4, p.BookmarkCount)
		})
	}
}

func TestParsePostNoKnownShape(t *testing.T) {
	bodies := []string{
		`{"data":{}}`,
		`{"data":{"threaded_conversation_with_injections_v2":{"instructions":[]}}}`,
		`{}`,
	}
	for _, body := range bodies {
		var nf *NotFoundError
		_, err := ParsePost([]byte(body))
		require.Truef(t, errors.As(err, &nf), "body %s: err = %v, want NotFoundError", body, err)
	}
}

func TestParsePostLongFormOverride(t *testing.T) {
	var r tweetResult
	require.NoError(t, json.Unmarshal([]byte(coreTweet), &r))
	r.NoteTweet.NoteTweetResults.Result.Text = "the long-form text that replaces full_text"

	p, err := normalizeTweet(&r, 0)
	require.NoError(t, err)
	require.Equal(t, "the long-form text that replaces full_text", p.Text)
}

func TestParsePostMissingMetricsDefaultZero(t *testing.T) {
	body := `{"data":{"tweet_result":{"result":{
		"rest_id":"5",
		"legacy":{"full_text":"bare"}
	}}}}`
	p, err := ParsePost([]byte(body))
	require.NoError(t, err)
	require.Zero(t, p.Likes)
	require.Zero(t, p.Reposts)
	require.Zero(t, p.Replies)
	require.Zero(t, p.Views)
	require.Zero(t, p.BookmarkCount)
}

func TestParsePostQuoted(t *testing.T) {
	quoted := coreTweet
	body := fmt.Sprintf(`{"data":{"tweet_result":{"result":{
		"rest_id":"2002",
		"legacy":{"full_text":"check this out","is_quote_status":true,"user_id_str":"7"},
		"quoted_status_result":{"result":%s}
	}}}}`, quoted)

	p, err := ParsePost([]byte(body))
	require.NoError(t, err)
	require.True(t, p.IsQuoted)
	require.NotNil(t, p.Quoted)

	// The nested item must equal the independently normalized fixture.
	var r tweetResult
	require.NoError(t, json.Unmarshal([]byte(quoted), &r))
	independent, err := normalizeTweet(&r, 0)
	require.NoError(t, err)
	require.Equal(t, independent, p.Quoted)
}

func TestParsePostRepost(t *testing.T) {
	body := fmt.Sprintf(`{"data":{"tweet_result":{"result":{
		"rest_id":"3003",
		"legacy":{
			"full_text":"RT @tester: hello world",
			"user_id_str":"8",
			"retweeted_status_result":{"result":%s}
		}
	}}}}`, coreTweet)

	p, err := ParsePost([]byte(body))
	require.NoError(t, err)
	require.True(t, p.IsRepost)
	require.NotNil(t, p.Reposted)
	require.Equal(t, "1001", p.Reposted.ID)
}

func TestParsePostVisibilityWrapper(t *testing.T) {
	body := fmt.Sprintf(`{"data":{"tweet_result":{"result":{
		"__typename":"TweetWithVisibilityResults",
		"tweet":%s
	}}}}`, coreTweet)
	p, err := ParsePost([]byte(body))
	require.NoError(t, err)
	require.Equal(t, "1001", p.ID)
}

func TestSplitMediaVideoBitrateSelection(t *testing.T) {
	media := []mediaEntity{}
	require.NoError(t, json.Unmarshal([]byte(`[{
		"id_str":"m1","type":"video","media_url_https":"https://pbs/img.jpg",
		"video_info":{"variants":[
			{"bitrate":500000,"content_type":"video/mp4","url":"https://v/low.mp4"},
			{"content_type":"application/x-mpegURL","url":"https://v/playlist.m3u8"},
			{"bitrate":1200000,"content_type":"video/mp4","url":"https://v/high.mp4"}
		]}
	}]`), &media))

	photos, videos := splitMedia(media)
	require.Empty(t, photos)
	require.Len(t, videos, 1)
	require.Equal(t, "https://v/high.mp4", videos[0].URL)
	require.Equal(t, "https://pbs/img.jpg", videos[0].PreviewURL)
}

func TestSplitMediaNoPlayableVariant(t *testing.T) {
	media := []mediaEntity{}
	require.NoError(t, json.Unmarshal([]byte(`[{
		"id_str":"m1","type":"video",
		"video_info":{"variants":[
			{"content_type":"application/x-mpegURL","url":"https://v/playlist.m3u8"}
		]}
	}]`), &media))

	_, videos := splitMedia(media)
	require.Empty(t, videos, "non-MP4-only media must yield no video descriptor")
}

func TestSplitMediaPhotos(t *testing.T) {
	media := []mediaEntity{}
	require.NoError(t, json.Unmarshal([]byte(`[
		{"id_str":"p1","type":"photo","media_url_https":"https://pbs/a.jpg","ext_alt_text":"a cat"},
		{"id_str":"p2","type":"photo","media_url_https":"https://pbs/b.jpg"}
	]`), &media))

	photos, videos := splitMedia(media)
	require.Empty(t, videos)
	require.Len(t, photos, 2)
	require.Equal(t, "a cat", photos[0].AltText)
}

func TestParsePollCard(t *testing.T) {
	card := &cardResult{}
	require.NoError(t, json.Unmarshal([]byte(`{
		"rest_id":"card://900",
		"legacy":{"name":"poll2choice_text_only","binding_values":[
			{"key":"choice1_label","value":{"string_value":"yes"}},
			{"key":"choice1_count","value":{"string_value":"12"}},
			{"key":"choice2_label","value":{"string_value":"no"}},
			{"key":"choice2_count","value":{"string_value":"30"}},
			{"key":"end_datetime_utc","value":{"string_value":"2024-05-01T12:00:00Z"}},
			{"key":"duration_minutes","value":{"string_value":"1440"}},
			{"key":"counts_are_final","value":{"string_value":"true"}}
		]}
	}`), card))

	poll := parsePollCard(card)
	require.NotNil(t, poll)
	require.Len(t, poll.Options, 2)
	require.Equal(t, PollOption{Label: "yes", Votes: 12}, poll.Options[0])
	require.Equal(t, PollOption{Label: "no", Votes: 30}, poll.Options[1])
	require.True(t, poll.Final)
	require.Equal(t, 24*60, int(poll.Duration.Minutes()))
	require.False(t, poll.EndsAt.IsZero())

	notAPoll := &cardResult{}
	notAPoll.Legacy.Name = "summary_large_image"
	require.Nil(t, parsePollCard(notAPoll))
}

func searchFixture(withCursor bool) string {
	cursor := ""
	if withCursor {
		cursor = `,{"entryId":"cursor-bottom-0","content":{
			"entryType":"TimelineTimelineCursor","cursorType":"Bottom","value":"CURSOR123"}}`
	}
	return fmt.Sprintf(`{"data":{"search_by_raw_query":{"search_timeline":{"timeline":{
		"instructions":[{"type":"TimelineAddEntries","entries":[
			{"entryId":"tweet-1001","content":{"entryType":"TimelineTimelineItem","itemContent":{
				"__typename":"TimelineTweet","tweet_results":{"result":%s}}}}%s
		]}]}}}}}`, coreTweet, cursor)
}

func TestParseSearchPageCursor(t *testing.T) {
	page, err := ParseSearchPage([]byte(searchFixture(true)))
	require.NoError(t, err)
	require.Len(t, page.Posts, 1)
	require.Equal(t, "CURSOR123", page.NextCursor)

	page, err = ParseSearchPage([]byte(searchFixture(false)))
	require.NoError(t, err)
	require.Len(t, page.Posts, 1)
	require.Empty(t, page.NextCursor, "no sentinel entry means no further pages")
}

func TestParseProfile(t *testing.T) {
	body := `{"data":{"user":{"result":{
		"__typename":"User",
		"rest_id":"42",
		"is_blue_verified":true,
		"legacy":{
			"screen_name":"tester","name":"Test User","description":"  bio here ",
			"followers_count":100,"friends_count":50,"statuses_count":200,
			"created_at":"Mon Jan 02 15:04:05 +0000 2020",
			"verified":false,"location":"Berlin",
			"profile_image_url_https":"https://pbs/avatar.jpg",
			"profile_banner_url":"https://pbs/banner.jpg",
			"entities":{"url":{"urls":[{"expanded_url":"https://example.com"}]}}
		}
	}}}}`

	p, err := ParseProfile([]byte(body))
	require.NoError(t, err)
	require.Equal(t, "42", p.ID)
	require.Equal(t, "tester", p.Username)
	require.Equal(t, "bio here", p.Bio)
	require.False(t, p.Verified)
	require.True(t, p.BlueVerified)
	require.Equal(t, 100, p.FollowersCount)
	require.Equal(t, "https://example.com", p.Website)
	require.Equal(t, "Berlin", p.Location)
	require.Equal(t, 2020, p.JoinedAt.Year())
}

func TestParseProfileUnavailable(t *testing.T) {
	body := `{"data":{"user":{"result":{"__typename":"UserUnavailable","rest_id":""}}}}`
	var nf *NotFoundError
	_, err := ParseProfile([]byte(body))
	require.True(t, errors.As(err, &nf))
}

func TestFlexIntCoercion(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{`123`, 123},
		{`"456"`, 456},
		{`null`, 0},
		{`""`, 0},
		{`"garbage"`, 0},
	}
	for _, tt := range tests {
		var f flexInt
		require.NoError(t, json.Unmarshal([]byte(tt.raw), &f), tt.raw)
		require.Equal(t, tt.want, int(f), tt.raw)
	}
}

func TestParsePostSelfThreadAndReplyFlags(t *testing.T) {
	body := `{"data":{"tweet_result":{"result":{
		"rest_id":"6006",
		"legacy":{
			"full_text":"part two",
			"in_reply_to_status_id_str":"6005",
			"conversation_id_str":"6000",
			"self_thread":{"id_str":"6000"},
			"possibly_sensitive":true
		}
	}}}}`
	p, err := ParsePost([]byte(body))
	require.NoError(t, err)
	require.True(t, p.IsReply)
	require.True(t, p.IsSelfThread)
	require.True(t, p.Sensitive)
	require.Equal(t, "6005", p.InReplyToID)
}
