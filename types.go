package xpost

import "time"

// Profile represents an X/Twitter account profile. It is rebuilt on every
// fetch and never cached by this layer.
type Profile struct {
	ID             string
	Username       string
	DisplayName    string
	Bio            string
	Verified       bool
	BlueVerified   bool
	FollowersCount int
	FollowingCount int
	PostCount      int
	AvatarURL      string
	BannerURL      string
	Location       string
	Website        string
	JoinedAt       time.Time
}

// Post is the canonical short-form content item (tweet-equivalent).
type Post struct {
	ID             string
	AuthorID       string
	AuthorUsername string
	Text           string
	CreatedAt      time.Time
	ConversationID string
	InReplyToID    string

	Likes         int
	Reposts       int
	Replies       int
	Views         int
	BookmarkCount int

	Photos []Photo
	Videos []Video
	Poll   *Poll

	// Nested quoted/reposted content as embedded by the server. The unwrap
	// is depth-capped, so deeply nested chains are truncated.
	Quoted   *Post
	Reposted *Post

	IsQuoted     bool
	IsReply      bool
	IsRepost     bool
	IsPinned     bool
	IsSelfThread bool
	Sensitive    bool
}

// Photo is an attached image.
type Photo struct {
	ID      string
	URL     string
	AltText string
}

// Video is an attached video or animated GIF, reduced to the single
// highest-bitrate playable variant.
type Video struct {
	ID         string
	URL        string
	PreviewURL string
}

// Poll is an attached poll card.
type Poll struct {
	ID       string
	Options  []PollOption
	EndsAt   time.Time
	Duration time.Duration
	Final    bool
}

// PollOption is one poll choice in server order.
type PollOption struct {
	Label string
	Votes int
}

// MediaAttachment is a binary payload to upload alongside a new post.
type MediaAttachment struct {
	Data        []byte
	ContentType string
	AltText     string
}

// PollRequest describes a poll to attach to a new post.
type PollRequest struct {
	Labels   []string
	Duration time.Duration
}

// PostOptions carries the optional parts of a post creation call.
type PostOptions struct {
	ReplyToID string
	Media     []MediaAttachment
	Poll      *PollRequest
}

// SearchMode selects the search result product.
type SearchMode string

const (
	SearchTop    SearchMode = "Top"
	SearchLatest SearchMode = "Latest"
	SearchPhotos SearchMode = "Photos"
	SearchVideos SearchMode = "Videos"
	SearchPeople SearchMode = "People"
)

// SearchOptions tunes a search call.
type SearchOptions struct {
	MaxResults int
	Cursor     string
	Mode       SearchMode
}

// SearchResult is one page of search results. NextCursor is empty when the
// server indicated no further pages.
type SearchResult struct {
	Posts      []*Post
	NextCursor string
}
