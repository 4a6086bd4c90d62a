package xpost

import "fmt"

const (
	graphqlBase   = "https://x.com/i/api/graphql"
	legacyAPIBase = "https://api.x.com/1.1"
	uploadBase    = "https://upload.twitter.com/1.1"
	cardsBase     = "https://caps.x.com/v2"
	apiV2Base     = "https://api.x.com/2"
	oauthTokenURL = "https://api.x.com/oauth2/token"
)

const (
	uploadEndpoint        = uploadBase + "/media/upload.json"
	mediaMetadataEndpoint = uploadBase + "/media/metadata/create.json"
	followEndpoint        = legacyAPIBase + "/friendships/create.json"
	settingsEndpoint      = legacyAPIBase + "/account/settings.json"
	cardCreateEndpoint    = cardsBase + "/cards/create.json"
)

// bearerTokens is the list of known public web-app bearer tokens.
var bearerTokens = []string{
	"AAAAAAAAAAAAAAAAAAAAANRILgAAAAAAnNwIzUejRCOuH5E6I8xnZz4puTs%3D1Zv7ttfk8LF81IUq16cHjhLTvJu4FA33AGWWjCpTnA",
	"AAAAAAAAAAAAAAAAAAAAAFQODgEAAAAAVHTp76lzh3rFzcHbmHVvQxYYpTw%3DckAlMINMjmCwxUcaXbAN4XqJVdgMJaHqNOFgPMK0zN1qLqLQCF",
}

// BearerToken is the active bearer token (first in list).
var BearerToken = bearerTokens[0]

// Endpoint holds the service-assigned operation ID, the operation name, and
// the per-operation feature flags that must be sent in full.
type Endpoint struct {
	ID       string
	Name     string
	Features map[string]any
}

// URL returns the full GraphQL URL for this endpoint.
func (e Endpoint) URL() string {
	return fmt.Sprintf("%s/%s/%s", graphqlBase, e.ID, e.Name)
}

// EndpointURL returns the URL for a named operation, or an error if unknown.
func EndpointURL(operation string) (string, error) {
	ep, ok := Endpoints[operation]
	if !ok {
		return "", fmt.Errorf("unknown operation: %s", operation)
	}
	return ep.URL(), nil
}

// Endpoints maps operation names to their current GraphQL IDs and feature
// flags. IDs are opaque and rotate with web-app deploys.
var Endpoints = map[string]Endpoint{
	"CreateTweet":         {ID: "a1p9RWpkYKBjWv_I3WzS-A", Name: "CreateTweet", Features: createFeatures},
	"CreateNoteTweet":     {ID: "iCUB42lIfXf9qPKctjE5rQ", Name: "CreateNoteTweet", Features: noteTweetFeatures},
	"TweetResultByRestId": {ID: "DJS3BdhUhcaEpZ7B7irJDg", Name: "TweetResultByRestId", Features: baseFeatures},
	"TweetDetail":         {ID: "_8aYOgEDz35BrBcBal1-_w", Name: "TweetDetail", Features: baseFeatures},
	"FavoriteTweet":       {ID: "lI07N6Otwv1PhnEgXILM7A", Name: "FavoriteTweet", Features: mutationFeatures},
	"CreateRetweet":       {ID: "ojPdsZsimiJrUGLR1sjUtA", Name: "CreateRetweet", Features: mutationFeatures},
	"UserByScreenName":    {ID: "G3KGOASz96M-Qu0nwmGXNg", Name: "UserByScreenName", Features: userFeatures},
	"SearchTimeline":      {ID: "gkjsKepM6gl_HmFWoWKfgg", Name: "SearchTimeline", Features: baseFeatures},
}

// mergeFeatures composes a feature set from a base plus targeted overrides.
// The result is a fresh map; inputs are never mutated.
func mergeFeatures(base map[string]any, overrides map[string]any) map[string]any {
	m := make(map[string]any, len(base)+len(overrides))
	for k, v := range base {
		m[k] = v
	}
	for k, v := range overrides {
		m[k] = v
	}
	return m
}

// baseFeatures is the canonical flag set shared by read operations. The
// service validates the shape of the whole set, so every flag ships on every
// call even when irrelevant to it.
var baseFeatures = map[string]any{
	"articles_preview_enabled":                                                false,
	"c9s_tweet_anatomy_moderator_badge_enabled":                               true,
	"communities_web_enable_tweet_community_results_fetch":                    true,
	"creator_subscriptions_quote_tweet_preview_enabled":                       false,
	"creator_subscriptions_tweet_preview_api_enabled":                         true,
	"freedom_of_speech_not_reach_fetch_enabled":                               true,
	"graphql_is_translatable_rweb_tweet_is_translatable_enabled":              true,
	"longform_notetweets_consumption_enabled":                                 true,
	"longform_notetweets_inline_media_enabled":                                true,
	"longform_notetweets_rich_text_read_enabled":                              true,
	"premium_content_api_read_enabled":                                        false,
	"profile_label_improvements_pcf_label_in_post_enabled":                    false,
	"responsive_web_edit_tweet_api_enabled":                                   true,
	"responsive_web_enhance_cards_enabled":                                    false,
	"responsive_web_graphql_exclude_directive_enabled":                        true,
	"responsive_web_graphql_skip_user_profile_image_extensions_enabled":       false,
	"responsive_web_graphql_timeline_navigation_enabled":                      true,
	"responsive_web_grok_analyze_button_fetch_trends_enabled":                 false,
	"responsive_web_grok_analyze_post_followups_enabled":                      false,
	"responsive_web_grok_image_annotation_enabled":                            false,
	"responsive_web_grok_share_attachment_enabled":                            false,
	"responsive_web_media_download_video_enabled":                             false,
	"responsive_web_twitter_article_tweet_consumption_enabled":                true,
	"rweb_tipjar_consumption_enabled":                                         true,
	"rweb_video_timestamps_enabled":                                           true,
	"standardized_nudges_misinfo":                                             true,
	"tweet_awards_web_tipping_enabled":                                        false,
	"tweet_with_visibility_results_prefer_gql_limited_actions_policy_enabled": true,
	"tweet_with_visibility_results_prefer_gql_media_interstitial_enabled":     false,
	"tweetypie_unmention_optimization_enabled":                                true,
	"verified_phone_label_enabled":                                            false,
	"view_counts_everywhere_api_enabled":                                      true,
}

// createFeatures is baseFeatures with the write-path toggles the CreateTweet
// mutation requires.
var createFeatures = mergeFeatures(baseFeatures, map[string]any{
	"interactive_text_enabled":                  true,
	"responsive_web_text_conversations_enabled": false,
	"vibe_api_enabled":                          false,
})

// noteTweetFeatures routes long-form creation through the rich-text path.
var noteTweetFeatures = mergeFeatures(createFeatures, map[string]any{
	"longform_notetweets_richtext_consumption_enabled": true,
	"subscriptions_verification_info_enabled":          true,
})

// mutationFeatures is the minimal set the simple mutations validate.
var mutationFeatures = mergeFeatures(baseFeatures, map[string]any{
	"responsive_web_enhance_cards_enabled": false,
})

// userFeatures is the flag set for user lookup operations.
var userFeatures = mergeFeatures(baseFeatures, map[string]any{
	"hidden_profile_subscriptions_enabled":             true,
	"highlights_tweets_tab_ui_enabled":                 true,
	"responsive_web_twitter_article_notes_tab_enabled": true,
	"subscriptions_feature_can_gift_premium":           false,
})
