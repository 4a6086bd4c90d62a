package xpost

import stealth "github.com/anatolykoptev/go-stealth"

// defaultUserAgent is the web-client User-Agent the service expects.
const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// sessionHeaders returns the headers required on every cookie-authenticated
// call: fixed public bearer, concatenated session cookies, the CSRF mirror
// header, and the static client-identification headers of a web client.
func sessionHeaders(cookieHeader, csrf string) map[string]string {
	h := map[string]string{
		"authorization":             "Bearer " + BearerToken,
		"cookie":                    cookieHeader,
		"x-twitter-active-user":     "yes",
		"x-twitter-auth-type":       "OAuth2Session",
		"x-twitter-client-language": "en",
		"content-type":              "application/json",
		"user-agent":                defaultUserAgent,
		"accept":                    "*/*",
		"accept-language":           "en-US,en;q=0.9",
		"accept-encoding":           "gzip, deflate, br",
		"referer":                   "https://x.com/",
		"origin":                    "https://x.com",
		"sec-fetch-dest":            "empty",
		"sec-fetch-mode":            "cors",
		"sec-fetch-site":            "same-origin",
	}
	if csrf != "" {
		h["x-csrf-token"] = csrf
	}
	if ch := stealth.ClientHintsHeaders(defaultUserAgent); ch != nil {
		for k, v := range ch {
			h[k] = v
		}
	}
	return h
}

// appHeaders returns headers for app-only bearer requests against the
// official API surface.
func appHeaders(bearer string) map[string]string {
	return map[string]string{
		"authorization": "Bearer " + bearer,
		"content-type":  "application/json",
		"user-agent":    defaultUserAgent,
		"accept":        "*/*",
	}
}

// xHeaderOrder is the service-specific header order for TLS fingerprint
// consistency.
var xHeaderOrder = []string{
	"authorization",
	"content-type",
	"x-csrf-token",
	"x-twitter-active-user",
	"x-twitter-auth-type",
	"x-twitter-client-language",
	"sec-ch-ua",
	"sec-ch-ua-mobile",
	"sec-ch-ua-platform",
	"sec-fetch-dest",
	"sec-fetch-mode",
	"sec-fetch-site",
	"cookie",
	"user-agent",
	"accept",
	"accept-language",
	"accept-encoding",
}
