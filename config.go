package xpost

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Credentials is the sensitive configuration category. Either Cookies (the
// session-cookie strategy) or the app key/token pairs (the official API
// strategy) must be set. Owned by the auth components alone; never logged.
type Credentials struct {
	// Cookies are browser session cookies from an external login flow,
	// already valid.
	Cookies []Cookie

	// App-level OAuth credentials for the official API surface.
	AppKey       string
	AppSecret    string
	AccessToken  string
	AccessSecret string
}

// ClientConfig holds all configuration for the client.
type ClientConfig struct {
	Credentials Credentials

	// Proxy is an optional proxy URL for all traffic.
	Proxy string

	// UploadPollInterval is the sleep between media processing status
	// checks. The poll loop itself is unbounded; bound the upload call's
	// context instead.
	UploadPollInterval time.Duration
}

// defaults fills in zero-value config fields.
func (cfg *ClientConfig) defaults() {
	if cfg.UploadPollInterval == 0 {
		cfg.UploadPollInterval = time.Second
	}
}

// envConfig is the environment shape read by ConfigFromEnv.
type envConfig struct {
	Cookies      string `env:"XPOST_COOKIES"`
	AppKey       string `env:"XPOST_APP_KEY"`
	AppSecret    string `env:"XPOST_APP_SECRET"`
	AccessToken  string `env:"XPOST_ACCESS_TOKEN"`
	AccessSecret string `env:"XPOST_ACCESS_SECRET"`
	Proxy        string `env:"XPOST_PROXY"`

	UploadPollSeconds int `env:"XPOST_UPLOAD_POLL_SECONDS" env-default:"1"`
}

// ConfigFromEnv builds a ClientConfig from the environment. XPOST_COOKIES is
// a JSON array of cookie records as exported by a browser.
func ConfigFromEnv() (ClientConfig, error) {
	var env envConfig
	if err := cleanenv.ReadEnv(&env); err != nil {
		return ClientConfig{}, fmt.Errorf("read env: %w", err)
	}

	cfg := ClientConfig{
		Proxy:              env.Proxy,
		UploadPollInterval: time.Duration(env.UploadPollSeconds) * time.Second,
		Credentials: Credentials{
			AppKey:       env.AppKey,
			AppSecret:    env.AppSecret,
			AccessToken:  env.AccessToken,
			AccessSecret: env.AccessSecret,
		},
	}
	if env.Cookies != "" {
		cookies, err := ParseCookies(env.Cookies)
		if err != nil {
			return ClientConfig{}, &ConfigError{Reason: fmt.Sprintf("XPOST_COOKIES: %v", err)}
		}
		cfg.Credentials.Cookies = cookies
	}
	return cfg, nil
}
