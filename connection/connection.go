// Package connection resolves named Evolution API servers and their API keys.
package connection

import (
	"net/url"
	"strings"
)

// DefaultName is the connection used when no name is given and nothing else
// has been made active.
const DefaultName = "default"

// Config identifies one Evolution API server.
type Config struct {
	// Name is the unique key of the connection.
	Name string `json:"name"`

	// ServerURL is the absolute base URL of the server, without a trailing slash.
	ServerURL string `json:"server_url"`

	// APIKey is sent in the apikey header of every request. Never serialized.
	APIKey string `json:"-"`
}

// URL joins the server URL and an API path.
func (c Config) URL(path string) string {
	return c.ServerURL + "/" + strings.TrimLeft(path, "/")
}

// normalize validates cfg and strips trailing slashes from its server URL.
func normalize(name string, cfg Config) (Config, error) {
	cfg.Name = name
	cfg.ServerURL = strings.TrimRight(strings.TrimSpace(cfg.ServerURL), "/")

	if cfg.ServerURL == "" {
		return Config{}, &InvalidConfigError{Name: name, Field: "server_url", Reason: "required"}
	}
	u, err := url.ParseRequestURI(cfg.ServerURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return Config{}, &InvalidConfigError{Name: name, Field: "server_url", Reason: "must be an absolute http(s) URL"}
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return Config{}, &InvalidConfigError{Name: name, Field: "api_key", Reason: "required"}
	}
	return cfg, nil
}
