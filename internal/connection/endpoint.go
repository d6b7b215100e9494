package connection

import (
	"fmt"
	"net/url"
	"strings"
)

// TokenSource supplies the bearer token for the privileged channel.
// An empty token is not an error; the endpoint is built without it.
type TokenSource interface {
	Token() (string, error)
}

// Endpoint builds connection URLs from (channel, params).
type Endpoint struct {
	base   string
	tokens TokenSource
}

// NewEndpoint validates baseURL (ws:// or wss://) and returns an Endpoint.
// tokens may be nil when the "user" channel is not used.
func NewEndpoint(baseURL string, tokens TokenSource) (*Endpoint, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("base url scheme must be ws or wss, got %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("base url host is required")
	}

	return &Endpoint{
		base:   strings.TrimRight(baseURL, "/"),
		tokens: tokens,
	}, nil
}

// Build returns <base>/<channel>/ or <base>/<channel>/<symbol>/, with
// ?token=<bearer> appended for the user channel.
func (e *Endpoint) Build(channel string, params Params) (string, error) {
	var b strings.Builder
	b.WriteString(e.base)
	b.WriteByte('/')
	b.WriteString(url.PathEscape(channel))
	b.WriteByte('/')

	if symbol := params["symbol"]; symbol != "" {
		b.WriteString(url.PathEscape(symbol))
		b.WriteByte('/')
	}

	if channel == ChannelUser && e.tokens != nil {
		token, err := e.tokens.Token()
		if err != nil {
			return "", fmt.Errorf("get bearer token: %w", err)
		}
		if token != "" {
			b.WriteString("?token=")
			b.WriteString(url.QueryEscape(token))
		}
	}

	return b.String(), nil
}
