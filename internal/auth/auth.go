// Package auth supplies bearer tokens for the privileged "user" stream.
//
// Token issuance and refresh belong to the REST layer; sources here only read
// whatever that layer last stored.
package auth

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/Vinayak0723/cryptoexchange/internal/config"
)

// ErrNoToken is returned by a source that has no token to offer.
var ErrNoToken = errors.New("no bearer token available")

// TokenSource returns the current bearer token. It satisfies
// connection.TokenSource.
type TokenSource interface {
	Token() (string, error)
}

// Static always returns the same token.
type Static string

// Token implements TokenSource.
func (s Static) Token() (string, error) {
	if s == "" {
		return "", ErrNoToken
	}
	return string(s), nil
}

// Env reads the named environment variable on every call.
type Env string

// Token implements TokenSource.
func (e Env) Token() (string, error) {
	tok := strings.TrimSpace(os.Getenv(string(e)))
	if tok == "" {
		return "", ErrNoToken
	}
	return tok, nil
}

// File reads a token file on every call so an external refresher can rotate
// it in place.
type File string

// Token implements TokenSource.
func (f File) Token() (string, error) {
	data, err := os.ReadFile(string(f))
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNoToken
	}
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}

	tok := strings.TrimSpace(string(data))
	if tok == "" {
		return "", ErrNoToken
	}
	return tok, nil
}

// chain tries sources in order.
type chain []TokenSource

// Chain returns a source that yields the first token found. A source failing
// with anything other than ErrNoToken stops the search.
func Chain(sources ...TokenSource) TokenSource {
	return chain(sources)
}

// Token implements TokenSource.
func (c chain) Token() (string, error) {
	for _, src := range c {
		tok, err := src.Token()
		switch {
		case err == nil:
			return tok, nil
		case errors.Is(err, ErrNoToken):
			continue
		default:
			return "", err
		}
	}
	return "", ErrNoToken
}

// optional turns ErrNoToken into an empty token, so the endpoint is built
// without credentials instead of failing.
type optional struct {
	src TokenSource
}

// Token implements TokenSource.
func (o optional) Token() (string, error) {
	tok, err := o.src.Token()
	if errors.Is(err, ErrNoToken) {
		return "", nil
	}
	return tok, err
}

// FromConfig builds the source described by cfg. Precedence: file, env,
// inline token. A missing token yields "" rather than an error.
func FromConfig(cfg config.AuthConfig) TokenSource {
	var sources []TokenSource
	if cfg.TokenFile != "" {
		sources = append(sources, File(cfg.TokenFile))
	}
	if cfg.TokenEnv != "" {
		sources = append(sources, Env(cfg.TokenEnv))
	}
	if cfg.Token != "" {
		sources = append(sources, Static(cfg.Token))
	}

	return optional{src: Chain(sources...)}
}
