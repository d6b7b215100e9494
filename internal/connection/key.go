package connection

import (
	"net/url"
	"sort"
	"strings"
)

// Key returns the canonical identifier of a (channel, params) pair:
// "channel" when params is empty, otherwise "channel:k1=v1&k2=v2" with
// pairs sorted by name. Names and values are query-escaped so a value
// containing '&' or '=' cannot collide with another parameter set.
func Key(channel string, params Params) string {
	if len(params) == 0 {
		return channel
	}

	names := make([]string, 0, len(params))
	for k := range params {
		names = append(names, k)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(channel)
	b.WriteByte(':')
	for i, k := range names {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(params[k]))
	}
	return b.String()
}

// clone copies params so callers cannot mutate a tracked set.
func (p Params) clone() Params {
	if p == nil {
		return nil
	}
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
