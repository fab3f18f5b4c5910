package server

import (
	"net/http"
	"net/url"
	"strings"
)

// originMatcher holds the allowed origins in go-chi/cors form: exact origins,
// or patterns with a single "*" wildcard, compared case-insensitively.
// An empty list or a "*" entry allows every origin.
type originMatcher struct {
	all      bool
	exact    []string
	wildcard [][2]string
}

func newOriginMatcher(allowed []string) originMatcher {
	m := originMatcher{all: len(allowed) == 0}
	for _, o := range allowed {
		o = strings.ToLower(strings.TrimSpace(o))
		if o == "*" {
			return originMatcher{all: true}
		}
		if i := strings.IndexByte(o, '*'); i >= 0 {
			m.wildcard = append(m.wildcard, [2]string{o[:i], o[i+1:]})
		} else {
			m.exact = append(m.exact, o)
		}
	}
	return m
}

func (m originMatcher) allowed(origin string) bool {
	if m.all {
		return true
	}
	origin = strings.ToLower(origin)
	for _, o := range m.exact {
		if o == origin {
			return true
		}
	}
	for _, w := range m.wildcard {
		if len(origin) >= len(w[0])+len(w[1]) && strings.HasPrefix(origin, w[0]) && strings.HasSuffix(origin, w[1]) {
			return true
		}
	}
	return false
}

// allowOrigin is the cors.Options.AllowOriginFunc for the HTTP API.
func (s *Server) allowOrigin(_ *http.Request, origin string) bool {
	return s.origins.allowed(origin)
}

// checkOrigin guards the WebSocket upgrade, which CORS does not cover.
// Requests without an Origin header come from non-browser clients; a
// same-host origin is always accepted.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if u, err := url.Parse(origin); err == nil && strings.EqualFold(u.Host, r.Host) {
		return true
	}
	return s.origins.allowed(origin)
}
