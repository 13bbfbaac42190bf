package server

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// OriginPolicy decides which browser origins may open a websocket.
type OriginPolicy struct {
	log      *slog.Logger
	allowAll bool
	allowed  map[string]struct{}
}

// NewOriginPolicy normalizes the configured origins. "*" allows every origin.
func NewOriginPolicy(log *slog.Logger, origins []string) *OriginPolicy {
	policy := &OriginPolicy{log: log, allowed: make(map[string]struct{})}
	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		if trimmed == "*" {
			policy.allowAll = true
			continue
		}
		normalized, ok := normalizeOrigin(trimmed)
		if !ok {
			log.Warn("Ignoring invalid origin in configuration", "origin", origin)
			continue
		}
		policy.allowed[normalized] = struct{}{}
	}
	return policy
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil {
		return "", false
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}

// Check is used as the upgrader CheckOrigin.
// Requests without an Origin header come from non-browser clients and are let
// through, authentication still applies to them.
func (p *OriginPolicy) Check(r *http.Request) bool {
	originHeader := r.Header.Get("Origin")
	if originHeader == "" || p.allowAll {
		return true
	}
	normalized, ok := normalizeOrigin(originHeader)
	if ok {
		if _, exists := p.allowed[normalized]; exists {
			return true
		}
	}
	p.log.Warn("Blocked websocket connection from disallowed origin", "origin", originHeader)
	return false
}

// Origins returns the allow-list for the CORS middleware.
func (p *OriginPolicy) Origins() []string {
	if p.allowAll {
		return []string{"*"}
	}
	origins := make([]string, 0, len(p.allowed))
	for origin := range p.allowed {
		origins = append(origins, origin)
	}
	return origins
}
