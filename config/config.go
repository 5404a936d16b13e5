// Package config loads refresher settings from request-scoped overrides and
// environment variables and provides a typed, immutable Config passed
// explicitly into every component. Loading has no side effects; in particular
// nothing here touches the network.
package config

import (
	"fmt"
	"os"
	"strings"
)

// Environment keys. Request overrides use the same names lower-cased.
const (
	KeyAliasList  = "SERVER_ALIAS_LIST"
	KeyURLList    = "SERVER_URL_LIST"
	KeyNameList   = "LIVE_NAME_LIST"
	KeyToken      = "SERVER_TOKEN"
	KeyWebhookKey = "WECHAT_WEBHOOK_KEY"
	KeyAuthScheme = "SERVER_AUTH_SCHEME"
)

// AuthScheme selects how the shared token is sent to upstream servers. The
// deployed servers historically expected two different conventions, so this
// is configuration rather than a constant.
type AuthScheme string

const (
	// SchemeToken sends the secret in a bare "Token" header.
	SchemeToken AuthScheme = "token"
	// SchemeBearer sends "Authorization: Bearer <secret>".
	SchemeBearer AuthScheme = "bearer"
)

// Error reports bad or missing configuration, naming the offending key. It is
// fatal: the run aborts before any network call is made.
type Error struct {
	Key    string
	Reason string
}

func (e *Error) Error() string { return fmt.Sprintf("config: %s: %s", e.Key, e.Reason) }

// Server identifies one upstream live-admin server.
type Server struct {
	Alias string
	URL   string
}

// Config is the validated configuration for one run.
type Config struct {
	Servers    []Server
	Names      []string // raw name entries; each may hold |-separated alternatives
	Token      string
	WebhookKey string
	AuthScheme AuthScheme
}

// Load builds a Config. Each key is resolved from overrides first (lower-cased
// key name), then the environment. List values are comma-separated; entries
// are trimmed and empty ones dropped. Alias and URL lists pair positionally
// and must have equal length.
func Load(overrides map[string]string) (*Config, error) {
	get := func(key string) string {
		if v, ok := overrides[strings.ToLower(key)]; ok && v != "" {
			return v
		}
		return os.Getenv(key)
	}

	aliases := splitList(get(KeyAliasList))
	urls := splitList(get(KeyURLList))
	names := splitList(get(KeyNameList))

	if len(aliases) == 0 {
		return nil, &Error{Key: KeyAliasList, Reason: "no server aliases configured"}
	}
	if len(urls) == 0 {
		return nil, &Error{Key: KeyURLList, Reason: "no server urls configured"}
	}
	if len(aliases) != len(urls) {
		return nil, &Error{Key: KeyURLList, Reason: fmt.Sprintf("alias/url count mismatch: %d aliases, %d urls", len(aliases), len(urls))}
	}
	if len(names) == 0 {
		return nil, &Error{Key: KeyNameList, Reason: "no live room names configured"}
	}

	token := strings.TrimSpace(get(KeyToken))
	if token == "" {
		return nil, &Error{Key: KeyToken, Reason: "server token empty"}
	}
	webhookKey := strings.TrimSpace(get(KeyWebhookKey))
	if webhookKey == "" {
		return nil, &Error{Key: KeyWebhookKey, Reason: "webhook key empty"}
	}

	scheme := SchemeToken
	switch s := strings.ToLower(strings.TrimSpace(get(KeyAuthScheme))); s {
	case "", string(SchemeToken):
	case string(SchemeBearer):
		scheme = SchemeBearer
	default:
		return nil, &Error{Key: KeyAuthScheme, Reason: fmt.Sprintf("unknown auth scheme %q (want token or bearer)", s)}
	}

	servers := make([]Server, len(aliases))
	for i := range aliases {
		servers[i] = Server{Alias: aliases[i], URL: urls[i]}
	}

	return &Config{
		Servers:    servers,
		Names:      names,
		Token:      token,
		WebhookKey: webhookKey,
		AuthScheme: scheme,
	}, nil
}

// splitList splits a comma-separated value, trimming entries and dropping
// empty ones.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
