// Copyright 2024-2026 Aiku AI

package relay

import (
	"net/url"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// WebhookIdentity holds the IDs of our own webhooks. An empty field means the
// ID could not be resolved and loop protection for that channel is degraded.
type WebhookIdentity struct {
	ChatID  string
	EventID string
}

// Matches reports whether authorID is one of our own webhooks.
func (w WebhookIdentity) Matches(authorID string) bool {
	if authorID == "" {
		return false
	}
	return authorID == w.ChatID || authorID == w.EventID
}

// ResolveWebhookID extracts the webhook ID from an endpoint URL of the form
// .../webhooks/<id>/<token>. An override is returned as-is. Empty and
// placeholder values resolve to nothing.
func ResolveWebhookID(log zerolog.Logger, endpoint, override string) (string, bool) {
	if !IsPlaceholder(override) {
		return strings.TrimSpace(override), true
	}
	if IsPlaceholder(endpoint) {
		return "", false
	}
	endpoint = strings.TrimSpace(endpoint)
	u, err := url.Parse(endpoint)
	if err != nil {
		log.Warn().Err(err).Msg("Malformed webhook URL, loop protection degraded")
		return "", false
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i, seg := range segments {
		if seg == "webhooks" && i+1 < len(segments) && segments[i+1] != "" {
			return segments[i+1], true
		}
	}
	log.Warn().Str("host", u.Host).Msg("Webhook URL has no webhooks/<id> segment, loop protection degraded")
	return "", false
}

// ResolveIdentity resolves both configured webhooks. The event webhook falls
// back to the chat webhook when it is not configured.
func ResolveIdentity(log zerolog.Logger, cfg *Config) WebhookIdentity {
	var ident WebhookIdentity
	ident.ChatID, _ = ResolveWebhookID(log.With().Str("webhook", "chat").Logger(), cfg.ChatWebhookURL, cfg.ChatWebhookID)
	ident.EventID, _ = ResolveWebhookID(log.With().Str("webhook", "event").Logger(), cfg.EventWebhookURL, cfg.EventWebhookID)
	if ident.EventID == "" && IsPlaceholder(cfg.EventWebhookURL) && IsPlaceholder(cfg.EventWebhookID) {
		ident.EventID = ident.ChatID
	}
	return ident
}

// IdentityCache stores the resolved WebhookIdentity. It is replaced wholesale
// on reload and read on every inbound message.
type IdentityCache struct {
	mu    sync.RWMutex
	ident WebhookIdentity
}

// Get returns the current identity.
func (c *IdentityCache) Get() WebhookIdentity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ident
}

// Set replaces the current identity.
func (c *IdentityCache) Set(ident WebhookIdentity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ident = ident
}
