// Copyright 2024-2026 Aiku AI

package relay

import (
	"strings"
	"time"
)

const (
	DefaultQueueCapacity = 100
	DefaultMessageDelay  = 1000 * time.Millisecond
)

// Config holds the relay core tunables. It is loaded as the "relay" block of
// the application config and may be swapped at runtime with Relay.Reload.
type Config struct {
	// ServerPrefix identifies this relay instance in webhook usernames, for
	// example "[SMP]". Peers with FilterByPrefix enabled use it to drop
	// same-prefix duplicates.
	ServerPrefix string `yaml:"server_prefix"`
	ServerName   string `yaml:"server_name"`

	ChatWebhookURL  string `yaml:"chat_webhook_url"`
	EventWebhookURL string `yaml:"event_webhook_url"`
	// ChatWebhookID and EventWebhookID override the IDs parsed from the URLs.
	ChatWebhookID  string `yaml:"chat_webhook_id"`
	EventWebhookID string `yaml:"event_webhook_id"`

	QueueCapacity int `yaml:"queue_capacity" validate:"min=1,max=10000"`
	// MessageDelayMS is the pause after each delivered message. 0 means no
	// delay; DefaultConfig and the example config file use 1000.
	MessageDelayMS int `yaml:"message_delay_ms" validate:"min=0,max=60000"`

	IgnoreBots          bool `yaml:"ignore_bots"`
	IgnoreOtherWebhooks bool `yaml:"ignore_other_webhooks"`
	FilterByPrefix      bool `yaml:"filter_by_prefix"`

	Events  EventToggles `yaml:"events"`
	Formats FormatConfig `yaml:"formats"`
}

// EventToggles selects which game events are posted to the chat platform.
type EventToggles struct {
	Join        bool `yaml:"join"`
	Leave       bool `yaml:"leave"`
	Death       bool `yaml:"death"`
	Advancement bool `yaml:"advancement"`
}

// FormatConfig holds the placeholder templates. Supported placeholders are
// {username}, {message}, {prefix}, {uuid}, {server} and, for inbound events,
// {author}.
type FormatConfig struct {
	WebhookUsername   string `yaml:"webhook_username"`
	EventUsername     string `yaml:"event_username"`
	AvatarURL         string `yaml:"avatar_url"`
	OutboundChat      string `yaml:"outbound_chat"`
	InboundChat       string `yaml:"inbound_chat"`
	InboundLinkedChat string `yaml:"inbound_linked_chat"`
	InboundEvent      string `yaml:"inbound_event"`
}

// DefaultConfig returns a Config carrying the default queue capacity and
// message delay, for callers that build the config in code.
func DefaultConfig() Config {
	return Config{
		QueueCapacity:  DefaultQueueCapacity,
		MessageDelayMS: int(DefaultMessageDelay / time.Millisecond),
	}.WithDefaults()
}

// WithDefaults returns a copy with zero values replaced by defaults. A zero
// MessageDelayMS is kept since it selects no delay; only a negative one is
// replaced.
func (c Config) WithDefaults() Config {
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = DefaultQueueCapacity
	}
	if c.MessageDelayMS < 0 {
		c.MessageDelayMS = int(DefaultMessageDelay / time.Millisecond)
	}
	if c.ServerName == "" {
		c.ServerName = "Server"
	}
	f := &c.Formats
	if f.WebhookUsername == "" {
		f.WebhookUsername = "{prefix} {username}"
	}
	if f.EventUsername == "" {
		f.EventUsername = "{prefix} {server}"
	}
	if f.OutboundChat == "" {
		f.OutboundChat = "{message}"
	}
	if f.InboundChat == "" {
		f.InboundChat = "[Discord] <{username}> {message}"
	}
	if f.InboundLinkedChat == "" {
		f.InboundLinkedChat = f.InboundChat
	}
	if f.InboundEvent == "" {
		f.InboundEvent = "[{author}] {message}"
	}
	return c
}

// MessageDelay returns the configured inter-message delay.
func (c *Config) MessageDelay() time.Duration {
	return time.Duration(c.MessageDelayMS) * time.Millisecond
}

// ChatEndpoint returns the chat webhook URL, or "" if it is unset or a placeholder.
func (c *Config) ChatEndpoint() string {
	if IsPlaceholder(c.ChatWebhookURL) {
		return ""
	}
	return c.ChatWebhookURL
}

// EventEndpoint returns the event webhook URL, falling back to the chat
// webhook when no separate event webhook is configured.
func (c *Config) EventEndpoint() string {
	if !IsPlaceholder(c.EventWebhookURL) {
		return c.EventWebhookURL
	}
	return c.ChatEndpoint()
}

var placeholderMarkers = []string{"replace_me", "your-", "your_", "changeme", "<"}

// IsPlaceholder reports whether a credential or endpoint value is empty or
// still holds a template placeholder.
func IsPlaceholder(value string) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return true
	}
	lower := strings.ToLower(value)
	for _, marker := range placeholderMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
