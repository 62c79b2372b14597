// Copyright 2024-2026 Aiku AI

// Package config loads the mcrelay YAML configuration.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	up "go.mau.fi/util/configupgrade"
	"gopkg.in/yaml.v3"

	"github.com/aiku/mcrelay/pkg/relay"
)

//go:embed example-config.yaml
var ExampleConfig string

// Config is the full application configuration.
type Config struct {
	Relay      relay.Config     `yaml:"relay"`
	Discord    DiscordConfig    `yaml:"discord"`
	Mattermost MattermostConfig `yaml:"mattermost"`
	Game       GameConfig       `yaml:"game"`
	Storage    StorageConfig    `yaml:"storage"`
	Admin      AdminConfig      `yaml:"admin"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type DiscordConfig struct {
	Token      string   `yaml:"token"`
	ChannelIDs []string `yaml:"channel_ids"`
}

// Enabled reports whether a real bot token is configured.
func (c *DiscordConfig) Enabled() bool {
	return !relay.IsPlaceholder(c.Token)
}

type MattermostConfig struct {
	ServerURL  string   `yaml:"server_url" validate:"omitempty,url"`
	Token      string   `yaml:"token"`
	ChannelIDs []string `yaml:"channel_ids"`
}

// Enabled reports whether both a server URL and a real token are configured.
func (c *MattermostConfig) Enabled() bool {
	return c.ServerURL != "" && !relay.IsPlaceholder(c.Token)
}

type GameConfig struct {
	LogPath      string `yaml:"log_path"`
	RCONAddress  string `yaml:"rcon_address" validate:"omitempty,hostname_port"`
	RCONPassword string `yaml:"rcon_password"`
}

// RCONEnabled reports whether RCON broadcasting can be used.
func (c *GameConfig) RCONEnabled() bool {
	return c.RCONAddress != "" && !relay.IsPlaceholder(c.RCONPassword)
}

type StorageConfig struct {
	// Path is the SQLite database holding player preferences and account
	// links. Empty disables both.
	Path string `yaml:"path"`
}

type AdminConfig struct {
	ListenAddr string `yaml:"listen_addr" validate:"omitempty,hostname_port"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=trace debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json console"`
}

// envOverrides are secrets that may be supplied through the environment
// instead of the config file. Empty values leave the file value in place.
type envOverrides struct {
	DiscordToken    string `envconfig:"MCRELAY_DISCORD_TOKEN"`
	ChatWebhookURL  string `envconfig:"MCRELAY_CHAT_WEBHOOK_URL"`
	EventWebhookURL string `envconfig:"MCRELAY_EVENT_WEBHOOK_URL"`
	MattermostToken string `envconfig:"MCRELAY_MATTERMOST_TOKEN"`
	RCONPassword    string `envconfig:"MCRELAY_RCON_PASSWORD"`
}

func upgradeConfig(helper up.Helper) {
	helper.Copy(up.Str, "relay", "server_prefix")
	helper.Copy(up.Str, "relay", "server_name")
	helper.Copy(up.Str, "relay", "chat_webhook_url")
	helper.Copy(up.Str, "relay", "event_webhook_url")
	helper.Copy(up.Str|up.Int, "relay", "chat_webhook_id")
	helper.Copy(up.Str|up.Int, "relay", "event_webhook_id")
	helper.Copy(up.Int, "relay", "queue_capacity")
	helper.Copy(up.Int, "relay", "message_delay_ms")
	helper.Copy(up.Bool, "relay", "ignore_bots")
	helper.Copy(up.Bool, "relay", "ignore_other_webhooks")
	helper.Copy(up.Bool, "relay", "filter_by_prefix")
	helper.Copy(up.Bool, "relay", "events", "join")
	helper.Copy(up.Bool, "relay", "events", "leave")
	helper.Copy(up.Bool, "relay", "events", "death")
	helper.Copy(up.Bool, "relay", "events", "advancement")
	helper.Copy(up.Str, "relay", "formats", "webhook_username")
	helper.Copy(up.Str, "relay", "formats", "event_username")
	helper.Copy(up.Str, "relay", "formats", "avatar_url")
	helper.Copy(up.Str, "relay", "formats", "outbound_chat")
	helper.Copy(up.Str, "relay", "formats", "inbound_chat")
	helper.Copy(up.Str, "relay", "formats", "inbound_linked_chat")
	helper.Copy(up.Str, "relay", "formats", "inbound_event")

	helper.Copy(up.Str, "discord", "token")
	helper.Copy(up.List, "discord", "channel_ids")

	helper.Copy(up.Str, "mattermost", "server_url")
	helper.Copy(up.Str, "mattermost", "token")
	helper.Copy(up.List, "mattermost", "channel_ids")

	helper.Copy(up.Str, "game", "log_path")
	helper.Copy(up.Str, "game", "rcon_address")
	helper.Copy(up.Str, "game", "rcon_password")

	helper.Copy(up.Str, "storage", "path")
	helper.Copy(up.Str, "admin", "listen_addr")
	helper.Copy(up.Str, "logging", "level")
	helper.Copy(up.Str, "logging", "format")
}

// Upgrader merges a user config onto the embedded example so keys missing
// from the user file take their default values.
var Upgrader = &up.StructUpgrader{
	SimpleUpgrader: up.SimpleUpgrader(upgradeConfig),
	Blocks: [][]string{
		{"discord"},
		{"mattermost"},
		{"game"},
		{"storage"},
		{"admin"},
		{"logging"},
	},
	Base: ExampleConfig,
}

var validate = validator.New()

// Load reads the config at path, fills in defaults from the example config,
// applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	merged, _, err := up.Do(path, false, Upgrader)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(merged)
}

// Parse decodes an already merged YAML document. Relay keys missing from the
// document keep the relay package defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Config{Relay: relay.DefaultConfig()}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Relay = cfg.Relay.WithDefaults()
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return fmt.Errorf("failed to read environment overrides: %w", err)
	}
	override := func(dst *string, val string) {
		if val = strings.TrimSpace(val); val != "" {
			*dst = val
		}
	}
	override(&c.Discord.Token, env.DiscordToken)
	override(&c.Relay.ChatWebhookURL, env.ChatWebhookURL)
	override(&c.Relay.EventWebhookURL, env.EventWebhookURL)
	override(&c.Mattermost.Token, env.MattermostToken)
	override(&c.Game.RCONPassword, env.RCONPassword)
	return nil
}

// Validate checks field constraints and returns a readable error listing
// every violation.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("failed to validate config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// Warnings lists features disabled because of placeholder or missing values.
func (c *Config) Warnings() []string {
	var out []string
	if !c.Discord.Enabled() {
		out = append(out, "discord.token is not set, Discord gateway disabled")
	}
	if relay.IsPlaceholder(c.Relay.ChatWebhookURL) {
		out = append(out, "relay.chat_webhook_url is not set, game chat will not be relayed")
	}
	if c.Mattermost.ServerURL != "" && relay.IsPlaceholder(c.Mattermost.Token) {
		out = append(out, "mattermost.token is not set, Mattermost gateway disabled")
	}
	if !c.Game.RCONEnabled() {
		out = append(out, "game.rcon_password is not set, inbound messages cannot reach players")
	}
	if c.Game.LogPath == "" {
		out = append(out, "game.log_path is not set, game events will not be read")
	}
	return out
}
