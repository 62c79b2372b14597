// Copyright 2024-2026 Aiku AI

// Package discord receives chat from Discord channels through a bot session
// and hands it to the relay.
package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/aiku/mcrelay/pkg/relay"
)

// Source is the InboundEnvelope.Source of Discord messages.
const Source = "discord"

// Gateway is a Discord bot session relaying messages from a fixed set of
// channels. Outbound traffic goes through webhooks, not this session.
type Gateway struct {
	log      zerolog.Logger
	token    string
	channels map[string]struct{}
	handler  relay.InboundHandler
}

// New creates a gateway. An empty channelIDs relays every channel the bot
// can read.
func New(log zerolog.Logger, token string, channelIDs []string, handler relay.InboundHandler) *Gateway {
	channels := make(map[string]struct{}, len(channelIDs))
	for _, id := range channelIDs {
		channels[id] = struct{}{}
	}
	return &Gateway{
		log:      log.With().Str("component", "discord").Logger(),
		token:    token,
		channels: channels,
		handler:  handler,
	}
}

// Run opens the session and blocks until ctx is cancelled.
func (g *Gateway) Run(ctx context.Context) error {
	session, err := discordgo.New("Bot " + g.token)
	if err != nil {
		return fmt.Errorf("discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsMessageContent

	session.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		g.log.Info().Str("user", r.User.Username).Int("guilds", len(r.Guilds)).Msg("Discord session ready")
	})
	session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		var selfID string
		if s.State != nil && s.State.User != nil {
			selfID = s.State.User.ID
		}
		env, ok := g.toEnvelope(m.Message, selfID)
		if !ok {
			return
		}
		g.handler.HandleInbound(ctx, env)
	})

	if err = session.Open(); err != nil {
		return fmt.Errorf("discord connect: %w", err)
	}
	<-ctx.Done()
	g.log.Info().Msg("Disconnecting from Discord")
	return session.Close()
}

// toEnvelope converts a message from a relayed channel. Messages from other
// channels and non-chat message types are skipped.
func (g *Gateway) toEnvelope(m *discordgo.Message, selfID string) (relay.InboundEnvelope, bool) {
	if m == nil || m.Author == nil {
		return relay.InboundEnvelope{}, false
	}
	if len(g.channels) > 0 {
		if _, ok := g.channels[m.ChannelID]; !ok {
			return relay.InboundEnvelope{}, false
		}
	}
	if m.Type != discordgo.MessageTypeDefault && m.Type != discordgo.MessageTypeReply {
		return relay.InboundEnvelope{}, false
	}

	env := relay.InboundEnvelope{
		Source:            Source,
		ChannelID:         m.ChannelID,
		AuthorDisplayName: displayName(m),
		AuthorID:          m.Author.ID,
		IsBot:             m.Author.Bot,
		IsWebhook:         m.WebhookID != "",
		IsSelf:            selfID != "" && m.Author.ID == selfID,
		Text:              m.Content,
	}
	// Webhook messages carry the webhook ID as the author ID.
	if env.IsWebhook {
		env.AuthorID = m.WebhookID
	}
	for _, e := range m.Embeds {
		if e != nil {
			env.Embeds = append(env.Embeds, relay.FromDiscordEmbed(e))
		}
	}
	return env, true
}

// displayName prefers the guild nickname, then the global display name.
func displayName(m *discordgo.Message) string {
	if m.Member != nil && m.Member.Nick != "" {
		return m.Member.Nick
	}
	if m.Author.GlobalName != "" {
		return m.Author.GlobalName
	}
	return m.Author.Username
}
