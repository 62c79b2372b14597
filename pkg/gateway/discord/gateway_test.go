// Copyright 2024-2026 Aiku AI

package discord

import (
	"context"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiku/mcrelay/pkg/relay"
)

type nopHandler struct{}

func (nopHandler) HandleInbound(context.Context, relay.InboundEnvelope) {}

func newTestGateway(channels ...string) *Gateway {
	return New(zerolog.Nop(), "token", channels, nopHandler{})
}

func TestToEnvelope_PlainMessage(t *testing.T) {
	t.Parallel()
	g := newTestGateway("chan-1")
	env, ok := g.toEnvelope(&discordgo.Message{
		ChannelID: "chan-1",
		Content:   "hello",
		Author:    &discordgo.User{ID: "u1", Username: "alice_99", GlobalName: "Alice"},
		Member:    &discordgo.Member{Nick: "Ali"},
	}, "bot-self")
	require.True(t, ok)
	assert.Equal(t, relay.InboundEnvelope{
		Source:            Source,
		ChannelID:         "chan-1",
		AuthorDisplayName: "Ali",
		AuthorID:          "u1",
		Text:              "hello",
	}, env)
}

func TestToEnvelope_DisplayNameFallbacks(t *testing.T) {
	t.Parallel()
	g := newTestGateway()

	env, ok := g.toEnvelope(&discordgo.Message{
		Author: &discordgo.User{ID: "u1", Username: "alice_99", GlobalName: "Alice"},
		Member: &discordgo.Member{},
	}, "")
	require.True(t, ok)
	assert.Equal(t, "Alice", env.AuthorDisplayName)

	env, ok = g.toEnvelope(&discordgo.Message{
		Author: &discordgo.User{ID: "u1", Username: "alice_99"},
	}, "")
	require.True(t, ok)
	assert.Equal(t, "alice_99", env.AuthorDisplayName)
}

func TestToEnvelope_ChannelFilter(t *testing.T) {
	t.Parallel()
	g := newTestGateway("chan-1", "chan-2")
	_, ok := g.toEnvelope(&discordgo.Message{ChannelID: "chan-3", Author: &discordgo.User{ID: "u1"}}, "")
	assert.False(t, ok)
	_, ok = g.toEnvelope(&discordgo.Message{ChannelID: "chan-2", Author: &discordgo.User{ID: "u1"}}, "")
	assert.True(t, ok)
}

func TestToEnvelope_SkipsSystemMessages(t *testing.T) {
	t.Parallel()
	g := newTestGateway()
	_, ok := g.toEnvelope(&discordgo.Message{Type: discordgo.MessageTypeGuildMemberJoin, Author: &discordgo.User{ID: "u1"}}, "")
	assert.False(t, ok)
	_, ok = g.toEnvelope(&discordgo.Message{Type: discordgo.MessageTypeReply, Author: &discordgo.User{ID: "u1"}}, "")
	assert.True(t, ok)
	_, ok = g.toEnvelope(&discordgo.Message{}, "")
	assert.False(t, ok, "messages without an author are skipped")
	_, ok = g.toEnvelope(nil, "")
	assert.False(t, ok)
}

func TestToEnvelope_WebhookAndSelf(t *testing.T) {
	t.Parallel()
	g := newTestGateway()

	env, ok := g.toEnvelope(&discordgo.Message{
		WebhookID: "987",
		Author:    &discordgo.User{ID: "987", Username: "[SMP] Steve", Bot: true},
		Embeds: []*discordgo.MessageEmbed{
			nil,
			{
				Title:  "Player Joined",
				Footer: &discordgo.MessageEmbedFooter{Text: "MCRelay · Join"},
				Fields: []*discordgo.MessageEmbedField{{Name: "Player", Value: "Steve", Inline: true}},
			},
		},
	}, "bot-self")
	require.True(t, ok)
	assert.True(t, env.IsWebhook)
	assert.True(t, env.IsBot)
	assert.False(t, env.IsSelf)
	assert.Equal(t, "987", env.AuthorID)
	require.Len(t, env.Embeds, 1)
	assert.Equal(t, "MCRelay · Join", env.Embeds[0].FooterText)
	assert.Equal(t, []relay.EmbedField{{Name: "Player", Value: "Steve", Inline: true}}, env.Embeds[0].Fields)

	env, ok = g.toEnvelope(&discordgo.Message{Author: &discordgo.User{ID: "bot-self", Bot: true}}, "bot-self")
	require.True(t, ok)
	assert.True(t, env.IsSelf)
}
