// Copyright 2024-2026 Aiku AI

package mattermost

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiku/mcrelay/pkg/relay"
)

type recordingHandler struct {
	mu   sync.Mutex
	envs []relay.InboundEnvelope
}

func (h *recordingHandler) HandleInbound(_ context.Context, env relay.InboundEnvelope) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.envs = append(h.envs, env)
}

func (h *recordingHandler) Envelopes() []relay.InboundEnvelope {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]relay.InboundEnvelope(nil), h.envs...)
}

// newWebSocketEvent creates a model.WebSocketEvent for testing handlers.
func newWebSocketEvent(eventType model.WebsocketEventType, channelID string, data map[string]any) *model.WebSocketEvent {
	evt := model.NewWebSocketEvent(eventType, "", channelID, "", nil, "")
	return evt.SetData(data)
}

func postedEvent(t *testing.T, post *model.Post, senderName string) *model.WebSocketEvent {
	t.Helper()
	data, err := json.Marshal(post)
	require.NoError(t, err)
	return newWebSocketEvent(model.WebsocketEventPosted, post.ChannelId, map[string]any{
		"post":        string(data),
		"sender_name": senderName,
	})
}

func newTestGateway(h relay.InboundHandler, channels ...string) *Gateway {
	g := New(zerolog.Nop(), "http://mm.example.com/", "token", channels, h)
	g.setUserID("self-user")
	return g
}

func TestHandleEvent_PlainPost(t *testing.T) {
	t.Parallel()
	h := &recordingHandler{}
	g := newTestGateway(h, "town-square")

	g.handleEvent(context.Background(), postedEvent(t, &model.Post{
		Id: "p1", ChannelId: "town-square", UserId: "u1", Message: "hello",
	}, "@alice"))

	require.Len(t, h.Envelopes(), 1)
	assert.Equal(t, relay.InboundEnvelope{
		Source:            Source,
		ChannelID:         "town-square",
		AuthorDisplayName: "alice",
		AuthorID:          "u1",
		Text:              "hello",
	}, h.Envelopes()[0])
}

func TestHandleEvent_Skips(t *testing.T) {
	t.Parallel()
	h := &recordingHandler{}
	g := newTestGateway(h, "town-square")
	ctx := context.Background()

	g.handleEvent(ctx, postedEvent(t, &model.Post{ChannelId: "off-topic", UserId: "u1", Message: "x"}, "@alice"))
	g.handleEvent(ctx, postedEvent(t, &model.Post{ChannelId: "town-square", UserId: "u1", Type: model.PostTypeJoinChannel}, "@alice"))
	g.handleEvent(ctx, newWebSocketEvent(model.WebsocketEventTyping, "town-square", map[string]any{}))
	g.handleEvent(ctx, newWebSocketEvent(model.WebsocketEventPosted, "town-square", map[string]any{"post": "{not json"}))
	g.handleEvent(ctx, newWebSocketEvent(model.WebsocketEventPosted, "town-square", map[string]any{}))

	assert.Empty(t, h.Envelopes())
}

func TestHandleEvent_SelfBotAndWebhook(t *testing.T) {
	t.Parallel()
	h := &recordingHandler{}
	g := newTestGateway(h)
	ctx := context.Background()

	g.handleEvent(ctx, postedEvent(t, &model.Post{ChannelId: "c", UserId: "self-user", Message: "mine"}, "@relaybot"))

	botPost := &model.Post{ChannelId: "c", UserId: "bot-1", Message: "beep"}
	botPost.AddProp(model.PostPropsFromBot, "true")
	g.handleEvent(ctx, postedEvent(t, botPost, "@robot"))

	hookPost := &model.Post{ChannelId: "c", UserId: "hook-owner", Message: "relayed"}
	hookPost.AddProp(model.PostPropsFromWebhook, "true")
	hookPost.AddProp(model.PostPropsOverrideUsername, "[Creative] Steve")
	g.handleEvent(ctx, postedEvent(t, hookPost, "@hook-owner"))

	envs := h.Envelopes()
	require.Len(t, envs, 3)
	assert.True(t, envs[0].IsSelf)
	assert.True(t, envs[1].IsBot)
	assert.False(t, envs[1].IsWebhook)
	assert.True(t, envs[2].IsWebhook)
	assert.Equal(t, "[Creative] Steve", envs[2].AuthorDisplayName)
	assert.Equal(t, "hook-owner", envs[2].AuthorID)
}

func TestHandleEvent_AttachmentsBecomeEmbeds(t *testing.T) {
	t.Parallel()
	h := &recordingHandler{}
	g := newTestGateway(h)

	post := &model.Post{ChannelId: "c", UserId: "hook-owner"}
	post.AddProp(model.PostPropsFromWebhook, "true")
	post.AddProp("attachments", []*model.SlackAttachment{{
		Title:  "Player Joined",
		Text:   "Steve joined the server",
		Color:  "#55FF55",
		Footer: "MCRelay · Join",
		Fields: []*model.SlackAttachmentField{{Title: "Player", Value: "Steve", Short: true}},
	}})
	g.handleEvent(context.Background(), postedEvent(t, post, "@hook-owner"))

	envs := h.Envelopes()
	require.Len(t, envs, 1)
	require.Len(t, envs[0].Embeds, 1)
	assert.Equal(t, relay.Embed{
		Title:       "Player Joined",
		Description: "Steve joined the server",
		Color:       0x55FF55,
		FooterText:  "MCRelay · Join",
		Fields:      []relay.EmbedField{{Name: "Player", Value: "Steve", Inline: true}},
	}, envs[0].Embeds[0])
}

func TestHandleEvent_RelayWebhookPostClassifies(t *testing.T) {
	t.Parallel()
	h := &recordingHandler{}
	g := newTestGateway(h)

	req := relay.MattermostPayload(&relay.OutboundMessage{
		Username: "[Creative] Server",
		Embeds: []relay.Embed{{
			Title:       "Player Joined",
			Description: "Alex joined the server",
			Color:       relay.ColorJoin,
			FooterText:  "MCRelay · Join",
			Fields:      []relay.EmbedField{{Name: "Player", Value: "Alex", Inline: true}},
		}},
	})
	post := &model.Post{ChannelId: "c", UserId: "peer-hook-owner", Message: req.Text}
	post.AddProp(model.PostPropsFromWebhook, "true")
	post.AddProp(model.PostPropsOverrideUsername, req.Username)
	post.AddProp("attachments", req.Attachments)
	g.handleEvent(context.Background(), postedEvent(t, post, "@peer-hook-owner"))

	envs := h.Envelopes()
	require.Len(t, envs, 1)
	assert.Equal(t, "[Creative] Server", envs[0].AuthorDisplayName)
	p := relay.Classify(envs[0])
	require.Equal(t, relay.PayloadLifecycle, p.Kind)
	require.NotNil(t, p.Event)
	assert.Equal(t, relay.EventData{Player: "Alex", Kind: relay.EventJoin}, *p.Event)
}

func TestParseColor(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 0xAA00AA, parseColor("#aa00aa"))
	assert.Equal(t, 0xFFAA00, parseColor("FFAA00"))
	assert.Equal(t, 0, parseColor("good"))
	assert.Equal(t, 0, parseColor("#zzzzzz"))
	assert.Equal(t, 0, parseColor(""))
}

func TestHTTPToWS(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "wss://mm.example.com", httpToWS("https://mm.example.com"))
	assert.Equal(t, "ws://localhost:8065", httpToWS("http://localhost:8065"))
	assert.Equal(t, "mm.example.com", httpToWS("mm.example.com"))
}

func TestRun_AuthFailure(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "api.context.session_expired.app_error", "status_code": 401})
	}))
	defer srv.Close()

	g := New(zerolog.Nop(), srv.URL, "bad-token", nil, &recordingHandler{})
	err := g.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to verify Mattermost session")
}

func TestRun_StopsOnCancel(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v4/users/me" {
			_ = json.NewEncoder(w).Encode(&model.User{Id: "me-id", Username: "relay"})
			return
		}
		// Websocket upgrades are refused so Run stays in its retry loop.
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	g := New(zerolog.Nop(), srv.URL, "token", nil, &recordingHandler{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- g.Run(ctx) }()

	require.Eventually(t, func() bool { return g.selfID() == "me-id" }, 3*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
