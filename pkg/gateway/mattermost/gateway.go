// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package mattermost receives chat from Mattermost channels over the
// websocket API and hands it to the relay.
package mattermost

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/rs/zerolog"

	"github.com/aiku/mcrelay/pkg/relay"
)

// Source is the InboundEnvelope.Source of Mattermost posts.
const Source = "mattermost"

const (
	minReconnectDelay = time.Second
	maxReconnectDelay = 30 * time.Second
)

// Gateway is a logged-in Mattermost account relaying posts from a fixed set
// of channels.
type Gateway struct {
	log       zerolog.Logger
	serverURL string
	token     string
	channels  map[string]struct{}
	handler   relay.InboundHandler

	client *model.Client4

	mu       sync.Mutex
	userID   string
	wsClient *model.WebSocketClient
}

// New creates a gateway. An empty channelIDs relays every channel the
// account is a member of.
func New(log zerolog.Logger, serverURL, token string, channelIDs []string, handler relay.InboundHandler) *Gateway {
	channels := make(map[string]struct{}, len(channelIDs))
	for _, id := range channelIDs {
		channels[id] = struct{}{}
	}
	serverURL = strings.TrimRight(serverURL, "/")
	client := model.NewAPIv4Client(serverURL)
	client.SetToken(token)
	return &Gateway{
		log:       log.With().Str("component", "mm_gateway").Logger(),
		serverURL: serverURL,
		token:     token,
		channels:  channels,
		handler:   handler,
		client:    client,
	}
}

// Run authenticates and processes websocket events until ctx is cancelled.
// A dropped websocket is reconnected with exponential backoff.
func (g *Gateway) Run(ctx context.Context) error {
	me, _, err := g.client.GetMe(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to verify Mattermost session: %w", err)
	}
	g.setUserID(me.Id)
	g.log.Info().Str("user_id", me.Id).Str("username", me.Username).Msg("Authenticated")

	delay := minReconnectDelay
	for {
		connectedAt := time.Now()
		if err := g.connectWebSocket(); err != nil {
			g.log.Error().Err(err).Msg("WebSocket connection failed")
		} else {
			g.listenWebSocket(ctx)
		}
		if ctx.Err() != nil {
			g.closeWebSocket()
			return nil
		}
		// A connection that stayed up for a while resets the backoff.
		if time.Since(connectedAt) > maxReconnectDelay {
			delay = minReconnectDelay
		}
		g.log.Warn().Stringer("retry_in", delay).Msg("WebSocket disconnected, reconnecting")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		delay = min(delay*2, maxReconnectDelay)
	}
}

func (g *Gateway) connectWebSocket() error {
	wsURL := httpToWS(g.serverURL)
	ws, err := model.NewWebSocketClient4(wsURL, g.token)
	if err != nil {
		return fmt.Errorf("failed to create websocket client: %w", err)
	}
	ws.Listen()
	g.mu.Lock()
	g.wsClient = ws
	g.mu.Unlock()
	g.log.Info().Str("ws_url", wsURL).Msg("WebSocket connected")
	return nil
}

func (g *Gateway) listenWebSocket(ctx context.Context) {
	g.mu.Lock()
	ws := g.wsClient
	g.mu.Unlock()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ws.EventChannel:
			if !ok {
				if ws.ListenError != nil {
					g.log.Warn().Err(ws.ListenError).Msg("WebSocket listen error")
				}
				return
			}
			if event == nil {
				continue
			}
			g.handleEvent(ctx, event)
		}
	}
}

func (g *Gateway) closeWebSocket() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.wsClient != nil {
		g.wsClient.Close()
		g.wsClient = nil
	}
}

func (g *Gateway) setUserID(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.userID = id
}

func (g *Gateway) selfID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.userID
}

// httpToWS converts an HTTP(S) URL to a WS(S) URL.
func httpToWS(url string) string {
	if strings.HasPrefix(url, "https://") {
		return "wss://" + strings.TrimPrefix(url, "https://")
	}
	if strings.HasPrefix(url, "http://") {
		return "ws://" + strings.TrimPrefix(url, "http://")
	}
	return url
}
