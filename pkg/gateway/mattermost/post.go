// Copyright 2024-2026 Aiku AI

package mattermost

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mattermost/mattermost/server/public/model"

	"github.com/aiku/mcrelay/pkg/relay"
)

// handleEvent forwards posted events. Other event types are ignored.
func (g *Gateway) handleEvent(ctx context.Context, evt *model.WebSocketEvent) {
	if evt.EventType() != model.WebsocketEventPosted {
		g.log.Trace().Str("event_type", string(evt.EventType())).Msg("Unhandled event type")
		return
	}
	env, err := g.parsePostedEvent(evt)
	if err != nil {
		g.log.Warn().Err(err).Msg("Failed to parse posted event")
		return
	}
	if env == nil {
		return
	}
	g.handler.HandleInbound(ctx, *env)
}

// parsePostedEvent converts a posted event into an envelope. It returns
// (nil, nil) for posts that are not relayed.
func (g *Gateway) parsePostedEvent(evt *model.WebSocketEvent) (*relay.InboundEnvelope, error) {
	postJSON, ok := evt.GetData()["post"].(string)
	if !ok {
		return nil, fmt.Errorf("posted event missing post data")
	}
	var post model.Post
	if err := json.Unmarshal([]byte(postJSON), &post); err != nil {
		return nil, fmt.Errorf("failed to unmarshal post: %w", err)
	}

	if len(g.channels) > 0 {
		if _, ok := g.channels[post.ChannelId]; !ok {
			return nil, nil
		}
	}
	// System messages: joins, header changes and the like.
	if post.Type != "" && post.Type != model.PostTypeDefault {
		return nil, nil
	}

	senderName, _ := evt.GetData()["sender_name"].(string)
	senderName = strings.TrimPrefix(senderName, "@")

	env := &relay.InboundEnvelope{
		Source:            Source,
		ChannelID:         post.ChannelId,
		AuthorDisplayName: senderName,
		AuthorID:          post.UserId,
		IsBot:             propIsTrue(post.GetProp(model.PostPropsFromBot)),
		IsWebhook:         propIsTrue(post.GetProp(model.PostPropsFromWebhook)),
		IsSelf:            post.UserId != "" && post.UserId == g.selfID(),
		Text:              post.Message,
	}
	if env.IsWebhook {
		if name, _ := post.GetProp(model.PostPropsOverrideUsername).(string); name != "" {
			env.AuthorDisplayName = name
		}
	}
	for _, a := range post.Attachments() {
		if a != nil {
			env.Embeds = append(env.Embeds, attachmentToEmbed(a))
		}
	}
	return env, nil
}

// attachmentToEmbed maps a Slack-style message attachment onto an embed.
func attachmentToEmbed(a *model.SlackAttachment) relay.Embed {
	e := relay.Embed{
		Title:       a.Title,
		Description: a.Text,
		Color:       parseColor(a.Color),
		AuthorName:  a.AuthorName,
		FooterText:  a.Footer,
	}
	for _, f := range a.Fields {
		if f == nil {
			continue
		}
		e.Fields = append(e.Fields, relay.EmbedField{
			Name:   f.Title,
			Value:  fieldValue(f.Value),
			Inline: bool(f.Short),
		})
	}
	return e
}

func fieldValue(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// parseColor reads "#RRGGBB" colors. Named colors such as "good" map to 0.
func parseColor(s string) int {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return 0
	}
	n, err := strconv.ParseInt(s, 16, 32)
	if err != nil {
		return 0
	}
	return int(n)
}

// propIsTrue handles props stored both as strings and as booleans.
func propIsTrue(v any) bool {
	switch v := v.(type) {
	case bool:
		return v
	case string:
		return v == "true"
	default:
		return false
	}
}
