// Copyright 2024-2026 Aiku AI

package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/mattermost/mattermost/server/public/model"
	"github.com/rs/zerolog"
)

const (
	dialTimeout           = 10 * time.Second
	tlsHandshakeTimeout   = 10 * time.Second
	responseHeaderTimeout = 10 * time.Second
	writeTimeout          = 10 * time.Second
	requestTimeout        = 30 * time.Second
	maxErrorBody          = 512
)

// WebhookFormat is the request body shape a webhook endpoint accepts.
type WebhookFormat int

const (
	// FormatDiscord is the Discord execute-webhook body.
	FormatDiscord WebhookFormat = iota
	// FormatMattermost is the Mattermost incoming webhook body.
	FormatMattermost
)

var mattermostHookPath = regexp.MustCompile(`/hooks/[a-z0-9]+/?$`)

// DetectWebhookFormat picks the body format from the endpoint URL.
// Mattermost serves incoming webhooks at /hooks/<id>; anything else is
// treated as Discord.
func DetectWebhookFormat(endpoint string) WebhookFormat {
	u, err := url.Parse(endpoint)
	if err != nil {
		return FormatDiscord
	}
	if mattermostHookPath.MatchString(u.Path) {
		return FormatMattermost
	}
	return FormatDiscord
}

// ErrSenderClosed is returned by Send after Close has been called.
var ErrSenderClosed = errors.New("webhook sender closed")

// HTTPError is returned for non-2xx webhook responses.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("webhook returned HTTP %d: %s", e.StatusCode, e.Body)
}

// WebhookSender posts OutboundMessages to chat-platform webhooks as JSON.
type WebhookSender struct {
	log    zerolog.Logger
	client *http.Client
	agent  string

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup

	// base is cancelled to force-abort in-flight requests on Close.
	base   context.Context
	cancel context.CancelFunc
}

// NewWebhookSender creates a sender with bounded dial, TLS handshake, write
// and response header timeouts. userAgent is sent with every request.
func NewWebhookSender(log zerolog.Logger, userAgent string) *WebhookSender {
	dialer := &net.Dialer{
		Timeout:   dialTimeout,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			return &deadlineConn{Conn: conn, writeTimeout: writeTimeout}, nil
		},
		TLSHandshakeTimeout:   tlsHandshakeTimeout,
		ResponseHeaderTimeout: responseHeaderTimeout,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConnsPerHost:   2,
		ForceAttemptHTTP2:     true,
	}
	base, cancel := context.WithCancel(context.Background())
	return &WebhookSender{
		log:    log.With().Str("component", "webhook_sender").Logger(),
		client: &http.Client{Transport: transport},
		agent:  userAgent,
		base:   base,
		cancel: cancel,
	}
}

// deadlineConn bounds every write on the connection.
type deadlineConn struct {
	net.Conn
	writeTimeout time.Duration
}

func (c *deadlineConn) Write(p []byte) (int, error) {
	if err := c.Conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return 0, err
	}
	return c.Conn.Write(p)
}

// Send posts msg to msg.Endpoint. The call is bounded by a 30s timeout on top
// of the transport timeouts and is aborted when Close gives up waiting.
func (s *WebhookSender) Send(ctx context.Context, msg *OutboundMessage) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSenderClosed
	}
	s.inflight.Add(1)
	s.mu.Unlock()
	defer s.inflight.Done()

	var payload any = WebhookPayload(msg)
	if DetectWebhookFormat(msg.Endpoint) == FormatMattermost {
		payload = MattermostPayload(msg)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	stop := context.AfterFunc(s.base, cancel)
	defer stop()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, msg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.agent != "" {
		req.Header.Set("User-Agent", s.agent)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &HTTPError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(snippet))}
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	return nil
}

// Close stops accepting sends and waits for in-flight requests. If ctx
// expires first the remaining requests are cancelled. Idle connections are
// closed in either case.
func (s *WebhookSender) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	waited := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(waited)
	}()

	var err error
	select {
	case <-waited:
	case <-ctx.Done():
		s.log.Warn().Msg("In-flight webhook requests did not finish, cancelling")
		err = fmt.Errorf("webhook sender close: %w", ctx.Err())
	}
	s.cancel()
	s.client.CloseIdleConnections()
	return err
}

// WebhookPayload converts msg to the Discord execute-webhook body. Mentions
// are never parsed so relayed text cannot ping users or roles.
func WebhookPayload(msg *OutboundMessage) *discordgo.WebhookParams {
	params := &discordgo.WebhookParams{
		Content:         msg.Content,
		Username:        msg.Username,
		AvatarURL:       msg.AvatarURL,
		Components:      []discordgo.MessageComponent{},
		AllowedMentions: &discordgo.MessageAllowedMentions{Parse: []discordgo.AllowedMentionType{}},
	}
	for _, e := range msg.Embeds {
		params.Embeds = append(params.Embeds, toDiscordEmbed(e))
	}
	return params
}

// MattermostPayload converts msg to the Mattermost incoming webhook body.
// Embeds become message attachments with the footer text unchanged, so peer
// relays classify them the same way on either platform.
func MattermostPayload(msg *OutboundMessage) *model.IncomingWebhookRequest {
	req := &model.IncomingWebhookRequest{
		Text:     msg.Content,
		Username: msg.Username,
		IconURL:  msg.AvatarURL,
	}
	for _, e := range msg.Embeds {
		req.Attachments = append(req.Attachments, toSlackAttachment(e))
	}
	return req
}

func toSlackAttachment(e Embed) *model.SlackAttachment {
	out := &model.SlackAttachment{
		Fallback:   e.Title,
		AuthorName: e.AuthorName,
		Title:      e.Title,
		Text:       e.Description,
		Footer:     e.FooterText,
	}
	if out.Fallback == "" {
		out.Fallback = e.Description
	}
	if e.Color != 0 {
		out.Color = fmt.Sprintf("#%06X", e.Color&0xFFFFFF)
	}
	for _, f := range e.Fields {
		out.Fields = append(out.Fields, &model.SlackAttachmentField{
			Title: f.Name,
			Value: f.Value,
			Short: model.SlackCompatibleBool(f.Inline),
		})
	}
	return out
}

func toDiscordEmbed(e Embed) *discordgo.MessageEmbed {
	out := &discordgo.MessageEmbed{
		Title:       e.Title,
		Description: e.Description,
		Color:       e.Color,
	}
	if e.FooterText != "" {
		out.Footer = &discordgo.MessageEmbedFooter{Text: e.FooterText}
	}
	if e.AuthorName != "" {
		out.Author = &discordgo.MessageEmbedAuthor{Name: e.AuthorName}
	}
	for _, f := range e.Fields {
		out.Fields = append(out.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	return out
}

// FromDiscordEmbed converts a received discordgo embed to the core Embed.
func FromDiscordEmbed(e *discordgo.MessageEmbed) Embed {
	out := Embed{
		Title:       e.Title,
		Description: e.Description,
		Color:       e.Color,
	}
	if e.Footer != nil {
		out.FooterText = e.Footer.Text
	}
	if e.Author != nil {
		out.AuthorName = e.Author.Name
	}
	for _, f := range e.Fields {
		if f == nil {
			continue
		}
		out.Fields = append(out.Fields, EmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	return out
}
