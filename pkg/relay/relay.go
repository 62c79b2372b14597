// Copyright 2024-2026 Aiku AI

package relay

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/aiku/mcrelay/pkg/metrics"
	"github.com/aiku/mcrelay/pkg/relay/discordfmt"
)

// broadcastTimeout bounds a single in-game broadcast triggered by an inbound
// message so a stuck game connection cannot stall the gateway callback.
const broadcastTimeout = 10 * time.Second

// Embed colors for outbound event notifications.
const (
	ColorJoin        = 0x55FF55
	ColorLeave       = 0xFF5555
	ColorDeath       = 0xAA0000
	ColorAdvancement = 0xFFAA00
	ColorChallenge   = 0xAA00AA
)

// Deps are the collaborators injected into a Relay. Broadcaster is required;
// a nil Sender selects a WebhookSender, and nil lookups filter no player and
// link no author.
type Deps struct {
	Sender      Sender
	Broadcaster Broadcaster
	Prefs       PreferenceLookup
	Links       LinkLookup
	Metrics     *metrics.RelayMetrics
}

// Relay owns the pipeline between game events and the chat platform. It
// implements GameEvents for game adapters and HandleInbound for gateways.
type Relay struct {
	log         zerolog.Logger
	cfg         atomic.Pointer[Config]
	identity    IdentityCache
	filter      Filter
	dispatcher  *Dispatcher
	broadcaster Broadcaster
	prefs       PreferenceLookup
	links       LinkLookup
	metrics     *metrics.RelayMetrics
}

var _ GameEvents = (*Relay)(nil)

// New constructs a Relay from cfg and deps. Call Start to begin delivering
// outbound messages.
func New(log zerolog.Logger, cfg Config, deps Deps) (*Relay, error) {
	if deps.Broadcaster == nil {
		return nil, errors.New("relay: broadcaster is required")
	}
	cfg = cfg.WithDefaults()
	sender := deps.Sender
	if sender == nil {
		sender = NewWebhookSender(log, "mcrelay ("+ProductTag+")")
	}
	r := &Relay{
		log:         log.With().Str("component", "relay").Logger(),
		broadcaster: deps.Broadcaster,
		prefs:       deps.Prefs,
		links:       deps.Links,
		metrics:     deps.Metrics,
	}
	if r.prefs == nil {
		r.prefs = noLookup{}
	}
	if r.links == nil {
		r.links = noLookup{}
	}
	r.dispatcher = NewDispatcher(log, sender, deps.Metrics, cfg.QueueCapacity, cfg.MessageDelay())
	r.apply(&cfg)
	return r, nil
}

// Start launches the outbound drain goroutine. Cancelling ctx does not stop
// delivery; only Stop does, so shutdown always closes intake first.
func (r *Relay) Start(ctx context.Context) {
	r.dispatcher.Start(context.WithoutCancel(ctx))
	r.log.Info().
		Int("queue_capacity", r.dispatcher.Cap()).
		Msg("Relay started")
}

// Stop shuts down outbound delivery. See Dispatcher.Stop for the stages.
func (r *Relay) Stop(ctx context.Context) error {
	if err := r.dispatcher.Stop(ctx); err != nil {
		return fmt.Errorf("failed to stop dispatcher: %w", err)
	}
	r.log.Info().Msg("Relay stopped")
	return nil
}

// Reload swaps in a new configuration. The webhook identity is re-resolved and
// queue settings are applied without restarting the drain goroutine.
func (r *Relay) Reload(cfg Config) Status {
	cfg = cfg.WithDefaults()
	r.dispatcher.SetCapacity(cfg.QueueCapacity)
	r.dispatcher.SetDelay(cfg.MessageDelay())
	r.apply(&cfg)
	r.log.Info().Msg("Relay configuration reloaded")
	return r.Status()
}

func (r *Relay) apply(cfg *Config) {
	ident := ResolveIdentity(r.log, cfg)
	r.identity.Set(ident)
	r.cfg.Store(cfg)
	if cfg.ChatEndpoint() == "" {
		r.log.Warn().Msg("Chat webhook URL is not configured, game chat will not be relayed")
	}
	if cfg.EventWebhookURL != "" && IsPlaceholder(cfg.EventWebhookURL) {
		r.log.Warn().Msg("Event webhook URL is a placeholder, falling back to chat webhook")
	}
	if ident.ChatID == "" && ident.EventID == "" {
		r.log.Warn().Msg("No webhook identity resolved, own-webhook loop protection degraded")
	}
}

// Config returns a copy of the active configuration.
func (r *Relay) Config() Config {
	return *r.cfg.Load()
}

// Identity returns the resolved webhook identity.
func (r *Relay) Identity() WebhookIdentity {
	return r.identity.Get()
}

// Status is a point-in-time summary of the relay state.
type Status struct {
	QueueDepth    int  `json:"queue_depth"`
	QueueCapacity int  `json:"queue_capacity"`
	ChatEnabled   bool `json:"chat_enabled"`
	EventEnabled  bool `json:"event_enabled"`
	ChatIdentity  bool `json:"chat_identity_resolved"`
	EventIdentity bool `json:"event_identity_resolved"`
}

// Status reports queue and identity state.
func (r *Relay) Status() Status {
	cfg := r.cfg.Load()
	ident := r.identity.Get()
	return Status{
		QueueDepth:    r.dispatcher.Len(),
		QueueCapacity: r.dispatcher.Cap(),
		ChatEnabled:   cfg.ChatEndpoint() != "",
		EventEnabled:  cfg.EventEndpoint() != "",
		ChatIdentity:  ident.ChatID != "",
		EventIdentity: ident.EventID != "",
	}
}

// OnChat relays a player's chat message to the chat webhook.
func (r *Relay) OnChat(player Player, message string) {
	cfg := r.cfg.Load()
	vars := r.vars(cfg, player)
	vars["message"] = discordfmt.Plain(message)
	if vars["message"] == "" {
		return
	}
	r.enqueue(cfg.ChatEndpoint(), OutboundMessage{
		Content:   discordfmt.Render(cfg.Formats.OutboundChat, vars),
		Username:  discordfmt.Username(cfg.Formats.WebhookUsername, vars),
		AvatarURL: discordfmt.Render(cfg.Formats.AvatarURL, vars),
	})
}

// OnJoin posts a join notification when join events are enabled.
func (r *Relay) OnJoin(player Player) {
	cfg := r.cfg.Load()
	if !cfg.Events.Join {
		return
	}
	r.postEvent(cfg, player, lifecycleEmbed(player, EventJoin, ""))
}

// OnLeave posts a leave notification when leave events are enabled.
func (r *Relay) OnLeave(player Player) {
	cfg := r.cfg.Load()
	if !cfg.Events.Leave {
		return
	}
	r.postEvent(cfg, player, lifecycleEmbed(player, EventLeave, ""))
}

// OnDeath posts a death notification when death events are enabled.
func (r *Relay) OnDeath(player Player, deathMessage string) {
	cfg := r.cfg.Load()
	if !cfg.Events.Death {
		return
	}
	r.postEvent(cfg, player, lifecycleEmbed(player, EventDeath, deathMessage))
}

// OnAdvancement posts an advancement notification when advancement events are
// enabled.
func (r *Relay) OnAdvancement(player Player, data AdvancementData) {
	cfg := r.cfg.Load()
	if !cfg.Events.Advancement {
		return
	}
	if _, err := NewAdvancementData(player.Name, data.Title, data.Description, data.Kind); err != nil {
		r.log.Warn().Err(err).Str("player", player.Name).Msg("Skipping incomplete advancement")
		return
	}
	r.postEvent(cfg, player, advancementEmbed(player, data))
}

func (r *Relay) postEvent(cfg *Config, player Player, embed Embed) {
	vars := r.vars(cfg, player)
	r.enqueue(cfg.EventEndpoint(), OutboundMessage{
		Username:  discordfmt.Username(cfg.Formats.EventUsername, vars),
		AvatarURL: discordfmt.Render(cfg.Formats.AvatarURL, vars),
		Embeds:    []Embed{embed},
	})
}

func (r *Relay) enqueue(endpoint string, msg OutboundMessage) {
	if endpoint == "" {
		r.metrics.IncDropped(DropNoRoute)
		r.log.Debug().Msg("No webhook endpoint configured, dropping outbound message")
		return
	}
	msg.Endpoint = endpoint
	r.dispatcher.Enqueue(msg)
}

func (r *Relay) vars(cfg *Config, player Player) discordfmt.Vars {
	return discordfmt.Vars{
		"username": player.Name,
		"uuid":     player.UUID,
		"prefix":   cfg.ServerPrefix,
		"server":   cfg.ServerName,
	}
}

func eventFooter(kind fmt.Stringer) string {
	return ProductTag + FooterSeparator + kind.String()
}

func lifecycleEmbed(player Player, kind EventKind, deathMessage string) Embed {
	name := discordfmt.Plain(player.Name)
	e := Embed{
		FooterText: eventFooter(kind),
		Fields:     []EmbedField{{Name: "Player", Value: player.Name, Inline: true}},
	}
	switch kind {
	case EventJoin:
		e.Title = "Player Joined"
		e.Description = name + " joined the server"
		e.Color = ColorJoin
	case EventLeave:
		e.Title = "Player Left"
		e.Description = name + " left the server"
		e.Color = ColorLeave
	case EventDeath:
		e.Title = "Player Died"
		e.Description = discordfmt.Plain(deathMessage)
		if e.Description == "" {
			e.Description = name + " died"
		}
		e.Color = ColorDeath
	}
	return e
}

func advancementEmbed(player Player, data AdvancementData) Embed {
	color := ColorAdvancement
	if data.Kind == AdvancementChallenge {
		color = ColorChallenge
	}
	return Embed{
		Title:       discordfmt.Plain(player.Name) + " " + advancementVerb(data.Kind) + " [" + discordfmt.Plain(data.Title) + "]",
		Description: discordfmt.Plain(data.Description),
		Color:       color,
		FooterText:  eventFooter(data.Kind),
		Fields: []EmbedField{
			{Name: "Player", Value: player.Name, Inline: true},
			{Name: "Title", Value: discordfmt.StripCodes(data.Title), Inline: true},
			{Name: "Description", Value: discordfmt.StripCodes(data.Description)},
		},
	}
}

// advancementVerb mirrors the vanilla announcement wording per frame type.
func advancementVerb(kind AdvancementKind) string {
	switch kind {
	case AdvancementGoal:
		return "has reached the goal"
	case AdvancementChallenge:
		return "has completed the challenge"
	default:
		return "has made the advancement"
	}
}

// HandleInbound runs one chat-platform message through the pipeline: filter,
// classify, render, and broadcast to game players. It is called on the
// gateway's callback goroutine and never sends to the chat platform inline.
func (r *Relay) HandleInbound(ctx context.Context, env InboundEnvelope) {
	cfg := r.cfg.Load()
	log := r.log.With().
		Str("source", env.Source).
		Str("author_id", env.AuthorID).
		Logger()

	verdict := r.filter.Check(&env, r.identity.Get(), cfg)
	if !verdict.Accept {
		r.metrics.IncRejected(verdict.Reason)
		log.Debug().Str("reason", verdict.Reason).Msg("Ignoring inbound message")
		return
	}

	payload := Classify(env)
	r.metrics.IncClassified(payload.Kind.String())
	if payload.Kind == PayloadUnclassified {
		log.Debug().Msg("Inbound message has nothing to relay")
		return
	}
	if payload.Err != nil {
		r.metrics.IncExtractionError(payload.Err.Kind)
		log.Info().Err(payload.Err).Msg("Structured message incomplete, using fallback rendering")
	}

	linked := payload.Kind == PayloadPlainText && r.links.IsLinked(ctx, env.AuthorID)
	msg := RenderInbound(cfg, &env, &payload, linked)
	if msg.IsEmpty() {
		log.Debug().Msg("Rendered inbound message is empty")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, broadcastTimeout)
	defer cancel()
	accept := func(playerID string) bool {
		return !r.prefs.IsFiltered(ctx, playerID)
	}
	if err := r.broadcaster.Broadcast(ctx, msg, accept); err != nil {
		r.metrics.IncBroadcastError()
		log.Warn().Err(err).Msg("Failed to broadcast inbound message")
	}
}

// noLookup is used when no store is configured: no player is filtered and no
// author is linked.
type noLookup struct{}

func (noLookup) IsFiltered(context.Context, string) bool { return false }
func (noLookup) IsLinked(context.Context, string) bool   { return false }
