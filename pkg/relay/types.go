// Copyright 2024-2026 Aiku AI

package relay

import (
	"context"
	"fmt"
	"strings"

	"github.com/aiku/mcrelay/pkg/relay/mcfmt"
)

// ProductTag prefixes the embed footer of every event notification. Peer relay
// instances key their classifiers on "<ProductTag> · <EventKind>", so the
// footer text must not change.
const ProductTag = "MCRelay"

// FooterSeparator sits between ProductTag and the event kind in embed footers.
const FooterSeparator = " · "

// OutboundMessage is a single webhook delivery. It is not modified after
// Enqueue and is sent at most once.
type OutboundMessage struct {
	ID        string
	Endpoint  string
	Content   string
	Username  string
	AvatarURL string
	Embeds    []Embed
}

// Embed is the platform-neutral form of a structured message payload.
type Embed struct {
	Title       string
	Description string
	Color       int
	AuthorName  string
	FooterText  string
	Fields      []EmbedField
}

// EmbedField is a single name/value pair inside an Embed.
type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

// InboundEnvelope is one chat-platform message as seen by the relay core.
// Gateways construct it; the pipeline does not retain it.
type InboundEnvelope struct {
	Source            string
	ChannelID         string
	AuthorDisplayName string
	AuthorID          string
	IsBot             bool
	IsWebhook         bool
	// IsSelf is set by the gateway when the author is its own logged-in account.
	IsSelf bool
	Text   string
	Embeds []Embed
}

// Player identifies a game-side participant.
type Player struct {
	Name string
	UUID string
}

// ID returns the identifier used for preference lookups: the UUID when the
// adapter knows it, otherwise the player name.
func (p Player) ID() string {
	if p.UUID != "" {
		return p.UUID
	}
	return p.Name
}

// AdvancementKind is the vanilla frame type of an advancement.
type AdvancementKind int

const (
	AdvancementNormal AdvancementKind = iota
	AdvancementGoal
	AdvancementChallenge
)

func (k AdvancementKind) String() string {
	switch k {
	case AdvancementGoal:
		return "Goal"
	case AdvancementChallenge:
		return "Challenge"
	default:
		return "Advancement"
	}
}

// AdvancementData describes a "player achieved X" notification. All fields are
// non-empty; use NewAdvancementData to construct one.
type AdvancementData struct {
	Player      string
	Title       string
	Description string
	Kind        AdvancementKind
}

// NewAdvancementData validates and returns an AdvancementData.
func NewAdvancementData(player, title, description string, kind AdvancementKind) (*AdvancementData, error) {
	player = strings.TrimSpace(player)
	title = strings.TrimSpace(title)
	description = strings.TrimSpace(description)
	var missing []string
	if player == "" {
		missing = append(missing, "player")
	}
	if title == "" {
		missing = append(missing, "title")
	}
	if description == "" {
		missing = append(missing, "description")
	}
	if kind < AdvancementNormal || kind > AdvancementChallenge {
		missing = append(missing, "kind")
	}
	if len(missing) > 0 {
		return nil, &ExtractionError{Kind: "advancement", Missing: missing}
	}
	return &AdvancementData{Player: player, Title: title, Description: description, Kind: kind}, nil
}

// EventKind is the type of a lifecycle event.
type EventKind int

const (
	EventJoin EventKind = iota
	EventLeave
	EventDeath
)

func (k EventKind) String() string {
	switch k {
	case EventLeave:
		return "Leave"
	case EventDeath:
		return "Death"
	default:
		return "Join"
	}
}

// EventData describes a join, leave or death. DeathMessage is only
// meaningful for EventDeath.
type EventData struct {
	Player       string
	Kind         EventKind
	DeathMessage string
}

// PayloadKind tags a classified inbound envelope.
type PayloadKind int

const (
	PayloadUnclassified PayloadKind = iota
	PayloadPlainText
	PayloadAdvancement
	PayloadLifecycle
)

func (k PayloadKind) String() string {
	switch k {
	case PayloadPlainText:
		return "plain"
	case PayloadAdvancement:
		return "advancement"
	case PayloadLifecycle:
		return "lifecycle"
	default:
		return "unclassified"
	}
}

// Payload is the result of classifying an InboundEnvelope. Exactly one of
// Text, Advancement or Event is meaningful depending on Kind. Err is set when
// a classifier matched but extraction failed; Embed then holds the source
// embed for fallback rendering.
type Payload struct {
	Kind        PayloadKind
	Text        string
	Advancement *AdvancementData
	Event       *EventData
	Embed       *Embed
	Err         *ExtractionError
	partial     partialFields
}

// partialFields keeps whatever extraction found before failing.
type partialFields struct {
	player          string
	title           string
	advancementKind AdvancementKind
	eventKind       EventKind
}

// ExtractionError reports a structured payload that matched a classifier but
// lacked required fields. It is recoverable: the pipeline renders a fallback.
type ExtractionError struct {
	Kind    string
	Missing []string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("incomplete %s payload: missing %s", e.Kind, strings.Join(e.Missing, ", "))
}

// GameEvents is the capability set a game adapter drives. Relay implements it.
type GameEvents interface {
	OnChat(player Player, message string)
	OnJoin(player Player)
	OnLeave(player Player)
	OnDeath(player Player, deathMessage string)
	OnAdvancement(player Player, data AdvancementData)
}

// Broadcaster delivers a styled message to game players. accept is consulted
// per recipient; recipients for which it returns false are skipped.
type Broadcaster interface {
	Broadcast(ctx context.Context, msg mcfmt.Message, accept func(playerID string) bool) error
}

// PreferenceLookup reports whether a player opted out of relayed chat.
type PreferenceLookup interface {
	IsFiltered(ctx context.Context, playerID string) bool
}

// LinkLookup reports whether a chat-platform author is linked to a game account.
type LinkLookup interface {
	IsLinked(ctx context.Context, authorID string) bool
}

// InboundHandler consumes envelopes produced by a chat gateway. Relay
// implements it.
type InboundHandler interface {
	HandleInbound(ctx context.Context, env InboundEnvelope)
}
