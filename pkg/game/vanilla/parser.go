// Copyright 2024-2026 Aiku AI

// Package vanilla adapts an unmodified Minecraft server to the relay: game
// events are read from the server log and inbound messages are delivered
// with tellraw over RCON.
package vanilla

import (
	"regexp"
	"strings"

	"github.com/aiku/mcrelay/pkg/relay"
)

// EventType is the kind of a parsed log line.
type EventType int

const (
	EventNone EventType = iota
	EventChat
	EventJoin
	EventLeave
	EventDeath
	EventAdvancement
	EventUUID
)

// Event is one game event parsed from a log line.
type Event struct {
	Type        EventType
	Player      string
	UUID        string
	Message     string
	Title       string
	Advancement relay.AdvancementKind
}

var (
	// Vanilla "[12:34:56] [Server thread/INFO]: ..." and Paper/Spigot
	// "[12:34:56 INFO]: ..." prefixes.
	linePrefixRe   = regexp.MustCompile(`^\[[^\]]*\](?: \[[^\]]*\])?: (.*)$`)
	chatRe         = regexp.MustCompile(`^(?:\[Not Secure\] )?<([A-Za-z0-9_]{1,16})> (.*)$`)
	joinRe         = regexp.MustCompile(`^([A-Za-z0-9_]{1,16}) joined the game$`)
	leaveRe        = regexp.MustCompile(`^([A-Za-z0-9_]{1,16}) left the game$`)
	advancementRe  = regexp.MustCompile(`^([A-Za-z0-9_]{1,16}) has (made the advancement|reached the goal|completed the challenge) \[(.+)\]$`)
	uuidRe         = regexp.MustCompile(`^UUID of player ([A-Za-z0-9_]{1,16}) is ([0-9a-fA-F-]{36})$`)
	deathSubjectRe = regexp.MustCompile(`^([A-Za-z0-9_]{1,16}) (.+)$`)
)

// deathPhrases are the openings of vanilla death messages after the player
// name.
var deathPhrases = []string{
	"was ", "walked into ", "drowned", "experienced kinetic energy", "blew up",
	"hit the ground too hard", "fell ", "went up in flames", "went off with a bang",
	"burned to death", "tried to swim in lava", "discovered the floor was lava",
	"froze to death", "starved to death", "suffocated in a wall",
	"didn't want to live in the same world as", "withered away", "died",
	"left the confines of this world", "was roasted in dragon breath",
}

// ParseLine extracts a game event from one server log line. Lines that are
// not recognized return an Event with Type EventNone.
func ParseLine(line string) Event {
	m := linePrefixRe.FindStringSubmatch(strings.TrimRight(line, "\r\n"))
	if m == nil {
		return Event{}
	}
	body := m[1]

	if m := chatRe.FindStringSubmatch(body); m != nil {
		return Event{Type: EventChat, Player: m[1], Message: m[2]}
	}
	if m := joinRe.FindStringSubmatch(body); m != nil {
		return Event{Type: EventJoin, Player: m[1]}
	}
	if m := leaveRe.FindStringSubmatch(body); m != nil {
		return Event{Type: EventLeave, Player: m[1]}
	}
	if m := advancementRe.FindStringSubmatch(body); m != nil {
		return Event{Type: EventAdvancement, Player: m[1], Title: m[3], Advancement: advancementKind(m[2])}
	}
	if m := uuidRe.FindStringSubmatch(body); m != nil {
		return Event{Type: EventUUID, Player: m[1], UUID: strings.ToLower(m[2])}
	}
	if m := deathSubjectRe.FindStringSubmatch(body); m != nil && isDeathPhrase(m[2]) {
		return Event{Type: EventDeath, Player: m[1], Message: body}
	}
	return Event{}
}

func advancementKind(verb string) relay.AdvancementKind {
	switch {
	case strings.HasPrefix(verb, "reached"):
		return relay.AdvancementGoal
	case strings.HasPrefix(verb, "completed"):
		return relay.AdvancementChallenge
	default:
		return relay.AdvancementNormal
	}
}

func isDeathPhrase(rest string) bool {
	for _, p := range deathPhrases {
		if strings.HasPrefix(rest, p) {
			return true
		}
	}
	return false
}
