// Copyright 2024-2026 Aiku AI

package vanilla

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/gorcon/rcon"
	"github.com/rs/zerolog"

	"github.com/aiku/mcrelay/pkg/relay/mcfmt"
)

const (
	rconDialTimeout = 5 * time.Second
	rconDeadline    = 5 * time.Second

	// maxTellrawPayload leaves room for "tellraw <16-char name> " within the
	// command length the rcon client accepts.
	maxTellrawPayload = rcon.MaxCommandLen - len("tellraw ") - 16 - 1
)

// ErrBroadcasterClosed is returned by Broadcast after Close.
var ErrBroadcasterClosed = errors.New("rcon broadcaster is closed")

var listEntryRe = regexp.MustCompile(`([A-Za-z0-9_]{1,16}) \(([0-9a-fA-F-]{36})\)`)

type commander interface {
	Execute(command string) (string, error)
	Close() error
}

type onlinePlayer struct {
	name string
	uuid string
}

// RCONBroadcaster delivers inbound chat to players with tellraw over RCON.
// The connection is opened lazily and re-established after a failure.
type RCONBroadcaster struct {
	log      zerolog.Logger
	address  string
	password string
	dial     func(address, password string) (commander, error)

	mu     sync.Mutex
	conn   commander
	closed bool
}

// NewRCONBroadcaster creates a broadcaster for the server at address.
func NewRCONBroadcaster(log zerolog.Logger, address, password string) *RCONBroadcaster {
	return &RCONBroadcaster{
		log:      log.With().Str("component", "rcon").Str("address", address).Logger(),
		address:  address,
		password: password,
		dial: func(address, password string) (commander, error) {
			return rcon.Dial(address, password,
				rcon.SetDialTimeout(rconDialTimeout),
				rcon.SetDeadline(rconDeadline))
		},
	}
}

// Broadcast sends msg to every online player accepted by accept. A player is
// accepted only when both its UUID and its name are. When every player is
// accepted a single @a command is used. Text that would make the command too
// long for RCON is cut and ends with an ellipsis.
func (b *RCONBroadcaster) Broadcast(ctx context.Context, msg mcfmt.Message, accept func(playerID string) bool) error {
	payload, err := msg.TellrawWithin(maxTellrawPayload)
	if err != nil {
		return fmt.Errorf("failed to encode tellraw payload: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBroadcasterClosed
	}

	out, err := b.execute("list uuids")
	if err != nil {
		return err
	}
	players := parsePlayerList(out)
	if len(players) == 0 {
		return nil
	}

	var targets []string
	for _, p := range players {
		if accept(p.uuid) && accept(p.name) {
			targets = append(targets, p.name)
		}
	}
	if len(targets) == len(players) {
		_, err = b.execute("tellraw @a " + payload)
		return err
	}
	for _, name := range targets {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := b.execute("tellraw " + name + " " + payload); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the RCON connection. Later calls to Broadcast fail.
func (b *RCONBroadcaster) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return b.resetConn()
}

// execute runs cmd, dialing first if needed. The caller must hold mu.
func (b *RCONBroadcaster) execute(cmd string) (string, error) {
	if b.conn == nil {
		conn, err := b.dial(b.address, b.password)
		if err != nil {
			return "", fmt.Errorf("failed to connect to rcon: %w", err)
		}
		b.log.Debug().Msg("Connected to RCON")
		b.conn = conn
	}
	out, err := b.conn.Execute(cmd)
	if err != nil {
		_ = b.resetConn()
		return "", fmt.Errorf("rcon command failed: %w", err)
	}
	return out, nil
}

func (b *RCONBroadcaster) resetConn() error {
	if b.conn == nil {
		return nil
	}
	err := b.conn.Close()
	b.conn = nil
	return err
}

// parsePlayerList reads the reply of "list uuids":
// "There are 2 of a max of 20 players online: Steve (uuid), Alex (uuid)".
func parsePlayerList(out string) []onlinePlayer {
	_, names, ok := strings.Cut(out, ":")
	if !ok {
		return nil
	}
	var players []onlinePlayer
	for _, m := range listEntryRe.FindAllStringSubmatch(names, -1) {
		players = append(players, onlinePlayer{name: m[1], uuid: strings.ToLower(m[2])})
	}
	return players
}
