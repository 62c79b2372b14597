// Copyright 2024-2026 Aiku AI

package vanilla

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/nxadm/tail"
	"github.com/rs/zerolog"

	"github.com/aiku/mcrelay/pkg/relay"
)

// LogWatcher follows the server log and forwards parsed events to a
// relay.GameEvents. Rotation of latest.log on restart is followed.
type LogWatcher struct {
	log    zerolog.Logger
	path   string
	events relay.GameEvents
	poll   bool

	mu    sync.Mutex
	uuids map[string]string
}

// NewLogWatcher creates a watcher for the log file at path.
func NewLogWatcher(log zerolog.Logger, path string, events relay.GameEvents) *LogWatcher {
	return &LogWatcher{
		log:    log.With().Str("component", "log_watcher").Str("path", path).Logger(),
		path:   path,
		events: events,
		uuids:  make(map[string]string),
	}
}

// Run tails the log until ctx is cancelled.
func (w *LogWatcher) Run(ctx context.Context) error {
	cfg := tail.Config{
		Follow: true,
		ReOpen: true,
		Poll:   w.poll,
		Logger: tail.DiscardingLogger,
	}
	// Only lines written after startup are relayed.
	cfg.Location = &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd}
	t, err := tail.TailFile(w.path, cfg)
	if err != nil {
		return fmt.Errorf("failed to tail %s: %w", w.path, err)
	}
	defer func() {
		_ = t.Stop()
		t.Cleanup()
	}()
	w.log.Info().Msg("Following server log")

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-t.Lines:
			if !ok {
				if err := t.Err(); err != nil {
					return fmt.Errorf("log tail stopped: %w", err)
				}
				return nil
			}
			if line.Err != nil {
				w.log.Warn().Err(line.Err).Msg("Failed to read log line")
				continue
			}
			w.handleLine(line.Text)
		}
	}
}

func (w *LogWatcher) handleLine(text string) {
	ev := ParseLine(text)
	if ev.Type == EventNone {
		return
	}
	if ev.Type == EventUUID {
		w.mu.Lock()
		w.uuids[ev.Player] = ev.UUID
		w.mu.Unlock()
		return
	}

	player := w.player(ev.Player)
	switch ev.Type {
	case EventChat:
		w.events.OnChat(player, ev.Message)
	case EventJoin:
		w.events.OnJoin(player)
	case EventLeave:
		w.events.OnLeave(player)
		w.mu.Lock()
		delete(w.uuids, ev.Player)
		w.mu.Unlock()
	case EventDeath:
		w.events.OnDeath(player, ev.Message)
	case EventAdvancement:
		// The log only carries the title, so it doubles as the description.
		data, err := relay.NewAdvancementData(ev.Player, ev.Title, ev.Title, ev.Advancement)
		if err != nil {
			w.log.Debug().Err(err).Str("line", text).Msg("Skipping advancement line")
			return
		}
		w.events.OnAdvancement(player, *data)
	}
}

func (w *LogWatcher) player(name string) relay.Player {
	w.mu.Lock()
	defer w.mu.Unlock()
	return relay.Player{Name: name, UUID: w.uuids[name]}
}
