// Copyright 2024-2026 Aiku AI

package relay

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/aiku/mcrelay/pkg/relay/mcfmt"
)

// fakeSender records delivered messages. If block is set, Send waits for ctx
// cancellation; messages whose content equals failContent fail with fail.
type fakeSender struct {
	mu          sync.Mutex
	sent        []*OutboundMessage
	attempts    int
	fail        error
	failContent string
	block       bool
	closed      bool
	notify      chan struct{}
}

func newFakeSender() *fakeSender {
	return &fakeSender{notify: make(chan struct{}, 128)}
}

func (f *fakeSender) Send(ctx context.Context, msg *OutboundMessage) error {
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	f.mu.Lock()
	f.attempts++
	var err error
	if f.fail != nil && msg.Content == f.failContent {
		err = f.fail
	} else {
		f.sent = append(f.sent, msg)
	}
	f.mu.Unlock()
	select {
	case f.notify <- struct{}{}:
	default:
	}
	return err
}

func (f *fakeSender) Close(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSender) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeSender) Sent() []*OutboundMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]*OutboundMessage, len(f.sent))
	copy(cp, f.sent)
	return cp
}

// waitSent blocks until n messages were delivered or the timeout expires.
func (f *fakeSender) waitSent(t *testing.T, n int) []*OutboundMessage {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		if sent := f.Sent(); len(sent) >= n {
			return sent
		}
		select {
		case <-f.notify:
		case <-deadline:
			t.Fatalf("timed out waiting for %d sent messages, got %d", n, len(f.Sent()))
		}
	}
}

type broadcastCall struct {
	msg      mcfmt.Message
	accepted []string
}

// fakeBroadcaster records broadcasts and evaluates accept against players.
type fakeBroadcaster struct {
	mu      sync.Mutex
	players []string
	calls   []broadcastCall
	err     error
}

func (f *fakeBroadcaster) Broadcast(_ context.Context, msg mcfmt.Message, accept func(string) bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	call := broadcastCall{msg: msg}
	for _, p := range f.players {
		if accept(p) {
			call.accepted = append(call.accepted, p)
		}
	}
	f.calls = append(f.calls, call)
	return f.err
}

func (f *fakeBroadcaster) Calls() []broadcastCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]broadcastCall, len(f.calls))
	copy(cp, f.calls)
	return cp
}

// setLookup is a PreferenceLookup and LinkLookup backed by a set.
type setLookup map[string]bool

func (s setLookup) IsFiltered(_ context.Context, id string) bool { return s[id] }
func (s setLookup) IsLinked(_ context.Context, id string) bool   { return s[id] }

const (
	testChatURL  = "https://discord.com/api/webhooks/111/chat-token"
	testEventURL = "https://discord.com/api/webhooks/222/event-token"
)

func testConfig() Config {
	return Config{
		ServerPrefix:    "[SMP]",
		ServerName:      "Survival",
		ChatWebhookURL:  testChatURL,
		EventWebhookURL: testEventURL,
		MessageDelayMS:  0,
		Events:          EventToggles{Join: true, Leave: true, Death: true, Advancement: true},
	}.WithDefaults()
}

func newTestRelay(t *testing.T, cfg Config) (*Relay, *fakeSender, *fakeBroadcaster) {
	t.Helper()
	sender := newFakeSender()
	bc := &fakeBroadcaster{players: []string{"alice", "bob"}}
	r, err := New(zerolog.Nop(), cfg, Deps{Sender: sender, Broadcaster: bc})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r, sender, bc
}
