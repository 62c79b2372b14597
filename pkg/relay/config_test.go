// Copyright 2024-2026 Aiku AI

package relay

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	if cfg.QueueCapacity != DefaultQueueCapacity {
		t.Errorf("queue capacity: got %d", cfg.QueueCapacity)
	}
	if cfg.MessageDelay() != time.Second {
		t.Errorf("message delay: got %v, want 1s", cfg.MessageDelay())
	}
	if cfg.Formats.InboundChat == "" || cfg.ServerName == "" {
		t.Errorf("formats not defaulted: %+v", cfg)
	}
}

func TestWithDefaults_MessageDelay(t *testing.T) {
	t.Parallel()
	zero := (Config{}).WithDefaults()
	if d := zero.MessageDelay(); d != 0 {
		t.Errorf("zero delay: got %v, want no delay", d)
	}
	negative := (Config{MessageDelayMS: -1}).WithDefaults()
	if d := negative.MessageDelay(); d != DefaultMessageDelay {
		t.Errorf("negative delay: got %v, want %v", d, DefaultMessageDelay)
	}
	explicit := (Config{MessageDelayMS: 250}).WithDefaults()
	if d := explicit.MessageDelay(); d != 250*time.Millisecond {
		t.Errorf("explicit delay: got %v", d)
	}
}
