// Copyright 2024-2026 Aiku AI

package relay

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aiku/mcrelay/pkg/metrics"
)

const (
	// pollInterval bounds how long the drain goroutine waits for work before
	// re-checking for shutdown.
	pollInterval = 250 * time.Millisecond
	joinTimeout  = 2 * time.Second
	closeTimeout = 2 * time.Second
)

// Drop reasons exported as metric labels.
const (
	DropQueueFull = "queue_full"
	DropStopped   = "stopped"
	DropNoRoute   = "no_endpoint"
)

// Sender delivers a single outbound message. Send must honor ctx
// cancellation; Close releases transport resources and may be called once.
type Sender interface {
	Send(ctx context.Context, msg *OutboundMessage) error
	Close(ctx context.Context) error
}

// Dispatcher is a bounded FIFO of outbound messages drained by a single
// goroutine. Enqueue never blocks; messages that do not fit are dropped.
type Dispatcher struct {
	log     zerolog.Logger
	sender  Sender
	metrics *metrics.RelayMetrics

	mu       sync.Mutex
	queue    []*OutboundMessage
	capacity int
	delay    time.Duration
	started  bool
	stopped  bool
	cancel   context.CancelFunc
	done     chan struct{}

	notify chan struct{}
}

// NewDispatcher creates a stopped dispatcher. Call Start to begin draining.
func NewDispatcher(log zerolog.Logger, sender Sender, m *metrics.RelayMetrics, capacity int, delay time.Duration) *Dispatcher {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	if delay < 0 {
		delay = DefaultMessageDelay
	}
	return &Dispatcher{
		log:      log.With().Str("component", "dispatcher").Logger(),
		sender:   sender,
		metrics:  m,
		capacity: capacity,
		delay:    delay,
		notify:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Enqueue adds msg to the queue and reports whether it was accepted. It never
// blocks: a full or stopped queue drops the message with a warning.
func (d *Dispatcher) Enqueue(msg OutboundMessage) bool {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		d.drop(&msg, DropStopped)
		return false
	}
	if len(d.queue) >= d.capacity {
		capacity := d.capacity
		d.mu.Unlock()
		d.drop(&msg, DropQueueFull, "capacity", capacity)
		return false
	}
	d.queue = append(d.queue, &msg)
	depth := len(d.queue)
	d.mu.Unlock()

	d.metrics.IncEnqueued()
	d.metrics.SetQueueDepth(depth)
	select {
	case d.notify <- struct{}{}:
	default:
	}
	return true
}

func (d *Dispatcher) drop(msg *OutboundMessage, reason string, kv ...any) {
	d.metrics.IncDropped(reason)
	evt := d.log.Warn().
		Str("message_id", msg.ID).
		Str("reason", reason)
	if len(kv) > 0 {
		evt = evt.Fields(kv)
	}
	evt.Msg("Dropping outbound message")
}

// Start launches the drain goroutine. It is a no-op if already started or
// stopped.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.stopped {
		return
	}
	d.started = true
	ctx, d.cancel = context.WithCancel(ctx)
	go d.drain(ctx)
}

// Stop shuts the dispatcher down in stages: stop intake, interrupt the drain
// goroutine, wait up to 2s for it to exit, then close the sender with a 2s
// bound. Messages still queued are discarded.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	started := d.started
	if d.cancel != nil {
		d.cancel()
	}
	pending := len(d.queue)
	d.queue = nil
	d.mu.Unlock()
	d.metrics.SetQueueDepth(0)

	if pending > 0 {
		d.log.Warn().Int("pending", pending).Msg("Discarding queued messages on shutdown")
	}

	if started {
		joinCtx, cancel := context.WithTimeout(ctx, joinTimeout)
		select {
		case <-d.done:
		case <-joinCtx.Done():
			d.log.Warn().Msg("Drain goroutine did not exit in time, continuing shutdown")
		}
		cancel()
	}

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
	defer cancel()
	if err := d.sender.Close(closeCtx); err != nil {
		d.log.Warn().Err(err).Msg("Sender did not close cleanly")
		return err
	}
	return nil
}

// SetCapacity changes the queue bound. Messages already queued beyond a
// smaller bound are kept; new messages are dropped until the queue drains.
func (d *Dispatcher) SetCapacity(capacity int) {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	d.mu.Lock()
	d.capacity = capacity
	d.mu.Unlock()
}

// SetDelay changes the pause taken after each successful send.
func (d *Dispatcher) SetDelay(delay time.Duration) {
	if delay < 0 {
		delay = 0
	}
	d.mu.Lock()
	d.delay = delay
	d.mu.Unlock()
}

// Len returns the number of queued messages.
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Cap returns the current queue bound.
func (d *Dispatcher) Cap() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.capacity
}

func (d *Dispatcher) pop() (*OutboundMessage, time.Duration, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.queue) == 0 {
		return nil, d.delay, false
	}
	msg := d.queue[0]
	d.queue[0] = nil
	d.queue = d.queue[1:]
	d.metrics.SetQueueDepth(len(d.queue))
	return msg, d.delay, true
}

func (d *Dispatcher) drain(ctx context.Context) {
	defer close(d.done)
	d.log.Debug().Msg("Drain goroutine started")
	for {
		msg, delay, ok := d.pop()
		if !ok {
			select {
			case <-ctx.Done():
				d.log.Debug().Msg("Drain goroutine stopped")
				return
			case <-d.notify:
			case <-time.After(pollInterval):
			}
			continue
		}
		if !d.deliver(ctx, msg) || delay == 0 {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, msg *OutboundMessage) bool {
	log := d.log.With().Str("message_id", msg.ID).Logger()
	err := d.sender.Send(ctx, msg)
	switch {
	case err == nil:
		d.metrics.IncSent()
		log.Debug().Msg("Delivered outbound message")
		return true
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		log.Debug().Msg("Send interrupted by shutdown")
	default:
		d.metrics.IncFailed()
		log.Warn().Err(err).Msg("Failed to deliver outbound message, discarding")
	}
	return false
}
