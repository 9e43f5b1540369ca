// Package publisher emits audit events to the chained log and, optionally,
// to external sinks. Services call Emit and never talk to stores directly.
package publisher

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"proofpals/pkg/platform/audit"
	"proofpals/pkg/requestcontext"
)

// ErrClosed is returned by Emit once Close has been called.
var ErrClosed = errors.New("publisher: closed")

// Sink mirrors appended events to an external system (e.g. Kafka). Sink
// failures are logged, never surfaced: the chained log is the source of
// truth and fan-out is best-effort.
type Sink interface {
	Publish(ctx context.Context, event audit.Event) error
}

// Publisher writes events to the audit log, synchronously by default or
// through a buffered channel in async mode. Close drains the buffer.
type Publisher struct {
	log    audit.Log
	sink   Sink
	logger *slog.Logger

	inbox  chan audit.Event
	wg     sync.WaitGroup
	once   sync.Once
	mu     sync.RWMutex
	closed bool
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithAsyncBuffer switches Emit to fire-and-forget through a channel of
// the given capacity. Use for hot paths where audit latency matters.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		p.inbox = make(chan audit.Event, size)
	}
}

// WithSink adds an external mirror for appended events.
func WithSink(sink Sink) Option {
	return func(p *Publisher) { p.sink = sink }
}

// WithLogger sets the logger for async append failures.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) { p.logger = logger }
}

func New(log audit.Log, opts ...Option) *Publisher {
	p := &Publisher{log: log, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	if p.inbox != nil {
		p.wg.Add(1)
		go p.drain()
	}
	return p
}

// Emit records the event. In sync mode the append error is returned; in
// async mode Emit returns ErrClosed after Close and nil otherwise.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if p.inbox != nil {
		p.mu.RLock()
		defer p.mu.RUnlock()
		if p.closed {
			return ErrClosed
		}
		p.inbox <- event
		return nil
	}
	return p.append(context.WithoutCancel(ctx), event)
}

func (p *Publisher) append(ctx context.Context, event audit.Event) error {
	if _, err := p.log.Append(ctx, event); err != nil {
		return err
	}
	if p.sink != nil {
		if err := p.sink.Publish(ctx, event); err != nil {
			p.logger.Warn("audit sink publish failed", "action", event.Action, "error", err)
		}
	}
	return nil
}

func (p *Publisher) drain() {
	defer p.wg.Done()
	for event := range p.inbox {
		if err := p.append(context.Background(), event); err != nil {
			p.logger.Error("audit append failed", "action", event.Action, "error", err)
		}
	}
}

// Close stops the async worker after draining buffered events. Emit calls
// that arrive afterwards fail with ErrClosed instead of panicking on the
// closed channel.
func (p *Publisher) Close() {
	p.once.Do(func() {
		if p.inbox == nil {
			return
		}
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		close(p.inbox)
		p.wg.Wait()
	})
}
