package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"MiniMarket/internal/store"
)

const publishTimeout = 3 * time.Second

// Sink delivers envelopes to something outside the process.
type Sink interface {
	Name() string
	Publish(ctx context.Context, env Envelope) error
}

// Bus turns store events into envelopes. Every envelope is appended to an
// in-memory journal before Notify returns. The dispatcher goroutine walks the
// journal with its own cursor and hands each envelope to every sink, so a slow
// sink delays delivery but never drops an envelope.
type Bus struct {
	log        *zap.Logger
	producer   string
	deployment string
	now        func() time.Time

	mu      sync.RWMutex
	journal []Envelope
	closed  bool
	stopAt  int

	sinks []Sink
	wake  chan struct{}
	done  chan struct{}
}

// NewBus returns a bus for one store deployment. Every envelope it produces
// carries a deployment id that is fresh per bus, so observers can tell a
// restarted store from the one before it.
func NewBus(producer string, log *zap.Logger, sinks ...Sink) *Bus {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{
		log:        log,
		producer:   producer,
		deployment: uuid.NewString(),
		now:        time.Now,
		sinks:      sinks,
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
}

func (b *Bus) Deployment() string { return b.deployment }

func (b *Bus) Notify(e store.Event) {
	b.mu.Lock()
	env, err := wrap(e, uint64(len(b.journal))+1, b.producer, b.deployment, b.now())
	if err != nil {
		b.mu.Unlock()
		b.log.Error("wrap event failed", zap.String("event_type", e.Kind()), zap.Error(err))
		return
	}
	b.journal = append(b.journal, env)
	b.mu.Unlock()

	b.signal()
}

func (b *Bus) signal() {
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// Since returns up to limit envelopes with Seq greater than after, in order.
// A limit of zero or less means no limit.
func (b *Bus) Since(after uint64, limit int) []Envelope {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if after >= uint64(len(b.journal)) {
		return []Envelope{}
	}
	tail := b.journal[after:]
	if limit > 0 && len(tail) > limit {
		tail = tail[:limit]
	}
	out := make([]Envelope, len(tail))
	copy(out, tail)
	return out
}

func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.journal)
}

// Start runs the dispatcher until Close is called.
func (b *Bus) Start(ctx context.Context) {
	go b.run(ctx)
}

// Close delivers everything journaled so far, then stops the dispatcher and
// waits for it. Envelopes journaled after Close are kept but not delivered.
// Start must have been called.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		<-b.done
		return
	}
	b.closed = true
	b.stopAt = len(b.journal)
	b.mu.Unlock()

	b.signal()
	<-b.done
}

func (b *Bus) run(ctx context.Context) {
	defer close(b.done)

	cursor := 0
	for {
		b.mu.RLock()
		end, closed := len(b.journal), b.closed
		if closed {
			end = b.stopAt
		}
		// journaled envelopes are never modified, so the batch can be read
		// after the lock is released
		batch := b.journal[cursor:end]
		b.mu.RUnlock()

		for _, env := range batch {
			b.dispatch(ctx, env)
		}
		cursor = end

		if closed {
			return
		}
		if len(batch) == 0 {
			<-b.wake
		}
	}
}

func (b *Bus) dispatch(ctx context.Context, env Envelope) {
	for _, s := range b.sinks {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		err := s.Publish(pctx, env)
		cancel()

		if err != nil {
			b.log.Warn("publish event failed",
				zap.String("sink", s.Name()),
				zap.String("event_id", env.EventID),
				zap.String("event_type", env.EventType),
				zap.Error(err),
			)
		}
	}
}
