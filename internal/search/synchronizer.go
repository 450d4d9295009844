package search

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"lumen/internal/middleware"
	"lumen/internal/observability"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Kind is the mutation an Event asks for.
type Kind string

const (
	KindUpsert Kind = "upsert"
	KindRemove Kind = "remove"
)

// Event is one index mutation. Version orders events for the same post.
type Event struct {
	ID         ulid.ULID
	Kind       Kind
	PostID     uuid.UUID
	Version    time.Time
	Doc        *Document
	EnqueuedAt time.Time
}

// SyncOptions tunes the Synchronizer. Zero fields take the defaults below.
type SyncOptions struct {
	Workers          int
	QueueSize        int
	MaxAttempts      int
	AttemptTimeout   time.Duration
	InitialBackoff   time.Duration
	MaxBackoff       time.Duration
	VersionCacheSize int
	Now              func() time.Time
}

func (o SyncOptions) withDefaults() SyncOptions {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 1024
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.AttemptTimeout <= 0 {
		o.AttemptTimeout = 3 * time.Second
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = 200 * time.Millisecond
	}
	if o.MaxBackoff < o.InitialBackoff {
		o.MaxBackoff = 25 * o.InitialBackoff
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// ErrClosed is returned by EnqueueWait after Shutdown.
var ErrClosed = errors.New("search: synchronizer closed")

// Synchronizer applies index events on a worker pool. Producers hand events
// over without waiting; failures are retried, then logged and dropped.
type Synchronizer struct {
	index    Index
	opts     SyncOptions
	versions *versionCache
	queue    chan Event

	mu      sync.RWMutex
	closed  bool
	started bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSynchronizer builds a synchronizer over index. Call Start to run workers.
func NewSynchronizer(index Index, opts SyncOptions) (*Synchronizer, error) {
	opts = opts.withDefaults()
	versions, err := newVersionCache(opts.VersionCacheSize)
	if err != nil {
		return nil, err
	}
	return &Synchronizer{
		index:    index,
		opts:     opts,
		versions: versions,
		queue:    make(chan Event, opts.QueueSize),
	}, nil
}

// Start launches the workers. Cancelling ctx aborts in-flight retries;
// use Shutdown for a graceful drain.
func (s *Synchronizer) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(ctx)

	for i := 0; i < s.opts.Workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	middleware.Logger.Info("Index synchronizer started",
		slog.Int("workers", s.opts.Workers),
		slog.Int("queue_size", s.opts.QueueSize),
	)
}

// EnqueueUpsert schedules doc for indexing. It reports whether the event was
// accepted.
func (s *Synchronizer) EnqueueUpsert(doc Document) bool {
	d := doc
	return s.Enqueue(s.newEvent(KindUpsert, doc.ID, doc.Version(), &d))
}

// EnqueueRemove schedules removal of id at version.
func (s *Synchronizer) EnqueueRemove(id uuid.UUID, version time.Time) bool {
	return s.Enqueue(s.newEvent(KindRemove, id, version, nil))
}

func (s *Synchronizer) newEvent(kind Kind, id uuid.UUID, version time.Time, doc *Document) Event {
	return Event{
		ID:         newEventID(),
		Kind:       kind,
		PostID:     id,
		Version:    version.UTC(),
		Doc:        doc,
		EnqueuedAt: s.opts.Now(),
	}
}

func newEventID() ulid.ULID {
	return ulid.Make()
}

// Enqueue hands ev to the workers without blocking. A full or closed queue
// drops the event.
func (s *Synchronizer) Enqueue(ev Event) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		s.drop(ev, "synchronizer closed")
		return false
	}
	select {
	case s.queue <- ev:
		observability.SyncQueueDepth.Inc()
		return true
	default:
		observability.SyncEvents.WithLabelValues(string(ev.Kind), observability.OutcomeQueueFull).Inc()
		s.drop(ev, "queue full")
		return false
	}
}

// EnqueueWait is Enqueue for bulk producers: it waits for queue space until
// ctx is done.
func (s *Synchronizer) EnqueueWait(ctx context.Context, ev Event) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}
	select {
	case s.queue <- ev:
		observability.SyncQueueDepth.Inc()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Synchronizer) drop(ev Event, reason string) {
	middleware.Logger.Warn("Dropping index event",
		slog.String("event_id", ev.ID.String()),
		slog.String("kind", string(ev.Kind)),
		slog.String("post_id", ev.PostID.String()),
		slog.String("reason", reason),
	)
}

// Shutdown stops intake and waits for queued events to drain. If ctx ends
// first, in-flight work is cancelled and ctx's error returned.
func (s *Synchronizer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	started := s.started
	s.mu.Unlock()

	if !started {
		return nil
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		middleware.Logger.Info("Index synchronizer drained")
		return nil
	case <-ctx.Done():
		s.cancel()
		<-done
		return ctx.Err()
	}
}

func (s *Synchronizer) worker() {
	defer s.wg.Done()
	for ev := range s.queue {
		observability.SyncQueueDepth.Dec()
		s.process(s.ctx, ev)
	}
}

func (s *Synchronizer) process(ctx context.Context, ev Event) {
	kind := string(ev.Kind)
	defer func() {
		observability.SyncLatency.WithLabelValues(kind).Observe(s.opts.Now().Sub(ev.EnqueuedAt).Seconds())
	}()

	if s.versions.stale(ev.PostID, ev.Version) {
		observability.SyncEvents.WithLabelValues(kind, observability.OutcomeStale).Inc()
		return
	}

	err := s.apply(ctx, ev)
	switch {
	case err == nil:
		s.versions.observe(ev.PostID, ev.Version)
		observability.SyncEvents.WithLabelValues(kind, observability.OutcomeApplied).Inc()
	case errors.Is(err, ErrStale):
		// The index already holds this version or a newer one.
		s.versions.observe(ev.PostID, ev.Version)
		observability.SyncEvents.WithLabelValues(kind, observability.OutcomeStale).Inc()
	case errors.Is(err, ErrRejected):
		observability.SyncEvents.WithLabelValues(kind, observability.OutcomeFailed).Inc()
		middleware.Logger.Error("Index rejected event",
			slog.String("event_id", ev.ID.String()),
			slog.String("kind", kind),
			slog.String("post_id", ev.PostID.String()),
			slog.String("error", err.Error()),
		)
	default:
		observability.SyncEvents.WithLabelValues(kind, observability.OutcomeDropped).Inc()
		middleware.Logger.Warn("Index event dropped after retries",
			slog.String("event_id", ev.ID.String()),
			slog.String("kind", kind),
			slog.String("post_id", ev.PostID.String()),
			slog.String("error", err.Error()),
		)
	}
}

// apply calls the index with a per-attempt timeout, retrying transient
// failures with exponential backoff.
func (s *Synchronizer) apply(ctx context.Context, ev Event) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.opts.InitialBackoff
	b.MaxInterval = s.opts.MaxBackoff

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, s.opts.AttemptTimeout)
		defer cancel()

		var err error
		switch ev.Kind {
		case KindUpsert:
			if ev.Doc == nil {
				err = ErrRejected
				break
			}
			err = s.index.Upsert(attemptCtx, *ev.Doc)
		case KindRemove:
			err = s.index.Remove(attemptCtx, ev.PostID, ev.Version)
		default:
			err = ErrRejected
		}

		switch {
		case err == nil:
			observability.SyncAttempts.WithLabelValues(string(ev.Kind), "ok").Inc()
			return struct{}{}, nil
		case errors.Is(err, ErrStale):
			observability.SyncAttempts.WithLabelValues(string(ev.Kind), "stale").Inc()
			return struct{}{}, backoff.Permanent(err)
		case errors.Is(err, ErrRejected):
			observability.SyncAttempts.WithLabelValues(string(ev.Kind), "rejected").Inc()
			return struct{}{}, backoff.Permanent(err)
		default:
			observability.SyncAttempts.WithLabelValues(string(ev.Kind), "error").Inc()
			middleware.Logger.Debug("Index call failed",
				slog.String("event_id", ev.ID.String()),
				slog.String("post_id", ev.PostID.String()),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
			return struct{}{}, err
		}
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(s.opts.MaxAttempts)))
	return err
}
