package search

import (
	"context"
	"log/slog"
	"time"

	"lumen/internal/middleware"
	"lumen/internal/models"
	"lumen/internal/observability"
)

// PostSource streams posts changed since a point in time.
type PostSource interface {
	ForEachUpdatedSince(ctx context.Context, since time.Time, batchSize int, fn func([]*models.Post) error) error
}

// Sink accepts events, waiting for capacity.
type Sink interface {
	EnqueueWait(ctx context.Context, ev Event) error
}

// SweepStats summarizes one reconciliation sweep.
type SweepStats struct {
	Scanned  int
	Upserts  int
	Removes  int
	Since    time.Time
	Finished time.Time
}

// Reconciler re-enqueues index events for recently changed posts so that
// events lost to a full queue or exhausted retries are eventually repaired.
// Posts deleted outright are not covered; their remove event carries the
// deletion time and only a live index call can apply it.
type Reconciler struct {
	posts     PostSource
	sink      Sink
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

// NewReconciler returns a reconciler sweeping every interval. An interval of
// zero disables the periodic loop; Sweep still works on demand.
func NewReconciler(posts PostSource, sink Sink, interval time.Duration, now func() time.Time) *Reconciler {
	if now == nil {
		now = time.Now
	}
	return &Reconciler{
		posts:     posts,
		sink:      sink,
		interval:  interval,
		batchSize: 200,
		now:       now,
	}
}

// Sweep enqueues an upsert for every published post and a remove for every
// other post updated at or after since.
func (r *Reconciler) Sweep(ctx context.Context, since time.Time) (SweepStats, error) {
	stats := SweepStats{Since: since}
	err := r.posts.ForEachUpdatedSince(ctx, since, r.batchSize, func(batch []*models.Post) error {
		for _, p := range batch {
			stats.Scanned++
			ev := Event{PostID: p.ID, Version: p.UpdatedAt.UTC(), EnqueuedAt: r.now()}
			if p.Published() {
				doc := Project(p)
				ev.Kind = KindUpsert
				ev.Doc = &doc
				stats.Upserts++
			} else {
				ev.Kind = KindRemove
				stats.Removes++
			}
			ev.ID = newEventID()
			if err := r.sink.EnqueueWait(ctx, ev); err != nil {
				return err
			}
		}
		return nil
	})
	stats.Finished = r.now()
	if err != nil {
		observability.ReconcileRuns.WithLabelValues("error").Inc()
		return stats, err
	}
	observability.ReconcileRuns.WithLabelValues("ok").Inc()
	return stats, nil
}

// Run sweeps everything once, then on every tick re-sweeps from the start
// of the previous sweep. It returns when ctx is done.
func (r *Reconciler) Run(ctx context.Context) {
	if r.interval <= 0 {
		middleware.Logger.Info("Index reconciler disabled")
		return
	}

	watermark := time.Time{}
	sweep := func() {
		start := r.now()
		stats, err := r.Sweep(ctx, watermark)
		if err != nil {
			if ctx.Err() == nil {
				middleware.Logger.Warn("Index reconciliation failed",
					slog.Time("since", watermark),
					slog.String("error", err.Error()),
				)
			}
			return
		}
		// Overlap by one interval so rows committed mid-sweep with an
		// older updated_at are picked up next time.
		watermark = start.Add(-r.interval)
		middleware.Logger.Info("Index reconciliation finished",
			slog.Int("scanned", stats.Scanned),
			slog.Int("upserts", stats.Upserts),
			slog.Int("removes", stats.Removes),
		)
	}

	sweep()
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep()
		}
	}
}
