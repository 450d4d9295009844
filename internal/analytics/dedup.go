// Package analytics counts unique views and daily visits per post in Redis.
//
// Unique views are deduplicated with one HyperLogLog per post. Only a PFADD
// that reports a register change bumps the durable view_count, so the column
// stays exact while the HLL estimate stays approximate. HLLs are never reset;
// they are removed together with the visit counters when the post is deleted.
package analytics

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"lumen/internal/cache"
	"lumen/internal/middleware"
	"lumen/internal/models"
	"lumen/internal/observability"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ViewCounter persists confirmed-unique views.
type ViewCounter interface {
	IncrementViewCount(ctx context.Context, id uuid.UUID) error
}

// Options tunes the deduplicator. Zero values fall back to defaults.
type Options struct {
	Timeout        time.Duration
	Retention      time.Duration
	MaxAttempts    uint
	InitialBackoff time.Duration
	Now            func() time.Time
}

// Deduplicator registers views and visits. A nil Redis client turns every
// operation into a no-op.
type Deduplicator struct {
	rdb   *redis.Client
	posts ViewCounter
	opts  Options
}

// New returns a deduplicator writing to rdb and bumping view counts through posts.
func New(rdb *redis.Client, posts ViewCounter, opts Options) *Deduplicator {
	if opts.Timeout <= 0 {
		opts.Timeout = 250 * time.Millisecond
	}
	if opts.Retention <= 0 {
		opts.Retention = 30 * 24 * time.Hour
	}
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = 3
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 20 * time.Millisecond
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Deduplicator{rdb: rdb, posts: posts, opts: opts}
}

// Enabled reports whether a Redis client is configured.
func (d *Deduplicator) Enabled() bool {
	return d != nil && d.rdb != nil
}

// RegisterView adds viewerKey to the post's HLL and reports whether the key
// was new. Failures are retried, logged and reported as not unique.
func (d *Deduplicator) RegisterView(ctx context.Context, postID uuid.UUID, viewerKey string) bool {
	if !d.Enabled() || viewerKey == "" {
		return false
	}

	added, err := retry(ctx, d, "pfadd", func(ctx context.Context) (int64, error) {
		return d.rdb.PFAdd(ctx, cache.ViewHLLKey(postID), viewerKey).Result()
	})
	if err != nil {
		observability.ViewRegistrations.WithLabelValues(observability.OutcomeDropped).Inc()
		middleware.Logger.WarnContext(ctx, "View registration dropped",
			slog.String("post_id", postID.String()),
			slog.String("error", err.Error()),
		)
		return false
	}
	if added != 1 {
		observability.ViewRegistrations.WithLabelValues("repeat").Inc()
		return false
	}

	observability.ViewRegistrations.WithLabelValues("unique").Inc()
	if err := d.posts.IncrementViewCount(ctx, postID); err != nil {
		middleware.Logger.ErrorContext(ctx, "Failed to persist unique view",
			slog.String("post_id", postID.String()),
			slog.String("error", err.Error()),
		)
	}
	return true
}

// EstimateUniqueViews returns the HLL cardinality of the post's viewers.
func (d *Deduplicator) EstimateUniqueViews(ctx context.Context, postID uuid.UUID) (int64, error) {
	if !d.Enabled() {
		return 0, nil
	}
	n, err := retry(ctx, d, "pfcount", func(ctx context.Context) (int64, error) {
		return d.rdb.PFCount(ctx, cache.ViewHLLKey(postID)).Result()
	})
	if err != nil {
		return 0, models.NewTransientError("unique view estimate unavailable", err)
	}
	return n, nil
}

// RecordDailyVisit bumps today's visit counter and refreshes its expiry in one
// MULTI block.
func (d *Deduplicator) RecordDailyVisit(ctx context.Context, postID uuid.UUID) {
	if !d.Enabled() {
		return
	}
	key := cache.VisitKey(postID, d.opts.Now())
	_, err := retry(ctx, d, "visit", func(ctx context.Context) (struct{}, error) {
		_, err := d.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Incr(ctx, key)
			pipe.Expire(ctx, key, d.opts.Retention)
			return nil
		})
		return struct{}{}, err
	})
	if err != nil {
		middleware.Logger.WarnContext(ctx, "Daily visit dropped",
			slog.String("post_id", postID.String()),
			slog.String("error", err.Error()),
		)
	}
}

// DailyVisits returns the visit counters of the last days days, oldest first.
// Days without a counter report zero.
func (d *Deduplicator) DailyVisits(ctx context.Context, postID uuid.UUID, days int) ([]models.DailyVisit, error) {
	if days <= 0 {
		return []models.DailyVisit{}, nil
	}
	today := d.opts.Now().UTC()
	out := make([]models.DailyVisit, days)
	keys := make([]string, days)
	for i := 0; i < days; i++ {
		day := today.AddDate(0, 0, i-days+1)
		out[i].Day = day.Format(cache.VisitDayLayout)
		keys[i] = cache.VisitKey(postID, day)
	}
	if !d.Enabled() {
		return out, nil
	}

	vals, err := retry(ctx, d, "mget", func(ctx context.Context) ([]interface{}, error) {
		return d.rdb.MGet(ctx, keys...).Result()
	})
	if err != nil {
		return nil, models.NewTransientError("daily visits unavailable", err)
	}
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			out[i].Visits = n
		}
	}
	return out, nil
}

// Forget removes every analytics structure of a post.
func (d *Deduplicator) Forget(ctx context.Context, postID uuid.UUID) error {
	if !d.Enabled() {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*d.opts.Timeout)
	defer cancel()

	keys := []string{cache.ViewHLLKey(postID)}
	iter := d.rdb.Scan(ctx, 0, cache.VisitKeyGlob(postID), 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return models.NewTransientError("scan visit counters", err)
	}
	if err := d.rdb.Del(ctx, keys...).Err(); err != nil {
		return models.NewTransientError("delete analytics keys", err)
	}
	return nil
}

// retry runs op with a per-attempt timeout and exponential backoff.
func retry[T any](ctx context.Context, d *Deduplicator, op string, fn func(context.Context) (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.opts.InitialBackoff
	b.MaxInterval = 10 * d.opts.InitialBackoff

	attempt := 0
	return backoff.Retry(ctx, func() (T, error) {
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
		defer cancel()
		res, err := fn(attemptCtx)
		if err != nil && errors.Is(err, redis.Nil) {
			return res, backoff.Permanent(err)
		}
		if err != nil {
			middleware.Logger.DebugContext(ctx, "Redis call failed",
				slog.String("op", op),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
		}
		return res, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(d.opts.MaxAttempts))
}
