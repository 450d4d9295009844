// Package bootstrap wires configuration into the engine's long-lived
// components for the server and the admin tooling.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"lumen/internal/analytics"
	"lumen/internal/cache"
	"lumen/internal/config"
	"lumen/internal/database"
	"lumen/internal/featureflags"
	"lumen/internal/middleware"
	"lumen/internal/observability"
	"lumen/internal/repository"
	"lumen/internal/search"
	"lumen/internal/server"
	"lumen/internal/service"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	// ApplySchema runs the DB_SCHEMA_MODE policy on connect.
	ApplySchema bool
	// Tracing installs the OpenTelemetry provider from config.
	Tracing bool
}

// Runtime holds the engine's components and owns their lifecycle.
type Runtime struct {
	Config *config.Config
	DB     *gorm.DB
	Redis  *redis.Client
	Flags  *featureflags.Manager

	Index        search.Index
	Elastic      *search.ElasticIndex
	Synchronizer *search.Synchronizer
	Reconciler   *search.Reconciler
	Views        *analytics.Deduplicator

	Users    repository.UserRepository
	Posts    repository.PostRepository
	Comments repository.CommentRepository
	Likes    repository.LikeRepository
	Bookmark repository.BookmarkRepository
	Follows  repository.FollowRepository

	PostService        *service.PostService
	CommentService     *service.CommentService
	InteractionService *service.InteractionService
	FollowService      *service.FollowService
	SearchService      *service.SearchService
	UserService        *service.UserService

	stopTracing func(context.Context) error
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// InitRuntime connects to the primary store and Redis, selects the search
// backend and builds every service. Background work starts with Start.
func InitRuntime(ctx context.Context, cfg *config.Config, opts Options) (*Runtime, error) {
	rt := &Runtime{
		Config:      cfg,
		Flags:       featureflags.NewManager(cfg.FeatureFlags),
		stopTracing: func(context.Context) error { return nil },
	}

	if opts.Tracing {
		stop, err := observability.InitTracing(observability.TracingConfig{
			ServiceName:  observability.ServiceName,
			Environment:  cfg.Env,
			Enabled:      cfg.TracingEnabled,
			Exporter:     cfg.TracingExporter,
			OTLPEndpoint: cfg.OTLPEndpoint,
			SamplerRatio: cfg.TracingSampleRatio,
		})
		if err != nil {
			return nil, fmt.Errorf("init tracing: %w", err)
		}
		rt.stopTracing = stop
	}

	db, err := database.ConnectWithOptions(ctx, cfg, database.ConnectOptions{ApplySchema: opts.ApplySchema})
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	rt.DB = db

	// May leave a nil client; analytics and rate limits then degrade.
	cache.InitRedis(cfg.RedisURL)
	rt.Redis = cache.GetClient()

	if err := rt.initSearch(ctx); err != nil {
		return nil, err
	}
	rt.initServices()
	return rt, nil
}

// Assemble builds a runtime over stores the caller already opened. rdb may
// be nil. Tracing is left untouched.
func Assemble(ctx context.Context, cfg *config.Config, db *gorm.DB, rdb *redis.Client) (*Runtime, error) {
	rt := &Runtime{
		Config:      cfg,
		DB:          db,
		Redis:       rdb,
		Flags:       featureflags.NewManager(cfg.FeatureFlags),
		stopTracing: func(context.Context) error { return nil },
	}
	if err := rt.initSearch(ctx); err != nil {
		return nil, err
	}
	rt.initServices()
	return rt, nil
}

func (rt *Runtime) initSearch(ctx context.Context) error {
	cfg := rt.Config
	switch cfg.SearchBackend {
	case config.SearchBackendElastic:
		es := search.NewElasticIndex(cfg.ElasticsearchURL, cfg.SearchIndex, &http.Client{Timeout: 10 * time.Second})
		if err := es.EnsureIndex(ctx); err != nil {
			// The reconciler backfills once the cluster is reachable.
			middleware.Logger.Warn("Search index not ready",
				slog.String("index", cfg.SearchIndex),
				slog.String("error", err.Error()),
			)
		}
		rt.Index = es
		rt.Elastic = es
	default:
		rt.Index = search.NewMemoryIndex()
	}

	syncer, err := search.NewSynchronizer(rt.Index, search.SyncOptions{
		Workers:          cfg.SyncWorkers,
		QueueSize:        cfg.SyncQueueSize,
		MaxAttempts:      cfg.SyncMaxAttempts,
		AttemptTimeout:   cfg.SyncAttemptTimeout,
		InitialBackoff:   cfg.SyncInitialBackoff,
		MaxBackoff:       cfg.SyncMaxBackoff,
		VersionCacheSize: cfg.SyncVersionCacheSize,
	})
	if err != nil {
		return fmt.Errorf("create synchronizer: %w", err)
	}
	rt.Synchronizer = syncer
	return nil
}

func (rt *Runtime) initServices() {
	db := rt.DB
	rt.Users = repository.NewUserRepository(db)
	rt.Posts = repository.NewPostRepository(db)
	rt.Comments = repository.NewCommentRepository(db)
	rt.Likes = repository.NewLikeRepository(db)
	rt.Bookmark = repository.NewBookmarkRepository(db)
	rt.Follows = repository.NewFollowRepository(db)

	rt.Views = analytics.New(rt.Redis, rt.Posts, analytics.Options{
		Timeout:   rt.Config.ViewTimeout,
		Retention: time.Duration(rt.Config.VisitRetentionDays) * 24 * time.Hour,
	})
	rt.Reconciler = search.NewReconciler(rt.Posts, rt.Synchronizer, rt.Config.ReconcileInterval, nil)

	rt.PostService = service.NewPostService(rt.Posts, rt.Synchronizer, rt.Views, rt.Flags, nil)
	rt.CommentService = service.NewCommentService(rt.Comments, rt.Posts, nil)
	rt.InteractionService = service.NewInteractionService(rt.Likes, rt.Bookmark, rt.Posts, nil)
	rt.FollowService = service.NewFollowService(rt.Follows, rt.Users, nil)
	rt.SearchService = service.NewSearchService(rt.Index, rt.Posts, rt.Flags)
	rt.UserService = service.NewUserService(rt.Users)
}

// Start launches the synchronizer workers and, when reconcile is set, the
// periodic reconciliation loop.
func (rt *Runtime) Start(ctx context.Context, reconcile bool) {
	ctx, rt.cancel = context.WithCancel(ctx)
	rt.Synchronizer.Start(ctx)
	if !reconcile {
		return
	}
	rt.wg.Add(1)
	go func() {
		defer rt.wg.Done()
		rt.Reconciler.Run(ctx)
	}()
}

// ServerDeps exposes the runtime to the HTTP layer.
func (rt *Runtime) ServerDeps() server.Deps {
	deps := server.Deps{
		DB:           rt.DB,
		Redis:        rt.Redis,
		Flags:        rt.Flags,
		Posts:        rt.PostService,
		Comments:     rt.CommentService,
		Interactions: rt.InteractionService,
		Follows:      rt.FollowService,
		Search:       rt.SearchService,
		Users:        rt.UserService,
	}
	if rt.Elastic != nil {
		deps.Index = rt.Elastic
	}
	return deps
}

// Close drains the synchronizer, stops the reconciler and releases
// connections. Events still queued when ctx expires are dropped.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	if rt.Synchronizer != nil {
		if err := rt.Synchronizer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("synchronizer shutdown: %w", err))
		}
	}
	if rt.cancel != nil {
		rt.cancel()
	}
	rt.wg.Wait()

	if err := cache.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close redis: %w", err))
	}
	if err := database.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close database: %w", err))
	}
	if err := rt.stopTracing(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop tracing: %w", err))
	}
	return errors.Join(errs...)
}
