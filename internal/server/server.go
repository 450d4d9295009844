// Package server exposes the interaction engine over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"lumen/internal/config"
	"lumen/internal/featureflags"
	"lumen/internal/middleware"
	"lumen/internal/models"
	"lumen/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const (
	clapRateLimit  = 60
	clapRateWindow = time.Minute
)

// Pinger is implemented by search backends that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the already-initialized collaborators the HTTP layer serves.
type Deps struct {
	DB           *gorm.DB
	Redis        *redis.Client
	Flags        *featureflags.Manager
	Index        Pinger
	Posts        *service.PostService
	Comments     *service.CommentService
	Interactions *service.InteractionService
	Follows      *service.FollowService
	Search       *service.SearchService
	// Users, when set, also provisions account rows for new token subjects.
	Users *service.UserService
}

// Server holds all dependencies and provides handlers
type Server struct {
	config             *config.Config
	db                 *gorm.DB
	redis              *redis.Client
	app                *fiber.App
	promMiddleware     *fiberprometheus.FiberPrometheus
	auth               *middleware.Authenticator
	featureFlags       *featureflags.Manager
	index              Pinger
	postService        *service.PostService
	commentService     *service.CommentService
	interactionService *service.InteractionService
	followService      *service.FollowService
	searchService      *service.SearchService
	userService        *service.UserService
}

// NewServer creates a server over the given dependencies.
func NewServer(cfg *config.Config, deps Deps) *Server {
	auth := middleware.NewAuthenticator(cfg.JWTSecret)
	if deps.Users != nil {
		auth.WithProvisioner(deps.Users)
	}
	return &Server{
		config:             cfg,
		db:                 deps.DB,
		redis:              deps.Redis,
		promMiddleware:     middleware.InitMetrics("lumen-api"),
		auth:               auth,
		featureFlags:       deps.Flags,
		index:              deps.Index,
		postService:        deps.Posts,
		commentService:     deps.Comments,
		interactionService: deps.Interactions,
		followService:      deps.Follows,
		searchService:      deps.Search,
		userService:        deps.Users,
	}
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())

	// Tracing runs first so the trace id is available to the context middleware.
	if s.config.TracingEnabled {
		app.Use(middleware.TracingMiddleware())
	}
	app.Use(middleware.ContextMiddleware())

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	app.Use(helmet.New())
	app.Use(middleware.StructuredLogger())

	// CORS before anything that can short-circuit, so error responses still carry the headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	app.Use(limiter.New(limiter.Config{
		Max:        300,
		Expiration: time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(models.ErrorResponse{
				Error: "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)
	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	api := app.Group("/api")
	required := s.auth.Required()
	optional := s.auth.Optional()

	posts := api.Group("/posts")
	posts.Get("/", s.GetPosts)
	// /search and /my must be registered before the /:slug catch-all.
	posts.Get("/search", s.SearchPosts)
	posts.Get("/my", required, s.GetMyPosts)
	posts.Post("/", required, s.CreatePost)
	posts.Put("/:id", required, s.UpdatePost)
	posts.Delete("/:id", required, s.DeletePost)
	posts.Get("/:id/stats", optional, s.GetPostStats)

	posts.Get("/:id/comments", optional, s.GetComments)
	posts.Post("/:id/comments", required, s.CreateComment)

	clapLimit := middleware.RateLimit(s.redis, clapRateLimit, clapRateWindow, "clap", middleware.FailOpen)
	posts.Get("/:id/claps", optional, s.GetClaps)
	posts.Post("/:id/claps", required, clapLimit, s.Clap)
	posts.Delete("/:id/claps", required, clapLimit, s.Unclap)

	posts.Get("/:id/bookmark", required, s.GetBookmarkStatus)
	posts.Post("/:id/bookmark", required, s.Bookmark)
	posts.Delete("/:id/bookmark", required, s.Unbookmark)

	posts.Get("/:slug", optional, s.GetPost)

	comments := api.Group("/comments")
	comments.Get("/:commentId/replies", optional, s.GetReplies)
	comments.Put("/:commentId", required, s.UpdateComment)
	comments.Delete("/:commentId", required, s.DeleteComment)

	api.Get("/bookmarks", required, s.GetBookmarks)

	users := api.Group("/users")
	users.Get("/", s.GetUsers)
	users.Get("/:id", s.GetUser)
	users.Post("/:id/follow", required, s.Follow)
	users.Delete("/:id/follow", required, s.Unfollow)
	users.Get("/:id/follow-stats", optional, s.GetFollowStats)
	users.Get("/:id/followers", s.GetFollowers)
	users.Get("/:id/following", s.GetFollowing)

	admin := api.Group("/admin", required, s.ElevatedRequired())
	admin.Get("/feature-flags", s.GetFeatureFlags)
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now().UTC(),
	})
}

// ReadinessCheck reports the health of the primary store and the degradable
// dependencies. Only the primary store gates readiness; Redis and the search
// index degrade analytics and search without failing writes.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	if s.db == nil {
		dbStatus = "unavailable"
	} else if sqlDB, err := s.db.DB(); err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "healthy"
	if s.redis == nil {
		redisStatus = "unavailable"
	} else if err := s.redis.Ping(ctx).Err(); err != nil {
		redisStatus = "unhealthy"
	}

	searchStatus := "healthy"
	if s.index != nil {
		if err := s.index.Ping(ctx); err != nil {
			searchStatus = "unhealthy"
		}
	}

	status := fiber.StatusOK
	overall := "healthy"
	switch {
	case dbStatus != "healthy":
		status = fiber.StatusServiceUnavailable
		overall = "unhealthy"
	case redisStatus != "healthy" || searchStatus != "healthy":
		overall = "degraded"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overall,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
			"search":   searchStatus,
		},
		"time": time.Now().UTC(),
	})
}

// ElevatedRequired rejects actors that may not moderate. It must run after
// the authenticator.
func (s *Server) ElevatedRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, ok := middleware.ActorFrom(c)
		if !ok || !actor.Role.Elevated() {
			return models.RespondWithError(c, fiber.StatusForbidden,
				models.NewForbiddenError("Editor or admin role required"))
		}
		return c.Next()
	}
}

func (s *Server) newApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName: "Lumen API",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message})
			}
			middleware.Logger.ErrorContext(c.UserContext(), "unhandled error",
				slog.String("path", c.Path()),
				slog.String("error", err.Error()),
			)
			return models.RespondWithError(c, fiber.StatusInternalServerError,
				models.NewInternalError(err))
		},
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	return app
}

// Start builds the app and listens on the configured port. It blocks until
// the listener stops.
func (s *Server) Start() error {
	s.app = s.newApp()
	middleware.Logger.Info("Server starting", slog.String("port", s.config.Port))
	return s.app.Listen(":" + s.config.Port)
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.app == nil {
		return nil
	}
	return s.app.ShutdownWithContext(ctx)
}
