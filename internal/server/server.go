package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/ragyverse/apiserver/config"
	"github.com/ragyverse/apiserver/internal/auth"
	"github.com/ragyverse/apiserver/internal/clock"
	"github.com/ragyverse/apiserver/internal/db"
	"github.com/ragyverse/apiserver/internal/handlers"
	"github.com/ragyverse/apiserver/internal/logging"
	"github.com/ragyverse/apiserver/internal/metrics"
	"github.com/ragyverse/apiserver/internal/mq"
	"github.com/ragyverse/apiserver/internal/services"
	"github.com/ragyverse/apiserver/internal/storage"
	"github.com/ragyverse/apiserver/internal/store"
	"github.com/ragyverse/apiserver/internal/synth"
	"golang.org/x/crypto/bcrypt"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	db         *sql.DB
	artifacts  *storage.Storage
	events     *mq.MQ
	logger     *slog.Logger
}

// New connects every backend named by cfg and builds the router. Backends
// opened before a failure are released before returning.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (_ *Server, err error) {
	dbConn, err := db.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	defer func() {
		if err != nil {
			_ = dbConn.Close()
		}
	}()

	if cfg.Database.AutoMigrate {
		if err := db.Migrate(dbConn, cfg.Database.Driver, db.Up); err != nil {
			return nil, err
		}
	}

	artifacts, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = artifacts.Close()
		}
	}()

	engine, err := synth.New(cfg.Synth)
	if err != nil {
		return nil, err
	}
	if hc, ok := engine.(interface{ HealthCheck(context.Context) error }); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			logger.Warn("speech service not healthy at startup", "engine", engine.Name(), "error", err)
		}
	}

	events, err := mq.Open(ctx, cfg.MQ)
	if err != nil {
		return nil, err
	}

	router := NewRouter(cfg, logger, Deps{
		DB:        dbConn,
		Artifacts: artifacts,
		Engine:    engine,
		Events:    events,
		Clock:     clock.NewRealClock(),
	})
	logRoutes(router, logger)

	port := cfg.ServerPort
	if port == 0 {
		port = 5001
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		db:         dbConn,
		artifacts:  artifacts,
		events:     events,
		logger:     logger,
	}, nil
}

// Deps are the connected backends the router is built on.
type Deps struct {
	DB        *sql.DB
	Artifacts *storage.Storage
	Engine    synth.Engine
	Events    *mq.MQ
	Clock     clock.Clock
}

// NewRouter assembles middleware, services and routes.
func NewRouter(cfg config.Config, logger *slog.Logger, deps Deps) *chi.Mux {
	clk := deps.Clock
	if clk == nil {
		clk = clock.NewRealClock()
	}

	userRepo := store.NewUserRepository(deps.DB, cfg.Database.Driver)
	historyRepo := store.NewHistoryRepository(deps.DB, cfg.Database.Driver)

	tokens := auth.NewTokenService(cfg.JWTSecret, cfg.TokenTTL, clk)
	authenticator := auth.NewAuthenticator(tokens, userRepo)
	authMiddleware := handlers.RequireAuth(authenticator)
	logger.Info("auth configured", "token_ttl", tokens.TTL().String(), "audio_require_auth", cfg.AudioRequireAuth)

	var events services.EventPublisher
	if deps.Events != nil {
		events = deps.Events
	}

	userService := services.NewUserService(userRepo, auth.NewPasswordHasher(bcrypt.DefaultCost), tokens, clk)
	historyService := services.NewHistoryService(historyRepo)
	conversionService := services.NewConversionService(deps.Engine, deps.Artifacts, historyRepo, events, clk, services.ConversionConfig{
		DefaultLanguage: cfg.Synth.Language,
		PublicBaseURL:   cfg.PublicBaseURL,
		EventChannel:    cfg.MQ.Channel,
	})
	audioService := services.NewAudioService(deps.Artifacts, historyRepo)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		logging.HTTPMiddleware(logger),
		middleware.Recoverer,
		metrics.Middleware,
		middleware.Timeout(60*time.Second),
		cors.Handler(cors.Options{
			AllowedOrigins:   cfg.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Authorization", "Content-Type"},
			ExposedHeaders:   []string{"Content-Length", "Content-Range"},
			AllowCredentials: true,
			MaxAge:           300,
		}),
	)

	router.Get("/healthz", handlers.Healthz)
	router.Get("/readyz", handlers.Readyz(deps.DB))
	router.Method(http.MethodGet, "/metrics", metrics.Handler())

	handlers.AuthRouter(router, userService)
	handlers.SpeechRouter(router, conversionService, historyService, authMiddleware)
	if cfg.AudioRequireAuth {
		handlers.AudioRouter(router, audioService, authMiddleware)
	} else {
		handlers.AudioRouter(router, audioService, nil)
	}

	return router
}

func logRoutes(router chi.Routes, logger *slog.Logger) {
	_ = chi.Walk(router, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		logger.Debug("route registered", "method", method, "route", route)
		return nil
	})
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, then releases backends.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.events != nil {
		if cerr := s.events.Close(); cerr != nil {
			s.logger.Warn("closing event bus", "error", cerr)
		}
	}
	if s.artifacts != nil {
		if cerr := s.artifacts.Close(); cerr != nil {
			s.logger.Warn("closing artifact storage", "error", cerr)
		}
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return err
}
