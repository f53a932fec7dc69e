// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/ansuz/internal/api"
	"github.com/starford/ansuz/internal/auth"
	"github.com/starford/ansuz/internal/commit"
	"github.com/starford/ansuz/internal/extract"
	"github.com/starford/ansuz/internal/guard"
	"github.com/starford/ansuz/internal/ledger"
	"github.com/starford/ansuz/internal/mcpserver"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/sse"
	"github.com/starford/ansuz/internal/storage"
	"github.com/starford/ansuz/internal/store"
	"github.com/starford/ansuz/internal/transcribe"
	"github.com/starford/ansuz/internal/voice"
)

// components is the wired application graph shared by the HTTP server and
// the MCP command.
type components struct {
	db     *store.DB
	guard  *guard.Source
	broker *sse.Broker
	svc    *voice.Service
}

func (c *components) close() {
	c.broker.Close()
	if err := c.db.Close(); err != nil {
		slog.Warn("close database", slog.String("error", err.Error()))
	}
}

func build(cfg *Config, logger *slog.Logger) (*components, error) {
	// Ensure blob directory exists.
	if err := os.MkdirAll(cfg.Blobs.Path, 0o700); err != nil {
		return nil, fmt.Errorf("create blobs dir: %w", err)
	}
	blobs, err := storage.NewFS(cfg.Blobs.Path)
	if err != nil {
		return nil, fmt.Errorf("init blobs: %w", err)
	}

	db, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	src, err := guard.NewSource(cfg.Guard.Terms, cfg.Guard.TermsFile, cfg.Guard.MinChars)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init guard: %w", err)
	}

	if cfg.Transcription.APIKey == "" {
		logger.Warn("transcription api key is empty; transcribe requests will fail")
	}
	if cfg.Extraction.APIKey == "" {
		logger.Warn("extraction api key is empty; preview and journal requests will fail")
	}

	llm := extract.NewAnthropic(extract.AnthropicConfig{
		APIKey:    cfg.Extraction.APIKey,
		BaseURL:   cfg.Extraction.BaseURL,
		Model:     cfg.Extraction.Model,
		MaxTokens: cfg.Extraction.MaxTokens,
		Timeout:   cfg.Extraction.Timeout,
	})
	loc := cfg.Usage.Location()
	broker := sse.NewBroker(2 * time.Second)

	svc := voice.NewService(voice.Deps{
		Store: db,
		Blobs: blobs,
		Transcriber: transcribe.NewDeepgram(transcribe.Config{
			APIKey:      cfg.Transcription.APIKey,
			BaseURL:     cfg.Transcription.BaseURL,
			Model:       cfg.Transcription.Model,
			Language:    cfg.Transcription.Language,
			SmartFormat: cfg.Transcription.SmartFormat,
			Timeout:     cfg.Transcription.Timeout,
		}),
		Extractor:  extract.NewExtractor(llm, logger),
		Classifier: extract.NewClassifier(llm, logger),
		Guard:      src,
		Quota: ledger.NewService(db, ledger.Config{
			Location:      loc,
			EstimatedCost: cfg.Usage.EstimatedCost,
		}, logger),
		Router: commit.NewRouter(db, blobs, time.Now, logger),
		Events: broker,
	}, voice.Config{
		TTL:               cfg.Capture.TTL,
		MaxBytes:          cfg.Capture.MaxBytes,
		PreviewDailyLimit: cfg.Usage.PreviewDailyLimit,
		JournalDailyLimit: cfg.Usage.JournalDailyLimit,
		Location:          loc,
		Pricing: ledger.Pricing{
			InputPerMTok:  cfg.Extraction.InputPerMTok,
			OutputPerMTok: cfg.Extraction.OutputPerMTok,
		},
	}, logger)

	return &components{db: db, guard: src, broker: broker, svc: svc}, nil
}

func (a *application) init() (*Config, *slog.Logger, error) {
	if a.config == nil {
		return nil, nil, fmt.Errorf("config is required")
	}
	if a.logger == nil {
		a.logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: a.config.App.LogLevel,
		}))
	}
	slog.SetDefault(a.logger)
	return a.config, a.logger, nil
}

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	cfg, logger, err := app.init()
	if err != nil {
		return err
	}

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("blobs_path", cfg.Blobs.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("auth_mode", cfg.Auth.Mode),
		slog.String("timezone", cfg.Usage.Timezone),
		slog.String("log_level", cfg.App.LogLevel.String()))

	c, err := build(cfg, logger)
	if err != nil {
		return err
	}
	defer c.close()

	var authn auth.Authenticator = auth.Static{Account: cfg.Auth.DevAccount()}
	if cfg.Auth.AuthEnabled() {
		authn = auth.NewJWTVerifier(cfg.Auth.Secret, cfg.Auth.Issuer)
	} else {
		logger.Warn("authentication disabled; all requests run as the dev user",
			slog.String("user_id", cfg.Auth.DevUser))
	}

	apiRouter := api.NewRouter(c.svc, authn, c.broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := c.db.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Reload banned terms when the terms file changes.
	if cfg.Guard.Watch && c.guard.Path() != "" {
		g.Go(func() error {
			if err := guard.Watch(gCtx, c.guard, logger, nil); err != nil {
				logger.Error("guard watcher failed", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		// Close SSE streams first so Shutdown does not wait on them.
		c.broker.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP serves the MCP tools for one account over stdio.
func RunMCP(_ context.Context, acct models.Account, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	cfg, logger, err := app.init()
	if err != nil {
		return err
	}
	if acct.UserID == "" {
		return fmt.Errorf("mcp: user id is required")
	}

	c, err := build(cfg, logger)
	if err != nil {
		return err
	}
	defer c.close()

	logger.Info("MCP server starting", slog.String("user_id", acct.UserID))
	return mcpserver.New(c.svc, acct).ServeStdio()
}
