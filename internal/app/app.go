// Package app assembles the application: tracing, database, Genkit,
// stores, backends, and the turn orchestrator. Setup builds everything
// in dependency order; Close releases it in reverse.
package app

import (
	"context"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quillchat/quill/internal/auth"
	"github.com/quillchat/quill/internal/backend"
	"github.com/quillchat/quill/internal/config"
	"github.com/quillchat/quill/internal/conversation"
	"github.com/quillchat/quill/internal/log"
	"github.com/quillchat/quill/internal/quota"
	"github.com/quillchat/quill/internal/router"
	"github.com/quillchat/quill/internal/turn"
)

// App is the application container.
type App struct {
	Config *config.Config
	Logger log.Logger

	Genkit *genkit.Genkit
	DBPool *pgxpool.Pool

	Store         *conversation.Store
	Authenticator *auth.Authenticator
	Titler        *backend.Titler
	Turns         *turn.Orchestrator

	otelCleanup func()
}

// Close releases resources in reverse construction order.
func (a *App) Close() error {
	if a.Logger != nil {
		a.Logger.Info("shutting down application")
	}

	if a.DBPool != nil {
		a.DBPool.Close()
	}
	if a.otelCleanup != nil {
		a.otelCleanup()
	}
	return nil
}

// Setup creates and initializes the application.
// Returns an App with embedded cleanup; call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	if logger == nil {
		logger = log.NewNop()
	}
	a := &App{Config: cfg, Logger: logger}

	// On error, release whatever was already initialized.
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	a.otelCleanup = provideOtelShutdown(ctx, cfg, logger)

	pool, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.DBPool = pool

	g, err := provideGenkit(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	a.Store = conversation.NewStore(pool, logger.With("component", "conversation"))
	a.Authenticator = auth.New([]byte(cfg.AuthSecret))
	a.Titler = backend.NewTitler(g, cfg.TitleModel, logger.With("component", "titler"))

	orch, err := turn.New(turn.Config{
		Store:      a.Store,
		Guard:      quota.NewGuard(a.Store, cfg.QuotaCeiling, logger.With("component", "quota")),
		Classifier: router.New(g, cfg.RouterModel, logger.With("component", "router")),
		Text:       backend.NewText(g, cfg.ChatModel, logger.With("component", "text")),
		Image:      backend.NewImage(g, cfg.VisionModel, cfg.ImageMaxTokens, logger.With("component", "image")),
		Document:   backend.NewDocument(),
		Titler:     a.Titler,
		Timeout:    time.Duration(cfg.TurnTimeoutSeconds) * time.Second,
		Logger:     logger.With("component", "turn"),
	})
	if err != nil {
		return nil, err
	}
	a.Turns = orch

	return a, nil
}
