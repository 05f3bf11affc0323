// Package infrastructure builds the process-wide systems every domain module
// shares: the lifecycle coordinator, the logger, the batch database, note
// storage, and the instrumented inference model.
package infrastructure

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/JaimeStill/emcode/internal/config"
	"github.com/JaimeStill/emcode/internal/inference"
	"github.com/JaimeStill/emcode/pkg/database"
	"github.com/JaimeStill/emcode/pkg/lifecycle"
	"github.com/JaimeStill/emcode/pkg/storage"
)

// Infrastructure holds the core systems required by all domain modules.
// Database is nil when the pipeline runs on the in-memory store, and Storage
// is nil when no blob storage is configured.
type Infrastructure struct {
	Lifecycle *lifecycle.Coordinator
	Logger    *slog.Logger
	Database  database.System
	Storage   storage.System
	Model     inference.Model
}

// New builds every system without starting it. The inference client is built
// once here and shared by both stages of every workflow.
func New(cfg *config.Config) (*Infrastructure, error) {
	lc := lifecycle.New()
	logger := newLogger(&cfg.Logging, os.Stderr)

	infra := &Infrastructure{
		Lifecycle: lc,
		Logger:    logger,
	}

	if cfg.Pipeline.Store == config.StorePostgres {
		db, err := database.New(&cfg.Database, logger)
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		infra.Database = db
	}

	if cfg.StorageEnabled() {
		store, err := storage.New(&cfg.Storage, logger)
		if err != nil {
			return nil, fmt.Errorf("storage: %w", err)
		}
		infra.Storage = store
	}

	model, err := inference.NewAgentModel(cfg.Agent)
	if err != nil {
		return nil, fmt.Errorf("inference: %w", err)
	}

	instrumented, err := inference.Instrument(model, nil)
	if err != nil {
		return nil, fmt.Errorf("inference metrics: %w", err)
	}
	infra.Model = instrumented

	return infra, nil
}

// Start registers the database and storage hooks, and their readiness, with
// the lifecycle coordinator.
func (i *Infrastructure) Start() error {
	if i.Database != nil {
		if err := i.Database.Start(i.Lifecycle); err != nil {
			return fmt.Errorf("database start failed: %w", err)
		}
	}
	if i.Storage != nil {
		if err := i.Storage.Start(i.Lifecycle); err != nil {
			return fmt.Errorf("storage start failed: %w", err)
		}
	}
	return nil
}

func newLogger(cfg *config.LoggingConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.Format == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
