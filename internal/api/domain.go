package api

import (
	"github.com/JaimeStill/emcode/internal/config"
	"github.com/JaimeStill/emcode/internal/pipeline"
	"github.com/JaimeStill/emcode/internal/prompts"
)

// Domain holds all domain systems that comprise the API.
type Domain struct {
	Pipeline pipeline.System
	Prompts  prompts.System
}

// NewDomain creates all domain systems from the API runtime. Without a
// database, batches and prompt overrides live in process memory.
func NewDomain(runtime *Runtime) *Domain {
	var (
		store         pipeline.Store
		promptsSystem prompts.System
	)

	if runtime.Database != nil {
		store = pipeline.NewPostgresStore(
			runtime.Database.Connection(),
			runtime.Logger,
			runtime.Pagination,
		)
		promptsSystem = prompts.New(runtime.Database.Connection(), runtime.Logger)
	} else {
		store = pipeline.NewMemoryStore(runtime.Pagination)
		promptsSystem = prompts.Defaults(runtime.Logger)
	}

	pipelineSystem := pipeline.New(
		store,
		runtime.Model,
		promptsSystem,
		runtime.Storage,
		pipelineConfig(runtime.Pipeline),
		runtime.Logger,
		runtime.Pagination,
	)

	return &Domain{
		Pipeline: pipelineSystem,
		Prompts:  promptsSystem,
	}
}

func pipelineConfig(cfg config.PipelineConfig) pipeline.Config {
	return pipeline.Config{
		MaxConcurrency: cfg.MaxConcurrency,
		EnhanceTimeout: cfg.EnhanceTimeoutDuration(),
		AuditTimeout:   cfg.AuditTimeoutDuration(),
	}
}
