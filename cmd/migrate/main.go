// Command migrate applies the batch and prompt schema to PostgreSQL. It reads
// the same EMCODE_DB_* variables as the server; -dsn overrides them.
package main

import (
	"embed"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	_ "github.com/golang-migrate/migrate/v4/database/postgres"

	"github.com/JaimeStill/emcode/internal/config"
	"github.com/JaimeStill/emcode/pkg/database"
)

//go:embed migrations/*.sql
var migrations embed.FS

type options struct {
	dsn     string
	up      bool
	down    bool
	steps   int
	version bool
	force   int
	forced  bool
}

func main() {
	var opts options
	flag.StringVar(&opts.dsn, "dsn", "", "database URL (default built from EMCODE_DB_* variables)")
	flag.BoolVar(&opts.up, "up", false, "apply all pending migrations")
	flag.BoolVar(&opts.down, "down", false, "revert all migrations")
	flag.IntVar(&opts.steps, "steps", 0, "apply N migrations (negative reverts)")
	flag.BoolVar(&opts.version, "version", false, "print the schema version")
	flag.IntVar(&opts.force, "force", -1, "force the schema version after a failed migration")
	flag.Parse()

	flag.Visit(func(f *flag.Flag) {
		opts.forced = opts.forced || f.Name == "force"
	})

	if err := run(opts); err != nil {
		slog.Error("migrate failed", "error", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	if !opts.up && !opts.down && !opts.version && !opts.forced && opts.steps == 0 {
		fmt.Fprintln(os.Stderr, "usage: migrate [-dsn url] -up | -down | -steps N | -version | -force N")
		flag.PrintDefaults()
		return nil
	}

	dsn, err := resolveDSN(opts.dsn)
	if err != nil {
		return err
	}

	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, dsn)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer m.Close()

	switch {
	case opts.version:
		v, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			slog.Info("schema empty")
			return nil
		}
		if err != nil {
			return fmt.Errorf("read version: %w", err)
		}
		slog.Info("schema version", "version", v, "dirty", dirty)
		return nil
	case opts.forced:
		if err := m.Force(opts.force); err != nil {
			return fmt.Errorf("force version %d: %w", opts.force, err)
		}
		slog.Info("schema version forced", "version", opts.force)
		return nil
	case opts.up:
		return apply("up", m.Up())
	case opts.down:
		return apply("down", m.Down())
	default:
		return apply(fmt.Sprintf("steps %d", opts.steps), m.Steps(opts.steps))
	}
}

func apply(op string, err error) error {
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		slog.Info("schema already current", "op", op)
		return nil
	case err != nil:
		return fmt.Errorf("%s: %w", op, err)
	}
	slog.Info("migrations applied", "op", op)
	return nil
}

// resolveDSN prefers the flag and otherwise builds the URL the server would
// connect with.
func resolveDSN(flagDSN string) (string, error) {
	if flagDSN != "" {
		return flagDSN, nil
	}
	cfg := database.Config{Name: "emcode", User: "emcode", Password: "emcode"}
	if err := cfg.Finalize(config.DatabaseEnv); err != nil {
		return "", fmt.Errorf("database config: %w", err)
	}
	return cfg.URL(), nil
}
