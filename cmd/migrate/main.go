// Command migrate manages the ordersync PostgreSQL schema.
package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/erp/ordersync/internal/infrastructure/config"
	"github.com/erp/ordersync/internal/infrastructure/logger"
	"github.com/erp/ordersync/internal/infrastructure/migration"
)

const defaultMigrationsPath = "migrations"

const usage = `ordersync schema migrations

Usage:
  migrate [flags] <command> [arguments]

Commands:
  up                    Apply all pending migrations
  down                  Roll back all migrations
  step <n>              Apply n migrations (negative n rolls back)
  version               Show the applied version
  force <version>       Set the version without running migrations
  create <name> [desc]  Write the next up/down pair to -path
  list                  List migration files in -path

Flags:
  -path string          Migrations directory (default: embedded migrations)
  -log-level string     debug, info, warn or error (default: info)

The database is read from ORDERSYNC_DATABASE_* variables or config.toml.

Examples:
  migrate up
  migrate step -1
  migrate create add_order_indexes "Index normalized orders by status"`

var errUsage = errors.New("invalid usage")

// dbCommand runs against an open migrator
type dbCommand func(m *migration.Migrator, log *zap.Logger, args []string) error

var dbCommands = map[string]dbCommand{
	"up": func(m *migration.Migrator, _ *zap.Logger, _ []string) error {
		return m.Up()
	},
	"down": func(m *migration.Migrator, _ *zap.Logger, _ []string) error {
		return m.Down()
	},
	"step": func(m *migration.Migrator, _ *zap.Logger, args []string) error {
		n, err := intArg(args, "step count")
		if err != nil {
			return err
		}
		return m.Steps(n)
	},
	"force": func(m *migration.Migrator, _ *zap.Logger, args []string) error {
		v, err := intArg(args, "version")
		if err != nil {
			return err
		}
		return m.Force(v)
	},
	"version": func(m *migration.Migrator, log *zap.Logger, _ []string) error {
		version, dirty, err := m.Version()
		if err != nil {
			return err
		}
		if version == 0 {
			log.Info("No migrations applied")
			return nil
		}
		log.Info("Current migration version", zap.Uint("version", version), zap.Bool("dirty", dirty))
		return nil
	},
}

func main() {
	path := flag.String("path", "", "Migrations directory (default: embedded migrations)")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Usage = func() { fmt.Fprintln(os.Stderr, usage) }
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	log, err := logger.New(&logger.Config{
		Level:      *logLevel,
		Format:     "console",
		Output:     "stdout",
		TimeFormat: "2006-01-02 15:04:05",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync(log) }()

	if err := run(log, *path, args[0], args[1:]); err != nil {
		if errors.Is(err, errUsage) {
			log.Error("Invalid arguments", zap.String("command", args[0]), zap.Error(err))
			flag.Usage()
			os.Exit(2)
		}
		log.Fatal("Migration command failed", zap.String("command", args[0]), zap.Error(err))
	}
}

func run(log *zap.Logger, path, command string, args []string) error {
	if path != "" {
		abs, err := filepath.Abs(path)
		if err != nil {
			return fmt.Errorf("resolve migrations path: %w", err)
		}
		path = abs
	}
	log.Info("Migration CLI started", zap.String("command", command), zap.String("migrations_path", path))

	switch command {
	case "create":
		return createMigration(log, sourceDir(path), args)
	case "list":
		return listMigrations(log, sourceDir(path))
	}

	cmd, ok := dbCommands[command]
	if !ok {
		return fmt.Errorf("%w: unknown command %q", errUsage, command)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	m, err := migration.New(db, path, log)
	if err != nil {
		return err
	}
	defer m.Close()

	return cmd(m, log, args)
}

func createMigration(log *zap.Logger, dir string, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: migration name required", errUsage)
	}
	description := ""
	if len(args) > 1 {
		description = args[1]
	}
	mf, err := migration.CreateMigration(dir, args[0], description)
	if err != nil {
		return err
	}
	log.Info("Migration created",
		zap.String("version", mf.Version),
		zap.String("up_file", mf.UpPath),
		zap.String("down_file", mf.DownPath),
	)
	return nil
}

func listMigrations(log *zap.Logger, dir string) error {
	names, err := migration.ListMigrations(dir)
	if err != nil {
		return err
	}
	log.Info("Available migrations", zap.Int("count", len(names)))
	for _, name := range names {
		fmt.Println("  -", name)
	}
	return nil
}

func intArg(args []string, what string) (int, error) {
	if len(args) == 0 {
		return 0, fmt.Errorf("%w: %s required", errUsage, what)
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s %q", errUsage, what, args[0])
	}
	return n, nil
}

// create and list work on the source tree, never on the embedded copy
func sourceDir(path string) string {
	if path != "" {
		return path
	}
	return defaultMigrationsPath
}
