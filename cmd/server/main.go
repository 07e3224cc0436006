// Command server runs list-flix.
//
//	server serve   [--config config.toml]   start the HTTP server
//	server migrate [--config config.toml]   apply database migrations and exit
//
// Configuration comes from the TOML file, then the environment; a .env file
// in the working directory is loaded first.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/urfave/cli/v3"

	"github.com/akruel/list-flix/internal/config"
	sqliteRepo "github.com/akruel/list-flix/internal/repository/sqlite"
	"github.com/akruel/list-flix/internal/server"
)

func main() {
	_ = godotenv.Load()

	configFlag := &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
		Sources: cli.EnvVars("LIST_FLIX_CONFIG"),
	}

	app := &cli.Command{
		Name:  "list-flix",
		Usage: "Shared movie and TV watchlists",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Start the HTTP server",
				Flags:  []cli.Flag{configFlag},
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "Apply database migrations and exit",
				Flags:  []cli.Flag{configFlag},
				Action: migrate,
			},
		},
		DefaultCommand: "serve",
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "list-flix: %v\n", err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, logger, err := load(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := server.New(ctx, cfg, logger, server.Options{})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	return srv.Start(ctx)
}

func migrate(_ context.Context, cmd *cli.Command) error {
	cfg, logger, err := load(cmd)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return fmt.Errorf("creating database directory: %w", err)
	}
	// Opening the database applies pending migrations.
	db, err := sqliteRepo.New(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	version, err := db.Migrate(context.Background())
	if err != nil {
		return err
	}
	logger.Info("database up to date",
		slog.String("path", cfg.Database.Path),
		slog.Int64("version", version),
	)
	return nil
}

func load(cmd *cli.Command) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("loading configuration: %w", err)
	}
	level, _ := cfg.LogLevel()
	logger := newLogger(os.Stdout, cfg.Log.Format, level)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// newLogger returns a colored text logger for development or a JSON logger
// for log collectors.
func newLogger(w io.Writer, format string, level slog.Level) *slog.Logger {
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if err, ok := a.Value.Any().(error); ok {
				aErr := tint.Err(err)
				aErr.Key = a.Key
				return aErr
			}
			return a
		},
	}))
}
