package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/ilinovom/stream-announce-bot/internal/app"
	"github.com/ilinovom/stream-announce-bot/internal/config"
	"github.com/ilinovom/stream-announce-bot/internal/metrics"
	"github.com/ilinovom/stream-announce-bot/internal/probe"
	"github.com/ilinovom/stream-announce-bot/internal/repository"
	"github.com/ilinovom/stream-announce-bot/internal/service"
	"github.com/ilinovom/stream-announce-bot/pkg/discord"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "bot",
	Short: "Announce Twitch, Kick and Rumble streams in Discord channels",
	Long: `Polls the configured streaming services and posts an announcement to
each subscribed Discord channel when a creator goes live.

Configuration is read from the environment and an optional .env file.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		setupLogging(cfg.LogLevel, cfg.LogFormat)
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBot(cmd.Context())
	},
}

func main() {
	rootCmd.AddCommand(probeCmd, stateCmd)
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func runBot(ctx context.Context) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	policy, err := service.ParseFailurePolicy(cfg.FailurePolicy)
	if err != nil {
		return err
	}

	repo, closeRepo, err := openRepository(cfg)
	if err != nil {
		return err
	}
	defer closeRepo()

	store, err := service.NewStateStore(ctx, repo)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}

	client, err := discord.NewClient(cfg.DiscordToken)
	if err != nil {
		return err
	}

	metrics.Init()
	engine := service.NewEngine(store, newRegistry(cfg), client, service.EngineConfig{
		Policy: policy,
		Logger: slog.Default().With("component", "engine"),
	})

	slog.Info("starting bot",
		"store", cfg.StoreDriver,
		"interval", cfg.PollInterval,
		"policy", cfg.FailurePolicy)
	return app.New(cfg, client, store, engine, slog.Default()).Run(ctx)
}

// openRepository returns the configured state backend and a func releasing it.
func openRepository(cfg *config.Config) (repository.StateRepository, func(), error) {
	switch cfg.StoreDriver {
	case config.StorePostgres, config.StoreSQLite:
		repo, err := repository.NewSQLStateRepository(cfg.StoreDriver, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return repo, func() {
			if err := repo.Close(); err != nil {
				slog.Warn("close database", "error", err)
			}
		}, nil
	default:
		return repository.NewFileStateRepository(cfg.DataPath), func() {}, nil
	}
}

func newRegistry(cfg *config.Config) *probe.Registry {
	opts := probe.Options{
		Timeout:     cfg.ProbeTimeout,
		Concurrency: cfg.ProbeConcurrency,
		UserAgent:   cfg.ProbeUserAgent,
		Logger:      slog.Default().With("component", "probe"),
	}
	if cfg.ProbeRate > 0 {
		opts.Limiter = rate.NewLimiter(rate.Limit(cfg.ProbeRate), 1)
	}
	return probe.DefaultRegistry(opts)
}

func setupLogging(level, format string) {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	var handler slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
