package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/randalmurphal/esdiag/chat"
	"github.com/randalmurphal/esdiag/config"
	"github.com/randalmurphal/esdiag/dispatch"
	"github.com/randalmurphal/esdiag/fetch"
	"github.com/randalmurphal/esdiag/model"
	_ "github.com/randalmurphal/esdiag/openai"
	"github.com/randalmurphal/esdiag/provider"
	"github.com/randalmurphal/esdiag/server"
	"github.com/randalmurphal/esdiag/session"
	"github.com/randalmurphal/esdiag/tokens"
)

func runServe(args []string) error {
	var (
		configPath string
		listen     string
		watch      bool
		logs       logFlags
	)
	fs := pflag.NewFlagSet("esdiag serve", pflag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "config file, YAML or TOML (default $"+config.EnvPath+")")
	fs.StringVar(&listen, "listen", "", "listen address, overrides the config")
	fs.BoolVar(&watch, "watch", true, "reload clusters when the config file changes")
	logs.add(fs)
	if help, err := parseFlags(fs, args); help || err != nil {
		return err
	}

	logger, err := logs.logger()
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if listen != "" {
		cfg.Listen = listen
	}
	if configPath == "" {
		configPath = os.Getenv(config.EnvPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, registry, err := build(cfg, logger)
	if err != nil {
		return err
	}

	if watch && configPath != "" {
		err := config.Watch(ctx, configPath, func(next config.Config) {
			if err := registry.Set(next.Clusters); err != nil {
				logger.Error("cluster reload rejected", slog.Any("error", err))
				return
			}
			logger.Info("clusters reloaded", slog.Any("clusters", registry.IDs()))
		}, logger)
		if err != nil {
			logger.Warn("config watch disabled", slog.Any("error", err))
		}
	}

	return srv.ListenAndServe(ctx, cfg.Listen)
}

// build wires the engine, cluster registry, protocol and session store
// into an HTTP server.
func build(cfg config.Config, logger *slog.Logger) (*server.Server, *fetch.Registry, error) {
	engine, err := provider.New(cfg.Engine.Provider, cfg.Engine)
	if err != nil {
		return nil, nil, fmt.Errorf("engine: %w", err)
	}

	registry := fetch.NewRegistry()
	if err := registry.Set(cfg.Clusters); err != nil {
		return nil, nil, err
	}
	fetcher := fetch.NewElasticsearch(registry,
		fetch.WithTimeout(cfg.Fetch.Timeout),
		fetch.WithLogger(logger),
	)

	policy, err := cfg.BuildPolicy()
	if err != nil {
		return nil, nil, err
	}
	prompts, err := cfg.Prompts.Compile()
	if err != nil {
		return nil, nil, err
	}

	budget := tokens.ForModel(cfg.Engine.Model, cfg.Engine.MaxTokens)
	if !budget.Fits(cfg.History.TokenBudget) {
		logger.Warn("history token budget exceeds the model context",
			slog.String("model", cfg.Engine.Model),
			slog.Int("token_budget", cfg.History.TokenBudget),
			slog.Int("model_history", budget.History()),
		)
	}

	counter := tokens.NewChatEstimator()
	usage := model.NewCostTracker()
	proto := dispatch.New(engine, fetcher,
		dispatch.WithCounter(counter),
		dispatch.WithModel(cfg.Engine.Model),
		dispatch.WithPrompts(prompts),
		dispatch.WithPolicy(policy),
		dispatch.WithPayloadCap(cfg.History.PayloadCap),
		dispatch.WithTimeouts(cfg.Engine.EffectiveTimeout(), cfg.Fetch.Timeout),
		dispatch.WithUsage(usage),
		dispatch.WithLogger(logger),
	)

	storeOpts := []session.Option{
		session.WithTokenBudget(cfg.History.TokenBudget),
		session.WithLogger(logger),
	}
	if cfg.History.IdleTTL > 0 {
		storeOpts = append(storeOpts, session.WithIdleTTL(cfg.History.IdleTTL, cfg.History.IdleTTL/4))
	}
	store := session.NewStore(storeOpts...)

	chatOpts := []chat.Option{
		chat.WithCounter(counter, cfg.Engine.Model),
		chat.WithSeedBudget(cfg.Seed.TotalBudget),
		chat.WithClusterCheck(func(id string) bool {
			_, ok := registry.Cluster(id)
			return ok
		}),
		chat.WithLogger(logger),
	}
	if len(cfg.Seed.Endpoints) > 0 {
		chatOpts = append(chatOpts, chat.WithStatsEndpoints(cfg.Seed.Endpoints...))
	}
	svc := chat.NewService(store, proto, fetcher, chatOpts...)

	srv, err := server.New(svc, server.WithUsage(usage), server.WithLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	logger.Info("esdiag configured",
		slog.String("provider", engine.Provider()),
		slog.String("model", cfg.Engine.Model),
		slog.Any("clusters", registry.IDs()),
	)
	return srv, registry, nil
}
