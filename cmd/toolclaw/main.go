// toolclaw is the chat gateway: it connects to the registry daemon,
// streams model output, runs the tool-calling loop and serves the HTTP
// API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/clawinfra/toolclaw/internal/api"
	"github.com/clawinfra/toolclaw/internal/config"
	"github.com/clawinfra/toolclaw/internal/models"
	"github.com/clawinfra/toolclaw/internal/orchestrator"
	"github.com/clawinfra/toolclaw/internal/rpc"
	"github.com/clawinfra/toolclaw/internal/session"
)

var version = "0.1.0"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "toolclaw.json", "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("toolclaw %s\n", version)
		return 0
	}

	var explicitConfig bool
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "config" {
			explicitConfig = true
		}
	})

	cfg, err := config.Load(*configPath)
	if err != nil {
		// The default config path may simply not exist yet; an
		// explicitly requested one must.
		if explicitConfig || !errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		cfg = config.DefaultConfig()
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: config.ParseLogLevel(cfg.LogLevel),
	}))
	logger.Info("starting toolclaw", "version", version, "registry", cfg.Registry.Addr())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := rpc.NewClient(cfg.Registry.Addr(), cfg.Registry.ReadTimeout())
	defer client.Close()
	if err := client.Connect(); err != nil {
		// Degraded mode: chat works without tools until the registry
		// comes back.
		logger.Warn("registry unreachable, starting without tools", "error", err)
	}

	sessions := session.NewStore(cfg.Session.Timeout(), logger)
	sweeper := cron.New()
	_, err = sweeper.AddFunc(fmt.Sprintf("@every %ds", cfg.Session.SweepIntervalSecs), func() {
		sessions.SweepExpired()
	})
	if err != nil {
		logger.Error("schedule session sweep", "error", err)
		return 1
	}
	sweeper.Start()
	defer sweeper.Stop()

	provider := models.NewOpenAIProvider(cfg.LLM.BaseURL, cfg.LLM.APIKey)
	orch := orchestrator.New(provider, client, sessions, cfg.Orchestrator.MaxTurns, logger)
	server := api.NewServer(cfg, orch, client, sessions, logger)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(gCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("gateway failed", "error", err)
		return 1
	}

	logger.Info("toolclaw stopped")
	return 0
}
