// toolclaw-registry is the tool registry daemon: it loads tool packs
// from disk and serves them to gateways over line-delimited JSON-RPC.
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

	"github.com/clawinfra/toolclaw/internal/audit"
	"github.com/clawinfra/toolclaw/internal/config"
	"github.com/clawinfra/toolclaw/internal/registry"
	"github.com/clawinfra/toolclaw/internal/rpc"
	"github.com/clawinfra/toolclaw/internal/toolfns"
)

var version = "0.1.0"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "toolclaw.json", "path to config file")
	toolsDir := flag.String("tools", "", "tool pack directory (overrides config)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("toolclaw-registry %s\n", version)
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
		if explicitConfig || !errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		cfg = config.DefaultConfig()
	}
	if *toolsDir != "" {
		cfg.Tools.Dir = *toolsDir
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: config.ParseLogLevel(cfg.LogLevel),
	}))
	logger.Info("starting toolclaw-registry", "version", version, "tools_dir", cfg.Tools.Dir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sink rpc.AuditSink
	if cfg.Tools.AuditPath != "" {
		log, err := audit.Open(cfg.Tools.AuditPath, logger)
		if err != nil {
			logger.Error("open audit log", "path", cfg.Tools.AuditPath, "error", err)
			return 1
		}
		defer log.Close()
		sink = log
	}

	reg := registry.New(cfg.Tools.Dir, toolfns.Catalog(), logger)
	if err := reg.Load(); err != nil {
		logger.Error("load tool packs", "error", err)
		return 1
	}
	logger.Info("tool packs loaded", "tools", reg.Count())

	srv := rpc.NewServer(reg, sink, logger)
	if err := srv.Listen(cfg.Registry.Addr()); err != nil {
		logger.Error("listen", "error", err)
		return 1
	}
	if err := srv.Serve(ctx); err != nil {
		logger.Error("serve", "error", err)
		return 1
	}

	logger.Info("toolclaw-registry stopped")
	return 0
}
