// Command voiceorb-serve runs the voice client headless and serves the orb
// page and control API over HTTPS.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"voiceorb/internal/bootstrap"
	"voiceorb/internal/config"
	"voiceorb/internal/observe"
	"voiceorb/internal/server"
	"voiceorb/internal/webui"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "optional YAML configuration file (overrides VOICEORB_CONFIG)")
	flag.Parse()

	if *configPath != "" {
		if err := os.Setenv("VOICEORB_CONFIG", *configPath); err != nil {
			fmt.Fprintf(os.Stderr, "voiceorb-serve: %v\n", err)
			return 1
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "voiceorb-serve: %v\n", err)
		return 1
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Log.SlogLevel()})))
	slog.Info("voiceorb-serve starting",
		"endpoint", cfg.Transport.Endpoint,
		"listen_addr", cfg.Server.Addr(),
		"audio_backend", cfg.Audio.Backend,
		"log_level", cfg.Log.Level,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise metrics", "err", err)
		return 1
	}

	board := server.NewStatusBoard()
	services := bootstrap.BuildWithConfig(cfg, board)
	srv := server.New(cfg.Server, services.Controller, board, webui.FS())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		return services.Controller.Stop()
	})

	code := 0
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		code = 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownMetrics(shutdownCtx); err != nil {
		slog.Warn("metrics shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return code
}
