// Command live-refresher polls configured live-admin servers for active
// rooms, refreshes verify codes for rooms matching configured name patterns,
// and reports each server's result to a WeCom webhook.
//
// It runs in two modes sharing the same orchestration:
//   - one-shot (default): run a single pass, log results, exit. Suited to
//     cron or manual invocation. Exit is non-zero only on a configuration
//     error; per-server logical failures are reported, not fatal.
//   - --serve: expose the pass as POST /refresh plus /healthz and /metrics.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/onnwee/live-refresher/config"
	"github.com/onnwee/live-refresher/liveadmin"
	"github.com/onnwee/live-refresher/notify"
	"github.com/onnwee/live-refresher/refresher"
	"github.com/onnwee/live-refresher/server"
	"github.com/onnwee/live-refresher/telemetry"
)

func main() {
	serve := pflag.Bool("serve", false, "run the HTTP server instead of a one-shot pass")
	addr := pflag.String("addr", ":8080", "listen address in --serve mode")
	envFile := pflag.String("env-file", ".env", "env file loaded before reading configuration")
	pflag.Parse()

	// Load .env if present (local dev convenience only; production relies on real env).
	_ = godotenv.Load(*envFile)

	setupLogging()

	telemetry.Init()
	shutdown, err := telemetry.InitTracing("live-refresher", "1.0.0")
	if err != nil {
		slog.Error("tracing init failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	if *serve {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		if err := server.Start(ctx, *addr); err != nil {
			os.Exit(1)
		}
		return
	}

	if err := runOnce(context.Background()); err != nil {
		slog.Error("run failed", slog.Any("err", err))
		os.Exit(1)
	}
}

// runOnce performs a single refresh pass from environment configuration.
func runOnce(ctx context.Context) error {
	cfg, err := config.Load(nil)
	if err != nil {
		return err
	}

	client := &liveadmin.Client{Token: cfg.Token, AuthScheme: cfg.AuthScheme}
	notifier := &notify.Notifier{WebhookKey: cfg.WebhookKey}

	results := refresher.Run(ctx, cfg, client, notifier)
	for _, res := range results {
		if res.Error != "" {
			slog.Warn("server failed", slog.String("server", res.Alias), slog.String("error", res.Error))
			continue
		}
		slog.Info("server done", slog.String("server", res.Alias), slog.Bool("success", res.Success), slog.Int("groups", len(res.Rooms)))
	}
	return nil
}

// setupLogging configures slog from LOG_LEVEL and LOG_FORMAT (text|json).
func setupLogging() {
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	var handler slog.Handler
	switch strings.ToLower(os.Getenv("LOG_FORMAT")) {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
}
