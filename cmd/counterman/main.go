package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mtzanidakis/counterman/internal/agents"
	"github.com/mtzanidakis/counterman/internal/chat"
	"github.com/mtzanidakis/counterman/internal/config"
	"github.com/mtzanidakis/counterman/internal/graph"
	"github.com/mtzanidakis/counterman/internal/llm/anthropic"
	"github.com/mtzanidakis/counterman/internal/metrics"
	"github.com/mtzanidakis/counterman/internal/natsbus"
	"github.com/mtzanidakis/counterman/internal/scheduler"
	"github.com/mtzanidakis/counterman/internal/sms"
	"github.com/mtzanidakis/counterman/internal/store"
	"github.com/mtzanidakis/counterman/internal/telegram"
	"github.com/mtzanidakis/counterman/internal/tools"
	"github.com/mtzanidakis/counterman/internal/vault"
	"github.com/mtzanidakis/counterman/internal/web"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "version":
		fmt.Printf("counterman %s\n", version)
		return
	case "gateway":
		err = runGateway()
	case "chat":
		err = runChat()
	case "export":
		err = runExport(os.Args[2:])
	case "import":
		err = runImport(os.Args[2:])
	default:
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		slog.Error(os.Args[1]+" failed", "error", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: counterman <command>

Commands:
  gateway    Start the HTTP, SMS and Telegram front ends
  chat       Talk to the assistant on stdin/stdout
  export     Write conversation history to a zstd-compressed JSONL file
  import     Load conversation history from an export
  version    Print version
`)
}

func setupLogging(cfg config.LogConfig) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// buildRunner assembles the conversation graph of the configured profile.
func buildRunner(cfg *config.Config, m *metrics.Collector) (*graph.Runner, error) {
	model := anthropic.New(anthropic.Config{
		APIKey:      cfg.Model.APIKey,
		BaseURL:     cfg.Model.BaseURL,
		Model:       cfg.Model.Name,
		MaxTokens:   int(cfg.Model.MaxTokens),
		Temperature: cfg.Model.Temperature,
	})

	client, err := tools.New(tools.Config{
		SiteURL:      cfg.Tools.SiteURL,
		CatalogURL:   cfg.Tools.CatalogURL,
		Timeout:      cfg.Tools.Timeout,
		MaxPageBytes: cfg.Tools.MaxPageBytes,
	}, m)
	if err != nil {
		return nil, fmt.Errorf("init tools: %w", err)
	}

	profile, err := agents.ByName(cfg.Profile)
	if err != nil {
		return nil, err
	}
	if profile, err = profile.WithAllow(cfg.Agents.Allow); err != nil {
		return nil, fmt.Errorf("agent allow-lists: %w", err)
	}

	nodes, err := profile.Build(model, client.All(), agents.BuildConfig{
		HistoryWindow: cfg.Router.HistoryWindow,
		MaxToolRounds: cfg.Model.MaxToolRounds,
		Metrics:       m,
	})
	if err != nil {
		return nil, fmt.Errorf("build profile %s: %w", profile.Name, err)
	}
	return graph.New(nodes)
}

func openStore(cfg *config.Config) (*store.Store, error) {
	var opts []store.Option
	if cfg.Vault.Passphrase != "" {
		v, err := vault.New(cfg.Vault.Passphrase)
		if err != nil {
			return nil, fmt.Errorf("init vault: %w", err)
		}
		opts = append(opts, store.WithVault(v))
	}
	return store.New(cfg.Store, opts...)
}

func runGateway() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	setupLogging(cfg.Log)

	slog.Info("starting counterman gateway", "version", version, "profile", cfg.Profile)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// SQLite store
	db, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()
	slog.Info("store initialized", "path", cfg.Store.Path, "encrypted", cfg.Vault.Passphrase != "")

	// Embedded NATS
	bus, err := natsbus.New(cfg.NATS)
	if err != nil {
		return fmt.Errorf("init nats: %w", err)
	}
	defer bus.Close()
	slog.Info("nats started", "port", bus.Port())

	events, err := natsbus.NewClient(bus)
	if err != nil {
		return fmt.Errorf("init nats client: %w", err)
	}
	defer events.Close()

	m := metrics.New()

	runner, err := buildRunner(cfg, m)
	if err != nil {
		return err
	}

	svc := chat.New(runner, chat.Config{
		Budget:       cfg.Turn.Budget,
		HistoryLimit: cfg.History.Limit,
	}, chat.WithStore(db), chat.WithBus(events), chat.WithMetrics(m))

	// SMS replies
	if cfg.SMS.Enabled() {
		svc.RegisterSender(chat.ChannelSMS, sms.NewSender(cfg.SMS))
		slog.Info("sms sender enabled", "from", cfg.SMS.FromNumber)
	} else {
		slog.Warn("twilio credentials not set, sms replies disabled")
	}

	// Retention janitor
	sched, err := scheduler.New(db, events, cfg.History)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	go sched.Start(ctx)

	// Telegram bot
	if cfg.Telegram.Token != "" {
		bot, err := telegram.NewBot(cfg.Telegram, svc)
		if err != nil {
			return fmt.Errorf("init telegram bot: %w", err)
		}
		go func() {
			if err := bot.Start(ctx); err != nil {
				slog.Error("telegram bot error", "error", err)
			}
		}()
		slog.Info("telegram bot started")
	} else {
		slog.Warn("telegram token not set, bot disabled")
	}

	// HTTP
	if cfg.Web.Enabled {
		srv := web.NewServer(svc, db, bus, m, cfg.Web, cfg.SMS, cfg.Profile, version)
		defer srv.Close()
		go func() {
			if err := srv.Start(ctx); err != nil {
				slog.Error("web server error", "error", err)
			}
		}()
		slog.Info("web server started", "port", cfg.Web.Port)
	}

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("shutting down", "signal", sig)
	svc.Close()
	cancel()

	// Let accepted messages finish their turns.
	svc.Wait()
	return nil
}
