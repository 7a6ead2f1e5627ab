package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"telegramd/internal/command"
	"telegramd/internal/config"
	"telegramd/internal/deliverylog"
	"telegramd/internal/domain"
	"telegramd/internal/forward"
	"telegramd/internal/httpapi"
	"telegramd/internal/ingest"
	"telegramd/internal/metrics"
	"telegramd/internal/storage"
	"telegramd/internal/supervisor"
	"telegramd/internal/telegram"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP listener and the bot command loop",
		Long: `Starts the HTTP listener (/send-message, /send-file) and the Telegram
command loop. Both run until Ctrl+C; if either stops, the other is shut
down and the process exits with an error.`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if cfg.Log.File != "" {
		f, err := openLogFile(cfg.Log.File)
		if err != nil {
			return err
		}
		defer f.Close()
		logger = newLogger(f, cfg.Log.Level)
	} else {
		logger = newLogger(os.Stderr, cfg.Log.Level)
	}

	if err := config.RequireToken(cfg); err != nil {
		logger.Error("cannot start", "err", err)
		return err
	}

	sink := storage.New(storage.Config{
		Root:         cfg.Storage.UploadDir,
		MaxFileBytes: cfg.Storage.MaxFileBytes,
		Logger:       logger,
	})
	if err := sink.EnsureRoot(); err != nil {
		return fmt.Errorf("upload directory: %w", err)
	}
	logger.Info("using upload directory", "path", absPath(sink.Root()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := telegram.New(telegram.Config{
		Token:          cfg.Telegram.Token,
		APIEndpoint:    cfg.Telegram.APIEndpoint,
		RequestTimeout: time.Duration(cfg.Telegram.RequestTimeout) * time.Second,
		PollTimeout:    cfg.Telegram.PollTimeout,
		Debug:          cfg.Telegram.Debug,
		Limits: telegram.LimitConfig{
			SendPerMinute: float64(cfg.Telegram.SendPerMinute),
			SendBurst:     cfg.Telegram.SendBurst,
			ChatPerMinute: float64(cfg.Telegram.ChatPerMinute),
			ChatBurst:     cfg.Telegram.ChatBurst,
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}

	var recorder domain.DeliveryRecorder
	if cfg.DeliveryLog.Enabled {
		store, err := openDeliveryLog(ctx, cfg)
		if err != nil {
			return err
		}
		defer store.Close()
		recorder = store
	}

	gateway := forward.New(forward.Config{Platform: client, Recorder: recorder, Logger: logger})
	server := httpapi.New(httpapi.Config{
		Addr:      cfg.HTTP.Addr,
		Forwarder: gateway,
		Ingestor:  ingest.New(sink, logger),
		Metrics:   metrics.Collector.Handler(),
		Logger:    logger,
	})
	commands := command.NewLoop(command.LoopConfig{
		Platform: client,
		Source:   client,
		Menu:     client,
		Logger:   logger,
	})

	logger.Info("started telegramd", "version", version, "bot", client.Username(), "addr", server.Addr())

	sup := supervisor.New(logger, supervisor.DefaultShutdownTimeout)
	err = sup.Run(ctx,
		supervisor.Task{Name: "commands", Run: commands.Run},
		supervisor.Task{Name: "http", Run: server.Run},
	)
	if err != nil {
		logger.Error("telegramd stopped", "err", err)
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

// openDeliveryLog opens the store and applies the retention window.
func openDeliveryLog(ctx context.Context, cfg *config.Config) (*deliverylog.Store, error) {
	store, err := deliverylog.Open(cfg.DeliveryLog.DBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("delivery log: %w", err)
	}
	if days := cfg.DeliveryLog.RetentionDays; days > 0 {
		cutoff := time.Now().AddDate(0, 0, -days)
		if _, err := store.Prune(ctx, cutoff); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("delivery log prune failed", "err", err)
		}
	}
	return store, nil
}
