package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"expensechat/internal/app"
	"expensechat/internal/config"
	"expensechat/internal/signals"
	"expensechat/internal/telegram"
)

// exitFunc is the function used by main to exit; tests replace it to cover main().
var exitFunc = os.Exit

func main() {
	if err := run(); err != nil {
		slog.Error("telegram bridge failed", "error", err)
		exitFunc(1)
	}
}

// newBotAPIFn creates a real Telegram BotAPI; tests replace it.
var newBotAPIFn = func(token string) (telegram.BotAPI, error) {
	return tgbotapi.NewBotAPI(token)
}

// startAdapterFn starts the adapter loop; tests replace it to avoid blocking.
var startAdapterFn = func(adapter *telegram.Adapter, ctx context.Context) {
	adapter.Start(ctx)
}

// Package-level hooks; tests replace them.
var (
	signalContextFn           = signals.NotifyContext
	buildAppFn                = app.Build
	getSecret                 = config.EnvSecrets
	logOutput       io.Writer = os.Stderr
)

func run() error {
	// 1. Load .env, config and logger.
	cfg, logger, err := app.LoadRuntime(logOutput)
	if err != nil {
		return err
	}

	// 2. Resolve the bot token.
	token, err := getSecret(config.TelegramTokenEnv)
	if err != nil {
		return fmt.Errorf("telegram token: %w", err)
	}
	if token == "" {
		return fmt.Errorf("telegram token: %s is not set (export it or add it to .env)", config.TelegramTokenEnv)
	}

	// 3. Create the Telegram bot API.
	bot, err := newBotAPIFn(token)
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", err)
	}

	ctx, stop := signalContextFn(context.Background())
	defer stop()

	// 4. Wire ledger, brain and router.
	a, err := buildAppFn(ctx, cfg, getSecret, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	// 5. Create and start the Telegram adapter.
	adapter := telegram.NewAdapter(bot, a.Router, telegram.WithLogger(logger))
	logger.Info("telegram bridge started")
	startAdapterFn(adapter, ctx)
	logger.Info("telegram bridge stopped")
	return nil
}
