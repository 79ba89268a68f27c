// Package app assembles the expense assistant from configuration: ledger,
// completion client, tool dispatcher, brain and conversation router. The CLI
// and the Telegram bridge share it.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"expensechat/internal/brain"
	"expensechat/internal/config"
	ctxmgr "expensechat/internal/context"
	"expensechat/internal/domain"
	"expensechat/internal/ledger"
	"expensechat/internal/llm"
	"expensechat/internal/router"
	"expensechat/internal/session"
	"expensechat/internal/tokenizer"
	"expensechat/internal/tooling"
)

// Package-level constructors; tests replace them to avoid real services.
var (
	openLedger = func(ctx context.Context, url string) (ledgerStore, error) { return ledger.Open(ctx, url) }
	newClient  = llm.NewClient
	forModel   = func(model, encoding string) (domain.Tokenizer, error) { return tokenizer.ForModel(model, encoding) }
)

// ledgerStore is a domain.Ledger that owns a database connection.
type ledgerStore interface {
	domain.Ledger
	Close() error
}

// App is a fully wired assistant.
type App struct {
	Config *domain.Config
	Ledger domain.Ledger
	Brain  *brain.Brain
	Router *router.Router

	store ledgerStore
}

// Build wires an App from cfg. A nil cfg uses config.Default(). getSecret
// resolves completion API keys; a nil logger uses slog.Default(). Close the
// App to release the ledger connection.
func Build(ctx context.Context, cfg *domain.Config, getSecret llm.SecretGetter, logger *slog.Logger) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}

	store, err := openLedger(ctx, cfg.Ledger.URL)
	if err != nil {
		return nil, fmt.Errorf("ledger: %w", err)
	}

	client, err := newClient(&cfg.Completion, getSecret, &cfg.Retry)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("completion client: %w", err)
	}

	dispatcher := brain.NewToolDispatcher(tooling.Catalog(), store,
		brain.WithConcurrency(cfg.Chat.ToolConcurrency),
		brain.WithDispatcherLogger(logger),
	)

	brainOpts := []brain.Option{brain.WithLogger(logger)}
	if cfg.Chat.MaxHistoryTokens > 0 {
		tok, err := forModel(cfg.Completion.Model, cfg.Chat.Encoding)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("tokenizer: %w", err)
		}
		brainOpts = append(brainOpts, brain.WithContextManager(ctxmgr.NewManager(tok, cfg.Chat.MaxHistoryTokens)))
	}
	b := brain.NewBrain(client, dispatcher, brainOpts...)

	routerOpts := []router.Option{router.WithLogger(logger)}
	if cfg.Chat.HistoryDir != "" {
		routerOpts = append(routerOpts, router.WithStoreFactory(session.DirFactory(cfg.Chat.HistoryDir)))
	}

	logger.Info("assistant ready",
		"provider", cfg.Completion.Provider,
		"model", cfg.Completion.Model,
		"toolConcurrency", cfg.Chat.ToolConcurrency,
		"historyDir", cfg.Chat.HistoryDir,
	)

	return &App{
		Config: cfg,
		Ledger: store,
		Brain:  b,
		Router: router.NewRouter(b, routerOpts...),
		store:  store,
	}, nil
}

// Close releases the ledger connection.
func (a *App) Close() error {
	if a == nil || a.store == nil {
		return nil
	}
	return a.store.Close()
}
