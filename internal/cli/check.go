package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"expensechat/internal/config"
	"expensechat/internal/llm"
	"expensechat/internal/tooling"
)

// checkTimeout bounds the ledger connectivity check.
const checkTimeout = 10 * time.Second

// CheckOptions holds options for the check command.
type CheckOptions struct {
	Fix bool // if true, write default config when missing
}

// ParseCheckOptions reads --fix from args.
func ParseCheckOptions(args []string) CheckOptions {
	var opts CheckOptions
	for _, a := range args {
		if a == "--fix" || a == "-fix" {
			opts.Fix = true
			break
		}
	}
	return opts
}

// RunCheck checks the config file, gateway auth, completion key, ledger
// connectivity and history directory, optionally writing a default config.
// Returns the process exit code.
func RunCheck(ctx context.Context, opts CheckOptions, stdout, stderr io.Writer) int {
	cfgPath := config.ResolvePath()

	note := func(section, message string) {
		fmt.Fprintf(stdout, "  [%s] %s\n", section, message)
	}

	cfg, err := configLoad(cfgPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			note("Config", err.Error())
			return 1
		}
		note("Config", fmt.Sprintf("No config at %s.", cfgPath))
		if !opts.Fix {
			note("Config", "Run with --fix to create a default "+config.DefaultPath+".")
			fmt.Fprintln(stdout, "  Check complete.")
			return 0
		}
		if err := configWriteDefault(cfgPath); err != nil {
			fmt.Fprintf(stderr, "  failed to write default config: %v\n", err)
			return 1
		}
		note("Config", fmt.Sprintf("Wrote default config to %s.", cfgPath))
		cfg = config.Default()
	} else {
		note("Config", fmt.Sprintf("Loaded %s.", cfgPath))
	}

	// Gateway
	note("Gateway", fmt.Sprintf("port=%d tokens=%d origins=%s",
		cfg.Gateway.Port, len(cfg.Gateway.Tokens), strings.Join(cfg.Gateway.AllowedOrigins, ",")))
	if len(cfg.Gateway.Tokens) == 0 {
		note("Gateway", "No bearer tokens configured; HTTP clients cannot reach a ledger.")
	}

	// Completion
	keyEnv := llm.KeyEnv(&cfg.Completion)
	note("Completion", fmt.Sprintf("provider=%s model=%s", orDash(cfg.Completion.Provider), orDash(cfg.Completion.Model)))
	if getenv(keyEnv) == "" {
		note("Completion", fmt.Sprintf("%s is not set.", keyEnv))
	} else {
		note("Completion", fmt.Sprintf("%s ok.", keyEnv))
	}

	code := 0

	// Ledger
	pingCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	if version, err := ledgerSchemaVersion(pingCtx, cfg.Ledger.URL); err != nil {
		note("Ledger", fmt.Sprintf("%s: %v", redactURL(cfg.Ledger.URL), err))
		code = 1
	} else {
		note("Ledger", fmt.Sprintf("%s ok (schema v%d).", redactURL(cfg.Ledger.URL), version))
	}

	// Tools
	note("Tools", strings.Join(tooling.Catalog().Names(), ", "))

	// History
	if dir := cfg.Chat.HistoryDir; dir != "" {
		if err := ensureDir(dir, "chat.historyDir"); err != nil {
			note("History", err.Error())
		} else {
			note("History", fmt.Sprintf("chat.historyDir %s ok.", dir))
		}
	}

	fmt.Fprintln(stdout, "  Check complete.")
	return code
}

// redactURL drops the query string, which carries libSQL auth tokens.
func redactURL(u string) string {
	base, _, _ := strings.Cut(u, "?")
	if base == "" {
		return "(no ledger url)"
	}
	return base
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func ensureDir(dir, label string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("%s: %w", label, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			if mkErr := os.MkdirAll(abs, 0700); mkErr != nil {
				return fmt.Errorf("%s %q: mkdir failed: %w", label, abs, mkErr)
			}
			return nil
		}
		return fmt.Errorf("%s %q: %w", label, abs, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s %q: not a directory", label, abs)
	}
	return nil
}
