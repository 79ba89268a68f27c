package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"expensechat/internal/app"
	"expensechat/internal/cli"
	"expensechat/internal/config"
	"expensechat/internal/domain"
	"expensechat/internal/gateway"
	"expensechat/internal/signals"
)

// buildMeta holds version and build metadata (injectable via ldflags).
type buildMeta struct {
	Version string
	GoOS    string
	GoArch  string
}

func newBuildMeta(version, goos, goarch string) buildMeta {
	if goos == "" {
		goos = runtime.GOOS
	}
	if goarch == "" {
		goarch = runtime.GOARCH
	}
	return buildMeta{Version: version, GoOS: goos, GoArch: goarch}
}

func (m buildMeta) String() string {
	return fmt.Sprintf("expensechat %s %s/%s", m.Version, m.GoOS, m.GoArch)
}

// Package-level hooks; tests replace them.
var (
	buildApp      = app.Build
	signalContext = signals.NotifyContext
	getSecret     = config.EnvSecrets
	logOutput     io.Writer = os.Stderr
)

func newRootCommand(bm buildMeta) *cobra.Command {
	root := &cobra.Command{
		Use:           "expensechat",
		Short:         "Chat-driven expense ledger",
		Long:          "expensechat records and analyzes expenses from natural-language chat.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if p, _ := cmd.Flags().GetString("config"); p != "" {
				return os.Setenv(config.PathEnv, p)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion, _ := cmd.Flags().GetBool("version"); showVersion {
				fmt.Fprintln(cmd.OutOrStdout(), bm.String())
				return nil
			}
			return cmd.Help()
		},
	}
	root.Flags().BoolP("version", "V", false, "print version and build metadata")
	root.PersistentFlags().StringP("config", "c", "", "config file (default $"+config.PathEnv+" or "+config.DefaultPath+")")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP and WebSocket chat gateway",
		RunE:  runServe,
	}
	root.AddCommand(serveCmd)

	chatCmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the assistant in the terminal",
		RunE:  runChat,
	}
	chatCmd.Flags().String("owner", "", "ledger owner id the conversation acts for")
	chatCmd.Flags().String("channel", "", "conversation id (default cli:<owner>)")
	root.AddCommand(chatCmd)

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE:  runInit,
	}
	initCmd.Flags().Bool("force", false, "overwrite an existing config")
	root.AddCommand(initCmd)

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Check config, completion key, ledger and history paths",
		RunE: func(cmd *cobra.Command, args []string) error {
			fix, _ := cmd.Flags().GetBool("fix")
			code := cli.RunCheck(cmd.Context(), cli.CheckOptions{Fix: fix}, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if code != 0 {
				return exitCodeErr(code)
			}
			return nil
		},
	}
	checkCmd.Flags().Bool("fix", false, "write default config if missing")
	root.AddCommand(checkCmd)

	return root
}

// loadRuntime loads .env and config and installs the logger.
func loadRuntime() (*domain.Config, *slog.Logger, error) {
	return app.LoadRuntime(logOutput)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadRuntime()
	if err != nil {
		return err
	}
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	a, err := buildApp(ctx, cfg, getSecret, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	srv, err := gateway.NewServer(&cfg.Gateway, a.Brain, gateway.WithRouter(a.Router), gateway.WithLogger(logger))
	if err != nil {
		return err
	}
	if err := srv.Run(ctx.Done()); err != nil {
		return fmt.Errorf("gateway: %w", err)
	}
	logger.Info("gateway stopped")
	return nil
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadRuntime()
	if err != nil {
		return err
	}
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	a, err := buildApp(ctx, cfg, getSecret, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	owner, _ := cmd.Flags().GetString("owner")
	channel, _ := cmd.Flags().GetString("channel")
	opts := cli.ChatOptions{OwnerID: strings.TrimSpace(owner), ChannelID: channel}
	err = cli.RunChat(ctx, a.Router, opts, cmd.InOrStdin(), cmd.OutOrStdout())
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func runInit(cmd *cobra.Command, args []string) error {
	path := config.ResolvePath()
	force, _ := cmd.Flags().GetBool("force")
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := config.WriteDefault(path); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
	return nil
}

// version is set at build time via ldflags for build metadata, e.g.:
//
//	go build -ldflags "-X main.version=1.0.0" -o expensechat ./cmd/expensechat
var version string

func getVersion() string {
	if version != "" {
		return version
	}
	b, err := os.ReadFile("VERSION")
	if err != nil {
		return "dev"
	}
	return strings.TrimSpace(string(b))
}

// exitCodeErr carries an exit code for the process. When returned from a command, runApp exits with that code.
type exitCodeErr int

func (e exitCodeErr) Error() string { return fmt.Sprintf("exit %d", int(e)) }
func (e exitCodeErr) ExitCode() int { return int(e) }

// runApp runs the root command with the given args and returns the exit code.
func runApp(args []string) int {
	root := newRootCommand(newBuildMeta(getVersion(), "", ""))
	root.SetArgs(args[1:])
	if err := root.ExecuteContext(context.Background()); err != nil {
		var ec interface{ ExitCode() int }
		if errors.As(err, &ec) {
			return ec.ExitCode()
		}
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
