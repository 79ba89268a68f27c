package app

import (
	"errors"
	"io"
	"log/slog"
	"os"

	"expensechat/internal/config"
	"expensechat/internal/domain"
)

// LoadRuntime loads .env and the config file named by config.ResolvePath,
// then installs a logger writing to logOut as the slog default. A missing
// config file falls back to config.Default().
func LoadRuntime(logOut io.Writer) (*domain.Config, *slog.Logger, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, nil, err
	}
	path := config.ResolvePath()
	cfg, err := config.Load(path)
	missing := errors.Is(err, os.ErrNotExist)
	switch {
	case missing:
		cfg = config.Default()
	case err != nil:
		return nil, nil, err
	}
	logger := config.NewLogger(cfg.Infra, logOut)
	slog.SetDefault(logger)
	if missing {
		logger.Warn("no config file, using defaults", "path", path)
	}
	return cfg, logger, nil
}
