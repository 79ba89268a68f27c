package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"expensechat/internal/domain"
)

// DefaultPath is the config file used when EXPENSECHAT_CONFIG is unset.
const DefaultPath = "expensechat.json"

// PathEnv names the environment variable overriding DefaultPath.
const PathEnv = "EXPENSECHAT_CONFIG"

// marshalIndent, marshalYAML and writeFile are used by WriteDefault and Save; tests may replace to force errors.
var (
	marshalIndent = json.MarshalIndent
	marshalYAML   = yaml.Marshal
	writeFile     = os.WriteFile
)

// Default returns the configuration written by WriteDefault.
func Default() *domain.Config {
	return &domain.Config{
		Gateway: domain.GatewayConfig{
			Port:           8080,
			AllowedOrigins: []string{"*"},
		},
		Completion: domain.CompletionConfig{Provider: "gateway"},
		Ledger:     domain.LedgerConfig{URL: "file:expenses.db"},
		Chat:       domain.ChatConfig{ToolConcurrency: 4},
		Infra:      domain.InfraConfig{LogFormat: "text", LogLevel: "info"},
		Retry: domain.RetryConfig{
			MaxRetries:     0,
			InitialBackoff: 500,
			MaxBackoff:     30000,
			Multiplier:     2,
		},
	}
}

// ResolvePath returns the value of EXPENSECHAT_CONFIG, or DefaultPath.
func ResolvePath() string {
	if p := os.Getenv(PathEnv); p != "" {
		return p
	}
	return DefaultPath
}

// WriteDefault writes the default Config to path (e.g. expensechat.json or
// expensechat.yaml). Parent directories are not created.
func WriteDefault(path string) error {
	data, err := encode(path, Default())
	if err != nil {
		return err
	}
	return writeFile(path, data, 0644)
}

// Load reads path, unmarshals it as YAML for .yaml/.yml files and JSON
// otherwise, and cleans path fields. Returns an error if the file is missing
// or malformed.
func Load(path string) (*domain.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}
	var c domain.Config
	if isYAML(path) {
		err = yaml.Unmarshal(data, &c)
	} else {
		err = json.Unmarshal(data, &c)
	}
	if err != nil {
		return nil, fmt.Errorf("config parse: %w", err)
	}
	CleanPaths(&c)
	return &c, nil
}

// CleanPaths applies filepath.Clean to local path fields in cfg to prevent
// path traversal. Remote ledger URLs are left untouched.
func CleanPaths(cfg *domain.Config) {
	if cfg == nil {
		return
	}
	if cfg.Chat.HistoryDir != "" {
		cfg.Chat.HistoryDir = filepath.Clean(cfg.Chat.HistoryDir)
	}
	if rest, ok := strings.CutPrefix(cfg.Ledger.URL, "file:"); ok {
		path, query, hasQuery := strings.Cut(rest, "?")
		if path != "" {
			path = filepath.Clean(path)
		}
		cfg.Ledger.URL = "file:" + path
		if hasQuery {
			cfg.Ledger.URL += "?" + query
		}
	}
}

// Save writes cfg to path in the format its extension selects.
func Save(path string, cfg *domain.Config) error {
	if cfg == nil {
		return fmt.Errorf("config save: nil config")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("config save mkdir: %w", err)
	}
	data, err := encode(path, cfg)
	if err != nil {
		return fmt.Errorf("config save: %w", err)
	}
	if err := writeFile(path, data, 0644); err != nil {
		return fmt.Errorf("config save write: %w", err)
	}
	return nil
}

func encode(path string, cfg *domain.Config) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = marshalYAML(cfg)
	} else {
		data, err = marshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	return data, nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
