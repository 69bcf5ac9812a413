package node

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"simplecoin.dev/node/consensus"
)

// Config carries the node-level settings: where the ledger lives, which
// wallet file backs the default wallet, and how chatty the logs are.
type Config struct {
	DataDir    string `json:"data_dir"`
	DBPath     string `json:"db_path"` // empty means an in-memory ledger
	WalletPath string `json:"wallet_path"`
	LogLevel   string `json:"log_level"`
}

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".simplecoin"
	}
	return filepath.Join(home, ".simplecoin")
}

func DefaultConfig() Config {
	dataDir := DefaultDataDir()
	walletPath, err := consensus.DefaultWalletPath()
	if err != nil {
		walletPath = filepath.Join(dataDir, "wallet.pem")
	}
	return Config{
		DataDir:    dataDir,
		DBPath:     filepath.Join(dataDir, "ledger.db"),
		WalletPath: walletPath,
		LogLevel:   "info",
	}
}

func ValidateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.DataDir) == "" {
		return errors.New("data_dir is required")
	}
	if strings.TrimSpace(cfg.WalletPath) == "" {
		return errors.New("wallet_path is required")
	}
	if _, ok := logLevels[cfg.LogLevel]; !ok {
		return fmt.Errorf("invalid log_level %q (want debug, info, warn or error)", cfg.LogLevel)
	}
	return nil
}

// ParseLogLevel maps a config log level onto slog.
func ParseLogLevel(level string) (slog.Level, error) {
	l, ok := logLevels[level]
	if !ok {
		return 0, fmt.Errorf("invalid log_level %q", level)
	}
	return l, nil
}
