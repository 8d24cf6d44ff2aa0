package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bnema/zerowrap"
)

// NewLogger builds the root logger from the logging section. With a log file
// configured the logger also writes to a rotating file; cleanup closes it.
func NewLogger(cfg Config) (zerowrap.Logger, func(), error) {
	logConfig := zerowrap.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}

	if cfg.Logging.File.Path == "" {
		return zerowrap.New(logConfig), func() {}, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Logging.File.Path), 0o700); err != nil {
		return zerowrap.Default(), func() {}, fmt.Errorf("failed to create log directory: %w", err)
	}
	log, cleanup, err := zerowrap.NewWithFile(logConfig, zerowrap.FileConfig{
		Enabled:    true,
		Path:       cfg.Logging.File.Path,
		MaxSize:    cfg.Logging.File.MaxSize,
		MaxBackups: cfg.Logging.File.MaxBackups,
		MaxAge:     cfg.Logging.File.MaxAge,
		Compress:   cfg.Logging.File.Compress,
	})
	if err != nil {
		return zerowrap.Default(), func() {}, fmt.Errorf("failed to create logger with file: %w", err)
	}
	if cleanup == nil {
		cleanup = func() {}
	}
	return log, cleanup, nil
}
