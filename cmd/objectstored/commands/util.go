package commands

import (
	"fmt"

	"github.com/vitality-ai/warpdrive/internal/config"
	"github.com/vitality-ai/warpdrive/internal/logger"
)

// initLogger initializes the structured logger from configuration.
func initLogger(cfg *config.Config) error {
	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	return "defaults"
}
