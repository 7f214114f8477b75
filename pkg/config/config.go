// Training and calibration knobs, loaded from the environment the
// same way the rest of our tooling does (.env first, then the real
// environment).

package config

import (
	"os"
	"runtime"
	"strconv"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/yumyai/hiertax/logger"
)

type Config struct {
	// Folds is k for the per-node cross-validation.
	Folds int
	// FACeiling is the highest tolerated false-accept rate among
	// held-out calls at or above a candidate threshold.
	FACeiling float64
	// Epochs and LearnRate drive the per-node softmax fit.
	Epochs    int
	LearnRate float64
	// Workers bounds the node-training pool.
	Workers int
	// Seed makes fold assignment reproducible between runs.
	Seed int64
	// Progress turns on a terminal progress bar over node training.
	Progress bool
}

func Default() Config {
	return Config{
		Folds:     5,
		FACeiling: 0.05,
		Epochs:    200,
		LearnRate: 0.5,
		Workers:   runtime.NumCPU(),
		Seed:      1,
		Progress:  false,
	}
}

// FromEnv loads Default() overridden by HIERTAX_* variables. A .env
// file in the working directory is honoured when present.
func FromEnv() Config {
	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env found, using local environment")
	}

	cfg := Default()
	cfg.Folds = envInt("HIERTAX_FOLDS", cfg.Folds)
	cfg.FACeiling = envFloat("HIERTAX_FA_CEILING", cfg.FACeiling)
	cfg.Epochs = envInt("HIERTAX_EPOCHS", cfg.Epochs)
	cfg.LearnRate = envFloat("HIERTAX_LEARN_RATE", cfg.LearnRate)
	cfg.Workers = envInt("HIERTAX_WORKERS", cfg.Workers)
	cfg.Seed = envInt64("HIERTAX_SEED", cfg.Seed)
	cfg.Progress = envBool("HIERTAX_PROGRESS", cfg.Progress)
	return cfg
}

func envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		logger.Warn("Bad environment value, using default",
			zap.String("key", key), zap.String("value", raw))
		return fallback
	}
	return v
}

func envInt64(key string, fallback int64) int64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		logger.Warn("Bad environment value, using default",
			zap.String("key", key), zap.String("value", raw))
		return fallback
	}
	return v
}

func envFloat(key string, fallback float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		logger.Warn("Bad environment value, using default",
			zap.String("key", key), zap.String("value", raw))
		return fallback
	}
	return v
}

func envBool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		logger.Warn("Bad environment value, using default",
			zap.String("key", key), zap.String("value", raw))
		return fallback
	}
	return v
}
