// Package config loads the shared configuration.
package config

import (
	"os"
	"path/filepath"

	gconfig "github.com/Laisky/go-config/v2"
	"github.com/Laisky/zap"
	"github.com/joho/godotenv"

	"github.com/Laisky/laisky-blog-cms/library/log"
)

// envOverrides maps environment variables onto configuration keys.
// Values found in the environment win over the configuration file.
var envOverrides = map[string]string{
	"DATABASE_URL": "settings.db.postgres.dsn",
	"REDIS_URL":    "settings.db.redis.url",
	"JWT_SECRET":   "settings.secret",
}

// LoadFromFile loads the yaml configuration at cfgPath, then applies
// overrides from the process environment and an optional `.env` file
// placed next to the configuration.
func LoadFromFile(cfgPath string) {
	gconfig.Shared.Set("cfg_dir", filepath.Dir(cfgPath))
	if err := gconfig.Shared.LoadFromFile(cfgPath); err != nil {
		log.Logger.Panic("load configuration",
			zap.Error(err),
			zap.String("config", cfgPath))
	}

	LoadEnv(filepath.Join(filepath.Dir(cfgPath), ".env"))
	log.Logger.Info("load configuration",
		zap.String("config", cfgPath))
}

// LoadEnv reads envFile when it exists and copies known environment
// variables into the shared configuration.
func LoadEnv(envFile string) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			log.Logger.Warn("load env file", zap.String("file", envFile), zap.Error(err))
		}
	}

	for env, key := range envOverrides {
		if val := os.Getenv(env); val != "" {
			gconfig.Shared.Set(key, val)
		}
	}
}
