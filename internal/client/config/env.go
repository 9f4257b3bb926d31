package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/dmitrijs2005/sessionkeeper/internal/flagx"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix namespaces every environment variable, e.g.
// SESSIONKEEPER_BACKEND_URL.
const EnvPrefix = "SESSIONKEEPER"

const defaultEnvFile = ".env"

// parseEnv loads a dotenv file (-env-file, or ./.env when present) into the
// process environment without overriding variables already set, then
// overlays cfg with every SESSIONKEEPER_* variable. Unset variables leave
// cfg untouched.
func parseEnv(cfg *Config) error {
	file := flagx.EnvFileFlags()
	explicit := file != ""
	if !explicit {
		file = defaultEnvFile
	}

	if err := godotenv.Load(file); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load env file %s: %w", file, err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return fmt.Errorf("environment: %w", err)
	}
	return nil
}
