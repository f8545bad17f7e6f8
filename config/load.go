package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/omniql-engine/querycraft/engine/validator"
)

// DefaultFile is looked up in the working directory when no path is given
const DefaultFile = "querycraft.yaml"

// Load reads configuration from a file with ENV interpolation.
// With an empty path it tries QUERYCRAFT_CONFIG, then ./querycraft.yaml, and
// falls back to Defaults when neither exists.
func Load(path string, getenv func(string) string) (*Config, error) {
	path, err := resolvePath(path, getenv)
	if err != nil {
		return nil, err
	}
	cfg := Defaults()
	if path == "" {
		return cfg, validate(cfg)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := Parse(interpolateEnv(data, getenv), cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML over cfg and validates the result
func Parse(data []byte, cfg *Config) error {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return validate(cfg)
}

func resolvePath(explicit string, getenv func(string) string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}
	if env := getenv("QUERYCRAFT_CONFIG"); env != "" {
		if _, err := os.Stat(env); err != nil {
			return "", fmt.Errorf("QUERYCRAFT_CONFIG file not found: %s", env)
		}
		return env, nil
	}
	if _, err := os.Stat(DefaultFile); err == nil {
		return DefaultFile, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("failed to stat %s: %w", DefaultFile, err)
	}
	return "", nil
}

// envPattern matches ${VAR} or ${VAR:-default}
var envPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// interpolateEnv replaces ${VAR} and ${VAR:-default} patterns with environment values.
func interpolateEnv(data []byte, getenv func(string) string) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		parts := envPattern.FindSubmatch(match)
		value := getenv(string(parts[1]))
		if value == "" && len(parts[2]) > 0 {
			value = string(parts[2])
		}
		return []byte(value)
	})
}

func validate(cfg *Config) error {
	var errs []string

	if cfg.Translator.MaxTokens < 1 {
		errs = append(errs, fmt.Sprintf("translator.max_tokens: %d (must be positive)", cfg.Translator.MaxTokens))
	}
	if _, err := validator.ParseDialect(cfg.Translator.ValidateDialect); err != nil {
		errs = append(errs, "translator.validate_dialect: "+err.Error())
	}

	if cfg.Server.Addr == "" {
		errs = append(errs, "server.addr is required")
	}
	if cfg.Server.ReadTimeout <= 0 || cfg.Server.WriteTimeout <= 0 {
		errs = append(errs, "server timeouts must be positive")
	}
	if cfg.Server.MaxBodyBytes <= 0 {
		errs = append(errs, "server.max_body_bytes must be positive")
	}

	if cfg.Cache.RedisAddr != "" && cfg.Cache.TTL <= 0 {
		errs = append(errs, "cache.ttl must be positive when the cache is enabled")
	}
	if cfg.Mongo.Database != "" && cfg.Mongo.URI == "" {
		errs = append(errs, "mongo.database is set but mongo.uri is empty")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		errs = append(errs, fmt.Sprintf("invalid log level: %s (must be debug, info, warn, or error)", cfg.Log.Level))
	}
	validFormats := map[string]bool{"logfmt": true, "json": true}
	if !validFormats[cfg.Log.Format] {
		errs = append(errs, fmt.Sprintf("invalid log format: %s (must be logfmt or json)", cfg.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
