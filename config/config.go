// Package config loads querycraft.yaml: translator options, the HTTP server,
// the Redis result cache, the MongoDB connection and logging.
package config

import (
	"time"

	"github.com/omniql-engine/querycraft/engine/translator"
	"github.com/omniql-engine/querycraft/engine/validator"
)

// Config is the root of querycraft.yaml
type Config struct {
	Translator TranslatorConfig `yaml:"translator"`
	Server     ServerConfig     `yaml:"server"`
	Cache      CacheConfig      `yaml:"cache"`
	Mongo      MongoConfig      `yaml:"mongo"`
	Log        LogConfig        `yaml:"log"`
}

// TranslatorConfig mirrors translator.Config
type TranslatorConfig struct {
	MaxTokens           int    `yaml:"max_tokens"`
	RenameID            bool   `yaml:"rename_id"`
	CaseInsensitiveLike bool   `yaml:"case_insensitive_like"`
	ValidateDialect     string `yaml:"validate_dialect"`
}

type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
}

// CacheConfig enables the Redis result cache when RedisAddr is set
type CacheConfig struct {
	RedisAddr string        `yaml:"redis_addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	TTL       time.Duration `yaml:"ttl"`
	Prefix    string        `yaml:"prefix"`
}

// MongoConfig is used by the CLI to execute converted statements
type MongoConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // logfmt, json
}

// Defaults returns the configuration used when no file is found
func Defaults() *Config {
	return &Config{
		Translator: TranslatorConfig{
			MaxTokens: translator.DefaultMaxTokens,
		},
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			MaxBodyBytes: 1 << 20,
		},
		Cache: CacheConfig{
			TTL:    10 * time.Minute,
			Prefix: "querycraft:",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "logfmt",
		},
	}
}

// TranslatorOptions builds the translator configuration; the dialect was
// checked by Load
func (c *Config) TranslatorOptions() translator.Config {
	dialect, _ := validator.ParseDialect(c.Translator.ValidateDialect)
	return translator.Config{
		MaxTokens:           c.Translator.MaxTokens,
		RenameID:            c.Translator.RenameID,
		CaseInsensitiveLike: c.Translator.CaseInsensitiveLike,
		ValidateDialect:     dialect,
	}
}
