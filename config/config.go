// Package config loads the ipgeo configuration from a YAML file, optional
// .env files and IPGEO_* environment variables, in increasing precedence.
package config

import (
	"bytes"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/ic-timon/ipgeo/geo"
)

// Environment variables read by Load.
const (
	EnvLogLevel  = "IPGEO_LOG_LEVEL"
	EnvDBPath    = "IPGEO_DB_PATH"
	EnvUseMmap   = "IPGEO_USE_MMAP"
	EnvCacheSize = "IPGEO_CACHE_SIZE"
	EnvCacheTTL  = "IPGEO_CACHE_TTL"
	EnvAnonymize = "IPGEO_ANONYMIZE"
	EnvWatch     = "IPGEO_WATCH"
	EnvBatch     = "IPGEO_BATCH_WORKERS"
)

// Config is the top-level configuration.
type Config struct {
	LogLevel string     `yaml:"log_level"`
	Geo      geo.Config `yaml:"geo"`
}

// Default returns the configuration used for unset fields.
func Default() Config {
	return Config{
		LogLevel: "info",
		Geo:      geo.DefaultConfig(),
	}
}

// Load reads path (skipped when empty), then the env files that exist, then
// the environment. Variables already set in the environment win over .env
// files.
func Load(path string, envFiles ...string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrap(err, "read config")
		}
		dec := yaml.NewDecoder(bytes.NewReader(b))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, errors.Wrapf(err, "parse config %s", path)
		}
	}

	var existing []string
	for _, f := range envFiles {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) > 0 {
		if err := godotenv.Load(existing...); err != nil {
			return Config{}, errors.Wrap(err, "load env files")
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v, ok := os.LookupEnv(EnvLogLevel); ok {
		c.LogLevel = v
	}
	if v, ok := os.LookupEnv(EnvDBPath); ok {
		c.Geo.DBPath = v
	}
	for _, b := range []struct {
		env string
		dst *bool
	}{
		{EnvUseMmap, &c.Geo.UseMmap},
		{EnvAnonymize, &c.Geo.Anonymize},
		{EnvWatch, &c.Geo.Watch},
	} {
		v, ok := os.LookupEnv(b.env)
		if !ok {
			continue
		}
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrapf(err, "parse %s", b.env)
		}
		*b.dst = parsed
	}
	for _, n := range []struct {
		env string
		dst *int
	}{
		{EnvCacheSize, &c.Geo.CacheSize},
		{EnvBatch, &c.Geo.BatchWorkers},
	} {
		v, ok := os.LookupEnv(n.env)
		if !ok {
			continue
		}
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "parse %s", n.env)
		}
		*n.dst = parsed
	}
	if v, ok := os.LookupEnv(EnvCacheTTL); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return errors.Wrapf(err, "parse %s", EnvCacheTTL)
		}
		c.Geo.CacheTTL = d
	}
	return nil
}

// Validate checks the config for errors.
func (c Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return errors.Errorf("invalid log_level %q", c.LogLevel)
	}
	return errors.Wrap(c.Geo.Validate(), "geo")
}
