package geo

import (
	"time"

	"github.com/pkg/errors"
)

// Config configures a Locator.
type Config struct {
	DBPath    string        `yaml:"db_path"`
	UseMmap   bool          `yaml:"use_mmap"`
	CacheSize int           `yaml:"cache_size"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
	Anonymize bool          `yaml:"anonymize"`
	Watch     bool          `yaml:"watch"`

	// BatchWorkers is the number of LookupBatch workers, 0 for one per CPU.
	BatchWorkers int `yaml:"batch_workers"`
}

// DefaultConfig returns the defaults used when a field is not configured.
func DefaultConfig() Config {
	return Config{
		UseMmap:   true,
		CacheSize: 10000,
		CacheTTL:  time.Hour,
		Anonymize: true,
		Watch:     true,
	}
}

// Validate checks the config for errors.
func (c Config) Validate() error {
	if c.DBPath == "" {
		return errors.New("geo: db_path must be set")
	}
	if c.CacheSize <= 0 {
		return errors.Errorf("geo: cache_size must be positive, got %d", c.CacheSize)
	}
	if c.CacheTTL <= 0 {
		return errors.Errorf("geo: cache_ttl must be positive, got %s", c.CacheTTL)
	}
	if c.BatchWorkers < 0 {
		return errors.Errorf("geo: batch_workers must not be negative, got %d", c.BatchWorkers)
	}
	return nil
}
