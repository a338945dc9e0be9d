package config

import (
	"time"

	"github.com/pkg/errors"
	"gopkg.in/gcfg.v1"
)

const (
	minCallTimeout = 10 * time.Second
	maxCallTimeout = 15 * time.Second
)

type (
	Config struct {
		BACKEND struct {
			URL       string
			Timeout   int
			UserAgent string
		}
		RECONCILE struct {
			VerifyWindow  int
			TableCacheTTL int
			TaxPercent    int
			StatusTimeout int
		}
		DATABASE struct {
			Path string
		}
		LOG struct {
			Debug int
		}
		TELEGRAM struct {
			BotToken string
			ChatID   int64
		}
		SERVICE struct {
			PORT int
		}
	}
)

// Default returns a configuration usable without a file; only the backend URL
// has to be filled in.
func Default() *Config {
	cfg := new(Config)
	cfg.BACKEND.Timeout = 12
	cfg.BACKEND.UserAgent = "MozoPOS"
	cfg.RECONCILE.VerifyWindow = 120
	cfg.RECONCILE.TableCacheTTL = 5
	cfg.RECONCILE.TaxPercent = 18
	cfg.RECONCILE.StatusTimeout = 10
	cfg.DATABASE.Path = "mozopos.db"
	cfg.SERVICE.PORT = 8089
	return cfg
}

// Load reads an INI file over the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if err := gcfg.ReadFileInto(cfg, path); err != nil {
		return nil, errors.Wrapf(err, "failed to parse config %s", path)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse reads INI text over the defaults.
func Parse(text string) (*Config, error) {
	cfg := Default()
	if err := gcfg.ReadStringInto(cfg, text); err != nil {
		return nil, errors.Wrap(err, "failed to parse config")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.BACKEND.URL == "" {
		return errors.New("config: backend url is required")
	}
	if c.RECONCILE.TaxPercent < 0 {
		return errors.Errorf("config: taxPercent must not be negative, got %d", c.RECONCILE.TaxPercent)
	}
	return nil
}

// CallTimeout is the bound applied to every backend call.
func (c *Config) CallTimeout() time.Duration {
	return clamp(time.Duration(c.BACKEND.Timeout) * time.Second)
}

// StatusTimeout bounds the best-effort table status write after payment.
func (c *Config) StatusTimeout() time.Duration {
	return clamp(time.Duration(c.RECONCILE.StatusTimeout) * time.Second)
}

func (c *Config) VerifyWindow() time.Duration {
	if c.RECONCILE.VerifyWindow <= 0 {
		return 2 * time.Minute
	}
	return time.Duration(c.RECONCILE.VerifyWindow) * time.Second
}

func (c *Config) TableCacheTTL() time.Duration {
	return time.Duration(c.RECONCILE.TableCacheTTL) * time.Second
}

func (c *Config) Debug() bool {
	return c.LOG.Debug != 0
}

func clamp(d time.Duration) time.Duration {
	switch {
	case d < minCallTimeout:
		return minCallTimeout
	case d > maxCallTimeout:
		return maxCallTimeout
	}
	return d
}
