package sqlite

import (
	"fmt"
	"net/url"
	"time"
)

type Config struct {
	DatabasePath string
	BusyTimeout  time.Duration
}

func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("database path is required")
	}
	if c.BusyTimeout <= 0 {
		c.BusyTimeout = 5 * time.Second
	}
	return nil
}

func (c *Config) GetType() string {
	return "sqlite"
}

// GetConnectionString builds a go-sqlite3 DSN with foreign keys enforced
func (c *Config) GetConnectionString() string {
	params := url.Values{}
	params.Set("_foreign_keys", "1")
	params.Set("_busy_timeout", fmt.Sprintf("%d", c.BusyTimeout.Milliseconds()))
	params.Set("_journal_mode", "WAL")
	return fmt.Sprintf("file:%s?%s", c.DatabasePath, params.Encode())
}

func DefaultConfig() *Config {
	return &Config{
		DatabasePath: "./feedback_bot.db",
		BusyTimeout:  5 * time.Second,
	}
}
