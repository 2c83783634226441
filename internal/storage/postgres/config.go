package postgres

import (
	"fmt"
	"net/url"
	"strings"
)

type Config struct {
	URL      string
	MaxConns int
}

func (c *Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("PostgreSQL connection URL is required")
	}

	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("invalid PostgreSQL URL: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return fmt.Errorf("PostgreSQL URL must use the postgres:// scheme")
	}
	if strings.TrimPrefix(u.Path, "/") == "" {
		return fmt.Errorf("PostgreSQL database name is required")
	}

	if c.MaxConns <= 0 {
		c.MaxConns = 10
	}
	return nil
}

func (c *Config) GetType() string {
	return "postgres"
}

func (c *Config) GetConnectionString() string {
	return c.URL
}
