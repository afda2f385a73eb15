package config

import (
	"fmt"
	"net"

	"github.com/grovetools/nicepick/errors"
)

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Daemon.IdleTimeout < 0 {
		return errors.ConfigInvalid("daemon.idle_timeout cannot be negative")
	}
	if c.Daemon.CommandQueue < 1 {
		return errors.ConfigInvalid("daemon.command_queue must be at least 1")
	}
	if c.Daemon.Width < 1 || c.Daemon.Height < 1 {
		return errors.ConfigInvalid(fmt.Sprintf("daemon window size %dx%d is invalid", c.Daemon.Width, c.Daemon.Height))
	}

	if c.Client.ConnectTimeout <= 0 {
		return errors.ConfigInvalid("client.connect_timeout must be positive")
	}
	if c.Client.ResponseTimeout <= 0 {
		return errors.ConfigInvalid("client.response_timeout must be positive")
	}
	if c.Client.BootstrapAttempts < 1 {
		return errors.ConfigInvalid("client.bootstrap_attempts must be at least 1")
	}
	if c.Client.BackoffInitial <= 0 {
		return errors.ConfigInvalid("client.backoff_initial must be positive")
	}
	if c.Client.BackoffMax < c.Client.BackoffInitial {
		return errors.ConfigInvalid("client.backoff_max cannot be shorter than client.backoff_initial").
			WithDetail("backoff_initial", c.Client.BackoffInitial.String()).
			WithDetail("backoff_max", c.Client.BackoffMax.String())
	}

	if c.Query.Debounce < 0 {
		return errors.ConfigInvalid("query.debounce cannot be negative")
	}
	if c.Query.TopK < 1 {
		return errors.ConfigInvalid("query.top_k must be at least 1")
	}

	if c.Metrics.Listen != "" {
		if _, _, err := net.SplitHostPort(c.Metrics.Listen); err != nil {
			return errors.Wrap(err, errors.ErrCodeConfigInvalid, "metrics.listen must be host:port").
				WithDetail("listen", c.Metrics.Listen)
		}
	}
	return nil
}
