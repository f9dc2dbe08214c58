package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

var ErrNoToken = errors.New("telegram.token is required (or set POSTBOT_TELEGRAM_TOKEN)")

// Validate checks values a reload could get wrong. It never mutates cfg.
// The token is checked separately by ValidateForRun since a hot reload may
// leave it to the environment.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	check := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	_, err := ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout)
	check(err)
	_, err = ParseDurationField("telegram.command_timeout", cfg.Telegram.CommandTimeout)
	check(err)
	_, err = ParseDurationField("scheduler.job_timeout", cfg.Scheduler.JobTimeout)
	check(err)
	_, err = ParseDurationField("broadcast.delay", cfg.Broadcast.Delay)
	check(err)
	_, err = ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	check(err)
	_, err = ParseDurationField("ops.read_timeout", cfg.Ops.ReadTimeout)
	check(err)
	_, err = ParseDurationField("ops.write_timeout", cfg.Ops.WriteTimeout)
	check(err)
	_, err = ParseDurationField("ops.idle_timeout", cfg.Ops.IdleTimeout)
	check(err)

	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			check(fmt.Errorf("scheduler.timezone: %w", err))
		}
	}
	if cfg.Scheduler.HistorySize < 0 {
		check(errors.New("scheduler.history_size must be >= 0"))
	}

	switch d := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)); d {
	case "", "memory":
	case "file", "sqlite", "sqlite3":
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			check(fmt.Errorf("storage.path is required for driver %q", d))
		}
	default:
		check(fmt.Errorf("storage.driver: unknown %q", cfg.Storage.Driver))
	}

	if cfg.Ops.Enabled && strings.TrimSpace(cfg.Ops.Addr) != "" {
		if _, _, err := net.SplitHostPort(cfg.Ops.Addr); err != nil {
			check(fmt.Errorf("ops.addr: %w", err))
		}
	}

	if cfg.Logging.Telegram.Enabled && strings.TrimSpace(cfg.Telegram.GroupLog) == "" {
		check(errors.New("logging.telegram.enabled requires telegram.group_log"))
	}
	return errors.Join(errs...)
}

// ValidateForRun is Validate plus what the bot needs to start.
func ValidateForRun(cfg *Config) error {
	if err := Validate(cfg); err != nil {
		return err
	}
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return ErrNoToken
	}
	return nil
}
