package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix prefixes every environment override, e.g. POSTBOT_TELEGRAM_TOKEN.
const EnvPrefix = "POSTBOT"

// envOverlay lists the settings that may come from the environment. Only
// variables that are set replace file values.
type envOverlay struct {
	TelegramToken  *string `envconfig:"TELEGRAM_TOKEN"`
	TelegramOwners []int64 `envconfig:"TELEGRAM_OWNERS"`
	GroupLog       *string `envconfig:"TELEGRAM_GROUP_LOG"`
	LogLevel       *string `envconfig:"LOG_LEVEL"`
	Timezone       *string `envconfig:"SCHEDULER_TIMEZONE"`
	FooterHandle   *string `envconfig:"BROADCAST_FOOTER"`
	StorageDriver  *string `envconfig:"STORAGE_DRIVER"`
	StoragePath    *string `envconfig:"STORAGE_PATH"`
	OpsAddr        *string `envconfig:"OPS_ADDR"`
	OpsToken       *string `envconfig:"OPS_TOKEN"`
}

// ApplyEnv overlays POSTBOT_* variables onto cfg.
func ApplyEnv(cfg *Config) error {
	var ov envOverlay
	if err := envconfig.Process(EnvPrefix, &ov); err != nil {
		return fmt.Errorf("env: %w", err)
	}
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&cfg.Telegram.Token, ov.TelegramToken)
	set(&cfg.Telegram.GroupLog, ov.GroupLog)
	set(&cfg.Logging.Level, ov.LogLevel)
	set(&cfg.Scheduler.Timezone, ov.Timezone)
	set(&cfg.Broadcast.FooterHandle, ov.FooterHandle)
	set(&cfg.Storage.Driver, ov.StorageDriver)
	set(&cfg.Storage.Path, ov.StoragePath)
	set(&cfg.Ops.Addr, ov.OpsAddr)
	set(&cfg.Ops.Token, ov.OpsToken)
	if len(ov.TelegramOwners) > 0 {
		cfg.Telegram.OwnerUserIDs = ov.TelegramOwners
	}
	return nil
}
