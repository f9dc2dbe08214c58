package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postbot/internal/broadcast"
	"postbot/internal/config"
	"postbot/internal/observability/ops"
)

func TestMapSchedulerDefaults(t *testing.T) {
	t.Parallel()
	off := false
	tests := []struct {
		name    string
		in      config.SchedulerConfig
		enabled bool
		timeout time.Duration
	}{
		{name: "omitted", in: config.SchedulerConfig{}, enabled: true, timeout: defaultJobTimeout},
		{name: "explicit off", in: config.SchedulerConfig{Enabled: &off, JobTimeout: "30s"}, enabled: false, timeout: 30 * time.Second},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := mapScheduler(&config.Config{Scheduler: tt.in})
			require.NoError(t, err)
			assert.Equal(t, tt.enabled, got.Enabled)
			assert.Equal(t, tt.timeout, got.JobTimeout)
		})
	}
}

func TestMapBroadcastDelay(t *testing.T) {
	t.Parallel()
	got, err := mapBroadcast(&config.Config{})
	require.NoError(t, err)
	assert.Equal(t, broadcast.DefaultDelay, got.Delay)

	got, err = mapBroadcast(&config.Config{Broadcast: config.BroadcastConfig{Delay: "0s", FooterHandle: " @me "}})
	require.NoError(t, err)
	assert.Zero(t, got.Delay)
	assert.Equal(t, "@me", got.FooterHandle)

	_, err = mapBroadcast(&config.Config{Broadcast: config.BroadcastConfig{Delay: "soon"}})
	assert.ErrorContains(t, err, "broadcast.delay")
}

func TestMapOpsDefaults(t *testing.T) {
	t.Parallel()
	got, err := mapOps(&config.Config{Ops: config.OpsConfig{Enabled: true, Pprof: true}})
	require.NoError(t, err)
	assert.Equal(t, ops.DefaultAddr, got.Addr)
	assert.Equal(t, 10*time.Second, got.ReadTimeout)
	assert.Zero(t, got.WriteTimeout)
	assert.True(t, got.Pprof)
}

func TestMapStorage(t *testing.T) {
	t.Parallel()
	got, err := mapStorage(&config.Config{Storage: config.StorageConfig{Driver: " SQLite ", Path: "./x.db", BusyTimeout: "2s"}})
	require.NoError(t, err)
	assert.Equal(t, "sqlite", got.Driver)
	assert.Equal(t, "./x.db", got.Path)
	assert.Equal(t, 2*time.Second, got.BusyTimeout)
}

func TestGroupLogTarget(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		want int64
	}{
		{raw: "", want: 0},
		{raw: " -100123 ", want: -100123},
		{raw: "@logs", want: 0},
	}
	for _, tt := range tests {
		cfg := &config.Config{Telegram: config.TelegramConfig{GroupLog: tt.raw}}
		assert.Equal(t, tt.want, groupLogTarget(cfg), tt.raw)
	}
}

func TestCommandTimeout(t *testing.T) {
	t.Parallel()
	d, err := commandTimeout(&config.Config{})
	require.NoError(t, err)
	assert.Equal(t, defaultCommandTimeout, d)

	d, err = commandTimeout(&config.Config{Telegram: config.TelegramConfig{CommandTimeout: "0s"}})
	require.NoError(t, err)
	assert.Zero(t, d)
}

func TestDriverName(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "memory", driverName(""))
	assert.Equal(t, "file", driverName(" FILE "))
}
