package main

import (
	"bytes"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postbot/internal/app"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestConfigCheckYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
telegram:
  token: "123:abc"
  owner_user_ids: [42]
storage:
  driver: memory
scheduler:
  timezone: Asia/Kolkata
`)
	out, err := runCLI(t, "config", "check", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "config ok")
	assert.Contains(t, out, "owners:    1")
	assert.Contains(t, out, "timezone=Asia/Kolkata")
}

func TestConfigCheckRejectsUnknownKey(t *testing.T) {
	path := writeConfig(t, "config.json", `{"telegram":{"token":"x"},"plugins":{}}`)
	_, err := runCLI(t, "config", "check", "--config", path)
	require.Error(t, err)
}

func TestConfigCheckRejectsBadTimezone(t *testing.T) {
	path := writeConfig(t, "config.json", `{"telegram":{"token":"x"},"scheduler":{"timezone":"Mars/Olympus"}}`)
	_, err := runCLI(t, "config", "check", "--config", path)
	assert.ErrorContains(t, err, "scheduler.timezone")
}

func TestConfigCheckAllowNoToken(t *testing.T) {
	t.Setenv("POSTBOT_TELEGRAM_TOKEN", "")
	path := writeConfig(t, "config.json", `{"storage":{"driver":"sqlite","path":"./bot.db"}}`)

	out, err := runCLI(t, "config", "check", "--config", path, "--allow-no-token")
	require.NoError(t, err)
	assert.Contains(t, out, "storage:   sqlite")
}

func TestStopReason(t *testing.T) {
	assert.Equal(t, app.StopSIGINT, stopReason(os.Interrupt))
	assert.Equal(t, app.StopSIGTERM, stopReason(syscall.SIGTERM))
	assert.Equal(t, app.StopUnknown, stopReason(syscall.SIGHUP))
}
