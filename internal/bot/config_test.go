package bot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
telegram:
  token: "123:abc"
  run_mode: longpoll
  privileged_ids: [1, 42]
database:
  host: localhost
  port: "5432"
accounts:
  session_dir: /var/lib/groupcast/sessions
  max_bulk: 20
health:
  listen: ":8081"
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "123:abc", cfg.Core.Telegram.Token)
	assert.Equal(t, []int64{1, 42}, cfg.Core.Telegram.PrivilegedIDs)
	assert.Equal(t, "longpoll", cfg.Core.Telegram.RunMode)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, "/var/lib/groupcast/sessions", cfg.Accounts.SessionDir)
	assert.Equal(t, 20, cfg.Accounts.MaxBulk)
	assert.Equal(t, ":8081", cfg.Health.Listen)
}

func TestLoadConfigDefaultsSessionDir(t *testing.T) {
	path := writeConfig(t, `
telegram:
  token: "123:abc"
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "sessions", cfg.Accounts.SessionDir)
}

func TestLoadConfigRequiresToken(t *testing.T) {
	path := writeConfig(t, `
telegram:
  run_mode: longpoll
`)

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
