package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeAndLoad(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Initialize(dir, "", "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, ConfigFile), cfg.Path())

	loaded, err := Load(cfg.Path())
	require.NoError(t, err)
	assert.Equal(t, "sqlite", loaded.Database.Driver)
	assert.Equal(t, filepath.Join(dir, DatabaseFile), loaded.DatabaseDSN())
	assert.Equal(t, ":8080", loaded.Server.Addr)
	assert.Equal(t, "idm", loaded.Rules.SourceAliases["magnolia"])
	assert.Equal(t, 10, loaded.Engine.MaxUpdateHistory)
}

func TestInitialize_AlreadyExists(t *testing.T) {
	dir := t.TempDir()
	_, err := Initialize(dir, "", "")
	require.NoError(t, err)

	_, err = Initialize(dir, "", "")
	assert.Error(t, err)
}

func TestInitialize_RejectsDriver(t *testing.T) {
	_, err := Initialize(t.TempDir(), "mysql", "x")
	assert.Error(t, err)
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigFile)
	require.NoError(t, os.WriteFile(path, []byte(`
[database]
driver = "postgres"
dsn = "postgres://localhost/geosync"

[log]
level = "debug"
format = "json"

[engine]
max_update_history = 3
update_retries = 2
retry_backoff_ms = 20
compare_ignore = ["Detail"]

[rules]
open_access_roles = ["ANONYMOUS"]
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/geosync", cfg.DatabaseDSN())
	assert.Equal(t, []string{"Detail"}, cfg.Engine.CompareIgnore)
	assert.Equal(t, []string{"ANONYMOUS"}, cfg.Rules.OpenAccessRoles)
	assert.Equal(t, []string{"IDM"}, cfg.Rules.ClosedAccessRoles)

	p := cfg.RetryPolicy()
	assert.Equal(t, 2, p.MaxRetries)
	assert.Equal(t, 20*time.Millisecond, p.InitialBackoff)

	rules := cfg.EngineRules()
	assert.Equal(t, 3, rules.MaxUpdateHistory())

	l := cfg.Logger()
	assert.Equal(t, logrus.DebugLevel, l.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, l.Formatter)
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Initialize(dir, "", "")
	require.NoError(t, err)

	t.Setenv("GEOSYNC_SERVER_ADDR", ":9999")
	t.Setenv("GEOSYNC_WEBHOOK_URLS", "http://a,http://b")
	t.Setenv("GEOSYNC_ENGINE_UPDATE_RETRIES", "4")

	loaded, err := Load(cfg.Path())
	require.NoError(t, err)
	assert.Equal(t, ":9999", loaded.Server.Addr)
	assert.Equal(t, []string{"http://a", "http://b"}, loaded.Webhook.URLs)
	assert.Equal(t, 4, loaded.Engine.UpdateRetries)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Initialize(dir, "", "")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, EnvFile), []byte("GEOSYNC_S3_BUCKET=raw-feeds\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("GEOSYNC_S3_BUCKET") })

	loaded, err := Load(cfg.Path())
	require.NoError(t, err)
	assert.Equal(t, "raw-feeds", loaded.S3.Bucket)
}

func TestLoad_Invalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigFile)
	require.NoError(t, os.WriteFile(path, []byte("[log]\nlevel = \"loud\"\n"), 0644))

	_, err := Load(path)
	assert.Error(t, err)

	_, err = Load(filepath.Join(dir, "missing.toml"))
	assert.Error(t, err)
}

func TestFindConfig(t *testing.T) {
	dir := t.TempDir()
	_, err := Initialize(dir, "", "")
	require.NoError(t, err)
	nested := filepath.Join(dir, "feeds", "digiway")
	require.NoError(t, os.MkdirAll(nested, 0755))
	t.Chdir(nested)

	found, err := FindConfig()
	require.NoError(t, err)
	want, err := filepath.EvalSymlinks(filepath.Join(dir, ConfigFile))
	require.NoError(t, err)
	got, err := filepath.EvalSymlinks(found)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
