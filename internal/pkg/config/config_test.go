package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repo-migrator/pkg/utils"
)

const minimalConfig = `
source:
  platform: gitea
  base_url: https://gitea.internal
  owner: legacy
  token: src-token
destination:
  platform: github
  owner: acme
  token: dst-token
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "gitea", cfg.Source.Platform)
	assert.Equal(t, "acme", cfg.Destination.Owner)
	assert.True(t, cfg.Destination.Private)
	assert.Equal(t, 30*time.Second, cfg.Source.Timeout)

	assert.Equal(t, "50MB", cfg.LFS.Threshold)
	assert.Equal(t, 50, cfg.LFS.HistoryDepth)
	assert.Equal(t, "file", cfg.State.Backend)
	assert.Equal(t, 10, cfg.Migration.BatchSize)
	assert.Equal(t, 30*time.Second, cfg.Migration.Cooldown)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_overrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig+`
lfs:
  threshold: 100mb
  ignore: ["vendor/**", "*.lock"]
  history_depth: 20
migration:
  batch_size: 5
  cooldown: 2m
  adopt_non_empty: true
scheduler:
  enabled: true
  cron: "0 */6 * * *"
`))
	require.NoError(t, err)

	assert.Equal(t, []string{"vendor/**", "*.lock"}, cfg.LFS.Ignore)
	assert.Equal(t, 2*time.Minute, cfg.Migration.Cooldown)
	assert.True(t, cfg.Migration.AdoptNonEmpty)
	assert.Equal(t, "0 */6 * * *", cfg.Scheduler.Cron)

	settings, err := cfg.LFSSettings()
	require.NoError(t, err)
	assert.Equal(t, int64(100*1024*1024), settings.ThresholdBytes)
	assert.Equal(t, 20, settings.HistoryDepth)
}

func TestLoad_envOverride(t *testing.T) {
	t.Setenv("MIGRATOR_DESTINATION_TOKEN", "from-env")

	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Destination.Token)
}

func TestLoad_validation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name: "unknown platform",
			content: `
source: {platform: bitbucket, owner: a}
destination: {platform: github, owner: b}
`,
			want: "Platform",
		},
		{
			name: "missing owner",
			content: `
source: {platform: gitea}
destination: {platform: github, owner: b}
`,
			want: "Owner",
		},
		{
			name: "unknown state backend",
			content: minimalConfig + `
state: {backend: redis}
`,
			want: "Backend",
		},
		{
			name: "scheduler without cron",
			content: minimalConfig + `
scheduler: {enabled: true}
`,
			want: "Cron",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_missingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLFSSettings_malformedThreshold(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig+`
lfs: {threshold: lots}
`))
	require.NoError(t, err)

	_, err = cfg.LFSSettings()
	assert.Error(t, err)
}

func TestResolveToken(t *testing.T) {
	key := "0123456789abcdef0123456789abcdef"
	enc, err := utils.EncryptSecret(key, "plain-token")
	require.NoError(t, err)

	p := PlatformConfig{Platform: "gitlab", Token: "ignored", TokenEnc: enc}
	token, err := p.ResolveToken(key)
	require.NoError(t, err)
	assert.Equal(t, "plain-token", token)

	_, err = p.ResolveToken("ffffffffffffffffffffffffffffffff")
	assert.Error(t, err)

	plain := PlatformConfig{Token: "raw"}
	token, err = plain.ResolveToken("")
	require.NoError(t, err)
	assert.Equal(t, "raw", token)
}

func TestResolvePath(t *testing.T) {
	t.Setenv(EnvConfigFile, "/etc/migrator.yaml")
	assert.Equal(t, "/flag.yaml", ResolvePath("/flag.yaml"))
	assert.Equal(t, "/etc/migrator.yaml", ResolvePath(""))
}

func TestDatabaseConfig_GetDSN(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: 3306, Database: "migrator", Username: "u", Password: "p"}
	assert.Equal(t, "u:p@tcp(db:3306)/migrator?charset=utf8mb4&parseTime=True&loc=Local", c.GetDSN())
}
