package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
}

func TestLoadConfigYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "devsetup.yaml")
	writeFile(t, path, `
installer:
  retries: 5
packages:
  apt: [git, curl]
  tools:
    - name: ripgrep
      version: "14.1.0"
      source: github
      repo: BurntSushi/ripgrep
tasks:
  backend: sqlite
  folder_root: `+dir+`/Uni
windows:
  registry:
    - path: HKCU:\Software\Test
      name: Enabled
      type: DWord
      value: 1
`)

	cfg, err := LoadConfig(path, false)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Installer.Retries)
	assert.Equal(t, defaultRetryDelay, cfg.Installer.RetryDelaySeconds)
	assert.Equal(t, []string{"git", "curl"}, cfg.Packages.Apt)
	require.Len(t, cfg.Packages.Tools, 1)
	assert.Equal(t, "BurntSushi/ripgrep", cfg.Packages.Tools[0].Repo)
	assert.Equal(t, "sqlite", cfg.Tasks.Backend)
	assert.Equal(t, filepath.Join(dir, "Uni"), cfg.Tasks.FolderRoot)
	require.Len(t, cfg.Windows.Registry, 1)
	assert.Equal(t, "1", cfg.Windows.Registry[0].Value)
	assert.True(t, cfg.Installer.Sudo())
}

func TestLoadConfigTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "devsetup.toml")
	writeFile(t, path, `
[backup]
dest = "/srv/backups"
retention_days = 7
encrypt = true

[packages]
pip = ["black", "ruff"]
`)

	cfg, err := LoadConfig(path, false)
	require.NoError(t, err)
	assert.Equal(t, "/srv/backups", cfg.Backup.Dest)
	assert.Equal(t, 7, cfg.Backup.RetentionDays)
	assert.True(t, cfg.Backup.Encrypt)
	assert.Equal(t, []string{"black", "ruff"}, cfg.Packages.Pip)
}

func TestLoadConfigRejectsSchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "unknown key", body: "colour: blue\n", want: "colour"},
		{name: "bad backend", body: "tasks:\n  backend: postgres\n", want: "/tasks/backend"},
		{name: "wrong type", body: "backup:\n  retention_days: soon\n", want: "/backup/retention_days"},
		{name: "bad registry type", body: "windows:\n  registry:\n    - {path: a, name: b, type: Binary, value: x}\n", want: "/windows/registry/0/type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "devsetup.yaml")
			writeFile(t, path, tt.body)

			_, err := LoadConfig(path, false)
			require.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.yaml")

	_, err := LoadConfig(path, false)
	require.Error(t, err)

	cfg, err := LoadConfig(path, true)
	require.NoError(t, err)
	assert.Equal(t, "csv", cfg.Tasks.Backend)
	assert.Equal(t, defaultRetentionDays, cfg.Backup.RetentionDays)
	assert.NotEmpty(t, cfg.Downloads.Categories)
	assert.False(t, strings.HasPrefix(cfg.Backup.Dest, "~"))
}

func TestLoadConfigPackagesFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "packages.yaml"), "packages:\n  npm: [typescript]\n  apt: [jq]\n")
	path := filepath.Join(dir, "devsetup.yaml")
	writeFile(t, path, "packages_file: packages.yaml\npackages:\n  apt: [git]\n")

	cfg, err := LoadConfig(path, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"git", "jq"}, cfg.Packages.Apt)
	assert.Equal(t, []string{"typescript"}, cfg.Packages.Npm)
}

func TestLoadConfigLegacyOverlay(t *testing.T) {
	dir := t.TempDir()
	legacy := filepath.Join(dir, "conf")
	writeFile(t, filepath.Join(legacy, BackupConf), `# backup settings
BACKUP_DIR="/mnt/d/Backups"
RETENTION_DAYS=14
ENCRYPT_BACKUPS='yes'
BACKUP_SOURCES="/home/me/Documents /home/me/Uni"
`)
	writeFile(t, filepath.Join(legacy, DotfilesConf), "export DOTFILES=\".bashrc .vimrc\"\nAUTO_PUSH=true\n")

	path := filepath.Join(dir, "devsetup.yaml")
	writeFile(t, path, "legacy_conf_dir: "+legacy+"\nbackup:\n  dest: /ignored\n")

	cfg, err := LoadConfig(path, false)
	require.NoError(t, err)
	assert.Equal(t, "/mnt/d/Backups", cfg.Backup.Dest)
	assert.Equal(t, 14, cfg.Backup.RetentionDays)
	assert.True(t, cfg.Backup.Encrypt)
	assert.Equal(t, []string{"/home/me/Documents", "/home/me/Uni"}, cfg.Backup.Sources)
	assert.Equal(t, []string{".bashrc", ".vimrc"}, cfg.Dotfiles.Files)
	assert.True(t, cfg.Dotfiles.Push)
}

func TestParseShellConf(t *testing.T) {
	vals, err := ParseShellConf(strings.NewReader(`
# comment
A="double quoted"
B='single $quoted'
C=bare # trailing comment
export D="exported"
ROOT=/home/me
E="$ROOT/Backups"
`))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"A":    "double quoted",
		"B":    "single $quoted",
		"C":    "bare",
		"D":    "exported",
		"ROOT": "/home/me",
		"E":    "/home/me/Backups",
	}, vals)

	_, err = ParseShellConf(strings.NewReader("not an assignment\n"))
	require.Error(t, err)
}

func TestSetShellConfValueRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup.conf")
	for _, value := range []string{
		`pa"ss`,
		`C:\Users\me`,
		`cost$HOME and \$PATH`,
		"two\nlines",
		"back`tick!",
		"plain",
	} {
		require.NoError(t, SetShellConfValue(path, "BACKUP_PASSWORD", value))

		f, err := os.Open(path)
		require.NoError(t, err)
		vals, err := ParseShellConf(f)
		f.Close()
		require.NoError(t, err)
		assert.Equal(t, value, vals["BACKUP_PASSWORD"], "value %q", value)
	}
}

func TestSetShellConfValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup.conf")
	writeFile(t, path, "# header\nRETENTION_DAYS=\"30\"\nBACKUP_DIR=\"/old\"\n")

	require.NoError(t, SetShellConfValue(path, "RETENTION_DAYS", "7"))
	require.NoError(t, SetShellConfValue(path, "ENCRYPT_BACKUPS", "true"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "# header\nRETENTION_DAYS=7\nBACKUP_DIR=\"/old\"\nENCRYPT_BACKUPS=\"true\"\n", string(data))

	require.Error(t, SetShellConfValue(path, "BAD KEY", "x"))
}

func TestSetShellConfValueCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "downloads_organizer.conf")
	require.NoError(t, SetShellConfValue(path, "DOWNLOADS_DIR", "/mnt/c/Users/me/Downloads"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "DOWNLOADS_DIR=\"/mnt/c/Users/me/Downloads\"\n", string(data))
}

func TestMarshalMasksPassword(t *testing.T) {
	cfg := Default()
	cfg.Backup.Password = "hunter2"

	out, err := Marshal(cfg)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "hunter2")
	assert.Contains(t, string(out), "********")
}
