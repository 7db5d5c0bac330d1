package windows

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devsetup/internal/config"
)

func read(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func TestQuote(t *testing.T) {
	assert.Equal(t, "'plain'", Quote("plain"))
	assert.Equal(t, "'it''s'", Quote("it's"))
	assert.Equal(t, "'$env:PATH'", Quote("$env:PATH"))
}

func TestGenerateAll(t *testing.T) {
	out := t.TempDir()
	cfg := config.Windows{
		OutputDir: out,
		Presets:   []string{"explorer", "dark_mode"},
		Registry: []config.RegistryTweak{
			{Path: `HKCU:\Software\O'Brien`, Name: "Greeting", Type: "String", Value: "it's me"},
			{Path: `HKCU:\Software\Test`, Name: "Big", Type: "QWord", Value: "4294967296"},
		},
		WSL: config.WSLConfig{Memory: "8GB", Processors: 4},
	}

	written, err := Generate(cfg, []string{"Git.Git", "Microsoft.VisualStudioCode"})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(out, RegistryScript),
		filepath.Join(out, AppsScript),
		filepath.Join(out, WSLScript),
		filepath.Join(out, Launcher),
	}, written)

	reg := read(t, filepath.Join(out, RegistryScript))
	assert.Contains(t, reg, "\r\n")
	assert.NotContains(t, strings.ReplaceAll(reg, "\r\n", ""), "\n")
	assert.Contains(t, reg, "# explorer\r\n")
	assert.Contains(t, reg, "# dark_mode\r\n")
	assert.Contains(t, reg, "# custom\r\n")
	assert.Contains(t, reg, `Set-Tweak -Path 'HKCU:\Software\Microsoft\Windows\CurrentVersion\Explorer\Advanced' -Name 'HideFileExt' -Type 'DWord' -Value 0`)
	assert.Contains(t, reg, `Set-Tweak -Path 'HKCU:\Software\O''Brien' -Name 'Greeting' -Type 'String' -Value 'it''s me'`)
	assert.Contains(t, reg, `-Type 'QWord' -Value 4294967296`)
	assert.NotContains(t, reg, "# privacy")

	apps := read(t, filepath.Join(out, AppsScript))
	assert.Contains(t, apps, "    'Git.Git'\r\n    'Microsoft.VisualStudioCode'\r\n)")

	wsl := read(t, filepath.Join(out, WSLScript))
	assert.Contains(t, wsl, "@'\r\n[wsl2]\r\nmemory=8GB\r\nprocessors=4\r\n'@")

	bat := read(t, filepath.Join(out, Launcher))
	for _, s := range []string{RegistryScript, AppsScript, WSLScript} {
		assert.Contains(t, bat, `-File \"%~dp0`+s+`\"`)
	}
}

func TestGenerateSkipsEmptyScripts(t *testing.T) {
	out := t.TempDir()
	written, err := Generate(config.Windows{OutputDir: out, Presets: []string{"privacy"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(out, RegistryScript), filepath.Join(out, Launcher)}, written)
	assert.NoFileExists(t, filepath.Join(out, AppsScript))
	assert.NotContains(t, read(t, filepath.Join(out, Launcher)), AppsScript)
}

func TestGenerateNothingConfigured(t *testing.T) {
	out := t.TempDir()
	written, err := Generate(config.Windows{OutputDir: out, Presets: []string{}}, nil)
	require.NoError(t, err)
	assert.Empty(t, written)
	assert.NoFileExists(t, filepath.Join(out, Launcher))
}

func TestGenerateRejectsBadInput(t *testing.T) {
	_, err := Generate(config.Windows{OutputDir: t.TempDir(), Presets: []string{"turbo"}}, nil)
	require.ErrorContains(t, err, "unknown preset")

	_, err = Generate(config.Windows{
		OutputDir: t.TempDir(),
		Registry:  []config.RegistryTweak{{Path: `HKCU:\X`, Name: "N", Type: "DWord", Value: "lots"}},
	}, nil)
	require.ErrorContains(t, err, "not a DWord")
}
