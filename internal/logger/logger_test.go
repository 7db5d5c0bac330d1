package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanStripsLevelPrefix(t *testing.T) {
	assert.Equal(t, "Installed git", clean("[INFO] Installed %s\n", "git"))
	assert.Equal(t, "no prefix", clean("no prefix\n"))
	assert.Equal(t, "[not-a-level-prefix] kept", clean("[not-a-level-prefix] kept"))
}

func TestInitWritesLogFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "logs", "devsetup.log")
	require.NoError(t, Init(false, logFile))
	t.Cleanup(func() { _ = Init(false, "") })

	Info("[INFO] Backup created at %s\n", "/tmp/backups")
	Debug("[DEBUG] hidden while debug is off\n")
	Sync()

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"Backup created at /tmp/backups"`)
	assert.Contains(t, string(data), `"level":"info"`)
	assert.NotContains(t, string(data), "hidden while debug is off")
}
