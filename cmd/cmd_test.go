package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devsetup/internal/prompt"
)

// testEnv points HOME at a temp dir, writes a config keeping every path inside
// it and feeds input to the prompter.
func testEnv(t *testing.T, input string) (home, cfgPath string, out *bytes.Buffer) {
	t.Helper()
	home = t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", "")

	cfgPath = filepath.Join(home, "devsetup.yaml")
	cfg := `state_file: ~/state.json
log_file: ~/devsetup.log
tasks:
  backend: csv
  file: ~/academic/tasks.csv
  folder_root: ~/Uni
windows:
  output_dir: ~/win
  presets: [explorer]
`
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))

	out = &bytes.Buffer{}
	orig := newPrompter
	newPrompter = func() prompt.Prompter { return prompt.NewReader(strings.NewReader(input), out) }
	t.Cleanup(func() {
		newPrompter = orig
		sess = nil
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
	})
	rootCmd.SetOut(out)
	return home, cfgPath, out
}

func execute(t *testing.T, args ...string) error {
	t.Helper()
	rootCmd.SetArgs(args)
	return Execute(context.Background())
}

func TestMenuExitsOnZero(t *testing.T) {
	_, cfgPath, out := testEnv(t, "x\n0\n")

	require.NoError(t, execute(t, "--config", cfgPath))
	assert.Contains(t, out.String(), "5) Academic task tracker")
	assert.Equal(t, 2, strings.Count(out.String(), "Choose an option: "))
}

func TestMenuExitsOnEndOfInput(t *testing.T) {
	_, cfgPath, _ := testEnv(t, "")
	require.NoError(t, execute(t, "--config", cfgPath))
}

func TestMenuTaskShell(t *testing.T) {
	home, cfgPath, out := testEnv(t, strings.Join([]string{
		"5",
		`add "Essay draft" 2030-01-15 "first pass" CS101`,
		"complete 0",
		"bogus",
		"back",
		"0",
	}, "\n")+"\n")

	require.NoError(t, execute(t, "--config", cfgPath))

	raw, err := os.ReadFile(filepath.Join(home, "academic", "tasks.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Essay draft")
	assert.Contains(t, string(raw), "Completed")
	assert.DirExists(t, filepath.Join(home, "Uni", "Essay_draft"))
	assert.Contains(t, out.String(), "task> ")
}

func TestMenuTaskShellReasksBadDate(t *testing.T) {
	home, cfgPath, out := testEnv(t, strings.Join([]string{
		"5",
		"add Quiz 15/01/2030 chapter4 MATH1",
		"not-a-date",
		"2030-01-15",
		"back",
		"0",
	}, "\n")+"\n")

	require.NoError(t, execute(t, "--config", cfgPath))

	raw, err := os.ReadFile(filepath.Join(home, "academic", "tasks.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Quiz,2030-01-15,chapter4")
	assert.Contains(t, out.String(), `Invalid date "15/01/2030"`)
	assert.Equal(t, 2, strings.Count(out.String(), "Due date (YYYY-MM-DD): "))
}

func TestTaskAddAndDeleteCommands(t *testing.T) {
	home, cfgPath, _ := testEnv(t, "")

	require.NoError(t, execute(t, "--config", cfgPath, "task", "add", "Lab report", "2030-02-01", "optics", "PHY2"))
	csvPath := filepath.Join(home, "academic", "tasks.csv")
	raw, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Lab report")

	require.NoError(t, execute(t, "--config", cfgPath, "task", "delete", "0", "--folder"))
	raw, err = os.ReadFile(csvPath)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "Lab report")
	assert.NoDirExists(t, filepath.Join(home, "Uni", "Lab_report"))
}

func TestTaskAddRejectsBadDate(t *testing.T) {
	_, cfgPath, _ := testEnv(t, "")
	err := execute(t, "--config", cfgPath, "task", "add", "Quiz", "15/01/2030", "x", "y")
	require.Error(t, err)
}

func TestConfigShowPrintsEffectiveConfig(t *testing.T) {
	home, cfgPath, out := testEnv(t, "")

	require.NoError(t, execute(t, "--config", cfgPath, "config", "show"))
	assert.Contains(t, out.String(), "# "+cfgPath)
	assert.Contains(t, out.String(), filepath.Join(home, "academic", "tasks.csv"))
}

func TestMissingExplicitConfigFails(t *testing.T) {
	home, _, _ := testEnv(t, "")
	err := execute(t, "--config", filepath.Join(home, "nope.yaml"), "config", "show")
	require.Error(t, err)
}

func TestConfPath(t *testing.T) {
	home, cfgPath, _ := testEnv(t, "")
	require.NoError(t, execute(t, "--config", cfgPath, "config", "validate"))

	sess.cfg.LegacyConfDir = filepath.Join(home, "conf")
	got, err := confPath("backup.conf")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "conf", "backup.conf"), got)

	got, err = confPath("/etc/x.conf")
	require.NoError(t, err)
	assert.Equal(t, "/etc/x.conf", got)

	sess.cfg.LegacyConfDir = ""
	_, err = confPath("backup.conf")
	require.Error(t, err)
}

func TestSplitArgs(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"list", []string{"list"}},
		{"  complete   2 ", []string{"complete", "2"}},
		{`add "Essay draft" 2030-01-15`, []string{"add", "Essay draft", "2030-01-15"}},
		{`add 'it''s'`, []string{"add", "its"}},
		{`add Essay\ draft 2030-01-15`, []string{"add", "Essay draft", "2030-01-15"}},
		{`add "say \"hi\""`, []string{"add", `say "hi"`}},
	}
	for _, tt := range tests {
		got, err := splitArgs(tt.in)
		require.NoError(t, err, tt.in)
		if diff := cmp.Diff(tt.want, got, cmpopts.EquateEmpty()); diff != "" {
			t.Errorf("splitArgs(%q) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}

	_, err := splitArgs(`add "open`)
	require.Error(t, err)
}

func TestBackupCommandPassesConfigOnlyWhenPresent(t *testing.T) {
	dir := t.TempDir()

	missing := filepath.Join(dir, "devsetup.yaml")
	got, err := backupCommand("/usr/local/bin/devsetup", missing)
	require.NoError(t, err)
	assert.Equal(t, `"/usr/local/bin/devsetup" backup run >/dev/null 2>&1`, got)

	require.NoError(t, os.WriteFile(missing, []byte("backup:\n  retention_days: 7\n"), 0o644))
	got, err = backupCommand("/usr/local/bin/devsetup", missing)
	require.NoError(t, err)
	assert.Equal(t, `"/usr/local/bin/devsetup" --config "`+missing+`" backup run >/dev/null 2>&1`, got)
}
