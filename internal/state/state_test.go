package state

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "state.json")
	at := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	st := New()
	st.RecordPackage(PackageState{Manager: "apt", Name: "git", InstalledAt: at})
	st.RecordPackage(PackageState{Manager: "github", Name: "rg", Version: "14.1.0", InstallPath: "/home/me/.local/bin/rg", InstalledAt: at})
	st.RecordBackup(BackupState{Dir: "/backups/2025-05-01_12-00-00", Encrypted: true, Bytes: 2048, At: at})
	st.RecordDotfilesSync(at)

	require.NoError(t, Save(path, st))
	loaded := Load(path)

	if diff := cmp.Diff(st, loaded, cmpopts.IgnoreUnexported(State{})); diff != "" {
		t.Errorf("state mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadMissingOrCorrupt(t *testing.T) {
	dir := t.TempDir()

	st := Load(filepath.Join(dir, "missing.json"))
	require.NotNil(t, st.Packages)
	assert.Empty(t, st.Packages)

	corrupt := filepath.Join(dir, "corrupt.json")
	require.NoError(t, os.WriteFile(corrupt, []byte("{not json"), 0644))
	st = Load(corrupt)
	require.NotNil(t, st.Packages)

	nullMap := filepath.Join(dir, "null.json")
	require.NoError(t, os.WriteFile(nullMap, []byte(`{"packages": null}`), 0644))
	st = Load(nullMap)
	require.NotNil(t, st.Packages)
}

func TestInstalledComparesVersion(t *testing.T) {
	st := New()
	st.RecordPackage(PackageState{Manager: "github", Name: "fd", Version: "10.1.0"})

	assert.True(t, st.Installed("github", "fd", "10.1.0"))
	assert.False(t, st.Installed("github", "fd", "10.2.0"))
	assert.False(t, st.Installed("apt", "fd", ""))

	st.Forget("github", "fd")
	assert.False(t, st.Installed("github", "fd", "10.1.0"))
}

func TestRecordPackageConcurrent(t *testing.T) {
	st := New()
	var wg sync.WaitGroup
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			st.RecordPackage(PackageState{Manager: "npm", Name: name})
		}(name)
	}
	wg.Wait()

	got := st.PackagesFor("npm")
	require.Len(t, got, 5)
	assert.Equal(t, "a", got[0].Name)
	assert.Equal(t, "e", got[4].Name)
}
