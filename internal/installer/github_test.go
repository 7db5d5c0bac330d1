package installer

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devsetup/internal/config"
	"devsetup/internal/runner"
)

type tarEntry struct {
	name string
	body string
	mode int64
}

func tarGz(t *testing.T, entries []tarEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, e := range entries {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: e.name, Mode: e.mode, Size: int64(len(e.body)), Typeflag: tar.TypeReg}))
		_, err := tw.Write([]byte(e.body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func zipFile(t *testing.T, name, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(name)
	require.NoError(t, err)
	_, err = w.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// releaseServer serves a ripgrep-like release and a plain binary.
func releaseServer(t *testing.T) *httptest.Server {
	t.Helper()
	archive := tarGz(t, []tarEntry{
		{"ripgrep-14.1.0/rg", "#!rg-binary", 0755},
		{"ripgrep-14.1.0/doc/rg.1", "manpage", 0644},
		{"ripgrep-14.1.0/complete/rg.bash", "complete", 0644},
	})

	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/repos/BurntSushi/ripgrep/releases/tags/14.1.0", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(GitHubRelease{
			TagName: "14.1.0",
			Assets: []Asset{
				{Name: "ripgrep-14.1.0-aarch64-apple-darwin.tar.gz", BrowserDownloadURL: srv.URL + "/dl/darwin.tar.gz"},
				{Name: "ripgrep-14.1.0-x86_64-unknown-linux-musl.tar.gz.sha256", BrowserDownloadURL: srv.URL + "/dl/sum"},
				{Name: "ripgrep-14.1.0-x86_64-unknown-linux-musl.tar.gz", BrowserDownloadURL: srv.URL + "/dl/linux.tar.gz"},
				{Name: "ripgrep_14.1.0-1_amd64.deb", BrowserDownloadURL: srv.URL + "/dl/rg.deb"},
			},
		})
	})
	mux.HandleFunc("/dl/linux.tar.gz", func(w http.ResponseWriter, r *http.Request) {
		w.Write(archive)
	})
	mux.HandleFunc("/dl/mytool-1.2.0", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("\x7fELF raw binary"))
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func serverInstaller(t *testing.T, srv *httptest.Server, tools []config.Tool) *Installer {
	t.Helper()
	in, _ := newInstaller(t, config.Packages{Tools: tools}, runner.NewFake())
	in.client = srv.Client()
	in.apiBase = srv.URL
	in.goos, in.goarch = "linux", "amd64"
	return in
}

func TestPickAsset(t *testing.T) {
	assets := []Asset{
		{Name: "fd-v9.0.0-x86_64-unknown-linux-gnu.tar.gz"},
		{Name: "fd-v9.0.0-x86_64-unknown-linux-musl-debug.tar.gz"},
		{Name: "fd-v9.0.0-aarch64-unknown-linux-gnu.tar.gz"},
		{Name: "fd-v9.0.0-x86_64-apple-darwin.tar.gz"},
		{Name: "fd-v9.0.0-x86_64-pc-windows-msvc.zip"},
		{Name: "fd_9.0.0_amd64.deb"},
	}
	tests := []struct {
		goos, goarch string
		want         string
	}{
		{"linux", "amd64", "fd-v9.0.0-x86_64-unknown-linux-gnu.tar.gz"},
		{"linux", "arm64", "fd-v9.0.0-aarch64-unknown-linux-gnu.tar.gz"},
		{"darwin", "amd64", "fd-v9.0.0-x86_64-apple-darwin.tar.gz"},
		{"windows", "amd64", "fd-v9.0.0-x86_64-pc-windows-msvc.zip"},
	}
	for _, tt := range tests {
		t.Run(tt.goos+"/"+tt.goarch, func(t *testing.T) {
			got, ok := pickAsset(assets, "fd", tt.goos, tt.goarch)
			require.True(t, ok)
			assert.Equal(t, tt.want, got.Name)
		})
	}

	_, ok := pickAsset(assets, "fd", "darwin", "arm64")
	assert.False(t, ok)
}

func TestSyncToolsFromGitHubAndURL(t *testing.T) {
	srv := releaseServer(t)
	tools := []config.Tool{
		{Name: "rg", Version: "14.1.0", Source: "github", Repo: "BurntSushi/ripgrep", Tag: "14.1.0"},
		{Name: "mytool", Version: "1.2.0", Source: "url", URL: srv.URL + "/dl/mytool-{version}"},
		{Name: "ghost", Version: "1.0.0", Source: "github", Repo: "nobody/ghost"},
	}
	in := serverInstaller(t, srv, tools)

	sum, err := in.Run(context.Background(), Options{Groups: []string{"tools"}, SkipCheck: true})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"github:rg", "url:mytool"}, sum.Installed)
	assert.Equal(t, []string{"github:ghost"}, sum.Failed)

	rg := filepath.Join(in.cfg.BinDir, "rg")
	data, err := os.ReadFile(rg)
	require.NoError(t, err)
	assert.Equal(t, "#!rg-binary", string(data))
	info, err := os.Stat(rg)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0755), info.Mode().Perm())

	data, err = os.ReadFile(filepath.Join(in.cfg.BinDir, "mytool"))
	require.NoError(t, err)
	assert.Equal(t, "\x7fELF raw binary", string(data))

	recorded := in.Tools()
	require.Len(t, recorded, 2)
	assert.Equal(t, rg, recorded[0].InstallPath)

	// A second run finds both tools current.
	sum, err = in.Run(context.Background(), Options{Groups: []string{"tools"}, SkipCheck: true})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"github:rg", "url:mytool"}, sum.Skipped)
	assert.Empty(t, sum.Installed)

	// Removing the binary makes the tool stale again.
	require.NoError(t, os.Remove(rg))
	assert.False(t, in.current(tools[0]))
}

func TestExtractArchiveZip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "tool_windows_amd64.zip")
	require.NoError(t, os.WriteFile(src, zipFile(t, "tool/tool.exe", "MZ windows binary"), 0644))

	work := filepath.Join(dir, "x")
	require.NoError(t, ExtractArchive(src, work))
	bin, err := findExecutable(work, "tool")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(work, "tool", "tool.exe"), bin)
}

func TestExtractArchiveRejectsEscapingEntries(t *testing.T) {
	dir := t.TempDir()

	src := filepath.Join(dir, "evil.zip")
	require.NoError(t, os.WriteFile(src, zipFile(t, "../evil", "x"), 0644))
	require.ErrorContains(t, ExtractArchive(src, filepath.Join(dir, "z")), "escapes")

	src = filepath.Join(dir, "evil.tar.gz")
	require.NoError(t, os.WriteFile(src, tarGz(t, []tarEntry{{"a/../../evil", "x", 0755}}), 0644))
	require.ErrorContains(t, ExtractArchive(src, filepath.Join(dir, "t")), "escapes")
	assert.NoFileExists(t, filepath.Join(dir, "evil"))
}

func TestExtractArchiveUnsupported(t *testing.T) {
	require.ErrorContains(t, ExtractArchive("tool.rar", t.TempDir()), "unsupported archive format")
	assert.True(t, IsArchive("x.TAR.GZ"))
	assert.False(t, IsArchive("x.deb"))
}

func TestFindExecutablePrefersExactName(t *testing.T) {
	root := t.TempDir()
	for name, mode := range map[string]os.FileMode{
		"bin/tool-helper": 0755,
		"bin/tool":        0755,
		"README":          0644,
	} {
		p := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte("x"), mode))
	}
	got, err := findExecutable(root, "tool")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "bin", "tool"), got)

	_, err = findExecutable(root, "other")
	require.ErrorContains(t, err, "no executable named other")
}
