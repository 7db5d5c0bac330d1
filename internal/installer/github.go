package installer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"devsetup/internal/config"
	"devsetup/internal/logger"
	"devsetup/internal/runner"
)

// GitHubRelease represents the structure of a GitHub release JSON response.
type GitHubRelease struct {
	TagName string  `json:"tag_name"` // The release tag (e.g., v1.0.0)
	Assets  []Asset `json:"assets"`
}

// Asset is one downloadable file of a release.
type Asset struct {
	Name               string `json:"name"`                 // Asset filename
	BrowserDownloadURL string `json:"browser_download_url"` // Direct download URL for the asset
}

// archiveSuffixes are the asset formats ExtractArchive understands.
var archiveSuffixes = []string{".tar.gz", ".tgz", ".tar.bz2", ".tar.xz", ".txz", ".zip", ".7z"}

// osAliases and archAliases map Go platform names to the spellings release
// assets commonly use.
var osAliases = map[string][]string{
	"linux":   {"linux"},
	"darwin":  {"darwin", "macos", "apple-darwin", "osx"},
	"windows": {"windows", "win64"},
}

var archAliases = map[string][]string{
	"amd64": {"amd64", "x86_64", "x64", "64bit"},
	"arm64": {"arm64", "aarch64"},
	"386":   {"386", "i386", "i686", "32bit"},
}

// fetchRelease loads the release metadata for a tool.
func (in *Installer) fetchRelease(ctx context.Context, tool config.Tool) (*GitHubRelease, error) {
	repo := tool.Repo
	if repo == "" {
		repo = tool.Name
	}
	tag := tool.Tag
	if tag == "" {
		tag = "v" + tool.Version
	}

	url := fmt.Sprintf("%s/repos/%s/releases/tags/%s", in.apiBase, repo, tag)
	logger.Debug("[DEBUG] Fetching GitHub release from URL: %s\n", url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := in.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch release %s@%s: %w", repo, tag, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			logger.Warn("[WARN] Failed to close HTTP response body: %v\n", cerr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch release %s@%s: HTTP status %d", repo, tag, resp.StatusCode)
	}

	var release GitHubRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, fmt.Errorf("decode release %s@%s: %w", repo, tag, err)
	}
	logger.Debug("[DEBUG] Release tag: %s with %d assets\n", release.TagName, len(release.Assets))
	return &release, nil
}

// pickAsset returns the archive asset matching goos/goarch. Assets whose
// name mentions the tool are preferred, then the shortest name, which tends to
// skip checksum and debug-symbol variants.
func pickAsset(assets []Asset, tool, goos, goarch string) (Asset, bool) {
	var best Asset
	found := false
	bestScore := 0
	for _, a := range assets {
		name := strings.ToLower(a.Name)
		if !hasAnySuffix(name, archiveSuffixes) {
			continue
		}
		if !containsAny(name, osAliases[goos]) || !containsAny(name, archAliases[goarch]) {
			continue
		}
		score := 0
		if strings.Contains(name, strings.ToLower(tool)) {
			score += 1000
		}
		score -= len(name)
		if !found || score > bestScore {
			best, bestScore, found = a, score, true
		}
	}
	return best, found
}

func hasAnySuffix(s string, suffixes []string) bool {
	for _, suf := range suffixes {
		if strings.HasSuffix(s, suf) {
			return true
		}
	}
	return false
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// installFromGitHub downloads the release asset for the current platform,
// extracts it and installs the binary into the bin directory.
func (in *Installer) installFromGitHub(ctx context.Context, tool config.Tool, work string) (string, error) {
	release, err := in.fetchRelease(ctx, tool)
	if err != nil {
		return "", err
	}

	asset, ok := pickAsset(release.Assets, tool.Name, in.goos, in.goarch)
	if !ok {
		return "", fmt.Errorf("no asset for %s/%s in release %s", in.goos, in.goarch, release.TagName)
	}
	logger.Debug("[DEBUG] Found matching asset: %s\n", asset.Name)

	archive := filepath.Join(work, path.Base(asset.Name))
	if err := in.download(ctx, asset.BrowserDownloadURL, archive); err != nil {
		return "", err
	}
	return in.ExtractAndInstall(archive, filepath.Join(work, "x"), tool.Name)
}

// download fetches url into dst, retrying transient failures.
func (in *Installer) download(ctx context.Context, url, dst string) error {
	logger.Info("[INFO] Downloading %s\n", url)
	return runner.Retry(ctx, in.cfg.Retries, in.delay, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := in.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("download %s: HTTP status %d", url, resp.StatusCode)
		}

		f, err := os.Create(dst)
		if err != nil {
			return err
		}
		n, err := io.Copy(f, resp.Body)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("download %s: %w", url, err)
		}
		logger.Debug("[DEBUG] Downloaded %s to %s\n", humanize.Bytes(uint64(n)), dst)
		return nil
	})
}
