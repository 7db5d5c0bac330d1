package backup

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"devsetup/internal/logger"
)

// Prune removes backup folders in dest whose modification time is older than
// retentionDays before now. Only folders named with DirLayout are considered.
// Failures are logged and skipped; the removed paths are returned.
func Prune(dest string, retentionDays int, now time.Time) []string {
	if retentionDays <= 0 {
		logger.Debug("[DEBUG] Retention disabled; nothing pruned\n")
		return nil
	}

	entries, err := os.ReadDir(dest)
	if err != nil {
		logger.Warn("[WARN] Cannot read %s for pruning: %v\n", dest, err)
		return nil
	}

	cutoff := now.Add(-time.Duration(retentionDays) * 24 * time.Hour)
	var removed []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := time.Parse(DirLayout, entry.Name()); err != nil {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			logger.Warn("[WARN] Cannot stat %s: %v\n", entry.Name(), err)
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}

		path := filepath.Join(dest, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			logger.Warn("[WARN] Failed to remove old backup %s: %v\n", path, err)
			continue
		}
		logger.Info("[INFO] Removed backup older than %d days: %s\n", retentionDays, entry.Name())
		removed = append(removed, path)
	}
	return removed
}

// Entry is one backup folder found by List.
type Entry struct {
	Name      string
	Path      string
	Time      time.Time
	Bytes     int64
	Encrypted bool
	Files     []string
}

// List returns the backup folders in dest, newest first.
func List(dest string) ([]Entry, error) {
	dirs, err := os.ReadDir(dest)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []Entry
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		ts, err := time.ParseInLocation(DirLayout, d.Name(), time.Local)
		if err != nil {
			continue
		}
		e := Entry{Name: d.Name(), Path: filepath.Join(dest, d.Name()), Time: ts}
		files, err := os.ReadDir(e.Path)
		if err != nil {
			logger.Warn("[WARN] Cannot read %s: %v\n", e.Path, err)
			continue
		}
		for _, f := range files {
			info, err := f.Info()
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
			e.Bytes += info.Size()
			e.Files = append(e.Files, f.Name())
			if strings.HasSuffix(f.Name(), encSuffix) {
				e.Encrypted = true
			}
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.After(out[j].Time) })
	return out, nil
}
