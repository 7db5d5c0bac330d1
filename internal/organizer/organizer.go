// Package organizer sorts the top level of a downloads folder into category
// subfolders chosen by file extension.
package organizer

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"devsetup/internal/config"
	"devsetup/internal/logger"
)

// OtherCategory receives files with unknown extensions when MoveUnknown is set.
const OtherCategory = "Other"

// partialSuffixes mark downloads still in progress.
var partialSuffixes = []string{".part", ".crdownload", ".download", ".partial", ".tmp", ".opdownload"}

// Move is one planned or performed relocation.
type Move struct {
	From     string
	To       string
	Category string
}

// Organizer moves files in Dir into category folders.
type Organizer struct {
	fs  afero.Fs
	cfg config.Downloads

	// exts holds extensions longest first so ".tar.gz" wins over ".gz".
	exts  []string
	index map[string]string

	// OnMove, when set, is called after every move (or planned move in dry runs).
	OnMove func(Move)
}

// New builds an organizer over fs. Extensions are matched case-insensitively.
func New(fs afero.Fs, cfg config.Downloads) *Organizer {
	o := &Organizer{fs: fs, cfg: cfg, index: make(map[string]string)}
	for category, exts := range cfg.Categories {
		for _, ext := range exts {
			ext = strings.ToLower(strings.TrimSpace(ext))
			if ext == "" {
				continue
			}
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			c := category
			if prev, ok := o.index[ext]; ok && prev != c {
				c = min(prev, c)
				logger.Warn("[WARN] Extension %s is listed under both %s and %s; using %s\n", ext, prev, category, c)
			}
			o.index[ext] = c
		}
	}
	for ext := range o.index {
		o.exts = append(o.exts, ext)
	}
	sort.Slice(o.exts, func(i, j int) bool {
		if len(o.exts[i]) != len(o.exts[j]) {
			return len(o.exts[i]) > len(o.exts[j])
		}
		return o.exts[i] < o.exts[j]
	})
	return o
}

// Category returns the category of a file name, or false when none matches.
func (o *Organizer) Category(name string) (string, bool) {
	lower := strings.ToLower(name)
	for _, ext := range o.exts {
		if strings.HasSuffix(lower, ext) && len(lower) > len(ext) {
			return o.index[ext], true
		}
	}
	return "", false
}

// Organize moves every eligible file at the top level of the downloads dir.
// With dryRun set nothing is touched and the planned moves are returned.
func (o *Organizer) Organize(dryRun bool) ([]Move, error) {
	entries, err := afero.ReadDir(o.fs, o.cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", o.cfg.Dir, err)
	}

	var moves []Move
	planned := make(map[string]bool)
	for _, entry := range entries {
		if entry.IsDir() || !entry.Mode().IsRegular() {
			continue
		}
		m, ok, err := o.organizeFile(entry.Name(), dryRun, planned)
		if err != nil {
			logger.Error("[ERROR] Failed to move %s: %v\n", entry.Name(), err)
			continue
		}
		if ok {
			moves = append(moves, m)
		}
	}

	verb := "Moved"
	if dryRun {
		verb = "Would move"
	}
	logger.Info("[INFO] %s %d file(s) in %s\n", verb, len(moves), o.cfg.Dir)
	return moves, nil
}

// organizeFile moves one top-level file. planned tracks targets chosen during
// a dry run so collisions are still numbered.
func (o *Organizer) organizeFile(name string, dryRun bool, planned map[string]bool) (Move, bool, error) {
	if skip(name) {
		logger.Debug("[DEBUG] Skipping %s\n", name)
		return Move{}, false, nil
	}

	category, ok := o.Category(name)
	if !ok {
		if !o.cfg.MoveUnknown {
			logger.Debug("[DEBUG] No category for %s; leaving it\n", name)
			return Move{}, false, nil
		}
		category = OtherCategory
	}

	targetDir := filepath.Join(o.cfg.Dir, category)
	to, err := o.uniqueTarget(targetDir, name, planned)
	if err != nil {
		return Move{}, false, err
	}
	m := Move{From: filepath.Join(o.cfg.Dir, name), To: to, Category: category}

	if dryRun {
		planned[to] = true
		logger.Info("[INFO] [dry-run] %s -> %s/\n", name, category)
	} else {
		if err := o.fs.MkdirAll(targetDir, 0755); err != nil {
			return Move{}, false, err
		}
		if err := o.fs.Rename(m.From, m.To); err != nil {
			return Move{}, false, err
		}
		logger.Info("[INFO] %s -> %s\n", name, relTo(o.cfg.Dir, m.To))
	}
	if o.OnMove != nil {
		o.OnMove(m)
	}
	return m, true, nil
}

// uniqueTarget returns dir/name, or "base (n)ext" with the first free n.
func (o *Organizer) uniqueTarget(dir, name string, planned map[string]bool) (string, error) {
	base, ext := splitExt(name)
	candidate := filepath.Join(dir, name)
	for n := 1; ; n++ {
		exists, err := afero.Exists(o.fs, candidate)
		if err != nil {
			return "", err
		}
		if !exists && !planned[candidate] {
			return candidate, nil
		}
		candidate = filepath.Join(dir, fmt.Sprintf("%s (%d)%s", base, n, ext))
	}
}

// splitExt keeps double extensions like ".tar.gz" together.
func splitExt(name string) (string, string) {
	lower := strings.ToLower(name)
	for _, double := range []string{".tar.gz", ".tar.xz", ".tar.bz2"} {
		if strings.HasSuffix(lower, double) && len(name) > len(double) {
			return name[:len(name)-len(double)], name[len(name)-len(double):]
		}
	}
	ext := filepath.Ext(name)
	if ext == name {
		return name, ""
	}
	return strings.TrimSuffix(name, ext), ext
}

func skip(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	lower := strings.ToLower(name)
	for _, s := range partialSuffixes {
		if strings.HasSuffix(lower, s) {
			return true
		}
	}
	return false
}

func relTo(base, path string) string {
	if rel, err := filepath.Rel(base, path); err == nil {
		return rel
	}
	return path
}

// isTopLevel reports whether path sits directly in dir.
func isTopLevel(dir, path string) bool {
	return filepath.Clean(filepath.Dir(path)) == filepath.Clean(dir)
}
