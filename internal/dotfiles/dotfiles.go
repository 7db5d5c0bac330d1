// Package dotfiles keeps a fixed list of home-directory config files in a git
// repository: backup copies home into the repo and commits, restore copies the
// repo back into home after saving whatever it would overwrite.
package dotfiles

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"devsetup/internal/config"
	"devsetup/internal/logger"
	"devsetup/internal/runner"
)

// BackupDirName is the folder under home that receives overwritten files.
const BackupDirName = ".dotfiles_backup"

// stampLayout names commits and restore backup folders.
const stampLayout = "20060102_150405"

// FileStatus compares one dotfile between home and the repo.
type FileStatus string

const (
	StatusSame        FileStatus = "identical"
	StatusDiffers     FileStatus = "different"
	StatusMissingHome FileStatus = "missing in home"
	StatusMissingRepo FileStatus = "missing in repo"
	StatusMissingBoth FileStatus = "missing"
)

// Report is the status of one file.
type Report struct {
	File   string
	Status FileStatus
}

// Syncer copies dotfiles between home and the repository.
type Syncer struct {
	fs   afero.Fs
	run  runner.Runner
	cfg  config.Dotfiles
	home string
	now  func() time.Time
}

// New builds a syncer. fs is usually afero.NewOsFs().
func New(fs afero.Fs, r runner.Runner, cfg config.Dotfiles, home string) *Syncer {
	return &Syncer{fs: fs, run: r, cfg: cfg, home: home, now: time.Now}
}

// SetClock overrides the time source used for commit messages and backup folders.
func (s *Syncer) SetClock(now func() time.Time) {
	s.now = now
}

// EnsureRepo clones the remote into the repo dir, or initialises an empty
// repository when no remote is configured. An existing repository is left alone.
func (s *Syncer) EnsureRepo(ctx context.Context) error {
	if ok, _ := afero.DirExists(s.fs, filepath.Join(s.cfg.Repo, ".git")); ok {
		return nil
	}

	if s.cfg.Remote != "" {
		if ok, _ := afero.DirExists(s.fs, s.cfg.Repo); ok {
			if empty, _ := afero.IsEmpty(s.fs, s.cfg.Repo); !empty {
				return fmt.Errorf("%s exists and is not a git repository", s.cfg.Repo)
			}
		}
		logger.Info("[INFO] Cloning %s into %s\n", s.cfg.Remote, s.cfg.Repo)
		if _, err := s.run.Run(ctx, runner.Command("git", "clone", s.cfg.Remote, s.cfg.Repo)); err != nil {
			return fmt.Errorf("clone dotfiles repository: %w", err)
		}
		return nil
	}

	if err := s.fs.MkdirAll(s.cfg.Repo, 0755); err != nil {
		return fmt.Errorf("create %s: %w", s.cfg.Repo, err)
	}
	logger.Info("[INFO] Initialising git repository in %s\n", s.cfg.Repo)
	if _, err := s.git(ctx, "init"); err != nil {
		return fmt.Errorf("initialise dotfiles repository: %w", err)
	}
	return nil
}

// Backup copies every configured file from home into the repo, commits, and
// pushes when enabled. Missing files are skipped with a warning. It returns the
// files copied.
func (s *Syncer) Backup(ctx context.Context) ([]string, error) {
	if err := s.EnsureRepo(ctx); err != nil {
		return nil, err
	}

	var copied []string
	for _, f := range s.cfg.Files {
		src, dst := s.homePath(f), s.repoPath(f)
		if ok, _ := afero.Exists(s.fs, src); !ok {
			logger.Warn("[WARN] %s not found in home; skipping\n", f)
			continue
		}
		if err := copyFile(s.fs, src, dst); err != nil {
			logger.Error("[ERROR] Failed to copy %s: %v\n", f, err)
			continue
		}
		logger.Info("[INFO] Backed up %s\n", f)
		copied = append(copied, f)
	}
	if len(copied) == 0 {
		logger.Warn("[WARN] No dotfiles were copied\n")
		return nil, nil
	}

	if _, err := s.git(ctx, "add", "-A"); err != nil {
		return copied, fmt.Errorf("git add: %w", err)
	}
	msg := "dotfiles: sync " + s.now().Format(stampLayout)
	out, err := s.git(ctx, "commit", "-m", msg)
	if err != nil {
		if !nothingToCommit(out, err) {
			return copied, fmt.Errorf("git commit: %w", err)
		}
		logger.Info("[INFO] No dotfile changes to commit\n")
	} else {
		logger.Info("[INFO] Committed: %s\n", msg)
	}

	if s.cfg.Push {
		if _, err := s.git(ctx, "push"); err != nil {
			return copied, fmt.Errorf("git push: %w", err)
		}
		logger.Info("[INFO] Pushed dotfiles to remote\n")
	}
	return copied, nil
}

// Restore pulls when enabled and copies every repo file into home. A home file
// that differs from the repo copy is first saved to
// ~/.dotfiles_backup/<timestamp>/. It returns the files restored.
func (s *Syncer) Restore(ctx context.Context) ([]string, error) {
	if ok, _ := afero.DirExists(s.fs, s.cfg.Repo); !ok {
		if s.cfg.Remote == "" {
			return nil, fmt.Errorf("dotfiles repository %s does not exist", s.cfg.Repo)
		}
		if err := s.EnsureRepo(ctx); err != nil {
			return nil, err
		}
	} else if s.cfg.Pull {
		if _, err := s.git(ctx, "pull", "--ff-only"); err != nil {
			return nil, fmt.Errorf("git pull: %w", err)
		}
	}

	saveDir := filepath.Join(s.home, BackupDirName, s.now().Format(stampLayout))
	var restored []string
	for _, f := range s.cfg.Files {
		src, dst := s.repoPath(f), s.homePath(f)
		if ok, _ := afero.Exists(s.fs, src); !ok {
			logger.Warn("[WARN] %s not in repository; skipping\n", f)
			continue
		}

		if ok, _ := afero.Exists(s.fs, dst); ok {
			same, err := sameContent(s.fs, src, dst)
			if err == nil && same {
				logger.Debug("[DEBUG] %s unchanged\n", f)
				continue
			}
			if err := copyFile(s.fs, dst, filepath.Join(saveDir, f)); err != nil {
				logger.Error("[ERROR] Could not save current %s; not restoring it: %v\n", f, err)
				continue
			}
			logger.Info("[INFO] Saved current %s to %s\n", f, saveDir)
		}

		if err := copyFile(s.fs, src, dst); err != nil {
			logger.Error("[ERROR] Failed to restore %s: %v\n", f, err)
			continue
		}
		logger.Info("[INFO] Restored %s\n", f)
		restored = append(restored, f)
	}
	return restored, nil
}

// Status compares each configured file between home and the repo.
func (s *Syncer) Status() ([]Report, error) {
	out := make([]Report, 0, len(s.cfg.Files))
	for _, f := range s.cfg.Files {
		inHome, _ := afero.Exists(s.fs, s.homePath(f))
		inRepo, _ := afero.Exists(s.fs, s.repoPath(f))

		r := Report{File: f}
		switch {
		case !inHome && !inRepo:
			r.Status = StatusMissingBoth
		case !inHome:
			r.Status = StatusMissingHome
		case !inRepo:
			r.Status = StatusMissingRepo
		default:
			same, err := sameContent(s.fs, s.homePath(f), s.repoPath(f))
			if err != nil {
				return nil, err
			}
			r.Status = StatusDiffers
			if same {
				r.Status = StatusSame
			}
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *Syncer) git(ctx context.Context, args ...string) ([]byte, error) {
	cmd := runner.Command("git", args...)
	cmd.Dir = s.cfg.Repo
	return s.run.Run(ctx, cmd)
}

func (s *Syncer) homePath(f string) string { return filepath.Join(s.home, f) }
func (s *Syncer) repoPath(f string) string { return filepath.Join(s.cfg.Repo, f) }

func nothingToCommit(out []byte, err error) bool {
	text := strings.ToLower(string(out) + " " + err.Error())
	return strings.Contains(text, "nothing to commit") || strings.Contains(text, "nothing added to commit")
}

// copyFile copies a file, creating parent directories and keeping the mode.
func copyFile(fsys afero.Fs, src, dst string) error {
	info, err := fsys.Stat(src)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return errors.New("is a directory")
	}
	in, err := fsys.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := fsys.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	out, err := fsys.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func sameContent(fsys afero.Fs, a, b string) (bool, error) {
	da, err := afero.ReadFile(fsys, a)
	if err != nil {
		return false, err
	}
	db, err := afero.ReadFile(fsys, b)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return bytes.Equal(da, db), nil
}
