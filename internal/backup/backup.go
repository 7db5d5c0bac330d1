// Package backup archives home directories and curated config files into
// timestamped folders, optionally encrypts them, verifies the result and prunes
// folders that fall outside the retention window.
package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/natefinch/atomic"

	"devsetup/internal/config"
	"devsetup/internal/logger"
)

// DirLayout names each backup folder.
const DirLayout = "2006-01-02_15-04-05"

// Archive file names inside a backup folder.
const (
	HomeArchive   = "home-dirs.tar.gz"
	ConfigArchive = "configs.tar.gz"
	encSuffix     = ".enc"
)

// ErrNothingToBackup is returned when none of the configured paths exist.
var ErrNothingToBackup = errors.New("nothing to back up: no configured source exists")

// Options tune a single run.
type Options struct {
	Password   string // required when encryption is enabled
	SkipVerify bool
	SkipPrune  bool
}

// Result reports what a run produced. Stage errors are collected in Errors and
// do not stop later stages.
type Result struct {
	Dir       string
	Archives  []Archive
	Encrypted bool
	Verified  bool
	Pruned    []string
	Errors    []error
}

// Bytes is the total size of the archives left on disk.
func (r Result) Bytes() int64 {
	var n int64
	for _, a := range r.Archives {
		n += a.Bytes
	}
	return n
}

// Err joins the stage errors, or returns nil when every stage succeeded.
func (r Result) Err() error {
	return errors.Join(r.Errors...)
}

// Engine runs backups for one configuration.
type Engine struct {
	cfg  config.Backup
	home string
	now  func() time.Time
}

// New returns an engine that resolves config file entries relative to home.
func New(cfg config.Backup, home string) *Engine {
	return &Engine{cfg: cfg, home: home, now: time.Now}
}

// SetClock overrides the time source used for folder names and pruning.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Run executes the create, encrypt, verify and prune stages into a new
// <dest>/<timestamp> folder.
//
// Each stage reports its own failures in Result.Errors and later stages
// still run on what the earlier ones produced: an archive that fails to
// encrypt is kept unencrypted and still verified. The plaintext archive is
// removed only after its encrypted copy decrypts. A missing password with
// encryption enabled fails before anything is written, and a run with no
// existing source paths returns ErrNothingToBackup and leaves no folder.
//
// The returned error joins the stage errors; Result is valid either way.
func (e *Engine) Run(ctx context.Context, opts Options) (Result, error) {
	if e.cfg.Encrypt && opts.Password == "" {
		return Result{}, errors.New("encryption is enabled but no password was provided")
	}

	stamp := e.now()
	dir := filepath.Join(e.cfg.Dest, stamp.Format(DirLayout))
	if err := os.MkdirAll(dir, 0700); err != nil {
		return Result{}, fmt.Errorf("create backup folder: %w", err)
	}
	res := Result{Dir: dir}
	logger.Info("[INFO] Creating backup in %s\n", dir)

	// create
	for _, job := range []struct {
		name  string
		paths []string
	}{
		{HomeArchive, e.existing(e.cfg.Sources)},
		{ConfigArchive, e.existing(e.configPaths())},
	} {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if len(job.paths) == 0 {
			logger.Warn("[WARN] No paths for %s; skipping\n", job.name)
			continue
		}
		a, err := writeTarGz(filepath.Join(dir, job.name), e.home, job.paths)
		if err != nil {
			logger.Error("[ERROR] Failed to create %s: %v\n", job.name, err)
			res.Errors = append(res.Errors, fmt.Errorf("create %s: %w", job.name, err))
			continue
		}
		logger.Info("[INFO] Created %s (%d entries, %s)\n", job.name, a.Entries, humanize.Bytes(uint64(a.Bytes)))
		res.Archives = append(res.Archives, a)
	}
	if len(res.Archives) == 0 {
		_ = os.Remove(dir)
		if len(res.Errors) == 0 {
			return res, ErrNothingToBackup
		}
		return res, res.Err()
	}

	// encrypt
	if e.cfg.Encrypt {
		res.Encrypted = true
		for i, a := range res.Archives {
			enc, err := encryptArchive(a, []byte(opts.Password))
			if err != nil {
				logger.Error("[ERROR] Encryption of %s failed; keeping the unencrypted archive: %v\n", filepath.Base(a.Path), err)
				res.Errors = append(res.Errors, fmt.Errorf("encrypt %s: %w", filepath.Base(a.Path), err))
				res.Encrypted = false
				continue
			}
			res.Archives[i] = enc
		}
	}

	// verify
	if !opts.SkipVerify {
		res.Verified = true
		for _, a := range res.Archives {
			if err := VerifyArchive(a.Path, []byte(opts.Password)); err != nil {
				logger.Error("[ERROR] Verification of %s failed: %v\n", filepath.Base(a.Path), err)
				res.Errors = append(res.Errors, fmt.Errorf("verify %s: %w", filepath.Base(a.Path), err))
				res.Verified = false
				continue
			}
			logger.Info("[INFO] Verified %s\n", filepath.Base(a.Path))
		}
	}

	// prune
	if !opts.SkipPrune {
		res.Pruned = Prune(e.cfg.Dest, e.cfg.RetentionDays, stamp)
	}

	logger.Info("[INFO] Backup finished: %s in %s\n", humanize.Bytes(uint64(res.Bytes())), dir)
	return res, res.Err()
}

// configPaths resolves the curated config file list against home.
func (e *Engine) configPaths() []string {
	out := make([]string, 0, len(e.cfg.ConfigFiles))
	for _, f := range e.cfg.ConfigFiles {
		f = config.ExpandHome(f)
		if !filepath.IsAbs(f) {
			f = filepath.Join(e.home, f)
		}
		out = append(out, f)
	}
	return out
}

func (e *Engine) existing(paths []string) []string {
	var out []string
	for _, p := range paths {
		if _, err := os.Lstat(p); err != nil {
			logger.Debug("[DEBUG] Backup source %s not found\n", p)
			continue
		}
		out = append(out, p)
	}
	return out
}

// encryptArchive writes <archive>.enc, checks it decrypts, and only then
// removes the plaintext archive.
func encryptArchive(a Archive, password []byte) (Archive, error) {
	in, err := os.Open(a.Path)
	if err != nil {
		return Archive{}, err
	}
	defer in.Close()

	encPath := a.Path + encSuffix
	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(Encrypt(pw, in, password))
	}()
	counter := &countingReader{r: pr}
	if err := atomic.WriteFile(encPath, counter); err != nil {
		_ = pr.CloseWithError(err)
		return Archive{}, err
	}

	if err := VerifyArchive(encPath, password); err != nil {
		_ = os.Remove(encPath)
		return Archive{}, fmt.Errorf("encrypted copy failed verification: %w", err)
	}
	if err := os.Remove(a.Path); err != nil {
		logger.Warn("[WARN] Could not remove plaintext %s: %v\n", a.Path, err)
	}
	logger.Info("[INFO] Encrypted %s\n", filepath.Base(encPath))
	return Archive{Path: encPath, Entries: a.Entries, Bytes: counter.n}, nil
}

// VerifyArchive test-reads every entry of an archive, decrypting first when the
// file name ends in .enc.
func VerifyArchive(path string, password []byte) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if !strings.HasSuffix(path, encSuffix) {
		_, err := listTarGz(f)
		return err
	}

	pr, pw := io.Pipe()
	decErr := make(chan error, 1)
	go func() {
		err := Decrypt(pw, f, password)
		pw.CloseWithError(err)
		decErr <- err
	}()
	_, err = listTarGz(pr)
	if err == nil {
		// Drain trailing bytes so the padding of the last block is checked too.
		_, err = io.Copy(io.Discard, pr)
	}
	_ = pr.CloseWithError(err)
	if derr := <-decErr; derr != nil && !errors.Is(derr, io.ErrClosedPipe) {
		return derr
	}
	return err
}

// DecryptFile writes the plaintext of an .enc archive next to it (without the
// .enc suffix) and returns its path.
func DecryptFile(path string, password []byte) (string, error) {
	if !strings.HasSuffix(path, encSuffix) {
		return "", fmt.Errorf("%s: %w", path, ErrNotEncrypted)
	}
	in, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer in.Close()

	out := strings.TrimSuffix(path, encSuffix)
	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(Decrypt(pw, in, password))
	}()
	if err := atomic.WriteFile(out, pr); err != nil {
		_ = pr.CloseWithError(err)
		return "", err
	}
	return out, nil
}
