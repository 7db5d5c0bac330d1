package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/natefinch/atomic"

	"devsetup/internal/logger"
)

// Legacy flat config files. Each is a shell-sourced list of KEY="value" lines.
const (
	BackupConf    = "backup.conf"
	DownloadsConf = "downloads_organizer.conf"
	DotfilesConf  = "dotfiles_sync.conf"
)

var confKeyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ParseShellConf reads KEY="value" pairs the way a shell would source them:
// comments, blank lines and a leading "export" are ignored, double-quoted
// values are unescaped and $VAR references expand. Single-quoted values are
// taken literally.
func ParseShellConf(r io.Reader) (map[string]string, error) {
	values, err := godotenv.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse conf: %w", err)
	}
	return values, nil
}

// SetShellConfValue sets KEY="value" in the file at path, replacing an existing
// assignment or appending a new line. The file is created when missing and
// replaced atomically.
func SetShellConfValue(path, key, value string) error {
	if !confKeyPattern.MatchString(key) {
		return fmt.Errorf("invalid key %q", key)
	}

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("read %s: %w", path, err)
	}

	assignment, err := godotenv.Marshal(map[string]string{key: value})
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(data) == 0 {
		lines = nil
	}

	replaced := false
	for i, line := range lines {
		trimmed := strings.TrimPrefix(strings.TrimSpace(line), "export ")
		if strings.HasPrefix(trimmed, key+"=") {
			lines[i] = assignment
			replaced = true
		}
	}
	if !replaced {
		lines = append(lines, assignment)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	body := strings.Join(lines, "\n") + "\n"
	if err := atomic.WriteFile(path, bytes.NewReader([]byte(body))); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// ApplyLegacy overlays values from the legacy .conf files found in dir.
// Missing files are skipped. Values present in a .conf file win over YAML.
func ApplyLegacy(cfg *Config, dir string) error {
	if dir == "" {
		return nil
	}
	dir = ExpandHome(dir)

	if vals, err := readConf(filepath.Join(dir, BackupConf)); err != nil {
		return err
	} else if vals != nil {
		overlayString(&cfg.Backup.Dest, vals["BACKUP_DIR"])
		overlayList(&cfg.Backup.Sources, vals["BACKUP_SOURCES"])
		overlayList(&cfg.Backup.ConfigFiles, vals["BACKUP_CONFIG_FILES"])
		overlayInt(&cfg.Backup.RetentionDays, vals["RETENTION_DAYS"])
		overlayBool(&cfg.Backup.Encrypt, vals["ENCRYPT_BACKUPS"])
		overlayString(&cfg.Backup.Password, vals["BACKUP_PASSWORD"])
		overlayString(&cfg.Backup.Schedule, vals["BACKUP_SCHEDULE"])
	}

	if vals, err := readConf(filepath.Join(dir, DownloadsConf)); err != nil {
		return err
	} else if vals != nil {
		overlayString(&cfg.Downloads.Dir, vals["DOWNLOADS_DIR"])
		overlayBool(&cfg.Downloads.MoveUnknown, vals["MOVE_UNKNOWN"])
	}

	if vals, err := readConf(filepath.Join(dir, DotfilesConf)); err != nil {
		return err
	} else if vals != nil {
		overlayString(&cfg.Dotfiles.Repo, vals["DOTFILES_REPO"])
		overlayString(&cfg.Dotfiles.Remote, vals["DOTFILES_REMOTE"])
		overlayList(&cfg.Dotfiles.Files, vals["DOTFILES"])
		overlayBool(&cfg.Dotfiles.Push, vals["AUTO_PUSH"])
		overlayBool(&cfg.Dotfiles.Pull, vals["AUTO_PULL"])
	}
	return nil
}

// readConf returns nil values when the file does not exist.
func readConf(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	logger.Debug("[DEBUG] Applying legacy config %s\n", path)
	vals, err := ParseShellConf(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return vals, nil
}

func overlayString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func overlayList(dst *[]string, v string) {
	if fields := strings.Fields(v); len(fields) > 0 {
		*dst = fields
	}
}

func overlayInt(dst *int, v string) {
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logger.Warn("[WARN] Ignoring non-numeric legacy value %q\n", v)
		return
	}
	*dst = n
}

func overlayBool(dst *bool, v string) {
	switch strings.ToLower(v) {
	case "true", "yes", "1", "y":
		*dst = true
	case "false", "no", "0", "n":
		*dst = false
	}
}
