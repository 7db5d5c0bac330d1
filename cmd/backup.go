package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"devsetup/internal/backup"
	"devsetup/internal/logger"
	"devsetup/internal/state"
)

var (
	backupNoVerify bool
	backupNoPrune  bool
	scheduleRemove bool
)

// backupCmd runs a backup; its subcommands inspect and maintain existing ones.
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Create, verify and prune backups",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBackup(cmd.Context())
	},
}

var backupRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Archive the configured directories and config files",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBackup(cmd.Context())
	},
}

var backupVerifyCmd = &cobra.Command{
	Use:   "verify [backup-dir]",
	Short: "Test-read every archive of a backup (the latest by default)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := ""
		if len(args) == 1 {
			dir = args[0]
		}
		return verifyBackup(dir)
	},
}

var backupPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove backups older than the retention window",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		removed := backup.Prune(sess.cfg.Backup.Dest, sess.cfg.Backup.RetentionDays, time.Now())
		logger.Info("[INFO] Removed %d old backup(s)\n", len(removed))
		return nil
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List existing backups, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return listBackups(cmd.OutOrStdout())
	},
}

var backupScheduleCmd = &cobra.Command{
	Use:   "schedule [cron-expression]",
	Short: "Install the crontab entry that runs the backup",
	Long: `Install the crontab entry that runs the backup.

The expression defaults to backup.schedule from the config, e.g. "0 2 * * *".
Use --remove to delete the entry.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		expr := sess.cfg.Backup.Schedule
		if len(args) == 1 {
			expr = args[0]
		}
		if scheduleRemove {
			expr = ""
		}
		return scheduleBackup(cmd.Context(), expr)
	},
}

var backupDecryptCmd = &cobra.Command{
	Use:   "decrypt <file.enc>",
	Short: "Decrypt an archive next to the encrypted file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pw, err := backupPassword(false)
		if err != nil {
			return err
		}
		out, err := backup.DecryptFile(args[0], []byte(pw))
		if err != nil {
			return err
		}
		logger.Info("[INFO] Decrypted to %s\n", out)
		return nil
	},
}

func runBackup(ctx context.Context) error {
	cfg := sess.cfg.Backup
	var pw string
	if cfg.Encrypt {
		var err error
		if pw, err = backupPassword(true); err != nil {
			return err
		}
	}

	res, err := backup.New(cfg, sess.home).Run(ctx, backup.Options{
		Password:   pw,
		SkipVerify: backupNoVerify,
		SkipPrune:  backupNoPrune,
	})
	if len(res.Archives) > 0 {
		sess.st.RecordBackup(state.BackupState{
			Dir:       res.Dir,
			Encrypted: res.Encrypted,
			Bytes:     res.Bytes(),
			At:        time.Now(),
		})
	}
	return err
}

// backupPassword returns the configured password, or prompts for one. New
// passwords are asked twice.
func backupPassword(confirm bool) (string, error) {
	if pw := sess.cfg.Backup.Password; pw != "" {
		logger.Warn("[WARN] Using the backup password stored in plaintext in the config\n")
		return pw, nil
	}

	p, done := ask()
	defer done()
	pw, err := p.Password("Backup password: ")
	if err != nil {
		return "", err
	}
	if pw == "" {
		return "", errors.New("empty backup password")
	}
	if confirm {
		again, err := p.Password("Repeat password: ")
		if err != nil {
			return "", err
		}
		if again != pw {
			return "", errors.New("passwords do not match")
		}
	}
	return pw, nil
}

func verifyBackup(dir string) error {
	if dir == "" {
		entries, err := backup.List(sess.cfg.Backup.Dest)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return fmt.Errorf("no backups in %s", sess.cfg.Backup.Dest)
		}
		dir = entries[0].Path
	}

	files, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var pw []byte
	var errs []error
	checked := 0
	for _, f := range files {
		if f.IsDir() || !strings.Contains(f.Name(), ".tar.gz") {
			continue
		}
		if strings.HasSuffix(f.Name(), ".enc") && pw == nil {
			s, err := backupPassword(false)
			if err != nil {
				return err
			}
			pw = []byte(s)
		}
		path := filepath.Join(dir, f.Name())
		if err := backup.VerifyArchive(path, pw); err != nil {
			logger.Error("[ERROR] %s: %v\n", f.Name(), err)
			errs = append(errs, fmt.Errorf("%s: %w", f.Name(), err))
			continue
		}
		logger.Info("[INFO] %s OK\n", f.Name())
		checked++
	}
	if checked == 0 && len(errs) == 0 {
		return fmt.Errorf("no archives in %s", dir)
	}
	return errors.Join(errs...)
}

func listBackups(w io.Writer) error {
	entries, err := backup.List(sess.cfg.Backup.Dest)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintf(w, "No backups in %s\n", sess.cfg.Backup.Dest)
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSIZE\tFILES\tENCRYPTED\tAGE")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%t\t%s\n", e.Name, humanize.Bytes(uint64(e.Bytes)), len(e.Files), e.Encrypted, humanize.Time(e.Time))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if last := sess.st.LastBackup; last != nil {
		fmt.Fprintf(w, "Last run: %s (%s)\n", humanize.Time(last.At), humanize.Bytes(uint64(last.Bytes)))
	}
	return nil
}

// scheduleBackup points cron at this binary with the current config file.
func scheduleBackup(ctx context.Context, expr string) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate devsetup binary: %w", err)
	}
	command, err := backupCommand(exe, sess.configFile)
	if err != nil {
		return err
	}
	if expr != "" && sess.cfg.Backup.Encrypt && sess.cfg.Backup.Password == "" {
		logger.Warn("[WARN] Encryption is on but no password is configured; scheduled runs cannot prompt and will fail\n")
	}
	return backup.Schedule(ctx, sess.run, expr, command)
}

// backupCommand builds the cron command line. --config is passed only when
// the file exists; without one the scheduled run falls back to defaults like
// the interactive one did.
func backupCommand(exe, configFile string) (string, error) {
	if _, err := os.Stat(configFile); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("check config %s: %w", configFile, err)
		}
		logger.Debug("[DEBUG] No config file at %s; scheduling with defaults\n", configFile)
		return fmt.Sprintf("%q backup run >/dev/null 2>&1", exe), nil
	}
	abs, err := filepath.Abs(configFile)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%q --config %q backup run >/dev/null 2>&1", exe, abs), nil
}

func init() {
	for _, c := range []*cobra.Command{backupCmd, backupRunCmd} {
		c.Flags().BoolVar(&backupNoVerify, "no-verify", false, "Skip the verification stage")
		c.Flags().BoolVar(&backupNoPrune, "no-prune", false, "Skip removing old backups")
	}
	backupScheduleCmd.Flags().BoolVar(&scheduleRemove, "remove", false, "Remove the scheduled backup")
	backupCmd.AddCommand(backupRunCmd, backupVerifyCmd, backupPruneCmd, backupListCmd, backupScheduleCmd, backupDecryptCmd)
	rootCmd.AddCommand(backupCmd)
}
