package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"devsetup/internal/dotfiles"
	"devsetup/internal/logger"
)

func newSyncer() *dotfiles.Syncer {
	return dotfiles.New(afero.NewOsFs(), sess.run, sess.cfg.Dotfiles, sess.home)
}

// dotfilesCmd groups the dotfile sync commands.
var dotfilesCmd = &cobra.Command{
	Use:   "dotfiles",
	Short: "Sync dotfiles between home and a git repository",
}

var dotfilesBackupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Copy dotfiles into the repository and commit",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		copied, err := newSyncer().Backup(cmd.Context())
		if err != nil {
			return err
		}
		if len(copied) > 0 {
			sess.st.RecordDotfilesSync(time.Now())
		}
		return nil
	},
}

var dotfilesRestoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Copy dotfiles from the repository into home",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		restored, err := newSyncer().Restore(cmd.Context())
		if err != nil {
			return err
		}
		logger.Info("[INFO] Restored %d file(s)\n", len(restored))
		if len(restored) > 0 {
			sess.st.RecordDotfilesSync(time.Now())
		}
		return nil
	},
}

var dotfilesStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Compare home and repository copies",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return writeDotfilesStatus(cmd.OutOrStdout())
	},
}

func writeDotfilesStatus(w io.Writer) error {
	reports, err := newSyncer().Status()
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tSTATUS")
	for _, r := range reports {
		fmt.Fprintf(tw, "%s\t%s\n", r.File, r.Status)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if last := sess.st.DotfilesSync; !last.IsZero() {
		fmt.Fprintf(w, "Last sync: %s\n", humanize.Time(last))
	}
	return nil
}

func init() {
	dotfilesCmd.AddCommand(dotfilesBackupCmd, dotfilesRestoreCmd, dotfilesStatusCmd)
	rootCmd.AddCommand(dotfilesCmd)
}
