package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"devsetup/internal/installer"
	"devsetup/internal/logger"
)

var (
	installPrune     bool
	installSkipCheck bool
)

// installCmd applies the package manifest, optionally limited to some groups.
var installCmd = &cobra.Command{
	Use:   "install [group...]",
	Short: "Install packages and tools from the manifest",
	Long: fmt.Sprintf(`Install packages and tools from the manifest.

Groups: %s. With no arguments every group is applied.
Packages already recorded in the state file are skipped.`, strings.Join(installer.Groups, ", ")),
	ValidArgs: installer.Groups,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInstall(cmd.Context(), args, installPrune)
	},
}

func runInstall(ctx context.Context, groups []string, prune bool) error {
	in := installer.New(sess.cfg.Installer, sess.cfg.Packages, sess.run, sess.st)
	sum, err := in.Run(ctx, installer.Options{Groups: groups, Prune: prune, SkipCheck: installSkipCheck})
	if err != nil {
		return err
	}
	if len(sum.Failed) > 0 {
		logger.Warn("[WARN] Re-run `devsetup install` to retry the failed packages\n")
	}
	return nil
}

func init() {
	installCmd.Flags().BoolVar(&installPrune, "prune", false, "Uninstall tools that were removed from the manifest")
	installCmd.Flags().BoolVar(&installSkipCheck, "skip-network-check", false, "Do not ping the connectivity host first")
	rootCmd.AddCommand(installCmd)
}
