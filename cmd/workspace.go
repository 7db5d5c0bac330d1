package cmd

import (
	"context"
	"path/filepath"

	"github.com/spf13/cobra"

	"devsetup/internal/config"
	"devsetup/internal/logger"
	"devsetup/internal/workspace"
)

var workspaceNoVenv bool

// workspaceCmd scaffolds a Python ML project.
var workspaceCmd = &cobra.Command{
	Use:   "workspace [path]",
	Short: "Create an AI/ML workspace with notebooks and a virtualenv",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root := ""
		if len(args) == 1 {
			root = args[0]
		}
		return createWorkspace(cmd.Context(), root)
	},
}

func createWorkspace(ctx context.Context, root string) error {
	cfg := sess.cfg.Workspace
	if root != "" {
		abs, err := filepath.Abs(config.ExpandHome(root))
		if err != nil {
			return err
		}
		cfg.Root = abs
	}
	if workspaceNoVenv {
		cfg.Python = ""
	}

	res, err := workspace.New(cfg, sess.run).Create(ctx)
	if err != nil {
		return err
	}
	logger.Info("[INFO] Workspace ready in %s (%d file(s) created, %d kept)\n", cfg.Root, len(res.Created), len(res.Skipped))
	return nil
}

func init() {
	workspaceCmd.Flags().BoolVar(&workspaceNoVenv, "no-venv", false, "Skip creating the virtual environment")
	rootCmd.AddCommand(workspaceCmd)
}
