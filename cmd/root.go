package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"devsetup/internal/config"
	"devsetup/internal/logger"
	"devsetup/internal/prompt"
	"devsetup/internal/runner"
	"devsetup/internal/state"
)

// debug flag indicates whether debug logging should be enabled.
// It can be toggled via the `--debug` command-line flag.
var debug bool

// configPath holds the --config/-c value. Empty means config.DefaultPath(),
// and a missing default file falls back to built-in defaults.
var configPath string

// newPrompter opens the interactive input used by the menu and by prompts.
var newPrompter = prompt.New

// session is what every command works with once the root hooks have run.
type session struct {
	cfg        config.Config
	configFile string
	st         *state.State
	run        runner.Runner
	home       string
}

var sess *session

// rootCmd is the base command. Without a subcommand it opens the menu.
var rootCmd = &cobra.Command{
	Use:   "devsetup",
	Short: "Development workstation setup and maintenance",
	Long: `devsetup provisions a development workstation: packages and tools,
dotfiles, downloads organization, backups, an academic task tracker,
Windows configuration scripts and an AI workspace scaffold.

Run it without arguments for the interactive menu.`,
	SilenceUsage:  true,
	SilenceErrors: true,

	// PersistentPreRunE loads config, logging and state before any subcommand.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMenu(cmd.Context(), cmd.OutOrStdout())
	},
}

func setup() error {
	path, explicit := configPath, configPath != ""
	if !explicit {
		path = config.DefaultPath()
	}
	cfg, err := config.LoadConfig(path, !explicit)
	if err != nil {
		return err
	}
	if err := logger.Init(debug, cfg.LogFile); err != nil {
		return err
	}
	logger.Debug("[DEBUG] Using config %s, state %s\n", path, cfg.StateFile)

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("resolve home directory: %w", err)
	}
	sess = &session{
		cfg:        cfg,
		configFile: path,
		st:         state.Load(cfg.StateFile),
		run:        runner.Exec{},
		home:       home,
	}
	return nil
}

// Execute runs the command line. The state is saved afterwards even when the
// command failed, so partial progress is kept.
func Execute(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	if sess != nil {
		if serr := state.Save(sess.cfg.StateFile, sess.st); serr != nil {
			logger.Warn("[WARN] Failed to save state: %v\n", serr)
		}
	}
	logger.Sync()
	return err
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (YAML or TOML)")
}
