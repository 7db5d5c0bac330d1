package cmd

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"devsetup/internal/config"
	"devsetup/internal/logger"
)

// configCmd inspects the effective configuration and edits legacy .conf files.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show, validate or edit configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration (defaults and overlays applied)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return showConfig(cmd.OutOrStdout())
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the config file against the schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Loading already validated it; an invalid file never gets here.
		fmt.Fprintf(cmd.OutOrStdout(), "%s is valid\n", sess.configFile)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <file> <KEY> <value>",
	Short: "Set KEY=\"value\" in a legacy .conf file",
	Long: fmt.Sprintf(`Set KEY="value" in a legacy .conf file, replacing the existing line or
appending a new one. A bare file name (%s, %s, %s) is resolved
against legacy_conf_dir.`, config.BackupConf, config.DownloadsConf, config.DotfilesConf),
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := confPath(args[0])
		if err != nil {
			return err
		}
		if err := config.SetShellConfValue(path, args[1], args[2]); err != nil {
			return err
		}
		logger.Info("[INFO] Set %s in %s\n", args[1], path)
		return nil
	},
}

func showConfig(w io.Writer) error {
	out, err := config.Marshal(sess.cfg)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "# %s\n", sess.configFile)
	_, err = w.Write(out)
	return err
}

func confPath(file string) (string, error) {
	file = config.ExpandHome(file)
	if filepath.IsAbs(file) || filepath.Base(file) != file {
		return file, nil
	}
	if sess.cfg.LegacyConfDir == "" {
		return "", errors.New("legacy_conf_dir is not set; pass a path to the .conf file")
	}
	return filepath.Join(sess.cfg.LegacyConfDir, file), nil
}

func init() {
	configCmd.AddCommand(configShowCmd, configValidateCmd, configSetCmd)
	rootCmd.AddCommand(configCmd)
}
