package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"devsetup/internal/windows"
)

// windowsCmd groups the Windows host generators.
var windowsCmd = &cobra.Command{
	Use:   "windows",
	Short: "Generate PowerShell scripts for the Windows host",
}

var windowsGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Write registry, winget and WSL scripts plus a .bat launcher",
	Long: fmt.Sprintf(`Write registry, winget and WSL scripts plus a .bat launcher.

Built-in registry presets: %s.
The winget package list comes from packages.winget in the manifest.
Run the launcher from Windows; it elevates and runs each script.`, strings.Join(windows.PresetNames(), ", ")),
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return generateWindows(cmd.OutOrStdout())
	},
}

func generateWindows(w io.Writer) error {
	written, err := windows.Generate(sess.cfg.Windows, sess.cfg.Packages.Winget)
	if err != nil {
		return err
	}
	for _, p := range written {
		fmt.Fprintln(w, p)
	}
	return nil
}

func init() {
	windowsCmd.AddCommand(windowsGenerateCmd)
	rootCmd.AddCommand(windowsCmd)
}
