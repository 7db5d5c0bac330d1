package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-shellwords"
	"github.com/spf13/cobra"

	"devsetup/internal/logger"
	"devsetup/internal/prompt"
	"devsetup/internal/tasks"
)

// menuPrompter is the prompter owned by the running menu. Commands started
// from the menu reuse it instead of opening a second one on the terminal.
var menuPrompter prompt.Prompter

// ask returns the menu's prompter, or opens a new one that the caller closes.
func ask() (prompt.Prompter, func()) {
	if menuPrompter != nil {
		return menuPrompter, func() {}
	}
	p := newPrompter()
	return p, func() { p.Close() }
}

type menuItem struct {
	key   string
	label string
	run   func(ctx context.Context, p prompt.Prompter, w io.Writer) error
}

var menuItems = []menuItem{
	{"1", "Install packages and tools", func(ctx context.Context, _ prompt.Prompter, _ io.Writer) error {
		return runInstall(ctx, nil, false)
	}},
	{"2", "Sync dotfiles", menuDotfiles},
	{"3", "Organize downloads", func(ctx context.Context, _ prompt.Prompter, w io.Writer) error {
		return runOrganize(ctx, w, false, false)
	}},
	{"4", "Run a backup", func(ctx context.Context, _ prompt.Prompter, _ io.Writer) error {
		return runBackup(ctx)
	}},
	{"5", "Academic task tracker", menuTasks},
	{"6", "Generate Windows scripts", func(_ context.Context, _ prompt.Prompter, w io.Writer) error {
		return generateWindows(w)
	}},
	{"7", "Create AI workspace", func(ctx context.Context, p prompt.Prompter, _ io.Writer) error {
		root, err := p.Line(fmt.Sprintf("Workspace path [%s]: ", sess.cfg.Workspace.Root))
		if err != nil {
			return err
		}
		return createWorkspace(ctx, root)
	}},
	{"8", "Show configuration", func(_ context.Context, _ prompt.Prompter, w io.Writer) error {
		return showConfig(w)
	}},
	{"9", "Run everything (install, dotfiles, downloads, backup)", menuEverything},
}

// menuCmd opens the menu explicitly; running devsetup without a subcommand
// does the same.
var menuCmd = &cobra.Command{
	Use:   "menu",
	Short: "Open the interactive numbered menu",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMenu(cmd.Context(), cmd.OutOrStdout())
	},
}

var menuTitle = color.New(color.FgCyan, color.Bold)

func writeMenu(w io.Writer) {
	menuTitle.Fprintln(w, "\n=== devsetup ===")
	for _, it := range menuItems {
		fmt.Fprintf(w, "  %s) %s\n", it.key, it.label)
	}
	fmt.Fprintln(w, "  0) Exit")
}

// runMenu shows the numbered menu until the user picks 0, aborts the prompt
// or the context is cancelled. A failing action is reported and the menu
// stays open.
func runMenu(ctx context.Context, w io.Writer) error {
	p := newPrompter()
	menuPrompter = p
	defer func() {
		menuPrompter = nil
		p.Close()
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}
		writeMenu(w)
		choice, err := p.Line("Choose an option: ")
		if errors.Is(err, prompt.ErrAborted) {
			return nil
		}
		if err != nil {
			return err
		}

		if choice == "0" || strings.EqualFold(choice, "q") {
			return nil
		}
		item, ok := lookupMenu(choice)
		if !ok {
			logger.Warn("[WARN] Invalid option %q\n", choice)
			continue
		}
		if err := item.run(ctx, p, w); err != nil {
			if errors.Is(err, prompt.ErrAborted) {
				continue
			}
			logger.Error("[ERROR] %s: %v\n", item.label, err)
		}
	}
}

func lookupMenu(key string) (menuItem, bool) {
	for _, it := range menuItems {
		if it.key == key {
			return it, true
		}
	}
	return menuItem{}, false
}

func menuDotfiles(ctx context.Context, p prompt.Prompter, w io.Writer) error {
	action, err := p.Line("Dotfiles: backup, restore or status? [status]: ")
	if err != nil {
		return err
	}
	var sub *cobra.Command
	switch strings.ToLower(action) {
	case "", "status":
		return writeDotfilesStatus(w)
	case "backup":
		sub = dotfilesBackupCmd
	case "restore":
		sub = dotfilesRestoreCmd
	default:
		return fmt.Errorf("unknown dotfiles action %q", action)
	}
	sub.SetContext(ctx)
	return sub.RunE(sub, nil)
}

// menuTasks is a small shell over the task commands.
func menuTasks(ctx context.Context, p prompt.Prompter, w io.Writer) error {
	s, err := openTasks(w, p)
	if err != nil {
		return err
	}
	defer s.Close()

	fmt.Fprint(w, taskUsage)
	fmt.Fprintln(w, "Type back to return to the main menu.")
	if err := s.list(ctx, tasks.All); err != nil {
		return err
	}
	for {
		line, err := p.Line("task> ")
		if errors.Is(err, prompt.ErrAborted) {
			return nil
		}
		if err != nil {
			return err
		}
		args, err := splitArgs(line)
		if err != nil {
			logger.Error("[ERROR] %v\n", err)
			continue
		}
		if len(args) == 1 && (args[0] == "back" || args[0] == "0" || args[0] == "exit") {
			return nil
		}
		if err := s.dispatch(ctx, args); err != nil {
			logger.Error("[ERROR] %v\n", err)
		}
	}
}

// menuEverything runs the unattended steps in order and keeps going when one
// fails.
func menuEverything(ctx context.Context, _ prompt.Prompter, w io.Writer) error {
	steps := []struct {
		name string
		run  func() error
	}{
		{"install", func() error { return runInstall(ctx, nil, false) }},
		{"dotfiles backup", func() error {
			dotfilesBackupCmd.SetContext(ctx)
			return dotfilesBackupCmd.RunE(dotfilesBackupCmd, nil)
		}},
		{"organize downloads", func() error { return runOrganize(ctx, w, false, false) }},
		{"backup", func() error { return runBackup(ctx) }},
	}

	var errs []error
	for _, st := range steps {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Info("[INFO] ==> %s\n", st.name)
		if err := st.run(); err != nil {
			logger.Error("[ERROR] %s failed: %v\n", st.name, err)
			errs = append(errs, fmt.Errorf("%s: %w", st.name, err))
		}
	}
	return errors.Join(errs...)
}

// splitArgs splits a task shell line into words with shell quoting rules:
// single and double quotes group words and a backslash escapes the next rune.
func splitArgs(line string) ([]string, error) {
	args, err := shellwords.Parse(line)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", line, err)
	}
	return args, nil
}

func init() {
	rootCmd.AddCommand(menuCmd)
}
