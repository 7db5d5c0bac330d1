package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"devsetup/internal/logger"
	"devsetup/internal/prompt"
	"devsetup/internal/tasks"
)

const taskUsage = `Academic task tracker

  list                          all tasks in the order they were added
  pending | today | week        pending tasks, all / due today / due within 7 days
  add [name] [due] [desc] [course]
                                add a task; missing fields are asked for
  complete <id>                 mark a task completed
  edit <id>                     change fields (flags or interactive)
  delete <id>                   remove a task
  view <id>                     show one task in full
  sync-folders                  recreate missing or stale task READMEs
  help                          this text

<id> is the number shown by list, or a task UUID (prefix).
Dates use YYYY-MM-DD.
`

// taskSession runs task operations against one tracker. The prompter is
// opened on first use unless the caller provides one.
type taskSession struct {
	tr    *tasks.Tracker
	store tasks.Store
	w     io.Writer
	p     prompt.Prompter
	done  func()
}

func openTasks(w io.Writer, p prompt.Prompter) (*taskSession, error) {
	store, err := tasks.Open(sess.cfg.Tasks)
	if err != nil {
		return nil, err
	}
	folders := &tasks.Folders{Root: sess.cfg.Tasks.FolderRoot}
	return &taskSession{tr: tasks.NewTracker(store, folders), store: store, w: w, p: p}, nil
}

func (s *taskSession) prompter() prompt.Prompter {
	if s.p == nil {
		s.p, s.done = ask()
	}
	return s.p
}

func (s *taskSession) Close() {
	if s.done != nil {
		s.done()
	}
	if err := s.store.Close(); err != nil {
		logger.Warn("[WARN] Closing task store: %v\n", err)
	}
}

func (s *taskSession) list(ctx context.Context, f tasks.Filter) error {
	entries, err := s.tr.List(ctx, f)
	if err != nil {
		return err
	}
	return tasks.WriteTable(s.w, entries)
}

// add fills the fields missing from in interactively. The due date is asked
// again until it parses; a bad date given up front is re-asked only when a
// prompter is already open.
func (s *taskSession) add(ctx context.Context, in tasks.NewTask) error {
	var err error
	if strings.TrimSpace(in.Name) == "" {
		if in.Name, err = prompt.Required(s.prompter(), "Task name: "); err != nil {
			return err
		}
	}
	if in.Due != "" {
		if _, perr := tasks.ParseDue(in.Due); perr != nil {
			// On the command line a bad date fails; in the shell it is asked again.
			if s.p == nil {
				return perr
			}
			fmt.Fprintf(s.w, "Invalid date %q, expected YYYY-MM-DD.\n", in.Due)
			in.Due = ""
		}
	}
	if in.Due == "" {
		if in.Due, err = s.askDue("Due date (YYYY-MM-DD): "); err != nil {
			return err
		}
	}
	if in.Description == "" && s.p != nil {
		if in.Description, err = s.p.Line("Description: "); err != nil {
			return err
		}
	}
	if in.Course == "" && s.p != nil {
		if in.Course, err = s.p.Line("Course (optional): "); err != nil {
			return err
		}
	}

	e, err := s.tr.Add(ctx, in)
	if err != nil {
		return err
	}
	logger.Info("[INFO] Added task %d: %s (%s)\n", e.Pos, e.Task.Name, tasks.FormatDue(e))
	return nil
}

func (s *taskSession) askDue(label string) (string, error) {
	for {
		v, err := prompt.Required(s.prompter(), label)
		if err != nil {
			return "", err
		}
		if _, err := tasks.ParseDue(v); err == nil {
			return v, nil
		}
		fmt.Fprintln(s.w, "Invalid date, expected YYYY-MM-DD.")
	}
}

func (s *taskSession) complete(ctx context.Context, ref string) error {
	e, err := s.tr.Complete(ctx, ref)
	if errors.Is(err, tasks.ErrAlreadyCompleted) {
		logger.Info("[INFO] Task %d (%s) is already completed\n", e.Pos, e.Task.Name)
		return nil
	}
	if err != nil {
		return err
	}
	logger.Info("[INFO] Completed task %d: %s\n", e.Pos, e.Task.Name)
	return nil
}

// delete removes the task. With folder nil the user is asked whether the
// task folder goes too.
func (s *taskSession) delete(ctx context.Context, ref string, folder *bool) error {
	e, err := s.tr.Get(ctx, ref)
	if err != nil {
		return err
	}
	removeFolder := false
	switch {
	case folder != nil:
		removeFolder = *folder
	case s.tr.Folders().Exists(e.Task.Name):
		removeFolder, err = s.prompter().Confirm(fmt.Sprintf("Also delete %s?", s.tr.Folders().Dir(e.Task.Name)), false)
		if err != nil {
			return err
		}
	}

	e, err = s.tr.Delete(ctx, e.Task.ID, removeFolder)
	if err != nil {
		return err
	}
	logger.Info("[INFO] Deleted task %d: %s\n", e.Pos, e.Task.Name)
	return nil
}

// edit applies p, or walks through every field when p is empty. An empty
// answer keeps the current value.
func (s *taskSession) edit(ctx context.Context, ref string, p tasks.Patch) error {
	if p == (tasks.Patch{}) {
		e, err := s.tr.Get(ctx, ref)
		if err != nil {
			return err
		}
		pr := s.prompter()
		fields := []struct {
			label string
			cur   string
			dst   **string
		}{
			{"Name", e.Task.Name, &p.Name},
			{"Due date", e.Task.DueString(), &p.Due},
			{"Description", e.Task.Description, &p.Description},
			{"Status (Pending/Completed)", string(e.Task.Status), &p.Status},
			{"Course", e.Task.Course, &p.Course},
		}
		for _, f := range fields {
			v, err := pr.Line(fmt.Sprintf("%s [%s]: ", f.label, f.cur))
			if err != nil {
				return err
			}
			if v != "" && v != f.cur {
				*f.dst = &v
			}
		}
		if p == (tasks.Patch{}) {
			logger.Info("[INFO] Nothing changed\n")
			return nil
		}
	}

	e, err := s.tr.Edit(ctx, ref, p)
	if err != nil {
		return err
	}
	logger.Info("[INFO] Updated task %d: %s\n", e.Pos, e.Task.Name)
	return nil
}

func (s *taskSession) view(ctx context.Context, ref string) error {
	e, err := s.tr.Get(ctx, ref)
	if err != nil {
		return err
	}
	readme := ""
	if f := s.tr.Folders(); f.Exists(e.Task.Name) {
		readme = f.ReadmePath(e.Task.Name)
	}
	return tasks.WriteDetail(s.w, e, readme)
}

func (s *taskSession) syncFolders(ctx context.Context) error {
	n, err := s.tr.SyncFolders(ctx)
	if err != nil {
		return err
	}
	logger.Info("[INFO] Wrote %d README(s)\n", n)
	return nil
}

// dispatch runs one task command line typed in the menu's task shell.
func (s *taskSession) dispatch(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return nil
	}
	ref := func() (string, error) {
		if len(args) < 2 {
			return "", fmt.Errorf("%s needs a task id", args[0])
		}
		return args[1], nil
	}

	switch args[0] {
	case "list", "ls":
		return s.list(ctx, tasks.All)
	case "pending":
		return s.list(ctx, tasks.Pending)
	case "today":
		return s.list(ctx, tasks.DueToday)
	case "week":
		return s.list(ctx, tasks.DueThisWeek)
	case "add":
		return s.add(ctx, newTaskFromArgs(args[1:]))
	case "sync-folders":
		return s.syncFolders(ctx)
	case "help", "?":
		_, err := io.WriteString(s.w, taskUsage)
		return err
	case "complete", "done", "delete", "rm", "edit", "view", "show":
		id, err := ref()
		if err != nil {
			return err
		}
		switch args[0] {
		case "complete", "done":
			return s.complete(ctx, id)
		case "delete", "rm":
			return s.delete(ctx, id, nil)
		case "edit":
			return s.edit(ctx, id, tasks.Patch{})
		default:
			return s.view(ctx, id)
		}
	default:
		return fmt.Errorf("unknown task command %q (try help)", args[0])
	}
}

func newTaskFromArgs(args []string) tasks.NewTask {
	var in tasks.NewTask
	for i, dst := range []*string{&in.Name, &in.Due, &in.Description, &in.Course} {
		if i < len(args) {
			*dst = args[i]
		}
	}
	return in
}

// withTasks opens the tracker for a cobra command.
func withTasks(fn func(ctx context.Context, s *taskSession, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		s, err := openTasks(cmd.OutOrStdout(), nil)
		if err != nil {
			return err
		}
		defer s.Close()
		return fn(cmd.Context(), s, args)
	}
}

func listCmd(use, short string, f tasks.Filter) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: withTasks(func(ctx context.Context, s *taskSession, _ []string) error {
			return s.list(ctx, f)
		}),
	}
}

var (
	addFlags   tasks.NewTask
	deleteDir  bool
	editName   string
	editDue    string
	editDesc   string
	editStatus string
	editCourse string
)

// taskCmd is the academic task tracker.
var taskCmd = &cobra.Command{
	Use:     "task",
	Aliases: []string{"tasks"},
	Short:   "Academic task tracker",
	Long:    taskUsage,
	Args:    cobra.NoArgs,
	RunE: withTasks(func(ctx context.Context, s *taskSession, _ []string) error {
		return s.list(ctx, tasks.All)
	}),
}

var taskAddCmd = &cobra.Command{
	Use:   "add [name] [due] [description] [course]",
	Short: "Add a task",
	Args:  cobra.MaximumNArgs(4),
	RunE: withTasks(func(ctx context.Context, s *taskSession, args []string) error {
		in := newTaskFromArgs(args)
		for dst, v := range map[*string]string{&in.Name: addFlags.Name, &in.Due: addFlags.Due, &in.Description: addFlags.Description, &in.Course: addFlags.Course} {
			if v != "" {
				*dst = v
			}
		}
		return s.add(ctx, in)
	}),
}

var taskCompleteCmd = &cobra.Command{
	Use:     "complete <id>",
	Aliases: []string{"done"},
	Short:   "Mark a task completed",
	Args:    cobra.ExactArgs(1),
	RunE: withTasks(func(ctx context.Context, s *taskSession, args []string) error {
		return s.complete(ctx, args[0])
	}),
}

var taskDeleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"rm"},
	Short:   "Delete a task",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var folder *bool
		if cmd.Flags().Changed("folder") {
			folder = &deleteDir
		}
		return withTasks(func(ctx context.Context, s *taskSession, args []string) error {
			return s.delete(ctx, args[0], folder)
		})(cmd, args)
	},
}

var taskEditCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Edit a task (interactive without flags)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var p tasks.Patch
		for name, dst := range map[string]struct {
			val *string
			out **string
		}{
			"name":        {&editName, &p.Name},
			"due":         {&editDue, &p.Due},
			"description": {&editDesc, &p.Description},
			"status":      {&editStatus, &p.Status},
			"course":      {&editCourse, &p.Course},
		} {
			if cmd.Flags().Changed(name) {
				*dst.out = dst.val
			}
		}
		return withTasks(func(ctx context.Context, s *taskSession, args []string) error {
			return s.edit(ctx, args[0], p)
		})(cmd, args)
	},
}

var taskViewCmd = &cobra.Command{
	Use:     "view <id>",
	Aliases: []string{"show"},
	Short:   "Show a task in full",
	Args:    cobra.ExactArgs(1),
	RunE: withTasks(func(ctx context.Context, s *taskSession, args []string) error {
		return s.view(ctx, args[0])
	}),
}

var taskSyncCmd = &cobra.Command{
	Use:   "sync-folders",
	Short: "Recreate missing or stale task READMEs",
	Args:  cobra.NoArgs,
	RunE: withTasks(func(ctx context.Context, s *taskSession, _ []string) error {
		return s.syncFolders(ctx)
	}),
}

var taskHelpCmd = &cobra.Command{
	Use:   "help",
	Short: "Show task tracker usage",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprint(cmd.OutOrStdout(), taskUsage)
	},
}

func init() {
	taskAddCmd.Flags().StringVar(&addFlags.Name, "name", "", "Task name")
	taskAddCmd.Flags().StringVar(&addFlags.Due, "due", "", "Due date (YYYY-MM-DD)")
	taskAddCmd.Flags().StringVar(&addFlags.Description, "description", "", "Description")
	taskAddCmd.Flags().StringVar(&addFlags.Course, "course", "", "Course")

	taskDeleteCmd.Flags().BoolVar(&deleteDir, "folder", false, "Also delete the task folder (asked when omitted)")

	taskEditCmd.Flags().StringVar(&editName, "name", "", "New name (moves the task folder)")
	taskEditCmd.Flags().StringVar(&editDue, "due", "", "New due date (YYYY-MM-DD)")
	taskEditCmd.Flags().StringVar(&editDesc, "description", "", "New description")
	taskEditCmd.Flags().StringVar(&editStatus, "status", "", "Pending or Completed")
	taskEditCmd.Flags().StringVar(&editCourse, "course", "", "New course")

	taskCmd.AddCommand(
		listCmd("list", "List all tasks", tasks.All),
		listCmd("pending", "List pending tasks by due date", tasks.Pending),
		listCmd("today", "List pending tasks due today", tasks.DueToday),
		listCmd("week", "List pending tasks due within seven days", tasks.DueThisWeek),
		taskAddCmd, taskCompleteCmd, taskDeleteCmd, taskEditCmd, taskViewCmd, taskSyncCmd, taskHelpCmd,
	)
	rootCmd.AddCommand(taskCmd)
}
