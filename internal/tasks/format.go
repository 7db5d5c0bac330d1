package tasks

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
)

// DisplayLayout is how due dates are shown to the user.
const DisplayLayout = "Mon Jan 2, 2006"

var (
	pendingColor   = color.New(color.FgYellow)
	completedColor = color.New(color.FgGreen)
	overdueColor   = color.New(color.FgRed, color.Bold)
)

// FormatDue renders the due date with a relative hint, e.g.
// "Thu May 1, 2025 (in 3 days)". Whether the task is due today, upcoming or
// overdue follows the calendar; the count is DaysUntilDue, never shown as 0
// for another day.
func FormatDue(e Entry) string {
	if e.Task.Due.IsZero() {
		return "no due date"
	}
	return fmt.Sprintf("%s (%s)", e.Task.Due.Format(DisplayLayout), relative(e.CalendarDays, e.DaysUntilDue))
}

func relative(calendar, days int) string {
	switch {
	case calendar == 0:
		return "due today"
	case calendar > 0:
		days = max(days, 1)
		if days == 1 {
			return "in 1 day"
		}
		return fmt.Sprintf("in %d days", days)
	default:
		days = max(-days, 1)
		if days == 1 {
			return "1 day overdue"
		}
		return fmt.Sprintf("%d days overdue", days)
	}
}

// StatusLabel colours a status for terminal output.
func StatusLabel(e Entry) string {
	if e.Task.Status == StatusCompleted {
		return completedColor.Sprint(e.Task.Status)
	}
	if !e.Task.Due.IsZero() && e.CalendarDays < 0 {
		return overdueColor.Sprint("Overdue")
	}
	return pendingColor.Sprint(e.Task.Status)
}

// WriteTable prints entries as an aligned table.
func WriteTable(w io.Writer, entries []Entry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "No tasks found.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCOURSE\tDUE\tSTATUS")
	for _, e := range entries {
		course := e.Task.Course
		if course == "" {
			course = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", e.Pos, e.Task.Name, course, FormatDue(e), StatusLabel(e))
	}
	return tw.Flush()
}

// WriteDetail prints one task in full.
func WriteDetail(w io.Writer, e Entry, readme string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Task %d: %s\n", e.Pos, e.Task.Name)
	fmt.Fprintf(&b, "  ID:          %s\n", e.Task.ID)
	if e.Task.Course != "" {
		fmt.Fprintf(&b, "  Course:      %s\n", e.Task.Course)
	}
	fmt.Fprintf(&b, "  Due:         %s\n", FormatDue(e))
	fmt.Fprintf(&b, "  Status:      %s\n", StatusLabel(e))
	if e.Task.Description != "" {
		fmt.Fprintf(&b, "  Description: %s\n", strings.ReplaceAll(e.Task.Description, "\n", "\n               "))
	}
	if readme != "" {
		fmt.Fprintf(&b, "  Folder:      %s\n", readme)
	}
	_, err := io.WriteString(w, b.String())
	return err
}
