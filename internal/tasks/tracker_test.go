package tasks

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	color.NoColor = true
}

// backends lets every tracker test run against both stores.
var backends = []struct {
	name string
	open func(t *testing.T) Store
}{
	{
		name: "csv",
		open: func(t *testing.T) Store {
			s, err := OpenCSV(filepath.Join(t.TempDir(), "academic", "tasks.csv"))
			require.NoError(t, err)
			return s
		},
	},
	{
		name: "sqlite",
		open: func(t *testing.T) Store {
			s, err := OpenSQLite(":memory:")
			require.NoError(t, err)
			return s
		},
	},
}

func newTracker(t *testing.T, store Store, now time.Time) (*Tracker, string) {
	t.Helper()
	t.Cleanup(func() { _ = store.Close() })
	root := filepath.Join(t.TempDir(), "Uni")
	tr := NewTracker(store, &Folders{Root: root})
	tr.SetClock(func() time.Time { return now })
	return tr, root
}

func day(s string) time.Time {
	d, err := ParseDue(s)
	if err != nil {
		panic(err)
	}
	return d
}

func strPtr(s string) *string { return &s }

func TestEssayScenario(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			tr, root := newTracker(t, b.open(t), day("2025-04-28").Add(9*time.Hour))

			added, err := tr.Add(ctx, NewTask{Name: "Essay 1", Due: "2025-05-01", Description: "Draft essay", Course: "CS101"})
			require.NoError(t, err)
			assert.Equal(t, 0, added.Pos)

			list, err := tr.List(ctx, All)
			require.NoError(t, err)
			require.Len(t, list, 1)
			assert.Equal(t, StatusPending, list[0].Task.Status)
			assert.Equal(t, "Thu May 1, 2025 (in 2 days)", FormatDue(list[0]))

			_, err = tr.Complete(ctx, "0")
			require.NoError(t, err)

			list, err = tr.List(ctx, All)
			require.NoError(t, err)
			assert.Equal(t, StatusCompleted, list[0].Task.Status)

			readme, err := os.ReadFile(filepath.Join(root, "Essay_1", "README.md"))
			require.NoError(t, err)
			assert.Contains(t, string(readme), "status: Completed")
			assert.Contains(t, string(readme), "Draft essay")
		})
	}
}

func TestAddThenListMatchesFields(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			tr, _ := newTracker(t, b.open(t), day("2025-01-01"))

			_, err := tr.Add(ctx, NewTask{Name: "Lab, part 2", Due: "2025-02-10", Description: "Use commas, freely\nand newlines", Course: "PHY200"})
			require.NoError(t, err)

			list, err := tr.List(ctx, All)
			require.NoError(t, err)
			require.Len(t, list, 1)
			got := list[0].Task
			assert.Equal(t, "Lab; part 2", got.Name)
			assert.Equal(t, "2025-02-10", got.DueString())
			assert.Equal(t, "Use commas, freely\nand newlines", got.Description)
			assert.Equal(t, "PHY200", got.Course)
			assert.Len(t, got.ID, 36)
		})
	}
}

func TestAddRejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTracker(t, backends[0].open(t), time.Now())

	_, err := tr.Add(ctx, NewTask{Name: "Essay", Due: "2025-13-40"})
	require.ErrorIs(t, err, ErrInvalidDate)

	_, err = tr.Add(ctx, NewTask{Name: "  ", Due: "2025-01-01"})
	require.ErrorIs(t, err, ErrEmptyName)

	list, err := tr.List(ctx, All)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCompleteIsIdempotent(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			tr, _ := newTracker(t, b.open(t), day("2025-01-01"))
			_, err := tr.Add(ctx, NewTask{Name: "Quiz", Due: "2025-01-03"})
			require.NoError(t, err)

			first, err := tr.Complete(ctx, "0")
			require.NoError(t, err)
			assert.Equal(t, StatusCompleted, first.Task.Status)

			second, err := tr.Complete(ctx, "0")
			require.ErrorIs(t, err, ErrAlreadyCompleted)
			assert.Equal(t, StatusCompleted, second.Task.Status)
		})
	}
}

func TestDeleteShiftsPositions(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			tr, root := newTracker(t, b.open(t), day("2025-01-01"))
			for _, name := range []string{"A", "B", "C"} {
				_, err := tr.Add(ctx, NewTask{Name: name, Due: "2025-01-05"})
				require.NoError(t, err)
			}

			deleted, err := tr.Delete(ctx, "1", true)
			require.NoError(t, err)
			assert.Equal(t, "B", deleted.Task.Name)
			assert.NoDirExists(t, filepath.Join(root, "B"))
			assert.DirExists(t, filepath.Join(root, "C"))

			list, err := tr.List(ctx, All)
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, "A", list[0].Task.Name)
			assert.Equal(t, 1, list[1].Pos)
			assert.Equal(t, "C", list[1].Task.Name)
		})
	}
}

func TestDeleteKeepsFolderUnlessAsked(t *testing.T) {
	ctx := context.Background()
	tr, root := newTracker(t, backends[0].open(t), day("2025-01-01"))
	_, err := tr.Add(ctx, NewTask{Name: "Keep me", Due: "2025-01-05"})
	require.NoError(t, err)

	_, err = tr.Delete(ctx, "0", false)
	require.NoError(t, err)
	assert.DirExists(t, filepath.Join(root, "Keep_me"))
}

func TestInvalidRefsChangeNothing(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			tr, _ := newTracker(t, b.open(t), day("2025-01-01"))
			_, err := tr.Add(ctx, NewTask{Name: "Only", Due: "2025-01-05"})
			require.NoError(t, err)

			_, err = tr.Complete(ctx, "5")
			require.ErrorIs(t, err, ErrTaskNotFound)
			_, err = tr.Delete(ctx, "-1", true)
			require.ErrorIs(t, err, ErrTaskNotFound)
			_, err = tr.Edit(ctx, "abc", Patch{Status: strPtr("Completed")})
			require.ErrorIs(t, err, ErrInvalidID)
			_, err = tr.Edit(ctx, "zzzzzzzz", Patch{Status: strPtr("Completed")})
			require.ErrorIs(t, err, ErrInvalidID)

			list, err := tr.List(ctx, All)
			require.NoError(t, err)
			require.Len(t, list, 1)
			assert.Equal(t, StatusPending, list[0].Task.Status)
		})
	}
}

func TestEditStatusOnlyLeavesOtherFields(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			tr, _ := newTracker(t, b.open(t), day("2025-01-01"))
			added, err := tr.Add(ctx, NewTask{Name: "Report", Due: "2025-03-01", Description: "Chapter 3", Course: "HIS110"})
			require.NoError(t, err)

			_, err = tr.Edit(ctx, "0", Patch{Status: strPtr("completed")})
			require.NoError(t, err)

			got, err := tr.Get(ctx, "0")
			require.NoError(t, err)
			want := added.Task
			want.Status = StatusCompleted
			assert.Equal(t, want, got.Task)
		})
	}
}

func TestEditRenameMovesFolderAndKeepsNotes(t *testing.T) {
	ctx := context.Background()
	tr, root := newTracker(t, backends[0].open(t), day("2025-01-01"))
	_, err := tr.Add(ctx, NewTask{Name: "Old name", Due: "2025-02-01", Description: "first line"})
	require.NoError(t, err)

	readme := filepath.Join(root, "Old_name", "README.md")
	data, err := os.ReadFile(readme)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(readme, append(data, []byte("- remember the rubric\n")...), 0644))

	_, err = tr.Edit(ctx, "0", Patch{Name: strPtr("New name"), Description: strPtr("line one\nline two")})
	require.NoError(t, err)

	assert.NoDirExists(t, filepath.Join(root, "Old_name"))
	data, err = os.ReadFile(filepath.Join(root, "New_name", "README.md"))
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "name: New name")
	assert.Contains(t, text, "## Description\n\nline one\nline two\n")
	assert.NotContains(t, text, "first line")
	assert.Contains(t, text, "## Notes\n\n- remember the rubric\n")
}

func TestEditRenameCreatesMissingFolder(t *testing.T) {
	ctx := context.Background()
	tr, root := newTracker(t, backends[0].open(t), day("2025-01-01"))
	_, err := tr.Add(ctx, NewTask{Name: "Draft", Due: "2025-02-01"})
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(filepath.Join(root, "Draft")))

	_, err = tr.Edit(ctx, "0", Patch{Name: strPtr("Final")})
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(root, "Final", "README.md"))
}

func TestListFilters(t *testing.T) {
	ctx := context.Background()
	now := day("2025-03-10").Add(15 * time.Hour)
	tr, _ := newTracker(t, backends[0].open(t), now)

	for _, in := range []NewTask{
		{Name: "Next week", Due: "2025-03-17"},
		{Name: "Today", Due: "2025-03-10"},
		{Name: "Tomorrow", Due: "2025-03-11"},
		{Name: "Far", Due: "2025-04-30"},
		{Name: "Past", Due: "2025-03-01"},
		{Name: "Done today", Due: "2025-03-10"},
	} {
		_, err := tr.Add(ctx, in)
		require.NoError(t, err)
	}
	_, err := tr.Complete(ctx, "5")
	require.NoError(t, err)

	names := func(entries []Entry) []string {
		var out []string
		for _, e := range entries {
			out = append(out, e.Task.Name)
		}
		return out
	}

	all, err := tr.List(ctx, All)
	require.NoError(t, err)
	assert.Equal(t, []string{"Next week", "Today", "Tomorrow", "Far", "Past", "Done today"}, names(all))

	pending, err := tr.List(ctx, Pending)
	require.NoError(t, err)
	assert.Equal(t, []string{"Past", "Today", "Tomorrow", "Next week", "Far"}, names(pending))

	today, err := tr.List(ctx, DueToday)
	require.NoError(t, err)
	assert.Equal(t, []string{"Today"}, names(today))

	week, err := tr.List(ctx, DueThisWeek)
	require.NoError(t, err)
	assert.Equal(t, []string{"Today", "Tomorrow", "Next week"}, names(week))
	assert.Equal(t, 2, week[1].Pos)
}

func TestDaysUntilDue(t *testing.T) {
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, 7, DaysUntilDue(now.Add(7*86400*time.Second), now))
	assert.Equal(t, 6, DaysUntilDue(now.Add(6*86400*time.Second+23*time.Hour), now))
	assert.Equal(t, 0, DaysUntilDue(now.Add(-3*time.Hour), now))
	assert.Equal(t, -2, DaysUntilDue(now.Add(-2*86400*time.Second), now))
	assert.Less(t, DaysUntilDue(now.AddDate(0, 0, -30), now), 0)
}

func TestResolveByIDPrefix(t *testing.T) {
	tasks := []Task{
		{ID: "1a2b3c4d-0000-0000-0000-000000000000"},
		{ID: "1a2b9999-0000-0000-0000-000000000000"},
		{ID: "ffff0000-0000-0000-0000-000000000000"},
	}

	pos, err := Resolve(tasks, "ffff")
	require.NoError(t, err)
	assert.Equal(t, 2, pos)

	pos, err = Resolve(tasks, "1a2b3c4d-0000-0000-0000-000000000000")
	require.NoError(t, err)
	assert.Equal(t, 0, pos)

	_, err = Resolve(tasks, "1a2b")
	require.ErrorIs(t, err, ErrAmbiguousID)

	_, err = Resolve(tasks, "")
	require.ErrorIs(t, err, ErrInvalidID)
}

func TestDuplicateNamesShareFolder(t *testing.T) {
	ctx := context.Background()
	tr, root := newTracker(t, backends[0].open(t), day("2025-01-01"))

	_, err := tr.Add(ctx, NewTask{Name: "Same", Due: "2025-01-02", Description: "first"})
	require.NoError(t, err)
	_, err = tr.Add(ctx, NewTask{Name: "Same", Due: "2025-01-03", Description: "second"})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(root, "Same", "README.md"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "first")

	list, err := tr.List(ctx, All)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.NotEqual(t, list[0].Task.ID, list[1].Task.ID)
}

func TestSyncFoldersRepairsDrift(t *testing.T) {
	ctx := context.Background()
	tr, root := newTracker(t, backends[0].open(t), day("2025-01-01"))
	_, err := tr.Add(ctx, NewTask{Name: "Thesis", Due: "2025-06-01"})
	require.NoError(t, err)
	_, err = tr.Add(ctx, NewTask{Name: "Slides", Due: "2025-06-02"})
	require.NoError(t, err)

	require.NoError(t, os.RemoveAll(filepath.Join(root, "Slides")))
	readme := filepath.Join(root, "Thesis", "README.md")
	data, err := os.ReadFile(readme)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(readme, []byte(strings.Replace(string(data), "status: Pending", "status: Completed", 1)), 0644))

	n, err := tr.SyncFolders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	fm, err := ReadFrontMatter(readme)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, fm.Status)
	assert.FileExists(t, filepath.Join(root, "Slides", "README.md"))

	n, err = tr.SyncFolders(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, nil))
	assert.Equal(t, "No tasks found.\n", buf.String())

	buf.Reset()
	entries := []Entry{
		{Pos: 0, Task: Task{Name: "Essay 1", Course: "CS101", Due: day("2025-05-01"), Status: StatusPending}, DaysUntilDue: 3, CalendarDays: 3},
		{Pos: 1, Task: Task{Name: "Quiz", Due: day("2025-04-20"), Status: StatusPending}, DaysUntilDue: -8, CalendarDays: -8},
	}
	require.NoError(t, WriteTable(&buf, entries))
	out := buf.String()
	assert.Contains(t, out, "Essay 1")
	assert.Contains(t, out, "(in 3 days)")
	assert.Contains(t, out, "8 days overdue")
	assert.Contains(t, out, "Overdue")
}

func TestDueLabelFollowsCalendar(t *testing.T) {
	ctx := context.Background()
	now := day("2025-03-10").Add(15 * time.Hour)
	tr, _ := newTracker(t, backends[0].open(t), now)
	for _, in := range []NewTask{
		{Name: "Tomorrow", Due: "2025-03-11"},
		{Name: "Today", Due: "2025-03-10"},
		{Name: "Yesterday", Due: "2025-03-09"},
	} {
		_, err := tr.Add(ctx, in)
		require.NoError(t, err)
	}

	all, err := tr.List(ctx, All)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, 0, all[0].DaysUntilDue)
	assert.Equal(t, "Tue Mar 11, 2025 (in 1 day)", FormatDue(all[0]))
	assert.Equal(t, "Mon Mar 10, 2025 (due today)", FormatDue(all[1]))
	assert.Equal(t, "Sun Mar 9, 2025 (1 day overdue)", FormatDue(all[2]))

	today, err := tr.List(ctx, DueToday)
	require.NoError(t, err)
	require.Len(t, today, 1)
	assert.Equal(t, "Today", today[0].Task.Name)
}

func TestEditRenameOntoAnotherTasksFolder(t *testing.T) {
	ctx := context.Background()
	tr, root := newTracker(t, backends[0].open(t), day("2025-01-01"))
	b, err := tr.Add(ctx, NewTask{Name: "B", Due: "2025-02-01", Description: "B's own description"})
	require.NoError(t, err)
	_, err = tr.Add(ctx, NewTask{Name: "A", Due: "2025-02-02", Description: "A desc"})
	require.NoError(t, err)

	renamed, err := tr.Edit(ctx, "1", Patch{Name: strPtr("B")})
	require.NoError(t, err)
	assert.Equal(t, "B", renamed.Task.Name)

	fm, err := ReadFrontMatter(filepath.Join(root, "B", "README.md"))
	require.NoError(t, err)
	assert.Equal(t, b.Task.ID, fm.ID)
	data, err := os.ReadFile(filepath.Join(root, "B", "README.md"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "B's own description")
	assert.NotContains(t, string(data), "A desc")
	assert.DirExists(t, filepath.Join(root, "A"))

	// Completing the renamed task leaves B's README alone as well.
	_, err = tr.Complete(ctx, "1")
	require.NoError(t, err)
	fm, err = ReadFrontMatter(filepath.Join(root, "B", "README.md"))
	require.NoError(t, err)
	assert.Equal(t, StatusPending, fm.Status)
}

func TestDeleteKeepsFolderOwnedByAnotherTask(t *testing.T) {
	ctx := context.Background()
	tr, root := newTracker(t, backends[0].open(t), day("2025-01-01"))
	_, err := tr.Add(ctx, NewTask{Name: "Same", Due: "2025-01-02", Description: "first"})
	require.NoError(t, err)
	_, err = tr.Add(ctx, NewTask{Name: "Same", Due: "2025-01-03", Description: "second"})
	require.NoError(t, err)

	_, err = tr.Delete(ctx, "1", true)
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(root, "Same", "README.md"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "first")

	_, err = tr.Delete(ctx, "0", true)
	require.NoError(t, err)
	assert.NoDirExists(t, filepath.Join(root, "Same"))
}
