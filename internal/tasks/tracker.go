package tasks

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"devsetup/internal/logger"
)

// Filter selects which tasks List returns.
type Filter int

const (
	All Filter = iota
	Pending
	DueToday    // pending tasks due on today's date
	DueThisWeek // pending tasks due within the next seven calendar days
)

// Entry is a listed task with its position and due-date distance.
type Entry struct {
	Pos          int // 0-based position in insertion order; the user-facing id
	Task         Task
	DaysUntilDue int
	// CalendarDays counts local calendar days to the due date; it decides
	// whether the task is due today, upcoming or overdue.
	CalendarDays int
}

// NewTask holds the user input for Add.
type NewTask struct {
	Name        string
	Due         string // YYYY-MM-DD
	Description string
	Course      string
}

// Patch holds optional field changes for Edit. Nil fields are left untouched.
type Patch struct {
	Name        *string
	Due         *string
	Description *string
	Status      *string
	Course      *string
}

// Tracker implements the task operations on top of a Store and, optionally,
// the per-task README folders.
type Tracker struct {
	store   Store
	folders *Folders
	now     func() time.Time
}

// NewTracker builds a tracker. A nil folders disables README management.
func NewTracker(store Store, folders *Folders) *Tracker {
	return &Tracker{store: store, folders: folders, now: time.Now}
}

// SetClock overrides the time source, used for due-date arithmetic.
func (t *Tracker) SetClock(now func() time.Time) {
	t.now = now
}

// Folders returns the README folder manager, or nil.
func (t *Tracker) Folders() *Folders {
	return t.folders
}

// Add validates and appends a task, then creates its folder and README.
//
// Commas in the name become semicolons and the due date must parse as
// YYYY-MM-DD. Names need not be unique. The README folder is created when
// missing; an existing folder is left untouched with a warning, and a folder
// failure never undoes the stored task.
func (t *Tracker) Add(ctx context.Context, in NewTask) (Entry, error) {
	name := SanitizeName(in.Name)
	if name == "" {
		return Entry{}, ErrEmptyName
	}
	due, err := ParseDue(in.Due)
	if err != nil {
		return Entry{}, err
	}

	task := Task{
		ID:          uuid.NewString(),
		Name:        name,
		Due:         due,
		Description: strings.TrimSpace(in.Description),
		Status:      StatusPending,
		Course:      strings.TrimSpace(in.Course),
	}
	if err := t.store.Insert(ctx, task); err != nil {
		return Entry{}, err
	}

	if t.folders != nil {
		if t.folders.Exists(name) {
			logger.Warn("[WARN] Folder %s already exists; leaving its README untouched\n", t.folders.Dir(name))
		} else if err := t.folders.Write(task); err != nil {
			logger.Warn("[WARN] Task saved but its folder could not be created: %v\n", err)
		}
	}

	all, err := t.store.All(ctx)
	if err != nil {
		return Entry{}, err
	}
	return t.entry(len(all)-1, task), nil
}

// List returns the tasks matching f. All keeps insertion order; the other
// filters sort by due date, then position.
func (t *Tracker) List(ctx context.Context, f Filter) ([]Entry, error) {
	all, err := t.store.All(ctx)
	if err != nil {
		return nil, err
	}

	now := t.now()
	var out []Entry
	for i, task := range all {
		if !matches(task, f, now) {
			continue
		}
		out = append(out, t.entry(i, task))
	}

	if f != All {
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].Task.Due.Before(out[j].Task.Due)
		})
	}
	return out, nil
}

func matches(task Task, f Filter, now time.Time) bool {
	switch f {
	case Pending:
		return task.Status == StatusPending
	case DueToday:
		return task.Status == StatusPending && !task.Due.IsZero() && calendarDays(task.Due, now) == 0
	case DueThisWeek:
		if task.Status != StatusPending || task.Due.IsZero() {
			return false
		}
		d := calendarDays(task.Due, now)
		return d >= 0 && d <= 7
	default:
		return true
	}
}

// Get resolves ref and returns the task.
func (t *Tracker) Get(ctx context.Context, ref string) (Entry, error) {
	all, err := t.store.All(ctx)
	if err != nil {
		return Entry{}, err
	}
	pos, err := Resolve(all, ref)
	if err != nil {
		return Entry{}, err
	}
	return t.entry(pos, all[pos]), nil
}

// Complete marks a task Completed. Completing an already completed task
// changes nothing and returns the entry together with ErrAlreadyCompleted.
func (t *Tracker) Complete(ctx context.Context, ref string) (Entry, error) {
	e, err := t.Get(ctx, ref)
	if err != nil {
		return Entry{}, err
	}
	if e.Task.Status == StatusCompleted {
		return e, ErrAlreadyCompleted
	}

	e.Task.Status = StatusCompleted
	if err := t.store.Update(ctx, e.Task); err != nil {
		return Entry{}, err
	}
	t.refreshReadme(e.Task)
	return e, nil
}

// Edit applies p to the task at ref. Renaming moves the task folder when it
// exists and creates one under the new name otherwise. When the new name's
// folder belongs to another task, the store is updated but no folder is
// moved or written.
func (t *Tracker) Edit(ctx context.Context, ref string, p Patch) (Entry, error) {
	e, err := t.Get(ctx, ref)
	if err != nil {
		return Entry{}, err
	}
	before := e.Task
	after := before

	if p.Name != nil {
		after.Name = SanitizeName(*p.Name)
		if after.Name == "" {
			return Entry{}, ErrEmptyName
		}
	}
	if p.Due != nil {
		if after.Due, err = ParseDue(*p.Due); err != nil {
			return Entry{}, err
		}
	}
	if p.Description != nil {
		after.Description = strings.TrimSpace(*p.Description)
	}
	if p.Status != nil {
		if after.Status, err = ParseStatus(*p.Status); err != nil {
			return Entry{}, err
		}
	}
	if p.Course != nil {
		after.Course = strings.TrimSpace(*p.Course)
	}
	if err := after.Validate(); err != nil {
		return Entry{}, err
	}

	if err := t.store.Update(ctx, after); err != nil {
		return Entry{}, err
	}

	if t.folders != nil && after.Name != before.Name {
		if !t.folders.ownedBy(after) {
			logger.Warn("[WARN] Folder %s belongs to another task; keeping %s\n", t.folders.Dir(after.Name), t.folders.Dir(before.Name))
			return t.entry(e.Pos, after), nil
		}
		moved, err := t.folders.Move(before.Name, after.Name)
		if err != nil {
			logger.Warn("[WARN] Could not move task folder: %v\n", err)
		} else if moved {
			logger.Info("[INFO] Moved folder to %s\n", t.folders.Dir(after.Name))
		}
	}
	t.refreshReadme(after)

	return t.entry(e.Pos, after), nil
}

// Delete removes the task at ref and, when removeFolder is set, its folder.
// A folder whose README names another task (same folder name) is kept.
// Later positions shift down by one.
func (t *Tracker) Delete(ctx context.Context, ref string, removeFolder bool) (Entry, error) {
	e, err := t.Get(ctx, ref)
	if err != nil {
		return Entry{}, err
	}
	if err := t.store.Remove(ctx, e.Task.ID); err != nil {
		return Entry{}, err
	}
	if removeFolder && t.folders != nil {
		if !t.folders.ownedBy(e.Task) {
			logger.Warn("[WARN] Folder %s belongs to another task with the same name; not removed\n", t.folders.Dir(e.Task.Name))
			return e, nil
		}
		if err := t.folders.Remove(e.Task.Name); err != nil {
			return e, err
		}
	}
	return e, nil
}

// SyncFolders recreates missing READMEs and rewrites those whose front matter
// disagrees with the store. It returns the number of READMEs written.
func (t *Tracker) SyncFolders(ctx context.Context) (int, error) {
	if t.folders == nil {
		return 0, nil
	}
	all, err := t.store.All(ctx)
	if err != nil {
		return 0, err
	}

	written := 0
	for _, task := range all {
		fm, err := ReadFrontMatter(t.folders.ReadmePath(task.Name))
		if err == nil && fm.ID == task.ID && fm.Status == task.Status &&
			fm.Course == task.Course && fm.DueString() == task.DueString() && fm.Name == task.Name {
			continue
		}
		if err == nil && fm.ID != "" && fm.ID != task.ID {
			logger.Warn("[WARN] Folder %s belongs to another task with the same name; skipping\n", t.folders.Dir(task.Name))
			continue
		}
		if err := t.folders.Write(task); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

func (t *Tracker) refreshReadme(task Task) {
	if t.folders == nil {
		return
	}
	if !t.folders.ownedBy(task) {
		logger.Warn("[WARN] Folder %s belongs to another task with the same name; README not updated\n", t.folders.Dir(task.Name))
		return
	}
	if err := t.folders.Write(task); err != nil {
		logger.Warn("[WARN] Could not update README for %q: %v\n", task.Name, err)
	}
}

func (t *Tracker) entry(pos int, task Task) Entry {
	e := Entry{Pos: pos, Task: task}
	if !task.Due.IsZero() {
		now := t.now()
		e.DaysUntilDue = DaysUntilDue(task.Due, now)
		e.CalendarDays = calendarDays(task.Due, now)
	}
	return e
}

// Resolve turns a user reference into a position in tasks. A number is a
// 0-based position; anything else is matched as a full ID or a unique ID
// prefix of at least four characters.
func Resolve(tasks []Task, ref string) (int, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return 0, ErrInvalidID
	}

	if n, err := strconv.Atoi(ref); err == nil {
		if n < 0 || n >= len(tasks) {
			return 0, fmt.Errorf("%w: id %d (have %d tasks)", ErrTaskNotFound, n, len(tasks))
		}
		return n, nil
	}

	if len(ref) < 4 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidID, ref)
	}
	found := -1
	for i, task := range tasks {
		if task.ID == ref {
			return i, nil
		}
		if strings.HasPrefix(task.ID, strings.ToLower(ref)) {
			if found >= 0 {
				return 0, fmt.Errorf("%w: %q", ErrAmbiguousID, ref)
			}
			found = i
		}
	}
	if found < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidID, ref)
	}
	return found, nil
}
