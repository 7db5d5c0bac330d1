package tasks

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/natefinch/atomic"

	"devsetup/internal/logger"
)

// csvHeader is the header of files written by this store.
var csvHeader = []string{"ID", "Name", "Due Date", "Description", "Status", "Course"}

// lockRetry is how often a blocked lock attempt is retried.
const lockRetry = 25 * time.Millisecond

// CSVStore keeps tasks in a CSV file. Every mutation takes an exclusive lock on
// a sidecar .lock file, rewrites the whole file and swaps it in atomically.
type CSVStore struct {
	path string
	lock *flock.Flock
}

// OpenCSV opens (creating when needed) the CSV file at path. A file in the legacy
// layout, or one missing its header, is migrated in place.
func OpenCSV(path string) (*CSVStore, error) {
	if path == "" {
		return nil, errors.New("task file path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create task directory: %w", err)
	}

	s := &CSVStore{path: path, lock: flock.New(path + ".lock")}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.withLock(ctx, func() error {
		tasks, migrate, err := s.read()
		if err != nil {
			return err
		}
		if !migrate {
			return nil
		}
		logger.Info("[INFO] Upgrading task file %s to the current layout (%d tasks)\n", path, len(tasks))
		return s.write(tasks)
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the CSV file location.
func (s *CSVStore) Path() string { return s.path }

// All implements Store.
func (s *CSVStore) All(ctx context.Context) ([]Task, error) {
	ok, err := s.lock.TryRLockContext(ctx, lockRetry)
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", s.path, err)
	}
	if !ok {
		return nil, fmt.Errorf("lock %s: not acquired", s.path)
	}
	defer s.lock.Unlock()

	tasks, _, err := s.read()
	return tasks, err
}

// Insert implements Store.
func (s *CSVStore) Insert(ctx context.Context, t Task) error {
	return s.mutate(ctx, func(tasks []Task) ([]Task, error) {
		return append(tasks, t), nil
	})
}

// Update implements Store.
func (s *CSVStore) Update(ctx context.Context, t Task) error {
	return s.mutate(ctx, func(tasks []Task) ([]Task, error) {
		for i := range tasks {
			if tasks[i].ID == t.ID {
				tasks[i] = t
				return tasks, nil
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, t.ID)
	})
}

// Remove implements Store.
func (s *CSVStore) Remove(ctx context.Context, id string) error {
	return s.mutate(ctx, func(tasks []Task) ([]Task, error) {
		for i := range tasks {
			if tasks[i].ID == id {
				return append(tasks[:i], tasks[i+1:]...), nil
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	})
}

// Close implements Store.
func (s *CSVStore) Close() error {
	return s.lock.Close()
}

// mutate runs a read-modify-write cycle under the exclusive lock.
func (s *CSVStore) mutate(ctx context.Context, fn func([]Task) ([]Task, error)) error {
	return s.withLock(ctx, func() error {
		tasks, _, err := s.read()
		if err != nil {
			return err
		}
		updated, err := fn(tasks)
		if err != nil {
			return err
		}
		return s.write(updated)
	})
}

func (s *CSVStore) withLock(ctx context.Context, fn func() error) error {
	ok, err := s.lock.TryLockContext(ctx, lockRetry)
	if err != nil {
		return fmt.Errorf("lock %s: %w", s.path, err)
	}
	if !ok {
		return fmt.Errorf("lock %s: not acquired", s.path)
	}
	defer s.lock.Unlock()
	return fn()
}

// read parses the file. The bool result reports whether the file needs to be
// rewritten: it is missing, lacks a header, or uses the legacy column layout.
func (s *CSVStore) read() ([]Task, bool, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, true, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", s.path, err)
	}
	return parseCSV(data)
}

func (s *CSVStore) write(tasks []Task) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return err
	}
	for _, t := range tasks {
		if err := w.Write([]string{t.ID, t.Name, t.DueString(), t.Description, string(t.Status), t.Course}); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("encode tasks: %w", err)
	}

	if err := atomic.WriteFile(s.path, &buf); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	return nil
}

// parseCSV decodes both the current layout (leading ID column) and the legacy
// Name,Due Date,Description,Status[,Course] layout. Legacy rows get fresh IDs.
func parseCSV(data []byte) ([]Task, bool, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var (
		tasks   []Task
		migrate bool
		legacy  bool
		line    int
	)
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, fmt.Errorf("parse tasks: %w", err)
		}
		line++

		if line == 1 {
			switch {
			case strings.EqualFold(rec[0], "ID"):
				continue
			case strings.EqualFold(rec[0], "Name"):
				legacy, migrate = true, true
				continue
			default:
				// Header missing: the first line is already data.
				legacy, migrate = !looksLikeID(rec[0]), true
			}
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}

		var t Task
		if legacy {
			t = legacyRow(rec)
		} else {
			t = currentRow(rec)
		}
		if t.Status == "" {
			t.Status = StatusPending
		}
		tasks = append(tasks, t)
	}

	if line == 0 {
		migrate = true
	}
	return tasks, migrate, nil
}

func currentRow(rec []string) Task {
	get := func(i int) string {
		if i < len(rec) {
			return rec[i]
		}
		return ""
	}
	t := Task{
		ID:          get(0),
		Name:        get(1),
		Description: get(3),
		Status:      normaliseStatus(get(4)),
		Course:      get(5),
	}
	t.Due = parseStoredDue(get(2), t.Name)
	return t
}

// legacyRow maps an unquoted legacy row. Descriptions could contain commas, so
// the status column is located from the end and everything between the due
// date and the status is joined back into the description.
func legacyRow(rec []string) Task {
	t := Task{ID: uuid.NewString()}
	if len(rec) > 0 {
		t.Name = rec[0]
	}
	if len(rec) > 1 {
		t.Due = parseStoredDue(rec[1], t.Name)
	}
	if len(rec) <= 2 {
		return t
	}

	statusIdx := -1
	for i := len(rec) - 1; i >= 2; i-- {
		if _, err := ParseStatus(rec[i]); err == nil {
			statusIdx = i
			break
		}
	}
	if statusIdx < 0 {
		t.Description = strings.Join(rec[2:], ",")
		return t
	}
	t.Description = strings.Join(rec[2:statusIdx], ",")
	t.Status = normaliseStatus(rec[statusIdx])
	t.Course = strings.Join(rec[statusIdx+1:], ",")
	return t
}

func normaliseStatus(s string) Status {
	st, err := ParseStatus(s)
	if err != nil {
		return StatusPending
	}
	return st
}

func parseStoredDue(s, name string) time.Time {
	if strings.TrimSpace(s) == "" {
		return time.Time{}
	}
	d, err := ParseDue(s)
	if err != nil {
		logger.Warn("[WARN] Task %q has an unreadable due date %q\n", name, s)
		return time.Time{}
	}
	return d
}

func looksLikeID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
