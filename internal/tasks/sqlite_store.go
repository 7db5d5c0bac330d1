package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure-Go driver registered as "sqlite"
)

// SQLiteStore keeps tasks in an embedded SQLite database. The seq column keeps
// insertion order; id is the stable address.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path. ":memory:" is accepted.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("task database path is empty")
	}
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create task directory: %w", err)
		}
		dsn = path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open task database: %w", err)
	}
	// A single connection keeps ":memory:" databases alive and serialises writers.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize task schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS tasks (
		seq         INTEGER PRIMARY KEY AUTOINCREMENT,
		id          TEXT NOT NULL UNIQUE,
		name        TEXT NOT NULL,
		due         TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		status      TEXT NOT NULL CHECK (status IN ('Pending', 'Completed')),
		course      TEXT NOT NULL DEFAULT '',
		updated_at  DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tasks_due ON tasks(due);
	`)
	return err
}

// All implements Store.
func (s *SQLiteStore) All(ctx context.Context) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, due, description, status, course FROM tasks ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		var (
			t      Task
			due    string
			status string
		)
		if err := rows.Scan(&t.ID, &t.Name, &due, &t.Description, &status, &t.Course); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		t.Status = Status(status)
		t.Due = parseStoredDue(due, t.Name)
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// Insert implements Store.
func (s *SQLiteStore) Insert(ctx context.Context, t Task) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (id, name, due, description, status, course, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.DueString(), t.Description, string(t.Status), t.Course, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// Update implements Store.
func (s *SQLiteStore) Update(ctx context.Context, t Task) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE tasks SET name = ?, due = ?, description = ?, status = ?, course = ?, updated_at = ?
			 WHERE id = ?`,
			t.Name, t.DueString(), t.Description, string(t.Status), t.Course, time.Now().UTC(), t.ID)
		if err != nil {
			return fmt.Errorf("update task: %w", err)
		}
		return expectOneRow(res, t.ID)
	})
}

// Remove implements Store.
func (s *SQLiteStore) Remove(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete task: %w", err)
		}
		return expectOneRow(res, id)
	})
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func expectOneRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return nil
}
