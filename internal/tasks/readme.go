package tasks

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"
	"gopkg.in/yaml.v3"
)

const (
	frontMatterDelim   = "---"
	descriptionHeading = "## Description"
	notesHeading       = "## Notes"
)

// frontMatter is the YAML block at the top of every task README.
type frontMatter struct {
	ID     string `yaml:"id"`
	Name   string `yaml:"name"`
	Course string `yaml:"course,omitempty"`
	Due    string `yaml:"due"`
	Status Status `yaml:"status"`
}

// Folders manages the per-task directories under Root.
type Folders struct {
	Root string
}

// Dir returns the folder of a task name: spaces become underscores.
func (f Folders) Dir(name string) string {
	return filepath.Join(f.Root, strings.ReplaceAll(strings.TrimSpace(name), " ", "_"))
}

// ReadmePath returns the README location of a task name.
func (f Folders) ReadmePath(name string) string {
	return filepath.Join(f.Dir(name), "README.md")
}

// Exists reports whether the task's folder exists.
func (f Folders) Exists(name string) bool {
	info, err := os.Stat(f.Dir(name))
	return err == nil && info.IsDir()
}

// Write renders the README for t. When a README already exists, its front
// matter, title and description are regenerated and every section after the
// description (notes the user added) is preserved.
func (f Folders) Write(t Task) error {
	dir := f.Dir(t.Name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create task folder: %w", err)
	}

	path := f.ReadmePath(t.Name)
	tail := "\n" + notesHeading + "\n\n"
	if existing, err := os.ReadFile(path); err == nil {
		tail = preservedSections(string(existing))
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("read %s: %w", path, err)
	}

	body, err := renderReadme(t, tail)
	if err != nil {
		return err
	}
	if err := atomic.WriteFile(path, bytes.NewReader(body)); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Move renames the folder of oldName to newName. It reports false when there
// was nothing to move or the destination is already taken.
func (f Folders) Move(oldName, newName string) (bool, error) {
	from, to := f.Dir(oldName), f.Dir(newName)
	if from == to || !f.Exists(oldName) {
		return false, nil
	}
	if _, err := os.Stat(to); err == nil {
		return false, nil
	}
	if err := os.Rename(from, to); err != nil {
		return false, fmt.Errorf("rename task folder: %w", err)
	}
	return true, nil
}

// Owner returns the task ID recorded in the front matter of name's README,
// or "" when there is no README or it carries no ID.
func (f Folders) Owner(name string) string {
	fm, err := ReadFrontMatter(f.ReadmePath(name))
	if err != nil {
		return ""
	}
	return fm.ID
}

// ownedBy reports whether the folder of t.Name may be written or removed on
// behalf of t: it has no owner yet or t owns it.
func (f Folders) ownedBy(t Task) bool {
	owner := f.Owner(t.Name)
	return owner == "" || owner == t.ID
}

// Remove deletes the folder of a task name.
func (f Folders) Remove(name string) error {
	if err := os.RemoveAll(f.Dir(name)); err != nil {
		return fmt.Errorf("remove task folder: %w", err)
	}
	return nil
}

func renderReadme(t Task, tail string) ([]byte, error) {
	fm, err := yaml.Marshal(frontMatter{
		ID:     t.ID,
		Name:   t.Name,
		Course: t.Course,
		Due:    t.DueString(),
		Status: t.Status,
	})
	if err != nil {
		return nil, fmt.Errorf("encode front matter: %w", err)
	}

	var b strings.Builder
	b.WriteString(frontMatterDelim + "\n")
	b.Write(fm)
	b.WriteString(frontMatterDelim + "\n\n")
	fmt.Fprintf(&b, "# %s\n\n", t.Name)
	if t.Course != "" {
		fmt.Fprintf(&b, "**Course:** %s  \n", t.Course)
	}
	fmt.Fprintf(&b, "**Due:** %s  \n", t.DueString())
	fmt.Fprintf(&b, "**Status:** %s\n\n", t.Status)
	b.WriteString(descriptionHeading + "\n\n")
	if d := strings.TrimSpace(t.Description); d != "" {
		b.WriteString(d + "\n")
	}
	b.WriteString(tail)
	return []byte(b.String()), nil
}

// preservedSections returns everything from the first "## " heading after the
// description section, or an empty notes section when there is none.
func preservedSections(readme string) string {
	idx := strings.Index(readme, "\n"+descriptionHeading)
	if idx < 0 {
		return "\n" + notesHeading + "\n\n"
	}
	rest := readme[idx+1+len(descriptionHeading):]
	next := strings.Index(rest, "\n## ")
	if next < 0 {
		return ""
	}
	return "\n" + rest[next+1:]
}

// ReadFrontMatter parses the front matter of a README; used to detect drift
// between the store and the folder.
func ReadFrontMatter(path string) (Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Task{}, err
	}
	text := string(data)
	if !strings.HasPrefix(text, frontMatterDelim+"\n") {
		return Task{}, fmt.Errorf("%s: missing front matter", path)
	}
	end := strings.Index(text[len(frontMatterDelim)+1:], "\n"+frontMatterDelim)
	if end < 0 {
		return Task{}, fmt.Errorf("%s: unterminated front matter", path)
	}

	var fm frontMatter
	if err := yaml.Unmarshal([]byte(text[len(frontMatterDelim)+1:len(frontMatterDelim)+1+end]), &fm); err != nil {
		return Task{}, fmt.Errorf("%s: %w", path, err)
	}
	t := Task{ID: fm.ID, Name: fm.Name, Course: fm.Course, Status: fm.Status}
	if fm.Due != "" {
		if t.Due, err = ParseDue(fm.Due); err != nil {
			return Task{}, err
		}
	}
	return t, nil
}
