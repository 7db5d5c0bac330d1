// Package prompt reads interactive answers from the user: menu choices, task
// fields, confirmations and the backup password.
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/peterh/liner"
	"golang.org/x/term"
)

// ErrAborted is returned when the user presses Ctrl-C or closes the input.
var ErrAborted = errors.New("input aborted")

// Prompter asks the user for input.
type Prompter interface {
	Line(label string) (string, error)
	Confirm(label string, def bool) (bool, error)
	Password(label string) (string, error)
	Close() error
}

// New returns a liner-backed prompter when stdin is a terminal and a plain
// line reader otherwise (pipes, tests, cron).
func New() Prompter {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		return NewLiner()
	}
	return NewReader(os.Stdin, os.Stdout)
}

// Liner prompts on the terminal with line editing and in-session history.
type Liner struct {
	state *liner.State
}

// NewLiner takes over the terminal until Close is called.
func NewLiner() *Liner {
	s := liner.NewLiner()
	s.SetCtrlCAborts(true)
	return &Liner{state: s}
}

// Line implements Prompter.
func (l *Liner) Line(label string) (string, error) {
	line, err := l.state.Prompt(label)
	if err != nil {
		if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
			return "", ErrAborted
		}
		return "", err
	}
	line = strings.TrimSpace(line)
	if line != "" {
		l.state.AppendHistory(line)
	}
	return line, nil
}

// Confirm implements Prompter.
func (l *Liner) Confirm(label string, def bool) (bool, error) {
	return confirm(l.Line, label, def)
}

// Password implements Prompter. liner masks the input itself.
func (l *Liner) Password(label string) (string, error) {
	pw, err := l.state.PasswordPrompt(label)
	if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
		return "", ErrAborted
	}
	return pw, err
}

// Close restores the terminal.
func (l *Liner) Close() error {
	return l.state.Close()
}

// Reader prompts over plain streams.
type Reader struct {
	in  *bufio.Reader
	out io.Writer
}

// NewReader reads answers from in and writes labels to out.
func NewReader(in io.Reader, out io.Writer) *Reader {
	return &Reader{in: bufio.NewReader(in), out: out}
}

// Line implements Prompter.
func (r *Reader) Line(label string) (string, error) {
	fmt.Fprint(r.out, label)
	line, err := r.in.ReadString('\n')
	if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
		if errors.Is(err, io.EOF) {
			return "", ErrAborted
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Confirm implements Prompter.
func (r *Reader) Confirm(label string, def bool) (bool, error) {
	return confirm(r.Line, label, def)
}

// Password implements Prompter. Input is echoed because there is no terminal to
// switch off.
func (r *Reader) Password(label string) (string, error) {
	return r.Line(label)
}

// Close implements Prompter.
func (r *Reader) Close() error { return nil }

func confirm(line func(string) (string, error), label string, def bool) (bool, error) {
	hint := " [y/N]: "
	if def {
		hint = " [Y/n]: "
	}
	for {
		answer, err := line(label + hint)
		if err != nil {
			return false, err
		}
		switch strings.ToLower(answer) {
		case "":
			return def, nil
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
	}
}

// Required re-asks until a non-empty answer is given.
func Required(p Prompter, label string) (string, error) {
	for {
		v, err := p.Line(label)
		if err != nil {
			return "", err
		}
		if v != "" {
			return v, nil
		}
	}
}
