package runner

import (
	"context"
	"io"
	"strings"
	"sync"
)

// Fake records commands instead of executing them. Responses are matched by
// prefix against the rendered command line; the longest matching prefix wins.
// Unmatched commands succeed with empty output.
type Fake struct {
	mu        sync.Mutex
	Calls     []Cmd
	Stdin     map[string]string // rendered command -> captured stdin
	responses map[string]fakeResponse
}

type fakeResponse struct {
	out   string
	err   error
	times int // remaining failures before falling back to success; <0 means always
}

// NewFake returns an empty Fake.
func NewFake() *Fake {
	return &Fake{
		Stdin:     make(map[string]string),
		responses: make(map[string]fakeResponse),
	}
}

// On sets the output and error returned for commands starting with prefix.
func (f *Fake) On(prefix, out string, err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[prefix] = fakeResponse{out: out, err: err, times: -1}
	return f
}

// FailTimes makes commands starting with prefix fail n times, then succeed.
func (f *Fake) FailTimes(prefix string, n int, err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[prefix] = fakeResponse{err: err, times: n}
	return f
}

// Run implements Runner.
func (f *Fake) Run(_ context.Context, cmd Cmd) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Calls = append(f.Calls, cmd)
	line := cmd.String()
	if cmd.Stdin != nil {
		data, _ := io.ReadAll(cmd.Stdin)
		f.Stdin[line] = string(data)
	}

	best := ""
	for prefix := range f.responses {
		if strings.HasPrefix(line, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return nil, nil
	}

	resp := f.responses[best]
	switch {
	case resp.times < 0:
		return []byte(resp.out), resp.err
	case resp.times > 0:
		resp.times--
		f.responses[best] = resp
		return nil, resp.err
	default:
		return []byte(resp.out), nil
	}
}

// Lines returns every recorded command rendered as a string.
func (f *Fake) Lines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	lines := make([]string, 0, len(f.Calls))
	for _, c := range f.Calls {
		lines = append(lines, c.String())
	}
	return lines
}
