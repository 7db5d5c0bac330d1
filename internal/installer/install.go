// Package installer provisions the machine from the package manifest: system
// packages through apt, language packages through pip and npm, Homebrew and
// winget packages, and binaries fetched from GitHub releases or plain URLs.
package installer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"devsetup/internal/config"
	"devsetup/internal/logger"
	"devsetup/internal/runner"
	"devsetup/internal/state"
)

// ErrNoNetwork is returned when the connectivity check fails.
var ErrNoNetwork = errors.New("no network connectivity")

// Group names accepted by Run, in the order they are applied.
var Groups = []string{"apt", "pip", "npm", "brew", "winget", "tools"}

// Summary collects per-package outcomes of a run.
type Summary struct {
	mu        sync.Mutex
	Installed []string
	Skipped   []string
	Failed    []string
}

func (s *Summary) add(list *[]string, item string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	*list = append(*list, item)
}

func (s *Summary) installed(item string) { s.add(&s.Installed, item) }
func (s *Summary) skipped(item string)   { s.add(&s.Skipped, item) }
func (s *Summary) failed(item string)    { s.add(&s.Failed, item) }

// Log prints the summary through the logger.
func (s *Summary) Log() {
	s.mu.Lock()
	defer s.mu.Unlock()
	logger.Info("[INFO] Summary: %d installed, %d already present, %d failed\n", len(s.Installed), len(s.Skipped), len(s.Failed))
	if len(s.Failed) > 0 {
		sorted := append([]string(nil), s.Failed...)
		sort.Strings(sorted)
		logger.Warn("[WARN] Failed: %s\n", strings.Join(sorted, ", "))
	}
}

// Installer applies the manifest. Every successful install is recorded in the
// state so later runs skip it.
type Installer struct {
	cfg  config.Installer
	pkgs config.Packages
	run  runner.Runner
	st   *state.State

	client   *http.Client
	apiBase  string
	goos     string
	goarch   string
	lookPath func(string) bool
	delay    time.Duration
}

// New builds an installer that executes commands through r.
func New(cfg config.Installer, pkgs config.Packages, r runner.Runner, st *state.State) *Installer {
	return &Installer{
		cfg:      cfg,
		pkgs:     pkgs,
		run:      r,
		st:       st,
		client:   &http.Client{Timeout: 10 * time.Minute},
		apiBase:  "https://api.github.com",
		goos:     runtime.GOOS,
		goarch:   runtime.GOARCH,
		lookPath: runner.LookPath,
		delay:    time.Duration(cfg.RetryDelaySeconds) * time.Second,
	}
}

// Options select what Run does.
type Options struct {
	Groups    []string // empty means all groups
	Prune     bool     // uninstall tools that left the manifest
	SkipCheck bool     // skip the connectivity check
}

// Run checks connectivity and applies the selected groups.
//
// Groups run in the fixed order of Groups regardless of how they were
// requested; "github" and "url" select the tools group. An empty
// opts.Groups means every group. Packages already recorded in the state are
// skipped, and each success is recorded so the next run skips it.
//
// Individual package failures are reported in the summary and the run goes
// on. A failing critical step (connectivity, apt update) aborts the run with
// an error; the summary collected so far is still returned and logged.
func (in *Installer) Run(ctx context.Context, opts Options) (*Summary, error) {
	groups, err := selectGroups(opts.Groups)
	if err != nil {
		return nil, err
	}

	if !opts.SkipCheck {
		if err := in.CheckNetwork(ctx); err != nil {
			return nil, err
		}
	}

	// Apply each group; only installApt can fail the whole run.
	sum := &Summary{}
	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		logger.Info("[INFO] ==> %s\n", g)
		var err error
		switch g {
		case "apt":
			err = in.installApt(ctx, sum)
		case "pip":
			in.installEach(ctx, "pip", in.pkgs.Pip, "python3", in.pipCmd, sum)
		case "npm":
			in.installEach(ctx, "npm", in.pkgs.Npm, "npm", in.npmCmd, sum)
		case "brew":
			in.installEach(ctx, "brew", in.pkgs.Brew, "brew", brewCmd, sum)
		case "winget":
			in.installEach(ctx, "winget", in.pkgs.Winget, "winget.exe", wingetCmd, sum)
		case "tools":
			// Release binaries download in parallel; pruning runs after them.
			in.SyncTools(ctx, in.pkgs.Tools, sum)
			if opts.Prune {
				in.PruneTools(ctx, in.pkgs.Tools)
			}
		}
		if err != nil {
			sum.Log()
			return sum, err
		}
	}

	sum.Log()
	return sum, nil
}

func selectGroups(requested []string) ([]string, error) {
	if len(requested) == 0 {
		return Groups, nil
	}
	want := make(map[string]bool)
	for _, g := range requested {
		g = strings.ToLower(strings.TrimSpace(g))
		if g == "github" || g == "url" {
			g = "tools"
		}
		found := false
		for _, known := range Groups {
			if g == known {
				found = true
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown package group %q (available: %s)", g, strings.Join(Groups, ", "))
		}
		want[g] = true
	}
	var out []string
	for _, g := range Groups {
		if want[g] {
			out = append(out, g)
		}
	}
	return out, nil
}

// CheckNetwork pings the configured host once.
func (in *Installer) CheckNetwork(ctx context.Context) error {
	host := in.cfg.ConnectivityHost
	logger.Info("[INFO] Checking network connectivity (%s)\n", host)
	if _, err := in.run.Run(ctx, runner.Command("ping", "-c", "1", "-W", "3", host)); err != nil {
		return fmt.Errorf("%w: ping %s failed: %v", ErrNoNetwork, host, err)
	}
	return nil
}

// sys wraps a system package manager command with sudo when enabled.
func (in *Installer) sys(name string, args ...string) runner.Cmd {
	if in.cfg.Sudo() {
		return runner.Command("sudo", append([]string{name}, args...)...)
	}
	return runner.Command(name, args...)
}

func (in *Installer) retry(ctx context.Context, cmd runner.Cmd) error {
	_, err := runner.RunWithRetry(ctx, in.run, in.cfg.Retries, in.delay, cmd)
	return err
}

// installApt refreshes the package index, which must succeed, then installs
// each package. Packages dpkg already knows are recorded and skipped.
func (in *Installer) installApt(ctx context.Context, sum *Summary) error {
	if len(in.pkgs.Apt) == 0 {
		return nil
	}
	if !in.lookPath("apt-get") {
		logger.Warn("[WARN] apt-get not found; skipping %d apt package(s)\n", len(in.pkgs.Apt))
		for _, p := range in.pkgs.Apt {
			sum.failed("apt:" + p)
		}
		return nil
	}

	logger.Info("[INFO] Updating package index\n")
	if err := in.retry(ctx, in.sys("apt-get", "update")); err != nil {
		return fmt.Errorf("apt-get update: %w", err)
	}

	for _, pkg := range in.pkgs.Apt {
		if in.st.Installed("apt", pkg, "") {
			logger.Info("[INFO] %s already installed. Skipping.\n", pkg)
			sum.skipped("apt:" + pkg)
			continue
		}
		if in.dpkgInstalled(ctx, pkg) {
			logger.Info("[INFO] %s already installed. Skipping.\n", pkg)
			in.st.RecordPackage(state.PackageState{Manager: "apt", Name: pkg})
			sum.skipped("apt:" + pkg)
			continue
		}

		cmd := in.sys("apt-get", "install", "-y", pkg)
		cmd.Env = []string{"DEBIAN_FRONTEND=noninteractive"}
		if err := in.retry(ctx, cmd); err != nil {
			logger.Warn("[WARN] Failed to install %s: %v\n", pkg, err)
			sum.failed("apt:" + pkg)
			continue
		}
		logger.Info("[INFO] Installed %s\n", pkg)
		in.st.RecordPackage(state.PackageState{Manager: "apt", Name: pkg})
		sum.installed("apt:" + pkg)
	}
	return nil
}

// installEach installs packages one by one through a manager whose binary must
// be on PATH. Failures are logged and the loop continues.
func (in *Installer) installEach(ctx context.Context, manager string, pkgs []string, binary string, build func(string) runner.Cmd, sum *Summary) {
	if len(pkgs) == 0 {
		return
	}
	if !in.lookPath(binary) {
		logger.Warn("[WARN] %s not found; skipping %d %s package(s)\n", binary, len(pkgs), manager)
		for _, p := range pkgs {
			sum.failed(manager + ":" + p)
		}
		return
	}

	for _, pkg := range pkgs {
		id := manager + ":" + pkg
		if in.st.Installed(manager, pkg, "") {
			logger.Info("[INFO] %s already installed. Skipping.\n", id)
			sum.skipped(id)
			continue
		}
		if err := in.retry(ctx, build(pkg)); err != nil {
			logger.Warn("[WARN] Failed to install %s: %v\n", id, err)
			sum.failed(id)
			continue
		}
		logger.Info("[INFO] Installed %s\n", id)
		in.st.RecordPackage(state.PackageState{Manager: manager, Name: pkg})
		sum.installed(id)
	}
}

func (in *Installer) pipCmd(pkg string) runner.Cmd {
	return runner.Command("python3", "-m", "pip", "install", "--user", "--upgrade", pkg)
}

func (in *Installer) npmCmd(pkg string) runner.Cmd {
	return in.sys("npm", "install", "-g", pkg)
}

func brewCmd(pkg string) runner.Cmd {
	return runner.Command("brew", "install", pkg)
}

// wingetCmd runs the Windows package manager through WSL interop.
func wingetCmd(pkg string) runner.Cmd {
	return runner.Command("winget.exe", "install", "--id", pkg, "--exact", "--silent",
		"--accept-package-agreements", "--accept-source-agreements")
}
