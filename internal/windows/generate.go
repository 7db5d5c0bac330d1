// Package windows writes PowerShell scripts and .bat launchers that apply
// registry tweaks, install winget packages and configure WSL on the Windows
// host. Nothing here runs on Windows itself; the user runs the output.
package windows

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/template"

	"github.com/natefinch/atomic"

	"devsetup/internal/config"
	"devsetup/internal/logger"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Script names written into the output directory.
const (
	RegistryScript = "registry-tweaks.ps1"
	AppsScript     = "install-apps.ps1"
	WSLScript      = "wsl-config.ps1"
	Launcher       = "run-setup.bat"
)

var tmpl = template.Must(template.New("windows").Funcs(template.FuncMap{
	"ps":        Quote,
	"regValue":  regValue,
	"wslConfig": wslConfig,
}).ParseFS(templateFS, "templates/*.tmpl"))

// Quote renders s as a PowerShell single-quoted literal.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// regValue renders a registry value for Set-ItemProperty: numeric types are
// emitted bare and validated, string types are quoted.
func regValue(t config.RegistryTweak) (string, error) {
	switch t.Type {
	case "DWord":
		if _, err := strconv.ParseUint(t.Value, 0, 32); err != nil {
			return "", fmt.Errorf("%s\\%s: %q is not a DWord", t.Path, t.Name, t.Value)
		}
		return t.Value, nil
	case "QWord":
		if _, err := strconv.ParseUint(t.Value, 0, 64); err != nil {
			return "", fmt.Errorf("%s\\%s: %q is not a QWord", t.Path, t.Name, t.Value)
		}
		return t.Value, nil
	case "String", "ExpandString":
		return Quote(t.Value), nil
	default:
		return "", fmt.Errorf("%s\\%s: unsupported registry type %q", t.Path, t.Name, t.Type)
	}
}

// wslConfig renders the .wslconfig body for the [wsl2] section.
func wslConfig(w config.WSLConfig) string {
	var b strings.Builder
	b.WriteString("[wsl2]\n")
	if w.Memory != "" {
		fmt.Fprintf(&b, "memory=%s\n", w.Memory)
	}
	if w.Processors > 0 {
		fmt.Fprintf(&b, "processors=%d\n", w.Processors)
	}
	if w.Swap != "" {
		fmt.Fprintf(&b, "swap=%s\n", w.Swap)
	}
	return b.String()
}

// Group is a named block of registry tweaks in the generated script.
type Group struct {
	Name   string
	Tweaks []config.RegistryTweak
}

type scriptData struct {
	Groups  []Group
	Apps    []string
	WSL     config.WSLConfig
	Scripts []string
}

// Tweaks resolves the configured presets and custom entries into groups.
func Tweaks(cfg config.Windows) ([]Group, error) {
	var groups []Group
	for _, name := range cfg.Presets {
		tweaks, ok := presets[name]
		if !ok {
			return nil, fmt.Errorf("unknown preset %q (available: %s)", name, strings.Join(PresetNames(), ", "))
		}
		groups = append(groups, Group{Name: name, Tweaks: tweaks})
	}
	if len(cfg.Registry) > 0 {
		groups = append(groups, Group{Name: "custom", Tweaks: cfg.Registry})
	}
	return groups, nil
}

// Generate writes the scripts for cfg and the winget apps into cfg.OutputDir
// and returns the paths written. Scripts with nothing to do are not written.
func Generate(cfg config.Windows, apps []string) ([]string, error) {
	groups, err := Tweaks(cfg)
	if err != nil {
		return nil, err
	}
	data := scriptData{Groups: groups, Apps: apps, WSL: cfg.WSL}

	type job struct {
		name string
		tmpl string
		want bool
	}
	jobs := []job{
		{RegistryScript, "registry.ps1.tmpl", len(groups) > 0},
		{AppsScript, "apps.ps1.tmpl", len(apps) > 0},
		{WSLScript, "wsl.ps1.tmpl", cfg.WSL != (config.WSLConfig{})},
	}

	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("create %s: %w", cfg.OutputDir, err)
	}

	var written []string
	for _, j := range jobs {
		if !j.want {
			logger.Debug("[DEBUG] Nothing to write for %s\n", j.name)
			continue
		}
		path := filepath.Join(cfg.OutputDir, j.name)
		if err := render(path, j.tmpl, data, "\r\n"); err != nil {
			return written, err
		}
		data.Scripts = append(data.Scripts, j.name)
		written = append(written, path)
		logger.Info("[INFO] Wrote %s\n", path)
	}
	if len(data.Scripts) == 0 {
		logger.Warn("[WARN] Nothing configured for Windows; no scripts written\n")
		return nil, nil
	}

	path := filepath.Join(cfg.OutputDir, Launcher)
	if err := render(path, "launcher.bat.tmpl", data, "\r\n"); err != nil {
		return written, err
	}
	written = append(written, path)
	logger.Info("[INFO] Wrote %s; run it from Windows to apply the scripts as administrator\n", path)
	return written, nil
}

// render executes a template and writes it with Windows line endings.
func render(path, name string, data scriptData, eol string) error {
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return fmt.Errorf("render %s: %w", filepath.Base(path), err)
	}
	body := strings.ReplaceAll(buf.String(), "\n", eol)
	if err := atomic.WriteFile(path, strings.NewReader(body)); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
