package installer

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"devsetup/internal/config"
	"devsetup/internal/logger"
	"devsetup/internal/state"
)

// SyncTools installs or upgrades the manifest's tools concurrently, bounded by
// the configured parallelism. A tool is skipped when the state records the
// same version and its binary is still present.
func (in *Installer) SyncTools(ctx context.Context, tools []config.Tool, sum *Summary) {
	logger.Debug("[DEBUG] Starting SyncTools with %d tools\n", len(tools))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(max(in.cfg.Parallel, 1))

	for _, tool := range tools {
		id := tool.Source + ":" + tool.Name
		if in.current(tool) {
			logger.Info("[INFO] %s version %s is current. Skipping.\n", tool.Name, tool.Version)
			sum.skipped(id)
			continue
		}

		eg.Go(func() error {
			logger.Debug("[DEBUG] SyncTools: installing %s@%s from %s\n", tool.Name, tool.Version, tool.Source)
			installPath, err := in.installTool(egCtx, tool)
			if err != nil {
				// One failing tool must not cancel the others.
				logger.Error("[ERROR] Failed to install %s@%s: %v\n", tool.Name, tool.Version, err)
				sum.failed(id)
				return nil
			}
			logger.Info("[INFO] Installed %s@%s to %s\n", tool.Name, tool.Version, installPath)
			in.st.RecordPackage(state.PackageState{
				Manager:     tool.Source,
				Name:        tool.Name,
				Version:     tool.Version,
				InstallPath: installPath,
			})
			sum.installed(id)
			return nil
		})
	}

	_ = eg.Wait()
	logger.Debug("[DEBUG] Finished SyncTools\n")
}

// current reports whether tool is installed at the wanted version.
func (in *Installer) current(tool config.Tool) bool {
	if !in.st.Installed(tool.Source, tool.Name, tool.Version) {
		return false
	}
	for _, p := range in.st.PackagesFor(tool.Source) {
		if p.Name != tool.Name {
			continue
		}
		if p.InstallPath == "" {
			return true
		}
		_, err := os.Stat(p.InstallPath)
		return err == nil
	}
	return false
}

// installTool fetches one tool into a private work directory and installs it.
func (in *Installer) installTool(ctx context.Context, tool config.Tool) (string, error) {
	work, err := os.MkdirTemp("", "devsetup-"+tool.Name+"-")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(work)

	switch tool.Source {
	case "github":
		return in.installFromGitHub(ctx, tool, work)
	case "url":
		return in.installFromURL(ctx, tool, work)
	default:
		return "", fmt.Errorf("unsupported source %q for %s", tool.Source, tool.Name)
	}
}

// installFromURL downloads tool.URL. Archives are extracted, Debian packages
// go through dpkg, anything else is treated as the binary itself.
func (in *Installer) installFromURL(ctx context.Context, tool config.Tool, work string) (string, error) {
	if tool.URL == "" {
		return "", fmt.Errorf("tool %s has source url but no url", tool.Name)
	}
	url := strings.ReplaceAll(tool.URL, "{version}", tool.Version)
	name := path.Base(strings.SplitN(url, "?", 2)[0])
	file := filepath.Join(work, name)
	if err := in.download(ctx, url, file); err != nil {
		return "", err
	}

	switch {
	case IsArchive(name):
		return in.ExtractAndInstall(file, filepath.Join(work, "x"), tool.Name)
	case strings.HasSuffix(strings.ToLower(name), ".deb"):
		if _, err := in.run.Run(ctx, in.sys("dpkg", "-i", file)); err != nil {
			return "", fmt.Errorf("dpkg -i %s: %w", name, err)
		}
		return "", nil
	default:
		return in.installBinary(file, tool.Name)
	}
}

// Tools reports the recorded GitHub and URL tools, for status output.
func (in *Installer) Tools() []state.PackageState {
	return append(in.st.PackagesFor("github"), in.st.PackagesFor("url")...)
}
