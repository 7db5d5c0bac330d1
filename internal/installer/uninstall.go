package installer

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"devsetup/internal/config"
	"devsetup/internal/logger"
	"devsetup/internal/runner"
	"devsetup/internal/state"
)

// PruneTools uninstalls GitHub and URL tools that are recorded in the state
// but no longer listed in the manifest. It returns the names removed.
// Package-manager packages are never removed.
func (in *Installer) PruneTools(ctx context.Context, tools []config.Tool) []string {
	wanted := make(map[string]bool)
	for _, t := range tools {
		wanted[state.Key(t.Source, t.Name)] = true
	}

	var removed []string
	for _, p := range in.Tools() {
		if wanted[state.Key(p.Manager, p.Name)] {
			continue
		}
		logger.Warn("[WARN] %s removed from config. Uninstalling...\n", p.Name)
		if in.uninstallTool(ctx, p) {
			in.st.Forget(p.Manager, p.Name)
			removed = append(removed, p.Name)
		} else {
			logger.Warn("[WARN] Failed to uninstall %s completely. Manual cleanup may be required.\n", p.Name)
		}
	}
	return removed
}

// uninstallTool removes the installed binary, or the Debian package when the
// tool was installed through dpkg.
func (in *Installer) uninstallTool(ctx context.Context, p state.PackageState) bool {
	logger.Info("[INFO] Uninstalling %s...\n", p.Name)

	if p.InstallPath == "" {
		if !in.dpkgInstalled(ctx, p.Name) {
			return true
		}
		if _, err := in.run.Run(ctx, in.sys("dpkg", "-r", p.Name)); err != nil {
			logger.Error("[ERROR] dpkg -r %s failed: %v\n", p.Name, err)
			return false
		}
		return true
	}

	if err := os.Remove(p.InstallPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Error("[ERROR] Failed to remove %s: %v\n", p.InstallPath, err)
		return false
	}
	logger.Info("[INFO] Successfully removed binary %s\n", p.InstallPath)
	return true
}

// dpkgInstalled reports whether dpkg knows the package.
func (in *Installer) dpkgInstalled(ctx context.Context, name string) bool {
	_, err := in.run.Run(ctx, runner.Command("dpkg", "-s", name))
	return err == nil
}
