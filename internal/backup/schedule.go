package backup

import (
	"context"
	"fmt"
	"strings"

	"devsetup/internal/logger"
	"devsetup/internal/runner"
)

// cronMarker tags the crontab line owned by devsetup so it can be replaced.
const cronMarker = "# devsetup-backup"

// Schedule installs (or replaces) the crontab line that runs command on the
// given five-field cron expression. An empty expr removes the line.
func Schedule(ctx context.Context, r runner.Runner, expr, command string) error {
	expr = strings.TrimSpace(expr)
	if expr != "" && len(strings.Fields(expr)) != 5 {
		return fmt.Errorf("invalid cron expression %q: expected 5 fields", expr)
	}

	current, err := r.Run(ctx, runner.Command("crontab", "-l"))
	if err != nil {
		// crontab -l exits non-zero when the user has no crontab yet.
		if !strings.Contains(strings.ToLower(string(current)+err.Error()), "no crontab") {
			return fmt.Errorf("read crontab: %w", err)
		}
		current = nil
	}

	body := MergeCrontab(string(current), expr, command)
	cmd := runner.Command("crontab", "-")
	cmd.Stdin = strings.NewReader(body)
	if _, err := r.Run(ctx, cmd); err != nil {
		return fmt.Errorf("install crontab: %w", err)
	}

	if expr == "" {
		logger.Info("[INFO] Removed scheduled backup\n")
	} else {
		logger.Info("[INFO] Scheduled backup: %s\n", expr)
	}
	return nil
}

// MergeCrontab drops any existing devsetup line from crontab and, when expr is
// set, appends a fresh one.
func MergeCrontab(crontab, expr, command string) string {
	var lines []string
	for _, line := range strings.Split(crontab, "\n") {
		if strings.Contains(line, cronMarker) {
			continue
		}
		lines = append(lines, line)
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	if expr != "" {
		lines = append(lines, fmt.Sprintf("%s %s %s", expr, command, cronMarker))
	}
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}
