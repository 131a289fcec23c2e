package cli

// This file contains the list command for displaying previous grading runs.

import (
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/tubegrade/tubegrade/grade"
	"github.com/tubegrade/tubegrade/history"
)

func (a *App) list(ctx *cli.Context) error {
	limit := ctx.Int("limit")
	root := history.Root(ctx.String("dir"))

	historyEntries, err := history.LoadEntries(a.logger, root)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}

	if len(historyEntries) == 0 {
		fmt.Fprintln(a.out, "No grading runs found")
		fmt.Fprintf(a.out, "Runs are saved to %s/history/<timestamp>-<id>/\n", root)
		return nil
	}

	displayRuns := historyEntries
	if limit > 0 && limit < len(displayRuns) {
		displayRuns = displayRuns[:limit]
	}

	fmt.Fprintf(a.out, "\n=== History (%d total) ===\n\n", len(historyEntries))

	for _, entry := range displayRuns {
		h := entry.History
		timestamp := h.Timestamp.Format("2006-01-02 15:04:05")
		duration := h.Duration.Round(time.Millisecond)

		status := "✓"
		if h.ExitCode != 0 {
			status = "✗"
		}

		shortID := h.ID
		if len(shortID) > 8 {
			shortID = shortID[:8]
		}

		gradeStr := "n/a"
		if h.Grade != nil {
			gradeStr = fmt.Sprintf("%s/%s", grade.Format(h.Grade.Earned), grade.Format(h.Grade.Possible))
		}

		passed := 0
		for _, o := range h.Outcomes {
			if o.Passed() {
				passed++
			}
		}

		fmt.Fprintf(a.out, "%s  %s  [%s]  grade=%s  passed=%d/%d  id=%s\n",
			status, timestamp, duration, gradeStr, passed, len(h.Outcomes), shortID)
		if len(h.Args) > 1 {
			fmt.Fprintf(a.out, "   Args: %s\n", strings.Join(h.Args[1:], " "))
		}
		if h.WorkDir != "" {
			fmt.Fprintf(a.out, "   Path: %s\n", h.WorkDir)
		}
		if h.Git != nil && h.Git.Commit != "" {
			shortCommit := h.Git.Commit
			if len(shortCommit) > 8 {
				shortCommit = shortCommit[:8]
			}
			fmt.Fprintf(a.out, "   Commit: %s", shortCommit)
			if h.Git.Branch != "" {
				fmt.Fprintf(a.out, " (%s)", h.Git.Branch)
			}
			fmt.Fprintln(a.out)
		}
		for _, artifact := range h.Artifacts {
			fmt.Fprintf(a.out, "   %s: %s (%.1f KB)\n", artifact.Type, artifact.File, float64(artifact.Size)/1024)
		}
		fmt.Fprintf(a.out, "   %s\n", entry.FullPath)
		fmt.Fprintln(a.out)
	}

	fmt.Fprintln(a.out, "\nView a run: tubegrade view <ID>")

	return nil
}
