package cli

// This file contains the view command for displaying grading runs from
// history.

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/tubegrade/tubegrade/grade"
	"github.com/tubegrade/tubegrade/history"
	"github.com/tubegrade/tubegrade/model"
)

func removeFirstDashDash(in []string) []string {
	if len(in) > 0 && in[0] == "--" {
		return in[1:]
	}
	return in
}

func parseViewArgs(in []string) (idArg string, pprofArgs []string) {
	if len(in) == 0 {
		return "0", nil
	}

	// If first arg is "--", use default "0" and rest are pprof args
	if in[0] == "--" {
		return "0", in[1:]
	}

	// A negative index is "-" followed by only digits (e.g. "-1"); anything
	// else starting with "-" is a pprof flag (e.g. "-top", "-http=:8080").
	if len(in[0]) > 1 && in[0][0] == '-' {
		if _, err := strconv.ParseInt(in[0], 10, 64); err != nil {
			return "0", in
		}
	}

	return in[0], removeFirstDashDash(in[1:])
}

func (a *App) view(ctx *cli.Context) error {
	arg, pprofArgs := parseViewArgs(ctx.Args().Slice())

	historyEntries, err := history.LoadEntries(a.logger, history.Root("."))
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}

	entry, err := history.Select(historyEntries, arg)
	if err != nil {
		return err
	}

	return a.displayHistoryEntry(entry, pprofArgs)
}

func (a *App) displayHistoryEntry(entry history.Entry, pprofArgs []string) error {
	h := entry.History

	shortID := h.ID
	if len(shortID) > 8 {
		shortID = shortID[:8]
	}
	fmt.Fprintf(a.out, "=== Grading Run: %s ===\n", shortID)
	fmt.Fprintf(a.out, "Time: %s\n", h.Timestamp.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(a.out, "Duration: %s\n", h.Duration)
	fmt.Fprintf(a.out, "Exit Code: %d\n", h.ExitCode)
	if h.WorkDir != "" {
		fmt.Fprintf(a.out, "Working Dir: %s\n", h.WorkDir)
	}
	if h.Git != nil && len(h.Git.Commit) >= 8 {
		fmt.Fprintf(a.out, "Git Commit: %s", h.Git.Commit[:8])
		if h.Git.Branch != "" {
			fmt.Fprintf(a.out, " (%s)", h.Git.Branch)
		}
		fmt.Fprintln(a.out)
	}
	if h.Grade != nil {
		fmt.Fprintf(a.out, "Grade: %s of %s\n", grade.Format(h.Grade.Earned), grade.Format(h.Grade.Possible))
	}
	fmt.Fprintln(a.out)

	if artifact, ok := h.Find(model.ArtifactTypeCycleProfile); ok {
		return a.displayProfile(entry.FullPath, artifact, pprofArgs)
	}

	if artifact, ok := h.Find(model.ArtifactTypeEvidence); ok {
		return a.displayEvidence(entry.FullPath, artifact)
	}

	a.displayOutcomes(h)
	fmt.Fprintf(a.out, "History directory: %s\n", entry.FullPath)
	return nil
}

func (a *App) displayProfile(runDir string, artifact model.Artifact, pprofArgs []string) error {
	profilePath := filepath.Join(runDir, artifact.File)
	fmt.Fprintf(a.out, "Cycle profile: %s (%.1f KB)\n", profilePath, float64(artifact.Size)/1024)

	args := []string{"tool", "pprof"}
	args = append(args, pprofArgs...)
	args = append(args, profilePath)

	cmd := exec.Command("go", args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = a.out
	cmd.Stderr = os.Stderr
	cmd.Dir = runDir

	return cmd.Run()
}

func (a *App) displayEvidence(runDir string, artifact model.Artifact) error {
	evidencePath := filepath.Join(runDir, artifact.File)
	fmt.Fprintf(a.out, "Evidence of non-passing tests: %s\n", evidencePath)
	data, err := os.ReadFile(evidencePath)
	if err != nil {
		return fmt.Errorf("failed to read evidence: %w", err)
	}
	fmt.Fprintln(a.out, string(data))
	return nil
}

func (a *App) displayOutcomes(h model.History) {
	for _, o := range h.Outcomes {
		fmt.Fprintf(a.out, "%-40s %s\n", o.Name, o.Reason)
	}
	fmt.Fprintln(a.out)
}
