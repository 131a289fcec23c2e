package cli

// This file contains run recording functionality for saving grading run
// metadata and artifacts to the history directory.

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/tubegrade/tubegrade/cycleprof"
	"github.com/tubegrade/tubegrade/history"
	"github.com/tubegrade/tubegrade/model"
	"github.com/tubegrade/tubegrade/outcome"
)

// runRecord is everything a finished run leaves behind.
type runRecord struct {
	history    model.History
	outcomes   []outcome.Outcome
	cycles     *cycleprof.Builder
	metrics    *runMetrics
	executable string
}

func historyOutcomes(outcomes []outcome.Outcome) []model.Outcome {
	out := make([]model.Outcome, 0, len(outcomes))
	for _, o := range outcomes {
		rec := model.Outcome{
			Name:   o.Name,
			Status: o.Verdict.Status.String(),
			Reason: o.Verdict.Reason,
		}
		if c := o.Verdict.Cycles; c != nil {
			rec.ReferenceCycles = c.Reference
			rec.SubmissionCycles = c.Submission
			rec.BudgetCycles = c.Budget
		}
		out = append(out, rec)
	}
	return out
}

// recordRun writes the run into <root>/history/<timestamp>-<id> and returns
// that directory.
func (a *App) recordRun(dir string, rec runRecord) (string, error) {
	root := history.Root(dir)
	h := rec.history

	if commit, branch, err := a.getGitInfo(dir); err == nil {
		h.Git = &model.Git{
			Commit: commit,
			Branch: branch,
			Repo:   filepath.Base(filepath.Dir(root)),
		}
	} else {
		a.logger.Debug().Err(err).Msg("No git information for this run")
	}

	runDir := history.RunDir(root, h)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create run directory: %w", err)
	}

	a.saveArtifacts(runDir, &h, rec)

	if err := history.Save(runDir, h); err != nil {
		return "", err
	}

	a.logger.Debug().Str("dir", runDir).Str("id", h.ID).Msg("Recorded grading run")
	return runDir, nil
}
