package cli

// This file contains artifact management functionality for saving the
// evidence, cycle profile, metrics and built executable of a run to the
// history directory.

import (
	"crypto/sha256"
	"encoding/base32"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/acarl005/stripansi"

	"github.com/tubegrade/tubegrade/cycleprof"
	"github.com/tubegrade/tubegrade/model"
	"github.com/tubegrade/tubegrade/outcome"
)

const (
	evidenceFile = "evidence.txt"
	metricsFile  = "metrics.prom"
)

// registerArtifact adds file (relative to runDir) to the history if it
// exists.
func (a *App) registerArtifact(runDir string, h *model.History, t model.ArtifactType, file string) {
	info, err := os.Stat(filepath.Join(runDir, file))
	if err != nil {
		a.logger.Warn().Err(err).Str("file", file).Msg("Artifact missing")
		return
	}
	h.Artifacts = append(h.Artifacts, model.Artifact{
		Type: t,
		Size: uint64(info.Size()),
		File: file,
	})
	a.logger.Debug().Str("file", file).Stringer("type", t).Msg("Registered artifact")
}

// writeEvidence stores the evidence of every non-passing outcome with
// terminal escapes removed.
func writeEvidence(path string, outcomes []outcome.Outcome) (bool, error) {
	var b strings.Builder
	for _, o := range outcomes {
		if o.Passed() {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "=== %s (%s)\n", o.Name, o.Verdict.Status)
		for _, line := range o.Verdict.Evidence {
			b.WriteString(stripansi.Strip(line))
			b.WriteString("\n")
		}
	}
	if b.Len() == 0 {
		return false, nil
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return false, fmt.Errorf("failed to write evidence: %w", err)
	}
	return true, nil
}

func (a *App) saveArtifacts(runDir string, h *model.History, rec runRecord) {
	if ok, err := writeEvidence(filepath.Join(runDir, evidenceFile), rec.outcomes); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to save evidence")
	} else if ok {
		a.registerArtifact(runDir, h, model.ArtifactTypeEvidence, evidenceFile)
	}

	if rec.cycles != nil && rec.cycles.Len() > 0 {
		if _, err := rec.cycles.WriteFile(runDir); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to save cycle profile")
		} else {
			a.registerArtifact(runDir, h, model.ArtifactTypeCycleProfile, cycleprof.FileName)
		}
	}

	if rec.metrics != nil {
		if err := rec.metrics.writeFile(filepath.Join(runDir, metricsFile)); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to save metrics")
		} else {
			a.registerArtifact(runDir, h, model.ArtifactTypeMetrics, metricsFile)
		}
	}

	if rec.executable != "" {
		if err := a.saveExecutable(runDir, h, rec.executable); err != nil {
			a.logger.Warn().Err(err).Str("file", rec.executable).Msg("Failed to save executable")
		}
	}
}

// saveExecutable archives the built compiler under a content hash, so a
// run can be reproduced after the submission changed.
func (a *App) saveExecutable(runDir string, h *model.History, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	hashBytes := sha256.Sum256(data)
	hash := strings.ToLower(base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(hashBytes[:]))
	binaryFilename := hash + "." + filepath.Base(path) + ".binary"

	if err := os.WriteFile(filepath.Join(runDir, binaryFilename), data, 0o755); err != nil {
		return err
	}
	h.Artifacts = append(h.Artifacts, model.Artifact{
		Type: model.ArtifactTypeExecutable,
		Size: uint64(len(data)),
		File: binaryFilename,
	})
	a.logger.Debug().Str("hash", hash).Str("dest", binaryFilename).Msg("Saved executable")
	return nil
}
