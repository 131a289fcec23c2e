package cli

// This file contains the setup checks run before any test case: required
// submission files and building the compiler under test with make.

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tubegrade/tubegrade/config"
	"github.com/tubegrade/tubegrade/oracle"
	"github.com/tubegrade/tubegrade/outcome"
	"github.com/tubegrade/tubegrade/runner"
)

const (
	neededFilesCheck = "has_needed_files"
	makeCheck        = "make_worked"
)

func setupPassed(name string) outcome.Outcome {
	return outcome.Outcome{
		Name:    name,
		Verdict: oracle.Verdict{Status: oracle.Pass, Reason: "Passed", Evidence: []string{"Passed"}},
	}
}

func setupFailed(name string, evidence []string, reason string) outcome.Outcome {
	return outcome.Outcome{
		Name: name,
		Verdict: oracle.Verdict{
			Status:   oracle.Fail,
			Reason:   reason,
			Evidence: append(evidence, reason),
		},
	}
}

// checkNeededFiles verifies the files every submission must contain.
func (a *App) checkNeededFiles(cfg config.Config) outcome.Outcome {
	for _, name := range cfg.NeededFiles {
		if _, err := os.Stat(name); err != nil {
			a.logger.Debug().Err(err).Str("file", name).Msg("Needed file missing")
			return setupFailed(neededFilesCheck, nil, fmt.Sprintf("Failed (%s doesn't exist)", name))
		}
	}

	if cfg.ReadmeGlob != "" {
		readmes, err := filepath.Glob(cfg.ReadmeGlob)
		if err != nil {
			return setupFailed(neededFilesCheck, nil, fmt.Sprintf("Failed (invalid README pattern %q)", cfg.ReadmeGlob))
		}
		switch {
		case len(readmes) == 0:
			return setupFailed(neededFilesCheck, nil, "Failed (README file doesn't exist)")
		case len(readmes) > 1:
			return setupFailed(neededFilesCheck,
				[]string{"Found: " + strings.Join(readmes, ", ")},
				"Failed (Only one README file allowed)")
		}
	}

	return setupPassed(neededFilesCheck)
}

// makeExecutable runs `make clean`, removes any stale executable and builds
// it again with `make <executable>`.
func (a *App) makeExecutable(ctx context.Context, run oracle.Runner, cfg config.Config) outcome.Outcome {
	clean := runner.Command{Path: "make", Args: []string{"clean"}, Timeout: cfg.MakeTimeout}
	if res, err := run.Run(ctx, clean); err != nil || res.Failed() {
		a.logger.Debug().Err(err).Int("exit_code", res.ExitCode).Msg("make clean failed, continuing")
	}

	if err := os.Remove(cfg.Executable); err != nil && !errors.Is(err, os.ErrNotExist) {
		a.logger.Warn().Err(err).Str("path", cfg.Executable).Msg("Failed to remove old executable")
	}

	build := runner.Command{Path: "make", Args: []string{cfg.Executable}, Timeout: cfg.MakeTimeout}
	a.logger.Info().Str("target", cfg.Executable).Msg("Building submission")
	res, err := run.Run(ctx, build)
	evidence := []string{"Command: " + build.String()}
	if res.Output != "" {
		evidence = append(evidence, strings.TrimRight(res.Output, "\n"))
	}
	if err != nil {
		if errors.Is(err, runner.ErrTimedOut) {
			evidence = append(evidence, fmt.Sprintf("Process took longer than %s. Killing.", cfg.MakeTimeout))
		}
		return setupFailed(makeCheck, evidence, "Failed (make failed)")
	}
	if res.Failed() {
		return setupFailed(makeCheck, evidence, "Failed (make failed)")
	}

	if _, err := os.Stat(cfg.Executable); err != nil {
		return setupFailed(makeCheck, evidence, fmt.Sprintf("Failed (make did not create %s)", cfg.Executable))
	}
	return setupPassed(makeCheck)
}
