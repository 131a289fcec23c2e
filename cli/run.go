package cli

// This file contains the run command: setup checks, test evaluation,
// grading, reporting and recording of a single grading run.

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/tubegrade/tubegrade/config"
	"github.com/tubegrade/tubegrade/cycleprof"
	"github.com/tubegrade/tubegrade/grade"
	"github.com/tubegrade/tubegrade/model"
	"github.com/tubegrade/tubegrade/oracle"
	"github.com/tubegrade/tubegrade/outcome"
	"github.com/tubegrade/tubegrade/runner"
	"github.com/tubegrade/tubegrade/suite"
)

// runOptions are the per-invocation settings that are not part of the
// configuration file.
type runOptions struct {
	files           []string
	extra           bool
	machine         bool
	verboseEvidence bool
	color           bool
	metricsFile     string
	noHistory       bool
	args            []string
}

func (a *App) run(ctx *cli.Context) error {
	cfg, err := a.loadConfig(ctx)
	if err != nil {
		return err
	}

	files := ctx.Args().Slice()
	if cfg.WorkDir != "." {
		if files, err = resolveFiles(files); err != nil {
			return err
		}
		a.logger.Debug().Str("dir", cfg.WorkDir).Msg("Changing to submission directory")
		if err := os.Chdir(cfg.WorkDir); err != nil {
			return fmt.Errorf("failed to enter submission directory: %w", err)
		}
		cfg.WorkDir = "."
	}

	color, err := resolveColor(ctx.String("color"), a.out)
	if err != nil {
		return err
	}

	runCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt)
	defer stop()

	code, err := a.grade(runCtx, cfg, runOptions{
		files:           files,
		extra:           ctx.Bool("extra"),
		machine:         ctx.Bool("machine"),
		verboseEvidence: ctx.Bool("verbose-evidence"),
		color:           color,
		metricsFile:     ctx.String("metrics-file"),
		noHistory:       ctx.Bool("no-history"),
		args:            os.Args,
	})
	if err != nil {
		return err
	}
	if code != 0 {
		return cli.Exit("", code)
	}
	return nil
}

// loadConfig merges the configuration file with the command line flags.
func (a *App) loadConfig(ctx *cli.Context) (config.Config, error) {
	cfg, err := config.Load(ctx.String("config"))
	if err != nil {
		return config.Config{}, err
	}

	if ctx.IsSet("dir") {
		cfg.WorkDir = ctx.String("dir")
	}
	if ctx.Bool("ir") {
		cfg.IR = true
	}
	if ctx.Bool("no-final") {
		cfg.Final = false
	}
	if ctx.IsSet("optimize") {
		cfg.Optimize = ctx.Bool("optimize")
	}
	if ctx.IsSet("reference-over-budget") {
		cfg.ReferenceOverBudget = oracle.OverBudgetPolicy(ctx.String("reference-over-budget"))
	}
	if ctx.IsSet("timeout") {
		cfg.TestTimeout = ctx.Duration("timeout")
	}

	config.Normalize(&cfg)
	if err := config.Validate(&cfg); err != nil {
		return config.Config{}, err
	}

	a.logger.Debug().
		Str("executable", cfg.Executable).
		Str("reference", cfg.Reference).
		Bool("ir", cfg.IR).
		Bool("final", cfg.Final).
		Bool("optimize", cfg.Optimize).
		Msg("Loaded configuration")
	return cfg, nil
}

// submissionPath makes sure the built executable is run from the
// submission directory rather than looked up in PATH.
func submissionPath(executable string) string {
	if filepath.IsAbs(executable) || strings.ContainsRune(executable, filepath.Separator) {
		return executable
	}
	return "." + string(filepath.Separator) + executable
}

// resolveFiles makes test files named on the command line absolute, so
// they keep pointing at the same files after entering the submission
// directory.
func resolveFiles(files []string) ([]string, error) {
	resolved := make([]string, 0, len(files))
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return nil, fmt.Errorf("test file %s: %w", f, err)
		}
		resolved = append(resolved, abs)
	}
	return resolved, nil
}

// uniquePaths drops repeated paths, keeping each at its first position.
func uniquePaths(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	unique := make([]string, 0, len(paths))
	for _, p := range paths {
		p = filepath.Clean(p)
		if seen[p] {
			continue
		}
		seen[p] = true
		unique = append(unique, p)
	}
	return unique
}

func isExtra(path string) bool {
	return strings.HasPrefix(filepath.Base(path), string(suite.CategoryExtra))
}

// buildCases discovers the test programs and expands them into one test
// case per enabled stage, IR stage first.
func buildCases(cfg config.Config, opts runOptions) ([]suite.TestCase, error) {
	var paths []string
	if len(opts.files) > 0 {
		for _, f := range opts.files {
			if _, err := os.Stat(f); err != nil {
				return nil, fmt.Errorf("test file %s: %w", f, err)
			}
		}
		paths = uniquePaths(opts.files)
	} else {
		globs := cfg.Tests
		if opts.extra {
			globs = append(slices.Clone(cfg.Tests), cfg.Extra...)
		}
		var err error
		if paths, err = suite.Discover(globs); err != nil {
			return nil, err
		}
	}

	var stages []suite.Stage
	if cfg.IR {
		stages = append(stages, suite.StageIR)
	}
	if cfg.Final {
		stages = append(stages, suite.StageFinal)
	}

	// Consecutive paths sharing the same flags are built together so the
	// discovery order survives.
	var cases []suite.TestCase
	for _, stage := range stages {
		for start := 0; start < len(paths); {
			extra := isExtra(paths[start])
			end := start + 1
			for end < len(paths) && isExtra(paths[end]) == extra {
				end++
			}
			var flags []string
			if extra {
				flags = cfg.ExtraFlags
			}
			cases = append(cases, suite.Build(paths[start:end], stage, flags...)...)
			start = end
		}
	}
	return cases, nil
}

// grade performs one grading run in the current directory and returns the
// process exit code. Errors are reserved for configuration problems.
func (a *App) grade(ctx context.Context, cfg config.Config, opts runOptions) (int, error) {
	start := time.Now()
	runID := uuid.NewString()
	logger := a.logger.With().Str("run", runID[:8]).Logger()

	rp := newReporter(a.out, opts.color, logger)
	metrics := newRunMetrics(runID)
	cycles := cycleprof.New(start)
	run := runner.New(logger)
	agg := outcome.New()

	if !opts.machine {
		rp.start()
	}

	setupOK := true
	for _, o := range []outcome.Outcome{
		a.checkNeededFiles(cfg),
		a.makeExecutable(ctx, run, cfg),
	} {
		if err := agg.Add(o); err != nil {
			return 1, err
		}
		metrics.recordSetup(o.Name, o.Verdict)
		if !o.Passed() {
			setupOK = false
			logger.Warn().Str("check", o.Name).Str("reason", o.Verdict.Reason).Msg("Setup check failed")
		}
	}

	if setupOK {
		cases, err := buildCases(cfg, opts)
		if err != nil {
			return 1, err
		}
		if len(cases) == 0 {
			logger.Warn().Strs("globs", cfg.Tests).Msg("No test files found")
		}

		o := oracle.New(logger, run, oracle.Config{
			Reference:           cfg.Reference,
			Submission:          submissionPath(cfg.Executable),
			Engine:              cfg.Engine,
			IREngine:            cfg.IREngine,
			WorkDir:             cfg.WorkDir,
			Timeout:             cfg.TestTimeout,
			Optimize:            cfg.Optimize,
			OptimizeSubmission:  cfg.OptimizeSubmission,
			CycleBudget:         cfg.Optimize,
			ReferenceOverBudget: cfg.ReferenceOverBudget,
		})
		for i, tc := range cases {
			if err := ctx.Err(); err != nil {
				return 1, fmt.Errorf("grading interrupted after %d of %d tests: %w", i, len(cases), err)
			}
			v := o.Evaluate(ctx, tc)
			if err := agg.Add(outcome.Outcome{Name: tc.Name, Verdict: v}); err != nil {
				return 1, err
			}
			metrics.recordTest(tc, v)
			cycles.Add(outcome.Outcome{Name: tc.Name, Verdict: v})
		}
	}

	report, gradeErr := a.calculateGrade(cfg, opts, agg, setupOK)
	graded := gradeErr == nil

	exitCode := 0
	if !agg.AllPassed() {
		exitCode = 1
	}
	if gradeErr != nil && !errors.Is(gradeErr, errPartialRun) {
		logger.Error().Err(gradeErr).Msg("Rubric does not fit the test suite; grade is not reliable")
		exitCode = 1
	}

	if opts.machine {
		rp.machine(agg, report.Total)
	} else {
		rp.summary(agg)
		if graded {
			rp.gradeTable(report)
		} else {
			rp.println("Grade not calculated: " + gradeErr.Error())
		}
		if opts.verboseEvidence {
			rp.allEvidence(agg)
		}
		rp.verdict(agg)
	}

	duration := time.Since(start)
	metrics.recordRun(start, duration, report.Total, report.Possible)
	if opts.metricsFile != "" {
		if err := metrics.writeFile(opts.metricsFile); err != nil {
			logger.Warn().Err(err).Msg("Failed to write metrics file")
		}
	}

	if !opts.noHistory {
		h := model.History{
			ID:        runID,
			Timestamp: start,
			Args:      opts.args,
			ExitCode:  exitCode,
			Duration:  duration,
			Modes: model.Modes{
				IR:       cfg.IR,
				Final:    cfg.Final,
				Optimize: cfg.Optimize,
				Extra:    opts.extra,
			},
			Outcomes: historyOutcomes(agg.Outcomes()),
		}
		if wd, err := os.Getwd(); err == nil {
			h.WorkDir = wd
		}
		if graded {
			h.Grade = &model.Grade{Earned: report.Total, Possible: report.Possible}
		}
		rec := runRecord{history: h, outcomes: agg.Outcomes(), cycles: cycles, metrics: metrics}
		if setupOK {
			rec.executable = cfg.Executable
		}
		if _, err := a.recordRun(".", rec); err != nil {
			logger.Warn().Err(err).Msg("Failed to record run in history")
		}
	}

	tally := agg.Tally()
	logger.Debug().
		Int("passed", tally.Passed).
		Int("failed", tally.Failed).
		Int("faults", tally.Faults).
		Dur("duration", duration).
		Msg("Grading run finished")
	return exitCode, nil
}

var errPartialRun = errors.New("only some test files were run")

// calculateGrade applies the rubric. A failed setup scores zero without
// consulting the rubric; a run restricted to explicit files is only graded
// when every criterion still matches something.
func (a *App) calculateGrade(cfg config.Config, opts runOptions, agg *outcome.Aggregator, setupOK bool) (grade.Report, error) {
	if !setupOK {
		return grade.Report{Possible: cfg.Rubric.Possible()}, nil
	}
	report, err := grade.Calculate(cfg.Rubric, agg.PassedByName())
	if err != nil {
		if len(opts.files) > 0 && errors.Is(err, grade.ErrEmptyGroup) {
			return grade.Report{Possible: cfg.Rubric.Possible()}, fmt.Errorf("%w (%v)", errPartialRun, err)
		}
		return grade.Report{Possible: cfg.Rubric.Possible()}, err
	}
	return report, nil
}
