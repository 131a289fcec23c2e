// Package oracle decides, for one test program, whether the compiler under
// test agrees with the reference compiler.
//
// Evaluation is a fixed sequence of checks. Each check either lets the
// evaluation continue or ends it with a terminal Verdict:
//
//  1. compile the program with both compilers
//  2. the reference's exit status must match its "error" report
//  3. both compilers must agree on whether the program is erroneous
//  4. both artifacts must exist
//  5. both artifacts are executed on the engine and their output compared,
//     honouring the cycle budget when it is enabled
//
// Artifacts are removed before and after every evaluation, whichever check
// produced the verdict.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tubegrade/tubegrade/cycles"
	"github.com/tubegrade/tubegrade/runner"
	"github.com/tubegrade/tubegrade/suite"
)

const (
	irFlag       = "-ic"
	optimizeFlag = "-O"
	cycleFlag    = "-c"
)

// Runner executes one external command.
type Runner interface {
	Run(ctx context.Context, c runner.Command) (runner.Result, error)
}

// OverBudgetPolicy decides what a reference cycle count above the ceiling
// means.
type OverBudgetPolicy string

const (
	// PolicyFault treats a reference over budget as a misconfigured test.
	PolicyFault OverBudgetPolicy = "fault"
	// PolicyIgnore records the overage in the evidence and carries on.
	PolicyIgnore OverBudgetPolicy = "ignore"
)

// Config describes the tools and the comparison mode.
type Config struct {
	// Reference is the trusted compiler.
	Reference string
	// Submission is the compiler under test.
	Submission string
	// Engine executes final-stage artifacts.
	Engine string
	// IREngine executes IR-stage artifacts.
	IREngine string

	// WorkDir holds the scoped artifacts. Empty means the current directory.
	WorkDir string
	// Timeout bounds every compiler and engine invocation.
	Timeout time.Duration

	// Optimize passes -O to the reference compiler.
	Optimize bool
	// OptimizeSubmission passes -O to the compiler under test as well.
	OptimizeSubmission bool
	// CycleBudget enables the cycle report and ceiling check for the final
	// stage.
	CycleBudget bool
	// ReferenceOverBudget defaults to PolicyFault.
	ReferenceOverBudget OverBudgetPolicy
}

// Oracle evaluates test cases one at a time.
type Oracle struct {
	logger zerolog.Logger
	run    Runner
	cfg    Config
}

// New creates an Oracle.
func New(logger zerolog.Logger, run Runner, cfg Config) *Oracle {
	if cfg.ReferenceOverBudget == "" {
		cfg.ReferenceOverBudget = PolicyFault
	}
	return &Oracle{
		logger: logger,
		run:    run,
		cfg:    cfg,
	}
}

// ArtifactPaths lists every file an evaluation may leave behind.
func (o *Oracle) ArtifactPaths() []string {
	var paths []string
	for _, stage := range []suite.Stage{suite.StageFinal, suite.StageIR} {
		paths = append(paths,
			filepath.Join(o.cfg.WorkDir, "ref"+stage.Extension()),
			filepath.Join(o.cfg.WorkDir, "stu"+stage.Extension()),
		)
	}
	return paths
}

// Evaluate runs the check sequence for tc and returns its Verdict.
func (o *Oracle) Evaluate(ctx context.Context, tc suite.TestCase) (verdict Verdict) {
	e := &evaluation{
		oracle:  o,
		tc:      tc,
		refPath: filepath.Join(o.cfg.WorkDir, "ref"+tc.Stage.Extension()),
		stuPath: filepath.Join(o.cfg.WorkDir, "stu"+tc.Stage.Extension()),
		logger: o.logger.With().
			Str("test", tc.Name).
			Stringer("stage", tc.Stage).
			Logger(),
	}
	e.evidence = []string{"Testing: " + tc.Path}

	o.removeArtifacts()
	defer func() {
		if r := recover(); r != nil {
			verdict = *e.fault(fmt.Sprintf("unexpected panic while testing %s: %v", tc.Path, r))
		}
		o.removeArtifacts()
		e.logVerdict(verdict)
	}()

	steps := []func(context.Context) *Verdict{
		e.compile,
		e.checkReference,
		e.checkErrors,
		e.checkArtifacts,
		e.execute,
	}
	for _, step := range steps {
		if v := step(ctx); v != nil {
			return *v
		}
	}
	return *e.fault("no verdict reached on test " + tc.Path)
}

func (o *Oracle) removeArtifacts() {
	for _, p := range o.ArtifactPaths() {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			o.logger.Warn().Err(err).Str("path", p).Msg("Failed to remove artifact")
		}
	}
}

// evaluation carries the state of one Evaluate call between checks.
type evaluation struct {
	oracle   *Oracle
	tc       suite.TestCase
	logger   zerolog.Logger
	refPath  string
	stuPath  string
	evidence []string

	refCompile runner.Result
	stuCompile runner.Result
	refError   bool
	stuError   bool
}

func (e *evaluation) add(lines ...string) {
	e.evidence = append(e.evidence, lines...)
}

func (e *evaluation) terminal(status Status, reason string) *Verdict {
	e.add(reason)
	return &Verdict{
		Status:   status,
		Reason:   reason,
		Evidence: e.evidence,
	}
}

func (e *evaluation) pass(reason string) *Verdict {
	return e.terminal(Pass, reason)
}

func (e *evaluation) fail(reason string) *Verdict {
	return e.terminal(Fail, reason)
}

func (e *evaluation) fault(message string) *Verdict {
	e.add(
		"",
		"Test Suite or Script is broken:",
		message,
		"Contact instructors so they can fix it (entirely their fault).",
	)
	return e.terminal(InternalFault, "Internal fault ("+message+")")
}

func (e *evaluation) logVerdict(v Verdict) {
	switch v.Status {
	case InternalFault:
		e.logger.Error().Str("reason", v.Reason).Msg("Internal fault: the reference or the test suite is broken, not the submission")
	default:
		e.logger.Debug().Stringer("verdict", v.Status).Str("reason", v.Reason).Msg("Test evaluated")
	}
}

// invoke runs c. Runner-level failures end the evaluation: as a Fail for the
// submission side and as an InternalFault for the reference side.
func (e *evaluation) invoke(ctx context.Context, c runner.Command, reference bool, what string) (runner.Result, *Verdict) {
	res, err := e.oracle.run.Run(ctx, c)
	if err == nil {
		return res, nil
	}

	var lines []string
	var reason string
	switch {
	case errors.Is(err, runner.ErrTimedOut):
		lines = []string{
			"Command: " + c.String() + " took too long.",
			fmt.Sprintf("Process took longer than %s. Killing.", c.Timeout),
		}
		if res.Output != "" {
			lines = append(lines, "Partial output:", res.Output)
		}
		reason = "Failed (execution took too long)"
	case errors.Is(err, runner.ErrUnrepresentable):
		lines = []string{
			"Command: \"" + c.String() + "\" could not be run or produced unreadable output",
			err.Error(),
		}
		reason = "Failed (couldn't run command " + c.String() + ")"
	default:
		lines = []string{"Command: " + c.String() + " was interrupted", err.Error()}
		e.add(lines...)
		return res, e.fault("harness interrupted while running " + what)
	}

	e.add(lines...)
	if reference {
		return res, e.fault(what + " failed to run: " + err.Error())
	}
	return res, e.fail(reason)
}

func (e *evaluation) compilerArgs(output string, optimize bool) []string {
	var args []string
	if e.tc.Stage == suite.StageIR {
		args = append(args, irFlag)
	}
	if optimize {
		args = append(args, optimizeFlag)
	}
	args = append(args, e.tc.Flags...)
	return append(args, e.tc.Path, output)
}

func saidError(output string) bool {
	return strings.Contains(strings.ToLower(output), "error")
}

// compile runs both compilers and records whether each reported an error.
func (e *evaluation) compile(ctx context.Context) *Verdict {
	cfg := e.oracle.cfg

	ref := runner.Command{
		Path:    cfg.Reference,
		Args:    e.compilerArgs(e.refPath, cfg.Optimize),
		Timeout: cfg.Timeout,
	}
	stu := runner.Command{
		Path:    cfg.Submission,
		Args:    e.compilerArgs(e.stuPath, cfg.OptimizeSubmission),
		Timeout: cfg.Timeout,
	}

	var v *Verdict
	if e.refCompile, v = e.invoke(ctx, ref, true, "reference compiler"); v != nil {
		return v
	}
	if e.stuCompile, v = e.invoke(ctx, stu, false, "student compiler"); v != nil {
		return v
	}

	e.add(
		"Reference Compiler Output:", e.refCompile.Output,
		"Student Compiler Output:", e.stuCompile.Output,
	)

	e.refError = saidError(e.refCompile.Output)
	e.stuError = saidError(e.stuCompile.Output) || e.stuCompile.Failed()
	return nil
}

// checkReference requires the reference's exit status and error report to
// agree.
func (e *evaluation) checkReference(context.Context) *Verdict {
	if e.refCompile.Failed() == e.refError {
		return nil
	}
	e.add(
		"Reference Compiler returncode doesn't match error message.",
		fmt.Sprintf("Returncode: %d", e.refCompile.ExitCode),
		fmt.Sprintf("Output contained word \"error\": %t", e.refError),
	)
	return e.fault("reference compiler returncode doesn't match error message")
}

func (e *evaluation) checkErrors(context.Context) *Verdict {
	switch {
	case e.refError && e.stuError:
		return e.pass("Passed (both reference and student compilers raise error)")
	case e.refError:
		return e.fail("Failed (student compiler doesn't raise needed error)")
	case e.stuError:
		return e.fail("Failed (student compiler raised an error needlessly)")
	}
	return nil
}

func (e *evaluation) checkArtifacts(context.Context) *Verdict {
	if _, err := os.Stat(e.refPath); err != nil {
		return e.fault(fmt.Sprintf("reference compiler didn't make a %s file", filepath.Base(e.refPath)))
	}
	if _, err := os.Stat(e.stuPath); err != nil {
		return e.fail(fmt.Sprintf("Failed (student compiler didn't create %s file)", filepath.Base(e.stuPath)))
	}
	return nil
}

// execute runs both artifacts on the engine and compares what they print.
func (e *evaluation) execute(ctx context.Context) *Verdict {
	cfg := e.oracle.cfg
	ext := e.tc.Stage.Extension()

	engine := cfg.Engine
	if e.tc.Stage == suite.StageIR {
		engine = cfg.IREngine
	}

	budgeted := cfg.CycleBudget && e.tc.Stage == suite.StageFinal
	var engineArgs []string
	if budgeted {
		if !e.tc.HasBudget {
			return e.fault("test file name has no cycle budget: " + e.tc.Path)
		}
		engineArgs = append(engineArgs, cycleFlag)
	}

	ref := runner.Command{Path: engine, Args: append(slices.Clone(engineArgs), e.refPath), Timeout: cfg.Timeout}
	stu := runner.Command{Path: engine, Args: append(slices.Clone(engineArgs), e.stuPath), Timeout: cfg.Timeout}

	refRun, v := e.invoke(ctx, ref, true, "engine on reference "+ext)
	if v != nil {
		return v
	}
	stuRun, v := e.invoke(ctx, stu, false, "engine on student "+ext)
	if v != nil {
		return v
	}

	e.add(
		"Reference Execution Output:", refRun.Output,
		"Student Execution Output:", stuRun.Output,
	)

	if refRun.Failed() {
		return e.fault(fmt.Sprintf("engine breaks when executing reference %s", ext))
	}
	if stuRun.Failed() {
		return e.fail(fmt.Sprintf("Failed (student %s caused error in execution)", ext))
	}

	if budgeted {
		return e.compareBudgeted(refRun.Output, stuRun.Output)
	}

	if refRun.Output != stuRun.Output {
		return e.fail(fmt.Sprintf("Failed (student and reference %s execution output differs)", ext))
	}
	return e.pass(fmt.Sprintf("Passed (Reference and Student %ss have same output)", ext))
}

// compareBudgeted strips the cycle report from both outputs, compares the
// rest and then enforces the ceiling. An output mismatch is reported before
// a cycle overage.
func (e *evaluation) compareBudgeted(refOut, stuOut string) *Verdict {
	budget := e.tc.Budget
	ext := e.tc.Stage.Extension()

	refCycles, refRest, err := cycles.Extract(refOut)
	if err != nil {
		return e.fault("reference execution output: " + err.Error())
	}
	stuCycles, stuRest, err := cycles.Extract(stuOut)
	if err != nil {
		return e.fail("Failed (student execution output doesn't report cycles used)")
	}
	report := &CycleReport{Reference: refCycles, Submission: stuCycles, Budget: budget}

	if refCycles > budget {
		if e.oracle.cfg.ReferenceOverBudget != PolicyIgnore {
			v := e.fault(fmt.Sprintf("reference compiler takes too many cycles on %s (%d of %d)", e.tc.Path, refCycles, budget))
			v.Cycles = report
			return v
		}
		e.add(fmt.Sprintf("Warning: reference compiler took %d cycles, over the budget of %d.", refCycles, budget))
	}

	var v *Verdict
	switch {
	case refRest != stuRest:
		v = e.fail(fmt.Sprintf("Failed (student and reference %s execution output differs)", ext))
	case stuCycles > budget:
		e.add(
			fmt.Sprintf("Student compiler took %d cycles.", stuCycles),
			fmt.Sprintf("Only allowed to take %d cycles.", budget),
		)
		v = e.fail(fmt.Sprintf("Failed (student compiler runs for too many cycles (%d))", stuCycles))
	default:
		e.add(
			fmt.Sprintf("Reference compiler took %d cycles.", refCycles),
			fmt.Sprintf("Student compiler took %d cycles of %d allowed.", stuCycles, budget),
		)
		v = e.pass(fmt.Sprintf("Passed (Student has correct tubecode output in only %d cycles)", stuCycles))
	}
	v.Cycles = report
	return v
}
