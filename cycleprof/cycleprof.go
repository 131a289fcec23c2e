// Package cycleprof turns the cycle reports of a run into a pprof profile,
// so budgeted tests can be compared with `go tool pprof`.
package cycleprof

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/pprof/profile"

	"github.com/tubegrade/tubegrade/outcome"
	"github.com/tubegrade/tubegrade/suite"
)

// FileName is the name of the profile inside a history directory.
const FileName = "cycles.pb.gz"

const rootFrame = "tubegrade"

// Sample value indexes, in SampleType order.
const (
	ReferenceIdx = iota
	SubmissionIdx
	BudgetIdx
)

// Builder accumulates one sample per budgeted outcome. Each sample's stack
// is test <- category <- root, so pprof can aggregate per category.
type Builder struct {
	profile   *profile.Profile
	functions map[string]*profile.Function
	locations map[string]*profile.Location
}

// New creates an empty builder stamped with start.
func New(start time.Time) *Builder {
	return &Builder{
		profile: &profile.Profile{
			SampleType: []*profile.ValueType{
				{Type: "reference_cycles", Unit: "count"},
				{Type: "submission_cycles", Unit: "count"},
				{Type: "budget_cycles", Unit: "count"},
			},
			DefaultSampleType: "submission_cycles",
			TimeNanos:         start.UnixNano(),
			PeriodType:        &profile.ValueType{Type: "cycles", Unit: "count"},
			Period:            1,
		},
		functions: make(map[string]*profile.Function),
		locations: make(map[string]*profile.Location),
	}
}

// Add records o if its verdict carries a cycle report. It reports whether
// a sample was added.
func (b *Builder) Add(o outcome.Outcome) bool {
	report := o.Verdict.Cycles
	if report == nil {
		return false
	}

	tc := suite.New(o.Name, suite.StageFinal)
	stack := []*profile.Location{
		b.getOrCreateLocation(tc.BaseName(), o.Name),
		b.getOrCreateLocation(string(tc.Category), ""),
		b.getOrCreateLocation(rootFrame, ""),
	}

	overBudget := "false"
	if report.OverBudget() {
		overBudget = "true"
	}
	b.profile.Sample = append(b.profile.Sample, &profile.Sample{
		Location: stack,
		Value: []int64{
			ReferenceIdx:  int64(report.Reference),
			SubmissionIdx: int64(report.Submission),
			BudgetIdx:     int64(report.Budget),
		},
		Label: map[string][]string{
			"status":      {o.Verdict.Status.String()},
			"over_budget": {overBudget},
		},
	})
	return true
}

// Len is the number of samples recorded.
func (b *Builder) Len() int {
	return len(b.profile.Sample)
}

// WriteFile validates the profile and writes it gzip-compressed to dir.
func (b *Builder) WriteFile(dir string) (string, error) {
	if err := b.profile.CheckValid(); err != nil {
		return "", fmt.Errorf("invalid cycle profile: %w", err)
	}

	path := filepath.Join(dir, FileName)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create cycle profile: %w", err)
	}
	defer f.Close()

	if err := b.profile.Write(f); err != nil {
		return "", fmt.Errorf("failed to write cycle profile: %w", err)
	}
	return path, f.Close()
}

func (b *Builder) getOrCreateLocation(name, filename string) *profile.Location {
	if loc, exists := b.locations[name]; exists {
		return loc
	}

	loc := &profile.Location{
		ID:   uint64(len(b.profile.Location) + 1),
		Line: []profile.Line{{Function: b.getOrCreateFunction(name, filename)}},
	}
	b.locations[name] = loc
	b.profile.Location = append(b.profile.Location, loc)
	return loc
}

func (b *Builder) getOrCreateFunction(name, filename string) *profile.Function {
	if fn, exists := b.functions[name]; exists {
		return fn
	}

	fn := &profile.Function{
		ID:         uint64(len(b.profile.Function) + 1),
		Name:       name,
		SystemName: name,
		Filename:   filename,
	}
	b.functions[name] = fn
	b.profile.Function = append(b.profile.Function, fn)
	return fn
}
