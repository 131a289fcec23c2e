// Package outcome collects verdicts in discovery order and answers the
// questions the report needs: what passed, what failed first, and how the
// run tallies up.
package outcome

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"

	"github.com/tubegrade/tubegrade/oracle"
)

// ErrDuplicate is returned when an outcome name is recorded twice.
var ErrDuplicate = errors.New("outcome already recorded")

// NoFailures is printed in place of evidence when everything passed.
const NoFailures = "No Failures To Display!"

// Outcome pairs a test identity with its verdict.
type Outcome struct {
	Name    string
	Verdict oracle.Verdict
}

// Passed reports whether the verdict is Pass.
func (o Outcome) Passed() bool {
	return o.Verdict.Passed()
}

// Tally counts outcomes per verdict status.
type Tally struct {
	Passed int
	Failed int
	Faults int
}

// Total is the number of outcomes counted.
func (t Tally) Total() int {
	return t.Passed + t.Failed + t.Faults
}

// Aggregator is an explicit accumulator of outcomes. Each name may be added
// once; order of Add is the reporting order.
type Aggregator struct {
	outcomes []Outcome
	seen     map[string]bool
}

// New creates an empty Aggregator.
func New() *Aggregator {
	return &Aggregator{seen: make(map[string]bool)}
}

// Add records o. Recording the same name twice is an error so no test is
// ever counted twice.
func (a *Aggregator) Add(o Outcome) error {
	if a.seen[o.Name] {
		return fmt.Errorf("%w: %s", ErrDuplicate, o.Name)
	}
	a.seen[o.Name] = true
	a.outcomes = append(a.outcomes, o)
	return nil
}

// Outcomes returns a copy of the recorded outcomes in order.
func (a *Aggregator) Outcomes() []Outcome {
	return slices.Clone(a.outcomes)
}

// Len is the number of recorded outcomes.
func (a *Aggregator) Len() int {
	return len(a.outcomes)
}

// FirstFailure returns the earliest outcome that did not pass.
func (a *Aggregator) FirstFailure() (Outcome, bool) {
	for _, o := range a.outcomes {
		if !o.Passed() {
			return o, true
		}
	}
	return Outcome{}, false
}

// AllPassed reports whether every recorded outcome passed. An empty
// aggregator has nothing failing and reports true.
func (a *Aggregator) AllPassed() bool {
	_, failed := a.FirstFailure()
	return !failed
}

// PassedByName maps every outcome name to whether it passed.
func (a *Aggregator) PassedByName() map[string]bool {
	m := make(map[string]bool, len(a.outcomes))
	for _, o := range a.outcomes {
		m[o.Name] = o.Passed()
	}
	return m
}

// Tally counts the outcomes per status.
func (a *Aggregator) Tally() Tally {
	var t Tally
	for _, o := range a.outcomes {
		switch o.Verdict.Status {
		case oracle.Pass:
			t.Passed++
		case oracle.Fail:
			t.Failed++
		case oracle.InternalFault:
			t.Faults++
		}
	}
	return t
}

// SummaryLine formats one outcome as the name padded to 40 columns followed
// by its final evidence line.
func SummaryLine(o Outcome) string {
	return fmt.Sprintf("%-40s %s", o.Name, lastLine(o.Verdict))
}

func lastLine(v oracle.Verdict) string {
	if len(v.Evidence) == 0 {
		return v.Reason
	}
	return v.Evidence[len(v.Evidence)-1]
}

// Summarize writes one SummaryLine per outcome.
func (a *Aggregator) Summarize(w io.Writer) error {
	for _, o := range a.outcomes {
		if _, err := fmt.Fprintln(w, SummaryLine(o)); err != nil {
			return err
		}
	}
	return nil
}

// WriteFirstFailure writes the full evidence of the first failure, or
// NoFailures.
func (a *Aggregator) WriteFirstFailure(w io.Writer) error {
	o, ok := a.FirstFailure()
	if !ok {
		_, err := fmt.Fprintln(w, NoFailures)
		return err
	}
	_, err := fmt.Fprintln(w, strings.Join(o.Verdict.Evidence, "\n"))
	return err
}

// MachineLines renders "<basename>, <0|1>" per outcome.
func (a *Aggregator) MachineLines() []string {
	lines := make([]string, 0, len(a.outcomes))
	for _, o := range a.outcomes {
		passed := 0
		if o.Passed() {
			passed = 1
		}
		lines = append(lines, fmt.Sprintf("%s, %d", filepath.Base(o.Name), passed))
	}
	return lines
}
