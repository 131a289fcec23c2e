package oracle

import "fmt"

// Status is the terminal classification of one test case.
type Status uint8

const (
	// Pass means both compilers agree.
	Pass Status = iota
	// Fail is attributed to the submission under test.
	Fail
	// InternalFault means the reference compiler or the tooling misbehaved.
	// It is never attributed to the submission.
	InternalFault
)

func (s Status) String() string {
	switch s {
	case Pass:
		return "pass"
	case Fail:
		return "fail"
	case InternalFault:
		return "internal-fault"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Verdict is produced exactly once per test case and never revised.
type Verdict struct {
	Status Status
	// Reason is the one-line summary; it is also the last Evidence line.
	Reason string
	// Evidence is the ordered trail of what was compared.
	Evidence []string
	// Cycles is set when both cycle counts were read from the engine.
	Cycles *CycleReport
}

// Passed reports whether the verdict is Pass.
func (v Verdict) Passed() bool {
	return v.Status == Pass
}

// CycleReport holds the cycle counts of one budgeted test.
type CycleReport struct {
	Reference  int
	Submission int
	Budget     int
}

// OverBudget reports whether the submission exceeded the ceiling.
func (c CycleReport) OverBudget() bool {
	return c.Submission > c.Budget
}
