// Package grade turns named pass/fail outcomes into a numeric score using a
// rubric of criteria matched against outcome names.
package grade

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
)

var (
	// ErrEmptyGroup is returned when a criterion matches no outcome. Scoring
	// it would divide by zero, so it is treated as a rubric misconfiguration.
	ErrEmptyGroup = errors.New("criterion matches no outcomes")
	// ErrUnknownPrerequisite is returned when a criterion requires a
	// criterion that is not defined before it.
	ErrUnknownPrerequisite = errors.New("unknown prerequisite")
)

// Mode selects how a matched group is scored.
type Mode string

const (
	// AllOrNothing awards the full weight only if every matched outcome
	// passed.
	AllOrNothing Mode = "all-or-nothing"
	// Proportional awards weight * passed / total.
	Proportional Mode = "proportional"
)

// Criterion is one line of the rubric.
type Criterion struct {
	Name string `yaml:"name"`
	// Pattern is a regular expression searched for in outcome names.
	Pattern string  `yaml:"pattern"`
	Weight  float64 `yaml:"weight"`
	Mode    Mode    `yaml:"mode"`
	// Requires names an earlier criterion that must fully pass for this one
	// to be scored.
	Requires    string `yaml:"requires,omitempty"`
	Description string `yaml:"description,omitempty"`
}

func (c Criterion) heading() string {
	if c.Description != "" {
		return c.Description
	}
	return fmt.Sprintf("Grading tests with %s in their name.", c.Pattern)
}

// Rubric is an ordered list of criteria.
type Rubric struct {
	Criteria []Criterion `yaml:"criteria"`
}

// DefaultRubric is the optimisation project rubric, 8 points in total.
func DefaultRubric() Rubric {
	return Rubric{Criteria: []Criterion{
		{
			Name:        "setup",
			Pattern:     `^(has_needed_files|make_worked)$`,
			Weight:      1,
			Mode:        AllOrNothing,
			Description: "Pre-test checks for needed files and successful make.",
		},
		{Name: "declare", Pattern: `declare`, Weight: 1, Mode: AllOrNothing},
		{Name: "fail", Pattern: `fail`, Weight: 1, Mode: AllOrNothing, Requires: "declare"},
		{Name: "optim", Pattern: `optim`, Weight: 5, Mode: Proportional},
	}}
}

// Possible is the sum of all weights.
func (r Rubric) Possible() float64 {
	var total float64
	for _, c := range r.Criteria {
		total += c.Weight
	}
	return total
}

// Validate checks names, patterns, modes, weights and prerequisites.
func (r Rubric) Validate() error {
	seen := make(map[string]bool)
	for i, c := range r.Criteria {
		if c.Name == "" {
			return fmt.Errorf("criterion %d: name is required", i)
		}
		if seen[c.Name] {
			return fmt.Errorf("criterion %q: defined twice", c.Name)
		}
		if _, err := regexp.Compile(c.Pattern); err != nil {
			return fmt.Errorf("criterion %q: invalid pattern: %w", c.Name, err)
		}
		if c.Weight < 0 {
			return fmt.Errorf("criterion %q: weight must not be negative", c.Name)
		}
		switch c.Mode {
		case AllOrNothing, Proportional:
		default:
			return fmt.Errorf("criterion %q: unknown mode %q (expected %s|%s)", c.Name, c.Mode, AllOrNothing, Proportional)
		}
		if c.Requires != "" && !seen[c.Requires] {
			return fmt.Errorf("criterion %q: %w %q", c.Name, ErrUnknownPrerequisite, c.Requires)
		}
		seen[c.Name] = true
	}
	return nil
}

// Score is the result of one criterion.
type Score struct {
	Name     string
	Earned   float64
	Possible float64
	Passed   int
	Total    int
	// Skipped is set when the prerequisite did not fully pass.
	Skipped bool
	Lines   []string
}

// Complete reports whether every matched outcome passed.
func (s Score) Complete() bool {
	return !s.Skipped && s.Total > 0 && s.Passed == s.Total
}

// Report is the graded rubric.
type Report struct {
	Scores   []Score
	Total    float64
	Possible float64
}

// Lines renders the report as plain text.
func (r Report) Lines() []string {
	lines := []string{"Grade Calculation (Provisional)"}
	for _, s := range r.Scores {
		lines = append(lines, s.Lines...)
	}
	return append(lines, fmt.Sprintf("Current tentative grade is: %s of %s", Format(r.Total), Format(r.Possible)))
}

// Format prints a score without trailing zeros.
func Format(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Calculate grades passed, a map of outcome name to whether it passed.
func Calculate(r Rubric, passed map[string]bool) (Report, error) {
	if err := r.Validate(); err != nil {
		return Report{}, err
	}

	names := make([]string, 0, len(passed))
	for name := range passed {
		names = append(names, name)
	}
	sort.Strings(names)

	report := Report{Possible: r.Possible()}
	byName := make(map[string]Score)
	for _, c := range r.Criteria {
		var s Score
		if c.Requires != "" && !byName[c.Requires].Complete() {
			s = skipped(c)
		} else {
			var err error
			if s, err = score(c, names, passed); err != nil {
				return Report{}, err
			}
		}
		byName[c.Name] = s
		report.Scores = append(report.Scores, s)
		report.Total += s.Earned
	}
	return report, nil
}

func score(c Criterion, names []string, passed map[string]bool) (Score, error) {
	pattern := regexp.MustCompile(c.Pattern)
	s := Score{Name: c.Name, Possible: c.Weight}
	for _, name := range names {
		if !pattern.MatchString(name) {
			continue
		}
		s.Total++
		if passed[name] {
			s.Passed++
		}
	}
	if s.Total == 0 {
		return Score{}, fmt.Errorf("criterion %q (pattern %q): %w", c.Name, c.Pattern, ErrEmptyGroup)
	}

	s.Lines = append(s.Lines, c.heading())
	switch c.Mode {
	case Proportional:
		s.Earned = c.Weight * float64(s.Passed) / float64(s.Total)
		s.Lines = append(s.Lines,
			fmt.Sprintf("Passed %d of %d tests.", s.Passed, s.Total),
			fmt.Sprintf("Proportional Score is: %s of %s points", Format(s.Earned), Format(c.Weight)),
		)
	default:
		if s.Passed == s.Total {
			s.Earned = c.Weight
			s.Lines = append(s.Lines, fmt.Sprintf("All tests passed: %s of %s points", Format(s.Earned), Format(c.Weight)))
		} else {
			s.Lines = append(s.Lines, fmt.Sprintf("Not all tests passed: 0 of %s points", Format(c.Weight)))
		}
	}
	return s, nil
}

func skipped(c Criterion) Score {
	return Score{
		Name:     c.Name,
		Possible: c.Weight,
		Skipped:  true,
		Lines: []string{
			fmt.Sprintf("Skipped %s due to unmet prerequisite: %s", c.Name, c.Requires),
			fmt.Sprintf("You need to pass the tests with %s in their names first.", c.Requires),
			fmt.Sprintf("0 of %s points", Format(c.Weight)),
		},
	}
}
