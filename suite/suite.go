// Package suite discovers test programs and turns their file names into
// typed test cases.
package suite

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/tubegrade/tubegrade/cycles"
)

// Stage selects which compiler output is compared.
type Stage uint8

const (
	// StageFinal compares the final assembly-like artifact.
	StageFinal Stage = iota
	// StageIR compares only the intermediate representation.
	StageIR
)

func (s Stage) String() string {
	if s == StageIR {
		return "ir"
	}
	return "final"
}

// Extension is the artifact file extension produced for the stage.
func (s Stage) Extension() string {
	if s == StageIR {
		return ".tic"
	}
	return ".tca"
}

// Category is derived from the file name prefix.
type Category string

const (
	CategoryGood  Category = "good"
	CategoryFail  Category = "fail"
	CategoryExtra Category = "extra"
	CategoryOther Category = "other"
)

// IRSuffix is appended to the name of IR-stage test cases so they can be
// graded separately from final-stage ones.
const IRSuffix = "_tic_test"

// TestCase is one test program evaluated in one stage. It is a value type;
// Flags is never shared with the caller.
type TestCase struct {
	// Name identifies the outcome; the path, plus IRSuffix for IR stage.
	Name     string
	Path     string
	Category Category
	Stage    Stage
	Flags    []string
	// Budget is the cycle ceiling from the file name, valid when HasBudget.
	Budget    int
	HasBudget bool
}

// New builds a TestCase for path.
func New(path string, stage Stage, flags ...string) TestCase {
	tc := TestCase{
		Name:     path,
		Path:     path,
		Category: categoryOf(path),
		Stage:    stage,
		Flags:    slices.Clone(flags),
	}
	if stage == StageIR {
		tc.Name = path + IRSuffix
	}
	tc.Budget, tc.HasBudget = cycles.BudgetFromName(path)
	return tc
}

// BaseName is the file name of the test, with the IR suffix when present.
func (tc TestCase) BaseName() string {
	return filepath.Base(tc.Name)
}

func categoryOf(path string) Category {
	base := filepath.Base(path)
	for _, c := range []Category{CategoryGood, CategoryFail, CategoryExtra} {
		if strings.HasPrefix(base, string(c)) {
			return c
		}
	}
	return CategoryOther
}

// Discover expands globs in order. Matches of a single glob are sorted, and
// a path matched by more than one glob is kept only at its first position.
func Discover(globs []string) ([]string, error) {
	seen := make(map[string]bool)
	var paths []string
	for _, pattern := range globs {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid test glob %q: %w", pattern, err)
		}
		slices.Sort(matches)
		for _, m := range matches {
			if seen[m] {
				continue
			}
			seen[m] = true
			paths = append(paths, m)
		}
	}
	return paths, nil
}

// Build creates one test case per path for the given stage.
func Build(paths []string, stage Stage, flags ...string) []TestCase {
	cases := make([]TestCase, 0, len(paths))
	for _, p := range paths {
		cases = append(cases, New(p, stage, flags...))
	}
	return cases
}
