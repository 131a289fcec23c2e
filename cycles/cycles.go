// Package cycles reads the CPU cycle count the execution engine reports on
// its trailing line and parses per-test cycle budgets from file names.
package cycles

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// ErrNoCount is returned when the engine output does not carry a cycle count.
var ErrNoCount = errors.New("engine output doesn't include the number of cycles used")

var (
	digits     = regexp.MustCompile(`\d+`)
	budgetName = regexp.MustCompile(`-(\d+)$`)
)

// Extract returns the cycle count reported by the engine and the output with
// the report line removed.
//
// The engine ends its output with a line such as
// "[[ Total CPU cycles used: 110925 ]]" followed by a newline, so the count
// lives on the second-to-last element of the newline split. The first run of
// digits on that line is the count.
func Extract(output string) (int, string, error) {
	lines := strings.Split(output, "\n")
	if len(lines) < 2 {
		return 0, output, ErrNoCount
	}

	report := lines[len(lines)-2]
	match := digits.FindString(report)
	if match == "" {
		return 0, output, fmt.Errorf("%w: last line %q", ErrNoCount, report)
	}

	count, err := strconv.Atoi(match)
	if err != nil {
		return 0, output, fmt.Errorf("%w: %v", ErrNoCount, err)
	}

	rest := strings.Join(lines[:len(lines)-2], "\n") + "\n"
	return count, rest, nil
}

// BudgetFromName parses the cycle ceiling embedded in a test file name as a
// trailing "-<digits>" before the extension, e.g. "opt_loop-500.tube".
func BudgetFromName(path string) (int, bool) {
	base := filepath.Base(path)
	if idx := strings.Index(base, "."); idx >= 0 {
		base = base[:idx]
	}
	m := budgetName.FindStringSubmatch(base)
	if m == nil {
		return 0, false
	}
	budget, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return budget, true
}
