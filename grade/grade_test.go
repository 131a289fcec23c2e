package grade

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculate_Proportional(t *testing.T) {
	r := Rubric{Criteria: []Criterion{
		{Name: "optim", Pattern: "optim", Weight: 5, Mode: Proportional},
	}}
	passed := map[string]bool{
		"Test_Suite/good_optim_1-100.tube": true,
		"Test_Suite/good_optim_2-100.tube": true,
		"Test_Suite/good_optim_3-100.tube": false,
		"Test_Suite/good_optim_4-100.tube": true,
		"Test_Suite/good_declare.tube":     false,
	}

	report, err := Calculate(r, passed)
	require.NoError(t, err)
	require.Len(t, report.Scores, 1)
	assert.Equal(t, 3.75, report.Total)
	assert.Equal(t, 3, report.Scores[0].Passed)
	assert.Equal(t, 4, report.Scores[0].Total)
	assert.Contains(t, report.Scores[0].Lines, "Proportional Score is: 3.75 of 5 points")
}

func TestCalculate_AllOrNothing(t *testing.T) {
	tests := []struct {
		name   string
		passed map[string]bool
		want   float64
	}{
		{
			name:   "all passed",
			passed: map[string]bool{"good_declare_a": true, "good_declare_b": true},
			want:   2,
		},
		{
			name:   "one failed",
			passed: map[string]bool{"good_declare_a": true, "good_declare_b": false},
			want:   0,
		},
	}
	r := Rubric{Criteria: []Criterion{{Name: "declare", Pattern: "declare", Weight: 2, Mode: AllOrNothing}}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := Calculate(r, tt.passed)
			require.NoError(t, err)
			assert.Equal(t, tt.want, report.Total)
		})
	}
}

func TestCalculate_Prerequisite(t *testing.T) {
	base := map[string]bool{
		"has_needed_files":          true,
		"make_worked":               true,
		"Test_Suite/fail_a.tube":    true,
		"Test_Suite/fail_b.tube":    true,
		"Test_Suite/optim_x-1.tube": true,
	}

	t.Run("prerequisite met", func(t *testing.T) {
		passed := clone(base)
		passed["Test_Suite/good_declare.tube"] = true

		report, err := Calculate(DefaultRubric(), passed)
		require.NoError(t, err)
		assert.Equal(t, float64(8), report.Total)
		assert.Equal(t, float64(8), report.Possible)
		assert.False(t, report.Scores[2].Skipped)
	})

	t.Run("prerequisite unmet", func(t *testing.T) {
		passed := clone(base)
		passed["Test_Suite/good_declare.tube"] = false

		report, err := Calculate(DefaultRubric(), passed)
		require.NoError(t, err)
		assert.Equal(t, float64(6), report.Total)

		fail := report.Scores[2]
		assert.Equal(t, "fail", fail.Name)
		assert.True(t, fail.Skipped)
		assert.Zero(t, fail.Earned)
		assert.Contains(t, fail.Lines[0], "unmet prerequisite")
	})
}

func TestCalculate_EmptyGroup(t *testing.T) {
	r := Rubric{Criteria: []Criterion{{Name: "optim", Pattern: "optim", Weight: 5, Mode: Proportional}}}
	_, err := Calculate(r, map[string]bool{"good_declare.tube": true})
	require.ErrorIs(t, err, ErrEmptyGroup)
}

func TestRubric_Validate(t *testing.T) {
	tests := []struct {
		name    string
		rubric  Rubric
		wantErr string
	}{
		{name: "default", rubric: DefaultRubric()},
		{
			name:    "missing name",
			rubric:  Rubric{Criteria: []Criterion{{Pattern: "x", Mode: Proportional}}},
			wantErr: "name is required",
		},
		{
			name: "duplicate",
			rubric: Rubric{Criteria: []Criterion{
				{Name: "a", Pattern: "x", Mode: Proportional},
				{Name: "a", Pattern: "y", Mode: Proportional},
			}},
			wantErr: "defined twice",
		},
		{
			name:    "bad pattern",
			rubric:  Rubric{Criteria: []Criterion{{Name: "a", Pattern: "(", Mode: Proportional}}},
			wantErr: "invalid pattern",
		},
		{
			name:    "bad mode",
			rubric:  Rubric{Criteria: []Criterion{{Name: "a", Pattern: "x", Mode: "most"}}},
			wantErr: "unknown mode",
		},
		{
			name:    "negative weight",
			rubric:  Rubric{Criteria: []Criterion{{Name: "a", Pattern: "x", Mode: Proportional, Weight: -1}}},
			wantErr: "must not be negative",
		},
		{
			name: "prerequisite defined later",
			rubric: Rubric{Criteria: []Criterion{
				{Name: "fail", Pattern: "fail", Mode: AllOrNothing, Requires: "declare"},
				{Name: "declare", Pattern: "declare", Mode: AllOrNothing},
			}},
			wantErr: "unknown prerequisite",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rubric.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestReport_Lines(t *testing.T) {
	report, err := Calculate(DefaultRubric(), map[string]bool{
		"has_needed_files":     true,
		"make_worked":          false,
		"good_declare.tube":    true,
		"fail_x.tube":          true,
		"good_optim-100.tube":  true,
		"good_optim2-100.tube": false,
	})
	require.NoError(t, err)

	lines := report.Lines()
	assert.Equal(t, "Grade Calculation (Provisional)", lines[0])
	assert.Equal(t, "Pre-test checks for needed files and successful make.", lines[1])
	assert.Equal(t, "Not all tests passed: 0 of 1 points", lines[2])
	assert.Equal(t, "Current tentative grade is: 4.5 of 8", lines[len(lines)-1])
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "3.75", Format(3.75))
	assert.Equal(t, "8", Format(8))
	assert.Equal(t, "0", Format(0))
}

func clone(m map[string]bool) map[string]bool {
	out := make(map[string]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
