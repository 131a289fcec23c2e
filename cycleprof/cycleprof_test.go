package cycleprof

import (
	"os"
	"testing"
	"time"

	"github.com/google/pprof/profile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tubegrade/tubegrade/oracle"
	"github.com/tubegrade/tubegrade/outcome"
)

func budgeted(name string, status oracle.Status, ref, stu, budget int) outcome.Outcome {
	return outcome.Outcome{
		Name: name,
		Verdict: oracle.Verdict{
			Status: status,
			Cycles: &oracle.CycleReport{Reference: ref, Submission: stu, Budget: budget},
		},
	}
}

// written writes b to a temporary directory and parses it back.
func written(t *testing.T, b *Builder) *profile.Profile {
	t.Helper()
	path, err := b.WriteFile(t.TempDir())
	require.NoError(t, err)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	prof, err := profile.Parse(f)
	require.NoError(t, err)
	return prof
}

func TestBuilder_Add(t *testing.T) {
	b := New(time.Unix(100, 0))

	assert.False(t, b.Add(outcome.Outcome{Name: "Test_Suite/good_declare.tube"}))
	assert.True(t, b.Add(budgeted("Test_Suite/good_optim1-200.tube", oracle.Pass, 150, 180, 200)))
	assert.True(t, b.Add(budgeted("Test_Suite/good_optim2-100.tube", oracle.Fail, 90, 130, 100)))
	require.Equal(t, 2, b.Len())

	prof := written(t, b)
	assert.Equal(t, int64(100*time.Second), prof.TimeNanos)

	// Two leaves share the category and root frames.
	assert.Len(t, prof.Location, 4)
	assert.Len(t, prof.Function, 4)

	first := prof.Sample[0]
	assert.Equal(t, []int64{150, 180, 200}, first.Value)
	assert.Equal(t, "good_optim1-200.tube", first.Location[0].Line[0].Function.Name)
	assert.Equal(t, "Test_Suite/good_optim1-200.tube", first.Location[0].Line[0].Function.Filename)
	assert.Equal(t, "good", first.Location[1].Line[0].Function.Name)
	assert.Equal(t, "tubegrade", first.Location[2].Line[0].Function.Name)
	assert.Equal(t, []string{"pass"}, first.Label["status"])
	assert.Equal(t, []string{"false"}, first.Label["over_budget"])

	second := prof.Sample[1]
	assert.Equal(t, []string{"fail"}, second.Label["status"])
	assert.Equal(t, []string{"true"}, second.Label["over_budget"])
	assert.Same(t, first.Location[1], second.Location[1])
}

func TestBuilder_WriteFile(t *testing.T) {
	b := New(time.Now())
	b.Add(budgeted("Test_Suite/good_optim-50.tube", oracle.Pass, 40, 45, 50))

	prof := written(t, b)
	require.Len(t, prof.Sample, 1)
	assert.Equal(t, []int64{40, 45, 50}, prof.Sample[0].Value)
	assert.Equal(t, "submission_cycles", prof.DefaultSampleType)
	require.Len(t, prof.SampleType, 3)
	assert.Equal(t, "budget_cycles", prof.SampleType[BudgetIdx].Type)
}
