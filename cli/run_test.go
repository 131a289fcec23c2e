package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tubegrade/tubegrade/config"
	"github.com/tubegrade/tubegrade/cycleprof"
	"github.com/tubegrade/tubegrade/history"
	"github.com/tubegrade/tubegrade/model"
)

const referenceScript = `#!/bin/sh
while [ $# -gt 2 ]; do shift; done
if grep -q '^error' "$1"; then echo "ERROR: unexpected token"; exit 1; fi
sed -e '/^stu_cycles=/d' -e 's/^ref_cycles=/cycles=/' "$1" > "$2"
`

const studentScript = `#!/bin/sh
while [ $# -gt 2 ]; do shift; done
if grep -q '^error' "$1"; then echo "Error: syntax"; exit 1; fi
sed -e '/^ref_cycles=/d' -e 's/^stu_cycles=/cycles=/' -e 's/^bug$/BUG/' "$1" > "$2"
`

const engineScript = `#!/bin/sh
report=""
if [ "$1" = "-c" ]; then report=1; shift; fi
grep -v '^cycles=' "$1"
if [ -n "$report" ]; then
  n=$(sed -n 's/^cycles=//p' "$1")
  echo "[[ Total CPU cycles used: ${n:-0} ]]"
fi
`

const makefile = "tube8:\n\tcp student.sh tube8\n\tchmod +x tube8\n\nclean:\n\trm -f tube8\n"

// newSubmission lays out a submission directory with a working student
// compiler, a reference compiler, an engine and a small test suite, and
// changes into it.
func newSubmission(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("make"); err != nil {
		t.Skip("make not available")
	}

	dir := t.TempDir()
	files := map[string]string{
		"example.tube":                     "print 1\n",
		"Makefile":                         makefile,
		"README.md":                        "notes\n",
		"student.sh":                       studentScript,
		"engine.sh":                        engineScript,
		"Test_Suite/reference_tube8":       referenceScript,
		"Test_Suite/good_declare-100.tube": "print 1\nref_cycles=10\nstu_cycles=20\n",
		"Test_Suite/fail_error-100.tube":   "error here\n",
		"Test_Suite/good_optim1-100.tube":  "print 2\nref_cycles=40\nstu_cycles=50\n",
		"Test_Suite/good_optim2-100.tube":  "print 3\nref_cycles=40\nstu_cycles=150\n",
		"Test_Suite/good_optim3-100.tube":  "bug\nref_cycles=40\nstu_cycles=50\n",
		"Test_Suite/good_optim4-100.tube":  "print 4\nref_cycles=90\nstu_cycles=100\n",
		"Test_Suite/extra_bonus-100.tube":  "print 5\nref_cycles=1\nstu_cycles=1\n",
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o755))
	}

	chdir(t, dir)
	return dir
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Engine = "./engine.sh"
	cfg.IREngine = "./engine.sh"
	return cfg
}

func newTestApp(out *bytes.Buffer) *App {
	return &App{logger: zerolog.Nop(), out: out}
}

func TestGrade_MachineMode(t *testing.T) {
	dir := newSubmission(t)

	var out bytes.Buffer
	code, err := newTestApp(&out).grade(context.Background(), testConfig(), runOptions{machine: true})
	require.NoError(t, err)
	assert.Equal(t, 1, code)

	assert.Equal(t, strings.Join([]string{
		"has_needed_files, 1",
		"make_worked, 1",
		"good_declare-100.tube, 1",
		"fail_error-100.tube, 1",
		"good_optim1-100.tube, 1",
		"good_optim2-100.tube, 0",
		"good_optim3-100.tube, 0",
		"good_optim4-100.tube, 1",
		"grade, 5.5",
	}, "\n")+"\n", out.String())

	for _, artifact := range []string{"ref.tca", "stu.tca", "ref.tic", "stu.tic"} {
		assert.NoFileExists(t, filepath.Join(dir, artifact))
	}
}

func TestGrade_NormalMode(t *testing.T) {
	newSubmission(t)

	var out bytes.Buffer
	code, err := newTestApp(&out).grade(context.Background(), testConfig(), runOptions{noHistory: true})
	require.NoError(t, err)
	assert.Equal(t, 1, code)

	s := out.String()
	assert.True(t, strings.HasPrefix(s, "Starting Tests...\n"))
	assert.Contains(t, s, fmt.Sprintf("%-40s %s", "Test_Suite/good_optim2-100.tube", "Failed (student compiler runs for too many cycles (150))"))
	assert.Contains(t, s, "Grading tests with optim in their name.\nPassed 2 of 4 tests.\nProportional Score is: 2.5 of 5 points")
	assert.Contains(t, s, "Current tentative grade is: 5.5 of 8")
	assert.Equal(t, 1, strings.Count(s, "Current tentative grade is"))
	assert.Contains(t, s, "First Failure's Details:\nTesting: Test_Suite/good_optim2-100.tube")
	assert.NotContains(t, s, "Passes all tests!")
}

func TestGrade_ExtraAndIR(t *testing.T) {
	newSubmission(t)

	cfg := testConfig()
	cfg.IR = true
	var out bytes.Buffer
	_, err := newTestApp(&out).grade(context.Background(), cfg, runOptions{machine: true, extra: true, noHistory: true})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	// two setup checks, seven IR tests, seven final tests, grade
	require.Len(t, lines, 2+7+7+1)
	assert.Equal(t, "good_declare-100.tube_tic_test, 1", lines[2])
	assert.Equal(t, "good_optim2-100.tube_tic_test, 1", lines[5], "IR stage has no cycle budget")
	assert.Equal(t, "good_optim3-100.tube_tic_test, 0", lines[6])
	assert.Equal(t, "extra_bonus-100.tube_tic_test, 1", lines[8])
	assert.Equal(t, "good_declare-100.tube, 1", lines[9])
	assert.Equal(t, "extra_bonus-100.tube, 1", lines[15])
}

func TestGrade_AllPassed(t *testing.T) {
	newSubmission(t)

	var out bytes.Buffer
	code, err := newTestApp(&out).grade(context.Background(), testConfig(), runOptions{
		files:     []string{"Test_Suite/good_declare-100.tube", "Test_Suite/good_optim1-100.tube"},
		noHistory: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Contains(t, out.String(), "Grade not calculated: only some test files were run")
	assert.Contains(t, out.String(), "Passes all tests!")
}

func TestGrade_RepeatedTestFile(t *testing.T) {
	newSubmission(t)

	var out bytes.Buffer
	code, err := newTestApp(&out).grade(context.Background(), testConfig(), runOptions{
		files: []string{
			"Test_Suite/good_declare-100.tube",
			"Test_Suite/fail_error-100.tube",
			"./Test_Suite/good_declare-100.tube",
		},
		machine:   true,
		noHistory: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, strings.Join([]string{
		"has_needed_files, 1",
		"make_worked, 1",
		"good_declare-100.tube, 1",
		"fail_error-100.tube, 1",
		"grade, 0",
	}, "\n")+"\n", out.String())
}

func TestGrade_MissingTestFile(t *testing.T) {
	newSubmission(t)

	var out bytes.Buffer
	_, err := newTestApp(&out).grade(context.Background(), testConfig(), runOptions{
		files:     []string{"Test_Suite/nope.tube"},
		noHistory: true,
	})
	require.ErrorContains(t, err, "Test_Suite/nope.tube")
}

func TestGrade_SetupFailure(t *testing.T) {
	dir := newSubmission(t)
	require.NoError(t, os.Remove(filepath.Join(dir, "README.md")))

	var out bytes.Buffer
	code, err := newTestApp(&out).grade(context.Background(), testConfig(), runOptions{machine: true, noHistory: true})
	require.NoError(t, err)
	assert.Equal(t, 1, code)
	assert.Equal(t, "has_needed_files, 0\nmake_worked, 1\ngrade, 0\n", out.String())
}

func TestGrade_RecordsHistoryAndMetrics(t *testing.T) {
	dir := newSubmission(t)
	metricsPath := filepath.Join(t.TempDir(), "tubegrade.prom")

	var out bytes.Buffer
	_, err := newTestApp(&out).grade(context.Background(), testConfig(), runOptions{
		machine:     true,
		metricsFile: metricsPath,
		args:        []string{"tubegrade", "--machine"},
	})
	require.NoError(t, err)

	entries, err := history.LoadEntries(zerolog.Nop(), history.Root(dir))
	require.NoError(t, err)
	require.Len(t, entries, 1)

	h := entries[0].History
	require.NotNil(t, h.Grade)
	assert.Equal(t, 5.5, h.Grade.Earned)
	assert.Equal(t, 1, h.ExitCode)
	assert.Len(t, h.Outcomes, 8)
	assert.Equal(t, 150, h.Outcomes[5].SubmissionCycles)

	for _, typ := range []model.ArtifactType{
		model.ArtifactTypeEvidence,
		model.ArtifactTypeCycleProfile,
		model.ArtifactTypeMetrics,
		model.ArtifactTypeExecutable,
	} {
		artifact, ok := h.Find(typ)
		require.True(t, ok, "missing %s artifact", typ)
		assert.FileExists(t, filepath.Join(entries[0].FullPath, artifact.File))
	}
	profile, _ := h.Find(model.ArtifactTypeCycleProfile)
	assert.Equal(t, cycleprof.FileName, profile.File)

	evidence, err := os.ReadFile(filepath.Join(entries[0].FullPath, evidenceFile))
	require.NoError(t, err)
	assert.Contains(t, string(evidence), "=== Test_Suite/good_optim3-100.tube (fail)")
	assert.NotContains(t, string(evidence), "good_optim1-100.tube")

	metrics, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(metrics), "tubegrade_verdicts_total")
	assert.Contains(t, string(metrics), `kind="earned"`)
}

func TestUniquePaths(t *testing.T) {
	tests := []struct {
		name  string
		paths []string
		want  []string
	}{
		{
			name:  "no repeats",
			paths: []string{"b.tube", "a.tube"},
			want:  []string{"b.tube", "a.tube"},
		},
		{
			name:  "repeat keeps first position",
			paths: []string{"a.tube", "b.tube", "a.tube"},
			want:  []string{"a.tube", "b.tube"},
		},
		{
			name:  "same file spelled differently",
			paths: []string{"Test_Suite/a.tube", "./Test_Suite/a.tube", "Test_Suite/../Test_Suite/a.tube"},
			want:  []string{"Test_Suite/a.tube"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, uniquePaths(tt.paths))
		})
	}
}

func TestBuildCases_KeepsOrderAcrossFlagGroups(t *testing.T) {
	cfg := testConfig()
	cfg.ExtraFlags = []string{"-x"}

	tests := []struct {
		name      string
		paths     []string
		wantFlags [][]string
	}{
		{
			name:      "extra between regular tests",
			paths:     []string{"good_a.tube", "extra_b.tube", "good_c.tube"},
			wantFlags: [][]string{nil, {"-x"}, nil},
		},
		{
			name:      "extra only",
			paths:     []string{"extra_a.tube", "extra_b.tube"},
			wantFlags: [][]string{{"-x"}, {"-x"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			var files []string
			for _, p := range tt.paths {
				path := filepath.Join(dir, p)
				require.NoError(t, os.WriteFile(path, nil, 0o644))
				files = append(files, path)
			}

			cases, err := buildCases(cfg, runOptions{files: files})
			require.NoError(t, err)
			require.Len(t, cases, len(files))
			for i, tc := range cases {
				assert.Equal(t, files[i], tc.Name)
				assert.Equal(t, tt.wantFlags[i], tc.Flags)
			}
		})
	}
}

func TestResolveFiles(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	wd, err := os.Getwd()
	require.NoError(t, err)

	tests := []struct {
		name  string
		files []string
		want  []string
	}{
		{
			name:  "relative paths use the current directory",
			files: []string{"Test_Suite/good_a.tube", "./b.tube"},
			want:  []string{filepath.Join(wd, "Test_Suite/good_a.tube"), filepath.Join(wd, "b.tube")},
		},
		{
			name:  "absolute paths are kept",
			files: []string{"/srv/tests/good_a.tube"},
			want:  []string{"/srv/tests/good_a.tube"},
		},
		{
			name:  "no files",
			files: nil,
			want:  []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveFiles(tt.files)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
