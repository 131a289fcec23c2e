package cli

// This file contains the rendering of a grading run: the per-test summary,
// the grade table, the first failure's evidence and the machine mode lines.

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/muesli/termenv"
	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/tubegrade/tubegrade/grade"
	"github.com/tubegrade/tubegrade/oracle"
	"github.com/tubegrade/tubegrade/outcome"
)

type reporter struct {
	out    io.Writer
	color  bool
	r      *lipgloss.Renderer
	logger zerolog.Logger
}

// resolveColor decides whether verdicts are coloured for mode
// auto|always|never.
func resolveColor(mode string, out io.Writer) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "auto":
		return isTerminal(out), nil
	case "always":
		return true, nil
	case "never":
		return false, nil
	default:
		return false, fmt.Errorf("invalid color mode %q (expected auto|always|never)", mode)
	}
}

func isTerminal(out io.Writer) bool {
	if out == nil {
		return false
	}
	if file, ok := out.(*os.File); ok {
		return term.IsTerminal(int(file.Fd()))
	}
	if fder, ok := out.(interface{ Fd() uintptr }); ok {
		return term.IsTerminal(int(fder.Fd()))
	}
	return false
}

func newReporter(out io.Writer, color bool, logger zerolog.Logger) *reporter {
	r := lipgloss.NewRenderer(out)
	if color {
		r.SetColorProfile(termenv.ANSI256)
	} else {
		r.SetColorProfile(termenv.Ascii)
	}
	return &reporter{out: out, color: color, r: r, logger: logger}
}

func (rp *reporter) statusStyle(status oracle.Status) lipgloss.Style {
	color := lipgloss.Color("244")
	switch status {
	case oracle.Pass:
		color = lipgloss.Color("42")
	case oracle.Fail:
		color = lipgloss.Color("220")
	case oracle.InternalFault:
		color = lipgloss.Color("196")
	}
	return rp.r.NewStyle().Foreground(color)
}

func (rp *reporter) println(lines ...string) {
	for _, line := range lines {
		fmt.Fprintln(rp.out, line)
	}
}

func (rp *reporter) start() {
	rp.println("Starting Tests...")
}

// summary prints one line per outcome. Only the verdict part is coloured so
// the padded name column stays aligned.
func (rp *reporter) summary(agg *outcome.Aggregator) {
	if !rp.color {
		if err := agg.Summarize(rp.out); err != nil {
			rp.logger.Warn().Err(err).Msg("Failed to write test summary")
		}
		rp.println("")
		return
	}
	for _, o := range agg.Outcomes() {
		line := outcome.SummaryLine(o)
		name, last := line[:len(line)-len(lastEvidence(o))], lastEvidence(o)
		rp.println(name + rp.statusStyle(o.Verdict.Status).Render(last))
	}
	rp.println("")
}

func lastEvidence(o outcome.Outcome) string {
	if n := len(o.Verdict.Evidence); n > 0 {
		return o.Verdict.Evidence[n-1]
	}
	return o.Verdict.Reason
}

// gradeTable renders the rubric result as a table followed by the
// per-criterion trail and the tentative grade line.
func (rp *reporter) gradeTable(report grade.Report) {
	var buf bytes.Buffer

	t := table.NewWriter()
	t.SetOutputMirror(&buf)
	t.SetTitle("Rubric")
	t.AppendHeader(table.Row{"CRITERION", "TESTS", "PASSED", "POINTS", "NOTE"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "TESTS", Align: text.AlignRight},
		{Name: "PASSED", Align: text.AlignRight},
		{Name: "POINTS", Align: text.AlignRight},
	})
	for _, s := range report.Scores {
		note := ""
		if s.Skipped {
			note = s.Lines[0]
		}
		t.AppendRow(table.Row{
			s.Name,
			s.Total,
			s.Passed,
			fmt.Sprintf("%s / %s", grade.Format(s.Earned), grade.Format(s.Possible)),
			note,
		})
	}
	t.AppendFooter(table.Row{"TOTAL", "", "", fmt.Sprintf("%s / %s", grade.Format(report.Total), grade.Format(report.Possible)), ""})
	t.SetStyle(table.StyleLight)
	t.Render()

	fmt.Fprint(rp.out, buf.String())
	rp.println("")
	rp.println(report.Lines()...)
}

// verdict prints the closing lines: either all passed or the first
// failure's evidence.
func (rp *reporter) verdict(agg *outcome.Aggregator) {
	rp.println("")
	if agg.AllPassed() {
		rp.println(rp.statusStyle(oracle.Pass).Render("Passes all tests!"))
		return
	}
	rp.println("", "First Failure's Details:")
	if err := agg.WriteFirstFailure(rp.out); err != nil {
		rp.logger.Warn().Err(err).Msg("Failed to write first failure details")
	}
}

// allEvidence prints the evidence trail of every outcome.
func (rp *reporter) allEvidence(agg *outcome.Aggregator) {
	rp.println("", "All Test Details:")
	for _, o := range agg.Outcomes() {
		rp.println("")
		rp.println(o.Verdict.Evidence...)
	}
}

func (rp *reporter) machine(agg *outcome.Aggregator, total float64) {
	rp.println(agg.MachineLines()...)
	rp.println(fmt.Sprintf("grade, %s", grade.Format(total)))
}
