package usecase

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/fairyhunter13/browndog-tests/internal/domain"
)

const caseRule = "----------------------------------------------------------------------\n"

var sectionHeaders = map[domain.Outcome]string{
	domain.OutcomeFailures: "++++++++++++++++++++++++++++ FAILURES ++++++++++++++++++++++++++++++++\n",
	domain.OutcomeErrors:   "++++++++++++++++++++++++++++ ERRORS ++++++++++++++++++++++++++++++++++\n",
	domain.OutcomeSkipped:  "++++++++++++++++++++++++++++ SKIPPED +++++++++++++++++++++++++++++++++\n",
	domain.OutcomeSuccess:  "++++++++++++++++++++++++++++ SUCCESS +++++++++++++++++++++++++++++++++\n",
}

// TextOptions selects the optional parts of a plain-text report.
type TextOptions struct {
	Server  bool
	Success bool
}

// FormatSummary renders the header block of a report.
func FormatSummary(run domain.TestRun, opts TextOptions) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Host         : %s\n", run.Host)
	if opts.Server {
		fmt.Fprintf(&b, "Server       : %s\n", run.Server)
	}
	fmt.Fprintf(&b, "Total Tests  : %d\n", run.Tests.Total)
	fmt.Fprintf(&b, "Failures     : %d\n", run.Tests.Failures)
	fmt.Fprintf(&b, "Errors       : %d\n", run.Tests.Errors)
	fmt.Fprintf(&b, "Skipped      : %d\n", run.Tests.Skipped)
	fmt.Fprintf(&b, "Success      : %d\n", run.Tests.Success)
	fmt.Fprintf(&b, "Elapsed time : %5.2f seconds\n", run.ElapsedTime)
	return b.String()
}

// FormatSections renders one block per case, grouped by outcome in
// report order. Empty outcomes are left out.
func FormatSections(run domain.TestRun, success bool) string {
	var b strings.Builder
	for _, o := range domain.Outcomes {
		if o == domain.OutcomeSuccess && !success {
			continue
		}
		cases := run.Results[o]
		if len(cases) == 0 {
			continue
		}
		b.WriteString(sectionHeaders[o])
		for _, c := range cases {
			b.WriteString(FormatCase(c))
		}
	}
	return b.String()
}

// FormatCase renders a single case block.
func FormatCase(c domain.CaseResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Name       : %s\n", c.Name)
	fmt.Fprintf(&b, "Classname  : %s\n", c.Classname)
	fmt.Fprintf(&b, "time       : %5.2f seconds\n", c.Time)
	if c.Message != "" {
		fmt.Fprintf(&b, "Message    : %s\n", c.Message)
	}
	if c.SystemOut != "" {
		fmt.Fprintf(&b, "system out : %s\n", c.SystemOut)
	}
	b.WriteString(caseRule)
	return b.String()
}

// FormatText renders the full plain-text report.
func FormatText(run domain.TestRun, opts TextOptions) string {
	return FormatSummary(run, opts) + "\n" + FormatSections(run, opts.Success)
}

// MailBody is the e-mail variant of the report: no server line and no
// successful cases.
func MailBody(run domain.TestRun) string {
	return FormatSummary(run, TextOptions{}) + FormatSections(run, false)
}

// Subject is the e-mail subject for run.
func Subject(run domain.TestRun) string {
	if run.Failed() {
		return fmt.Sprintf("[%s] Brown Dog Tests Failures", run.Server)
	}
	return fmt.Sprintf("[%s] Brown Dog Tests Successful", run.Server)
}

// Recipients picks the watchers subscribed to the outcome of run.
func Recipients(watchers []domain.Watcher, failed bool) []string {
	var out []string
	for _, w := range watchers {
		if (failed && w.GetFailure) || (!failed && w.GetSuccess) {
			out = append(out, w.Address)
		}
	}
	return out
}

// RenderConsole writes the summary as a table followed by the case sections.
func RenderConsole(w io.Writer, run domain.TestRun) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{text.FgHiCyan.Sprint("FIELD"), text.FgHiCyan.Sprint("VALUE")})
	t.AppendRows([]table.Row{
		{"Host", run.Host},
		{"Server", run.Server},
		{"Total Tests", run.Tests.Total},
		{"Failures", outcomeCount(run.Tests.Failures, text.FgRed)},
		{"Errors", outcomeCount(run.Tests.Errors, text.FgRed)},
		{"Skipped", outcomeCount(run.Tests.Skipped, text.FgYellow)},
		{"Success", outcomeCount(run.Tests.Success, text.FgGreen)},
		{"Elapsed time", fmt.Sprintf("%5.2f seconds", run.ElapsedTime)},
	})
	t.Render()
	_, _ = io.WriteString(w, "\n"+FormatSections(run, true))
}

func outcomeCount(n int, c text.Color) string {
	if n == 0 {
		return "0"
	}
	return c.Sprint(n)
}
