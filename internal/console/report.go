// Package console renders the batch pass/fail summary a controller run
// prints once a test finishes (spec.md §7's "user-visible failure"
// section: per-scenario pass/fail, exception, output, logs, time taken,
// succeeded/failed counts, metrics table). Grounded on the teacher's
// internal/formatting/table_formatter.go go-pretty table.Writer usage
// (AppendHeader/AppendRow/SetOutputMirror/Render), adapted from MCP
// tools/resources/prompts listings to scenario results. This is the
// one-shot batch report, not the live TUI spec.md §1 excludes.
package console

import (
	"fmt"
	"sort"
	"strings"

	"cicadad/internal/backend"
	"cicadad/internal/metrics"
	cstrings "cicadad/pkg/strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// summaryLineMaxLen bounds the Exception/Output lines rendered alongside a
// scenario's pass/fail status, so a long error message or return value
// can't break the single-line status format; the full value is still
// available in Logs for showLogs/failed output.
const summaryLineMaxLen = 200

// MetricDisplay names one metric to render in the batch report, reusing
// internal/metrics.Display's store-querying signature (not the live
// per-poll scenario.ConsoleMetricDisplay, which only sees MetricStatistics).
type MetricDisplay struct {
	Name    string
	Display metrics.Display
}

// ScenarioReport is one scenario's final, fully-resolved result, ready
// to render.
type ScenarioReport struct {
	Name    string
	Result  backend.ScenarioResult
	Metrics map[string]string // rendered MetricDisplay.Name -> value
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	return t
}

// RenderScenario formats one scenario's pass/fail section: status line,
// exception (if failed), output, logs (only if failed or showLogs is
// set), time taken, succeeded/failed counts, and a metrics table.
func RenderScenario(r ScenarioReport, showLogs bool) string {
	var out strings.Builder

	failed := r.Result.Exception != nil
	status := text.Colors{text.FgHiGreen, text.Bold}.Sprint("PASSED")
	if failed {
		status = text.Colors{text.FgHiRed, text.Bold}.Sprint("FAILED")
	}
	fmt.Fprintf(&out, "%s %s\n", status, text.Bold.Sprint(r.Name))

	if failed {
		fmt.Fprintf(&out, "  Exception: %s\n", cstrings.TruncateDescription(*r.Result.Exception, summaryLineMaxLen))
	}
	if !r.Result.Output.IsNull() {
		fmt.Fprintf(&out, "  Output: %s\n", cstrings.TruncateDescription(string(r.Result.Output.Raw()), summaryLineMaxLen))
	}
	if (failed || showLogs) && r.Result.Logs != "" {
		fmt.Fprintf(&out, "  Logs:\n%s\n", indent(r.Result.Logs))
	}

	fmt.Fprintf(&out, "  Time taken: %.3fs, Succeeded: %d, Failed: %d\n",
		r.Result.TimeTaken, r.Result.Succeeded, r.Result.Failed)

	if len(r.Metrics) > 0 {
		out.WriteString(renderMetricsTable(r.Metrics))
	}

	return out.String()
}

func renderMetricsTable(rendered map[string]string) string {
	names := make([]string, 0, len(rendered))
	for name := range rendered {
		names = append(names, name)
	}
	sort.Strings(names)

	t := newTable()
	t.AppendHeader(table.Row{
		text.FgHiCyan.Sprint("METRIC"),
		text.FgHiCyan.Sprint("VALUE"),
	})
	for _, name := range names {
		t.AppendRow(table.Row{name, rendered[name]})
	}

	var out strings.Builder
	t.SetOutputMirror(&out)
	t.Render()
	return out.String()
}

// RenderSummary formats the whole-test pass/fail totals across reports.
func RenderSummary(reports []ScenarioReport) string {
	passed, failedCount := 0, 0
	for _, r := range reports {
		if r.Result.Exception != nil {
			failedCount++
		} else {
			passed++
		}
	}

	t := newTable()
	t.AppendHeader(table.Row{
		text.FgHiCyan.Sprint("SCENARIO"),
		text.FgHiCyan.Sprint("STATUS"),
		text.FgHiCyan.Sprint("SUCCEEDED"),
		text.FgHiCyan.Sprint("FAILED"),
	})
	sorted := append([]ScenarioReport(nil), reports...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	for _, r := range sorted {
		status := text.Colors{text.FgHiGreen, text.Bold}.Sprint("PASSED")
		if r.Result.Exception != nil {
			status = text.Colors{text.FgHiRed, text.Bold}.Sprint("FAILED")
		}
		t.AppendRow(table.Row{r.Name, status, r.Result.Succeeded, r.Result.Failed})
	}

	var out strings.Builder
	t.SetOutputMirror(&out)
	t.Render()
	fmt.Fprintf(&out, "\n%s %d passed, %d failed\n",
		text.Bold.Sprint("Total:"), passed, failedCount)
	return out.String()
}

func indent(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, line := range lines {
		lines[i] = "    " + line
	}
	return strings.Join(lines, "\n")
}
