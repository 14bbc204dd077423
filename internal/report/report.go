// Package report renders run summaries and website listings as terminal tables.
package report

import (
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/JakeFAU/website-archiver/internal/archive"
)

const maxErrorWidth = 60

// Render writes one row per job followed by the archived/dead/failed totals.
func Render(w io.Writer, r archive.Report) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle("Run " + r.RunID + " (" + r.RunDate + ")")

	t.AppendHeader(table.Row{"Website", "URL", "Check", "State", "Exit", "Destination", "Error"})
	for _, res := range r.Results {
		exit := ""
		if res.ExitCode >= 0 {
			exit = strconv.Itoa(res.ExitCode)
		}
		t.AppendRow(table.Row{
			res.WebsiteID,
			res.URL,
			res.CheckStatus,
			string(res.State),
			exit,
			res.Destination,
			truncate(res.Error(), maxErrorWidth),
		})
	}
	t.AppendFooter(table.Row{"", "", "", "archived", r.Archived, "", ""})
	t.AppendFooter(table.Row{"", "", "", "dead", r.Dead, "", ""})
	t.AppendFooter(table.Row{"", "", "", "failed", r.Failed, "", ""})
	t.SortBy([]table.SortBy{{Name: "Website", Mode: table.AlphaNumeric}})
	t.Render()
}

// Websites writes the tracked websites.
func Websites(w io.Writer, sites []archive.Website) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "URL", "Valid"})
	for _, s := range sites {
		t.AppendRow(table.Row{s.ID, s.URL, s.IsValid})
	}
	t.AppendFooter(table.Row{"", "total", len(sites)})
	t.Render()
}

// Runs writes run history, newest first.
func Runs(w io.Writer, runs []archive.RunSummary) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Run", "Date", "Started", "Duration", "Archived", "Dead", "Failed", "Interrupted"})
	for _, r := range runs {
		t.AppendRow(table.Row{
			r.RunID,
			r.RunDate,
			r.StartedAt.Format("2006-01-02 15:04:05"),
			r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String(),
			r.Archived,
			r.Dead,
			r.Failed,
			r.Interrupted,
		})
	}
	t.Render()
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
