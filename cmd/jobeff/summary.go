package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/happyface/jobeff/efficiency"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	numStyle    = cellStyle.Align(lipgloss.Right)
	errStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
)

func printReports(w io.Writer, reports []instanceReport) {
	for _, r := range reports {
		fmt.Fprintln(w, titleStyle.Render(r.Instance))
		if r.Err != nil {
			fmt.Fprintf(w, "%v %v\n\n", errStyle.Render("failed:"), r.Err)
			continue
		}
		rec := r.Report.Record
		fmt.Fprintf(w, "snapshot %v from %v\n", snapshotTime(rec.ResultTimestamp), rec.SourceURL)
		if len(r.Report.Users) == 0 {
			fmt.Fprintf(w, "no jobs matched\n\n")
			continue
		}
		fmt.Fprintf(w, "plots %v, %v\n", rec.EffPlotFilename, rec.RelEffPlotFilename)
		fmt.Fprintln(w, userTable(r.Report))
		fmt.Fprintln(w)
	}
}

func snapshotTime(ts int64) string {
	if ts == 0 {
		return "unknown"
	}
	return time.Unix(ts, 0).UTC().Format(time.DateTime)
}

// userTable lists the counters of every user, sorted by user name like the
// plots.
func userTable(report *efficiency.Report) string {
	users := make([]string, 0, len(report.Users))
	for u := range report.Users {
		users = append(users, u)
	}
	sort.Strings(users)

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("User", "Total", "Running", "Waiting", "Queued", "<10%", "10-30%", "30-80%", ">80%").
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == 0:
				return cellStyle
			}
			return numStyle
		})
	for _, u := range users {
		s := report.Users[u]
		t.Row(u,
			strconv.Itoa(s.Total),
			strconv.Itoa(s.Running),
			strconv.Itoa(s.Waiting),
			strconv.Itoa(s.Queued),
			strconv.Itoa(s.Ratio10),
			strconv.Itoa(s.Ratio30),
			strconv.Itoa(s.Ratio80),
			strconv.Itoa(s.Ratio100))
	}
	return t.String()
}
