package efficiency

import (
	"log/slog"
	"strconv"

	"github.com/happyface/jobeff"
	"github.com/happyface/jobeff/qstat"
)

// Aggregate counts the accepted jobs of doc per user. Jobs without a user
// and jobs outside the accepted groups are skipped.
func Aggregate(doc *qstat.Document, accepted []string, hierarchy qstat.GroupHierarchy) map[string]*jobeff.UserStats {
	users := make(map[string]*jobeff.UserStats)
	warned := make(map[string]bool)

	for _, job := range doc.Jobs() {
		if job.User == "" {
			continue
		}
		member, err := qstat.CheckGroupMember(job.Group, accepted, hierarchy)
		if err != nil && !warned[job.Group] {
			slog.Warn("treating group as non-member", "group", job.Group, "err", err)
			warned[job.Group] = true
		}
		if !member {
			continue
		}

		u := users[job.User]
		if u == nil {
			u = new(jobeff.UserStats)
			users[job.User] = u
		}
		u.Total++

		switch job.State {
		case jobeff.StatePending:
			u.Queued++
		case jobeff.StateWaiting:
			u.Waiting++
		case jobeff.StateRunning:
			u.Running++
			// Some running jobs do not report cpueff yet.
			if job.CPUEff != "" {
				addRatio(u, job.CPUEff)
			}
		}
	}
	return users
}

// addRatio puts a running job in its cpu/wall bucket. A value that does not
// parse fails every comparison and lands in the lowest bucket.
func addRatio(u *jobeff.UserStats, cpuEff string) {
	eff, err := strconv.ParseFloat(cpuEff, 64)
	switch {
	case err != nil:
		u.Ratio10++
	case eff > 80:
		u.Ratio100++
	case eff > 30:
		u.Ratio80++
	case eff > 10:
		u.Ratio30++
	default:
		u.Ratio10++
	}
}
