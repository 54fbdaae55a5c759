package efficiency

import (
	"fmt"
	"strings"
	"testing"

	"github.com/happyface/jobeff"
	"github.com/happyface/jobeff/qstat"
)

type testJob struct {
	user, state, cpuEff, group string
}

func buildDoc(t *testing.T, summaries string, jobs []testJob) *qstat.Document {
	t.Helper()
	var b strings.Builder
	b.WriteString("<qstat><summaries>" + summaries + "</summaries><jobs>")
	for _, j := range jobs {
		b.WriteString("<job>")
		for _, f := range []struct{ tag, val string }{
			{"user", j.user}, {"state", j.state}, {"cpueff", j.cpuEff}, {"group", j.group},
		} {
			if f.val != "" {
				fmt.Fprintf(&b, "<%s>%s</%s>", f.tag, f.val, f.tag)
			}
		}
		b.WriteString("</job>")
	}
	b.WriteString("</jobs></qstat>")
	doc, err := qstat.Parse(strings.NewReader(b.String()))
	if err != nil {
		t.Fatalf("failed to parse test document: %v", err)
	}
	return doc
}

func TestAggregateRatioBuckets(t *testing.T) {
	for _, tc := range []struct {
		cpuEff   string
		expected jobeff.UserStats
	}{
		{cpuEff: "100", expected: jobeff.UserStats{Ratio100: 1}},
		{cpuEff: "80.01", expected: jobeff.UserStats{Ratio100: 1}},
		{cpuEff: "80", expected: jobeff.UserStats{Ratio80: 1}},
		{cpuEff: "30.5", expected: jobeff.UserStats{Ratio80: 1}},
		{cpuEff: "30", expected: jobeff.UserStats{Ratio30: 1}},
		{cpuEff: "10.1", expected: jobeff.UserStats{Ratio30: 1}},
		{cpuEff: "10", expected: jobeff.UserStats{Ratio10: 1}},
		{cpuEff: "0", expected: jobeff.UserStats{Ratio10: 1}},
		{cpuEff: "-3", expected: jobeff.UserStats{Ratio10: 1}},
		{cpuEff: "n/a", expected: jobeff.UserStats{Ratio10: 1}},
		{cpuEff: "", expected: jobeff.UserStats{}},
	} {
		doc := buildDoc(t, "", []testJob{{user: "alice", state: "running", cpuEff: tc.cpuEff}})
		users := Aggregate(doc, nil, qstat.GroupHierarchy{})
		tc.expected.Total = 1
		tc.expected.Running = 1
		if got := users["alice"]; got == nil || *got != tc.expected {
			t.Errorf("for cpueff %q, expected %+v, got %+v", tc.cpuEff, tc.expected, got)
		}
	}
}

func TestAggregateStates(t *testing.T) {
	doc := buildDoc(t, "", []testJob{
		{user: "carol", state: "pending"},
		{user: "carol", state: "pending", cpuEff: "99"},
		{user: "carol", state: "waiting"},
		{user: "carol", state: "held"},
		{user: "carol", state: "running"},
		{user: "carol", state: "running", cpuEff: "55"},
		{state: "running", cpuEff: "99"},
	})
	users := Aggregate(doc, nil, qstat.GroupHierarchy{})
	if len(users) != 1 {
		t.Fatalf("expected only carol, got %v", users)
	}
	expected := jobeff.UserStats{Total: 6, Queued: 2, Waiting: 1, Running: 2, Ratio80: 1}
	if *users["carol"] != expected {
		t.Errorf("expected %+v, got %+v", expected, *users["carol"])
	}
}

func TestAggregateScenario(t *testing.T) {
	doc := buildDoc(t, "", []testJob{
		{user: "alice", state: "running", cpuEff: "90"},
		{user: "bob", state: "pending"},
	})
	users := Aggregate(doc, nil, qstat.GroupHierarchy{})
	if got := *users["alice"]; got != (jobeff.UserStats{Total: 1, Running: 1, Ratio100: 1}) {
		t.Errorf("unexpected alice stats %+v", got)
	}
	if got := *users["bob"]; got != (jobeff.UserStats{Total: 1, Queued: 1}) {
		t.Errorf("unexpected bob stats %+v", got)
	}
}

func TestAggregateGroupFilter(t *testing.T) {
	summaries := `<summary group="teamA"/><summary group="sub" parent="teamA"/><summary group="x" parent="y"/><summary group="y" parent="x"/>`
	jobs := []testJob{
		{user: "u1", state: "running", cpuEff: "50", group: "sub"},
		{user: "u2", state: "running", cpuEff: "50", group: "teamB"},
		{user: "u3", state: "pending", group: "teamA"},
		{user: "u4", state: "pending", group: "x"},
		{user: "u5", state: "pending"},
	}
	for _, tc := range []struct {
		accepted []string
		expected []string
	}{
		{accepted: nil, expected: []string{"u1", "u2", "u3", "u4", "u5"}},
		{accepted: []string{"teamA"}, expected: []string{"u1", "u3"}},
		{accepted: []string{"sub"}, expected: []string{"u1"}},
		{accepted: []string{"teamB"}, expected: []string{"u2"}},
		{accepted: []string{"y"}, expected: []string{"u4"}},
		{accepted: []string{"nobody"}, expected: nil},
	} {
		doc := buildDoc(t, summaries, jobs)
		users := Aggregate(doc, tc.accepted, qstat.BuildGroupHierarchy(doc))
		if len(users) != len(tc.expected) {
			t.Errorf("for filter %v, expected users %v, got %v", tc.accepted, tc.expected, users)
			continue
		}
		for _, u := range tc.expected {
			if users[u] == nil || users[u].Total != 1 {
				t.Errorf("for filter %v, expected user %v with one job, got %+v", tc.accepted, u, users[u])
			}
		}
	}
}

func TestAggregateTotalCountsEveryState(t *testing.T) {
	var jobs []testJob
	states := []string{"pending", "waiting", "running", "exiting", ""}
	for i := 0; i < 25; i++ {
		jobs = append(jobs, testJob{user: "dave", state: states[i%len(states)], cpuEff: "12"})
	}
	users := Aggregate(buildDoc(t, "", jobs), nil, qstat.GroupHierarchy{})
	u := users["dave"]
	if u.Total != 25 {
		t.Errorf("expected total 25, got %v", u.Total)
	}
	if u.Ratio10+u.Ratio30+u.Ratio80+u.Ratio100 != u.Running {
		t.Errorf("expected every running job with cpueff in one bucket, got %+v", *u)
	}
}
