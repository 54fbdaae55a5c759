package qstat

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleXML = `<?xml version="1.0"?>
<qstat>
  <header>
    <date> 1700000123.75 </date>
  </header>
  <summaries>
    <summary/>
    <summary group="atlas" parent="all"/>
    <summary group="atlasprod" parent="atlas"/>
    <summary group="cms" parent="all"/>
  </summaries>
  <jobs>
    <job>
      <user> alice </user>
      <state>running</state>
      <cpueff>93.1</cpueff>
      <group>atlasprod</group>
    </job>
    <job id="2">
      <user>bob</user>
      <state>pending</state>
      <group>cms</group>
    </job>
    <entry>
      <state>running</state>
    </entry>
  </jobs>
</qstat>`

func TestParse(t *testing.T) {
	doc, err := Parse(strings.NewReader(sampleXML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	jobs := doc.Jobs()
	if len(jobs) != 3 {
		t.Fatalf("expected 3 jobs, got %v", len(jobs))
	}
	want := Job{User: "alice", State: "running", CPUEff: "93.1", Group: "atlasprod"}
	if jobs[0] != want {
		t.Errorf("expected first job %+v, got %+v", want, jobs[0])
	}
	if jobs[1].CPUEff != "" || jobs[1].User != "bob" {
		t.Errorf("unexpected second job %+v", jobs[1])
	}
	if jobs[2].User != "" {
		t.Errorf("expected job without user, got %+v", jobs[2])
	}
	if ts := ExtractTimestamp(doc); ts != 1700000123 {
		t.Errorf("expected timestamp 1700000123, got %v", ts)
	}
}

func TestParseMalformed(t *testing.T) {
	_, err := Parse(strings.NewReader("<qstat><jobs></qstat>"))
	if err == nil {
		t.Errorf("expected error for malformed document")
	}
}

func TestParseFile(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "qstat.xml")
	err := os.WriteFile(fn, []byte(sampleXML), 0644)
	if err != nil {
		t.Fatal(err)
	}
	doc, err := ParseFile(fn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(doc.Jobs()) != 3 {
		t.Errorf("expected 3 jobs, got %v", len(doc.Jobs()))
	}
	_, err = ParseFile(filepath.Join(t.TempDir(), "missing.xml"))
	if err == nil {
		t.Errorf("expected error for missing file")
	}
}

func TestExtractTimestamp(t *testing.T) {
	for _, tc := range []struct {
		in  string
		out int64
	}{
		{in: `<qstat/>`, out: 0},
		{in: `<qstat><header/></qstat>`, out: 0},
		{in: `<qstat><header><date>42</date></header></qstat>`, out: 42},
		{in: `<qstat><header><date>42.99</date></header></qstat>`, out: 42},
		{in: `<qstat><header><date>soon</date></header></qstat>`, out: 0},
		{in: `<qstat><header><date>1</date></header><header><date>2</date></header></qstat>`, out: 2},
		{in: `<qstat><header><date>NaN</date></header></qstat>`, out: 0},
		{in: `<qstat><header><date>+Inf</date></header></qstat>`, out: 0},
		{in: `<qstat><header><date>1e30</date></header></qstat>`, out: 0},
		{in: `<qstat><header><date>-1e30</date></header></qstat>`, out: 0},
		{in: `<qstat><header><date>7</date></header><header><date>NaN</date></header></qstat>`, out: 7},
	} {
		doc, err := Parse(strings.NewReader(tc.in))
		if err != nil {
			t.Errorf("for input %v, unexpected error %v", tc.in, err)
			continue
		}
		if ts := ExtractTimestamp(doc); ts != tc.out {
			t.Errorf("for input %v, expected %v, got %v", tc.in, tc.out, ts)
		}
	}
}

func TestBuildGroupHierarchy(t *testing.T) {
	doc, err := Parse(strings.NewReader(sampleXML))
	if err != nil {
		t.Fatal(err)
	}
	h := BuildGroupHierarchy(doc)
	want := GroupHierarchy{
		"all":       "",
		"atlas":     "all",
		"atlasprod": "atlas",
		"cms":       "all",
	}
	if len(h) != len(want) {
		t.Fatalf("expected %v, got %v", want, h)
	}
	for k, v := range want {
		if got, ok := h[k]; !ok || got != v {
			t.Errorf("for group %v expected parent %q, got %q (present=%v)", k, v, got, ok)
		}
	}
}

func TestIsGroupMember(t *testing.T) {
	h := GroupHierarchy{
		"all":       "",
		"atlas":     "all",
		"atlasprod": "atlas",
		"cms":       "all",
		"sub":       "teamA",
		"orphan":    "ghost",
	}
	for _, tc := range []struct {
		group    string
		accepted []string
		expected bool
	}{
		{group: "anything", accepted: nil, expected: true},
		{group: "", accepted: nil, expected: true},
		{group: "atlas", accepted: []string{"atlas"}, expected: true},
		{group: "atlasprod", accepted: []string{"atlas"}, expected: true},
		{group: "atlasprod", accepted: []string{"all"}, expected: true},
		{group: "atlas", accepted: []string{"atlasprod"}, expected: false},
		{group: "cms", accepted: []string{"atlas"}, expected: false},
		{group: "cms", accepted: []string{"atlas", "cms"}, expected: true},
		{group: "sub", accepted: []string{"teamA"}, expected: true},
		{group: "teamB", accepted: []string{"teamA"}, expected: false},
		{group: "teamA", accepted: []string{"teamA"}, expected: true},
		{group: "orphan", accepted: []string{"all"}, expected: false},
		{group: "", accepted: []string{"all"}, expected: false},
	} {
		got := IsGroupMember(tc.group, tc.accepted, h)
		if got != tc.expected {
			t.Errorf("for group %q and accepted %v, expected %v, got %v", tc.group, tc.accepted, tc.expected, got)
		}
	}
}

func TestCheckGroupMemberCycle(t *testing.T) {
	h := GroupHierarchy{
		"a":    "b",
		"b":    "a",
		"self": "self",
		"c":    "all",
		"all":  "",
	}
	ok, err := CheckGroupMember("a", []string{"all"}, h)
	if ok {
		t.Errorf("expected cyclic group not to be a member")
	}
	if !errors.Is(err, ErrHierarchyCycle) {
		t.Errorf("expected ErrHierarchyCycle, got %v", err)
	}

	ok, err = CheckGroupMember("self", []string{"all"}, h)
	if ok || !errors.Is(err, ErrHierarchyCycle) {
		t.Errorf("expected self loop to be detected, got %v %v", ok, err)
	}

	// A matching accepted group wins over a cycle found for another one.
	ok, err = CheckGroupMember("a", []string{"all", "b"}, h)
	if !ok || err != nil {
		t.Errorf("expected membership through b, got %v %v", ok, err)
	}

	ok, err = CheckGroupMember("c", []string{"all"}, h)
	if !ok || err != nil {
		t.Errorf("expected c to be a member of all, got %v %v", ok, err)
	}
}
