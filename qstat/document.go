// Package qstat reads the xml snapshot of the batch system queue.
//
// The document has three top level sections:
//
//	<qstat>
//	  <header><date>1700000000.25</date></header>
//	  <summaries>
//	    <summary group="atlas" parent="all"/>
//	  </summaries>
//	  <jobs>
//	    <job><user>alice</user><state>running</state><cpueff>93.1</cpueff><group>atlas</group></job>
//	  </jobs>
//	</qstat>
//
// Any element below <jobs> counts as a job, whatever its name. Missing
// fields are left empty.
package qstat

import (
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"

	"golang.org/x/net/html/charset"
)

type Document struct {
	XMLName   xml.Name
	Headers   []header    `xml:"header"`
	Summaries []summaries `xml:"summaries"`
	JobLists  []jobList   `xml:"jobs"`
}

type header struct {
	Dates []string `xml:"date"`
}

type summaries struct {
	Summary []Summary `xml:"summary"`
}

// Summary is one node of the group tree. Attributes are kept raw so that a
// missing attribute can be told apart from an empty one.
type Summary struct {
	Attrs []xml.Attr `xml:",any,attr"`
}

func (s Summary) attr(name string) (string, bool) {
	for _, a := range s.Attrs {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

type jobList struct {
	Entries []Job `xml:",any"`
}

type Job struct {
	User   string `xml:"user"`
	State  string `xml:"state"`
	CPUEff string `xml:"cpueff"`
	Group  string `xml:"group"`
}

func (j *Job) trim() {
	j.User = strings.TrimSpace(j.User)
	j.State = strings.TrimSpace(j.State)
	j.CPUEff = strings.TrimSpace(j.CPUEff)
	j.Group = strings.TrimSpace(j.Group)
}

// Parse decodes a qstat document. Only a document that is not well formed
// is an error; absent sections yield an empty Document.
func Parse(r io.Reader) (*Document, error) {
	var doc Document
	dec := xml.NewDecoder(r)
	// Older batch system exporters declare latin-1.
	dec.CharsetReader = charset.NewReaderLabel
	err := dec.Decode(&doc)
	if err != nil {
		return nil, fmt.Errorf("failed to parse qstat xml: %w", err)
	}
	for i := range doc.JobLists {
		for j := range doc.JobLists[i].Entries {
			doc.JobLists[i].Entries[j].trim()
		}
	}
	return &doc, nil
}

func ParseFile(filename string) (*Document, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open qstat xml %v: %w", filename, err)
	}
	defer f.Close()
	doc, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %v: %w", filename, err)
	}
	slog.Debug("parsed qstat xml", "filename", filename, "jobs", len(doc.Jobs()))
	return doc, nil
}

// Jobs returns the entries of every <jobs> section in document order.
func (d *Document) Jobs() []Job {
	var out []Job
	for _, l := range d.JobLists {
		out = append(out, l.Entries...)
	}
	return out
}

// ExtractTimestamp returns the header date truncated to whole seconds, or 0
// when there is none. The last date wins.
func ExtractTimestamp(d *Document) int64 {
	var date int64
	for _, h := range d.Headers {
		for _, raw := range h.Dates {
			v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
			if err != nil {
				slog.Warn("ignoring unparsable qstat date", "date", raw, "err", err)
				continue
			}
			if math.IsNaN(v) || math.IsInf(v, 0) || v >= math.MaxInt64 || v < math.MinInt64 {
				slog.Warn("ignoring out of range qstat date", "date", raw)
				continue
			}
			date = int64(v)
		}
	}
	return date
}
