// Package junit reads JUnit XML reports into classified test runs.
package junit

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fairyhunter13/browndog-tests/internal/domain"
	"github.com/fairyhunter13/browndog-tests/pkg/textx"
)

type suites struct {
	XMLName xml.Name `xml:"testsuites"`
	Suites  []suite  `xml:"testsuite"`
}

type suite struct {
	XMLName xml.Name `xml:"testsuite"`
	Tests   int      `xml:"tests,attr"`
	Time    float64  `xml:"time,attr"`
	Cases   []tcase  `xml:"testcase"`
}

type tcase struct {
	Name      string  `xml:"name,attr"`
	Classname string  `xml:"classname,attr"`
	Time      float64 `xml:"time,attr"`
	Error     *detail `xml:"error"`
	Failure   *detail `xml:"failure"`
	Skipped   *detail `xml:"skipped"`
	SystemOut *string `xml:"system-out"`
}

type detail struct {
	Message string `xml:"message,attr"`
	Text    string `xml:",chardata"`
}

// Meta carries the run attributes that are not part of the XML.
type Meta struct {
	Host   string
	Server string
	Date   time.Time
}

// ParseFile opens path and parses it.
func ParseFile(path string, meta Meta) (domain.TestRun, []byte, error) {
	// #nosec G304 -- report path comes from the command line
	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.TestRun{}, nil, fmt.Errorf("op=junit.ParseFile: %w", err)
	}
	run, err := Parse(bytes.NewReader(raw), meta)
	return run, raw, err
}

// Parse decodes a <testsuite> or <testsuites> document and classifies every
// case. Totals and elapsed time come from the suite attributes; a
// <testsuites> root sums its suites.
func Parse(r io.Reader, meta Meta) (domain.TestRun, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return domain.TestRun{}, fmt.Errorf("op=junit.Parse: %w", err)
	}
	all, err := decode(raw)
	if err != nil {
		return domain.TestRun{}, fmt.Errorf("op=junit.Parse: %w: %v", domain.ErrInvalidArgument, err)
	}

	date := meta.Date
	if date.IsZero() {
		date = time.Now().UTC()
	}
	run := domain.TestRun{
		Host:    meta.Host,
		Server:  strings.ToUpper(meta.Server),
		Date:    date,
		Results: map[domain.Outcome][]domain.CaseResult{},
	}
	for _, s := range all {
		run.Tests.Total += s.Tests
		run.ElapsedTime += s.Time
		for _, c := range s.Cases {
			o, res := classify(c)
			run.Add(o, res)
		}
	}
	return run, nil
}

func decode(raw []byte) ([]suite, error) {
	var root struct{ XMLName xml.Name }
	if err := xml.Unmarshal(raw, &root); err != nil {
		return nil, err
	}
	switch root.XMLName.Local {
	case "testsuite":
		var s suite
		if err := xml.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return []suite{s}, nil
	case "testsuites":
		var ss suites
		if err := xml.Unmarshal(raw, &ss); err != nil {
			return nil, err
		}
		return ss.Suites, nil
	default:
		return nil, errors.New("unexpected root element " + root.XMLName.Local)
	}
}

func classify(c tcase) (domain.Outcome, domain.CaseResult) {
	res := domain.CaseResult{Name: c.Name, Classname: c.Classname, Time: c.Time}
	if c.SystemOut != nil {
		res.SystemOut = textx.SanitizeText(*c.SystemOut)
	}
	switch {
	case c.Error != nil:
		res.Message = textx.SanitizeText(c.Error.Text)
		return domain.OutcomeErrors, res
	case c.Failure != nil:
		res.Message = textx.SanitizeText(c.Failure.Text)
		return domain.OutcomeFailures, res
	case c.Skipped != nil:
		res.Message = textx.SanitizeText(c.Skipped.Message)
		return domain.OutcomeSkipped, res
	default:
		return domain.OutcomeSuccess, res
	}
}
