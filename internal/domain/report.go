package domain

import "time"

// Outcome classifies a single test case in a JUnit report.
type Outcome string

const (
	OutcomeErrors   Outcome = "errors"
	OutcomeFailures Outcome = "failures"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeSuccess  Outcome = "success"
)

// Outcomes lists outcomes in report order.
var Outcomes = []Outcome{OutcomeFailures, OutcomeErrors, OutcomeSkipped, OutcomeSuccess}

// CaseResult is one test case from a JUnit report.
type CaseResult struct {
	Name      string  `json:"name"`
	Classname string  `json:"classname"`
	Time      float64 `json:"time"`
	Message   string  `json:"message,omitempty"`
	SystemOut string  `json:"system-out,omitempty"`
}

// Totals counts cases per outcome.
type Totals struct {
	Total    int `json:"total"`
	Failures int `json:"failures"`
	Errors   int `json:"errors"`
	Skipped  int `json:"skipped"`
	Success  int `json:"success"`
}

// TestRun is a parsed and classified JUnit report.
type TestRun struct {
	ID          string                   `json:"id,omitempty"`
	Host        string                   `json:"host"`
	Server      string                   `json:"server"`
	Date        time.Time                `json:"date"`
	ElapsedTime float64                  `json:"elapsed_time"`
	Tests       Totals                   `json:"tests"`
	Results     map[Outcome][]CaseResult `json:"results,omitempty"`
}

// Add classifies a case and updates the per-outcome counters.
func (r *TestRun) Add(o Outcome, c CaseResult) {
	if r.Results == nil {
		r.Results = map[Outcome][]CaseResult{}
	}
	r.Results[o] = append(r.Results[o], c)
	switch o {
	case OutcomeFailures:
		r.Tests.Failures++
	case OutcomeErrors:
		r.Tests.Errors++
	case OutcomeSkipped:
		r.Tests.Skipped++
	case OutcomeSuccess:
		r.Tests.Success++
	}
}

// Failed reports whether any case failed or errored.
func (r TestRun) Failed() bool { return r.Tests.Failures > 0 || r.Tests.Errors > 0 }

// WithoutSuccess returns a copy whose results omit successful cases.
func (r TestRun) WithoutSuccess() TestRun {
	out := r
	out.Results = make(map[Outcome][]CaseResult, len(r.Results))
	for k, v := range r.Results {
		if k == OutcomeSuccess {
			continue
		}
		out.Results[k] = v
	}
	return out
}

// Watcher is a report recipient from the watchers file.
type Watcher struct {
	Address    string `yaml:"address" validate:"required,email"`
	GetFailure bool   `yaml:"get_failure"`
	GetSuccess bool   `yaml:"get_success"`
}

// RunQuery filters stored test runs.
type RunQuery struct {
	Server string
	Since  time.Time
	ID     string
	Limit  int
	Expand bool
}

// Ports

// RunStore persists and lists test runs.
type RunStore interface {
	Insert(ctx Context, run TestRun) (string, error)
	List(ctx Context, q RunQuery) ([]TestRun, error)
}

// RunPublisher announces stored test runs.
type RunPublisher interface {
	PublishRun(ctx Context, run TestRun) error
}

// Mailer delivers a message to recipients.
type Mailer interface {
	Send(ctx Context, from string, to []string, subject, body string) error
}

// RunGuard claims a report fingerprint so the same report is not dispatched twice.
type RunGuard interface {
	Claim(ctx Context, fingerprint string, ttl time.Duration) (bool, error)
	Release(ctx Context, fingerprint string) error
}
