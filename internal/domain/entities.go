package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument       = errors.New("invalid argument")
	ErrNotFound              = errors.New("not found")
	ErrTransport             = errors.New("transport error")
	ErrService               = errors.New("service error")
	ErrForbidden             = errors.New("forbidden")
	ErrNotReady              = errors.New("not ready")
	ErrTimedOut              = errors.New("timed out")
	ErrNotFoundAfterDeadline = errors.New("not found after deadline")
	ErrEmptyArtifact         = errors.New("empty artifact")
	ErrDuplicate             = errors.New("duplicate")
)

// TransportError wraps a failure below HTTP semantics: dial, TLS, timeout, cancellation.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("op=%s: transport: %v", e.Op, e.Err) }

func (e *TransportError) Unwrap() error { return e.Err }

// Is matches ErrTransport.
func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// ServiceError is a non-2xx reply from an authoritative call.
type ServiceError struct {
	Method string
	URL    string
	Status int
	Body   string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.Status, e.Body)
}

// Is matches ErrService, plus ErrForbidden for 401/403 and ErrNotReady for 404.
func (e *ServiceError) Is(target error) bool {
	switch target {
	case ErrService:
		return true
	case ErrForbidden:
		return e.Status == 401 || e.Status == 403
	case ErrNotReady:
		return e.Status == 404
	}
	return false
}

// Credential is an API key and the bearer token issued under it.
type Credential struct {
	Key   string
	Token string
}

// JobKind enumerates server-side task kinds.
type JobKind string

const (
	JobConversion JobKind = "conversion"
	JobExtraction JobKind = "extraction"
)

// JobState tracks a job from submission to a terminal outcome.
// Transitions: submitted -> polling -> (ready -> downloading -> success|empty_artifact) | timed_out | failed
type JobState string

const (
	JobSubmitted     JobState = "submitted"
	JobPolling       JobState = "polling"
	JobReady         JobState = "ready"
	JobDownloading   JobState = "downloading"
	JobSuccess       JobState = "success"
	JobEmptyArtifact JobState = "empty_artifact"
	JobTimedOut      JobState = "timed_out"
	JobFailed        JobState = "failed"
)

// Terminal reports whether no further transition is possible.
func (s JobState) Terminal() bool {
	switch s {
	case JobSuccess, JobEmptyArtifact, JobTimedOut, JobFailed:
		return true
	}
	return false
}

var jobTransitions = map[JobState][]JobState{
	JobSubmitted:   {JobPolling, JobFailed},
	JobPolling:     {JobReady, JobTimedOut, JobFailed},
	JobReady:       {JobDownloading, JobSuccess, JobFailed},
	JobDownloading: {JobSuccess, JobEmptyArtifact, JobTimedOut, JobFailed},
}

// CanTransition reports whether next is a legal successor of s.
func (s JobState) CanTransition(next JobState) bool {
	for _, n := range jobTransitions[s] {
		if n == next {
			return true
		}
	}
	return false
}

// Job is a server-side conversion or extraction task.
type Job struct {
	ID        string
	Kind      JobKind
	Source    string
	Output    string
	Extractor string
	State     JobState
	Deadline  time.Time
}

// Advance moves the job to next, rejecting illegal transitions.
func (j *Job) Advance(next JobState) error {
	if !j.State.CanTransition(next) {
		return fmt.Errorf("%w: job %s cannot move from %s to %s", ErrInvalidArgument, j.ID, j.State, next)
	}
	j.State = next
	return nil
}

// PollStatus is the outcome of a poll loop.
type PollStatus string

const (
	PollPending  PollStatus = "pending"
	PollReady    PollStatus = "ready"
	PollFailed   PollStatus = "failed"
	PollTimedOut PollStatus = "timed_out"
)

// PollResult carries the last payload observed by a poll loop.
type PollResult[T any] struct {
	Status   PollStatus
	Payload  T
	Attempts int
}

// DownloadStatus is the outcome of a streamed download.
type DownloadStatus string

const (
	DownloadSuccess               DownloadStatus = "success"
	DownloadNotFoundAfterDeadline DownloadStatus = "not_found_after_deadline"
	DownloadTransportError        DownloadStatus = "transport_error"
	DownloadFailed                DownloadStatus = "failed"
)

// DownloadOutcome describes what a download left on disk.
type DownloadOutcome struct {
	Status   DownloadStatus
	Path     string
	Size     int64
	Attempts int
	Err      error
}

// Verify converts the outcome into an error; a zero-byte success is ErrEmptyArtifact.
func (o DownloadOutcome) Verify() error {
	switch o.Status {
	case DownloadSuccess:
		if o.Size == 0 {
			return fmt.Errorf("%w: %s", ErrEmptyArtifact, o.Path)
		}
		return nil
	case DownloadNotFoundAfterDeadline:
		if o.Err != nil {
			return o.Err
		}
		return ErrNotFoundAfterDeadline
	default:
		if o.Err != nil {
			return o.Err
		}
		return fmt.Errorf("download %s: %s", o.Path, o.Status)
	}
}

// ExtractionDone is the extraction status reported once every extractor finished.
const ExtractionDone = "Done"

// ExtractionStatus is the state of server-side extraction for one file.
type ExtractionStatus struct {
	Status string `json:"Status"`
}

// Done reports whether extraction finished.
func (s ExtractionStatus) Done() bool { return s.Status == ExtractionDone }

// IsEmptyJSONArray reports whether raw is a JSON array with no elements,
// the reply of a metadata endpoint before any extractor has reported.
func IsEmptyJSONArray(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	if s == "[]" {
		return true
	}
	if !strings.HasPrefix(s, "[") {
		return false
	}
	var items []json.RawMessage
	return json.Unmarshal(raw, &items) == nil && len(items) == 0
}

// Context is an alias so ports can be declared without importing context at call sites.
type Context = context.Context
