package usecase

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/fairyhunter13/browndog-tests/internal/adapter/observability"
	"github.com/fairyhunter13/browndog-tests/internal/domain"
	obsctx "github.com/fairyhunter13/browndog-tests/internal/observability"
	"github.com/fairyhunter13/browndog-tests/internal/poll"
	"github.com/fairyhunter13/browndog-tests/internal/teardown"
)

// AllExtractors runs every extractor the service finds suitable.
const AllExtractors = "all"

// ExtractionAPI is the part of the Brown Dog client an extraction needs.
type ExtractionAPI interface {
	UploadURL(ctx domain.Context, token, fileURL string, extractAll bool) (string, error)
	TriggerExtractor(ctx domain.Context, token, fileID, extractor string) error
	Status(ctx domain.Context, token, fileID string) (domain.ExtractionStatus, error)
	Metadata(ctx domain.Context, token, fileID string) (json.RawMessage, error)
	TechnicalMetadata(ctx domain.Context, token, fileID string) (json.RawMessage, error)
	MetadataJSONLD(ctx domain.Context, token, fileID, extractor string) (json.RawMessage, error)
	DeleteFile(ctx domain.Context, token, fileID string) error
}

// Fetcher reads a plain URL.
type Fetcher interface {
	Fetch(ctx domain.Context, rawURL string) ([]byte, error)
}

// ExtractionRequest describes one extraction case.
type ExtractionRequest struct {
	FileURL string
	// Extractor is a registered extractor name or AllExtractors (the default).
	Extractor string
}

// ExtractionResult carries the metadata text produced by an extraction.
type ExtractionResult struct {
	Job      domain.Job
	FileID   string
	Metadata string
	Attempts int
}

// ExtractionService drives an extraction from upload to metadata.
type ExtractionService struct {
	API        ExtractionAPI
	Fetch      Fetcher
	Token      string
	Processing poll.Policy
}

// NewExtractionService constructs an ExtractionService.
func NewExtractionService(api ExtractionAPI, fetch Fetcher, token string, processing poll.Policy) ExtractionService {
	return ExtractionService{API: api, Fetch: fetch, Token: token, Processing: processing}
}

// Run uploads req.FileURL and waits for its metadata.
//
// With AllExtractors it polls the extraction status until Done and returns
// the merged metadata, technical metadata and JSON-LD documents. With a
// named extractor it triggers that extractor and polls its JSON-LD until it
// is no longer empty. The uploaded file is deleted on every exit path.
func (s ExtractionService) Run(ctx domain.Context, req ExtractionRequest) (res ExtractionResult, err error) {
	if strings.TrimSpace(req.FileURL) == "" {
		return res, fmt.Errorf("%w: file url required", domain.ErrInvalidArgument)
	}
	extractor := strings.TrimSpace(req.Extractor)
	if extractor == "" {
		extractor = AllExtractors
	}
	res.Job = domain.Job{
		ID:        ulid.Make().String(),
		Kind:      domain.JobExtraction,
		Source:    req.FileURL,
		Extractor: extractor,
		State:     domain.JobSubmitted,
		Deadline:  time.Now().Add(s.Processing.Timeout),
	}
	ctx = obsctx.ContextWithAttrs(ctx, slog.String("job_id", res.Job.ID), slog.String("file_url", req.FileURL), slog.String("extractor", extractor))
	lg := obsctx.LoggerFromContext(ctx)

	scope := teardown.New()
	defer func() {
		if cerr := scope.Close(ctx); cerr != nil {
			lg.Warn("extraction cleanup failed", slog.Any("error", cerr))
			if err == nil {
				err = fmt.Errorf("op=usecase.Extraction.Run: cleanup: %w", cerr)
			}
		}
		if err != nil && !res.Job.State.Terminal() {
			_ = res.Job.Advance(domain.JobFailed)
		}
		observability.RecordJob(string(res.Job.Kind), string(res.Job.State), res.Attempts)
		lg.Info("extraction finished", slog.String("state", string(res.Job.State)), slog.Int("attempts", res.Attempts))
	}()

	all := extractor == AllExtractors
	res.FileID, err = s.API.UploadURL(ctx, s.Token, req.FileURL, all)
	if err != nil {
		_ = res.Job.Advance(domain.JobFailed)
		return res, fmt.Errorf("op=usecase.Extraction.Run: upload: %w", err)
	}
	fileID := res.FileID
	scope.Defer("delete file "+fileID, func(ctx domain.Context) error {
		return s.API.DeleteFile(ctx, s.Token, fileID)
	})

	if !all {
		if err := s.API.TriggerExtractor(ctx, s.Token, fileID, extractor); err != nil {
			_ = res.Job.Advance(domain.JobFailed)
			return res, fmt.Errorf("op=usecase.Extraction.Run: trigger: %w", err)
		}
	}

	if err := res.Job.Advance(domain.JobPolling); err != nil {
		return res, err
	}
	var doc json.RawMessage
	if all {
		doc, err = s.waitAll(ctx, fileID, &res)
	} else {
		doc, err = s.waitOne(ctx, fileID, extractor, &res)
	}
	if err != nil {
		next := domain.JobFailed
		if errors.Is(err, domain.ErrTimedOut) {
			next = domain.JobTimedOut
		}
		_ = res.Job.Advance(next)
		return res, fmt.Errorf("op=usecase.Extraction.Run: %w", err)
	}
	if err := res.Job.Advance(domain.JobReady); err != nil {
		return res, err
	}
	if err := res.Job.Advance(domain.JobSuccess); err != nil {
		return res, err
	}
	res.Metadata = string(doc)
	return res, nil
}

func (s ExtractionService) waitAll(ctx domain.Context, fileID string, res *ExtractionResult) (json.RawMessage, error) {
	st, err := poll.Until(ctx, s.Processing, func(ctx domain.Context) (domain.ExtractionStatus, bool, error) {
		st, err := s.API.Status(ctx, s.Token, fileID)
		return st, st.Done(), err
	})
	res.Attempts += st.Attempts
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}

	md, err := s.API.Metadata(ctx, s.Token, fileID)
	if err != nil {
		return nil, err
	}
	tech, err := s.API.TechnicalMetadata(ctx, s.Token, fileID)
	if err != nil {
		return nil, err
	}
	ld, err := s.API.MetadataJSONLD(ctx, s.Token, fileID, "")
	if err != nil {
		return nil, err
	}
	return MergeMetadata(md, tech, ld)
}

func (s ExtractionService) waitOne(ctx domain.Context, fileID, extractor string, res *ExtractionResult) (json.RawMessage, error) {
	ld, err := poll.Until(ctx, s.Processing, func(ctx domain.Context) (json.RawMessage, bool, error) {
		raw, err := s.API.MetadataJSONLD(ctx, s.Token, fileID, extractor)
		if err != nil {
			return nil, false, err
		}
		return raw, !domain.IsEmptyJSONArray(raw), nil
	})
	res.Attempts += ld.Attempts
	if err != nil {
		return nil, fmt.Errorf("metadata.jsonld: %w", err)
	}
	return ld.Payload, nil
}

// MergeMetadata folds the technical metadata and JSON-LD documents into the
// extraction metadata object under "technicalmetadata" and "metadata.jsonld".
func MergeMetadata(metadata, technical, jsonld json.RawMessage) (json.RawMessage, error) {
	doc := map[string]json.RawMessage{}
	if len(bytes.TrimSpace(metadata)) > 0 {
		if err := json.Unmarshal(metadata, &doc); err != nil {
			return nil, fmt.Errorf("%w: metadata is not an object: %v", domain.ErrService, err)
		}
	}
	if doc == nil {
		doc = map[string]json.RawMessage{}
	}
	doc["technicalmetadata"] = orNull(technical)
	doc["metadata.jsonld"] = orNull(jsonld)
	return json.Marshal(doc)
}

func orNull(raw json.RawMessage) json.RawMessage {
	if len(bytes.TrimSpace(raw)) == 0 {
		return json.RawMessage("null")
	}
	return raw
}

// ContainsExpected reports whether metadata contains expected. An expected
// value that is itself an http(s) URL is fetched and its trimmed body is
// searched for instead. The resolved text is returned for messages.
func (s ExtractionService) ContainsExpected(ctx domain.Context, metadata, expected string) (bool, string, error) {
	want := expected
	if isRemote(expected) {
		if s.Fetch == nil {
			return false, "", fmt.Errorf("%w: no fetcher for expected url %s", domain.ErrInvalidArgument, expected)
		}
		b, err := s.Fetch.Fetch(ctx, expected)
		if err != nil {
			return false, "", fmt.Errorf("op=usecase.Extraction.ContainsExpected: %w", err)
		}
		want = strings.TrimSpace(string(b))
	}
	return strings.Contains(metadata, want), want, nil
}
