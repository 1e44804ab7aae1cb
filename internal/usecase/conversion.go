package usecase

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/fairyhunter13/browndog-tests/internal/adapter/observability"
	"github.com/fairyhunter13/browndog-tests/internal/domain"
	obsctx "github.com/fairyhunter13/browndog-tests/internal/observability"
	"github.com/fairyhunter13/browndog-tests/internal/poll"
	"github.com/fairyhunter13/browndog-tests/internal/teardown"
	"github.com/fairyhunter13/browndog-tests/pkg/textx"
)

// ConversionAPI is the part of the Brown Dog client a conversion needs.
type ConversionAPI interface {
	ConvertURL(ctx domain.Context, token, format, sourceURL string) (string, error)
	ConvertFile(ctx domain.Context, token, format, path string) (string, error)
	Download(ctx domain.Context, rawURL, dest, token string, policy poll.Policy) domain.DownloadOutcome
}

// ConversionRequest describes one conversion case.
type ConversionRequest struct {
	// Index keeps output names of parallel cases apart.
	Index int
	// Source is a remote URL or a local file path.
	Source string
	Format string
	// Upload fetches a remote Source into the scratch dir and sends it as a
	// multipart upload instead of passing the URL.
	Upload bool
}

// ConversionResult is what a conversion left behind.
type ConversionResult struct {
	Job       domain.Job
	ResultURL string
	Path      string
	Size      int64
	Attempts  int
}

// ConversionService drives a conversion from submission to a verified
// local artifact.
type ConversionService struct {
	API        ConversionAPI
	Token      string
	ScratchDir string
	Processing poll.Policy
	Download   poll.Policy
	// KeepArtifacts leaves downloaded files in ScratchDir.
	KeepArtifacts bool
}

// NewConversionService constructs a ConversionService.
func NewConversionService(api ConversionAPI, token, scratch string, processing, download poll.Policy) ConversionService {
	return ConversionService{API: api, Token: token, ScratchDir: scratch, Processing: processing, Download: download}
}

// Run submits req, waits for the result URL, downloads it and checks that
// the artifact is not empty. Local files created along the way are removed
// before Run returns unless KeepArtifacts is set; a cleanup failure is only
// returned when the conversion itself succeeded.
func (s ConversionService) Run(ctx domain.Context, req ConversionRequest) (res ConversionResult, err error) {
	if strings.TrimSpace(req.Source) == "" || strings.TrimSpace(req.Format) == "" {
		return res, fmt.Errorf("%w: source and format required", domain.ErrInvalidArgument)
	}
	res.Job = domain.Job{
		ID:       ulid.Make().String(),
		Kind:     domain.JobConversion,
		Source:   req.Source,
		Output:   req.Format,
		State:    domain.JobSubmitted,
		Deadline: time.Now().Add(s.Processing.Timeout),
	}
	ctx = obsctx.ContextWithAttrs(ctx, slog.String("job_id", res.Job.ID), slog.String("source", req.Source), slog.String("format", req.Format))
	lg := obsctx.LoggerFromContext(ctx)

	scope := teardown.New()
	defer func() {
		if cerr := scope.Close(ctx); cerr != nil {
			lg.Warn("conversion cleanup failed", slog.Any("error", cerr))
			if err == nil {
				err = fmt.Errorf("op=usecase.Conversion.Run: cleanup: %w", cerr)
			}
		}
		if err != nil && !res.Job.State.Terminal() {
			_ = res.Job.Advance(domain.JobFailed)
		}
		observability.RecordJob(string(res.Job.Kind), string(res.Job.State), res.Attempts)
		lg.Info("conversion finished", slog.String("state", string(res.Job.State)), slog.Int("attempts", res.Attempts))
	}()

	input := req.Source
	if req.Upload && isRemote(req.Source) {
		staged := filepath.Join(s.ScratchDir, strconv.Itoa(req.Index)+"_input_"+textx.Base(req.Source))
		scope.Add(teardown.RemoveFile(staged))
		// the source is third-party data; it never sees the session token
		out := s.API.Download(ctx, req.Source, staged, "", s.Download)
		res.Attempts += out.Attempts
		if err := out.Verify(); err != nil {
			_ = res.Job.Advance(domain.JobFailed)
			return res, fmt.Errorf("op=usecase.Conversion.Run: stage input: %w", err)
		}
		input = staged
	}

	if err := res.Job.Advance(domain.JobPolling); err != nil {
		return res, err
	}
	submitted, err := poll.Until(ctx, s.Processing, func(ctx domain.Context) (string, bool, error) {
		u, err := s.submit(ctx, req.Format, input)
		if errors.Is(err, domain.ErrNotReady) {
			return "", false, nil
		}
		return u, err == nil, err
	})
	res.Attempts += submitted.Attempts
	if err != nil {
		next := domain.JobFailed
		if errors.Is(err, domain.ErrTimedOut) {
			next = domain.JobTimedOut
		}
		_ = res.Job.Advance(next)
		return res, fmt.Errorf("op=usecase.Conversion.Run: submit: %w", err)
	}
	res.ResultURL = submitted.Payload
	if err := res.Job.Advance(domain.JobReady); err != nil {
		return res, err
	}
	lg.Debug("conversion ready", slog.String("result_url", res.ResultURL))

	res.Path = OutputPath(s.ScratchDir, req.Index, req.Source, req.Format, res.ResultURL)
	if !s.KeepArtifacts {
		scope.Add(teardown.RemoveFile(res.Path))
	}
	if err := res.Job.Advance(domain.JobDownloading); err != nil {
		return res, err
	}
	out := s.API.Download(ctx, res.ResultURL, res.Path, s.Token, s.Download)
	res.Attempts += out.Attempts
	res.Size = out.Size
	if err := out.Verify(); err != nil {
		switch {
		case errors.Is(err, domain.ErrEmptyArtifact):
			_ = res.Job.Advance(domain.JobEmptyArtifact)
		case errors.Is(err, domain.ErrNotFoundAfterDeadline):
			_ = res.Job.Advance(domain.JobTimedOut)
		default:
			_ = res.Job.Advance(domain.JobFailed)
		}
		return res, fmt.Errorf("op=usecase.Conversion.Run: download: %w", err)
	}
	if err := res.Job.Advance(domain.JobSuccess); err != nil {
		return res, err
	}
	return res, nil
}

func (s ConversionService) submit(ctx domain.Context, format, input string) (string, error) {
	if isRemote(input) {
		return s.API.ConvertURL(ctx, s.Token, format, input)
	}
	return s.API.ConvertFile(ctx, s.Token, format, input)
}

// OutputPath names the local artifact {dir}/{index}_{stem}.{format}. A
// source with no usable name falls back to the result URL's file name.
func OutputPath(dir string, index int, source, format, resultURL string) string {
	stem := textx.Stem(source)
	if stem == "" {
		return filepath.Join(dir, strconv.Itoa(index)+"_"+textx.Base(resultURL))
	}
	return filepath.Join(dir, fmt.Sprintf("%d_%s.%s", index, stem, format))
}

func isRemote(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
