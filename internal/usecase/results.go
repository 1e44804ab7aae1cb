package usecase

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/fairyhunter13/browndog-tests/internal/domain"
	obsctx "github.com/fairyhunter13/browndog-tests/internal/observability"
)

// Result listing bounds.
const (
	DefaultResultsLimit = 20
	MaxResultsLimit     = 500
)

// ResultsService provides read access to stored test runs and assembles the
// API response including ETag handling.
type ResultsService struct {
	Runs domain.RunStore
}

// NewResultsService constructs a ResultsService.
func NewResultsService(r domain.RunStore) ResultsService { return ResultsService{Runs: r} }

// RunSummary is one row of the results listing.
type RunSummary struct {
	ID       string                                 `json:"id"`
	Date     int64                                  `json:"date"`
	Server   string                                 `json:"server"`
	Time     float64                                `json:"time"`
	Total    int                                    `json:"total"`
	Failures int                                    `json:"failures"`
	Errors   int                                    `json:"errors"`
	Skipped  int                                    `json:"skipped"`
	Success  int                                    `json:"success"`
	Results  map[domain.Outcome][]domain.CaseResult `json:"results,omitempty"`
}

// List returns the HTTP status, the rows and their ETag. A matching
// If-None-Match yields 304 with no rows.
func (s ResultsService) List(ctx domain.Context, q domain.RunQuery, ifNoneMatch string) (int, []RunSummary, string, error) {
	q.Server = strings.ToUpper(strings.TrimSpace(q.Server))
	if q.Limit == 0 {
		q.Limit = DefaultResultsLimit
	}
	if q.Limit < 1 || q.Limit > MaxResultsLimit {
		return http.StatusBadRequest, nil, "", fmt.Errorf("%w: limit must be between 1 and %d", domain.ErrInvalidArgument, MaxResultsLimit)
	}
	runs, err := s.Runs.List(ctx, q)
	if err != nil {
		obsctx.LoggerFromContext(ctx).Error("list test runs", slog.Any("error", err))
		return http.StatusInternalServerError, nil, "", err
	}
	if q.ID != "" && len(runs) == 0 {
		return http.StatusNotFound, nil, "", fmt.Errorf("%w: test run %s", domain.ErrNotFound, q.ID)
	}

	rows := make([]RunSummary, 0, len(runs))
	for _, r := range runs {
		row := RunSummary{
			ID:       r.ID,
			Date:     r.Date.UnixMilli(),
			Server:   r.Server,
			Time:     r.ElapsedTime,
			Total:    r.Tests.Total,
			Failures: r.Tests.Failures,
			Errors:   r.Tests.Errors,
			Skipped:  r.Tests.Skipped,
			Success:  r.Tests.Success,
		}
		if q.Expand {
			row.Results = r.Results
		}
		rows = append(rows, row)
	}
	etag := makeETag(rows)
	if etag == ifNoneMatch {
		return http.StatusNotModified, nil, etag, nil
	}
	return http.StatusOK, rows, etag, nil
}

func makeETag(v any) string {
	b, _ := json.Marshal(v)
	s := sha256.Sum256(b)
	return hex.EncodeToString(s[:])
}
