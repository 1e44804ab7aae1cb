package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/browndog-tests/internal/config"
	"github.com/fairyhunter13/browndog-tests/internal/domain"
	"github.com/fairyhunter13/browndog-tests/internal/usecase"
)

// Server aggregates handler dependencies.
type Server struct {
	Cfg        config.Config
	Results    usecase.ResultsService
	DBCheck    func(ctx context.Context) error
	RedisCheck func(ctx context.Context) error
}

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

// NewServer constructs a Server. Nil checks are left out of /readyz.
func NewServer(cfg config.Config, results usecase.ResultsService, dbCheck, redisCheck func(context.Context) error) *Server {
	return &Server{Cfg: cfg, Results: results, DBCheck: dbCheck, RedisCheck: redisCheck}
}

type resultsParams struct {
	Server string `validate:"omitempty,alphanum,max=16"`
	ID     string `validate:"omitempty,alphanum,max=64"`
	Limit  int    `validate:"min=0,max=500"`
}

// ParseRunQuery reads the /v1/results query string.
func ParseRunQuery(r *http.Request) (domain.RunQuery, error) {
	v := r.URL.Query()
	p := resultsParams{
		Server: strings.ToUpper(strings.TrimSpace(v.Get("server"))),
		ID:     strings.TrimSpace(v.Get("id")),
	}
	if s := v.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return domain.RunQuery{}, fmt.Errorf("%w: limit must be a positive integer", domain.ErrInvalidArgument)
		}
		p.Limit = n
	}
	if err := getValidator().Struct(p); err != nil {
		return domain.RunQuery{}, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	q := domain.RunQuery{Server: p.Server, ID: p.ID, Limit: p.Limit}
	_, q.Expand = v["expand"]
	if s := strings.TrimSpace(v.Get("since")); s != "" {
		t, err := parseSince(s)
		if err != nil {
			return domain.RunQuery{}, fmt.Errorf("%w: since: %v", domain.ErrInvalidArgument, err)
		}
		q.Since = t
	}
	return q, nil
}

func parseSince(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", s)
}

// ResultsHandler lists stored test runs, newest first, with ETag support.
func (s *Server) ResultsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := ParseRunQuery(r)
		if err != nil {
			writeError(w, r, err, map[string]string{"query": r.URL.RawQuery})
			return
		}
		status, rows, etag, err := s.Results.List(r.Context(), q, r.Header.Get("If-None-Match"))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		w.Header().Set("ETag", etag)
		if status == http.StatusNotModified {
			w.WriteHeader(status)
			return
		}
		writeJSON(w, status, rows)
	}
}

// ReadyzHandler probes the configured dependencies.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type check struct {
		Name    string `json:"name"`
		OK      bool   `json:"ok"`
		Details string `json:"details,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		probes := []struct {
			name string
			fn   func(context.Context) error
		}{{"db", s.DBCheck}, {"redis", s.RedisCheck}}

		checks := make([]check, 0, len(probes))
		st := http.StatusOK
		for _, p := range probes {
			if p.fn == nil {
				continue
			}
			if err := p.fn(ctx); err != nil {
				checks = append(checks, check{Name: p.name, Details: err.Error()})
				st = http.StatusServiceUnavailable
				continue
			}
			checks = append(checks, check{Name: p.name, OK: true})
		}
		writeJSON(w, st, map[string]any{"checks": checks})
	}
}
