package usecase

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/fairyhunter13/browndog-tests/internal/adapter/observability"
	"github.com/fairyhunter13/browndog-tests/internal/domain"
	obsctx "github.com/fairyhunter13/browndog-tests/internal/observability"
)

// DefaultDedupeTTL is how long a report fingerprint stays claimed.
const DefaultDedupeTTL = 24 * time.Hour

// ReportService sends a classified test run to its sinks. Every sink is
// optional; a nil sink is skipped.
type ReportService struct {
	Store     domain.RunStore
	Publisher domain.RunPublisher
	Mailer    domain.Mailer
	Guard     domain.RunGuard
	Watchers  []domain.Watcher
	From      string
	DedupeTTL time.Duration
}

// DispatchResult records what Dispatch did.
type DispatchResult struct {
	RunID      string
	Duplicate  bool
	Recipients []string
	Subject    string
	Stored     bool
	Published  bool
}

// Fingerprint identifies a raw report for duplicate detection.
func Fingerprint(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// Dispatch mails, stores and publishes run concurrently. A run whose
// fingerprint was already claimed is skipped entirely. Mail goes to the
// failure watchers when any case failed or errored and to the success
// watchers otherwise. The stored and published document omits successful
// cases. A claim is released again when any sink fails.
func (s ReportService) Dispatch(ctx domain.Context, run domain.TestRun, fingerprint string) (DispatchResult, error) {
	lg := obsctx.LoggerFromContext(ctx)
	if run.ID == "" {
		run.ID = ulid.Make().String()
	}
	res := DispatchResult{RunID: run.ID}

	claimed := false
	if s.Guard != nil && fingerprint != "" {
		ttl := s.DedupeTTL
		if ttl <= 0 {
			ttl = DefaultDedupeTTL
		}
		ok, err := s.Guard.Claim(ctx, fingerprint, ttl)
		observability.RecordSink("guard", err)
		claimed = ok && err == nil
		switch {
		case err != nil:
			lg.Warn("duplicate guard unavailable, dispatching anyway", slog.Any("error", err))
		case !ok:
			lg.Info("report already dispatched", slog.String("fingerprint", fingerprint))
			res.Duplicate = true
			return res, nil
		}
	}

	var g errgroup.Group
	if s.Mailer != nil {
		res.Subject = Subject(run)
		res.Recipients = Recipients(s.Watchers, run.Failed())
		g.Go(func() error {
			if len(res.Recipients) == 0 {
				lg.Info("no watchers for this outcome, mail skipped")
				return nil
			}
			err := s.Mailer.Send(ctx, s.From, res.Recipients, res.Subject, MailBody(run))
			observability.RecordSink("mail", err)
			if err != nil {
				return fmt.Errorf("op=usecase.Report.Dispatch: mail: %w", err)
			}
			return nil
		})
	}

	doc := run.WithoutSuccess()
	if s.Store != nil || s.Publisher != nil {
		g.Go(func() error {
			if s.Store != nil {
				id, err := s.Store.Insert(ctx, doc)
				observability.RecordSink("store", err)
				if err != nil {
					return fmt.Errorf("op=usecase.Report.Dispatch: store: %w", err)
				}
				doc.ID = id
				res.RunID = id
				res.Stored = true
			}
			if s.Publisher != nil {
				err := s.Publisher.PublishRun(ctx, doc)
				observability.RecordSink("publish", err)
				if err != nil {
					return fmt.Errorf("op=usecase.Report.Dispatch: publish: %w", err)
				}
				res.Published = true
			}
			return nil
		})
	}

	err := g.Wait()
	if err != nil {
		lg.Error("report dispatch failed", slog.Any("error", err))
		// a failed run must stay retryable
		if claimed {
			if rerr := s.Guard.Release(ctx, fingerprint); rerr != nil {
				lg.Warn("release report claim", slog.Any("error", rerr))
			}
		}
	}
	return res, err
}
