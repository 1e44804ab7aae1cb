package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fairyhunter13/browndog-tests/internal/domain"
)

func TestNewObservableClientDefaults(t *testing.T) {
	oc := NewObservableClient(ConnectionTypeBrowndog, "http://bd", time.Second)
	if oc.Stats == nil {
		t.Fatal("Stats should be non-nil")
	}
	if oc.ConnectionType != ConnectionTypeBrowndog || oc.Endpoint != "http://bd" || oc.Timeout != time.Second {
		t.Fatalf("unexpected connection fields: %+v", oc)
	}
}

func TestObservableClient_ExecuteWithMetrics_Success(t *testing.T) {
	oc := NewObservableClient(ConnectionTypeBrowndog, "/api", 500*time.Millisecond)
	calls := 0
	err := oc.ExecuteWithMetrics(context.Background(), "create_key", func(ctx context.Context) error {
		calls++
		if _, ok := ctx.Deadline(); !ok {
			t.Errorf("expected context to have deadline")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ExecuteWithMetrics returned error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected operation to be called once, got %d", calls)
	}
	s := oc.Stats.For("create_key").Snapshot()
	if s.Total != 1 || s.Success != 1 {
		t.Fatalf("unexpected stats: %+v", s)
	}
}

func TestObservableClient_ExecuteWithMetrics_Timeout(t *testing.T) {
	oc := NewObservableClient(ConnectionTypeBrowndog, "/api", 20*time.Millisecond)
	err := oc.ExecuteWithMetrics(context.Background(), "status", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	s := oc.Stats.For("status").Snapshot()
	if s.Timeout != 1 || s.Errors["timeout"] != 1 {
		t.Fatalf("unexpected stats: %+v", s)
	}
}

func TestObservableClient_ExecuteWithTimeout_NoTimeout(t *testing.T) {
	oc := NewObservableClient(ConnectionTypeBrowndog, "/api", time.Second)
	err := oc.ExecuteWithTimeout(context.Background(), "download", 0, func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); ok {
			t.Errorf("expected no deadline")
		}
		return &domain.ServiceError{Status: 500}
	})
	if !errors.Is(err, domain.ErrService) {
		t.Fatalf("expected service error, got %v", err)
	}
	s := oc.Stats.For("download").Snapshot()
	if s.Failure != 1 || s.Errors["service"] != 1 {
		t.Fatalf("unexpected stats: %+v", s)
	}
}

func TestErrorClass(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, "none"},
		{context.DeadlineExceeded, "timeout"},
		{&domain.ServiceError{Status: 403}, "forbidden"},
		{&domain.ServiceError{Status: 404}, "not_ready"},
		{&domain.ServiceError{Status: 502}, "service"},
		{&domain.TransportError{Op: "x", Err: errors.New("reset")}, "transport"},
		{errors.New("x"), "other"},
	}
	for _, c := range cases {
		if got := ErrorClass(c.err); got != c.want {
			t.Errorf("ErrorClass(%v)=%q want %q", c.err, got, c.want)
		}
	}
}

func TestRegistry_Snapshot(t *testing.T) {
	r := NewRegistry(ConnectionTypeBrowndog)
	r.For("b").RecordRequest()
	r.For("b").RecordSuccess(10 * time.Millisecond)
	r.For("a").RecordRequest()
	r.For("a").RecordFailure(errors.New("x"), 30*time.Millisecond)

	snap := r.Snapshot()
	if len(snap) != 2 || snap[0].Operation != "a" || snap[1].Operation != "b" {
		t.Fatalf("unexpected snapshot order: %+v", snap)
	}
	if snap[1].AvgLatency != 10*time.Millisecond || snap[1].MinLatency != 10*time.Millisecond {
		t.Fatalf("unexpected latency: %+v", snap[1])
	}
	if snap[0].Errors["other"] != 1 {
		t.Fatalf("unexpected errors: %+v", snap[0].Errors)
	}
}
