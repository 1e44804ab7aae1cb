//go:build integration

package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	httpserver "github.com/fairyhunter13/browndog-tests/internal/adapter/httpserver"
	"github.com/fairyhunter13/browndog-tests/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/browndog-tests/internal/app"
	"github.com/fairyhunter13/browndog-tests/internal/config"
	"github.com/fairyhunter13/browndog-tests/internal/domain"
	"github.com/fairyhunter13/browndog-tests/internal/usecase"
)

func startPostgres(ctx context.Context, t *testing.T) string {
	t.Helper()
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16",
		Env:          map[string]string{"POSTGRES_PASSWORD": "postgres", "POSTGRES_USER": "postgres", "POSTGRES_DB": "browndog"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(90 * time.Second),
	}
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(ctx) })
	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "5432")
	require.NoError(t, err)
	dsn := "postgres://postgres:postgres@" + host + ":" + port.Port() + "/browndog?sslmode=disable"

	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	defer db.Close()
	require.Eventually(t, func() bool { return db.Ping() == nil }, 30*time.Second, time.Second)
	return dsn
}

func startRedis(ctx context.Context, t *testing.T) string {
	t.Helper()
	req := testcontainers.ContainerRequest{
		Image:        "redis:7",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
	}
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(ctx) })
	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "6379")
	require.NoError(t, err)
	return "redis://" + host + ":" + port.Port() + "/0"
}

func sampleRun() domain.TestRun {
	run := domain.TestRun{
		Host:        "ci-runner",
		Server:      "DEV",
		Date:        time.Now().UTC().Truncate(time.Millisecond),
		ElapsedTime: 12.5,
	}
	run.Add(domain.OutcomeSuccess, domain.CaseResult{Name: "test_png", Classname: "test_conversion", Time: 4})
	run.Add(domain.OutcomeFailures, domain.CaseResult{Name: "test_pdf", Classname: "test_conversion", Time: 8.5, Message: "empty artifact"})
	run.Tests.Total = 2
	return run
}

func TestReportStoreAndServe(t *testing.T) {
	if testing.Short() {
		t.Skip("integration tests need docker")
	}
	ctx := context.Background()
	cfg, err := config.Load()
	require.NoError(t, err)
	cfg.DBURL = startPostgres(ctx, t)
	cfg.RedisURL = startRedis(ctx, t)
	cfg.MailServer = ""
	cfg.KafkaBrokers = nil
	cfg.RateLimitPerMin = 0

	svc, scope, err := app.BuildReportService(ctx, cfg, "ci-runner")
	require.NoError(t, err)
	t.Cleanup(func() { _ = scope.Close(ctx) })

	run := sampleRun()
	fp := usecase.Fingerprint([]byte("<testsuite/>"))
	first, err := svc.Dispatch(ctx, run, fp)
	require.NoError(t, err)
	assert.True(t, first.Stored)
	assert.False(t, first.Duplicate)

	again, err := svc.Dispatch(ctx, run, fp)
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.False(t, again.Stored)

	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	repo := postgres.NewRunRepo(pool)

	runs, err := repo.List(ctx, domain.RunQuery{Server: "DEV"})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, first.RunID, runs[0].ID)
	assert.Equal(t, 1, runs[0].Tests.Failures)
	assert.NotContains(t, runs[0].Results, domain.OutcomeSuccess)

	rdb, err := app.NewRedis(cfg.RedisURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })
	dbCheck, redisCheck := app.BuildReadinessChecks(pool, app.RedisPinger(rdb))
	srv := httpserver.NewServer(cfg, usecase.NewResultsService(repo), dbCheck, redisCheck)
	ts := httptest.NewServer(app.BuildRouter(cfg, srv))
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/readyz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/v1/results?server=dev&expand", nil)
	require.NoError(t, err)
	req.Header.Set("Accept", "application/json")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("ETag"))

	var rows []usecase.RunSummary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rows))
	require.Len(t, rows, 1)
	assert.Equal(t, first.RunID, rows[0].ID)
	assert.Len(t, rows[0].Results[domain.OutcomeFailures], 1)
}
