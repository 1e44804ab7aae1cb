package browndog

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/browndog-tests/internal/adapter/browndog/browndogtest"
	"github.com/fairyhunter13/browndog-tests/internal/domain"
	"github.com/fairyhunter13/browndog-tests/internal/poll"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	return New(Options{
		Host:       srv.URL + "/",
		Username:   "alice",
		Password:   "fred",
		Timeout:    2 * time.Second,
		ChunkSize:  4,
		HTTPClient: srv.Client(),
	})
}

func newFake(t *testing.T) (*browndogtest.Server, *Client, domain.Credential) {
	t.Helper()
	fake := browndogtest.NewServer()
	t.Cleanup(fake.Close)
	c := newTestClient(t, fake.Server)
	cred, err := c.NewCredential(context.Background())
	require.NoError(t, err)
	return fake, c, cred
}

func TestNew_Defaults(t *testing.T) {
	c := New(Options{Host: "http://bd.example.org/"})
	assert.Equal(t, "http://bd.example.org", c.Host())
	assert.Equal(t, 5*time.Second, c.timeout)
	assert.Equal(t, c.timeout, c.slowTimeout)
	assert.Equal(t, DefaultChunkSize, c.chunkSize)
	assert.NotNil(t, c.http.Transport)
}

func TestCredential_TokenForbiddenAfterKeyDeleted(t *testing.T) {
	fake, c, cred := newFake(t)
	ctx := context.Background()
	assert.NotEmpty(t, cred.Key)
	assert.NotEmpty(t, cred.Token)

	_, err := c.Outputs(ctx, cred.Token)
	require.NoError(t, err)

	require.NoError(t, c.DeleteKey(ctx, cred.Key))
	assert.Equal(t, 0, fake.LiveKeys())

	_, err = c.Outputs(ctx, cred.Token)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrForbidden))
	assert.True(t, errors.Is(err, domain.ErrService))

	var se *domain.ServiceError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusForbidden, se.Status)
}

func TestCreateKey_BadCredentials(t *testing.T) {
	fake := browndogtest.NewServer()
	defer fake.Close()
	c := New(Options{Host: fake.URL, Username: "mallory", Password: "x", HTTPClient: fake.Client()})

	_, err := c.CreateKey(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrForbidden))
}

func TestCreateKey_EmptyKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"api-key":""}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).CreateKey(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrService))
}

func TestConvertAndDownload_PendingThenReady(t *testing.T) {
	fake, c, cred := newFake(t)
	fake.ConvertPending = 3
	fake.ArtifactPending = 2
	fake.Artifact = func(string, string) []byte { return []byte(`{"rows":[1,2,3]}`) }
	ctx := context.Background()
	clk := poll.NewFakeClock(epoch)

	res, err := poll.Until(ctx, clk.Policy(time.Second, time.Minute), func(ctx context.Context) (string, bool, error) {
		u, err := c.ConvertURL(ctx, cred.Token, "json", "http://example.org/a.csv")
		if errors.Is(err, domain.ErrNotReady) {
			return "", false, nil
		}
		return u, err == nil, err
	})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Attempts)
	assert.Equal(t, 4, fake.Calls("GET /dap/convert/{format}/{source}"))
	assert.True(t, strings.HasPrefix(res.Payload, fake.URL+"/results/"))
	assert.True(t, strings.HasSuffix(res.Payload, ".json"))

	dest := filepath.Join(t.TempDir(), "0_a.json")
	out := c.Download(ctx, res.Payload, dest, cred.Token, clk.Policy(time.Second, time.Minute))
	require.NoError(t, out.Verify())
	assert.Equal(t, domain.DownloadSuccess, out.Status)
	assert.Equal(t, 3, out.Attempts)
	assert.EqualValues(t, len(`{"rows":[1,2,3]}`), out.Size)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, `{"rows":[1,2,3]}`, string(got))
}

func TestDownload_AlwaysNotFound(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.NotFound(w, r)
	}))
	defer srv.Close()
	c := newTestClient(t, srv)
	clk := poll.NewFakeClock(epoch)
	dest := filepath.Join(t.TempDir(), "missing.png")

	out := c.Download(context.Background(), srv.URL+"/results/x.png", dest, "tok", clk.Policy(time.Second, 3*time.Second))
	assert.Equal(t, domain.DownloadNotFoundAfterDeadline, out.Status)
	assert.Equal(t, 3, out.Attempts)
	assert.Equal(t, 3, calls)
	assert.True(t, errors.Is(out.Err, domain.ErrNotFoundAfterDeadline))
	assert.True(t, errors.Is(out.Err, domain.ErrTimedOut))
	assert.True(t, errors.Is(out.Verify(), domain.ErrNotFoundAfterDeadline))

	_, err := os.Stat(dest)
	assert.True(t, os.IsNotExist(err))
}

func TestDownload_ServiceErrorIsNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()
	c := newTestClient(t, srv)
	clk := poll.NewFakeClock(epoch)
	dest := filepath.Join(t.TempDir(), "out.bin")

	out := c.Download(context.Background(), srv.URL, dest, "tok", clk.Policy(time.Second, time.Minute))
	assert.Equal(t, domain.DownloadFailed, out.Status)
	assert.Equal(t, 1, calls)
	var se *domain.ServiceError
	require.True(t, errors.As(out.Err, &se))
	assert.Equal(t, http.StatusInternalServerError, se.Status)
	assert.Equal(t, "boom", se.Body)

	_, err := os.Stat(dest)
	assert.True(t, os.IsNotExist(err))
}

func TestDownload_EmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	c := newTestClient(t, srv)
	dest := filepath.Join(t.TempDir(), "empty.txt")

	out := c.Download(context.Background(), srv.URL, dest, "tok", poll.NewFakeClock(epoch).Policy(time.Second, time.Second))
	assert.Equal(t, domain.DownloadSuccess, out.Status)
	assert.Zero(t, out.Size)
	assert.True(t, errors.Is(out.Verify(), domain.ErrEmptyArtifact))
}

func TestDownload_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	c := newTestClient(t, srv)
	srv.Close()

	out := c.Download(context.Background(), srv.URL, filepath.Join(t.TempDir(), "x"), "tok",
		poll.NewFakeClock(epoch).Policy(time.Second, time.Minute))
	assert.Equal(t, domain.DownloadTransportError, out.Status)
	assert.True(t, errors.Is(out.Err, domain.ErrTransport))
	assert.Equal(t, 1, out.Attempts)
}

func TestDownload_StreamsLargeBodyInChunks(t *testing.T) {
	body := strings.Repeat("0123456789", 1000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()
	c := newTestClient(t, srv)
	dest := filepath.Join(t.TempDir(), "big.txt")

	out := c.Download(context.Background(), srv.URL, dest, "tok", poll.NewFakeClock(epoch).Policy(time.Second, time.Second))
	require.NoError(t, out.Verify())
	assert.EqualValues(t, len(body), out.Size)
	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, body, string(got))
}

func TestConvertFile_StreamsMultipartUpload(t *testing.T) {
	fake, c, cred := newFake(t)
	src := filepath.Join(t.TempDir(), "table.csv")
	require.NoError(t, os.WriteFile(src, []byte("a,b\n1,2\n"), 0o644))

	u, err := c.ConvertFile(context.Background(), cred.Token, "json", src)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(u, ".json"))

	ups := fake.Uploads()
	require.Len(t, ups, 1)
	assert.Equal(t, "file", ups[0].Field)
	assert.Equal(t, "table.csv", ups[0].Filename)
	assert.Equal(t, "a,b\n1,2\n", string(ups[0].Data))
	assert.True(t, strings.HasPrefix(ups[0].ContentType, "text/"))
}

func TestConvertFile_MissingFile(t *testing.T) {
	_, c, cred := newFake(t)
	_, err := c.ConvertFile(context.Background(), cred.Token, "json", filepath.Join(t.TempDir(), "nope.csv"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestConvertURL_EmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/plain", r.Header.Get("Accept"))
		assert.Equal(t, "tok", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).ConvertURL(context.Background(), "tok", "png", "http://example.org/a b.jpg")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrService))
}

func TestExtraction_StatusPolledUntilDone(t *testing.T) {
	fake, c, cred := newFake(t)
	fake.StatusPending = 2
	fake.Metadata = map[string]any{"tags": []string{"cat"}}
	ctx := context.Background()

	id, err := c.UploadURL(ctx, cred.Token, "http://example.org/cat.jpg", true)
	require.NoError(t, err)

	res, err := poll.Until(ctx, poll.NewFakeClock(epoch).Policy(time.Second, time.Minute),
		func(ctx context.Context) (domain.ExtractionStatus, bool, error) {
			st, err := c.Status(ctx, cred.Token, id)
			return st, st.Done(), err
		})
	require.NoError(t, err)
	assert.Equal(t, domain.ExtractionDone, res.Payload.Status)
	assert.Equal(t, 3, fake.Calls("GET /dts/api/extractions/{id}/status"))
	assert.Equal(t, 0, fake.Calls("GET /dts/api/extractions/{id}/metadata"))

	md, err := c.Metadata(ctx, cred.Token, id)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(md, &doc))
	assert.Equal(t, "cat.jpg", doc["filename"])
	assert.Equal(t, []any{"cat"}, doc["tags"])

	tech, err := c.TechnicalMetadata(ctx, cred.Token, id)
	require.NoError(t, err)
	assert.False(t, domain.IsEmptyJSONArray(tech))

	require.NoError(t, c.DeleteFile(ctx, cred.Token, id))
	assert.Empty(t, fake.Files())

	_, err = c.Status(ctx, cred.Token, id)
	assert.True(t, errors.Is(err, domain.ErrNotReady))
}

func TestExtraction_SingleExtractor(t *testing.T) {
	fake, c, cred := newFake(t)
	fake.JSONLDPending = 2
	ctx := context.Background()

	id, err := c.UploadURL(ctx, cred.Token, "http://example.org/doc.pdf", false)
	require.NoError(t, err)
	require.NoError(t, c.TriggerExtractor(ctx, cred.Token, id, "ncsa.pdf"))

	for i := 0; i < 2; i++ {
		raw, err := c.MetadataJSONLD(ctx, cred.Token, id, "ncsa.pdf")
		require.NoError(t, err)
		assert.True(t, domain.IsEmptyJSONArray(raw))
	}
	raw, err := c.MetadataJSONLD(ctx, cred.Token, id, "ncsa.pdf")
	require.NoError(t, err)
	assert.False(t, domain.IsEmptyJSONArray(raw))
	assert.Contains(t, string(raw), "ncsa.pdf")
}

func TestGraphListings(t *testing.T) {
	_, c, cred := newFake(t)
	ctx := context.Background()

	outs, err := c.Outputs(ctx, cred.Token)
	require.NoError(t, err)
	assert.Contains(t, outs, "json")

	ins, err := c.Inputs(ctx, cred.Token)
	require.NoError(t, err)
	assert.Contains(t, ins, "csv")

	from, err := c.InputsFor(ctx, cred.Token, "json")
	require.NoError(t, err)
	assert.Equal(t, []string{"csv"}, from)

	to, err := c.ConvertersFor(ctx, cred.Token, "png")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"jpg", "pdf"}, to)

	all, err := c.Converters(ctx, cred.Token)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestLines(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, Lines(" a \n\n b\r\n"))
	assert.Nil(t, Lines("\n \n"))
}

func TestDo_ServiceErrorCarriesShortBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, strings.Repeat("x", 2000), http.StatusBadGateway)
	}))
	defer srv.Close()

	resp, err := newTestClient(t, srv).Do(context.Background(), Request{Operation: "probe", Method: http.MethodGet, URL: srv.URL})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadGateway, resp.Status)

	var se *domain.ServiceError
	require.True(t, errors.As(err, &se))
	assert.LessOrEqual(t, len(se.Body), maxErrorBody)
	assert.False(t, errors.Is(err, domain.ErrNotReady))
}

func TestDo_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.Do(context.Background(), Request{Operation: "slow", Method: http.MethodGet, URL: srv.URL, Timeout: 20 * time.Millisecond})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrTransport))

	stats := c.Stats()
	require.Len(t, stats, 1)
	assert.Equal(t, "slow", stats[0].Operation)
	assert.EqualValues(t, 1, stats[0].Timeout)
}
