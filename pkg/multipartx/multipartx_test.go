package multipartx

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"mime"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, data, 0o600))
	return p
}

func collect(t *testing.T, e *Encoder) ([]byte, int) {
	t.Helper()
	var buf bytes.Buffer
	chunks := 0
	for chunk, err := range e.Chunks() {
		require.NoError(t, err)
		buf.Write(chunk)
		chunks++
	}
	return buf.Bytes(), chunks
}

func TestEncoder_RoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("0123456789abcdef"), 1000)
	csv := writeFile(t, "a.csv", payload)
	bin := writeFile(t, "blob.bin", []byte{0, 1, 2, 3, 255})

	enc := New(
		[]Field{{Name: "output", Value: "json"}, {Name: "note", Value: ""}},
		[]FileField{{Name: "file", Path: csv, ContentType: "text/csv"}, {Name: "extra", Path: bin}},
	)
	enc.BlockSize = 1000

	body, err := io.ReadAll(enc.Reader())
	require.NoError(t, err)

	mt, params, err := mime.ParseMediaType(enc.ContentType())
	require.NoError(t, err)
	assert.Equal(t, "multipart/form-data", mt)

	mr := multipart.NewReader(bytes.NewReader(body), params["boundary"])
	type part struct {
		name, filename, ct string
		data               []byte
	}
	var parts []part
	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		data, err := io.ReadAll(p)
		require.NoError(t, err)
		parts = append(parts, part{p.FormName(), p.FileName(), p.Header.Get("Content-Type"), data})
	}

	require.Len(t, parts, 4)
	assert.Equal(t, "output", parts[0].name)
	assert.Equal(t, "json", string(parts[0].data))
	assert.Equal(t, "note", parts[1].name)
	assert.Empty(t, parts[1].data)
	assert.Equal(t, "a.csv", parts[2].filename)
	assert.Equal(t, "text/csv", parts[2].ct)
	assert.Equal(t, payload, parts[2].data)
	assert.Equal(t, "blob.bin", parts[3].filename)
	assert.Equal(t, "application/octet-stream", parts[3].ct)
	assert.Equal(t, []byte{0, 1, 2, 3, 255}, parts[3].data)

	n, err := enc.Len()
	require.NoError(t, err)
	assert.Equal(t, int64(len(body)), n)
}

func TestEncoder_FileBlocks(t *testing.T) {
	p := writeFile(t, "ten.txt", []byte("0123456789"))
	enc := &Encoder{
		Boundary:  "XyZ",
		Fields:    []Field{{Name: "k", Value: "v"}},
		Files:     []FileField{{Name: "file", Path: p, ContentType: "text/plain"}},
		BlockSize: 4,
	}

	body, chunks := collect(t, enc)
	// field: header, value, crlf; file: header, 3 blocks, crlf; closing
	assert.Equal(t, 9, chunks)

	want := "--XyZ\r\nContent-Disposition: form-data; name=\"k\"\r\n\r\nv\r\n" +
		"--XyZ\r\nContent-Disposition: form-data; name=\"file\"; filename=\"ten.txt\"\r\nContent-Type: text/plain\r\n\r\n" +
		"0123456789\r\n" +
		"--XyZ--\r\n"
	assert.Equal(t, want, string(body))
}

func TestEncoder_DetectsContentType(t *testing.T) {
	p := writeFile(t, "page", []byte("<html><body>hi</body></html>"))
	enc := &Encoder{Boundary: "b", Files: []FileField{{Name: "file", Path: p}}}
	body, _ := collect(t, enc)
	assert.Contains(t, string(body), "Content-Type: text/html")
	assert.True(t, strings.HasSuffix(string(body), "<html><body>hi</body></html>\r\n--b--\r\n"))
}

func TestEncoder_MissingFile(t *testing.T) {
	enc := &Encoder{Boundary: "b", Files: []FileField{{Name: "file", Path: filepath.Join(t.TempDir(), "nope")}}}
	var gotErr error
	for _, err := range enc.Chunks() {
		if err != nil {
			gotErr = err
		}
	}
	require.Error(t, gotErr)
	assert.True(t, errors.Is(gotErr, fs.ErrNotExist))

	_, err := io.ReadAll(enc.Reader())
	assert.True(t, errors.Is(err, fs.ErrNotExist))

	_, err = enc.Len()
	assert.Error(t, err)
}

func TestEncoder_EarlyStopClosesFile(t *testing.T) {
	p := writeFile(t, "big.bin", bytes.Repeat([]byte{1}, 64))
	enc := &Encoder{Boundary: "b", Files: []FileField{{Name: "file", Path: p, ContentType: "x/y"}}, BlockSize: 8}
	r := enc.Reader()
	buf := make([]byte, 10)
	_, err := r.Read(buf)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	// the file handle is released so it can be removed
	require.NoError(t, os.Remove(p))
}

func TestNewBoundary(t *testing.T) {
	a, b := NewBoundary(), NewBoundary()
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
}
