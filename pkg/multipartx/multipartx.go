// Package multipartx streams multipart/form-data request bodies.
//
// Files are read block by block while the body is being sent, so uploading a
// large input never holds more than one block in memory.
package multipartx

import (
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// DefaultBlockSize is the read size for file parts.
const DefaultBlockSize = 1 << 20

const fallbackContentType = "application/octet-stream"

// Field is a plain form value.
type Field struct {
	Name  string
	Value string
}

// FileField is a file part. An empty ContentType is detected from the file content.
type FileField struct {
	Name        string
	Path        string
	ContentType string
}

// Encoder renders fields then files in the multipart wire format.
type Encoder struct {
	Boundary  string
	Fields    []Field
	Files     []FileField
	BlockSize int
}

// New returns an Encoder with a random boundary and the default block size.
func New(fields []Field, files []FileField) *Encoder {
	return &Encoder{Boundary: NewBoundary(), Fields: fields, Files: files, BlockSize: DefaultBlockSize}
}

// NewBoundary returns a boundary derived from a random UUID.
func NewBoundary() string { return strings.ReplaceAll(uuid.NewString(), "-", "") }

// ContentType is the request Content-Type header value for this body.
func (e *Encoder) ContentType() string { return "multipart/form-data; boundary=" + e.Boundary }

func (e *Encoder) blockSize() int {
	if e.BlockSize <= 0 {
		return DefaultBlockSize
	}
	return e.BlockSize
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func (e *Encoder) fieldHeader(f Field) []byte {
	return []byte(fmt.Sprintf("--%s\r\nContent-Disposition: form-data; name=\"%s\"\r\n\r\n",
		e.Boundary, quoteEscaper.Replace(f.Name)))
}

func (e *Encoder) fileHeader(f FileField, contentType string) []byte {
	return []byte(fmt.Sprintf("--%s\r\nContent-Disposition: form-data; name=\"%s\"; filename=\"%s\"\r\nContent-Type: %s\r\n\r\n",
		e.Boundary, quoteEscaper.Replace(f.Name), quoteEscaper.Replace(filepath.Base(f.Path)), contentType))
}

func (e *Encoder) closing() []byte { return []byte("--" + e.Boundary + "--\r\n") }

var crlf = []byte("\r\n")

// Chunks yields the body lazily. A yielded slice is only valid until the
// next iteration step; copy it to retain it. Iterating again restarts the body.
func (e *Encoder) Chunks() iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		for _, f := range e.Fields {
			if !yield(e.fieldHeader(f), nil) || !yield([]byte(f.Value), nil) || !yield(crlf, nil) {
				return
			}
		}
		for _, f := range e.Files {
			if !e.emitFile(f, yield) {
				return
			}
		}
		yield(e.closing(), nil)
	}
}

func (e *Encoder) emitFile(f FileField, yield func([]byte, error) bool) bool {
	fd, err := os.Open(f.Path)
	if err != nil {
		yield(nil, fmt.Errorf("op=multipartx.open: %w", err))
		return false
	}
	defer func() { _ = fd.Close() }()

	ct := f.ContentType
	if ct == "" {
		ct = fallbackContentType
		if m, derr := mimetype.DetectReader(fd); derr == nil && m != nil {
			ct = m.String()
		}
		if _, err := fd.Seek(0, io.SeekStart); err != nil {
			yield(nil, fmt.Errorf("op=multipartx.seek: %w", err))
			return false
		}
	}
	if !yield(e.fileHeader(f, ct), nil) {
		return false
	}

	buf := make([]byte, e.blockSize())
	for {
		n, rerr := fd.Read(buf)
		if n > 0 && !yield(buf[:n], nil) {
			return false
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			yield(nil, fmt.Errorf("op=multipartx.read %s: %w", f.Path, rerr))
			return false
		}
	}
	return yield(crlf, nil)
}

// Len returns the exact body length, so the request can carry a Content-Length.
func (e *Encoder) Len() (int64, error) {
	var n int64
	for _, f := range e.Fields {
		n += int64(len(e.fieldHeader(f)) + len(f.Value) + len(crlf))
	}
	for _, f := range e.Files {
		st, err := os.Stat(f.Path)
		if err != nil {
			return 0, fmt.Errorf("op=multipartx.Len: %w", err)
		}
		ct := f.ContentType
		if ct == "" {
			ct = fallbackContentType
			if m, derr := mimetype.DetectFile(f.Path); derr == nil && m != nil {
				ct = m.String()
			}
		}
		n += int64(len(e.fileHeader(f, ct))) + st.Size() + int64(len(crlf))
	}
	return n + int64(len(e.closing())), nil
}

// Reader adapts Chunks to an io.ReadCloser suitable for a request body.
// Close releases any file the encoder still holds open.
func (e *Encoder) Reader() io.ReadCloser {
	next, stop := iter.Pull2(e.Chunks())
	return &reader{next: next, stop: stop}
}

type reader struct {
	next    func() ([]byte, error, bool)
	stop    func()
	pending []byte
	err     error
}

func (r *reader) Read(p []byte) (int, error) {
	for len(r.pending) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		chunk, err, ok := r.next()
		switch {
		case !ok:
			r.err = io.EOF
		case err != nil:
			r.err = err
		default:
			r.pending = chunk
		}
	}
	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}

func (r *reader) Close() error {
	r.stop()
	return nil
}
