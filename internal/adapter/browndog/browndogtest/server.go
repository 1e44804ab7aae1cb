// Package browndogtest provides an in-process fake of the Brown Dog API for
// tests. It keeps keys, tokens, conversions and extractions in memory and
// counts every call so tests can assert on polling behaviour.
package browndogtest

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Upload is a file received by the multipart conversion endpoint.
type Upload struct {
	Field       string
	Filename    string
	ContentType string
	Data        []byte
}

// Server is a fake Brown Dog deployment.
type Server struct {
	*httptest.Server

	Username string
	Password string

	// ConvertPending is the number of 404 replies a conversion request gets
	// before the result URL is returned.
	ConvertPending int
	// ArtifactPending is the number of 404 replies a result URL gets before
	// its body is served.
	ArtifactPending int
	// ResultURL overrides the result URL handed out by conversions.
	ResultURL string
	// Artifact returns the body of a converted file.
	Artifact func(source, format string) []byte

	// StatusPending is the number of "Processing" replies before "Done".
	StatusPending int
	// JSONLDPending is the number of empty metadata.jsonld replies before
	// the extractor's entry shows up.
	JSONLDPending int
	// Metadata is merged into every extraction metadata reply.
	Metadata map[string]any

	// Outputs, Inputs and Paths back the I/O graph listings; Paths maps an
	// input format to the formats it converts into.
	Outputs []string
	Inputs  []string
	Paths   map[string][]string

	mu        sync.Mutex
	keys      map[string]bool
	tokens    map[string]string
	pending   map[string]int
	artifacts map[string][]byte
	files     map[string]*file
	calls     map[string]int
	uploads   []Upload
}

type file struct {
	url       string
	extractor string
	status    int
	jsonld    int
}

// NewServer starts a fake with one pending cycle on every readiness check.
func NewServer() *Server {
	s := &Server{
		Username:        "alice",
		Password:        "fred",
		ConvertPending:  1,
		ArtifactPending: 1,
		StatusPending:   1,
		JSONLDPending:   1,
		Outputs:         []string{"csv", "json", "pdf", "png", "txt"},
		Inputs:          []string{"csv", "doc", "jpg", "png"},
		Paths: map[string][]string{
			"csv": {"json", "txt"},
			"png": {"jpg", "pdf"},
		},
		keys:      map[string]bool{},
		tokens:    map[string]string{},
		pending:   map[string]int{},
		artifacts: map[string][]byte{},
		files:     map[string]*file{},
		calls:     map[string]int{},
	}
	s.Artifact = func(source, format string) []byte {
		return []byte(fmt.Sprintf("converted %s to %s\n", source, format))
	}
	s.Server = httptest.NewServer(s.routes())
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.count)

	r.Post("/keys/", s.basic(s.createKey))
	r.Post("/keys/{key}/tokens", s.basic(s.createToken))
	r.Delete("/keys/{key}", s.basic(s.deleteKey))
	r.Delete("/tokens/{token}", s.basic(s.deleteToken))

	r.Group(func(r chi.Router) {
		r.Use(s.bearer)
		r.Get("/dap/outputs", s.list(func() []string { return s.Outputs }))
		r.Get("/dap/inputs", s.list(func() []string { return s.Inputs }))
		r.Get("/dap/inputs/{format}", s.inputsFor)
		r.Get("/dap/convert", s.list(s.converters))
		r.Get("/dap/convert/{format}", s.convertersFor)
		r.Get("/dap/convert/{format}/{source}", s.convertURL)
		r.Post("/dap/convert/{format}/", s.convertFile)
		r.Get("/results/{name}", s.result)

		r.Post("/dts/api/extractions/upload_url", s.uploadURL)
		r.Get("/dts/api/extractions/{id}/status", s.status)
		r.Get("/dts/api/extractions/{id}/metadata", s.metadata)
		r.Post("/dts/api/files/{id}/extractions", s.trigger)
		r.Get("/dts/api/files/{id}/technicalmetadatajson", s.technical)
		r.Get("/dts/api/files/{id}/metadata.jsonld", s.jsonld)
		r.Delete("/dts/api/files/{id}", s.deleteFile)
	})
	return r
}

// Calls returns how often the route pattern was hit, e.g.
// "GET /dts/api/extractions/{id}/status".
func (s *Server) Calls(pattern string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[pattern]
}

// Uploads returns the files received so far.
func (s *Server) Uploads() []Upload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Upload(nil), s.uploads...)
}

// Files returns the ids of extraction files still stored.
func (s *Server) Files() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.files))
	for id := range s.files {
		out = append(out, id)
	}
	return out
}

// LiveKeys returns the number of keys not yet deleted.
func (s *Server) LiveKeys() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}

func (s *Server) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)
		if p := chi.RouteContext(r.Context()).RoutePattern(); p != "" {
			s.mu.Lock()
			s.calls[r.Method+" "+p]++
			s.mu.Unlock()
		}
	})
}

func (s *Server) basic(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || u != s.Username || p != s.Password {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		h(w, r)
	}
}

func (s *Server) bearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := r.Header.Get("Authorization")
		s.mu.Lock()
		key, ok := s.tokens[tok]
		live := ok && s.keys[key]
		s.mu.Unlock()
		if !live {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) createKey(w http.ResponseWriter, _ *http.Request) {
	key := uuid.NewString()
	s.mu.Lock()
	s.keys[key] = true
	s.mu.Unlock()
	writeJSON(w, map[string]string{"api-key": key})
}

func (s *Server) createToken(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.keys[key] {
		http.Error(w, "no such key", http.StatusNotFound)
		return
	}
	tok := uuid.NewString()
	s.tokens[tok] = key
	writeJSON(w, map[string]string{"token": tok})
}

func (s *Server) deleteKey(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.keys[key] {
		http.Error(w, "no such key", http.StatusNotFound)
		return
	}
	delete(s.keys, key)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) deleteToken(w http.ResponseWriter, r *http.Request) {
	tok := chi.URLParam(r, "token")
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[tok]; !ok {
		http.Error(w, "no such token", http.StatusNotFound)
		return
	}
	delete(s.tokens, tok)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) list(items func() []string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, strings.Join(items(), "\n")+"\n")
	}
}

func (s *Server) converters() []string {
	var out []string
	for in, outs := range s.Paths {
		for _, o := range outs {
			out = append(out, in+" "+o)
		}
	}
	return out
}

func (s *Server) convertersFor(w http.ResponseWriter, r *http.Request) {
	s.list(func() []string { return s.Paths[chi.URLParam(r, "format")] })(w, r)
}

func (s *Server) inputsFor(w http.ResponseWriter, r *http.Request) {
	target := chi.URLParam(r, "format")
	s.list(func() []string {
		var out []string
		for in, outs := range s.Paths {
			for _, o := range outs {
				if o == target {
					out = append(out, in)
				}
			}
		}
		return out
	})(w, r)
}

func (s *Server) convertURL(w http.ResponseWriter, r *http.Request) {
	format := chi.URLParam(r, "format")
	source, err := url.QueryUnescape(chi.URLParam(r, "source"))
	if err != nil {
		http.Error(w, "bad source", http.StatusBadRequest)
		return
	}
	s.convert(w, "convert:"+format+":"+source, source, format)
}

func (s *Server) convertFile(w http.ResponseWriter, r *http.Request) {
	format := chi.URLParam(r, "format")
	mr, err := r.MultipartReader()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var up *Upload
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		up = readPart(part, up)
	}
	if up == nil || up.Field != "file" {
		http.Error(w, "missing file", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.uploads = append(s.uploads, *up)
	s.mu.Unlock()
	s.convert(w, "", up.Filename, format)
}

func readPart(part *multipart.Part, prev *Upload) *Upload {
	defer func() { _ = part.Close() }()
	if part.FileName() == "" {
		return prev
	}
	data, _ := io.ReadAll(part)
	return &Upload{
		Field:       part.FormName(),
		Filename:    part.FileName(),
		ContentType: part.Header.Get("Content-Type"),
		Data:        data,
	}
}

// convert answers 404 for the first ConvertPending requests with the same
// pendingKey, then registers and returns a result URL. Uploads have no
// pendingKey and get their URL at once.
func (s *Server) convert(w http.ResponseWriter, pendingKey, source, format string) {
	s.mu.Lock()
	if pendingKey != "" {
		if _, seen := s.pending[pendingKey]; !seen {
			s.pending[pendingKey] = s.ConvertPending
		}
		if s.pending[pendingKey] > 0 {
			s.pending[pendingKey]--
			s.mu.Unlock()
			http.Error(w, "conversion in progress", http.StatusNotFound)
			return
		}
	}
	name := uuid.NewString() + "." + format
	s.artifacts[name] = s.Artifact(source, format)
	s.pending["result:"+name] = s.ArtifactPending
	result := s.URL + "/results/" + name
	if s.ResultURL != "" {
		result = s.ResultURL
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "text/plain")
	_, _ = io.WriteString(w, result+"\n")
}

func (s *Server) result(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	s.mu.Lock()
	body, ok := s.artifacts[name]
	wait := s.pending["result:"+name]
	if ok && wait > 0 {
		s.pending["result:"+name] = wait - 1
	}
	s.mu.Unlock()
	if !ok || wait > 0 {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(body)
}

func (s *Server) uploadURL(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FileURL string `json:"fileurl"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.FileURL == "" {
		http.Error(w, "fileurl required", http.StatusBadRequest)
		return
	}
	id := uuid.NewString()
	f := &file{url: req.FileURL, status: s.StatusPending, jsonld: s.JSONLDPending}
	if r.URL.Query().Get("extract") == "0" {
		f.status = -1
	}
	s.mu.Lock()
	s.files[id] = f
	s.mu.Unlock()
	writeJSON(w, map[string]string{"id": id})
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*file, bool) {
	f, ok := s.files[chi.URLParam(r, "id")]
	if !ok {
		http.Error(w, "no such file", http.StatusNotFound)
	}
	return f, ok
}

func (s *Server) trigger(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Extractor string `json:"extractor"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Extractor == "" {
		http.Error(w, "extractor required", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.lookup(w, r)
	if !ok {
		return
	}
	f.extractor = req.Extractor
	writeJSON(w, map[string]string{"status": "OK"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.lookup(w, r)
	if !ok {
		return
	}
	st := "Done"
	if f.status != 0 {
		st = "Processing"
		if f.status > 0 {
			f.status--
		}
	}
	writeJSON(w, map[string]string{"Status": st})
}

func (s *Server) metadata(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.lookup(w, r)
	if !ok {
		return
	}
	out := map[string]any{"id": chi.URLParam(r, "id"), "filename": path(f.url)}
	for k, v := range s.Metadata {
		out[k] = v
	}
	writeJSON(w, out)
}

func (s *Server) technical(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, []map[string]any{{"source": f.url, "size": len(f.url)}})
}

func (s *Server) jsonld(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.lookup(w, r)
	if !ok {
		return
	}
	name := r.URL.Query().Get("extractor")
	if name != "" && (name != f.extractor || f.jsonld > 0) {
		if name == f.extractor {
			f.jsonld--
		}
		writeJSON(w, []any{})
		return
	}
	writeJSON(w, []map[string]any{{
		"agent":   map[string]string{"name": f.extractor},
		"content": s.Metadata,
	}})
}

func (s *Server) deleteFile(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lookup(w, r); !ok {
		return
	}
	delete(s.files, chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusOK)
}

func path(u string) string {
	if i := strings.LastIndex(u, "/"); i >= 0 {
		return u[i+1:]
	}
	return u
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
