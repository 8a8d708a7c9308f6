package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/local/lazydoc/internal/config"
	"github.com/local/lazydoc/internal/decoder"
	"github.com/local/lazydoc/internal/document"
	"github.com/local/lazydoc/internal/fetch"
	"github.com/local/lazydoc/internal/metrics"
	"github.com/local/lazydoc/internal/pagerec"
	"github.com/local/lazydoc/internal/resolver"
	"github.com/local/lazydoc/internal/statuscheck"
	"github.com/local/lazydoc/internal/store"
)

// Server exposes the document engine over HTTP. Every opened document is
// held in an in-memory registry keyed by a server-assigned ID until it is
// deleted or the server shuts down.
type Server struct {
	cfg     config.Config
	cache   *store.GeometryStore
	checker *statuscheck.Checker

	mu   sync.Mutex
	docs map[string]*document.Document
}

func New(cfg config.Config, cache *store.GeometryStore, checker *statuscheck.Checker) *Server {
	return &Server{
		cfg:     cfg,
		cache:   cache,
		checker: checker,
		docs:    make(map[string]*document.Document),
	}
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK); _, _ = w.Write([]byte("ok")) })
	mux.HandleFunc("/status", s.handleStatus)
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/documents", s.handleDocuments)
	mux.HandleFunc("/documents/upload", s.handleUpload)
	mux.HandleFunc("/documents/", s.handleDocumentSubtree)
}

// Shutdown disposes every registered document.
func (s *Server) Shutdown() {
	s.mu.Lock()
	docs := make([]*document.Document, 0, len(s.docs))
	for _, d := range s.docs {
		docs = append(docs, d)
	}
	s.docs = make(map[string]*document.Document)
	s.mu.Unlock()
	for _, d := range docs {
		d.Dispose()
	}
}

func (s *Server) get(id string) (*document.Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[id]
	return d, ok
}

type openReq struct {
	FilePath string `json:"file_path"`
	FileURL  string `json:"file_url"`
	Password string `json:"password"`
}

type openResp struct {
	ID        string `json:"id"`
	Ref       string `json:"ref"`
	PageCount int    `json:"page_count"`
}

type pageInfo struct {
	Page     int     `json:"page"`
	State    string  `json:"state"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Rotation int     `json:"rotation"`
	Failures int     `json:"failures,omitempty"`
	LastErr  string  `json:"last_error,omitempty"`
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()
	var req openReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	ref := req.FilePath
	if ref == "" {
		ref = req.FileURL
	}
	if ref == "" {
		http.Error(w, "missing file_path or file_url", http.StatusBadRequest)
		return
	}

	src, err := parseSource(ref, req.Password)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.openAndRegister(r.Context(), w, src, req.Password)
}

// handleUpload accepts multipart/form-data with a "file" part and opens it
// as an in-memory document.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	maxBytes := int64(s.cfg.Server.MaxUploadMB) << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		http.Error(w, "upload too large or malformed", http.StatusBadRequest)
		return
	}
	f, hdr, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file part", http.StatusBadRequest)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		http.Error(w, "failed to read upload", http.StatusBadRequest)
		return
	}
	src := fetch.InMemoryBytes{Name: hdr.Filename, Data: data}
	s.openAndRegister(r.Context(), w, src, r.FormValue("password"))
}

func (s *Server) openAndRegister(ctx context.Context, w http.ResponseWriter, src fetch.Source, password string) {
	opts := []document.Option{
		document.WithConcurrency(s.cfg.Resolver.BatchConcurrency),
		document.WithFallback(pagerec.Geometry{
			Width:  s.cfg.Resolver.FallbackWidth,
			Height: s.cfg.Resolver.FallbackHeight,
		}),
		document.WithFetchOptions(fetch.Options{
			HTTPTimeout: s.cfg.Fetch.HTTPTimeout,
			Retries:     s.cfg.Fetch.Retries,
		}),
	}
	if s.cache != nil {
		opts = append(opts, document.WithGeometryCache(s.cache))
	}
	if password != "" {
		opts = append(opts, document.WithPasswordPrompt(func(context.Context) (string, error) {
			return password, nil
		}))
	}

	doc, err := document.Open(ctx, src, opts...)
	if err != nil {
		writeOpenError(w, src.Ref(), err)
		return
	}

	id := uuid.NewString()
	s.mu.Lock()
	s.docs[id] = doc
	s.mu.Unlock()
	go s.drainEvents(id, doc)

	log.Info().Str("doc_id", id).Str("ref", doc.Ref()).Int("pages", doc.PageCount()).Msg("document registered")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(openResp{ID: id, Ref: doc.Ref(), PageCount: doc.PageCount()})
}

// drainEvents keeps the document's event channel flowing; the HTTP surface
// has no push channel to the client, so events only feed the log.
func (s *Server) drainEvents(id string, doc *document.Document) {
	for ev := range doc.Events() {
		log.Debug().Str("doc_id", id).Str("type", string(ev.Type)).Ints("pages", ev.Pages).Msg("document event")
	}
}

func writeOpenError(w http.ResponseWriter, ref string, err error) {
	switch {
	case err == decoder.ErrPasswordRequired:
		http.Error(w, "password required", http.StatusUnauthorized)
	case err == decoder.ErrInvalidPassword:
		http.Error(w, "invalid password", http.StatusUnauthorized)
	default:
		log.Warn().Err(err).Str("ref", ref).Msg("document open failed")
		http.Error(w, fmt.Sprintf("failed to open document: %v", err), http.StatusUnprocessableEntity)
	}
}

// handleDocumentSubtree routes /documents/{id}[/...] by hand.
func (s *Server) handleDocumentSubtree(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/documents/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	id := parts[0]
	doc, ok := s.get(id)
	if !ok {
		http.Error(w, "document not found", http.StatusNotFound)
		return
	}

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		s.handleDocumentInfo(w, r, doc)
	case len(parts) == 1 && r.Method == http.MethodDelete:
		s.handleDelete(w, id, doc)
	case len(parts) == 2 && parts[1] == "resolve" && r.Method == http.MethodPost:
		s.handleResolve(w, r, doc)
	case len(parts) == 3 && parts[1] == "pages":
		s.handlePage(w, r, doc, parts[2])
	case len(parts) == 4 && parts[1] == "pages" && parts[3] == "failure" && r.Method == http.MethodDelete:
		s.handleClearFailure(w, doc, parts[2])
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleDocumentInfo(w http.ResponseWriter, r *http.Request, doc *document.Document) {
	pages := make([]pageInfo, 0, doc.PageCount())
	for n := 1; n <= doc.PageCount(); n++ {
		p, _ := doc.Page(n)
		pages = append(pages, pageToInfo(p))
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"ref":        doc.Ref(),
		"page_count": doc.PageCount(),
		"pages":      pages,
	})
}

// handlePage returns the page's current geometry. ?resolve=1 blocks until
// true geometry is available; otherwise fallback dimensions come back
// immediately for unresolved pages.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request, doc *document.Document, pageStr string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	n, err := strconv.Atoi(pageStr)
	if err != nil {
		http.Error(w, "invalid page number", http.StatusBadRequest)
		return
	}
	p, err := doc.Page(n)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	if r.URL.Query().Get("resolve") == "1" {
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Resolver.ResolveTimeout)
		defer cancel()
		if _, err := p.EnsureResolved(ctx); err != nil {
			writeResolveError(w, err)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(pageToInfo(p))
}

type resolveReq struct {
	Pages []int `json:"pages"`
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request, doc *document.Document) {
	defer r.Body.Close()
	var req resolveReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if len(req.Pages) == 0 {
		http.Error(w, "no pages requested", http.StatusBadRequest)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Resolver.ResolveTimeout)
	defer cancel()
	results, err := doc.ResolveMany(ctx, req.Pages)
	if err != nil {
		writeResolveError(w, err)
		return
	}
	resolved := make([]int, 0, len(results))
	failed := make([]int, 0)
	for n, ok := range results {
		if ok {
			resolved = append(resolved, n)
		} else {
			failed = append(failed, n)
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"resolved": resolved, "failed": failed})
}

func (s *Server) handleClearFailure(w http.ResponseWriter, doc *document.Document, pageStr string) {
	n, err := strconv.Atoi(pageStr)
	if err != nil {
		http.Error(w, "invalid page number", http.StatusBadRequest)
		return
	}
	if err := doc.ClearFailed(n); err != nil {
		writeResolveError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDelete(w http.ResponseWriter, id string, doc *document.Document) {
	s.mu.Lock()
	delete(s.docs, id)
	s.mu.Unlock()
	doc.Dispose()
	log.Info().Str("doc_id", id).Msg("document deleted")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	sum := s.checker.Summary(ctx)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(sum)
}

func writeResolveError(w http.ResponseWriter, err error) {
	switch err.(type) {
	case *resolver.PageRangeError:
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	switch err {
	case document.ErrDisposed:
		http.Error(w, "document disposed", http.StatusGone)
	case context.DeadlineExceeded:
		http.Error(w, "resolution timed out", http.StatusGatewayTimeout)
	default:
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	}
}

func pageToInfo(p *document.PageHandle) pageInfo {
	g := p.Dimensions()
	info := pageInfo{
		Page:     p.Number(),
		State:    p.State().String(),
		Width:    g.Width,
		Height:   g.Height,
		Rotation: int(g.Rotation),
		Failures: p.Failures(),
	}
	if err := p.LastErr(); err != nil {
		info.LastErr = err.Error()
	}
	return info
}

// parseSource maps a textual ref onto a fetch source: s3://bucket/key,
// http(s) URLs, or a local filesystem path.
func parseSource(ref, password string) (fetch.Source, error) {
	switch {
	case strings.HasPrefix(ref, "s3://"):
		rest := strings.TrimPrefix(ref, "s3://")
		idx := strings.IndexByte(rest, '/')
		if idx <= 0 || idx == len(rest)-1 {
			return nil, fmt.Errorf("malformed s3 ref %q, want s3://bucket/key", ref)
		}
		return fetch.S3Object{Bucket: rest[:idx], Key: rest[idx+1:], Password: password}, nil
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return fetch.RemoteURL{URL: ref}, nil
	default:
		return fetch.LocalPath(ref), nil
	}
}
