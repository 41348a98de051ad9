// Package server exposes the converter over HTTP: single-file upload, batch
// directory conversion, job status and download of the last result. One job
// runs at a time.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Cortexa-LLC/mcp/src/doc2md/converter"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Status strings reported by GET /status.
const (
	StatusIdle  = "idle"
	StatusDone  = "done"
	StatusError = "error"
)

// DefaultMaxUploadBytes caps multipart bodies when Options leaves it unset.
const DefaultMaxUploadBytes = 200 << 20

// Converter is the part of converter.Converter the server drives.
type Converter interface {
	Convert(ctx context.Context, req converter.Request) (string, error)
	ConvertBatch(ctx context.Context, req converter.BatchRequest) (converter.BatchResult, error)
}

// Options configures a Server.
type Options struct {
	// OutputDir receives uploaded conversions.
	OutputDir      string
	MaxUploadBytes int64
}

// State is the job snapshot served by GET /status.
type State struct {
	Running    bool     `json:"running"`
	JobID      string   `json:"job_id,omitempty"`
	Progress   int      `json:"progress"`
	Status     string   `json:"status"`
	Logs       []string `json:"logs"`
	ResultPath string   `json:"result_path,omitempty"`
}

// Server holds the single-job state and the router.
type Server struct {
	conv Converter
	opts Options
	log  zerolog.Logger

	mu    sync.Mutex
	state State

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New returns a Server that converts through conv.
func New(conv Converter, opts Options, log zerolog.Logger) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		conv:   conv,
		opts:   opts,
		log:    log.With().Str("component", "server").Logger(),
		state:  State{Status: StatusIdle, Logs: []string{}},
		ctx:    ctx,
		cancel: cancel,
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/upload", s.handleUpload)
	r.Post("/convert", s.handleConvert)
	r.Get("/status", s.handleStatus)
	r.Get("/download", s.handleDownload)
	return r
}

// Close cancels the running job and waits for it to stop.
func (s *Server) Close() {
	s.cancel()
	s.wg.Wait()
}

// Snapshot returns a copy of the current job state.
func (s *Server) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state
	st.Logs = append([]string{}, s.state.Logs...)
	return st
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Msg("request")
	})
}

// ---- job state -------------------------------------------------------------

func (s *Server) busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Running
}

// start claims the single job slot. It returns false when a job is running.
func (s *Server) start(status string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Running {
		return "", false
	}
	id := uuid.NewString()
	s.state = State{Running: true, JobID: id, Status: status, Logs: []string{}}
	return id, true
}

func (s *Server) update(fn func(st *State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.state)
}

func (s *Server) appendLog(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	s.update(func(st *State) { st.Logs = append(st.Logs, line) })
}

// ---- handlers --------------------------------------------------------------

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.busy() {
		writeError(w, http.StatusConflict, "a conversion is already running")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file uploaded")
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if name == "." || name == string(filepath.Separator) {
		writeError(w, http.StatusBadRequest, "invalid file name")
		return
	}
	if !converter.IsSupported(name) {
		writeError(w, http.StatusBadRequest,
			"unsupported file type, expected one of: "+strings.Join(converter.SupportedFormats(), ", "))
		return
	}
	inline := formBool(r.FormValue("inline_images"))

	staging, err := os.MkdirTemp("", "doc2md-upload-*")
	if err != nil {
		s.log.Error().Err(err).Msg("create upload staging dir")
		writeError(w, http.StatusInternalServerError, "cannot stage upload")
		return
	}
	src := filepath.Join(staging, name)
	if err := saveUpload(file, src); err != nil {
		os.RemoveAll(staging)
		s.log.Error().Err(err).Str("file", name).Msg("stage upload")
		writeError(w, http.StatusInternalServerError, "cannot stage upload")
		return
	}

	id, ok := s.start("converting: " + name)
	if !ok {
		os.RemoveAll(staging)
		writeError(w, http.StatusConflict, "a conversion is already running")
		return
	}
	s.log.Info().Str("job_id", id).Str("file", name).Bool("inline_images", inline).Msg("upload accepted")

	req := converter.Request{SourcePath: src, OutputRoot: s.opts.OutputDir, InlineImages: inline}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer os.RemoveAll(staging)
		s.runSingle(id, name, req)
	}()

	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true, "job_id": id})
}

func (s *Server) runSingle(id, name string, req converter.Request) {
	md, err := s.conv.Convert(s.ctx, req)
	if err != nil {
		s.log.Error().Err(err).Str("job_id", id).Str("file", name).Msg("conversion failed")
		s.update(func(st *State) {
			st.Logs = append(st.Logs, fmt.Sprintf("[failed] %s: %v", name, err))
			st.Running, st.Progress, st.Status = false, 0, StatusError
		})
		return
	}
	s.log.Info().Str("job_id", id).Str("output", md).Msg("conversion finished")
	s.update(func(st *State) {
		st.Logs = append(st.Logs, fmt.Sprintf("[ok] %s -> %s", name, md))
		st.Running, st.Progress, st.Status, st.ResultPath = false, 100, StatusDone, md
	})
}

type batchBody struct {
	InputDir     string `json:"input_dir"`
	OutputDir    string `json:"output_dir"`
	Recursive    bool   `json:"recursive"`
	InlineImages bool   `json:"inline_images"`
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	var body batchBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(body.InputDir) == "" {
		writeError(w, http.StatusBadRequest, "input_dir is required")
		return
	}
	if info, err := os.Stat(body.InputDir); err != nil || !info.IsDir() {
		writeError(w, http.StatusBadRequest, "input_dir is not a directory")
		return
	}

	id, ok := s.start("scanning: " + body.InputDir)
	if !ok {
		writeError(w, http.StatusConflict, "a conversion is already running")
		return
	}
	s.log.Info().Str("job_id", id).Str("input_dir", body.InputDir).Bool("recursive", body.Recursive).Msg("batch accepted")

	req := converter.BatchRequest{
		InputDir:     body.InputDir,
		OutputRoot:   body.OutputDir,
		Recursive:    body.Recursive,
		InlineImages: body.InlineImages,
		Progress:     s.batchProgress,
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runBatch(id, req)
	}()

	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true, "job_id": id})
}

func (s *Server) batchProgress(done, total int, item converter.BatchItem) {
	var line string
	switch {
	case item.Skipped:
		line = "[skipped] " + item.Source
	case item.Err != nil:
		line = fmt.Sprintf("[failed] %s: %v", item.Source, item.Err)
	default:
		line = fmt.Sprintf("[ok] %s -> %s", item.Source, item.Output)
	}
	s.update(func(st *State) {
		st.Logs = append(st.Logs, line)
		st.Progress = done * 100 / total
		st.Status = fmt.Sprintf("converting (%d/%d)", done, total)
		if item.Err == nil && !item.Skipped {
			st.ResultPath = item.Output
		}
	})
}

func (s *Server) runBatch(id string, req converter.BatchRequest) {
	res, err := s.conv.ConvertBatch(s.ctx, req)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.log.Error().Err(err).Str("job_id", id).Msg("batch failed")
		s.update(func(st *State) {
			st.Logs = append(st.Logs, fmt.Sprintf("[error] %v", err))
			st.Running, st.Status = false, StatusError
		})
		return
	}
	if res.Total() == 0 {
		s.appendLog("no pdf, doc or docx files found in %s", req.InputDir)
	}
	s.log.Info().
		Str("job_id", id).
		Int("converted", res.Converted).
		Int("failed", res.Failed).
		Int("skipped", res.Skipped).
		Msg("batch finished")
	s.update(func(st *State) {
		st.Logs = append(st.Logs, fmt.Sprintf("converted %d, failed %d, skipped %d",
			res.Converted, res.Failed, res.Skipped))
		st.Running, st.Progress, st.Status = false, 100, StatusDone
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Snapshot())
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	st := s.Snapshot()
	if st.ResultPath == "" {
		writeError(w, http.StatusNotFound, "no result available")
		return
	}
	f, err := os.Open(st.ResultPath)
	if err != nil {
		writeError(w, http.StatusNotFound, "result file is gone")
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "cannot read result")
		return
	}
	name := filepath.Base(st.ResultPath)
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeContent(w, r, name, info.ModTime(), f)
}

// ---- helpers ---------------------------------------------------------------

func saveUpload(src io.Reader, dst string) error {
	f, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func formBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
