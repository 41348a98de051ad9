package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/Cortexa-LLC/mcp/src/doc2md/converter"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConverter struct {
	mu       sync.Mutex
	requests []converter.Request
	batches  []converter.BatchRequest
	convert  func(ctx context.Context, req converter.Request) (string, error)
	batch    func(ctx context.Context, req converter.BatchRequest) (converter.BatchResult, error)
}

func (f *fakeConverter) Convert(ctx context.Context, req converter.Request) (string, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return f.convert(ctx, req)
}

func (f *fakeConverter) ConvertBatch(ctx context.Context, req converter.BatchRequest) (converter.BatchResult, error) {
	f.mu.Lock()
	f.batches = append(f.batches, req)
	f.mu.Unlock()
	return f.batch(ctx, req)
}

func newTestServer(t *testing.T, conv *fakeConverter) (*Server, http.Handler) {
	t.Helper()
	s := New(conv, Options{OutputDir: t.TempDir()}, zerolog.Nop())
	t.Cleanup(s.Close)
	return s, s.Handler()
}

func uploadRequest(t *testing.T, name string, content []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if name != "" {
		fw, err := mw.CreateFormFile("file", name)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func batchRequest(t *testing.T, body any) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/convert", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeState(t *testing.T, h http.Handler) State {
	t.Helper()
	rec := serve(h, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var st State
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	return st
}

func TestUpload_ConvertsStagedFileAndCleansUp(t *testing.T) {
	outDir := t.TempDir()
	mdPath := filepath.Join(outDir, "Report (final)", "Report (final).md")
	var staged string
	conv := &fakeConverter{convert: func(_ context.Context, req converter.Request) (string, error) {
		staged = req.SourcePath
		data, err := os.ReadFile(req.SourcePath)
		if err != nil {
			return "", err
		}
		if string(data) != "%PDF-1.4" {
			return "", errors.New("staged content mismatch")
		}
		if err := os.MkdirAll(filepath.Dir(mdPath), 0o755); err != nil {
			return "", err
		}
		return mdPath, os.WriteFile(mdPath, []byte("# Report\n"), 0o644)
	}}
	s, h := newTestServer(t, conv)

	rec := serve(h, uploadRequest(t, "Report (final).pdf", []byte("%PDF-1.4"), map[string]string{"inline_images": "on"}))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	s.wg.Wait()

	require.Len(t, conv.requests, 1)
	req := conv.requests[0]
	assert.Equal(t, "Report (final).pdf", filepath.Base(req.SourcePath))
	assert.Equal(t, s.opts.OutputDir, req.OutputRoot)
	assert.True(t, req.InlineImages)
	_, err := os.Stat(filepath.Dir(staged))
	assert.True(t, os.IsNotExist(err), "staging dir removed after conversion")

	st := decodeState(t, h)
	assert.False(t, st.Running)
	assert.Equal(t, StatusDone, st.Status)
	assert.Equal(t, 100, st.Progress)
	assert.Equal(t, mdPath, st.ResultPath)
	require.Len(t, st.Logs, 1)
	assert.Contains(t, st.Logs[0], "[ok] Report (final).pdf")

	dl := serve(h, httptest.NewRequest(http.MethodGet, "/download", nil))
	require.Equal(t, http.StatusOK, dl.Code)
	assert.Equal(t, "# Report\n", dl.Body.String())
	assert.Contains(t, dl.Header().Get("Content-Disposition"), `filename="Report (final).md"`)
}

func TestUpload_Rejections(t *testing.T) {
	conv := &fakeConverter{convert: func(context.Context, converter.Request) (string, error) {
		return "", errors.New("must not be called")
	}}
	_, h := newTestServer(t, conv)

	rec := serve(h, uploadRequest(t, "", nil, map[string]string{"inline_images": "1"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(h, uploadRequest(t, "notes.txt", []byte("x"), nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "pdf, doc, docx")

	assert.Empty(t, conv.requests)
	assert.Equal(t, StatusIdle, decodeState(t, h).Status)
}

func TestUpload_FailureReported(t *testing.T) {
	conv := &fakeConverter{convert: func(context.Context, converter.Request) (string, error) {
		return "", &converter.Error{Kind: converter.KindMissingDependency, Msg: "office converter not found"}
	}}
	s, h := newTestServer(t, conv)

	rec := serve(h, uploadRequest(t, "old.doc", []byte("doc"), nil))
	require.Equal(t, http.StatusAccepted, rec.Code)
	s.wg.Wait()

	st := decodeState(t, h)
	assert.False(t, st.Running)
	assert.Equal(t, StatusError, st.Status)
	assert.Empty(t, st.ResultPath)
	require.Len(t, st.Logs, 1)
	assert.Contains(t, st.Logs[0], "[failed] old.doc")
	assert.Contains(t, st.Logs[0], "office converter not found")

	dl := serve(h, httptest.NewRequest(http.MethodGet, "/download", nil))
	assert.Equal(t, http.StatusNotFound, dl.Code)
}

func TestBusy_Returns409(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	conv := &fakeConverter{convert: func(context.Context, converter.Request) (string, error) {
		close(started)
		<-release
		return "", errors.New("stopped")
	}}
	s, h := newTestServer(t, conv)

	rec := serve(h, uploadRequest(t, "a.pdf", []byte("x"), nil))
	require.Equal(t, http.StatusAccepted, rec.Code)
	<-started
	assert.True(t, decodeState(t, h).Running)

	rec = serve(h, uploadRequest(t, "b.pdf", []byte("x"), nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = serve(h, batchRequest(t, map[string]any{"input_dir": t.TempDir()}))
	assert.Equal(t, http.StatusConflict, rec.Code)

	close(release)
	s.wg.Wait()
	assert.Len(t, conv.requests, 1)
	assert.Empty(t, conv.batches)
}

func TestConvert_Validation(t *testing.T) {
	conv := &fakeConverter{}
	_, h := newTestServer(t, conv)
	file := filepath.Join(t.TempDir(), "a.pdf")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

	bad := httptest.NewRequest(http.MethodPost, "/convert", bytes.NewBufferString("{"))
	assert.Equal(t, http.StatusBadRequest, serve(h, bad).Code)
	assert.Equal(t, http.StatusBadRequest, serve(h, batchRequest(t, map[string]any{})).Code)
	assert.Equal(t, http.StatusBadRequest, serve(h, batchRequest(t, map[string]any{"input_dir": "  "})).Code)
	assert.Equal(t, http.StatusBadRequest, serve(h, batchRequest(t, map[string]any{"input_dir": file})).Code)
	assert.Empty(t, conv.batches)
}

func TestConvert_RunsBatchWithProgress(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	conv := &fakeConverter{batch: func(_ context.Context, req converter.BatchRequest) (converter.BatchResult, error) {
		okItem := converter.BatchItem{Source: filepath.Join(req.InputDir, "a.pdf"), Output: filepath.Join(req.OutputRoot, "a", "a.md")}
		badItem := converter.BatchItem{Source: filepath.Join(req.InputDir, "b.doc"), Err: errors.New("boom")}
		req.Progress(1, 2, okItem)
		req.Progress(2, 2, badItem)
		return converter.BatchResult{Items: []converter.BatchItem{okItem, badItem}, Converted: 1, Failed: 1}, nil
	}}
	s, h := newTestServer(t, conv)

	rec := serve(h, batchRequest(t, map[string]any{
		"input_dir": in, "output_dir": out, "recursive": true, "inline_images": true,
	}))
	require.Equal(t, http.StatusAccepted, rec.Code)
	s.wg.Wait()

	require.Len(t, conv.batches, 1)
	br := conv.batches[0]
	assert.Equal(t, in, br.InputDir)
	assert.Equal(t, out, br.OutputRoot)
	assert.True(t, br.Recursive)
	assert.True(t, br.InlineImages)

	st := decodeState(t, h)
	assert.False(t, st.Running)
	assert.Equal(t, StatusDone, st.Status)
	assert.Equal(t, 100, st.Progress)
	assert.Equal(t, filepath.Join(out, "a", "a.md"), st.ResultPath)
	require.Len(t, st.Logs, 3)
	assert.Contains(t, st.Logs[0], "[ok]")
	assert.Contains(t, st.Logs[1], "[failed]")
	assert.Equal(t, "converted 1, failed 1, skipped 0", st.Logs[2])
}

func TestConvert_BatchError(t *testing.T) {
	conv := &fakeConverter{batch: func(context.Context, converter.BatchRequest) (converter.BatchResult, error) {
		return converter.BatchResult{}, errors.New("walk failed")
	}}
	s, h := newTestServer(t, conv)

	require.Equal(t, http.StatusAccepted, serve(h, batchRequest(t, map[string]any{"input_dir": t.TempDir()})).Code)
	s.wg.Wait()

	st := decodeState(t, h)
	assert.Equal(t, StatusError, st.Status)
	assert.Equal(t, []string{"[error] walk failed"}, st.Logs)
}

func TestClose_CancelsRunningJob(t *testing.T) {
	started := make(chan struct{})
	conv := &fakeConverter{convert: func(ctx context.Context, _ converter.Request) (string, error) {
		close(started)
		<-ctx.Done()
		return "", ctx.Err()
	}}
	s := New(conv, Options{OutputDir: t.TempDir()}, zerolog.Nop())
	h := s.Handler()

	require.Equal(t, http.StatusAccepted, serve(h, uploadRequest(t, "a.docx", []byte("x"), nil)).Code)
	<-started
	s.Close()

	assert.False(t, s.Snapshot().Running)
}

func TestDownload_NothingYet(t *testing.T) {
	_, h := newTestServer(t, &fakeConverter{})
	rec := serve(h, httptest.NewRequest(http.MethodGet, "/download", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	_, h := newTestServer(t, &fakeConverter{})
	rec := serve(h, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestFormBool(t *testing.T) {
	for in, want := range map[string]bool{
		"on": true, "TRUE": true, "1": true, " yes ": true,
		"": false, "off": false, "0": false, "nope": false,
	} {
		assert.Equal(t, want, formBool(in), in)
	}
}
