package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/NavineDevs/Navine-File-Sharer/internal/store"
)

const testChunkSize = 1024

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		Addr:            ":0",
		DataDir:         t.TempDir(),
		PublicDir:       t.TempDir(),
		MaxFileSize:     1 << 20,
		ChunkSize:       testChunkSize,
		AllowedExts:     parseExtensions(""),
		RetentionMaxAge: time.Hour,
		SweepInterval:   time.Hour,
		UploadMaxIdle:   time.Hour,
		Build:           BuildInfo{Version: "test", Commit: "none"},
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return newTestServerWithConfig(t, testConfig(t))
}

func newTestServerWithConfig(t *testing.T, cfg Config) *Server {
	t.Helper()
	st, err := store.NewFileStore(filepath.Join(cfg.DataDir, "metadata.json"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	objects, err := NewDiskObjects(filepath.Join(cfg.DataDir, "objects"))
	if err != nil {
		t.Fatalf("NewDiskObjects: %v", err)
	}
	srv, err := New(cfg, st, objects)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return srv
}

// faultStore wraps a real store and fails mutations on demand, for
// exercising the partial-failure paths between object write and metadata
// commit.
type faultStore struct {
	store.Store
	createErr error
	removeErr error
}

func (f *faultStore) Create(rec store.FileRecord) error {
	if f.createErr != nil {
		return f.createErr
	}
	return f.Store.Create(rec)
}

func (f *faultStore) Remove(id string) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	return f.Store.Remove(id)
}

// newFaultServer builds a server whose metadata store can be made to fail.
func newFaultServer(t *testing.T) (*Server, *faultStore) {
	t.Helper()
	cfg := testConfig(t)
	fs, err := store.NewFileStore(filepath.Join(cfg.DataDir, "metadata.json"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	st := &faultStore{Store: fs}
	objects, err := NewDiskObjects(filepath.Join(cfg.DataDir, "objects"))
	if err != nil {
		t.Fatalf("NewDiskObjects: %v", err)
	}
	srv, err := New(cfg, st, objects)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return srv, st
}

// captureErrorLog points the structured logger at a buffer for the test.
func captureErrorLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	old := DefaultLogger
	DefaultLogger = &Logger{output: &buf, minLevel: LogLevelError, enableJSON: true}
	t.Cleanup(func() { DefaultLogger = old })
	return &buf
}

// do runs one request through the full middleware-wrapped handler.
func do(t *testing.T, srv *Server, method, target string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	return rr
}

func doJSON(t *testing.T, srv *Server, method, target string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return do(t, srv, method, target, bytes.NewReader(b))
}

func decodeJSON[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

// uploadFile drives the whole protocol for content and returns the file id.
func uploadFile(t *testing.T, srv *Server, name string, content []byte, password string) string {
	t.Helper()

	rr := doJSON(t, srv, http.MethodPost, "/api/init", initReq{
		Filename: name,
		Size:     int64(len(content)),
		Password: password,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("init: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	init := decodeJSON[initResp](t, rr)

	total := int((int64(len(content)) + init.ChunkSize - 1) / init.ChunkSize)
	for i := 0; i < total; i++ {
		start := int64(i) * init.ChunkSize
		end := start + init.ChunkSize
		if end > int64(len(content)) {
			end = int64(len(content))
		}
		target := fmt.Sprintf("/api/chunk?uploadId=%s&index=%d", init.UploadID, i)
		rr := do(t, srv, http.MethodPost, target, bytes.NewReader(content[start:end]))
		if rr.Code != http.StatusOK {
			t.Fatalf("chunk %d: expected 200, got %d: %s", i, rr.Code, rr.Body.String())
		}
	}

	rr = doJSON(t, srv, http.MethodPost, "/api/finish", finishReq{
		UploadID: init.UploadID,
		FileID:   init.FileID,
		Total:    total,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("finish: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	fin := decodeJSON[finishResp](t, rr)
	if !strings.HasSuffix(fin.Link, "/download/"+init.FileID) {
		t.Errorf("link %q does not end in /download/%s", fin.Link, init.FileID)
	}

	return init.FileID
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	srv := newTestServer(t)

	// Three full chunks plus a partial tail.
	content := bytes.Repeat([]byte("navine"), 600) // 3600 bytes
	fileID := uploadFile(t, srv, "notes.txt", content, "")

	rr := do(t, srv, http.MethodGet, "/download/"+fileID, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("download: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if !bytes.Equal(rr.Body.Bytes(), content) {
		t.Error("downloaded bytes differ from uploaded content")
	}
	if got := rr.Header().Get("Content-Disposition"); !strings.Contains(got, "notes.txt") {
		t.Errorf("Content-Disposition %q missing filename", got)
	}
	if got := rr.Header().Get("Content-Length"); got != fmt.Sprint(len(content)) {
		t.Errorf("Content-Length = %q, want %d", got, len(content))
	}
}

func TestUploadOrderIndependence(t *testing.T) {
	srv := newTestServer(t)

	content := make([]byte, 3*testChunkSize+100)
	for i := range content {
		content[i] = byte(i % 251)
	}

	rr := doJSON(t, srv, http.MethodPost, "/api/init", initReq{Filename: "blob.iso", Size: int64(len(content))})
	init := decodeJSON[initResp](t, rr)

	// Upload the chunks backwards; assembly order must come from the
	// index, not arrival order.
	total := 4
	for _, i := range []int{3, 1, 2, 0} {
		start := int64(i) * init.ChunkSize
		end := start + init.ChunkSize
		if end > int64(len(content)) {
			end = int64(len(content))
		}
		target := fmt.Sprintf("/api/chunk?uploadId=%s&index=%d", init.UploadID, i)
		if rr := do(t, srv, http.MethodPost, target, bytes.NewReader(content[start:end])); rr.Code != http.StatusOK {
			t.Fatalf("chunk %d: got %d", i, rr.Code)
		}
	}

	rr = doJSON(t, srv, http.MethodPost, "/api/finish", finishReq{
		UploadID: init.UploadID, FileID: init.FileID, Total: total,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("finish: got %d: %s", rr.Code, rr.Body.String())
	}

	rr = do(t, srv, http.MethodGet, "/download/"+init.FileID, nil)
	if !bytes.Equal(rr.Body.Bytes(), content) {
		t.Error("out-of-order upload produced wrong assembled bytes")
	}
}

func TestInitRejectsBadRequests(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name string
		req  initReq
		code int
	}{
		{"missing filename", initReq{Size: 10}, http.StatusBadRequest},
		{"zero size", initReq{Filename: "a.txt"}, http.StatusBadRequest},
		{"negative size", initReq{Filename: "a.txt", Size: -1}, http.StatusBadRequest},
		{"size exceeded", initReq{Filename: "a.txt", Size: 2 << 20}, http.StatusRequestEntityTooLarge},
		{"extension rejected", initReq{Filename: "a.sh", Size: 10}, http.StatusBadRequest},
		{"no extension", initReq{Filename: "README", Size: 10}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doJSON(t, srv, http.MethodPost, "/api/init", tt.req)
			if rr.Code != tt.code {
				t.Errorf("expected %d, got %d: %s", tt.code, rr.Code, rr.Body.String())
			}
			resp := decodeJSON[errorResp](t, rr)
			if resp.Error == "" {
				t.Error("error response missing error message")
			}
		})
	}
}

func TestInitMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t)
	if rr := do(t, srv, http.MethodGet, "/api/init", nil); rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rr.Code)
	}
}

func TestChunkHandlerErrors(t *testing.T) {
	srv := newTestServer(t)

	rr := doJSON(t, srv, http.MethodPost, "/api/init", initReq{Filename: "a.txt", Size: 3000})
	init := decodeJSON[initResp](t, rr)

	t.Run("missing uploadId", func(t *testing.T) {
		rr := do(t, srv, http.MethodPost, "/api/chunk?index=0", strings.NewReader("x"))
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rr.Code)
		}
	})

	t.Run("bad index", func(t *testing.T) {
		rr := do(t, srv, http.MethodPost, "/api/chunk?uploadId="+init.UploadID+"&index=abc", strings.NewReader("x"))
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rr.Code)
		}
	})

	t.Run("unknown session", func(t *testing.T) {
		rr := do(t, srv, http.MethodPost, "/api/chunk?uploadId=nope&index=0", strings.NewReader("x"))
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rr.Code)
		}
	})

	t.Run("index out of range", func(t *testing.T) {
		rr := do(t, srv, http.MethodPost, "/api/chunk?uploadId="+init.UploadID+"&index=3", strings.NewReader("x"))
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rr.Code)
		}
	})

	t.Run("payload too large", func(t *testing.T) {
		big := bytes.Repeat([]byte("z"), testChunkSize+1)
		rr := do(t, srv, http.MethodPost, "/api/chunk?uploadId="+init.UploadID+"&index=0", bytes.NewReader(big))
		if rr.Code != http.StatusRequestEntityTooLarge {
			t.Errorf("expected 413, got %d", rr.Code)
		}
	})
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)

	rr := do(t, srv, http.MethodGet, "/health", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	resp := decodeJSON[healthResp](t, rr)
	if resp.Status != "ok" {
		t.Errorf("expected status ok, got %q", resp.Status)
	}
	for name, c := range resp.Components {
		if c.Status != "up" {
			t.Errorf("component %s is %s", name, c.Status)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)
	uploadFile(t, srv, "m.txt", []byte("metrics probe"), "")

	rr := do(t, srv, http.MethodGet, "/metrics", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{"nfs_uploads_total 1", "nfs_chunks_total 1", "nfs_upload_sessions_total 1"} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestRequestIDHeader(t *testing.T) {
	srv := newTestServer(t)

	rr := do(t, srv, http.MethodGet, "/health", nil)
	if rr.Header().Get("X-Request-Id") == "" {
		t.Error("X-Request-Id header not set")
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-Id", "fixed-id")
	rr2 := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr2, req)
	if got := rr2.Header().Get("X-Request-Id"); got != "fixed-id" {
		t.Errorf("client request id not kept, got %q", got)
	}
}
