package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"strings"
	"testing"

	"FileShare/internal/dto"
	"FileShare/internal/repo"
	"FileShare/internal/service"
	"FileShare/internal/storage"
	"FileShare/internal/xerrors"

	"github.com/gin-gonic/gin"
)

const testLimit = 2048

func newTestEngine(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	registry, err := repo.NewBoltRegistry(filepath.Join(t.TempDir(), "shares.bolt"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { registry.Close() })
	store, err := storage.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := service.NewShareService(registry, store, logger, service.Policy{
		MaxUploadBytes:      testLimit,
		DefaultMaxDownloads: 10,
		AccessKeyLength:     12,
		BasePath:            "/api",
	})
	h := NewShareHandler(svc, logger, testLimit)

	r := gin.New()
	api := r.Group("/api")
	api.GET("/health", Health)
	api.POST("/upload", h.Upload)
	api.GET("/info/:accessKey", h.Info)
	api.GET("/download/:accessKey", h.Download)
	api.DELETE("/files/:accessKey", h.Delete)
	return r
}

func multipartBody(t *testing.T, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	part, err := w.CreatePart(header)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return body, w.FormDataContentType()
}

func doUpload(t *testing.T, r *gin.Engine, query string, filename string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := multipartBody(t, filename, "", data)
	req := httptest.NewRequest(http.MethodPost, "/api/upload"+query, body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func doRequest(r *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func detail(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body dto.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("error body is not JSON: %q", w.Body.String())
	}
	return body.Detail
}

func TestUploadInfoDownloadDelete(t *testing.T) {
	r := newTestEngine(t)
	data := []byte("hello over http")

	w := doUpload(t, r, "?maxDownloads=1&expiresInHours=2", "greeting.txt", data)
	if w.Code != http.StatusCreated {
		t.Fatalf("upload: expect 201, got %d: %s", w.Code, w.Body.String())
	}
	var up dto.UploadResponse
	if err := json.Unmarshal(w.Body.Bytes(), &up); err != nil {
		t.Fatal(err)
	}
	if up.AccessKey == "" || up.DownloadURL != "/api/download/"+up.AccessKey || up.ExpiresAt == nil {
		t.Fatalf("unexpected upload response %+v", up)
	}
	if up.Filename != "greeting.txt" || up.FileSize != int64(len(data)) {
		t.Fatalf("unexpected upload response %+v", up)
	}

	w = doRequest(r, http.MethodGet, "/api/info/"+up.AccessKey)
	if w.Code != http.StatusOK {
		t.Fatalf("info: expect 200, got %d", w.Code)
	}
	var info dto.FileInfoResponse
	if err := json.Unmarshal(w.Body.Bytes(), &info); err != nil {
		t.Fatal(err)
	}
	if info.MaxDownloads != 1 || info.DownloadCount != 0 || info.ContentType != "text/plain; charset=utf-8" {
		t.Fatalf("unexpected info %+v", info)
	}

	w = doRequest(r, http.MethodGet, up.DownloadURL)
	if w.Code != http.StatusOK {
		t.Fatalf("download: expect 200, got %d", w.Code)
	}
	if !bytes.Equal(w.Body.Bytes(), data) {
		t.Fatalf("unexpected body %q", w.Body.String())
	}
	if got := w.Header().Get("Content-Disposition"); got != `attachment; filename="greeting.txt"` {
		t.Fatalf("unexpected disposition %q", got)
	}
	if got := w.Header().Get("Content-Length"); got != fmt.Sprint(len(data)) {
		t.Fatalf("unexpected length %q", got)
	}
	if got := w.Header().Get("Content-Type"); got != "text/plain; charset=utf-8" {
		t.Fatalf("unexpected content type %q", got)
	}

	w = doRequest(r, http.MethodGet, up.DownloadURL)
	if w.Code != http.StatusGone || detail(t, w) != "Download limit reached" {
		t.Fatalf("second download: expect 410, got %d %s", w.Code, w.Body.String())
	}

	w = doRequest(r, http.MethodDelete, "/api/files/"+up.AccessKey)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "File deleted successfully") {
		t.Fatalf("delete: got %d %s", w.Code, w.Body.String())
	}
	w = doRequest(r, http.MethodGet, "/api/info/"+up.AccessKey)
	if w.Code != http.StatusNotFound || detail(t, w) != "File not found" {
		t.Fatalf("info after delete: got %d %s", w.Code, w.Body.String())
	}
}

func TestUploadSnakeCaseParams(t *testing.T) {
	r := newTestEngine(t)
	w := doUpload(t, r, "?max_downloads=4&expires_in_hours=0", "a.txt", []byte("a"))
	if w.Code != http.StatusCreated {
		t.Fatalf("expect 201, got %d: %s", w.Code, w.Body.String())
	}
	var up dto.UploadResponse
	if err := json.Unmarshal(w.Body.Bytes(), &up); err != nil {
		t.Fatal(err)
	}
	w = doRequest(r, http.MethodGet, "/api/info/"+up.AccessKey)
	if w.Code != http.StatusGone || detail(t, w) != "File has expired" {
		t.Fatalf("zero hour share should be expired, got %d %s", w.Code, w.Body.String())
	}
}

func TestUploadErrors(t *testing.T) {
	r := newTestEngine(t)

	w := doUpload(t, r, "", "big.bin", make([]byte, testLimit+1))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("oversized: expect 413, got %d", w.Code)
	}
	if w = doUpload(t, r, "", "exact.bin", make([]byte, testLimit)); w.Code != http.StatusCreated {
		t.Fatalf("exact cap: expect 201, got %d: %s", w.Code, w.Body.String())
	}
	if w = doUpload(t, r, "?maxDownloads=0", "a.txt", []byte("a")); w.Code != http.StatusBadRequest {
		t.Fatalf("zero downloads: expect 400, got %d", w.Code)
	}
	if w = doUpload(t, r, "?expiresInHours=-3", "a.txt", []byte("a")); w.Code != http.StatusBadRequest {
		t.Fatalf("negative expiry: expect 400, got %d", w.Code)
	}
	if w = doUpload(t, r, "?maxDownloads=lots", "a.txt", []byte("a")); w.Code != http.StatusBadRequest {
		t.Fatalf("non numeric: expect 400, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/upload", strings.NewReader("not multipart"))
	req.Header.Set("Content-Type", "text/plain")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing file: expect 400, got %d", w.Code)
	}
}

func TestUnknownKeys(t *testing.T) {
	r := newTestEngine(t)
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/info/nope"},
		{http.MethodGet, "/api/download/nope"},
		{http.MethodDelete, "/api/files/nope"},
	} {
		w := doRequest(r, tc.method, tc.path)
		if w.Code != http.StatusNotFound || detail(t, w) != "File not found" {
			t.Fatalf("%s %s: expect 404, got %d %s", tc.method, tc.path, w.Code, w.Body.String())
		}
	}
}

func TestHealth(t *testing.T) {
	r := newTestEngine(t)
	w := doRequest(r, http.MethodGet, "/api/health")
	if w.Code != http.StatusOK {
		t.Fatalf("expect 200, got %d", w.Code)
	}
	var body dto.HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "healthy" || body.Timestamp.IsZero() {
		t.Fatalf("unexpected health body %+v", body)
	}
}

func TestContentDisposition(t *testing.T) {
	if got := contentDisposition(`we"ird.txt`); got != `attachment; filename="weird.txt"` {
		t.Fatalf("unexpected %q", got)
	}
	got := contentDisposition("отчёт.pdf")
	if !strings.Contains(got, "filename*=UTF-8''") {
		t.Fatalf("expect RFC 5987 form for non ASCII names, got %q", got)
	}
}

// brokenShares fails every lookup with an internal error.
type brokenShares struct {
	ShareAPI
}

func (brokenShares) Inspect(context.Context, string) (*service.ShareInfo, error) {
	return nil, xerrors.WrapMsg(xerrors.KindInternal, "inspect", "Error retrieving file", errors.New("db down"))
}

func TestErrorStopsHandlerChain(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewShareHandler(brokenShares{}, slog.New(slog.NewTextHandler(io.Discard, nil)), testLimit)
	reached := false
	r := gin.New()
	r.GET("/api/info/:accessKey", h.Info, func(c *gin.Context) { reached = true })

	w := doRequest(r, http.MethodGet, "/api/info/abc")
	if w.Code != http.StatusInternalServerError || detail(t, w) != "Error retrieving file" {
		t.Fatalf("expect 500 with generic detail, got %d %s", w.Code, w.Body.String())
	}
	if strings.Contains(w.Body.String(), "db down") {
		t.Fatal("internal cause leaked to the client")
	}
	if reached {
		t.Fatal("handler chain continued after an error response")
	}
}
