package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
)

func seedBlob(t *testing.T, store BlobStore, sessionID, content string) *BlobMetadata {
	t.Helper()
	meta := BlobMetadata{
		FileName:    "assessment.html",
		ContentType: "text/html",
		SessionID:   sessionID,
		CreatedBy:   "clinician-1",
	}
	result, err := store.Upload(context.Background(), meta, strings.NewReader(content))
	if err != nil {
		t.Fatalf("seedBlob: %v", err)
	}
	return result
}

func TestInMemoryBlobStore_Upload(t *testing.T) {
	store := NewInMemoryBlobStore()
	result := seedBlob(t, store, "s1", "<p>hello</p>")

	if result.ID == "" {
		t.Error("expected ID to be set")
	}
	if result.Size != int64(len("<p>hello</p>")) {
		t.Errorf("expected size %d, got %d", len("<p>hello</p>"), result.Size)
	}
	want := fmt.Sprintf("%x", sha256.Sum256([]byte("<p>hello</p>")))
	if result.Hash != want {
		t.Errorf("expected hash %s, got %s", want, result.Hash)
	}
}

func TestInMemoryBlobStore_Upload_Rejects(t *testing.T) {
	store := NewInMemoryBlobStore()
	_, err := store.Upload(context.Background(), BlobMetadata{ContentType: "text/html"}, strings.NewReader("x"))
	if !errors.Is(err, ErrMissingFileName) {
		t.Errorf("expected ErrMissingFileName, got %v", err)
	}
	_, err = store.Upload(context.Background(), BlobMetadata{FileName: "a.exe", ContentType: "application/x-msdownload"}, strings.NewReader("x"))
	if !errors.Is(err, ErrInvalidContentType) {
		t.Errorf("expected ErrInvalidContentType, got %v", err)
	}
	big := strings.NewReader(strings.Repeat("a", MaxFileSize+1))
	_, err = store.Upload(context.Background(), BlobMetadata{FileName: "a.txt", ContentType: "text/plain"}, big)
	if !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("expected ErrFileTooLarge, got %v", err)
	}
}

func TestInMemoryBlobStore_DownloadAndDelete(t *testing.T) {
	store := NewInMemoryBlobStore()
	m := seedBlob(t, store, "s1", "doc")

	rc, meta, err := store.Download(context.Background(), m.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body, _ := io.ReadAll(rc)
	rc.Close()
	if string(body) != "doc" || meta.SessionID != "s1" {
		t.Errorf("unexpected download: %q %+v", body, meta)
	}

	if err := store.Delete(context.Background(), m.ID); err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}
	if _, _, err := store.Download(context.Background(), m.ID); !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("expected ErrBlobNotFound after delete, got %v", err)
	}
	if err := store.Delete(context.Background(), m.ID); !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("expected ErrBlobNotFound on second delete, got %v", err)
	}
}

func TestInMemoryBlobStore_ListBySession(t *testing.T) {
	store := NewInMemoryBlobStore()
	seedBlob(t, store, "s1", "a")
	seedBlob(t, store, "s1", "b")
	seedBlob(t, store, "s2", "c")

	items, total, err := store.ListBySession(context.Background(), "s1", 1, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 2 || len(items) != 1 {
		t.Errorf("expected total 2 with 1 item, got %d/%d", total, len(items))
	}
}

func TestInMemoryBlobStore_ConcurrentAccess(t *testing.T) {
	store := NewInMemoryBlobStore()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, err := store.Upload(context.Background(), BlobMetadata{FileName: "f.txt", ContentType: "text/plain", SessionID: "s"}, strings.NewReader(fmt.Sprint(i)))
			if err != nil {
				t.Errorf("upload %d: %v", i, err)
				return
			}
			if _, _, err := store.Download(context.Background(), m.ID); err != nil {
				t.Errorf("download %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()
	if _, total, _ := store.ListBySession(context.Background(), "s", 100, 0); total != 20 {
		t.Errorf("expected 20 blobs, got %d", total)
	}
}

func TestBlobHandler_Download(t *testing.T) {
	store := NewInMemoryBlobStore()
	m := seedBlob(t, store, "s1", "<h1>Assessment</h1>")
	h := NewBlobHandler(store)

	e := echo.New()
	h.RegisterPublicRoutes(e)
	req := httptest.NewRequest(http.MethodGet, "/media/"+m.ID, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/html" {
		t.Errorf("expected text/html, got %s", ct)
	}
	if rec.Body.String() != "<h1>Assessment</h1>" {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
}

func TestBlobHandler_DownloadNotFound(t *testing.T) {
	h := NewBlobHandler(NewInMemoryBlobStore())
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("missing")

	err := h.handleDownload(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %v", err)
	}
}

func TestBlobHandler_List(t *testing.T) {
	store := NewInMemoryBlobStore()
	seedBlob(t, store, "s1", "a")
	seedBlob(t, store, "s1", "b")
	h := NewBlobHandler(store)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/media?session_id=s1", nil)
	rec := httptest.NewRecorder()
	if err := h.handleList(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp struct {
		Total int `json:"total"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Total != 2 {
		t.Errorf("expected total 2, got %d", resp.Total)
	}
}
