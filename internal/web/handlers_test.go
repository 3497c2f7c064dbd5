package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/route33/routesync/internal/config"
	"github.com/route33/routesync/internal/core"
)

type fakeStore struct {
	snapshot []core.Customer
	applyErr error
	runs     []core.SyncRun
}

func (f *fakeStore) CustomerSnapshot(ctx context.Context) ([]core.Customer, error) {
	return f.snapshot, nil
}

func (f *fakeStore) RelationshipSnapshot(ctx context.Context) ([]core.CustomerItem, error) {
	return nil, nil
}

func (f *fakeStore) ItemSnapshot(ctx context.Context) ([]core.Item, error) {
	return nil, nil
}

func (f *fakeStore) ApplyWriteSet(ctx context.Context, ws *core.WriteSet) (core.ApplyCounts, error) {
	if f.applyErr != nil {
		return core.ApplyCounts{}, f.applyErr
	}
	return core.ApplyCounts{Inserted: int64(len(ws.ToInsert))}, nil
}

func (f *fakeStore) RecordSyncRun(ctx context.Context, run core.SyncRun) error {
	f.runs = append(f.runs, run)
	return nil
}

func (f *fakeStore) RecentSyncRuns(ctx context.Context, limit int) ([]core.SyncRun, error) {
	return f.runs, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host:           "127.0.0.1",
			Port:           8080,
			RequestTimeout: 60 * time.Second,
		},
		Sync: config.SyncConfig{
			MaxFileSize:  1 << 20,
			HistoryLimit: 50,
		},
	}
}

func newTestServer(store *fakeStore) *Server {
	svc := core.NewService(store, core.NewNormalizer(core.DefaultMappings()), core.DefaultDiffPolicy(), 0)
	return NewServer(svc, testConfig())
}

const uploadCSV = "CustomerNum,dlvr_name,dlvr_addr,dlvr_city,trip_days,textbox1,stmt_freq,item_num,item_desc,reg_invty_qty\n" +
	"100,Acme Linen,1 First St,\"Fresno, CA\",MWF,Plant 2502,11L,T100,BATH TOWEL,5\n"

func multipartUpload(t *testing.T, fileName, contents string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write([]byte(contents)); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func doUpload(t *testing.T, srv *Server, fileName, contents string) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartUpload(t, fileName, contents)
	req := httptest.NewRequest(http.MethodPost, "/api/sync/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	srv := newTestServer(&fakeStore{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestUpload(t *testing.T) {
	srv := newTestServer(&fakeStore{})

	rec := doUpload(t, srv, "export.csv", uploadCSV)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}

	var summary core.StageSummary
	if err := json.NewDecoder(rec.Body).Decode(&summary); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if summary.SyncID == "" {
		t.Error("response must carry a sync id")
	}
	if summary.Counts.Additions != 1 {
		t.Errorf("additions = %d, want 1", summary.Counts.Additions)
	}
}

func TestUploadNoFile(t *testing.T) {
	srv := newTestServer(&fakeStore{})

	req := httptest.NewRequest(http.MethodPost, "/api/sync/upload", strings.NewReader("not multipart"))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var er ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&er); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if er.Code != "FILE004" {
		t.Errorf("code = %q, want FILE004", er.Code)
	}
}

func TestUploadUnsupportedFormat(t *testing.T) {
	srv := newTestServer(&fakeStore{})

	rec := doUpload(t, srv, "export.pdf", "%PDF-1.4")
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("status = %d, want 415", rec.Code)
	}
	var er ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&er); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if er.Code != "FILE003" {
		t.Errorf("code = %q, want FILE003", er.Code)
	}
}

func TestPendingRoundTrip(t *testing.T) {
	srv := newTestServer(&fakeStore{})

	rec := doUpload(t, srv, "export.csv", uploadCSV)
	var summary core.StageSummary
	if err := json.NewDecoder(rec.Body).Decode(&summary); err != nil {
		t.Fatalf("decode upload: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/sync/"+summary.SyncID+"/", nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var ps core.PendingSync
	if err := json.NewDecoder(rec.Body).Decode(&ps); err != nil {
		t.Fatalf("decode pending: %v", err)
	}
	if ps.ID != summary.SyncID {
		t.Errorf("pending id = %q, want %q", ps.ID, summary.SyncID)
	}
	if ps.Changes == nil || len(ps.Changes.Additions) != 1 {
		t.Errorf("changes = %+v, want one addition", ps.Changes)
	}
}

func TestPendingNotFound(t *testing.T) {
	srv := newTestServer(&fakeStore{})

	req := httptest.NewRequest(http.MethodGet, "/api/sync/no-such-id/", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var er ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&er); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if er.Code != "SYNC001" {
		t.Errorf("code = %q, want SYNC001", er.Code)
	}
}

func TestApply(t *testing.T) {
	store := &fakeStore{}
	srv := newTestServer(store)

	rec := doUpload(t, srv, "export.csv", uploadCSV)
	var summary core.StageSummary
	if err := json.NewDecoder(rec.Body).Decode(&summary); err != nil {
		t.Fatalf("decode upload: %v", err)
	}

	body := `{"selections":{"additions_100":true}}`
	req := httptest.NewRequest(http.MethodPost, "/api/sync/"+summary.SyncID+"/apply", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var result core.ApplyResult
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Selected != 1 || result.Counts.Inserted != 1 {
		t.Errorf("result = %+v", result)
	}
	if len(store.runs) != 1 {
		t.Errorf("recorded runs = %d, want 1", len(store.runs))
	}

	// The pending entry is consumed; a second apply is a 404.
	req = httptest.NewRequest(http.MethodPost, "/api/sync/"+summary.SyncID+"/apply", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("second apply status = %d, want 404", rec.Code)
	}
}

func TestApplyBadBody(t *testing.T) {
	srv := newTestServer(&fakeStore{})

	req := httptest.NewRequest(http.MethodPost, "/api/sync/some-id/apply", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestApplyStorageError(t *testing.T) {
	store := &fakeStore{applyErr: errors.New("connection refused")}
	srv := newTestServer(store)

	rec := doUpload(t, srv, "export.csv", uploadCSV)
	var summary core.StageSummary
	if err := json.NewDecoder(rec.Body).Decode(&summary); err != nil {
		t.Fatalf("decode upload: %v", err)
	}

	body := `{"selections":{"additions_100":true}}`
	req := httptest.NewRequest(http.MethodPost, "/api/sync/"+summary.SyncID+"/apply", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var er ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&er); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if er.Code != "DB002" {
		t.Errorf("code = %q, want DB002", er.Code)
	}
}

func TestDiscard(t *testing.T) {
	srv := newTestServer(&fakeStore{})

	rec := doUpload(t, srv, "export.csv", uploadCSV)
	var summary core.StageSummary
	if err := json.NewDecoder(rec.Body).Decode(&summary); err != nil {
		t.Fatalf("decode upload: %v", err)
	}

	req := httptest.NewRequest(http.MethodDelete, "/api/sync/"+summary.SyncID+"/", nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/sync/"+summary.SyncID+"/", nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("second discard status = %d, want 404", rec.Code)
	}
}

func TestHistory(t *testing.T) {
	store := &fakeStore{runs: []core.SyncRun{{ID: "a", Status: "completed"}}}
	srv := newTestServer(store)

	req := httptest.NewRequest(http.MethodGet, "/api/sync/history", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Runs []core.SyncRun `json:"runs"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Runs) != 1 || resp.Runs[0].ID != "a" {
		t.Errorf("runs = %+v", resp.Runs)
	}
}

func TestHistoryEmptyIsArray(t *testing.T) {
	srv := newTestServer(&fakeStore{})

	req := httptest.NewRequest(http.MethodGet, "/api/sync/history", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"runs":[]`) {
		t.Errorf("body = %s, want empty runs array, not null", rec.Body)
	}
}
