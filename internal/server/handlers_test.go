package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/archive"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/store"
)

// stubAnswerer returns canned replies, or errors when failing is set.
type stubAnswerer struct {
	failAnswer    bool
	failSynthesis bool
}

func (a *stubAnswerer) Answer(ctx context.Context, question string, results []models.SearchResult) (string, error) {
	if a.failAnswer {
		return "", errors.New("answer backend down")
	}
	return "stub answer", nil
}

func (a *stubAnswerer) Synthesize(ctx context.Context, question string, answers []models.DocumentAnswer) (*models.Synthesis, error) {
	if a.failSynthesis {
		return nil, errors.New("synthesis backend down")
	}
	return &models.Synthesis{
		Answer:  "synthesized answer",
		Themes:  []models.Theme{{Name: "Theme", Description: "desc", Documents: []models.DocumentRef{}}},
		Sources: answers,
	}, nil
}

func newTestServer(t *testing.T, answerer *stubAnswerer) *Server {
	t.Helper()
	st, err := store.New(store.Options{}, embedding.NewMockEmbedder(64), nil)
	if err != nil {
		t.Fatal(err)
	}
	arch, err := archive.Open(filepath.Join(t.TempDir(), "archive.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = arch.Close() })
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	var ans *stubAnswerer
	if answerer != nil {
		ans = answerer
	}
	if ans == nil {
		return NewServer(st, arch, nil, extract.NewExtractor(), cfg, zap.NewNop())
	}
	return NewServer(st, arch, ans, extract.NewExtractor(), cfg, zap.NewNop())
}

func multipartUpload(t *testing.T, filename, content, id string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	fw, err := w.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if id != "" {
		if err := w.WriteField("id", id); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return &body, w.FormDataContentType()
}

func doUpload(t *testing.T, router http.Handler, filename, content, id string) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartUpload(t, filename, content, id)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func postJSON(t *testing.T, router http.Handler, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
}

func TestHandleUpload(t *testing.T) {
	srv := newTestServer(t, nil)
	router := srv.Router()

	rec := doUpload(t, router, "cities.txt",
		"Paris is the capital of France.\nBerlin is the capital of Germany.", "doc-1")
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp uploadResponse
	decode(t, rec, &resp)
	if resp.ID != "doc-1" || resp.Chunks != 2 || resp.Pages != 1 {
		t.Errorf("resp = %+v", resp)
	}

	// Archived for reindex.
	if _, err := srv.archive.Get(context.Background(), "doc-1"); err != nil {
		t.Errorf("upload not archived: %v", err)
	}
}

func TestHandleUpload_GeneratesID(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := doUpload(t, srv.Router(), "a.txt", "A perfectly reasonable sentence for indexing.", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp uploadResponse
	decode(t, rec, &resp)
	if resp.ID == "" {
		t.Error("no id generated")
	}
}

func TestHandleUpload_NoFile(t *testing.T) {
	srv := newTestServer(t, nil)
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	_ = w.WriteField("id", "x")
	_ = w.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestHandleUpload_NoIndexableContent(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := doUpload(t, srv.Router(), "noise.txt", "short\ntiny\n", "doc-noise")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestHandleSearch(t *testing.T) {
	srv := newTestServer(t, nil)
	router := srv.Router()
	if rec := doUpload(t, router, "paris.txt", "Paris is the capital of France.", "A"); rec.Code != http.StatusCreated {
		t.Fatalf("upload: %d", rec.Code)
	}
	if rec := doUpload(t, router, "berlin.txt", "Berlin is the capital of Germany.", "B"); rec.Code != http.StatusCreated {
		t.Fatalf("upload: %d", rec.Code)
	}

	rec := postJSON(t, router, "/api/v1/search", searchRequest{Query: "capital of France", TopK: 1})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp searchResponse
	decode(t, rec, &resp)
	if len(resp.Results) != 1 {
		t.Fatalf("results = %d", len(resp.Results))
	}
	if resp.Results[0].DocID != "A" {
		t.Errorf("top result doc = %s", resp.Results[0].DocID)
	}
	if resp.Results[0].Score != 1-resp.Results[0].Distance {
		t.Errorf("score/distance mismatch: %+v", resp.Results[0])
	}
}

func TestHandleSearch_EmptyStoreAndFilter(t *testing.T) {
	srv := newTestServer(t, nil)
	router := srv.Router()

	rec := postJSON(t, router, "/api/v1/search", searchRequest{Query: "anything"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp searchResponse
	decode(t, rec, &resp)
	if resp.Results == nil || len(resp.Results) != 0 {
		t.Errorf("results = %v", resp.Results)
	}

	rec = postJSON(t, router, "/api/v1/search", searchRequest{Query: ""})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty query status = %d", rec.Code)
	}
}

func TestHandleDocumentsAndChunks(t *testing.T) {
	srv := newTestServer(t, nil)
	router := srv.Router()
	if rec := doUpload(t, router, "paris.txt", "Paris is the capital of France.\nThe Eiffel Tower is in Paris.", "A"); rec.Code != http.StatusCreated {
		t.Fatalf("upload: %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var listResp struct {
		Documents []models.DocumentMetadata `json:"documents"`
	}
	decode(t, rec, &listResp)
	if len(listResp.Documents) != 1 || listResp.Documents[0].DocID != "A" {
		t.Errorf("documents = %+v", listResp.Documents)
	}
	if listResp.Documents[0].ChunkCount != 2 {
		t.Errorf("chunk count = %d", listResp.Documents[0].ChunkCount)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/documents/A/chunks", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var chunksResp struct {
		DocID  string         `json:"doc_id"`
		Chunks []models.Chunk `json:"chunks"`
	}
	decode(t, rec, &chunksResp)
	if chunksResp.DocID != "A" || len(chunksResp.Chunks) != 2 {
		t.Errorf("chunks = %+v", chunksResp)
	}

	// Unknown doc gets an empty list, not a 404.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/documents/nope/chunks", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	decode(t, rec, &chunksResp)
	if len(chunksResp.Chunks) != 0 {
		t.Errorf("chunks = %+v", chunksResp.Chunks)
	}
}

func TestHandleDeleteDocument(t *testing.T) {
	srv := newTestServer(t, nil)
	router := srv.Router()
	if rec := doUpload(t, router, "paris.txt", "Paris is the capital of France.", "A"); rec.Code != http.StatusCreated {
		t.Fatalf("upload: %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/documents/A", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string]bool
	decode(t, rec, &resp)
	if !resp["deleted"] {
		t.Error("deleted = false")
	}
	if _, err := srv.archive.Get(context.Background(), "A"); err == nil {
		t.Error("archive entry not removed")
	}

	// Deleting again reports false without error.
	req = httptest.NewRequest(http.MethodDelete, "/api/v1/documents/A", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	decode(t, rec, &resp)
	if resp["deleted"] {
		t.Error("second delete reported true")
	}
}

func TestHandleAsk(t *testing.T) {
	srv := newTestServer(t, &stubAnswerer{})
	router := srv.Router()
	if rec := doUpload(t, router, "paris.txt", "Paris is the capital of France.", "A"); rec.Code != http.StatusCreated {
		t.Fatalf("upload: %d", rec.Code)
	}

	rec := postJSON(t, router, "/api/v1/ask", askRequest{Question: "What is the capital of France?", TopK: 1})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp models.AskResponse
	decode(t, rec, &resp)
	if resp.Answer != "synthesized answer" {
		t.Errorf("answer = %q", resp.Answer)
	}
	if len(resp.Sources) != 1 || resp.Sources[0].Answer != "stub answer" {
		t.Errorf("sources = %+v", resp.Sources)
	}
}

func TestHandleAsk_NoResults(t *testing.T) {
	srv := newTestServer(t, &stubAnswerer{})
	rec := postJSON(t, srv.Router(), "/api/v1/ask", askRequest{Question: "anything"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp models.AskResponse
	decode(t, rec, &resp)
	if !strings.Contains(resp.Answer, "No relevant content") {
		t.Errorf("answer = %q", resp.Answer)
	}
}

func TestHandleAsk_SynthesisFailureKeepsSources(t *testing.T) {
	srv := newTestServer(t, &stubAnswerer{failSynthesis: true})
	router := srv.Router()
	if rec := doUpload(t, router, "paris.txt", "Paris is the capital of France.", "A"); rec.Code != http.StatusCreated {
		t.Fatalf("upload: %d", rec.Code)
	}

	rec := postJSON(t, router, "/api/v1/ask", askRequest{Question: "capital of France"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp models.AskResponse
	decode(t, rec, &resp)
	if len(resp.Sources) != 1 {
		t.Errorf("sources = %+v", resp.Sources)
	}
}

func TestHandleAsk_AnswerFailure(t *testing.T) {
	srv := newTestServer(t, &stubAnswerer{failAnswer: true})
	router := srv.Router()
	if rec := doUpload(t, router, "paris.txt", "Paris is the capital of France.", "A"); rec.Code != http.StatusCreated {
		t.Fatalf("upload: %d", rec.Code)
	}
	rec := postJSON(t, router, "/api/v1/ask", askRequest{Question: "capital of France"})
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestHandleAsk_NotConfigured(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := postJSON(t, srv.Router(), "/api/v1/ask", askRequest{Question: "anything"})
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestHandleReindex(t *testing.T) {
	srv := newTestServer(t, nil)
	router := srv.Router()
	for _, doc := range []struct{ id, text string }{
		{"A", "Paris is the capital of France."},
		{"B", "Berlin is the capital of Germany."},
	} {
		if rec := doUpload(t, router, doc.id+".txt", doc.text, doc.id); rec.Code != http.StatusCreated {
			t.Fatalf("upload %s: %d", doc.id, rec.Code)
		}
	}

	rec := postJSON(t, router, "/api/v1/reindex", struct{}{})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp map[string]int
	decode(t, rec, &resp)
	if resp["documents"] != 2 || resp["chunks"] != 2 {
		t.Errorf("resp = %v", resp)
	}

	// Rebuilt store still answers searches.
	sr := postJSON(t, router, "/api/v1/search", searchRequest{Query: "capital of France", TopK: 1})
	var sresp searchResponse
	decode(t, sr, &sresp)
	if len(sresp.Results) != 1 || sresp.Results[0].DocID != "A" {
		t.Errorf("search after reindex = %+v", sresp.Results)
	}
}

func TestHandleHealthAndStatus(t *testing.T) {
	srv := newTestServer(t, nil)
	router := srv.Router()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("health status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/status", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string]interface{}
	decode(t, rec, &resp)
	if _, ok := resp["documents"]; !ok {
		t.Error("status missing documents")
	}
	if _, ok := resp["vector_index_size"]; !ok {
		t.Error("status missing vector_index_size")
	}
}

func TestClampTopK(t *testing.T) {
	srv := newTestServer(t, nil)
	if got := srv.clampTopK(0); got != srv.config.Search.DefaultTopK {
		t.Errorf("clampTopK(0) = %d", got)
	}
	if got := srv.clampTopK(3); got != 3 {
		t.Errorf("clampTopK(3) = %d", got)
	}
	if got := srv.clampTopK(10_000); got != srv.config.Search.MaxTopK {
		t.Errorf("clampTopK(10000) = %d", got)
	}
}
