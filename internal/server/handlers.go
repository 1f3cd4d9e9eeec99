package server

import (
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/archive"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
)

// maxUploadBytes caps document uploads at 64 MiB.
const maxUploadBytes = 64 << 20

type uploadResponse struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Chunks int    `json:"chunks"`
	Pages  int    `json:"pages"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid multipart request")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()
	content, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	docID := r.FormValue("id")
	if docID == "" {
		docID = uuid.New().String()
	}
	docName := header.Filename
	s.logger.Debug("upload request", zap.String("id", docID), zap.String("name", docName), zap.Int("bytes", len(content)))

	text, pages, err := s.extractor.ExtractBytes(content, strings.ToLower(filepath.Ext(docName)))
	if err != nil {
		s.logger.Error("extraction failed", zap.String("name", docName), zap.Error(err))
		s.respondError(w, http.StatusUnprocessableEntity, "could not extract text from the uploaded document")
		return
	}
	if strings.TrimSpace(text) == "" {
		s.respondError(w, http.StatusUnprocessableEntity, "no text extracted from the uploaded document")
		return
	}

	if s.archive != nil {
		doc := &archive.Document{ID: docID, Name: docName, Text: text, PageCount: pages}
		if err := s.archive.Put(r.Context(), doc); err != nil {
			// Archive failures do not fail uploads; reindex just loses this doc.
			s.logger.Warn("archive write failed", zap.String("id", docID), zap.Error(err))
		}
	}

	ok, err := s.store.IngestDocument(r.Context(), docID, docName, text, pages)
	if err != nil {
		s.logger.Error("ingest failed", zap.String("id", docID), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		s.respondError(w, http.StatusUnprocessableEntity, "no valid content found in the document to process")
		return
	}
	chunks := s.store.DocumentChunks(docID)
	s.respondJSON(w, http.StatusCreated, uploadResponse{
		ID:     docID,
		Name:   docName,
		Chunks: len(chunks),
		Pages:  pages,
	})
}

type askRequest struct {
	Question string   `json:"question"`
	TopK     int      `json:"top_k,omitempty"`
	DocIDs   []string `json:"doc_ids,omitempty"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if s.answerer == nil {
		s.respondError(w, http.StatusServiceUnavailable, "answering is not configured")
		return
	}
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		s.respondError(w, http.StatusBadRequest, "question is required")
		return
	}
	topK := s.clampTopK(req.TopK)
	s.logger.Debug("ask request", zap.String("question", utils.Truncate(req.Question, 120)), zap.Int("top_k", topK))

	results, err := s.store.Search(r.Context(), req.Question, topK, docFilter(req.DocIDs))
	if err != nil {
		s.logger.Error("search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(results) == 0 {
		s.respondJSON(w, http.StatusOK, models.AskResponse{
			Answer:  "No relevant content found.",
			Themes:  []models.Theme{},
			Sources: []models.DocumentAnswer{},
		})
		return
	}

	answers := make([]models.DocumentAnswer, 0, len(results))
	for _, res := range results {
		text, err := s.answerer.Answer(r.Context(), req.Question, []models.SearchResult{res})
		if err != nil {
			s.logger.Error("answer failed", zap.String("doc_id", res.DocID), zap.Error(err))
			s.respondError(w, http.StatusBadGateway, "answer generation failed")
			return
		}
		answers = append(answers, models.DocumentAnswer{
			DocID:   res.DocID,
			DocName: res.DocName,
			Page:    res.Page,
			Passage: res.Text,
			Answer:  text,
		})
	}

	synthesis, err := s.answerer.Synthesize(r.Context(), req.Question, answers)
	if err != nil {
		// Per-document answers are still useful when only synthesis fails.
		s.logger.Warn("synthesis failed", zap.Error(err))
		s.respondJSON(w, http.StatusOK, models.AskResponse{
			Answer:  "Theme synthesis failed.",
			Themes:  []models.Theme{},
			Sources: answers,
		})
		return
	}
	s.respondJSON(w, http.StatusOK, models.AskResponse{
		Answer:  synthesis.Answer,
		Themes:  synthesis.Themes,
		Sources: synthesis.Sources,
	})
}

type searchRequest struct {
	Query  string   `json:"query"`
	TopK   int      `json:"top_k,omitempty"`
	DocIDs []string `json:"doc_ids,omitempty"`
}

type searchResponse struct {
	Results []models.SearchResult `json:"results"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.respondError(w, http.StatusBadRequest, "query is required")
		return
	}
	results, err := s.store.Search(r.Context(), req.Query, s.clampTopK(req.TopK), docFilter(req.DocIDs))
	if err != nil {
		s.logger.Error("search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if results == nil {
		results = []models.SearchResult{}
	}
	s.respondJSON(w, http.StatusOK, searchResponse{Results: results})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"documents": s.store.Documents(),
	})
}

func (s *Server) handleDocumentChunks(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	chunks := s.store.DocumentChunks(id)
	if chunks == nil {
		chunks = []models.Chunk{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"doc_id": id,
		"chunks": chunks,
	})
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete request", zap.String("id", id))
	deleted, err := s.store.DeleteDocument(id)
	if err != nil {
		s.logger.Error("deletion failed", zap.String("id", id), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if deleted && s.archive != nil {
		if err := s.archive.Delete(r.Context(), id); err != nil {
			s.logger.Warn("archive delete failed", zap.String("id", id), zap.Error(err))
		}
	}
	s.respondJSON(w, http.StatusOK, map[string]bool{"deleted": deleted})
}

func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		s.respondError(w, http.StatusNotImplemented, "archive not configured")
		return
	}
	docs, err := s.archive.List(r.Context())
	if err != nil {
		s.logger.Error("reindex: archive list failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.store.Reset()
	indexed := 0
	for _, doc := range docs {
		ok, err := s.store.IngestDocument(r.Context(), doc.ID, doc.Name, doc.Text, doc.PageCount)
		if err != nil {
			s.logger.Error("reindex: ingest failed", zap.String("id", doc.ID), zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if ok {
			indexed++
		}
	}
	s.logger.Info("reindex complete", zap.Int("documents", indexed), zap.Int("chunks", s.store.ChunkCount()))
	s.respondJSON(w, http.StatusOK, map[string]int{
		"documents": indexed,
		"chunks":    s.store.ChunkCount(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"documents":         s.store.DocumentCount(),
		"chunks":            s.store.ChunkCount(),
		"vector_index_size": s.store.Size(),
		"config": map[string]interface{}{
			"embedding_model":      s.config.Embedding.Model,
			"embedding_dimensions": s.config.Embedding.Dimensions,
			"min_chunk_length":     s.config.Search.MinChunkLength,
			"max_chunk_length":     s.config.Search.MaxChunkLength,
			"data_dir":             s.config.Storage.DataDir,
			"archive_path":         s.config.Storage.ArchivePath,
		},
	}
	if s.archive != nil {
		if n, err := s.archive.Count(r.Context()); err == nil {
			resp["archived_documents"] = n
		}
	}
	if bytes, err := utils.DiskUsageBytes(s.config.Storage.DataDir, s.config.Storage.ArchivePath); err == nil {
		resp["disk_usage_bytes"] = bytes
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) clampTopK(topK int) int {
	if topK <= 0 {
		return s.config.Search.DefaultTopK
	}
	if topK > s.config.Search.MaxTopK {
		return s.config.Search.MaxTopK
	}
	return topK
}

func docFilter(ids []string) map[string]bool {
	if len(ids) == 0 {
		return nil
	}
	filter := make(map[string]bool, len(ids))
	for _, id := range ids {
		filter[id] = true
	}
	return filter
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
