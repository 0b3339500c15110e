package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/openmuni/cividex/internal/query"
	"github.com/openmuni/cividex/internal/search"
	"github.com/openmuni/cividex/internal/store"
	"github.com/openmuni/cividex/pkg/version"
)

// SearchResponse is the /api/search payload.
type SearchResponse struct {
	Query    string          `json:"query"`
	Terms    []string        `json:"terms"`
	Variant  string          `json:"variant,omitempty"`
	Fallback bool            `json:"fallback"`
	Count    int             `json:"count"`
	Results  []*SearchResult `json:"results"`
}

// SearchResult is one hit enriched with record metadata.
type SearchResult struct {
	ID         string     `json:"id"`
	Kind       store.Kind `json:"kind"`
	Number     string     `json:"number,omitempty"`
	Title      string     `json:"title"`
	Date       *time.Time `json:"date,omitempty"`
	FiscalYear int        `json:"fiscal_year,omitempty"`
	Path       string     `json:"path"`
	Score      float64    `json:"score"`
	Snippet    string     `json:"snippet,omitempty"`
}

// StatsResponse is the /api/stats payload.
type StatsResponse struct {
	Backend       string             `json:"backend"`
	DocumentCount int                `json:"document_count"`
	RecordCount   int                `json:"record_count"`
	Kinds         map[store.Kind]int `json:"kinds"`
	CorpusRoot    string             `json:"corpus_root,omitempty"`
	LastIngest    string             `json:"last_ingest,omitempty"`
	Version       string             `json:"version"`
}

// ListResponse is the /api/records payload.
type ListResponse struct {
	Records []*store.Record `json:"records"`
	Cursor  string          `json:"cursor,omitempty"`
}


func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "missing_query", "query parameter q is required")
		return
	}

	kind := store.Kind(strings.ToLower(r.URL.Query().Get("kind")))
	if kind != "" && !kind.Valid() {
		writeError(w, http.StatusBadRequest, "invalid_kind",
			fmt.Sprintf("unknown record kind %q (valid: ordinance, minutes, budget, notice)", kind))
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}

	key := cacheKey(q, string(kind), limit)
	if resp, ok := s.cache.Get(key); ok {
		w.Header().Set("X-Cache", "hit")
		writeJSON(w, http.StatusOK, resp)
		return
	}

	res, err := s.searcher.Search(r.Context(), q, limit)
	if err != nil {
		if errors.Is(err, query.ErrUnsafeTerm) {
			writeError(w, http.StatusBadRequest, "unsafe_term", err.Error())
			return
		}
		slog.Error("search_failed", "query", q, "error", err)
		writeError(w, http.StatusInternalServerError, "search_failed", "search failed")
		return
	}

	resp, err := s.enrich(r, q, res, kind)
	if err != nil {
		slog.Error("search_enrich_failed", "query", q, "error", err)
		writeError(w, http.StatusInternalServerError, "search_failed", "search failed")
		return
	}

	s.cache.Add(key, resp)
	w.Header().Set("X-Cache", "miss")
	writeJSON(w, http.StatusOK, resp)
}

// enrich joins hits with their stored records, dropping hits whose
// record is gone and, when a kind filter is set, hits of other kinds.
func (s *Server) enrich(r *http.Request, q string, res *search.Result, kind store.Kind) (*SearchResponse, error) {
	ids := make([]string, len(res.Hits))
	for i, h := range res.Hits {
		ids[i] = h.DocID
	}

	recs, err := s.records.GetRecords(r.Context(), ids)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	byID := make(map[string]*store.Record, len(recs))
	for _, rec := range recs {
		byID[rec.ID] = rec
	}

	results := make([]*SearchResult, 0, len(res.Hits))
	for _, h := range res.Hits {
		rec, ok := byID[h.DocID]
		if !ok {
			// Index and store can briefly disagree mid-ingest.
			continue
		}
		if kind != "" && rec.Kind != kind {
			continue
		}

		sr := &SearchResult{
			ID:         rec.ID,
			Kind:       rec.Kind,
			Number:     rec.Number,
			Title:      rec.Title,
			FiscalYear: rec.FiscalYear,
			Path:       rec.Path,
			Score:      h.Score,
			Snippet:    h.Snippet,
		}
		if !rec.Date.IsZero() {
			d := rec.Date
			sr.Date = &d
		}
		results = append(results, sr)
	}

	terms := res.Terms
	if terms == nil {
		terms = []string{}
	}
	return &SearchResponse{
		Query:    q,
		Terms:    terms,
		Variant:  string(res.Variant),
		Fallback: res.Fallback,
		Count:    len(results),
		Results:  results,
	}, nil
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, err := s.records.GetRecord(r.Context(), id)
	if err != nil {
		slog.Error("record_lookup_failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "lookup_failed", "record lookup failed")
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "not_found", fmt.Sprintf("no record with id %q", id))
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	kind := store.Kind(strings.ToLower(r.URL.Query().Get("kind")))
	if kind != "" && !kind.Valid() {
		writeError(w, http.StatusBadRequest, "invalid_kind",
			fmt.Sprintf("unknown record kind %q", kind))
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}

	records, cursor, err := s.records.ListRecords(r.Context(), kind, r.URL.Query().Get("cursor"), limit)
	if err != nil {
		slog.Error("record_list_failed", "error", err)
		writeError(w, http.StatusInternalServerError, "list_failed", "record listing failed")
		return
	}

	writeJSON(w, http.StatusOK, &ListResponse{Records: records, Cursor: cursor})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	engineStats, err := s.engine.Stats(ctx)
	if err != nil {
		slog.Error("stats_failed", "error", err)
		writeError(w, http.StatusInternalServerError, "stats_failed", "stats unavailable")
		return
	}

	recordCount, err := s.records.Count(ctx)
	if err != nil {
		slog.Error("stats_failed", "error", err)
		writeError(w, http.StatusInternalServerError, "stats_failed", "stats unavailable")
		return
	}

	kinds, err := s.records.CountByKind(ctx)
	if err != nil {
		slog.Error("stats_failed", "error", err)
		writeError(w, http.StatusInternalServerError, "stats_failed", "stats unavailable")
		return
	}

	// State is informational; a missing key is not an error.
	corpusRoot, _ := s.records.GetState(ctx, store.StateKeyCorpusRoot)
	lastIngest, _ := s.records.GetState(ctx, store.StateKeyLastIngest)

	writeJSON(w, http.StatusOK, &StatsResponse{
		Backend:       engineStats.Backend,
		DocumentCount: engineStats.DocumentCount,
		RecordCount:   recordCount,
		Kinds:         kinds,
		CorpusRoot:    corpusRoot,
		LastIngest:    lastIngest,
		Version:       version.Version,
	})
}

// handleReindex starts a background reindex and answers immediately.
// Clients poll GET /admin/reindex for progress.
func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		writeError(w, http.StatusServiceUnavailable, "reindex_unavailable",
			"this server was started without ingest support")
		return
	}

	force := r.URL.Query().Get("force") == "true" || r.URL.Query().Get("force") == "1"

	if !s.jobs.Trigger(force) {
		writeError(w, http.StatusConflict, "reindex_running", "a reindex is already in progress")
		return
	}

	writeJSON(w, http.StatusAccepted, s.jobs.Status())
}

func (s *Server) handleReindexStatus(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		writeError(w, http.StatusServiceUnavailable, "reindex_unavailable",
			"this server was started without ingest support")
		return
	}

	writeJSON(w, http.StatusOK, s.jobs.Status())
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()

	rec, err := s.records.GetRecord(ctx, id)
	if err != nil {
		slog.Error("record_lookup_failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "lookup_failed", "record lookup failed")
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "not_found", fmt.Sprintf("no record with id %q", id))
		return
	}

	if err := s.engine.Delete(ctx, []string{id}); err != nil {
		slog.Error("record_delete_failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "delete_failed", "record deletion failed")
		return
	}
	if err := s.records.DeleteRecords(ctx, []string{id}); err != nil {
		slog.Error("record_delete_failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "delete_failed", "record deletion failed")
		return
	}

	s.cache.Purge()
	slog.Info("record_deleted", "id", id, "path", rec.Path)

	w.WriteHeader(http.StatusNoContent)
}
