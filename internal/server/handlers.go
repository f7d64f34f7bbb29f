package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/cadabra-cache/cadabra/internal/analysis"
	"github.com/cadabra-cache/cadabra/internal/cache"
	"github.com/cadabra-cache/cadabra/internal/store"
)

// queryRequest is the body shared by /analyze, /invalidate, and
// /should-invalidate. Params accepts a JSON array (positional) or object
// (named).
type queryRequest struct {
	SQL    string           `json:"sql"`
	Params *analysis.Params `json:"params,omitempty"`
}

// registerRequest carries a base64 result blob. TTL is accepted for wire
// compatibility and ignored: entries live until invalidated or cleared.
type registerRequest struct {
	SQL    string           `json:"sql"`
	Params *analysis.Params `json:"params,omitempty"`
	Result []byte           `json:"result"`
	TTL    *int             `json:"ttl,omitempty"`
}

type analyzeResponse struct {
	Fingerprint    string                  `json:"fingerprint"`
	Classification analysis.Classification `json:"classification"`
	Tables         []analysis.TableAccess  `json:"tables"`
	NormalizedSQL  string                  `json:"normalized_sql"`
}

type registerResponse struct {
	Success     bool   `json:"success"`
	Fingerprint string `json:"fingerprint"`
}

type getResponse struct {
	Result []byte `json:"result"`
}

type invalidateResponse struct {
	Success     bool                `json:"success"`
	Invalidated *analysis.WriteInfo `json:"invalidated"`
	Count       int                 `json:"count"`
}

type shouldInvalidateResponse struct {
	ShouldInvalidate bool `json:"should_invalidate"`
}

type clearTableResponse struct {
	Success bool   `json:"success"`
	Table   string `json:"table"`
	Count   int    `json:"count"`
}

type healthResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Timestamp     string `json:"timestamp"`
}

type statsResponse struct {
	*store.Metrics
	Requests      int64 `json:"requests"`
	Hits          int64 `json:"hits"`
	Misses        int64 `json:"misses"`
	Invalidations int64 `json:"invalidations"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if !s.decode(w, r, &req) {
		return
	}
	key, err := s.cache.Analyzer().AnalyzeSelect(req.SQL, req.Params)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, analyzeResponse{
		Fingerprint:    key.Fingerprint,
		Classification: key.Classification,
		Tables:         key.Tables,
		NormalizedSQL:  key.NormalizedSQL,
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, fmt.Sprintf("decoding request body: %v", err))
		return
	}
	if req.SQL == "" {
		s.badRequest(w, "sql is required")
		return
	}
	key, err := s.cache.Register(r.Context(), req.SQL, req.Params, req.Result)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, registerResponse{Success: true, Fingerprint: key.Fingerprint})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	fingerprint := mux.Vars(r)["fingerprint"]
	result, ok, err := s.cache.Get(r.Context(), fingerprint)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !ok {
		s.misses.Add(1)
		s.metrics.misses.Inc()
		writeJSON(w, http.StatusNotFound, getResponse{Result: nil})
		return
	}
	s.hits.Add(1)
	s.metrics.hits.Inc()
	writeJSON(w, http.StatusOK, getResponse{Result: result})
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if !s.decode(w, r, &req) {
		return
	}
	info, affected, err := s.cache.Invalidate(r.Context(), req.SQL, req.Params)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.invalidations.Add(int64(len(affected)))
	s.metrics.invalidations.Add(float64(len(affected)))
	writeJSON(w, http.StatusOK, invalidateResponse{Success: true, Invalidated: info, Count: len(affected)})
}

func (s *Server) handleShouldInvalidate(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if !s.decode(w, r, &req) {
		return
	}
	_, affected, err := s.cache.ShouldInvalidate(r.Context(), req.SQL, req.Params)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, shouldInvalidateResponse{ShouldInvalidate: len(affected) > 0})
}

func (s *Server) handleClearTable(w http.ResponseWriter, r *http.Request) {
	table := mux.Vars(r)["name"]
	n, err := s.cache.ClearTable(r.Context(), table)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.invalidations.Add(int64(n))
	s.metrics.invalidations.Add(float64(n))
	writeJSON(w, http.StatusOK, clearTableResponse{Success: true, Table: table, Count: n})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:        "healthy",
		UptimeSeconds: int64(time.Since(s.start).Seconds()),
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	m, err := s.cache.Metrics(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{
		Metrics:       m,
		Requests:      s.requests.Load(),
		Hits:          s.hits.Load(),
		Misses:        s.misses.Load(),
		Invalidations: s.invalidations.Load(),
	})
}

// decode unmarshals the shared query body and enforces a non-empty sql field.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, req *queryRequest) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		s.badRequest(w, fmt.Sprintf("decoding request body: %v", err))
		return false
	}
	if req.SQL == "" {
		s.badRequest(w, "sql is required")
		return false
	}
	return true
}

func (s *Server) badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}

// writeError maps the cache's two failure domains onto status codes: analysis
// failures are the caller's fault, storage failures are ours.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var aerr *analysis.AnalysisError
	if errors.As(err, &aerr) {
		status := http.StatusBadRequest
		if aerr.Kind == analysis.KindUnsupported {
			status = http.StatusUnprocessableEntity
		}
		writeJSON(w, status, errorResponse{Error: aerr.Error(), Kind: string(aerr.Kind)})
		return
	}
	var serr *cache.StorageError
	if errors.As(err, &serr) {
		s.log.Error("storage failure", "op", serr.Op, "error", serr.Err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "storage failure", Kind: "storage_failed"})
		return
	}
	s.log.Error("request failed", "error", err)
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
