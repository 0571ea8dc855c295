package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	kvErr "github.com/sajjad-MoBe/walstore/internal/errors"
	"github.com/sajjad-MoBe/walstore/internal/shared"
)

type keysResponse struct {
	Keys  []string `json:"keys"`
	Count int      `json:"count"`
}

type walResponse struct {
	Path         string `json:"path"`
	LastSequence uint64 `json:"last_sequence"`
}

// handleGet handles GET /api/v1/keys/{key}
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	value, ok := s.store.Get(key)
	if !ok {
		handleError(w, kvErr.New(kvErr.ErrorTypeNotFound, "key "+key+" not found", nil))
		return
	}
	writeJSON(w, http.StatusOK, shared.Response{Status: "OK", Key: key, Value: value})
}

// handlePut handles PUT /api/v1/keys/{key}
func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	var req shared.SetRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handleError(w, kvErr.New(kvErr.ErrorTypeInvalidInput, "invalid request body", err))
		return
	}

	seq, err := s.store.Put(r.Context(), req.TransactionID, key, req.Value)
	if err != nil {
		handleError(w, err)
		return
	}
	s.metrics.UpdateStoreMetrics(s.store.Len())
	writeJSON(w, http.StatusOK, shared.Response{Status: "OK", Key: key, Sequence: seq})
}

// handleDelete handles DELETE /api/v1/keys/{key}; an optional
// transaction_id query parameter is recorded in the log
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	seq, deleted, err := s.store.Delete(r.Context(), r.URL.Query().Get("transaction_id"), key)
	if err != nil {
		handleError(w, err)
		return
	}
	if !deleted {
		handleError(w, kvErr.New(kvErr.ErrorTypeNotFound, "key "+key+" not found", nil))
		return
	}
	s.metrics.UpdateStoreMetrics(s.store.Len())
	writeJSON(w, http.StatusOK, shared.Response{Status: "OK", Key: key, Sequence: seq})
}

// handleList handles GET /api/v1/keys with an optional prefix filter
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")

	keys := make([]string, 0)
	for _, k := range s.store.Keys() {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	writeJSON(w, http.StatusOK, keysResponse{Keys: keys, Count: len(keys)})
}

func (s *Server) handleWAL(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, walResponse{
		Path:         s.log.Path(),
		LastSequence: s.log.LastSequence(),
	})
}
