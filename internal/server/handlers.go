package server

import (
	"encoding/json"
	"net/http"

	"addintestserver/internal/results"
	"addintestserver/pkg/logger"
)

func (s *TestServer) handlePing(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(s.platformName))
}

// handleResults accepts a run's output from the data query parameter. Only
// the first valid post resolves the future; later posts are acknowledged and
// ignored so the awaited value never changes.
func (s *TestServer) handleResults(w http.ResponseWriter, r *http.Request) {
	data := r.URL.Query().Get("data")
	if data == "" {
		http.Error(w, "missing data query parameter", http.StatusBadRequest)
		return
	}

	var payload results.Payload
	if err := json.Unmarshal([]byte(data), &payload); err != nil || payload == nil {
		logger.Warn("[Server] rejected malformed results", "request_id", requestID(r.Context()), "error", err)
		http.Error(w, "data must be a JSON object", http.StatusBadRequest)
		return
	}

	if s.storeResults(payload) {
		logger.Info("[Server] Test results received", "request_id", requestID(r.Context()), "keys", len(payload))
	} else {
		logger.Warn("[Server] Ignoring repeated results post", "request_id", requestID(r.Context()))
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("200"))
}

// storeResults counts the post and resolves the future with p if it is
// still open. It reports whether p became the awaited value.
func (s *TestServer) storeResults(p results.Payload) bool {
	s.resultsMu.Lock()
	defer s.resultsMu.Unlock()

	s.posts++
	return s.future.Resolve(p)
}
