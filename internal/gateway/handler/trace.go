package handler

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"livepage/internal/gateway/repository/sessionlog"
)

// TraceHandler records diagnostics reported by display surfaces next to
// the session lifecycle log and serves that log for debugging.
type TraceHandler struct {
	history sessionlog.Store
}

func NewTraceHandler(history sessionlog.Store) *TraceHandler {
	return &TraceHandler{history: history}
}

func (h *TraceHandler) HandleSurfaceTrace(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var in struct {
		Timestamp string         `json:"timestamp"`
		SessionID string         `json:"session_id"`
		Stage     string         `json:"stage"`
		Level     string         `json:"level"`
		Fields    map[string]any `json:"fields"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&in); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	sessionID := strings.TrimSpace(in.SessionID)
	stage := strings.TrimSpace(in.Stage)
	if sessionID == "" || stage == "" {
		http.Error(w, "session_id and stage are required", http.StatusBadRequest)
		return
	}
	detail := stage
	if lvl := strings.TrimSpace(in.Level); lvl != "" {
		detail = lvl + " " + detail
	}
	if len(in.Fields) > 0 {
		keys := make([]string, 0, len(in.Fields))
		for k := range in.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%v", k, in.Fields[k]))
		}
		detail += " " + strings.Join(parts, " ")
	}
	if ts := strings.TrimSpace(in.Timestamp); ts != "" {
		detail += " surface_timestamp=" + ts
	}
	log.Printf("surface trace %s: %s", sessionID, detail)
	if err := h.history.Append(r.Context(), sessionlog.Entry{
		SessionID: sessionID,
		State:     "surface",
		Detail:    detail,
		At:        time.Now().UTC(),
	}); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"ok": true,
	})
}

func (h *TraceHandler) HandleSessionLog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.history.List(r.Context(), sessionID, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []sessionlog.Entry{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"session_id": sessionID,
		"entries":    entries,
	})
}
