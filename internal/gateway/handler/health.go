package handler

import (
	"encoding/json"
	"net/http"
)

type SessionCounter interface {
	Count() int
}

func Health(sessions SessionCounter) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":   "ok",
			"sessions": sessions.Count(),
		})
	}
}
