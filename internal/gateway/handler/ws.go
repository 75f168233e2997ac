package handler

import (
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"

	"livepage/internal/session"
)

// WSHandler upgrades display surfaces and hands the connection to the
// session manager. The query parameters session and seq resume a parked
// session from the last applied patch.
type WSHandler struct {
	mgr      *session.Manager
	upgrader websocket.Upgrader
}

func NewWSHandler(mgr *session.Manager) *WSHandler {
	return &WSHandler{
		mgr: mgr,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin: func(_ *http.Request) bool {
				return true
			},
		},
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resumeID := strings.TrimSpace(q.Get("session"))
	lastSeq, err := parseSeq(q.Get("seq"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	s, resumed, err := h.mgr.Connect(r.Context(), conn, resumeID, lastSeq)
	if err != nil {
		// Connect only fails before a channel took conn over.
		log.Printf("ws connect failed: %v", err)
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "session unavailable"))
		_ = conn.Close()
		return
	}
	log.Printf("ws: session %s attached from %s (resumed=%t)", s.ID(), r.RemoteAddr, resumed)
}

func parseSeq(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return -1, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("seq must be a non-negative integer")
	}
	return v, nil
}
