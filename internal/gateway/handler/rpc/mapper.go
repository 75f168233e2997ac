package rpc

import (
	"time"

	"livepage/internal/gateway/repository/sessionlog"
	"livepage/internal/session"
)

func sessionFields(info session.Info) map[string]any {
	return map[string]any{
		"id":         info.ID,
		"state":      info.State.String(),
		"created_at": info.CreatedAt.UTC().Format(time.RFC3339Nano),
		"nodes":      info.Nodes,
		"seq":        info.Seq,
		"flushes":    info.Flushes,
		"bytes_sent": info.BytesSent,
	}
}

func entryFields(e sessionlog.Entry) map[string]any {
	out := map[string]any{
		"session_id": e.SessionID,
		"state":      e.State,
		"nodes":      e.Nodes,
		"flushes":    e.Flushes,
		"bytes_sent": e.BytesSent,
		"at":         e.At.UTC().Format(time.RFC3339Nano),
	}
	if e.From != "" {
		out["from"] = e.From
	}
	if e.Detail != "" {
		out["detail"] = e.Detail
	}
	return out
}
