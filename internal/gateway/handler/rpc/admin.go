package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"livepage/internal/gateway/repository/sessionlog"
	snapshotrepo "livepage/internal/gateway/repository/snapshot"
	"livepage/internal/session"
)

const AdminServiceName = "livepage.v1.AdminService"

const (
	ProcedureListSessions   = "/" + AdminServiceName + "/ListSessions"
	ProcedureCloseSession   = "/" + AdminServiceName + "/CloseSession"
	ProcedureSessionHistory = "/" + AdminServiceName + "/SessionHistory"
	ProcedureGetSnapshot    = "/" + AdminServiceName + "/GetSnapshot"
)

// Sessions is the part of the session manager the admin service uses.
type Sessions interface {
	List() []session.Info
	Close(ctx context.Context, id string) error
}

// AdminHandler serves operator procedures over Connect. Messages are
// protobuf well-known types, so no generated stubs are involved.
type AdminHandler struct {
	sessions  Sessions
	history   sessionlog.Store
	snapshots snapshotrepo.Store
}

func NewAdminHandler(sessions Sessions, history sessionlog.Store, snapshots snapshotrepo.Store) *AdminHandler {
	return &AdminHandler{sessions: sessions, history: history, snapshots: snapshots}
}

// Handlers returns the procedure paths and their handlers.
func (h *AdminHandler) Handlers(opts ...connect.HandlerOption) map[string]http.Handler {
	return map[string]http.Handler{
		ProcedureListSessions:   connect.NewUnaryHandler(ProcedureListSessions, h.ListSessions, opts...),
		ProcedureCloseSession:   connect.NewUnaryHandler(ProcedureCloseSession, h.CloseSession, opts...),
		ProcedureSessionHistory: connect.NewUnaryHandler(ProcedureSessionHistory, h.SessionHistory, opts...),
		ProcedureGetSnapshot:    connect.NewUnaryHandler(ProcedureGetSnapshot, h.GetSnapshot, opts...),
	}
}

func (h *AdminHandler) ListSessions(_ context.Context, _ *connect.Request[emptypb.Empty]) (*connect.Response[structpb.Struct], error) {
	infos := h.sessions.List()
	list := make([]any, 0, len(infos))
	for _, info := range infos {
		list = append(list, sessionFields(info))
	}
	out, err := structpb.NewStruct(map[string]any{"sessions": list})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(out), nil
}

func (h *AdminHandler) CloseSession(ctx context.Context, req *connect.Request[wrapperspb.StringValue]) (*connect.Response[emptypb.Empty], error) {
	id := strings.TrimSpace(req.Msg.GetValue())
	if id == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("session id is required"))
	}
	if err := h.sessions.Close(ctx, id); err != nil {
		return nil, toAdminError(err)
	}
	return connect.NewResponse(&emptypb.Empty{}), nil
}

// SessionHistory takes {"session_id": string, "limit": number}; an empty
// session id lists across sessions.
func (h *AdminHandler) SessionHistory(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	fields := req.Msg.GetFields()
	sessionID := strings.TrimSpace(fields["session_id"].GetStringValue())
	limit := int(fields["limit"].GetNumberValue())
	entries, err := h.history.List(ctx, sessionID, limit)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, fmt.Errorf("session history failed: %w", err))
	}
	list := make([]any, 0, len(entries))
	for _, e := range entries {
		list = append(list, entryFields(e))
	}
	out, err := structpb.NewStruct(map[string]any{"session_id": sessionID, "entries": list})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(out), nil
}

// GetSnapshot returns the archived final tree of a terminated session and,
// when the archive can sign one, a download URL.
func (h *AdminHandler) GetSnapshot(ctx context.Context, req *connect.Request[wrapperspb.StringValue]) (*connect.Response[structpb.Struct], error) {
	id := strings.TrimSpace(req.Msg.GetValue())
	if id == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("session id is required"))
	}
	raw, err := h.snapshots.Get(ctx, id)
	if err != nil {
		return nil, toAdminError(err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, connect.NewError(connect.CodeDataLoss, fmt.Errorf("snapshot %s is corrupt: %w", id, err))
	}
	url, err := h.snapshots.GetURL(ctx, id)
	if err != nil {
		url = ""
	}
	out, err := structpb.NewStruct(map[string]any{
		"session_id": id,
		"url":        url,
		"snapshot":   doc,
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(out), nil
}

func toAdminError(err error) error {
	switch {
	case errors.Is(err, session.ErrNotFound), errors.Is(err, snapshotrepo.ErrNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeCanceled, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}
