package app

import (
	"context"
	"errors"
	"fmt"
	"net"

	"livepage/internal/demo"
	"livepage/internal/gateway/config"
	"livepage/internal/gateway/handler"
	"livepage/internal/gateway/handler/rpc"
	"livepage/internal/gateway/server"
	"livepage/internal/session"
)

type App struct {
	server   *server.Server
	sessions *session.Manager
	stores   *gatewayStores
}

// New wires the gateway around entry, the callback that builds each new
// session's page. A nil entry serves the demo page.
func New(entry session.EntryFunc) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return NewWithConfig(cfg, entry)
}

func NewWithConfig(cfg *config.Config, entry session.EntryFunc) (*App, error) {
	if entry == nil {
		entry = demo.Entry(demo.DefaultOptions())
	}

	// Dependencies
	stores, err := initStores(context.Background(), cfg)
	if err != nil {
		return nil, err
	}
	mgr := session.NewManager(entry, session.Config{
		MaxMessageBytes:  cfg.Session.MaxMessageBytes,
		ReconnectTimeout: cfg.Session.ReconnectTimeout,
		MaxParked:        cfg.Session.MaxParked,
	}, session.WithHistory(stores.history), session.WithArchive(stores.snapshots))

	wsHandler := handler.NewWSHandler(mgr)
	adminHandler := rpc.NewAdminHandler(mgr, stores.history, stores.snapshots)
	traceHandler := handler.NewTraceHandler(stores.history)

	// Routing & Server
	router := server.NewRouter(wsHandler, adminHandler, traceHandler, mgr, cfg.AllowedOrigins)
	srv := server.New(cfg.Port, router)

	return &App{
		server:   srv,
		sessions: mgr,
		stores:   stores,
	}, nil
}

func (a *App) Start() error {
	return a.server.Start()
}

func (a *App) Serve(ln net.Listener) error {
	return a.server.Serve(ln)
}

// Shutdown stops accepting connections, then closes every session so their
// final state reaches the history and snapshot stores.
func (a *App) Shutdown(ctx context.Context) error {
	return errors.Join(
		a.server.Shutdown(ctx),
		a.sessions.Shutdown(ctx),
		a.stores.Close(),
	)
}
