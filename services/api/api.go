// Package api exposes the rig's HTTP control surface: printer and run
// status, start/stop operations, run history, and a websocket event
// stream for the bench UI.
package api

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5/pgxpool"

	"printrig/services/orchestrator"
)

// API wires the orchestrator and optional run archive into HTTP handlers.
type API struct {
	orch     *orchestrator.Orchestrator
	pool     *pgxpool.Pool
	logger   *log.Logger
	upgrader websocket.Upgrader
}

// New initialises the API layer. pool may be nil when the rig runs
// without a database; history endpoints then report 503.
func New(orch *orchestrator.Orchestrator, pool *pgxpool.Pool, logger *log.Logger) (*API, error) {
	if orch == nil {
		return nil, errors.New("orchestrator is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}

	return &API{
		orch:   orch,
		pool:   pool,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The rig listens on a bench-local interface only.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}, nil
}

// Routes constructs the chi router containing all API endpoints.
func (a *API) Routes() (http.Handler, error) {
	if a == nil {
		return nil, errors.New("nil api")
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Route("/v1", func(r chi.Router) {
		r.With(middleware.Timeout(30 * time.Second)).Group(func(r chi.Router) {
			r.Get("/status", a.handleStatus)
			r.Get("/printers", a.handlePrinters)
			r.Post("/tests/start", a.handleStartTest)
			r.Post("/tests/stop", a.handleStopTest)
			r.Get("/runs", a.handleListRuns)
			r.Get("/runs/{runID}", a.handleGetRun)
		})
		// No timeout middleware on the stream; it lives as long as
		// the client does.
		r.Get("/events/ws", a.handleEventStream)
	})

	return r, nil
}
