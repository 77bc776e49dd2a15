package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"printrig/pkg/db"
)

type archivedRun struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	DeviceID   string     `db:"device_id" json:"device_id"`
	DeviceName string     `db:"device_name" json:"device_name"`
	Model      string     `db:"model" json:"model"`
	Status     string     `db:"status" json:"status"`
	Cycles     int        `db:"cycles" json:"cycles"`
	Error      string     `db:"error" json:"error,omitempty"`
	StartedAt  time.Time  `db:"started_at" json:"started_at"`
	FinishedAt *time.Time `db:"finished_at" json:"finished_at,omitempty"`
}

type archivedEvent struct {
	Kind       string          `db:"kind" json:"kind"`
	Cycle      int             `db:"cycle" json:"cycle"`
	ImageIndex int             `db:"image_index" json:"image_index"`
	Payload    json.RawMessage `db:"payload" json:"payload,omitempty"`
	EmittedAt  time.Time       `db:"emitted_at" json:"emitted_at"`
}

func (a *API) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if a.pool == nil {
		respondError(w, http.StatusServiceUnavailable, errors.New("run archive is not configured"))
		return
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	query := `SELECT id, device_id, device_name, model, status, cycles, error, started_at, finished_at
		FROM runs ORDER BY started_at DESC LIMIT 100`
	args := []any{}
	if deviceID := r.URL.Query().Get("device_id"); deviceID != "" {
		query = `SELECT id, device_id, device_name, model, status, cycles, error, started_at, finished_at
			FROM runs WHERE device_id = $1 ORDER BY started_at DESC LIMIT 100`
		args = append(args, deviceID)
	}

	runs := []archivedRun{}
	if err := db.Select(ctx, a.pool, &runs, query, args...); err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (a *API) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if a.pool == nil {
		respondError(w, http.StatusServiceUnavailable, errors.New("run archive is not configured"))
		return
	}

	runID, err := uuid.Parse(chi.URLParam(r, "runID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, errors.New("invalid run id"))
		return
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	var run archivedRun
	err = db.Get(ctx, a.pool, &run,
		`SELECT id, device_id, device_name, model, status, cycles, error, started_at, finished_at
		FROM runs WHERE id = $1`, runID)
	if err != nil {
		if pgxscan.NotFound(err) {
			respondError(w, http.StatusNotFound, errors.New("run not found"))
			return
		}
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	events := []archivedEvent{}
	err = db.Select(ctx, a.pool, &events,
		`SELECT kind, cycle, image_index, payload, emitted_at
		FROM run_events WHERE run_id = $1 ORDER BY id`, runID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"run": run, "events": events})
}
