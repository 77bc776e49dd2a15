package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"printrig/services/orchestrator"
)

func (a *API) handleStartTest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DeviceID string `json:"device_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	req.DeviceID = strings.TrimSpace(req.DeviceID)
	if req.DeviceID == "" {
		respondError(w, http.StatusBadRequest, errors.New("device_id is required"))
		return
	}

	runID, err := a.orch.Start(req.DeviceID)
	switch {
	case errors.Is(err, orchestrator.ErrUnknownDevice):
		respondError(w, http.StatusNotFound, err)
		return
	case errors.Is(err, orchestrator.ErrAlreadyRunning):
		respondError(w, http.StatusConflict, err)
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"run_id":  runID,
	})
}

func (a *API) handleStopTest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RunID uuid.UUID `json:"run_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if req.RunID == uuid.Nil {
		respondError(w, http.StatusBadRequest, errors.New("run_id is required"))
		return
	}

	if err := a.orch.Stop(req.RunID); err != nil {
		if errors.Is(err, orchestrator.ErrUnknownRun) {
			respondError(w, http.StatusNotFound, err)
			return
		}
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}
