package api

import (
	"net/http"

	"printrig/services/orchestrator"
)

type printerView struct {
	orchestrator.Device
	Run *orchestrator.RunSummary `json:"run,omitempty"`
}

func (a *API) handleStatus(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, a.orch.Status())
}

func (a *API) handlePrinters(w http.ResponseWriter, _ *http.Request) {
	status := a.orch.Status()

	activeByDevice := make(map[string]orchestrator.RunSummary)
	for _, run := range status.Runs {
		if !run.State.Terminal() {
			activeByDevice[run.DeviceID] = run
		}
	}

	printers := make([]printerView, 0, len(status.Printers))
	for _, dev := range status.Printers {
		view := printerView{Device: dev}
		if run, ok := activeByDevice[dev.ID]; ok {
			run := run
			view.Run = &run
		}
		printers = append(printers, view)
	}

	respondJSON(w, http.StatusOK, map[string]any{"printers": printers})
}
