// Package v1 provides the v1 handlers of the local control API.
package v1

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/stacklok/nearby-sync/internal/advertising"
	"github.com/stacklok/nearby-sync/internal/api/common"
	"github.com/stacklok/nearby-sync/internal/control"
)

// Routes holds the handlers bound to one controller
type Routes struct {
	ctrl control.Controller
}

// Router creates the v1 router for ctrl
func Router(ctrl control.Controller) http.Handler {
	routes := &Routes{ctrl: ctrl}

	r := chi.NewRouter()

	r.Get("/advertising", routes.getAdvertising)
	r.Put("/advertising/conditions", routes.updateConditions)

	r.Post("/receive-surfaces", routes.registerSurface)
	r.Delete("/receive-surfaces/{id}", routes.unregisterSurface)

	r.Get("/contacts/allowed", routes.getAllowedContacts)
	r.Put("/contacts/allowed", routes.setAllowedContacts)
	r.Post("/contacts/download", routes.downloadContacts)

	r.Get("/sync", routes.getSyncStatus)

	return r
}

func (rr *Routes) getAdvertising(w http.ResponseWriter, r *http.Request) {
	st, err := rr.ctrl.Advertising(r.Context())
	if err != nil {
		writeControlError(w, "get advertising status", err)
		return
	}
	common.WriteJSONResponse(w, st, http.StatusOK)
}

func (rr *Routes) updateConditions(w http.ResponseWriter, r *http.Request) {
	var update control.ConditionsUpdate
	if err := common.DecodeJSONBody(r, &update); err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	st, err := rr.ctrl.UpdateConditions(r.Context(), update)
	if err != nil {
		writeControlError(w, "update conditions", err)
		return
	}
	common.WriteJSONResponse(w, st, http.StatusOK)
}

func (rr *Routes) registerSurface(w http.ResponseWriter, r *http.Request) {
	var req RegisterSurfaceRequest
	if err := common.DecodeJSONBody(r, &req); err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	id, err := rr.ctrl.RegisterReceiveSurface(r.Context(), req.State)
	if err != nil {
		writeControlError(w, "register receive surface", err)
		return
	}
	common.WriteJSONResponse(w, RegisterSurfaceResponse{ID: id}, http.StatusCreated)
}

func (rr *Routes) unregisterSurface(w http.ResponseWriter, r *http.Request) {
	id, err := common.URLParam(r, "id")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := rr.ctrl.UnregisterReceiveSurface(r.Context(), advertising.SurfaceID(id)); err != nil {
		writeControlError(w, "unregister receive surface", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rr *Routes) getAllowedContacts(w http.ResponseWriter, r *http.Request) {
	ids, err := rr.ctrl.AllowedContacts(r.Context())
	if err != nil {
		writeControlError(w, "get allowed contacts", err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	common.WriteJSONResponse(w, AllowedContacts{ContactIDs: ids}, http.StatusOK)
}

func (rr *Routes) setAllowedContacts(w http.ResponseWriter, r *http.Request) {
	var req AllowedContacts
	if err := common.DecodeJSONBody(r, &req); err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	for _, id := range req.ContactIDs {
		if strings.TrimSpace(id) == "" {
			common.WriteErrorResponse(w, "contact ids cannot be empty", http.StatusBadRequest)
			return
		}
	}

	if err := rr.ctrl.SetAllowedContacts(r.Context(), req.ContactIDs); err != nil {
		writeControlError(w, "set allowed contacts", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rr *Routes) downloadContacts(w http.ResponseWriter, r *http.Request) {
	full := false
	if raw := r.URL.Query().Get("full"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			common.WriteErrorResponse(w, "full must be a boolean", http.StatusBadRequest)
			return
		}
		full = parsed
	}

	if err := rr.ctrl.DownloadContacts(r.Context(), full); err != nil {
		writeControlError(w, "request contact download", err)
		return
	}
	common.WriteJSONResponse(w, DownloadResponse{Status: "accepted", Full: full}, http.StatusAccepted)
}

func (rr *Routes) getSyncStatus(w http.ResponseWriter, r *http.Request) {
	st, err := rr.ctrl.SyncStatus(r.Context())
	if err != nil {
		writeControlError(w, "get sync status", err)
		return
	}
	common.WriteJSONResponse(w, st, http.StatusOK)
}

// writeControlError maps controller errors onto status codes
func writeControlError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, control.ErrInvalidRequest):
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, advertising.ErrUnknownSurface):
		common.WriteErrorResponse(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, advertising.ErrAlreadyRegistered):
		common.WriteErrorResponse(w, err.Error(), http.StatusConflict)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		common.WriteErrorResponse(w, "session unavailable", http.StatusServiceUnavailable)
	default:
		slog.Error("Control operation failed", "operation", op, "error", err)
		common.WriteErrorResponse(w, "failed to "+op, http.StatusInternalServerError)
	}
}
