package api

import (
	"net/http"

	"github.com/stacklok/nearby-sync/internal/api/common"
	"github.com/stacklok/nearby-sync/internal/control"
	"github.com/stacklok/nearby-sync/pkg/versions"
)

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, HealthResponse{Status: "healthy"}, http.StatusOK)
}

// readinessHandler reports ready once the session answers on its sequence
// and local certificate storage has loaded
func readinessHandler(ctrl control.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := ctrl.SyncStatus(r.Context())
		if err != nil {
			common.WriteErrorResponse(w, "session not ready: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		if !st.Certificates.Initialized {
			common.WriteErrorResponse(w, "session not ready: certificates not loaded", http.StatusServiceUnavailable)
			return
		}
		common.WriteJSONResponse(w, ReadinessResponse{Status: "ready"}, http.StatusOK)
	}
}

func versionHandler(w http.ResponseWriter, _ *http.Request) {
	info := versions.GetVersionInfo()
	common.WriteJSONResponse(w, VersionResponse{
		Version:   info.Version,
		Commit:    info.Commit,
		BuildDate: info.BuildDate,
		GoVersion: info.GoVersion,
		Platform:  info.Platform,
	}, http.StatusOK)
}
