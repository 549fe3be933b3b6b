package v1

import "github.com/stacklok/nearby-sync/internal/advertising"

// RegisterSurfaceRequest is the body of POST /v1/receive-surfaces
type RegisterSurfaceRequest struct {
	State advertising.SurfaceState `json:"state"`
}

// RegisterSurfaceResponse carries the generated surface id
type RegisterSurfaceResponse struct {
	ID advertising.SurfaceID `json:"id"`
}

// AllowedContacts is the allow-list body of /v1/contacts/allowed
type AllowedContacts struct {
	ContactIDs []string `json:"contactIds"`
}

// DownloadResponse acknowledges a download request
type DownloadResponse struct {
	Status string `json:"status"`
	Full   bool   `json:"full"`
}
