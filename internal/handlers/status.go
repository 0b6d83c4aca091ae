package handlers

import "net/http"

// StatusResponse reports that the server accepts requests.
// swagger:model StatusResponse
type StatusResponse struct {
	// example: Server is up
	Code string `json:"code"`
}

// NewStatusHandler returns the root liveness handler.
// @Summary Liveness
// @Tags status
// @Produce json
// @Success 200 {object} handlers.StatusResponse
// @Router / [get]
func NewStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, StatusResponse{Code: "Server is up"})
	}
}
