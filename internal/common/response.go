package common

import (
	"encoding/json"
	"net/http"
)

type ErrorResponse struct {
	Error   Kind           `json:"error"`
	Message string         `json:"message"`
	Details map[string]any `json:"details"`
}

// RespondWithError writes err as {"error","message","details"} with the
// status HTTPStatusFromError picks for it.
func RespondWithError(w http.ResponseWriter, err error) {
	appErr := AsError(err)
	RespondWithJSON(w, HTTPStatusFromError(appErr), ErrorResponse{
		Error:   appErr.Kind,
		Message: appErr.Message,
		Details: appErr.Details,
	})
}

func RespondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"internal_error","message":"Failed to marshal JSON response","details":null}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
