package utils

import (
	"encoding/json"
	"net/http"

	"cloudtickets/internal/models"
)

type ErrorBody struct {
	Error string `json:"error"`
}

func WriteJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

func WriteError(w http.ResponseWriter, status int, code string) {
	WriteJSON(w, status, ErrorBody{Error: code})
}

// WriteServiceError renders err with the code and status of its ServiceError.
func WriteServiceError(w http.ResponseWriter, err error) *models.ServiceError {
	se := models.AsServiceError(err)
	WriteError(w, se.StatusCode, se.Code)
	return se
}
