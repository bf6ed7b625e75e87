// Package respond writes the JSON envelope every endpoint answers with:
// {"success": bool, "message": string, "data": any}.
package respond

import (
	"encoding/json"
	"net/http"

	"printshop/internal/apperr"
)

type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Field   string `json:"field,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

// Success is a 200 with both a message and data.
func Success(w http.ResponseWriter, msg string, data any) {
	JSON(w, http.StatusOK, envelope{Success: true, Message: msg, Data: data})
}

func Created(w http.ResponseWriter, msg string, data any) {
	JSON(w, http.StatusCreated, envelope{Success: true, Message: msg, Data: data})
}

func Message(w http.ResponseWriter, status int, msg string) {
	JSON(w, status, envelope{Success: status < 400, Message: msg})
}

// Error maps err through apperr and never exposes driver messages.
func Error(w http.ResponseWriter, err error) {
	env := envelope{Message: apperr.PublicMessage(err)}
	if e, ok := apperr.As(err); ok {
		env.Field = e.Field
	}
	JSON(w, apperr.Status(err), env)
}
