// Package response writes JSON bodies shared by handlers and middleware.
package response

import (
	"encoding/json"
	"net/http"

	"github.com/danilovkiri/dk-go-balance-tracker/internal/models/modeldto"
)

// JSON writes v with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(body)
	return err
}

// Error writes {"error": msg} and the offending fields, if any.
func Error(w http.ResponseWriter, status int, msg string, fields map[string]string) {
	_ = JSON(w, status, modeldto.ErrorResponse{Error: msg, Fields: fields})
}
