// Package envelope writes and reads the platform's uniform JSON response body
// {success, status, message, data}.
package envelope

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// Response is the wire shape of every JSON API response.
type Response struct {
	Success bool   `json:"success"`
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// Write encodes an envelope; success is derived from status.
func Write(w http.ResponseWriter, status int, message string, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response{
		Success: status >= 200 && status < 300,
		Status:  status,
		Message: message,
		Data:    data,
	})
}

// Error writes a failure envelope with null data.
func Error(w http.ResponseWriter, status int, message string) {
	Write(w, status, message, nil)
}

// ErrExtraData is returned when a body holds more than one JSON value.
var ErrExtraData = errors.New("extra data after JSON object")

// Decode reads exactly one JSON object of at most maxBytes, rejecting unknown fields.
func Decode(w http.ResponseWriter, r *http.Request, maxBytes int64, dst any) error {
	if r.Body == nil {
		return io.EOF
	}
	defer func() { _ = r.Body.Close() }()

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return ErrExtraData
	}
	return nil
}
