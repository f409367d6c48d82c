package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// maxBodyBytes caps decoded request bodies.
const maxBodyBytes = 1 << 16

// Code is a machine-readable error code returned in error bodies.
type Code string

const (
	CodeBadRequest Code = "bad_request"
	CodeValidation Code = "validation_error"
	CodeInternal   Code = "internal_error"
)

// Error is an HTTP-facing error carrying a code and a client-safe description.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError builds an *Error.
func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Validatable is implemented by request bodies that normalise themselves.
type Validatable interface {
	Validate() error
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps err onto a status code and an error body. Internal errors
// never expose their description.
func WriteError(w http.ResponseWriter, err error) {
	var he *Error
	if !errors.As(err, &he) {
		he = NewError(CodeInternal, err.Error())
	}
	body := map[string]string{"error": string(he.Code)}
	status := http.StatusInternalServerError
	switch he.Code {
	case CodeBadRequest, CodeValidation:
		status = http.StatusBadRequest
		body["error_description"] = he.Message
	}
	WriteJSON(w, status, body)
}

// Decode reads a JSON body into a new T and validates it.
func Decode[T any, PT interface {
	*T
	Validatable
}](r *http.Request) (*T, error) {
	var req T
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		return nil, NewError(CodeBadRequest, "invalid JSON body")
	}
	if err := PT(&req).Validate(); err != nil {
		return nil, err
	}
	return &req, nil
}
