package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mhkashizadeh/sqlitedb/internal/infrastructure/database"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`

	// EngineCode and During are set for database failures only.
	EngineCode *int   `json:"engine_code,omitempty"`
	During     string `json:"during,omitempty"`
}

// Common error codes.
const (
	ErrCodeBadRequest  = "bad_request"
	ErrCodeNotFound    = "not_found"
	ErrCodeInternal    = "internal_error"
	ErrCodeValidation  = "validation_error"
	ErrCodeEngine      = "engine_error"
	ErrCodeUnavailable = "unavailable"
	ErrCodeTooLarge    = "request_too_large"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeValidationError writes a 400 error response for a rejected field.
func writeValidationError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeValidation, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeDatabaseError maps a store failure to a response: *database.Error
// carries the engine code with the status engineStatus picks, a cancelled
// request is a 503, and anything else a 500.
func writeDatabaseError(w http.ResponseWriter, err error) {
	var dbErr *database.Error
	if errors.As(err, &dbErr) {
		code := int(dbErr.Code)
		status := engineStatus(dbErr.Code)
		writeJSON(w, status, Error{
			Status:     status,
			Code:       ErrCodeEngine,
			Message:    dbErr.Error(),
			EngineCode: &code,
			During:     dbErr.During,
		})
		return
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "request cancelled")
		return
	}
	writeInternalError(w, "internal server error")
}

// engineStatus is the HTTP status for an engine code. Contention and
// interrupts are retryable (503); storage, memory and schema lookup
// failures are the server's (500); the rest are faults in the request.
func engineStatus(code database.Code) int {
	switch code {
	case database.CodeBusy, database.CodeLocked, database.CodeInterrupt:
		return http.StatusServiceUnavailable
	case database.CodeInternal, database.CodePerm, database.CodeNoMem,
		database.CodeReadOnly, database.CodeIOErr, database.CodeCorrupt,
		database.CodeFull, database.CodeCantOpen, database.CodeProtocol,
		database.CodeNoLFS, database.CodeNotADB, database.CodeSchemaNames:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}
