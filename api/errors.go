package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/warp/seat-engine/seating"
)

// statusByCode maps seating error kinds to HTTP statuses.
var statusByCode = map[string]int{
	"OutsideBookingHorizon":  http.StatusBadRequest,
	"InvalidTimeRange":       http.StatusBadRequest,
	"InvalidDateRange":       http.StatusBadRequest,
	"FloatingWindowClosed":   http.StatusBadRequest,
	"NoDesignatedSeat":       http.StatusBadRequest,
	"NotDesignatedSeat":      http.StatusBadRequest,
	"DuplicateUserBooking":   http.StatusConflict,
	"SeatAlreadyBooked":      http.StatusConflict,
	"AlreadyCancelled":       http.StatusConflict,
	"BookingCompleted":       http.StatusConflict,
	"ConcurrentModification": http.StatusConflict,
	"Forbidden":              http.StatusForbidden,
	"NotFound":               http.StatusNotFound,
	"UserNotFound":           http.StatusNotFound,
	"StoreUnavailable":       http.StatusServiceUnavailable,
}

// StatusFor returns the HTTP status for an engine error.
func StatusFor(err error) int {
	if s, ok := statusByCode[seating.Code(err)]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// errorDetails exposes the structured parts of domain errors.
func errorDetails(err error) any {
	var horizon *seating.HorizonError
	if errors.As(err, &horizon) {
		return map[string]string{
			"date":  horizon.Date.String(),
			"first": horizon.First.String(),
			"last":  horizon.Last.String(),
		}
	}
	var conflict *seating.ConflictError
	if errors.As(err, &conflict) && conflict.ExistingID != "" {
		return map[string]string{"existing_booking_id": string(conflict.ExistingID)}
	}
	return nil
}

// writeEngineError renders an error returned by the allocation engine.
// Internal errors are logged and their text is not exposed.
func (h *Handler) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	code := seating.Code(err)
	if status >= http.StatusInternalServerError {
		h.Logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"code", code,
			"error", err,
		)
		writeErrorCode(w, status, code, http.StatusText(status), nil)
		return
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Code: code, Details: errorDetails(err)})
}

// writeValidationError renders validator failures as field -> tag.
func writeValidationError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = fe.Tag()
		}
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Validation failed", Code: "ValidationFailed", Details: fields})
		return
	}
	writeErrorCode(w, http.StatusBadRequest, "ValidationFailed", "Validation failed", err)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeErrorCode(w http.ResponseWriter, status int, code, message string, err error) {
	resp := ErrorResponse{Error: message, Code: code}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	writeErrorCode(w, status, "BadRequest", message, err)
}
