package web

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/example/reservationd/internal/reservation"
	"github.com/go-chi/chi/v5"
)

type errorBody struct {
	Error  string             `json:"error"`
	Reason reservation.Reason `json:"reason,omitempty"`
	Field  string             `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeErr maps a domain error onto a status code.
func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	var verr *reservation.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: verr.Msg, Field: verr.Field})
	case errors.Is(err, reservation.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, reservation.ErrNotFound):
		writeError(w, http.StatusNotFound, "reservation not found")
	case errors.Is(err, reservation.ErrAdmissionRejected):
		reason, _ := reservation.RejectionReason(err)
		status := http.StatusUnprocessableEntity
		if reason == reservation.ReasonSlotTaken || reason == reservation.ReasonSlotFull {
			status = http.StatusConflict
		}
		writeJSON(w, status, errorBody{Error: err.Error(), Reason: reason})
	case errors.Is(err, reservation.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, reservation.ErrDependencyUnavailable):
		log.Printf("web: %s %s: %v", r.Method, r.URL.Path, err)
		writeError(w, http.StatusServiceUnavailable, "table catalog unavailable")
	default:
		log.Printf("web: %s %s: %v", r.Method, r.URL.Path, err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, &reservation.ValidationError{Field: "id", Msg: "invalid reservation id"}
	}
	return id, nil
}

func queryTime(r *http.Request, key string, required bool) (time.Time, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		if required {
			return time.Time{}, &reservation.ValidationError{Field: key, Msg: key + " required"}
		}
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, &reservation.ValidationError{Field: key, Msg: key + " must be RFC3339"}
	}
	return t, nil
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &reservation.ValidationError{Field: key, Msg: key + " must be an integer"}
	}
	return n, nil
}
