// Package handlers implements the operator REST endpoints.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"evcharge/backend/services/ocpp-server/internal/ocpp"
)

const maxListLimit = 500

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// commandStatus maps a remote command failure to an HTTP status. A CALLERROR from the
// station is a client error; session failures keep their own status.
func commandStatus(err error) int {
	var oerr *ocpp.Error
	if !errors.As(err, &oerr) {
		return http.StatusInternalServerError
	}
	switch oerr.Code {
	case ocpp.ErrorCodeNotConnected:
		return http.StatusNotFound
	case ocpp.ErrorCodeTimeout:
		return http.StatusGatewayTimeout
	case ocpp.ErrorCodeDisconnected:
		return http.StatusBadGateway
	default:
		return http.StatusBadRequest
	}
}

// limitParam reads ?limit=, falling back to 0 (the store default).
func limitParam(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New("limit must be a non-negative integer")
	}
	if n > maxListLimit {
		n = maxListLimit
	}
	return n, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
