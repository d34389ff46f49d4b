package api

import (
	"encoding/json"
	"net/http"
)

// MaxBodyBytes caps request bodies the same way across every handler,
// grounded on the teacher's http.MaxBytesReader(w, r.Body, 1<<20) pattern.
const MaxBodyBytes = 1 << 20

// DecodeJSON reads and decodes a JSON request body, capped at MaxBodyBytes.
// It writes a 400 Problem Detail and returns false on failure so callers can
// just `if !api.DecodeJSON(w, r, &req) { return }`.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		WriteBadRequest(w, r, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// WriteJSON encodes v as the JSON response body with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteNoContent writes a 204 with no body.
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}
