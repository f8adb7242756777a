// Package handler implements the HTTP CRUD surface of §9's re-architecture
// notes: thin, net/http-native handlers over the domain repositories,
// wired onto the shared gorilla/mux router alongside the SSE endpoint.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"
)

func writeJSON(w http.ResponseWriter, logger logrus.FieldLogger, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithError(err).Warn("handler: failed to encode response body")
	}
}

func writeError(w http.ResponseWriter, logger logrus.FieldLogger, status int, err error) {
	writeJSON(w, logger, status, map[string]string{"error": err.Error()})
}

func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
