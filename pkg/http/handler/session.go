package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/yurykabanov/transferd/pkg/domain"
)

// SessionHandler persists opaque per-UI-tab operator config; the
// orchestrator never reads or writes it.
type SessionHandler struct {
	repo   domain.SessionRepository
	logger logrus.FieldLogger
}

func NewSessionHandler(repo domain.SessionRepository, logger logrus.FieldLogger) *SessionHandler {
	return &SessionHandler{repo: repo, logger: logger}
}

func (h *SessionHandler) Put(w http.ResponseWriter, r *http.Request) {
	tabId := mux.Vars(r)["tabId"]

	var state domain.SessionState
	if err := decodeJSON(r, &state); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err)
		return
	}
	state.TabId = tabId

	if err := h.repo.Put(r.Context(), state); err != nil {
		writeError(w, h.logger, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, nil)
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	tabId := mux.Vars(r)["tabId"]
	state, err := h.repo.Get(r.Context(), tabId)
	if err != nil {
		writeError(w, h.logger, http.StatusNotFound, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, state)
}

func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	tabId := mux.Vars(r)["tabId"]
	if err := h.repo.Delete(r.Context(), tabId); err != nil {
		writeError(w, h.logger, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, h.logger, http.StatusNoContent, nil)
}

// RegisterRoutes mounts the Session surface at /sessions/{tabId}.
func (h *SessionHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/sessions/{tabId}", h.Get).Methods(http.MethodGet)
	router.HandleFunc("/sessions/{tabId}", h.Put).Methods(http.MethodPut)
	router.HandleFunc("/sessions/{tabId}", h.Delete).Methods(http.MethodDelete)
}
