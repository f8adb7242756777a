package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/yurykabanov/transferd/pkg/domain"
)

// StoreConfigHandler exposes CRUD over domain.ArchiveStoreConfig.
type StoreConfigHandler struct {
	repo   domain.ArchiveStoreConfigRepository
	logger logrus.FieldLogger
}

func NewStoreConfigHandler(repo domain.ArchiveStoreConfigRepository, logger logrus.FieldLogger) *StoreConfigHandler {
	return &StoreConfigHandler{repo: repo, logger: logger}
}

func (h *StoreConfigHandler) Create(w http.ResponseWriter, r *http.Request) {
	var cfg domain.ArchiveStoreConfig
	if err := decodeJSON(r, &cfg); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err)
		return
	}
	created, err := h.repo.Create(r.Context(), cfg)
	if err != nil {
		writeError(w, h.logger, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, h.logger, http.StatusCreated, created)
}

func (h *StoreConfigHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var cfg domain.ArchiveStoreConfig
	if err := decodeJSON(r, &cfg); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err)
		return
	}
	cfg.Id = id
	if err := h.repo.Update(r.Context(), cfg); err != nil {
		writeError(w, h.logger, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, nil)
}

func (h *StoreConfigHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.repo.Delete(r.Context(), id); err != nil {
		writeError(w, h.logger, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, h.logger, http.StatusNoContent, nil)
}

func (h *StoreConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	cfg, err := h.repo.FindByID(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, http.StatusNotFound, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, cfg)
}

func (h *StoreConfigHandler) List(w http.ResponseWriter, r *http.Request) {
	cfgs, err := h.repo.FindAll(r.Context())
	if err != nil {
		writeError(w, h.logger, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, cfgs)
}

// RegisterRoutes mounts the ArchiveStoreConfig CRUD surface at
// /store-configs.
func (h *StoreConfigHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/store-configs", h.List).Methods(http.MethodGet)
	router.HandleFunc("/store-configs", h.Create).Methods(http.MethodPost)
	router.HandleFunc("/store-configs/{id}", h.Get).Methods(http.MethodGet)
	router.HandleFunc("/store-configs/{id}", h.Update).Methods(http.MethodPut)
	router.HandleFunc("/store-configs/{id}", h.Delete).Methods(http.MethodDelete)
}
