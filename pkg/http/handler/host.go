package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/yurykabanov/transferd/pkg/domain"
	"github.com/yurykabanov/transferd/pkg/secretbox"
)

// Encryptor is the subset of *secretbox.Box the Host handler needs to
// seal HostAuth before it ever reaches the repository.
type Encryptor interface {
	Encrypt(plaintext string) (string, error)
}

// JobLister is the subset of domain.JobRepository the Host handler needs
// to enforce §3's "deletion forbidden while referenced by an active job"
// invariant.
type JobLister interface {
	FindAll(ctx context.Context) ([]domain.Job, error)
}

// HostHandler exposes CRUD over domain.Host. Auth is sealed with the
// Encryptor before Create/Update ever pass a Host to the repository, and
// is never echoed back in a response — HostAuth's json tags are
// omitempty but the repository's FindByID/FindAll already return a zero
// Auth since it is never read back from the encrypted column here.
type HostHandler struct {
	repo   domain.HostRepository
	jobs   JobLister
	box    Encryptor
	logger logrus.FieldLogger
}

func NewHostHandler(repo domain.HostRepository, jobs JobLister, box *secretbox.Box, logger logrus.FieldLogger) *HostHandler {
	return &HostHandler{repo: repo, jobs: jobs, box: box, logger: logger}
}

// referencedByActiveJob reports whether hostId is the source or a
// destination of any non-terminal Job.
func (h *HostHandler) referencedByActiveJob(ctx context.Context, hostId string) (bool, error) {
	jobs, err := h.jobs.FindAll(ctx)
	if err != nil {
		return false, errors.Wrap(err, "handler: list jobs")
	}
	for _, job := range jobs {
		if job.Status.Terminal() {
			continue
		}
		if job.SourceHostId == hostId {
			return true, nil
		}
		for _, d := range job.Destinations {
			if d.HostId == hostId {
				return true, nil
			}
		}
	}
	return false, nil
}

func (h *HostHandler) sealAuth(host *domain.Host) error {
	raw, err := json.Marshal(host.Auth)
	if err != nil {
		return errors.Wrap(err, "handler: marshal host auth")
	}
	cipher, err := h.box.Encrypt(string(raw))
	if err != nil {
		return errors.Wrap(err, "handler: encrypt host auth")
	}
	host.AuthCipher = cipher
	host.Auth = domain.HostAuth{}
	return nil
}

func (h *HostHandler) Create(w http.ResponseWriter, r *http.Request) {
	var host domain.Host
	if err := decodeJSON(r, &host); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err)
		return
	}
	if err := h.sealAuth(&host); err != nil {
		writeError(w, h.logger, http.StatusInternalServerError, err)
		return
	}
	created, err := h.repo.Create(r.Context(), host)
	if err != nil {
		writeError(w, h.logger, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, h.logger, http.StatusCreated, created)
}

func (h *HostHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var host domain.Host
	if err := decodeJSON(r, &host); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err)
		return
	}
	host.Id = id
	if err := h.sealAuth(&host); err != nil {
		writeError(w, h.logger, http.StatusInternalServerError, err)
		return
	}
	if err := h.repo.Update(r.Context(), host); err != nil {
		writeError(w, h.logger, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, nil)
}

func (h *HostHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	active, err := h.referencedByActiveJob(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, http.StatusInternalServerError, err)
		return
	}
	if active {
		writeError(w, h.logger, http.StatusConflict, errors.Errorf("handler: host %s is referenced by an active job", id))
		return
	}

	if err := h.repo.Delete(r.Context(), id); err != nil {
		writeError(w, h.logger, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, h.logger, http.StatusNoContent, nil)
}

func (h *HostHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	host, err := h.repo.FindByID(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, http.StatusNotFound, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, host)
}

func (h *HostHandler) List(w http.ResponseWriter, r *http.Request) {
	hosts, err := h.repo.FindAll(r.Context())
	if err != nil {
		writeError(w, h.logger, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, hosts)
}

// RegisterRoutes mounts the Host CRUD surface at /hosts.
func (h *HostHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/hosts", h.List).Methods(http.MethodGet)
	router.HandleFunc("/hosts", h.Create).Methods(http.MethodPost)
	router.HandleFunc("/hosts/{id}", h.Get).Methods(http.MethodGet)
	router.HandleFunc("/hosts/{id}", h.Update).Methods(http.MethodPut)
	router.HandleFunc("/hosts/{id}", h.Delete).Methods(http.MethodDelete)
}
