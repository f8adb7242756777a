package handler

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/yurykabanov/transferd/pkg/domain"
)

// JobRunner is the subset of *orchestrator.Orchestrator the Job handler
// needs to start and control a submitted Job.
type JobRunner interface {
	Start(ctx context.Context, job *domain.Job) error
	Cancel(ctx context.Context, jobId string) error
	Pause(jobId string) error
	Resume(jobId string) error
	Retry(ctx context.Context, jobId, partId string) error
}

// JobHandler exposes CRUD plus lifecycle actions (cancel/pause/resume)
// over domain.Job, submitting newly-created jobs to the Orchestrator.
type JobHandler struct {
	repo   domain.JobRepository
	runner JobRunner
	logger logrus.FieldLogger
}

func NewJobHandler(repo domain.JobRepository, runner JobRunner, logger logrus.FieldLogger) *JobHandler {
	return &JobHandler{repo: repo, runner: runner, logger: logger}
}

func (h *JobHandler) Create(w http.ResponseWriter, r *http.Request) {
	var job domain.Job
	if err := decodeJSON(r, &job); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err)
		return
	}
	if err := job.Validate(); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	job.Status = domain.JobIdle
	created, err := h.repo.Create(r.Context(), job)
	if err != nil {
		writeError(w, h.logger, http.StatusInternalServerError, err)
		return
	}

	if err := h.runner.Start(r.Context(), &created); err != nil {
		writeError(w, h.logger, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, h.logger, http.StatusCreated, created)
}

func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	job, err := h.repo.FindByID(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, http.StatusNotFound, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, job)
}

func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.repo.FindAll(r.Context())
	if err != nil {
		writeError(w, h.logger, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, jobs)
}

func (h *JobHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.repo.Delete(r.Context(), id); err != nil {
		writeError(w, h.logger, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, h.logger, http.StatusNoContent, nil)
}

func (h *JobHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.runner.Cancel(r.Context(), id); err != nil {
		writeError(w, h.logger, http.StatusConflict, err)
		return
	}
	writeJSON(w, h.logger, http.StatusAccepted, nil)
}

func (h *JobHandler) Pause(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.runner.Pause(id); err != nil {
		writeError(w, h.logger, http.StatusConflict, err)
		return
	}
	writeJSON(w, h.logger, http.StatusAccepted, nil)
}

func (h *JobHandler) Resume(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.runner.Resume(id); err != nil {
		writeError(w, h.logger, http.StatusConflict, err)
		return
	}
	writeJSON(w, h.logger, http.StatusAccepted, nil)
}

// Retry resets one failed Part (and its per-destination progress) to
// pending and re-runs the Packager/Dispatcher path for that item only.
func (h *JobHandler) Retry(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, partId := vars["id"], vars["partId"]
	if err := h.runner.Retry(r.Context(), id, partId); err != nil {
		writeError(w, h.logger, http.StatusConflict, err)
		return
	}
	writeJSON(w, h.logger, http.StatusAccepted, nil)
}

// RegisterRoutes mounts the Job CRUD and lifecycle-action surface at
// /jobs.
func (h *JobHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/jobs", h.List).Methods(http.MethodGet)
	router.HandleFunc("/jobs", h.Create).Methods(http.MethodPost)
	router.HandleFunc("/jobs/{id}", h.Get).Methods(http.MethodGet)
	router.HandleFunc("/jobs/{id}", h.Delete).Methods(http.MethodDelete)
	router.HandleFunc("/jobs/{id}/cancel", h.Cancel).Methods(http.MethodPost)
	router.HandleFunc("/jobs/{id}/pause", h.Pause).Methods(http.MethodPost)
	router.HandleFunc("/jobs/{id}/resume", h.Resume).Methods(http.MethodPost)
	router.HandleFunc("/jobs/{id}/parts/{partId}/retry", h.Retry).Methods(http.MethodPost)
}
