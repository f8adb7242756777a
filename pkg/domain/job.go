package domain

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// JobStatus is the Job's lifecycle state. Terminal states are
// JobCompleted, JobFailed and JobCancelled; every other state may still
// transition.
type JobStatus string

const (
	JobIdle       JobStatus = "idle"
	JobRunning    JobStatus = "running"
	JobPaused     JobStatus = "paused"
	JobCancelling JobStatus = "cancelling"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobCancelled  JobStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	default:
		return false
	}
}

// Destination is one of a Job's immutable destination targets.
type Destination struct {
	HostId       string `json:"hostId"`
	FolderPath   string `json:"folderPath"`
	StoreConfigId string `json:"storeConfigId"`
}

// Job is one execution of the transfer pipeline: a source folder on a
// source host, packaged into one or more archive Parts, uploaded to an
// intermediate store, and fanned out to every Destination.
type Job struct {
	Id   string `json:"id" db:"id"`
	Name string `json:"name" db:"name"`

	// Immutable inputs.
	SourceHostId                 string        `json:"sourceHostId" db:"source_host_id"`
	SourceFolderPath             string        `json:"sourceFolderPath" db:"source_folder_path"`
	SourceStoreConfigId          string        `json:"sourceStoreConfigId" db:"source_store_config_id"`
	Destinations                 []Destination `json:"destinations" db:"-"`
	StoreFolder                  string        `json:"storeFolder" db:"store_folder"`
	PartSizeCeilingMiB           int64         `json:"partSizeCeilingMiB" db:"part_size_ceiling_mib"`
	DeleteLocalAfterUpload       bool          `json:"deleteLocalAfterUpload" db:"delete_local_after_upload"`
	DeleteFromStoreAfterAllDone  bool          `json:"deleteFromStoreAfterAllDestDone" db:"delete_from_store_after_all_dest_done"`
	AutoExtract                  bool          `json:"autoExtract" db:"auto_extract"`

	// Mutable state.
	Status    JobStatus `json:"status" db:"status"`
	Parts     []Part    `json:"parts" db:"-"`
	BaseName  string    `json:"baseName" db:"base_name"` // transfer_<epoch_ms>, fixed at start
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`

	// isPaused / isCancelled are observed by the packager and dispatcher
	// workers at chunk boundaries while the HTTP handler goroutine sets
	// them from Cancel/Pause/Resume; atomic.Bool avoids the data race a
	// plain bool would have across that goroutine boundary. Not persisted,
	// they live only on the in-memory Job the orchestrator owns while
	// running.
	isPaused    atomic.Bool `db:"-"`
	isCancelled atomic.Bool `db:"-"`
}

// PartSizeCeilingBytes converts the mebibyte ceiling to bytes for the
// Planner.
func (j *Job) PartSizeCeilingBytes() int64 {
	return j.PartSizeCeilingMiB * 1024 * 1024
}

// IsPaused reports the cooperative pause flag.
func (j *Job) IsPaused() bool { return j.isPaused.Load() }

// IsCancelled reports the cooperative cancel flag.
func (j *Job) IsCancelled() bool { return j.isCancelled.Load() }

// SetPaused toggles the flag workers poll at chunk boundaries.
func (j *Job) SetPaused(p bool) { j.isPaused.Store(p) }

// SetCancelled sets the flag workers observe to stop starting new remote
// processes; it never clears.
func (j *Job) SetCancelled() { j.isCancelled.Store(true) }

// Validate checks the invariants from the data model: at least one
// destination, a non-empty source folder, and destination host ids
// pairwise distinct and distinct from the source.
func (j *Job) Validate() error {
	if j.SourceFolderPath == "" {
		return errors.New("job: source folder path must not be empty")
	}
	if len(j.Destinations) == 0 {
		return errors.New("job: at least one destination is required")
	}
	seen := make(map[string]struct{}, len(j.Destinations))
	for _, d := range j.Destinations {
		if d.HostId == j.SourceHostId {
			return errors.Errorf("job: destination host %s duplicates the source host", d.HostId)
		}
		if _, ok := seen[d.HostId]; ok {
			return errors.Errorf("job: duplicate destination host %s", d.HostId)
		}
		seen[d.HostId] = struct{}{}
	}
	return nil
}

// JobRepository persists Job snapshots. The orchestrator calls Update when
// a job starts, after each Part finishes distribution, and when the job
// reaches a terminal state.
type JobRepository interface {
	Create(ctx context.Context, job Job) (Job, error)
	Update(ctx context.Context, job Job) error
	Delete(ctx context.Context, id string) error
	FindByID(ctx context.Context, id string) (Job, error)
	FindAll(ctx context.Context) ([]Job, error)
}
