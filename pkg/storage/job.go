package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/yurykabanov/transferd/pkg/domain"
)

const (
	jobInsertQuery = `
		INSERT INTO jobs (
			id, name, source_host_id, source_folder_path, source_store_config_id, destinations_json,
			store_folder, part_size_ceiling_mib,
			delete_local_after_upload, delete_from_store_after_all_dest_done, auto_extract,
			status, parts_json, base_name, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	jobUpdateQuery = `
		UPDATE jobs SET
			name = ?, status = ?, parts_json = ?, base_name = ?, updated_at = ?
		WHERE id = ?
	`

	jobDeleteQuery = `DELETE FROM jobs WHERE id = ?`

	jobSelectByIdQuery = `
		SELECT id, name, source_host_id, source_folder_path, source_store_config_id, destinations_json,
			store_folder, part_size_ceiling_mib,
			delete_local_after_upload, delete_from_store_after_all_dest_done, auto_extract,
			status, parts_json, base_name, created_at, updated_at
		FROM jobs WHERE id = ?
	`

	jobSelectAllQuery = `
		SELECT id, name, source_host_id, source_folder_path, source_store_config_id, destinations_json,
			store_folder, part_size_ceiling_mib,
			delete_local_after_upload, delete_from_store_after_all_dest_done, auto_extract,
			status, parts_json, base_name, created_at, updated_at
		FROM jobs ORDER BY created_at DESC
	`
)

// jobRow is the flat, sqlx-scannable shape of the jobs table; Job's
// Destinations and Parts are stored as JSON text columns since the
// persistent store is a document store per §6, not a relational one —
// sqlite's JSON1-free text columns play that role here.
type jobRow struct {
	Id                          string    `db:"id"`
	Name                        string    `db:"name"`
	SourceHostId                string    `db:"source_host_id"`
	SourceFolderPath            string    `db:"source_folder_path"`
	SourceStoreConfigId         string    `db:"source_store_config_id"`
	DestinationsJSON            string    `db:"destinations_json"`
	StoreFolder                 string    `db:"store_folder"`
	PartSizeCeilingMiB          int64     `db:"part_size_ceiling_mib"`
	DeleteLocalAfterUpload      bool      `db:"delete_local_after_upload"`
	DeleteFromStoreAfterAllDone bool      `db:"delete_from_store_after_all_dest_done"`
	AutoExtract                 bool      `db:"auto_extract"`
	Status                      string    `db:"status"`
	PartsJSON                   string    `db:"parts_json"`
	BaseName                    string    `db:"base_name"`
	CreatedAt                   time.Time `db:"created_at"`
	UpdatedAt                   time.Time `db:"updated_at"`
}

func rowFromJob(job domain.Job) (jobRow, error) {
	destJSON, err := json.Marshal(job.Destinations)
	if err != nil {
		return jobRow{}, errors.Wrap(err, "storage: marshal destinations")
	}
	partsJSON, err := json.Marshal(job.Parts)
	if err != nil {
		return jobRow{}, errors.Wrap(err, "storage: marshal parts")
	}
	return jobRow{
		Id:                          job.Id,
		Name:                        job.Name,
		SourceHostId:                job.SourceHostId,
		SourceFolderPath:            job.SourceFolderPath,
		SourceStoreConfigId:         job.SourceStoreConfigId,
		DestinationsJSON:            string(destJSON),
		StoreFolder:                 job.StoreFolder,
		PartSizeCeilingMiB:          job.PartSizeCeilingMiB,
		DeleteLocalAfterUpload:      job.DeleteLocalAfterUpload,
		DeleteFromStoreAfterAllDone: job.DeleteFromStoreAfterAllDone,
		AutoExtract:                 job.AutoExtract,
		Status:                      string(job.Status),
		PartsJSON:                   string(partsJSON),
		BaseName:                    job.BaseName,
		CreatedAt:                   job.CreatedAt,
		UpdatedAt:                   job.UpdatedAt,
	}, nil
}

func (row jobRow) toJob() (domain.Job, error) {
	var destinations []domain.Destination
	if row.DestinationsJSON != "" {
		if err := json.Unmarshal([]byte(row.DestinationsJSON), &destinations); err != nil {
			return domain.Job{}, errors.Wrap(err, "storage: unmarshal destinations")
		}
	}
	var parts []domain.Part
	if row.PartsJSON != "" {
		if err := json.Unmarshal([]byte(row.PartsJSON), &parts); err != nil {
			return domain.Job{}, errors.Wrap(err, "storage: unmarshal parts")
		}
	}
	return domain.Job{
		Id:                          row.Id,
		Name:                        row.Name,
		SourceHostId:                row.SourceHostId,
		SourceFolderPath:            row.SourceFolderPath,
		SourceStoreConfigId:         row.SourceStoreConfigId,
		Destinations:                destinations,
		StoreFolder:                 row.StoreFolder,
		PartSizeCeilingMiB:          row.PartSizeCeilingMiB,
		DeleteLocalAfterUpload:      row.DeleteLocalAfterUpload,
		DeleteFromStoreAfterAllDone: row.DeleteFromStoreAfterAllDone,
		AutoExtract:                 row.AutoExtract,
		Status:                      domain.JobStatus(row.Status),
		Parts:                       parts,
		BaseName:                    row.BaseName,
		CreatedAt:                   row.CreatedAt,
		UpdatedAt:                   row.UpdatedAt,
	}, nil
}

// JobRepository persists domain.Job snapshots in the "jobs" namespace.
// The orchestrator calls Update when a job starts, after each Part finishes
// distribution, and when the job reaches a terminal state.
type JobRepository struct {
	db *sqlx.DB
}

func NewJobRepository(db *sqlx.DB) *JobRepository {
	return &JobRepository{db: db}
}

func (r *JobRepository) Create(ctx context.Context, job domain.Job) (domain.Job, error) {
	job.Id = uuid.New().String()
	now := time.Now()
	job.CreatedAt, job.UpdatedAt = now, now

	row, err := rowFromJob(job)
	if err != nil {
		return domain.Job{}, err
	}

	_, err = r.db.ExecContext(ctx, jobInsertQuery,
		row.Id, row.Name, row.SourceHostId, row.SourceFolderPath, row.SourceStoreConfigId, row.DestinationsJSON,
		row.StoreFolder, row.PartSizeCeilingMiB,
		row.DeleteLocalAfterUpload, row.DeleteFromStoreAfterAllDone, row.AutoExtract,
		row.Status, row.PartsJSON, row.BaseName, row.CreatedAt, row.UpdatedAt,
	)
	if err != nil {
		return domain.Job{}, errors.Wrap(err, "storage: insert job")
	}
	return job, nil
}

func (r *JobRepository) Update(ctx context.Context, job domain.Job) error {
	job.UpdatedAt = time.Now()
	row, err := rowFromJob(job)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, jobUpdateQuery,
		row.Name, row.Status, row.PartsJSON, row.BaseName, row.UpdatedAt, row.Id,
	)
	return errors.Wrap(err, "storage: update job")
}

func (r *JobRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, jobDeleteQuery, id)
	return errors.Wrap(err, "storage: delete job")
}

func (r *JobRepository) FindByID(ctx context.Context, id string) (domain.Job, error) {
	var row jobRow
	if err := r.db.GetContext(ctx, &row, jobSelectByIdQuery, id); err != nil {
		return domain.Job{}, errors.Wrap(err, "storage: find job")
	}
	return row.toJob()
}

func (r *JobRepository) FindAll(ctx context.Context) ([]domain.Job, error) {
	var rows []jobRow
	if err := r.db.SelectContext(ctx, &rows, jobSelectAllQuery); err != nil {
		return nil, errors.Wrap(err, "storage: list jobs")
	}

	jobs := make([]domain.Job, 0, len(rows))
	for _, row := range rows {
		job, err := row.toJob()
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}
