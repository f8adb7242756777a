package storage

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/yurykabanov/transferd/pkg/domain"
)

const (
	storeConfigInsertQuery = `
		INSERT INTO archive_store_configs (id, name, remote_name, folder_path)
		VALUES (?, ?, ?, ?)
	`

	storeConfigUpdateQuery = `
		UPDATE archive_store_configs SET name = ?, remote_name = ?, folder_path = ?
		WHERE id = ?
	`

	storeConfigDeleteQuery = `DELETE FROM archive_store_configs WHERE id = ?`

	storeConfigSelectByIdQuery = `
		SELECT id, name, remote_name, folder_path FROM archive_store_configs WHERE id = ?
	`

	storeConfigSelectAllQuery = `
		SELECT id, name, remote_name, folder_path FROM archive_store_configs ORDER BY name
	`
)

// ArchiveStoreConfigRepository persists domain.ArchiveStoreConfig records.
type ArchiveStoreConfigRepository struct {
	db *sqlx.DB
}

func NewArchiveStoreConfigRepository(db *sqlx.DB) *ArchiveStoreConfigRepository {
	return &ArchiveStoreConfigRepository{db: db}
}

func (r *ArchiveStoreConfigRepository) Create(ctx context.Context, cfg domain.ArchiveStoreConfig) (domain.ArchiveStoreConfig, error) {
	cfg.Id = uuid.New().String()
	_, err := r.db.ExecContext(ctx, storeConfigInsertQuery, cfg.Id, cfg.Name, cfg.RemoteName, cfg.FolderPath)
	if err != nil {
		return domain.ArchiveStoreConfig{}, errors.Wrap(err, "storage: insert store config")
	}
	return cfg, nil
}

func (r *ArchiveStoreConfigRepository) Update(ctx context.Context, cfg domain.ArchiveStoreConfig) error {
	_, err := r.db.ExecContext(ctx, storeConfigUpdateQuery, cfg.Name, cfg.RemoteName, cfg.FolderPath, cfg.Id)
	return errors.Wrap(err, "storage: update store config")
}

func (r *ArchiveStoreConfigRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, storeConfigDeleteQuery, id)
	return errors.Wrap(err, "storage: delete store config")
}

func (r *ArchiveStoreConfigRepository) FindByID(ctx context.Context, id string) (domain.ArchiveStoreConfig, error) {
	var cfg domain.ArchiveStoreConfig
	if err := r.db.GetContext(ctx, &cfg, storeConfigSelectByIdQuery, id); err != nil {
		return domain.ArchiveStoreConfig{}, errors.Wrap(err, "storage: find store config")
	}
	return cfg, nil
}

func (r *ArchiveStoreConfigRepository) FindAll(ctx context.Context) ([]domain.ArchiveStoreConfig, error) {
	var cfgs []domain.ArchiveStoreConfig
	if err := r.db.SelectContext(ctx, &cfgs, storeConfigSelectAllQuery); err != nil {
		return nil, errors.Wrap(err, "storage: list store configs")
	}
	return cfgs, nil
}
