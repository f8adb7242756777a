package domain

import "context"

// ArchiveStoreConfig names a folder within a remote object-store that the
// object-store CLI tool already has authorization for. It carries no secret
// material of its own — the authorization lives in the CLI tool's on-disk
// config on whichever host deploys it.
type ArchiveStoreConfig struct {
	Id         string `json:"id" db:"id"`
	Name       string `json:"name" db:"name"`
	RemoteName string `json:"remoteName" db:"remote_name"` // e.g. "gdrive"
	FolderPath string `json:"folderPath" db:"folder_path"`
}

// ArchiveStoreConfigRepository persists ArchiveStoreConfig records.
type ArchiveStoreConfigRepository interface {
	Create(ctx context.Context, cfg ArchiveStoreConfig) (ArchiveStoreConfig, error)
	Update(ctx context.Context, cfg ArchiveStoreConfig) error
	Delete(ctx context.Context, id string) error
	FindByID(ctx context.Context, id string) (ArchiveStoreConfig, error)
	FindAll(ctx context.Context) ([]ArchiveStoreConfig, error)
}
