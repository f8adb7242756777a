package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/yurykabanov/transferd/pkg/domain"
)

const (
	hostInsertQuery = `
		INSERT INTO servers (
			id, name, address, port, username, auth_cipher, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	hostUpdateQuery = `
		UPDATE servers SET
			name = ?, address = ?, port = ?, username = ?, auth_cipher = ?, updated_at = ?
		WHERE id = ?
	`

	hostDeleteQuery = `DELETE FROM servers WHERE id = ?`

	hostSelectByIdQuery = `
		SELECT id, name, address, port, username, auth_cipher, created_at, updated_at
		FROM servers WHERE id = ?
	`

	hostSelectAllQuery = `
		SELECT id, name, address, port, username, auth_cipher, created_at, updated_at
		FROM servers ORDER BY name
	`
)

// HostRepository persists domain.Host records in the "servers"
// namespace named by §6.
type HostRepository struct {
	db *sqlx.DB
}

func NewHostRepository(db *sqlx.DB) *HostRepository {
	return &HostRepository{db: db}
}

func (r *HostRepository) Create(ctx context.Context, host domain.Host) (domain.Host, error) {
	host.Id = uuid.New().String()
	now := time.Now()
	host.CreatedAt, host.UpdatedAt = now, now

	_, err := r.db.ExecContext(ctx, hostInsertQuery,
		host.Id, host.Name, host.Address, host.Port, host.Username, host.AuthCipher,
		host.CreatedAt, host.UpdatedAt,
	)
	if err != nil {
		return domain.Host{}, errors.Wrap(err, "storage: insert host")
	}
	return host, nil
}

func (r *HostRepository) Update(ctx context.Context, host domain.Host) error {
	host.UpdatedAt = time.Now()
	_, err := r.db.ExecContext(ctx, hostUpdateQuery,
		host.Name, host.Address, host.Port, host.Username, host.AuthCipher, host.UpdatedAt,
		host.Id,
	)
	return errors.Wrap(err, "storage: update host")
}

func (r *HostRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, hostDeleteQuery, id)
	return errors.Wrap(err, "storage: delete host")
}

func (r *HostRepository) FindByID(ctx context.Context, id string) (domain.Host, error) {
	var host domain.Host
	if err := r.db.GetContext(ctx, &host, hostSelectByIdQuery, id); err != nil {
		return domain.Host{}, errors.Wrap(err, "storage: find host")
	}
	return host, nil
}

func (r *HostRepository) FindAll(ctx context.Context) ([]domain.Host, error) {
	var hosts []domain.Host
	if err := r.db.SelectContext(ctx, &hosts, hostSelectAllQuery); err != nil {
		return nil, errors.Wrap(err, "storage: list hosts")
	}
	return hosts, nil
}
