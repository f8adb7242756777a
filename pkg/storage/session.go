package storage

import (
	"context"
	"encoding/json"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/yurykabanov/transferd/pkg/domain"
)

const (
	sessionUpsertQuery = `
		INSERT INTO session (tab_id, data)
		VALUES (?, ?)
		ON CONFLICT (tab_id) DO UPDATE SET data = excluded.data
	`

	sessionSelectQuery = `SELECT tab_id, data FROM session WHERE tab_id = ?`

	sessionDeleteQuery = `DELETE FROM session WHERE tab_id = ?`
)

// SessionRepository persists opaque per-UI-tab operator config in the
// "session" namespace named by §6.
type SessionRepository struct {
	db *sqlx.DB
}

func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Put(ctx context.Context, s domain.SessionState) error {
	raw, err := json.Marshal(s.Data)
	if err != nil {
		return errors.Wrap(err, "storage: marshal session data")
	}
	_, err = r.db.ExecContext(ctx, sessionUpsertQuery, s.TabId, string(raw))
	return errors.Wrap(err, "storage: upsert session")
}

func (r *SessionRepository) Get(ctx context.Context, tabId string) (domain.SessionState, error) {
	var row domain.SessionState
	if err := r.db.GetContext(ctx, &row, sessionSelectQuery, tabId); err != nil {
		return domain.SessionState{}, errors.Wrap(err, "storage: find session")
	}
	if row.Raw != "" {
		if err := json.Unmarshal([]byte(row.Raw), &row.Data); err != nil {
			return domain.SessionState{}, errors.Wrap(err, "storage: unmarshal session data")
		}
	}
	return row, nil
}

func (r *SessionRepository) Delete(ctx context.Context, tabId string) error {
	_, err := r.db.ExecContext(ctx, sessionDeleteQuery, tabId)
	return errors.Wrap(err, "storage: delete session")
}
