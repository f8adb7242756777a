package domain

import "context"

// SessionState is an opaque blob of operator UI configuration, keyed by
// UI tab id. The orchestrator never reads or writes it; it exists purely
// so the presentation layer has somewhere durable to stash per-tab state
// across restarts.
type SessionState struct {
	TabId string                 `json:"tabId" db:"tab_id"`
	Data  map[string]interface{} `json:"data" db:"-"`
	Raw   string                 `json:"-" db:"data"` // json-encoded Data
}

// SessionRepository persists SessionState records in the "session"
// namespace.
type SessionRepository interface {
	Put(ctx context.Context, s SessionState) error
	Get(ctx context.Context, tabId string) (SessionState, error)
	Delete(ctx context.Context, tabId string) error
}
