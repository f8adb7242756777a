package domain

import "time"

// EventLevel mirrors logrus's level vocabulary so Event.Level can be
// rendered the same way whether it reached the operator via the event
// bus or via the structured logger.
type EventLevel string

const (
	EventLevelDebug EventLevel = "debug"
	EventLevelInfo  EventLevel = "info"
	EventLevelWarn  EventLevel = "warn"
	EventLevelError EventLevel = "error"
)

// Event is an append-only log record surfaced to subscribers of the
// event bus. JobId/HostId/PartId are optional — a record not scoped to
// one of them leaves the field empty.
type Event struct {
	Id        string     `json:"id"`
	Timestamp time.Time  `json:"timestamp"`
	Level     EventLevel `json:"level"`
	Message   string     `json:"message"`
	JobId     string     `json:"jobId,omitempty"`
	HostId    string     `json:"hostId,omitempty"`
	PartId    string     `json:"partId,omitempty"`
}

// Message prefixes used by the Packager/Dispatcher/Orchestrator so
// subscribers can classify log lines without parsing free text.
const (
	PrefixStep     = "[Step %d/%d]"
	PrefixZip      = "[Zip]"
	PrefixUpload   = "[Upload]"
	PrefixDownload = "[Download]"
	PrefixExtract  = "[Extract]"
	PrefixCleanup  = "[Cleanup]"
	PrefixComplete = "[Complete]"
	PrefixError    = "[Error]"
	PrefixDest     = "[Dest]"
	PrefixQueue    = "[Queue]"
	PrefixCancelled = "[Cancelled]"
)
