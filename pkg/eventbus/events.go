package eventbus

import "github.com/yurykabanov/transferd/pkg/domain"

// JobStarted is emitted once when a Job transitions idle → running.
type JobStarted struct {
	JobId string
	Name  string
}

// JobStepAdvanced carries coarse status such as "connecting source".
type JobStepAdvanced struct {
	JobId      string
	Step       int
	TotalSteps int
	Message    string
}

// PartStateChanged is emitted with each upload progress update (status
// uploading), when a Part starts distributing, and when it reaches
// completed or failed. The pending, packaging and uploaded transitions do
// not emit it; PartUploaded reports the last of these.
type PartStateChanged struct {
	JobId   string
	PartId  string
	Status  domain.PartStatus
	Percent int
}

// PartUploaded is emitted once a Part's upload completes, carrying a
// fresh, all-pending DestinationProgress list for the dispatcher-driver
// to fan out.
type PartUploaded struct {
	JobId        string
	PartId       string
	Filename     string
	StorePath    string
	Size         int64
	Destinations []domain.DestinationProgress
}

// PartDestProgress is emitted as a destination makes progress on a part.
type PartDestProgress struct {
	JobId   string
	PartId  string
	HostId  string
	Status  domain.DestStatus
	Percent int
	Error   string
}

// JobCompleted is emitted once when a Job reaches its completed terminal
// state (including the partial-success case — see DESIGN.md).
type JobCompleted struct {
	JobId string
}

// JobFailed is emitted once when a Job reaches its failed terminal
// state; it is not emitted for a cancelled job (see JobCancelled).
type JobFailed struct {
	JobId string
	Error string
}

// JobCancelled is emitted when a Job reaches the distinct cancelled
// terminal state (DESIGN.md's resolution of §9's open question).
type JobCancelled struct {
	JobId string
}

// Log is a free-form, prefix-conventioned log line (§6 message
// conventions: "[Step N/K]", "[Zip]", "[Upload]", etc.).
type Log struct {
	Level   domain.EventLevel
	Message string
	JobId   string
	HostId  string
	PartId  string
}
