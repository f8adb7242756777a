package domain

// PartStatus is one Part's position in the linear
// pending → packaging → uploading → uploaded → distributing → completed|failed
// sequence. The only way back to an earlier state is an explicit retry,
// which resets to pending.
type PartStatus string

const (
	PartPending     PartStatus = "pending"
	PartPackaging   PartStatus = "packaging"
	PartUploading   PartStatus = "uploading"
	PartUploaded    PartStatus = "uploaded"
	PartDistributing PartStatus = "distributing"
	PartCompleted   PartStatus = "completed"
	PartFailed      PartStatus = "failed"
)

// DestStatus is one DestinationProgress's lifecycle.
type DestStatus string

const (
	DestPending     DestStatus = "pending"
	DestDownloading DestStatus = "downloading"
	DestStaging     DestStatus = "staging"
	DestExtracting  DestStatus = "extracting"
	DestCompleted   DestStatus = "completed"
	DestFailed      DestStatus = "failed"
)

// DestinationProgress tracks one Part's delivery to one destination host.
type DestinationProgress struct {
	HostId  string     `json:"hostId"`
	Status  DestStatus `json:"status"`
	Percent int        `json:"percent"`
	Error   string     `json:"error,omitempty"`
}

// SetPercent applies the monotonic-non-decreasing invariant: percent may
// only move forward, except while the status is Pending or Failed, when
// any value (lower ones included) is accepted.
func (d *DestinationProgress) SetPercent(p int) {
	if d.Status == DestPending || d.Status == DestFailed {
		d.Percent = p
		return
	}
	if p > d.Percent {
		d.Percent = p
	}
}

// Reset returns a DestinationProgress to pending/0, as the retry path
// requires.
func (d *DestinationProgress) Reset() {
	d.Status = DestPending
	d.Percent = 0
	d.Error = ""
}

// Part is one archive segment produced by the Packager.
type Part struct {
	Id           string                `json:"id"`
	Index        int                   `json:"index"` // 1-based
	Filename     string                `json:"filename"`
	SizeBytes    int64                 `json:"sizeBytes"`
	StorePath    string                `json:"storePath"`
	Status       PartStatus            `json:"status"`
	RetryCount   int                   `json:"retryCount"`
	Destinations []DestinationProgress `json:"destinations"`
}

// NewDestinationProgresses builds a fresh, all-pending progress list for
// the given destination host ids, as emitted alongside PartUploaded.
func NewDestinationProgresses(hostIds []string) []DestinationProgress {
	out := make([]DestinationProgress, len(hostIds))
	for i, id := range hostIds {
		out[i] = DestinationProgress{HostId: id, Status: DestPending, Percent: 0}
	}
	return out
}

// AllDestinationsDone reports whether every DestinationProgress has
// reached a terminal per-destination state (completed or failed).
func (p *Part) AllDestinationsDone() bool {
	for _, d := range p.Destinations {
		if d.Status != DestCompleted && d.Status != DestFailed {
			return false
		}
	}
	return true
}

// DestinationByHost finds the DestinationProgress for a host, if any.
func (p *Part) DestinationByHost(hostId string) *DestinationProgress {
	for i := range p.Destinations {
		if p.Destinations[i].HostId == hostId {
			return &p.Destinations[i]
		}
	}
	return nil
}
