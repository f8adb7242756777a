package domain

import "fmt"

// ErrorKind classifies a pipeline failure for the purposes of §7's
// propagation rules: some kinds fail the whole job, others isolate to a
// single DestinationProgress.
type ErrorKind string

const (
	KindConnect     ErrorKind = "connect_error"
	KindToolMissing ErrorKind = "tool_missing"
	KindToolInstall ErrorKind = "tool_install_error"
	KindPlan        ErrorKind = "plan_error"
	KindPackage     ErrorKind = "package_error"
	KindUpload      ErrorKind = "upload_error"
	KindDownload    ErrorKind = "download_error"
	KindExtract     ErrorKind = "extract_error"
	KindStoreDelete ErrorKind = "store_delete_error"
	KindCancelled   ErrorKind = "cancelled"
)

// PipelineError is the single error type carried across the pipeline's
// stage boundaries. Whether the orchestrator fails the whole job or
// isolates the failure to one destination follows from the stage that
// returned it; Kind is consulted only to tell a cooperative cancel from a
// failure. HostId/PartId are
// populated when the error is destination- or part-scoped.
type PipelineError struct {
	Kind    ErrorKind
	Message string
	HostId  string
	PartId  string
	Cause   error
}

func (e *PipelineError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.HostId != "" {
		msg = fmt.Sprintf("%s (host=%s)", msg, e.HostId)
	}
	if e.PartId != "" {
		msg = fmt.Sprintf("%s (part=%s)", msg, e.PartId)
	}
	return msg
}

func (e *PipelineError) Unwrap() error { return e.Cause }

func NewConnectError(hostId string, cause error) *PipelineError {
	return &PipelineError{Kind: KindConnect, Message: "dial or authentication failed", HostId: hostId, Cause: cause}
}

func NewToolMissingError(hostId string) *PipelineError {
	return &PipelineError{Kind: KindToolMissing, Message: "object-store CLI tool not found", HostId: hostId}
}

func NewToolInstallError(hostId string, cause error) *PipelineError {
	return &PipelineError{Kind: KindToolInstall, Message: "object-store CLI tool install failed", HostId: hostId, Cause: cause}
}

func NewPlanError(message string, cause error) *PipelineError {
	return &PipelineError{Kind: KindPlan, Message: message, Cause: cause}
}

func NewPackageError(partId string, cause error) *PipelineError {
	return &PipelineError{Kind: KindPackage, Message: "archive creation or stat failed", PartId: partId, Cause: cause}
}

func NewUploadError(partId string, cause error) *PipelineError {
	return &PipelineError{Kind: KindUpload, Message: "upload failed", PartId: partId, Cause: cause}
}

func NewDownloadError(hostId, partId string, cause error) *PipelineError {
	return &PipelineError{Kind: KindDownload, Message: "download failed", HostId: hostId, PartId: partId, Cause: cause}
}

func NewExtractError(hostId, partId string, cause error) *PipelineError {
	return &PipelineError{Kind: KindExtract, Message: "extract failed", HostId: hostId, PartId: partId, Cause: cause}
}

func NewStoreDeleteError(hostId, partId string, cause error) *PipelineError {
	return &PipelineError{Kind: KindStoreDelete, Message: "store delete failed", HostId: hostId, PartId: partId, Cause: cause}
}

func NewCancelledError() *PipelineError {
	return &PipelineError{Kind: KindCancelled, Message: "job cancelled by operator"}
}

// IsKind reports whether err is a *PipelineError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	pe, ok := err.(*PipelineError)
	return ok && pe.Kind == kind
}
