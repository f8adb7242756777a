// Package dispatcher implements the destination-side worker of §4.5: for
// one part on one destination host, it downloads the archive from the
// intermediate store, stages or extracts it, and optionally deletes the
// store copy — all via remote shell commands and the Object-Store Driver,
// mirroring the teacher's per-storage-name transfer.Manager but fanned out
// per destination rather than dispatched by a single storage name.
package dispatcher

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/yurykabanov/transferd/pkg/appcontext"
	"github.com/yurykabanov/transferd/pkg/domain"
	"github.com/yurykabanov/transferd/pkg/eventbus"
	"github.com/yurykabanov/transferd/pkg/objectstore"
	"github.com/yurykabanov/transferd/pkg/sshpool"
)

const stagingDir = "/tmp"

// ConnectionPool is the subset of *sshpool.Pool the Dispatcher needs.
type ConnectionPool interface {
	Exec(ctx context.Context, hostId, cmd string) (sshpool.ExecResult, error)
	ExecStreaming(ctx context.Context, hostId, cmd string, onChunk sshpool.ChunkFunc) (sshpool.ExecResult, error)
}

// StoreClient is the subset of *objectstore.Driver the Dispatcher needs.
type StoreClient interface {
	DownloadFile(ctx context.Context, hostId, remoteName, remotePath, localPath string, onProgress objectstore.ProgressFunc) error
	DeleteFile(ctx context.Context, hostId, remoteName, remotePath string) error
}

// Installer is the subset of *objectstore.Driver's capability bootstrap
// the Dispatcher needs to run destination preparation (once per
// destination, before any part is dispatched). The tool name and local
// config path are fixed at the Driver's construction, not per call.
type Installer interface {
	CheckInstalled(ctx context.Context, hostId string) (bool, error)
	InstallOnHost(ctx context.Context, hostId string) error
	DeployConfig(ctx context.Context, hostId string) error
}

// Publisher is the subset of *eventbus.Bus the Dispatcher needs.
type Publisher interface {
	Publish(event interface{})
}

// Dispatcher is the per-part, per-destination worker of §4.5.
type Dispatcher struct {
	pool      ConnectionPool
	store     StoreClient
	installer Installer
	bus       Publisher
	logger    logrus.FieldLogger
}

// New constructs a Dispatcher.
func New(pool ConnectionPool, store StoreClient, installer Installer, bus Publisher, logger logrus.FieldLogger) *Dispatcher {
	return &Dispatcher{pool: pool, store: store, installer: installer, bus: bus, logger: logger}
}

// Prepare runs once per destination, before any part is dispatched: ensure
// the object-store CLI is installed and its config deployed. The caller is
// responsible for marking every DestinationProgress slot failed when this
// returns an error (it cannot know which parts exist yet).
func (d *Dispatcher) Prepare(ctx context.Context, hostId string) error {
	ok, err := d.installer.CheckInstalled(ctx, hostId)
	if err != nil {
		return domain.NewConnectError(hostId, err)
	}
	if !ok {
		missing := domain.NewToolMissingError(hostId)
		d.bus.Publish(eventbus.Log{
			Level:   domain.EventLevelInfo,
			Message: fmt.Sprintf("%s %s", domain.PrefixDest, missing.Error()),
			HostId:  hostId,
		})
		if err := d.installer.InstallOnHost(ctx, hostId); err != nil {
			return domain.NewToolInstallError(hostId, err)
		}
	}
	if err := d.installer.DeployConfig(ctx, hostId); err != nil {
		return domain.NewToolInstallError(hostId, err)
	}
	return nil
}

// DeliverPart runs the full per-part, per-destination sequence of §4.5
// steps 1-4 and returns the resulting DestinationProgress. job carries the
// immutable inputs (autoExtract, deleteFromStoreAfterAllDone); needsSplit
// says whether the job was planned as more than one part; remoteName is
// the destination's own store config's remote name.
func (d *Dispatcher) DeliverPart(ctx context.Context, job *domain.Job, part domain.Part, dest domain.Destination, remoteName string, needsSplit bool) domain.DestinationProgress {
	progress := domain.DestinationProgress{HostId: dest.HostId, Status: domain.DestPending, Percent: 0}

	ctx = appcontext.WithJobId(ctx, job.Id)
	ctx = appcontext.WithHostId(ctx, dest.HostId)
	ctx = appcontext.WithPartId(ctx, part.Id)
	logger := appcontext.LoggerFromContext(d.logger, ctx)

	if job.IsCancelled() {
		return d.fail(job.Id, part.Id, progress, domain.NewCancelledError())
	}

	progress.Status = domain.DestDownloading
	progress.Percent = 0
	d.publishProgress(job.Id, part.Id, dest.HostId, progress)
	d.bus.Publish(eventbus.Log{
		Level:   domain.EventLevelDebug,
		Message: fmt.Sprintf("%s %s from store to %s", domain.PrefixDownload, part.Filename, dest.HostId),
		JobId:   job.Id,
		PartId:  part.Id,
		HostId:  dest.HostId,
	})

	stagingPath := fmt.Sprintf("%s/%s", stagingDir, part.Filename)

	err := d.store.DownloadFile(ctx, dest.HostId, remoteName, part.StorePath, stagingPath, func(percent int, speed string) {
		progress.Percent = percent
		d.publishProgress(job.Id, part.Id, dest.HostId, progress)
	})
	if err != nil {
		return d.fail(job.Id, part.Id, progress, domain.NewDownloadError(dest.HostId, part.Id, err))
	}

	destPath := strings.TrimRight(dest.FolderPath, "/") + "/" + part.Filename

	switch {
	case !job.AutoExtract:
		progress.Status = domain.DestStaging
		d.publishProgress(job.Id, part.Id, dest.HostId, progress)
		if err := d.moveToDestination(ctx, dest.HostId, stagingPath, destPath); err != nil {
			return d.fail(job.Id, part.Id, progress, domain.NewDownloadError(dest.HostId, part.Id, err))
		}
	case !needsSplit:
		progress.Status = domain.DestExtracting
		d.publishProgress(job.Id, part.Id, dest.HostId, progress)
		if err := d.extractSingle(ctx, dest.HostId, stagingPath, dest.FolderPath); err != nil {
			return d.fail(job.Id, part.Id, progress, domain.NewExtractError(dest.HostId, part.Id, err))
		}
		d.bus.Publish(eventbus.Log{
			Level:   domain.EventLevelDebug,
			Message: fmt.Sprintf("%s staging file removed on %s", domain.PrefixCleanup, dest.HostId),
			JobId:   job.Id,
			PartId:  part.Id,
			HostId:  dest.HostId,
		})
	default:
		// Split archive: extraction is deferred to the bulk step (§4.6)
		// since any one part is useless in isolation.
		progress.Status = domain.DestStaging
		d.publishProgress(job.Id, part.Id, dest.HostId, progress)
		if err := d.moveToDestination(ctx, dest.HostId, stagingPath, destPath); err != nil {
			return d.fail(job.Id, part.Id, progress, domain.NewDownloadError(dest.HostId, part.Id, err))
		}
	}

	if job.DeleteFromStoreAfterAllDone {
		if err := d.store.DeleteFile(ctx, dest.HostId, remoteName, part.StorePath); err != nil {
			logger.WithError(err).Warn("dispatcher: failed to delete store copy")
			return d.fail(job.Id, part.Id, progress, domain.NewStoreDeleteError(dest.HostId, part.Id, err))
		}
		d.bus.Publish(eventbus.Log{
			Level:   domain.EventLevelDebug,
			Message: fmt.Sprintf("%s %s removed from store", domain.PrefixCleanup, part.Filename),
			JobId:   job.Id,
			PartId:  part.Id,
			HostId:  dest.HostId,
		})
	}

	progress.Status = domain.DestCompleted
	progress.Percent = 100
	d.publishProgress(job.Id, part.Id, dest.HostId, progress)
	d.bus.Publish(eventbus.Log{
		Level:   domain.EventLevelInfo,
		Message: fmt.Sprintf("%s %s staged on %s", domain.PrefixDest, part.Filename, dest.HostId),
		JobId:   job.Id,
		PartId:  part.Id,
		HostId:  dest.HostId,
	})

	return progress
}

// BulkExtract runs §4.6's bulk extract for one destination once every part
// has completed download+stage there; it is only invoked by the
// Orchestrator when autoExtract && needsSplit.
func (d *Dispatcher) BulkExtract(ctx context.Context, hostId, destFolder, baseName string) error {
	glob := baseName + ".part*.zip"
	unzipCmd := fmt.Sprintf("cd %s && unzip -o %s", shellQuote(destFolder), shellQuote(glob))
	if _, err := d.pool.ExecStreaming(ctx, hostId, unzipCmd, nil); err != nil {
		return domain.NewExtractError(hostId, "", errors.Wrap(err, "dispatcher: bulk unzip"))
	}
	// unquoted on purpose: unzip matches the glob internally above, but rm
	// needs the shell itself to expand it against the actual part files.
	rmCmd := fmt.Sprintf("cd %s && rm -f %s", shellQuote(destFolder), glob)
	if _, err := d.pool.Exec(ctx, hostId, rmCmd); err != nil {
		d.logger.WithError(err).WithField("host_id", hostId).Warn("dispatcher: failed to remove parts after bulk extract")
		return nil
	}
	d.bus.Publish(eventbus.Log{
		Level:   domain.EventLevelDebug,
		Message: fmt.Sprintf("%s %s.part*.zip removed on %s", domain.PrefixCleanup, baseName, hostId),
		HostId:  hostId,
	})
	return nil
}

func (d *Dispatcher) extractSingle(ctx context.Context, hostId, stagingPath, destFolder string) error {
	cmd := fmt.Sprintf("mkdir -p %s && unzip -o %s -d %s", shellQuote(destFolder), shellQuote(stagingPath), shellQuote(destFolder))
	if _, err := d.pool.ExecStreaming(ctx, hostId, cmd, nil); err != nil {
		return errors.Wrap(err, "dispatcher: extract archive")
	}
	if _, err := d.pool.Exec(ctx, hostId, "rm -f "+shellQuote(stagingPath)); err != nil {
		d.logger.WithError(err).WithField("host_id", hostId).Warn("dispatcher: failed to remove staging file after extract")
	}
	return nil
}

func (d *Dispatcher) moveToDestination(ctx context.Context, hostId, stagingPath, destPath string) error {
	cmd := fmt.Sprintf("mkdir -p %s && mv %s %s", shellQuote(parentDir(destPath)), shellQuote(stagingPath), shellQuote(destPath))
	_, err := d.pool.Exec(ctx, hostId, cmd)
	return errors.Wrap(err, "dispatcher: move staged file to destination")
}

func (d *Dispatcher) fail(jobId, partId string, progress domain.DestinationProgress, err error) domain.DestinationProgress {
	progress.Status = domain.DestFailed
	progress.Error = err.Error()
	d.publishProgress(jobId, partId, progress.HostId, progress)
	d.bus.Publish(eventbus.Log{
		Level:   domain.EventLevelError,
		Message: fmt.Sprintf("%s %s on %s: %s", domain.PrefixError, partId, progress.HostId, err.Error()),
		JobId:   jobId,
		PartId:  partId,
		HostId:  progress.HostId,
	})
	return progress
}

func (d *Dispatcher) publishProgress(jobId, partId, hostId string, progress domain.DestinationProgress) {
	d.bus.Publish(eventbus.PartDestProgress{
		JobId:   jobId,
		PartId:  partId,
		HostId:  hostId,
		Status:  progress.Status,
		Percent: progress.Percent,
		Error:   progress.Error,
	})
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func parentDir(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx <= 0 {
		return "/"
	}
	return path[:idx]
}
