// Package packager implements the source-side worker of §4.4: it turns
// one Planner batch into an archive part on the source host and uploads
// it to the intermediate store, all via remote shell commands — the
// files themselves never pass through this process.
package packager

import (
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/yurykabanov/transferd/pkg/appcontext"
	"github.com/yurykabanov/transferd/pkg/domain"
	"github.com/yurykabanov/transferd/pkg/eventbus"
	"github.com/yurykabanov/transferd/pkg/objectstore"
	"github.com/yurykabanov/transferd/pkg/planner"
	"github.com/yurykabanov/transferd/pkg/sshpool"
)

// ConnectionPool is the subset of *sshpool.Pool the Packager needs.
type ConnectionPool interface {
	Exec(ctx context.Context, hostId, cmd string) (sshpool.ExecResult, error)
	ExecStreaming(ctx context.Context, hostId, cmd string, onChunk sshpool.ChunkFunc) (sshpool.ExecResult, error)
}

// StoreUploader is the subset of *objectstore.Driver the Packager needs.
type StoreUploader interface {
	UploadFile(ctx context.Context, hostId, localPath, remoteName, remotePath string, onProgress objectstore.ProgressFunc) error
}

// Publisher is the subset of *eventbus.Bus the Packager needs.
type Publisher interface {
	Publish(event interface{})
}

// StoreConfigResolver is the subset of domain.ArchiveStoreConfigRepository
// the Packager needs to turn a Job's upload-side config id into the
// rclone-style remote name the StoreUploader expects.
type StoreConfigResolver interface {
	FindByID(ctx context.Context, id string) (domain.ArchiveStoreConfig, error)
}

// Packager is the serial, N=1-concurrency source-side worker of §4.7.
type Packager struct {
	pool        ConnectionPool
	uploader    StoreUploader
	storeConfig StoreConfigResolver
	bus         Publisher
	logger      logrus.FieldLogger
}

// New constructs a Packager.
func New(pool ConnectionPool, uploader StoreUploader, storeConfig StoreConfigResolver, bus Publisher, logger logrus.FieldLogger) *Packager {
	return &Packager{pool: pool, uploader: uploader, storeConfig: storeConfig, bus: bus, logger: logger}
}

const stagingDir = "/tmp"

// Filename computes a part's filename per §4.4's naming convention:
// "<baseName>.zip" for the single-archive path, "<baseName>.part<NNN>.zip"
// (3-digit, 1-based) for split archives.
func Filename(baseName string, index, total int) string {
	if total <= 1 {
		return baseName + ".zip"
	}
	return fmt.Sprintf("%s.part%03d.zip", baseName, index)
}

// PackagePart archives batch as part `index` of `total` on job's source
// host, uploads it to the store, and returns the resulting Part. The
// returned Part's Status is Uploaded on success, with a destination list
// built from job.Destinations; this method publishes PartUploaded itself.
func (p *Packager) PackagePart(ctx context.Context, job *domain.Job, batch planner.Batch, index, total int) (domain.Part, error) {
	part := domain.Part{
		Id:       uuid.New().String(),
		Index:    index,
		Filename: Filename(job.BaseName, index, total),
		Status:   domain.PartPackaging,
	}

	ctx = appcontext.WithJobId(ctx, job.Id)
	ctx = appcontext.WithHostId(ctx, job.SourceHostId)
	ctx = appcontext.WithPartId(ctx, part.Id)
	logger := appcontext.LoggerFromContext(p.logger, ctx)

	if job.IsCancelled() {
		return part, domain.NewCancelledError()
	}

	archivePath := stagingDir + "/" + part.Filename
	filelistPath := fmt.Sprintf("%s/%s.filelist", stagingDir, part.Filename)

	if err := p.writeFileList(ctx, job.SourceHostId, filelistPath, batch); err != nil {
		return part, domain.NewPackageError(part.Id, err)
	}

	p.publishLog(job.Id, part.Id, job.SourceHostId, domain.PrefixZip+" creating "+part.Filename)
	cmd := fmt.Sprintf("cd %s && zip -q %s -@ < %s", shellQuote(job.SourceFolderPath), shellQuote(archivePath), shellQuote(filelistPath))
	if _, err := p.pool.ExecStreaming(ctx, job.SourceHostId, cmd, nil); err != nil {
		return part, domain.NewPackageError(part.Id, errors.Wrap(err, "packager: archive creation"))
	}

	size, err := p.statSize(ctx, job.SourceHostId, archivePath)
	if err != nil {
		return part, domain.NewPackageError(part.Id, err)
	}
	part.SizeBytes = size

	if _, err := p.pool.Exec(ctx, job.SourceHostId, "rm -f "+shellQuote(filelistPath)); err != nil {
		logger.WithError(err).Warn("packager: failed to remove file-list")
	}

	if job.IsCancelled() {
		return part, domain.NewCancelledError()
	}

	part.Status = domain.PartUploading
	p.publishLog(job.Id, part.Id, job.SourceHostId, fmt.Sprintf("%s uploading %s (%s)", domain.PrefixUpload, part.Filename, humanize.Bytes(uint64(size))))

	storeRemotePath := strings.TrimRight(job.StoreFolder, "/") + "/" + part.Filename
	throttle := newThrottle(total)

	remoteName, err := p.resolveRemoteName(ctx, job.SourceStoreConfigId)
	if err != nil {
		return part, domain.NewPackageError(part.Id, err)
	}

	err = p.uploader.UploadFile(ctx, job.SourceHostId, archivePath, remoteName, storeRemotePath, func(percent int, speed string) {
		jobPercent := int((float64(index-1) + float64(percent)/100) / float64(total) * 100)
		p.bus.Publish(eventbus.PartStateChanged{JobId: job.Id, PartId: part.Id, Status: domain.PartUploading, Percent: percent})
		if throttle.crossedBoundary(percent) {
			p.publishLog(job.Id, part.Id, job.SourceHostId, fmt.Sprintf("%s %s part %d/%d %d%% (job %d%%, %s)", domain.PrefixUpload, part.Filename, index, total, percent, jobPercent, speed))
		}
	})
	if err != nil {
		return part, domain.NewUploadError(part.Id, err)
	}

	part.Status = domain.PartUploaded
	part.StorePath = storeRemotePath
	part.Destinations = domain.NewDestinationProgresses(destinationHostIds(job))

	if job.DeleteLocalAfterUpload {
		if _, err := p.pool.Exec(ctx, job.SourceHostId, "rm -f "+shellQuote(archivePath)); err != nil {
			logger.WithError(err).Warn("packager: failed to remove local archive after upload")
		}
	}

	p.bus.Publish(eventbus.PartUploaded{
		JobId:        job.Id,
		PartId:       part.Id,
		Filename:     part.Filename,
		StorePath:    part.StorePath,
		Size:         part.SizeBytes,
		Destinations: part.Destinations,
	})
	p.publishLog(job.Id, part.Id, job.SourceHostId, fmt.Sprintf("%s %s uploaded", domain.PrefixComplete, part.Filename))

	return part, nil
}

func (p *Packager) writeFileList(ctx context.Context, hostId, filelistPath string, batch planner.Batch) error {
	var sb strings.Builder
	for _, f := range batch.Files {
		sb.WriteString(f.RelPath)
		sb.WriteByte('\n')
	}
	cmd := fmt.Sprintf("cat > %s << 'TRANSFERD_FILELIST_EOF'\n%sTRANSFERD_FILELIST_EOF", shellQuote(filelistPath), sb.String())
	_, err := p.pool.Exec(ctx, hostId, cmd)
	return errors.Wrap(err, "packager: write file-list")
}

func (p *Packager) statSize(ctx context.Context, hostId, path string) (int64, error) {
	result, err := p.pool.Exec(ctx, hostId, "stat -c%s "+shellQuote(path))
	if err != nil {
		return 0, errors.Wrap(err, "packager: stat archive")
	}
	var size int64
	if _, err := fmt.Sscanf(strings.TrimSpace(result.Stdout), "%d", &size); err != nil {
		return 0, errors.Wrapf(err, "packager: parse stat output %q", result.Stdout)
	}
	return size, nil
}

func (p *Packager) publishLog(jobId, partId, hostId, message string) {
	p.bus.Publish(eventbus.Log{Level: domain.EventLevelInfo, Message: message, JobId: jobId, PartId: partId, HostId: hostId})
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// destinationHostIds is a small helper kept local to avoid forcing every
// caller to duplicate the projection.
func destinationHostIds(job *domain.Job) []string {
	ids := make([]string, len(job.Destinations))
	for i, d := range job.Destinations {
		ids[i] = d.HostId
	}
	return ids
}

// resolveRemoteName turns the job's upload-side store config id into the
// rclone-style remote name the StoreUploader expects; a destination may
// route through a different store config when it downloads, so the
// Packager resolves its own binding rather than borrowing a destination's.
func (p *Packager) resolveRemoteName(ctx context.Context, storeConfigId string) (string, error) {
	cfg, err := p.storeConfig.FindByID(ctx, storeConfigId)
	if err != nil {
		return "", errors.Wrapf(err, "packager: resolve store config %s", storeConfigId)
	}
	return cfg.RemoteName, nil
}

// throttle implements §4.4's progress-log throttling: emit a log line
// only when the reported percentage crosses the next 20% boundary
// (split archives) or 10% boundary (single archive).
type throttle struct {
	step int
	last int
}

func newThrottle(totalParts int) *throttle {
	step := 10
	if totalParts > 1 {
		step = 20
	}
	return &throttle{step: step, last: -1}
}

func (t *throttle) crossedBoundary(percent int) bool {
	boundary := (percent / t.step) * t.step
	if boundary != t.last {
		t.last = boundary
		return true
	}
	return false
}
