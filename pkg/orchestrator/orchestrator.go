// Package orchestrator drives one Job end-to-end per §4.7: plan the
// source folder, package and upload parts one at a time, fan each
// uploaded part out to every destination, and run the bulk extract step
// once all parts have staged everywhere. One Orchestrator instance
// serves every job; each running Job gets its own goroutine, tracked in
// an xsync map so Cancel/Pause/Resume can reach it by id — the same
// concurrent-map approach the Connection Pool uses for its sessions.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/sirupsen/logrus"

	"github.com/yurykabanov/transferd/pkg/appcontext"
	"github.com/yurykabanov/transferd/pkg/domain"
	"github.com/yurykabanov/transferd/pkg/eventbus"
	"github.com/yurykabanov/transferd/pkg/planner"
	"github.com/yurykabanov/transferd/pkg/sshpool"
)

// Planner is the subset of *planner.Planner the Orchestrator needs.
type Planner interface {
	Plan(ctx context.Context, hostId, folderPath string, ceilingBytes int64) ([]planner.Batch, error)
}

// Packager is the subset of *packager.Packager the Orchestrator needs.
type Packager interface {
	PackagePart(ctx context.Context, job *domain.Job, batch planner.Batch, index, total int) (domain.Part, error)
}

// Dispatcher is the subset of *dispatcher.Dispatcher the Orchestrator needs.
// Prepare's tool identity is fixed at the underlying Driver's construction,
// not passed per call.
type Dispatcher interface {
	Prepare(ctx context.Context, hostId string) error
	DeliverPart(ctx context.Context, job *domain.Job, part domain.Part, dest domain.Destination, remoteName string, needsSplit bool) domain.DestinationProgress
	BulkExtract(ctx context.Context, hostId, destFolder, baseName string) error
}

// ConnectionPool is the subset of *sshpool.Pool the Orchestrator needs to
// best-effort kill in-flight remote processes on cancel.
type ConnectionPool interface {
	Exec(ctx context.Context, hostId, cmd string) (sshpool.ExecResult, error)
}

// StoreConfigResolver is the subset of domain.ArchiveStoreConfigRepository
// the Orchestrator needs to turn each Destination's store config id into
// its rclone-style remote name.
type StoreConfigResolver interface {
	FindByID(ctx context.Context, id string) (domain.ArchiveStoreConfig, error)
}

// Publisher is the subset of *eventbus.Bus the Orchestrator needs.
type Publisher interface {
	Publish(event interface{})
}

// JobStore is the subset of domain.JobRepository the Orchestrator needs:
// it persists a Job snapshot when the job starts, after each Part finishes
// distribution, and when the job reaches a terminal state, and loads a
// terminal Job back for Retry. A Part's intermediate transitions
// (packaging, uploading, uploaded, distributing) are not persisted.
type JobStore interface {
	Update(ctx context.Context, job domain.Job) error
	FindByID(ctx context.Context, id string) (domain.Job, error)
}

// Orchestrator is the job loop of §4.7; one instance serves every job.
type Orchestrator struct {
	planner      Planner
	packager     Packager
	dispatcher   Dispatcher
	pool         ConnectionPool
	storeConfigs StoreConfigResolver
	jobs         JobStore
	bus          Publisher
	logger       logrus.FieldLogger

	running *xsync.MapOf[string, *domain.Job]
}

// New constructs an Orchestrator.
func New(p Planner, pk Packager, d Dispatcher, pool ConnectionPool, storeConfigs StoreConfigResolver, jobs JobStore, bus Publisher, logger logrus.FieldLogger) *Orchestrator {
	return &Orchestrator{
		planner:      p,
		packager:     pk,
		dispatcher:   d,
		pool:         pool,
		storeConfigs: storeConfigs,
		jobs:         jobs,
		bus:          bus,
		logger:       logger,
		running:      xsync.NewMapOf[string, *domain.Job](),
	}
}

// Start validates job, fixes its BaseName, transitions it to running, and
// launches its pipeline as an independent goroutine. It returns once the
// job has been persisted in the running state; the pipeline itself runs
// asynchronously and reports terminal state via the event bus.
func (o *Orchestrator) Start(ctx context.Context, job *domain.Job) error {
	if err := job.Validate(); err != nil {
		return err
	}
	if job.BaseName == "" {
		job.BaseName = fmt.Sprintf("transfer_%d", time.Now().UnixMilli())
	}
	job.Status = domain.JobRunning

	if err := o.jobs.Update(ctx, *job); err != nil {
		return errors.Wrap(err, "orchestrator: persist job start")
	}

	o.running.Store(job.Id, job)
	o.bus.Publish(eventbus.JobStarted{JobId: job.Id, Name: job.Name})

	go o.run(context.Background(), job)

	return nil
}

// Cancel sets the cooperative cancel flag and best-effort kills in-flight
// remote processes on the source and every destination; workers observe
// the flag at their next chunk boundary and the pipeline exits on its own.
func (o *Orchestrator) Cancel(ctx context.Context, jobId string) error {
	job, ok := o.running.Load(jobId)
	if !ok {
		return errors.Errorf("orchestrator: job %s is not running", jobId)
	}
	job.SetCancelled()
	job.Status = domain.JobCancelling

	o.killBestEffort(ctx, job.SourceHostId, "zip", "rclone")
	for _, dest := range job.Destinations {
		o.killBestEffort(ctx, dest.HostId, "unzip", "rclone")
	}
	return nil
}

// Pause sets the cooperative pause flag until Resume clears it: the
// Packager task waits before starting its next batch and the
// Dispatcher-driver waits before handing its next part to destinations.
// Work already in flight runs to its end; a single-part retry does not
// check the flag.
func (o *Orchestrator) Pause(jobId string) error {
	job, ok := o.running.Load(jobId)
	if !ok {
		return errors.Errorf("orchestrator: job %s is not running", jobId)
	}
	job.SetPaused(true)
	job.Status = domain.JobPaused
	return nil
}

// Resume clears the pause flag.
func (o *Orchestrator) Resume(jobId string) error {
	job, ok := o.running.Load(jobId)
	if !ok {
		return errors.Errorf("orchestrator: job %s is not running", jobId)
	}
	job.SetPaused(false)
	job.Status = domain.JobRunning
	return nil
}

// Retry implements §7's per-item retry: an operator re-triggers exactly
// one failed Part of a job that has already reached a terminal state.
// RetryCount is incremented, the Part and every one of its
// DestinationProgress slots reset to pending, and the Packager/Dispatcher
// path re-runs from scratch for that Part only — every other Part is left
// untouched. The job is re-planned to recover the Part's original batch
// (Parts do not persist their source file list), which is safe only
// because the Planner is deterministic for the same source folder and
// ceiling.
func (o *Orchestrator) Retry(ctx context.Context, jobId, partId string) error {
	job, err := o.jobs.FindByID(ctx, jobId)
	if err != nil {
		return errors.Wrapf(err, "orchestrator: retry: load job %s", jobId)
	}
	if !job.Status.Terminal() {
		return errors.Errorf("orchestrator: job %s is still running, cannot retry", jobId)
	}

	idx := -1
	for i := range job.Parts {
		if job.Parts[i].Id == partId {
			idx = i
			break
		}
	}
	if idx == -1 {
		return errors.Errorf("orchestrator: job %s has no part %s", jobId, partId)
	}
	if job.Parts[idx].Status != domain.PartFailed {
		return errors.Errorf("orchestrator: part %s is not in a failed state", partId)
	}

	job.Parts[idx].RetryCount++
	job.Parts[idx].Status = domain.PartPending
	for i := range job.Parts[idx].Destinations {
		job.Parts[idx].Destinations[i].Reset()
	}
	job.Status = domain.JobRunning

	if err := o.jobs.Update(ctx, job); err != nil {
		return errors.Wrap(err, "orchestrator: retry: persist reset")
	}

	o.running.Store(job.Id, &job)
	o.bus.Publish(eventbus.Log{Level: domain.EventLevelInfo, Message: fmt.Sprintf("%s retrying part %s", domain.PrefixQueue, partId), JobId: job.Id, PartId: partId})

	go o.runRetry(context.Background(), &job, idx)

	return nil
}

// runRetry re-packages and re-distributes exactly one Part, in its own
// goroutine tracked the same way Start's pipeline is, so Cancel/Pause can
// still reach a job that is only retrying.
func (o *Orchestrator) runRetry(ctx context.Context, job *domain.Job, partIdx int) {
	defer o.running.Delete(job.Id)

	ctx = appcontext.WithJobId(ctx, job.Id)
	logger := appcontext.LoggerFromContext(o.logger, ctx)

	batches, err := o.planner.Plan(ctx, job.SourceHostId, job.SourceFolderPath, job.PartSizeCeilingBytes())
	if err != nil {
		o.fail(ctx, job, err)
		return
	}
	needsSplit := planner.NeedsSplit(batches)

	original := job.Parts[partIdx]
	batchIdx := original.Index - 1
	if batchIdx < 0 || batchIdx >= len(batches) {
		o.fail(ctx, job, errors.Errorf("orchestrator: retry: part %s index %d out of range after re-plan", original.Id, original.Index))
		return
	}

	destsReady := o.prepareDestinations(ctx, job)

	part, err := o.packager.PackagePart(ctx, job, batches[batchIdx], original.Index, len(batches))
	if err != nil {
		o.fail(ctx, job, err)
		return
	}
	part.RetryCount = original.RetryCount

	o.bus.Publish(eventbus.PartStateChanged{JobId: job.Id, PartId: part.Id, Status: domain.PartDistributing, Percent: 0})
	part.Status = domain.PartDistributing
	part.Destinations = o.distribute(ctx, job, part, destsReady, needsSplit)

	if part.AllDestinationsDone() {
		part.Status = domain.PartCompleted
		for _, d := range part.Destinations {
			if d.Status == domain.DestFailed {
				part.Status = domain.PartFailed
				break
			}
		}
	}
	job.Parts[partIdx] = part

	job.Status = domain.JobCompleted
	for _, p := range job.Parts {
		if p.Status == domain.PartFailed {
			job.Status = domain.JobFailed
			break
		}
	}
	if err := o.jobs.Update(ctx, *job); err != nil {
		logger.WithError(err).Warn("orchestrator: failed to persist job after retry")
	}

	o.bus.Publish(eventbus.PartStateChanged{JobId: job.Id, PartId: part.Id, Status: part.Status, Percent: 100})
	if job.Status == domain.JobCompleted {
		o.bus.Publish(eventbus.JobCompleted{JobId: job.Id})
	} else {
		o.bus.Publish(eventbus.JobFailed{JobId: job.Id, Error: fmt.Sprintf("retry: part %s failed again", part.Id)})
	}
}

func (o *Orchestrator) killBestEffort(ctx context.Context, hostId string, processNames ...string) {
	for _, name := range processNames {
		if _, err := o.pool.Exec(ctx, hostId, "pkill -f "+name); err != nil {
			o.logger.WithError(err).WithField("host_id", hostId).Debug("orchestrator: best-effort kill found nothing to kill")
		}
	}
}

// packagedPart is one slot on the uploaded-part queue: either a
// successfully packaged Part, or the terminal error that stops the
// Packager task (and, once drained, the Dispatcher-driver too).
type packagedPart struct {
	part domain.Part
	err  error
}

// run drives one Job per §4.7/§5: the Packager runs as its own
// long-running task, serial over batches, feeding a bounded (capacity 1)
// channel — the uploaded-part queue. run() itself is the Dispatcher-driver:
// it polls that queue and fans each part out to every destination as soon
// as it arrives, so a destination downloading/extracting part i overlaps
// with the source already packaging part i+1, instead of the two stages
// summing serially.
func (o *Orchestrator) run(ctx context.Context, job *domain.Job) {
	defer o.running.Delete(job.Id)

	ctx = appcontext.WithJobId(ctx, job.Id)
	logger := appcontext.LoggerFromContext(o.logger, ctx)

	// Source-side tool capability is fatal to the whole job if it cannot be
	// resolved: every part's upload depends on it, unlike a destination's
	// preparation, which only takes that one destination down (§7).
	if err := o.dispatcher.Prepare(ctx, job.SourceHostId); err != nil {
		o.fail(ctx, job, err)
		return
	}

	destsReady := o.prepareDestinations(ctx, job)

	batches, err := o.planner.Plan(ctx, job.SourceHostId, job.SourceFolderPath, job.PartSizeCeilingBytes())
	if err != nil {
		o.fail(ctx, job, err)
		return
	}
	total := len(batches)
	needsSplit := planner.NeedsSplit(batches)

	o.bus.Publish(eventbus.JobStepAdvanced{JobId: job.Id, Step: 1, TotalSteps: total, Message: "packaging started"})

	queue := make(chan packagedPart, 1)

	var packageWg sync.WaitGroup
	packageWg.Add(1)
	go o.packagerLoop(ctx, job, batches, total, queue, &packageWg)

	var packageErr error
	cancelled := false

	for pp := range queue {
		if pp.err != nil {
			if domain.IsKind(pp.err, domain.KindCancelled) {
				cancelled = true
			} else {
				packageErr = pp.err
			}
			break
		}

		o.bus.Publish(eventbus.Log{Level: domain.EventLevelDebug, Message: fmt.Sprintf("%s part %s dequeued", domain.PrefixQueue, pp.part.Id), JobId: job.Id, PartId: pp.part.Id})

		o.waitWhilePaused(job)

		part := pp.part
		o.bus.Publish(eventbus.PartStateChanged{JobId: job.Id, PartId: part.Id, Status: domain.PartDistributing, Percent: 0})
		part.Status = domain.PartDistributing
		part.Destinations = o.distribute(ctx, job, part, destsReady, needsSplit)

		if part.AllDestinationsDone() {
			part.Status = domain.PartCompleted
			for _, d := range part.Destinations {
				if d.Status == domain.DestFailed {
					part.Status = domain.PartFailed
					break
				}
			}
		}

		job.Parts = append(job.Parts, part)
		if err := o.jobs.Update(ctx, *job); err != nil {
			logger.WithError(err).Warn("orchestrator: failed to persist job after part completion")
		}

		o.bus.Publish(eventbus.PartStateChanged{JobId: job.Id, PartId: part.Id, Status: part.Status, Percent: 100})

		if job.IsCancelled() {
			cancelled = true
			break
		}
	}

	// Drain whatever the Packager task still has in flight so it can exit
	// its own send and release the goroutine, even though nothing here
	// consumes the values anymore.
	for range queue {
	}
	packageWg.Wait()

	if cancelled || job.IsCancelled() {
		o.cancelled(ctx, job)
		return
	}
	if packageErr != nil {
		o.fail(ctx, job, packageErr)
		return
	}

	if job.AutoExtract && needsSplit {
		o.bulkExtractAll(ctx, job)
	}

	job.Status = domain.JobCompleted
	if err := o.jobs.Update(ctx, *job); err != nil {
		logger.WithError(err).Warn("orchestrator: failed to persist job completion")
	}
	o.bus.Publish(eventbus.JobCompleted{JobId: job.Id})
	o.bus.Publish(eventbus.Log{Level: domain.EventLevelInfo, Message: domain.PrefixComplete + " job finished", JobId: job.Id})
}

// packagerLoop is the Packager task of §5: serial over batches, blocking
// on the bounded queue whenever the Dispatcher-driver is still busy with
// the previous part. It is the sole producer; it closes queue on exit,
// whether that exit is normal (batches exhausted), a packaging failure,
// or a cooperative cancel.
func (o *Orchestrator) packagerLoop(ctx context.Context, job *domain.Job, batches []planner.Batch, total int, queue chan<- packagedPart, wg *sync.WaitGroup) {
	defer wg.Done()
	defer close(queue)

	for i, batch := range batches {
		o.waitWhilePaused(job)
		if job.IsCancelled() {
			queue <- packagedPart{err: domain.NewCancelledError()}
			return
		}

		part, err := o.packager.PackagePart(ctx, job, batch, i+1, total)
		if err != nil {
			queue <- packagedPart{err: err}
			return
		}

		o.bus.Publish(eventbus.Log{Level: domain.EventLevelDebug, Message: fmt.Sprintf("%s part %s queued", domain.PrefixQueue, part.Id), JobId: job.Id, PartId: part.Id})

		queue <- packagedPart{part: part}
	}
}

// prepareDestinations runs Dispatcher.Prepare once per destination and
// returns which destinations are ready to receive parts; a destination
// that fails preparation is recorded here and every one of its
// DestinationProgress slots is marked failed for every part, per §4.5.
func (o *Orchestrator) prepareDestinations(ctx context.Context, job *domain.Job) map[string]error {
	ready := make(map[string]error, len(job.Destinations))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, dest := range job.Destinations {
		wg.Add(1)
		go func(dest domain.Destination) {
			defer wg.Done()
			err := o.dispatcher.Prepare(ctx, dest.HostId)
			mu.Lock()
			ready[dest.HostId] = err
			mu.Unlock()
			if err != nil {
				o.bus.Publish(eventbus.Log{
					Level:   domain.EventLevelError,
					Message: fmt.Sprintf("%s preparation failed on %s: %s", domain.PrefixError, dest.HostId, err.Error()),
					JobId:   job.Id,
					HostId:  dest.HostId,
				})
			}
		}(dest)
	}
	wg.Wait()

	return ready
}

// distribute fans a freshly-uploaded part out to every destination in
// parallel and waits for all of them, per §4.7's conservative contract.
func (o *Orchestrator) distribute(ctx context.Context, job *domain.Job, part domain.Part, destsReady map[string]error, needsSplit bool) []domain.DestinationProgress {
	results := make([]domain.DestinationProgress, len(job.Destinations))
	var wg sync.WaitGroup

	for i, dest := range job.Destinations {
		wg.Add(1)
		go func(i int, dest domain.Destination) {
			defer wg.Done()

			if prepErr := destsReady[dest.HostId]; prepErr != nil {
				results[i] = domain.DestinationProgress{HostId: dest.HostId, Status: domain.DestFailed, Error: prepErr.Error()}
				return
			}

			remoteName, err := o.resolveRemoteName(ctx, dest.StoreConfigId)
			if err != nil {
				results[i] = domain.DestinationProgress{HostId: dest.HostId, Status: domain.DestFailed, Error: err.Error()}
				return
			}

			results[i] = o.dispatcher.DeliverPart(ctx, job, part, dest, remoteName, needsSplit)
		}(i, dest)
	}
	wg.Wait()

	return results
}

// bulkExtractAll runs §4.6's bulk extract for every destination in
// parallel once every part has staged everywhere.
func (o *Orchestrator) bulkExtractAll(ctx context.Context, job *domain.Job) {
	var wg sync.WaitGroup
	for _, dest := range job.Destinations {
		wg.Add(1)
		go func(dest domain.Destination) {
			defer wg.Done()
			if err := o.dispatcher.BulkExtract(ctx, dest.HostId, dest.FolderPath, job.BaseName); err != nil {
				o.bus.Publish(eventbus.Log{
					Level:   domain.EventLevelError,
					Message: fmt.Sprintf("%s bulk extract failed on %s: %s", domain.PrefixError, dest.HostId, err.Error()),
					JobId:   job.Id,
					HostId:  dest.HostId,
				})
			}
		}(dest)
	}
	wg.Wait()
}

func (o *Orchestrator) resolveRemoteName(ctx context.Context, storeConfigId string) (string, error) {
	cfg, err := o.storeConfigs.FindByID(ctx, storeConfigId)
	if err != nil {
		return "", errors.Wrapf(err, "orchestrator: resolve store config %s", storeConfigId)
	}
	return cfg.RemoteName, nil
}

// waitWhilePaused polls the pause flag at ~1s per §4.7; no new remote
// processes start while paused.
func (o *Orchestrator) waitWhilePaused(job *domain.Job) {
	for job.IsPaused() && !job.IsCancelled() {
		time.Sleep(time.Second)
	}
}

func (o *Orchestrator) fail(ctx context.Context, job *domain.Job, err error) {
	job.Status = domain.JobFailed
	if updErr := o.jobs.Update(ctx, *job); updErr != nil {
		o.logger.WithError(updErr).Warn("orchestrator: failed to persist job failure")
	}
	o.bus.Publish(eventbus.JobFailed{JobId: job.Id, Error: err.Error()})
	o.bus.Publish(eventbus.Log{Level: domain.EventLevelError, Message: domain.PrefixError + " " + err.Error(), JobId: job.Id})
}

func (o *Orchestrator) cancelled(ctx context.Context, job *domain.Job) {
	job.Status = domain.JobCancelled
	if err := o.jobs.Update(ctx, *job); err != nil {
		o.logger.WithError(err).Warn("orchestrator: failed to persist job cancellation")
	}
	o.bus.Publish(eventbus.JobCancelled{JobId: job.Id})
	o.bus.Publish(eventbus.Log{Level: domain.EventLevelInfo, Message: domain.PrefixCancelled + " job cancelled", JobId: job.Id})
}
