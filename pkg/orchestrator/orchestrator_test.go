package orchestrator

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/yurykabanov/transferd/pkg/domain"
	"github.com/yurykabanov/transferd/pkg/planner"
	"github.com/yurykabanov/transferd/pkg/sshpool"
)

type plannerMock struct {
	mock.Mock
}

func (m *plannerMock) Plan(ctx context.Context, hostId, folderPath string, ceilingBytes int64) ([]planner.Batch, error) {
	args := m.Called(ctx, hostId, folderPath, ceilingBytes)
	return args.Get(0).([]planner.Batch), args.Error(1)
}

type packagerMock struct {
	mock.Mock
}

func (m *packagerMock) PackagePart(ctx context.Context, job *domain.Job, batch planner.Batch, index, total int) (domain.Part, error) {
	args := m.Called(ctx, job, batch, index, total)
	return args.Get(0).(domain.Part), args.Error(1)
}

type dispatcherMock struct {
	mock.Mock
}

func (m *dispatcherMock) Prepare(ctx context.Context, hostId string) error {
	args := m.Called(ctx, hostId)
	return args.Error(0)
}

func (m *dispatcherMock) DeliverPart(ctx context.Context, job *domain.Job, part domain.Part, dest domain.Destination, remoteName string, needsSplit bool) domain.DestinationProgress {
	args := m.Called(ctx, job, part, dest, remoteName, needsSplit)
	return args.Get(0).(domain.DestinationProgress)
}

func (m *dispatcherMock) BulkExtract(ctx context.Context, hostId, destFolder, baseName string) error {
	args := m.Called(ctx, hostId, destFolder, baseName)
	return args.Error(0)
}

type poolMock struct {
	mock.Mock
}

func (m *poolMock) Exec(ctx context.Context, hostId, cmd string) (sshpool.ExecResult, error) {
	args := m.Called(ctx, hostId, cmd)
	return args.Get(0).(sshpool.ExecResult), args.Error(1)
}

type storeConfigMock struct {
	mock.Mock
}

func (m *storeConfigMock) FindByID(ctx context.Context, id string) (domain.ArchiveStoreConfig, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.ArchiveStoreConfig), args.Error(1)
}

type jobStoreMock struct {
	mock.Mock
}

func (m *jobStoreMock) Update(ctx context.Context, job domain.Job) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *jobStoreMock) FindByID(ctx context.Context, id string) (domain.Job, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.Job), args.Error(1)
}

type busMock struct {
	mock.Mock
}

func (m *busMock) Publish(event interface{}) {
	m.Called(event)
}

func newTestJob() *domain.Job {
	return &domain.Job{
		Id:                 "job-1",
		Name:               "nightly",
		SourceHostId:       "host-src",
		SourceFolderPath:   "/data/export",
		SourceStoreConfigId: "cfg-src",
		StoreFolder:        "/backups/job-1",
		PartSizeCeilingMiB: 1024,
		Destinations: []domain.Destination{
			{HostId: "host-a", FolderPath: "/restore", StoreConfigId: "cfg-a"},
		},
	}
}

func testBatch() planner.Batch {
	return planner.Batch{
		Files:     []planner.FileEntry{{Path: "/data/export/a.txt", RelPath: "a.txt", Size: 10}},
		TotalSize: 10,
	}
}

func newOrchestrator(p *plannerMock, pk *packagerMock, d *dispatcherMock, pool *poolMock, sc *storeConfigMock, js *jobStoreMock, bus *busMock) *Orchestrator {
	return New(p, pk, d, pool, sc, js, bus, logrus.New())
}

func anyBus() *busMock {
	bus := new(busMock)
	bus.On("Publish", mock.Anything).Return()
	return bus
}

func TestStart_ValidatesAndPersistsRunning(t *testing.T) {
	job := newTestJob()

	// Start persists the running state synchronously, before run()'s
	// background goroutine touches the job again; block that goroutine on
	// Plan so the assertions below can't race with it.
	block := make(chan struct{})

	js := new(jobStoreMock)
	js.On("Update", mock.Anything, mock.Anything).Return(nil)

	bus := anyBus()

	pl := new(plannerMock)
	pl.On("Plan", mock.Anything, "host-src", "/data/export", int64(1024*1024*1024)).
		Run(func(args mock.Arguments) { <-block }).
		Return([]planner.Batch{}, nil)

	d := new(dispatcherMock)
	d.On("Prepare", mock.Anything, "host-src").Return(nil)
	d.On("Prepare", mock.Anything, "host-a").Return(nil)

	o := newOrchestrator(pl, new(packagerMock), d, new(poolMock), new(storeConfigMock), js, bus)

	err := o.Start(context.Background(), job)

	assert.NoError(t, err)
	assert.Equal(t, domain.JobRunning, job.Status)
	_, isRunning := o.running.Load(job.Id)
	assert.True(t, isRunning)

	close(block)
}

func TestStart_RejectsInvalidJob(t *testing.T) {
	job := newTestJob()
	job.Destinations = nil

	js := new(jobStoreMock)
	o := newOrchestrator(new(plannerMock), new(packagerMock), new(dispatcherMock), new(poolMock), new(storeConfigMock), js, new(busMock))

	err := o.Start(context.Background(), job)

	assert.Error(t, err)
	js.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

// distributing returns p as DeliverPart receives it: run() and runRetry()
// move a packaged Part to PartDistributing before fanning it out.
func distributing(p domain.Part) domain.Part {
	p.Status = domain.PartDistributing
	return p
}

func TestRun_HappyPath_SingleBatchSingleDestination(t *testing.T) {
	job := newTestJob()
	batch := testBatch()

	js := new(jobStoreMock)
	js.On("Update", mock.Anything, mock.Anything).Return(nil)

	bus := anyBus()

	pl := new(plannerMock)
	pl.On("Plan", mock.Anything, "host-src", "/data/export", int64(1024*1024*1024)).
		Return([]planner.Batch{batch}, nil)

	part := domain.Part{Id: "part-1", Filename: "transfer_1.zip", Status: domain.PartUploaded}

	pk := new(packagerMock)
	pk.On("PackagePart", mock.Anything, job, batch, 1, 1).Return(part, nil)

	sc := new(storeConfigMock)
	sc.On("FindByID", mock.Anything, "cfg-a").Return(domain.ArchiveStoreConfig{Id: "cfg-a", RemoteName: "gdrive"}, nil)

	d := new(dispatcherMock)
	d.On("Prepare", mock.Anything, "host-src").Return(nil)
	d.On("Prepare", mock.Anything, "host-a").Return(nil)
	d.On("DeliverPart", mock.Anything, job, distributing(part), job.Destinations[0], "gdrive", false).
		Return(domain.DestinationProgress{HostId: "host-a", Status: domain.DestCompleted, Percent: 100})

	o := newOrchestrator(pl, pk, d, new(poolMock), sc, js, bus)

	// run() is normally launched in its own goroutine by Start; invoke it
	// synchronously here so assertions below observe its final state.
	o.run(context.Background(), job)

	assert.Equal(t, domain.JobCompleted, job.Status)
	assert.Len(t, job.Parts, 1)
	assert.Equal(t, domain.PartCompleted, job.Parts[0].Status)
	assert.Equal(t, domain.DestCompleted, job.Parts[0].Destinations[0].Status)
	_, stillRunning := o.running.Load(job.Id)
	assert.False(t, stillRunning)

	d.AssertExpectations(t)
	pk.AssertExpectations(t)
}

func TestRun_PackagerFails_MarksJobFailed(t *testing.T) {
	job := newTestJob()
	batch := testBatch()

	js := new(jobStoreMock)
	js.On("Update", mock.Anything, mock.Anything).Return(nil)

	bus := anyBus()

	pl := new(plannerMock)
	pl.On("Plan", mock.Anything, "host-src", "/data/export", int64(1024*1024*1024)).
		Return([]planner.Batch{batch}, nil)

	pk := new(packagerMock)
	pk.On("PackagePart", mock.Anything, job, batch, 1, 1).
		Return(domain.Part{}, assert.AnError)

	d := new(dispatcherMock)
	d.On("Prepare", mock.Anything, "host-src").Return(nil)
	d.On("Prepare", mock.Anything, "host-a").Return(nil)

	o := newOrchestrator(pl, pk, d, new(poolMock), new(storeConfigMock), js, bus)

	o.run(context.Background(), job)

	assert.Equal(t, domain.JobFailed, job.Status)
	d.AssertNotCalled(t, "DeliverPart", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_CancelledBeforeFirstBatch_MarksJobCancelled(t *testing.T) {
	job := newTestJob()
	job.SetCancelled()
	batch := testBatch()

	js := new(jobStoreMock)
	js.On("Update", mock.Anything, mock.Anything).Return(nil)

	bus := anyBus()

	pl := new(plannerMock)
	pl.On("Plan", mock.Anything, "host-src", "/data/export", int64(1024*1024*1024)).
		Return([]planner.Batch{batch}, nil)

	d := new(dispatcherMock)
	d.On("Prepare", mock.Anything, "host-src").Return(nil)
	d.On("Prepare", mock.Anything, "host-a").Return(nil)

	pk := new(packagerMock)

	o := newOrchestrator(pl, pk, d, new(poolMock), new(storeConfigMock), js, bus)

	o.run(context.Background(), job)

	assert.Equal(t, domain.JobCancelled, job.Status)
	pk.AssertNotCalled(t, "PackagePart", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_PlanFails_MarksJobFailed(t *testing.T) {
	job := newTestJob()

	js := new(jobStoreMock)
	js.On("Update", mock.Anything, mock.Anything).Return(nil)

	bus := anyBus()

	pl := new(plannerMock)
	pl.On("Plan", mock.Anything, "host-src", "/data/export", int64(1024*1024*1024)).
		Return([]planner.Batch(nil), assert.AnError)

	d := new(dispatcherMock)
	d.On("Prepare", mock.Anything, "host-src").Return(nil)
	d.On("Prepare", mock.Anything, "host-a").Return(nil)

	o := newOrchestrator(pl, new(packagerMock), d, new(poolMock), new(storeConfigMock), js, bus)

	o.run(context.Background(), job)

	assert.Equal(t, domain.JobFailed, job.Status)
}

func TestRun_SourcePrepareFails_MarksJobFailed(t *testing.T) {
	job := newTestJob()

	js := new(jobStoreMock)
	js.On("Update", mock.Anything, mock.Anything).Return(nil)

	bus := anyBus()

	pl := new(plannerMock)

	d := new(dispatcherMock)
	d.On("Prepare", mock.Anything, "host-src").Return(assert.AnError)

	o := newOrchestrator(pl, new(packagerMock), d, new(poolMock), new(storeConfigMock), js, bus)

	o.run(context.Background(), job)

	assert.Equal(t, domain.JobFailed, job.Status)
	pl.AssertNotCalled(t, "Plan", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	d.AssertNotCalled(t, "Prepare", mock.Anything, "host-a")
}

func TestRun_BulkExtract_OnlyWhenAutoExtractAndNeedsSplit(t *testing.T) {
	job := newTestJob()
	job.AutoExtract = true

	batch1 := testBatch()
	batch2 := testBatch()

	js := new(jobStoreMock)
	js.On("Update", mock.Anything, mock.Anything).Return(nil)
	bus := anyBus()

	pl := new(plannerMock)
	pl.On("Plan", mock.Anything, "host-src", "/data/export", int64(1024*1024*1024)).
		Return([]planner.Batch{batch1, batch2}, nil)

	part1 := domain.Part{Id: "part-1", Status: domain.PartUploaded}
	part2 := domain.Part{Id: "part-2", Status: domain.PartUploaded}

	pk := new(packagerMock)
	pk.On("PackagePart", mock.Anything, job, batch1, 1, 2).Return(part1, nil)
	pk.On("PackagePart", mock.Anything, job, batch2, 2, 2).Return(part2, nil)

	sc := new(storeConfigMock)
	sc.On("FindByID", mock.Anything, "cfg-a").Return(domain.ArchiveStoreConfig{Id: "cfg-a", RemoteName: "gdrive"}, nil)

	completed := domain.DestinationProgress{HostId: "host-a", Status: domain.DestCompleted, Percent: 100}

	d := new(dispatcherMock)
	d.On("Prepare", mock.Anything, "host-src").Return(nil)
	d.On("Prepare", mock.Anything, "host-a").Return(nil)
	d.On("DeliverPart", mock.Anything, job, distributing(part1), job.Destinations[0], "gdrive", true).Return(completed)
	d.On("DeliverPart", mock.Anything, job, distributing(part2), job.Destinations[0], "gdrive", true).Return(completed)
	d.On("BulkExtract", mock.Anything, "host-a", "/restore", job.BaseName).Return(nil)

	o := newOrchestrator(pl, pk, d, new(poolMock), sc, js, bus)

	o.run(context.Background(), job)

	assert.Equal(t, domain.JobCompleted, job.Status)
	d.AssertExpectations(t)
}

func TestRun_NoSplit_SkipsBulkExtractEvenWithAutoExtract(t *testing.T) {
	job := newTestJob()
	job.AutoExtract = true
	batch := testBatch()

	js := new(jobStoreMock)
	js.On("Update", mock.Anything, mock.Anything).Return(nil)
	bus := anyBus()

	pl := new(plannerMock)
	pl.On("Plan", mock.Anything, "host-src", "/data/export", int64(1024*1024*1024)).
		Return([]planner.Batch{batch}, nil)

	part := domain.Part{Id: "part-1", Status: domain.PartUploaded}

	pk := new(packagerMock)
	pk.On("PackagePart", mock.Anything, job, batch, 1, 1).Return(part, nil)

	sc := new(storeConfigMock)
	sc.On("FindByID", mock.Anything, "cfg-a").Return(domain.ArchiveStoreConfig{Id: "cfg-a", RemoteName: "gdrive"}, nil)

	d := new(dispatcherMock)
	d.On("Prepare", mock.Anything, "host-src").Return(nil)
	d.On("Prepare", mock.Anything, "host-a").Return(nil)
	d.On("DeliverPart", mock.Anything, job, distributing(part), job.Destinations[0], "gdrive", false).
		Return(domain.DestinationProgress{HostId: "host-a", Status: domain.DestCompleted, Percent: 100})

	o := newOrchestrator(pl, pk, d, new(poolMock), sc, js, bus)

	o.run(context.Background(), job)

	assert.Equal(t, domain.JobCompleted, job.Status)
	d.AssertNotCalled(t, "BulkExtract", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPrepareDestinations_IsolatesFailureToThatDestination(t *testing.T) {
	job := newTestJob()
	job.Destinations = append(job.Destinations, domain.Destination{HostId: "host-b", FolderPath: "/restore", StoreConfigId: "cfg-b"})

	d := new(dispatcherMock)
	d.On("Prepare", mock.Anything, "host-a").Return(nil)
	d.On("Prepare", mock.Anything, "host-b").Return(assert.AnError)

	bus := anyBus()

	o := newOrchestrator(new(plannerMock), new(packagerMock), d, new(poolMock), new(storeConfigMock), new(jobStoreMock), bus)

	ready := o.prepareDestinations(context.Background(), job)

	assert.NoError(t, ready["host-a"])
	assert.Error(t, ready["host-b"])
}

func TestDistribute_DestinationNotReady_SkipsDeliverPart(t *testing.T) {
	job := newTestJob()
	part := domain.Part{Id: "part-1"}

	d := new(dispatcherMock)
	sc := new(storeConfigMock)

	o := newOrchestrator(new(plannerMock), new(packagerMock), d, new(poolMock), sc, new(jobStoreMock), anyBus())

	destsReady := map[string]error{"host-a": assert.AnError}

	results := o.distribute(context.Background(), job, part, destsReady, false)

	assert.Len(t, results, 1)
	assert.Equal(t, domain.DestFailed, results[0].Status)
	d.AssertNotCalled(t, "DeliverPart", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	sc.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
}

func TestDistribute_HappyPath_ResolvesRemoteNameAndDelivers(t *testing.T) {
	job := newTestJob()
	part := domain.Part{Id: "part-1"}

	sc := new(storeConfigMock)
	sc.On("FindByID", mock.Anything, "cfg-a").Return(domain.ArchiveStoreConfig{Id: "cfg-a", RemoteName: "gdrive"}, nil)

	completed := domain.DestinationProgress{HostId: "host-a", Status: domain.DestCompleted, Percent: 100}

	d := new(dispatcherMock)
	d.On("DeliverPart", mock.Anything, job, part, job.Destinations[0], "gdrive", false).Return(completed)

	o := newOrchestrator(new(plannerMock), new(packagerMock), d, new(poolMock), sc, new(jobStoreMock), anyBus())

	results := o.distribute(context.Background(), job, part, map[string]error{"host-a": nil}, false)

	assert.Equal(t, []domain.DestinationProgress{completed}, results)
	d.AssertExpectations(t)
}

func TestCancel_UnknownJob_ReturnsError(t *testing.T) {
	o := newOrchestrator(new(plannerMock), new(packagerMock), new(dispatcherMock), new(poolMock), new(storeConfigMock), new(jobStoreMock), new(busMock))

	err := o.Cancel(context.Background(), "does-not-exist")

	assert.Error(t, err)
}

func TestCancel_KillsRemoteProcessesOnSourceAndDestinations(t *testing.T) {
	job := newTestJob()

	pool := new(poolMock)
	pool.On("Exec", mock.Anything, "host-src", "pkill -f zip").Return(sshpool.ExecResult{}, assert.AnError)
	pool.On("Exec", mock.Anything, "host-src", "pkill -f rclone").Return(sshpool.ExecResult{}, assert.AnError)
	pool.On("Exec", mock.Anything, "host-a", "pkill -f unzip").Return(sshpool.ExecResult{}, assert.AnError)
	pool.On("Exec", mock.Anything, "host-a", "pkill -f rclone").Return(sshpool.ExecResult{}, assert.AnError)

	o := newOrchestrator(new(plannerMock), new(packagerMock), new(dispatcherMock), pool, new(storeConfigMock), new(jobStoreMock), new(busMock))
	o.running.Store(job.Id, job)

	err := o.Cancel(context.Background(), job.Id)

	assert.NoError(t, err)
	assert.True(t, job.IsCancelled())
	assert.Equal(t, domain.JobCancelling, job.Status)
	pool.AssertExpectations(t)
}

func TestPauseResume_UnknownJob_ReturnsError(t *testing.T) {
	o := newOrchestrator(new(plannerMock), new(packagerMock), new(dispatcherMock), new(poolMock), new(storeConfigMock), new(jobStoreMock), new(busMock))

	assert.Error(t, o.Pause("does-not-exist"))
	assert.Error(t, o.Resume("does-not-exist"))
}

func TestPauseThenResume_TogglesFlagAndStatus(t *testing.T) {
	job := newTestJob()

	o := newOrchestrator(new(plannerMock), new(packagerMock), new(dispatcherMock), new(poolMock), new(storeConfigMock), new(jobStoreMock), new(busMock))
	o.running.Store(job.Id, job)

	assert.NoError(t, o.Pause(job.Id))
	assert.True(t, job.IsPaused())
	assert.Equal(t, domain.JobPaused, job.Status)

	assert.NoError(t, o.Resume(job.Id))
	assert.False(t, job.IsPaused())
	assert.Equal(t, domain.JobRunning, job.Status)
}

// TestRun_PackagerOverlapsWithDistribution pins down the pipelining
// contract: the Packager must not block on one part's distribution before
// starting the next. part2's PackagePart call closes a channel that
// part1's DeliverPart call blocks on; if the two were still serialized
// (package part1, distribute part1, package part2, ...) this would
// deadlock instead of completing.
func TestRun_PackagerOverlapsWithDistribution(t *testing.T) {
	job := newTestJob()
	batch1, batch2 := testBatch(), testBatch()

	js := new(jobStoreMock)
	js.On("Update", mock.Anything, mock.Anything).Return(nil)

	pl := new(plannerMock)
	pl.On("Plan", mock.Anything, "host-src", "/data/export", int64(1024*1024*1024)).
		Return([]planner.Batch{batch1, batch2}, nil)

	part1 := domain.Part{Id: "part-1", Status: domain.PartUploaded}
	part2 := domain.Part{Id: "part-2", Status: domain.PartUploaded}

	part2Packaged := make(chan struct{})

	pk := new(packagerMock)
	pk.On("PackagePart", mock.Anything, job, batch1, 1, 2).Return(part1, nil)
	pk.On("PackagePart", mock.Anything, job, batch2, 2, 2).
		Run(func(args mock.Arguments) { close(part2Packaged) }).
		Return(part2, nil)

	sc := new(storeConfigMock)
	sc.On("FindByID", mock.Anything, "cfg-a").Return(domain.ArchiveStoreConfig{Id: "cfg-a", RemoteName: "gdrive"}, nil)

	completed := domain.DestinationProgress{HostId: "host-a", Status: domain.DestCompleted, Percent: 100}

	d := new(dispatcherMock)
	d.On("Prepare", mock.Anything, "host-src").Return(nil)
	d.On("Prepare", mock.Anything, "host-a").Return(nil)
	d.On("DeliverPart", mock.Anything, job, distributing(part1), job.Destinations[0], "gdrive", true).
		Run(func(args mock.Arguments) { <-part2Packaged }).
		Return(completed)
	d.On("DeliverPart", mock.Anything, job, distributing(part2), job.Destinations[0], "gdrive", true).Return(completed)

	o := newOrchestrator(pl, pk, d, new(poolMock), sc, js, anyBus())

	o.run(context.Background(), job)

	assert.Equal(t, domain.JobCompleted, job.Status)
	assert.Len(t, job.Parts, 2)
	pk.AssertExpectations(t)
	d.AssertExpectations(t)
}

func TestRetry_RejectsNonTerminalJob(t *testing.T) {
	job := domain.Job{Id: "job-1", Status: domain.JobRunning}

	js := new(jobStoreMock)
	js.On("FindByID", mock.Anything, "job-1").Return(job, nil)

	o := newOrchestrator(new(plannerMock), new(packagerMock), new(dispatcherMock), new(poolMock), new(storeConfigMock), js, new(busMock))

	err := o.Retry(context.Background(), "job-1", "part-1")
	assert.Error(t, err)
}

func TestRetry_RejectsUnknownPart(t *testing.T) {
	job := domain.Job{
		Id:     "job-1",
		Status: domain.JobFailed,
		Parts:  []domain.Part{{Id: "part-1", Status: domain.PartFailed}},
	}

	js := new(jobStoreMock)
	js.On("FindByID", mock.Anything, "job-1").Return(job, nil)

	o := newOrchestrator(new(plannerMock), new(packagerMock), new(dispatcherMock), new(poolMock), new(storeConfigMock), js, new(busMock))

	err := o.Retry(context.Background(), "job-1", "does-not-exist")
	assert.Error(t, err)
}

func TestRetry_RejectsPartThatDidNotFail(t *testing.T) {
	job := domain.Job{
		Id:     "job-1",
		Status: domain.JobCompleted,
		Parts:  []domain.Part{{Id: "part-1", Status: domain.PartCompleted}},
	}

	js := new(jobStoreMock)
	js.On("FindByID", mock.Anything, "job-1").Return(job, nil)

	o := newOrchestrator(new(plannerMock), new(packagerMock), new(dispatcherMock), new(poolMock), new(storeConfigMock), js, new(busMock))

	err := o.Retry(context.Background(), "job-1", "part-1")
	assert.Error(t, err)
}

func TestRetry_ResetsPartAndPersistsBeforeRerunning(t *testing.T) {
	job := domain.Job{
		Id:                 "job-1",
		SourceHostId:       "host-src",
		SourceFolderPath:   "/data/export",
		PartSizeCeilingMiB: 1024,
		Destinations:       []domain.Destination{{HostId: "host-a", FolderPath: "/restore", StoreConfigId: "cfg-a"}},
		Status:             domain.JobFailed,
		Parts: []domain.Part{{
			Id:         "part-1",
			Index:      1,
			Status:     domain.PartFailed,
			RetryCount: 1,
			Destinations: []domain.DestinationProgress{
				{HostId: "host-a", Status: domain.DestFailed, Error: "boom", Percent: 40},
			},
		}},
	}

	js := new(jobStoreMock)
	js.On("FindByID", mock.Anything, "job-1").Return(job, nil)

	var persisted domain.Job
	js.On("Update", mock.Anything, mock.MatchedBy(func(j domain.Job) bool {
		persisted = j
		return true
	})).Return(nil)

	// Block the re-plan forever: Retry() returns before runRetry's
	// background goroutine reaches it, so this can't race the assertions.
	block := make(chan struct{})
	pl := new(plannerMock)
	pl.On("Plan", mock.Anything, "host-src", "/data/export", int64(1024*1024*1024)).
		Run(func(args mock.Arguments) { <-block }).
		Return([]planner.Batch{}, nil)

	o := newOrchestrator(pl, new(packagerMock), new(dispatcherMock), new(poolMock), new(storeConfigMock), js, anyBus())

	err := o.Retry(context.Background(), "job-1", "part-1")
	assert.NoError(t, err)

	assert.Equal(t, domain.JobRunning, persisted.Status)
	assert.Equal(t, domain.PartPending, persisted.Parts[0].Status)
	assert.Equal(t, 2, persisted.Parts[0].RetryCount)
	assert.Equal(t, domain.DestPending, persisted.Parts[0].Destinations[0].Status)
	assert.Equal(t, 0, persisted.Parts[0].Destinations[0].Percent)
	assert.Empty(t, persisted.Parts[0].Destinations[0].Error)

	close(block)
}

func TestRunRetry_HappyPath_RepackagesAndCompletesJob(t *testing.T) {
	batch := testBatch()

	job := &domain.Job{
		Id:                 "job-1",
		SourceHostId:       "host-src",
		SourceFolderPath:   "/data/export",
		PartSizeCeilingMiB: 1024,
		Destinations:       []domain.Destination{{HostId: "host-a", FolderPath: "/restore", StoreConfigId: "cfg-a"}},
		Status:             domain.JobRunning,
		Parts: []domain.Part{{
			Id:         "part-1",
			Index:      1,
			Status:     domain.PartPending,
			RetryCount: 1,
		}},
	}

	js := new(jobStoreMock)
	js.On("Update", mock.Anything, mock.Anything).Return(nil)

	pl := new(plannerMock)
	pl.On("Plan", mock.Anything, "host-src", "/data/export", int64(1024*1024*1024)).
		Return([]planner.Batch{batch}, nil)

	retried := domain.Part{Id: "part-1", Status: domain.PartUploaded}

	pk := new(packagerMock)
	pk.On("PackagePart", mock.Anything, job, batch, 1, 1).Return(retried, nil)

	sc := new(storeConfigMock)
	sc.On("FindByID", mock.Anything, "cfg-a").Return(domain.ArchiveStoreConfig{Id: "cfg-a", RemoteName: "gdrive"}, nil)

	d := new(dispatcherMock)
	d.On("Prepare", mock.Anything, "host-a").Return(nil)
	// runRetry carries the original RetryCount over to the repackaged Part.
	delivered := distributing(retried)
	delivered.RetryCount = 1
	d.On("DeliverPart", mock.Anything, job, delivered, job.Destinations[0], "gdrive", false).
		Return(domain.DestinationProgress{HostId: "host-a", Status: domain.DestCompleted, Percent: 100})

	o := newOrchestrator(pl, pk, d, new(poolMock), sc, js, anyBus())

	o.runRetry(context.Background(), job, 0)

	assert.Equal(t, domain.JobCompleted, job.Status)
	assert.Equal(t, domain.PartCompleted, job.Parts[0].Status)
	assert.Equal(t, 1, job.Parts[0].RetryCount)
	d.AssertExpectations(t)
	pk.AssertExpectations(t)
}
