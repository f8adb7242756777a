package dispatcher

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/yurykabanov/transferd/pkg/domain"
	"github.com/yurykabanov/transferd/pkg/objectstore"
	"github.com/yurykabanov/transferd/pkg/sshpool"
)

type poolMock struct {
	mock.Mock
}

func (m *poolMock) Exec(ctx context.Context, hostId, cmd string) (sshpool.ExecResult, error) {
	args := m.Called(ctx, hostId, cmd)
	return args.Get(0).(sshpool.ExecResult), args.Error(1)
}

func (m *poolMock) ExecStreaming(ctx context.Context, hostId, cmd string, onChunk sshpool.ChunkFunc) (sshpool.ExecResult, error) {
	args := m.Called(ctx, hostId, cmd, onChunk)
	return args.Get(0).(sshpool.ExecResult), args.Error(1)
}

type storeMock struct {
	mock.Mock
}

func (m *storeMock) DownloadFile(ctx context.Context, hostId, remoteName, remotePath, localPath string, onProgress objectstore.ProgressFunc) error {
	args := m.Called(ctx, hostId, remoteName, remotePath, localPath, onProgress)
	return args.Error(0)
}

func (m *storeMock) DeleteFile(ctx context.Context, hostId, remoteName, remotePath string) error {
	args := m.Called(ctx, hostId, remoteName, remotePath)
	return args.Error(0)
}

type installerMock struct {
	mock.Mock
}

func (m *installerMock) CheckInstalled(ctx context.Context, hostId string) (bool, error) {
	args := m.Called(ctx, hostId)
	return args.Bool(0), args.Error(1)
}

func (m *installerMock) InstallOnHost(ctx context.Context, hostId string) error {
	args := m.Called(ctx, hostId)
	return args.Error(0)
}

func (m *installerMock) DeployConfig(ctx context.Context, hostId string) error {
	args := m.Called(ctx, hostId)
	return args.Error(0)
}

type busMock struct {
	mock.Mock
}

func (m *busMock) Publish(event interface{}) {
	m.Called(event)
}

func newTestJob() *domain.Job {
	return &domain.Job{
		Id:          "job-1",
		AutoExtract: false,
	}
}

func testPart() domain.Part {
	return domain.Part{Id: "part-1", Filename: "transfer_1.zip", StorePath: "/backups/job-1/transfer_1.zip"}
}

func testDest() domain.Destination {
	return domain.Destination{HostId: "host-a", FolderPath: "/restore", StoreConfigId: "cfg-a"}
}

func TestDeliverPart_NoAutoExtract_MovesStagedFile(t *testing.T) {
	pool := new(poolMock)
	pool.On("Exec", mock.Anything, "host-a", mock.MatchedBy(func(cmd string) bool {
		return cmd == "mkdir -p '/restore' && mv '/tmp/transfer_1.zip' '/restore/transfer_1.zip'"
	})).Return(sshpool.ExecResult{}, nil)

	store := new(storeMock)
	store.On("DownloadFile", mock.Anything, "host-a", "gdrive", "/backups/job-1/transfer_1.zip", "/tmp/transfer_1.zip", mock.Anything).
		Run(func(args mock.Arguments) {
			onProgress := args.Get(5).(objectstore.ProgressFunc)
			onProgress(100, "1.0 MiB/s")
		}).
		Return(nil)

	bus := new(busMock)
	bus.On("Publish", mock.Anything).Return()

	d := New(pool, store, new(installerMock), bus, logrus.New())

	progress := d.DeliverPart(context.Background(), newTestJob(), testPart(), testDest(), "gdrive", false)

	assert.Equal(t, domain.DestCompleted, progress.Status)
	assert.Equal(t, 100, progress.Percent)
	pool.AssertExpectations(t)
	store.AssertExpectations(t)
}

func TestDeliverPart_AutoExtractSingleArchive_ExtractsInPlace(t *testing.T) {
	job := newTestJob()
	job.AutoExtract = true

	pool := new(poolMock)
	pool.On("ExecStreaming", mock.Anything, "host-a",
		"mkdir -p '/restore' && unzip -o '/tmp/transfer_1.zip' -d '/restore'", mock.Anything).
		Return(sshpool.ExecResult{}, nil)
	pool.On("Exec", mock.Anything, "host-a", "rm -f '/tmp/transfer_1.zip'").
		Return(sshpool.ExecResult{}, nil)

	store := new(storeMock)
	store.On("DownloadFile", mock.Anything, "host-a", "gdrive", "/backups/job-1/transfer_1.zip", "/tmp/transfer_1.zip", mock.Anything).
		Return(nil)

	bus := new(busMock)
	bus.On("Publish", mock.Anything).Return()

	d := New(pool, store, new(installerMock), bus, logrus.New())

	progress := d.DeliverPart(context.Background(), job, testPart(), testDest(), "gdrive", false)

	assert.Equal(t, domain.DestCompleted, progress.Status)
	pool.AssertExpectations(t)
}

func TestDeliverPart_AutoExtractSplitArchive_DefersExtraction(t *testing.T) {
	job := newTestJob()
	job.AutoExtract = true

	pool := new(poolMock)
	pool.On("Exec", mock.Anything, "host-a", mock.MatchedBy(func(cmd string) bool {
		return cmd == "mkdir -p '/restore' && mv '/tmp/transfer_1.zip' '/restore/transfer_1.zip'"
	})).Return(sshpool.ExecResult{}, nil)

	store := new(storeMock)
	store.On("DownloadFile", mock.Anything, "host-a", "gdrive", "/backups/job-1/transfer_1.zip", "/tmp/transfer_1.zip", mock.Anything).
		Return(nil)

	bus := new(busMock)
	bus.On("Publish", mock.Anything).Return()

	d := New(pool, store, new(installerMock), bus, logrus.New())

	progress := d.DeliverPart(context.Background(), job, testPart(), testDest(), "gdrive", true)

	assert.Equal(t, domain.DestCompleted, progress.Status)
	pool.AssertExpectations(t)
	pool.AssertNotCalled(t, "ExecStreaming", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDeliverPart_DeletesFromStoreAfterAllDone(t *testing.T) {
	job := newTestJob()
	job.DeleteFromStoreAfterAllDone = true

	pool := new(poolMock)
	pool.On("Exec", mock.Anything, "host-a", mock.Anything).Return(sshpool.ExecResult{}, nil)

	store := new(storeMock)
	store.On("DownloadFile", mock.Anything, "host-a", "gdrive", "/backups/job-1/transfer_1.zip", "/tmp/transfer_1.zip", mock.Anything).
		Return(nil)
	store.On("DeleteFile", mock.Anything, "host-a", "gdrive", "/backups/job-1/transfer_1.zip").
		Return(nil)

	bus := new(busMock)
	bus.On("Publish", mock.Anything).Return()

	d := New(pool, store, new(installerMock), bus, logrus.New())

	progress := d.DeliverPart(context.Background(), job, testPart(), testDest(), "gdrive", false)

	assert.Equal(t, domain.DestCompleted, progress.Status)
	store.AssertExpectations(t)
}

func TestDeliverPart_DownloadFails_MarksDestinationFailedOnly(t *testing.T) {
	pool := new(poolMock)
	store := new(storeMock)
	store.On("DownloadFile", mock.Anything, "host-a", "gdrive", "/backups/job-1/transfer_1.zip", "/tmp/transfer_1.zip", mock.Anything).
		Return(assert.AnError)

	bus := new(busMock)
	bus.On("Publish", mock.Anything).Return()

	d := New(pool, store, new(installerMock), bus, logrus.New())

	progress := d.DeliverPart(context.Background(), newTestJob(), testPart(), testDest(), "gdrive", false)

	assert.Equal(t, domain.DestFailed, progress.Status)
	assert.NotEmpty(t, progress.Error)
	pool.AssertNotCalled(t, "Exec", mock.Anything, mock.Anything, mock.Anything)
}

func TestDeliverPart_Cancelled_SkipsEverything(t *testing.T) {
	job := newTestJob()
	job.SetCancelled()

	pool := new(poolMock)
	store := new(storeMock)
	bus := new(busMock)
	bus.On("Publish", mock.Anything).Return()

	d := New(pool, store, new(installerMock), bus, logrus.New())

	progress := d.DeliverPart(context.Background(), job, testPart(), testDest(), "gdrive", false)

	assert.Equal(t, domain.DestFailed, progress.Status)
	store.AssertNotCalled(t, "DownloadFile", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPrepare_InstallsWhenMissing(t *testing.T) {
	installer := new(installerMock)
	installer.On("CheckInstalled", mock.Anything, "host-a").Return(false, nil)
	installer.On("InstallOnHost", mock.Anything, "host-a").Return(nil)
	installer.On("DeployConfig", mock.Anything, "host-a").Return(nil)

	bus := new(busMock)
	bus.On("Publish", mock.Anything).Return()

	d := New(new(poolMock), new(storeMock), installer, bus, logrus.New())

	err := d.Prepare(context.Background(), "host-a")

	assert.NoError(t, err)
	installer.AssertExpectations(t)
}

func TestPrepare_SkipsInstallWhenPresent(t *testing.T) {
	installer := new(installerMock)
	installer.On("CheckInstalled", mock.Anything, "host-a").Return(true, nil)
	installer.On("DeployConfig", mock.Anything, "host-a").Return(nil)

	d := New(new(poolMock), new(storeMock), installer, new(busMock), logrus.New())

	err := d.Prepare(context.Background(), "host-a")

	assert.NoError(t, err)
	installer.AssertNotCalled(t, "InstallOnHost", mock.Anything, mock.Anything)
}

func TestBulkExtract_UnzipsThenRemovesParts(t *testing.T) {
	pool := new(poolMock)
	pool.On("ExecStreaming", mock.Anything, "host-a", "cd '/restore' && unzip -o 'transfer_1.part*.zip'", mock.Anything).
		Return(sshpool.ExecResult{}, nil)
	pool.On("Exec", mock.Anything, "host-a", "cd '/restore' && rm -f transfer_1.part*.zip").
		Return(sshpool.ExecResult{}, nil)

	bus := new(busMock)
	bus.On("Publish", mock.Anything).Return()

	d := New(pool, new(storeMock), new(installerMock), bus, logrus.New())

	err := d.BulkExtract(context.Background(), "host-a", "/restore", "transfer_1")

	assert.NoError(t, err)
	pool.AssertExpectations(t)
}
