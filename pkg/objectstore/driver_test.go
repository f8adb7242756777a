package objectstore

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

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

func (m *poolMock) PutFile(ctx context.Context, hostId, localPath, remotePath string) error {
	args := m.Called(ctx, hostId, localPath, remotePath)
	return args.Error(0)
}

func (m *poolMock) GetFile(ctx context.Context, hostId, remotePath, localPath string) error {
	args := m.Called(ctx, hostId, remotePath, localPath)
	return args.Error(0)
}

func TestDriver_UploadFile_BuildsCopytoCommand(t *testing.T) {
	pool := new(poolMock)
	pool.On("ExecStreaming", mock.Anything, "host-1", `rclone copyto "/tmp/a.zip" gdrive:"/backups/a.zip" --progress --stats 1s`, mock.Anything).
		Return(sshpool.ExecResult{}, nil)

	d := New(pool, "rclone", "/nonexistent.conf", nil)

	var gotPercent int
	var gotSpeed string
	err := d.UploadFile(context.Background(), "host-1", "/tmp/a.zip", "gdrive", "/backups/a.zip", func(p int, s string) {
		gotPercent, gotSpeed = p, s
	})

	assert.NoError(t, err)
	pool.AssertExpectations(t)
	assert.Equal(t, 0, gotPercent)
	assert.Equal(t, "", gotSpeed)
}

func TestDriver_UploadFile_ParsesProgressChunks(t *testing.T) {
	pool := new(poolMock)
	pool.On("ExecStreaming", mock.Anything, "host-1", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			onChunk := args.Get(3).(sshpool.ChunkFunc)
			onChunk("Transferred: 42% 3.1 MiB/s")
		}).
		Return(sshpool.ExecResult{}, nil)

	d := New(pool, "rclone", "/nonexistent.conf", nil)

	var gotPercent int
	var gotSpeed string
	err := d.UploadFile(context.Background(), "host-1", "/tmp/a.zip", "gdrive", "/backups/a.zip", func(p int, s string) {
		gotPercent, gotSpeed = p, s
	})

	assert.NoError(t, err)
	assert.Equal(t, 42, gotPercent)
	assert.Equal(t, "3.1 MiB/s", gotSpeed)
}

func TestDriver_UploadFile_RejectsQuoteCharacter(t *testing.T) {
	pool := new(poolMock)
	d := New(pool, "rclone", "/nonexistent.conf", nil)

	err := d.UploadFile(context.Background(), "host-1", `/tmp/a".zip`, "gdrive", "/backups/a.zip", nil)
	assert.Error(t, err)
	pool.AssertNotCalled(t, "ExecStreaming")
}

func TestDriver_DeleteFile_BuildsDeletefileCommand(t *testing.T) {
	pool := new(poolMock)
	pool.On("Exec", mock.Anything, "host-1", `rclone deletefile gdrive:"/backups/a.zip"`).
		Return(sshpool.ExecResult{}, nil)

	d := New(pool, "rclone", "/nonexistent.conf", nil)
	err := d.DeleteFile(context.Background(), "host-1", "gdrive", "/backups/a.zip")

	assert.NoError(t, err)
	pool.AssertExpectations(t)
}

func TestDriver_ListRemotes_ParsesLocalConf(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "rclone-*.conf")
	assert.NoError(t, err)
	_, err = f.WriteString("[gdrive]\ntype = drive\ntoken = {\"x\":1}\n\n[s3]\ntype = s3\n")
	assert.NoError(t, err)
	assert.NoError(t, f.Close())

	d := New(new(poolMock), "rclone", f.Name(), nil)
	remotes, err := d.ListRemotes()

	assert.NoError(t, err)
	assert.Equal(t, []Remote{{Name: "gdrive", Type: "drive"}, {Name: "s3", Type: "s3"}}, remotes)
}

func TestDriver_ListServerRemotes_ParsesRemoteConf(t *testing.T) {
	pool := new(poolMock)
	pool.On("Exec", mock.Anything, "host-1", `cat "$HOME/.config/rclone/rclone.conf"`).
		Return(sshpool.ExecResult{Stdout: "[gdrive]\ntype = drive\n"}, nil)

	d := New(pool, "rclone", "", nil)
	remotes, err := d.ListServerRemotes(context.Background(), "host-1")

	assert.NoError(t, err)
	assert.Equal(t, []Remote{{Name: "gdrive", Type: "drive"}}, remotes)
}
