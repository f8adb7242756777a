// Package objectstore drives the object-store CLI tool (an rclone-alike)
// that is expected to already be resident, or installable, on every
// participating host. Every operation in §4.2 runs as a remote shell
// command issued through the Connection Pool; no object bytes pass
// through this process.
package objectstore

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/yurykabanov/transferd/pkg/domain"
	"github.com/yurykabanov/transferd/pkg/sshpool"
)

// ConnectionPool is the subset of *sshpool.Pool the driver needs; kept as
// an interface so the driver can be exercised against a fake in tests.
type ConnectionPool interface {
	Exec(ctx context.Context, hostId, cmd string) (sshpool.ExecResult, error)
	ExecStreaming(ctx context.Context, hostId, cmd string, onChunk sshpool.ChunkFunc) (sshpool.ExecResult, error)
	PutFile(ctx context.Context, hostId, localPath, remotePath string) error
	GetFile(ctx context.Context, hostId, remotePath, localPath string) error
}

// ProgressFunc receives a decoded (percent, speed) pair as upload/download
// progress is parsed from the tool's stdout.
type ProgressFunc func(percent int, speed string)

// Driver is the Object-Store Driver of §4.2.
type Driver struct {
	pool          ConnectionPool
	toolName      string // e.g. "rclone"
	localConfPath string // operator's local <tool>.conf, source of truth deployed to hosts
	logger        logrus.FieldLogger
}

// New constructs a Driver. toolName is the resident CLI's executable name
// (e.g. "rclone"); localConfPath is the operator-side config file
// DeployConfig copies out to hosts.
func New(pool ConnectionPool, toolName, localConfPath string, logger logrus.FieldLogger) *Driver {
	return &Driver{pool: pool, toolName: toolName, localConfPath: localConfPath, logger: logger}
}

// quote rejects any path containing the shell quoting character and
// wraps it in double quotes; per §4.2 this is the entire quoting
// contract, the caller is responsible for not passing shell metacharacters
// beyond that.
func quote(path string) (string, error) {
	if strings.Contains(path, `"`) {
		return "", errors.Errorf("objectstore: path contains quoting character: %s", path)
	}
	return `"` + path + `"`, nil
}

func (d *Driver) remoteRef(remoteName, remotePath string) (string, error) {
	q, err := quote(remotePath)
	if err != nil {
		return "", err
	}
	// the remote name itself is operator-configured, not user path input,
	// but is still subject to the same quoting contract.
	if strings.Contains(remoteName, `"`) {
		return "", errors.Errorf("objectstore: remote name contains quoting character: %s", remoteName)
	}
	return remoteName + ":" + q, nil
}

// UploadFile copies localPath to remotePath (a file, not a directory)
// inside remoteName on hostId, reporting (percent, speed) as parsed from
// the tool's stdout.
func (d *Driver) UploadFile(ctx context.Context, hostId, localPath, remoteName, remotePath string, onProgress ProgressFunc) error {
	localQ, err := quote(localPath)
	if err != nil {
		return domain.NewUploadError("", err)
	}
	ref, err := d.remoteRef(remoteName, remotePath)
	if err != nil {
		return domain.NewUploadError("", err)
	}

	cmd := fmt.Sprintf("%s copyto %s %s --progress --stats 1s", d.toolName, localQ, ref)
	_, err = d.pool.ExecStreaming(ctx, hostId, cmd, d.onChunk(onProgress))
	if err != nil {
		return domain.NewUploadError("", err)
	}
	return nil
}

// DownloadFile is the symmetric counterpart of UploadFile.
func (d *Driver) DownloadFile(ctx context.Context, hostId, remoteName, remotePath, localPath string, onProgress ProgressFunc) error {
	ref, err := d.remoteRef(remoteName, remotePath)
	if err != nil {
		return domain.NewDownloadError(hostId, "", err)
	}
	localQ, err := quote(localPath)
	if err != nil {
		return domain.NewDownloadError(hostId, "", err)
	}

	cmd := fmt.Sprintf("%s copyto %s %s --progress --stats 1s", d.toolName, ref, localQ)
	_, err = d.pool.ExecStreaming(ctx, hostId, cmd, d.onChunk(onProgress))
	if err != nil {
		return domain.NewDownloadError(hostId, "", err)
	}
	return nil
}

// DeleteFile removes a single file (not a recursive folder delete) from
// remoteName on hostId.
func (d *Driver) DeleteFile(ctx context.Context, hostId, remoteName, remotePath string) error {
	ref, err := d.remoteRef(remoteName, remotePath)
	if err != nil {
		return domain.NewStoreDeleteError(hostId, "", err)
	}
	cmd := fmt.Sprintf("%s deletefile %s", d.toolName, ref)
	if _, err := d.pool.Exec(ctx, hostId, cmd); err != nil {
		return domain.NewStoreDeleteError(hostId, "", err)
	}
	return nil
}

func (d *Driver) onChunk(onProgress ProgressFunc) sshpool.ChunkFunc {
	if onProgress == nil {
		return nil
	}
	return func(text string) {
		if p, ok := parseProgress(text); ok {
			onProgress(p.Percent, p.Speed)
		}
	}
}

// ListRemotes enumerates remotes configured in the operator's local
// config file — the source of truth DeployConfig pushes to hosts.
func (d *Driver) ListRemotes() ([]Remote, error) {
	contents, err := os.ReadFile(d.localConfPath)
	if err != nil {
		return nil, errors.Wrap(err, "objectstore: read local config")
	}
	return parseConf(string(contents)), nil
}

// ListServerRemotes enumerates remotes configured on hostId by reading
// its deployed config over the Connection Pool.
func (d *Driver) ListServerRemotes(ctx context.Context, hostId string) ([]Remote, error) {
	path := d.confPath()
	// "~" is not expanded inside double quotes; $HOME is.
	result, err := d.pool.Exec(ctx, hostId, fmt.Sprintf(`cat "$HOME/%s"`, strings.TrimPrefix(path, "~/")))
	if err != nil {
		return nil, errors.Wrap(err, "objectstore: read remote config")
	}
	return parseConf(result.Stdout), nil
}

func (d *Driver) confPath() string {
	return fmt.Sprintf("~/.config/%s/%s.conf", d.toolName, d.toolName)
}
