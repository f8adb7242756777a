package objectstore

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/yurykabanov/transferd/pkg/domain"
)

// CheckInstalled reports whether the CLI tool is already on hostId's
// PATH, per §4.2's capability-bootstrap contract.
func (d *Driver) CheckInstalled(ctx context.Context, hostId string) (bool, error) {
	cmd := fmt.Sprintf("command -v %s", d.toolName)
	result, err := d.pool.Exec(ctx, hostId, cmd)
	if err != nil {
		// a non-zero exit from `command -v` (not found) surfaces as an
		// error from Exec; that is itself the "not installed" answer.
		return false, nil
	}
	return result.Stdout != "", nil
}

// InstallOnHost installs the CLI tool via the distribution's packaged
// install script under sudo; if sudo is unavailable or refused, it falls
// back to extracting a user-local copy into ~/bin and appending ~/bin to
// the shell profile's PATH.
func (d *Driver) InstallOnHost(ctx context.Context, hostId string) error {
	sudoCmd := fmt.Sprintf("curl -fsSL https://%s.org/install.sh | sudo bash", d.toolName)
	if _, err := d.pool.Exec(ctx, hostId, sudoCmd); err == nil {
		return nil
	}

	fallback := fmt.Sprintf(
		`mkdir -p ~/bin && curl -fsSL https://downloads.%s.org/%s-current-linux-amd64.zip -o /tmp/%s.zip `+
			`&& unzip -o /tmp/%s.zip -d /tmp/%s-install && cp /tmp/%s-install/*/%s ~/bin/ && chmod +x ~/bin/%s `+
			`&& rm -rf /tmp/%s.zip /tmp/%s-install`,
		d.toolName, d.toolName, d.toolName, d.toolName, d.toolName, d.toolName, d.toolName, d.toolName, d.toolName, d.toolName,
	)
	if _, err := d.pool.Exec(ctx, hostId, fallback); err != nil {
		return domain.NewToolInstallError(hostId, errors.Wrap(err, "objectstore: user-local install failed"))
	}

	profileLine := fmt.Sprintf(`echo 'export PATH="$HOME/bin:$PATH"' >> ~/.profile`)
	if _, err := d.pool.Exec(ctx, hostId, profileLine); err != nil {
		return domain.NewToolInstallError(hostId, errors.Wrap(err, "objectstore: append PATH to profile"))
	}
	return nil
}

// DeployConfig copies the operator's local config contents to
// ~/.config/<tool>/<tool>.conf on hostId.
func (d *Driver) DeployConfig(ctx context.Context, hostId string) error {
	remotePath := d.confPath()
	remoteDir := filepath.Dir(remotePath)

	if _, err := d.pool.Exec(ctx, hostId, fmt.Sprintf("mkdir -p %s", remoteDir)); err != nil {
		return errors.Wrap(err, "objectstore: create remote config dir")
	}

	// sftp does not expand "~"; a relative path resolves against the login
	// directory instead.
	if err := d.pool.PutFile(ctx, hostId, d.localConfPath, strings.TrimPrefix(remotePath, "~/")); err != nil {
		return errors.Wrap(err, "objectstore: deploy config")
	}
	return nil
}
