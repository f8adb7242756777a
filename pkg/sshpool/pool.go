// Package sshpool implements the Connection Pool described in §4.1: a
// keyed cache of live SSH sessions, one per Host, dialed lazily and
// reused across calls until the transport reports close/end/error.
package sshpool

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/pkg/sftp"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"

	"github.com/yurykabanov/transferd/pkg/appcontext"
	"github.com/yurykabanov/transferd/pkg/domain"
)

// DialTimeout bounds how long acquire waits for a new TCP+SSH handshake.
const DialTimeout = 15 * time.Second

// Listing is the paginated result of listDir.
type Listing struct {
	Items   []ListingItem
	Total   int
	HasMore bool
}

// ListingItem is one directory entry.
type ListingItem struct {
	Name  string
	IsDir bool
	Size  int64
}

// ExecResult is the trimmed stdout/stderr of a completed exec.
type ExecResult struct {
	Stdout string
	Stderr string
}

// ChunkFunc receives a slice of stdout/stderr text as it arrives; used to
// parse progress out of streaming commands.
type ChunkFunc func(text string)

// session wraps one live connection. All operations against a session
// are serialized with mu: the transport multiplexes channels, but this
// pool takes the simpler, always-correct path of one in-flight command
// per host at a time (§5, §9 open question — parallel channels per
// session are allowed but not required).
type session struct {
	mu     sync.Mutex
	hostId string
	client *ssh.Client
	sftp   *sftp.Client
	dialedAt time.Time
	lastUsed time.Time
	closed   bool
}

// Pool is the Connection Pool. One Pool instance is shared by the
// Packager and every Dispatcher worker.
type Pool struct {
	sessions *xsync.MapOf[string, *session]
	hostRepo domain.HostRepository
	logger   logrus.FieldLogger
	// idleTimeout, if non-zero, is the age past which an unused session is
	// evicted by the sweep started in internal/sshfx.
	idleTimeout time.Duration
}

// New constructs a Pool. hostRepo resolves a Host's dial parameters by
// id; idleTimeout of 0 disables the idle sweep (callers still evict on
// transport errors regardless).
func New(hostRepo domain.HostRepository, logger logrus.FieldLogger, idleTimeout time.Duration) *Pool {
	return &Pool{
		sessions:    xsync.NewMapOf[string, *session](),
		hostRepo:    hostRepo,
		logger:      logger,
		idleTimeout: idleTimeout,
	}
}

// acquire returns a live, healthy session for hostId, dialing if none is
// cached. Acquires for the same hostId are not serialized: concurrent
// callers that find no cached session each dial, LoadOrStore keeps the
// first session stored, and the others close their own connection and
// use that one.
func (p *Pool) acquire(ctx context.Context, hostId string) (*session, error) {
	if s, ok := p.sessions.Load(hostId); ok {
		s.mu.Lock()
		healthy := !s.closed
		s.mu.Unlock()
		if healthy {
			return s, nil
		}
		p.sessions.Delete(hostId)
	}

	host, err := p.hostRepo.FindByID(ctx, hostId)
	if err != nil {
		return nil, domain.NewConnectError(hostId, errors.Wrap(err, "sshpool: resolve host"))
	}

	client, err := dial(host)
	if err != nil {
		return nil, domain.NewConnectError(hostId, err)
	}

	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		_ = client.Close()
		return nil, domain.NewConnectError(hostId, errors.Wrap(err, "sshpool: open sftp subsystem"))
	}

	s := &session{
		hostId:   hostId,
		client:   client,
		sftp:     sftpClient,
		dialedAt: time.Now(),
		lastUsed: time.Now(),
	}

	actual, loaded := p.sessions.LoadOrStore(hostId, s)
	if loaded {
		// another goroutine won the race; use its session, close ours.
		_ = sftpClient.Close()
		_ = client.Close()
		return actual, nil
	}

	appcontext.LoggerFromContext(p.logger, appcontext.WithHostId(ctx, hostId)).Info("sshpool: connected")
	return s, nil
}

func dial(host domain.Host) (*ssh.Client, error) {
	var methods []ssh.AuthMethod

	if host.Auth.KeyPath != "" {
		keyBytes, err := os.ReadFile(host.Auth.KeyPath)
		if err != nil {
			return nil, errors.Wrap(err, "sshpool: read private key")
		}
		var signer ssh.Signer
		if host.Auth.Passphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(keyBytes, []byte(host.Auth.Passphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(keyBytes)
		}
		if err != nil {
			return nil, errors.Wrap(err, "sshpool: parse private key")
		}
		methods = append(methods, ssh.PublicKeys(signer))
	} else if host.Auth.Password != "" {
		methods = append(methods, ssh.Password(host.Auth.Password))
	}

	if len(methods) == 0 {
		return nil, errors.New("sshpool: host has no usable auth method")
	}

	cfg := &ssh.ClientConfig{
		User:            host.Username,
		Auth:            methods,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         DialTimeout,
	}

	addr := fmt.Sprintf("%s:%d", host.Address, host.Port)
	client, err := ssh.Dial("tcp", addr, cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "sshpool: dial %s", addr)
	}
	return client, nil
}

// evict marks a session closed and drops it from the cache; called on
// any transport error so the next acquire redials. Callers that don't
// already hold s.mu.
func (p *Pool) evict(hostId string, s *session) {
	s.mu.Lock()
	p.evictLocked(hostId, s)
	s.mu.Unlock()
}

// evictLocked is evict's body for callers that already hold s.mu — Exec,
// PutFile and GetFile evict from under their own defer'd lock, and
// re-locking it in evict would deadlock.
func (p *Pool) evictLocked(hostId string, s *session) {
	if !s.closed {
		s.closed = true
		if s.sftp != nil {
			_ = s.sftp.Close()
		}
		if s.client != nil {
			_ = s.client.Close()
		}
	}
	p.sessions.Delete(hostId)
}

// Disconnect closes and removes hostId's session, if any.
func (p *Pool) Disconnect(hostId string) {
	if s, ok := p.sessions.Load(hostId); ok {
		p.evict(hostId, s)
	}
}

// Exec runs cmd to completion on hostId and returns trimmed stdout/stderr.
func (p *Pool) Exec(ctx context.Context, hostId, cmd string) (ExecResult, error) {
	return p.ExecStreaming(ctx, hostId, cmd, nil)
}

// ExecStreaming runs cmd on hostId, invoking onChunk for every stdout or
// stderr chunk as it arrives (onChunk may be nil). Returns trimmed
// accumulated stdout/stderr once the remote command exits.
func (p *Pool) ExecStreaming(ctx context.Context, hostId, cmd string, onChunk ChunkFunc) (ExecResult, error) {
	s, err := p.acquire(ctx, hostId)
	if err != nil {
		return ExecResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUsed = time.Now()

	sess, err := s.client.NewSession()
	if err != nil {
		p.evictLocked(hostId, s)
		return ExecResult{}, domain.NewConnectError(hostId, errors.Wrap(err, "sshpool: open session"))
	}
	defer sess.Close()

	var stdoutBuf, stderrBuf strings.Builder
	stdoutPipe, err := sess.StdoutPipe()
	if err != nil {
		return ExecResult{}, errors.Wrap(err, "sshpool: stdout pipe")
	}
	stderrPipe, err := sess.StderrPipe()
	if err != nil {
		return ExecResult{}, errors.Wrap(err, "sshpool: stderr pipe")
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go drain(stdoutPipe, &stdoutBuf, onChunk, &wg)
	go drain(stderrPipe, &stderrBuf, onChunk, &wg)

	if err := sess.Start(cmd); err != nil {
		p.evictLocked(hostId, s)
		return ExecResult{}, errors.Wrap(err, "sshpool: start command")
	}

	wg.Wait()
	waitErr := sess.Wait()

	result := ExecResult{
		Stdout: strings.TrimSpace(stdoutBuf.String()),
		Stderr: strings.TrimSpace(stderrBuf.String()),
	}
	if waitErr != nil {
		return result, errors.Wrapf(waitErr, "sshpool: command failed: %s", cmd)
	}
	return result, nil
}

func drain(r io.Reader, into *strings.Builder, onChunk ChunkFunc, wg *sync.WaitGroup) {
	defer wg.Done()
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			text := string(buf[:n])
			into.WriteString(text)
			if onChunk != nil {
				onChunk(text)
			}
		}
		if err != nil {
			return
		}
	}
}

// PutFile copies localPath to remotePath on hostId over the session's
// companion sftp channel.
func (p *Pool) PutFile(ctx context.Context, hostId, localPath, remotePath string) error {
	s, err := p.acquire(ctx, hostId)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUsed = time.Now()

	local, err := os.Open(localPath)
	if err != nil {
		return errors.Wrap(err, "sshpool: open local file")
	}
	defer local.Close()

	remote, err := s.sftp.Create(remotePath)
	if err != nil {
		return errors.Wrap(err, "sshpool: create remote file")
	}
	defer remote.Close()

	if _, err := io.Copy(remote, local); err != nil {
		p.evictLocked(hostId, s)
		return errors.Wrap(err, "sshpool: copy to remote")
	}
	return nil
}

// GetFile copies remotePath on hostId to localPath.
func (p *Pool) GetFile(ctx context.Context, hostId, remotePath, localPath string) error {
	s, err := p.acquire(ctx, hostId)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUsed = time.Now()

	remote, err := s.sftp.Open(remotePath)
	if err != nil {
		return errors.Wrap(err, "sshpool: open remote file")
	}
	defer remote.Close()

	local, err := os.Create(localPath)
	if err != nil {
		return errors.Wrap(err, "sshpool: create local file")
	}
	defer local.Close()

	if _, err := io.Copy(local, remote); err != nil {
		p.evictLocked(hostId, s)
		return errors.Wrap(err, "sshpool: copy from remote")
	}
	return nil
}

// ListDir lists path on hostId, hiding dot-entries, directories first
// then case-insensitive by name, paginated over the sorted list.
func (p *Pool) ListDir(ctx context.Context, hostId, path string, limit, offset int) (Listing, error) {
	s, err := p.acquire(ctx, hostId)
	if err != nil {
		return Listing{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUsed = time.Now()

	entries, err := s.sftp.ReadDir(path)
	if err != nil {
		return Listing{}, errors.Wrap(err, "sshpool: list dir")
	}

	items := make([]ListingItem, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		items = append(items, ListingItem{Name: name, IsDir: e.IsDir(), Size: e.Size()})
	}

	return sortAndPaginate(items, limit, offset), nil
}

// sortAndPaginate orders directories first, then case-insensitively by
// name, and slices out the requested page. Split out from ListDir so it
// can be exercised without a live sftp connection.
func sortAndPaginate(items []ListingItem, limit, offset int) Listing {
	sort.Slice(items, func(i, j int) bool {
		if items[i].IsDir != items[j].IsDir {
			return items[i].IsDir
		}
		return strings.ToLower(items[i].Name) < strings.ToLower(items[j].Name)
	})

	total := len(items)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}

	return Listing{
		Items:   items[offset:end],
		Total:   total,
		HasMore: end < total,
	}
}

// SweepIdle disconnects every session whose lastUsed is older than the
// pool's configured idleTimeout. Wired to a cron schedule in
// internal/sshfx; a zero idleTimeout disables the sweep entirely.
func (p *Pool) SweepIdle() {
	if p.idleTimeout <= 0 {
		return
	}
	now := time.Now()
	p.sessions.Range(func(hostId string, s *session) bool {
		s.mu.Lock()
		idle := now.Sub(s.lastUsed)
		s.mu.Unlock()
		if idle > p.idleTimeout {
			p.logger.WithField("hostId", hostId).Info("sshpool: evicting idle session")
			p.evict(hostId, s)
		}
		return true
	})
}
