// Package planner implements §4.3: given a source folder's file
// inventory and a part-size ceiling, produce an ordered list of batches
// no batch exceeds the ceiling except when a single file forces it.
package planner

import (
	"context"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/yurykabanov/transferd/pkg/domain"
)

// FileEntry is one regular file under the source folder.
type FileEntry struct {
	Path    string // absolute path on the source host
	RelPath string // path relative to the source folder
	Size    int64  // bytes
}

// Batch is a group of files whose total size is at most the ceiling,
// unless it holds exactly one file that alone exceeds it.
type Batch struct {
	Files     []FileEntry
	TotalSize int64
}

// Lister enumerates files on the source host; satisfied by an adapter
// over the Connection Pool's exec, kept as an interface so Plan can be
// tested without a live SSH session.
type Lister interface {
	ListFiles(ctx context.Context, hostId, folderPath string) ([]FileEntry, error)
}

// Planner produces batches for a Job's packaging step.
type Planner struct {
	lister Lister
}

// New constructs a Planner over the given file Lister.
func New(lister Lister) *Planner {
	return &Planner{lister: lister}
}

// Plan enumerates folderPath on hostId and first-fit packs the result
// into batches no larger than ceilingBytes, preserving enumeration
// order. An empty or unreadable inventory is a PlanError.
func (p *Planner) Plan(ctx context.Context, hostId, folderPath string, ceilingBytes int64) ([]Batch, error) {
	files, err := p.lister.ListFiles(ctx, hostId, folderPath)
	if err != nil {
		return nil, domain.NewPlanError("enumerate source folder", err)
	}
	if len(files) == 0 {
		return nil, domain.NewPlanError("source folder contains no regular files", nil)
	}

	return packFirstFit(files, ceilingBytes), nil
}

// packFirstFit implements the algorithm from §4.3 step 2: start an empty
// batch; for each file, if it alone exceeds the ceiling, flush the
// current batch and emit it alone; else if adding it would overflow a
// non-empty batch, flush first; then append and accumulate.
func packFirstFit(files []FileEntry, ceilingBytes int64) []Batch {
	var batches []Batch
	var current Batch

	flush := func() {
		if len(current.Files) > 0 {
			batches = append(batches, current)
			current = Batch{}
		}
	}

	for _, f := range files {
		if f.Size > ceilingBytes {
			flush()
			batches = append(batches, Batch{Files: []FileEntry{f}, TotalSize: f.Size})
			continue
		}
		if current.TotalSize+f.Size > ceilingBytes && len(current.Files) > 0 {
			flush()
		}
		current.Files = append(current.Files, f)
		current.TotalSize += f.Size
	}
	flush()

	return batches
}

// NeedsSplit reports whether more than one batch resulted, i.e. whether
// the job is on the split-archive path rather than the single-archive
// path.
func NeedsSplit(batches []Batch) bool {
	return len(batches) > 1
}

// ShellLister adapts a Connection Pool's exec to the Lister interface by
// running `find ... -type f -printf ...` and parsing the resulting
// "<size>\t<relpath>" lines. The find invocation is built here; only
// running it is left to the caller-supplied exec function, so this package
// does not depend on sshpool directly.
type ShellLister struct {
	exec func(ctx context.Context, hostId, cmd string) (string, error)
}

// NewShellLister builds a ShellLister around an exec function, typically
// a thin wrapper over (*sshpool.Pool).Exec.
func NewShellLister(exec func(ctx context.Context, hostId, cmd string) (string, error)) *ShellLister {
	return &ShellLister{exec: exec}
}

// ListFiles runs a single `find … -printf '%s\t%P\n'` command against
// folderPath and parses it line by line, per §4.3 step 1.
func (l *ShellLister) ListFiles(ctx context.Context, hostId, folderPath string) ([]FileEntry, error) {
	cmd := "find " + shellQuote(folderPath) + ` -type f -printf '%s\t%P\n'`
	stdout, err := l.exec(ctx, hostId, cmd)
	if err != nil {
		return nil, errors.Wrap(err, "planner: enumerate files")
	}
	return parseFindOutput(folderPath, stdout)
}

func parseFindOutput(folderPath, stdout string) ([]FileEntry, error) {
	var files []FileEntry
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		sizeStr, relPath, ok := strings.Cut(line, "\t")
		if !ok {
			return nil, errors.Errorf("planner: malformed find output line: %q", line)
		}
		size, err := strconv.ParseInt(sizeStr, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "planner: parse size in line: %q", line)
		}
		files = append(files, FileEntry{
			Path:    strings.TrimRight(folderPath, "/") + "/" + relPath,
			RelPath: relPath,
			Size:    size,
		})
	}
	return files, nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
