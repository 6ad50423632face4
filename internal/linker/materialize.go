package linker

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"syscall"

	"anilink/internal/fileutil"
	"anilink/internal/logging"
	"anilink/internal/plan"
	"anilink/internal/queue"
	"anilink/internal/services"
)

// Materialize executes the plan's steps and returns the manifest record for
// the archived episode. Every step checks before acting, so a crash between
// steps is repaired by running the same plan again, and a second run over a
// finished plan returns the existing record untouched.
func (l *Linker) Materialize(ctx context.Context, p plan.Plan) (*queue.LinkRecord, error) {
	logger := logging.WithContext(ctx, l.logger)

	fingerprint, err := fileutil.Fingerprint(p.SourcePath)
	if err != nil {
		return nil, services.Wrap(services.ErrIO, "linking", "fingerprint source", fmt.Sprintf("Cannot read %s", p.SourcePath), err)
	}

	// Artwork downloads run before the target lock is taken so no worker
	// holds it across network I/O. The fetcher skips files already present.
	l.fetchArtwork(ctx, p)

	unlock := l.locks.lock(p.TargetPath)
	defer unlock()

	for _, dir := range p.Directories {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, services.Wrap(services.ErrIO, "linking", "create directories", fmt.Sprintf("Cannot create %s", dir), err)
		}
	}

	existing, err := l.store.LinkByTarget(ctx, p.TargetPath)
	if err != nil {
		return nil, services.Wrap(services.ErrIO, "linking", "check manifest", "Link manifest lookup failed", err)
	}
	if existing != nil {
		if existing.SourcePath != p.SourcePath {
			return nil, services.Wrap(
				services.ErrCollision,
				"linking",
				"check manifest",
				fmt.Sprintf("Target %s is already archived from %s; resolve the conflict manually", p.TargetPath, existing.SourcePath),
				nil,
			)
		}
		logger.Info("target already archived", logging.String("target_path", p.TargetPath))
		return existing, nil
	}

	if err := l.ensureLink(p); err != nil {
		return nil, err
	}

	for _, sidecar := range p.Sidecars {
		if err := fileutil.WriteFileAtomic(sidecar.Path, sidecar.Data, 0o644); err != nil {
			return nil, services.Wrap(services.ErrIO, "linking", "write sidecar", fmt.Sprintf("Cannot write %s", sidecar.Path), err)
		}
	}

	record, err := l.store.RecordLink(ctx, p.SourcePath, p.TargetPath, fingerprint)
	if err != nil {
		if errors.Is(err, queue.ErrTargetClaimed) {
			return nil, services.Wrap(
				services.ErrCollision,
				"linking",
				"record link",
				fmt.Sprintf("Target %s was claimed by another source while linking", p.TargetPath),
				err,
			)
		}
		return nil, services.Wrap(services.ErrIO, "linking", "record link", "Link manifest write failed", err)
	}
	return record, nil
}

// ensureLink creates the hard link, falling back per the configured policy
// when the library sits on a different filesystem. A target that already
// exists is accepted only when it demonstrably came from this source.
func (l *Linker) ensureLink(p plan.Plan) error {
	err := os.Link(p.SourcePath, p.TargetPath)
	if err == nil {
		return nil
	}
	if errors.Is(err, fs.ErrExist) {
		return l.acceptExisting(p)
	}
	var linkErr *os.LinkError
	if errors.As(err, &linkErr) && errors.Is(linkErr.Err, syscall.EXDEV) {
		return l.crossDevice(p)
	}
	return services.Wrap(services.ErrIO, "linking", "link file", fmt.Sprintf("Cannot link %s into %s", p.SourcePath, p.TargetPath), err)
}

func (l *Linker) crossDevice(p plan.Plan) error {
	switch l.cfg.Linker.OnCrossDevice {
	case "copy":
		tmp := p.TargetPath + ".tmp"
		if err := fileutil.CopyFileVerified(p.SourcePath, tmp); err != nil {
			_ = os.Remove(tmp)
			return services.Wrap(services.ErrIO, "linking", "copy across devices", fmt.Sprintf("Verified copy to %s failed", p.TargetPath), err)
		}
		if err := os.Rename(tmp, p.TargetPath); err != nil {
			_ = os.Remove(tmp)
			return services.Wrap(services.ErrIO, "linking", "copy across devices", fmt.Sprintf("Cannot move copy into %s", p.TargetPath), err)
		}
		return nil
	case "symlink":
		if err := os.Symlink(p.SourcePath, p.TargetPath); err != nil {
			if errors.Is(err, fs.ErrExist) {
				return l.acceptExisting(p)
			}
			return services.Wrap(services.ErrIO, "linking", "symlink across devices", fmt.Sprintf("Cannot symlink %s into %s", p.SourcePath, p.TargetPath), err)
		}
		return nil
	case "fail":
		return services.Wrap(
			services.ErrCrossDevice,
			"linking",
			"link file",
			"Source and library are on different filesystems; set linker.on_cross_device to copy or symlink",
			nil,
		)
	default:
		return services.Wrap(
			services.ErrConfiguration,
			"linking",
			"link file",
			fmt.Sprintf("Unknown cross-device policy %q", l.cfg.Linker.OnCrossDevice),
			nil,
		)
	}
}

// acceptExisting decides whether an already-present target is this source's
// earlier materialization. A hard link shares the source's inode, a symlink
// resolves back to the source, and a finished cross-device copy has its own
// inode on another device but matches the source size. Anything else is a
// foreign claim.
func (l *Linker) acceptExisting(p plan.Plan) error {
	srcInfo, err := os.Stat(p.SourcePath)
	if err != nil {
		return services.Wrap(services.ErrIO, "linking", "inspect source", fmt.Sprintf("Cannot stat %s", p.SourcePath), err)
	}
	dstInfo, err := os.Lstat(p.TargetPath)
	if err != nil {
		return services.Wrap(services.ErrIO, "linking", "inspect target", fmt.Sprintf("Cannot stat %s", p.TargetPath), err)
	}

	if dstInfo.Mode()&fs.ModeSymlink != 0 {
		if resolved, err := os.Readlink(p.TargetPath); err == nil && resolved == p.SourcePath {
			return nil
		}
	} else {
		if os.SameFile(srcInfo, dstInfo) {
			return nil
		}
		if l.cfg.Linker.OnCrossDevice == "copy" && differentDevices(srcInfo, dstInfo) && dstInfo.Size() == srcInfo.Size() {
			return nil
		}
	}

	return services.Wrap(
		services.ErrCollision,
		"linking",
		"link file",
		fmt.Sprintf("Target %s already exists and was not created from %s; resolve the conflict manually", p.TargetPath, p.SourcePath),
		nil,
	)
}

func differentDevices(a, b os.FileInfo) bool {
	statA, okA := a.Sys().(*syscall.Stat_t)
	statB, okB := b.Sys().(*syscall.Stat_t)
	return okA && okB && statA.Dev != statB.Dev
}

// pathLocks serializes materialization per target path so the manifest check
// and the filesystem mutation behind it are race-free across workers.
type pathLocks struct {
	mu      sync.Mutex
	entries map[string]*pathLockEntry
}

type pathLockEntry struct {
	mu   sync.Mutex
	refs int
}

func newPathLocks() *pathLocks {
	return &pathLocks{entries: make(map[string]*pathLockEntry)}
}

// lock blocks until the path's lock is held and returns the release func.
// Entries are reference-counted so the map only holds contended paths.
func (p *pathLocks) lock(path string) func() {
	p.mu.Lock()
	entry, ok := p.entries[path]
	if !ok {
		entry = &pathLockEntry{}
		p.entries[path] = entry
	}
	entry.refs++
	p.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		p.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(p.entries, path)
		}
		p.mu.Unlock()
	}
}
