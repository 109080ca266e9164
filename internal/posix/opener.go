//go:build linux

package posix

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"

	"github.com/robinhood-suite/robinhood4-sub002/internal/fsentry"
	"github.com/robinhood-suite/robinhood4-sub002/internal/rherr"
	"github.com/robinhood-suite/robinhood4-sub002/internal/value"
)

// Opener resolves event Ids back to open descriptors against one mount
// fd, the way the enricher pipeline reopens inodes referenced by
// incoming fsevents. It satisfies internal/enrich.Opener.
type Opener struct {
	MountFd   int
	StatxSync SyncType
}

// NewOpener opens mountPath and keeps its descriptor for every
// subsequent open-by-handle call.
func NewOpener(mountPath string) (*Opener, error) {
	fd, err := unix.Open(mountPath, unix.O_RDONLY|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, rherr.Wrap(rherr.BackendError, err)
	}
	return &Opener{MountFd: fd}, nil
}

// Open reopens the inode id references, retrying with O_PATH on
// ELOOP, and returns its fd, a fresh statx, and a close function.
func (o *Opener) Open(id value.Id) (int, fsentry.Statx, func() error, error) {
	f, err := openByHandle(o.MountFd, id, unix.O_RDONLY|unix.O_NOFOLLOW|unix.O_NONBLOCK|unix.O_CLOEXEC)
	if errors.Is(err, unix.ELOOP) {
		f, err = openByHandle(o.MountFd, id, unix.O_PATH|unix.O_NOFOLLOW|unix.O_CLOEXEC)
	}
	if err != nil {
		return -1, fsentry.Statx{}, nil, err
	}
	stx, err := statEntry(int(f.Fd()), o.StatxSync)
	if err != nil {
		f.Close()
		return -1, fsentry.Statx{}, nil, err
	}
	return int(f.Fd()), stx, f.Close, nil
}

// Readlink reads the symlink target of fd via readlinkat with an empty
// path, which operates on the descriptor itself and so works for
// O_PATH descriptors too.
func (o *Opener) Readlink(fd int) (string, error) {
	size := os.Getpagesize() - 1
	for {
		buf := make([]byte, size)
		n, err := unix.Readlinkat(fd, "", buf)
		if err != nil {
			return "", rherr.Wrap(rherr.BackendError, err)
		}
		if n < size || size >= maxReadlinkBuf {
			return string(buf[:n]), nil
		}
		size *= 2
		if size > maxReadlinkBuf {
			size = maxReadlinkBuf
		}
	}
}

// Close releases the mount descriptor.
func (o *Opener) Close() error { return unix.Close(o.MountFd) }
