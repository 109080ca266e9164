//go:build linux

package posix

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/robinhood-suite/robinhood4-sub002/internal/rherr"
	"github.com/robinhood-suite/robinhood4-sub002/internal/value"
)

// ResolvePath resolves the real path of id via open-by-handle plus
// readlink(/proc/self/fd/N), for use when a branch is given an
// id but no path.
func ResolvePath(mountFd int, id value.Id) (string, error) {
	f, err := openByHandle(mountFd, id, unix.O_PATH)
	if err != nil {
		return "", err
	}
	defer f.Close()

	proc := fmt.Sprintf("/proc/self/fd/%d", f.Fd())
	buf := make([]byte, os.Getpagesize())
	n, err := unix.Readlink(proc, buf)
	if err != nil {
		return "", rherr.Wrap(rherr.BackendError, err)
	}
	return string(buf[:n]), nil
}
