//go:build linux

package posix

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/robinhood-suite/robinhood4-sub002/internal/rherr"
	"github.com/robinhood-suite/robinhood4-sub002/internal/value"
)

// posixBackendTag identifies Ids minted by this package to
// value.Id.Backend
const posixBackendTag uint8 = 1

// deriveID derives a stable Id for fd via name_to_handle_at with
// AT_EMPTY_PATH, packing the handle as "type byte(s) + handle bytes".
// The wrapper retries on EOVERFLOW itself until the kernel's handle
// fits, so a single call suffices.
func deriveID(fd int) (value.Id, error) {
	handle, _, err := unix.NameToHandleAt(fd, "", unix.AT_EMPTY_PATH)
	if err != nil {
		return value.Id{}, rherr.Wrap(rherr.BackendError, err)
	}
	return value.Id{Backend: posixBackendTag, Bytes: encodeHandle(handle)}, nil
}

// encodeHandle packs a FileHandle's type and opaque bytes into one byte
// string so it can be stored verbatim as a value.Id.
func encodeHandle(h unix.FileHandle) []byte {
	b := h.Bytes()
	out := make([]byte, 4+len(b))
	typ := uint32(h.Type())
	out[0] = byte(typ)
	out[1] = byte(typ >> 8)
	out[2] = byte(typ >> 16)
	out[3] = byte(typ >> 24)
	copy(out[4:], b)
	return out
}

func decodeHandle(id value.Id) (unix.FileHandle, error) {
	if len(id.Bytes) < 4 {
		return unix.FileHandle{}, rherr.New(rherr.Invalid, "id too short to be a file handle")
	}
	typ := int32(id.Bytes[0]) | int32(id.Bytes[1])<<8 | int32(id.Bytes[2])<<16 | int32(id.Bytes[3])<<24
	return unix.NewFileHandle(typ, id.Bytes[4:]), nil
}

// openByHandle reopens the inode referenced by id without ever having
// held a descriptor across the call boundary.
func openByHandle(mountFd int, id value.Id, flags int) (*os.File, error) {
	h, err := decodeHandle(id)
	if err != nil {
		return nil, err
	}
	fd, err := unix.OpenByHandleAt(mountFd, h, flags)
	if err != nil {
		return nil, classifyOpenErr(err)
	}
	return os.NewFile(uintptr(fd), "<by-handle>"), nil
}

func classifyOpenErr(err error) error {
	switch err {
	case unix.ESTALE:
		return rherr.Wrap(rherr.Stale, err)
	case unix.ENOENT:
		return rherr.Wrap(rherr.NotFound, err)
	default:
		return rherr.Wrap(rherr.BackendError, err)
	}
}
