//go:build linux

package posix

import (
	"encoding/binary"
	"fmt"

	pxattr "github.com/pkg/xattr"
	"golang.org/x/sys/unix"

	"github.com/robinhood-suite/robinhood4-sub002/internal/value"
)

// listXattrs lists and fetches every xattr for fd through
// /proc/self/fd/N (so relative O_PATH descriptors work too),
// skipping E2BIG/ENODATA/ENOTSUP and projecting each value through
// typeMap (default: string).
func listXattrs(fd int, typeMap map[string]XattrType) (map[string]value.Value, error) {
	procPath := fmt.Sprintf("/proc/self/fd/%d", fd)
	names, err := pxattr.List(procPath)
	if err != nil {
		if isSkippableXattrErr(err) {
			return nil, nil
		}
		return nil, err
	}
	if len(names) == 0 {
		return nil, nil
	}
	out := make(map[string]value.Value, len(names))
	for _, name := range names {
		raw, err := pxattr.Get(procPath, name)
		if err != nil {
			if isSkippableXattrErr(err) {
				continue
			}
			return nil, err
		}
		if len(raw) > 64*1024 {
			continue // values are capped at 64 KiB
		}
		out[name] = projectXattr(raw, typeMap[name])
	}
	return out, nil
}

func isSkippableXattrErr(err error) bool {
	xe, ok := err.(*pxattr.Error)
	if !ok {
		return false
	}
	switch xe.Err {
	case unix.E2BIG, unix.ENODATA, unix.ENOTSUP:
		return true
	default:
		return false
	}
}

func projectXattr(raw []byte, typ XattrType) value.Value {
	switch typ {
	case XattrBinary:
		return value.Binary(raw)
	case XattrUint32:
		if len(raw) >= 4 {
			return value.Uint32(binary.LittleEndian.Uint32(raw))
		}
	case XattrUint64:
		if len(raw) >= 8 {
			return value.Uint64(binary.LittleEndian.Uint64(raw))
		}
	case XattrInt32:
		if len(raw) >= 4 {
			return value.Int32(int32(binary.LittleEndian.Uint32(raw)))
		}
	case XattrInt64:
		if len(raw) >= 8 {
			return value.Int64(int64(binary.LittleEndian.Uint64(raw)))
		}
	}
	return value.String(string(raw))
}
