//go:build linux

package posix

import (
	"golang.org/x/sys/unix"

	"github.com/robinhood-suite/robinhood4-sub002/internal/fsentry"
	"github.com/robinhood-suite/robinhood4-sub002/internal/rherr"
)

// statxForceSyncSupported probes whether this kernel accepts
// AT_STATX_FORCE_SYNC at all (statx landed in 4.11; the sync flags are
// rejected with EINVAL on kernels that predate them).
func statxForceSyncSupported() bool {
	var stx unix.Statx_t
	err := unix.Statx(unix.AT_FDCWD, ".", unix.AT_STATX_FORCE_SYNC, unix.STATX_TYPE, &stx)
	return err != unix.ENOSYS && err != unix.EINVAL
}

func syncFlag(t SyncType) uint32 {
	switch t {
	case ForceSync:
		return unix.AT_STATX_FORCE_SYNC
	case DontSync:
		return unix.AT_STATX_DONT_SYNC
	default:
		return unix.AT_STATX_SYNC_AS_STAT
	}
}

// statEntry statx's fd with AT_EMPTY_PATH|AT_SYMLINK_NOFOLLOW|AT_NO_AUTOMOUNT
// ORed with the configured sync type, requesting basic stats plus btime
// and mnt_id.
func statEntry(fd int, sync SyncType) (fsentry.Statx, error) {
	var stx unix.Statx_t
	flags := unix.AT_EMPTY_PATH | unix.AT_SYMLINK_NOFOLLOW | unix.AT_NO_AUTOMOUNT | int(syncFlag(sync))
	mask := unix.STATX_BASIC_STATS | unix.STATX_BTIME | unix.STATX_MNT_ID
	err := unix.Statx(fd, "", flags, mask, &stx)
	if err != nil {
		if err == unix.ENOSYS && sync == ForceSync {
			return fsentry.Statx{}, rherr.New(rherr.NotSupported, "statx FORCE_SYNC unavailable on this kernel")
		}
		return fsentry.Statx{}, rherr.Wrap(rherr.BackendError, err)
	}
	return convertStatx(stx), nil
}

func convertStatx(s unix.Statx_t) fsentry.Statx {
	out := fsentry.Statx{
		Mask:    fsentry.StatxMode | fsentry.StatxUID | fsentry.StatxGID | fsentry.StatxNlink | fsentry.StatxSize | fsentry.StatxBlocks | fsentry.StatxIno | fsentry.StatxType | fsentry.StatxAtime | fsentry.StatxMtime | fsentry.StatxCtime | fsentry.StatxDev | fsentry.StatxRdev,
		Mode:    s.Mode,
		UID:     s.Uid,
		GID:     s.Gid,
		Nlink:   s.Nlink,
		Size:    s.Size,
		Blocks:  s.Blocks,
		Ino:     s.Ino,
		Dev:     devFromRdev(s.Dev_major, s.Dev_minor),
		Rdev:    devFromRdev(s.Rdev_major, s.Rdev_minor),
		Atime:   fsentry.Timespec{Sec: s.Atime.Sec, Nsec: int32(s.Atime.Nsec)},
		Mtime:   fsentry.Timespec{Sec: s.Mtime.Sec, Nsec: int32(s.Mtime.Nsec)},
		Ctime:   fsentry.Timespec{Sec: s.Ctime.Sec, Nsec: int32(s.Ctime.Nsec)},
		Type:    statxFileType(s.Mode),
		MountID: uint64(s.Mnt_id),
	}
	if s.Mask&unix.STATX_BTIME != 0 {
		out.Mask |= fsentry.StatxBtime
		out.Btime = fsentry.Timespec{Sec: s.Btime.Sec, Nsec: int32(s.Btime.Nsec)}
	}
	return out
}

func devFromRdev(major, minor uint32) uint64 {
	return unix.Mkdev(major, minor)
}

func statxFileType(mode uint16) fsentry.FileType {
	switch mode & unix.S_IFMT {
	case unix.S_IFDIR:
		return fsentry.TypeDirectory
	case unix.S_IFLNK:
		return fsentry.TypeSymlink
	case unix.S_IFREG:
		return fsentry.TypeRegular
	case unix.S_IFIFO:
		return fsentry.TypeFIFO
	case unix.S_IFBLK:
		return fsentry.TypeBlockDev
	case unix.S_IFCHR:
		return fsentry.TypeCharDev
	case unix.S_IFSOCK:
		return fsentry.TypeSocket
	default:
		return fsentry.TypeUnknown
	}
}
