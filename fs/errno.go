package fs

import (
	"errors"

	"golang.org/x/sys/unix"

	"github.com/mit-pdos/go-newfs/common"
)

var errnos = []struct {
	err   error
	errno unix.Errno
}{
	{common.ErrNoSpace, unix.ENOSPC},
	{common.ErrNotFound, unix.ENOENT},
	{common.ErrExists, unix.EEXIST},
	{common.ErrIsDir, unix.EISDIR},
	{common.ErrNotDir, unix.ENOTDIR},
	{common.ErrNotEmpty, unix.ENOTEMPTY},
	{common.ErrInvalid, unix.EINVAL},
	{common.ErrUnsupported, unix.ENXIO},
	{common.ErrAccess, unix.EACCES},
	{common.ErrNotMounted, unix.ENODEV},
	{common.ErrIO, unix.EIO},
}

// Errno maps an error from the core to the errno a POSIX adapter returns.
// nil maps to 0 and unknown errors to EIO.
func Errno(err error) unix.Errno {
	if err == nil {
		return 0
	}
	for _, e := range errnos {
		if errors.Is(err, e.err) {
			return e.errno
		}
	}
	return unix.EIO
}
