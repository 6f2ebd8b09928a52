package common

import "errors"

// Error kinds carried by the core. The adapter layer maps them to errno.
var (
	ErrIO          = errors.New("i/o error")
	ErrNoSpace     = errors.New("no space left on device")
	ErrNotFound    = errors.New("no such file or directory")
	ErrExists      = errors.New("file exists")
	ErrIsDir       = errors.New("is a directory")
	ErrNotDir      = errors.New("not a directory")
	ErrInvalid     = errors.New("invalid argument")
	ErrUnsupported = errors.New("operation not supported")
	ErrAccess      = errors.New("permission denied")
	ErrNotEmpty    = errors.New("directory not empty")
	ErrNotMounted  = errors.New("file system not mounted")
)
