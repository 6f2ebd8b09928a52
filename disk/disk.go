package disk

import (
	"errors"
	"fmt"
	"strings"
)

// Device provides access to a block-addressable storage backend.
//
// Transfers move exactly IOSize() bytes at the current position, which Seek
// sets and every transfer advances.
type Device interface {
	// Seek moves the position to off.
	//
	// Expects off to be a multiple of IOSize().
	Seek(off uint64) error

	// Read fills b from the current position.
	//
	// Expects len(b) == IOSize().
	Read(b []byte) error

	// Write stores b at the current position.
	//
	// Expects len(b) == IOSize().
	Write(b []byte) error

	// Size reports how big the device is, in bytes
	Size() uint64

	// IOSize reports the native transfer size, in bytes
	IOSize() uint64

	// Close releases any resources used by the device and makes it unusable.
	Close() error
}

var (
	ErrUnaligned   = errors.New("disk: unaligned transfer")
	ErrOutOfBounds = errors.New("disk: out-of-bounds transfer")
	ErrClosed      = errors.New("disk: device closed")
)

const (
	DefaultSize   uint64 = 4 * 1024 * 1024
	DefaultIOSize uint64 = 512
)

// Params tells Open how to create a device the identifier does not size.
type Params struct {
	Size   uint64
	IOSize uint64
}

// Open opens the device named by id. The scheme selects the backend:
//
//	mem:<name>   a zeroed in-memory device
//	blk:<path>   a goose block disk backed by path (4096-byte transfers)
//	<path>       a file, created with p.Size bytes when missing or empty
func Open(id string, p Params) (Device, error) {
	if p.Size == 0 {
		p.Size = DefaultSize
	}
	if p.IOSize == 0 {
		p.IOSize = DefaultIOSize
	}
	if p.Size%p.IOSize != 0 {
		return nil, fmt.Errorf("disk: size %d is not a multiple of io size %d",
			p.Size, p.IOSize)
	}
	switch {
	case id == "":
		return nil, errors.New("disk: empty device identifier")
	case strings.HasPrefix(id, "mem:"):
		return NewMemDevice(p.Size, p.IOSize), nil
	case strings.HasPrefix(id, "blk:"):
		return OpenBlockDevice(strings.TrimPrefix(id, "blk:"), p.Size)
	}
	return OpenFileDevice(id, p.Size, p.IOSize)
}

func checkTransfer(pos, size, iosz uint64, b []byte) error {
	if uint64(len(b)) != iosz {
		return fmt.Errorf("%w: buffer is %d bytes, want %d", ErrUnaligned,
			len(b), iosz)
	}
	if pos+iosz > size {
		return fmt.Errorf("%w: at %d", ErrOutOfBounds, pos)
	}
	return nil
}

func checkSeek(off, size, iosz uint64) error {
	if off%iosz != 0 {
		return fmt.Errorf("%w: seek to %d", ErrUnaligned, off)
	}
	if off > size {
		return fmt.Errorf("%w: seek to %d", ErrOutOfBounds, off)
	}
	return nil
}
