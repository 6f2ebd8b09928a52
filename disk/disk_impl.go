package disk

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

var _ Device = (*fileDevice)(nil)

type fileDevice struct {
	fd     int
	size   uint64
	iosz   uint64
	pos    uint64
	closed bool
}

// OpenFileDevice opens path as a device. An empty regular file is grown to
// size bytes; an existing one keeps its size, truncated down to a whole
// number of transfers.
func OpenFileDevice(path string, size uint64, iosz uint64) (*fileDevice, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT, 0666)
	if err != nil {
		return nil, fmt.Errorf("disk: open %s: %w", path, err)
	}
	var stat unix.Stat_t
	err = unix.Fstat(fd, &stat)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("disk: stat %s: %w", path, err)
	}
	if (stat.Mode&unix.S_IFMT) == unix.S_IFREG && stat.Size > 0 {
		size = uint64(stat.Size) / iosz * iosz
	} else if (stat.Mode & unix.S_IFMT) == unix.S_IFREG {
		err = unix.Ftruncate(fd, int64(size))
		if err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("disk: truncate %s: %w", path, err)
		}
	}
	return &fileDevice{fd: fd, size: size, iosz: iosz}, nil
}

func (d *fileDevice) Seek(off uint64) error {
	if d.closed {
		return ErrClosed
	}
	if err := checkSeek(off, d.size, d.iosz); err != nil {
		return err
	}
	d.pos = off
	return nil
}

func (d *fileDevice) Read(b []byte) error {
	if d.closed {
		return ErrClosed
	}
	if err := checkTransfer(d.pos, d.size, d.iosz, b); err != nil {
		return err
	}
	n, err := unix.Pread(d.fd, b, int64(d.pos))
	if err != nil {
		return fmt.Errorf("disk: read at %d: %w", d.pos, err)
	}
	if uint64(n) != d.iosz {
		return fmt.Errorf("disk: short read at %d: %d bytes", d.pos, n)
	}
	d.pos += d.iosz
	return nil
}

func (d *fileDevice) Write(b []byte) error {
	if d.closed {
		return ErrClosed
	}
	if err := checkTransfer(d.pos, d.size, d.iosz, b); err != nil {
		return err
	}
	n, err := unix.Pwrite(d.fd, b, int64(d.pos))
	if err != nil {
		return fmt.Errorf("disk: write at %d: %w", d.pos, err)
	}
	if uint64(n) != d.iosz {
		return fmt.Errorf("disk: short write at %d: %d bytes", d.pos, n)
	}
	d.pos += d.iosz
	return nil
}

func (d *fileDevice) Size() uint64 {
	return d.size
}

func (d *fileDevice) IOSize() uint64 {
	return d.iosz
}

func (d *fileDevice) Close() error {
	if d.closed {
		return ErrClosed
	}
	d.closed = true
	// NOTE: on macOS, this flushes to the drive but doesn't actually issue a
	// disk barrier.
	if err := unix.Fsync(d.fd); err != nil {
		unix.Close(d.fd)
		return fmt.Errorf("disk: sync: %w", err)
	}
	return unix.Close(d.fd)
}

/////////////////////////
/////////////////////////

var _ Device = (*MemDevice)(nil)

// MemDevice is a zero-initialized device held in memory. Its contents
// survive Close, so a closed device can be handed to Reopen and mounted
// again.
type MemDevice struct {
	l      *sync.RWMutex
	data   []byte
	iosz   uint64
	pos    uint64
	closed bool
}

func NewMemDevice(size uint64, iosz uint64) *MemDevice {
	return &MemDevice{l: new(sync.RWMutex), data: make([]byte, size), iosz: iosz}
}

// Reopen returns a fresh handle on the same storage.
func (d *MemDevice) Reopen() *MemDevice {
	return &MemDevice{l: d.l, data: d.data, iosz: d.iosz}
}

// Bytes exposes the raw contents, for inspection in tests.
func (d *MemDevice) Bytes() []byte {
	return d.data
}

func (d *MemDevice) Seek(off uint64) error {
	if d.closed {
		return ErrClosed
	}
	if err := checkSeek(off, uint64(len(d.data)), d.iosz); err != nil {
		return err
	}
	d.pos = off
	return nil
}

func (d *MemDevice) Read(b []byte) error {
	if d.closed {
		return ErrClosed
	}
	if err := checkTransfer(d.pos, uint64(len(d.data)), d.iosz, b); err != nil {
		return err
	}
	d.l.RLock()
	copy(b, d.data[d.pos:d.pos+d.iosz])
	d.l.RUnlock()
	d.pos += d.iosz
	return nil
}

func (d *MemDevice) Write(b []byte) error {
	if d.closed {
		return ErrClosed
	}
	if err := checkTransfer(d.pos, uint64(len(d.data)), d.iosz, b); err != nil {
		return err
	}
	d.l.Lock()
	copy(d.data[d.pos:d.pos+d.iosz], b)
	d.l.Unlock()
	d.pos += d.iosz
	return nil
}

func (d *MemDevice) Size() uint64 {
	// this never changes so we assume it's safe to run lock-free
	return uint64(len(d.data))
}

func (d *MemDevice) IOSize() uint64 {
	return d.iosz
}

func (d *MemDevice) Close() error {
	if d.closed {
		return ErrClosed
	}
	d.closed = true
	return nil
}
