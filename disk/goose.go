package disk

import (
	"fmt"

	gdisk "github.com/tchajed/goose/machine/disk"
)

var _ Device = (*BlockDevice)(nil)

// BlockDevice adapts a goose block disk, whose native transfer is one
// gdisk.BlockSize block, to the Device contract.
type BlockDevice struct {
	d       gdisk.Disk
	nblocks uint64
	pos     uint64
	closed  bool
}

// NewBlockDevice wraps d, which must hold nblocks blocks.
func NewBlockDevice(d gdisk.Disk, nblocks uint64) *BlockDevice {
	return &BlockDevice{d: d, nblocks: nblocks}
}

// OpenBlockDevice opens a goose file disk at path holding at least size
// bytes.
func OpenBlockDevice(path string, size uint64) (*BlockDevice, error) {
	nblocks := (size + gdisk.BlockSize - 1) / gdisk.BlockSize
	d, err := gdisk.NewFileDisk(path, nblocks)
	if err != nil {
		return nil, fmt.Errorf("disk: open block disk %s: %w", path, err)
	}
	return NewBlockDevice(d, nblocks), nil
}

func (d *BlockDevice) Seek(off uint64) error {
	if d.closed {
		return ErrClosed
	}
	if err := checkSeek(off, d.Size(), gdisk.BlockSize); err != nil {
		return err
	}
	d.pos = off
	return nil
}

func (d *BlockDevice) Read(b []byte) error {
	if d.closed {
		return ErrClosed
	}
	if err := checkTransfer(d.pos, d.Size(), gdisk.BlockSize, b); err != nil {
		return err
	}
	blk := d.d.Read(d.pos / gdisk.BlockSize)
	copy(b, blk)
	d.pos += gdisk.BlockSize
	return nil
}

func (d *BlockDevice) Write(b []byte) error {
	if d.closed {
		return ErrClosed
	}
	if err := checkTransfer(d.pos, d.Size(), gdisk.BlockSize, b); err != nil {
		return err
	}
	// goose disks keep a reference to the block
	blk := make(gdisk.Block, gdisk.BlockSize)
	copy(blk, b)
	d.d.Write(d.pos/gdisk.BlockSize, blk)
	d.pos += gdisk.BlockSize
	return nil
}

func (d *BlockDevice) Size() uint64 {
	return d.nblocks * gdisk.BlockSize
}

func (d *BlockDevice) IOSize() uint64 {
	return gdisk.BlockSize
}

func (d *BlockDevice) Close() error {
	if d.closed {
		return ErrClosed
	}
	d.closed = true
	d.d.Barrier()
	d.d.Close()
	return nil
}
