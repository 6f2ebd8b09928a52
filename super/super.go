// super describes the on-disk geometry of a newfs volume:
//
//	| super | inode bitmap | data bitmap | inode table | data blocks |
//
// Every region starts on a block boundary. The superblock descriptor lives
// at offset 0; its magic number tells a formatted volume from a blank one.
package super

import (
	"fmt"

	"github.com/tchajed/marshal"

	"github.com/mit-pdos/go-newfs/buf"
	"github.com/mit-pdos/go-newfs/common"
	"github.com/mit-pdos/go-newfs/util"
)

// Super is the superblock descriptor as stored on disk. All offsets are in
// bytes from the start of the device.
type Super struct {
	Magic    uint64
	Usage    uint64 // bytes of file content in use
	MaxIno   uint64
	MaxData  uint64
	IMapBlks uint64
	IMapOff  uint64
	DMapBlks uint64
	DMapOff  uint64
	ITabOff  uint64
	DataOff  uint64
}

const (
	SuperBlks uint64 = (common.SUPERSZ + common.BlockSize - 1) / common.BlockSize
	DMapBlks  uint64 = 1
	maxBnum   uint64 = 1 << 16 // data-block indices are stored in 16 bits
)

func blks(n uint64) uint64 {
	return n * common.BlockSize
}

// MkFresh computes the geometry of a blank device of diskSz bytes. The inode
// count is fixed; data blocks take whatever the metadata leaves, capped by
// what the data bitmap and 16-bit block indices can address.
func MkFresh(diskSz uint64) (*Super, error) {
	imapBlks := util.RoundUp(common.MAXINODE, common.NBITBLOCK)
	itabBlks := util.RoundUp(common.INODESZ*common.MAXINODE, common.BlockSize)
	meta := SuperBlks + imapBlks + DMapBlks + itabBlks
	total := diskSz / common.BlockSize
	if total <= meta {
		return nil, fmt.Errorf("%w: device of %d bytes cannot hold %d metadata blocks",
			common.ErrNoSpace, diskSz, meta)
	}
	maxData := util.Min(total-meta, DMapBlks*common.NBITBLOCK)
	maxData = util.Min(maxData, maxBnum)

	sb := &Super{
		Magic:    common.MAGIC,
		Usage:    0,
		MaxIno:   common.MAXINODE,
		MaxData:  maxData,
		IMapBlks: imapBlks,
		DMapBlks: DMapBlks,
	}
	sb.IMapOff = common.SUPEROFF + blks(SuperBlks)
	sb.DMapOff = sb.IMapOff + blks(imapBlks)
	sb.ITabOff = sb.DMapOff + blks(DMapBlks)
	sb.DataOff = sb.ITabOff + blks(itabBlks)
	return sb, nil
}

func (sb *Super) Encode() []byte {
	enc := marshal.NewEnc(common.SUPERSZ)
	enc.PutInt(sb.Magic)
	enc.PutInt(sb.Usage)
	enc.PutInt(sb.MaxIno)
	enc.PutInt(sb.MaxData)
	enc.PutInt(sb.IMapBlks)
	enc.PutInt(sb.IMapOff)
	enc.PutInt(sb.DMapBlks)
	enc.PutInt(sb.DMapOff)
	enc.PutInt(sb.ITabOff)
	enc.PutInt(sb.DataOff)
	return enc.Finish()
}

func Decode(b []byte) *Super {
	dec := marshal.NewDec(b)
	sb := &Super{}
	sb.Magic = dec.GetInt()
	sb.Usage = dec.GetInt()
	sb.MaxIno = dec.GetInt()
	sb.MaxData = dec.GetInt()
	sb.IMapBlks = dec.GetInt()
	sb.IMapOff = dec.GetInt()
	sb.DMapBlks = dec.GetInt()
	sb.DMapOff = dec.GetInt()
	sb.ITabOff = dec.GetInt()
	sb.DataOff = dec.GetInt()
	return sb
}

func (sb *Super) Formatted() bool {
	return sb.Magic == common.MAGIC
}

// Check verifies that a stored geometry is usable on a device of diskSz
// bytes: regions in order, block aligned, bitmaps large enough, everything
// inside the device.
func (sb *Super) Check(diskSz uint64) error {
	aligned := func(off uint64) bool { return off%common.BlockSize == 0 }
	switch {
	case !sb.Formatted():
		return fmt.Errorf("%w: bad magic %d", common.ErrInvalid, sb.Magic)
	case !aligned(sb.IMapOff) || !aligned(sb.DMapOff) ||
		!aligned(sb.ITabOff) || !aligned(sb.DataOff):
		return fmt.Errorf("%w: unaligned region", common.ErrInvalid)
	case sb.IMapOff < blks(SuperBlks) ||
		sb.DMapOff < sb.IMapOff+blks(sb.IMapBlks) ||
		sb.ITabOff < sb.DMapOff+blks(sb.DMapBlks) ||
		sb.DataOff < sb.ITabOff+sb.MaxIno*common.INODESZ:
		return fmt.Errorf("%w: overlapping regions", common.ErrInvalid)
	case sb.MaxIno > sb.IMapBlks*common.NBITBLOCK ||
		sb.MaxData > sb.DMapBlks*common.NBITBLOCK || sb.MaxData > maxBnum:
		return fmt.Errorf("%w: bitmaps too small", common.ErrInvalid)
	case sb.MaxIno == 0 || sb.MaxData == 0 ||
		sb.DataOff+blks(sb.MaxData) > diskSz:
		return fmt.Errorf("%w: geometry exceeds device of %d bytes",
			common.ErrInvalid, diskSz)
	}
	return nil
}

// Addr is where the superblock descriptor lives.
func Addr() buf.Addr {
	return buf.MkAddr(common.SUPEROFF, common.SUPERSZ)
}

func (sb *Super) IMapAddr() buf.Addr {
	return buf.MkAddr(sb.IMapOff, blks(sb.IMapBlks))
}

func (sb *Super) DMapAddr() buf.Addr {
	return buf.MkAddr(sb.DMapOff, blks(sb.DMapBlks))
}

// InodeAddr is the inode-table slot of ino.
func (sb *Super) InodeAddr(ino common.Inum) buf.Addr {
	return buf.MkAddr(sb.ITabOff+uint64(ino)*common.INODESZ, common.INODESZ)
}

// DataAddr is data block bn.
func (sb *Super) DataAddr(bn common.Bnum) buf.Addr {
	return buf.MkAddr(sb.DataOff+blks(bn), common.BlockSize)
}

func (sb *Super) String() string {
	return fmt.Sprintf("super{ino %d@%d data %d@%d imap %d@%d dmap %d@%d usage %d}",
		sb.MaxIno, sb.ITabOff, sb.MaxData, sb.DataOff, sb.IMapBlks, sb.IMapOff,
		sb.DMapBlks, sb.DMapOff, sb.Usage)
}
