package common

const (
	MAGIC    uint64 = 4444544
	SUPEROFF uint64 = 0

	// Logical block size; the device's native transfer size is independent.
	BlockSize uint64 = 1024
	NBITBLOCK uint64 = BlockSize * 8

	MAXINODE   uint64 = 512
	MAXNAMELEN uint64 = 128
	NDIRECT    uint64 = 6 // data-block slots per inode descriptor

	SUPERSZ  uint64 = 10 * 8
	INODESZ  uint64 = 64 // on-disk size, 52 bytes used
	DENTRYSZ uint64 = MAXNAMELEN + 2*8
	NDIRENTS uint64 = BlockSize / DENTRYSZ // dentries per directory block
)

type Inum uint64
type Bnum = uint64

const (
	ROOTINUM Inum = 0
	NULLINUM Inum = ^Inum(0) // dentry not yet attached to an inode
)

type FileType uint64

const (
	NF_REG FileType = 0
	NF_DIR FileType = 1
)

func (t FileType) String() string {
	switch t {
	case NF_REG:
		return "file"
	case NF_DIR:
		return "dir"
	}
	return "unknown"
}
