package inode

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/tchajed/marshal"

	"github.com/mit-pdos/go-newfs/common"
)

type Inode struct {
	Ino    common.Inum
	Size   uint64
	DirCnt uint64 // directories only
	Link   uint64
	Blocks [common.NDIRECT]common.Bnum // only Blocks[0] is used

	Dentry   DentryID // the dentry naming this inode; not owned
	Children DentryID // head of the child list, newest first
	Data     []byte   // regular files: one block of content
}

// Dinode is the on-disk inode descriptor.
type Dinode struct {
	Ino    common.Inum
	Size   uint64
	DirCnt uint64
	Type   common.FileType
	Link   uint64
	Blocks [common.NDIRECT]uint16
}

const dinodeHdr uint64 = 5 * 8

func (in *Inode) Dinode(typ common.FileType) *Dinode {
	di := &Dinode{
		Ino:    in.Ino,
		Size:   in.Size,
		DirCnt: in.DirCnt,
		Type:   typ,
		Link:   in.Link,
	}
	for i, bn := range in.Blocks {
		di.Blocks[i] = uint16(bn)
	}
	return di
}

// MkInode returns an unlinked in-memory inode for di.
func MkInode(di *Dinode) *Inode {
	in := &Inode{
		Ino:      di.Ino,
		Size:     di.Size,
		DirCnt:   0,
		Link:     di.Link,
		Dentry:   NoDentry,
		Children: NoDentry,
	}
	for i, bn := range di.Blocks {
		in.Blocks[i] = common.Bnum(bn)
	}
	return in
}

func (di *Dinode) Encode() []byte {
	enc := marshal.NewEnc(dinodeHdr)
	enc.PutInt(uint64(di.Ino))
	enc.PutInt(di.Size)
	enc.PutInt(di.DirCnt)
	enc.PutInt(uint64(di.Type))
	enc.PutInt(di.Link)
	b := make([]byte, common.INODESZ)
	copy(b, enc.Finish())
	for i, bn := range di.Blocks {
		binary.LittleEndian.PutUint16(b[dinodeHdr+2*uint64(i):], bn)
	}
	return b
}

func DecodeDinode(b []byte) *Dinode {
	dec := marshal.NewDec(b[:dinodeHdr])
	di := &Dinode{}
	di.Ino = common.Inum(dec.GetInt())
	di.Size = dec.GetInt()
	di.DirCnt = dec.GetInt()
	di.Type = common.FileType(dec.GetInt())
	di.Link = dec.GetInt()
	for i := range di.Blocks {
		di.Blocks[i] = binary.LittleEndian.Uint16(b[dinodeHdr+2*uint64(i):])
	}
	return di
}

// Ddentry is the on-disk dentry descriptor: a zero-padded name field, the
// type tag and the target inode.
type Ddentry struct {
	Name string
	Type common.FileType
	Ino  common.Inum
}

func (dd *Ddentry) Encode() []byte {
	b := make([]byte, common.DENTRYSZ)
	copy(b[:common.MAXNAMELEN], dd.Name)
	enc := marshal.NewEnc(2 * 8)
	enc.PutInt(uint64(dd.Type))
	enc.PutInt(uint64(dd.Ino))
	copy(b[common.MAXNAMELEN:], enc.Finish())
	return b
}

func DecodeDdentry(b []byte) *Ddentry {
	name := b[:common.MAXNAMELEN]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	dec := marshal.NewDec(b[common.MAXNAMELEN:common.DENTRYSZ])
	dd := &Ddentry{Name: string(name)}
	dd.Type = common.FileType(dec.GetInt())
	dd.Ino = common.Inum(dec.GetInt())
	return dd
}

// CheckName reports whether name fits a dentry: non-empty, no separator,
// no NUL, at most MAXNAMELEN bytes.
func CheckName(name string) error {
	switch {
	case name == "" || name == "." || name == "..":
		return fmt.Errorf("%w: name %q", common.ErrInvalid, name)
	case uint64(len(name)) > common.MAXNAMELEN:
		return fmt.Errorf("%w: name longer than %d bytes", common.ErrInvalid,
			common.MAXNAMELEN)
	case strings.ContainsAny(name, "/\x00"):
		return fmt.Errorf("%w: name %q", common.ErrInvalid, name)
	}
	return nil
}
