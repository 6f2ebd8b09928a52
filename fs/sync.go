package fs

import (
	"fmt"
	"log/slog"

	"github.com/mit-pdos/go-newfs/common"
	"github.com/mit-pdos/go-newfs/inode"
)

// AttachInode gives dentry id a fresh inode and one data block. Regular
// files also get a zeroed content buffer. The dentry must not have an inode
// yet.
func (fs *FS) AttachInode(id inode.DentryID) (*inode.Inode, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if !fs.mounted {
		return nil, common.ErrNotMounted
	}
	if err := fs.checkLive(id); err != nil {
		return nil, err
	}
	return fs.attachInode(id)
}

// checkLive rejects dentry ids that were released or never handed out.
func (fs *FS) checkLive(id inode.DentryID) error {
	if !fs.tree.Live(id) {
		return fmt.Errorf("%w: dentry %v is not live", common.ErrInvalid, id)
	}
	return nil
}

// checkOwned rejects inodes the tree no longer holds, such as ones whose
// dentry was removed or detached.
func (fs *FS) checkOwned(in *inode.Inode) error {
	if !fs.tree.Owns(in) {
		return fmt.Errorf("%w: inode is not resolved in this session", common.ErrInvalid)
	}
	return nil
}

func (fs *FS) attachInode(id inode.DentryID) (*inode.Inode, error) {
	if d := fs.tree.Dentry(id); d.Ino != common.NULLINUM {
		return nil, fmt.Errorf("%w: dentry %q already has inode %d", common.ErrExists,
			d.Name, d.Ino)
	}
	ino, err := fs.imap.AllocNum()
	if err != nil {
		return nil, fmt.Errorf("allocate inode: %w", err)
	}
	bn, err := fs.dmap.AllocNum()
	if err != nil {
		if ferr := fs.imap.FreeNum(ino); ferr != nil {
			fs.log.Warn("free inode", slog.Uint64("ino", ino), slog.Any("error", ferr))
		}
		return nil, fmt.Errorf("allocate data block: %w", err)
	}
	in := &inode.Inode{
		Ino:      common.Inum(ino),
		Link:     1,
		Dentry:   inode.NoDentry,
		Children: inode.NoDentry,
	}
	in.Blocks[0] = bn
	fs.tree.Attach(id, in)
	if !fs.tree.IsDir(in) {
		in.Data = make([]byte, common.BlockSize)
	}
	return in, nil
}

// LinkChild puts child at the head of dir's child list and returns dir's
// new child count. child must be a detached dentry with a resolved inode
// and a name not already used in dir.
func (fs *FS) LinkChild(dir *inode.Inode, child inode.DentryID) (uint64, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if !fs.mounted {
		return 0, common.ErrNotMounted
	}
	if err := fs.checkOwned(dir); err != nil {
		return 0, err
	}
	if err := fs.checkLive(child); err != nil {
		return 0, err
	}
	return fs.linkChild(dir, child)
}

func (fs *FS) linkChild(dir *inode.Inode, child inode.DentryID) (uint64, error) {
	if !fs.tree.IsDir(dir) {
		return 0, common.ErrNotDir
	}
	d := fs.tree.Dentry(child)
	if child == fs.tree.Root() || d.Parent != inode.NoDentry {
		return 0, fmt.Errorf("%w: dentry %q is already linked", common.ErrInvalid, d.Name)
	}
	if _, ok := fs.tree.Inode(child); !ok {
		return 0, fmt.Errorf("%w: dentry %q has no inode", common.ErrInvalid, d.Name)
	}
	if _, ok := fs.tree.Find(dir, d.Name); ok {
		return 0, fmt.Errorf("%w: %q in directory %d", common.ErrExists, d.Name, dir.Ino)
	}
	if dir.DirCnt >= common.NDIRENTS {
		return 0, fmt.Errorf("%w: directory %d holds %d entries", common.ErrNoSpace,
			dir.Ino, dir.DirCnt)
	}
	return fs.tree.LinkChild(dir, child), nil
}

func (fs *FS) AllocDataBlock() (common.Bnum, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if !fs.mounted {
		return 0, common.ErrNotMounted
	}
	return fs.dmap.AllocNum()
}

// Flush writes in and everything resolved below it back to disk.
func (fs *FS) Flush(in *inode.Inode) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if !fs.mounted {
		return common.ErrNotMounted
	}
	if err := fs.checkOwned(in); err != nil {
		return err
	}
	return fs.flush(in)
}

// flush writes in's descriptor to its inode-table slot, then its data
// block: the packed dentry records of a directory, or a file's content.
// Children that were never loaded are already on disk and are skipped.
func (fs *FS) flush(in *inode.Inode) error {
	typ := fs.tree.Type(in)
	if err := fs.io.Write(fs.sb.InodeAddr(in.Ino).Off, in.Dinode(typ).Encode()); err != nil {
		fs.log.Error("flush inode", slog.Uint64("ino", uint64(in.Ino)), slog.Any("error", err))
		return err
	}
	data := fs.sb.DataAddr(in.Blocks[0])
	if typ == common.NF_REG {
		content := in.Data
		if content == nil {
			content = make([]byte, common.BlockSize)
		}
		if err := fs.io.Write(data.Off, content); err != nil {
			fs.log.Error("flush file", slog.Uint64("ino", uint64(in.Ino)), slog.Any("error", err))
			return err
		}
		return nil
	}

	children := fs.tree.Children(in)
	blk := make([]byte, common.BlockSize)
	for i, id := range children {
		d := fs.tree.Dentry(id)
		if d.Ino == common.NULLINUM {
			return fmt.Errorf("%w: dentry %q has no inode", common.ErrInvalid, d.Name)
		}
		dd := &inode.Ddentry{Name: d.Name, Type: d.Type, Ino: d.Ino}
		copy(blk[uint64(i)*common.DENTRYSZ:], dd.Encode())
	}
	if err := fs.io.Write(data.Off, blk); err != nil {
		fs.log.Error("flush directory", slog.Uint64("ino", uint64(in.Ino)), slog.Any("error", err))
		return err
	}
	for _, id := range children {
		if child, ok := fs.tree.Inode(id); ok {
			if err := fs.flush(child); err != nil {
				return err
			}
		}
	}
	return nil
}

// Load reads inode ino from disk and attaches it to dentry id.
func (fs *FS) Load(id inode.DentryID, ino common.Inum) (*inode.Inode, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if !fs.mounted {
		return nil, common.ErrNotMounted
	}
	if err := fs.checkLive(id); err != nil {
		return nil, err
	}
	return fs.load(id, ino)
}

// load materializes one level: a directory's children come back as
// unresolved dentries in the order they were flushed, a file's content as
// one block.
func (fs *FS) load(id inode.DentryID, ino common.Inum) (*inode.Inode, error) {
	if in, ok := fs.tree.Inode(id); ok {
		if in.Ino == ino {
			return in, nil
		}
		fs.tree.Detach(id)
	}
	if uint64(ino) >= fs.sb.MaxIno {
		return nil, fmt.Errorf("%w: inode %d out of range", common.ErrInvalid, ino)
	}
	b, err := fs.io.Read(fs.sb.InodeAddr(ino).Off, common.INODESZ)
	if err != nil {
		fs.log.Error("load inode", slog.Uint64("ino", uint64(ino)), slog.Any("error", err))
		return nil, err
	}
	di := inode.DecodeDinode(b)
	d := fs.tree.Dentry(id)
	if di.Ino != ino || di.Type != d.Type {
		return nil, fmt.Errorf("%w: inode %d on disk is %d (%v), dentry %q wants %v",
			common.ErrInvalid, ino, di.Ino, di.Type, d.Name, d.Type)
	}
	if uint64(di.Blocks[0]) >= fs.sb.MaxData || di.DirCnt > common.NDIRENTS {
		return nil, fmt.Errorf("%w: inode %d is corrupt", common.ErrInvalid, ino)
	}
	in := inode.MkInode(di)
	fs.tree.Attach(id, in)

	data, err := fs.io.Read(fs.sb.DataAddr(in.Blocks[0]).Off, common.BlockSize)
	if err != nil {
		fs.log.Error("load data", slog.Uint64("ino", uint64(ino)), slog.Any("error", err))
		fs.tree.Detach(id)
		return nil, err
	}
	if d.Type == common.NF_REG {
		in.Data = data
		fs.log.Debug("loaded file", slog.Uint64("ino", uint64(ino)))
		return in, nil
	}
	// head insertion reverses, so walk the records backwards
	for i := di.DirCnt; i > 0; i-- {
		rec := data[(i-1)*common.DENTRYSZ : i*common.DENTRYSZ]
		dd := inode.DecodeDdentry(rec)
		child := fs.tree.NewDentry(dd.Name, dd.Type)
		fs.tree.Dentry(child).Ino = dd.Ino
		fs.tree.LinkChild(in, child)
	}
	fs.log.Debug("loaded directory", slog.Uint64("ino", uint64(ino)),
		slog.Uint64("children", in.DirCnt))
	return in, nil
}

// resolve returns the inode of id, loading it on first touch.
func (fs *FS) resolve(id inode.DentryID) (*inode.Inode, error) {
	if in, ok := fs.tree.Inode(id); ok {
		return in, nil
	}
	return fs.load(id, fs.tree.Dentry(id).Ino)
}
