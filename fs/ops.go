package fs

import (
	"fmt"
	"log/slog"

	"github.com/mit-pdos/go-newfs/common"
	"github.com/mit-pdos/go-newfs/inode"
)

const DefaultPerm uint32 = 0777

type Attr struct {
	Ino   common.Inum
	Type  common.FileType
	Size  uint64
	Nlink uint64
	Perm  uint32
}

type DirEntry struct {
	Name string
	Type common.FileType
	Ino  common.Inum
}

type Statfs struct {
	BlockSize  uint64
	Blocks     uint64
	BlocksFree uint64
	Files      uint64
	FilesFree  uint64
	NameLen    uint64
	Usage      uint64
}

// target walks to path and requires it to exist.
func (fs *FS) target(path string) (inode.DentryID, *inode.Inode, error) {
	r, err := fs.walk(path)
	if err != nil {
		return inode.NoDentry, nil, err
	}
	if r.notDir {
		return inode.NoDentry, nil, fmt.Errorf("%w: %s", common.ErrNotDir, path)
	}
	if !r.found {
		return inode.NoDentry, nil, fmt.Errorf("%w: %s", common.ErrNotFound, path)
	}
	in, _ := fs.tree.Inode(r.dentry)
	return r.dentry, in, nil
}

func (fs *FS) file(path string) (*inode.Inode, error) {
	_, in, err := fs.target(path)
	if err != nil {
		return nil, err
	}
	if fs.tree.IsDir(in) {
		return nil, fmt.Errorf("%w: %s", common.ErrIsDir, path)
	}
	return in, nil
}

func (fs *FS) dir(path string) (inode.DentryID, *inode.Inode, error) {
	id, in, err := fs.target(path)
	if err != nil {
		return inode.NoDentry, nil, err
	}
	if !fs.tree.IsDir(in) {
		return inode.NoDentry, nil, fmt.Errorf("%w: %s", common.ErrNotDir, path)
	}
	return id, in, nil
}

func (fs *FS) Stat(path string) (Attr, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if !fs.mounted {
		return Attr{}, common.ErrNotMounted
	}
	_, in, err := fs.target(path)
	if err != nil {
		return Attr{}, err
	}
	a := Attr{Ino: in.Ino, Type: fs.tree.Type(in), Size: in.Size,
		Nlink: in.Link, Perm: DefaultPerm}
	if a.Type == common.NF_DIR {
		a.Size = in.DirCnt * common.DENTRYSZ
	}
	return a, nil
}

// create makes a new file or directory at path.
func (fs *FS) create(path string, typ common.FileType) (*inode.Inode, error) {
	r, err := fs.walk(path)
	if err != nil {
		return nil, err
	}
	switch {
	case r.notDir:
		return nil, fmt.Errorf("%w: %s", common.ErrNotDir, path)
	case r.found:
		return nil, fmt.Errorf("%w: %s", common.ErrExists, path)
	case r.rest > 0:
		return nil, fmt.Errorf("%w: %s", common.ErrNotFound, path)
	}
	if err := inode.CheckName(r.missing); err != nil {
		return nil, err
	}
	parent, _ := fs.tree.Inode(r.dentry)
	if parent.DirCnt >= common.NDIRENTS {
		return nil, fmt.Errorf("%w: directory full", common.ErrNoSpace)
	}
	child := fs.tree.NewDentry(r.missing, typ)
	in, err := fs.attachInode(child)
	if err != nil {
		fs.tree.Release(child)
		return nil, err
	}
	if _, err := fs.linkChild(parent, child); err != nil {
		fs.freeInode(in)
		fs.tree.Release(child)
		return nil, err
	}
	fs.log.Debug("created", slog.String("path", path), slog.String("type", typ.String()),
		slog.Uint64("ino", uint64(in.Ino)))
	return in, nil
}

func (fs *FS) Mkdir(path string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if !fs.mounted {
		return common.ErrNotMounted
	}
	_, err := fs.create(path, common.NF_DIR)
	return err
}

// Mknod creates an empty regular file.
func (fs *FS) Mknod(path string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if !fs.mounted {
		return common.ErrNotMounted
	}
	_, err := fs.create(path, common.NF_REG)
	return err
}

func (fs *FS) ReadDir(path string) ([]DirEntry, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if !fs.mounted {
		return nil, common.ErrNotMounted
	}
	_, in, err := fs.dir(path)
	if err != nil {
		return nil, err
	}
	var ents []DirEntry
	for _, id := range fs.tree.Children(in) {
		d := fs.tree.Dentry(id)
		ents = append(ents, DirEntry{Name: d.Name, Type: d.Type, Ino: d.Ino})
	}
	return ents, nil
}

// ReadFile returns up to n bytes of the file at path starting at off.
func (fs *FS) ReadFile(path string, off uint64, n uint64) ([]byte, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if !fs.mounted {
		return nil, common.ErrNotMounted
	}
	in, err := fs.file(path)
	if err != nil {
		return nil, err
	}
	if off >= in.Size {
		return nil, nil
	}
	end := off + n
	if end > in.Size || end < off {
		end = in.Size
	}
	b := make([]byte, end-off)
	copy(b, in.Data[off:end])
	return b, nil
}

// WriteFile writes data at off, growing the file as needed. A file holds
// at most one block.
func (fs *FS) WriteFile(path string, off uint64, data []byte) (int, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if !fs.mounted {
		return 0, common.ErrNotMounted
	}
	in, err := fs.file(path)
	if err != nil {
		return 0, err
	}
	end := off + uint64(len(data))
	if end > common.BlockSize || end < off {
		return 0, fmt.Errorf("%w: write to %d exceeds %d-byte file limit",
			common.ErrNoSpace, end, common.BlockSize)
	}
	copy(in.Data[off:end], data)
	if end > in.Size {
		fs.sb.Usage += end - in.Size
		in.Size = end
	}
	return len(data), nil
}

func (fs *FS) Truncate(path string, size uint64) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if !fs.mounted {
		return common.ErrNotMounted
	}
	in, err := fs.file(path)
	if err != nil {
		return err
	}
	if size > common.BlockSize {
		return fmt.Errorf("%w: truncate to %d exceeds %d-byte file limit",
			common.ErrNoSpace, size, common.BlockSize)
	}
	if size < in.Size {
		for i := size; i < in.Size; i++ {
			in.Data[i] = 0
		}
		fs.sb.Usage -= in.Size - size
	} else {
		fs.sb.Usage += size - in.Size
	}
	in.Size = size
	return nil
}

func (fs *FS) freeInode(in *inode.Inode) {
	if err := fs.dmap.FreeNum(in.Blocks[0]); err != nil {
		fs.log.Warn("free data block", slog.Uint64("block", in.Blocks[0]), slog.Any("error", err))
	}
	if err := fs.imap.FreeNum(uint64(in.Ino)); err != nil {
		fs.log.Warn("free inode", slog.Uint64("ino", uint64(in.Ino)), slog.Any("error", err))
	}
}

// remove unlinks id from its parent, frees its inode and data block, and
// releases it.
func (fs *FS) remove(id inode.DentryID, in *inode.Inode) error {
	parent, ok := fs.tree.Inode(fs.tree.Dentry(id).Parent)
	if !ok {
		return fmt.Errorf("%w: parent of %q not loaded", common.ErrInvalid,
			fs.tree.Dentry(id).Name)
	}
	if err := fs.tree.UnlinkChild(parent, id); err != nil {
		return err
	}
	if !fs.tree.IsDir(in) {
		fs.sb.Usage -= in.Size
	}
	fs.freeInode(in)
	fs.tree.Release(id)
	return nil
}

func (fs *FS) Unlink(path string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if !fs.mounted {
		return common.ErrNotMounted
	}
	id, in, err := fs.target(path)
	if err != nil {
		return err
	}
	if fs.tree.IsDir(in) {
		return fmt.Errorf("%w: %s", common.ErrIsDir, path)
	}
	return fs.remove(id, in)
}

func (fs *FS) Rmdir(path string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if !fs.mounted {
		return common.ErrNotMounted
	}
	id, in, err := fs.dir(path)
	if err != nil {
		return err
	}
	if id == fs.tree.Root() {
		return fmt.Errorf("%w: cannot remove the root", common.ErrInvalid)
	}
	if in.DirCnt > 0 {
		return fmt.Errorf("%w: %s", common.ErrNotEmpty, path)
	}
	return fs.remove(id, in)
}

// Rename moves from to to, replacing a file at to or an empty directory.
func (fs *FS) Rename(from string, to string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if !fs.mounted {
		return common.ErrNotMounted
	}
	src, srcIn, err := fs.target(from)
	if err != nil {
		return err
	}
	if src == fs.tree.Root() {
		return fmt.Errorf("%w: cannot rename the root", common.ErrInvalid)
	}
	r, err := fs.walk(to)
	if err != nil {
		return err
	}
	switch {
	case r.notDir:
		return fmt.Errorf("%w: %s", common.ErrNotDir, to)
	case !r.found && r.rest > 0:
		return fmt.Errorf("%w: %s", common.ErrNotFound, to)
	case r.isRoot:
		return fmt.Errorf("%w: cannot replace the root", common.ErrInvalid)
	}

	var dstDir inode.DentryID
	var name string
	if r.found {
		if r.dentry == src {
			return nil
		}
		dstIn, _ := fs.tree.Inode(r.dentry)
		srcDir, dstIsDir := fs.tree.IsDir(srcIn), fs.tree.IsDir(dstIn)
		switch {
		case srcDir && !dstIsDir:
			return fmt.Errorf("%w: %s", common.ErrNotDir, to)
		case !srcDir && dstIsDir:
			return fmt.Errorf("%w: %s", common.ErrIsDir, to)
		case dstIsDir && dstIn.DirCnt > 0:
			return fmt.Errorf("%w: %s", common.ErrNotEmpty, to)
		}
		d := fs.tree.Dentry(r.dentry)
		dstDir, name = d.Parent, d.Name
		if fs.isAncestor(src, dstDir) {
			return fmt.Errorf("%w: %s is inside %s", common.ErrInvalid, to, from)
		}
		if err := fs.remove(r.dentry, dstIn); err != nil {
			return err
		}
	} else {
		dstDir, name = r.dentry, r.missing
		if err := inode.CheckName(name); err != nil {
			return err
		}
		if fs.isAncestor(src, dstDir) {
			return fmt.Errorf("%w: %s is inside %s", common.ErrInvalid, to, from)
		}
	}

	srcParent, _ := fs.tree.Inode(fs.tree.Dentry(src).Parent)
	dstParent, _ := fs.tree.Inode(dstDir)
	if srcParent != dstParent && dstParent.DirCnt >= common.NDIRENTS {
		return fmt.Errorf("%w: directory full", common.ErrNoSpace)
	}
	if err := fs.tree.UnlinkChild(srcParent, src); err != nil {
		return err
	}
	fs.tree.Dentry(src).Name = name
	fs.tree.LinkChild(dstParent, src)
	return nil
}

// isAncestor reports whether a is id or one of its ancestors.
func (fs *FS) isAncestor(a inode.DentryID, id inode.DentryID) bool {
	for cur := id; cur != inode.NoDentry; cur = fs.tree.Dentry(cur).Parent {
		if cur == a {
			return true
		}
	}
	return false
}

func (fs *FS) Statfs() (Statfs, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if !fs.mounted {
		return Statfs{}, common.ErrNotMounted
	}
	return Statfs{
		BlockSize:  common.BlockSize,
		Blocks:     fs.dmap.Max(),
		BlocksFree: fs.dmap.NumFree(),
		Files:      fs.imap.Max(),
		FilesFree:  fs.imap.NumFree(),
		NameLen:    common.MAXNAMELEN,
		Usage:      fs.sb.Usage,
	}, nil
}
