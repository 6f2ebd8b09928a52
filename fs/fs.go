// fs is the newfs engine: one FS value is one mount session. It owns the
// device, the superblock, both bitmaps and the in-memory tree, and every
// exported method serializes on a single lock.
package fs

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/mit-pdos/go-newfs/alloc"
	"github.com/mit-pdos/go-newfs/buf"
	"github.com/mit-pdos/go-newfs/common"
	"github.com/mit-pdos/go-newfs/disk"
	"github.com/mit-pdos/go-newfs/inode"
	"github.com/mit-pdos/go-newfs/super"
)

type FS struct {
	mu  *sync.Mutex
	log *slog.Logger
	id  uuid.UUID

	dev  disk.Device
	io   *buf.IO
	sb   *super.Super
	imap *alloc.Alloc
	dmap *alloc.Alloc
	tree *inode.Tree

	mounted bool
}

// MountDevice opens the device named by id and mounts it.
func MountDevice(id string, p disk.Params, log *slog.Logger) (*FS, error) {
	d, err := disk.Open(id, p)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrIO, err)
	}
	return Mount(d, log)
}

// Mount loads the file system on d, formatting d first if it does not
// carry a newfs superblock. On failure d is closed.
func Mount(d disk.Device, log *slog.Logger) (*FS, error) {
	if log == nil {
		log = slog.Default()
	}
	fs := &FS{
		mu:  new(sync.Mutex),
		id:  uuid.New(),
		dev: d,
		io:  buf.MkIO(d),
	}
	fs.log = log.With(slog.String("session", fs.id.String()))
	if err := fs.mount(); err != nil {
		fs.log.Error("mount failed", slog.Any("error", err))
		d.Close()
		return nil, err
	}
	return fs, nil
}

func (fs *FS) mount() error {
	b, err := fs.io.ReadBuf(super.Addr())
	if err != nil {
		return err
	}
	sb := super.Decode(b.Data)
	fresh := !sb.Formatted()
	if fresh {
		sb, err = super.MkFresh(fs.dev.Size())
		if err != nil {
			return err
		}
		fs.log.Info("formatting device",
			slog.Uint64("size", fs.dev.Size()),
			slog.Uint64("io_size", fs.dev.IOSize()))
	} else if err := sb.Check(fs.dev.Size()); err != nil {
		return fmt.Errorf("corrupt superblock: %w", err)
	}
	fs.sb = sb

	var imap, dmap []byte
	if fresh {
		imap = make([]byte, sb.IMapAddr().Sz)
		dmap = make([]byte, sb.DMapAddr().Sz)
	} else {
		if imap, err = fs.io.Read(sb.IMapAddr().Off, sb.IMapAddr().Sz); err != nil {
			return err
		}
		if dmap, err = fs.io.Read(sb.DMapAddr().Off, sb.DMapAddr().Sz); err != nil {
			return err
		}
	}
	fs.imap = alloc.MkAlloc(imap, sb.MaxIno)
	fs.dmap = alloc.MkAlloc(dmap, sb.MaxData)

	fs.tree = inode.MkTree()
	root := fs.tree.Root()
	if fresh {
		// nothing is on disk yet for the root to point at
		fs.tree.Dentry(root).Ino = common.NULLINUM
		in, err := fs.attachInode(root)
		if err != nil {
			return err
		}
		if in.Ino != common.ROOTINUM {
			return fmt.Errorf("%w: root allocated inode %d", common.ErrInvalid, in.Ino)
		}
		if err := fs.flush(in); err != nil {
			return err
		}
		fs.tree.Detach(root)
	}
	if _, err := fs.load(root, common.ROOTINUM); err != nil {
		return err
	}
	fs.mounted = true
	fs.log.Info("mounted", slog.Bool("formatted", fresh),
		slog.String("super", sb.String()))
	return nil
}

// Unmount flushes the tree, writes the superblock and both bitmaps, and
// closes the device. Every step is attempted even if an earlier one fails;
// the failures are reported together.
func (fs *FS) Unmount() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if !fs.mounted {
		return common.ErrNotMounted
	}
	var errs []error
	if in, ok := fs.tree.Inode(fs.tree.Root()); ok {
		if err := fs.flush(in); err != nil {
			errs = append(errs, fmt.Errorf("flush tree: %w", err))
		}
	}
	if err := buf.MkBuf(super.Addr(), fs.sb.Encode()).WriteDirect(fs.io); err != nil {
		errs = append(errs, fmt.Errorf("write superblock: %w", err))
	}
	if err := fs.io.Write(fs.sb.IMapOff, fs.imap.Bitmap()); err != nil {
		errs = append(errs, fmt.Errorf("write inode bitmap: %w", err))
	}
	if err := fs.io.Write(fs.sb.DMapOff, fs.dmap.Bitmap()); err != nil {
		errs = append(errs, fmt.Errorf("write data bitmap: %w", err))
	}
	fs.imap = nil
	fs.dmap = nil
	fs.tree = nil
	fs.mounted = false
	if err := fs.dev.Close(); err != nil {
		errs = append(errs, fmt.Errorf("%w: close device: %w", common.ErrIO, err))
	}
	err := errors.Join(errs...)
	if err != nil {
		fs.log.Error("unmount incomplete", slog.Any("error", err))
	} else {
		fs.log.Info("unmounted", slog.Uint64("usage", fs.sb.Usage))
	}
	return err
}

func (fs *FS) Mounted() bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.mounted
}

// ID identifies this mount session in logs.
func (fs *FS) ID() uuid.UUID {
	return fs.id
}

// Super returns a copy of the in-memory superblock descriptor.
func (fs *FS) Super() super.Super {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return *fs.sb
}

func (fs *FS) Root() inode.DentryID {
	return inode.RootDentry
}

// Dentry returns a copy of dentry id.
func (fs *FS) Dentry(id inode.DentryID) (inode.Dentry, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if !fs.mounted {
		return inode.Dentry{}, common.ErrNotMounted
	}
	if err := fs.checkLive(id); err != nil {
		return inode.Dentry{}, err
	}
	return *fs.tree.Dentry(id), nil
}

// Inode returns the resolved inode of dentry id, or nil if it has not been
// loaded yet.
func (fs *FS) Inode(id inode.DentryID) (*inode.Inode, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if !fs.mounted {
		return nil, common.ErrNotMounted
	}
	if err := fs.checkLive(id); err != nil {
		return nil, err
	}
	in, _ := fs.tree.Inode(id)
	return in, nil
}

// Children lists the child dentries of a resolved directory inode, in list
// order.
func (fs *FS) Children(dir *inode.Inode) ([]inode.DentryID, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if !fs.mounted {
		return nil, common.ErrNotMounted
	}
	if err := fs.checkOwned(dir); err != nil {
		return nil, err
	}
	if !fs.tree.IsDir(dir) {
		return nil, common.ErrNotDir
	}
	return fs.tree.Children(dir), nil
}

// NewDentry creates a detached dentry, to be attached and linked by the
// caller.
func (fs *FS) NewDentry(name string, typ common.FileType) (inode.DentryID, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if !fs.mounted {
		return inode.NoDentry, common.ErrNotMounted
	}
	if err := inode.CheckName(name); err != nil {
		return inode.NoDentry, err
	}
	return fs.tree.NewDentry(name, typ), nil
}
