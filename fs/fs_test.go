package fs

import (
	"bytes"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gdisk "github.com/tchajed/goose/machine/disk"
	"golang.org/x/sys/unix"

	"github.com/mit-pdos/go-newfs/common"
	"github.com/mit-pdos/go-newfs/disk"
	"github.com/mit-pdos/go-newfs/inode"
	"github.com/mit-pdos/go-newfs/super"
)

const diskSz uint64 = 4 * 1024 * 1024

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mkfs(t *testing.T) (*FS, *disk.MemDevice) {
	d := disk.NewMemDevice(diskSz, 512)
	fs, err := Mount(d, quiet())
	require.Nil(t, err)
	return fs, d
}

func remount(t *testing.T, fs *FS, d *disk.MemDevice) (*FS, *disk.MemDevice) {
	require.Nil(t, fs.Unmount())
	d = d.Reopen()
	fs2, err := Mount(d, quiet())
	require.Nil(t, err)
	return fs2, d
}

func popCount(bm []byte) int {
	n := 0
	for _, b := range bm {
		for ; b != 0; b &= b - 1 {
			n++
		}
	}
	return n
}

func rootEntries(t *testing.T, fs *FS) []DirEntry {
	ents, err := fs.ReadDir("/")
	require.Nil(t, err)
	return ents
}

func TestFreshFormat(t *testing.T) {
	assert := assert.New(t)
	fs, _ := mkfs(t)

	assert.True(fs.Mounted())
	sb := fs.Super()
	assert.Equal(uint64(0), sb.Usage)
	assert.Equal(common.MAXINODE, sb.MaxIno)

	root, err := fs.Inode(fs.Root())
	require.Nil(t, err)
	require.NotNil(t, root, "root is loaded at mount")
	assert.Equal(common.ROOTINUM, root.Ino)
	assert.Equal(uint64(0), root.DirCnt)
	assert.Equal(common.NF_DIR, fs.tree.Type(root))

	assert.Equal(1, popCount(fs.imap.Bitmap()))
	assert.True(fs.imap.IsUsed(uint64(common.ROOTINUM)))
	assert.Equal(1, popCount(fs.dmap.Bitmap()))
	assert.True(fs.dmap.IsUsed(root.Blocks[0]))
}

func TestFormatPersists(t *testing.T) {
	fs, d := mkfs(t)
	require.Nil(t, fs.Unmount())
	assert.True(t, super.Decode(d.Bytes()[:common.SUPERSZ]).Formatted())

	fs, err := Mount(d.Reopen(), quiet())
	require.Nil(t, err)
	assert.Equal(t, 1, popCount(fs.imap.Bitmap()), "bitmaps are read back")
	assert.Equal(t, 1, popCount(fs.dmap.Bitmap()))
}

func TestLookup(t *testing.T) {
	assert := assert.New(t)
	fs, _ := mkfs(t)
	require.Nil(t, fs.Mkdir("/a"))
	require.Nil(t, fs.Mknod("/a/b"))

	id, found, isRoot, err := fs.Lookup("/a/b")
	assert.Nil(err)
	assert.True(found)
	assert.False(isRoot)
	b, _ := fs.Dentry(id)
	assert.Equal("b", b.Name)
	assert.Equal(common.NF_REG, b.Type)

	id, found, _, err = fs.Lookup("/a/c")
	assert.Nil(err)
	assert.False(found)
	a, _ := fs.Dentry(id)
	assert.Equal("a", a.Name, "a miss returns the parent directory")

	id, found, _, err = fs.Lookup("/a/b/c")
	assert.Nil(err)
	assert.True(found, "walk stops early at a file")
	b2, _ := fs.Dentry(id)
	assert.Equal("b", b2.Name)

	id, found, isRoot, err = fs.Lookup("/")
	assert.Nil(err)
	assert.True(found)
	assert.True(isRoot)
	assert.Equal(fs.Root(), id)

	_, _, _, err = fs.Lookup("a/b")
	assert.ErrorIs(err, common.ErrInvalid)
}

func TestLookupNoPrefixMatch(t *testing.T) {
	fs, _ := mkfs(t)
	require.Nil(t, fs.Mknod("/abc"))
	_, found, _, err := fs.Lookup("/ab")
	assert.Nil(t, err)
	assert.False(t, found)
}

func TestLookupLazyLoad(t *testing.T) {
	assert := assert.New(t)
	fs, d := mkfs(t)
	require.Nil(t, fs.Mkdir("/a"))
	require.Nil(t, fs.Mkdir("/a/b"))
	require.Nil(t, fs.Mknod("/a/b/f"))
	fs, _ = remount(t, fs, d)

	assert.Equal(1, fs.tree.NumResolved(), "only the root after mount")
	_, found, _, err := fs.Lookup("/a")
	assert.Nil(err)
	assert.True(found)
	assert.Equal(2, fs.tree.NumResolved(), "one level per touched segment")

	id, found, _, err := fs.Lookup("/a/b/f")
	assert.Nil(err)
	assert.True(found)
	assert.Equal(4, fs.tree.NumResolved())
	in, err := fs.Inode(id)
	assert.Nil(err)
	assert.NotNil(in, "the result is always resolved")
}

func TestRemountIdempotent(t *testing.T) {
	assert := assert.New(t)
	fs, d := mkfs(t)
	require.Nil(t, fs.Mkdir("/a"))
	require.Nil(t, fs.Mknod("/b"))
	require.Nil(t, fs.Mkdir("/a/c"))
	require.Nil(t, fs.Mknod("/a/c/d"))
	_, err := fs.WriteFile("/a/c/d", 0, []byte("hello"))
	require.Nil(t, err)

	before := rootEntries(t, fs)
	require.Equal(t, 2, len(before))

	fs, d = remount(t, fs, d)
	assert.Equal(before, rootEntries(t, fs))

	data, err := fs.ReadFile("/a/c/d", 0, 100)
	assert.Nil(err)
	assert.Equal([]byte("hello"), data)
	assert.Equal(uint64(5), fs.Super().Usage)

	// nothing loaded beyond the root; unmounting again keeps the tree
	fs, _ = remount(t, fs, d)
	assert.Equal(before, rootEntries(t, fs))
	ents, err := fs.ReadDir("/a/c")
	assert.Nil(err)
	assert.Equal([]DirEntry{{Name: "d", Type: common.NF_REG, Ino: 4}}, ents)
}

func TestFlushLoadSymmetry(t *testing.T) {
	for k := 0; k <= int(common.NDIRENTS); k++ {
		fs, _ := mkfs(t)
		require.Nil(t, fs.Mkdir("/d"))
		var created []string
		for i := 0; i < k; i++ {
			name := "f" + strings.Repeat("x", i)
			if i%2 == 0 {
				require.Nil(t, fs.Mknod("/d/"+name))
			} else {
				require.Nil(t, fs.Mkdir("/d/"+name))
			}
			created = append(created, name)
		}
		before, err := fs.ReadDir("/d")
		require.Nil(t, err)
		require.Equal(t, k, len(before))
		for i, e := range before {
			assert.Equal(t, created[k-1-i], e.Name, "newest first")
		}

		id, _, _, err := fs.Lookup("/d")
		require.Nil(t, err)
		in, err := fs.Inode(id)
		require.Nil(t, err)
		require.Nil(t, fs.Flush(in))
		fs.tree.Detach(id)
		in2, err := fs.Load(id, in.Ino)
		require.Nil(t, err)
		assert.Equal(t, uint64(k), in2.DirCnt)

		after, err := fs.ReadDir("/d")
		require.Nil(t, err)
		assert.Equal(t, before, after, "k=%d", k)
	}
}

func TestDirectoryFull(t *testing.T) {
	fs, _ := mkfs(t)
	for i := uint64(0); i < common.NDIRENTS; i++ {
		require.Nil(t, fs.Mknod("/f"+strings.Repeat("x", int(i))))
	}
	free, _ := fs.Statfs()
	err := fs.Mknod("/overflow")
	assert.ErrorIs(t, err, common.ErrNoSpace)
	after, _ := fs.Statfs()
	assert.Equal(t, free, after, "nothing leaks on failure")
}

func TestInodeExhaustion(t *testing.T) {
	assert := assert.New(t)
	fs, _ := mkfs(t)
	seen := map[common.Inum]bool{common.ROOTINUM: true}
	for i := uint64(1); i < common.MAXINODE; i++ {
		id, err := fs.NewDentry("x", common.NF_DIR)
		require.Nil(t, err)
		in, err := fs.AttachInode(id)
		require.Nil(t, err)
		assert.False(seen[in.Ino])
		assert.Less(uint64(in.Ino), common.MAXINODE)
		seen[in.Ino] = true
	}
	id, err := fs.NewDentry("x", common.NF_DIR)
	require.Nil(t, err)
	_, err = fs.AttachInode(id)
	assert.ErrorIs(err, common.ErrNoSpace)
	assert.Equal(unix.ENOSPC, Errno(err))
	st, _ := fs.Statfs()
	assert.Equal(uint64(0), st.FilesFree)
	assert.Equal(st.Blocks-common.MAXINODE, st.BlocksFree,
		"the data block of the failed attach is not taken")
}

func TestReadWrite(t *testing.T) {
	assert := assert.New(t)
	fs, d := mkfs(t)
	require.Nil(t, fs.Mknod("/f"))

	n, err := fs.WriteFile("/f", 0, []byte("hello world"))
	assert.Nil(err)
	assert.Equal(11, n)
	_, err = fs.WriteFile("/f", 6, []byte("there"))
	assert.Nil(err)
	data, err := fs.ReadFile("/f", 0, 1024)
	assert.Nil(err)
	assert.Equal("hello there", string(data))
	data, err = fs.ReadFile("/f", 6, 3)
	assert.Nil(err)
	assert.Equal("the", string(data))
	data, err = fs.ReadFile("/f", 100, 3)
	assert.Nil(err)
	assert.Empty(data)

	_, err = fs.WriteFile("/f", 1000, make([]byte, 25))
	assert.ErrorIs(err, common.ErrNoSpace, "files hold one block")

	a, err := fs.Stat("/f")
	assert.Nil(err)
	assert.Equal(uint64(11), a.Size)
	assert.Equal(common.NF_REG, a.Type)
	assert.Equal(uint64(11), fs.Super().Usage)

	require.Nil(t, fs.Truncate("/f", 5))
	data, _ = fs.ReadFile("/f", 0, 1024)
	assert.Equal("hello", string(data))
	require.Nil(t, fs.Truncate("/f", 8))
	data, _ = fs.ReadFile("/f", 0, 1024)
	assert.Equal([]byte("hello\x00\x00\x00"), data)
	assert.ErrorIs(fs.Truncate("/f", 2048), common.ErrNoSpace)

	fs, _ = remount(t, fs, d)
	data, err = fs.ReadFile("/f", 0, 1024)
	assert.Nil(err)
	assert.Equal([]byte("hello\x00\x00\x00"), data)
	assert.Equal(uint64(8), fs.Super().Usage)

	require.Nil(t, fs.Mkdir("/dir"))
	_, err = fs.ReadFile("/dir", 0, 1)
	assert.ErrorIs(err, common.ErrIsDir)
	_, err = fs.WriteFile("/missing", 0, []byte("x"))
	assert.ErrorIs(err, common.ErrNotFound)
}

func TestCreateErrors(t *testing.T) {
	assert := assert.New(t)
	fs, _ := mkfs(t)
	require.Nil(t, fs.Mkdir("/a"))
	require.Nil(t, fs.Mknod("/a/f"))

	assert.ErrorIs(fs.Mkdir("/a"), common.ErrExists)
	assert.ErrorIs(fs.Mknod("/a/f"), common.ErrExists)
	assert.ErrorIs(fs.Mknod("/a/f/g"), common.ErrNotDir)
	assert.ErrorIs(fs.Mknod("/x/y"), common.ErrNotFound)
	assert.ErrorIs(fs.Mknod("/"+strings.Repeat("n", 129)), common.ErrInvalid)
	assert.ErrorIs(fs.Mkdir("/"), common.ErrExists)

	_, err := fs.ReadDir("/a/f")
	assert.ErrorIs(err, common.ErrNotDir)
	_, err = fs.Stat("/nope")
	assert.ErrorIs(err, common.ErrNotFound)
}

func TestUnlinkRmdir(t *testing.T) {
	assert := assert.New(t)
	fs, d := mkfs(t)
	require.Nil(t, fs.Mkdir("/a"))
	require.Nil(t, fs.Mknod("/a/f"))
	_, err := fs.WriteFile("/a/f", 0, []byte("abc"))
	require.Nil(t, err)
	start, _ := fs.Statfs()

	assert.ErrorIs(fs.Rmdir("/a"), common.ErrNotEmpty)
	assert.ErrorIs(fs.Unlink("/a"), common.ErrIsDir)
	assert.ErrorIs(fs.Rmdir("/a/f"), common.ErrNotDir)
	assert.ErrorIs(fs.Rmdir("/"), common.ErrInvalid)

	require.Nil(t, fs.Unlink("/a/f"))
	st, _ := fs.Statfs()
	assert.Equal(start.FilesFree+1, st.FilesFree)
	assert.Equal(start.BlocksFree+1, st.BlocksFree)
	assert.Equal(uint64(0), st.Usage)
	require.Nil(t, fs.Rmdir("/a"))
	assert.Empty(rootEntries(t, fs))

	fs, _ = remount(t, fs, d)
	assert.Empty(rootEntries(t, fs))
	assert.Equal(1, popCount(fs.imap.Bitmap()))
	assert.Equal(1, popCount(fs.dmap.Bitmap()))

	// freed numbers are reused first-fit
	require.Nil(t, fs.Mknod("/g"))
	a, _ := fs.Stat("/g")
	assert.Equal(common.Inum(1), a.Ino)
}

func TestRename(t *testing.T) {
	assert := assert.New(t)
	fs, d := mkfs(t)
	require.Nil(t, fs.Mkdir("/a"))
	require.Nil(t, fs.Mkdir("/b"))
	require.Nil(t, fs.Mknod("/a/f"))
	_, err := fs.WriteFile("/a/f", 0, []byte("data"))
	require.Nil(t, err)

	require.Nil(t, fs.Rename("/a/f", "/b/g"))
	_, err = fs.Stat("/a/f")
	assert.ErrorIs(err, common.ErrNotFound)
	data, err := fs.ReadFile("/b/g", 0, 10)
	assert.Nil(err)
	assert.Equal("data", string(data))

	require.Nil(t, fs.Mknod("/b/h"))
	require.Nil(t, fs.Rename("/b/h", "/b/g"), "replaces a file")
	data, _ = fs.ReadFile("/b/g", 0, 10)
	assert.Empty(data)
	assert.Equal(uint64(0), fs.Super().Usage)

	assert.ErrorIs(fs.Rename("/a", "/a/sub"), common.ErrInvalid)
	assert.ErrorIs(fs.Rename("/a", "/b/g"), common.ErrNotDir)
	assert.ErrorIs(fs.Rename("/b/g", "/a"), common.ErrIsDir)
	assert.ErrorIs(fs.Rename("/b", "/"), common.ErrInvalid)
	assert.ErrorIs(fs.Rename("/nope", "/x"), common.ErrNotFound)
	assert.Nil(fs.Rename("/b/g", "/b/g"))

	require.Nil(t, fs.Rename("/b", "/a/b2"))
	fs, _ = remount(t, fs, d)
	ents, err := fs.ReadDir("/a/b2")
	assert.Nil(err)
	require.Equal(t, 1, len(ents))
	assert.Equal("g", ents[0].Name)
}

func TestUnmount(t *testing.T) {
	assert := assert.New(t)
	fs, _ := mkfs(t)
	require.Nil(t, fs.Unmount())
	assert.False(fs.Mounted())
	assert.ErrorIs(fs.Unmount(), common.ErrNotMounted)
	assert.ErrorIs(fs.Mknod("/f"), common.ErrNotMounted)
	_, _, _, err := fs.Lookup("/")
	assert.ErrorIs(err, common.ErrNotMounted)
}

func TestUnmountIOFailure(t *testing.T) {
	fs, d := mkfs(t)
	require.Nil(t, fs.Mknod("/f"))
	require.Nil(t, d.Close())
	err := fs.Unmount()
	assert.ErrorIs(t, err, common.ErrIO)
	assert.Equal(t, unix.EIO, Errno(err))
	assert.False(t, fs.Mounted(), "unmount is best effort")
}

func TestCorruptSuperblock(t *testing.T) {
	fs, d := mkfs(t)
	require.Nil(t, fs.Unmount())
	d = d.Reopen()
	// point the data region past the end of the device
	sb := fs.Super()
	sb.DataOff = diskSz
	copy(d.Bytes(), sb.Encode())
	_, err := Mount(d, quiet())
	assert.ErrorIs(t, err, common.ErrInvalid)
}

func TestMountTooSmall(t *testing.T) {
	_, err := Mount(disk.NewMemDevice(16*1024, 512), quiet())
	assert.ErrorIs(t, err, common.ErrNoSpace)
}

func TestBlockDevice(t *testing.T) {
	gd := gdisk.NewMemDisk(diskSz / gdisk.BlockSize)
	fs, err := Mount(disk.NewBlockDevice(gd, diskSz/gdisk.BlockSize), quiet())
	require.Nil(t, err)
	require.Nil(t, fs.Mkdir("/a"))
	require.Nil(t, fs.Mknod("/a/f"))
	_, err = fs.WriteFile("/a/f", 0, []byte("unaligned"))
	require.Nil(t, err)
	require.Nil(t, fs.Unmount())

	fs, err = Mount(disk.NewBlockDevice(gd, diskSz/gdisk.BlockSize), quiet())
	require.Nil(t, err)
	data, err := fs.ReadFile("/a/f", 0, 100)
	assert.Nil(t, err)
	assert.Equal(t, "unaligned", string(data))
}

func TestMountDevice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "newfs.img")
	p := disk.Params{Size: diskSz, IOSize: 512}
	fs, err := MountDevice(path, p, quiet())
	require.Nil(t, err)
	require.Nil(t, fs.Mknod("/persist"))
	require.Nil(t, fs.Unmount())

	fs, err = MountDevice(path, p, quiet())
	require.Nil(t, err)
	_, err = fs.Stat("/persist")
	assert.Nil(t, err)
	require.Nil(t, fs.Unmount())

	_, err = MountDevice("", p, quiet())
	assert.ErrorIs(t, err, common.ErrIO)
}

func TestDumpBitmap(t *testing.T) {
	color.NoColor = true
	fs, _ := mkfs(t)
	var b bytes.Buffer
	require.Nil(t, fs.DumpBitmap(&b, InodeBitmap))
	lines := strings.Split(b.String(), "\n")
	assert.Equal(t, "inode bitmap:", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "1 0 0 0 0 0 0 0 \t"))
	assert.Equal(t, 2+int(common.MAXINODE/32), len(lines))

	b.Reset()
	require.Nil(t, fs.DumpBitmap(&b, DataBitmap))
	assert.True(t, strings.HasPrefix(b.String(), "data bitmap:\n1 0"))
	assert.ErrorIs(t, fs.DumpBitmap(&b, Bitmap(7)), common.ErrInvalid)
}

func TestErrno(t *testing.T) {
	assert := assert.New(t)
	assert.Equal(unix.Errno(0), Errno(nil))
	assert.Equal(unix.ENOENT, Errno(common.ErrNotFound))
	assert.Equal(unix.EEXIST, Errno(common.ErrExists))
	assert.Equal(unix.ENOTDIR, Errno(common.ErrNotDir))
	assert.Equal(unix.EISDIR, Errno(common.ErrIsDir))
	assert.Equal(unix.ENOTEMPTY, Errno(common.ErrNotEmpty))
	assert.Equal(unix.EACCES, Errno(common.ErrAccess))
	assert.Equal(unix.ENXIO, Errno(common.ErrUnsupported))
	assert.Equal(unix.EINVAL, Errno(common.ErrInvalid))
	assert.Equal(unix.EIO, Errno(io.ErrUnexpectedEOF))
}

func TestLinkChildRejectsFile(t *testing.T) {
	fs, _ := mkfs(t)
	require.Nil(t, fs.Mknod("/f"))
	id, _, _, err := fs.Lookup("/f")
	require.Nil(t, err)
	in, err := fs.Inode(id)
	require.Nil(t, err)
	child, err := fs.NewDentry("c", common.NF_REG)
	require.Nil(t, err)
	_, err = fs.LinkChild(in, child)
	assert.ErrorIs(t, err, common.ErrNotDir)

	_, err = fs.NewDentry("bad/name", common.NF_REG)
	assert.ErrorIs(t, err, common.ErrInvalid)
	assert.Equal(t, inode.RootDentry, fs.Root())
}

func TestStaleDentryID(t *testing.T) {
	assert := assert.New(t)
	fs, _ := mkfs(t)
	require.Nil(t, fs.Mknod("/x"))
	stale, found, _, err := fs.Lookup("/x")
	require.Nil(t, err)
	require.True(t, found)
	staleIn, err := fs.Inode(stale)
	require.Nil(t, err)

	require.Nil(t, fs.Unlink("/x"))
	require.Nil(t, fs.Mknod("/y"))
	y, _, _, err := fs.Lookup("/y")
	require.Nil(t, err)
	assert.NotEqual(stale, y)

	_, err = fs.Dentry(stale)
	assert.ErrorIs(err, common.ErrInvalid, "the slot now holds /y")
	_, err = fs.Inode(stale)
	assert.ErrorIs(err, common.ErrInvalid)
	_, err = fs.AttachInode(stale)
	assert.ErrorIs(err, common.ErrInvalid)
	_, err = fs.Load(stale, 1)
	assert.ErrorIs(err, common.ErrInvalid)
	assert.ErrorIs(fs.Flush(staleIn), common.ErrInvalid)
	root, err := fs.Inode(fs.Root())
	require.Nil(t, err)
	_, err = fs.LinkChild(root, stale)
	assert.ErrorIs(err, common.ErrInvalid)
	_, err = fs.Children(staleIn)
	assert.ErrorIs(err, common.ErrInvalid)

	require.Nil(t, fs.Unlink("/y"))
	_, err = fs.Dentry(stale)
	assert.ErrorIs(err, common.ErrInvalid)
	_, err = fs.Dentry(y)
	assert.ErrorIs(err, common.ErrInvalid)
	_, err = fs.Dentry(inode.NoDentry)
	assert.ErrorIs(err, common.ErrInvalid)
}

func TestLinkChildTwice(t *testing.T) {
	assert := assert.New(t)
	fs, _ := mkfs(t)
	root, err := fs.Inode(fs.Root())
	require.Nil(t, err)

	id, err := fs.NewDentry("c", common.NF_REG)
	require.Nil(t, err)
	_, err = fs.LinkChild(root, id)
	assert.ErrorIs(err, common.ErrInvalid, "no inode attached yet")

	_, err = fs.AttachInode(id)
	require.Nil(t, err)
	n, err := fs.LinkChild(root, id)
	require.Nil(t, err)
	assert.Equal(uint64(1), n)
	_, err = fs.LinkChild(root, id)
	assert.ErrorIs(err, common.ErrInvalid)
	_, err = fs.LinkChild(root, fs.Root())
	assert.ErrorIs(err, common.ErrInvalid)

	dup, err := fs.NewDentry("c", common.NF_REG)
	require.Nil(t, err)
	_, err = fs.AttachInode(dup)
	require.Nil(t, err)
	_, err = fs.LinkChild(root, dup)
	assert.ErrorIs(err, common.ErrExists)

	assert.Equal(uint64(1), root.DirCnt)
	kids, err := fs.Children(root)
	require.Nil(t, err)
	assert.Equal([]inode.DentryID{id}, kids)
	_, found, _, err := fs.Lookup("/missing")
	assert.Nil(err)
	assert.False(found)
	assert.Len(rootEntries(t, fs), 1)
}

func TestAttachInodeTwice(t *testing.T) {
	fs, _ := mkfs(t)
	id, err := fs.NewDentry("d", common.NF_DIR)
	require.Nil(t, err)
	_, err = fs.AttachInode(id)
	require.Nil(t, err)
	before, err := fs.Statfs()
	require.Nil(t, err)

	_, err = fs.AttachInode(id)
	assert.ErrorIs(t, err, common.ErrExists)
	_, err = fs.AttachInode(fs.Root())
	assert.ErrorIs(t, err, common.ErrExists)
	after, err := fs.Statfs()
	require.Nil(t, err)
	assert.Equal(t, before, after, "nothing more is allocated")
	assert.Equal(t, 2, popCount(fs.imap.Bitmap()))
	assert.Equal(t, 2, popCount(fs.dmap.Bitmap()))
}

func TestAttachInodeNoDataBlock(t *testing.T) {
	fs, _ := mkfs(t)
	for {
		if _, err := fs.AllocDataBlock(); err != nil {
			require.ErrorIs(t, err, common.ErrNoSpace)
			break
		}
	}
	id, err := fs.NewDentry("f", common.NF_REG)
	require.Nil(t, err)
	_, err = fs.AttachInode(id)
	assert.ErrorIs(t, err, common.ErrNoSpace)
	assert.Equal(t, 1, popCount(fs.imap.Bitmap()), "the inode is handed back")
	d, err := fs.Dentry(id)
	require.Nil(t, err)
	assert.Equal(t, common.NULLINUM, d.Ino)
}
