package inode

import (
	"fmt"

	"github.com/mit-pdos/go-newfs/common"
)

// DentryID names a dentry in its Tree: the low 32 bits index the arena
// slot and the high 32 bits are the slot's generation when the dentry was
// created. Releasing a dentry bumps its slot's generation, so an id kept
// past Release never names the dentry that reuses the slot.
type DentryID uint64

const (
	NoDentry   DentryID = ^DentryID(0)
	RootDentry DentryID = 0
)

func mkDentryID(slot uint32, gen uint32) DentryID {
	return DentryID(uint64(gen)<<32 | uint64(slot))
}

func (id DentryID) slot() uint32 {
	return uint32(id)
}

func (id DentryID) gen() uint32 {
	return uint32(id >> 32)
}

func (id DentryID) String() string {
	if id == NoDentry {
		return "none"
	}
	return fmt.Sprintf("%d.%d", id.slot(), id.gen())
}

type slot struct {
	d   *Dentry
	gen uint32
}

type Dentry struct {
	Name   string
	Type   common.FileType
	Ino    common.Inum // NULLINUM until an inode is attached
	Parent DentryID    // not owned
	Next   DentryID    // next sibling
}

// Tree is an arena holding the in-memory part of the file system tree.
// Dentries are addressed by DentryID and resolved inodes by inode number;
// links between them are indices. A dentry owns its resolved inode, and a
// directory inode owns its child dentries, so releasing a dentry releases
// its whole subtree.
type Tree struct {
	slots  []slot
	free   []uint32
	inodes map[common.Inum]*Inode
}

// MkTree returns a tree holding only the root dentry, which points at
// ROOTINUM but has no resolved inode yet.
func MkTree() *Tree {
	t := &Tree{
		inodes: make(map[common.Inum]*Inode),
	}
	root := t.NewDentry("/", common.NF_DIR)
	t.Dentry(root).Ino = common.ROOTINUM
	return t
}

func (t *Tree) Root() DentryID {
	return RootDentry
}

// NewDentry returns a detached dentry with no inode.
func (t *Tree) NewDentry(name string, typ common.FileType) DentryID {
	d := &Dentry{
		Name:   name,
		Type:   typ,
		Ino:    common.NULLINUM,
		Parent: NoDentry,
		Next:   NoDentry,
	}
	if n := len(t.free); n > 0 {
		s := t.free[n-1]
		t.free = t.free[:n-1]
		t.slots[s].d = d
		return mkDentryID(s, t.slots[s].gen)
	}
	t.slots = append(t.slots, slot{d: d})
	return mkDentryID(uint32(len(t.slots)-1), 0)
}

// Live reports whether id names a dentry that has not been released.
func (t *Tree) Live(id DentryID) bool {
	s := id.slot()
	return int64(s) < int64(len(t.slots)) && t.slots[s].d != nil &&
		t.slots[s].gen == id.gen()
}

// Dentry returns the dentry named by id, which must be live.
func (t *Tree) Dentry(id DentryID) *Dentry {
	if !t.Live(id) {
		panic(fmt.Errorf("Dentry: %v is not live", id))
	}
	return t.slots[id.slot()].d
}

// Owns reports whether in is the resolved inode currently held by the tree
// under its number.
func (t *Tree) Owns(in *Inode) bool {
	return in != nil && t.inodes[in.Ino] == in && t.Live(in.Dentry)
}

// Inode returns the resolved inode of dentry id, if it has been loaded.
func (t *Tree) Inode(id DentryID) (*Inode, bool) {
	d := t.Dentry(id)
	if d.Ino == common.NULLINUM {
		return nil, false
	}
	in, ok := t.inodes[d.Ino]
	if !ok || in.Dentry != id {
		return nil, false
	}
	return in, true
}

func (t *Tree) Type(in *Inode) common.FileType {
	return t.Dentry(in.Dentry).Type
}

func (t *Tree) IsDir(in *Inode) bool {
	return t.Type(in) == common.NF_DIR
}

// Attach links dentry id and in to each other.
func (t *Tree) Attach(id DentryID, in *Inode) {
	d := t.Dentry(id)
	d.Ino = in.Ino
	in.Dentry = id
	t.inodes[in.Ino] = in
}

// LinkChild puts child at the head of dir's child list and returns the new
// child count.
func (t *Tree) LinkChild(dir *Inode, child DentryID) uint64 {
	c := t.Dentry(child)
	c.Parent = dir.Dentry
	c.Next = dir.Children
	dir.Children = child
	dir.DirCnt++
	return dir.DirCnt
}

// UnlinkChild removes child from dir's list without releasing it.
func (t *Tree) UnlinkChild(dir *Inode, child DentryID) error {
	prev := NoDentry
	for cur := dir.Children; cur != NoDentry; cur = t.Dentry(cur).Next {
		if cur != child {
			prev = cur
			continue
		}
		next := t.Dentry(cur).Next
		if prev == NoDentry {
			dir.Children = next
		} else {
			t.Dentry(prev).Next = next
		}
		c := t.Dentry(cur)
		c.Next = NoDentry
		c.Parent = NoDentry
		dir.DirCnt--
		return nil
	}
	return fmt.Errorf("%w: dentry %v not in directory %d", common.ErrNotFound,
		child, dir.Ino)
}

// Children returns dir's child dentries in list order.
func (t *Tree) Children(dir *Inode) []DentryID {
	var ids []DentryID
	for cur := dir.Children; cur != NoDentry; cur = t.Dentry(cur).Next {
		ids = append(ids, cur)
	}
	return ids
}

// Find returns the child of dir called name. Names compare in full.
func (t *Tree) Find(dir *Inode, name string) (DentryID, bool) {
	for cur := dir.Children; cur != NoDentry; cur = t.Dentry(cur).Next {
		if t.Dentry(cur).Name == name {
			return cur, true
		}
	}
	return NoDentry, false
}

// Detach drops the resolved inode of id and everything under it, leaving
// id itself pointing at its inode number so it can be loaded again.
func (t *Tree) Detach(id DentryID) {
	in, ok := t.Inode(id)
	if !ok {
		return
	}
	cur := in.Children
	for cur != NoDentry {
		next := t.Dentry(cur).Next
		t.Release(cur)
		cur = next
	}
	delete(t.inodes, in.Ino)
}

// Release frees dentry id and the subtree it owns. The caller unlinks it
// from its parent first.
func (t *Tree) Release(id DentryID) {
	t.Detach(id)
	s := id.slot()
	t.slots[s].d = nil
	t.slots[s].gen++
	t.free = append(t.free, s)
}

// NumResolved is the number of inodes currently held in memory.
func (t *Tree) NumResolved() int {
	return len(t.inodes)
}
