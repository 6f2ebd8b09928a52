package fs

import (
	"fmt"
	"strings"

	"github.com/mit-pdos/go-newfs/common"
	"github.com/mit-pdos/go-newfs/inode"
)

// walkResult describes where a path walk stopped.
type walkResult struct {
	dentry inode.DentryID
	found  bool
	isRoot bool
	// notDir is set when a regular file named a directory in the middle of
	// the path; dentry is that file.
	notDir bool
	// missing is the first name without a match and rest the number of
	// segments after it; dentry is then the directory searched.
	missing string
	rest    int
}

func splitPath(path string) ([]string, error) {
	if !strings.HasPrefix(path, "/") {
		return nil, fmt.Errorf("%w: path %q is not absolute", common.ErrInvalid, path)
	}
	var segs []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs, nil
}

// Lookup resolves an absolute path.
//
// found is true when every segment matched; dentry is then the target.
// When a segment has no match, found is false and dentry is the directory
// it was looked up in, where a create would insert it. When a regular file
// appears in the middle of the path the walk stops at that file with found
// set, and the caller must notice that the file is not the full path.
// isRoot is set only for the root path. The returned dentry's inode is
// always resolved.
func (fs *FS) Lookup(path string) (id inode.DentryID, found bool, isRoot bool, err error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if !fs.mounted {
		return inode.NoDentry, false, false, common.ErrNotMounted
	}
	r, err := fs.walk(path)
	if err != nil {
		return inode.NoDentry, false, false, err
	}
	return r.dentry, r.found || r.notDir, r.isRoot, nil
}

func (fs *FS) walk(path string) (walkResult, error) {
	segs, err := splitPath(path)
	if err != nil {
		return walkResult{}, err
	}
	cur := fs.tree.Root()
	if len(segs) == 0 {
		if _, err := fs.resolve(cur); err != nil {
			return walkResult{}, err
		}
		return walkResult{dentry: cur, found: true, isRoot: true}, nil
	}
	for lvl, name := range segs {
		in, err := fs.resolve(cur)
		if err != nil {
			return walkResult{}, err
		}
		if !fs.tree.IsDir(in) {
			return walkResult{dentry: cur, notDir: true}, nil
		}
		child, ok := fs.tree.Find(in, name)
		if !ok {
			return walkResult{dentry: cur, missing: name, rest: len(segs) - lvl - 1}, nil
		}
		cur = child
	}
	if _, err := fs.resolve(cur); err != nil {
		return walkResult{}, err
	}
	return walkResult{dentry: cur, found: true}, nil
}
