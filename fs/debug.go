package fs

import (
	"fmt"
	"io"

	"github.com/mit-pdos/go-newfs/common"
)

type Bitmap int

const (
	InodeBitmap Bitmap = iota
	DataBitmap
)

// DumpBitmap prints one of the allocation bitmaps, for debugging.
func (fs *FS) DumpBitmap(w io.Writer, which Bitmap) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if !fs.mounted {
		return common.ErrNotMounted
	}
	switch which {
	case InodeBitmap:
		fmt.Fprintln(w, "inode bitmap:")
		fs.imap.Dump(w)
	case DataBitmap:
		fmt.Fprintln(w, "data bitmap:")
		fs.dmap.Dump(w)
	default:
		return fmt.Errorf("%w: bitmap %d", common.ErrInvalid, which)
	}
	return nil
}
