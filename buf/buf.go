// buf moves byte-granular objects (superblock, inodes, dentries, bitmaps,
// file blocks) in and out of the aligned windows the device transfers.
package buf

import (
	"github.com/mit-pdos/go-newfs/util"
)

// A Buf is the contents of a disk object
type Buf struct {
	Addr Addr
	Data []byte
}

func MkBuf(addr Addr, data []byte) *Buf {
	b := &Buf{
		Addr: addr,
		Data: data,
	}
	return b
}

// Load the bytes of addr out of win, an aligned window starting bias bytes
// before addr.
func MkBufLoad(addr Addr, bias uint64, win []byte) *Buf {
	data := make([]byte, addr.Sz)
	copy(data, win[bias:bias+addr.Sz])
	b := &Buf{
		Addr: addr,
		Data: data,
	}
	return b
}

// Install the bytes of buf into win, at bias bytes from its start.
func (buf *Buf) Install(win []byte, bias uint64) {
	util.DPrintf(20, "%v: install at bias %d\n", buf.Addr, bias)
	copy(win[bias:bias+buf.Addr.Sz], buf.Data)
}
