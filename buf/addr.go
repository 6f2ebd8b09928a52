package buf

import (
	"github.com/mit-pdos/go-newfs/util"
)

// Addr is a byte range on the device
type Addr struct {
	Off uint64 // offset in bytes
	Sz  uint64 // size in bytes
}

func MkAddr(off uint64, sz uint64) Addr {
	return Addr{Off: off, Sz: sz}
}

// Window returns the smallest iosz-aligned range covering a: its start, its
// length, and the offset of a within it.
func (a Addr) Window(iosz uint64) (start uint64, length uint64, bias uint64) {
	start = util.AlignDown(a.Off, iosz)
	bias = a.Off - start
	length = util.AlignUp(a.Sz+bias, iosz)
	return start, length, bias
}
