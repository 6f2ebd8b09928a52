package alloc

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/mit-pdos/go-newfs/common"
	"github.com/mit-pdos/go-newfs/util"
)

// Alloc uses a bit map to allocate and free numbers. Bit 0 of byte 0
// corresponds to number 0, bit 1 to 1, and so on; only numbers below max
// are handed out.
type Alloc struct {
	mu     *sync.Mutex // protects bitmap
	max    uint64
	bitmap []byte
}

// MkAlloc takes ownership of bitmap, which must cover max bits.
func MkAlloc(bitmap []byte, max uint64) *Alloc {
	if util.RoundUp(max, 8) > uint64(len(bitmap)) {
		panic("MkAlloc: bitmap too small")
	}
	a := &Alloc{
		mu:     new(sync.Mutex),
		max:    max,
		bitmap: bitmap,
	}
	return a
}

// MkMaxAlloc returns an empty allocator whose bitmap fills whole blocks.
func MkMaxAlloc(max uint64) *Alloc {
	nblk := util.RoundUp(max, common.NBITBLOCK)
	if nblk == 0 {
		nblk = 1
	}
	return MkAlloc(make([]byte, nblk*common.BlockSize), max)
}

func (a *Alloc) isUsed(num uint64) bool {
	return a.bitmap[num/8]&(1<<(num%8)) != 0
}

func (a *Alloc) MarkUsed(num uint64) {
	if num >= a.max {
		panic(fmt.Errorf("MarkUsed: %d out of range", num))
	}
	a.mu.Lock()
	a.bitmap[num/8] = a.bitmap[num/8] | (1 << (num % 8))
	a.mu.Unlock()
}

func (a *Alloc) IsUsed(num uint64) bool {
	if num >= a.max {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.isUsed(num)
}

// AllocNum sets and returns the lowest clear bit. The scan and the set are
// one step under the lock.
func (a *Alloc) AllocNum() (uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for byteno := uint64(0); byteno*8 < a.max; byteno++ {
		if a.bitmap[byteno] == 0xff {
			continue
		}
		for bit := uint64(0); bit < 8; bit++ {
			num := byteno*8 + bit
			if num >= a.max {
				break
			}
			if a.bitmap[byteno]&(1<<bit) == 0 {
				a.bitmap[byteno] = a.bitmap[byteno] | (1 << bit)
				util.DPrintf(10, "AllocNum: %d\n", num)
				return num, nil
			}
		}
	}
	return 0, common.ErrNoSpace
}

func (a *Alloc) FreeNum(num uint64) error {
	if num >= a.max {
		return fmt.Errorf("%w: free %d of %d", common.ErrInvalid, num, a.max)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.isUsed(num) {
		return fmt.Errorf("%w: double free of %d", common.ErrInvalid, num)
	}
	a.bitmap[num/8] = a.bitmap[num/8] & ^(1 << (num % 8))
	util.DPrintf(10, "FreeNum: %d\n", num)
	return nil
}

func popCnt(b byte) uint64 {
	var count uint64
	var x = b
	for i := uint64(0); i < 8; i++ {
		count += uint64(x & 1)
		x = x >> 1
	}
	return count
}

// NumFree returns the number of free numbers below max.
func (a *Alloc) NumFree() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	var used uint64
	for byteno := uint64(0); byteno < util.RoundUp(a.max, 8); byteno++ {
		b := a.bitmap[byteno]
		if rem := a.max - byteno*8; rem < 8 {
			b = b & byte(1<<rem-1)
		}
		used += popCnt(b)
	}
	return a.max - used
}

func (a *Alloc) Max() uint64 {
	return a.max
}

// Bitmap returns a copy of the whole bitmap, padding included.
func (a *Alloc) Bitmap() []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	return util.CloneByteSlice(a.bitmap)
}

// Dump prints the bitmap as rows of 32 bits, four bytes to a row, lowest bit
// of each byte first. Set bits are highlighted when color is enabled.
func (a *Alloc) Dump(w io.Writer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	set := color.New(color.FgGreen, color.Bold)
	nbytes := util.RoundUp(a.max, 8)
	for row := uint64(0); row < nbytes; row += 4 {
		cols := make([]string, 0, 4)
		for byteno := row; byteno < row+4 && byteno < nbytes; byteno++ {
			var sb strings.Builder
			for bit := uint64(0); bit < 8; bit++ {
				if a.bitmap[byteno]&(1<<bit) != 0 {
					sb.WriteString(set.Sprint("1"))
				} else {
					sb.WriteString("0")
				}
				sb.WriteString(" ")
			}
			cols = append(cols, sb.String())
		}
		fmt.Fprintln(w, strings.Join(cols, "\t"))
	}
}
