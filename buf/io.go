package buf

import (
	"fmt"

	"github.com/mit-pdos/go-newfs/common"
	"github.com/mit-pdos/go-newfs/disk"
	"github.com/mit-pdos/go-newfs/util"
)

// IO performs byte-granular reads and writes against a device that only
// moves whole, aligned transfers. Writes are read-modify-write.
type IO struct {
	d    disk.Device
	iosz uint64
}

func MkIO(d disk.Device) *IO {
	return &IO{d: d, iosz: d.IOSize()}
}

func (io *IO) readWindow(start uint64, length uint64) ([]byte, error) {
	win := make([]byte, length)
	if err := io.d.Seek(start); err != nil {
		return nil, fmt.Errorf("%w: seek %d: %w", common.ErrIO, start, err)
	}
	for cur := uint64(0); cur < length; cur += io.iosz {
		if err := io.d.Read(win[cur : cur+io.iosz]); err != nil {
			return nil, fmt.Errorf("%w: read %d: %w", common.ErrIO, start+cur, err)
		}
	}
	return win, nil
}

func (io *IO) writeWindow(start uint64, win []byte) error {
	if err := io.d.Seek(start); err != nil {
		return fmt.Errorf("%w: seek %d: %w", common.ErrIO, start, err)
	}
	for cur := uint64(0); cur < uint64(len(win)); cur += io.iosz {
		if err := io.d.Write(win[cur : cur+io.iosz]); err != nil {
			return fmt.Errorf("%w: write %d: %w", common.ErrIO, start+cur, err)
		}
	}
	return nil
}

// ReadBuf reads the object at addr.
func (io *IO) ReadBuf(addr Addr) (*Buf, error) {
	if util.SumOverflows(addr.Off, addr.Sz) || addr.Off+addr.Sz > io.d.Size() {
		return nil, fmt.Errorf("%w: read %d+%d past end of device", common.ErrIO,
			addr.Off, addr.Sz)
	}
	start, length, bias := addr.Window(io.iosz)
	win, err := io.readWindow(start, length)
	if err != nil {
		return nil, err
	}
	util.DPrintf(15, "ReadBuf: %v window %d+%d\n", addr, start, length)
	return MkBufLoad(addr, bias, win), nil
}

// Read returns sz bytes starting at off.
func (io *IO) Read(off uint64, sz uint64) ([]byte, error) {
	b, err := io.ReadBuf(MkAddr(off, sz))
	if err != nil {
		return nil, err
	}
	return b.Data, nil
}

// WriteDirect writes buf through to the device, preserving the bytes that
// share its aligned window.
func (buf *Buf) WriteDirect(io *IO) error {
	if util.SumOverflows(buf.Addr.Off, buf.Addr.Sz) ||
		buf.Addr.Off+buf.Addr.Sz > io.d.Size() {
		return fmt.Errorf("%w: write %d+%d past end of device", common.ErrIO,
			buf.Addr.Off, buf.Addr.Sz)
	}
	start, length, bias := buf.Addr.Window(io.iosz)
	var win []byte
	if bias == 0 && length == buf.Addr.Sz {
		win = buf.Data
	} else {
		w, err := io.readWindow(start, length)
		if err != nil {
			return err
		}
		buf.Install(w, bias)
		win = w
	}
	util.DPrintf(15, "WriteDirect: %v window %d+%d\n", buf.Addr, start, length)
	return io.writeWindow(start, win)
}

// Write stores data at off.
func (io *IO) Write(off uint64, data []byte) error {
	return MkBuf(MkAddr(off, uint64(len(data))), data).WriteDirect(io)
}
