package regio

import (
	"testing"

	mmap "github.com/edsrzf/mmap-go"
)

// fakeDevMem builds a DevMem over plain byte slices instead of /dev/mem
// mappings, so the address dispatch and offset math can run anywhere.
func fakeDevMem() *DevMem {
	return &DevMem{windows: []window{
		{base: 0x01c01000, buf: make(mmap.MMap, 0x100)},
		// A window whose physical base is not page aligned maps from the
		// page boundary below it, with the remainder as offset.
		{base: 0x01c20800, buf: make(mmap.MMap, 0x400+0x800), offs: 0x800},
	}}
}

func TestDevMemDispatch(t *testing.T) {
	d := fakeDevMem()
	d.Write32(0x01c01010, 0x12345678)
	if got := d.Read32(0x01c01010); got != 0x12345678 {
		t.Errorf("got %08X, want 12345678", got)
	}

	d.Write32(0x01c20bc4, 0xcafef00d)
	if got := d.Read32(0x01c20bc4); got != 0xcafef00d {
		t.Errorf("offset window got %08X, want CAFEF00D", got)
	}
	// The second window's storage starts offs bytes in.
	if d.windows[1].buf[0x800+0x3c4] == 0 {
		t.Errorf("write didn't land past the page-alignment offset")
	}
}

func TestDevMemUnmappedPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("access outside every window didn't panic")
		}
	}()
	fakeDevMem().Read32(0x40000000)
}
