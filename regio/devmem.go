package regio

import (
	"fmt"
	"log"
	"os"
	"unsafe"

	mmap "github.com/edsrzf/mmap-go"
)

const (
	PAGE_SIZE = 4096
	MEM_FILE  = "/dev/mem"
)

// Physical bases of the windows the bring-up code touches.
const (
	SRAM_BASE     = 0x00000000 // boot SRAM, holds the DRAM size marker at 0x5c
	DRAM_CTL_BASE = 0x01c01000 // SDRAM controller register bank
	CCU_BASE      = 0x01c20000 // clock control unit
	PIO_BASE      = 0x01c20800 // pin controller (SDR pad registers)
	SDRAM_BASE    = 0x80000000 // external DRAM
)

type window struct {
	base uint32
	buf  mmap.MMap
	offs uintptr
}

// DevMem is the hardware Bus: each fixed window is mapped from /dev/mem and
// accesses dispatch to the window containing the address. The SDRAM window
// covers 16MB, enough for the row-detect probes at +0xc00000; callers wanting
// the full array should map it themselves once the size is known.
type DevMem struct {
	windows []window
}

var devMemWindows = []struct {
	base uint32
	size int
}{
	{SRAM_BASE, PAGE_SIZE},
	{DRAM_CTL_BASE, 0x100},
	{CCU_BASE, 0x400},
	{PIO_BASE, 0x400},
	{SDRAM_BASE, 16 * 1024 * 1024},
}

func NewDevMem() (*DevMem, error) {
	d := DevMem{}
	for _, w := range devMemWindows {
		buf, offs, err := mapMem(uintptr(w.base), w.size)
		if err != nil {
			d.Close() // Ignore error
			return nil, fmt.Errorf("couldn't map window at %08X: %v", w.base, err)
		}
		d.windows = append(d.windows, window{base: w.base, buf: buf, offs: offs})
	}
	return &d, nil
}

func (d *DevMem) Close() error {
	var err error
	for i := range d.windows {
		if d.windows[i].buf != nil {
			te := d.windows[i].buf.Unmap()
			d.windows[i].buf = nil
			if err == nil {
				err = te
			}
		}
	}
	return err
}

// word locates addr inside a mapped window. An address outside every window
// is a programming error in the caller, not a runtime condition.
func (d *DevMem) word(addr uint32) *uint32 {
	for i := range d.windows {
		w := &d.windows[i]
		end := w.base + uint32(len(w.buf)-int(w.offs))
		if addr >= w.base && addr < end {
			return (*uint32)(unsafe.Pointer(&w.buf[w.offs+uintptr(addr-w.base)]))
		}
	}
	panic(fmt.Sprintf("regio: address %08X is not in any mapped window", addr))
}

func (d *DevMem) Read32(addr uint32) uint32 {
	return *d.word(addr)
}

func (d *DevMem) Write32(addr, val uint32) {
	*d.word(addr) = val
}

// mapMem opens /dev/mem and uses mmap to map a given physical address into our
// address space. Since the mapping has to start at a page boundary, the
// physical address is rounded down to the nearest page boundary. mapMem
// returns the mapped memory and the offset that should be used to access it
// (=physAddr%PAGE_SIZE).
func mapMem(physAddr uintptr, size int) (mmap.MMap, uintptr, error) {
	f, err := os.OpenFile(MEM_FILE, os.O_RDWR|os.O_SYNC, os.ModePerm)
	if err != nil {
		return nil, 0, fmt.Errorf("couldn't open %s: %v", MEM_FILE, err)
	}

	pagemask := ^uintptr(PAGE_SIZE - 1)
	mapAddr := physAddr & pagemask
	size += int(physAddr - mapAddr)
	mm, err := mmap.MapRegion(f, size, mmap.RDWR, 0, int64(mapAddr))
	if err != nil {
		f.Close() // Ignore error
		return nil, 0, fmt.Errorf("couldn't map region (%v, %v): %v", physAddr, size, err)
	}
	f.Close() // Ignore error
	log.Printf("mapped %d bytes, physAddr %08X, offset %d\n", size, physAddr, physAddr&(PAGE_SIZE-1))

	return mm, physAddr & (PAGE_SIZE - 1), nil
}
