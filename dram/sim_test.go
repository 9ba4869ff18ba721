package dram

import (
	"github.com/apeng2012/f1c100s-hal/ccu"
)

// dramSim models everything the bring-up sequence touches: the controller
// register bank, the CCU/PIO bits, the SRAM marker word and a memory chip
// with a true geometry that may differ from the configured one. Address
// decode follows the controller's {bank, row, column} mapping as configured
// in the mode register; column and row values are masked to the chip's
// actual widths, which is exactly the aliasing the detection probes rely on.
type dramSim struct {
	mem       []byte
	actualCol uint32 // column address bits the chip really decodes
	actualRow uint32 // row address bits the chip really decodes
	regs      map[uint32]uint32
	noLock    bool   // PLL_DDR never reports lock
	sdrOnly   bool   // delay scan shows the SDR pattern at every setting
	poison    uint32 // if nonzero, reads of this address come back inverted
	writes    int
}

func newDramSim(actualCol, actualRow uint32) *dramSim {
	return &dramSim{
		mem:       make([]byte, 1<<(actualRow+2+actualCol+1)),
		actualCol: actualCol,
		actualRow: actualRow,
		regs:      make(map[uint32]uint32),
	}
}

func (s *dramSim) readPipe() uint32 {
	return (s.regs[DRAM_CTL_BASE+DRAM_SCTLR] >> 6) & 0x7
}

// ddlyrStatus synthesizes the delay-scan status bits for the current
// read-pipe setting: settings 2..5 show a valid window on a DDR chip.
func (s *dramSim) ddlyrStatus() uint32 {
	if s.sdrOnly {
		return 0x30
	}
	if rp := s.readPipe(); rp >= 2 && rp <= 5 {
		return 0x00
	}
	return 0x30
}

// drptr gives the delay-pointer registers a popcount profile that peaks at
// read-pipe settings 3 and 4 equally, so the tie-break is exercised.
func (s *dramSim) drptr() uint32 {
	if rp := s.readPipe(); rp == 3 || rp == 4 {
		return 0xffffffff
	}
	return 0x0000ffff
}

// byteIndex translates a byte offset into the chip array: split per the
// configured widths, mask to the actual widths, recombine.
func (s *dramSim) byteIndex(off uint32) uint32 {
	sconr := s.regs[DRAM_CTL_BASE+DRAM_SCONR]
	cfgCol := ((sconr >> 9) & 0xf) + 1
	cfgRow := ((sconr >> 5) & 0xf) + 1

	b := off & 0x1
	col := (off >> 1) & (1<<cfgCol - 1)
	row := (off >> (1 + cfgCol)) & (1<<cfgRow - 1)
	bank := (off >> (1 + cfgCol + cfgRow)) & 0x3

	col &= 1<<s.actualCol - 1
	row &= 1<<s.actualRow - 1
	return ((bank<<s.actualRow|row)<<s.actualCol|col)<<1 | b
}

func (s *dramSim) Read32(addr uint32) uint32 {
	if addr >= SDRAM_BASE {
		var v uint32
		for i := uint32(0); i < 4; i++ {
			v |= uint32(s.mem[s.byteIndex(addr-SDRAM_BASE+i)]) << (8 * i)
		}
		if s.poison != 0 && addr == s.poison {
			return ^v
		}
		return v
	}

	switch addr {
	case DRAM_CTL_BASE + DRAM_DDLYR:
		return s.ddlyrStatus()
	case DRAM_CTL_BASE + DRAM_DRPTR0, DRAM_CTL_BASE + DRAM_DRPTR1,
		DRAM_CTL_BASE + DRAM_DRPTR2, DRAM_CTL_BASE + DRAM_DRPTR3:
		return s.drptr()
	case ccu.CCU_BASE + ccu.PLL_DDR_CTRL:
		val := s.regs[addr]
		if !s.noLock && val&ccu.PLL_ENABLE != 0 {
			val |= ccu.PLL_LOCK
		}
		return val
	}
	return s.regs[addr]
}

func (s *dramSim) Write32(addr, val uint32) {
	s.writes++
	if addr >= SDRAM_BASE {
		for i := uint32(0); i < 4; i++ {
			s.mem[s.byteIndex(addr-SDRAM_BASE+i)] = byte(val >> (8 * i))
		}
		return
	}

	switch addr {
	case DRAM_CTL_BASE + DRAM_SCTLR, DRAM_CTL_BASE + DRAM_DDLYR:
		// Start bits self-clear once the triggered operation finishes.
		val &^= 0x1
	}
	s.regs[addr] = val
}
