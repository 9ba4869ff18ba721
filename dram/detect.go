package dram

import (
	"fmt"
	"math/bits"
)

// setReadPipe programs a read-pipeline delay setting (0..7) into the
// controller.
func (p *para) setReadPipe(i uint32) {
	val := p.b.Read32(DRAM_CTL_BASE+DRAM_SCTLR)&^(0x7<<6) | i<<6
	p.b.Write32(DRAM_CTL_BASE+DRAM_SCTLR, val)
}

// checkType sweeps all 8 read-pipe settings and inspects the delay-scan
// status bits. A chip that shows the failure pattern at every setting is
// SDR; anything else is DDR.
func (p *para) checkType() {
	times := 0
	for i := uint32(0); i < 8; i++ {
		p.setReadPipe(i)
		// A scan timeout is not fatal here; the status bits below simply
		// read as whatever the last scan left.
		_ = p.delayScan()
		if p.b.Read32(DRAM_CTL_BASE+DRAM_DDLYR)&0x30 != 0 {
			times++
		}
	}
	if times == 8 {
		p.typ = SDR
	} else {
		p.typ = DDR
	}
}

// checkDelay scores the current read-pipe setting by the total number of
// set bits across the delay-pointer status registers.
func (p *para) checkDelay() uint32 {
	dsize := 2
	if p.bwidth == 16 {
		dsize = 4
	}
	var num uint32
	ptrs := []uint32{DRAM_DRPTR0, DRAM_DRPTR1, DRAM_DRPTR2, DRAM_DRPTR3}
	for i := 0; i < dsize; i++ {
		num += uint32(bits.OnesCount32(p.b.Read32(DRAM_CTL_BASE + ptrs[i])))
	}
	return num
}

// scanReadPipe calibrates the read-pipeline delay. DDR settings are scored
// by checkDelay over the settings whose scan status shows a valid window;
// the highest score wins and ties keep the lowest index. SDR instead takes
// the first setting that passes a functional probe.
func (p *para) scanReadPipe() {
	if p.typ == DDR {
		var rpBest, rpVal uint32
		for i := uint32(0); i < 8; i++ {
			p.setReadPipe(i)
			_ = p.delayScan()
			var score uint32
			if p.b.Read32(DRAM_CTL_BASE+DRAM_DDLYR)>>4&0x3 == 0 {
				score = p.checkDelay()
			}
			if rpVal < score {
				rpVal = score
				rpBest = i
			}
		}
		p.setReadPipe(rpBest)
		_ = p.delayScan()
	} else {
		val := p.b.Read32(DRAM_CTL_BASE+DRAM_SCONR) &^ (0x1 << 16) &^ (0x3 << 13)
		p.b.Write32(DRAM_CTL_BASE+DRAM_SCONR, val)
		p.setReadPipe(p.sdrReadPipeSelect())
	}
}

// sdrReadPipeScan writes an ascending 32-word ramp and checks it reads back.
func (p *para) sdrReadPipeScan() bool {
	for k := uint32(0); k < 32; k++ {
		p.b.Write32(SDRAM_BASE+4*k, k)
	}
	for k := uint32(0); k < 32; k++ {
		if p.b.Read32(SDRAM_BASE+4*k) != k {
			return false
		}
	}
	return true
}

// sdrReadPipeSelect returns the first read-pipe setting whose functional
// probe round-trips, or 0 if none does.
func (p *para) sdrReadPipeSelect() uint32 {
	for i := uint32(0); i < 8; i++ {
		p.setReadPipe(i)
		if p.sdrReadPipeScan() {
			return i
		}
	}
	return 0
}

// refreshCounter computes the auto-refresh counter for a row-width encoding
// (as stored in the mode register) and a clock value. At or above the
// 1_000_000 boundary the scaled value is consumed threshold by threshold,
// mirroring how the hardware counter burns cycles; below it a multiply-shift
// approximation is used.
func refreshCounter(row, clk uint32) uint32 {
	var val uint32
	switch row {
	case 0xc:
		if clk >= 1000000 {
			temp := clk + clk>>3 + clk>>4 + clk>>5
			threshold := uint32(10000000 >> 6)
			for temp >= threshold {
				temp -= threshold
				val++
			}
		} else {
			val = (clk * 499) >> 6
		}
	case 0xb:
		if clk >= 1000000 {
			temp := clk + clk>>3 + clk>>4 + clk>>5
			threshold := uint32(10000000 >> 7)
			for temp >= threshold {
				temp -= threshold
				val++
			}
		} else {
			val = (clk * 499) >> 5
		}
	}
	return val
}

// setAutoRefreshCycle recomputes the refresh counter from the clock and the
// row width the controller is currently configured with.
func (p *para) setAutoRefreshCycle(clk uint32) {
	row := (p.b.Read32(DRAM_CTL_BASE+DRAM_SCONR) & 0x1e0) >> 5
	p.b.Write32(DRAM_CTL_BASE+DRAM_SREFR, refreshCounter(row, clk))
}

// detectSize discovers the installed column and row widths by aliasing
// probes and derives the final size. Two patterns go to column offsets
// 0x200 and 0x600; if the second lands on top of the first for all 32
// words, the controller is decoding one fewer column bit than configured.
// The row probe repeats the trick at row-aligned addresses chosen for the
// detected column width.
func (p *para) detectSize() error {
	colflag := uint32(10)
	rowflag := uint32(13)

	p.colWidth = colflag
	p.rowWidth = rowflag
	if err := p.setup(); err != nil {
		return err
	}
	p.scanReadPipe()

	for i := uint32(0); i < 32; i++ {
		p.b.Write32(p.base+0x200+i, 0x11111111)
		p.b.Write32(p.base+0x600+i, 0x22222222)
	}
	count := 0
	for i := uint32(0); i < 32; i++ {
		if p.b.Read32(p.base+0x200+i) == 0x22222222 {
			count++
		}
	}
	if count == 32 {
		colflag = 9
	} else {
		colflag = 10
	}

	p.colWidth = colflag
	p.rowWidth = rowflag
	if err := p.setup(); err != nil {
		return err
	}

	addr1, addr2 := uint32(SDRAM_BASE+0x400000), uint32(SDRAM_BASE+0xc00000)
	if colflag != 10 {
		addr1, addr2 = SDRAM_BASE+0x200000, SDRAM_BASE+0x600000
	}
	for i := uint32(0); i < 32; i++ {
		p.b.Write32(addr1+i, 0x33333333)
		p.b.Write32(addr2+i, 0x44444444)
	}
	count = 0
	for i := uint32(0); i < 32; i++ {
		if p.b.Read32(addr1+i) == 0x44444444 {
			count++
		}
	}
	if count == 32 {
		rowflag = 12
	} else {
		rowflag = 13
	}

	p.colWidth = colflag
	p.rowWidth = rowflag
	if p.rowWidth != 13 {
		p.size = 16
	} else if p.colWidth == 10 {
		p.size = 64
	} else {
		p.size = 32
	}

	// Final programming with settled geometry, in the lower-overhead
	// access mode.
	p.setAutoRefreshCycle(p.clk)
	p.accessMode = 0
	return p.setup()
}

// verify writes a 128-word ascending address pattern at the base of the
// array and reads it back in full.
func (p *para) verify() error {
	for i := uint32(0); i < 128; i++ {
		p.b.Write32(p.base+4*i, p.base+4*i)
	}
	for i := uint32(0); i < 128; i++ {
		if got := p.b.Read32(p.base + 4*i); got != p.base+4*i {
			return fmt.Errorf("verify mismatch at %08X: got %08X, want %08X",
				p.base+4*i, got, p.base+4*i)
		}
	}
	return nil
}
