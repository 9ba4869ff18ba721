// Package dram brings up the F1C100s/F1C200s DDR1 memory controller: pad and
// PLL_DDR setup, controller timing, blind geometry detection, read-pipeline
// calibration and a functional verification pass. The configured geometry is
// only a starting guess; the installed chip decides what Init reports.
//
// Init must run after ccu.Init has stabilized the bus clocks. It is safe to
// call from multiple boot paths: a marker word in SRAM short-circuits repeat
// calls without touching hardware.
package dram

import (
	"fmt"
	"log"
	"sync/atomic"

	"github.com/apeng2012/f1c100s-hal/ccu"
	"github.com/apeng2012/f1c100s-hal/regio"
)

const (
	DRAM_CTL_BASE = 0x01c01000
	PIO_BASE      = 0x01c20800
	SDRAM_BASE    = 0x80000000

	// The top byte of this SRAM word reads 'X' once DRAM is up; the low
	// 24 bits hold the detected size in MB.
	MARKER_ADDR = 0x5c
)

// SDRAM controller register offsets.
const (
	DRAM_SCONR  = 0x00
	DRAM_STMG0R = 0x04
	DRAM_STMG1R = 0x08
	DRAM_SCTLR  = 0x0c
	DRAM_SREFR  = 0x10
	DRAM_DDLYR  = 0x24
	DRAM_DRPTR0 = 0x30
	DRAM_DRPTR1 = 0x34
	DRAM_DRPTR2 = 0x38
	DRAM_DRPTR3 = 0x3c
)

// PIO register offsets used by the controller's pads.
const (
	PB_CFG0     = 0x24
	SDR_PAD_DRV = 0x2c0
	SDR_PAD_PUL = 0x2c4
)

const SDRAM_GATING = uint32(1 << 14) // SDRAM bit in BUS_CLK_GATING0 / BUS_SOFT_RST0

// Timing parameters for a 156MHz DDR clock.
const (
	SDR_T_CAS      = 0x2
	SDR_T_RAS      = 0x8
	SDR_T_RCD      = 0x3
	SDR_T_RP       = 0x3
	SDR_T_WR       = 0x3
	SDR_T_RFC      = 0xd
	SDR_T_XSR      = 0xf9
	SDR_T_RC       = 0xb
	SDR_T_INIT     = 0x8
	SDR_T_INIT_REF = 0x7
	SDR_T_WTR      = 0x2
	SDR_T_RRD      = 0x2
	SDR_T_XP       = 0x0
)

// Chip selects the expected DDR capacity; detection may override it.
type Chip int

const (
	F1C100S Chip = iota // 32MB DDR1
	F1C200S             // 64MB DDR1
)

// Config for DRAM bring-up.
type Config struct {
	Chip     Chip
	PLLDDRHz uint32 // target PLL_DDR frequency, normally 156MHz

	// PLLLockBound caps the PLL_DDR lock wait in iterations. Zero means
	// spin forever, which is what runs on hardware; tests inject a bound
	// so a never-locking PLL can't hang the suite.
	PLLLockBound uint32
}

func DefaultConfig() Config {
	return Config{Chip: F1C200S, PLLDDRHz: 156000000}
}

// Info is the published bring-up result.
type Info struct {
	Base   uint32 // always 0x80000000
	SizeMB uint32 // detected size
}

type memType uint32

const (
	SDR memType = 0
	DDR memType = 1
)

func (t memType) String() string {
	if t == SDR {
		return "SDR"
	}
	return "DDR"
}

// para is the working state of one bring-up run: the geometry fields start
// as the per-variant guess and are overwritten in place by detection. It
// never outlives the Init call that created it.
type para struct {
	b          regio.Bus
	base       uint32
	size       uint32 // MB
	clk        uint32 // MHz
	accessMode uint32
	csNum      uint32
	ddr8Remap  uint32
	typ        memType
	bwidth     uint32
	colWidth   uint32
	rowWidth   uint32
	bankSize   uint32
	cas        uint32
	lockBound  uint32
}

func newPara(b regio.Bus, cfg Config) *para {
	size := uint32(64)
	if cfg.Chip == F1C100S {
		size = 32
	}
	return &para{
		b:          b,
		base:       SDRAM_BASE,
		size:       size,
		clk:        cfg.PLLDDRHz / 1000000,
		accessMode: 1,
		csNum:      1,
		typ:        DDR,
		bwidth:     16,
		colWidth:   10,
		rowWidth:   13,
		bankSize:   4,
		cas:        0x3,
		lockBound:  cfg.PLLLockBound,
	}
}

// Init brings up the DRAM controller and returns the detected base and size.
// If the SRAM marker says a previous run already succeeded, the cached result
// is returned without a single register write.
func Init(b regio.Bus, cfg Config) (*Info, error) {
	if dsz := b.Read32(MARKER_ADDR); dsz>>24 == 'X' {
		return &Info{Base: SDRAM_BASE, SizeMB: dsz & 0x00ffffff}, nil
	}

	p := newPara(b, cfg)
	if err := p.bringUp(); err != nil {
		return nil, err
	}

	b.Write32(MARKER_ADDR, uint32('X')<<24|p.size)
	return &Info{Base: p.base, SizeMB: p.size}, nil
}

// bringUp runs the cold-path sequence. Hardware registers are left as last
// programmed on failure; there is no rollback.
func (p *para) bringUp() error {
	p.padSetup()
	p.pllDDRSetup()
	p.busClockReset()
	p.setPadType()
	p.timingSetup()

	if err := p.setup(); err != nil {
		return fmt.Errorf("couldn't start controller: %v", err)
	}
	p.checkType()
	p.setPadType() // re-apply for the now-known signaling type

	p.setAutoRefreshCycle(p.clk)
	p.scanReadPipe()
	if err := p.detectSize(); err != nil {
		return fmt.Errorf("couldn't detect geometry: %v", err)
	}
	log.Printf("DRAM: %v, col %d, row %d, %dMB\n", p.typ, p.colWidth, p.rowWidth, p.size)

	return p.verify()
}

// padSetup puts PB3 on the SDR_DQS function and sets pad drive/pull for the
// target clock. Below 144MHz the reset-default drive strength stands.
func (p *para) padSetup() {
	val := p.b.Read32(PIO_BASE+PB_CFG0)&^(0x7<<12) | 0x7<<12
	p.b.Write32(PIO_BASE+PB_CFG0, val)

	regio.SetBits32(p.b, PIO_BASE+SDR_PAD_DRV, 0x7<<12)
	dramDelay(5)

	if (p.cas>>3)&0x1 != 0 {
		regio.SetBits32(p.b, PIO_BASE+SDR_PAD_PUL, 0x1<<23|0x20<<17)
	}

	if p.clk >= 144 && p.clk <= 180 {
		p.b.Write32(PIO_BASE+SDR_PAD_DRV, 0xaaa)
	}
	if p.clk >= 180 {
		p.b.Write32(PIO_BASE+SDR_PAD_DRV, 0xfff)
	}
}

// pllDDRSetup programs the dedicated memory PLL. Up to 96MHz the factor is
// encoded against a /12 reference, above it against /24. The sigma-delta
// pattern preset is keyed off bits 4..7 of the CAS mask; no pattern is
// written when none of them is set.
func (p *para) pllDDRSetup() {
	var val uint32
	if p.clk <= 96 {
		val = 0x1 | ((p.clk*2)/12-1)<<8 | ccu.PLL_ENABLE
	} else {
		val = ((p.clk*2)/24-1)<<8 | ccu.PLL_ENABLE
	}

	switch {
	case p.cas&(0x1<<4) != 0:
		p.b.Write32(ccu.CCU_BASE+ccu.PLL_DDR_PAT_CTRL, 0xd1303333)
	case p.cas&(0x1<<5) != 0:
		p.b.Write32(ccu.CCU_BASE+ccu.PLL_DDR_PAT_CTRL, 0xcce06666)
	case p.cas&(0x1<<6) != 0:
		p.b.Write32(ccu.CCU_BASE+ccu.PLL_DDR_PAT_CTRL, 0xc8909999)
	case p.cas&(0x1<<7) != 0:
		p.b.Write32(ccu.CCU_BASE+ccu.PLL_DDR_PAT_CTRL, 0xc440cccc)
	}
	if p.cas&(0xf<<4) != 0 {
		val |= 0x1 << 24
	}

	p.b.Write32(ccu.CCU_BASE+ccu.PLL_DDR_CTRL, val)
	regio.SetBits32(p.b, ccu.CCU_BASE+ccu.PLL_DDR_CTRL, 0x1<<20)

	// Stricter than the clock-tree lock waits: with lockBound zero this
	// spins until the lock bit comes up, however long that takes.
	for i := uint32(0); p.lockBound == 0 || i < p.lockBound; i++ {
		if p.b.Read32(ccu.CCU_BASE+ccu.PLL_DDR_CTRL)&ccu.PLL_LOCK != 0 {
			break
		}
	}
	dramDelay(5)
}

// busClockReset gates the SDRAM bus clock on and pulses the controller's
// soft reset.
func (p *para) busClockReset() {
	regio.SetBits32(p.b, ccu.CCU_BASE+ccu.BUS_CLK_GATING0, SDRAM_GATING)
	regio.ClearBits32(p.b, ccu.CCU_BASE+ccu.BUS_SOFT_RST0, SDRAM_GATING)
	sdelay(20)
	regio.SetBits32(p.b, ccu.CCU_BASE+ccu.BUS_SOFT_RST0, SDRAM_GATING)
}

// setPadType sets the DDR/SDR pad-pull mode bit for the currently assumed
// signaling type.
func (p *para) setPadType() {
	if p.typ == DDR {
		regio.SetBits32(p.b, PIO_BASE+SDR_PAD_PUL, 0x1<<16)
	} else {
		regio.ClearBits32(p.b, PIO_BASE+SDR_PAD_PUL, 0x1<<16)
	}
}

func (p *para) timingSetup() {
	stmg0 := uint32(SDR_T_CAS) | SDR_T_RAS<<3 | SDR_T_RCD<<7 | SDR_T_RP<<10 |
		SDR_T_WR<<13 | SDR_T_RFC<<15 | SDR_T_XSR<<19 | SDR_T_RC<<28
	p.b.Write32(DRAM_CTL_BASE+DRAM_STMG0R, stmg0)

	stmg1 := uint32(SDR_T_INIT) | SDR_T_INIT_REF<<16 | SDR_T_WTR<<20 |
		SDR_T_RRD<<22 | SDR_T_XP<<25
	p.b.Write32(DRAM_CTL_BASE+DRAM_STMG1R, stmg1)
}

// modeRegVal assembles the controller geometry/mode register from the
// current parameters. Pure; decodeModeReg is its inverse.
func (p *para) modeRegVal() uint32 {
	bwShift := p.bwidth >> 4
	if p.typ == SDR {
		bwShift = p.bwidth >> 5
	}
	return p.ddr8Remap | 0x1<<1 |
		(p.bankSize>>2)<<3 |
		(p.csNum>>1)<<4 |
		(p.rowWidth-1)<<5 |
		(p.colWidth-1)<<9 |
		bwShift<<13 |
		p.accessMode<<15 |
		uint32(p.typ)<<16
}

// decodeModeReg recovers the geometry fields from an assembled mode register
// value.
func decodeModeReg(val uint32) para {
	p := para{
		ddr8Remap:  val & 0x1,
		rowWidth:   (val>>5)&0xf + 1,
		colWidth:   (val>>9)&0xf + 1,
		accessMode: (val >> 15) & 0x1,
		typ:        memType((val >> 16) & 0x1),
		bankSize:   1,
		csNum:      (val>>4)&0x1 + 1,
	}
	if (val>>3)&0x1 != 0 {
		p.bankSize = 4
	}
	bwShift := (val >> 13) & 0x3
	if p.typ == SDR {
		p.bwidth = bwShift << 5
	} else {
		p.bwidth = bwShift << 4
	}
	return p
}

// setup writes the geometry/mode register and restarts the controller.
func (p *para) setup() error {
	p.b.Write32(DRAM_CTL_BASE+DRAM_SCONR, p.modeRegVal())
	regio.SetBits32(p.b, DRAM_CTL_BASE+DRAM_SCTLR, 0x1<<19)
	return p.initial()
}

// initial triggers the controller's initialization start bit and waits for
// it to self-clear.
func (p *para) initial() error {
	regio.SetBits32(p.b, DRAM_CTL_BASE+DRAM_SCTLR, 0x1)
	for time := 0xffffff; ; {
		if p.b.Read32(DRAM_CTL_BASE+DRAM_SCTLR)&0x1 == 0 {
			return nil
		}
		time--
		if time == 0 {
			return fmt.Errorf("initial bit didn't self-clear in %08X polls", 0xffffff)
		}
	}
}

// delayScan triggers a delay-line scan and waits for the start bit to
// self-clear.
func (p *para) delayScan() error {
	regio.SetBits32(p.b, DRAM_CTL_BASE+DRAM_DDLYR, 0x1)
	for time := 0xffffff; ; {
		if p.b.Read32(DRAM_CTL_BASE+DRAM_DDLYR)&0x1 == 0 {
			return nil
		}
		time--
		if time == 0 {
			return fmt.Errorf("delay scan bit didn't self-clear in %08X polls", 0xffffff)
		}
	}
}

var spins uint32

// sdelay spins for roughly the given number of iterations; duration depends
// on the current CPU clock. The add keeps the loop from being compiled away.
func sdelay(loops int) {
	for i := 0; i < loops; i++ {
		atomic.AddUint32(&spins, 1)
	}
}

func dramDelay(ms int) {
	sdelay(ms * 2 * 1000)
}
