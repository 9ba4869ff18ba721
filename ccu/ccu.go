package ccu

import (
	"sync/atomic"

	"github.com/apeng2012/f1c100s-hal/regio"
)

const CCU_BASE = 0x01c20000

// CCU register offsets. See the F1C100s user manual, CCU chapter.
const (
	PLL_CPU_CTRL      = 0x000
	PLL_VIDEO_CTRL    = 0x010
	PLL_DDR_CTRL      = 0x020
	PLL_PERIPH_CTRL   = 0x028
	CPU_CLK_SRC       = 0x050
	AHB_APB_HCLKC_CFG = 0x054
	BUS_CLK_GATING0   = 0x060
	DRAM_GATING       = 0x100
	PLL_STABLE_TIME0  = 0x200
	PLL_STABLE_TIME1  = 0x204
	PLL_DDR_PAT_CTRL  = 0x290
	BUS_SOFT_RST0     = 0x2c0
)

const (
	PLL_ENABLE   = uint32(1 << 31)
	PLL_LOCK     = uint32(1 << 28)
	PLL_FRAC_297 = uint32(1 << 25) // PLL_VIDEO: fractional output select
	PLL_INT_MODE = uint32(1 << 24) // PLL_VIDEO: integer mode select

	DRAM_GATING_BE = uint32(1 << 26)
	DRAM_GATING_FE = uint32(1 << 24)
)

var spins uint32

// sdelay spins for roughly the given number of iterations. The add keeps the
// loop from being compiled away; actual duration depends on the current CPU
// clock, these settle delays were never wall-clock accurate.
func sdelay(loops int) {
	for i := 0; i < loops; i++ {
		atomic.AddUint32(&spins, 1)
	}
}

// waitPLLStable polls the lock bit of the PLL control register at reg with a
// bounded budget. Lock expiry is not surfaced: after the budget runs out
// execution continues with whatever frequency resulted.
func waitPLLStable(b regio.Bus, reg uint32) {
	for timeout := 0xffff; timeout > 0; timeout-- {
		if b.Read32(reg)&PLL_LOCK != 0 {
			return
		}
	}
}

func setCPUSrc(b regio.Bus, src CPUClkSrc) {
	val := b.Read32(CCU_BASE+CPU_CLK_SRC)&^(0x3<<16) | uint32(src)<<16
	b.Write32(CCU_BASE+CPU_CLK_SRC, val)
}

// Init programs the clock tree to the requested configuration and returns
// the derived frequencies. Not idempotent: repeated calls reprogram live
// hardware and can glitch the bus. The order below is load-bearing; in
// particular the CPU runs from the 24MHz oscillator while any PLL is being
// reprogrammed, and bus division factors are in place before the source
// that uses them is switched.
func Init(b regio.Bus, cfg Config) Clocks {
	// PLL lock-detection stable time thresholds.
	b.Write32(CCU_BASE+PLL_STABLE_TIME0, 0x1ff)
	b.Write32(CCU_BASE+PLL_STABLE_TIME1, 0x1ff)

	// Park the CPU on the safe source before touching any PLL.
	setCPUSrc(b, CPU_SRC_OSC24M)
	sdelay(100)

	if v := cfg.PLLVideo; v != nil {
		var val uint32
		if v.Frac {
			// M must be 0 in fractional mode.
			val = PLL_ENABLE
			if v.Out297 {
				val |= PLL_FRAC_297
			}
		} else {
			val = PLL_ENABLE | PLL_INT_MODE |
				uint32(v.N-1)<<8 | uint32(v.PreDivM-1)
		}
		b.Write32(CCU_BASE+PLL_VIDEO_CTRL, val)
		sdelay(100)
		waitPLLStable(b, CCU_BASE+PLL_VIDEO_CTRL)
	}

	if p := cfg.PLLPeriph; p != nil {
		// M=1 (factor field zero) for normal output.
		val := PLL_ENABLE | uint32(p.N-1)<<8 | uint32(p.K-1)<<4
		b.Write32(CCU_BASE+PLL_PERIPH_CTRL, val)
		sdelay(100)
		waitPLLStable(b, CCU_BASE+PLL_PERIPH_CTRL)
	}

	// Divisions and the AHB source select go in one write so the ratios are
	// in place at the moment the source switches.
	busCfg := uint32(cfg.HCLKCDiv)<<16 | uint32(cfg.AHBSrc)<<12 |
		uint32(cfg.APBDiv)<<8 | uint32(cfg.AHBPreDiv)<<6 | uint32(cfg.AHBDiv)<<4
	b.Write32(CCU_BASE+AHB_APB_HCLKC_CFG, busCfg)
	sdelay(100)

	if cfg.DEDRAMGating {
		regio.SetBits32(b, CCU_BASE+DRAM_GATING, DRAM_GATING_BE|DRAM_GATING_FE)
		sdelay(100)
	}

	if p := cfg.PLLCPU; p != nil {
		val := b.Read32(CCU_BASE+PLL_CPU_CTRL) &^ (0x3<<16 | 0x1f<<8 | 0x3<<4 | 0x3)
		val |= PLL_ENABLE | uint32(p.P)<<16 |
			uint32(p.N-1)<<8 | uint32(p.K-1)<<4 | uint32(p.M-1)
		b.Write32(CCU_BASE+PLL_CPU_CTRL, val)
		waitPLLStable(b, CCU_BASE+PLL_CPU_CTRL)
	}

	setCPUSrc(b, cfg.CPUSrc)
	sdelay(100)

	return deriveClocks(cfg)
}

// deriveClocks recomputes the published frequencies from the final selector
// graph. Pure; exercised directly by tests.
func deriveClocks(cfg Config) Clocks {
	var sysclk uint32
	switch cfg.CPUSrc {
	case CPU_SRC_LOSC:
		sysclk = LOSC_FREQ
	case CPU_SRC_OSC24M:
		sysclk = OSC24M_FREQ
	case CPU_SRC_PLL_CPU:
		if cfg.PLLCPU != nil {
			sysclk = cfg.PLLCPU.FreqHz()
		} else {
			sysclk = OSC24M_FREQ
		}
	}

	periphHz := uint32(OSC24M_FREQ)
	if cfg.PLLPeriph != nil {
		periphHz = cfg.PLLPeriph.FreqHz()
	}

	var ahbInput uint32
	switch cfg.AHBSrc {
	case AHB_SRC_LOSC:
		ahbInput = LOSC_FREQ
	case AHB_SRC_OSC24M:
		ahbInput = OSC24M_FREQ
	case AHB_SRC_CPUCLK:
		ahbInput = sysclk
	case AHB_SRC_PLL_PERIPH:
		ahbInput = periphHz / cfg.AHBPreDiv.Div()
	}
	hclk := ahbInput / cfg.AHBDiv.Div()
	pclk := hclk / cfg.APBDiv.Div()

	return Clocks{SysClk: sysclk, HClk: hclk, PClk: pclk}
}
