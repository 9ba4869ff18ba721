// Package ccu programs the F1C100s clock control unit: the CPU, peripheral
// and video PLLs and the AHB/APB bus dividers. Init must run exactly once,
// early, before any timing-sensitive peripheral (including DRAM) is touched.
package ccu

const (
	OSC24M_FREQ = 24000000 // high-speed crystal
	LOSC_FREQ   = 32768    // low-speed oscillator
)

// CPU clock source selection, encoded as in CPU_CLK_SRC[17:16].
type CPUClkSrc uint32

const (
	CPU_SRC_LOSC    CPUClkSrc = 0
	CPU_SRC_OSC24M  CPUClkSrc = 1
	CPU_SRC_PLL_CPU CPUClkSrc = 2
)

// AHB clock source selection, encoded as in AHB_APB_HCLKC_CFG[13:12].
type AHBClkSrc uint32

const (
	AHB_SRC_LOSC       AHBClkSrc = 0
	AHB_SRC_OSC24M     AHBClkSrc = 1
	AHB_SRC_CPUCLK     AHBClkSrc = 2
	AHB_SRC_PLL_PERIPH AHBClkSrc = 3 // PLL_PERIPH / AHB pre-divider
)

// AHB pre-divider, applied when the AHB source is PLL_PERIPH.
type AHBPreDiv uint32

const (
	AHB_PRE_DIV1 AHBPreDiv = iota
	AHB_PRE_DIV2
	AHB_PRE_DIV3
	AHB_PRE_DIV4
)

func (d AHBPreDiv) Div() uint32 { return uint32(d) + 1 }

// AHB clock divider.
type AHBDiv uint32

const (
	AHB_DIV1 AHBDiv = iota
	AHB_DIV2
	AHB_DIV4
	AHB_DIV8
)

func (d AHBDiv) Div() uint32 { return 1 << d }

// APB clock divider (from AHB). The register treats 0 the same as 1 (/2).
type APBDiv uint32

const (
	APB_DIV2 APBDiv = 1
	APB_DIV4 APBDiv = 2
	APB_DIV8 APBDiv = 3
)

func (d APBDiv) Div() uint32 { return 1 << d }

// HCLKC divider (from CPU clock).
type HCLKCDiv uint32

const (
	HCLKC_DIV1 HCLKCDiv = iota
	HCLKC_DIV2
	HCLKC_DIV3
	HCLKC_DIV4
)

// PLL_CPU output external divider P.
type PLLCPUP uint32

const (
	P_DIV1 PLLCPUP = 0
	P_DIV2 PLLCPUP = 1
	P_DIV4 PLLCPUP = 2
)

func (p PLLCPUP) Div() uint32 { return 1 << p }

// PLLCPU holds the PLL_CPU factors. Output = 24MHz * N * K / (M * P),
// valid range 200MHz..2.6GHz.
type PLLCPU struct {
	N uint8 // 1..32
	K uint8 // 1..4
	M uint8 // 1..4
	P PLLCPUP
}

func (p PLLCPU) FreqHz() uint32 {
	return OSC24M_FREQ * uint32(p.N) * uint32(p.K) / (uint32(p.M) * p.P.Div())
}

func PLLCPU720MHz() *PLLCPU { return &PLLCPU{N: 30, K: 1, M: 1, P: P_DIV1} }
func PLLCPU600MHz() *PLLCPU { return &PLLCPU{N: 25, K: 1, M: 1, P: P_DIV1} }
func PLLCPU408MHz() *PLLCPU { return &PLLCPU{N: 17, K: 1, M: 1, P: P_DIV1} }

// PLLPeriph holds the PLL_PERIPH factors. Output = 24MHz * N * K; the manual
// wants this fixed at 600MHz.
type PLLPeriph struct {
	N uint8 // 1..32
	K uint8 // 1..4
}

func (p PLLPeriph) FreqHz() uint32 {
	return OSC24M_FREQ * uint32(p.N) * uint32(p.K)
}

func PLLPeriph600MHz() *PLLPeriph { return &PLLPeriph{N: 25, K: 1} }

// PLLVideo holds the PLL_VIDEO configuration. Integer mode outputs
// 24MHz * N / PreDivM (30..600MHz); fractional mode outputs a fixed 270 or
// 297MHz and forces the pre-divider to zero.
type PLLVideo struct {
	Frac    bool
	Out297  bool  // fractional mode only: true = 297MHz, false = 270MHz
	N       uint8 // integer mode: 1..128
	PreDivM uint8 // integer mode: 1..16
}

func (p PLLVideo) FreqHz() uint32 {
	if p.Frac {
		if p.Out297 {
			return 297000000
		}
		return 270000000
	}
	return OSC24M_FREQ * uint32(p.N) / uint32(p.PreDivM)
}

func PLLVideo198MHz() *PLLVideo { return &PLLVideo{N: 66, PreDivM: 8} }
func PLLVideo270MHz() *PLLVideo { return &PLLVideo{Frac: true} }
func PLLVideo297MHz() *PLLVideo { return &PLLVideo{Frac: true, Out297: true} }

// Config describes the target clock tree. A nil PLL spec leaves that PLL
// untouched.
type Config struct {
	PLLCPU       *PLLCPU
	PLLPeriph    *PLLPeriph
	PLLVideo     *PLLVideo
	CPUSrc       CPUClkSrc
	AHBSrc       AHBClkSrc
	AHBPreDiv    AHBPreDiv
	AHBDiv       AHBDiv
	APBDiv       APBDiv
	HCLKCDiv     HCLKCDiv
	DEDRAMGating bool // gate on the display-engine DRAM clocks
}

// DefaultConfig is the C reference sys_clock_init() configuration:
// CPU 720MHz, PERIPH 600MHz, VIDEO ~198MHz, AHB 200MHz, APB 100MHz.
func DefaultConfig() Config {
	return Config{
		PLLCPU:       PLLCPU720MHz(),
		PLLPeriph:    PLLPeriph600MHz(),
		PLLVideo:     PLLVideo198MHz(),
		CPUSrc:       CPU_SRC_PLL_CPU,
		AHBSrc:       AHB_SRC_PLL_PERIPH,
		AHBPreDiv:    AHB_PRE_DIV3, // 600/3 = 200MHz
		AHBDiv:       AHB_DIV1,     // 200/1 = 200MHz
		APBDiv:       APB_DIV2,     // 200/2 = 100MHz
		HCLKCDiv:     HCLKC_DIV1,
		DEDRAMGating: true,
	}
}

// Clocks is the derived frequency set published by Init, in Hz. Callers
// needing the bus frequency (baud-rate math, DRAM bring-up) thread this
// value along instead of reading a global.
type Clocks struct {
	SysClk uint32 // CPU clock
	HClk   uint32 // AHB clock
	PClk   uint32 // APB clock
}

// Default is the reset state: everything running from the 24MHz oscillator.
func Default() Clocks {
	return Clocks{SysClk: OSC24M_FREQ, HClk: OSC24M_FREQ, PClk: OSC24M_FREQ}
}
