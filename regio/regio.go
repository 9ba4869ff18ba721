// Package regio provides 32-bit access to the fixed physical register and
// memory windows of the Allwinner F1C100s/F1C200s. All bring-up code goes
// through the Bus interface instead of doing pointer arithmetic itself, so
// the same algorithms run against mapped hardware (DevMem) or a simulated
// bus (Mem) in tests.
package regio

// Bus is a single 32-bit access path to physical address space. Accesses
// take effect immediately and in program order; implementations must not
// cache or reorder them, register reads have side effects on real hardware.
type Bus interface {
	Read32(addr uint32) uint32
	Write32(addr, val uint32)
}

// SetBits32 sets the given bits in the register at addr.
func SetBits32(b Bus, addr, bits uint32) {
	b.Write32(addr, b.Read32(addr)|bits)
}

// ClearBits32 clears the given bits in the register at addr.
func ClearBits32(b Bus, addr, bits uint32) {
	b.Write32(addr, b.Read32(addr)&^bits)
}
