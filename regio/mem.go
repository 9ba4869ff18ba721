package regio

// Mem is an in-memory Bus for tests and host-side tooling. Unwritten words
// read as zero. The hooks let a test model device behavior (lock bits,
// self-clearing control bits) without a full hardware model: OnRead maps the
// stored value before it is returned, OnWrite maps the value before it is
// stored.
type Mem struct {
	Words   map[uint32]uint32
	OnRead  func(addr, val uint32) uint32
	OnWrite func(addr, val uint32) uint32
}

func NewMem() *Mem {
	return &Mem{Words: make(map[uint32]uint32)}
}

func (m *Mem) Read32(addr uint32) uint32 {
	val := m.Words[addr]
	if m.OnRead != nil {
		val = m.OnRead(addr, val)
	}
	return val
}

func (m *Mem) Write32(addr, val uint32) {
	if m.OnWrite != nil {
		val = m.OnWrite(addr, val)
	}
	m.Words[addr] = val
}
