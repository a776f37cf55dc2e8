package interp

import (
	"encoding/binary"
	"fmt"
)

// Arena is the interpreter's flat, byte-addressable memory — the
// backing store for Alloc'd stack slots, heap allocations, string
// literals, and closure objects. Adapted from the teacher's
// backend_vm.go VM.memory (a flat []byte with a bump-allocated "slab"
// region); here the bump allocator and a freed-block set replace the
// teacher's fixed-size slab-page allocator, since MIR sizes are
// arbitrary (not restricted to two slab classes).
//
// Offset 0 is reserved as the null pointer, mirroring VM's null guard
// region.
type Arena struct {
	mem    []byte
	bump   int
	freed  map[uint64]bool
	guard  int
}

func NewArena() *Arena {
	a := &Arena{mem: make([]byte, 4096), freed: map[uint64]bool{}}
	a.guard = 64
	a.bump = a.guard
	return a
}

func (a *Arena) grow(to int) {
	if to <= len(a.mem) {
		return
	}
	newSize := len(a.mem) * 2
	for newSize < to {
		newSize *= 2
	}
	newMem := make([]byte, newSize)
	copy(newMem, a.mem)
	a.mem = newMem
}

// Alloc reserves n bytes and returns their offset. Never returns 0 (the
// null offset).
func (a *Arena) Alloc(n int) uint64 {
	if n <= 0 {
		n = 1
	}
	off := a.bump
	a.grow(off + n)
	a.bump += n
	return uint64(off)
}

// Free marks an offset's block as released. A subsequent Load/Store at
// that offset panics with a use-after-free diagnostic — the interpreter
// must reject the same observable-effect classes as the native backend
// would via its own memory protection.
func (a *Arena) Free(offset uint64) {
	if offset == 0 {
		return
	}
	a.freed[offset] = true
}

func (a *Arena) checkLive(offset uint64) {
	if a.freed[offset] {
		panic(fmt.Sprintf("interp: use after free at offset %d", offset))
	}
}

func (a *Arena) ReadU8(off uint64) uint64 {
	a.checkLive(off)
	return uint64(a.mem[off])
}
func (a *Arena) WriteU8(off uint64, v uint64) {
	a.checkLive(off)
	a.grow(int(off) + 1)
	a.mem[off] = byte(v)
}

func (a *Arena) ReadU16(off uint64) uint64 {
	a.checkLive(off)
	return uint64(binary.LittleEndian.Uint16(a.mem[off:]))
}
func (a *Arena) WriteU16(off uint64, v uint64) {
	a.checkLive(off)
	a.grow(int(off) + 2)
	binary.LittleEndian.PutUint16(a.mem[off:], uint16(v))
}

func (a *Arena) ReadU32(off uint64) uint64 {
	a.checkLive(off)
	return uint64(binary.LittleEndian.Uint32(a.mem[off:]))
}
func (a *Arena) WriteU32(off uint64, v uint64) {
	a.checkLive(off)
	a.grow(int(off) + 4)
	binary.LittleEndian.PutUint32(a.mem[off:], uint32(v))
}

func (a *Arena) ReadU64(off uint64) uint64 {
	a.checkLive(off)
	return binary.LittleEndian.Uint64(a.mem[off:])
}
func (a *Arena) WriteU64(off uint64, v uint64) {
	a.checkLive(off)
	a.grow(int(off) + 8)
	binary.LittleEndian.PutUint64(a.mem[off:], v)
}

// WriteBytes copies b into the arena at off, growing as needed.
func (a *Arena) WriteBytes(off uint64, b []byte) {
	a.grow(int(off) + len(b))
	copy(a.mem[off:], b)
}

// ReadBytes returns a copy of n bytes starting at off.
func (a *Arena) ReadBytes(off uint64, n int) []byte {
	a.checkLive(off)
	out := make([]byte, n)
	copy(out, a.mem[off:int(off)+n])
	return out
}

// ReadAt width-dispatches a read by byte width (1/2/4/8), matching the
// MIR Load/Store instructions' explicit Width semantics.
func (a *Arena) ReadAt(off uint64, width int) uint64 {
	switch width {
	case 1:
		return a.ReadU8(off)
	case 2:
		return a.ReadU16(off)
	case 4:
		return a.ReadU32(off)
	default:
		return a.ReadU64(off)
	}
}

func (a *Arena) WriteAt(off uint64, width int, v uint64) {
	switch width {
	case 1:
		a.WriteU8(off, v)
	case 2:
		a.WriteU16(off, v)
	case 4:
		a.WriteU32(off, v)
	default:
		a.WriteU64(off, v)
	}
}
