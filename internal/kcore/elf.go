// Package kcore reads socket structures out of the kernel's memory image.
//
// /proc/kcore is an ELF core file whose program headers describe which
// kernel virtual address ranges are readable at which file offsets. The
// parsing here is deliberately raw: the header is decoded field by field
// from a fixed-size buffer so every byte interpretation stays in this
// package.
package kcore

import (
	"encoding/binary"
	"fmt"
)

// HeaderSize is how much of the image is read up front. The program header
// table of /proc/kcore sits well within the first 8KB.
const HeaderSize = 8192

// Segment is one program-header entry: a kernel virtual address range backed
// by a byte range of the image file.
type Segment struct {
	Type  uint32
	Off   uint64
	Vaddr uint64
	Size  uint64
}

// SegmentTable is the ordered segment list plus the word size the image was
// written with. Built once, read-only afterward.
type SegmentTable struct {
	WordSize int // 4 or 8
	Segments []Segment
}

// ELF identification bytes.
const (
	elfMagic0 = 0x7f
	elfMagic1 = 'E'
	elfMagic2 = 'L'
	elfMagic3 = 'F'

	eiClass    = 4
	elfClass32 = 1
	elfClass64 = 2
)

// ParseHeader decodes the segment table from the raw header buffer. The
// buffer must hold the full ELF header and program header table; anything
// less means the image format is unsupported and there is no safe fallback.
func ParseHeader(buf []byte) (*SegmentTable, error) {
	if len(buf) < 64 {
		return nil, fmt.Errorf("kcore: header too short (%d bytes)", len(buf))
	}
	if buf[0] != elfMagic0 || buf[1] != elfMagic1 || buf[2] != elfMagic2 || buf[3] != elfMagic3 {
		return nil, fmt.Errorf("kcore: bad ELF magic %x", buf[:4])
	}

	order := binary.NativeEndian

	var (
		wordSize  int
		phOff     uint64
		phEntSize int
		phNum     int
	)
	var minEntSize int
	switch buf[eiClass] {
	case elfClass64:
		wordSize = 8
		minEntSize = 56
		phOff = order.Uint64(buf[32:])
		phEntSize = int(order.Uint16(buf[54:]))
		phNum = int(order.Uint16(buf[56:]))
	case elfClass32:
		wordSize = 4
		minEntSize = 32
		phOff = uint64(order.Uint32(buf[28:]))
		phEntSize = int(order.Uint16(buf[42:]))
		phNum = int(order.Uint16(buf[44:]))
	default:
		return nil, fmt.Errorf("kcore: unsupported ELF class %d", buf[eiClass])
	}

	if phEntSize < minEntSize {
		return nil, fmt.Errorf("kcore: program header entry size %d below minimum %d", phEntSize, minEntSize)
	}
	// phOff must be checked before any addition; it can wrap uint64.
	if phOff > uint64(len(buf)) {
		return nil, fmt.Errorf("kcore: program header table offset %#x exceeds %d-byte header buffer",
			phOff, len(buf))
	}
	if uint64(phNum)*uint64(phEntSize) > uint64(len(buf))-phOff {
		return nil, fmt.Errorf("kcore: program header table at %#x+%d*%d exceeds %d-byte header buffer",
			phOff, phNum, phEntSize, len(buf))
	}

	table := &SegmentTable{WordSize: wordSize}
	for i := 0; i < phNum; i++ {
		ent := buf[phOff+uint64(i)*uint64(phEntSize):]
		var seg Segment
		if wordSize == 8 {
			seg = Segment{
				Type:  order.Uint32(ent[0:]),
				Off:   order.Uint64(ent[8:]),
				Vaddr: order.Uint64(ent[16:]),
				Size:  order.Uint64(ent[32:]),
			}
		} else {
			seg = Segment{
				Type:  order.Uint32(ent[0:]),
				Off:   uint64(order.Uint32(ent[4:])),
				Vaddr: uint64(order.Uint32(ent[8:])),
				Size:  uint64(order.Uint32(ent[16:])),
			}
		}
		table.Segments = append(table.Segments, seg)
	}

	return table, nil
}

// Translate maps a virtual address range onto the image file. It scans the
// table in order for the first segment covering addr and clamps length to
// the bytes remaining in that segment. ok is false when no segment covers
// addr; callers treat that as "peer unknown", not as a failure.
func (t *SegmentTable) Translate(addr, length uint64) (off, clamped uint64, ok bool) {
	for _, seg := range t.Segments {
		if addr < seg.Vaddr || addr >= seg.Vaddr+seg.Size {
			continue
		}
		delta := addr - seg.Vaddr
		if remain := seg.Size - delta; length > remain {
			length = remain
		}
		return seg.Off + delta, length, true
	}
	return 0, 0, false
}
