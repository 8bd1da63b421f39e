package kcore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrUnresolved reports a virtual address not covered by any segment.
var ErrUnresolved = errors.New("kcore: address not covered by any segment")

// Image is an open kernel memory image. Reads go through seek+read, never
// mmap; the file needs elevated privilege to open.
type Image struct {
	f     *os.File
	table *SegmentTable
}

// Open opens the image and parses its segment table.
func Open(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("kcore: open %s: %w", path, err)
	}

	buf := make([]byte, HeaderSize)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		f.Close()
		return nil, fmt.Errorf("kcore: read header of %s: %w", path, err)
	}

	table, err := ParseHeader(buf[:n])
	if err != nil {
		f.Close()
		return nil, err
	}

	return &Image{f: f, table: table}, nil
}

func (im *Image) Close() error {
	return im.f.Close()
}

// WordSize is the pointer size of the imaged kernel, in bytes.
func (im *Image) WordSize() int {
	return im.table.WordSize
}

// Table exposes the parsed segment table.
func (im *Image) Table() *SegmentTable {
	return im.table
}

// ReadVirtual reads up to length bytes starting at the given kernel virtual
// address. The result may be shorter than requested when the address sits
// near the end of its segment. ErrUnresolved means no segment covers the
// address; a short read from the file itself means the image is truncated or
// inconsistent and is returned as a hard error.
func (im *Image) ReadVirtual(addr, length uint64) ([]byte, error) {
	off, clamped, ok := im.table.Translate(addr, length)
	if !ok {
		return nil, ErrUnresolved
	}

	buf := make([]byte, clamped)
	if _, err := im.f.ReadAt(buf, int64(off)); err != nil {
		return nil, fmt.Errorf("kcore: read %d bytes at vaddr %#x (file offset %#x): %w",
			clamped, addr, off, err)
	}
	return buf, nil
}

// ReadWord reads one pointer-sized value at the given virtual address.
func (im *Image) ReadWord(addr uint64) (uint64, error) {
	buf, err := im.ReadVirtual(addr, uint64(im.table.WordSize))
	if err != nil {
		return 0, err
	}
	if len(buf) < im.table.WordSize {
		return 0, fmt.Errorf("kcore: word at %#x clipped by segment end", addr)
	}
	if im.table.WordSize == 8 {
		return binary.NativeEndian.Uint64(buf), nil
	}
	return uint64(binary.NativeEndian.Uint32(buf)), nil
}
