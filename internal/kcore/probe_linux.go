//go:build linux

package kcore

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Calibrate discovers the peer-pointer offset inside the kernel's unix
// socket structure. readTable re-reads the live socket table (inode to
// kernel address); it runs after the probe pair exists so both endpoints
// appear in it. Every failure here is fatal for a kcore-mode run: without
// the offset no peer can be read.
func Calibrate(img *Image, readTable func() (map[uint64]uint64, error)) (uint64, error) {
	fds, err := probePair()
	if err != nil {
		return 0, fmt.Errorf("kcore: create probe socket pair: %w", err)
	}
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	inoA, err := socketInode(fds[0])
	if err != nil {
		return 0, fmt.Errorf("kcore: stat probe endpoint: %w", err)
	}
	inoB, err := socketInode(fds[1])
	if err != nil {
		return 0, fmt.Errorf("kcore: stat probe endpoint: %w", err)
	}

	table, err := readTable()
	if err != nil {
		return 0, err
	}
	addrA, okA := table[inoA]
	addrB, okB := table[inoB]
	if !okA || !okB {
		return 0, fmt.Errorf("kcore: probe inodes %d/%d missing from socket table", inoA, inoB)
	}

	window, err := img.ReadVirtual(addrA, WindowSize)
	if err != nil {
		return 0, fmt.Errorf("kcore: dump probe socket at %#x: %w", addrA, err)
	}

	off := findPointer(window, addrB, img.WordSize())
	if off < 0 {
		return 0, fmt.Errorf("kcore: peer pointer %#x not found within %d bytes of %#x; kernel layout unsupported",
			addrB, WindowSize, addrA)
	}
	return uint64(off), nil
}

// probePair creates a connected unix stream pair.
func probePair() ([2]int, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return [2]int{}, err
	}
	return fds, nil
}

// socketInode returns the kernel inode number behind a socket descriptor.
func socketInode(fd int) (uint64, error) {
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return 0, err
	}
	return st.Ino, nil
}
