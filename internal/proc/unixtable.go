// Package proc parses the kernel's own socket listings.
package proc

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ParseUnixTable parses /proc/net/unix-shaped text into an inode-to-kernel-
// address map. Each row leads with the socket's kernel address in hex, then
// five fields we do not care about, then the decimal inode. The header line
// and anything else that does not match are skipped.
func ParseUnixTable(r io.Reader) (map[uint64]uint64, error) {
	table := make(map[uint64]uint64)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 7 {
			continue
		}

		addr, err := strconv.ParseUint(strings.TrimSuffix(fields[0], ":"), 16, 64)
		if err != nil {
			continue
		}
		inode, err := strconv.ParseUint(fields[6], 10, 64)
		if err != nil {
			continue
		}

		table[inode] = addr
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("proc: scan unix socket table: %w", err)
	}

	return table, nil
}

// ReadUnixTable reads and parses the live socket table, /proc/net/unix by
// default. The table is a moving target; callers get a snapshot.
func ReadUnixTable(path string) (map[uint64]uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("proc: open %s: %w", path, err)
	}
	defer f.Close()

	return ParseUnixTable(f)
}
