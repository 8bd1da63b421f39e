// Package inventory indexes who owns which socket, from lsof field output.
package inventory

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sockpeer/sockpeer/pkg/model"
)

// Index associates sockets with their owning processes. Unix sockets are
// keyed by inode (ss mode) or kernel address (kcore mode); loopback TCP
// connections are keyed by lsof's own printed connection string.
type Index struct {
	Unix map[model.SockID]model.Owners
	TCP  map[string]model.Owners
}

// UnixOwners returns the owner set for a unix socket identifier.
func (ix *Index) UnixOwners(id model.SockID) model.Owners {
	return ix.Unix[id]
}

// TCPOwners returns the owner set for a printed connection string.
func (ix *Index) TCPOwners(key string) model.Owners {
	return ix.TCP[key]
}

// record accumulates the fields of one open-file entry. Process-level
// fields (command, pid) persist across the files of that process; file-level
// fields reset whenever a new file starts.
type record struct {
	command string
	pid     int

	typ    string
	device string
	inode  string
}

func (rec *record) resetFile() {
	rec.typ = ""
	rec.device = ""
	rec.inode = ""
}

// Parse consumes lsof -F output, one labeled field per line: the first byte
// is the label, the rest the value. The name field terminates a record and
// is when it gets matched into the index.
func Parse(r io.Reader, mode model.Mode) (*Index, error) {
	ix := &Index{
		Unix: make(map[model.SockID]model.Owners),
		TCP:  make(map[string]model.Owners),
	}

	var rec record
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		value := line[1:]

		switch line[0] {
		case 'p':
			pid, err := strconv.Atoi(value)
			if err != nil {
				continue
			}
			rec = record{pid: pid}
		case 'c':
			rec.command = value
		case 'f':
			rec.resetFile()
		case 't':
			rec.typ = value
		case 'd':
			rec.device = value
		case 'i':
			rec.inode = value
		case 'n':
			ix.add(&rec, value, mode)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("inventory: scan lsof output: %w", err)
	}

	return ix, nil
}

func (ix *Index) add(rec *record, name string, mode model.Mode) {
	if strings.HasPrefix(rec.typ, "unix") {
		id, ok := unixID(rec, mode)
		if !ok {
			return
		}
		path := name
		if i := strings.Index(path, " type="); i >= 0 {
			path = path[:i]
		}
		// lsof prints "socket" or similar placeholders for unbound unix
		// sockets; only a real filesystem (or abstract) name is a path.
		if !strings.HasPrefix(path, "/") && !strings.HasPrefix(path, "@") {
			path = ""
		}
		owner := model.Owner{Command: rec.command, PID: rec.pid, Path: path}
		ix.Unix[id] = ix.Unix[id].Add(owner)
		return
	}

	if rec.typ == "IPv4" || rec.typ == "IPv6" {
		owner := model.Owner{Command: rec.command, PID: rec.pid}
		ix.TCP[name] = ix.TCP[name].Add(owner)
	}
}

// unixID picks the identifier space for the run's mode: decimal inode for
// ss, the device field's kernel address for kcore.
func unixID(rec *record, mode model.Mode) (model.SockID, bool) {
	if mode == model.ModeKcore {
		addr, err := strconv.ParseUint(strings.TrimPrefix(rec.device, "0x"), 16, 64)
		if err != nil {
			return 0, false
		}
		return model.SockID(addr), true
	}

	inode, err := strconv.ParseUint(rec.inode, 10, 64)
	if err != nil {
		return 0, false
	}
	return model.SockID(inode), true
}
