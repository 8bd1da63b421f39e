// Package annotate appends peer information to lsof output lines.
//
// Every line is passed through byte-for-byte, in order, with at most one
// annotation suffix appended. A failed lookup never drops a line; it just
// leaves it alone.
package annotate

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/sockpeer/sockpeer/internal/inventory"
	"github.com/sockpeer/sockpeer/internal/loopback"
	"github.com/sockpeer/sockpeer/internal/peers"
	"github.com/sockpeer/sockpeer/pkg/model"
)

var (
	hexTokenRe = regexp.MustCompile(`0x[0-9a-fA-F]+`)
	connRe     = regexp.MustCompile(`(\S+)->(\S+)`)
)

// Engine annotates lines against the maps built during setup. All fields
// are read-only once the streaming pass starts.
type Engine struct {
	Dir   *peers.Directory
	Index *inventory.Index
	Loop  *loopback.Normalizer
}

// Stream copies r to w line by line, appending annotations. Terminators and
// a missing final newline are preserved.
func (e *Engine) Stream(r io.Reader, w io.Writer) error {
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			content, terminator := splitTerminator(line)
			if _, werr := io.WriteString(w, content+e.Annotate(content)+terminator); werr != nil {
				return fmt.Errorf("annotate: write output: %w", werr)
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("annotate: read listing: %w", err)
		}
	}
}

func splitTerminator(line string) (content, terminator string) {
	content = line
	if strings.HasSuffix(content, "\n") {
		content = content[:len(content)-1]
		terminator = "\n"
	}
	if strings.HasSuffix(content, "\r") {
		content = content[:len(content)-1]
		terminator = "\r" + terminator
	}
	return content, terminator
}

// Annotate returns the suffix for one line, or "" when nothing applies.
func (e *Engine) Annotate(line string) string {
	if s, done := e.annotateUnix(line); done {
		return s
	}
	return e.annotateTCP(line)
}

// annotateUnix handles unix socket lines. done reports that an annotation
// was produced and no further matching should happen.
func (e *Engine) annotateUnix(line string) (string, bool) {
	if e.Dir.Mode == model.ModeKcore {
		return e.annotateUnixKcore(line)
	}
	return e.annotateUnixSS(line)
}

// In ss mode the socket's inode sits a fixed distance after the "unix" type
// column: TYPE DEVICE SIZE/OFF NODE.
func (e *Engine) annotateUnixSS(line string) (string, bool) {
	fields := strings.Fields(line)
	for i, f := range fields {
		if f != "unix" {
			continue
		}
		if i+3 >= len(fields) {
			return "", false
		}
		inode, err := strconv.ParseUint(fields[i+3], 10, 64)
		if err != nil {
			return "", false
		}

		peer, ok := e.Dir.Peers[model.SockID(inode)]
		if !ok {
			return "", false
		}
		if peer == 0 {
			return "[LISTENING]", true
		}

		dir := e.Dir.Directions[model.SockID(inode)]
		return fmt.Sprintf(" %s %d[%s]", dir, peer, renderOwners(e.Index.UnixOwners(peer))), true
	}
	return "", false
}

// In kcore mode the line is scanned for hex address tokens left to right.
// A token with no map entry is skipped and scanning continues; the first
// token with a present entry settles the line, even if the peer is unknown
// to the ownership index.
func (e *Engine) annotateUnixKcore(line string) (string, bool) {
	for _, tok := range hexTokenRe.FindAllString(line, -1) {
		addr, err := strconv.ParseUint(tok[2:], 16, 64)
		if err != nil {
			continue
		}
		peer, ok := e.Dir.Peers[model.SockID(addr)]
		if !ok {
			continue
		}
		if peer == 0 {
			return "[LISTENING]", true
		}
		return fmt.Sprintf(" -> 0x%x[%s]", uint64(peer), renderOwners(e.Index.UnixOwners(peer))), true
	}
	return "", false
}

// annotateTCP handles loopback TCP connection lines. The owning process of
// the far end recorded its own connection string from its own perspective,
// so the lookup key is the line's endpoints reversed.
func (e *Engine) annotateTCP(line string) string {
	for _, m := range connRe.FindAllStringSubmatch(line, -1) {
		selfHost, selfPort, ok := e.normalizeEndpoint(m[1])
		if !ok {
			continue
		}
		peerHost, peerPort, ok := e.normalizeEndpoint(m[2])
		if !ok {
			continue
		}

		key := peerHost + ":" + peerPort + "->" + selfHost + ":" + selfPort
		if owners := e.Index.TCPOwners(key); len(owners) > 0 {
			return fmt.Sprintf(" -> [%s]", renderOwners(owners))
		}
	}
	return ""
}

func (e *Engine) normalizeEndpoint(tok string) (host, port string, ok bool) {
	i := strings.LastIndex(tok, ":")
	if i <= 0 || i == len(tok)-1 {
		return "", "", false
	}
	host, ok = e.Loop.Host(tok[:i])
	if !ok {
		return "", "", false
	}
	port, ok = e.Loop.Port(tok[i+1:])
	if !ok {
		return "", "", false
	}
	return host, port, true
}

func renderOwners(owners model.Owners) string {
	if len(owners) == 0 {
		return "?"
	}
	parts := make([]string, len(owners))
	for i, o := range owners {
		parts[i] = o.String()
	}
	return strings.Join(parts, "|")
}
