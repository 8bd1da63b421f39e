package peers

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"

	"github.com/sockpeer/sockpeer/pkg/model"
)

// ss prints a unix socket's own inode, a "*", the peer inode, and a
// shutdown indicator. Peer inode 0 means the socket is listening.
var ssPeerRe = regexp.MustCompile(`\b(\d+)\s+\*\s+(\d+)\s+(-->|<--|<->|---)`)

// SSResolver builds the peer directory from one ss invocation's output.
type SSResolver struct {
	Output io.Reader
}

func (r SSResolver) Resolve() (*Directory, error) {
	dir := &Directory{
		Mode:       model.ModeSS,
		Peers:      make(model.PeerMap),
		Directions: make(model.DirectionMap),
	}

	scanner := bufio.NewScanner(r.Output)
	for scanner.Scan() {
		m := ssPeerRe.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}

		inode, err := strconv.ParseUint(m[1], 10, 64)
		if err != nil {
			continue
		}
		peer, err := strconv.ParseUint(m[2], 10, 64)
		if err != nil {
			continue
		}

		dir.Peers[model.SockID(inode)] = model.SockID(peer)
		dir.Directions[model.SockID(inode)] = model.Direction(m[3])
		if peer != 0 {
			dir.Trusted = true
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("peers: scan ss output: %w", err)
	}

	return dir, nil
}
