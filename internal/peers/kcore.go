package peers

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/sockpeer/sockpeer/internal/kcore"
	"github.com/sockpeer/sockpeer/pkg/model"
)

// KcoreResolver reads each socket's peer pointer straight out of the kernel
// memory image. The whole map is built eagerly in one pass; the values are a
// point-in-time snapshot and may be stale by the time they are used, which
// is accepted.
type KcoreResolver struct {
	Image      *kcore.Image
	PeerOffset uint64

	// Table maps inode to kernel address, from the live socket table.
	// Only the addresses matter here.
	Table map[uint64]uint64

	Log *slog.Logger
}

func (r *KcoreResolver) Resolve() (*Directory, error) {
	dir := &Directory{
		Mode:  model.ModeKcore,
		Peers: make(model.PeerMap, len(r.Table)),
	}

	for _, addr := range r.Table {
		peer, err := r.Image.ReadWord(addr + r.PeerOffset)
		if errors.Is(err, kcore.ErrUnresolved) {
			// Socket vanished between the table scan and now, or the
			// address is outside every segment. Leave it unknown.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("peers: read peer of socket %#x: %w", addr, err)
		}
		dir.Peers[model.SockID(addr)] = model.SockID(peer)
	}

	if r.Log != nil {
		r.Log.Debug("built peer map from kcore",
			"sockets", len(r.Table),
			"resolved", len(dir.Peers),
			"peer_offset", r.PeerOffset)
	}

	return dir, nil
}
