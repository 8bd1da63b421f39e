package peers

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sockpeer/sockpeer/internal/kcore"
	"github.com/sockpeer/sockpeer/pkg/model"
)

// fakeImage writes a minimal 64-bit kcore with one segment holding data at
// the given virtual base.
func fakeImage(t *testing.T, vaddr uint64, data []byte) *kcore.Image {
	t.Helper()

	const (
		phOff     = 64
		phEntSize = 56
		segOff    = 0x3000
	)
	order := binary.NativeEndian

	buf := make([]byte, kcore.HeaderSize)
	buf[0], buf[1], buf[2], buf[3] = 0x7f, 'E', 'L', 'F'
	buf[4] = 2
	order.PutUint64(buf[32:], phOff)
	order.PutUint16(buf[54:], phEntSize)
	order.PutUint16(buf[56:], 1)

	ent := buf[phOff:]
	order.PutUint32(ent[0:], 1) // PT_LOAD
	order.PutUint64(ent[8:], segOff)
	order.PutUint64(ent[16:], vaddr)
	order.PutUint64(ent[32:], uint64(len(data)))

	path := filepath.Join(t.TempDir(), "kcore")
	f, err := os.Create(path)
	require.NoError(t, err)
	_, err = f.Write(buf)
	require.NoError(t, err)
	_, err = f.WriteAt(data, segOff)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	img, err := kcore.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { img.Close() })

	return img
}

func TestKcoreResolver(t *testing.T) {
	const (
		base    = uint64(0xffff880fbd6a0000)
		peerOff = uint64(0x68)

		sockA = base + 0x000
		sockB = base + 0x400
		sockL = base + 0x800
	)

	data := make([]byte, 0x1000)
	order := binary.NativeEndian
	order.PutUint64(data[0x000+peerOff:], sockB) // A's peer is B
	order.PutUint64(data[0x400+peerOff:], sockA) // B's peer is A
	// sockL's peer word stays zero: listening.

	r := &KcoreResolver{
		Image:      fakeImage(t, base, data),
		PeerOffset: peerOff,
		Table: map[uint64]uint64{
			101: sockA,
			102: sockB,
			103: sockL,
			// An address outside every segment stays unknown.
			104: 0xdead0000,
		},
	}

	dir, err := r.Resolve()
	require.NoError(t, err)

	assert.Equal(t, model.ModeKcore, dir.Mode)
	assert.Equal(t, model.PeerMap{
		model.SockID(sockA): model.SockID(sockB),
		model.SockID(sockB): model.SockID(sockA),
		model.SockID(sockL): 0,
	}, dir.Peers)
	assert.NotContains(t, dir.Peers, model.SockID(0xdead0000))
}
