// Package peers builds the socket-to-peer directory for a run.
//
// Two resolvers exist: one over ss's extended unix listing, one over the
// kernel memory image. Exactly one is chosen during setup; the annotation
// pass only ever sees the resulting Directory.
package peers

import "github.com/sockpeer/sockpeer/pkg/model"

// Directory is the peer knowledge for one run. It is built once during
// setup and read-only afterward.
type Directory struct {
	Mode  model.Mode
	Peers model.PeerMap

	// Directions is only populated in ss mode.
	Directions model.DirectionMap

	// Trusted is set once a nonzero peer has been observed. An untrusted
	// ss directory means ss was absent, unsupported, or simply saw no
	// connected unix sockets, and the run should fall back to kcore.
	Trusted bool
}

// Resolver produces a Directory.
type Resolver interface {
	Resolve() (*Directory, error)
}
