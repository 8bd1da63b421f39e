package model

// SockID identifies a socket endpoint within a single run. In ss mode it is
// the kernel inode number; in kcore mode it is the kernel virtual address of
// the socket structure. The two spaces are never mixed.
type SockID uint64

// PeerMap maps a socket to its connected peer. A zero peer means the socket
// is listening and has no peer yet; a missing key means the peer is unknown.
type PeerMap map[SockID]SockID

// DirectionMap records the shutdown state reported for a socket, keyed the
// same way as PeerMap. Only ss mode populates it.
type DirectionMap map[SockID]Direction
