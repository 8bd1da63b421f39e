package model

// Mode selects how peers are resolved for a run. It is decided once during
// setup and never revisited.
type Mode int

const (
	// ModeSS resolves peers from ss's extended unix socket listing.
	ModeSS Mode = iota
	// ModeKcore resolves peers by reading socket structures out of the
	// kernel memory image.
	ModeKcore
)

func (m Mode) String() string {
	switch m {
	case ModeSS:
		return "ss"
	case ModeKcore:
		return "kcore"
	}
	return "unknown"
}

// Direction is the shutdown indicator printed by ss for a unix socket pair,
// kept verbatim.
type Direction string

const (
	DirBoth          Direction = "<->"
	DirWriteShutdown Direction = "<--"
	DirReadShutdown  Direction = "-->"
	DirNone          Direction = "---"
)
