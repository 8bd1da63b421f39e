// Package pipeline wires the setup phase together and drives the streaming
// annotation pass.
package pipeline

import (
	"fmt"

	"github.com/sockpeer/sockpeer/internal/peers"
)

// ModeFlag is the operator's peer-resolution choice.
type ModeFlag string

const (
	// ModeAuto tries ss first and falls back to kcore when ss never
	// reports a nonzero peer.
	ModeAuto ModeFlag = "auto"
	// ModeForceSS pins ss mode even when its directory looks empty.
	ModeForceSS ModeFlag = "ss"
	// ModeForceKcore skips the ss attempt entirely.
	ModeForceKcore ModeFlag = "kcore"
)

// ParseModeFlag parses the --mode flag value.
func ParseModeFlag(s string) (ModeFlag, error) {
	switch ModeFlag(s) {
	case ModeAuto, ModeForceSS, ModeForceKcore, "":
		if s == "" {
			return ModeAuto, nil
		}
		return ModeFlag(s), nil
	default:
		return ModeAuto, fmt.Errorf("unknown mode %q (want auto, ss, or kcore)", s)
	}
}

// needsKcore decides, once, whether the run uses kcore introspection. The
// decision is never revisited.
func needsKcore(mode ModeFlag, ssDir *peers.Directory) bool {
	switch mode {
	case ModeForceKcore:
		return true
	case ModeForceSS:
		return false
	default:
		return ssDir == nil || !ssDir.Trusted
	}
}
