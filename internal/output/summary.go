// Package output renders the optional post-run peer summary. The summary
// goes to stderr so the annotated stream on stdout stays untouched.
package output

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"

	"github.com/sockpeer/sockpeer/internal/inventory"
	"github.com/sockpeer/sockpeer/internal/peers"
	"github.com/sockpeer/sockpeer/pkg/model"
)

const maxOwnerWidth = 60

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	idStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	dimStyle    = lipgloss.NewStyle().Faint(true)
)

// Summary writes a human-readable digest of what the run resolved: one line
// per connected unix socket pair, then listener and loopback TCP counts.
func Summary(w io.Writer, dir *peers.Directory, ix *inventory.Index, color bool) {
	render := func(s lipgloss.Style, text string) string {
		if !color {
			return text
		}
		return s.Render(text)
	}

	connected := make([]model.SockID, 0, len(dir.Peers))
	listening := 0
	for id, peer := range dir.Peers {
		if peer == 0 {
			listening++
			continue
		}
		connected = append(connected, id)
	}
	sort.Slice(connected, func(i, j int) bool { return connected[i] < connected[j] })

	fmt.Fprintln(w, render(headerStyle, fmt.Sprintf("peer summary (mode: %s)", dir.Mode)))

	for _, id := range connected {
		peer := dir.Peers[id]

		link := "->"
		if d, ok := dir.Directions[id]; ok {
			link = string(d)
		}

		owners := renderOwnerList(ix.UnixOwners(peer))
		fmt.Fprintf(w, "  %s %s %s  %s\n",
			render(idStyle, formatID(dir.Mode, id)),
			render(dimStyle, link),
			render(idStyle, formatID(dir.Mode, peer)),
			truncate.StringWithTail(owners, maxOwnerWidth, "…"))
	}

	fmt.Fprintln(w, render(dimStyle, fmt.Sprintf("  %d connected, %d listening, %d loopback tcp connections indexed",
		len(connected), listening, len(ix.TCP))))
}

func formatID(mode model.Mode, id model.SockID) string {
	if mode == model.ModeKcore {
		return fmt.Sprintf("0x%x", uint64(id))
	}
	return fmt.Sprintf("%d", uint64(id))
}

func renderOwnerList(owners model.Owners) string {
	if len(owners) == 0 {
		return "?"
	}
	parts := make([]string, len(owners))
	for i, o := range owners {
		parts[i] = o.String()
	}
	return strings.Join(parts, "|")
}
