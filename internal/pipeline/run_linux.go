//go:build linux

package pipeline

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"

	"github.com/sockpeer/sockpeer/internal/annotate"
	"github.com/sockpeer/sockpeer/internal/inventory"
	"github.com/sockpeer/sockpeer/internal/kcore"
	"github.com/sockpeer/sockpeer/internal/loopback"
	"github.com/sockpeer/sockpeer/internal/output"
	"github.com/sockpeer/sockpeer/internal/peers"
	"github.com/sockpeer/sockpeer/internal/proc"
)

// Config is everything a run needs. No configuration files exist; all of
// this comes from flags and defaults.
type Config struct {
	Mode ModeFlag

	LsofPath      string
	SSPath        string
	KcorePath     string
	UnixTablePath string

	// LsofArgs are the user's own filter arguments, passed through
	// verbatim to the final lsof invocation.
	LsofArgs []string

	Summary bool
	Color   bool

	Stdout io.Writer
	Stderr io.Writer
	Log    *slog.Logger
}

// Run builds the peer directory, the ownership index, and the loopback
// tables, then streams the final lsof listing with annotations. The
// returned exit code mirrors the final lsof's own.
func Run(cfg Config) (int, error) {
	dir, err := resolveDirectory(cfg)
	if err != nil {
		return 1, err
	}
	cfg.Log.Debug("peer directory ready", "mode", dir.Mode.String(), "sockets", len(dir.Peers))

	ix, err := buildInventory(cfg, dir)
	if err != nil {
		return 1, err
	}
	cfg.Log.Debug("ownership index ready", "unix", len(ix.Unix), "tcp", len(ix.TCP))

	engine := &annotate.Engine{
		Dir:   dir,
		Index: ix,
		Loop:  loopback.New(),
	}

	code, err := streamListing(cfg, engine)
	if err != nil {
		return code, err
	}

	if cfg.Summary {
		output.Summary(cfg.Stderr, dir, ix, cfg.Color)
	}
	return code, nil
}

// resolveDirectory picks the peer-resolution mode once and builds the
// directory for it.
func resolveDirectory(cfg Config) (*peers.Directory, error) {
	var ssDir *peers.Directory

	if cfg.Mode != ModeForceKcore {
		var err error
		ssDir, err = runSS(cfg)
		if err != nil {
			if cfg.Mode == ModeForceSS {
				return nil, err
			}
			cfg.Log.Debug("ss unavailable, falling back to kcore", "err", err)
		}
	}

	if !needsKcore(cfg.Mode, ssDir) {
		return ssDir, nil
	}
	return resolveFromKcore(cfg)
}

func runSS(cfg Config) (*peers.Directory, error) {
	cmd := exec.Command(cfg.SSPath, "-xe")
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("pipeline: pipe %s: %w", cfg.SSPath, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("pipeline: start %s: %w", cfg.SSPath, err)
	}

	dir, perr := peers.SSResolver{Output: stdout}.Resolve()
	werr := cmd.Wait()
	if perr != nil {
		return nil, perr
	}
	if werr != nil {
		return nil, fmt.Errorf("pipeline: %s -xe: %w", cfg.SSPath, werr)
	}
	return dir, nil
}

func resolveFromKcore(cfg Config) (*peers.Directory, error) {
	img, err := kcore.Open(cfg.KcorePath)
	if err != nil {
		return nil, err
	}
	defer img.Close()

	readTable := func() (map[uint64]uint64, error) {
		return proc.ReadUnixTable(cfg.UnixTablePath)
	}

	offset, err := kcore.Calibrate(img, readTable)
	if err != nil {
		return nil, err
	}
	cfg.Log.Debug("calibrated peer field", "offset", offset)

	table, err := readTable()
	if err != nil {
		return nil, err
	}

	resolver := &peers.KcoreResolver{
		Image:      img,
		PeerOffset: offset,
		Table:      table,
		Log:        cfg.Log,
	}
	return resolver.Resolve()
}

// buildInventory runs lsof once in field mode over all open files and
// indexes socket ownership.
func buildInventory(cfg Config, dir *peers.Directory) (*inventory.Index, error) {
	cmd := exec.Command(cfg.LsofPath, "-nP", "-Fpcfdtin")
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("pipeline: pipe %s: %w", cfg.LsofPath, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("pipeline: start %s: %w", cfg.LsofPath, err)
	}

	ix, perr := inventory.Parse(stdout, dir.Mode)
	// lsof exits nonzero when some files could not be inspected; the
	// fields it did print are still good, so only a start failure or an
	// unreadable stream is fatal.
	if werr := cmd.Wait(); werr != nil {
		cfg.Log.Debug("inventory lsof exited nonzero", "err", werr)
	}
	if perr != nil {
		return nil, perr
	}
	return ix, nil
}

// streamListing runs the final, user-filtered lsof and annotates its output
// 1:1. Its exit status becomes ours.
func streamListing(cfg Config, engine *annotate.Engine) (int, error) {
	cmd := exec.Command(cfg.LsofPath, cfg.LsofArgs...)
	cmd.Stderr = os.Stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return 1, fmt.Errorf("pipeline: pipe %s: %w", cfg.LsofPath, err)
	}
	if err := cmd.Start(); err != nil {
		return 1, fmt.Errorf("pipeline: start %s: %w", cfg.LsofPath, err)
	}

	serr := engine.Stream(stdout, cfg.Stdout)
	werr := cmd.Wait()
	if serr != nil {
		return 1, serr
	}
	if werr != nil {
		var exitErr *exec.ExitError
		if errors.As(werr, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return 1, fmt.Errorf("pipeline: %s: %w", cfg.LsofPath, werr)
	}
	return 0, nil
}
