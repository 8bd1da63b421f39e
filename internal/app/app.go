//go:build linux

package app

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sockpeer/sockpeer/internal/logging"
	"github.com/sockpeer/sockpeer/internal/pipeline"
)

var (
	version   = "dev"
	commit    = ""
	buildDate = ""
)

// SetVersionBuildCommitString stamps the build info injected via -ldflags.
func SetVersionBuildCommitString(v, c, d string) {
	if v != "" {
		version = v
	}
	commit = c
	buildDate = d
}

func versionString() string {
	s := version
	if commit != "" {
		s += " (" + commit
		if buildDate != "" {
			s += ", " + buildDate
		}
		s += ")"
	}
	return s
}

type options struct {
	mode      string
	lsofPath  string
	ssPath    string
	kcorePath string
	unixTable string
	summary   bool
	noColor   bool
	logLevel  string
	logFormat string
}

func newRootCmd() *cobra.Command {
	opts := options{}

	cmd := &cobra.Command{
		Use:   "sockpeer [flags] [-- lsof-args...]",
		Short: "annotate lsof output with socket peer processes",
		Long: `sockpeer wraps lsof and appends, to every unix socket or loopback TCP
connection it lists, the process sitting on the other end.

Peers are resolved from ss's extended unix listing when possible, and by
reading socket structures out of /proc/kcore otherwise (which needs root).
All arguments after -- go to lsof unchanged.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       versionString(),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.mode, "mode", "auto", "peer resolution mode: auto, ss, or kcore")
	cmd.Flags().StringVar(&opts.lsofPath, "lsof", "lsof", "lsof executable")
	cmd.Flags().StringVar(&opts.ssPath, "ss", "ss", "ss executable")
	cmd.Flags().StringVar(&opts.kcorePath, "kcore", "/proc/kcore", "kernel memory image")
	cmd.Flags().StringVar(&opts.unixTable, "unix-table", "/proc/net/unix", "live unix socket table")
	cmd.Flags().BoolVar(&opts.summary, "summary", false, "print a peer summary to stderr after the listing")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "disable styling in the summary")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "info", "log level: trace, debug, info, warn, error")
	cmd.Flags().StringVar(&opts.logFormat, "log-format", "text", "log format: text or json")

	return cmd
}

func run(opts options, lsofArgs []string) error {
	mode, err := pipeline.ParseModeFlag(opts.mode)
	if err != nil {
		return err
	}
	level, err := logging.ParseLevel(opts.logLevel)
	if err != nil {
		return err
	}
	format, err := logging.ParseFormat(opts.logFormat)
	if err != nil {
		return err
	}

	code, err := pipeline.Run(pipeline.Config{
		Mode:          mode,
		LsofPath:      opts.lsofPath,
		SSPath:        opts.ssPath,
		KcorePath:     opts.kcorePath,
		UnixTablePath: opts.unixTable,
		LsofArgs:      lsofArgs,
		Summary:       opts.summary,
		Color:         !opts.noColor,
		Stdout:        os.Stdout,
		Stderr:        os.Stderr,
		Log:           logging.New(logging.Options{Level: level, Format: format}),
	})
	if err != nil {
		return err
	}
	if code != 0 {
		return exitCodeError(code)
	}
	return nil
}

// exitCodeError carries the final lsof's exit status up through cobra so the
// process only ever exits in Execute.
type exitCodeError int

func (e exitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", int(e))
}

// exitStatus extracts a carried exit code, if err holds one.
func exitStatus(err error) (int, bool) {
	var code exitCodeError
	if errors.As(err, &code) {
		return int(code), true
	}
	return 0, false
}

// Execute runs the root command and exits nonzero on failure.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		if code, ok := exitStatus(err); ok {
			os.Exit(code)
		}
		fmt.Fprintln(os.Stderr, "sockpeer:", err)
		os.Exit(1)
	}
}
