//go:build !linux

package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Fprintln(
		os.Stderr,
		"sockpeer only runs on Linux: it resolves socket peers from /proc/kcore and /proc/net/unix, which do not exist elsewhere.",
	)
	os.Exit(1)
}
