package kcore

import "encoding/binary"

// The kernel does not promise any particular layout for its unix socket
// structure, so the byte offset of the peer pointer is discovered
// empirically each run: create a connected pair whose addresses we can look
// up, dump a window of one endpoint, and find the other endpoint's address
// in it. The offset is only valid for the lifetime of the run.

// WindowSize is how many bytes of the socket structure are scanned for the
// peer pointer. The peer field has always been well within 2KB of the
// structure start; if it ever is not, calibration fails rather than guesses.
const WindowSize = 2048

// findPointer scans window as a sequence of wordSize-sized native-endian
// words and returns the byte offset of the first word equal to target, or -1.
func findPointer(window []byte, target uint64, wordSize int) int {
	order := binary.NativeEndian
	for off := 0; off+wordSize <= len(window); off += wordSize {
		var v uint64
		if wordSize == 8 {
			v = order.Uint64(window[off:])
		} else {
			v = uint64(order.Uint32(window[off:]))
		}
		if v == target {
			return off
		}
	}
	return -1
}
