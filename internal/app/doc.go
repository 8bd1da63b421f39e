// Package app is the command-line surface of sockpeer. It only does real
// work on Linux; see cmd/sockpeer for the unsupported-platform stub.
package app
