package annotate

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sockpeer/sockpeer/internal/inventory"
	"github.com/sockpeer/sockpeer/internal/loopback"
	"github.com/sockpeer/sockpeer/internal/peers"
	"github.com/sockpeer/sockpeer/pkg/model"
)

func testLoopback() *loopback.Normalizer {
	ports := map[string]int{"mysql": 3306}
	return loopback.NewStatic(
		[]string{"localhost"},
		[]string{"localhost", "ip6-localhost"},
		func(network, service string) (int, error) {
			if p, ok := ports[service]; ok {
				return p, nil
			}
			return 0, fmt.Errorf("unknown service %q", service)
		},
	)
}

func ssEngine() *Engine {
	return &Engine{
		Dir: &peers.Directory{
			Mode: model.ModeSS,
			Peers: model.PeerMap{
				47793475: 0,
				5000:     6000,
			},
			Directions: model.DirectionMap{
				47793475: model.DirReadShutdown,
				5000:     model.DirBoth,
			},
			Trusted: true,
		},
		Index: &inventory.Index{
			Unix: map[model.SockID]model.Owners{
				6000: {{Command: "dbus-daemon", PID: 912, Path: "/run/dbus/system_bus_socket"}},
			},
			TCP: map[string]model.Owners{
				"127.0.0.1:44477->127.0.0.1:3306": {{Command: "proxymap", PID: 40597}},
			},
		},
		Loop: testLoopback(),
	}
}

func kcoreEngine() *Engine {
	return &Engine{
		Dir: &peers.Directory{
			Mode: model.ModeKcore,
			Peers: model.PeerMap{
				model.SockID(0xffff880fbd6ab0c0): model.SockID(0xffff880fbd6afb80),
				model.SockID(0xffff880fbd6aaaaa): 0,
			},
		},
		Index: &inventory.Index{
			Unix: map[model.SockID]model.Owners{
				model.SockID(0xffff880fbd6afb80): {{Command: "postfix-policyd", PID: 3455}},
			},
			TCP: map[string]model.Owners{},
		},
		Loop: testLoopback(),
	}
}

func TestAnnotate_PassthroughWithoutMarkers(t *testing.T) {
	e := ssEngine()

	lines := []string{
		"COMMAND    PID USER   FD   TYPE             DEVICE SIZE/OFF    NODE NAME",
		"bash      1234 root  cwd    DIR              253,0     4096 1310722 /root",
		"",
		"   trailing content kept   ",
	}
	for _, line := range lines {
		assert.Empty(t, e.Annotate(line))
	}
}

func TestAnnotate_SSListening(t *testing.T) {
	e := ssEngine()

	line := "policyd  3455 postfix 12u  unix 0xffff880fbd6ab0c0   0t0 47793475 /var/spool/socket"
	assert.Equal(t, "[LISTENING]", e.Annotate(line))
}

func TestAnnotate_SSConnected(t *testing.T) {
	e := ssEngine()

	line := "gdbus    2210 user   7u  unix 0xffff880fbd6aa000   0t0 5000 type=STREAM"
	assert.Equal(t, " <-> 6000[dbus-daemon,912,/run/dbus/system_bus_socket]", e.Annotate(line))
}

func TestAnnotate_SSUnknownInodeLeftAlone(t *testing.T) {
	e := ssEngine()

	line := "gdbus    2210 user   7u  unix 0xffff880fbd6aa000   0t0 999999 type=STREAM"
	assert.Empty(t, e.Annotate(line))
}

func TestAnnotate_SSMissingOwnerPlaceholder(t *testing.T) {
	e := ssEngine()
	e.Dir.Peers[7000] = 8000
	e.Dir.Directions[7000] = model.DirBoth

	line := "prog 1 user 3u unix 0xffff880fbd6ab000 0t0 7000 socket"
	assert.Equal(t, " <-> 8000[?]", e.Annotate(line))
}

func TestAnnotate_KcoreConnected(t *testing.T) {
	e := kcoreEngine()

	line := "policyd  3455 postfix 12u  unix 0xffff880fbd6ab0c0   0t0 47793475 socket"
	assert.Equal(t, " -> 0xffff880fbd6afb80[postfix-policyd,3455]", e.Annotate(line))
}

func TestAnnotate_KcoreListening(t *testing.T) {
	e := kcoreEngine()

	line := "master   1100 root   13u  unix 0xffff880fbd6aaaaa   0t0 21101 /run/master.sock"
	assert.Equal(t, "[LISTENING]", e.Annotate(line))
}

func TestAnnotate_KcoreScansPastAbsentTokens(t *testing.T) {
	e := kcoreEngine()

	// The first hex token has no map entry; scanning continues to the next.
	line := "prog 1 user 3u unix 0xdeadbeef 0t0 0xffff880fbd6ab0c0 socket"
	assert.Equal(t, " -> 0xffff880fbd6afb80[postfix-policyd,3455]", e.Annotate(line))
}

func TestAnnotate_TCPLoopback(t *testing.T) {
	e := ssEngine()

	line := "mysqld   3306 mysql  33u  IPv4 123456   0t0  TCP localhost:mysql->localhost:44477 (ESTABLISHED)"
	assert.Equal(t, " -> [proxymap,40597]", e.Annotate(line))
}

func TestAnnotate_TCPNonLoopbackLeftAlone(t *testing.T) {
	e := ssEngine()

	line := "curl 900 user 5u IPv4 3333 0t0 TCP 10.0.0.5:51000->93.184.216.34:443 (ESTABLISHED)"
	assert.Empty(t, e.Annotate(line))
}

func TestAnnotate_Deterministic(t *testing.T) {
	e := ssEngine()

	line := "gdbus    2210 user   7u  unix 0xffff880fbd6aa000   0t0 5000 type=STREAM"
	first := e.Annotate(line)
	second := e.Annotate(line)
	assert.Equal(t, first, second)
}

func TestStream_PreservesPrefixAndTerminators(t *testing.T) {
	e := ssEngine()

	input := "header line\n" +
		"policyd  3455 postfix 12u  unix 0xffff880fbd6ab0c0   0t0 47793475 /var/spool/socket\r\n" +
		"no trailing newline"
	var out bytes.Buffer
	require.NoError(t, e.Stream(strings.NewReader(input), &out))

	want := "header line\n" +
		"policyd  3455 postfix 12u  unix 0xffff880fbd6ab0c0   0t0 47793475 /var/spool/socket[LISTENING]\r\n" +
		"no trailing newline"
	assert.Equal(t, want, out.String())
}

func TestStream_EveryLineEmittedOnce(t *testing.T) {
	e := ssEngine()

	input := strings.Repeat("plain line\n", 5)
	var out bytes.Buffer
	require.NoError(t, e.Stream(strings.NewReader(input), &out))
	assert.Equal(t, input, out.String())
}
