// Package loopback canonicalizes loopback host and port tokens so that
// connection keys built from differently-formatted sources compare equal.
package loopback

import (
	"net"
	"strconv"
	"strings"
)

// Canonical numeral forms, matching how lsof -nP prints addresses.
const (
	CanonicalV4 = "127.0.0.1"
	CanonicalV6 = "[::1]"
)

// Normalizer maps loopback host tokens (numerals or resolved hostnames) to
// their canonical numeral form and translates service names to port numbers.
// Built once at setup; read-only afterward.
type Normalizer struct {
	hosts      map[string]string
	lookupPort func(network, service string) (int, error)
}

// New resolves the canonical loopback hostnames once, via reverse lookup,
// and returns a ready normalizer.
func New() *Normalizer {
	var v4names, v6names []string
	if names, err := net.LookupAddr("127.0.0.1"); err == nil {
		v4names = names
	}
	if names, err := net.LookupAddr("::1"); err == nil {
		v6names = names
	}
	return NewStatic(v4names, v6names, net.LookupPort)
}

// NewStatic builds a normalizer from known hostname lists and a port lookup
// function, with no name resolution of its own.
func NewStatic(v4names, v6names []string, lookupPort func(network, service string) (int, error)) *Normalizer {
	n := &Normalizer{
		hosts:      make(map[string]string),
		lookupPort: lookupPort,
	}

	// IPv4 registers first: a hostname shared by both families (usually
	// "localhost") canonicalizes to the IPv4 numeral.
	n.register(CanonicalV4, CanonicalV4)
	for _, name := range v4names {
		n.register(name, CanonicalV4)
	}
	n.register("::1", CanonicalV6)
	n.register(CanonicalV6, CanonicalV6)
	for _, name := range v6names {
		n.register(name, CanonicalV6)
	}

	return n
}

func (n *Normalizer) register(name, canonical string) {
	name = strings.TrimSuffix(name, ".")
	if name == "" {
		return
	}
	if _, exists := n.hosts[name]; !exists {
		n.hosts[name] = canonical
	}
}

// Host reports whether tok names a loopback address, and if so its
// canonical numeral form.
func (n *Normalizer) Host(tok string) (string, bool) {
	canonical, ok := n.hosts[tok]
	return canonical, ok
}

// Port canonicalizes a port token: decimal numbers pass through, anything
// else is resolved as a tcp service name.
func (n *Normalizer) Port(tok string) (string, bool) {
	if p, err := strconv.Atoi(tok); err == nil {
		if p < 0 || p > 65535 {
			return "", false
		}
		return strconv.Itoa(p), true
	}
	p, err := n.lookupPort("tcp", tok)
	if err != nil {
		return "", false
	}
	return strconv.Itoa(p), true
}
