// Package display resolves display strings to the canonical form the
// Sawfish server keys its Unix socket on.
//
// Ownership boundary:
// - display string canonicalization (host:display.screen)
// - canonical hostname lookup and its process-wide cache
// - server socket path computation
package display

import (
	"errors"
	"net"
	"os"
	"strings"
	"sync"
)

var (
	ErrNoDisplay = errors.New("display: no display specified and DISPLAY not set")
	ErrNoLogname = errors.New("display: LOGNAME environment variable not set")
)

// socketDirPrefix is the well-known prefix of the per-user directory the
// Sawfish server creates its socket in.
const socketDirPrefix = "/tmp/.sawfish-"

// Get returns the display to connect to: the explicit argument when
// non-empty, otherwise the DISPLAY environment variable.
func Get(display string) (string, error) {
	if display == "" {
		display = os.Getenv("DISPLAY")
	}
	if display == "" {
		return "", ErrNoDisplay
	}
	return display, nil
}

// Resolver canonicalizes display strings. The zero value is ready to use
// and is backed by os.Hostname and DNS canonical-name lookups; the fields
// override those, in the style of net.Resolver, so canonicalization is
// testable without touching DNS.
//
// The canonical system hostname is computed on first use and cached for
// the lifetime of the Resolver.
type Resolver struct {
	// Hostname reports the local hostname. Nil means os.Hostname.
	Hostname func() (string, error)

	// LookupCNAME resolves a host's canonical DNS name. Nil means
	// net.LookupCNAME.
	LookupCNAME func(string) (string, error)

	once   sync.Once
	system string
}

// SocketPath returns the path of the Unix socket the server listens on:
// socketDirPrefix + login name + "/" + canonical display.
func (r *Resolver) SocketPath(display string) (string, error) {
	logname := os.Getenv("LOGNAME")
	if logname == "" {
		return "", ErrNoLogname
	}
	return socketDirPrefix + logname + "/" + r.Canonical(display), nil
}

// Canonical returns the canonical display string, e.g. ":0" becomes
// "host.example.com:0.0". The host part defaults to the cached system
// hostname, display and screen numbers default to zero.
func (r *Resolver) Canonical(display string) string {
	if strings.HasPrefix(display, "unix:") {
		display = display[len("unix"):]
	}
	host, rest, ok := strings.Cut(display, ":")
	if !ok {
		rest = "0"
	}
	if host == "" {
		host = r.systemName()
	} else {
		host = r.canonicalHost(host)
	}
	num, screen, ok := strings.Cut(rest, ".")
	if !ok {
		screen = "0"
	}
	return host + ":" + num + "." + screen
}

// systemName returns the once-computed canonical local hostname.
func (r *Resolver) systemName() string {
	r.once.Do(func() {
		hostname := r.Hostname
		if hostname == nil {
			hostname = os.Hostname
		}
		host, err := hostname()
		if err != nil {
			return
		}
		if !strings.Contains(host, ".") {
			if fq, ok := r.fullyQualify(host); ok {
				r.system = fq
				return
			}
		}
		r.system = host
	})
	return r.system
}

// canonicalHost returns the fully-qualified, lowercase form of host.
func (r *Resolver) canonicalHost(host string) string {
	if fq, ok := r.fullyQualify(host); ok {
		host = fq
	}
	return strings.ToLower(host)
}

// fullyQualify asks DNS for the canonical name of host and reports
// whether a dotted name came back.
func (r *Resolver) fullyQualify(host string) (string, bool) {
	lookup := r.LookupCNAME
	if lookup == nil {
		lookup = net.LookupCNAME
	}
	name, err := lookup(host)
	if err != nil {
		return "", false
	}
	name = strings.TrimSuffix(name, ".")
	if !strings.Contains(name, ".") {
		return "", false
	}
	return name, true
}
