// Package sawctl is a client library for the remote eval protocol of the
// Sawfish window manager. A Client sends a Lisp form to a running server
// and optionally reads the value it evaluated to.
//
// Open connects over the server's Unix socket and, if the socket is
// unavailable, falls back to the X11 property protocol. Whichever
// transport succeeds stays active for the lifetime of the Client. The
// fallback can be compiled out with the sawctl_nox11 build tag, in which
// case the socket error is surfaced directly.
//
// The protocol carries no request identifiers, so a Client supports one
// request in flight at a time. Callers that share a Client across
// goroutines must serialize their calls.
package sawctl

import (
	"github.com/sawfishwm/sawctl/display"
	"github.com/sawfishwm/sawctl/unixsock"
	"github.com/sawfishwm/sawctl/wire"
)

// Errors surfaced before any connection is attempted, re-exported from
// the packages that produce them.
var (
	ErrNoDisplay = display.ErrNoDisplay
	ErrNoLogname = display.ErrNoLogname
)

// ErrNoResponse reports a synchronous request the server answered with an
// empty response frame.
var ErrNoResponse = wire.ErrNoResponse

// Response is the server's verdict on one evaluated form: OK with the
// evaluated value, or not OK with the server's error message. A not-OK
// Response is an answered request, not a transport failure.
type Response = wire.Response

// transport is one established connection to the server, over either
// channel.
type transport interface {
	Eval(form []byte, noReply bool) (wire.Response, error)
	Close() error
}

// resolver holds the process-wide canonical-hostname cache used to
// compute socket paths.
var resolver = &display.Resolver{}

// Client is a connection to the Sawfish server.
type Client struct {
	t transport
}

// Open connects to the server. An empty disp falls back to the DISPLAY
// environment variable. The Unix socket is tried first; only when it
// fails is the X11 property protocol attempted.
func Open(disp string) (*Client, error) {
	disp, err := display.Get(disp)
	if err != nil {
		return nil, err
	}
	path, err := resolver.SocketPath(disp)
	if err != nil {
		return nil, err
	}
	sock, sockErr := unixsock.Open(path)
	if sockErr == nil {
		return &Client{t: sock}, nil
	}
	fb, err := openFallback(disp, sockErr)
	if err != nil {
		return nil, err
	}
	return &Client{t: fb}, nil
}

// Eval sends form to the server for evaluation and waits for the reply.
func (c *Client) Eval(form []byte) (Response, error) {
	return c.t.Eval(form, false)
}

// Send sends form to the server for evaluation without waiting for a
// reply. The call returns as soon as the request has been written.
func (c *Client) Send(form []byte) error {
	_, err := c.t.Eval(form, true)
	return err
}

// Close releases the active transport.
func (c *Client) Close() error {
	return c.t.Close()
}
