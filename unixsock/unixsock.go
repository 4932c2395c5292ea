// Package unixsock implements the Unix-socket transport for the Sawfish
// eval protocol.
//
// Ownership boundary:
// - socket connection lifecycle
// - request/response exchange over a connected byte stream
// - cancellation via connection deadlines
//
// Framing lives in package wire; this package only moves frames over a
// stream. Stream is the transport over any caller-managed byte stream,
// Client binds one to a socket connection it owns.
package unixsock

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/sawfishwm/sawctl/wire"
)

// Stream runs the eval protocol over a byte stream whose scheduling the
// caller controls. The caller may hand in a net.Conn it manages deadlines
// on, one end of a pipe, or any other io.ReadWriter; frames produced here
// are byte-identical to the ones Client produces because both delegate to
// package wire.
//
// The protocol has no request identifiers. At most one request may be in
// flight at a time; the caller is responsible for not issuing a second
// Eval before the first returns.
type Stream struct {
	rw io.ReadWriter
}

// NewStream wraps an existing byte stream.
func NewStream(rw io.ReadWriter) *Stream {
	return &Stream{rw: rw}
}

// Eval sends form to the server. With noReply set, nothing is read from
// the stream and an empty OK response is returned as soon as the write
// completes. Otherwise Eval blocks until the server's response frame has
// been read in full.
func (s *Stream) Eval(form []byte, noReply bool) (wire.Response, error) {
	if err := wire.WriteRequest(s.rw, form, noReply); err != nil {
		return wire.Response{}, err
	}
	if noReply {
		return wire.Response{OK: true}, nil
	}
	return wire.ReadResponse(s.rw)
}

// Client is a connection to the server's Unix socket using blocking I/O.
type Client struct {
	conn   net.Conn
	stream *Stream
}

// Open connects to the server socket at path.
func Open(path string) (*Client, error) {
	conn, err := net.Dial("unix", path)
	if err != nil {
		// The *net.OpError already carries the socket path.
		return nil, err
	}
	return &Client{conn: conn, stream: NewStream(conn)}, nil
}

// Eval sends form to the server and, unless noReply is set, blocks until
// the response frame has been read.
func (c *Client) Eval(form []byte, noReply bool) (wire.Response, error) {
	return c.stream.Eval(form, noReply)
}

// EvalContext is Eval with cancellation. When ctx is cancelled a past
// deadline is armed on the connection, failing whatever read or write is
// in flight. A cancelled connection is left in an undefined protocol
// state and must not be used for further requests.
func (c *Client) EvalContext(ctx context.Context, form []byte, noReply bool) (wire.Response, error) {
	if ctx.Done() == nil {
		return c.stream.Eval(form, noReply)
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		select {
		case <-ctx.Done():
			c.conn.SetDeadline(time.Now())
		case <-stop:
		}
	}()
	resp, err := c.stream.Eval(form, noReply)
	close(stop)
	<-done
	if ctxErr := ctx.Err(); ctxErr != nil && err != nil {
		return wire.Response{}, ctxErr
	}
	return resp, err
}

// Close closes the socket connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
