// Package xprop implements the fallback transport for the Sawfish eval
// protocol over X11 property-change notifications.
//
// Ownership boundary:
// - server discovery via the root-window request-window property
// - portal window lifecycle
// - request delivery (property write + client message) and the
//   property-notify polling loop with incremental reads
//
// The protocol state machine is written against the conn interface;
// xgbconn.go binds it to a real X server. Deployments that expose the
// server only through X use this transport; everything else should prefer
// the Unix socket.
package xprop

import (
	"errors"
	"fmt"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
	"github.com/rs/zerolog"

	"github.com/sawfishwm/sawctl/wire"
)

const (
	// protocolVersion is the version constant the server expects in the
	// first data32 slot of the request client message.
	protocolVersion = 1

	// requestWinAtomName names the root-window property holding the
	// server's request window. The atom existing at all is the first
	// sign a server is listening.
	requestWinAtomName = "_SAWFISH_REQUEST_WIN"

	// requestAtomName names the per-session communication property on
	// the portal window.
	requestAtomName = "_SAWFISH_REQUEST"

	// initialReadLen is the first GetProperty window, in 32-bit units.
	// Responses larger than this are fetched with progressively larger
	// re-reads.
	initialReadLen = 16
)

// MaxResponseLen bounds the total response size the incremental read loop
// will fetch. The server-side protocol has no bound of its own; without
// one here a runaway property would grow the read window forever.
const MaxResponseLen = 16 << 20

// ErrServerNotFound reports that no compatible server is listening on the
// display: the request-window atom does not exist or the root-window
// property is absent or malformed.
var ErrServerNotFound = errors.New("xprop: no sawfish server on display")

var errConnClosed = errors.New("xprop: connection closed")

// BadScreenError reports a display string naming a screen the server does
// not have.
type BadScreenError struct {
	Screen int
}

func (e BadScreenError) Error() string {
	return fmt.Sprintf("xprop: invalid screen number %d", e.Screen)
}

// BadResponseError reports a response property of unexpected type or
// format. This is a protocol mismatch, not a transient failure; the
// session is not usable afterwards.
type BadResponseError struct {
	Window xproto.Window
	Atom   xproto.Atom
	Type   xproto.Atom
	Format byte
}

func (e *BadResponseError) Error() string {
	return fmt.Sprintf("xprop: invalid response property (window=%d atom=%d type=%d format=%d)",
		e.Window, e.Atom, e.Type, e.Format)
}

// Property is one property read: the actual type and format reported by
// the server, the bytes retrieved, and how many bytes remain unread.
type Property struct {
	Type       xproto.Atom
	Format     byte
	BytesAfter uint32
	Value      []byte
}

// Event is one windowing event, reduced to what the polling loop cares
// about. Events that are not property notifications arrive as the zero
// Event and are skipped.
type Event struct {
	PropertyNotify bool
	Window         xproto.Window
	Atom           xproto.Atom
}

// conn is the subset of windowing operations the transport drives. The
// production implementation is xgbConn; tests substitute a scripted fake.
type conn interface {
	Root() xproto.Window
	InternAtom(name string, onlyIfExists bool) (xproto.Atom, error)
	Property(win xproto.Window, prop, typ xproto.Atom, longLength uint32) (Property, error)
	SetProperty(win xproto.Window, prop, typ xproto.Atom, format byte, data []byte) error
	CreateNotifyWindow() (xproto.Window, error)
	SendClientMessage(dest xproto.Window, typ xproto.Atom, data [5]uint32) error
	WaitEvent() (Event, error)
	DestroyWindow(win xproto.Window) error
	Close()
}

// Client is a property-protocol session with the server. The portal
// window is owned exclusively by the session and destroyed on Close; the
// request window belongs to the server and is only written to.
type Client struct {
	conn     conn
	reqWin   xproto.Window
	portal   xproto.Window
	property xproto.Atom
	readLen  uint32
	log      zerolog.Logger
}

// Open connects to the X display and establishes a session: discover the
// server's request window off the root window, then create the portal
// window the response property lives on.
func Open(display string, log zerolog.Logger) (*Client, error) {
	c, err := dial(display)
	if err != nil {
		return nil, err
	}
	client, err := open(c, log)
	if err != nil {
		c.Close()
		return nil, err
	}
	return client, nil
}

// open runs discovery and session setup on an established connection.
// The portal window is created last, so on error there is nothing to
// destroy and closing the connection is enough.
func open(c conn, log zerolog.Logger) (*Client, error) {
	reqWinAtom, err := c.InternAtom(requestWinAtomName, true)
	if err != nil {
		return nil, err
	}
	if reqWinAtom == xproto.AtomNone {
		return nil, ErrServerNotFound
	}
	property, err := c.InternAtom(requestAtomName, false)
	if err != nil {
		return nil, err
	}

	prop, err := c.Property(c.Root(), reqWinAtom, xproto.AtomCardinal, 1)
	if err != nil {
		return nil, err
	}
	if prop.Type != xproto.AtomCardinal || prop.Format != 32 || len(prop.Value) != 4 {
		return nil, ErrServerNotFound
	}
	reqWin := xproto.Window(xgb.Get32(prop.Value))

	portal, err := c.CreateNotifyWindow()
	if err != nil {
		return nil, err
	}

	return &Client{
		conn:     c,
		reqWin:   reqWin,
		portal:   portal,
		property: property,
		readLen:  initialReadLen,
		log:      log,
	}, nil
}

// Eval sends form to the server. With noReply set the request is flushed
// and an empty OK response returned immediately; otherwise Eval blocks on
// the property-notify loop until the full response has been read.
func (c *Client) Eval(form []byte, noReply bool) (wire.Response, error) {
	if err := c.sendRequest(form, noReply); err != nil {
		return wire.Response{}, err
	}
	if noReply {
		return wire.Response{OK: true}, nil
	}
	if err := c.waitPropertyNotify(); err != nil {
		return wire.Response{}, err
	}
	return c.readResponse()
}

// sendRequest writes the form into the communication property on the
// portal window and tells the server to process it.
func (c *Client) sendRequest(form []byte, noReply bool) error {
	if err := c.conn.SetProperty(c.portal, c.property, xproto.AtomString, 8, form); err != nil {
		return err
	}
	// Our own property write generates a PropertyNotify on the portal.
	// Consume it here; it is not the server's reply.
	if err := c.waitPropertyNotify(); err != nil {
		return err
	}
	syncFlag := uint32(1)
	if noReply {
		syncFlag = 0
	}
	return c.conn.SendClientMessage(c.reqWin, c.property, [5]uint32{
		protocolVersion,
		uint32(c.portal),
		uint32(c.property),
		syncFlag,
		0,
	})
}

// waitPropertyNotify blocks until a property notification for the portal
// window and communication property arrives, skipping everything else.
func (c *Client) waitPropertyNotify() error {
	for {
		ev, err := c.conn.WaitEvent()
		if err != nil {
			return err
		}
		if ev.PropertyNotify && ev.Window == c.portal && ev.Atom == c.property {
			return nil
		}
	}
}

// readResponse fetches the communication property, re-issuing the read
// with a larger window until the whole value arrives in one reply. The
// value is status byte followed by payload.
func (c *Client) readResponse() (wire.Response, error) {
	length := c.readLen
	for {
		prop, err := c.conn.Property(c.portal, c.property, xproto.AtomString, length)
		if err != nil {
			return wire.Response{}, err
		}
		if prop.Type != xproto.AtomString || prop.Format != 8 {
			return wire.Response{}, &BadResponseError{
				Window: c.portal,
				Atom:   c.property,
				Type:   prop.Type,
				Format: prop.Format,
			}
		}
		if prop.BytesAfter == 0 {
			if len(prop.Value) == 0 {
				return wire.Response{}, wire.ErrNoResponse
			}
			data := make([]byte, len(prop.Value)-1)
			copy(data, prop.Value[1:])
			return wire.Response{OK: prop.Value[0] == wire.StatusOK, Data: data}, nil
		}
		if total := uint64(len(prop.Value)) + uint64(prop.BytesAfter); total > MaxResponseLen {
			return wire.Response{}, wire.TooLargeError{Len: total}
		}
		length += prop.BytesAfter/4 + 1
	}
}

// Close destroys the portal window and closes the connection. Destruction
// is best effort: the session is over either way, so a failure is logged
// rather than surfaced.
func (c *Client) Close() error {
	if err := c.conn.DestroyWindow(c.portal); err != nil {
		c.log.Warn().Err(err).Uint32("window", uint32(c.portal)).Msg("destroy portal window")
	}
	c.conn.Close()
	return nil
}
