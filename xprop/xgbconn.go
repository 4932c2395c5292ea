package xprop

import (
	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
)

// xgbConn binds the conn interface to a live X server via xgb.
type xgbConn struct {
	c    *xgb.Conn
	root xproto.Window
}

// dial connects to the display and resolves its default screen.
func dial(display string) (conn, error) {
	c, err := xgb.NewConnDisplay(display)
	if err != nil {
		return nil, err
	}
	setup := xproto.Setup(c)
	if c.DefaultScreen < 0 || c.DefaultScreen >= len(setup.Roots) {
		c.Close()
		return nil, BadScreenError{Screen: c.DefaultScreen}
	}
	return &xgbConn{c: c, root: setup.Roots[c.DefaultScreen].Root}, nil
}

func (x *xgbConn) Root() xproto.Window {
	return x.root
}

func (x *xgbConn) InternAtom(name string, onlyIfExists bool) (xproto.Atom, error) {
	reply, err := xproto.InternAtom(x.c, onlyIfExists, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, err
	}
	return reply.Atom, nil
}

func (x *xgbConn) Property(win xproto.Window, prop, typ xproto.Atom, longLength uint32) (Property, error) {
	reply, err := xproto.GetProperty(x.c, false, win, prop, typ, 0, longLength).Reply()
	if err != nil {
		return Property{}, err
	}
	return Property{
		Type:       reply.Type,
		Format:     reply.Format,
		BytesAfter: reply.BytesAfter,
		Value:      reply.Value,
	}, nil
}

func (x *xgbConn) SetProperty(win xproto.Window, prop, typ xproto.Atom, format byte, data []byte) error {
	return xproto.ChangePropertyChecked(x.c, xproto.PropModeReplace, win, prop, typ,
		format, uint32(len(data)), data).Check()
}

// CreateNotifyWindow creates the invisible portal window, subscribed to
// its own property changes. Placement off-screen keeps it out of the way
// of window managers that map everything.
func (x *xgbConn) CreateNotifyWindow() (xproto.Window, error) {
	wid, err := xproto.NewWindowId(x.c)
	if err != nil {
		return 0, err
	}
	const copyFromParent = 0 // depth and visual both inherit
	err = xproto.CreateWindowChecked(x.c, copyFromParent, wid, x.root,
		-100, -100, 10, 10, 0,
		xproto.WindowClassInputOutput, copyFromParent,
		xproto.CwEventMask, []uint32{xproto.EventMaskPropertyChange}).Check()
	if err != nil {
		return 0, err
	}
	return wid, nil
}

func (x *xgbConn) SendClientMessage(dest xproto.Window, typ xproto.Atom, data [5]uint32) error {
	ev := xproto.ClientMessageEvent{
		Format: 32,
		Window: dest,
		Type:   typ,
		Data:   xproto.ClientMessageDataUnionData32New(data[:]),
	}
	return xproto.SendEventChecked(x.c, false, dest, xproto.EventMaskNoEvent, string(ev.Bytes())).Check()
}

func (x *xgbConn) WaitEvent() (Event, error) {
	ev, xerr := x.c.WaitForEvent()
	if xerr != nil {
		return Event{}, xerr
	}
	if ev == nil {
		return Event{}, errConnClosed
	}
	if pn, ok := ev.(xproto.PropertyNotifyEvent); ok {
		return Event{PropertyNotify: true, Window: pn.Window, Atom: pn.Atom}, nil
	}
	return Event{}, nil
}

func (x *xgbConn) DestroyWindow(win xproto.Window) error {
	return xproto.DestroyWindowChecked(x.c, win).Check()
}

func (x *xgbConn) Close() {
	x.c.Close()
}
