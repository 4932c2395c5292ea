package xprop

import (
	"bytes"
	"errors"
	"testing"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
	"github.com/rs/zerolog"

	"github.com/sawfishwm/sawctl/internal/testutil/testlog"
	"github.com/sawfishwm/sawctl/wire"
)

const (
	testRoot   xproto.Window = 0x1
	testReqWin xproto.Window = 0x2a
	testPortal xproto.Window = 0x500001
)

// fakeConn scripts the windowing server side of the property protocol.
// SetProperty queues the self notification a real server generates, and
// SendClientMessage queues the server's response notification.
type fakeConn struct {
	atoms      map[string]xproto.Atom
	nextAtom   xproto.Atom
	rootProp   Property
	response   []byte
	respType   xproto.Atom
	respFormat byte

	events     []Event
	noisy      []Event // events injected before the server's response notify
	respond    bool
	created    int
	destroyed  []xproto.Window
	destroyErr error
	closed     bool
	sent       [][5]uint32
	written    [][]byte
	propReads  int
}

func newFakeConn(reqWin xproto.Window) *fakeConn {
	val := make([]byte, 4)
	xgb.Put32(val, uint32(reqWin))
	return &fakeConn{
		atoms:      map[string]xproto.Atom{requestWinAtomName: 0x101},
		nextAtom:   0x200,
		rootProp:   Property{Type: xproto.AtomCardinal, Format: 32, Value: val},
		respType:   xproto.AtomString,
		respFormat: 8,
		respond:    true,
	}
}

func (f *fakeConn) Root() xproto.Window { return testRoot }

func (f *fakeConn) InternAtom(name string, onlyIfExists bool) (xproto.Atom, error) {
	if atom, ok := f.atoms[name]; ok {
		return atom, nil
	}
	if onlyIfExists {
		return xproto.AtomNone, nil
	}
	f.nextAtom++
	f.atoms[name] = f.nextAtom
	return f.nextAtom, nil
}

func (f *fakeConn) Property(win xproto.Window, prop, typ xproto.Atom, longLength uint32) (Property, error) {
	if win == testRoot {
		return f.rootProp, nil
	}
	f.propReads++
	avail := int(longLength) * 4
	if avail >= len(f.response) {
		return Property{Type: f.respType, Format: f.respFormat, Value: f.response}, nil
	}
	return Property{
		Type:       f.respType,
		Format:     f.respFormat,
		BytesAfter: uint32(len(f.response) - avail),
		Value:      f.response[:avail],
	}, nil
}

func (f *fakeConn) SetProperty(win xproto.Window, prop, typ xproto.Atom, format byte, data []byte) error {
	f.written = append(f.written, append([]byte(nil), data...))
	f.events = append(f.events, Event{PropertyNotify: true, Window: win, Atom: prop})
	return nil
}

func (f *fakeConn) CreateNotifyWindow() (xproto.Window, error) {
	f.created++
	return testPortal, nil
}

func (f *fakeConn) SendClientMessage(dest xproto.Window, typ xproto.Atom, data [5]uint32) error {
	f.sent = append(f.sent, data)
	if f.respond && data[3] == 1 {
		f.events = append(f.events, f.noisy...)
		f.events = append(f.events, Event{PropertyNotify: true, Window: testPortal, Atom: typ})
	}
	return nil
}

func (f *fakeConn) WaitEvent() (Event, error) {
	if len(f.events) == 0 {
		return Event{}, errors.New("fake: no scripted events left")
	}
	ev := f.events[0]
	f.events = f.events[1:]
	return ev, nil
}

func (f *fakeConn) DestroyWindow(win xproto.Window) error {
	f.destroyed = append(f.destroyed, win)
	return f.destroyErr
}

func (f *fakeConn) Close() { f.closed = true }

func openTestClient(t *testing.T, f *fakeConn) *Client {
	t.Helper()
	testlog.Start(t)
	c, err := open(f, zerolog.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return c
}

func TestOpenDiscoversRequestWindow(t *testing.T) {
	f := newFakeConn(testReqWin)
	c := openTestClient(t, f)
	if c.reqWin != testReqWin {
		t.Fatalf("request window got=%#x want=%#x", c.reqWin, testReqWin)
	}
	if c.portal != testPortal {
		t.Fatalf("portal got=%#x", c.portal)
	}
	if f.atoms[requestAtomName] == 0 {
		t.Fatalf("communication atom not interned")
	}
}

func TestOpenAtomMissing(t *testing.T) {
	f := newFakeConn(testReqWin)
	delete(f.atoms, requestWinAtomName)
	_, err := open(f, zerolog.Nop())
	if !errors.Is(err, ErrServerNotFound) {
		t.Fatalf("expected ErrServerNotFound, got %v", err)
	}
	if f.created != 0 {
		t.Fatalf("portal window allocated despite failed discovery")
	}
}

func TestOpenMalformedRootProperty(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*fakeConn)
	}{
		{name: "absent", mutate: func(f *fakeConn) { f.rootProp = Property{} }},
		{name: "wrong type", mutate: func(f *fakeConn) { f.rootProp.Type = xproto.AtomString }},
		{name: "wrong format", mutate: func(f *fakeConn) { f.rootProp.Format = 8 }},
		{name: "wrong length", mutate: func(f *fakeConn) { f.rootProp.Value = f.rootProp.Value[:2] }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFakeConn(testReqWin)
			tc.mutate(f)
			_, err := open(f, zerolog.Nop())
			if !errors.Is(err, ErrServerNotFound) {
				t.Fatalf("expected ErrServerNotFound, got %v", err)
			}
			if f.created != 0 {
				t.Fatalf("portal window allocated despite failed discovery")
			}
		})
	}
}

func TestEvalRoundTrip(t *testing.T) {
	f := newFakeConn(testReqWin)
	f.response = append([]byte{wire.StatusOK}, "ok"...)
	c := openTestClient(t, f)

	resp, err := c.Eval([]byte("(wm-version)"), false)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if !resp.OK || string(resp.Data) != "ok" {
		t.Fatalf("got=%+v want ok %q", resp, "ok")
	}
	if len(f.written) != 1 || string(f.written[0]) != "(wm-version)" {
		t.Fatalf("form written=%q", f.written)
	}
	if len(f.sent) != 1 {
		t.Fatalf("client messages sent=%d", len(f.sent))
	}
	msg := f.sent[0]
	want := [5]uint32{protocolVersion, uint32(testPortal), uint32(c.property), 1, 0}
	if msg != want {
		t.Fatalf("client message got=%v want=%v", msg, want)
	}
}

func TestEvalFailureStatus(t *testing.T) {
	f := newFakeConn(testReqWin)
	f.response = append([]byte{0}, "boom"...)
	c := openTestClient(t, f)
	resp, err := c.Eval([]byte("(bad"), false)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if resp.OK || string(resp.Data) != "boom" {
		t.Fatalf("got=%+v want failure %q", resp, "boom")
	}
}

func TestEvalIgnoresUnrelatedEvents(t *testing.T) {
	f := newFakeConn(testReqWin)
	f.response = append([]byte{wire.StatusOK}, "ok"...)
	f.noisy = []Event{
		{}, // not a property notify at all
		{PropertyNotify: true, Window: 0x999, Atom: 0x999}, // different window
	}
	c := openTestClient(t, f)
	resp, err := c.Eval([]byte("(wm-version)"), false)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if !resp.OK || string(resp.Data) != "ok" {
		t.Fatalf("got=%+v", resp)
	}
}

func TestEvalNoReply(t *testing.T) {
	f := newFakeConn(testReqWin)
	f.respond = false
	c := openTestClient(t, f)
	resp, err := c.Eval([]byte("(quit)"), true)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if !resp.OK || len(resp.Data) != 0 {
		t.Fatalf("got=%+v want empty ok", resp)
	}
	if len(f.sent) != 1 || f.sent[0][3] != 0 {
		t.Fatalf("sync flag not cleared: %v", f.sent)
	}
	if f.propReads != 0 {
		t.Fatalf("no-reply request read the response property")
	}
}

func TestIncrementalRead(t *testing.T) {
	f := newFakeConn(testReqWin)
	payload := bytes.Repeat([]byte("abcdefgh"), 64) // well past the initial window
	f.response = append([]byte{wire.StatusOK}, payload...)
	c := openTestClient(t, f)

	resp, err := c.Eval([]byte("(big)"), false)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if !resp.OK {
		t.Fatalf("got=%+v", resp)
	}
	if !bytes.Equal(resp.Data, payload) {
		t.Fatalf("payload mismatch: got %d bytes want %d", len(resp.Data), len(payload))
	}
	if f.propReads < 2 {
		t.Fatalf("expected incremental reads, got %d", f.propReads)
	}
}

func TestResponseTooLarge(t *testing.T) {
	f := newFakeConn(testReqWin)
	f.response = bytes.Repeat([]byte{wire.StatusOK}, MaxResponseLen+128)
	c := openTestClient(t, f)
	_, err := c.Eval([]byte("(huge)"), false)
	var tooLarge wire.TooLargeError
	if !errors.As(err, &tooLarge) {
		t.Fatalf("expected TooLargeError, got %v", err)
	}
}

func TestBadResponseProperty(t *testing.T) {
	f := newFakeConn(testReqWin)
	f.response = append([]byte{wire.StatusOK}, "ok"...)
	f.respFormat = 32
	c := openTestClient(t, f)
	_, err := c.Eval([]byte("(wm-version)"), false)
	var bad *BadResponseError
	if !errors.As(err, &bad) {
		t.Fatalf("expected BadResponseError, got %v", err)
	}
	if bad.Window != testPortal || bad.Format != 32 {
		t.Fatalf("error detail got=%+v", bad)
	}
}

func TestEmptyResponseProperty(t *testing.T) {
	f := newFakeConn(testReqWin)
	f.response = nil
	c := openTestClient(t, f)
	_, err := c.Eval([]byte("(wm-version)"), false)
	if !errors.Is(err, wire.ErrNoResponse) {
		t.Fatalf("expected ErrNoResponse, got %v", err)
	}
}

func TestCloseDestroysPortal(t *testing.T) {
	f := newFakeConn(testReqWin)
	c := openTestClient(t, f)
	c.Close()
	if len(f.destroyed) != 1 || f.destroyed[0] != testPortal {
		t.Fatalf("destroyed=%v want portal", f.destroyed)
	}
	if !f.closed {
		t.Fatalf("connection left open")
	}
}

func TestCloseDestroyFailureIsSwallowed(t *testing.T) {
	f := newFakeConn(testReqWin)
	f.destroyErr = errors.New("window gone")
	c := openTestClient(t, f)
	c.Close()
	if !f.closed {
		t.Fatalf("connection left open after failed destroy")
	}
}
