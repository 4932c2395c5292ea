// Package wire owns the Unix-socket framing for the Sawfish eval protocol.
//
// Ownership boundary:
// - request frame encoding (kind byte + native-endian length + form)
// - response frame decoding (length + status byte + payload)
//
// The server runs on the same machine as the client, so lengths are in the
// platform's native byte order, not network order. Both the blocking and the
// caller-scheduled socket transports go through this package, which is what
// keeps their frames byte-identical.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// Request kinds. The kind byte is the first byte of every request frame.
const (
	KindEval byte = 0 // server evaluates the form and writes a response
	KindSend byte = 1 // server evaluates the form, no response follows
)

// RequestHeaderLen is the fixed request header size: kind byte plus
// a uint64 form length.
const RequestHeaderLen = 9

// StatusOK is the response status byte for a successful evaluation.
// Any other status marks the payload as the server's error message.
const StatusOK byte = 1

// ErrNoResponse reports a response frame with total length zero. This is
// distinct from a successful response with an empty payload, which has
// total length one (the status byte).
var ErrNoResponse = errors.New("wire: empty response")

// TooLargeError reports a response whose payload cannot be held in memory
// on this platform.
type TooLargeError struct {
	Len uint64
}

func (e TooLargeError) Error() string {
	return fmt.Sprintf("wire: response of %d bytes too large", e.Len)
}

// Response is the server's verdict on one evaluated form. OK reports
// whether evaluation succeeded; Data is the evaluated value on success or
// the server's error message otherwise. Either way Data may be empty.
//
// A Response with OK false is not a transport error: the form reached the
// server and the server rejected it (most likely a syntax error).
type Response struct {
	OK   bool
	Data []byte
}

// WriteRequest writes one request frame to w. The frame is assembled in
// full and handed to a single Write call so that a request interrupted by
// cancellation is either fully sent or not sent at all.
func WriteRequest(w io.Writer, form []byte, noReply bool) error {
	buf := make([]byte, RequestHeaderLen+len(form))
	if noReply {
		buf[0] = KindSend
	}
	binary.NativeEndian.PutUint64(buf[1:RequestHeaderLen], uint64(len(form)))
	copy(buf[RequestHeaderLen:], form)
	if _, err := w.Write(buf); err != nil {
		return err
	}
	return nil
}

// ReadResponse reads one response frame from r. The total length counts
// the status byte, so a length of zero means the server sent no response
// and a length of one is a response with an empty payload.
func ReadResponse(r io.Reader) (Response, error) {
	var head [8]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return Response{}, err
	}
	total := binary.NativeEndian.Uint64(head[:])
	if total == 0 {
		return Response{}, ErrNoResponse
	}
	dataLen := total - 1
	if dataLen > math.MaxInt {
		return Response{}, TooLargeError{Len: dataLen}
	}

	var status [1]byte
	if _, err := io.ReadFull(r, status[:]); err != nil {
		return Response{}, err
	}
	data := make([]byte, dataLen)
	if _, err := io.ReadFull(r, data); err != nil {
		return Response{}, err
	}
	return Response{OK: status[0] == StatusOK, Data: data}, nil
}
