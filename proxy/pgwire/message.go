// Package pgwire implements the minimum of the PostgreSQL frontend/backend
// wire protocol the query-intercepting proxy needs: reading framed
// messages off a connection and building the small set of backend
// messages required to answer an intercepted vectorize.search/rag call
// as if Postgres itself had answered it.
//
// This is deliberately not a general pgwire implementation. It knows
// just enough of the message framing (a one-byte type plus a four-byte
// length for every message after startup, a bare four-byte length
// before it) to find and reply to the handful of message types a search
// interception needs; every other message type is opaque framed bytes
// that the proxy forwards unread.
package pgwire

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// Message types the proxy cares about, by their one-byte tag. See the
// PostgreSQL frontend/backend protocol documentation, message formats
// section.
const (
	TypeQuery            byte = 'Q' // simple query (frontend)
	TypeParse            byte = 'P' // extended query: parse (frontend)
	TypeBind             byte = 'B' // extended query: bind (frontend)
	TypeDescribe         byte = 'D' // extended query: describe (frontend)
	TypeExecute          byte = 'E' // extended query: execute (frontend)
	TypeSync             byte = 'S' // extended query: sync (frontend)
	TypeRowDescription   byte = 'T' // backend
	TypeDataRow          byte = 'D' // backend (same tag as frontend Describe; direction disambiguates)
	TypeCommandComplete  byte = 'C' // backend
	TypeReadyForQuery     byte = 'Z' // backend
	TypeErrorResponse    byte = 'E' // backend (same tag as frontend Execute; direction disambiguates)
	TypeParseComplete    byte = '1' // backend
	TypeBindComplete     byte = '2' // backend
	TypeEmptyQueryResponse byte = 'I' // backend
)

// sslRequestCode and cancelRequestCode are special startup-phase request
// codes sent in place of a real protocol version, per the protocol's
// "Special Message Formats" rules. Neither carries a type byte.
const (
	sslRequestCode    int32 = 80877103
	cancelRequestCode int32 = 80877102
)

// Message is one framed protocol message. Type is zero for the startup
// message, which has no type byte.
type Message struct {
	Type byte
	Body []byte
}

// ReadStartupMessage reads the very first message on a new connection:
// either a real startup packet (protocol version plus key/value params),
// an SSLRequest, or a CancelRequest. All three share the same framing
// (four-byte length, four-byte code/version, then a body) and none
// carries a type byte, so the proxy treats them uniformly and forwards
// the raw bytes unparsed beyond the length.
func ReadStartupMessage(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("reading startup message length: %w", err)
	}
	length := int32(binary.BigEndian.Uint32(lenBuf[:]))
	if length < 4 {
		return nil, fmt.Errorf("invalid startup message length %d", length)
	}
	rest := make([]byte, length-4)
	if _, err := io.ReadFull(r, rest); err != nil {
		return nil, fmt.Errorf("reading startup message body: %w", err)
	}
	full := append(lenBuf[:], rest...)
	return full, nil
}

// IsSSLRequest reports whether a raw startup packet (as read by
// ReadStartupMessage) is an SSLRequest rather than a real startup.
func IsSSLRequest(raw []byte) bool {
	return len(raw) == 8 && int32(binary.BigEndian.Uint32(raw[4:8])) == sslRequestCode
}

// ReadMessage reads one type-tagged message: a one-byte type, a
// four-byte length (inclusive of itself), and length-4 bytes of body.
func ReadMessage(r *bufio.Reader) (Message, error) {
	msgType, err := r.ReadByte()
	if err != nil {
		return Message{}, err
	}
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return Message{}, fmt.Errorf("reading message length for type %q: %w", msgType, err)
	}
	length := int32(binary.BigEndian.Uint32(lenBuf[:]))
	if length < 4 {
		return Message{}, fmt.Errorf("invalid message length %d for type %q", length, msgType)
	}
	body := make([]byte, length-4)
	if _, err := io.ReadFull(r, body); err != nil {
		return Message{}, fmt.Errorf("reading message body for type %q: %w", msgType, err)
	}
	return Message{Type: msgType, Body: body}, nil
}

// WriteMessage frames and writes one type-tagged message.
func WriteMessage(w io.Writer, msgType byte, body []byte) error {
	var header [5]byte
	header[0] = msgType
	binary.BigEndian.PutUint32(header[1:], uint32(len(body)+4))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

func cstring(s string) []byte {
	return append([]byte(s), 0)
}
