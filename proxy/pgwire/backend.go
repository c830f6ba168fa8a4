package pgwire

import (
	"encoding/binary"
)

// Field describes one RowDescription column: its name and the text-format
// OID of the value it carries. The proxy only ever returns text-format
// values (format code 0), so every synthesized row is safe to decode with
// a client that expects Postgres's normal text wire representation.
type Field struct {
	Name string
	OID  int32
}

// Common type OIDs the proxy's synthesized RowDescription needs. See
// Postgres's pg_type catalog; these are its well-known, stable values.
const (
	OIDText   int32 = 25
	OIDFloat8 int32 = 701
	OIDInt4   int32 = 23
	OIDJSON   int32 = 114
)

// RowDescription builds a 'T' message describing fields in query-result
// order, all reported as text-format with no known table/attribute.
func RowDescription(fields []Field) []byte {
	body := make([]byte, 0, 64*len(fields)+2)
	body = appendInt16(body, int16(len(fields)))
	for _, f := range fields {
		body = append(body, cstring(f.Name)...)
		body = appendInt32(body, 0)     // table OID: unknown
		body = appendInt16(body, 0)     // column attribute number: unknown
		body = appendInt32(body, f.OID) // data type OID
		body = appendInt16(body, -1)    // type size: variable
		body = appendInt32(body, -1)    // type modifier: none
		body = appendInt16(body, 0)     // format code: text
	}
	return body
}

// DataRow builds a 'D' message for one row. A nil entry in values encodes
// SQL NULL; every other entry is sent as its text representation.
func DataRow(values []*string) []byte {
	body := make([]byte, 0, 64)
	body = appendInt16(body, int16(len(values)))
	for _, v := range values {
		if v == nil {
			body = appendInt32(body, -1)
			continue
		}
		body = appendInt32(body, int32(len(*v)))
		body = append(body, []byte(*v)...)
	}
	return body
}

// CommandComplete builds a 'C' message with the given command tag, e.g.
// "SELECT 3".
func CommandComplete(tag string) []byte {
	return cstring(tag)
}

// ReadyForQuery builds a 'Z' message reporting the backend transaction
// status. status is one of 'I' (idle), 'T' (in a transaction), or 'E'
// (in a failed transaction); the proxy only ever reports 'I', since it
// never opens a transaction on its synthesized replies.
func ReadyForQuery(status byte) []byte {
	return []byte{status}
}

// ErrorResponse builds an 'E' message carrying the minimum fields real
// clients expect: severity, SQLSTATE code, and a human-readable message.
func ErrorResponse(severity, code, message string) []byte {
	body := make([]byte, 0, 64)
	body = append(body, 'S')
	body = append(body, cstring(severity)...)
	body = append(body, 'C')
	body = append(body, cstring(code)...)
	body = append(body, 'M')
	body = append(body, cstring(message)...)
	body = append(body, 0) // terminator
	return body
}

// ParseComplete builds a '1' message with no body.
func ParseComplete() []byte { return nil }

// BindComplete builds a '2' message with no body.
func BindComplete() []byte { return nil }

// EmptyQueryResponse builds an 'I' message with no body, sent in place of
// RowDescription/CommandComplete when a simple query's text is empty.
func EmptyQueryResponse() []byte { return nil }

func appendInt16(b []byte, v int16) []byte {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], uint16(v))
	return append(b, buf[:]...)
}

func appendInt32(b []byte, v int32) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(v))
	return append(b, buf[:]...)
}
