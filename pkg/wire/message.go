// Package wire implements the length-prefixed message framing used by the
// wire protocol: a one-byte type code, a 4-byte big-endian length
// (inclusive of the length field, exclusive of the type code), then the
// payload. Startup and SSLRequest messages omit the type code.
package wire

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// Backend (server-to-client) message type codes.
const (
	BackendAuthentication      byte = 'R'
	BackendParameterStatus     byte = 'S'
	BackendBackendKeyData      byte = 'K'
	BackendReadyForQuery       byte = 'Z'
	BackendRowDescription      byte = 'T'
	BackendErrorResponse       byte = 'E'
	BackendNoticeResponse      byte = 'N'
	BackendDataRow             byte = 'D'
	BackendCommandComplete     byte = 'C'
	BackendParseComplete       byte = '1'
	BackendBindComplete        byte = '2'
	BackendCloseComplete       byte = '3'
	BackendPortalSuspended     byte = 's'
	BackendNoData              byte = 'n'
	BackendParameterDesc       byte = 't'
	BackendNotificationResp   byte = 'A'
	BackendCopyDone            byte = 'c'
	BackendCopyData            byte = 'd'
	BackendCopyInResponse      byte = 'G'
	BackendCopyOutResponse     byte = 'H'
	BackendEmptyQueryResponse  byte = 'I'
)

// Frontend (client-to-server) message type codes.
const (
	FrontendPassword      byte = 'p'
	FrontendDigestResp    byte = 'd'
	FrontendIdPToken      byte = 'i'
	FrontendParse         byte = 'P'
	FrontendBind          byte = 'B'
	FrontendDescribe      byte = 'D'
	FrontendExecute       byte = 'E'
	FrontendSync          byte = 'S'
	FrontendFlush         byte = 'H'
	FrontendClose         byte = 'C'
	FrontendCopyData      byte = 'd'
	FrontendCopyDone      byte = 'c'
	FrontendTerminate     byte = 'X'
)

// DescribeStatement and DescribePortal select the Describe message's target.
const (
	DescribeStatement byte = 'S'
	DescribePortal    byte = 'P'
)

// headerLen is the size of the 4-byte length prefix.
const headerLen = 4

// Message is a decoded backend message: its type code and raw payload
// (the bytes after the length field).
type Message struct {
	Type    byte
	Payload []byte
}

// Stream wraps a byte stream (plain TCP or TLS) with buffered framing.
// It is not safe for concurrent use; the connection engine serializes
// access to a single Stream per connection (§5).
type Stream struct {
	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
	writer *bufio.Writer
}

// NewStream wraps conn for message framing.
func NewStream(conn net.Conn) *Stream {
	return &Stream{
		conn:   conn,
		reader: bufio.NewReaderSize(conn, 64*1024),
		writer: bufio.NewWriterSize(conn, 64*1024),
	}
}

// Conn returns the underlying net.Conn, e.g. to set deadlines or to
// replace it after a TLS upgrade via Rewrap.
func (s *Stream) Conn() net.Conn {
	return s.conn
}

// Rewrap replaces the underlying connection, discarding any buffered
// bytes. Used after the TLS handshake upgrades the socket.
func (s *Stream) Rewrap(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = conn
	s.reader = bufio.NewReaderSize(conn, 64*1024)
	s.writer = bufio.NewWriterSize(conn, 64*1024)
}

// SetDeadline applies a read/write deadline to the underlying connection
// if d is non-zero; honored per §5 (a socket-level timeout, when
// configured, raises a connection error and the connection becomes
// unusable).
func (s *Stream) SetDeadline(d time.Duration) {
	if d <= 0 {
		return
	}
	s.conn.SetDeadline(time.Now().Add(d))
}

// ClearDeadline removes any deadline set by SetDeadline.
func (s *Stream) ClearDeadline() {
	s.conn.SetDeadline(time.Time{})
}

// ReadMessage blocks for the next typed message: one byte type code, a
// 4-byte big-endian length (inclusive of itself), then the payload.
func (s *Stream) ReadMessage() (Message, error) {
	var typeBuf [1]byte
	if _, err := io.ReadFull(s.reader, typeBuf[:]); err != nil {
		return Message{}, fmt.Errorf("wire: read message type: %w", err)
	}

	var lenBuf [headerLen]byte
	if _, err := io.ReadFull(s.reader, lenBuf[:]); err != nil {
		return Message{}, fmt.Errorf("wire: read message length: %w", err)
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	if length < headerLen {
		return Message{}, fmt.Errorf("wire: invalid message length %d", length)
	}

	payload := make([]byte, length-headerLen)
	if len(payload) > 0 {
		if _, err := io.ReadFull(s.reader, payload); err != nil {
			return Message{}, fmt.Errorf("wire: read message payload: %w", err)
		}
	}

	return Message{Type: typeBuf[0], Payload: payload}, nil
}

// Writer accumulates frontend messages into a single buffer, written and
// flushed together at a Sync boundary (§4.7: Bind, Execute and Sync are
// sent back to back, then flushed once).
type Writer struct {
	buf []byte
}

// NewWriter returns an empty message Writer.
func NewWriter() *Writer {
	return &Writer{buf: make([]byte, 0, 4096)}
}

// Bytes returns the accumulated buffer.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Reset empties the buffer for reuse.
func (w *Writer) Reset() {
	w.buf = w.buf[:0]
}

// beginMessage appends the type code and a placeholder length, returning
// the offset of the length field to patch in endMessage.
func (w *Writer) beginMessage(typ byte) int {
	if typ != 0 {
		w.buf = append(w.buf, typ)
	}
	lenOffset := len(w.buf)
	w.buf = append(w.buf, 0, 0, 0, 0)
	return lenOffset
}

func (w *Writer) endMessage(lenOffset int) {
	length := uint32(len(w.buf) - lenOffset)
	binary.BigEndian.PutUint32(w.buf[lenOffset:lenOffset+4], length)
}

// Int32 appends a big-endian int32.
func (w *Writer) Int32(v int32) *Writer {
	w.buf = append(w.buf, 0, 0, 0, 0)
	binary.BigEndian.PutUint32(w.buf[len(w.buf)-4:], uint32(v))
	return w
}

// Int16 appends a big-endian int16.
func (w *Writer) Int16(v int16) *Writer {
	w.buf = append(w.buf, 0, 0)
	binary.BigEndian.PutUint16(w.buf[len(w.buf)-2:], uint16(v))
	return w
}

// Byte appends a single byte.
func (w *Writer) Byte(b byte) *Writer {
	w.buf = append(w.buf, b)
	return w
}

// RawBytes appends raw bytes verbatim.
func (w *Writer) RawBytes(b []byte) *Writer {
	w.buf = append(w.buf, b...)
	return w
}

// CString appends s followed by a NUL terminator.
func (w *Writer) CString(s string) *Writer {
	w.buf = append(w.buf, s...)
	w.buf = append(w.buf, 0)
	return w
}

// LengthPrefixed appends a 4-byte length followed by b, or -1 with no
// bytes when b is nil (the wire representation of SQL NULL, §4.7).
func (w *Writer) LengthPrefixed(b []byte) *Writer {
	if b == nil {
		return w.Int32(-1)
	}
	w.Int32(int32(len(b)))
	return w.RawBytes(b)
}

// Message appends a complete type-length-payload frame built by fn.
func (w *Writer) Message(typ byte, fn func(w *Writer)) *Writer {
	off := w.beginMessage(typ)
	fn(w)
	w.endMessage(off)
	return w
}

// Flush writes the accumulated buffer to the stream and empties it.
func (s *Stream) Flush(w *Writer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.writer.Write(w.Bytes()); err != nil {
		return fmt.Errorf("wire: write: %w", err)
	}
	if err := s.writer.Flush(); err != nil {
		return fmt.Errorf("wire: flush: %w", err)
	}
	w.Reset()
	return nil
}
