// Package wire implements the framed binary protocol spoken between the
// picker daemon and its clients.
//
// Every message is a 4-byte big-endian length followed by a payload. The
// payload starts with the protocol version byte and a record tag; the rest
// depends on the tag. Strings are u16-length prefixed, ids are u32.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/grovetools/nicepick/errors"
)

// Version is the protocol version written into every payload.
const Version byte = 1

// MaxFrameSize bounds a single payload.
const MaxFrameSize = 1 << 20

var order = binary.BigEndian

// RequestKind tags client to daemon records.
type RequestKind uint8

const (
	RequestShow RequestKind = iota + 1
	RequestHide
	RequestSelect
	RequestPing
	RequestQuery
)

func (k RequestKind) String() string {
	switch k {
	case RequestShow:
		return "show"
	case RequestHide:
		return "hide"
	case RequestSelect:
		return "select"
	case RequestPing:
		return "ping"
	case RequestQuery:
		return "query"
	}
	return fmt.Sprintf("request(%d)", uint8(k))
}

// EventKind tags daemon to client records.
type EventKind uint8

const (
	EventShown EventKind = iota + 0x81
	EventHidden
	EventSelected
	EventDismissed
	EventError
	EventPong
	EventResults
)

func (k EventKind) String() string {
	switch k {
	case EventShown:
		return "shown"
	case EventHidden:
		return "hidden"
	case EventSelected:
		return "selected"
	case EventDismissed:
		return "dismissed"
	case EventError:
		return "error"
	case EventPong:
		return "pong"
	case EventResults:
		return "results"
	}
	return fmt.Sprintf("event(%#x)", uint8(k))
}

// Request is a client to daemon record. Only the fields of its Kind are used:
// Seed for Show, EntryID for Select, Text for Query.
type Request struct {
	Kind    RequestKind
	Seed    string
	EntryID uint32
	Text    string
}

// Entry is the wire form of a catalog entry.
type Entry struct {
	ID       uint32
	Glyph    string
	Name     string
	Category uint8
}

// Event is a daemon to client record. Only the fields of its Kind are used:
// Session for Shown, Entry for Selected, Code and Message for Error, Query
// and Entries for Results.
type Event struct {
	Kind    EventKind
	Session string
	Entry   Entry
	Entries []Entry
	Query   string
	Code    errors.ErrorCode
	Message string
}

// Terminal reports whether the event ends a session.
func (e Event) Terminal() bool {
	return e.Kind == EventSelected || e.Kind == EventDismissed
}

// Err converts an Error event into a coded error; other events return nil.
func (e Event) Err() error {
	if e.Kind != EventError {
		return nil
	}
	code := e.Code
	if code == "" {
		code = errors.ErrCodeInternal
	}
	return errors.New(code, e.Message)
}

// ErrorEvent builds an Error event from err, keeping its code when present.
func ErrorEvent(err error) Event {
	code := errors.GetCode(err)
	if code == "" {
		code = errors.ErrCodeInternal
	}
	msg := err.Error()
	if pe, ok := err.(*errors.PickError); ok {
		msg = pe.Message
	}
	return Event{Kind: EventError, Code: code, Message: msg}
}

// WriteRequest frames and writes req.
func WriteRequest(w io.Writer, req Request) error {
	b := []byte{Version, byte(req.Kind)}
	switch req.Kind {
	case RequestShow:
		b = appendString(b, req.Seed)
	case RequestSelect:
		b = order.AppendUint32(b, req.EntryID)
	case RequestQuery:
		b = appendString(b, req.Text)
	case RequestHide, RequestPing:
	default:
		return errors.Protocol("cannot encode request kind %d", uint8(req.Kind))
	}
	return writeFrame(w, b)
}

// ReadRequest reads one framed request. A clean end of stream before a frame
// starts returns io.EOF; anything malformed is a PROTOCOL_ERROR.
func ReadRequest(r io.Reader) (Request, error) {
	d, err := readPayload(r)
	if err != nil {
		return Request{}, err
	}
	req := Request{Kind: RequestKind(d.u8())}
	switch req.Kind {
	case RequestShow:
		req.Seed = d.str()
	case RequestSelect:
		req.EntryID = d.u32()
	case RequestQuery:
		req.Text = d.str()
	case RequestHide, RequestPing:
	default:
		return Request{}, errors.Protocol("unknown request tag %d", uint8(req.Kind))
	}
	return req, d.finish()
}

// WriteEvent frames and writes ev.
func WriteEvent(w io.Writer, ev Event) error {
	b := []byte{Version, byte(ev.Kind)}
	switch ev.Kind {
	case EventShown:
		b = appendString(b, ev.Session)
	case EventSelected:
		b = appendEntry(b, ev.Entry)
	case EventError:
		b = appendString(b, string(ev.Code))
		b = appendString(b, ev.Message)
	case EventResults:
		if len(ev.Entries) > math.MaxUint16 {
			return errors.Protocol("result set of %d entries is too large", len(ev.Entries))
		}
		b = appendString(b, ev.Query)
		b = order.AppendUint16(b, uint16(len(ev.Entries)))
		for _, e := range ev.Entries {
			b = appendEntry(b, e)
		}
	case EventHidden, EventDismissed, EventPong:
	default:
		return errors.Protocol("cannot encode event kind %d", uint8(ev.Kind))
	}
	return writeFrame(w, b)
}

// ReadEvent reads one framed event.
func ReadEvent(r io.Reader) (Event, error) {
	d, err := readPayload(r)
	if err != nil {
		return Event{}, err
	}
	ev := Event{Kind: EventKind(d.u8())}
	switch ev.Kind {
	case EventShown:
		ev.Session = d.str()
	case EventSelected:
		ev.Entry = d.entry()
	case EventError:
		ev.Code = errors.ErrorCode(d.str())
		ev.Message = d.str()
	case EventResults:
		ev.Query = d.str()
		n := int(d.u16())
		for i := 0; i < n && d.err == nil; i++ {
			ev.Entries = append(ev.Entries, d.entry())
		}
	case EventHidden, EventDismissed, EventPong:
	default:
		return Event{}, errors.Protocol("unknown event tag %#x", uint8(ev.Kind))
	}
	return ev, d.finish()
}

func writeFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return errors.Protocol("frame of %d bytes exceeds limit", len(payload))
	}
	frame := make([]byte, 4, 4+len(payload))
	order.PutUint32(frame, uint32(len(payload)))
	frame = append(frame, payload...)
	_, err := w.Write(frame)
	return err
}

// readPayload reads a frame and checks its version byte.
func readPayload(r io.Reader) (*decoder, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		if err == io.ErrUnexpectedEOF {
			return nil, errors.Wrap(err, errors.ErrCodeProtocol, "truncated frame header")
		}
		return nil, err
	}
	n := order.Uint32(hdr[:])
	if n < 2 || n > MaxFrameSize {
		return nil, errors.Protocol("invalid frame length %d", n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, errors.Wrap(err, errors.ErrCodeProtocol, "truncated frame payload")
		}
		return nil, err
	}
	if payload[0] != Version {
		return nil, errors.Protocol("unsupported protocol version %d", payload[0])
	}
	return &decoder{buf: payload, off: 1}, nil
}

func appendString(b []byte, s string) []byte {
	if len(s) > math.MaxUint16 {
		s = s[:math.MaxUint16]
	}
	b = order.AppendUint16(b, uint16(len(s)))
	return append(b, s...)
}

func appendEntry(b []byte, e Entry) []byte {
	b = order.AppendUint32(b, e.ID)
	b = appendString(b, e.Glyph)
	b = appendString(b, e.Name)
	return append(b, e.Category)
}

type decoder struct {
	buf []byte
	off int
	err error
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if d.off+n > len(d.buf) {
		d.err = errors.Protocol("record truncated at byte %d", d.off)
		return nil
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b
}

func (d *decoder) u8() uint8 {
	if b := d.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (d *decoder) u16() uint16 {
	if b := d.take(2); b != nil {
		return order.Uint16(b)
	}
	return 0
}

func (d *decoder) u32() uint32 {
	if b := d.take(4); b != nil {
		return order.Uint32(b)
	}
	return 0
}

func (d *decoder) str() string {
	return string(d.take(int(d.u16())))
}

func (d *decoder) entry() Entry {
	return Entry{ID: d.u32(), Glyph: d.str(), Name: d.str(), Category: d.u8()}
}

// finish reports a decode error or leftover bytes.
func (d *decoder) finish() error {
	if d.err != nil {
		return d.err
	}
	if d.off != len(d.buf) {
		return errors.Protocol("%d unexpected trailing bytes", len(d.buf)-d.off)
	}
	return nil
}
