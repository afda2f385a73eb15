package wire

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/nicepick/errors"
)

func rawFrame(payload ...byte) []byte {
	b := binary.BigEndian.AppendUint32(nil, uint32(len(payload)))
	return append(b, payload...)
}

func TestSessionExchange(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, WriteRequest(&buf, Request{Kind: RequestShow, Seed: "heart"}))
	require.NoError(t, WriteRequest(&buf, Request{Kind: RequestQuery, Text: "hea"}))
	require.NoError(t, WriteRequest(&buf, Request{Kind: RequestSelect, EntryID: 2}))

	show, err := ReadRequest(&buf)
	require.NoError(t, err)
	assert.Equal(t, Request{Kind: RequestShow, Seed: "heart"}, show)

	query, err := ReadRequest(&buf)
	require.NoError(t, err)
	assert.Equal(t, "hea", query.Text)

	sel, err := ReadRequest(&buf)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), sel.EntryID)

	_, err = ReadRequest(&buf)
	assert.Equal(t, io.EOF, err)
}

func TestEventsRoundTrip(t *testing.T) {
	heart := Entry{ID: 2, Glyph: "❤️", Name: "red_heart", Category: 7}
	events := []Event{
		{Kind: EventShown, Session: "5f0c"},
		{Kind: EventResults, Query: "hea", Entries: []Entry{heart, {ID: 8, Glyph: "💔", Name: "broken_heart", Category: 7}}},
		{Kind: EventSelected, Entry: heart},
		{Kind: EventError, Code: errors.ErrCodeBusy, Message: "picker is already open"},
		{Kind: EventPong},
	}

	var buf bytes.Buffer
	for _, ev := range events {
		require.NoError(t, WriteEvent(&buf, ev))
	}
	for _, want := range events {
		got, err := ReadEvent(&buf)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestTerminalAndErr(t *testing.T) {
	assert.True(t, Event{Kind: EventSelected}.Terminal())
	assert.True(t, Event{Kind: EventDismissed}.Terminal())
	assert.False(t, Event{Kind: EventResults}.Terminal())

	err := Event{Kind: EventError, Code: errors.ErrCodeBusy, Message: "busy"}.Err()
	assert.True(t, errors.Is(err, errors.ErrCodeBusy))
	assert.NoError(t, Event{Kind: EventPong}.Err())

	ev := ErrorEvent(errors.Busy("abc"))
	assert.Equal(t, errors.ErrCodeBusy, ev.Code)
	assert.Equal(t, "picker is already open in another session", ev.Message)

	ev = ErrorEvent(io.ErrClosedPipe)
	assert.Equal(t, errors.ErrCodeInternal, ev.Code)
}

func TestMalformedFrames(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
	}{
		{"wrong version", rawFrame(9, byte(RequestPing))},
		{"unknown tag", rawFrame(Version, 0x7f)},
		{"truncated select", rawFrame(Version, byte(RequestSelect), 0, 1)},
		{"trailing bytes", rawFrame(Version, byte(RequestPing), 0)},
		{"string overruns", rawFrame(Version, byte(RequestShow), 0, 10, 'a')},
		{"zero length", rawFrame()},
		{"oversized length", binary.BigEndian.AppendUint32(nil, MaxFrameSize+1)},
		{"short payload", append(binary.BigEndian.AppendUint32(nil, 10), Version, byte(RequestPing))},
		{"short header", []byte{0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadRequest(bytes.NewReader(tt.input))
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrCodeProtocol), "got %v", err)
		})
	}
}

func TestWriteRejectsUnknownKinds(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, WriteRequest(&buf, Request{Kind: 99}))
	assert.Error(t, WriteEvent(&buf, Event{Kind: 3}))
	assert.Zero(t, buf.Len())
}
