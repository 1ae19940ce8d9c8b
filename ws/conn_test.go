package ws

import (
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRawConn records every frame written to it; Close just marks itself closed.
type fakeRawConn struct {
	mu     sync.Mutex
	writes [][]byte
	closed bool
}

func (f *fakeRawConn) Write(b []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(b))
	copy(cp, b)
	f.writes = append(f.writes, cp)
	return len(b), nil
}

func (f *fakeRawConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeRawConn) lastWrite() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.writes) == 0 {
		return nil
	}
	return f.writes[len(f.writes)-1]
}

func newTestConnection(path string) (*Connection, *fakeRawConn) {
	raw := &fakeRawConn{}
	return NewConnection(path, raw, "", nil), raw
}

func waitForWrite(raw *fakeRawConn) []byte {
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if w := raw.lastWrite(); w != nil {
			return w
		}
		time.Sleep(time.Millisecond)
	}
	return nil
}

func TestManager_Broadcast_ReachesExactSet(t *testing.T) {
	m := NewManager()

	inRoom1, raw1 := newTestConnection("/chat")
	inRoom2, raw2 := newTestConnection("/chat")
	outOfRoom, raw3 := newTestConnection("/chat")
	excluded, raw4 := newTestConnection("/chat")

	inRoom1.JoinRoom("lobby")
	inRoom2.JoinRoom("lobby")
	excluded.JoinRoom("lobby")

	m.Add(inRoom1)
	m.Add(inRoom2)
	m.Add(outOfRoom)
	m.Add(excluded)

	m.Broadcast([]byte(`{"hi":1}`), BroadcastOptions{Room: "lobby", ExcludeID: excluded.ID}, nil)

	assert.NotNil(t, waitForWrite(raw1))
	assert.NotNil(t, waitForWrite(raw2))
	assert.Nil(t, raw3.lastWrite(), "connection outside the room must not receive the broadcast")
	assert.Nil(t, raw4.lastWrite(), "the excluded connection must not receive the broadcast")
}

func TestManager_Broadcast_SkipsClosedConnections(t *testing.T) {
	m := NewManager()
	open, rawOpen := newTestConnection("/chat")
	closed, rawClosed := newTestConnection("/chat")
	m.Add(open)
	m.Add(closed)
	closed.ForceClose()

	m.Broadcast([]byte(`{"x":1}`), BroadcastOptions{}, nil)

	assert.NotNil(t, waitForWrite(rawOpen))
	assert.Nil(t, rawClosed.lastWrite())
}

func TestDispatcher_HandleClose_OneBytePayloadIsProtocolError(t *testing.T) {
	conn, raw := newTestConnection("/chat")
	manager := NewManager()
	manager.Add(conn)
	handler := NewHandler("/chat")
	d := NewDispatcher(handler, manager)

	d.ProcessFrame(conn, Frame{Opcode: OpClose, Fin: true, Payload: []byte{0x03}})

	wire := waitForWrite(raw)
	require.NotNil(t, wire, "a close frame must be written back")

	parser := &FrameParser{}
	frames, err := parser.Feed(wire)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	require.GreaterOrEqual(t, len(frames[0].Payload), 2)

	code := int(binary.BigEndian.Uint16(frames[0].Payload[:2]))
	assert.Equal(t, int(CloseProtocolError), code)
}

func TestDispatcher_HandleClose_EmptyPayloadIsNormal(t *testing.T) {
	conn, raw := newTestConnection("/chat")
	manager := NewManager()
	manager.Add(conn)
	handler := NewHandler("/chat")
	d := NewDispatcher(handler, manager)

	d.ProcessFrame(conn, Frame{Opcode: OpClose, Fin: true})

	wire := waitForWrite(raw)
	require.NotNil(t, wire)

	parser := &FrameParser{}
	frames, err := parser.Feed(wire)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	code := int(binary.BigEndian.Uint16(frames[0].Payload[:2]))
	assert.Equal(t, int(CloseNormal), code)
}
