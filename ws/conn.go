package ws

import (
	"encoding/binary"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RawConn is the hijacked transport a Connection writes wire frames to. The
// host adapter supplies the real net.Conn; tests can supply anything
// satisfying this two-method interface.
type RawConn interface {
	Write(b []byte) (int, error)
	Close() error
}

type writeTask struct {
	data []byte
	done chan error
}

// Connection is the spec's data model "K": identity, room membership,
// metadata, negotiated extensions, fragment-reassembly state, a
// backpressure-respecting write queue, and the heartbeat/inactivity timers.
// All exported methods are safe for concurrent use; the write queue's
// single drain goroutine is what gives send() its in-order guarantee.
type Connection struct {
	ID          string
	Path        string
	Subprotocol string

	mu       sync.Mutex
	raw      RawConn
	open     bool
	rooms    map[string]bool
	metadata map[string]interface{}
	deflate  *DeflateCodec

	fragActive     bool
	fragOpcode     byte
	fragChunks     [][]byte
	fragCompressed bool

	missedPong int

	writeCh      chan writeTask
	writeDone    chan struct{}
	heartbeatStop chan struct{}
	inactivity   *time.Timer

	closeOnce sync.Once
}

// NewConnection wraps raw with the connection bookkeeping and starts its
// write-drain goroutine.
func NewConnection(path string, raw RawConn, subprotocol string, deflate *DeflateCodec) *Connection {
	c := &Connection{
		ID:          uuid.NewString(),
		Path:        path,
		Subprotocol: subprotocol,
		raw:         raw,
		open:        true,
		rooms:       map[string]bool{},
		metadata:    map[string]interface{}{},
		deflate:     deflate,
		writeCh:     make(chan writeTask, 256),
		writeDone:   make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

func (c *Connection) writeLoop() {
	defer close(c.writeDone)
	for task := range c.writeCh {
		_, err := c.raw.Write(task.data)
		if task.done != nil {
			task.done <- err
		}
	}
}

var errConnectionClosed = errors.New("ws: connection closed")

// enqueueWrite blocks until the task is accepted by the write goroutine
// (the channel's buffer is the backpressure signal: a full buffer makes the
// caller wait for the previous writes to drain before issuing the next).
func (c *Connection) enqueueWrite(frame []byte) (err error) {
	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return errConnectionClosed
	}
	ch := c.writeCh
	c.mu.Unlock()

	// ForceClose may close ch between the open check above and the send.
	defer func() {
		if recover() != nil {
			err = errConnectionClosed
		}
	}()
	done := make(chan error, 1)
	ch <- writeTask{data: frame, done: done}
	return <-done
}

// Open reports whether the connection is still in the manager's live set.
func (c *Connection) Open() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *Connection) JoinRoom(room string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rooms[room] = true
}

func (c *Connection) LeaveRoom(room string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rooms, room)
}

func (c *Connection) InRoom(room string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rooms[room]
}

func (c *Connection) SetMetadata(key string, v interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metadata[key] = v
}

func (c *Connection) Metadata(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.metadata[key]
	return v, ok
}

// Send emits data (already encoded by the caller) as a single text frame,
// deflating it if negotiated (setting rsv1) (§4.13).
func (c *Connection) Send(data []byte) error {
	return c.sendFrame(OpText, data)
}

// SendBinary emits data as a single binary frame, deflating if negotiated.
func (c *Connection) SendBinary(data []byte) error {
	return c.sendFrame(OpBinary, data)
}

func (c *Connection) sendFrame(opcode byte, payload []byte) error {
	rsv1 := false
	out := payload
	if c.deflate != nil {
		compressed, err := c.deflate.Compress(payload)
		if err != nil {
			return err
		}
		out = compressed
		rsv1 = true
	}
	return c.enqueueWrite(EncodeFrame(opcode, true, rsv1, out))
}

// Ping emits a control frame (opcode 0x09). Control frame payloads are never
// compressed and must be ≤125 bytes.
func (c *Connection) Ping(payload []byte) error {
	if len(payload) > 125 {
		return errors.New("ws: ping payload exceeds 125 bytes")
	}
	return c.enqueueWrite(EncodeFrame(OpPing, true, false, payload))
}

// Pong emits a control frame (opcode 0x0A), subject to the same size limit.
func (c *Connection) Pong(payload []byte) error {
	if len(payload) > 125 {
		return errors.New("ws: pong payload exceeds 125 bytes")
	}
	return c.enqueueWrite(EncodeFrame(OpPong, true, false, payload))
}

// Close sends a close frame and schedules the underlying socket's teardown:
// a 2-second watchdog if we initiated the close, a short grace period if the
// client did (§4.13).
func (c *Connection) Close(code CloseCode, reason string, initiatedByClient bool) error {
	payload := make([]byte, 2+len(reason))
	binary.BigEndian.PutUint16(payload, uint16(code))
	copy(payload[2:], reason)
	err := c.enqueueWrite(EncodeFrame(OpClose, true, false, payload))

	grace := 2 * time.Second
	if initiatedByClient {
		grace = 200 * time.Millisecond
	}
	time.AfterFunc(grace, c.ForceClose)
	return err
}

// ForceClose tears down the socket immediately, skipping the close
// handshake. Safe to call multiple times.
func (c *Connection) ForceClose() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.open = false
		c.StopTimers()
		ch := c.writeCh
		c.mu.Unlock()
		close(ch)
		if c.deflate != nil {
			c.deflate.Destroy()
		}
		_ = c.raw.Close()
	})
}

// StartHeartbeat pings every interval. Each tick adds one to the missed-pong
// counter (reset by any received pong or ping); the tick that brings it to
// three closes the connection with code 1000 "No pong received" instead of
// pinging, i.e. after two unanswered pings (§4.13). Call under no
// lock; it starts its own goroutine.
func (c *Connection) StartHeartbeat(interval time.Duration, onTimeout func()) {
	if interval <= 0 {
		return
	}
	c.mu.Lock()
	c.heartbeatStop = make(chan struct{})
	stop := c.heartbeatStop
	c.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.mu.Lock()
				c.missedPong++
				missed := c.missedPong
				c.mu.Unlock()
				if missed >= 3 {
					c.Close(CloseNormal, "No pong received", false)
					if onTimeout != nil {
						onTimeout()
					}
					return
				}
				_ = c.Ping(nil)
			case <-stop:
				return
			}
		}
	}()
}

func (c *Connection) ResetMissedPong() {
	c.mu.Lock()
	c.missedPong = 0
	c.mu.Unlock()
}

// StartInactivity arms a one-shot timer that closes the connection with
// code 1000 "Inactivity timeout" if not reset before it fires.
func (c *Connection) StartInactivity(timeout time.Duration, onTimeout func()) {
	if timeout <= 0 {
		return
	}
	c.mu.Lock()
	c.inactivity = time.AfterFunc(timeout, func() {
		c.Close(CloseNormal, "Inactivity timeout", false)
		if onTimeout != nil {
			onTimeout()
		}
	})
	c.mu.Unlock()
}

func (c *Connection) ResetInactivity(timeout time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inactivity != nil {
		c.inactivity.Reset(timeout)
	}
}

// StopTimers stops both timers before the socket is released, avoiding
// spurious callbacks after close (§9 design note). Must be called with c.mu
// held (it is only called from ForceClose).
func (c *Connection) StopTimers() {
	if c.inactivity != nil {
		c.inactivity.Stop()
	}
	if c.heartbeatStop != nil {
		select {
		case <-c.heartbeatStop:
		default:
			close(c.heartbeatStop)
		}
	}
}

// beginFragment / appendFragment / finishFragment implement the fragment
// buffer invariant from the Data Model: non-empty iff the previous frame had
// fin=false.
func (c *Connection) beginFragment(opcode byte, payload []byte) {
	c.fragActive = true
	c.fragOpcode = opcode
	c.fragChunks = [][]byte{payload}
}

func (c *Connection) appendFragment(payload []byte) {
	c.fragChunks = append(c.fragChunks, payload)
}

func (c *Connection) finishFragment() (byte, []byte) {
	opcode := c.fragOpcode
	total := 0
	for _, chunk := range c.fragChunks {
		total += len(chunk)
	}
	out := make([]byte, 0, total)
	for _, chunk := range c.fragChunks {
		out = append(out, chunk...)
	}
	c.fragActive = false
	c.fragChunks = nil
	return opcode, out
}

// BroadcastOptions narrows a Manager.Broadcast to a room and/or excludes one
// connection (typically the sender).
type BroadcastOptions struct {
	ExcludeID string
	Room      string
}

// Manager is the spec's data model "M": one per WS handler, owning the
// id→connection map. Add/Remove/Get are safe for concurrent use; Broadcast
// takes a snapshot under the lock and calls Send outside it, per §9's "don't
// call user code holding the lock".
type Manager struct {
	mu    sync.RWMutex
	conns map[string]*Connection
}

func NewManager() *Manager {
	return &Manager{conns: map[string]*Connection{}}
}

func (m *Manager) Add(c *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conns[c.ID] = c
}

func (m *Manager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.conns, id)
}

func (m *Manager) Get(id string) (*Connection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.conns[id]
	return c, ok
}

func (m *Manager) GetAll() []*Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Connection, 0, len(m.conns))
	for _, c := range m.conns {
		out = append(out, c)
	}
	return out
}

func (m *Manager) GetByRoom(room string) []*Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Connection
	for _, c := range m.conns {
		if c.InRoom(room) {
			out = append(out, c)
		}
	}
	return out
}

// Broadcast delivers data (already-encoded, e.g. from json.Marshal) to
// exactly {c | c.open ∧ (room? ⇒ c ∈ room) ∧ c.id ≠ excludeId?} as of the
// snapshot taken at invocation time (spec.md §8's broadcast-set property).
// Send failures are logged by the caller (Manager has no logger of its own)
// and never abort the broadcast.
func (m *Manager) Broadcast(data []byte, opts BroadcastOptions, onSendError func(id string, err error)) {
	m.mu.RLock()
	snapshot := make([]*Connection, 0, len(m.conns))
	for _, c := range m.conns {
		snapshot = append(snapshot, c)
	}
	m.mu.RUnlock()

	for _, c := range snapshot {
		if !c.Open() {
			continue
		}
		if opts.ExcludeID != "" && c.ID == opts.ExcludeID {
			continue
		}
		if opts.Room != "" && !c.InRoom(opts.Room) {
			continue
		}
		if err := c.Send(data); err != nil && onSendError != nil {
			onSendError(c.ID, err)
		}
	}
}
