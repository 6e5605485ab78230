package output

import (
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lumencore/lumencore/pkg/logging"
)

// e131TickPeriod is the dispatch cadence spec §4.4 mandates ("every ~18ms
// copies the most-recent frame cache to wire").
const e131TickPeriod = 18 * time.Millisecond

// e131RootVector and friends are the ANSI E1.31-2016 PDU vectors. No sACN
// client library appears anywhere in the retrieved corpus, so this framing
// is hand-rolled over net.UDPConn + encoding/binary; see DESIGN.md for the
// standard-library justification this requires.
const (
	e131RootVector    = 0x00000004
	e131FramingVector = 0x00000002
	e131DMPVector     = 0x02
)

type e131UniverseState struct {
	number   uint16
	sequence byte
}

// E131Controller owns a long-running UDP dispatch loop that streams every
// registered universe's most recent frame to its sACN multicast group at
// e131TickPeriod, per spec §4.4.
type E131Controller struct {
	cid        [16]byte
	sourceName string

	mu        sync.Mutex
	conn      *net.UDPConn
	universes map[uuid.UUID]*e131UniverseState
	frames    map[uuid.UUID]Universe512

	shutdown chan struct{}
	done     chan struct{}
}

// NewE131Controller constructs the sACN controller and starts its dispatch
// loop. cid is a fixed 16-byte component identifier (spec §4.4 "a sACN
// source bound to a fixed component identifier"); sourceName is carried in
// every packet's framing layer.
func NewE131Controller(cid [16]byte, sourceName string) *E131Controller {
	c := &E131Controller{
		cid:        cid,
		sourceName: sourceName,
		universes:  make(map[uuid.UUID]*e131UniverseState),
		frames:     make(map[uuid.UUID]Universe512),
		shutdown:   make(chan struct{}),
		done:       make(chan struct{}),
	}
	go c.dispatchLoop()
	return c
}

func (c *E131Controller) ID() string { return "e131" }

// Register links universeID, reading its numeric sACN universe number
// (1..63999, spec §6 "DMX wire") from config["universe_number"].
func (c *E131Controller) Register(universeID uuid.UUID, config map[string]interface{}) error {
	number, err := e131UniverseNumber(config)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.universes[universeID] = &e131UniverseState{number: number}
	return nil
}

func e131UniverseNumber(config map[string]interface{}) (uint16, error) {
	raw, ok := config["universe_number"]
	if !ok {
		return 0, fmt.Errorf("output: e131 registration requires universe_number")
	}
	var n int
	switch v := raw.(type) {
	case float64:
		n = int(v)
	case int:
		n = v
	case uint16:
		n = int(v)
	default:
		return 0, fmt.Errorf("output: e131 universe_number has unsupported type %T", raw)
	}
	if n < 1 || n > 63999 {
		return 0, fmt.Errorf("output: e131 universe_number %d out of range [1,63999]", n)
	}
	return uint16(n), nil
}

// Unregister unlinks universeID. If the UDP source is open, the universe's
// stream is terminated with three packets carrying the Stream_Terminated
// option bit; the universe is then dropped from every later dispatch tick.
func (c *E131Controller) Unregister(universeID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if state, ok := c.universes[universeID]; ok && c.conn != nil {
		frame := c.frames[universeID]
		for i := 0; i < 3; i++ {
			state.sequence++
			data := buildE131Packet(c.cid, c.sourceName, 100, state.sequence, state.number, frame)
			data[112] = 0x40 // framing-layer options: Stream_Terminated
			if _, err := c.conn.WriteToUDP(data, e131MulticastAddr(state.number)); err != nil {
				logging.Error("e131: terminating universe %d: %v", state.number, err)
			}
		}
	}
	delete(c.universes, universeID)
	delete(c.frames, universeID)
}

// SendDMX updates the frame cache for every universe this controller
// currently owns; the dispatch loop reads the cache independently of this
// call (spec §5 "Driver internals... each a separate mutex").
func (c *E131Controller) SendDMX(frames map[uuid.UUID]Universe512) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id := range c.universes {
		if f, ok := frames[id]; ok {
			c.frames[id] = f
		}
	}
	return nil
}

// Close stops the dispatch loop and releases the UDP source, if open.
func (c *E131Controller) Close() {
	close(c.shutdown)
	<-c.done
}

func (c *E131Controller) dispatchLoop() {
	ticker := time.NewTicker(e131TickPeriod)
	defer ticker.Stop()
	defer close(c.done)
	for {
		select {
		case <-c.shutdown:
			c.closeConn()
			return
		case <-ticker.C:
			c.transmitTick()
		}
	}
}

// transmitTick instantiates the UDP source on first use and releases it
// once no universe remains registered (spec §4.4 "when no universes
// remain, it releases the source").
func (c *E131Controller) transmitTick() {
	c.mu.Lock()
	if len(c.universes) == 0 {
		conn := c.conn
		c.conn = nil
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	if c.conn == nil {
		conn, err := net.ListenUDP("udp4", &net.UDPAddr{})
		if err != nil {
			logging.Error("e131: opening UDP source: %v", err)
			c.mu.Unlock()
			return
		}
		c.conn = conn
	}

	type packet struct {
		addr *net.UDPAddr
		data []byte
	}
	var packets []packet
	for universeID, state := range c.universes {
		frame, ok := c.frames[universeID]
		if !ok {
			continue
		}
		state.sequence++
		data := buildE131Packet(c.cid, c.sourceName, 100, state.sequence, state.number, frame)
		packets = append(packets, packet{addr: e131MulticastAddr(state.number), data: data})
	}
	conn := c.conn
	c.mu.Unlock()

	for _, p := range packets {
		if _, err := conn.WriteToUDP(p.data, p.addr); err != nil {
			logging.Error("e131: sending to %s: %v", p.addr, err)
		}
	}
}

func (c *E131Controller) closeConn() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

// e131MulticastAddr is the ANSI E1.31 multicast address for a universe
// number: 239.255.<universe-hi>.<universe-lo>, port 5568.
func e131MulticastAddr(universe uint16) *net.UDPAddr {
	return &net.UDPAddr{
		IP:   net.IPv4(239, 255, byte(universe>>8), byte(universe)),
		Port: 5568,
	}
}

// buildE131Packet assembles one ANSI E1.31-2016 data packet: root layer
// (preamble/postamble/ACN identifier/vector/CID), framing layer (vector,
// source name, priority, sequence, universe), and DMP layer (a single
// SET PROPERTY spanning the DMX start code plus 512 channels). Every PDU's
// Flags&Length field is patched in after the buffer is fully built, so the
// layer sizes never have to be hand-computed.
func buildE131Packet(cid [16]byte, sourceName string, priority, sequence byte, universe uint16, dmx Universe512) []byte {
	buf := make([]byte, 0, 638)

	buf = append(buf, 0x00, 0x10) // preamble size
	buf = append(buf, 0x00, 0x00) // postamble size
	buf = append(buf, []byte("ASC-E1.17\x00\x00\x00")...)
	rootLenPos := len(buf)
	buf = append(buf, 0x00, 0x00) // root flags & length, patched below
	buf = appendUint32(buf, e131RootVector)
	buf = append(buf, cid[:]...)

	framingStart := len(buf)
	framingLenPos := len(buf)
	buf = append(buf, 0x00, 0x00) // framing flags & length, patched below
	buf = appendUint32(buf, e131FramingVector)
	name := make([]byte, 64)
	copy(name, sourceName)
	buf = append(buf, name...)
	buf = append(buf, priority)
	buf = append(buf, 0x00, 0x00) // synchronization address: unused
	buf = append(buf, sequence)
	buf = append(buf, 0x00) // options
	buf = append(buf, byte(universe>>8), byte(universe))

	dmpStart := len(buf)
	dmpLenPos := len(buf)
	buf = append(buf, 0x00, 0x00) // DMP flags & length, patched below
	buf = append(buf, e131DMPVector)
	buf = append(buf, 0xa1) // address type & data type
	buf = append(buf, 0x00, 0x00) // first property address
	buf = append(buf, 0x00, 0x01) // address increment
	buf = append(buf, 0x02, 0x01) // property value count: 513 (start code + 512 channels)
	buf = append(buf, 0x00)       // DMX start code
	buf = append(buf, dmx[:]...)

	totalLen := len(buf)
	putPDULen(buf, rootLenPos, totalLen-16)
	putPDULen(buf, framingLenPos, totalLen-framingStart)
	putPDULen(buf, dmpLenPos, totalLen-dmpStart)
	return buf
}

func appendUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

// putPDULen writes an ACN PDU's Flags&Length field: the top nibble is the
// fixed flag value 0x7 (length-and-vector-and-header), the low 12 bits are
// the PDU's length counted from this field to the end of the PDU.
func putPDULen(buf []byte, pos, length int) {
	binary.BigEndian.PutUint16(buf[pos:pos+2], 0x7000|uint16(length&0x0FFF))
}
