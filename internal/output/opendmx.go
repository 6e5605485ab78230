package output

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.bug.st/serial"

	"github.com/lumencore/lumencore/pkg/logging"
)

// openDMXWritePeriod is the per-frame cadence on the wire; USB-to-DMX
// interfaces like the Enttec Open DMX USB run well under the ~44Hz a
// physical DMX512 break/MAB cycle allows.
const openDMXWritePeriod = 2 * time.Millisecond

// openDMXReconnectBackoff is how long the render thread waits after a
// failed open or write before retrying the port.
const openDMXReconnectBackoff = 2 * time.Second

// OpenDMXController drives a single USB-to-DMX512 interface over a serial
// port, via go.bug.st/serial (no termios/ioctl handling of our own; that
// library already wraps the platform-specific line discipline this needs).
// It honors spec §4.4's OpenDMX constraint: a single implicit universe,
// enforced at Register.
type OpenDMXController struct {
	portName string
	mode     *serial.Mode

	mu       sync.Mutex
	universe *uuid.UUID
	frame    Universe512
	hasFrame bool

	shutdown chan struct{}
	done     chan struct{}
}

// NewOpenDMXController opens portName (e.g. "/dev/ttyUSB0") on a dedicated
// render thread and returns immediately; connection failures are logged and
// retried rather than returned, since the port may not be plugged in yet at
// startup.
func NewOpenDMXController(portName string) *OpenDMXController {
	c := &OpenDMXController{
		portName: portName,
		mode:     &serial.Mode{BaudRate: 250000, DataBits: 8, Parity: serial.NoParity, StopBits: serial.TwoStopBits},
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
	go c.renderThread()
	return c
}

func (c *OpenDMXController) ID() string { return "opendmx" }

// Register accepts universeID as this controller's sole universe; a second
// concurrent registration is refused (spec §4.4 "a single implicit
// universe").
func (c *OpenDMXController) Register(universeID uuid.UUID, config map[string]interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.universe != nil && *c.universe != universeID {
		return fmt.Errorf("output: opendmx controller %q already owns a universe", c.portName)
	}
	id := universeID
	c.universe = &id
	return nil
}

func (c *OpenDMXController) Unregister(universeID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.universe != nil && *c.universe == universeID {
		c.universe = nil
		c.hasFrame = false
	}
}

// SendDMX caches frames[universe] for the render thread; it never blocks on
// I/O itself.
func (c *OpenDMXController) SendDMX(frames map[uuid.UUID]Universe512) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.universe == nil {
		return nil
	}
	f, ok := frames[*c.universe]
	if !ok {
		return nil
	}
	c.frame = f
	c.hasFrame = true
	return nil
}

// Close stops the render thread and releases the serial port.
func (c *OpenDMXController) Close() {
	close(c.shutdown)
	<-c.done
}

// renderThread owns the serial port exclusively. It runs on a locked OS
// thread because repeated break/make-after-break framing on some USB-serial
// drivers is sensitive to scheduler preemption between writes.
func (c *OpenDMXController) renderThread() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(c.done)

	var port serial.Port
	defer func() {
		if port != nil {
			port.Close()
		}
	}()

	ticker := time.NewTicker(openDMXWritePeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.shutdown:
			return
		case <-ticker.C:
		}

		if port == nil {
			p, err := serial.Open(c.portName, c.mode)
			if err != nil {
				logging.Error("opendmx: opening %s: %v", c.portName, err)
				select {
				case <-c.shutdown:
					return
				case <-time.After(openDMXReconnectBackoff):
				}
				continue
			}
			port = p
		}

		c.mu.Lock()
		hasFrame := c.hasFrame
		frame := c.frame
		c.mu.Unlock()
		if !hasFrame {
			continue
		}

		if err := writeDMXFrame(port, frame); err != nil {
			logging.Error("opendmx: writing %s: %v", c.portName, err)
			port.Close()
			port = nil
			select {
			case <-c.shutdown:
				return
			case <-time.After(openDMXReconnectBackoff):
			}
		}
	}
}

// buildDMXFrame prepends the DMX start code to a universe's 512 channel
// bytes, the on-wire payload a write() call sends in full each frame.
func buildDMXFrame(frame Universe512) []byte {
	buf := make([]byte, 0, 513)
	buf = append(buf, 0x00) // DMX start code
	buf = append(buf, frame[:]...)
	return buf
}

// writeDMXFrame sends buildDMXFrame's payload. The line's break/
// mark-after-break is produced by the platform serial driver's framing at
// the configured baud/stop-bit combination; no additional signaling is
// issued here.
func writeDMXFrame(port serial.Port, frame Universe512) error {
	_, err := port.Write(buildDMXFrame(frame))
	return err
}
