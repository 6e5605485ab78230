package output

import (
	"sync"

	"github.com/google/uuid"
)

// NullController is a registrable Controller that records the last frame
// set it received instead of sending anything over a wire. It exists so
// integration tests can assert on final frames without a real transport
// (spec §9 design notes: a no-op driver mirroring
// original_source/simplydmx_backend/src/plugins/output_dmx/interface.rs's
// own registry of test doubles).
type NullController struct {
	idOverride string
	mu         sync.Mutex
	registered map[uuid.UUID]bool
	last       map[uuid.UUID]Universe512
	calls      int
}

// NewNullController constructs an empty inspection controller.
func NewNullController() *NullController {
	return &NullController{
		registered: make(map[uuid.UUID]bool),
		last:       make(map[uuid.UUID]Universe512),
	}
}

func (c *NullController) ID() string {
	if c.idOverride != "" {
		return c.idOverride
	}
	return "null"
}

func (c *NullController) Register(universeID uuid.UUID, config map[string]interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registered[universeID] = true
	return nil
}

func (c *NullController) Unregister(universeID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.registered, universeID)
	delete(c.last, universeID)
}

func (c *NullController) SendDMX(frames map[uuid.UUID]Universe512) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	for id, f := range frames {
		c.last[id] = f
	}
	return nil
}

// LastFrame returns the most recently received frame for universeID.
func (c *NullController) LastFrame(universeID uuid.UUID) (Universe512, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.last[universeID]
	return f, ok
}

// Calls returns how many times SendDMX has been invoked.
func (c *NullController) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}
