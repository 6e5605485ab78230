package output

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/lumencore/lumencore/internal/fabric"
	"github.com/lumencore/lumencore/internal/patcher"
)

// EventDMXOutput is emitted once per universe on every SendUpdates call
// (criteria = universe id), "so inspectors may observe" (spec §4.4).
const EventDMXOutput = "dmx.output"

// DMXOutput is the declared payload of EventDMXOutput.
type DMXOutput struct {
	Universe uuid.UUID `json:"universe"`
	Data     []byte    `json:"data"`
}

// DMXDriver is the patcher.OutputDriver implementation backing every
// fixture type whose OutputDriver field names "dmx": it owns no transport
// itself, only the universe/offset binding lifecycle (delegated to the
// owning Patcher, spec §3) and the per-tick universe assembly and
// controller fan-out (spec §4.4).
type DMXDriver struct {
	patcherRef *patcher.Patcher
	registry   *UniverseRegistry
	bus        *fabric.EventBus

	mu       sync.RWMutex
	snapshot map[uuid.UUID]bindingEntry
	imports  map[uuid.UUID][]byte // opaque driver-side fixture import blobs
}

// NewDMXDriver constructs the DMX output driver. p is consulted for
// binding/personality data only outside the SendUpdates hot path (see
// assemble.go); registry holds the linked universes and controllers.
func NewDMXDriver(p *patcher.Patcher, registry *UniverseRegistry, bus *fabric.EventBus) *DMXDriver {
	fabric.Declare[DMXOutput](bus, EventDMXOutput)
	d := &DMXDriver{
		patcherRef: p,
		registry:   registry,
		bus:        bus,
		imports:    make(map[uuid.UUID][]byte),
	}
	d.refreshSnapshot()
	return d
}

// Refresh rebuilds the binding snapshot from the current patch state. The
// wiring layer (cmd/lumencored) calls this on every patch_updated event,
// keeping the driver's cache in step
// with the patch without it ever calling back into the patcher from inside
// SendUpdates.
func (d *DMXDriver) Refresh() { d.refreshSnapshot() }

func (d *DMXDriver) refreshSnapshot() {
	snapshot := buildBindingSnapshot(d.patcherRef)
	d.mu.Lock()
	d.snapshot = snapshot
	d.mu.Unlock()
}

func (d *DMXDriver) ID() string          { return "dmx" }
func (d *DMXDriver) Name() string        { return "DMX Output" }
func (d *DMXDriver) Description() string { return "Universe/offset-bound DMX output across registered transport controllers" }

// ImportFixture stores an opaque driver-side fixture-profile blob (e.g. a
// GDTF payload) against fixtureTypeID. The DMX driver has no protocol of
// its own to validate; it only needs the bytes available for later
// inspection/export, so any payload, empty included, is accepted.
func (d *DMXDriver) ImportFixture(fixtureTypeID uuid.UUID, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.imports[fixtureTypeID] = append([]byte(nil), data...)
	return nil
}

func bindingForm(current *patcher.Binding) patcher.Form {
	fields := []patcher.FormField{
		{ID: "universe", Label: "Universe", TypeName: "uuid", TypeHint: "universes", Description: "DMX universe to bind this fixture to"},
		{ID: "offset", Label: "Offset", TypeName: "u16", Description: "1-based starting DMX channel offset"},
	}
	form := patcher.Form{Fields: fields}
	if current != nil && current.Universe != nil && current.Offset != nil {
		form.CurrentValue = map[string]interface{}{
			"universe": current.Universe.String(),
			"offset":   *current.Offset,
		}
	}
	return form
}

// GetCreationForm returns the universe/offset binding fields every fixture
// type patched through the DMX driver shares, regardless of fixtureType.
func (d *DMXDriver) GetCreationForm(fixtureType uuid.UUID) (patcher.Form, error) {
	return bindingForm(nil), nil
}

// CreateFixtureInstance binds instanceID to the universe/offset named in
// formData. An empty/missing formData leaves the instance patched but
// unbound (spec §3: "a patched but unbound fixture contributes nothing to
// DMX output").
func (d *DMXDriver) CreateFixtureInstance(instanceID, fixtureType uuid.UUID, personality string, formData map[string]interface{}) error {
	universeID, offset, ok, err := parseBindingForm(formData)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	return d.patcherRef.Bind(instanceID, universeID, offset)
}

// GetEditForm returns the current binding, if any, for instanceID.
func (d *DMXDriver) GetEditForm(instanceID uuid.UUID) (patcher.Form, error) {
	binding, ok := d.patcherRef.GetBinding(instanceID)
	if !ok {
		return bindingForm(nil), nil
	}
	return bindingForm(&binding), nil
}

// EditFixtureInstance rebinds (or, if formData carries no binding,
// unbinds) instanceID.
func (d *DMXDriver) EditFixtureInstance(instanceID uuid.UUID, formData map[string]interface{}) error {
	universeID, offset, ok, err := parseBindingForm(formData)
	if err != nil {
		return err
	}
	if !ok {
		d.patcherRef.Unbind(instanceID)
		return nil
	}
	return d.patcherRef.Bind(instanceID, universeID, offset)
}

// RemoveFixtureInstance unbinds instanceID; the DMX driver never refuses a
// removal.
func (d *DMXDriver) RemoveFixtureInstance(instanceID uuid.UUID) error {
	d.patcherRef.Unbind(instanceID)
	return nil
}

func parseBindingForm(formData map[string]interface{}) (universeID uuid.UUID, offset uint16, ok bool, err error) {
	rawUniverse, hasUniverse := formData["universe"]
	rawOffset, hasOffset := formData["offset"]
	if !hasUniverse || !hasOffset {
		return uuid.UUID{}, 0, false, nil
	}
	universeStr, ok := rawUniverse.(string)
	if !ok {
		return uuid.UUID{}, 0, false, fmt.Errorf("output: form field %q must be a string", "universe")
	}
	universeID, err = uuid.Parse(universeStr)
	if err != nil {
		return uuid.UUID{}, 0, false, fmt.Errorf("output: form field %q: %w", "universe", err)
	}
	switch v := rawOffset.(type) {
	case float64:
		offset = uint16(v)
	case int:
		offset = uint16(v)
	case uint16:
		offset = v
	default:
		return uuid.UUID{}, 0, false, fmt.Errorf("output: form field %q has unsupported type %T", "offset", rawOffset)
	}
	return universeID, offset, true, nil
}

// SendUpdates is the hot path (spec §4.4): assemble one buffer per
// registered universe from the cached binding snapshot, emit dmx.output
// per universe, then group universes by controller and dispatch
// concurrently, awaiting all before returning.
func (d *DMXDriver) SendUpdates(frame patcher.FrameValues, finalFrame bool) error {
	d.mu.RLock()
	snapshot := d.snapshot
	d.mu.RUnlock()

	byController := d.registry.ByController()
	var allUniverses []uuid.UUID
	for _, ids := range byController {
		allUniverses = append(allUniverses, ids...)
	}

	frames := assembleUniverses(allUniverses, snapshot, frame)

	for universeID, buf := range frames {
		data := append([]byte(nil), buf[:]...)
		d.bus.EmitTyped(EventDMXOutput, fabric.UUIDCriteria(universeID), DMXOutput{Universe: universeID, Data: data})
	}

	var g errgroup.Group
	for controllerID, universeIDs := range byController {
		ctrl, ok := d.registry.Controller(controllerID)
		if !ok {
			continue
		}
		universeIDs := universeIDs
		sub := make(map[uuid.UUID]Universe512, len(universeIDs))
		for _, id := range universeIDs {
			sub[id] = frames[id]
		}
		g.Go(func() error {
			return ctrl.SendDMX(sub)
		})
	}
	return g.Wait()
}
