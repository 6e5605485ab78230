package mixer

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/lumencore/lumencore/internal/fabric"
	"github.com/lumencore/lumencore/internal/patcher"
)

// EventSubmasterUpdated is emitted whenever a submaster's opacity is set to
// a nonzero value (spec §9 open question #2: the source only emits this
// when opacity > 0, so GUI listeners see activity notifications only for
// "on" layers; the render loop is poked on every opacity edit regardless,
// see SetLayerOpacity).
const EventSubmasterUpdated = "mixer.submaster_updated"

// SubmasterUpdated is the declared payload of EventSubmasterUpdated.
type SubmasterUpdated struct {
	LayerID uuid.UUID `json:"layer_id"`
}

// ErrLayerNotFound is returned when a submaster lookup misses.
type ErrLayerNotFound struct{ ID uuid.UUID }

func (e *ErrLayerNotFound) Error() string { return fmt.Sprintf("mixer: submaster %s not found", e.ID) }

// ErrNoFrozenContext is returned by blind-mode operations when no blind
// session is active.
var ErrNoFrozenContext = fmt.Errorf("mixer: no active blind context")

// Mixer holds the default and (optional) frozen mixing contexts and exposes
// the layer-stack operations spec §4.3 lists, each of which also doubles as
// a discoverable fabric service at the wiring layer (cmd/lumencored).
type Mixer struct {
	mu sync.RWMutex

	defaultCtx   *MixingContext
	frozenCtx    *MixingContext // nil iff not in blind mode
	blindOpacity uint16

	bus          *fabric.EventBus
	renderNotify chan struct{} // capacity 1, non-blocking poke
}

// NewMixer constructs a mixer with an empty default context, wired to bus
// for submaster-change notifications and poking the render loop via
// RenderNotifyChannel.
func NewMixer(bus *fabric.EventBus) *Mixer {
	fabric.Declare[SubmasterUpdated](bus, EventSubmasterUpdated)
	return &Mixer{
		defaultCtx:   NewMixingContext(),
		bus:          bus,
		renderNotify: make(chan struct{}, 1),
	}
}

// RenderNotifyChannel returns the channel the render loop blocks on between
// ticks; pokes are non-blocking and coalesce (capacity 1).
func (m *Mixer) RenderNotifyChannel() <-chan struct{} { return m.renderNotify }

func (m *Mixer) poke() {
	select {
	case m.renderNotify <- struct{}{}:
	default:
	}
}

// RequestBlend pokes the render loop without any state change — the
// discoverable request_blend service.
func (m *Mixer) RequestBlend() { m.poke() }

// CreateLayer adds a new, empty submaster to user_submasters (not yet in
// layer_order) and returns its id.
func (m *Mixer) CreateLayer(name string) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	m.defaultCtx.UserSubmasters[id] = NewStaticLayer(name)
	m.defaultCtx.UserSubmasterOrder = append(m.defaultCtx.UserSubmasterOrder, id)
	return id
}

// RenameLayer changes a submaster's display name.
func (m *Mixer) RenameLayer(id uuid.UUID, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	layer, ok := m.defaultCtx.UserSubmasters[id]
	if !ok {
		return &ErrLayerNotFound{ID: id}
	}
	layer.Name = name
	return nil
}

// DeleteLayer removes a submaster entirely: from user_submasters,
// user_submaster_order, layer_order and layer_opacities.
func (m *Mixer) DeleteLayer(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.defaultCtx.UserSubmasters[id]; !ok {
		return &ErrLayerNotFound{ID: id}
	}
	delete(m.defaultCtx.UserSubmasters, id)
	delete(m.defaultCtx.LayerOpacities, id)
	m.defaultCtx.UserSubmasterOrder = removeUUID(m.defaultCtx.UserSubmasterOrder, id)
	m.defaultCtx.LayerOrder = removeUUID(m.defaultCtx.LayerOrder, id)
	m.poke()
	return nil
}

func removeUUID(s []uuid.UUID, target uuid.UUID) []uuid.UUID {
	out := s[:0]
	for _, id := range s {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}

// SubmasterInfo is one entry of list_submasters_with_names.
type SubmasterInfo struct {
	ID   uuid.UUID
	Name string
}

// ListSubmasters returns every submaster id in user_submaster_order.
func (m *Mixer) ListSubmasters() []uuid.UUID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]uuid.UUID(nil), m.defaultCtx.UserSubmasterOrder...)
}

// ListSubmastersWithNames returns every submaster id paired with its
// current display name, in user_submaster_order.
func (m *Mixer) ListSubmastersWithNames() []SubmasterInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]SubmasterInfo, 0, len(m.defaultCtx.UserSubmasterOrder))
	for _, id := range m.defaultCtx.UserSubmasterOrder {
		if layer, ok := m.defaultCtx.UserSubmasters[id]; ok {
			out = append(out, SubmasterInfo{ID: id, Name: layer.Name})
		}
	}
	return out
}

// GetLayerContents returns a submaster's current values, or nil if it
// doesn't exist.
func (m *Mixer) GetLayerContents(id uuid.UUID) *StaticLayer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	layer, ok := m.defaultCtx.UserSubmasters[id]
	if !ok {
		return nil
	}
	return layer
}

// SetLayerContents merges delta into the submaster's values: per spec
// §4.3, for each attribute a `BlenderValue::None` removes the entry, any
// other variant overwrites, and a missing fixture key is created empty
// first.
func (m *Mixer) SetLayerContents(id uuid.UUID, delta map[uuid.UUID]map[string]BlenderValue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	layer, ok := m.defaultCtx.UserSubmasters[id]
	if !ok {
		return &ErrLayerNotFound{ID: id}
	}
	for fixture, attrs := range delta {
		existing, ok := layer.Values[fixture]
		if !ok {
			existing = make(map[string]BlenderValue)
			layer.Values[fixture] = existing
		}
		for attr, v := range attrs {
			if v.Kind == ValueNone {
				delete(existing, attr)
			} else {
				existing[attr] = v
			}
		}
		if len(existing) == 0 {
			delete(layer.Values, fixture)
		}
	}
	m.poke()
	return nil
}

// SetLayerOpacity writes a submaster's opacity. When autoInsert is true,
// opacity > 0 appends the layer to layer_order if absent, opacity == 0
// removes it (testable property 4: idempotent, leaves id out of
// layer_order). The render loop is poked unconditionally — spec §9 open
// question #2 resolves a 0-opacity edit to still force a tick — while the
// mixer.submaster_updated bus event fires only for opacity > 0, matching
// the source's narrower notification.
func (m *Mixer) SetLayerOpacity(id uuid.UUID, opacity uint16, autoInsert bool) error {
	m.mu.Lock()
	if _, ok := m.defaultCtx.UserSubmasters[id]; !ok {
		m.mu.Unlock()
		return &ErrLayerNotFound{ID: id}
	}
	current := m.defaultCtx.LayerOpacities[id]
	current.Opacity = opacity
	m.defaultCtx.LayerOpacities[id] = current

	if autoInsert {
		if opacity > 0 {
			if !containsUUID(m.defaultCtx.LayerOrder, id) {
				m.defaultCtx.LayerOrder = append(m.defaultCtx.LayerOrder, id)
			}
		} else {
			m.defaultCtx.LayerOrder = removeUUID(m.defaultCtx.LayerOrder, id)
		}
	}
	m.mu.Unlock()

	m.poke()
	if opacity > 0 {
		m.bus.EmitTyped(EventSubmasterUpdated, fabric.UUIDCriteria(id), SubmasterUpdated{LayerID: id})
	}
	return nil
}

func containsUUID(s []uuid.UUID, target uuid.UUID) bool {
	for _, id := range s {
		if id == target {
			return true
		}
	}
	return false
}

// EnterBlindMode clones default into frozen and resets blind opacity to 0,
// so the live output shows the `frozen` snapshot (blind_opacity < max) while
// further edits land in `default` unseen, until blind opacity is raised.
func (m *Mixer) EnterBlindMode() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frozenCtx = m.defaultCtx.Clone()
	m.blindOpacity = 0
	m.poke()
}

// SetBlindOpacity sets the crossfade between frozen and default output.
func (m *Mixer) SetBlindOpacity(opacity uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.frozenCtx == nil {
		return ErrNoFrozenContext
	}
	m.blindOpacity = opacity
	m.poke()
	return nil
}

// GetBlindOpacity returns the current blind opacity, ok=false iff no
// frozen context is active.
func (m *Mixer) GetBlindOpacity() (opacity uint16, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.frozenCtx == nil {
		return 0, false
	}
	return m.blindOpacity, true
}

// RevertBlind discards default and promotes frozen back in its place
// (testable property 5: restores default_context bit-identically when no
// edits were made to frozen in between).
func (m *Mixer) RevertBlind() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.frozenCtx == nil {
		return ErrNoFrozenContext
	}
	m.defaultCtx = m.frozenCtx
	m.frozenCtx = nil
	m.blindOpacity = 0
	m.poke()
	return nil
}

// CommitBlind discards frozen and keeps default as-is.
func (m *Mixer) CommitBlind() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.frozenCtx == nil {
		return ErrNoFrozenContext
	}
	m.frozenCtx = nil
	m.blindOpacity = 0
	m.poke()
	return nil
}

// ComputeBlend runs the blend pass under the mixer's read lock and returns
// before the caller ever touches the patcher — spec §5's locking
// discipline requires the mixer lock be released before write_values is
// called, so the render loop must not hold onto any value that aliases
// mixer-owned maps past this call.
func (m *Mixer) ComputeBlend(base patcher.FrameValues, meta patcher.BlendMeta) (patcher.FrameValues, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ctx := m.defaultCtx
	if m.frozenCtx != nil && m.blindOpacity < 0xFFFF {
		ctx = m.frozenCtx
	}
	return Blend(base, meta, ctx)
}

// cleanupContext drops stale (fixture, attribute) and whole-fixture entries
// from every submaster in ctx that no longer appear in the current base
// layer (spec §4.3 "Cleanup on patch change", testable property 2).
func cleanupContext(ctx *MixingContext, base map[uuid.UUID]map[string]uint16) {
	for _, layer := range ctx.UserSubmasters {
		for fixture, attrs := range layer.Values {
			baseAttrs, ok := base[fixture]
			if !ok {
				delete(layer.Values, fixture)
				continue
			}
			for attr := range attrs {
				if _, ok := baseAttrs[attr]; !ok {
					delete(attrs, attr)
				}
			}
			if len(attrs) == 0 {
				delete(layer.Values, fixture)
			}
		}
	}
}

// CleanupOnPatchChange applies cleanupContext to both the default and (if
// present) frozen contexts, called by the render loop whenever
// patcher.patch_updated fires.
func (m *Mixer) CleanupOnPatchChange(base map[uuid.UUID]map[string]uint16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cleanupContext(m.defaultCtx, base)
	if m.frozenCtx != nil {
		cleanupContext(m.frozenCtx, base)
	}
}
