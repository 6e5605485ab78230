// Package mixer implements the blend layer stack and render loop: the
// mixing contexts (default/frozen), submasters, and the per-tick blend
// algorithm that turns layered edits into a final DMX-ready frame (spec
// §4.3). It is grounded on the teacher's channel-based signaling idiom
// (internal/core/app.go's eventChan, pkg/eventsourcing/eventbus.go's
// deltaChan) generalized from a chat UI refresh signal to a real-time
// render-loop wakeup.
package mixer

import "github.com/google/uuid"

// BlenderValueKind tags the three submaster cell variants spec §3 describes.
type BlenderValueKind int

const (
	ValueNone BlenderValueKind = iota
	ValueStatic
	ValueOffset
)

// BlenderValue is `None | Static(u16) | Offset(i32)`. None means transparent
// — the cell contributes nothing to the blend.
type BlenderValue struct {
	Kind   BlenderValueKind
	Static uint16
	Offset int32
}

// NoneValue is the transparent cell.
var NoneValue = BlenderValue{Kind: ValueNone}

// StaticValue constructs a Static(v) cell.
func StaticValue(v uint16) BlenderValue { return BlenderValue{Kind: ValueStatic, Static: v} }

// OffsetValue constructs an Offset(v) cell.
func OffsetValue(v int32) BlenderValue { return BlenderValue{Kind: ValueOffset, Offset: v} }

// StaticLayer is a submaster: a named, sparse grid of per-(fixture,
// attribute) BlenderValues.
//
// Animated exists so the blend pass's "mark tick as animated" rule (spec
// §4.3) has somewhere to read from; cue/effects scheduling that would ever
// set it true is an explicit Non-goal here, so it is always false in this
// implementation — the render loop's animated-tick branch is exercised by
// tests but never taken in practice until a future effects engine sets it.
type StaticLayer struct {
	Name     string
	Animated bool
	Values   map[uuid.UUID]map[string]BlenderValue
}

// NewStaticLayer constructs an empty, named submaster.
func NewStaticLayer(name string) *StaticLayer {
	return &StaticLayer{Name: name, Values: make(map[uuid.UUID]map[string]BlenderValue)}
}

// LayerOpacity is a submaster's position in the active stack: its own
// opacity plus an optional flash override.
type LayerOpacity struct {
	Opacity      uint16
	FlashOpacity *uint16
}

// EffectiveOpacity returns FlashOpacity if set, else Opacity — the value the
// blend pass actually uses for this tick.
func (o LayerOpacity) EffectiveOpacity() uint16 {
	if o.FlashOpacity != nil {
		return *o.FlashOpacity
	}
	return o.Opacity
}

// MixingContext is one of the two parallel contexts spec §3 describes:
// `default` (live edits) or `frozen` (the blind-mode snapshot).
type MixingContext struct {
	LayerOrder         []uuid.UUID
	LayerOpacities     map[uuid.UUID]LayerOpacity
	UserSubmasterOrder []uuid.UUID
	UserSubmasters     map[uuid.UUID]*StaticLayer
}

// NewMixingContext constructs an empty context.
func NewMixingContext() *MixingContext {
	return &MixingContext{
		LayerOpacities: make(map[uuid.UUID]LayerOpacity),
		UserSubmasters: make(map[uuid.UUID]*StaticLayer),
	}
}

// Clone deep-copies a context, used by enter_blind_mode (snapshot into
// frozen) and by restoring default from frozen on revert_blind.
func (c *MixingContext) Clone() *MixingContext {
	out := &MixingContext{
		LayerOrder:         append([]uuid.UUID(nil), c.LayerOrder...),
		LayerOpacities:      make(map[uuid.UUID]LayerOpacity, len(c.LayerOpacities)),
		UserSubmasterOrder: append([]uuid.UUID(nil), c.UserSubmasterOrder...),
		UserSubmasters:     make(map[uuid.UUID]*StaticLayer, len(c.UserSubmasters)),
	}
	for id, op := range c.LayerOpacities {
		out.LayerOpacities[id] = op
	}
	for id, layer := range c.UserSubmasters {
		values := make(map[uuid.UUID]map[string]BlenderValue, len(layer.Values))
		for fixture, attrs := range layer.Values {
			cp := make(map[string]BlenderValue, len(attrs))
			for k, v := range attrs {
				cp[k] = v
			}
			values[fixture] = cp
		}
		out.UserSubmasters[id] = &StaticLayer{Name: layer.Name, Values: values}
	}
	return out
}

// Equal reports whether two contexts are bit-identical in content
// (ignoring map/slice ordering beyond what LayerOrder/UserSubmasterOrder
// already fix), used by tests asserting enter_blind_mode + revert_blind
// round-trips exactly (spec testable property 5).
func (c *MixingContext) Equal(other *MixingContext) bool {
	if len(c.LayerOrder) != len(other.LayerOrder) {
		return false
	}
	for i := range c.LayerOrder {
		if c.LayerOrder[i] != other.LayerOrder[i] {
			return false
		}
	}
	if len(c.UserSubmasterOrder) != len(other.UserSubmasterOrder) {
		return false
	}
	for i := range c.UserSubmasterOrder {
		if c.UserSubmasterOrder[i] != other.UserSubmasterOrder[i] {
			return false
		}
	}
	if len(c.LayerOpacities) != len(other.LayerOpacities) {
		return false
	}
	for id, op := range c.LayerOpacities {
		oop, ok := other.LayerOpacities[id]
		if !ok || op != oop {
			return false
		}
	}
	if len(c.UserSubmasters) != len(other.UserSubmasters) {
		return false
	}
	for id, layer := range c.UserSubmasters {
		olayer, ok := other.UserSubmasters[id]
		if !ok || layer.Name != olayer.Name || len(layer.Values) != len(olayer.Values) {
			return false
		}
		for fixture, attrs := range layer.Values {
			oattrs, ok := olayer.Values[fixture]
			if !ok || len(attrs) != len(oattrs) {
				return false
			}
			for k, v := range attrs {
				if oattrs[k] != v {
					return false
				}
			}
		}
	}
	return true
}
