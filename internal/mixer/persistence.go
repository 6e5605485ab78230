package mixer

import (
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

// cborEncMode mirrors the canonical encode mode fabric.values.go defines,
// kept package-local so mixer doesn't need to import fabric just for CBOR
// settings.
var cborEncMode = func() cbor.EncMode {
	opts := cbor.CanonicalEncOptions()
	mode, err := opts.EncMode()
	if err != nil {
		panic(err)
	}
	return mode
}()

// snapshot is the CBOR wire shape of a Mixer's persisted state: the
// default context's submasters/order/opacities (the frozen context is
// transient blind-mode scratch space and is never saved, matching spec
// §4.5's "only the default context round-trips through a show file").
type snapshot struct {
	LayerOrder         []uuid.UUID                 `cbor:"layer_order"`
	LayerOpacities     map[uuid.UUID]LayerOpacity  `cbor:"layer_opacities"`
	UserSubmasterOrder []uuid.UUID                 `cbor:"user_submaster_order"`
	UserSubmasters     map[uuid.UUID]snapshotLayer `cbor:"user_submasters"`
}

type snapshotLayer struct {
	Name   string                                `cbor:"name"`
	Values map[uuid.UUID]map[string]BlenderValue `cbor:"values"`
}

// Save encodes the default mixing context as CBOR, implementing
// persistence.Savable for registration under the "mixer" plugin id.
func (m *Mixer) Save() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := snapshot{
		LayerOrder:         append([]uuid.UUID(nil), m.defaultCtx.LayerOrder...),
		LayerOpacities:     make(map[uuid.UUID]LayerOpacity, len(m.defaultCtx.LayerOpacities)),
		UserSubmasterOrder: append([]uuid.UUID(nil), m.defaultCtx.UserSubmasterOrder...),
		UserSubmasters:     make(map[uuid.UUID]snapshotLayer, len(m.defaultCtx.UserSubmasters)),
	}
	for id, op := range m.defaultCtx.LayerOpacities {
		s.LayerOpacities[id] = op
	}
	for id, layer := range m.defaultCtx.UserSubmasters {
		s.UserSubmasters[id] = snapshotLayer{Name: layer.Name, Values: layer.Values}
	}
	return cborEncMode.Marshal(s)
}

// Load replaces the default mixing context with the decoded snapshot.
// Blind mode, if active, is left untouched: loading a show mid-blind would
// otherwise silently discard the operator's in-progress frozen edits.
func (m *Mixer) Load(data []byte) error {
	var s snapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return err
	}

	ctx := NewMixingContext()
	ctx.LayerOrder = s.LayerOrder
	ctx.UserSubmasterOrder = s.UserSubmasterOrder
	for id, op := range s.LayerOpacities {
		ctx.LayerOpacities[id] = op
	}
	for id, layer := range s.UserSubmasters {
		ctx.UserSubmasters[id] = &StaticLayer{Name: layer.Name, Values: layer.Values}
	}

	m.mu.Lock()
	m.defaultCtx = ctx
	m.mu.Unlock()
	m.poke()
	return nil
}
