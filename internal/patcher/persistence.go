package patcher

import (
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

// cborEncMode mirrors the canonical encode mode fabric.values.go defines,
// kept package-local so patcher doesn't need to import fabric just for
// CBOR settings.
var cborEncMode = func() cbor.EncMode {
	opts := cbor.CanonicalEncOptions()
	mode, err := opts.EncMode()
	if err != nil {
		panic(err)
	}
	return mode
}()

// snapshot is the CBOR wire shape of a Patcher's persisted state: every
// patched instance plus its binding, if bound (spec §4.5 show file:
// "patch" section).
type snapshot struct {
	Instances map[uuid.UUID]*FixtureInstance `cbor:"instances"`
	Bindings  map[uuid.UUID]Binding          `cbor:"bindings"`
}

// refresher is implemented by output drivers (e.g. output.DMXDriver) that
// cache a snapshot of patcher state and need to be told to recompute it
// after a bulk restore bypasses their normal Create/Edit/Remove calls.
type refresher interface {
	Refresh()
}

// Save encodes every patched instance and binding as CBOR, implementing
// persistence.Savable for registration under the "patcher" plugin id.
func (p *Patcher) Save() ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s := snapshot{
		Instances: make(map[uuid.UUID]*FixtureInstance, len(p.instances)),
		Bindings:  make(map[uuid.UUID]Binding, len(p.bindings)),
	}
	for id, inst := range p.instances {
		cp := *inst
		s.Instances[id] = &cp
	}
	for id, b := range p.bindings {
		s.Bindings[id] = b
	}
	return cborEncMode.Marshal(s)
}

// Load replaces every patched instance and binding with the decoded
// snapshot, bypassing each driver's Create/Edit calls (those exist to let
// a driver refuse a *new* patch decision; a show-file load is restoring
// already-validated state, not making one). Drivers that cache derived
// state are given a chance to recompute it via the optional refresher
// interface, then patch_updated fires once per restored instance so the
// mixer rebuilds its base layer.
func (p *Patcher) Load(data []byte) error {
	var s snapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return err
	}

	p.mu.Lock()
	p.instances = make(map[uuid.UUID]*FixtureInstance, len(s.Instances))
	for id, inst := range s.Instances {
		p.instances[id] = inst
	}
	p.bindings = make(map[uuid.UUID]Binding, len(s.Bindings))
	for id, b := range s.Bindings {
		p.bindings[id] = b
	}
	drivers := make([]OutputDriver, 0, len(p.drivers))
	for _, d := range p.drivers {
		drivers = append(drivers, d)
	}
	p.mu.Unlock()

	for _, d := range drivers {
		if r, ok := d.(refresher); ok {
			r.Refresh()
		}
	}
	for id := range s.Instances {
		p.notifyPatchUpdated(id)
	}
	return nil
}
