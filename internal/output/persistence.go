package output

import (
	"encoding/json"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/lumencore/lumencore/pkg/logging"
)

// cborEncMode mirrors the canonical encode mode fabric.values.go defines,
// kept package-local so output doesn't need to import fabric just for CBOR
// settings.
var cborEncMode = func() cbor.EncMode {
	opts := cbor.CanonicalEncOptions()
	mode, err := opts.EncMode()
	if err != nil {
		panic(err)
	}
	return mode
}()

type snapshotUniverse struct {
	ID                 uuid.UUID `cbor:"id"`
	Name               string    `cbor:"name"`
	ControllerDriverID *string   `cbor:"controller_driver_id,omitempty"`

	// Config is the link config's JSON encoding, not its native Go map:
	// cbor's generic map[string]interface{} round-trip loses numeric
	// precision distinctions (e.g. int vs float64) controllers like
	// e131UniverseNumber care about, where JSON's own decoder already
	// normalizes that the same way config arrives over the wire from the
	// JSON-RPC link_universe call in the first place.
	Config json.RawMessage `cbor:"config,omitempty"`
}

type snapshot struct {
	Universes []snapshotUniverse `cbor:"universes"`
}

// Save encodes every universe (name, controller link, link config) as
// CBOR, implementing persistence.Savable for registration under the
// "output" plugin id. Registered Controllers themselves hold no
// persisted state of their own: they are recreated fresh at startup from
// process configuration, then relinked by Load.
func (r *UniverseRegistry) Save() ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := snapshot{Universes: make([]snapshotUniverse, 0, len(r.universes))}
	for id, u := range r.universes {
		su := snapshotUniverse{ID: id, Name: u.Name, ControllerDriverID: u.ControllerDriverID}
		if cfg := r.linkConfig[id]; cfg != nil {
			data, err := json.Marshal(cfg)
			if err != nil {
				return nil, err
			}
			su.Config = data
		}
		s.Universes = append(s.Universes, su)
	}
	return cborEncMode.Marshal(s)
}

// Load recreates every universe and, for each that was linked, replays
// Link against whichever controller is registered this run. A universe
// whose controller isn't registered (e.g. the show file names "e131" but
// this process only started OpenDMX) is restored unlinked and logged,
// rather than failing the whole load.
func (r *UniverseRegistry) Load(data []byte) error {
	var s snapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return err
	}

	r.mu.Lock()
	r.universes = make(map[uuid.UUID]*UniverseInstance, len(s.Universes))
	r.linkConfig = make(map[uuid.UUID]map[string]interface{}, len(s.Universes))
	for _, su := range s.Universes {
		r.universes[su.ID] = &UniverseInstance{ID: su.ID, Name: su.Name}
	}
	r.mu.Unlock()

	for _, su := range s.Universes {
		if su.ControllerDriverID == nil {
			continue
		}
		var config map[string]interface{}
		if len(su.Config) > 0 {
			if err := json.Unmarshal(su.Config, &config); err != nil {
				return err
			}
		}
		if err := r.Link(su.ID, *su.ControllerDriverID, config); err != nil {
			logging.Error("output: relinking universe %s to %q on load: %v", su.ID, *su.ControllerDriverID, err)
		}
	}
	return nil
}
