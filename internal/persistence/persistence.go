// Package persistence implements the show file container described in
// spec.md §4.5/§6: a single CBOR-encoded map from plugin id to opaque
// per-plugin bytes, with each savable component owning its own slice. It
// generalizes the teacher's adapter/store package (sqlite-backed event
// persistence) to a flat, whole-show snapshot rather than an event log,
// since the domain has no append-only history to replay.
package persistence

import (
	"fmt"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"github.com/lumencore/lumencore/pkg/logging"
)

// Savable is implemented by any component that owns a slice of show state.
// Save returns nil to mean "nothing to persist"; Load receives exactly the
// bytes this component last returned from Save (never another plugin's).
type Savable interface {
	Save() ([]byte, error)
	Load(data []byte) error
}

// Container is the show file's wire shape: plugin id to opaque bytes.
type Container struct {
	PluginData map[string][]byte `cbor:"plugin_data"`
}

var cborEncMode = func() cbor.EncMode {
	opts := cbor.CanonicalEncOptions()
	mode, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("persistence: building cbor encode mode: %v", err))
	}
	return mode
}()

// Store coordinates every registered Savable against one show file path. It
// generalizes the teacher's ConnectDB/WriteEvent pairing into a registry of
// named save/load handles rather than a single table.
type Store struct {
	mu       sync.Mutex
	savables map[string]Savable

	// unrecognized holds slices present in the last loaded container whose
	// plugin id had no registered Savable at finish_initialization time —
	// spec §4.5 "finished-unsafe".
	unrecognized   map[string][]byte
	finishedUnsafe bool
}

// NewStore constructs an empty persistence coordinator.
func NewStore() *Store {
	return &Store{
		savables:     make(map[string]Savable),
		unrecognized: make(map[string][]byte),
	}
}

// Register adds s under pluginID. A later Load call delivers pluginID's
// slice (if present in the loaded container) to s.Load.
func (st *Store) Register(pluginID string, s Savable) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.savables[pluginID] = s
}

// Load decodes a show file container and dispatches each slice to its
// registered Savable. Slices naming an unregistered plugin id are retained
// in unrecognized and mark the load finished-unsafe rather than erroring —
// callers still in their init phase may yet register the missing plugin
// before FinishInitialization is called.
func (st *Store) Load(data []byte) error {
	var container Container
	if err := cbor.Unmarshal(data, &container); err != nil {
		return fmt.Errorf("persistence: decoding show file: %w", err)
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	for pluginID, blob := range container.PluginData {
		s, ok := st.savables[pluginID]
		if !ok {
			st.unrecognized[pluginID] = blob
			continue
		}
		if err := s.Load(blob); err != nil {
			return fmt.Errorf("persistence: plugin %q rejected its saved data: %w", pluginID, err)
		}
	}
	return nil
}

// FinishInitialization marks the end of the init phase. Any slice still
// unrecognized at this point permanently marks the store finished-unsafe:
// spec §4.5 says the application is expected to refuse further saves to
// avoid silently discarding that plugin's state on the next save_show.
func (st *Store) FinishInitialization() {
	st.mu.Lock()
	defer st.mu.Unlock()
	for pluginID := range st.unrecognized {
		if _, ok := st.savables[pluginID]; ok {
			delete(st.unrecognized, pluginID)
			continue
		}
		logging.Error("persistence: show file named unrecognized plugin %q at finish_initialization; further saves refused", pluginID)
		st.finishedUnsafe = true
	}
}

// FinishedUnsafe reports whether the last load left unrecognized data
// behind. SaveShow still assembles a container for inspection, but callers
// should not write it to disk while this is true.
func (st *Store) FinishedUnsafe() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.finishedUnsafe
}

// SaveShow aggregates every registered Savable's current bytes into a fresh
// CBOR-encoded container (spec §4.5 "save_show() aggregates each plugin's
// current bytes into a fresh container").
func (st *Store) SaveShow() ([]byte, error) {
	st.mu.Lock()
	savables := make(map[string]Savable, len(st.savables))
	for id, s := range st.savables {
		savables[id] = s
	}
	st.mu.Unlock()

	container := Container{PluginData: make(map[string][]byte, len(savables))}
	for id, s := range savables {
		blob, err := s.Save()
		if err != nil {
			return nil, fmt.Errorf("persistence: plugin %q failed to save: %w", id, err)
		}
		if blob == nil {
			continue
		}
		container.PluginData[id] = blob
	}
	return cborEncMode.Marshal(container)
}

// LoadFile reads path and calls Load with its contents.
func (st *Store) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("persistence: reading show file %q: %w", path, err)
	}
	return st.Load(data)
}

// SaveFile writes the current show to path.
func (st *Store) SaveFile(path string) error {
	data, err := st.SaveShow()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("persistence: writing show file %q: %w", path, err)
	}
	return nil
}
