package output

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// ErrUniverseNotFound is returned when a universe lookup misses.
type ErrUniverseNotFound struct{ ID uuid.UUID }

func (e *ErrUniverseNotFound) Error() string {
	return fmt.Sprintf("output: universe %s not found", e.ID)
}

// ErrControllerNotFound is returned when Link names an unregistered
// controller id.
type ErrControllerNotFound struct{ ID string }

func (e *ErrControllerNotFound) Error() string {
	return fmt.Sprintf("output: controller %q not registered", e.ID)
}

// UniverseRegistry holds every UniverseInstance and the set of registered
// Controllers, and implements the universe lifecycle spec §3 describes:
// create, link (controller's Register may refuse), unlink, delete
// (controller receives Unregister).
type UniverseRegistry struct {
	mu          sync.RWMutex
	universes   map[uuid.UUID]*UniverseInstance
	controllers map[string]Controller

	// linkConfig remembers the config map each universe was last linked
	// with, so a show-file reload can replay Link against whichever
	// controllers are registered this run without the caller needing to
	// resupply per-controller configuration (spec §4.5 show file: "output"
	// section).
	linkConfig map[uuid.UUID]map[string]interface{}
}

// NewUniverseRegistry constructs an empty registry.
func NewUniverseRegistry() *UniverseRegistry {
	return &UniverseRegistry{
		universes:   make(map[uuid.UUID]*UniverseInstance),
		controllers: make(map[string]Controller),
		linkConfig:  make(map[uuid.UUID]map[string]interface{}),
	}
}

// RegisterController adds c under c.ID(), available for Link to bind
// universes against.
func (r *UniverseRegistry) RegisterController(c Controller) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.controllers[c.ID()] = c
}

// Controller returns a registered controller by id.
func (r *UniverseRegistry) Controller(id string) (Controller, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.controllers[id]
	return c, ok
}

// Create adds a new, unlinked universe and returns its id.
func (r *UniverseRegistry) Create(name string) uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := uuid.New()
	r.universes[id] = &UniverseInstance{ID: id, Name: name}
	return id
}

// Rename changes a universe's display name.
func (r *UniverseRegistry) Rename(id uuid.UUID, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.universes[id]
	if !ok {
		return &ErrUniverseNotFound{ID: id}
	}
	u.Name = name
	return nil
}

// Link binds universeID to controllerID, consulting the controller's
// Register first; on refusal the universe's link is left unchanged.
func (r *UniverseRegistry) Link(universeID uuid.UUID, controllerID string, config map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.universes[universeID]
	if !ok {
		return &ErrUniverseNotFound{ID: universeID}
	}
	ctrl, ok := r.controllers[controllerID]
	if !ok {
		return &ErrControllerNotFound{ID: controllerID}
	}
	if err := ctrl.Register(universeID, config); err != nil {
		return fmt.Errorf("output: controller %q rejected universe %s: %w", controllerID, universeID, err)
	}
	if u.ControllerDriverID != nil && *u.ControllerDriverID != controllerID {
		if old, ok := r.controllers[*u.ControllerDriverID]; ok {
			old.Unregister(universeID)
		}
	}
	id := controllerID
	u.ControllerDriverID = &id
	r.linkConfig[universeID] = config
	return nil
}

// Unlink detaches universeID from its controller, if any.
func (r *UniverseRegistry) Unlink(universeID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.universes[universeID]
	if !ok {
		return &ErrUniverseNotFound{ID: universeID}
	}
	if u.ControllerDriverID != nil {
		if ctrl, ok := r.controllers[*u.ControllerDriverID]; ok {
			ctrl.Unregister(universeID)
		}
		u.ControllerDriverID = nil
	}
	delete(r.linkConfig, universeID)
	return nil
}

// Delete removes a universe entirely, first unlinking it so its controller
// receives Unregister (spec §3: "deleted (driver receives delete_universe)").
func (r *UniverseRegistry) Delete(universeID uuid.UUID) error {
	r.mu.Lock()
	u, ok := r.universes[universeID]
	if !ok {
		r.mu.Unlock()
		return &ErrUniverseNotFound{ID: universeID}
	}
	controllerID := u.ControllerDriverID
	delete(r.universes, universeID)
	delete(r.linkConfig, universeID)
	r.mu.Unlock()

	if controllerID != nil {
		if ctrl, ok := r.Controller(*controllerID); ok {
			ctrl.Unregister(universeID)
		}
	}
	return nil
}

// Get returns the universe instance for id.
func (r *UniverseRegistry) Get(id uuid.UUID) (*UniverseInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.universes[id]
	if !ok {
		return nil, &ErrUniverseNotFound{ID: id}
	}
	return u, nil
}

// List returns every universe instance.
func (r *UniverseRegistry) List() []*UniverseInstance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*UniverseInstance, 0, len(r.universes))
	for _, u := range r.universes {
		out = append(out, u)
	}
	return out
}

// ByController groups every linked universe id by its controller id, the
// shape DMXDriver.SendUpdates needs for "group universes by controller id
// and invoke each controller's send_dmx concurrently" (spec §4.4).
func (r *UniverseRegistry) ByController() map[string][]uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string][]uuid.UUID)
	for id, u := range r.universes {
		if u.ControllerDriverID == nil {
			continue
		}
		out[*u.ControllerDriverID] = append(out[*u.ControllerDriverID], id)
	}
	return out
}
