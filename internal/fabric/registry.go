package fabric

import (
	"fmt"
	"sort"
	"sync"
)

// ServiceKey identifies a service by the plugin that owns it and the
// service's own id within that plugin.
type ServiceKey struct {
	PluginID  string
	ServiceID string
}

// ErrIDConflict is returned by Registry.Register when the (plugin_id,
// service_id) pair is already taken.
type ErrIDConflict struct {
	Key ServiceKey
}

func (e *ErrIDConflict) Error() string {
	return fmt.Sprintf("fabric: service %s/%s already registered", e.Key.PluginID, e.Key.ServiceID)
}

// ErrServiceNotFound is returned when a lookup misses.
type ErrServiceNotFound struct {
	Key ServiceKey
}

func (e *ErrServiceNotFound) Error() string {
	return fmt.Sprintf("fabric: service %s/%s not found", e.Key.PluginID, e.Key.ServiceID)
}

// ServiceDescription is the discoverable-listing projection of a service,
// used by GetServices and the TypeScript exporter.
type ServiceDescription struct {
	PluginID    string
	ServiceID   string
	Name        string
	Description string
	Signature   Signature
}

// Registry is the service registry: keys (plugin_id, service_id), values
// opaque service handles. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	services map[ServiceKey]Service
}

// NewRegistry constructs an empty service registry.
func NewRegistry() *Registry {
	return &Registry{services: make(map[ServiceKey]Service)}
}

// Register adds a service under (pluginID, service.ID()). It fails with
// *ErrIDConflict if the key is already taken.
func (r *Registry) Register(pluginID string, svc Service) error {
	key := ServiceKey{PluginID: pluginID, ServiceID: svc.ID()}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.services[key]; exists {
		return &ErrIDConflict{Key: key}
	}
	r.services[key] = svc
	return nil
}

// Deregister removes a service, e.g. on plugin unload.
func (r *Registry) Deregister(pluginID, serviceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.services, ServiceKey{PluginID: pluginID, ServiceID: serviceID})
}

// Get looks up a service by key.
func (r *Registry) Get(pluginID, serviceID string) (Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	key := ServiceKey{PluginID: pluginID, ServiceID: serviceID}
	svc, ok := r.services[key]
	if !ok {
		return nil, &ErrServiceNotFound{Key: key}
	}
	return svc, nil
}

// List returns descriptions of every discoverable service, stably sorted
// by (plugin_id, service_id) so GetServices responses are deterministic.
func (r *Registry) List() []ServiceDescription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ServiceDescription, 0, len(r.services))
	for key, svc := range r.services {
		if !svc.Discoverable() {
			continue
		}
		out = append(out, ServiceDescription{
			PluginID:    key.PluginID,
			ServiceID:   key.ServiceID,
			Name:        svc.Name(),
			Description: svc.Description(),
			Signature:   svc.Signature(),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PluginID != out[j].PluginID {
			return out[i].PluginID < out[j].PluginID
		}
		return out[i].ServiceID < out[j].ServiceID
	})
	return out
}
