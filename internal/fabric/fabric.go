package fabric

// Fabric composes the service registry, event bus, init-dependency
// scheduler, type-specifier registry and shutdown coordinator into the
// single process-wide value every plugin is wired through — the
// generalization of the teacher's PluginManager-plus-EventBus pair
// (internal/core/pluginmanager.go, pkg/eventsourcing/eventbus.go) into the
// full fabric spec.md §4.1 describes.
type Fabric struct {
	Services   *Registry
	Events     *EventBus
	Deps       *DependencyScheduler
	TypeSpecs  *TypeSpecifierRegistry
	Shutdown   *ShutdownCoordinator
}

// New builds a fresh Fabric with all sub-components wired together.
func New() *Fabric {
	bus := NewEventBus()
	return &Fabric{
		Services:  NewRegistry(),
		Events:    bus,
		Deps:      NewDependencyScheduler(),
		TypeSpecs: NewTypeSpecifierRegistry(),
		Shutdown:  NewShutdownCoordinator(bus),
	}
}

// RegisterService registers a service and marks its Service{plugin,
// service} dependency satisfied for the init-dependency scheduler.
func (f *Fabric) RegisterService(pluginID string, svc Service) error {
	if err := f.Services.Register(pluginID, svc); err != nil {
		return err
	}
	f.Deps.MarkServiceRegistered(pluginID, svc.ID())
	return nil
}

// RegisterPlugin marks pluginID's Plugin{} dependency satisfied. Plugins
// that expose no services still call this so spawn_when(Plugin{...}, ...)
// gates correctly.
func (f *Fabric) RegisterPlugin(pluginID string) {
	f.Deps.MarkPluginRegistered(pluginID)
}
