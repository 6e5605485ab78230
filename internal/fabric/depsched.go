package fabric

import "sync"

// DependencyKind tags the three things a plugin's init task can wait on.
type DependencyKind int

const (
	DepPlugin DependencyKind = iota
	DepService
	DepFlag
)

// Dependency is one gate on a spawn_when task: another plugin having
// registered at all, a specific service existing, or an init flag having
// been raised.
type Dependency struct {
	Kind      DependencyKind
	PluginID  string
	ServiceID string
	FlagID    string
}

// PluginDep waits for pluginID to register with the fabric.
func PluginDep(pluginID string) Dependency { return Dependency{Kind: DepPlugin, PluginID: pluginID} }

// ServiceDep waits for a specific service to be registered.
func ServiceDep(pluginID, serviceID string) Dependency {
	return Dependency{Kind: DepService, PluginID: pluginID, ServiceID: serviceID}
}

// FlagDep waits for pluginID to raise flagID via SetInitFlag.
func FlagDep(pluginID, flagID string) Dependency {
	return Dependency{Kind: DepFlag, PluginID: pluginID, FlagID: flagID}
}

type pendingTask struct {
	deps []Dependency
	task func()
}

// DependencyScheduler implements spec.md §4.1's init-dependency scheduler:
// a plugin's spawn_when task is retained until every listed dependency is
// satisfied, then spawned. Already-satisfied dependencies are recognized
// at spawn_when time, so there's no race between a plugin signalling
// readiness and a later subscriber asking to be gated on it.
type DependencyScheduler struct {
	mu       sync.Mutex
	plugins  map[string]bool
	services map[ServiceKey]bool
	flags    map[Dependency]bool
	pending  []*pendingTask
}

// NewDependencyScheduler constructs an empty scheduler.
func NewDependencyScheduler() *DependencyScheduler {
	return &DependencyScheduler{
		plugins:  make(map[string]bool),
		services: make(map[ServiceKey]bool),
		flags:    make(map[Dependency]bool),
	}
}

func (s *DependencyScheduler) satisfiedLocked(d Dependency) bool {
	switch d.Kind {
	case DepPlugin:
		return s.plugins[d.PluginID]
	case DepService:
		return s.services[ServiceKey{PluginID: d.PluginID, ServiceID: d.ServiceID}]
	case DepFlag:
		return s.flags[Dependency{Kind: DepFlag, PluginID: d.PluginID, FlagID: d.FlagID}]
	default:
		return false
	}
}

func (s *DependencyScheduler) allSatisfiedLocked(deps []Dependency) bool {
	for _, d := range deps {
		if !s.satisfiedLocked(d) {
			return false
		}
	}
	return true
}

// SpawnWhen retains task until every dependency in deps is satisfied, then
// spawns it in its own goroutine (panic-contained). If all dependencies
// are already satisfied, it spawns immediately.
func (s *DependencyScheduler) SpawnWhen(deps []Dependency, task func()) {
	s.mu.Lock()
	if s.allSatisfiedLocked(deps) {
		s.mu.Unlock()
		safeGo("scheduled-task", task)
		return
	}
	s.pending = append(s.pending, &pendingTask{deps: append([]Dependency(nil), deps...), task: task})
	s.mu.Unlock()
}

// checkPendingLocked must be called with s.mu held; it removes and returns
// every pending task whose dependencies are now all satisfied, for the
// caller to spawn after unlocking.
func (s *DependencyScheduler) checkPendingLocked() []func() {
	var ready []func()
	kept := s.pending[:0]
	for _, p := range s.pending {
		if s.allSatisfiedLocked(p.deps) {
			ready = append(ready, p.task)
		} else {
			kept = append(kept, p)
		}
	}
	s.pending = kept
	return ready
}

// MarkPluginRegistered satisfies Plugin{pluginID} dependencies.
func (s *DependencyScheduler) MarkPluginRegistered(pluginID string) {
	s.mu.Lock()
	s.plugins[pluginID] = true
	ready := s.checkPendingLocked()
	s.mu.Unlock()
	for _, t := range ready {
		safeGo("scheduled-task", t)
	}
}

// MarkServiceRegistered satisfies Service{pluginID, serviceID} dependencies.
func (s *DependencyScheduler) MarkServiceRegistered(pluginID, serviceID string) {
	s.mu.Lock()
	s.services[ServiceKey{PluginID: pluginID, ServiceID: serviceID}] = true
	ready := s.checkPendingLocked()
	s.mu.Unlock()
	for _, t := range ready {
		safeGo("scheduled-task", t)
	}
}

// SetInitFlag satisfies Flag{pluginID, flagID} dependencies.
func (s *DependencyScheduler) SetInitFlag(pluginID, flagID string) {
	s.mu.Lock()
	s.flags[Dependency{Kind: DepFlag, PluginID: pluginID, FlagID: flagID}] = true
	ready := s.checkPendingLocked()
	s.mu.Unlock()
	for _, t := range ready {
		safeGo("scheduled-task", t)
	}
}
