package patcher

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/lumencore/lumencore/internal/fabric"
)

// EventPatchUpdated is the name patch mutations are broadcast under
// (criteria = the affected instance's UUID), waking the mixer to rebuild
// its base layer (spec §4.2 "Patch change notification").
const EventPatchUpdated = "patcher.patch_updated"

// PatchUpdated is the declared payload of EventPatchUpdated.
type PatchUpdated struct {
	InstanceID uuid.UUID `json:"instance_id"`
}

// ErrInstanceNotFound is returned when an instance lookup misses.
type ErrInstanceNotFound struct{ ID uuid.UUID }

func (e *ErrInstanceNotFound) Error() string {
	return fmt.Sprintf("patcher: fixture instance %s not found", e.ID)
}

// ErrUnknownPersonality is returned when an instance names a personality
// its fixture type doesn't declare.
type ErrUnknownPersonality struct {
	FixtureTypeID uuid.UUID
	Personality   string
}

func (e *ErrUnknownPersonality) Error() string {
	return fmt.Sprintf("patcher: fixture type %s has no personality %q", e.FixtureTypeID, e.Personality)
}

// ErrOffsetOverlap is returned when a DMX binding would overlap another
// fixture's occupied byte range in the same universe.
type ErrOffsetOverlap struct {
	InstanceID, OtherID uuid.UUID
	Universe            uuid.UUID
}

func (e *ErrOffsetOverlap) Error() string {
	return fmt.Sprintf("patcher: binding %s in universe %s overlaps %s", e.InstanceID, e.Universe, e.OtherID)
}

// ErrOffsetRange is returned when a binding offset falls outside [1, 512].
type ErrOffsetRange struct{ Offset uint16 }

func (e *ErrOffsetRange) Error() string {
	return fmt.Sprintf("patcher: offset %d out of range [1,512]", e.Offset)
}

// ChannelBlendMeta is the per-(fixture,channel) projection of blending
// parameters the mixer consumes every tick (spec §4.2 "FullMixerBlendingData").
type ChannelBlendMeta struct {
	Scheme    Priority
	Snap      Snapping
	AllowWrap bool
	Min, Max  uint32
}

// BlendMeta is FullMixerBlendingData: attribute → blending parameters,
// keyed the same way as FrameValues.
type BlendMeta map[uuid.UUID]map[string]ChannelBlendMeta

// Patcher holds the patched fixture instances, their DMX bindings, and the
// registered output drivers, generalizing the teacher's in-memory aggregate
// state (internal/core, pkg/aggregate) into the patch domain described by
// spec §4.2.
type Patcher struct {
	mu sync.RWMutex

	library   *Library
	instances map[uuid.UUID]*FixtureInstance
	bindings  map[uuid.UUID]Binding
	drivers   map[string]OutputDriver

	bus *fabric.EventBus
}

// NewPatcher constructs a patcher backed by library and wired to bus for
// patch_updated notifications.
func NewPatcher(library *Library, bus *fabric.EventBus) *Patcher {
	fabric.Declare[PatchUpdated](bus, EventPatchUpdated)
	return &Patcher{
		library:   library,
		instances: make(map[uuid.UUID]*FixtureInstance),
		bindings:  make(map[uuid.UUID]Binding),
		drivers:   make(map[string]OutputDriver),
		bus:       bus,
	}
}

// RegisterDriver adds an output driver under its own id.
func (p *Patcher) RegisterDriver(d OutputDriver) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.drivers[d.ID()] = d
}

func (p *Patcher) notifyPatchUpdated(instanceID uuid.UUID) {
	p.bus.EmitTyped(EventPatchUpdated, fabric.UUIDCriteria(instanceID), PatchUpdated{InstanceID: instanceID})
}

// CreateFixtureInstance patches a new fixture instance. The owning driver is
// consulted first (it may refuse); on driver success the instance is added
// to patcher state and patch_updated is emitted.
func (p *Patcher) CreateFixtureInstance(instanceID, fixtureTypeID uuid.UUID, personality string, formData map[string]interface{}) error {
	fi, err := p.library.Get(fixtureTypeID)
	if err != nil {
		return err
	}
	if _, ok := fi.Personalities[personality]; !ok {
		return &ErrUnknownPersonality{FixtureTypeID: fixtureTypeID, Personality: personality}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	driver, ok := p.drivers[fi.OutputDriver]
	if !ok {
		return fmt.Errorf("patcher: fixture type %s names unregistered driver %q", fixtureTypeID, fi.OutputDriver)
	}
	if err := driver.CreateFixtureInstance(instanceID, fixtureTypeID, personality, formData); err != nil {
		return fmt.Errorf("patcher: driver rejected create_fixture_instance: %w", err)
	}

	p.instances[instanceID] = &FixtureInstance{
		ID:            instanceID,
		FixtureTypeID: fixtureTypeID,
		Personality:   personality,
	}
	p.notifyPatchUpdated(instanceID)
	return nil
}

// EditFixtureInstance updates an existing instance's mutable fields and
// consults the driver. If the driver rejects the edit, patcher state is
// restored to its pre-edit value so the caller never observes a partial
// mutation (spec §7 "Driver rejected create/edit/remove").
func (p *Patcher) EditFixtureInstance(instanceID uuid.UUID, name, comments string, position Position, formData map[string]interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	inst, ok := p.instances[instanceID]
	if !ok {
		return &ErrInstanceNotFound{ID: instanceID}
	}
	fi, err := p.library.Get(inst.FixtureTypeID)
	if err != nil {
		return err
	}
	driver, ok := p.drivers[fi.OutputDriver]
	if !ok {
		return fmt.Errorf("patcher: fixture type %s names unregistered driver %q", inst.FixtureTypeID, fi.OutputDriver)
	}

	// The driver is consulted before any patcher-side field is touched, so
	// a rejection leaves inst untouched: there is nothing to roll back.
	if err := driver.EditFixtureInstance(instanceID, formData); err != nil {
		return fmt.Errorf("patcher: driver rejected edit_fixture_instance: %w", err)
	}

	inst.Name = name
	inst.Comments = comments
	inst.Position = position

	p.notifyPatchUpdated(instanceID)
	return nil
}

// RemoveFixtureInstance deletes a patched instance, consulting the driver
// first; an unbound or never-bound instance is removed without complaint.
func (p *Patcher) RemoveFixtureInstance(instanceID uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	inst, ok := p.instances[instanceID]
	if !ok {
		return &ErrInstanceNotFound{ID: instanceID}
	}
	fi, err := p.library.Get(inst.FixtureTypeID)
	if err != nil {
		return err
	}
	if driver, ok := p.drivers[fi.OutputDriver]; ok {
		if err := driver.RemoveFixtureInstance(instanceID); err != nil {
			return fmt.Errorf("patcher: driver rejected remove_fixture_instance: %w", err)
		}
	}

	delete(p.instances, instanceID)
	delete(p.bindings, instanceID)
	p.notifyPatchUpdated(instanceID)
	return nil
}

// Bind assigns a DMX universe/offset to an instance, rejecting the edit
// (patch state unchanged) if the occupied byte range would overlap another
// fixture bound to the same universe (spec §3 invariant, testable property 3).
func (p *Patcher) Bind(instanceID, universe uuid.UUID, offset uint16) error {
	if offset < 1 || offset > 512 {
		return &ErrOffsetRange{Offset: offset}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	inst, ok := p.instances[instanceID]
	if !ok {
		return &ErrInstanceNotFound{ID: instanceID}
	}
	fi, err := p.library.Get(inst.FixtureTypeID)
	if err != nil {
		return err
	}
	size, err := fi.PersonalitySize(inst.Personality)
	if err != nil {
		return err
	}
	newStart, newEnd := uint32(offset), uint32(offset)+uint32(size)-1

	for otherID, b := range p.bindings {
		if otherID == instanceID || b.Universe == nil || *b.Universe != universe {
			continue
		}
		otherInst := p.instances[otherID]
		otherFi, err := p.library.Get(otherInst.FixtureTypeID)
		if err != nil {
			continue
		}
		otherSize, err := otherFi.PersonalitySize(otherInst.Personality)
		if err != nil {
			continue
		}
		otherStart, otherEnd := uint32(*b.Offset), uint32(*b.Offset)+uint32(otherSize)-1
		if newStart <= otherEnd && otherStart <= newEnd {
			return &ErrOffsetOverlap{InstanceID: instanceID, OtherID: otherID, Universe: universe}
		}
	}

	u := universe
	o := offset
	p.bindings[instanceID] = Binding{Universe: &u, Offset: &o}
	p.notifyPatchUpdated(instanceID)
	return nil
}

// Unbind removes an instance's DMX binding, if any.
func (p *Patcher) Unbind(instanceID uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.bindings, instanceID)
	p.notifyPatchUpdated(instanceID)
}

// GetBinding returns the current DMX binding for an instance, ok=false if
// unbound or unknown.
func (p *Patcher) GetBinding(instanceID uuid.UUID) (Binding, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	b, ok := p.bindings[instanceID]
	return b, ok
}

// Instances returns every currently patched instance.
func (p *Patcher) Instances() []*FixtureInstance {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*FixtureInstance, 0, len(p.instances))
	for _, inst := range p.instances {
		out = append(out, inst)
	}
	return out
}

// ChannelLayout is one entry of a personality's ordered channel list,
// paired with its wire size — what an output driver needs to walk a DMX
// binding's occupied byte range (spec §4.4 "Universe assembly").
type ChannelLayout struct {
	Name string
	Size ChannelSize
}

// InstanceChannelLayout returns instanceID's active personality channels in
// declared order. Output drivers call this (and GetBinding, Instances) to
// build their own cached binding snapshot on patch_updated rather than
// re-entering the patcher from inside SendUpdates, which spec §4.2/§5
// forbids during the hot path itself.
func (p *Patcher) InstanceChannelLayout(instanceID uuid.UUID) ([]ChannelLayout, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	inst, ok := p.instances[instanceID]
	if !ok {
		return nil, &ErrInstanceNotFound{ID: instanceID}
	}
	fi, err := p.library.Get(inst.FixtureTypeID)
	if err != nil {
		return nil, err
	}
	channels, ok := fi.Personalities[inst.Personality]
	if !ok {
		return nil, &ErrUnknownPersonality{FixtureTypeID: inst.FixtureTypeID, Personality: inst.Personality}
	}
	out := make([]ChannelLayout, 0, len(channels))
	for _, name := range channels {
		ch, ok := fi.Channels[name]
		if !ok {
			return nil, fmt.Errorf("patcher: personality %q references undeclared channel %q", inst.Personality, name)
		}
		out = append(out, ChannelLayout{Name: name, Size: ch.Size})
	}
	return out, nil
}

// segmentBounds derives a segmented channel's snap/clamp bounds: min is the
// minimum Start across segments, max is the minimum End across segments —
// literal per spec §4.2 ("min = minimum start, max = minimum end"), with
// ties broken by first-encountered order so the derivation is reproducible
// given a fixed personality channel-list ordering.
func segmentBounds(segments []Segment) (min, max uint32) {
	haveMin, haveMax := false, false
	for _, s := range segments {
		if !haveMin || s.Start < min {
			min = s.Start
			haveMin = true
		}
		if !haveMax || s.End < max {
			max = s.End
			haveMax = true
		}
	}
	return min, max
}

// FullMixerOutput computes the base layer: every active channel of every
// patched instance mapped to its declared default value (spec §4.2).
func (p *Patcher) FullMixerOutput() (FrameValues, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.baseLayerLocked()
}

func (p *Patcher) baseLayerLocked() (FrameValues, error) {
	out := make(FrameValues, len(p.instances))
	for id, inst := range p.instances {
		fi, err := p.library.Get(inst.FixtureTypeID)
		if err != nil {
			return nil, err
		}
		channels, ok := fi.Personalities[inst.Personality]
		if !ok {
			return nil, &ErrUnknownPersonality{FixtureTypeID: inst.FixtureTypeID, Personality: inst.Personality}
		}
		attrs := make(map[string]uint16, len(channels))
		for _, name := range channels {
			ch, ok := fi.Channels[name]
			if !ok {
				return nil, fmt.Errorf("patcher: personality %q references undeclared channel %q", inst.Personality, name)
			}
			attrs[name] = ch.Default
		}
		out[id] = attrs
	}
	return out, nil
}

// FullMixerBlendingData computes the blending metadata counterpart to
// FullMixerOutput (spec §4.2): scheme, snap rule, and clamp bounds per
// (fixture, channel).
func (p *Patcher) FullMixerBlendingData() (BlendMeta, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make(BlendMeta, len(p.instances))
	for id, inst := range p.instances {
		fi, err := p.library.Get(inst.FixtureTypeID)
		if err != nil {
			return nil, err
		}
		channels, ok := fi.Personalities[inst.Personality]
		if !ok {
			return nil, &ErrUnknownPersonality{FixtureTypeID: inst.FixtureTypeID, Personality: inst.Personality}
		}
		attrs := make(map[string]ChannelBlendMeta, len(channels))
		for _, name := range channels {
			ch, ok := fi.Channels[name]
			if !ok {
				return nil, fmt.Errorf("patcher: personality %q references undeclared channel %q", inst.Personality, name)
			}
			switch ch.Type.Kind {
			case ChannelLinear:
				attrs[name] = ChannelBlendMeta{
					Scheme: ch.Type.Priority,
					Snap:   NoSnap,
					Min:    0,
					Max:    ch.Size.Max(),
				}
			case ChannelSegmented:
				min, max := segmentBounds(ch.Type.Segments)
				attrs[name] = ChannelBlendMeta{
					Scheme: ch.Type.Priority,
					Snap:   ch.Type.Snapping,
					Min:    min,
					Max:    max,
				}
			}
		}
		out[id] = attrs
	}
	return out, nil
}

// ApplyVirtualIntensity multiplies every intensity-emulating target channel
// by (source / max_of_source) in place, after blending (spec §4.2 "virtual
// intensity"). A single source channel may emulate any number of target
// channels (spec §4.2: "channel C intensity-emulates channels {D, …}");
// max_of_source comes from the source channel's own declared ChannelSize
// (255 for U8, 65535 for U16), not a caller-supplied value, matching
// original_source's apply_virtual_intensities. Widening between 8- and
// 16-bit channels happens naturally since frame values are carried as
// uint16 throughout.
func (p *Patcher) ApplyVirtualIntensity(frame FrameValues) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for id, inst := range p.instances {
		fi, err := p.library.Get(inst.FixtureTypeID)
		if err != nil {
			return err
		}
		if len(fi.IntensityEmulation) == 0 {
			continue
		}
		attrs, ok := frame[id]
		if !ok {
			continue
		}
		for source, targets := range fi.IntensityEmulation {
			sourceVal, ok := attrs[source]
			if !ok {
				continue
			}
			sourceChannel, ok := fi.Channels[source]
			if !ok {
				continue
			}
			max := sourceChannel.Size.Max()
			for _, target := range targets {
				targetVal, ok := attrs[target]
				if !ok {
					continue
				}
				scaled := (float64(targetVal) * float64(sourceVal)) / float64(max)
				attrs[target] = uint16(scaled + 0.5)
			}
		}
	}
	return nil
}

// WriteValues is write_values: it applies virtual intensity in place, then
// fans out the resulting frame concurrently to every registered driver's
// SendUpdates, awaiting all before returning (spec §4.2). Per spec §4.2/§7
// a driver panic during SendUpdates is fatal: errgroup's goroutines are
// NOT wrapped in the fabric's panic containment here, deliberately, so an
// uncaught panic propagates and crashes the process rather than producing a
// silently wrong frame.
func (p *Patcher) WriteValues(frame FrameValues, finalFrame bool) error {
	if err := p.ApplyVirtualIntensity(frame); err != nil {
		return err
	}

	p.mu.RLock()
	drivers := make([]OutputDriver, 0, len(p.drivers))
	for _, d := range p.drivers {
		drivers = append(drivers, d)
	}
	p.mu.RUnlock()

	var g errgroup.Group
	for _, d := range drivers {
		d := d
		g.Go(func() error {
			return d.SendUpdates(frame, finalFrame)
		})
	}
	return g.Wait()
}
