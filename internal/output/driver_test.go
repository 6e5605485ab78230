package output

import (
	"testing"

	"github.com/google/uuid"

	"github.com/lumencore/lumencore/internal/patcher"
)

func TestDMXDriver_SendUpdatesAssemblesAndDispatchesToController(t *testing.T) {
	p, lib, registry, driver := newTestPatcherWithDMXDriver(t)

	fixtureType := newTestFixtureType()
	if err := lib.Import(fixtureType); err != nil {
		t.Fatalf("Import: %v", err)
	}

	instanceID := uuid.New()
	if err := p.CreateFixtureInstance(instanceID, fixtureType.ID, "standard", nil); err != nil {
		t.Fatalf("CreateFixtureInstance: %v", err)
	}

	universeID := registry.Create("house")
	null := NewNullController()
	registry.RegisterController(null)
	if err := registry.Link(universeID, null.ID(), nil); err != nil {
		t.Fatalf("Link: %v", err)
	}
	if err := p.Bind(instanceID, universeID, 1); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	driver.Refresh()

	frame := patcher.FrameValues{instanceID: {"intensity": 0xFFFF, "color": 0x10}}
	if err := driver.SendUpdates(frame, true); err != nil {
		t.Fatalf("SendUpdates: %v", err)
	}

	got, ok := null.LastFrame(universeID)
	if !ok {
		t.Fatalf("expected a frame recorded for universe %s", universeID)
	}
	if got[0] != 0xFF || got[1] != 0xFF {
		t.Fatalf("intensity bytes = %02x %02x, want ff ff", got[0], got[1])
	}
	if got[2] != 0x10 {
		t.Fatalf("color byte = %02x, want 10", got[2])
	}
	if null.Calls() != 1 {
		t.Fatalf("Calls() = %d, want 1", null.Calls())
	}
}

func TestDMXDriver_UnboundInstanceLeavesUniverseZeroed(t *testing.T) {
	p, lib, registry, driver := newTestPatcherWithDMXDriver(t)

	fixtureType := newTestFixtureType()
	if err := lib.Import(fixtureType); err != nil {
		t.Fatalf("Import: %v", err)
	}
	instanceID := uuid.New()
	if err := p.CreateFixtureInstance(instanceID, fixtureType.ID, "standard", nil); err != nil {
		t.Fatalf("CreateFixtureInstance: %v", err)
	}

	universeID := registry.Create("house")
	null := NewNullController()
	registry.RegisterController(null)
	if err := registry.Link(universeID, null.ID(), nil); err != nil {
		t.Fatalf("Link: %v", err)
	}
	driver.Refresh()

	if err := driver.SendUpdates(patcher.FrameValues{}, true); err != nil {
		t.Fatalf("SendUpdates: %v", err)
	}
	got, ok := null.LastFrame(universeID)
	if !ok {
		t.Fatalf("expected a frame recorded for universe %s", universeID)
	}
	for i, b := range got {
		if b != 0 {
			t.Fatalf("byte %d = %02x, want zero for unbound instance", i, b)
		}
	}
}

func TestDMXDriver_BindingFormRoundTrip(t *testing.T) {
	p, lib, registry, driver := newTestPatcherWithDMXDriver(t)

	fixtureType := newTestFixtureType()
	if err := lib.Import(fixtureType); err != nil {
		t.Fatalf("Import: %v", err)
	}
	instanceID := uuid.New()
	if err := p.CreateFixtureInstance(instanceID, fixtureType.ID, "standard", nil); err != nil {
		t.Fatalf("CreateFixtureInstance: %v", err)
	}

	universeID := registry.Create("house")
	null := NewNullController()
	registry.RegisterController(null)
	if err := registry.Link(universeID, null.ID(), nil); err != nil {
		t.Fatalf("Link: %v", err)
	}

	formData := map[string]interface{}{
		"universe": universeID.String(),
		"offset":   float64(5),
	}
	if err := driver.CreateFixtureInstance(instanceID, fixtureType.ID, "standard", formData); err != nil {
		t.Fatalf("CreateFixtureInstance (driver): %v", err)
	}
	binding, ok := p.GetBinding(instanceID)
	if !ok {
		t.Fatalf("expected a binding after CreateFixtureInstance")
	}
	if binding.Universe == nil || *binding.Universe != universeID {
		t.Fatalf("binding universe = %v, want %s", binding.Universe, universeID)
	}
	if binding.Offset == nil || *binding.Offset != 5 {
		t.Fatalf("binding offset = %v, want 5", binding.Offset)
	}

	if err := driver.EditFixtureInstance(instanceID, map[string]interface{}{}); err != nil {
		t.Fatalf("EditFixtureInstance (unbind): %v", err)
	}
	if _, ok := p.GetBinding(instanceID); ok {
		t.Fatalf("expected binding cleared after edit with no binding fields")
	}
}

func TestDMXDriver_CreateFixtureInstanceWithoutBindingLeavesUnbound(t *testing.T) {
	p, lib, _, driver := newTestPatcherWithDMXDriver(t)
	fixtureType := newTestFixtureType()
	if err := lib.Import(fixtureType); err != nil {
		t.Fatalf("Import: %v", err)
	}
	instanceID := uuid.New()
	if err := p.CreateFixtureInstance(instanceID, fixtureType.ID, "standard", nil); err != nil {
		t.Fatalf("CreateFixtureInstance: %v", err)
	}
	if err := driver.CreateFixtureInstance(instanceID, fixtureType.ID, "standard", nil); err != nil {
		t.Fatalf("driver CreateFixtureInstance: %v", err)
	}
	if _, ok := p.GetBinding(instanceID); ok {
		t.Fatalf("expected no binding when formData carries no universe/offset")
	}
}
