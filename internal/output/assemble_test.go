package output

import (
	"testing"

	"github.com/google/uuid"

	"github.com/lumencore/lumencore/internal/fabric"
	"github.com/lumencore/lumencore/internal/patcher"
)

func newTestFixtureType() *patcher.FixtureInfo {
	return &patcher.FixtureInfo{
		ID:           uuid.New(),
		Name:         "Test Par",
		Manufacturer: "Acme",
		Family:       "Par",
		OutputDriver: "dmx",
		Channels: map[string]patcher.Channel{
			"intensity": {Size: patcher.SizeU16, Default: 0, Type: patcher.Linear(patcher.PriorityHTP)},
			"color":     {Size: patcher.SizeU8, Default: 0, Type: patcher.Linear(patcher.PriorityLTP)},
		},
		Personalities: map[string][]string{
			"standard": {"intensity", "color"},
		},
	}
}

func newTestPatcherWithDMXDriver(t *testing.T) (*patcher.Patcher, *patcher.Library, *UniverseRegistry, *DMXDriver) {
	t.Helper()
	lib, err := patcher.NewLibrary("")
	if err != nil {
		t.Fatalf("NewLibrary: %v", err)
	}
	bus := fabric.NewEventBus()
	p := patcher.NewPatcher(lib, bus)
	registry := NewUniverseRegistry()
	driver := NewDMXDriver(p, registry, bus)
	p.RegisterDriver(driver)
	return p, lib, registry, driver
}

func TestAssembleUniverses_WritesU16AndU8AtOffsets(t *testing.T) {
	universeID := uuid.New()
	instanceID := uuid.New()

	snapshot := map[uuid.UUID]bindingEntry{
		instanceID: {
			Universe: universeID,
			Offset:   10, // 1-based
			Channels: []patcher.ChannelLayout{
				{Name: "intensity", Size: patcher.SizeU16},
				{Name: "color", Size: patcher.SizeU8},
			},
		},
	}
	frame := patcher.FrameValues{
		instanceID: {"intensity": 0xBEEF, "color": 0x42},
	}

	out := assembleUniverses([]uuid.UUID{universeID}, snapshot, frame)
	buf, ok := out[universeID]
	if !ok {
		t.Fatalf("expected universe %s in output", universeID)
	}
	if buf[9] != 0xBE || buf[10] != 0xEF {
		t.Fatalf("intensity bytes at offset 9..10 = %02x %02x, want be ef", buf[9], buf[10])
	}
	if buf[11] != 0x42 {
		t.Fatalf("color byte at offset 11 = %02x, want 42", buf[11])
	}
}

func TestAssembleUniverses_UnboundFrameDataLeavesZeros(t *testing.T) {
	universeID := uuid.New()
	instanceID := uuid.New()
	snapshot := map[uuid.UUID]bindingEntry{
		instanceID: {
			Universe: universeID,
			Offset:   1,
			Channels: []patcher.ChannelLayout{{Name: "intensity", Size: patcher.SizeU16}},
		},
	}
	out := assembleUniverses([]uuid.UUID{universeID}, snapshot, patcher.FrameValues{})
	buf := out[universeID]
	for i, b := range buf {
		if b != 0 {
			t.Fatalf("byte %d = %02x, want zero for missing frame data", i, b)
		}
	}
}

func TestAssembleUniverses_SkipsEntriesForUnknownUniverse(t *testing.T) {
	instanceID := uuid.New()
	snapshot := map[uuid.UUID]bindingEntry{
		instanceID: {
			Universe: uuid.New(), // not in universeIDs
			Offset:   1,
			Channels: []patcher.ChannelLayout{{Name: "intensity", Size: patcher.SizeU8}},
		},
	}
	wantUniverse := uuid.New()
	out := assembleUniverses([]uuid.UUID{wantUniverse}, snapshot, patcher.FrameValues{})
	if len(out) != 1 {
		t.Fatalf("expected exactly one universe in output, got %d", len(out))
	}
	if _, ok := out[wantUniverse]; !ok {
		t.Fatalf("expected requested universe %s present", wantUniverse)
	}
}
