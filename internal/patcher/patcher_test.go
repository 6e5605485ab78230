package patcher

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/lumencore/lumencore/internal/fabric"
)

var errRejected = errors.New("rejected")

type stubDriver struct {
	id              string
	rejectCreate    bool
	rejectEdit      bool
	rejectRemove    bool
	sendUpdatesErr  error
	sendUpdatesHits int
}

func (d *stubDriver) ID() string          { return d.id }
func (d *stubDriver) Name() string        { return d.id }
func (d *stubDriver) Description() string { return "" }
func (d *stubDriver) ImportFixture(uuid.UUID, []byte) error { return nil }
func (d *stubDriver) GetCreationForm(uuid.UUID) (Form, error) { return Form{}, nil }
func (d *stubDriver) CreateFixtureInstance(uuid.UUID, uuid.UUID, string, map[string]interface{}) error {
	if d.rejectCreate {
		return errRejected
	}
	return nil
}
func (d *stubDriver) GetEditForm(uuid.UUID) (Form, error) { return Form{}, nil }
func (d *stubDriver) EditFixtureInstance(uuid.UUID, map[string]interface{}) error {
	if d.rejectEdit {
		return errRejected
	}
	return nil
}
func (d *stubDriver) RemoveFixtureInstance(uuid.UUID) error {
	if d.rejectRemove {
		return errRejected
	}
	return nil
}
func (d *stubDriver) SendUpdates(frame FrameValues, finalFrame bool) error {
	d.sendUpdatesHits++
	return d.sendUpdatesErr
}

func newTestFixtureType() *FixtureInfo {
	return &FixtureInfo{
		ID:           uuid.New(),
		Name:         "Test Par",
		Manufacturer: "Acme",
		Family:       "Par",
		OutputDriver: "stub",
		Channels: map[string]Channel{
			"intensity": {Size: SizeU16, Default: 0, Type: Linear(PriorityHTP)},
			"color":     {Size: SizeU8, Default: 0, Type: Linear(PriorityLTP)},
		},
		Personalities: map[string][]string{
			"standard": {"intensity", "color"},
		},
	}
}

func newTestPatcher(t *testing.T) (*Patcher, *Library, *stubDriver) {
	t.Helper()
	lib, err := NewLibrary("")
	if err != nil {
		t.Fatalf("NewLibrary: %v", err)
	}
	bus := fabric.NewEventBus()
	p := NewPatcher(lib, bus)
	driver := &stubDriver{id: "stub"}
	p.RegisterDriver(driver)
	return p, lib, driver
}

func TestCreateFixtureInstanceInvalidPersonalityRejected(t *testing.T) {
	p, lib, _ := newTestPatcher(t)
	fi := newTestFixtureType()
	if err := lib.Import(fi); err != nil {
		t.Fatalf("Import: %v", err)
	}

	err := p.CreateFixtureInstance(uuid.New(), fi.ID, "nonexistent", nil)
	if _, ok := err.(*ErrUnknownPersonality); !ok {
		t.Fatalf("expected ErrUnknownPersonality, got %v", err)
	}
}

func TestCreateFixtureInstanceDriverRejectionLeavesStateUnchanged(t *testing.T) {
	p, lib, driver := newTestPatcher(t)
	fi := newTestFixtureType()
	_ = lib.Import(fi)
	driver.rejectCreate = true

	instanceID := uuid.New()
	if err := p.CreateFixtureInstance(instanceID, fi.ID, "standard", nil); err == nil {
		t.Fatal("expected driver rejection error")
	}
	if len(p.Instances()) != 0 {
		t.Fatal("instance should not be patched after driver rejection")
	}
}

func TestCreateFixtureInstanceSuccess(t *testing.T) {
	p, lib, _ := newTestPatcher(t)
	fi := newTestFixtureType()
	_ = lib.Import(fi)

	instanceID := uuid.New()
	if err := p.CreateFixtureInstance(instanceID, fi.ID, "standard", nil); err != nil {
		t.Fatalf("CreateFixtureInstance: %v", err)
	}
	if len(p.Instances()) != 1 {
		t.Fatal("expected one patched instance")
	}
}

// TestBindRejectsOverlappingOffsets exercises spec's DMX binding invariant
// (testable property 3): two fixtures bound to the same universe must have
// disjoint occupied byte ranges.
func TestBindRejectsOverlappingOffsets(t *testing.T) {
	p, lib, _ := newTestPatcher(t)
	fi := newTestFixtureType() // intensity(U16)=2 bytes + color(U8)=1 byte = 3 bytes
	_ = lib.Import(fi)

	a := uuid.New()
	b := uuid.New()
	_ = p.CreateFixtureInstance(a, fi.ID, "standard", nil)
	_ = p.CreateFixtureInstance(b, fi.ID, "standard", nil)

	universe := uuid.New()
	if err := p.Bind(a, universe, 1); err != nil {
		t.Fatalf("Bind a: %v", err)
	}
	// a occupies [1,3]; binding b at offset 3 overlaps.
	if err := p.Bind(b, universe, 3); err == nil {
		t.Fatal("expected overlap rejection")
	}
	// offset 4 is disjoint and should succeed.
	if err := p.Bind(b, universe, 4); err != nil {
		t.Fatalf("Bind b at disjoint offset: %v", err)
	}
}

func TestBindRejectsOutOfRangeOffset(t *testing.T) {
	p, lib, _ := newTestPatcher(t)
	fi := newTestFixtureType()
	_ = lib.Import(fi)
	a := uuid.New()
	_ = p.CreateFixtureInstance(a, fi.ID, "standard", nil)

	if err := p.Bind(a, uuid.New(), 0); err == nil {
		t.Fatal("expected offset-range rejection for 0")
	}
	if err := p.Bind(a, uuid.New(), 513); err == nil {
		t.Fatal("expected offset-range rejection for 513")
	}
}

// TestBaseLayerCoversEveryActiveChannel exercises testable property 1: every
// patched fixture's active channels appear in both the base layer and the
// blending metadata.
func TestBaseLayerCoversEveryActiveChannel(t *testing.T) {
	p, lib, _ := newTestPatcher(t)
	fi := newTestFixtureType()
	_ = lib.Import(fi)
	a := uuid.New()
	_ = p.CreateFixtureInstance(a, fi.ID, "standard", nil)

	base, err := p.FullMixerOutput()
	if err != nil {
		t.Fatalf("FullMixerOutput: %v", err)
	}
	meta, err := p.FullMixerBlendingData()
	if err != nil {
		t.Fatalf("FullMixerBlendingData: %v", err)
	}
	for _, ch := range []string{"intensity", "color"} {
		if _, ok := base[a][ch]; !ok {
			t.Fatalf("base layer missing channel %q", ch)
		}
		if _, ok := meta[a][ch]; !ok {
			t.Fatalf("blending metadata missing channel %q", ch)
		}
	}
}

func TestSegmentBoundsTieBreakFirstEncountered(t *testing.T) {
	segments := []Segment{
		{Name: "open", Start: 0, End: 10},
		{Name: "gobo1", Start: 0, End: 20},
		{Name: "gobo2", Start: 5, End: 10},
	}
	min, max := segmentBounds(segments)
	if min != 0 {
		t.Fatalf("min = %d, want 0", min)
	}
	// max = minimum End across segments = 10 (first-encountered among ties).
	if max != 10 {
		t.Fatalf("max = %d, want 10", max)
	}
}

func TestApplyVirtualIntensityScalesAllTargets(t *testing.T) {
	p, lib, _ := newTestPatcher(t)
	fi := newTestFixtureType()
	fi.Channels["red"] = Channel{Size: SizeU8, Default: 0, Type: Linear(PriorityLTP)}
	fi.Channels["pan"] = Channel{Size: SizeU16, Default: 0, Type: Linear(PriorityLTP)}
	fi.Personalities["standard"] = append(fi.Personalities["standard"], "red", "pan")
	// "intensity" (U16) emulates two target channels of different widths;
	// the divisor comes from intensity's own declared Size (0xFFFF), not a
	// per-target value, so both targets are scaled by the same fraction.
	fi.IntensityEmulation = map[string][]string{
		"intensity": {"red", "pan"},
	}
	_ = lib.Import(fi)

	a := uuid.New()
	_ = p.CreateFixtureInstance(a, fi.ID, "standard", nil)

	frame := FrameValues{a: {"intensity": 0x8000, "red": 0xFF, "pan": 0xFFFF}}
	if err := p.ApplyVirtualIntensity(frame); err != nil {
		t.Fatalf("ApplyVirtualIntensity: %v", err)
	}
	// Both targets scaled by the same fraction (intensity / 0xFFFF) ≈ 0.50001:
	// red = 255 * 32768/65535 ≈ 127.5; pan = 65535 * 32768/65535 = 32768 exactly.
	gotRed := frame[a]["red"]
	if gotRed < 127 || gotRed > 128 {
		t.Fatalf("scaled red = %d, want ~127.5", gotRed)
	}
	gotPan := frame[a]["pan"]
	if gotPan != 32768 {
		t.Fatalf("scaled pan = %d, want 32768", gotPan)
	}
}

func TestRemoveFixtureInstanceDriverRejectionLeavesStateUnchanged(t *testing.T) {
	p, lib, driver := newTestPatcher(t)
	fi := newTestFixtureType()
	_ = lib.Import(fi)
	a := uuid.New()
	_ = p.CreateFixtureInstance(a, fi.ID, "standard", nil)

	driver.rejectRemove = true
	if err := p.RemoveFixtureInstance(a); err == nil {
		t.Fatal("expected driver rejection error")
	}
	if len(p.Instances()) != 1 {
		t.Fatal("instance should still be patched after driver rejection")
	}
}

func TestWriteValuesFansOutToAllDrivers(t *testing.T) {
	p, lib, driver := newTestPatcher(t)
	fi := newTestFixtureType()
	_ = lib.Import(fi)
	a := uuid.New()
	_ = p.CreateFixtureInstance(a, fi.ID, "standard", nil)

	frame := FrameValues{a: {"intensity": 100, "color": 1}}
	if err := p.WriteValues(frame, true); err != nil {
		t.Fatalf("WriteValues: %v", err)
	}
	if driver.sendUpdatesHits != 1 {
		t.Fatalf("expected 1 SendUpdates call, got %d", driver.sendUpdatesHits)
	}
}
