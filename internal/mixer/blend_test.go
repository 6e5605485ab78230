package mixer

import (
	"testing"

	"github.com/google/uuid"

	"github.com/lumencore/lumencore/internal/patcher"
)

func baseAndMeta(fixture uuid.UUID, attr string, scheme patcher.Priority, snap patcher.Snapping, deflt uint16) (patcher.FrameValues, patcher.BlendMeta) {
	base := patcher.FrameValues{fixture: {attr: deflt}}
	meta := patcher.BlendMeta{fixture: {attr: patcher.ChannelBlendMeta{Scheme: scheme, Snap: snap, Min: 0, Max: 0xFFFF}}}
	return base, meta
}

// TestBlendS1SingleHTPIntensity is scenario S1: a single HTP layer at full
// opacity onto a zero base equals its Static value.
func TestBlendS1SingleHTPIntensity(t *testing.T) {
	f := uuid.New()
	base, meta := baseAndMeta(f, "I", patcher.PriorityHTP, patcher.NoSnap, 0)

	ctx := NewMixingContext()
	layerID := uuid.New()
	layer := NewStaticLayer("A")
	layer.Values[f] = map[string]BlenderValue{"I": StaticValue(30000)}
	ctx.UserSubmasters[layerID] = layer
	ctx.LayerOrder = []uuid.UUID{layerID}
	ctx.LayerOpacities[layerID] = LayerOpacity{Opacity: 0xFFFF}

	out, _ := Blend(base, meta, ctx)
	if out[f]["I"] != 30000 {
		t.Fatalf("got %d, want 30000", out[f]["I"])
	}
}

// TestBlendS2HTPvsLTPPriority is scenario S2.
func TestBlendS2HTPvsLTPPriority(t *testing.T) {
	f := uuid.New()
	base, meta := baseAndMeta(f, "C", patcher.PriorityLTP, patcher.NoSnap, 0)

	ctx := NewMixingContext()
	a, b := uuid.New(), uuid.New()
	layerA := NewStaticLayer("A")
	layerA.Values[f] = map[string]BlenderValue{"C": StaticValue(100)}
	layerB := NewStaticLayer("B")
	layerB.Values[f] = map[string]BlenderValue{"C": StaticValue(200)}
	ctx.UserSubmasters[a] = layerA
	ctx.UserSubmasters[b] = layerB
	ctx.LayerOrder = []uuid.UUID{a, b}
	ctx.LayerOpacities[a] = LayerOpacity{Opacity: 32768}
	ctx.LayerOpacities[b] = LayerOpacity{Opacity: 32768}

	out, _ := Blend(base, meta, ctx)
	if out[f]["C"] != 125 {
		t.Fatalf("got %d, want 125", out[f]["C"])
	}
}

// TestBlendS3Snap is scenario S3.
func TestBlendS3Snap(t *testing.T) {
	f := uuid.New()
	snap := patcher.SnapAt(32767)

	for _, tc := range []struct {
		opacity uint16
		want    uint16
	}{
		{32766, 0},
		{32768, 200},
	} {
		base, meta := baseAndMeta(f, "G", patcher.PriorityHTP, snap, 0)
		ctx := NewMixingContext()
		id := uuid.New()
		layer := NewStaticLayer("A")
		layer.Values[f] = map[string]BlenderValue{"G": StaticValue(200)}
		ctx.UserSubmasters[id] = layer
		ctx.LayerOrder = []uuid.UUID{id}
		ctx.LayerOpacities[id] = LayerOpacity{Opacity: tc.opacity}

		out, _ := Blend(base, meta, ctx)
		if out[f]["G"] != tc.want {
			t.Fatalf("opacity %d: got %d, want %d", tc.opacity, out[f]["G"], tc.want)
		}
	}
}

// TestBlendS4OffsetClamp is scenario S4.
func TestBlendS4OffsetClamp(t *testing.T) {
	f := uuid.New()

	for _, tc := range []struct {
		offset int32
		want   uint16
	}{
		{20000, 65535},
		{-80000, 0},
	} {
		base, meta := baseAndMeta(f, "D", patcher.PriorityHTP, patcher.NoSnap, 60000)
		ctx := NewMixingContext()
		id := uuid.New()
		layer := NewStaticLayer("A")
		layer.Values[f] = map[string]BlenderValue{"D": OffsetValue(tc.offset)}
		ctx.UserSubmasters[id] = layer
		ctx.LayerOrder = []uuid.UUID{id}
		ctx.LayerOpacities[id] = LayerOpacity{Opacity: 0xFFFF}

		out, _ := Blend(base, meta, ctx)
		if out[f]["D"] != tc.want {
			t.Fatalf("offset %d: got %d, want %d", tc.offset, out[f]["D"], tc.want)
		}
	}
}

// TestBlendSkipsNoneValue confirms a None cell contributes nothing, leaving
// the base/cumulative value untouched.
func TestBlendSkipsNoneValue(t *testing.T) {
	f := uuid.New()
	base, meta := baseAndMeta(f, "I", patcher.PriorityHTP, patcher.NoSnap, 42)

	ctx := NewMixingContext()
	id := uuid.New()
	layer := NewStaticLayer("A")
	layer.Values[f] = map[string]BlenderValue{"I": NoneValue}
	ctx.UserSubmasters[id] = layer
	ctx.LayerOrder = []uuid.UUID{id}
	ctx.LayerOpacities[id] = LayerOpacity{Opacity: 0xFFFF}

	out, _ := Blend(base, meta, ctx)
	if out[f]["I"] != 42 {
		t.Fatalf("None value changed the cumulative frame: got %d, want 42", out[f]["I"])
	}
}

// TestBlendSkipsZeroOpacityLayer confirms a layer whose opacity is 0 is
// skipped entirely, even if present in layer_order.
func TestBlendSkipsZeroOpacityLayer(t *testing.T) {
	f := uuid.New()
	base, meta := baseAndMeta(f, "I", patcher.PriorityHTP, patcher.NoSnap, 0)

	ctx := NewMixingContext()
	id := uuid.New()
	layer := NewStaticLayer("A")
	layer.Values[f] = map[string]BlenderValue{"I": StaticValue(60000)}
	ctx.UserSubmasters[id] = layer
	ctx.LayerOrder = []uuid.UUID{id}
	ctx.LayerOpacities[id] = LayerOpacity{Opacity: 0}

	out, _ := Blend(base, meta, ctx)
	if out[f]["I"] != 0 {
		t.Fatalf("zero-opacity layer contributed: got %d, want 0", out[f]["I"])
	}
}
