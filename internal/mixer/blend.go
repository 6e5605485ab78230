package mixer

import (
	"math"

	"github.com/lumencore/lumencore/internal/patcher"
)

// opacityModifier implements the snap rule from spec §4.3: "none" passes
// opacity through unchanged; "at(threshold)" returns u16::MAX when the
// input exceeds threshold, else 0.
func opacityModifier(snap patcher.Snapping, opacity uint16) uint16 {
	if !snap.At {
		return opacity
	}
	if opacity > snap.Threshold {
		return 0xFFFF
	}
	return 0
}

// clampRound clamps an IEEE-754 double intermediate to [0, 65535] then
// rounds to nearest, per spec §4.3 "Numeric semantics".
func clampRound(v float64) uint16 {
	if v < 0 {
		return 0
	}
	if v > 65535 {
		return 65535
	}
	return uint16(math.Round(v))
}

// Blend runs one render tick's blend pass (spec §4.3 "Blend algorithm").
// base is the patcher's FullMixerOutput, meta its FullMixerBlendingData, ctx
// the mixing context currently on display (default, or frozen when blind
// opacity is below max — the caller resolves which). Returns the final
// frame and whether any active layer was animated this tick.
func Blend(base patcher.FrameValues, meta patcher.BlendMeta, ctx *MixingContext) (patcher.FrameValues, bool) {
	cumulative := make(patcher.FrameValues, len(base))
	for fixture, attrs := range base {
		cp := make(map[string]uint16, len(attrs))
		for attr, v := range attrs {
			cp[attr] = v
		}
		cumulative[fixture] = cp
	}

	animated := false
	for _, layerID := range ctx.LayerOrder {
		opacityState, ok := ctx.LayerOpacities[layerID]
		if !ok || opacityState.EffectiveOpacity() == 0 {
			continue
		}
		layer, ok := ctx.UserSubmasters[layerID]
		if !ok {
			continue
		}
		opacity := opacityState.EffectiveOpacity()
		if layer.Animated {
			animated = true
		}

		for fixture, layerAttrs := range layer.Values {
			metaAttrs, ok := meta[fixture]
			if !ok {
				continue
			}
			cumAttrs, ok := cumulative[fixture]
			if !ok {
				continue
			}
			for attr, val := range layerAttrs {
				chMeta, ok := metaAttrs[attr]
				if !ok {
					continue
				}
				cur, ok := cumAttrs[attr]
				if !ok {
					continue
				}

				switch val.Kind {
				case ValueNone:
					continue
				case ValueOffset:
					op := opacityModifier(chMeta.Snap, opacity)
					faded := float64(val.Offset) * float64(op) / 65535.0
					cumAttrs[attr] = clampRound(float64(cur) + faded)
				case ValueStatic:
					if chMeta.Scheme == patcher.PriorityHTP {
						op := opacityModifier(chMeta.Snap, opacity)
						faded := float64(val.Static) * float64(op) / 65535.0
						rounded := clampRound(faded)
						if rounded > cur {
							cumAttrs[attr] = rounded
						}
					} else { // LTP: snapping never applies directly.
						result := (float64(val.Static)-float64(cur))*float64(opacity)/65535.0 + float64(cur)
						cumAttrs[attr] = clampRound(result)
					}
				}
			}
		}
	}

	return cumulative, animated
}
