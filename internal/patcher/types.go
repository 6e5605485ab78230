// Package patcher holds the fixture library, the patched fixture instances,
// their DMX universe/offset bindings, and the registered output drivers. It
// is the generalization of the teacher's event-sourced aggregate state
// (internal/core, pkg/aggregate) into the patch domain: in-memory source of
// truth, mirrored into a queryable cache for dropdown lookups.
package patcher

import (
	"fmt"

	"github.com/google/uuid"
)

// ChannelSize tags a channel's wire width for eventual DMX truncation.
type ChannelSize int

const (
	SizeU8 ChannelSize = iota
	SizeU16
)

// Max returns the largest value size can hold.
func (s ChannelSize) Max() uint32 {
	if s == SizeU16 {
		return 0xFFFF
	}
	return 0xFF
}

// Priority is a channel's blending scheme.
type Priority int

const (
	PriorityHTP Priority = iota
	PriorityLTP
)

// Snapping is a channel's opacity-modifier rule (spec §4.3 "snap rule").
// SnapNone passes opacity through unchanged; SnapAt produces either
// u16::MAX or 0 depending on whether the input opacity exceeds Threshold.
type Snapping struct {
	At        bool
	Threshold uint16
}

// NoSnap is the "none" snapping variant.
var NoSnap = Snapping{}

// SnapAt constructs an "at(threshold)" snapping variant.
func SnapAt(threshold uint16) Snapping {
	return Snapping{At: true, Threshold: threshold}
}

// Segment is one piece of a Segmented channel's value range, e.g. a gobo
// wheel's discrete slot boundaries. Start/End bound the DMX sub-range this
// segment occupies within the channel's full value domain.
type Segment struct {
	Name  string
	Start uint32
	End   uint32
}

// ChannelKind tags the two channel-type variants spec §3 describes:
// Linear (a single continuous range) or Segmented (discrete sub-ranges,
// e.g. gobo/color wheels).
type ChannelKind int

const (
	ChannelLinear ChannelKind = iota
	ChannelSegmented
)

// ChannelType is the tagged `Linear{priority} | Segmented{segments,
// priority, snapping}` variant from spec §3.
type ChannelType struct {
	Kind     ChannelKind
	Priority Priority
	Segments []Segment // only meaningful when Kind == ChannelSegmented
	Snapping Snapping  // only meaningful when Kind == ChannelSegmented
}

// Linear constructs a Linear{priority} channel type. Linear channels always
// snap=none and bound {0, type-max} per spec §4.2's base-layer synthesis.
func Linear(priority Priority) ChannelType {
	return ChannelType{Kind: ChannelLinear, Priority: priority}
}

// Segmented constructs a Segmented{segments, priority, snapping} channel
// type.
func Segmented(priority Priority, snapping Snapping, segments []Segment) ChannelType {
	return ChannelType{Kind: ChannelSegmented, Priority: priority, Segments: segments, Snapping: snapping}
}

// Channel describes one fixture-type channel: its wire size, default value,
// and blending scheme.
type Channel struct {
	Size    ChannelSize
	Default uint16
	Type    ChannelType
}

// FixtureInfo is a fixture-library entry: a fixture type's channel layout,
// its personalities (named subsets/orderings of channels), and the output
// driver that owns its transport-specific details.
type FixtureInfo struct {
	ID           uuid.UUID
	Name         string
	ShortName    string
	Manufacturer string
	Family       string
	Metadata     map[string]string

	Channels      map[string]Channel
	Personalities map[string][]string

	// IntensityEmulation maps an emulating source channel name C to every
	// target channel it intensity-emulates (spec §4.2: "channel C
	// intensity-emulates channels {D, …}"). After blending, each such D is
	// multiplied by (C / max_of_C), where max_of_C comes from C's own
	// declared Channels[C].Size — not a caller-supplied value — matching
	// both spec §4.2's "max_of_C" text and original_source's
	// apply_virtual_intensities, which divides by 255 or 65535 according
	// to the emulating channel's own ChannelSize. This field has no
	// counterpart on the fixture-type struct in the original source
	// (spec §9 open question #3); it is added here as a designed
	// extension.
	IntensityEmulation map[string][]string

	OutputDriver string
}

// ValidatePersonalities checks the invariant that every channel name
// referenced by any personality exists in Channels.
func (fi *FixtureInfo) ValidatePersonalities() error {
	for persona, channels := range fi.Personalities {
		for _, ch := range channels {
			if _, ok := fi.Channels[ch]; !ok {
				return fmt.Errorf("patcher: personality %q references undeclared channel %q", persona, ch)
			}
		}
	}
	return nil
}

// PersonalitySize returns the total byte width a personality occupies, the sum
// of its channels' declared sizes — used to compute DMX offset ranges.
func (fi *FixtureInfo) PersonalitySize(personality string) (uint16, error) {
	channels, ok := fi.Personalities[personality]
	if !ok {
		return 0, fmt.Errorf("patcher: unknown personality %q", personality)
	}
	var total uint16
	for _, name := range channels {
		ch, ok := fi.Channels[name]
		if !ok {
			return 0, fmt.Errorf("patcher: personality %q references undeclared channel %q", personality, name)
		}
		if ch.Size == SizeU16 {
			total += 2
		} else {
			total += 1
		}
	}
	return total, nil
}

// Position is a fixture instance's 2D visualization coordinate.
type Position struct {
	X, Y float64
}

// FixtureInstance is a patched fixture: a reference to a FixtureInfo plus
// the personality in use and any user-facing metadata.
type FixtureInstance struct {
	ID            uuid.UUID
	FixtureTypeID uuid.UUID
	Personality   string
	Name          string
	Comments      string
	Position      Position
}

// Binding is a fixture instance's DMX universe/offset binding. Offset is
// 1-based per spec §3; Universe and Offset are both optional (a patched but
// unbound fixture contributes nothing to DMX output).
type Binding struct {
	Universe *uuid.UUID
	Offset   *uint16
}
