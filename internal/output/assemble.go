package output

import (
	"encoding/binary"

	"github.com/google/uuid"

	"github.com/lumencore/lumencore/internal/patcher"
)

// bindingEntry is one patched-and-bound fixture instance's precomputed
// placement within a universe: the occupied DMX offset and the ordered
// channel list to walk when writing its current values (spec §4.4
// "Universe assembly").
type bindingEntry struct {
	Universe uuid.UUID
	Offset   uint16 // 1-based, per spec §3
	Channels []patcher.ChannelLayout
}

// buildBindingSnapshot reads every patched instance's binding and channel
// layout once, via the patcher's read-only accessors. It is called outside
// SendUpdates (on patch_updated, and once at startup) so the hot path never
// re-enters the patcher (spec §4.2 "must not re-enter the patcher inside
// that call").
func buildBindingSnapshot(p *patcher.Patcher) map[uuid.UUID]bindingEntry {
	out := make(map[uuid.UUID]bindingEntry)
	for _, inst := range p.Instances() {
		binding, ok := p.GetBinding(inst.ID)
		if !ok || binding.Universe == nil || binding.Offset == nil {
			continue
		}
		channels, err := p.InstanceChannelLayout(inst.ID)
		if err != nil {
			continue
		}
		out[inst.ID] = bindingEntry{
			Universe: *binding.Universe,
			Offset:   *binding.Offset,
			Channels: channels,
		}
	}
	return out
}

// assembleUniverses creates a fresh zeroed 512-byte buffer for every id in
// universeIDs, then writes every bound instance's current channel values
// into the buffer for its universe (spec §4.4): U8 truncates to one byte,
// U16 writes big-endian two bytes; missing frame data silently leaves
// zeros; writes that would run past byte 512 are dropped rather than
// panicking, since an invariant violation here would already have been
// rejected at bind time (spec §3) — defense in depth only.
func assembleUniverses(universeIDs []uuid.UUID, snapshot map[uuid.UUID]bindingEntry, frame patcher.FrameValues) map[uuid.UUID]Universe512 {
	out := make(map[uuid.UUID]Universe512, len(universeIDs))
	for _, id := range universeIDs {
		out[id] = Universe512{}
	}
	for instanceID, entry := range snapshot {
		buf, ok := out[entry.Universe]
		if !ok {
			continue
		}
		attrs := frame[instanceID]
		pos := int(entry.Offset) - 1
		for _, ch := range entry.Channels {
			val := attrs[ch.Name]
			switch ch.Size {
			case patcher.SizeU16:
				if pos >= 0 && pos+1 < 512 {
					binary.BigEndian.PutUint16(buf[pos:pos+2], val)
				}
				pos += 2
			default: // SizeU8
				if pos >= 0 && pos < 512 {
					buf[pos] = byte(val)
				}
				pos++
			}
		}
		out[entry.Universe] = buf
	}
	return out
}
