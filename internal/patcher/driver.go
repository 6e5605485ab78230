package patcher

import "github.com/google/uuid"

// FrameValues is the current value of every active channel of every patched
// fixture instance, as produced by the mixer's blend pass (spec §4.2/§4.3).
// Keyed by (fixture instance id, channel name).
type FrameValues map[uuid.UUID]map[string]uint16

// FormField describes one editable field of a driver's creation/edit form,
// surfaced to the JSON-RPC GUI layer (spec §6). A TypeHint, if set, names a
// TypeSpecifierRegistry provider id for dropdown population.
type FormField struct {
	ID          string
	Label       string
	TypeName    string
	TypeHint    string
	Description string
}

// Form is a driver's response to get_creation_form/get_edit_form: the field
// list plus any current values (edit) or defaults (creation), opaque to the
// patcher itself.
type Form struct {
	Fields       []FormField
	CurrentValue map[string]interface{}
}

// OutputDriver is the polymorphic driver abstraction spec §4.2/§9 describes:
// a small interface indexed by string id, since the universe of drivers
// (DMX personalities, E1.31, OpenDMX, and any future control-surface
// provider) is not closed at compile time. The registry owns each driver by
// a plain pointer the render hot path can pass around cheaply; Go has no
// cheap-clone shared-ownership primitive equivalent to Rust's Arc, so the
// driver itself is responsible for internal synchronization of any mutable
// state `send_updates` touches.
type OutputDriver interface {
	ID() string
	Name() string
	Description() string

	// ImportFixture ingests driver-side, protocol-specific fixture details
	// (e.g. a GDTF/fixture-profile blob) for the fixture type named by id.
	ImportFixture(id uuid.UUID, data []byte) error

	GetCreationForm(fixtureType uuid.UUID) (Form, error)
	CreateFixtureInstance(instanceID uuid.UUID, fixtureType uuid.UUID, personality string, formData map[string]interface{}) error

	GetEditForm(instanceID uuid.UUID) (Form, error)
	EditFixtureInstance(instanceID uuid.UUID, formData map[string]interface{}) error
	RemoveFixtureInstance(instanceID uuid.UUID) error

	// SendUpdates is the hot path: the current frame values for every
	// instance this driver owns. A panic here is fatal by spec §4.2/§7 —
	// drivers must swallow their own internal errors and never let send
	// failures escape as a panic except for genuine programmer error, which
	// the render loop intentionally does not recover from.
	SendUpdates(frame FrameValues, finalFrame bool) error
}
