// Package output implements the DMX output pipeline described by spec §4.4:
// universe assembly from the patcher's bound fixture instances, per-driver
// frame dispatch, and the two concrete transport controllers the core
// ships — E1.31/sACN over UDP multicast and USB-serial OpenDMX — plus an
// inspection controller used by tests and the "no-op" fixture-level
// OutputDriver.
//
// It is grounded on the teacher's aggregate/registry shape
// (internal/core/pluginmanager.go's string-keyed registration) generalized
// from plugin lifecycle to DMX transport lifecycle, and on
// original_source/simplydmx_backend/src/plugins/output_dmx for the
// universe/controller split itself.
package output

import "github.com/google/uuid"

// Universe512 is one assembled 512-byte DMX frame.
type Universe512 [512]byte

// UniverseInstance is spec §3's UniverseInstance: {id, name, optional
// controller-driver-id}. Per-driver universe state (e.g. an E1.31 numeric
// universe number, or nothing at all for OpenDMX's single implicit
// universe) is held opaquely inside the controller itself.
type UniverseInstance struct {
	ID                 uuid.UUID
	Name               string
	ControllerDriverID *string
}

// Controller is the transport-specific half of the output pipeline: the
// thing that actually owns a wire (a UDP socket, a serial port) and knows
// how to send a set of assembled frames. It is deliberately smaller than
// patcher.OutputDriver — a Controller has no creation/edit forms and no
// fixture-instance lifecycle, only universe registration and frame
// dispatch (spec §4.4 "Driver fan-out").
type Controller interface {
	ID() string

	// Register binds universeID to this controller. config is opaque,
	// driver-specific configuration (e.g. an E1.31 numeric universe
	// number) supplied by whatever created the link. Register may fail
	// (spec §3 "driver's register may fail"), in which case the universe
	// is not linked.
	Register(universeID uuid.UUID, config map[string]interface{}) error

	// Unregister unlinks universeID, e.g. on unlink or delete_universe.
	Unregister(universeID uuid.UUID)

	// SendDMX delivers the current frame for every universe this
	// controller owns that also appears in frames. Implementations must
	// treat this as infallible in the sense spec §4.2/§7 describes for
	// output drivers generally: I/O errors are logged and retried
	// internally, never returned to the caller as a fatal condition
	// (transport I/O errors never propagate to the render loop).
	SendDMX(frames map[uuid.UUID]Universe512) error
}
