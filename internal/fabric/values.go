package fabric

import "github.com/fxamacker/cbor/v2"

// Value is a type-erased argument or return value passed to a service
// call's native entry point. Concrete service implementations assert the
// dynamic type they expect; a mismatch is reported as CallErrTypeValidationFailed.
type Value = interface{}

// ArgDescriptor documents one positional argument of a service signature,
// surfaced to callers (and the TypeScript exporter) via Signature.
type ArgDescriptor struct {
	ID          string
	Description string
	TypeName    string
	TypeHint    string // optional, e.g. a type-specifier provider id for UI dropdowns
}

// ReturnDescriptor documents a service's return value, if any.
type ReturnDescriptor struct {
	TypeName string
	TypeHint string
}

// Signature is the ordered argument list plus optional return descriptor a
// service exposes so callers (native, JSON, CBOR) can validate/encode
// around it.
type Signature struct {
	Args   []ArgDescriptor
	Return *ReturnDescriptor
}

// CallErrorKind enumerates the ways a native/JSON/CBOR service call can
// fail without the caller crashing the fabric.
type CallErrorKind int

const (
	CallErrTypeValidationFailed CallErrorKind = iota
	CallErrArgDeserializeFailed
	CallErrResponseSerializeFailed
)

func (k CallErrorKind) String() string {
	switch k {
	case CallErrTypeValidationFailed:
		return "type-validation-failed"
	case CallErrArgDeserializeFailed:
		return "arg-deserialize-failed"
	case CallErrResponseSerializeFailed:
		return "response-serialize-failed"
	default:
		return "unknown"
	}
}

// CallError is returned by Service.Call/CallJSON/CallCBOR on failure.
type CallError struct {
	Kind    CallErrorKind
	Message string
}

func (e *CallError) Error() string {
	if e.Message != "" {
		return e.Kind.String() + ": " + e.Message
	}
	return e.Kind.String()
}

func newCallError(kind CallErrorKind, msg string) *CallError {
	return &CallError{Kind: kind, Message: msg}
}

// marshalCBOR / unmarshalCBOR centralize the cbor.Mode used across the
// fabric so tag handling and struct-field behavior stay consistent between
// the event bus's CBOR translation and services' call_cbor path.
var cborEncMode = func() cbor.EncMode {
	opts := cbor.CanonicalEncOptions()
	mode, err := opts.EncMode()
	if err != nil {
		panic(err)
	}
	return mode
}()

func marshalCBOR(v interface{}) ([]byte, error) {
	return cborEncMode.Marshal(v)
}

func unmarshalCBOR(data []byte, v interface{}) error {
	return cbor.Unmarshal(data, v)
}
