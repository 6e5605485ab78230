package fabric

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// Service is the opaque "service handle" spec.md §4.1 describes: one
// implementation reachable by in-process callers (Call), JSON-over-stdio
// callers (CallJSON) and CBOR-over-stdio callers (CallCBOR).
type Service interface {
	ID() string
	Name() string
	Description() string
	Discoverable() bool
	Signature() Signature
	Call(args []Value) (Value, *CallError)
	CallJSON(args []json.RawMessage) (json.RawMessage, *CallError)
	CallCBOR(args [][]byte) ([]byte, *CallError)
}

// FuncService generates the Call/CallJSON/CallCBOR trio from a single Go
// function via reflection, so (per spec.md §9) the three entry points
// cannot drift relative to each other — there is exactly one source of
// truth, the function's reflect.Type.
//
// Fn must be a func whose parameters match ArgDescriptors 1:1 and which
// returns either (Value, error), Value, or nothing.
type FuncService struct {
	id           string
	name         string
	description  string
	discoverable bool
	fn           reflect.Value
	fnType       reflect.Type
	sig          Signature
}

// NewFuncService builds a Service from a Go function.
func NewFuncService(id, name, description string, discoverable bool, fn interface{}, args []ArgDescriptor, ret *ReturnDescriptor) *FuncService {
	v := reflect.ValueOf(fn)
	t := v.Type()
	if t.Kind() != reflect.Func {
		panic(fmt.Sprintf("fabric: service %s: fn must be a func", id))
	}
	if t.NumIn() != len(args) {
		panic(fmt.Sprintf("fabric: service %s: fn takes %d args, %d descriptors given", id, t.NumIn(), len(args)))
	}
	return &FuncService{
		id:           id,
		name:         name,
		description:  description,
		discoverable: discoverable,
		fn:           v,
		fnType:       t,
		sig:          Signature{Args: args, Return: ret},
	}
}

func (s *FuncService) ID() string            { return s.id }
func (s *FuncService) Name() string          { return s.name }
func (s *FuncService) Description() string   { return s.description }
func (s *FuncService) Discoverable() bool    { return s.discoverable }
func (s *FuncService) Signature() Signature { return s.sig }

// invoke converts decoded Go values into reflect args, calls the function,
// and splits the result into (value, error).
func (s *FuncService) invoke(args []reflect.Value) (Value, error) {
	if len(args) != s.fnType.NumIn() {
		return nil, fmt.Errorf("expected %d arguments, got %d", s.fnType.NumIn(), len(args))
	}
	out := s.fn.Call(args)
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		if err, ok := out[0].Interface().(error); ok {
			return nil, err
		}
		return out[0].Interface(), nil
	default:
		var err error
		if e, ok := out[len(out)-1].Interface().(error); ok {
			err = e
		}
		return out[0].Interface(), err
	}
}

// Call is the native, type-erased entry point: args must already be
// assignable to the function's declared parameter types.
func (s *FuncService) Call(args []Value) (Value, *CallError) {
	if len(args) != s.fnType.NumIn() {
		return nil, newCallError(CallErrTypeValidationFailed, "argument count mismatch")
	}
	rargs := make([]reflect.Value, len(args))
	for i, a := range args {
		want := s.fnType.In(i)
		av := reflect.ValueOf(a)
		if !av.IsValid() {
			if want.Kind() == reflect.Ptr || want.Kind() == reflect.Interface {
				rargs[i] = reflect.Zero(want)
				continue
			}
			return nil, newCallError(CallErrTypeValidationFailed, fmt.Sprintf("arg %d: nil not assignable to %s", i, want))
		}
		if !av.Type().AssignableTo(want) {
			return nil, newCallError(CallErrTypeValidationFailed, fmt.Sprintf("arg %d: %s not assignable to %s", i, av.Type(), want))
		}
		rargs[i] = av
	}
	ret, err := s.invoke(rargs)
	if err != nil {
		return nil, newCallError(CallErrTypeValidationFailed, err.Error())
	}
	return ret, nil
}

// CallJSON decodes a JSON array of arguments, calls the function, and
// re-encodes the result as JSON.
func (s *FuncService) CallJSON(args []json.RawMessage) (json.RawMessage, *CallError) {
	if len(args) != s.fnType.NumIn() {
		return nil, newCallError(CallErrArgDeserializeFailed, "argument count mismatch")
	}
	rargs := make([]reflect.Value, len(args))
	for i, raw := range args {
		want := s.fnType.In(i)
		ptr := reflect.New(want)
		if err := json.Unmarshal(raw, ptr.Interface()); err != nil {
			return nil, newCallError(CallErrArgDeserializeFailed, fmt.Sprintf("arg %d: %v", i, err))
		}
		rargs[i] = ptr.Elem()
	}
	ret, err := s.invoke(rargs)
	if err != nil {
		return nil, newCallError(CallErrArgDeserializeFailed, err.Error())
	}
	out, merr := json.Marshal(ret)
	if merr != nil {
		return nil, newCallError(CallErrResponseSerializeFailed, merr.Error())
	}
	return out, nil
}

// CallCBOR decodes a sequence of CBOR-encoded argument byte strings, calls
// the function, and re-encodes the result as CBOR.
func (s *FuncService) CallCBOR(args [][]byte) ([]byte, *CallError) {
	if len(args) != s.fnType.NumIn() {
		return nil, newCallError(CallErrArgDeserializeFailed, "argument count mismatch")
	}
	rargs := make([]reflect.Value, len(args))
	for i, raw := range args {
		want := s.fnType.In(i)
		ptr := reflect.New(want)
		if err := unmarshalCBOR(raw, ptr.Interface()); err != nil {
			return nil, newCallError(CallErrArgDeserializeFailed, fmt.Sprintf("arg %d: %v", i, err))
		}
		rargs[i] = ptr.Elem()
	}
	ret, err := s.invoke(rargs)
	if err != nil {
		return nil, newCallError(CallErrArgDeserializeFailed, err.Error())
	}
	out, merr := marshalCBOR(ret)
	if merr != nil {
		return nil, newCallError(CallErrResponseSerializeFailed, merr.Error())
	}
	return out, nil
}
