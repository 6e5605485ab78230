package fabric

import (
	"encoding/json"
	"testing"
)

type echoArgs struct{}

func newEchoService() *FuncService {
	return NewFuncService(
		"echo", "Echo", "returns its argument", true,
		func(s string) (string, error) { return s, nil },
		[]ArgDescriptor{{ID: "s", TypeName: "string"}},
		&ReturnDescriptor{TypeName: "string"},
	)
}

func TestRegistryRegisterConflict(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("demo", newEchoService()); err != nil {
		t.Fatalf("first register: %v", err)
	}
	err := r.Register("demo", newEchoService())
	if err == nil {
		t.Fatal("expected id-conflict error")
	}
	if _, ok := err.(*ErrIDConflict); !ok {
		t.Fatalf("expected *ErrIDConflict, got %T", err)
	}
}

func TestRegistryGetNotFound(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get("demo", "missing")
	if _, ok := err.(*ErrServiceNotFound); !ok {
		t.Fatalf("expected *ErrServiceNotFound, got %v", err)
	}
}

func TestRegistryListOnlyDiscoverable(t *testing.T) {
	r := NewRegistry()
	_ = r.Register("demo", newEchoService())
	hidden := NewFuncService("hidden", "Hidden", "", false, func() error { return nil }, nil, nil)
	_ = r.Register("demo", hidden)

	list := r.List()
	if len(list) != 1 {
		t.Fatalf("expected 1 discoverable service, got %d", len(list))
	}
	if list[0].ServiceID != "echo" {
		t.Fatalf("unexpected service in listing: %+v", list[0])
	}
}

func TestFuncServiceCallVariants(t *testing.T) {
	svc := newEchoService()

	ret, callErr := svc.Call([]Value{"hello"})
	if callErr != nil {
		t.Fatalf("Call: %v", callErr)
	}
	if ret.(string) != "hello" {
		t.Fatalf("Call returned %v", ret)
	}

	jret, callErr := svc.CallJSON([]json.RawMessage{json.RawMessage(`"hello"`)})
	if callErr != nil {
		t.Fatalf("CallJSON: %v", callErr)
	}
	if string(jret) != `"hello"` {
		t.Fatalf("CallJSON returned %s", jret)
	}

	cret, callErr := svc.CallCBOR([][]byte{mustCBOR(t, "hello")})
	if callErr != nil {
		t.Fatalf("CallCBOR: %v", callErr)
	}
	var out string
	if err := unmarshalCBOR(cret, &out); err != nil {
		t.Fatalf("decode CallCBOR result: %v", err)
	}
	if out != "hello" {
		t.Fatalf("CallCBOR returned %q", out)
	}
}

func TestFuncServiceCallTypeMismatch(t *testing.T) {
	svc := newEchoService()
	_, callErr := svc.Call([]Value{42})
	if callErr == nil || callErr.Kind != CallErrTypeValidationFailed {
		t.Fatalf("expected type-validation-failed, got %v", callErr)
	}
}

func mustCBOR(t *testing.T, v interface{}) []byte {
	t.Helper()
	b, err := marshalCBOR(v)
	if err != nil {
		t.Fatalf("marshalCBOR: %v", err)
	}
	return b
}
