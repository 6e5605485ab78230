package output

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

type refusingController struct {
	id string
}

func (c *refusingController) ID() string { return c.id }
func (c *refusingController) Register(uuid.UUID, map[string]interface{}) error {
	return errors.New("no")
}
func (c *refusingController) Unregister(uuid.UUID)                    {}
func (c *refusingController) SendDMX(map[uuid.UUID]Universe512) error { return nil }

func TestUniverseRegistry_LinkUnlinkDeleteLifecycle(t *testing.T) {
	r := NewUniverseRegistry()
	ctrl := NewNullController()
	r.RegisterController(ctrl)

	id := r.Create("house")
	if err := r.Link(id, ctrl.ID(), nil); err != nil {
		t.Fatalf("Link: %v", err)
	}
	byCtrl := r.ByController()
	if len(byCtrl[ctrl.ID()]) != 1 || byCtrl[ctrl.ID()][0] != id {
		t.Fatalf("ByController = %v, want [%s] under %q", byCtrl, id, ctrl.ID())
	}

	if err := r.Unlink(id); err != nil {
		t.Fatalf("Unlink: %v", err)
	}
	if len(r.ByController()[ctrl.ID()]) != 0 {
		t.Fatalf("expected no universes linked after Unlink")
	}

	if err := r.Link(id, ctrl.ID(), nil); err != nil {
		t.Fatalf("re-Link: %v", err)
	}
	if err := r.Delete(id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := r.Get(id); err == nil {
		t.Fatalf("expected Get to fail after Delete")
	}
}

func TestUniverseRegistry_LinkRefusedByControllerLeavesUniverseUnlinked(t *testing.T) {
	r := NewUniverseRegistry()
	refusing := &refusingController{id: "refuser"}
	r.RegisterController(refusing)

	id := r.Create("house")
	if err := r.Link(id, refusing.ID(), nil); err == nil {
		t.Fatalf("expected Link to fail when controller refuses Register")
	}
	u, err := r.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if u.ControllerDriverID != nil {
		t.Fatalf("expected universe to remain unlinked after refused Link")
	}
}

func TestUniverseRegistry_LinkUnknownController(t *testing.T) {
	r := NewUniverseRegistry()
	id := r.Create("house")
	if err := r.Link(id, "nonexistent", nil); err == nil {
		t.Fatalf("expected Link to fail for an unregistered controller id")
	}
}

func TestUniverseRegistry_RelinkUnregistersFromPriorController(t *testing.T) {
	r := NewUniverseRegistry()
	a := NewNullController()
	a.idOverride = "a"
	b := NewNullController()
	b.idOverride = "b"
	r.RegisterController(a)
	r.RegisterController(b)

	id := r.Create("house")
	if err := r.Link(id, a.ID(), nil); err != nil {
		t.Fatalf("Link a: %v", err)
	}
	if err := r.Link(id, b.ID(), nil); err != nil {
		t.Fatalf("Link b: %v", err)
	}
	if len(r.ByController()["a"]) != 0 {
		t.Fatalf("expected universe unregistered from controller a after relink")
	}
	if len(r.ByController()["b"]) != 1 {
		t.Fatalf("expected universe registered under controller b after relink")
	}
}
