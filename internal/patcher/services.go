package patcher

import (
	"github.com/google/uuid"

	"github.com/lumencore/lumencore/internal/fabric"
)

// PluginID is the service-registry namespace every patcher operation is
// registered under, per spec §4.2/§9.
const PluginID = "patcher"

// BindingResult is GetBinding's service-call shape, mirroring the native
// (Binding, ok) return as a single value.
type BindingResult struct {
	Binding Binding
	Bound   bool
}

// RegisterServices exposes the patcher's fixture-instance lifecycle and DMX
// binding operations as discoverable fabric services under PluginID, and
// registers the "fixture-types"/"fixture-manufacturers"/"fixture-families"
// type-specifier providers the forms system uses to populate dropdowns
// (spec §4.1 "used by the forms system to populate dynamic choices").
// Called once by the wiring layer after NewPatcher and Library construction.
func RegisterServices(fab *fabric.Fabric, p *Patcher, lib *Library) error {
	type svcDef struct {
		id, name, desc string
		fn             interface{}
		args           []fabric.ArgDescriptor
		ret            *fabric.ReturnDescriptor
	}

	defs := []svcDef{
		{
			id: "create_fixture_instance", name: "Create Fixture Instance",
			desc: "Patch a new fixture instance, consulting its output driver.",
			fn: func(instanceID, fixtureTypeID uuid.UUID, personality string, formData map[string]interface{}) error {
				return p.CreateFixtureInstance(instanceID, fixtureTypeID, personality, formData)
			},
			args: []fabric.ArgDescriptor{
				{ID: "instance_id", TypeName: "uuid"},
				{ID: "fixture_type_id", TypeName: "uuid", TypeHint: "fixture-types"},
				{ID: "personality", TypeName: "string"},
				{ID: "form_data", TypeName: "map<string,any>"},
			},
		},
		{
			id: "edit_fixture_instance", name: "Edit Fixture Instance",
			desc: "Update a patched instance's mutable fields, consulting its output driver.",
			fn: func(instanceID uuid.UUID, name, comments string, position Position, formData map[string]interface{}) error {
				return p.EditFixtureInstance(instanceID, name, comments, position, formData)
			},
			args: []fabric.ArgDescriptor{
				{ID: "instance_id", TypeName: "uuid", TypeHint: "fixture-instances"},
				{ID: "name", TypeName: "string"},
				{ID: "comments", TypeName: "string"},
				{ID: "position", TypeName: "Position"},
				{ID: "form_data", TypeName: "map<string,any>"},
			},
		},
		{
			id: "remove_fixture_instance", name: "Remove Fixture Instance",
			desc: "Delete a patched instance, consulting its output driver.",
			fn:   func(instanceID uuid.UUID) error { return p.RemoveFixtureInstance(instanceID) },
			args: []fabric.ArgDescriptor{{ID: "instance_id", TypeName: "uuid", TypeHint: "fixture-instances"}},
		},
		{
			id: "bind_fixture_instance", name: "Bind Fixture Instance",
			desc: "Assign a DMX universe/offset to an instance, rejecting overlapping bindings.",
			fn:   func(instanceID, universe uuid.UUID, offset uint16) error { return p.Bind(instanceID, universe, offset) },
			args: []fabric.ArgDescriptor{
				{ID: "instance_id", TypeName: "uuid", TypeHint: "fixture-instances"},
				{ID: "universe", TypeName: "uuid", TypeHint: "universes"},
				{ID: "offset", TypeName: "u16"},
			},
		},
		{
			id: "unbind_fixture_instance", name: "Unbind Fixture Instance",
			desc: "Remove an instance's DMX binding, if any.",
			fn:   func(instanceID uuid.UUID) { p.Unbind(instanceID) },
			args: []fabric.ArgDescriptor{{ID: "instance_id", TypeName: "uuid", TypeHint: "fixture-instances"}},
		},
		{
			id: "get_binding", name: "Get Binding",
			desc: "Return an instance's current DMX binding, Bound=false if unbound or unknown.",
			fn: func(instanceID uuid.UUID) BindingResult {
				b, ok := p.GetBinding(instanceID)
				return BindingResult{Binding: b, Bound: ok}
			},
			args: []fabric.ArgDescriptor{{ID: "instance_id", TypeName: "uuid", TypeHint: "fixture-instances"}},
			ret:  &fabric.ReturnDescriptor{TypeName: "BindingResult"},
		},
		{
			id: "list_fixture_instances", name: "List Fixture Instances",
			desc: "List every currently patched instance.",
			fn:   func() []*FixtureInstance { return p.Instances() },
			ret:  &fabric.ReturnDescriptor{TypeName: "FixtureInstance[]"},
		},
		{
			id: "list_fixture_types", name: "List Fixture Types",
			desc: "List every fixture type in the library.",
			fn:   func() []*FixtureInfo { return lib.List() },
			ret:  &fabric.ReturnDescriptor{TypeName: "FixtureInfo[]"},
		},
		{
			id: "import_fixture_type", name: "Import Fixture Type",
			desc: "Add a new fixture type to the library; fixture types are never mutated once created.",
			fn:   func(fi *FixtureInfo) error { return lib.Import(fi) },
			args: []fabric.ArgDescriptor{{ID: "fixture_info", TypeName: "FixtureInfo"}},
		},
	}

	for _, d := range defs {
		svc := fabric.NewFuncService(d.id, d.name, d.desc, true, d.fn, d.args, d.ret)
		if err := fab.RegisterService(PluginID, svc); err != nil {
			return err
		}
	}

	fab.TypeSpecs.Register("fixture-types", func() []fabric.Option {
		types := lib.List()
		out := make([]fabric.Option, 0, len(types))
		for _, fi := range types {
			out = append(out, fabric.Option{Value: fi.ID.String(), Label: fi.Name})
		}
		return out
	})
	fab.TypeSpecs.Register("fixture-manufacturers", func() []fabric.Option {
		names, err := lib.Manufacturers()
		if err != nil {
			return nil
		}
		out := make([]fabric.Option, 0, len(names))
		for _, n := range names {
			out = append(out, fabric.Option{Value: n, Label: n})
		}
		return out
	})
	fab.TypeSpecs.Register("fixture-families", func() []fabric.Option {
		names, err := lib.Families()
		if err != nil {
			return nil
		}
		out := make([]fabric.Option, 0, len(names))
		for _, n := range names {
			out = append(out, fabric.Option{Value: n, Label: n})
		}
		return out
	})
	fab.TypeSpecs.Register("fixture-instances", func() []fabric.Option {
		instances := p.Instances()
		out := make([]fabric.Option, 0, len(instances))
		for _, inst := range instances {
			label := inst.Name
			if label == "" {
				label = inst.ID.String()
			}
			out = append(out, fabric.Option{Value: inst.ID.String(), Label: label})
		}
		return out
	})

	fab.RegisterPlugin(PluginID)
	return nil
}
