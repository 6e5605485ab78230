package output

import (
	"github.com/google/uuid"

	"github.com/lumencore/lumencore/internal/fabric"
)

// PluginID is the service-registry namespace every universe-lifecycle
// operation is registered under, per spec §3/§4.4.
const PluginID = "output"

// RegisterServices exposes the universe lifecycle (create/rename/link/
// unlink/delete/list) as discoverable fabric services under PluginID, and
// registers the "universes" type-specifier provider the DMX binding form
// (driver.go's bindingForm) and forms system dropdown both rely on.
// Called once by the wiring layer after NewUniverseRegistry and every
// Controller has been registered.
func RegisterServices(fab *fabric.Fabric, reg *UniverseRegistry) error {
	type svcDef struct {
		id, name, desc string
		fn             interface{}
		args           []fabric.ArgDescriptor
		ret            *fabric.ReturnDescriptor
	}

	defs := []svcDef{
		{
			id: "create_universe", name: "Create Universe",
			desc: "Create a new, unlinked 512-byte DMX universe and return its id.",
			fn:   func(name string) uuid.UUID { return reg.Create(name) },
			args: []fabric.ArgDescriptor{{ID: "name", TypeName: "string"}},
			ret:  &fabric.ReturnDescriptor{TypeName: "uuid"},
		},
		{
			id: "rename_universe", name: "Rename Universe",
			desc: "Change a universe's display name.",
			fn:   func(id uuid.UUID, name string) error { return reg.Rename(id, name) },
			args: []fabric.ArgDescriptor{{ID: "id", TypeName: "uuid", TypeHint: "universes"}, {ID: "name", TypeName: "string"}},
		},
		{
			id: "link_universe", name: "Link Universe",
			desc: "Bind a universe to a registered controller, consulting the controller's Register.",
			fn: func(universeID uuid.UUID, controllerID string, config map[string]interface{}) error {
				return reg.Link(universeID, controllerID, config)
			},
			args: []fabric.ArgDescriptor{
				{ID: "universe_id", TypeName: "uuid", TypeHint: "universes"},
				{ID: "controller_id", TypeName: "string"},
				{ID: "config", TypeName: "map<string,any>"},
			},
		},
		{
			id: "unlink_universe", name: "Unlink Universe",
			desc: "Detach a universe from its controller, if any.",
			fn:   func(universeID uuid.UUID) error { return reg.Unlink(universeID) },
			args: []fabric.ArgDescriptor{{ID: "universe_id", TypeName: "uuid", TypeHint: "universes"}},
		},
		{
			id: "delete_universe", name: "Delete Universe",
			desc: "Remove a universe entirely; its controller receives Unregister first.",
			fn:   func(universeID uuid.UUID) error { return reg.Delete(universeID) },
			args: []fabric.ArgDescriptor{{ID: "universe_id", TypeName: "uuid", TypeHint: "universes"}},
		},
		{
			id: "list_universes", name: "List Universes",
			desc: "List every registered universe instance.",
			fn:   func() []*UniverseInstance { return reg.List() },
			ret:  &fabric.ReturnDescriptor{TypeName: "UniverseInstance[]"},
		},
	}

	for _, d := range defs {
		svc := fabric.NewFuncService(d.id, d.name, d.desc, true, d.fn, d.args, d.ret)
		if err := fab.RegisterService(PluginID, svc); err != nil {
			return err
		}
	}

	fab.TypeSpecs.Register("universes", func() []fabric.Option {
		universes := reg.List()
		out := make([]fabric.Option, 0, len(universes))
		for _, u := range universes {
			out = append(out, fabric.Option{Value: u.ID.String(), Label: u.Name})
		}
		return out
	})

	fab.RegisterPlugin(PluginID)
	return nil
}
