package mixer

import (
	"github.com/google/uuid"

	"github.com/lumencore/lumencore/internal/fabric"
)

// PluginID is the service-registry namespace every mixer operation is
// registered under, per spec §4.3 ("each also exposed as a discoverable
// service").
const PluginID = "mixer"

// BlindOpacityResult is GetBlindOpacity's service-call shape: Active is
// false iff no frozen context exists, mirroring the native call's
// (opacity, ok) return since FuncService only splits a function's last
// return value into an error, not a second data value.
type BlindOpacityResult struct {
	Opacity uint16
	Active  bool
}

// RegisterServices exposes every mixer operation spec §4.3 lists as a
// discoverable fabric service under PluginID, then marks the mixer plugin
// registered so init-dependency gating (spawn_when(Plugin{"mixer"}, ...))
// can proceed. Called once by the wiring layer after NewMixer.
func RegisterServices(fab *fabric.Fabric, m *Mixer) error {
	type svcDef struct {
		id, name, desc string
		fn             interface{}
		args           []fabric.ArgDescriptor
		ret            *fabric.ReturnDescriptor
	}

	defs := []svcDef{
		{
			id: "enter_blind_mode", name: "Enter Blind Mode",
			desc: "Clone the live context into a frozen snapshot and enter blind preview.",
			fn:   func() { m.EnterBlindMode() },
		},
		{
			id: "set_blind_opacity", name: "Set Blind Opacity",
			desc: "Set the crossfade between the frozen snapshot and the live context.",
			fn:   func(opacity uint16) error { return m.SetBlindOpacity(opacity) },
			args: []fabric.ArgDescriptor{{ID: "opacity", TypeName: "u16", Description: "0..65535 crossfade toward live output"}},
		},
		{
			id: "get_blind_opacity", name: "Get Blind Opacity",
			desc: "Return the current blind crossfade, Active=false if not in blind mode.",
			fn: func() BlindOpacityResult {
				op, ok := m.GetBlindOpacity()
				return BlindOpacityResult{Opacity: op, Active: ok}
			},
			ret: &fabric.ReturnDescriptor{TypeName: "BlindOpacityResult"},
		},
		{
			id: "revert_blind", name: "Revert Blind",
			desc: "Discard the live context and promote the frozen snapshot back.",
			fn:   func() error { return m.RevertBlind() },
		},
		{
			id: "commit_blind", name: "Commit Blind",
			desc: "Discard the frozen snapshot and keep the live context as-is.",
			fn:   func() error { return m.CommitBlind() },
		},
		{
			id: "create_layer", name: "Create Submaster",
			desc: "Create a new, empty submaster and return its id.",
			fn:   func(name string) uuid.UUID { return m.CreateLayer(name) },
			args: []fabric.ArgDescriptor{{ID: "name", TypeName: "string"}},
			ret:  &fabric.ReturnDescriptor{TypeName: "uuid"},
		},
		{
			id: "rename_layer", name: "Rename Submaster",
			desc: "Rename an existing submaster.",
			fn:   func(id uuid.UUID, name string) error { return m.RenameLayer(id, name) },
			args: []fabric.ArgDescriptor{{ID: "id", TypeName: "uuid", TypeHint: "submasters"}, {ID: "name", TypeName: "string"}},
		},
		{
			id: "delete_layer", name: "Delete Submaster",
			desc: "Delete a submaster: remove it from the submaster list, the stack, and its opacity entry.",
			fn:   func(id uuid.UUID) error { return m.DeleteLayer(id) },
			args: []fabric.ArgDescriptor{{ID: "id", TypeName: "uuid", TypeHint: "submasters"}},
		},
		{
			id: "list_submasters", name: "List Submasters",
			desc: "List every submaster id in user_submaster_order.",
			fn:   func() []uuid.UUID { return m.ListSubmasters() },
			ret:  &fabric.ReturnDescriptor{TypeName: "uuid[]"},
		},
		{
			id: "list_submasters_with_names", name: "List Submasters With Names",
			desc: "List every submaster id paired with its current display name.",
			fn:   func() []SubmasterInfo { return m.ListSubmastersWithNames() },
			ret:  &fabric.ReturnDescriptor{TypeName: "SubmasterInfo[]"},
		},
		{
			id: "get_layer_contents", name: "Get Submaster Contents",
			desc: "Return a submaster's current values, nil if it doesn't exist.",
			fn:   func(id uuid.UUID) *StaticLayer { return m.GetLayerContents(id) },
			args: []fabric.ArgDescriptor{{ID: "id", TypeName: "uuid", TypeHint: "submasters"}},
			ret:  &fabric.ReturnDescriptor{TypeName: "StaticLayer"},
		},
		{
			id: "set_layer_contents", name: "Set Submaster Contents",
			desc: "Per-attribute merge a delta into a submaster's values.",
			fn: func(id uuid.UUID, delta map[uuid.UUID]map[string]BlenderValue) error {
				return m.SetLayerContents(id, delta)
			},
			args: []fabric.ArgDescriptor{
				{ID: "id", TypeName: "uuid", TypeHint: "submasters"},
				{ID: "delta", TypeName: "map<uuid,map<string,BlenderValue>>"},
			},
		},
		{
			id: "set_layer_opacity", name: "Set Submaster Opacity",
			desc: "Set a submaster's opacity, optionally auto-inserting/removing it from the stack.",
			fn: func(id uuid.UUID, opacity uint16, autoInsert bool) error {
				return m.SetLayerOpacity(id, opacity, autoInsert)
			},
			args: []fabric.ArgDescriptor{
				{ID: "id", TypeName: "uuid", TypeHint: "submasters"},
				{ID: "opacity", TypeName: "u16"},
				{ID: "auto_insert", TypeName: "bool"},
			},
		},
		{
			id: "request_blend", name: "Request Blend",
			desc: "Poke the render loop to recompute the output frame on its next tick.",
			fn:   func() { m.RequestBlend() },
		},
	}

	for _, d := range defs {
		svc := fabric.NewFuncService(d.id, d.name, d.desc, true, d.fn, d.args, d.ret)
		if err := fab.RegisterService(PluginID, svc); err != nil {
			return err
		}
	}

	fab.TypeSpecs.Register("submasters", func() []fabric.Option {
		infos := m.ListSubmastersWithNames()
		out := make([]fabric.Option, 0, len(infos))
		for _, info := range infos {
			out = append(out, fabric.Option{Value: info.ID.String(), Label: info.Name})
		}
		return out
	})

	fab.RegisterPlugin(PluginID)
	return nil
}
