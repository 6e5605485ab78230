package tsexport

import (
	"strings"
	"testing"

	"github.com/lumencore/lumencore/internal/fabric"
)

func TestGenerateGroupsServicesByPlugin(t *testing.T) {
	descs := []fabric.ServiceDescription{
		{
			PluginID: "mixer", ServiceID: "create_layer", Name: "Create Submaster",
			Description: "Create a new, empty submaster and return its id.",
			Signature: fabric.Signature{
				Args:   []fabric.ArgDescriptor{{ID: "name", TypeName: "string"}},
				Return: &fabric.ReturnDescriptor{TypeName: "uuid"},
			},
		},
		{
			PluginID: "patcher", ServiceID: "bind_fixture_instance", Name: "Bind Fixture Instance",
			Description: "Assign a DMX universe/offset to an instance.",
			Signature: fabric.Signature{
				Args: []fabric.ArgDescriptor{
					{ID: "instance_id", TypeName: "uuid"},
					{ID: "universe", TypeName: "uuid"},
					{ID: "offset", TypeName: "u16"},
				},
			},
		},
	}

	out := Generate(descs)

	if !strings.Contains(out, "export interface MixerServices {") {
		t.Fatalf("expected MixerServices interface, got:\n%s", out)
	}
	if !strings.Contains(out, "export interface PatcherServices {") {
		t.Fatalf("expected PatcherServices interface, got:\n%s", out)
	}
	if !strings.Contains(out, "createLayer(name: string): Promise<string>;") {
		t.Fatalf("expected createLayer method signature, got:\n%s", out)
	}
	if !strings.Contains(out, "bindFixtureInstance(instanceId: string, universe: string, offset: number): Promise<void>;") {
		t.Fatalf("expected bindFixtureInstance method signature, got:\n%s", out)
	}
	if !strings.Contains(out, `{ pluginId: "mixer", serviceId: "create_layer"`) {
		t.Fatalf("expected SERVICE_CATALOG entry for mixer/create_layer, got:\n%s", out)
	}
}

func TestTsTypeMapsCompoundNames(t *testing.T) {
	cases := map[string]string{
		"":      "void",
		"bool":  "boolean",
		"u16":   "number",
		"uuid":  "string",
		"uuid[]": "string[]",
		"map<uuid,map<string,BlenderValue>>": "Record<string, Record<string, BlenderValue>>",
		"FixtureInfo": "FixtureInfo",
	}
	for in, want := range cases {
		if got := tsType(in); got != want {
			t.Errorf("tsType(%q) = %q, want %q", in, got, want)
		}
	}
}
