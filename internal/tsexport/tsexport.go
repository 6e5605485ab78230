// Package tsexport implements the build-time TypeScript client generator
// spec.md §6 mentions as part of the CLI surface: "it runs after init, reads
// the service listing, writes a file, exits". It is deliberately thin — the
// spec calls the GUI/control-surface client out of scope, so this package
// only owns the contract-shaped part: turning a fabric.Registry listing into
// a TypeScript module a hand-written client can import.
package tsexport

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lumencore/lumencore/internal/fabric"
)

// tsType maps a service's ArgDescriptor/ReturnDescriptor TypeName — itself a
// free-form string the service author chose, e.g. "uuid", "u16",
// "map<uuid,map<string,BlenderValue>>" — onto its TypeScript spelling. Names
// tsexport doesn't recognize pass through unchanged as an interface
// reference; Generate does not declare those interfaces itself.
func tsType(name string) string {
	switch name {
	case "", "void":
		return "void"
	case "bool":
		return "boolean"
	case "string":
		return "string"
	case "u8", "u16", "u32", "u64", "i8", "i16", "i32", "i64", "f32", "f64":
		return "number"
	case "uuid":
		return "string"
	case "uuid[]":
		return "string[]"
	}
	if strings.HasSuffix(name, "[]") {
		return tsType(strings.TrimSuffix(name, "[]")) + "[]"
	}
	if strings.HasPrefix(name, "map<") && strings.HasSuffix(name, ">") {
		inner := strings.TrimSuffix(strings.TrimPrefix(name, "map<"), ">")
		parts := splitTopLevelComma(inner)
		if len(parts) == 2 {
			return fmt.Sprintf("Record<%s, %s>", tsType(strings.TrimSpace(parts[0])), tsType(strings.TrimSpace(parts[1])))
		}
	}
	return name
}

// splitTopLevelComma splits s on commas that aren't nested inside another
// map<...>, so "map<uuid,map<string,BlenderValue>>"'s inner
// "uuid,map<string,BlenderValue>" splits into exactly two parts.
func splitTopLevelComma(s string) []string {
	depth := 0
	var parts []string
	last := 0
	for i, r := range s {
		switch r {
		case '<':
			depth++
		case '>':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[last:i])
				last = i + 1
			}
		}
	}
	parts = append(parts, s[last:])
	return parts
}

func camel(s string) string {
	parts := strings.Split(s, "_")
	for i := 1; i < len(parts); i++ {
		if parts[i] == "" {
			continue
		}
		parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
	}
	return strings.Join(parts, "")
}

func pascal(s string) string {
	c := camel(s)
	if c == "" {
		return c
	}
	return strings.ToUpper(c[:1]) + c[1:]
}

// Generate renders every discoverable service in descs as a TypeScript
// module: one interface per plugin grouping its services' call signatures,
// plus a SERVICE_CATALOG array of ServiceDescriptor entries client code can
// use to validate a service id before calling it. The plugin interfaces are
// emitted sorted by plugin id; services within an interface, and the
// SERVICE_CATALOG entries, keep the order of descs (fabric.Registry.List
// returns plugin_id/service_id order).
func Generate(descs []fabric.ServiceDescription) string {
	var b strings.Builder

	b.WriteString("// Code generated by `lumencored tsexport`. DO NOT EDIT.\n")
	b.WriteString("// Describes every discoverable fabric service at generation time.\n\n")

	byPlugin := make(map[string][]fabric.ServiceDescription)
	var plugins []string
	for _, d := range descs {
		if _, ok := byPlugin[d.PluginID]; !ok {
			plugins = append(plugins, d.PluginID)
		}
		byPlugin[d.PluginID] = append(byPlugin[d.PluginID], d)
	}
	sort.Strings(plugins)

	for _, plugin := range plugins {
		fmt.Fprintf(&b, "export interface %sServices {\n", pascal(plugin))
		for _, d := range byPlugin[plugin] {
			writeMethod(&b, d)
		}
		b.WriteString("}\n\n")
	}

	b.WriteString("export interface ServiceDescriptor {\n")
	b.WriteString("  pluginId: string;\n")
	b.WriteString("  serviceId: string;\n")
	b.WriteString("  name: string;\n")
	b.WriteString("  description: string;\n")
	b.WriteString("}\n\n")

	b.WriteString("export const SERVICE_CATALOG: ServiceDescriptor[] = [\n")
	for _, d := range descs {
		fmt.Fprintf(&b, "  { pluginId: %q, serviceId: %q, name: %q, description: %q },\n",
			d.PluginID, d.ServiceID, d.Name, d.Description)
	}
	b.WriteString("];\n")

	return b.String()
}

func writeMethod(b *strings.Builder, d fabric.ServiceDescription) {
	if d.Description != "" {
		fmt.Fprintf(b, "  /** %s */\n", d.Description)
	}
	args := make([]string, 0, len(d.Signature.Args))
	for _, a := range d.Signature.Args {
		args = append(args, fmt.Sprintf("%s: %s", camel(a.ID), tsType(a.TypeName)))
	}
	ret := "void"
	if d.Signature.Return != nil {
		ret = tsType(d.Signature.Return.TypeName)
	}
	fmt.Fprintf(b, "  %s(%s): Promise<%s>;\n", camel(d.ServiceID), strings.Join(args, ", "), ret)
}
