// Package rpc implements the JSON-RPC surface spec.md §6 describes:
// CallService/GetServices/GetOptions/SendEvent/Subscribe/Unsubscribe,
// served over both a gorilla/websocket connection per client (grounded on
// the teacher's internal/godot_ws.GodotServer) and newline-delimited JSON
// over stdio.
package rpc

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/lumencore/lumencore/internal/fabric"
)

// WireCriteria is FilterCriteria's JSON wire shape.
type WireCriteria struct {
	Kind  string `json:"kind"`            // "none" | "string" | "uuid"
	Value string `json:"value,omitempty"`
}

// ToFilterCriteria decodes the wire form, defaulting to NoCriteria when c
// is nil (the "optional criteria" spec.md §6 describes).
func (c *WireCriteria) ToFilterCriteria() (fabric.FilterCriteria, error) {
	if c == nil || c.Kind == "" || c.Kind == "none" {
		return fabric.NoCriteria, nil
	}
	switch c.Kind {
	case "string":
		return fabric.StringCriteria(c.Value), nil
	case "uuid":
		id, err := uuid.Parse(c.Value)
		if err != nil {
			return fabric.FilterCriteria{}, fmt.Errorf("rpc: invalid uuid criteria %q: %w", c.Value, err)
		}
		return fabric.UUIDCriteria(id), nil
	default:
		return fabric.FilterCriteria{}, fmt.Errorf("rpc: unknown criteria kind %q", c.Kind)
	}
}

// FromFilterCriteria encodes a FilterCriteria for the wire.
func FromFilterCriteria(c fabric.FilterCriteria) WireCriteria {
	switch c.Kind {
	case fabric.CriteriaString:
		return WireCriteria{Kind: "string", Value: c.Str}
	case fabric.CriteriaUUID:
		return WireCriteria{Kind: "uuid", Value: c.UUID.String()}
	default:
		return WireCriteria{Kind: "none"}
	}
}

// envelope is used only to read the discriminant "type" field before
// dispatching to a concrete command struct.
type envelope struct {
	Type string `json:"type"`
}

// CallServiceCmd invokes a registered service by (plugin_id, service_id)
// with JSON-encoded arguments.
type CallServiceCmd struct {
	MessageID string            `json:"message_id"`
	PluginID  string            `json:"plugin_id"`
	ServiceID string            `json:"service_id"`
	Args      []json.RawMessage `json:"args"`
}

// CallServiceResponse is the success reply to CallServiceCmd.
type CallServiceResponse struct {
	Type      string          `json:"type"`
	MessageID string          `json:"message_id"`
	Result    json.RawMessage `json:"result"`
}

// CallServiceError is the failure reply to CallServiceCmd.
type CallServiceError struct {
	Type      string `json:"type"`
	MessageID string `json:"message_id"`
	Error     string `json:"error"` // one of ServiceNotFound, ArgDeserializationFailed, ResponseSerializationFailed
	Detail    string `json:"detail,omitempty"`
}

// GetServicesCmd requests the discoverable service listing.
type GetServicesCmd struct {
	MessageID string `json:"message_id"`
}

// ServiceDescriptionWire is one entry of ServiceList.List.
type ServiceDescriptionWire struct {
	PluginID    string                 `json:"plugin_id"`
	ServiceID   string                 `json:"service_id"`
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Args        []fabric.ArgDescriptor `json:"args"`
}

// ServiceList is the reply to GetServicesCmd.
type ServiceList struct {
	Type      string                   `json:"type"`
	MessageID string                   `json:"message_id"`
	List      []ServiceDescriptionWire `json:"list"`
}

// GetOptionsCmd requests a type-specifier's current option list.
type GetOptionsCmd struct {
	MessageID  string `json:"message_id"`
	ProviderID string `json:"provider_id"`
}

// OptionsList is the success reply to GetOptionsCmd.
type OptionsList struct {
	Type      string          `json:"type"`
	MessageID string          `json:"message_id"`
	List      json.RawMessage `json:"list"`
}

// OptionsError is the failure reply to GetOptionsCmd.
type OptionsError struct {
	Type      string `json:"type"`
	MessageID string `json:"message_id"`
	Error     string `json:"error"`
}

// SendEventCmd fires an event onto the bus; no reply is sent.
type SendEventCmd struct {
	Name     string          `json:"name"`
	Criteria *WireCriteria   `json:"criteria,omitempty"`
	Data     json.RawMessage `json:"data"`
}

// SubscribeCmd registers the sender for matching events under Name/Criteria.
type SubscribeCmd struct {
	Name     string        `json:"name"`
	Criteria *WireCriteria `json:"criteria,omitempty"`
}

// UnsubscribeCmd reverses a prior SubscribeCmd.
type UnsubscribeCmd struct {
	Name     string        `json:"name"`
	Criteria *WireCriteria `json:"criteria,omitempty"`
}

// EventMessage is an unsolicited push to a subscribed client.
type EventMessage struct {
	Type     string          `json:"type"`
	Name     string          `json:"name"`
	Criteria WireCriteria    `json:"criteria"`
	Data     json.RawMessage `json:"data"`
}
