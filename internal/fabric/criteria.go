// Package fabric implements the plugin fabric: the process-wide service
// registry, event bus, init-dependency scheduler, shutdown coordinator and
// type-specifier registry that the rest of lumencore is wired through.
//
// It is grounded on the teacher's plugin/event substrate
// (mindpalace's pkg/eventsourcing/eventbus.go and internal/core/pluginmanager.go)
// generalized from a single-process chat assistant's event sourcing to the
// multi-encoding, dependency-gated fabric spec.md §4.1 describes.
package fabric

import "github.com/google/uuid"

// CriteriaKind tags which flavor of FilterCriteria a subscription or
// emission carries.
type CriteriaKind int

const (
	CriteriaNone CriteriaKind = iota
	CriteriaString
	CriteriaUUID
)

// FilterCriteria routes event subscriptions and emissions: a none-criteria
// listener accepts every emission, a tagged string/UUID listener accepts only
// an emission carrying the identical tag, so an untagged emission reaches
// none-criteria listeners only.
type FilterCriteria struct {
	Kind   CriteriaKind
	Str    string
	UUID   uuid.UUID
}

// NoCriteria is the zero-value "no filter" criteria.
var NoCriteria = FilterCriteria{Kind: CriteriaNone}

// StringCriteria tags a criteria with an arbitrary string.
func StringCriteria(s string) FilterCriteria {
	return FilterCriteria{Kind: CriteriaString, Str: s}
}

// UUIDCriteria tags a criteria with a UUID.
func UUIDCriteria(id uuid.UUID) FilterCriteria {
	return FilterCriteria{Kind: CriteriaUUID, UUID: id}
}

// Equal reports whether two criteria values are the identical tag.
func (c FilterCriteria) Equal(other FilterCriteria) bool {
	if c.Kind != other.Kind {
		return false
	}
	switch c.Kind {
	case CriteriaString:
		return c.Str == other.Str
	case CriteriaUUID:
		return c.UUID == other.UUID
	default:
		return true
	}
}

// Matches reports whether a listener's subscription criteria accepts an
// emission carrying the given criteria: a none-criteria listener accepts
// every emission; a tagged listener accepts only the identical tag.
func (c FilterCriteria) Matches(emission FilterCriteria) bool {
	if c.Kind == CriteriaNone {
		return true
	}
	return c.Equal(emission)
}
