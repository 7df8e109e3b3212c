package storage

import (
	"slices"

	"github.com/poiesic/cinevec/core"
)

// Filter restricts which points a query may return.
// The zero value matches everything.
type Filter struct {
	// MatchIDs keeps only points whose ID is in the set. Empty means no restriction.
	MatchIDs []core.PointID
	// ExcludeIDs drops points whose ID is in the set.
	ExcludeIDs []core.PointID
	// MatchValues keeps only points whose payload field equals one of the values.
	MatchValues map[string][]string
	// ExcludeValues drops points whose payload field equals one of the values.
	ExcludeValues map[string][]string
}

// ItemFilter returns the filter every item query uses: auxiliary point types are
// excluded together with the given point IDs.
func ItemFilter(exclude ...core.PointID) *Filter {
	aux := make([]string, len(core.AuxiliaryPointTypes))
	for i, t := range core.AuxiliaryPointTypes {
		aux[i] = string(t)
	}
	return &Filter{
		ExcludeIDs:    exclude,
		ExcludeValues: map[string][]string{core.PayloadType: aux},
	}
}

// TypeFilter keeps only points of the given type.
func TypeFilter(t core.PointType) *Filter {
	return &Filter{MatchValues: map[string][]string{core.PayloadType: {string(t)}}}
}

// IsEmpty reports whether the filter places no restriction.
func (f *Filter) IsEmpty() bool {
	return f == nil ||
		(len(f.MatchIDs) == 0 && len(f.ExcludeIDs) == 0 && len(f.MatchValues) == 0 && len(f.ExcludeValues) == 0)
}

// Matches evaluates the filter against a point in memory.
// Indexes without server-side filtering use it directly.
func (f *Filter) Matches(id core.PointID, payload map[string]any) bool {
	if f == nil {
		return true
	}
	if len(f.MatchIDs) > 0 && !slices.Contains(f.MatchIDs, id) {
		return false
	}
	if slices.Contains(f.ExcludeIDs, id) {
		return false
	}
	for key, values := range f.MatchValues {
		if !slices.Contains(values, core.PayloadString(payload, key)) {
			return false
		}
	}
	for key, values := range f.ExcludeValues {
		if v := core.PayloadString(payload, key); v != "" && slices.Contains(values, v) {
			return false
		}
	}
	return true
}
