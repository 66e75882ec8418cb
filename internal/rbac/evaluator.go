package rbac

import (
	"errors"
	"sort"
)

// ErrEmptyRequirement is returned when a check declares no permissions.
var ErrEmptyRequirement = errors.New("rbac: no permission declared")

// Set is a user's effective permissions.
type Set map[Permission]struct{}

// NewSet builds a Set from the given permissions.
func NewSet(perms ...Permission) Set {
	s := make(Set, len(perms))
	for _, p := range perms {
		s[p] = struct{}{}
	}
	return s
}

// Add inserts p.
func (s Set) Add(p Permission) {
	s[p] = struct{}{}
}

// Contains is exact membership; there is no prefix or wildcard matching.
func (s Set) Contains(p Permission) bool {
	_, ok := s[p]
	return ok
}

// Len returns the number of permissions held.
func (s Set) Len() int {
	return len(s)
}

// Union adds every permission from other into s.
func (s Set) Union(other Set) {
	for p := range other {
		s[p] = struct{}{}
	}
}

// Slice returns the permissions sorted by their string form.
func (s Set) Slice() []Permission {
	out := make([]Permission, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// HasPermission reports whether required is in the set.
func HasPermission(set Set, required Permission) bool {
	return set.Contains(required)
}

// CanPerformAction reports whether either scope variant of resource:action is held.
// Which scope applies is decided by ResolveScope, not here.
func CanPerformAction(set Set, resource Resource, action Action) bool {
	return set.Contains(Own(resource, action)) || set.Contains(All(resource, action))
}

// HasAny passes when at least one required permission is held. An empty list denies.
func HasAny(set Set, required ...Permission) bool {
	for _, p := range required {
		if set.Contains(p) {
			return true
		}
	}
	return false
}

// HasAll passes when every required permission is held. An empty list denies.
func HasAll(set Set, required ...Permission) bool {
	if len(required) == 0 {
		return false
	}
	for _, p := range required {
		if !set.Contains(p) {
			return false
		}
	}
	return true
}

// MatchMode selects ANY or ALL semantics for a Requirement.
type MatchMode uint8

// Match modes.
const (
	MatchAny MatchMode = iota + 1
	MatchAll
)

func (m MatchMode) String() string {
	if m == MatchAll {
		return "all"
	}
	return "any"
}

// Requirement is the permission declaration of a guarded endpoint.
type Requirement struct {
	Mode        MatchMode
	Permissions []Permission
}

// AnyOf builds a MatchAny requirement.
func AnyOf(perms ...Permission) Requirement {
	return Requirement{Mode: MatchAny, Permissions: dedupe(perms)}
}

// AllOf builds a MatchAll requirement.
func AllOf(perms ...Permission) Requirement {
	return Requirement{Mode: MatchAll, Permissions: dedupe(perms)}
}

// Check evaluates the requirement. missing lists what was required but absent:
// every permission for ANY, the unmet ones for ALL.
func (r Requirement) Check(set Set) (bool, []Permission, error) {
	if len(r.Permissions) == 0 {
		return false, nil, ErrEmptyRequirement
	}
	switch r.Mode {
	case MatchAll:
		var missing []Permission
		for _, p := range r.Permissions {
			if !set.Contains(p) {
				missing = append(missing, p)
			}
		}
		return len(missing) == 0, missing, nil
	case MatchAny:
		if HasAny(set, r.Permissions...) {
			return true, nil, nil
		}
		return false, append([]Permission(nil), r.Permissions...), nil
	default:
		return false, nil, errors.New("rbac: unknown match mode")
	}
}

func dedupe(perms []Permission) []Permission {
	seen := make(map[Permission]struct{}, len(perms))
	out := make([]Permission, 0, len(perms))
	for _, p := range perms {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
