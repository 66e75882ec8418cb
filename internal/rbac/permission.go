package rbac

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedPermission indicates a permission string that does not name a
// registered resource, action and scope.
var ErrMalformedPermission = errors.New("rbac: malformed permission")

// Resource is the entity type a permission acts upon.
type Resource string

// Known resources.
const (
	ResourceBooking      Resource = "booking"
	ResourceContract     Resource = "contract"
	ResourcePromoter     Resource = "promoter"
	ResourceParty        Resource = "party"
	ResourceAttendance   Resource = "attendance"
	ResourcePermit       Resource = "permit"
	ResourceCompany      Resource = "company"
	ResourceUser         Resource = "user"
	ResourceRole         Resource = "role"
	ResourcePermission   Resource = "permission"
	ResourceFile         Resource = "file"
	ResourceAnalytics    Resource = "analytics"
	ResourceNotification Resource = "notification"
	ResourceSystem       Resource = "system"
)

// Action is the operation a permission allows.
type Action string

// Known actions.
const (
	ActionCreate     Action = "create"
	ActionRead       Action = "read"
	ActionUpdate     Action = "update"
	ActionDelete     Action = "delete"
	ActionApprove    Action = "approve"
	ActionReject     Action = "reject"
	ActionGenerate   Action = "generate"
	ActionArchive    Action = "archive"
	ActionAssignRole Action = "assign_role"
	ActionUpload     Action = "upload"
	ActionExport     Action = "export"
	ActionCheckIn    Action = "check_in"
	ActionCheckOut   Action = "check_out"
	ActionManage     Action = "manage"
)

var knownResources = map[Resource]struct{}{
	ResourceBooking: {}, ResourceContract: {}, ResourcePromoter: {}, ResourceParty: {},
	ResourceAttendance: {}, ResourcePermit: {}, ResourceCompany: {}, ResourceUser: {},
	ResourceRole: {}, ResourcePermission: {}, ResourceFile: {}, ResourceAnalytics: {},
	ResourceNotification: {}, ResourceSystem: {},
}

var knownActions = map[Action]struct{}{
	ActionCreate: {}, ActionRead: {}, ActionUpdate: {}, ActionDelete: {}, ActionApprove: {},
	ActionReject: {}, ActionGenerate: {}, ActionArchive: {}, ActionAssignRole: {},
	ActionUpload: {}, ActionExport: {}, ActionCheckIn: {}, ActionCheckOut: {}, ActionManage: {},
}

// Valid reports whether the resource is registered.
func (r Resource) Valid() bool {
	_, ok := knownResources[r]
	return ok
}

// Valid reports whether the action is registered.
func (a Action) Valid() bool {
	_, ok := knownActions[a]
	return ok
}

// Scope restricts a permission to resources the caller owns or opens it to
// every resource in the tenant. The zero value is not a valid scope.
type Scope uint8

// Scopes.
const (
	ScopeOwn Scope = iota + 1
	ScopeAll
)

// String renders the wire form of the scope.
func (s Scope) String() string {
	switch s {
	case ScopeOwn:
		return "own"
	case ScopeAll:
		return "all"
	default:
		return "invalid"
	}
}

// Valid reports whether the scope is ScopeOwn or ScopeAll.
func (s Scope) Valid() bool {
	return s == ScopeOwn || s == ScopeAll
}

// ParseScope converts "own" or "all" into a Scope.
func ParseScope(raw string) (Scope, error) {
	switch strings.TrimSpace(strings.ToLower(raw)) {
	case "own":
		return ScopeOwn, nil
	case "all":
		return ScopeAll, nil
	default:
		return 0, fmt.Errorf("%w: unknown scope %q", ErrMalformedPermission, raw)
	}
}

// Permission is a single resource:action:scope capability.
type Permission struct {
	Resource Resource
	Action   Action
	Scope    Scope
}

// NewPermission builds a permission and validates every component.
func NewPermission(resource Resource, action Action, scope Scope) (Permission, error) {
	p := Permission{Resource: resource, Action: action, Scope: scope}
	if err := p.Validate(); err != nil {
		return Permission{}, err
	}
	return p, nil
}

// Validate checks the permission against the resource and action registries.
func (p Permission) Validate() error {
	if !p.Resource.Valid() {
		return fmt.Errorf("%w: unknown resource %q", ErrMalformedPermission, p.Resource)
	}
	if !p.Action.Valid() {
		return fmt.Errorf("%w: unknown action %q", ErrMalformedPermission, p.Action)
	}
	if !p.Scope.Valid() {
		return fmt.Errorf("%w: invalid scope", ErrMalformedPermission)
	}
	return nil
}

// String renders the resource:action:scope form used at the store and wire boundary.
func (p Permission) String() string {
	return string(p.Resource) + ":" + string(p.Action) + ":" + p.Scope.String()
}

// WithScope returns a copy of p carrying the given scope.
func (p Permission) WithScope(scope Scope) Permission {
	p.Scope = scope
	return p
}

// ParsePermission decodes a resource:action:scope string.
func ParsePermission(raw string) (Permission, error) {
	parts := strings.Split(strings.TrimSpace(strings.ToLower(raw)), ":")
	if len(parts) != 3 {
		return Permission{}, fmt.Errorf("%w: %q", ErrMalformedPermission, raw)
	}
	scope, err := ParseScope(parts[2])
	if err != nil {
		return Permission{}, err
	}
	return NewPermission(Resource(parts[0]), Action(parts[1]), scope)
}

// MustParse is ParsePermission for package level declarations.
func MustParse(raw string) Permission {
	p, err := ParsePermission(raw)
	if err != nil {
		panic(err)
	}
	return p
}

// Own returns the owner-scoped variant of resource:action.
func Own(resource Resource, action Action) Permission {
	return Permission{Resource: resource, Action: action, Scope: ScopeOwn}
}

// All returns the tenant-wide variant of resource:action.
func All(resource Resource, action Action) Permission {
	return Permission{Resource: resource, Action: action, Scope: ScopeAll}
}

// Strings renders a permission list.
func Strings(perms []Permission) []string {
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = p.String()
	}
	return out
}
