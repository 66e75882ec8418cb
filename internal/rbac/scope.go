package rbac

// Principal is the authenticated caller.
type Principal struct {
	UserID    int64
	CompanyID int64
}

// Ownership carries the owner and company of a concrete resource instance.
type Ownership struct {
	OwnerID   int64
	CompanyID int64
}

// Access is the outcome of scope resolution.
type Access uint8

// Access outcomes.
const (
	AccessDenied Access = iota
	AccessOwn
	AccessAll
)

func (a Access) String() string {
	switch a {
	case AccessAll:
		return "all"
	case AccessOwn:
		return "own"
	default:
		return "denied"
	}
}

// Granted reports whether access was resolved to own or all.
func (a Access) Granted() bool {
	return a != AccessDenied
}

// ResolveScope decides whether caller may perform resource:action on the
// resource described by owner. The all-scoped permission is checked first so a
// caller holding both variants is never narrowed to own.
func ResolveScope(set Set, resource Resource, action Action, caller Principal, owner Ownership) Access {
	if set.Contains(All(resource, action)) {
		return AccessAll
	}
	if !set.Contains(Own(resource, action)) {
		return AccessDenied
	}
	if caller.UserID != 0 && owner.OwnerID == caller.UserID {
		return AccessOwn
	}
	// Company id zero means "no company" and never matches.
	if caller.CompanyID != 0 && owner.CompanyID == caller.CompanyID {
		return AccessOwn
	}
	return AccessDenied
}

// QueryScope picks the filter for a listing query: ScopeAll means no owner or
// company filter, ScopeOwn means filter by caller.
func QueryScope(set Set, resource Resource, action Action) (Scope, bool) {
	if set.Contains(All(resource, action)) {
		return ScopeAll, true
	}
	if set.Contains(Own(resource, action)) {
		return ScopeOwn, true
	}
	return 0, false
}
