package rbac

import "context"

type grantContextKey struct{}

// Grant is what the guard established about an allowed request.
type Grant struct {
	Principal   Principal
	Permissions Set
}

// ContextWithGrant stores the grant in ctx.
func ContextWithGrant(ctx context.Context, g Grant) context.Context {
	return context.WithValue(ctx, grantContextKey{}, g)
}

// GrantFromContext returns the grant stored by the guard.
func GrantFromContext(ctx context.Context) (Grant, bool) {
	g, ok := ctx.Value(grantContextKey{}).(Grant)
	return g, ok
}

// Resolve applies ResolveScope to the grant.
func (g Grant) Resolve(resource Resource, action Action, owner Ownership) Access {
	return ResolveScope(g.Permissions, resource, action, g.Principal, owner)
}

// Check resolves access to one resource instance. A denial is a *DeniedError
// naming the all-scoped permission, the only one that would have allowed it.
func (g Grant) Check(resource Resource, action Action, owner Ownership) (Access, error) {
	access := g.Resolve(resource, action, owner)
	if !access.Granted() {
		return access, &DeniedError{Mode: MatchAny, Missing: []Permission{All(resource, action)}}
	}
	return access, nil
}

// ListScope picks the listing filter for resource:action. Callers holding
// neither variant get a *DeniedError.
func (g Grant) ListScope(resource Resource, action Action) (Scope, error) {
	scope, ok := QueryScope(g.Permissions, resource, action)
	if !ok {
		return 0, &DeniedError{Mode: MatchAny, Missing: []Permission{Own(resource, action), All(resource, action)}}
	}
	return scope, nil
}
