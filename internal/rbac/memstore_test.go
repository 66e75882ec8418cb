package rbac

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// memStore is a map-backed Store and ViewSource with the same upsert and
// retirement semantics as PGStore.
type memStore struct {
	mu sync.Mutex

	nextPerm int64
	nextRole int64
	perms    map[Permission]PermissionRecord
	roles    map[int64]Role
	byName   map[string]int64
	attached map[int64]map[int64]struct{}
	assigned map[int64]map[int64]*int64

	materialized []UserPermissionRow

	refreshCalls atomic.Int32
	refreshDelay time.Duration

	errUserPermissions error
	errRefresh         error
	errAttach          error
	extraRows          []UserPermissionRow
}

func newMemStore() *memStore {
	return &memStore{
		perms:    make(map[Permission]PermissionRecord),
		roles:    make(map[int64]Role),
		byName:   make(map[string]int64),
		attached: make(map[int64]map[int64]struct{}),
		assigned: make(map[int64]map[int64]*int64),
	}
}

func (m *memStore) UpsertPermission(ctx context.Context, perm Permission, displayName, description string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.perms[perm]
	if !ok {
		m.nextPerm++
		rec = PermissionRecord{ID: m.nextPerm, Permission: perm, Name: perm.String()}
	}
	rec.DisplayName = displayName
	rec.Description = description
	m.perms[perm] = rec
	return rec.ID, nil
}

func (m *memStore) UpsertRole(ctx context.Context, name string, category Category, description string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	if id, ok := m.byName[name]; ok {
		role := m.roles[id]
		role.Category = category
		role.Description = description
		role.RetiredAt = nil
		role.UpdatedAt = now
		m.roles[id] = role
		return id, nil
	}
	m.nextRole++
	m.roles[m.nextRole] = Role{ID: m.nextRole, Name: name, Category: category, Description: description, CreatedAt: now, UpdatedAt: now}
	m.byName[name] = m.nextRole
	return m.nextRole, nil
}

func (m *memStore) permByID(id int64) (PermissionRecord, bool) {
	for _, rec := range m.perms {
		if rec.ID == id {
			return rec, true
		}
	}
	return PermissionRecord{}, false
}

func (m *memStore) AttachPermission(ctx context.Context, roleID, permissionID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.errAttach != nil {
		return m.errAttach
	}
	if _, ok := m.roles[roleID]; !ok {
		return ErrNotFound
	}
	if _, ok := m.permByID(permissionID); !ok {
		return ErrNotFound
	}
	if m.attached[roleID] == nil {
		m.attached[roleID] = make(map[int64]struct{})
	}
	m.attached[roleID][permissionID] = struct{}{}
	return nil
}

func (m *memStore) DetachPermission(ctx context.Context, roleID, permissionID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.attached[roleID], permissionID)
	return nil
}

func (m *memStore) RetireRole(ctx context.Context, roleID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	role, ok := m.roles[roleID]
	if !ok {
		return ErrNotFound
	}
	if role.RetiredAt == nil {
		now := time.Now()
		role.RetiredAt = &now
	}
	m.roles[roleID] = role
	return nil
}

func (m *memStore) GetRole(ctx context.Context, id int64) (Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	role, ok := m.roles[id]
	if !ok {
		return Role{}, ErrNotFound
	}
	return role, nil
}

func (m *memStore) ListRoles(ctx context.Context) ([]Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Role, 0, len(m.roles))
	for _, r := range m.roles {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memStore) ListPermissions(ctx context.Context) ([]PermissionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PermissionRecord, 0, len(m.perms))
	for _, rec := range m.perms {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memStore) RolePermissions(ctx context.Context, roleID int64) ([]PermissionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []PermissionRecord
	for id := range m.attached[roleID] {
		if rec, ok := m.permByID(id); ok {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memStore) Counts(ctx context.Context) (Counts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := Counts{Permissions: len(m.perms), Roles: len(m.roles)}
	for _, perms := range m.attached {
		c.Attachments += len(perms)
	}
	return c, nil
}

func (m *memStore) AssignRole(ctx context.Context, userID, roleID int64, companyID *int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	role, ok := m.roles[roleID]
	if !ok || role.Retired() {
		return ErrNotFound
	}
	if m.assigned[userID] == nil {
		m.assigned[userID] = make(map[int64]*int64)
	}
	m.assigned[userID][roleID] = companyID
	return nil
}

func (m *memStore) RevokeRole(ctx context.Context, userID, roleID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.assigned[userID], roleID)
	return nil
}

func (m *memStore) UserRoles(ctx context.Context, userID int64) ([]Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Role
	for roleID := range m.assigned[userID] {
		out = append(out, m.roles[roleID])
	}
	return out, nil
}

func (m *memStore) liveLocked(userID int64) []string {
	seen := make(map[string]struct{})
	var out []string
	for roleID := range m.assigned[userID] {
		if m.roles[roleID].Retired() {
			continue
		}
		for permID := range m.attached[roleID] {
			rec, _ := m.permByID(permID)
			if _, dup := seen[rec.Name]; dup {
				continue
			}
			seen[rec.Name] = struct{}{}
			out = append(out, rec.Name)
		}
	}
	sort.Strings(out)
	return out
}

func (m *memStore) UserPermissions(ctx context.Context, userID int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.errUserPermissions != nil {
		return nil, m.errUserPermissions
	}
	return m.liveLocked(userID), nil
}

func (m *memStore) RefreshMaterialized(ctx context.Context) error {
	m.refreshCalls.Add(1)
	if m.refreshDelay > 0 {
		time.Sleep(m.refreshDelay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.errRefresh != nil {
		return m.errRefresh
	}
	var rows []UserPermissionRow
	for userID := range m.assigned {
		for _, name := range m.liveLocked(userID) {
			rows = append(rows, UserPermissionRow{UserID: userID, Permission: name})
		}
	}
	m.materialized = append(rows, m.extraRows...)
	return nil
}

func (m *memStore) LoadMaterialized(ctx context.Context) ([]UserPermissionRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]UserPermissionRow(nil), m.materialized...), nil
}

var (
	_ Store      = (*memStore)(nil)
	_ ViewSource = (*memStore)(nil)
)
