package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contracthub/contracthub/internal/rbac"
	"github.com/contracthub/contracthub/internal/rbac/rbactest"
)

type countingCatalog struct {
	perms map[rbac.Permission]int64
	roles map[string]int64
	links map[[2]int64]struct{}
}

func newCountingCatalog() *countingCatalog {
	return &countingCatalog{
		perms: map[rbac.Permission]int64{},
		roles: map[string]int64{},
		links: map[[2]int64]struct{}{},
	}
}

func (c *countingCatalog) UpsertPermission(_ context.Context, perm rbac.Permission, _, _ string) (int64, error) {
	if id, ok := c.perms[perm]; ok {
		return id, nil
	}
	c.perms[perm] = int64(len(c.perms) + 1)
	return c.perms[perm], nil
}

func (c *countingCatalog) UpsertRole(_ context.Context, name string, _ rbac.Category, _ string) (int64, error) {
	if id, ok := c.roles[name]; ok {
		return id, nil
	}
	c.roles[name] = int64(len(c.roles) + 1)
	return c.roles[name], nil
}

func (c *countingCatalog) AttachPermission(_ context.Context, roleID, permissionID int64) error {
	c.links[[2]int64{roleID, permissionID}] = struct{}{}
	return nil
}

func (c *countingCatalog) DetachPermission(_ context.Context, roleID, permissionID int64) error {
	delete(c.links, [2]int64{roleID, permissionID})
	return nil
}

func (c *countingCatalog) RetireRole(context.Context, int64) error { return nil }

func (c *countingCatalog) GetRole(context.Context, int64) (rbac.Role, error) {
	return rbac.Role{}, rbac.ErrNotFound
}

func (c *countingCatalog) ListRoles(context.Context) ([]rbac.Role, error) { return nil, nil }

func (c *countingCatalog) ListPermissions(context.Context) ([]rbac.PermissionRecord, error) {
	return nil, nil
}

func (c *countingCatalog) RolePermissions(context.Context, int64) ([]rbac.PermissionRecord, error) {
	return nil, nil
}

func (c *countingCatalog) Counts(context.Context) (rbac.Counts, error) {
	return rbac.Counts{Permissions: len(c.perms), Roles: len(c.roles), Attachments: len(c.links)}, nil
}

const testCatalog = `
permissions:
  - { name: "contract:read:own" }
  - { name: "contract:read:all" }
roles:
  - name: "Client Viewer"
    category: client
    permissions: ["contract:read:own"]
  - name: "Broken"
    category: client
    permissions: ["contract:read:everything"]
`

func writeCatalog(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testCatalog), 0o600))
	return path
}

func TestSeedCommandReportsPartialFailure(t *testing.T) {
	store := newCountingCatalog()
	var refreshes int
	refresher := rbac.RefresherFunc(func(context.Context) error {
		refreshes++
		return nil
	})
	c := NewRBACCLI(rbac.NewSeeder(store, refresher, nil), refresher, nil)

	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	code := c.SeedCommand(context.Background(), SeedOptions{
		CatalogPath: writeCatalog(t),
		JSONOutput:  true,
		Stdout:      stdout,
		Stderr:      stderr,
	})
	assert.Equal(t, 10, code)
	assert.Contains(t, stderr.String(), "Broken")
	assert.Equal(t, 1, refreshes)

	var report rbac.SeedReport
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &report))
	assert.Equal(t, 2, report.Permissions)
	assert.Equal(t, 1, report.Attachments)
	assert.Equal(t, 2, report.After.Permissions)

	// Re-running leaves the catalog unchanged.
	stdout.Reset()
	c.SeedCommand(context.Background(), SeedOptions{CatalogPath: writeCatalog(t), JSONOutput: true, Stdout: stdout, Stderr: stderr})
	var again rbac.SeedReport
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &again))
	assert.Equal(t, report.After, again.After)
}

func TestSeedCommandMissingCatalog(t *testing.T) {
	c := NewRBACCLI(rbac.NewSeeder(newCountingCatalog(), nil, nil), nil, nil)
	stderr := new(bytes.Buffer)
	code := c.SeedCommand(context.Background(), SeedOptions{CatalogPath: "/does/not/exist.yaml", Stdout: new(bytes.Buffer), Stderr: stderr})
	assert.Equal(t, 1, code)
}

func TestRefreshCommand(t *testing.T) {
	failing := rbac.RefresherFunc(func(context.Context) error { return errors.New("db down") })
	stderr := new(bytes.Buffer)
	assert.Equal(t, 1, NewRBACCLI(nil, failing, nil).RefreshCommand(context.Background(), RefreshOptions{Stdout: new(bytes.Buffer), Stderr: stderr}))
	assert.Contains(t, stderr.String(), "db down")

	ok := rbac.RefresherFunc(func(context.Context) error { return nil })
	stdout := new(bytes.Buffer)
	assert.Equal(t, 0, NewRBACCLI(nil, ok, nil).RefreshCommand(context.Background(), RefreshOptions{Stdout: stdout, Stderr: stderr}))
	assert.Contains(t, stdout.String(), "refreshed")
}

func TestCheckCommand(t *testing.T) {
	src := rbactest.Source{}.Grant(7, "contract:read:own", "contract:approve:all")
	c := NewRBACCLI(nil, nil, src)

	run := func(opts CheckOptions) (int, CheckResult) {
		stdout := new(bytes.Buffer)
		opts.UserID = 7
		opts.JSONOutput = true
		opts.Stdout = stdout
		opts.Stderr = new(bytes.Buffer)
		code := c.CheckCommand(context.Background(), opts)
		var result CheckResult
		if code != 1 {
			require.NoError(t, json.Unmarshal(stdout.Bytes(), &result))
		}
		return code, result
	}

	code, result := run(CheckOptions{Permissions: []string{"contract:read:own", "contract:read:all"}})
	assert.Equal(t, 0, code)
	assert.True(t, result.Allowed)
	assert.Equal(t, "any", result.Mode)

	code, result = run(CheckOptions{Permissions: []string{"contract:read:own", "contract:read:all"}, All: true})
	assert.Equal(t, 3, code)
	assert.Equal(t, []string{"contract:read:all"}, result.Missing)

	code, result = run(CheckOptions{})
	assert.Equal(t, 0, code)
	assert.Equal(t, []string{"contract:approve:all", "contract:read:own"}, result.Effective)

	code, _ = run(CheckOptions{Permissions: []string{"contract:read"}})
	assert.Equal(t, 1, code)

	stderr := new(bytes.Buffer)
	assert.Equal(t, 1, c.CheckCommand(context.Background(), CheckOptions{Stderr: stderr, Stdout: new(bytes.Buffer)}))
}

func TestMigrateCommand(t *testing.T) {
	stdout := new(bytes.Buffer)
	code := MigrateCommand(context.Background(), func(context.Context) ([]int, error) { return []int{1, 3}, nil }, MigrateOptions{Stdout: stdout})
	assert.Equal(t, 0, code)
	assert.Equal(t, "applied 0001\napplied 0003\n", stdout.String())

	code = MigrateCommand(context.Background(), func(context.Context) ([]int, error) { return nil, errors.New("locked") }, MigrateOptions{Stdout: stdout, Stderr: new(bytes.Buffer)})
	assert.Equal(t, 1, code)
}
