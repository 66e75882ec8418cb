// Package cli implements the operational subcommands of the contracthub binary.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/contracthub/contracthub/internal/rbac"
)

// RBACCLI groups the permission maintenance commands.
type RBACCLI struct {
	seeder    *rbac.Seeder
	refresher rbac.Refresher
	source    rbac.PermissionSource
}

// NewRBACCLI constructs the helper. source answers check queries and is
// normally the live join so results do not depend on view freshness.
func NewRBACCLI(seeder *rbac.Seeder, refresher rbac.Refresher, source rbac.PermissionSource) *RBACCLI {
	return &RBACCLI{seeder: seeder, refresher: refresher, source: source}
}

// SeedOptions defines flags for rbac seed.
type SeedOptions struct {
	CatalogPath string
	JSONOutput  bool
	Stdout      io.Writer
	Stderr      io.Writer
}

// SeedCommand applies the catalog. It exits 10 when some entries failed while
// the rest were applied.
func (c *RBACCLI) SeedCommand(ctx context.Context, opts SeedOptions) int {
	opts.Stdout, opts.Stderr = writers(opts.Stdout, opts.Stderr)
	cat, err := rbac.LoadCatalog(opts.CatalogPath)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "rbac seed: %v\n", err)
		return 1
	}
	report, err := c.seeder.Apply(ctx, cat)
	if ctx.Err() != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "rbac seed: %v\n", ctx.Err())
		return 1
	}
	if opts.JSONOutput {
		if encErr := json.NewEncoder(opts.Stdout).Encode(report); encErr != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "rbac seed: encode json: %v\n", encErr)
			return 1
		}
	} else {
		_, _ = fmt.Fprintf(opts.Stdout, "permissions=%d roles=%d attachments=%d failed=%d\n",
			report.Permissions, report.Roles, report.Attachments, report.Failed)
		_, _ = fmt.Fprintf(opts.Stdout, "catalog now holds %d permissions, %d roles, %d attachments\n",
			report.After.Permissions, report.After.Roles, report.After.Attachments)
	}
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "rbac seed: %v\n", err)
		return 10
	}
	return 0
}

// RefreshOptions defines flags for rbac refresh.
type RefreshOptions struct {
	Stdout io.Writer
	Stderr io.Writer
}

// RefreshCommand rebuilds the materialized permission view.
func (c *RBACCLI) RefreshCommand(ctx context.Context, opts RefreshOptions) int {
	opts.Stdout, opts.Stderr = writers(opts.Stdout, opts.Stderr)
	if c.refresher == nil {
		_, _ = fmt.Fprintln(opts.Stderr, "rbac refresh: no refresher configured")
		return 1
	}
	if err := c.refresher.RequestRefresh(ctx); err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "rbac refresh: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(opts.Stdout, "permission view refreshed")
	return 0
}

// CheckOptions defines flags for rbac check.
type CheckOptions struct {
	UserID      int64
	Permissions []string
	All         bool
	JSONOutput  bool
	Stdout      io.Writer
	Stderr      io.Writer
}

// CheckResult is the JSON output of rbac check.
type CheckResult struct {
	UserID    int64    `json:"user_id"`
	Mode      string   `json:"mode"`
	Allowed   bool     `json:"allowed"`
	Missing   []string `json:"missing,omitempty"`
	Effective []string `json:"effective"`
}

// CheckCommand evaluates permissions for a user the way the route guard
// would. It exits 0 when allowed, 3 when denied and 1 on errors.
func (c *RBACCLI) CheckCommand(ctx context.Context, opts CheckOptions) int {
	opts.Stdout, opts.Stderr = writers(opts.Stdout, opts.Stderr)
	if opts.UserID <= 0 {
		_, _ = fmt.Fprintln(opts.Stderr, "rbac check: --user is required and must be positive")
		return 1
	}
	perms := make([]rbac.Permission, 0, len(opts.Permissions))
	for _, raw := range opts.Permissions {
		perm, err := rbac.ParsePermission(strings.TrimSpace(raw))
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "rbac check: %v\n", err)
			return 1
		}
		perms = append(perms, perm)
	}
	req := rbac.AnyOf(perms...)
	if opts.All {
		req = rbac.AllOf(perms...)
	}

	set, err := c.source.EffectivePermissions(ctx, opts.UserID)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "rbac check: %v\n", err)
		return 1
	}
	// Without permissions to test the command only lists the effective set.
	ok, missing := true, []rbac.Permission(nil)
	if len(perms) > 0 {
		ok, missing, err = req.Check(set)
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "rbac check: %v\n", err)
			return 1
		}
	}

	effective := rbac.Strings(set.Slice())
	sort.Strings(effective)
	result := CheckResult{
		UserID:    opts.UserID,
		Mode:      req.Mode.String(),
		Allowed:   ok,
		Missing:   rbac.Strings(missing),
		Effective: effective,
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(result); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "rbac check: encode json: %v\n", err)
			return 1
		}
	} else {
		renderCheckHuman(opts.Stdout, result)
	}
	if !ok {
		return 3
	}
	return 0
}

func renderCheckHuman(out io.Writer, result CheckResult) {
	verdict := "DENIED"
	if result.Allowed {
		verdict = "ALLOWED"
	}
	_, _ = fmt.Fprintf(out, "user %d (%s): %s\n", result.UserID, result.Mode, verdict)
	if len(result.Missing) > 0 {
		_, _ = fmt.Fprintf(out, "missing: %s\n", strings.Join(result.Missing, ", "))
	}
	_, _ = fmt.Fprintf(out, "effective (%d):\n", len(result.Effective))
	for _, name := range result.Effective {
		_, _ = fmt.Fprintf(out, "  %s\n", name)
	}
}

func writers(stdout, stderr io.Writer) (io.Writer, io.Writer) {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	return stdout, stderr
}
