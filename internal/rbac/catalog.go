package rbac

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// CatalogPermission is one permission entry of a seed catalog.
type CatalogPermission struct {
	Name        string `yaml:"name"`
	DisplayName string `yaml:"display_name"`
	Description string `yaml:"description"`
}

// CatalogRole is one role entry of a seed catalog.
type CatalogRole struct {
	Name        string   `yaml:"name"`
	Category    string   `yaml:"category"`
	Description string   `yaml:"description"`
	Inherits    []string `yaml:"inherits"`
	Permissions []string `yaml:"permissions"`
}

// Catalog is the declarative baseline of permissions and roles.
type Catalog struct {
	Permissions []CatalogPermission `yaml:"permissions"`
	Roles       []CatalogRole       `yaml:"roles"`
}

// DefaultCatalog returns the embedded baseline catalog.
func DefaultCatalog() (Catalog, error) {
	return ParseCatalog(defaultCatalog)
}

// LoadCatalog reads a catalog from path, or the embedded one when path is empty.
func LoadCatalog(path string) (Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultCatalog()
	}
	f, err := os.Open(path)
	if err != nil {
		return Catalog{}, err
	}
	defer f.Close()
	raw, err := io.ReadAll(f)
	if err != nil {
		return Catalog{}, err
	}
	return ParseCatalog(raw)
}

// ParseCatalog decodes YAML. Unknown fields are rejected so typos surface early.
func ParseCatalog(raw []byte) (Catalog, error) {
	var cat Catalog
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cat); err != nil {
		return Catalog{}, fmt.Errorf("rbac: decode catalog: %w", err)
	}
	return cat, nil
}

// RolePermissions flattens inheritance and returns the permission names of
// role, parents first. Unknown parents and cycles are errors.
func (c Catalog) RolePermissions(role string) ([]string, error) {
	byName := make(map[string]CatalogRole, len(c.Roles))
	for _, r := range c.Roles {
		byName[r.Name] = r
	}
	seen := make(map[string]struct{})
	var out []string
	var walk func(name string, path []string) error
	walk = func(name string, path []string) error {
		for _, p := range path {
			if p == name {
				return fmt.Errorf("rbac: role inheritance cycle %s -> %s", strings.Join(path, " -> "), name)
			}
		}
		r, ok := byName[name]
		if !ok {
			return fmt.Errorf("%w: role %q", ErrNotFound, name)
		}
		for _, parent := range r.Inherits {
			if err := walk(parent, append(path, name)); err != nil {
				return err
			}
		}
		for _, perm := range r.Permissions {
			if _, dup := seen[perm]; dup {
				continue
			}
			seen[perm] = struct{}{}
			out = append(out, perm)
		}
		return nil
	}
	if err := walk(role, nil); err != nil {
		return nil, err
	}
	return out, nil
}

// displayName derives a label such as "Create Contract (all)".
func displayName(p Permission) string {
	// A Caser is stateful, so each call gets its own.
	title := cases.Title(language.English)
	action := strings.ReplaceAll(string(p.Action), "_", " ")
	return fmt.Sprintf("%s %s (%s)", title.String(action), title.String(string(p.Resource)), p.Scope)
}
