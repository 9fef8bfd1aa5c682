// Package tenant resolves free-text tenant identifiers from source records to
// canonical tenant IDs.
package tenant

import (
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"github.com/telhawk-systems/reportsync/internal/models"
)

//go:embed aliases.yaml
var defaultAliases []byte

var (
	ErrDuplicateTenant  = errors.New("duplicate tenant id")
	ErrAliasConflict    = errors.New("alias maps to more than one tenant")
	ErrInvalidHierarchy = errors.New("invalid tenant hierarchy")
)

type aliasFile struct {
	Tenants []aliasEntry `yaml:"tenants"`
}

type aliasEntry struct {
	models.CanonicalTenant `yaml:",inline"`
	Aliases                []string `yaml:"aliases"`
}

// Registry is the immutable alias table. It is built once at start-up and has
// no mutation path; share it freely between goroutines.
type Registry struct {
	tenants   []models.CanonicalTenant
	byID      map[string]models.CanonicalTenant
	aliases   map[string]string
	canonical map[string]string
}

// Default returns the registry built from the embedded alias table.
func Default() *Registry {
	r, err := Parse(defaultAliases)
	if err != nil {
		panic(fmt.Sprintf("embedded tenant aliases are invalid: %v", err))
	}
	return r
}

// Parse builds a registry from a YAML alias document.
func Parse(data []byte) (*Registry, error) {
	var file aliasFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse tenant aliases: %w", err)
	}
	return build(file.Tenants)
}

func build(entries []aliasEntry) (*Registry, error) {
	r := &Registry{
		byID:      make(map[string]models.CanonicalTenant, len(entries)),
		aliases:   make(map[string]string),
		canonical: make(map[string]string, len(entries)),
	}

	for _, e := range entries {
		t := e.CanonicalTenant
		if _, dup := r.byID[t.TenantID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTenant, t.TenantID)
		}
		r.byID[t.TenantID] = t
		r.tenants = append(r.tenants, t)
		r.canonical[Normalize(t.TenantID)] = t.TenantID

		keys := append([]string{t.TenantID, t.TenantName}, e.Aliases...)
		for _, alias := range keys {
			key := Normalize(alias)
			if key == "" {
				continue
			}
			if existing, ok := r.aliases[key]; ok && existing != t.TenantID {
				return nil, fmt.Errorf("%w: %q -> %s, %s", ErrAliasConflict, alias, existing, t.TenantID)
			}
			r.aliases[key] = t.TenantID
		}
	}

	if err := ValidateHierarchy(r.tenants); err != nil {
		return nil, err
	}
	return r, nil
}

// Normalize folds a free-text identifier into its lookup key: NFKC, trimmed,
// lower-cased, internal whitespace collapsed to single spaces.
func Normalize(s string) string {
	s = norm.NFKC.String(s)
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Tenants returns the canonical tenants in declaration order.
func (r *Registry) Tenants() []models.CanonicalTenant {
	out := make([]models.CanonicalTenant, len(r.tenants))
	copy(out, r.tenants)
	return out
}

// IDs returns the sorted canonical tenant IDs.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Get returns the canonical tenant with the given ID.
func (r *Registry) Get(id string) (models.CanonicalTenant, bool) {
	t, ok := r.byID[id]
	return t, ok
}

// ValidateHierarchy checks that tenants form a forest rooted at tenant-role
// nodes: IDs are unique, every customer has a tenant-role parent, parents
// exist, and no parent chain loops.
func ValidateHierarchy(tenants []models.CanonicalTenant) error {
	byID := make(map[string]models.CanonicalTenant, len(tenants))
	for _, t := range tenants {
		if t.TenantID == "" {
			return fmt.Errorf("%w: empty tenant id", ErrInvalidHierarchy)
		}
		if _, dup := byID[t.TenantID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateTenant, t.TenantID)
		}
		byID[t.TenantID] = t
	}

	for _, t := range tenants {
		switch t.Role {
		case models.RoleTenant, models.RoleCustomer:
		default:
			return fmt.Errorf("%w: %s has unknown role %q", ErrInvalidHierarchy, t.TenantID, t.Role)
		}

		if t.ParentTenantID == nil {
			if t.Role == models.RoleCustomer {
				return fmt.Errorf("%w: customer %s has no parent", ErrInvalidHierarchy, t.TenantID)
			}
			continue
		}

		parent, ok := byID[*t.ParentTenantID]
		if !ok {
			return fmt.Errorf("%w: %s references unknown parent %s", ErrInvalidHierarchy, t.TenantID, *t.ParentTenantID)
		}
		if parent.Role != models.RoleTenant {
			return fmt.Errorf("%w: parent %s of %s is not a tenant", ErrInvalidHierarchy, parent.TenantID, t.TenantID)
		}
	}

	for _, t := range tenants {
		seen := map[string]bool{t.TenantID: true}
		for cur := t; cur.ParentTenantID != nil; {
			next := *cur.ParentTenantID
			if seen[next] {
				return fmt.Errorf("%w: cycle through %s", ErrInvalidHierarchy, t.TenantID)
			}
			seen[next] = true
			cur = byID[next]
		}
	}
	return nil
}
