// Package permission maps roles to named permission sets. The registry is
// built once at startup and frozen before use, so authorization checks are
// lock-free map lookups.
package permission

import (
	"errors"
	"sort"
	"sync"
)

// Wildcard grants every registered permission to a role.
const Wildcard = "*"

var (
	// ErrFrozen is returned for registrations after Freeze.
	ErrFrozen = errors.New("permission: registry frozen")
	// ErrNotFrozen is returned for checks before Freeze.
	ErrNotFrozen = errors.New("permission: registry not frozen")
	// ErrUnknownPermission is returned when a role names a permission
	// that was never registered.
	ErrUnknownPermission = errors.New("permission: unknown permission")
	// ErrDuplicate is returned for a repeated registration.
	ErrDuplicate = errors.New("permission: already registered")
)

// Registry holds the permission catalog and the role grants.
type Registry struct {
	mu          sync.RWMutex
	permissions map[string]struct{}
	roles       map[string]map[string]struct{}
	wildcards   map[string]struct{}
	frozen      bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		permissions: make(map[string]struct{}),
		roles:       make(map[string]map[string]struct{}),
		wildcards:   make(map[string]struct{}),
	}
}

// Register adds a permission name to the catalog. Must precede Freeze.
func (r *Registry) Register(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return ErrFrozen
	}
	if name == "" || name == Wildcard {
		return errors.New("permission: invalid permission name")
	}
	if _, exists := r.permissions[name]; exists {
		return ErrDuplicate
	}
	r.permissions[name] = struct{}{}
	return nil
}

// GrantRole assigns permissions to a role. Every named permission must
// already be registered; Wildcard grants the whole catalog. Repeated calls
// for the same role accumulate.
func (r *Registry) GrantRole(role string, perms ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return ErrFrozen
	}
	if role == "" {
		return errors.New("permission: invalid role name")
	}

	set, ok := r.roles[role]
	if !ok {
		set = make(map[string]struct{})
		r.roles[role] = set
	}
	for _, p := range perms {
		if p == Wildcard {
			r.wildcards[role] = struct{}{}
			continue
		}
		if _, exists := r.permissions[p]; !exists {
			return ErrUnknownPermission
		}
		set[p] = struct{}{}
	}
	return nil
}

// Freeze locks the registry. Checks before Freeze return ErrNotFrozen, so
// a half-built registry is never consulted.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Allowed reports whether the role holds the permission.
func (r *Registry) Allowed(role, perm string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.frozen {
		return false, ErrNotFrozen
	}
	if _, ok := r.wildcards[role]; ok {
		_, known := r.permissions[perm]
		return known, nil
	}
	set, ok := r.roles[role]
	if !ok {
		return false, nil
	}
	_, granted := set[perm]
	return granted, nil
}

// Permissions returns the sorted permission catalog.
func (r *Registry) Permissions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.permissions))
	for p := range r.permissions {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// RolePermissions returns the sorted permissions granted to the role.
func (r *Registry) RolePermissions(role string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.wildcards[role]; ok {
		out := make([]string, 0, len(r.permissions))
		for p := range r.permissions {
			out = append(out, p)
		}
		sort.Strings(out)
		return out
	}

	set, ok := r.roles[role]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
