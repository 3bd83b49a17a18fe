// Package session assembles the authorization context for a signed-in
// identity: profile, association memberships, the current association
// pointer, and the permission set derived from assigned roles. It owns
// the resolution state machine and the association switcher.
package session

import (
	"sort"

	"covena.org/internal/auth"
	"covena.org/internal/directory"
)

// State is the lifecycle position of a session context.
type State string

const (
	StateUninitialized   State = "uninitialized"
	StateResolving       State = "resolving"
	StateUnauthenticated State = "unauthenticated"
	StateProfileMissing  State = "profile_missing"
	StateTenantMissing   State = "tenant_missing"
	StateError           State = "error"
	StateReady           State = "ready"
)

// Error categories surfaced when resolution fails transiently. Absent-data
// conditions are states, not errors.
const (
	ErrorTimeout = "timeout"
	ErrorNetwork = "network"
	ErrorGeneric = "generic"
)

// Context is the assembled session. A resolver produces a fresh Context
// per pass; it is never shared with an in-flight resolution, so a late
// async completion can never mutate a context the caller already holds.
type Context struct {
	State         State  `json:"state"`
	ErrorCategory string `json:"error_category,omitempty"`

	Identity    *auth.Identity              `json:"identity,omitempty"`
	Profile     *directory.Profile          `json:"profile,omitempty"`
	Memberships []directory.MembershipEntry `json:"memberships,omitempty"`
	Roles       []directory.Role            `json:"roles,omitempty"`

	CurrentAssociationID string `json:"current_association_id,omitempty"`
}

// HasPermission reports whether the permission is granted by any held
// role that is system-scoped or scoped to the current association. Roles
// scoped to a different association are excluded even when the identity
// is a member there. Safe to call on a nil or unresolved context.
func (c *Context) HasPermission(permission string) bool {
	if c == nil || c.Identity == nil || c.State != StateReady {
		return false
	}
	for _, role := range c.Roles {
		if !role.AppliesTo(c.CurrentAssociationID) {
			continue
		}
		for _, p := range role.Permissions {
			if p == permission {
				return true
			}
		}
	}
	return false
}

// HasAnyPermission short-circuits on the first granted permission.
func (c *Context) HasAnyPermission(permissions ...string) bool {
	for _, p := range permissions {
		if c.HasPermission(p) {
			return true
		}
	}
	return false
}

// Permissions returns the flattened permission set effective for the
// current association, sorted, duplicates removed.
func (c *Context) Permissions() []string {
	if c == nil || c.Identity == nil || c.State != StateReady {
		return nil
	}
	seen := map[string]struct{}{}
	for _, role := range c.Roles {
		if !role.AppliesTo(c.CurrentAssociationID) {
			continue
		}
		for _, p := range role.Permissions {
			seen[p] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// IsMember reports whether the context holds an active membership in the
// given association.
func (c *Context) IsMember(associationID string) bool {
	if c == nil {
		return false
	}
	for _, entry := range c.Memberships {
		if entry.Membership.AssociationID == associationID {
			return true
		}
	}
	return false
}
