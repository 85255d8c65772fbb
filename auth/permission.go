package auth

import (
	"context"
	"strings"
)

// PermissionAuthorizer grants requests matched by any permission string the
// subject holds directly or through a role.
//
// Permission strings take the form <type>:<resource>:<action>. Each part may
// be "*", and a resource ending in "*" matches by prefix. A bare "*" grants
// everything.
type PermissionAuthorizer struct {
	roles map[string][]string
}

// NewPermissionAuthorizer creates an authorizer. roles maps role names
// (from JWT or introspection claims) to the permissions they confer; it may
// be nil.
func NewPermissionAuthorizer(roles map[string][]string) *PermissionAuthorizer {
	copied := make(map[string][]string, len(roles))
	for role, perms := range roles {
		copied[role] = append([]string(nil), perms...)
	}
	return &PermissionAuthorizer{roles: copied}
}

// Name returns "permission".
func (a *PermissionAuthorizer) Name() string {
	return "permission"
}

// Authorize checks the subject's permissions against the request.
func (a *PermissionAuthorizer) Authorize(_ context.Context, req *AuthzRequest) error {
	if req.Subject == nil {
		return &AuthzError{Permission: req.Permission(), Reason: "no identity provided"}
	}
	for _, perm := range req.Subject.Permissions {
		if matchPermission(perm, req) {
			return nil
		}
	}
	for _, role := range req.Subject.Roles {
		for _, perm := range a.roles[role] {
			if matchPermission(perm, req) {
				return nil
			}
		}
	}
	return &AuthzError{
		Subject:    req.Subject.Principal,
		Permission: req.Permission(),
		Reason:     "no permission grants this action",
	}
}

// ValidPermission reports whether perm is well formed.
func ValidPermission(perm string) bool {
	if perm == "*" {
		return true
	}
	parts := strings.Split(perm, ":")
	if len(parts) != 3 {
		return false
	}
	for _, p := range parts {
		if p == "" {
			return false
		}
	}
	return true
}

// matchPattern matches a value, treating a trailing "*" as a prefix wildcard.
func matchPattern(pattern, value string) bool {
	if pattern == "*" {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(value, prefix)
	}
	return pattern == value
}

func matchPermission(perm string, req *AuthzRequest) bool {
	if perm == "*" {
		return true
	}
	parts := strings.Split(perm, ":")
	if len(parts) != 3 {
		return false
	}
	return matchPattern(parts[0], req.ResourceType) &&
		matchPattern(parts[1], req.Resource) &&
		matchPattern(parts[2], req.Action)
}

// Ensure PermissionAuthorizer implements Authorizer
var _ Authorizer = (*PermissionAuthorizer)(nil)
