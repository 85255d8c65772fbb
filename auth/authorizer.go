package auth

import (
	"context"
	"fmt"
)

// Resource types and actions understood by the gateway.
const (
	ResourceTool = "tool"
	ResourceKey  = "key"

	ActionCall   = "call"
	ActionList   = "list"
	ActionManage = "manage"
)

// Authorizer determines if an identity is allowed to perform an action.
type Authorizer interface {
	// Authorize returns nil if permitted, or an error (typically *AuthzError)
	// matching ErrForbidden if denied.
	Authorize(ctx context.Context, req *AuthzRequest) error

	// Name returns a unique identifier for this authorizer.
	Name() string
}

// AuthzRequest contains the information needed for authorization.
type AuthzRequest struct {
	// Subject is the identity making the request.
	Subject *Identity

	// ResourceType categorizes the resource ("tool", "key").
	ResourceType string

	// Resource names the target ("weather", "*").
	Resource string

	// Action is the requested action ("call", "list", "manage").
	Action string
}

// Permission renders the request in permission-string form.
func (r *AuthzRequest) Permission() string {
	return r.ResourceType + ":" + r.Resource + ":" + r.Action
}

// ToolCall builds the request for invoking a tool.
func ToolCall(subject *Identity, tool string) *AuthzRequest {
	return &AuthzRequest{Subject: subject, ResourceType: ResourceTool, Resource: tool, Action: ActionCall}
}

// ToolList builds the request for listing the catalog.
func ToolList(subject *Identity) *AuthzRequest {
	return &AuthzRequest{Subject: subject, ResourceType: ResourceTool, Resource: "*", Action: ActionList}
}

// KeyManage builds the request for key administration.
func KeyManage(subject *Identity) *AuthzRequest {
	return &AuthzRequest{Subject: subject, ResourceType: ResourceKey, Resource: "*", Action: ActionManage}
}

// AuthzError represents an authorization failure.
type AuthzError struct {
	// Subject is the identity that was denied.
	Subject string

	// Permission is the permission that was required.
	Permission string

	// Reason explains why access was denied.
	Reason string
}

// Error returns the error message.
func (e *AuthzError) Error() string {
	return fmt.Sprintf("authorization denied: subject=%q permission=%q reason=%q",
		e.Subject, e.Permission, e.Reason)
}

// Is reports whether this error matches the target.
func (e *AuthzError) Is(target error) bool {
	return target == ErrForbidden
}

// AuthorizerFunc adapts ordinary functions to the Authorizer interface.
type AuthorizerFunc func(ctx context.Context, req *AuthzRequest) error

// Authorize calls the function.
func (f AuthorizerFunc) Authorize(ctx context.Context, req *AuthzRequest) error {
	return f(ctx, req)
}

// Name returns "func".
func (f AuthorizerFunc) Name() string {
	return "func"
}
