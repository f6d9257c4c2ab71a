package permission

import (
	"context"
	"slices"
)

// Context describes the authenticated actor of one request. It is built
// from session or token state and discarded when the request ends.
type Context struct {
	UserID        string   `json:"user_id"`
	Role          Role     `json:"role"`
	ClinicIDs     []string `json:"clinic_ids"`
	IsClinicAdmin bool     `json:"is_clinic_admin"`
	IsSuperAdmin  bool     `json:"is_super_admin"`
}

// NewContext builds a Context from raw session values. The role string is
// taken as-is: a stale or foreign value resolves to no permissions instead
// of failing the request.
func NewContext(userID, role string, clinicIDs []string, isClinicAdmin, isSuperAdmin bool) *Context {
	return &Context{
		UserID:        userID,
		Role:          Role(role),
		ClinicIDs:     slices.Clone(clinicIDs),
		IsClinicAdmin: isClinicAdmin,
		IsSuperAdmin:  isSuperAdmin,
	}
}

// InClinic reports whether the actor is a member of the clinic. An empty
// clinic id never matches.
func (c *Context) InClinic(clinicID string) bool {
	if c == nil || clinicID == "" {
		return false
	}
	return slices.Contains(c.ClinicIDs, clinicID)
}

func (c *Context) authenticated() bool {
	return c != nil && c.Role != ""
}

// Resource carries the fields of a stored record needed to narrow a scope.
// Empty strings stand for null. Callers must load it fresh for every check.
type Resource struct {
	ClinicID            string   `json:"clinic_id,omitempty"`
	OwnerID             string   `json:"owner_id,omitempty"`
	ProviderID          string   `json:"provider_id,omitempty"`
	AssignedProviderIDs []string `json:"assigned_provider_ids,omitempty"`
}

type ctxKey struct{}

// WithContext stores the actor on ctx.
func WithContext(ctx context.Context, pc *Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, pc)
}

// FromContext returns the actor stored on ctx, or nil.
func FromContext(ctx context.Context) *Context {
	pc, _ := ctx.Value(ctxKey{}).(*Context)
	return pc
}
