package user

import (
	"time"

	"github.com/ehr/clinicehr/internal/permission"
)

// User maps to the system_user table plus its system_user_clinic rows.
//
// Role is stored as text and loaded without validation: a role string that
// is no longer known resolves to zero permissions rather than failing the
// load.
type User struct {
	ID            string          `json:"id"`
	Email         string          `json:"email"`
	DisplayName   string          `json:"display_name"`
	Role          permission.Role `json:"role"`
	ClinicIDs     []string        `json:"clinic_ids"`
	IsClinicAdmin bool            `json:"is_clinic_admin"`
	IsSuperAdmin  bool            `json:"is_super_admin"`
	Active        bool            `json:"active"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// PermissionContext is the context a session for u would carry.
func (u *User) PermissionContext() *permission.Context {
	return permission.NewContext(u.ID, string(u.Role), u.ClinicIDs, u.IsClinicAdmin, u.IsSuperAdmin)
}

// deriveFlags sets the admin flags from the role.
func (u *User) deriveFlags() {
	u.IsClinicAdmin = u.Role == permission.RoleAdmin
	u.IsSuperAdmin = u.Role == permission.RoleSuperAdmin || u.Role == permission.RoleSuperAdmin2
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	Email       *string          `json:"email,omitempty"`
	DisplayName *string          `json:"display_name,omitempty"`
	Role        *permission.Role `json:"role,omitempty"`
	ClinicIDs   []string         `json:"clinic_ids,omitempty"`
	Active      *bool            `json:"active,omitempty"`
}

type ListFilter struct {
	ClinicIDs []string
	Role      string
	Limit     int
	Offset    int
}
