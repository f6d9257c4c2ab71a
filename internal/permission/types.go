package permission

import "fmt"

// Role is the actor classification assigned when a user record is created.
// A Role holding a string that is not one of the constants below is valid to
// pass around; it simply resolves to zero permissions.
type Role string

// Built-in roles.
const (
	RoleRegistrar   Role = "registrar"
	RoleProvider    Role = "provider"
	RoleAdmin       Role = "admin"
	RoleSuperAdmin  Role = "super_admin"
	RoleSuperAdmin2 Role = "super_admin_2"
	RoleCaseWorker  Role = "case_worker"
)

var allRoles = []Role{
	RoleRegistrar,
	RoleProvider,
	RoleCaseWorker,
	RoleAdmin,
	RoleSuperAdmin,
	RoleSuperAdmin2,
}

// Roles returns every role known to the system.
func Roles() []Role {
	out := make([]Role, len(allRoles))
	copy(out, allRoles)
	return out
}

// Known reports whether r is one of the built-in roles.
func (r Role) Known() bool {
	for _, known := range allRoles {
		if r == known {
			return true
		}
	}
	return false
}

// ParseRole validates a role string coming from storage or a token.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Known() {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
	return r, nil
}

// Module is a resource category guarded by the matrix.
type Module string

const (
	ModulePatients          Module = "patients"
	ModuleEventForms        Module = "event_forms"
	ModuleUsers             Module = "users"
	ModuleClinics           Module = "clinics"
	ModuleAppointments      Module = "appointments"
	ModulePrescriptions     Module = "prescriptions"
	ModuleDataAnalysis      Module = "data_analysis"
	ModuleSettings          Module = "settings"
	ModuleClinicPermissions Module = "clinic_permissions"
)

var allModules = []Module{
	ModulePatients,
	ModuleEventForms,
	ModuleUsers,
	ModuleClinics,
	ModuleAppointments,
	ModulePrescriptions,
	ModuleDataAnalysis,
	ModuleSettings,
	ModuleClinicPermissions,
}

// Modules returns every module in navigation order.
func Modules() []Module {
	out := make([]Module, len(allModules))
	copy(out, allModules)
	return out
}

// Known reports whether m is one of the built-in modules.
func (m Module) Known() bool {
	for _, known := range allModules {
		if m == known {
			return true
		}
	}
	return false
}

// ParseModule validates a module name taken from a request or CLI flag.
func ParseModule(s string) (Module, error) {
	m := Module(s)
	if !m.Known() {
		return "", fmt.Errorf("%w: %q", ErrUnknownModule, s)
	}
	return m, nil
}

// Operation is one of the four CRUD verbs.
type Operation string

const (
	OpView   Operation = "view"
	OpAdd    Operation = "add"
	OpEdit   Operation = "edit"
	OpDelete Operation = "delete"
)

var allOperations = []Operation{OpView, OpAdd, OpEdit, OpDelete}

// Operations returns the four operations in view, add, edit, delete order.
func Operations() []Operation {
	out := make([]Operation, len(allOperations))
	copy(out, allOperations)
	return out
}

// Known reports whether o is one of the four operations.
func (o Operation) Known() bool {
	switch o {
	case OpView, OpAdd, OpEdit, OpDelete:
		return true
	}
	return false
}

// ParseOperation validates an operation name taken from a request or CLI
// flag.
func ParseOperation(s string) (Operation, error) {
	o := Operation(s)
	if !o.Known() {
		return "", fmt.Errorf("%w: %q", ErrUnknownOperation, s)
	}
	return o, nil
}

// Scope is the breadth of records a permission reaches.
type Scope string

const (
	ScopeNone        Scope = "none"
	ScopeOwn         Scope = "own"
	ScopeAssigned    Scope = "assigned"
	ScopeClinic      Scope = "clinic"
	ScopeClinicAdmin Scope = "clinic_admin"
	ScopeAll         Scope = "all"
)

// Rank orders scopes by breadth. Unknown scopes rank with none.
func (s Scope) Rank() int {
	switch s {
	case ScopeOwn:
		return 1
	case ScopeAssigned:
		return 2
	case ScopeClinic:
		return 3
	case ScopeClinicAdmin:
		return 4
	case ScopeAll:
		return 5
	default:
		return 0
	}
}

// Covers reports whether s is at least as broad as other.
func (s Scope) Covers(other Scope) bool {
	return s.Rank() >= other.Rank()
}

// Known reports whether s is none or one of the ranked scopes.
func (s Scope) Known() bool {
	return s == ScopeNone || s.Rank() > 0
}

// RequiresResource is true for scopes that need a record to decide on.
func (s Scope) RequiresResource() bool {
	switch s {
	case ScopeOwn, ScopeAssigned, ScopeClinic, ScopeClinicAdmin:
		return true
	}
	return false
}

// Permission is the grant for one operation of a (role, module) pair.
// Restrictions are human-readable notes shown alongside the grant.
type Permission struct {
	Scope        Scope    `json:"scope"`
	Restrictions []string `json:"restrictions,omitempty"`
}

// ModulePermissions maps each operation to its grant.
type ModulePermissions map[Operation]Permission

func (mp ModulePermissions) clone() ModulePermissions {
	out := make(ModulePermissions, len(mp))
	for op, p := range mp {
		if len(p.Restrictions) > 0 {
			p.Restrictions = append([]string(nil), p.Restrictions...)
		}
		out[op] = p
	}
	return out
}
