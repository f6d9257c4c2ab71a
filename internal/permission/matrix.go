package permission

import (
	"fmt"
	"sort"
	"sync"
)

// Table is the declarative authoring form of the matrix.
type Table map[Role]map[Module]ModulePermissions

// Matrix answers "what scope does role R have for operation O on module M".
// It is immutable once built and safe for concurrent use without locking.
type Matrix struct {
	entries map[Role]map[Module]ModulePermissions
}

// NewMatrix validates that the table assigns a known scope to every module
// and operation for every built-in role (and for any extra role it lists),
// then takes a private copy of it.
func NewMatrix(t Table) (*Matrix, error) {
	for _, role := range allRoles {
		if _, ok := t[role]; !ok {
			return nil, fmt.Errorf("%w: role %s has no entries", ErrIncompleteMatrix, role)
		}
	}

	entries := make(map[Role]map[Module]ModulePermissions, len(t))
	for role, modules := range t {
		byModule := make(map[Module]ModulePermissions, len(allModules))
		for _, module := range allModules {
			perms, ok := modules[module]
			if !ok {
				return nil, fmt.Errorf("%w: %s has no entry for module %s", ErrIncompleteMatrix, role, module)
			}
			for _, op := range allOperations {
				p, ok := perms[op]
				if !ok {
					return nil, fmt.Errorf("%w: %s/%s has no %s entry", ErrIncompleteMatrix, role, module, op)
				}
				if !p.Scope.Known() {
					return nil, fmt.Errorf("%w: %s/%s/%s has unknown scope %q", ErrIncompleteMatrix, role, module, op, p.Scope)
				}
			}
			byModule[module] = perms.clone()
		}
		for module := range modules {
			if !module.Known() {
				return nil, fmt.Errorf("%w: %s lists unknown module %q", ErrIncompleteMatrix, role, module)
			}
		}
		entries[role] = byModule
	}

	return &Matrix{entries: entries}, nil
}

var defaultMatrix = sync.OnceValue(func() *Matrix {
	m, err := NewMatrix(DefaultTable())
	if err != nil {
		panic(fmt.Sprintf("permission: built-in matrix is invalid: %v", err))
	}
	return m
})

// DefaultMatrix returns the process-wide matrix. It is built on first use and
// never changes afterwards.
func DefaultMatrix() *Matrix {
	return defaultMatrix()
}

// ModulePermissions returns the grants for a (role, module) pair. Unknown
// roles and modules yield an empty map. The result is a copy.
func (m *Matrix) ModulePermissions(role Role, module Module) ModulePermissions {
	perms, ok := m.entries[role][module]
	if !ok {
		return ModulePermissions{}
	}
	return perms.clone()
}

// Scope returns the scope for one operation, none when undefined.
func (m *Matrix) Scope(role Role, module Module, op Operation) Scope {
	p, ok := m.entries[role][module][op]
	if !ok {
		return ScopeNone
	}
	return p.Scope
}

// Roles lists the roles the matrix has entries for, sorted by name.
func (m *Matrix) Roles() []Role {
	roles := make([]Role, 0, len(m.entries))
	for r := range m.entries {
		roles = append(roles, r)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}

// grant lists the four operations positionally so that a table entry can
// never leave one out.
func grant(view, add, edit, del Scope) ModulePermissions {
	return ModulePermissions{
		OpView:   {Scope: view},
		OpAdd:    {Scope: add},
		OpEdit:   {Scope: edit},
		OpDelete: {Scope: del},
	}
}

func deny() ModulePermissions {
	return grant(ScopeNone, ScopeNone, ScopeNone, ScopeNone)
}

func uniform(s Scope) ModulePermissions {
	return grant(s, s, s, s)
}

// note attaches a restriction to one operation.
func (mp ModulePermissions) note(op Operation, text string) ModulePermissions {
	p := mp[op]
	p.Restrictions = append(p.Restrictions, text)
	mp[op] = p
	return mp
}

const (
	none        = ScopeNone
	own         = ScopeOwn
	assigned    = ScopeAssigned
	clinic      = ScopeClinic
	clinicAdmin = ScopeClinicAdmin
	all         = ScopeAll
)

// DefaultTable is the canonical role matrix. Each call returns a fresh table.
func DefaultTable() Table {
	superAdmin := map[Module]ModulePermissions{}
	for _, module := range allModules {
		superAdmin[module] = uniform(all)
	}

	// super_admin_2 mirrors super_admin with every delete removed.
	superAdmin2 := map[Module]ModulePermissions{}
	for module, perms := range superAdmin {
		mirrored := perms.clone()
		mirrored[OpDelete] = Permission{Scope: none}
		superAdmin2[module] = mirrored.note(OpDelete, "deletion is reserved to super_admin")
	}

	return Table{
		RoleRegistrar: {
			ModulePatients: grant(clinic, clinic, none, none).
				note(OpAdd, "registration demographics only"),
			ModuleEventForms: deny(),
			ModuleUsers:      deny(),
			ModuleClinics:    deny(),
			ModuleAppointments: grant(clinic, clinic, none, none).
				note(OpAdd, "scheduling within the registrar's clinics"),
			ModulePrescriptions:     deny(),
			ModuleDataAnalysis:      deny(),
			ModuleSettings:          deny(),
			ModuleClinicPermissions: deny(),
		},
		RoleProvider: {
			ModulePatients: grant(assigned, own, assigned, none).
				note(OpView, "patients assigned to the provider").
				note(OpAdd, "the registering provider owns the new record, in one of the provider's clinics"),
			ModuleEventForms: grant(assigned, assigned, own, own).
				note(OpEdit, "only forms the provider submitted"),
			ModuleUsers:   deny(),
			ModuleClinics: deny(),
			ModuleAppointments: grant(assigned, own, assigned, none).
				note(OpAdd, "appointments the provider books"),
			ModulePrescriptions: grant(assigned, assigned, assigned, own).
				note(OpDelete, "only prescriptions the provider wrote"),
			ModuleDataAnalysis: grant(own, none, none, none).
				note(OpView, "the provider's own caseload"),
			ModuleSettings:          deny(),
			ModuleClinicPermissions: deny(),
		},
		RoleCaseWorker: {
			ModulePatients:          grant(assigned, none, assigned, none),
			ModuleEventForms:        grant(assigned, assigned, own, none),
			ModuleUsers:             deny(),
			ModuleClinics:           deny(),
			ModuleAppointments:      grant(assigned, assigned, none, none),
			ModulePrescriptions:     deny(),
			ModuleDataAnalysis:      deny(),
			ModuleSettings:          deny(),
			ModuleClinicPermissions: deny(),
		},
		RoleAdmin: {
			ModulePatients:   uniform(clinicAdmin),
			ModuleEventForms: uniform(clinicAdmin),
			ModuleUsers: uniform(clinicAdmin).
				note(OpAdd, "cannot create super_admin or super_admin_2 accounts").
				note(OpEdit, "role cannot be changed after creation"),
			ModuleClinics: grant(clinicAdmin, none, clinicAdmin, none).
				note(OpEdit, "clinic details only, not membership"),
			ModuleAppointments: uniform(clinicAdmin),
			ModulePrescriptions: grant(clinicAdmin, none, none, none).
				note(OpView, "read-only oversight"),
			ModuleDataAnalysis:      grant(clinicAdmin, none, none, none),
			ModuleSettings:          grant(clinicAdmin, none, clinicAdmin, none),
			ModuleClinicPermissions: uniform(clinicAdmin),
		},
		RoleSuperAdmin:  superAdmin,
		RoleSuperAdmin2: superAdmin2,
	}
}
