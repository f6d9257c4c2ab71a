package permission

import "fmt"

// assignableByAdmin are the roles a clinic admin may hand out.
var assignableByAdmin = []Role{RoleRegistrar, RoleProvider, RoleCaseWorker, RoleAdmin}

// CanAssignRole decides whether the actor may create an account holding
// target in the given clinics. It sits on top of the users:add capability
// and applies independently of clinic scope: an admin can never mint a
// super admin, whatever clinics are involved.
func (r *Resolver) CanAssignRole(pc *Context, target Role, targetClinicIDs []string) Decision {
	if !pc.authenticated() {
		return Decision{Scope: ScopeNone, Kind: KindUnauthenticated, Reason: "no permission context"}
	}

	scope := r.matrix.Scope(pc.Role, ModuleUsers, OpAdd)
	if scope == ScopeNone {
		return Decision{
			Scope:  ScopeNone,
			Kind:   KindCapabilityDenied,
			Reason: fmt.Sprintf("role %s cannot create users", pc.Role),
		}
	}
	if !target.Known() {
		return scopeDenied(scope, fmt.Sprintf("unknown role %q", target))
	}

	switch pc.Role {
	case RoleSuperAdmin:
		return allow(scope)
	case RoleSuperAdmin2:
		if target == RoleSuperAdmin {
			return scopeDenied(scope, "super_admin_2 cannot assign super_admin")
		}
		return allow(scope)
	case RoleAdmin:
		if !containsRole(assignableByAdmin, target) {
			return scopeDenied(scope, fmt.Sprintf("admin cannot assign %s", target))
		}
		if len(targetClinicIDs) == 0 {
			return scopeDenied(scope, "clinic membership required")
		}
		for _, id := range targetClinicIDs {
			if !pc.InClinic(id) {
				return scopeDenied(scope, fmt.Sprintf("clinic %s outside actor clinics", id))
			}
		}
		return allow(scope)
	}

	return scopeDenied(scope, fmt.Sprintf("role %s cannot assign roles", pc.Role))
}

// RequireAssignRole converts a CanAssignRole denial into a *DeniedError.
func (r *Resolver) RequireAssignRole(pc *Context, target Role, targetClinicIDs []string) error {
	if d := r.CanAssignRole(pc, target, targetClinicIDs); !d.Allowed {
		return deniedError(ModuleUsers, OpAdd, d)
	}
	return nil
}

func containsRole(roles []Role, r Role) bool {
	for _, candidate := range roles {
		if candidate == r {
			return true
		}
	}
	return false
}
