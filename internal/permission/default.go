package permission

import "sync"

var defaultResolver = sync.OnceValue(func() *Resolver {
	return NewResolver(DefaultMatrix())
})

// Default returns a resolver over the default matrix without an
// assignment verifier.
func Default() *Resolver {
	return defaultResolver()
}

// GetModulePermissions returns the grants of role on module from the
// default matrix.
func GetModulePermissions(role Role, module Module) ModulePermissions {
	return Default().ModulePermissions(role, module)
}

// HasPermission reports whether role can ever perform op on module.
func HasPermission(role Role, module Module, op Operation) bool {
	return Default().HasPermission(role, module, op)
}

// GetPermissionScope returns the scope of op on module for role, or none.
func GetPermissionScope(role Role, module Module, op Operation) Scope {
	return Default().PermissionScope(role, module, op)
}

// HasAnyPermission reports whether role has any grant on module.
func HasAnyPermission(role Role, module Module) bool {
	return Default().HasAnyPermission(role, module)
}

// Check is Resolver.Check on the default resolver.
func Check(pc *Context, module Module, op Operation, res *Resource) Decision {
	return Default().Check(pc, module, op, res)
}

// CheckOrThrow is Resolver.Require on the default resolver.
func CheckOrThrow(pc *Context, module Module, op Operation, res *Resource) error {
	return Default().Require(pc, module, op, res)
}

// GetAccessibleModules lists the modules the actor can see at all.
func GetAccessibleModules(pc *Context) []Module {
	return Default().AccessibleModules(pc)
}
