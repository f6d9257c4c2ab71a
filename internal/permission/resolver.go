package permission

import (
	"context"
	"fmt"
	"slices"
)

// Kind classifies a decision.
type Kind string

const (
	KindAllowed          Kind = "allowed"
	KindUnauthenticated  Kind = "unauthenticated"
	KindCapabilityDenied Kind = "capability_denied"
	KindScopeViolation   Kind = "scope_violation"
)

// Decision is the outcome of a resource-aware check.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
	Scope   Scope  `json:"scope"`
	Kind    Kind   `json:"kind"`
	// CapabilityOnly is set when a scoped operation was allowed without a
	// resource to narrow it against.
	CapabilityOnly bool `json:"capability_only,omitempty"`
	// ClinicAdmin is set when access was granted through clinic_admin scope.
	ClinicAdmin bool `json:"clinic_admin,omitempty"`
}

// AssignmentVerifier answers provider-patient assignment from stored state.
type AssignmentVerifier interface {
	IsAssigned(ctx context.Context, providerID, patientID string) (bool, error)
}

// Resolver evaluates access decisions over a Matrix. It holds no mutable
// state; one instance serves every request.
type Resolver struct {
	matrix   *Matrix
	verifier AssignmentVerifier
	observe  Observer
}

// Observer receives every decision produced by the Check family. It must be
// safe for concurrent use.
type Observer func(module Module, op Operation, d Decision)

// Option configures a Resolver.
type Option func(*Resolver)

// WithAssignmentVerifier enables CheckWithAssignmentVerification.
func WithAssignmentVerifier(v AssignmentVerifier) Option {
	return func(r *Resolver) { r.verifier = v }
}

// WithObserver reports decisions to fn, typically a metrics counter.
func WithObserver(fn Observer) Option {
	return func(r *Resolver) { r.observe = fn }
}

// NewResolver returns a resolver over m, or over the default matrix when m
// is nil.
func NewResolver(m *Matrix, opts ...Option) *Resolver {
	if m == nil {
		m = DefaultMatrix()
	}
	r := &Resolver{matrix: m}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Matrix returns the matrix the resolver reads.
func (r *Resolver) Matrix() *Matrix {
	return r.matrix
}

// HasPermission reports whether role can ever perform op on module.
func (r *Resolver) HasPermission(role Role, module Module, op Operation) bool {
	return r.matrix.Scope(role, module, op) != ScopeNone
}

// PermissionScope returns the scope role holds for op on module. Unknown
// roles get none.
func (r *Resolver) PermissionScope(role Role, module Module, op Operation) Scope {
	return r.matrix.Scope(role, module, op)
}

// HasAnyPermission reports whether role has any non-none grant on module.
func (r *Resolver) HasAnyPermission(role Role, module Module) bool {
	for _, op := range allOperations {
		if r.HasPermission(role, module, op) {
			return true
		}
	}
	return false
}

// ModulePermissions returns a copy of the grants of role on module.
func (r *Resolver) ModulePermissions(role Role, module Module) ModulePermissions {
	return r.matrix.ModulePermissions(role, module)
}

// AccessibleModules lists the modules the actor's role can see at all.
func (r *Resolver) AccessibleModules(pc *Context) []Module {
	modules := []Module{}
	if !pc.authenticated() {
		return modules
	}
	for _, module := range allModules {
		if r.HasAnyPermission(pc.Role, module) {
			modules = append(modules, module)
		}
	}
	return modules
}

// Check decides whether the actor may perform op on module, narrowed by res.
//
// When res is nil and the scope needs a record, the result is a
// capability-only allow (Decision.CapabilityOnly). Mutations must use
// CheckResource or RequireResource instead.
func (r *Resolver) Check(pc *Context, module Module, op Operation, res *Resource) Decision {
	return r.report(module, op, r.check(pc, module, op, res))
}

func (r *Resolver) check(pc *Context, module Module, op Operation, res *Resource) Decision {
	if !pc.authenticated() {
		return Decision{Scope: ScopeNone, Kind: KindUnauthenticated, Reason: "no permission context"}
	}

	scope := r.matrix.Scope(pc.Role, module, op)
	switch {
	case scope == ScopeNone:
		return Decision{
			Scope:  ScopeNone,
			Kind:   KindCapabilityDenied,
			Reason: fmt.Sprintf("role %s has no %s access to %s", pc.Role, op, module),
		}
	case scope == ScopeAll:
		return allow(scope)
	case res == nil:
		d := allow(scope)
		d.CapabilityOnly = true
		return d
	}

	return narrow(pc, scope, *res)
}

// CheckResource is Check with a mandatory resource.
func (r *Resolver) CheckResource(pc *Context, module Module, op Operation, res Resource) Decision {
	return r.Check(pc, module, op, &res)
}

// Require returns a *DeniedError when Check denies.
func (r *Resolver) Require(pc *Context, module Module, op Operation, res *Resource) error {
	if d := r.Check(pc, module, op, res); !d.Allowed {
		return deniedError(module, op, d)
	}
	return nil
}

// RequireResource is Require with a mandatory resource.
func (r *Resolver) RequireResource(pc *Context, module Module, op Operation, res Resource) error {
	return r.Require(pc, module, op, &res)
}

// CheckWithAssignmentVerification is Check for sensitive operations. When
// the actor's scope is assigned, the caller-supplied provider fields of res
// are ignored and the assignment to patientID is read from storage instead.
func (r *Resolver) CheckWithAssignmentVerification(ctx context.Context, pc *Context, module Module, op Operation, patientID string, res Resource) (Decision, error) {
	if !pc.authenticated() || r.matrix.Scope(pc.Role, module, op) != ScopeAssigned {
		return r.CheckResource(pc, module, op, res), nil
	}

	d, err := r.verifyAssignment(ctx, pc, patientID)
	if err != nil {
		return Decision{}, err
	}
	return r.report(module, op, d), nil
}

func (r *Resolver) verifyAssignment(ctx context.Context, pc *Context, patientID string) (Decision, error) {
	if r.verifier == nil {
		return scopeDenied(ScopeAssigned, "assignment verification unavailable"), nil
	}
	if patientID == "" {
		return scopeDenied(ScopeAssigned, "patient id required for assignment verification"), nil
	}
	if pc.UserID == "" {
		return scopeDenied(ScopeAssigned, "not assigned to resource"), nil
	}

	ok, err := r.verifier.IsAssigned(ctx, pc.UserID, patientID)
	if err != nil {
		return Decision{}, fmt.Errorf("verify assignment of %s to %s: %w", pc.UserID, patientID, err)
	}
	if !ok {
		return scopeDenied(ScopeAssigned, "not assigned to resource"), nil
	}
	return allow(ScopeAssigned), nil
}

func (r *Resolver) report(module Module, op Operation, d Decision) Decision {
	if r.observe != nil {
		r.observe(module, op, d)
	}
	return d
}

// RequireWithAssignmentVerification converts a denial into a *DeniedError.
func (r *Resolver) RequireWithAssignmentVerification(ctx context.Context, pc *Context, module Module, op Operation, patientID string, res Resource) error {
	d, err := r.CheckWithAssignmentVerification(ctx, pc, module, op, patientID, res)
	if err != nil {
		return err
	}
	if !d.Allowed {
		return deniedError(module, op, d)
	}
	return nil
}

func narrow(pc *Context, scope Scope, res Resource) Decision {
	switch scope {
	case ScopeOwn:
		if pc.UserID == "" || res.OwnerID != pc.UserID {
			return scopeDenied(scope, "not resource owner")
		}
	case ScopeAssigned:
		if pc.UserID == "" || (res.ProviderID != pc.UserID && !slices.Contains(res.AssignedProviderIDs, pc.UserID)) {
			return scopeDenied(scope, "not assigned to resource")
		}
	case ScopeClinic, ScopeClinicAdmin:
		if res.ClinicID == "" {
			return scopeDenied(scope, "resource has no clinic")
		}
		if !pc.InClinic(res.ClinicID) {
			return scopeDenied(scope, "resource outside actor clinics")
		}
		d := allow(scope)
		d.ClinicAdmin = scope == ScopeClinicAdmin
		return d
	default:
		return scopeDenied(scope, fmt.Sprintf("unsupported scope %q", scope))
	}
	return allow(scope)
}

func allow(scope Scope) Decision {
	return Decision{Allowed: true, Scope: scope, Kind: KindAllowed}
}

func scopeDenied(scope Scope, reason string) Decision {
	return Decision{Scope: scope, Kind: KindScopeViolation, Reason: reason}
}
