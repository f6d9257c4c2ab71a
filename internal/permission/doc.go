// Package permission implements the role/scope access model of the clinic
// EHR.
//
// A Matrix maps every (role, module, operation) triple to a Scope. The
// Resolver evaluates an actor Context against that matrix, optionally
// narrowed by a Resource loaded from storage:
//
//	none < own < assigned < clinic < clinic_admin < all
//
// own requires the actor to be the record owner, assigned requires the actor
// to be the record's provider or one of its assigned providers, and
// clinic/clinic_admin require the record's clinic to be one of the actor's
// clinics. Anything undefined resolves to none.
//
// The matrix is built once and never mutated; a Resolver holds no mutable
// state and may be shared across goroutines. Only
// CheckWithAssignmentVerification touches storage, through the
// AssignmentVerifier it was configured with.
//
// Usage in a handler that mutates a record:
//
//	pc := permission.FromContext(ctx)
//	if err := resolver.RequireResource(pc, permission.ModulePatients, permission.OpEdit, patient.Resource()); err != nil {
//		return err
//	}
package permission
