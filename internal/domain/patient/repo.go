package patient

import (
	"context"
	"errors"
)

var (
	ErrNotFound   = errors.New("patient not found")
	ErrValidation = errors.New("invalid patient")
)

// Repository defines the persistence interface for patients.
type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id string) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, f ListFilter) ([]*Patient, int, error)
}

// AssignmentRepository persists provider assignments. Its IsAssigned method
// satisfies permission.AssignmentVerifier.
type AssignmentRepository interface {
	Assign(ctx context.Context, a *Assignment) error
	Unassign(ctx context.Context, patientID, providerID string) error
	ListByPatient(ctx context.Context, patientID string) ([]*Assignment, error)
	IsAssigned(ctx context.Context, providerID, patientID string) (bool, error)
}
