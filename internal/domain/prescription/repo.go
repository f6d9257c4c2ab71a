package prescription

import (
	"context"
	"errors"

	"github.com/ehr/clinicehr/internal/domain/patient"
)

var (
	ErrNotFound   = errors.New("prescription not found")
	ErrValidation = errors.New("invalid prescription")
)

type Repository interface {
	Create(ctx context.Context, rx *Prescription) error
	GetByID(ctx context.Context, id string) (*Prescription, error)
	Update(ctx context.Context, rx *Prescription) error
	Delete(ctx context.Context, id string) error
	ListByPatient(ctx context.Context, patientID, prescriberID string, limit, offset int) ([]*Prescription, int, error)
}

// PatientReader loads the patient a prescription belongs to.
type PatientReader interface {
	GetByID(ctx context.Context, id string) (*patient.Patient, error)
}
