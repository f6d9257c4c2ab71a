package prescription

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/clinicehr/internal/domain/patient"
	"github.com/ehr/clinicehr/internal/permission"
	"github.com/ehr/clinicehr/pkg/pagination"
)

// Service guards prescriptions through the permission resolver, narrowing
// every check by the prescription's patient.
type Service struct {
	rxs      Repository
	patients PatientReader
	resolver *permission.Resolver
	logger   zerolog.Logger
}

func NewService(rxs Repository, patients PatientReader, resolver *permission.Resolver, logger zerolog.Logger) *Service {
	return &Service{rxs: rxs, patients: patients, resolver: resolver, logger: logger}
}

// Create writes a prescription for rx.PatientID on behalf of the actor.
func (s *Service) Create(ctx context.Context, rx *Prescription) error {
	if err := validate(rx); err != nil {
		return err
	}
	p, err := s.loadPatient(ctx, permission.OpAdd, rx.PatientID)
	if err != nil {
		return err
	}

	pc := permission.FromContext(ctx)
	rx.ClinicID = p.ClinicID
	if pc != nil {
		rx.PrescriberID = pc.UserID
	}
	if err := s.authorize(ctx, permission.OpAdd, rx, p); err != nil {
		return err
	}

	rx.ID = uuid.NewString()
	if rx.Status == "" {
		rx.Status = StatusActive
	}
	if err := s.rxs.Create(ctx, rx); err != nil {
		return err
	}

	s.logger.Info().
		Str("prescription_id", rx.ID).
		Str("patient_id", rx.PatientID).
		Str("prescriber_id", rx.PrescriberID).
		Msg("prescription created")
	return nil
}

// Get loads a prescription the actor may view.
func (s *Service) Get(ctx context.Context, id string) (*Prescription, error) {
	rx, p, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, permission.OpView, rx, p); err != nil {
		return nil, err
	}
	return rx, nil
}

// Update changes the clinical fields. Patient, clinic and prescriber are
// fixed at creation.
func (s *Service) Update(ctx context.Context, rx *Prescription) error {
	if err := validateClinical(rx); err != nil {
		return err
	}
	existing, p, err := s.load(ctx, rx.ID)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, permission.OpEdit, existing, p); err != nil {
		return err
	}

	existing.Medication = rx.Medication
	existing.Dosage = rx.Dosage
	existing.Instructions = rx.Instructions
	if rx.Status != "" {
		existing.Status = rx.Status
	}
	if err := s.rxs.Update(ctx, existing); err != nil {
		return err
	}
	*rx = *existing
	return nil
}

// Delete removes a prescription. Providers may only delete their own.
func (s *Service) Delete(ctx context.Context, id string) error {
	rx, p, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, permission.OpDelete, rx, p); err != nil {
		return err
	}
	return s.rxs.Delete(ctx, id)
}

// ListByPatient lists prescriptions for a patient the actor may view. An
// own-scoped actor only sees prescriptions they wrote.
func (s *Service) ListByPatient(ctx context.Context, patientID string, page pagination.Params) ([]*Prescription, int, error) {
	p, err := s.loadPatient(ctx, permission.OpView, patientID)
	if err != nil {
		return nil, 0, err
	}

	pc := permission.FromContext(ctx)
	scope := permission.ScopeNone
	if pc != nil {
		scope = s.resolver.PermissionScope(pc.Role, permission.ModulePrescriptions, permission.OpView)
	}

	prescriberID := ""
	res := permission.Resource{ClinicID: p.ClinicID, AssignedProviderIDs: p.AssignedProviderIDs}
	if scope == permission.ScopeOwn {
		prescriberID = pc.UserID
		res.OwnerID = pc.UserID
	}
	if err := s.resolver.RequireWithAssignmentVerification(ctx, pc, permission.ModulePrescriptions, permission.OpView, p.ID, res); err != nil {
		return nil, 0, err
	}

	return s.rxs.ListByPatient(ctx, patientID, prescriberID, page.Limit, page.Offset)
}

// loadPatient checks the capability for op before reading the patient. A
// missing patient is reported as a denial to actors whose scope is narrower
// than all, so patient ids outside their reach look the same as unknown ones.
func (s *Service) loadPatient(ctx context.Context, op permission.Operation, patientID string) (*patient.Patient, error) {
	pc := permission.FromContext(ctx)
	if err := s.resolver.Require(pc, permission.ModulePrescriptions, op, nil); err != nil {
		return nil, err
	}
	p, err := s.patients.GetByID(ctx, patientID)
	if errors.Is(err, patient.ErrNotFound) && s.resolver.PermissionScope(pc.Role, permission.ModulePrescriptions, op) != permission.ScopeAll {
		return nil, &permission.DeniedError{
			Module:    permission.ModulePrescriptions,
			Operation: op,
			Kind:      permission.KindScopeViolation,
			Reason:    "patient not accessible",
		}
	}
	return p, err
}

func (s *Service) load(ctx context.Context, id string) (*Prescription, *patient.Patient, error) {
	rx, err := s.rxs.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	p, err := s.patients.GetByID(ctx, rx.PatientID)
	if err != nil {
		return nil, nil, fmt.Errorf("load patient of prescription %s: %w", id, err)
	}
	return rx, p, nil
}

func (s *Service) authorize(ctx context.Context, op permission.Operation, rx *Prescription, p *patient.Patient) error {
	pc := permission.FromContext(ctx)
	return s.resolver.RequireWithAssignmentVerification(ctx, pc, permission.ModulePrescriptions, op, p.ID, rx.Resource(p.AssignedProviderIDs))
}

func validate(rx *Prescription) error {
	if strings.TrimSpace(rx.PatientID) == "" {
		return fmt.Errorf("%w: patient_id is required", ErrValidation)
	}
	return validateClinical(rx)
}

func validateClinical(rx *Prescription) error {
	switch {
	case strings.TrimSpace(rx.Medication) == "":
		return fmt.Errorf("%w: medication is required", ErrValidation)
	case strings.TrimSpace(rx.Dosage) == "":
		return fmt.Errorf("%w: dosage is required", ErrValidation)
	case rx.Status != "" && !validStatuses[rx.Status]:
		return fmt.Errorf("%w: unknown status %q", ErrValidation, rx.Status)
	}
	return nil
}
