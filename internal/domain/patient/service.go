package patient

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/clinicehr/internal/permission"
	"github.com/ehr/clinicehr/internal/platform/db"
	"github.com/ehr/clinicehr/pkg/pagination"
)

// Service implements patient registration, demographics and provider
// assignment on top of the permission resolver.
type Service struct {
	patients    Repository
	assignments AssignmentRepository
	tx          db.Transactor
	resolver    *permission.Resolver
	logger      zerolog.Logger
}

// NewService wires the service. tx must cover both repositories so a
// registration and its initial assignment commit together.
func NewService(patients Repository, assignments AssignmentRepository, tx db.Transactor, resolver *permission.Resolver, logger zerolog.Logger) *Service {
	return &Service{patients: patients, assignments: assignments, tx: tx, resolver: resolver, logger: logger}
}

// Create registers a patient in p.ClinicID. The actor becomes the owner of
// the record; an actor who could otherwise only see assigned patients is
// assigned to it as well, in the same transaction.
//
// Unless the actor's add scope is all, p.ClinicID must be one of the actor's
// clinics. The own scope on add only names the actor as owner and would not
// otherwise constrain the clinic.
func (s *Service) Create(ctx context.Context, p *Patient) error {
	pc := permission.FromContext(ctx)
	if err := validate(p); err != nil {
		return err
	}
	res := permission.Resource{ClinicID: p.ClinicID, OwnerID: actorID(pc)}
	if err := s.resolver.RequireResource(pc, permission.ModulePatients, permission.OpAdd, res); err != nil {
		return err
	}
	if s.resolver.PermissionScope(pc.Role, permission.ModulePatients, permission.OpAdd) != permission.ScopeAll && !pc.InClinic(p.ClinicID) {
		return &permission.DeniedError{
			Module:    permission.ModulePatients,
			Operation: permission.OpAdd,
			Kind:      permission.KindScopeViolation,
			Reason:    fmt.Sprintf("clinic %s outside actor clinics", p.ClinicID),
		}
	}

	p.ID = uuid.NewString()
	p.RegisteredBy = pc.UserID
	p.AssignedProviderIDs = nil
	selfAssign := s.resolver.PermissionScope(pc.Role, permission.ModulePatients, permission.OpView) == permission.ScopeAssigned

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.patients.Create(ctx, p); err != nil {
			return err
		}
		if !selfAssign {
			return nil
		}
		a := &Assignment{PatientID: p.ID, ProviderID: pc.UserID, AssignedBy: pc.UserID}
		return s.assignments.Assign(ctx, a)
	})
	if err != nil {
		return err
	}
	if selfAssign {
		p.AssignedProviderIDs = []string{pc.UserID}
	}

	s.logger.Info().
		Str("patient_id", p.ID).
		Str("clinic_id", p.ClinicID).
		Str("user_id", pc.UserID).
		Msg("patient registered")
	return nil
}

// Get loads a patient the actor may view.
func (s *Service) Get(ctx context.Context, id string) (*Patient, error) {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, permission.OpView, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Update changes demographic fields. The clinic and owner of a patient are
// fixed at registration.
func (s *Service) Update(ctx context.Context, p *Patient) error {
	if err := validateDemographics(p); err != nil {
		return err
	}
	existing, err := s.patients.GetByID(ctx, p.ID)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, permission.OpEdit, existing); err != nil {
		return err
	}

	existing.MRN = p.MRN
	existing.FirstName = p.FirstName
	existing.LastName = p.LastName
	existing.BirthDate = p.BirthDate
	if err := s.patients.Update(ctx, existing); err != nil {
		return err
	}
	*p = *existing
	return nil
}

// Delete removes a patient together with its assignments.
func (s *Service) Delete(ctx context.Context, id string) error {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, permission.OpDelete, p); err != nil {
		return err
	}
	return s.patients.Delete(ctx, id)
}

// List returns the patients the actor may view. The filter is derived from
// the actor's view scope so the database never returns rows the resolver
// would refuse.
func (s *Service) List(ctx context.Context, clinicID, search string, page pagination.Params) ([]*Patient, int, error) {
	pc := permission.FromContext(ctx)
	if err := s.resolver.Require(pc, permission.ModulePatients, permission.OpView, nil); err != nil {
		return nil, 0, err
	}

	f := ListFilter{Search: strings.TrimSpace(search), Limit: page.Limit, Offset: page.Offset}
	if clinicID != "" {
		f.ClinicIDs = []string{clinicID}
	}

	switch scope := s.resolver.PermissionScope(pc.Role, permission.ModulePatients, permission.OpView); scope {
	case permission.ScopeAll:
	case permission.ScopeClinic, permission.ScopeClinicAdmin:
		if clinicID != "" {
			res := permission.Resource{ClinicID: clinicID}
			if err := s.resolver.RequireResource(pc, permission.ModulePatients, permission.OpView, res); err != nil {
				return nil, 0, err
			}
		} else {
			if len(pc.ClinicIDs) == 0 {
				return []*Patient{}, 0, nil
			}
			f.ClinicIDs = slices.Clone(pc.ClinicIDs)
		}
	case permission.ScopeAssigned, permission.ScopeOwn:
		if pc.UserID == "" {
			return []*Patient{}, 0, nil
		}
		if scope == permission.ScopeAssigned {
			f.AssignedTo = pc.UserID
		} else {
			f.RegisteredBy = pc.UserID
		}
	default:
		return nil, 0, fmt.Errorf("unsupported list scope %q", scope)
	}

	return s.patients.List(ctx, f)
}

// AssignProvider links providerID to the patient. It requires edit access to
// the patient.
func (s *Service) AssignProvider(ctx context.Context, patientID, providerID string) (*Assignment, error) {
	if strings.TrimSpace(providerID) == "" {
		return nil, fmt.Errorf("%w: provider_id is required", ErrValidation)
	}
	p, err := s.patients.GetByID(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, permission.OpEdit, p); err != nil {
		return nil, err
	}

	pc := permission.FromContext(ctx)
	a := &Assignment{PatientID: patientID, ProviderID: providerID, AssignedBy: pc.UserID}
	if err := s.assignments.Assign(ctx, a); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("patient_id", patientID).
		Str("provider_id", providerID).
		Str("user_id", pc.UserID).
		Msg("provider assigned")
	return a, nil
}

// UnassignProvider removes one provider link. It requires edit access to the
// patient.
func (s *Service) UnassignProvider(ctx context.Context, patientID, providerID string) error {
	p, err := s.patients.GetByID(ctx, patientID)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, permission.OpEdit, p); err != nil {
		return err
	}
	return s.assignments.Unassign(ctx, patientID, providerID)
}

// ListAssignments returns the providers linked to a patient the actor may
// view.
func (s *Service) ListAssignments(ctx context.Context, patientID string) ([]*Assignment, error) {
	p, err := s.patients.GetByID(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, permission.OpView, p); err != nil {
		return nil, err
	}
	return s.assignments.ListByPatient(ctx, patientID)
}

// authorize checks op on a stored patient. Assigned scopes are verified
// against stored assignments rather than the loaded provider list.
func (s *Service) authorize(ctx context.Context, op permission.Operation, p *Patient) error {
	pc := permission.FromContext(ctx)
	return s.resolver.RequireWithAssignmentVerification(ctx, pc, permission.ModulePatients, op, p.ID, p.Resource())
}

func actorID(pc *permission.Context) string {
	if pc == nil {
		return ""
	}
	return pc.UserID
}

func validate(p *Patient) error {
	if strings.TrimSpace(p.ClinicID) == "" {
		return fmt.Errorf("%w: clinic_id is required", ErrValidation)
	}
	return validateDemographics(p)
}

func validateDemographics(p *Patient) error {
	switch {
	case strings.TrimSpace(p.MRN) == "":
		return fmt.Errorf("%w: mrn is required", ErrValidation)
	case strings.TrimSpace(p.FirstName) == "":
		return fmt.Errorf("%w: first_name is required", ErrValidation)
	case strings.TrimSpace(p.LastName) == "":
		return fmt.Errorf("%w: last_name is required", ErrValidation)
	}
	return nil
}
