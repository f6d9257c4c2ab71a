package user

import (
	"context"
	"fmt"
	"net/mail"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/clinicehr/internal/permission"
	"github.com/ehr/clinicehr/pkg/pagination"
)

// Service manages system user accounts and their clinic memberships.
type Service struct {
	users    Repository
	resolver *permission.Resolver
	logger   zerolog.Logger
}

func NewService(users Repository, resolver *permission.Resolver, logger zerolog.Logger) *Service {
	return &Service{users: users, resolver: resolver, logger: logger}
}

// Create registers a user. The actor needs users:add in every target clinic
// and must be allowed to hand out the requested role there.
func (s *Service) Create(ctx context.Context, u *User) error {
	if err := validate(u); err != nil {
		return err
	}
	role, err := permission.ParseRole(string(u.Role))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	u.Role = role
	u.ClinicIDs = normalizeClinics(u.ClinicIDs)

	pc := permission.FromContext(ctx)
	if err := s.requireInClinics(pc, permission.OpAdd, u.ClinicIDs); err != nil {
		return err
	}
	if err := s.resolver.RequireAssignRole(pc, u.Role, u.ClinicIDs); err != nil {
		return err
	}

	u.ID = uuid.NewString()
	u.Active = true
	u.deriveFlags()
	if err := s.users.Create(ctx, u); err != nil {
		return err
	}

	s.logger.Info().
		Str("user_id", u.ID).
		Str("role", string(u.Role)).
		Strs("clinic_ids", u.ClinicIDs).
		Str("created_by", pc.UserID).
		Msg("user created")
	return nil
}

// Get loads a user sharing at least one clinic with the actor, or any user
// for actors with all scope.
func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, permission.OpView, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Update applies p to the user. The role is fixed at creation. The actor
// must be allowed to assign the user's role in all of the user's clinics;
// moving a user between clinics also needs edit rights in every clinic
// added or removed.
func (s *Service) Update(ctx context.Context, id string, p Patch) (*User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Role != nil && *p.Role != u.Role {
		return nil, ErrRoleImmutable
	}
	if err := s.authorize(ctx, permission.OpEdit, u); err != nil {
		return nil, err
	}
	pc := permission.FromContext(ctx)
	if err := s.requireManage(pc, permission.OpEdit, u); err != nil {
		return nil, err
	}

	if p.ClinicIDs != nil {
		current := normalizeClinics(u.ClinicIDs)
		clinics := normalizeClinics(p.ClinicIDs)
		if !slices.Equal(clinics, current) {
			if err := s.requireInClinics(pc, permission.OpEdit, clinics); err != nil {
				return nil, err
			}
			if removed := without(current, clinics); len(removed) > 0 {
				if err := s.requireInClinics(pc, permission.OpEdit, removed); err != nil {
					return nil, err
				}
			}
			if err := s.resolver.RequireAssignRole(pc, u.Role, clinics); err != nil {
				return nil, err
			}
		}
		u.ClinicIDs = clinics
	}
	if p.Email != nil {
		u.Email = *p.Email
	}
	if p.DisplayName != nil {
		u.DisplayName = *p.DisplayName
	}
	if p.Active != nil {
		u.Active = *p.Active
	}
	if err := validate(u); err != nil {
		return nil, err
	}

	if err := s.users.Update(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Delete removes a user the actor could have created. Users cannot delete
// themselves.
func (s *Service) Delete(ctx context.Context, id string) error {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if pc := permission.FromContext(ctx); pc != nil && pc.UserID == u.ID {
		return ErrSelfDelete
	}
	if err := s.authorize(ctx, permission.OpDelete, u); err != nil {
		return err
	}
	if err := s.requireManage(permission.FromContext(ctx), permission.OpDelete, u); err != nil {
		return err
	}
	if err := s.users.Delete(ctx, id); err != nil {
		return err
	}

	s.logger.Info().Str("user_id", id).Msg("user deleted")
	return nil
}

// List returns the users the actor may view, optionally limited to one
// clinic and one role.
func (s *Service) List(ctx context.Context, clinicID, role string, page pagination.Params) ([]*User, int, error) {
	pc := permission.FromContext(ctx)
	if err := s.resolver.Require(pc, permission.ModuleUsers, permission.OpView, nil); err != nil {
		return nil, 0, err
	}

	f := ListFilter{Role: role, Limit: page.Limit, Offset: page.Offset}
	switch s.resolver.PermissionScope(pc.Role, permission.ModuleUsers, permission.OpView) {
	case permission.ScopeAll:
		if clinicID != "" {
			f.ClinicIDs = []string{clinicID}
		}
	case permission.ScopeClinic, permission.ScopeClinicAdmin:
		if clinicID != "" {
			if err := s.resolver.RequireResource(pc, permission.ModuleUsers, permission.OpView, permission.Resource{ClinicID: clinicID}); err != nil {
				return nil, 0, err
			}
			f.ClinicIDs = []string{clinicID}
		} else {
			f.ClinicIDs = pc.ClinicIDs
		}
		if len(f.ClinicIDs) == 0 {
			return []*User{}, 0, nil
		}
	default:
		return []*User{}, 0, nil
	}

	return s.users.List(ctx, f)
}

// authorize allows op on u when any of u's clinics passes the check. A user
// without clinics can only be reached with all scope.
func (s *Service) authorize(ctx context.Context, op permission.Operation, u *User) error {
	pc := permission.FromContext(ctx)
	if len(u.ClinicIDs) == 0 {
		return s.resolver.RequireResource(pc, permission.ModuleUsers, op, permission.Resource{OwnerID: u.ID})
	}

	var err error
	for _, clinicID := range u.ClinicIDs {
		if err = s.resolver.RequireResource(pc, permission.ModuleUsers, op, permission.Resource{ClinicID: clinicID, OwnerID: u.ID}); err == nil {
			return nil
		}
	}
	return err
}

// requireManage stops an actor from changing an account it could not have
// created: the actor must be allowed to assign u's role in every one of u's
// clinics. Accounts holding an unknown role carry no permissions and are
// left to the clinic check in authorize.
func (s *Service) requireManage(pc *permission.Context, op permission.Operation, u *User) error {
	if !u.Role.Known() {
		return nil
	}
	if d := s.resolver.CanAssignRole(pc, u.Role, u.ClinicIDs); !d.Allowed {
		return &permission.DeniedError{Module: permission.ModuleUsers, Operation: op, Kind: d.Kind, Reason: d.Reason}
	}
	return nil
}

// requireInClinics checks op in each clinic. With no clinics only the
// capability is checked; role assignment decides the rest.
func (s *Service) requireInClinics(pc *permission.Context, op permission.Operation, clinicIDs []string) error {
	if len(clinicIDs) == 0 {
		return s.resolver.Require(pc, permission.ModuleUsers, op, nil)
	}
	for _, clinicID := range clinicIDs {
		if err := s.resolver.RequireResource(pc, permission.ModuleUsers, op, permission.Resource{ClinicID: clinicID}); err != nil {
			return err
		}
	}
	return nil
}

func validate(u *User) error {
	switch {
	case strings.TrimSpace(u.DisplayName) == "":
		return fmt.Errorf("%w: display_name is required", ErrValidation)
	case strings.TrimSpace(u.Email) == "":
		return fmt.Errorf("%w: email is required", ErrValidation)
	}
	if _, err := mail.ParseAddress(u.Email); err != nil {
		return fmt.Errorf("%w: email is malformed", ErrValidation)
	}
	return nil
}

// without returns the ids in from that are not in keep.
func without(from, keep []string) []string {
	var out []string
	for _, id := range from {
		if !slices.Contains(keep, id) {
			out = append(out, id)
		}
	}
	return out
}

func normalizeClinics(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
