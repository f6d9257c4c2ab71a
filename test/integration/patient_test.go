package integration

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/clinicehr/internal/domain/patient"
	"github.com/ehr/clinicehr/internal/permission"
	"github.com/ehr/clinicehr/internal/platform/db"
	"github.com/ehr/clinicehr/pkg/pagination"
)

func TestPatientRepo_CRUD(t *testing.T) {
	pool := requireDB(t)
	ctx := context.Background()
	clinicID := createClinic(t, ctx, pool)
	repo := patient.NewRepo(pool)

	p := createPatient(t, ctx, pool, clinicID, "reg-1")
	assert.False(t, p.CreatedAt.IsZero())

	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, clinicID, got.ClinicID)
	assert.Equal(t, "reg-1", got.RegisteredBy)
	assert.Empty(t, got.AssignedProviderIDs)

	got.LastName = "Byron"
	require.NoError(t, repo.Update(ctx, got))
	got, err = repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Byron", got.LastName)

	require.NoError(t, repo.Delete(ctx, p.ID))
	_, err = repo.GetByID(ctx, p.ID)
	assert.ErrorIs(t, err, patient.ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, p.ID), patient.ErrNotFound)
}

func TestAssignmentRepo_VerifiesForResolver(t *testing.T) {
	pool := requireDB(t)
	ctx := context.Background()
	clinicID := createClinic(t, ctx, pool)
	p := createPatient(t, ctx, pool, clinicID, "reg-1")

	assignments := patient.NewAssignmentRepo(pool)
	require.NoError(t, assignments.Assign(ctx, &patient.Assignment{PatientID: p.ID, ProviderID: "prov-1", AssignedBy: "adm-1"}))

	got, err := patient.NewRepo(pool).GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"prov-1"}, got.AssignedProviderIDs)

	resolver := permission.NewResolver(nil, permission.WithAssignmentVerifier(assignments))
	prov1 := permission.NewContext("prov-1", "provider", []string{clinicID}, false, false)
	prov2 := permission.NewContext("prov-2", "provider", []string{clinicID}, false, false)

	// The caller-supplied provider list is ignored in favour of storage.
	forged := permission.Resource{ClinicID: clinicID, AssignedProviderIDs: []string{"prov-2"}}

	d, err := resolver.CheckWithAssignmentVerification(ctx, prov1, permission.ModulePrescriptions, permission.OpAdd, p.ID, forged)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = resolver.CheckWithAssignmentVerification(ctx, prov2, permission.ModulePrescriptions, permission.OpAdd, p.ID, forged)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, permission.KindScopeViolation, d.Kind)

	require.NoError(t, assignments.Unassign(ctx, p.ID, "prov-1"))
	ok, err := assignments.IsAssigned(ctx, "prov-1", p.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.ErrorIs(t, assignments.Unassign(ctx, p.ID, "prov-1"), patient.ErrNotFound)
}

func TestPatientService_ListNarrowedByScope(t *testing.T) {
	pool := requireDB(t)
	ctx := context.Background()
	clinicA := createClinic(t, ctx, pool)
	clinicB := createClinic(t, ctx, pool)

	assignments := patient.NewAssignmentRepo(pool)
	resolver := permission.NewResolver(nil, permission.WithAssignmentVerifier(assignments))
	svc := patient.NewService(patient.NewRepo(pool), assignments, db.NewTransactor(pool), resolver, zerolog.Nop())

	p1 := createPatient(t, ctx, pool, clinicA, "reg-1")
	createPatient(t, ctx, pool, clinicA, "reg-1")
	createPatient(t, ctx, pool, clinicB, "reg-2")
	require.NoError(t, assignments.Assign(ctx, &patient.Assignment{PatientID: p1.ID, ProviderID: "prov-1", AssignedBy: "adm-1"}))

	page := pagination.Params{Limit: 50}

	_, total, err := svc.List(asActor(ctx, "reg-1", permission.RoleRegistrar, clinicA), "", "", page)
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	got, total, err := svc.List(asActor(ctx, "prov-1", permission.RoleProvider, clinicA), "", "", page)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, p1.ID, got[0].ID)

	_, _, err = svc.List(asActor(ctx, "adm-1", permission.RoleAdmin, clinicA), clinicB, "", page)
	assert.ErrorIs(t, err, permission.ErrForbidden)

	_, total, err = svc.List(asActor(ctx, "root", permission.RoleSuperAdmin), clinicB, "", page)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

// failingAssignments fails every Assign after the patient insert has run.
type failingAssignments struct {
	patient.AssignmentRepository
}

func (failingAssignments) Assign(context.Context, *patient.Assignment) error {
	return errors.New("assignment store unavailable")
}

func TestPatientService_ProviderCreateIsAtomic(t *testing.T) {
	pool := requireDB(t)
	ctx := context.Background()
	clinicID := createClinic(t, ctx, pool)

	repo := patient.NewRepo(pool)
	assignments := patient.NewAssignmentRepo(pool)
	resolver := permission.NewResolver(nil, permission.WithAssignmentVerifier(assignments))
	actor := asActor(ctx, uniqueID("prov"), permission.RoleProvider, clinicID)

	broken := patient.NewService(repo, failingAssignments{assignments}, db.NewTransactor(pool), resolver, zerolog.Nop())
	p := &patient.Patient{ClinicID: clinicID, MRN: uniqueID("MRN"), FirstName: "Ada", LastName: "Lovelace"}
	require.Error(t, broken.Create(actor, p))
	_, err := repo.GetByID(ctx, p.ID)
	assert.ErrorIs(t, err, patient.ErrNotFound, "patient insert must roll back with the assignment")

	svc := patient.NewService(repo, assignments, db.NewTransactor(pool), resolver, zerolog.Nop())
	p = &patient.Patient{ClinicID: clinicID, MRN: uniqueID("MRN"), FirstName: "Ada", LastName: "Lovelace"}
	require.NoError(t, svc.Create(actor, p))
	got, err := svc.Get(actor, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.AssignedProviderIDs, got.AssignedProviderIDs)
}
