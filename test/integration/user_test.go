package integration

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/clinicehr/internal/domain/user"
	"github.com/ehr/clinicehr/internal/permission"
	"github.com/ehr/clinicehr/internal/platform/db"
)

func TestUserRepo_ClinicMembership(t *testing.T) {
	pool := requireDB(t)
	ctx := context.Background()
	clinicA := createClinic(t, ctx, pool)
	clinicB := createClinic(t, ctx, pool)
	repo := user.NewRepo(pool)

	u := createUser(t, ctx, pool, permission.RoleProvider, clinicA)

	got, err := repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{clinicA}, got.ClinicIDs)
	assert.Equal(t, permission.RoleProvider, got.Role)

	got.ClinicIDs = []string{clinicB}
	got.DisplayName = "Moved"
	require.NoError(t, repo.Update(ctx, got))

	got, err = repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{clinicB}, got.ClinicIDs)
	assert.Equal(t, "Moved", got.DisplayName)

	users, total, err := repo.List(ctx, user.ListFilter{ClinicIDs: []string{clinicA}, Limit: 10})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, users)
}

func TestUserRepo_CreateRollsBackOnBadClinic(t *testing.T) {
	pool := requireDB(t)
	ctx := context.Background()
	repo := user.NewRepo(pool)

	u := &user.User{ID: uniqueID("u"), Email: uniqueID("x") + "@example.org", DisplayName: "X",
		Role: permission.RoleProvider, ClinicIDs: []string{"no-such-clinic"}, Active: true}
	require.Error(t, repo.Create(ctx, u))

	_, err := repo.GetByID(ctx, u.ID)
	assert.ErrorIs(t, err, user.ErrNotFound, "user row must not survive a failed membership insert")
}

func TestUserRepo_DuplicateEmail(t *testing.T) {
	pool := requireDB(t)
	ctx := context.Background()
	existing := createUser(t, ctx, pool, permission.RoleRegistrar)

	dup := &user.User{ID: uniqueID("u"), Email: existing.Email, DisplayName: "Dup", Role: permission.RoleRegistrar, Active: true}
	assert.ErrorIs(t, user.NewRepo(pool).Create(ctx, dup), user.ErrDuplicateEmail)
}

func TestUserRepo_StaleRoleLoads(t *testing.T) {
	pool := requireDB(t)
	ctx := context.Background()
	u := createUser(t, ctx, pool, permission.RoleProvider)

	_, err := pool.Exec(ctx, `UPDATE system_user SET role = 'nurse' WHERE id = $1`, u.ID)
	require.NoError(t, err)

	got, err := user.NewRepo(pool).GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, permission.Role("nurse"), got.Role)
	assert.Empty(t, permission.NewResolver(nil).AccessibleModules(got.PermissionContext()))
}

func TestWithTx_NestedCallsShareTransaction(t *testing.T) {
	pool := requireDB(t)
	ctx := context.Background()
	repo := user.NewRepo(pool)

	first := &user.User{ID: uniqueID("u"), Email: uniqueID("a") + "@example.org", DisplayName: "A", Role: permission.RoleRegistrar, Active: true}
	boom := errors.New("boom")

	err := db.WithTx(ctx, pool, func(ctx context.Context) error {
		if err := repo.Create(ctx, first); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = repo.GetByID(ctx, first.ID)
	assert.ErrorIs(t, err, user.ErrNotFound)
}
