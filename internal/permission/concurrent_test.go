package permission_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ehr/clinicehr/internal/permission"
)

func TestResolver_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	v := &lockedVerifier{assigned: map[string]bool{"u1|pat-1": true}}
	r := permission.NewResolver(nil, permission.WithAssignmentVerifier(v))

	const numGoroutines = 50
	const numOperations = 500

	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()

			registrar := permission.NewContext("reg", "registrar", []string{"clinic-A"}, false, false)
			provider := permission.NewContext("u1", "provider", []string{"clinic-A"}, false, false)

			for j := 0; j < numOperations; j++ {
				switch (id + j) % 5 {
				case 0:
					d := r.CheckResource(registrar, permission.ModulePatients, permission.OpAdd, permission.Resource{ClinicID: "clinic-A"})
					assert.True(t, d.Allowed)
				case 1:
					d := r.CheckResource(registrar, permission.ModulePatients, permission.OpDelete, permission.Resource{ClinicID: "clinic-A"})
					assert.False(t, d.Allowed)
				case 2:
					d, err := r.CheckWithAssignmentVerification(context.Background(), provider, permission.ModulePatients, permission.OpView, "pat-1", permission.Resource{})
					assert.NoError(t, err)
					assert.True(t, d.Allowed)
				case 3:
					assert.Len(t, r.AccessibleModules(registrar), 2)
				case 4:
					_ = r.ModulePermissions(permission.RoleAdmin, permission.ModuleUsers)
				}
			}
		}(i)
	}

	wg.Wait()
}

type lockedVerifier struct {
	mu       sync.Mutex
	assigned map[string]bool
}

func (v *lockedVerifier) IsAssigned(_ context.Context, providerID, patientID string) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.assigned[providerID+"|"+patientID], nil
}
