package patient

import (
	"time"

	"github.com/ehr/clinicehr/internal/permission"
)

// Patient maps to the patient table. AssignedProviderIDs is loaded from
// patient_provider_assignment and is read-only on this struct.
type Patient struct {
	ID                  string     `json:"id"`
	ClinicID            string     `json:"clinic_id"`
	MRN                 string     `json:"mrn"`
	FirstName           string     `json:"first_name"`
	LastName            string     `json:"last_name"`
	BirthDate           *time.Time `json:"birth_date,omitempty"`
	RegisteredBy        string     `json:"registered_by"`
	AssignedProviderIDs []string   `json:"assigned_provider_ids"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// Resource is the patient as seen by the permission resolver. The
// registering user owns the record.
func (p *Patient) Resource() permission.Resource {
	return permission.Resource{
		ClinicID:            p.ClinicID,
		OwnerID:             p.RegisteredBy,
		AssignedProviderIDs: p.AssignedProviderIDs,
	}
}

// Assignment links a provider to a patient.
type Assignment struct {
	PatientID  string    `json:"patient_id"`
	ProviderID string    `json:"provider_id"`
	AssignedBy string    `json:"assigned_by"`
	AssignedAt time.Time `json:"assigned_at"`
}

// ListFilter narrows a patient listing. Empty fields do not filter.
type ListFilter struct {
	ClinicIDs    []string
	AssignedTo   string
	RegisteredBy string
	Search       string
	Limit        int
	Offset       int
}
