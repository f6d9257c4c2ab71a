package prescription

import (
	"time"

	"github.com/ehr/clinicehr/internal/permission"
)

const (
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

var validStatuses = map[string]bool{
	StatusActive:    true,
	StatusCompleted: true,
	StatusCancelled: true,
}

// Prescription maps to the prescription table. ClinicID is copied from the
// patient at creation.
type Prescription struct {
	ID           string    `json:"id"`
	PatientID    string    `json:"patient_id"`
	ClinicID     string    `json:"clinic_id"`
	PrescriberID string    `json:"prescriber_id"`
	Medication   string    `json:"medication"`
	Dosage       string    `json:"dosage"`
	Instructions string    `json:"instructions"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Resource is the prescription as seen by the resolver. The prescriber owns
// it and is its provider; the patient's assigned providers share it.
func (rx *Prescription) Resource(assignedProviderIDs []string) permission.Resource {
	return permission.Resource{
		ClinicID:            rx.ClinicID,
		OwnerID:             rx.PrescriberID,
		ProviderID:          rx.PrescriberID,
		AssignedProviderIDs: assignedProviderIDs,
	}
}
