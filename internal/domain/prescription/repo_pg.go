package prescription

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/clinicehr/internal/platform/db"
)

type rxRepoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &rxRepoPG{pool: pool}
}

func (r *rxRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const rxColumns = `id, patient_id, clinic_id, prescriber_id, medication, dosage,
	instructions, status, created_at, updated_at`

func (r *rxRepoPG) Create(ctx context.Context, rx *Prescription) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO prescription (id, patient_id, clinic_id, prescriber_id, medication, dosage, instructions, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		rx.ID, rx.PatientID, rx.ClinicID, rx.PrescriberID, rx.Medication, rx.Dosage, rx.Instructions, rx.Status,
	).Scan(&rx.CreatedAt, &rx.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert prescription: %w", err)
	}
	return nil
}

func (r *rxRepoPG) GetByID(ctx context.Context, id string) (*Prescription, error) {
	rx, err := scanRx(r.conn(ctx).QueryRow(ctx, `SELECT `+rxColumns+` FROM prescription WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, ErrNotFound
	}
	return rx, err
}

func (r *rxRepoPG) Update(ctx context.Context, rx *Prescription) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE prescription SET
			medication = $2, dosage = $3, instructions = $4, status = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		rx.ID, rx.Medication, rx.Dosage, rx.Instructions, rx.Status,
	).Scan(&rx.UpdatedAt)
	if db.IsNoRows(err) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update prescription: %w", err)
	}
	return nil
}

func (r *rxRepoPG) Delete(ctx context.Context, id string) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM prescription WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete prescription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByPatient lists a patient's prescriptions, optionally only those
// written by prescriberID.
func (r *rxRepoPG) ListByPatient(ctx context.Context, patientID, prescriberID string, limit, offset int) ([]*Prescription, int, error) {
	const where = `patient_id = $1 AND ($2 = '' OR prescriber_id = $2)`

	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM prescription WHERE `+where, patientID, prescriberID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count prescriptions: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+rxColumns+` FROM prescription WHERE `+where+` ORDER BY created_at DESC LIMIT $3 OFFSET $4`,
		patientID, prescriberID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list prescriptions: %w", err)
	}
	defer rows.Close()

	var out []*Prescription
	for rows.Next() {
		rx, err := scanRx(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, rx)
	}
	return out, total, rows.Err()
}

func scanRx(row pgx.Row) (*Prescription, error) {
	var rx Prescription
	err := row.Scan(
		&rx.ID, &rx.PatientID, &rx.ClinicID, &rx.PrescriberID, &rx.Medication, &rx.Dosage,
		&rx.Instructions, &rx.Status, &rx.CreatedAt, &rx.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rx, nil
}
