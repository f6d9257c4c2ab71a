package patient

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/clinicehr/internal/platform/db"
)

// -- Patient Repository --

type patientRepoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

// patientColumns aggregates assignments so a single row carries the
// provider list the resolver needs.
const patientColumns = `p.id, p.clinic_id, p.mrn, p.first_name, p.last_name, p.birth_date,
	p.registered_by, p.created_at, p.updated_at,
	COALESCE((SELECT array_agg(a.provider_id ORDER BY a.assigned_at)
		FROM patient_provider_assignment a WHERE a.patient_id = p.id), '{}')`

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patient (id, clinic_id, mrn, first_name, last_name, birth_date, registered_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		p.ID, p.ClinicID, p.MRN, p.FirstName, p.LastName, p.BirthDate, p.RegisteredBy,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}

func (r *patientRepoPG) GetByID(ctx context.Context, id string) (*Patient, error) {
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx,
		`SELECT `+patientColumns+` FROM patient p WHERE p.id = $1`, id))
	if db.IsNoRows(err) {
		return nil, ErrNotFound
	}
	return p, err
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patient SET
			mrn = $2, first_name = $3, last_name = $4, birth_date = $5, updated_at = NOW()
		WHERE id = $1`,
		p.ID, p.MRN, p.FirstName, p.LastName, p.BirthDate,
	)
	if err != nil {
		return fmt.Errorf("update patient: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *patientRepoPG) Delete(ctx context.Context, id string) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM patient WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete patient: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *patientRepoPG) List(ctx context.Context, f ListFilter) ([]*Patient, int, error) {
	where := []string{"1=1"}
	var args []interface{}
	idx := 1

	if len(f.ClinicIDs) > 0 {
		where = append(where, fmt.Sprintf("p.clinic_id = ANY($%d)", idx))
		args = append(args, f.ClinicIDs)
		idx++
	}
	if f.AssignedTo != "" {
		where = append(where, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM patient_provider_assignment a WHERE a.patient_id = p.id AND a.provider_id = $%d)", idx))
		args = append(args, f.AssignedTo)
		idx++
	}
	if f.RegisteredBy != "" {
		where = append(where, fmt.Sprintf("p.registered_by = $%d", idx))
		args = append(args, f.RegisteredBy)
		idx++
	}
	if f.Search != "" {
		where = append(where, fmt.Sprintf(
			"(p.last_name ILIKE $%d OR p.first_name ILIKE $%d OR p.mrn = $%d)", idx, idx, idx+1))
		args = append(args, "%"+f.Search+"%", f.Search)
		idx += 2
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patient p WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count patients: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM patient p WHERE %s
		ORDER BY p.last_name, p.first_name, p.id LIMIT $%d OFFSET $%d`, patientColumns, clause, idx, idx+1)
	args = append(args, f.Limit, f.Offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list patients: %w", err)
	}
	defer rows.Close()

	var patients []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		patients = append(patients, p)
	}
	return patients, total, rows.Err()
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(
		&p.ID, &p.ClinicID, &p.MRN, &p.FirstName, &p.LastName, &p.BirthDate,
		&p.RegisteredBy, &p.CreatedAt, &p.UpdatedAt, &p.AssignedProviderIDs,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// -- Assignment Repository --

type assignmentRepoPG struct {
	pool *pgxpool.Pool
}

func NewAssignmentRepo(pool *pgxpool.Pool) AssignmentRepository {
	return &assignmentRepoPG{pool: pool}
}

func (r *assignmentRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func (r *assignmentRepoPG) Assign(ctx context.Context, a *Assignment) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patient_provider_assignment (patient_id, provider_id, assigned_by)
		VALUES ($1, $2, $3)
		ON CONFLICT (patient_id, provider_id) DO UPDATE SET assigned_by = patient_provider_assignment.assigned_by
		RETURNING assigned_by, assigned_at`,
		a.PatientID, a.ProviderID, a.AssignedBy,
	).Scan(&a.AssignedBy, &a.AssignedAt)
	if err != nil {
		return fmt.Errorf("assign provider: %w", err)
	}
	return nil
}

func (r *assignmentRepoPG) Unassign(ctx context.Context, patientID, providerID string) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM patient_provider_assignment WHERE patient_id = $1 AND provider_id = $2`,
		patientID, providerID)
	if err != nil {
		return fmt.Errorf("unassign provider: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *assignmentRepoPG) ListByPatient(ctx context.Context, patientID string) ([]*Assignment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT patient_id, provider_id, assigned_by, assigned_at
		FROM patient_provider_assignment WHERE patient_id = $1 ORDER BY assigned_at`, patientID)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()

	var out []*Assignment
	for rows.Next() {
		var a Assignment
		if err := rows.Scan(&a.PatientID, &a.ProviderID, &a.AssignedBy, &a.AssignedAt); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// IsAssigned reads the assignment straight from storage so callers cannot
// forge it.
func (r *assignmentRepoPG) IsAssigned(ctx context.Context, providerID, patientID string) (bool, error) {
	var ok bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM patient_provider_assignment WHERE provider_id = $1 AND patient_id = $2
		)`, providerID, patientID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check assignment: %w", err)
	}
	return ok, nil
}
