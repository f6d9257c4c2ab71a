package user

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/clinicehr/internal/permission"
	"github.com/ehr/clinicehr/internal/platform/db"
)

type userRepoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &userRepoPG{pool: pool}
}

func (r *userRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const userColumns = `u.id, u.email, u.display_name, u.role, u.is_clinic_admin, u.is_super_admin,
	u.active, u.created_at, u.updated_at,
	COALESCE((SELECT array_agg(m.clinic_id ORDER BY m.clinic_id)
		FROM system_user_clinic m WHERE m.user_id = u.id), '{}')`

func (r *userRepoPG) Create(ctx context.Context, u *User) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		err := r.conn(ctx).QueryRow(ctx, `
			INSERT INTO system_user (id, email, display_name, role, is_clinic_admin, is_super_admin, active)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING created_at, updated_at`,
			u.ID, u.Email, u.DisplayName, string(u.Role), u.IsClinicAdmin, u.IsSuperAdmin, u.Active,
		).Scan(&u.CreatedAt, &u.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicateEmail
			}
			return fmt.Errorf("insert system user: %w", err)
		}
		return r.insertClinics(ctx, u.ID, u.ClinicIDs)
	})
}

func (r *userRepoPG) insertClinics(ctx context.Context, userID string, clinicIDs []string) error {
	for _, clinicID := range clinicIDs {
		if _, err := r.conn(ctx).Exec(ctx,
			`INSERT INTO system_user_clinic (user_id, clinic_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			userID, clinicID); err != nil {
			return fmt.Errorf("add user %s to clinic %s: %w", userID, clinicID, err)
		}
	}
	return nil
}

func (r *userRepoPG) GetByID(ctx context.Context, id string) (*User, error) {
	return r.getOne(ctx, `u.id = $1`, id)
}

func (r *userRepoPG) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.getOne(ctx, `lower(u.email) = lower($1)`, email)
}

func (r *userRepoPG) getOne(ctx context.Context, where string, arg string) (*User, error) {
	u, err := scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userColumns+` FROM system_user u WHERE `+where, arg))
	if db.IsNoRows(err) {
		return nil, ErrNotFound
	}
	return u, err
}

// Update rewrites the mutable columns and replaces the clinic memberships.
// The role column is never written after creation.
func (r *userRepoPG) Update(ctx context.Context, u *User) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		err := r.conn(ctx).QueryRow(ctx, `
			UPDATE system_user SET email = $2, display_name = $3, active = $4, updated_at = NOW()
			WHERE id = $1
			RETURNING updated_at`,
			u.ID, u.Email, u.DisplayName, u.Active,
		).Scan(&u.UpdatedAt)
		if db.IsNoRows(err) {
			return ErrNotFound
		}
		if err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicateEmail
			}
			return fmt.Errorf("update system user: %w", err)
		}
		if _, err := r.conn(ctx).Exec(ctx, `DELETE FROM system_user_clinic WHERE user_id = $1`, u.ID); err != nil {
			return fmt.Errorf("clear clinics of user %s: %w", u.ID, err)
		}
		return r.insertClinics(ctx, u.ID, u.ClinicIDs)
	})
}

func (r *userRepoPG) Delete(ctx context.Context, id string) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM system_user WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete system user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *userRepoPG) List(ctx context.Context, f ListFilter) ([]*User, int, error) {
	where := []string{"1=1"}
	var args []interface{}
	idx := 1

	if len(f.ClinicIDs) > 0 {
		where = append(where, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM system_user_clinic m WHERE m.user_id = u.id AND m.clinic_id = ANY($%d))", idx))
		args = append(args, f.ClinicIDs)
		idx++
	}
	if f.Role != "" {
		where = append(where, fmt.Sprintf("u.role = $%d", idx))
		args = append(args, f.Role)
		idx++
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM system_user u WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count system users: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM system_user u WHERE %s
		ORDER BY u.display_name, u.id LIMIT $%d OFFSET $%d`, userColumns, clause, idx, idx+1)
	args = append(args, f.Limit, f.Offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list system users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}
	return users, total, rows.Err()
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	var role string
	err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &role, &u.IsClinicAdmin, &u.IsSuperAdmin,
		&u.Active, &u.CreatedAt, &u.UpdatedAt, &u.ClinicIDs)
	if err != nil {
		return nil, err
	}
	u.Role = permission.Role(role)
	return &u, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
