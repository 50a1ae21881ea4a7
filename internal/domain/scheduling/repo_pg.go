package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/healthmate/healthmate/internal/platform/db"
)

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const apptCols = `id, patient_id, doctor_id, start_time, end_time, status, reason, notes, created_at, updated_at`

func scanAppt(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.StartTime, &a.EndTime,
		&a.Status, &a.Reason, &a.Notes, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func collectAppts(rows pgx.Rows) ([]*Appointment, error) {
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := scanAppt(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_id, start_time, end_time, status, reason, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at, updated_at`,
		a.ID, a.PatientID, a.DoctorID, a.StartTime, a.EndTime, a.Status, a.Reason, a.Notes,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	return mapWriteError(err)
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := scanAppt(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+` FROM appointments WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

func (r *appointmentRepoPG) Update(ctx context.Context, a *Appointment) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE appointments SET start_time=$2, end_time=$3, status=$4, reason=$5, notes=$6, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		a.ID, a.StartTime, a.EndTime, a.Status, a.Reason, a.Notes,
	).Scan(&a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return mapWriteError(err)
}

func (r *appointmentRepoPG) ActiveOverlapping(ctx context.Context, doctorID, patientID uuid.UUID, start, end time.Time, excludeID uuid.UUID) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+apptCols+` FROM appointments
		WHERE (doctor_id = $1 OR patient_id = $2)
		  AND status IN ('pending', 'confirmed')
		  AND start_time < $4 AND end_time > $3
		  AND id <> $5
		ORDER BY start_time`,
		doctorID, patientID, start, end, excludeID)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return collectAppts(rows)
}

func (r *appointmentRepoPG) Search(ctx context.Context, f Filter, limit, offset int) ([]*Appointment, int, error) {
	where := ` WHERE patient_id = $1`
	if f.AsDoctor {
		where = ` WHERE doctor_id = $1`
	}
	args := []interface{}{f.AccountID}
	idx := 2

	if f.Status != "" {
		where += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, f.Status)
		idx++
	}
	if f.From != nil {
		where += fmt.Sprintf(` AND start_time >= $%d`, idx)
		args = append(args, *f.From)
		idx++
	}
	if f.To != nil {
		where += fmt.Sprintf(` AND start_time <= $%d`, idx)
		args = append(args, *f.To)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointments`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + apptCols + ` FROM appointments` + where +
		fmt.Sprintf(` ORDER BY start_time LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	items, err := collectAppts(rows)
	return items, total, err
}

func (r *appointmentRepoPG) CompleteElapsed(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointments SET status = 'completed', updated_at = NOW()
		WHERE status = 'confirmed' AND end_time < $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *appointmentRepoPG) ListConfirmedStarting(ctx context.Context, from, to time.Time) ([]*Reminder, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT a.id, a.patient_id, a.doctor_id, a.start_time, a.end_time, a.status, a.reason, a.notes,
			a.created_at, a.updated_at, p.email,
			COALESCE(NULLIF(p.full_name, ''), p.username), COALESCE(NULLIF(d.full_name, ''), d.username)
		FROM appointments a
		JOIN accounts p ON p.id = a.patient_id
		JOIN accounts d ON d.id = a.doctor_id
		WHERE a.status = 'confirmed' AND a.start_time BETWEEN $1 AND $2
		ORDER BY a.start_time`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Reminder
	for rows.Next() {
		var rm Reminder
		a := &rm.Appointment
		if err := rows.Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.StartTime, &a.EndTime, &a.Status,
			&a.Reason, &a.Notes, &a.CreatedAt, &a.UpdatedAt,
			&rm.PatientEmail, &rm.PatientName, &rm.DoctorName); err != nil {
			return nil, err
		}
		items = append(items, &rm)
	}
	return items, rows.Err()
}

// mapWriteError turns overlap rejections from the exclusion constraints or a
// lost serializable race into ErrConflict.
func mapWriteError(err error) error {
	if err == nil {
		return nil
	}
	if db.IsOverlapRejection(err) {
		return ErrConflict
	}
	if db.IsForeignKeyViolation(err) {
		return ErrUnknownParticipant
	}
	return err
}
