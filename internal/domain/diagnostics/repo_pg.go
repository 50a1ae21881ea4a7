package diagnostics

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/healthmate/healthmate/internal/platform/db"
)

// -- Diagnoses --

type diagnosisRepoPG struct {
	pool *pgxpool.Pool
}

func NewDiagnosisRepoPG(pool *pgxpool.Pool) DiagnosisRepository {
	return &diagnosisRepoPG{pool: pool}
}

func (r *diagnosisRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const diagnosisCols = `id, owner_id, source, doctor_id, title, description, icd_code, confidence,
	diagnosis_date, status, resolved_date, related_symptoms, notes, created_at, updated_at`

func scanDiagnosis(row pgx.Row) (*Diagnosis, error) {
	var d Diagnosis
	err := row.Scan(&d.ID, &d.OwnerID, &d.Source, &d.DoctorID, &d.Title, &d.Description, &d.ICDCode,
		&d.Confidence, &d.DiagnosisDate, &d.Status, &d.ResolvedDate, &d.RelatedSymptoms, &d.Notes,
		&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if d.RelatedSymptoms == nil {
		d.RelatedSymptoms = []string{}
	}
	return &d, nil
}

func (r *diagnosisRepoPG) Create(ctx context.Context, d *Diagnosis) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.RelatedSymptoms == nil {
		d.RelatedSymptoms = []string{}
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO diagnoses (id, owner_id, source, doctor_id, title, description, icd_code, confidence,
			diagnosis_date, status, resolved_date, related_symptoms, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at`,
		d.ID, d.OwnerID, d.Source, d.DoctorID, d.Title, d.Description, d.ICDCode, d.Confidence,
		d.DiagnosisDate, d.Status, d.ResolvedDate, d.RelatedSymptoms, d.Notes,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
}

func (r *diagnosisRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Diagnosis, error) {
	d, err := scanDiagnosis(r.conn(ctx).QueryRow(ctx, `SELECT `+diagnosisCols+` FROM diagnoses WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDiagnosisNotFound
	}
	return d, err
}

func (r *diagnosisRepoPG) Update(ctx context.Context, d *Diagnosis) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE diagnoses SET title = $2, description = $3, icd_code = $4, confidence = $5, status = $6,
			resolved_date = $7, related_symptoms = $8, notes = $9, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		d.ID, d.Title, d.Description, d.ICDCode, d.Confidence, d.Status,
		d.ResolvedDate, d.RelatedSymptoms, d.Notes,
	).Scan(&d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrDiagnosisNotFound
	}
	return err
}

func (r *diagnosisRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM diagnoses WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDiagnosisNotFound
	}
	return nil
}

func (r *diagnosisRepoPG) Search(ctx context.Context, f DiagnosisFilter, limit, offset int) ([]*Diagnosis, int, error) {
	where := ` WHERE owner_id = $1`
	args := []interface{}{f.OwnerID}
	idx := 2

	if f.Source != "" {
		where += fmt.Sprintf(` AND source = $%d`, idx)
		args = append(args, f.Source)
		idx++
	}
	if f.Status != "" {
		where += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, f.Status)
		idx++
	}
	if f.Confidence != "" {
		where += fmt.Sprintf(` AND confidence = $%d`, idx)
		args = append(args, f.Confidence)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM diagnoses`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + diagnosisCols + ` FROM diagnoses` + where +
		fmt.Sprintf(` ORDER BY diagnosis_date DESC, created_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Diagnosis
	for rows.Next() {
		d, err := scanDiagnosis(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, rows.Err()
}

// -- Treatments --

type treatmentRepoPG struct {
	pool *pgxpool.Pool
}

func NewTreatmentRepoPG(pool *pgxpool.Pool) TreatmentRepository {
	return &treatmentRepoPG{pool: pool}
}

func (r *treatmentRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const treatmentCols = `id, owner_id, diagnosis_id, title, description, treatment_type, medication_name,
	dosage, frequency, duration, start_date, end_date, status, instructions, side_effects, precautions,
	effectiveness_rating, adherence_rating, notes, created_at, updated_at`

func scanTreatment(row pgx.Row) (*Treatment, error) {
	var t Treatment
	err := row.Scan(&t.ID, &t.OwnerID, &t.DiagnosisID, &t.Title, &t.Description, &t.TreatmentType,
		&t.MedicationName, &t.Dosage, &t.Frequency, &t.Duration, &t.StartDate, &t.EndDate, &t.Status,
		&t.Instructions, &t.SideEffects, &t.Precautions, &t.EffectivenessRating, &t.AdherenceRating,
		&t.Notes, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func collectTreatments(rows pgx.Rows) ([]*Treatment, error) {
	defer rows.Close()
	var items []*Treatment
	for rows.Next() {
		t, err := scanTreatment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

func (r *treatmentRepoPG) Create(ctx context.Context, t *Treatment) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO treatments (id, owner_id, diagnosis_id, title, description, treatment_type, medication_name,
			dosage, frequency, duration, start_date, end_date, status, instructions, side_effects, precautions, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING created_at, updated_at`,
		t.ID, t.OwnerID, t.DiagnosisID, t.Title, t.Description, t.TreatmentType, t.MedicationName,
		t.Dosage, t.Frequency, t.Duration, t.StartDate, t.EndDate, t.Status, t.Instructions,
		t.SideEffects, t.Precautions, t.Notes,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
}

func (r *treatmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Treatment, error) {
	t, err := scanTreatment(r.conn(ctx).QueryRow(ctx, `SELECT `+treatmentCols+` FROM treatments WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTreatmentNotFound
	}
	return t, err
}

func (r *treatmentRepoPG) Update(ctx context.Context, t *Treatment) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE treatments SET title = $2, description = $3, medication_name = $4, dosage = $5,
			frequency = $6, duration = $7, end_date = $8, status = $9, instructions = $10,
			side_effects = $11, precautions = $12, effectiveness_rating = $13, adherence_rating = $14,
			notes = $15, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		t.ID, t.Title, t.Description, t.MedicationName, t.Dosage, t.Frequency, t.Duration,
		t.EndDate, t.Status, t.Instructions, t.SideEffects, t.Precautions,
		t.EffectivenessRating, t.AdherenceRating, t.Notes,
	).Scan(&t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrTreatmentNotFound
	}
	return err
}

func (r *treatmentRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM treatments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTreatmentNotFound
	}
	return nil
}

func (r *treatmentRepoPG) Search(ctx context.Context, f TreatmentFilter, limit, offset int) ([]*Treatment, int, error) {
	where := ` WHERE owner_id = $1`
	args := []interface{}{f.OwnerID}
	idx := 2

	if f.DiagnosisID != nil {
		where += fmt.Sprintf(` AND diagnosis_id = $%d`, idx)
		args = append(args, *f.DiagnosisID)
		idx++
	}
	if f.TreatmentType != "" {
		where += fmt.Sprintf(` AND treatment_type = $%d`, idx)
		args = append(args, f.TreatmentType)
		idx++
	}
	if f.Status != "" {
		where += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, f.Status)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM treatments`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + treatmentCols + ` FROM treatments` + where +
		fmt.Sprintf(` ORDER BY start_date DESC, created_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	items, err := collectTreatments(rows)
	return items, total, err
}

func (r *treatmentRepoPG) ListByDiagnosis(ctx context.Context, diagnosisID uuid.UUID) ([]*Treatment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+treatmentCols+` FROM treatments WHERE diagnosis_id = $1 ORDER BY start_date, created_at`, diagnosisID)
	if err != nil {
		return nil, err
	}
	return collectTreatments(rows)
}

// -- Follow-ups --

type followUpRepoPG struct {
	pool *pgxpool.Pool
}

func NewFollowUpRepoPG(pool *pgxpool.Pool) FollowUpRepository {
	return &followUpRepoPG{pool: pool}
}

func (r *followUpRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const followUpCols = `f.id, f.owner_id, f.diagnosis_id,
	COALESCE((SELECT array_agg(l.treatment_id::text ORDER BY l.treatment_id) FROM follow_up_treatments l WHERE l.follow_up_id = f.id), '{}'),
	f.title, f.description, f.follow_up_type, f.recommended_date, f.scheduled_date, f.completed_date,
	f.status, f.results, f.notes, f.created_at, f.updated_at`

func scanFollowUp(row pgx.Row) (*FollowUp, error) {
	var f FollowUp
	var treatmentIDs []string
	err := row.Scan(&f.ID, &f.OwnerID, &f.DiagnosisID, &treatmentIDs, &f.Title, &f.Description,
		&f.FollowUpType, &f.RecommendedDate, &f.ScheduledDate, &f.CompletedDate, &f.Status,
		&f.Results, &f.Notes, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	f.TreatmentIDs = make([]uuid.UUID, 0, len(treatmentIDs))
	for _, raw := range treatmentIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse follow-up treatment id: %w", err)
		}
		f.TreatmentIDs = append(f.TreatmentIDs, id)
	}
	return &f, nil
}

func collectFollowUps(rows pgx.Rows) ([]*FollowUp, error) {
	defer rows.Close()
	var items []*FollowUp
	for rows.Next() {
		f, err := scanFollowUp(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, f)
	}
	return items, rows.Err()
}

func (r *followUpRepoPG) Create(ctx context.Context, f *FollowUp) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO follow_ups (id, owner_id, diagnosis_id, title, description, follow_up_type,
			recommended_date, scheduled_date, completed_date, status, results, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at`,
		f.ID, f.OwnerID, f.DiagnosisID, f.Title, f.Description, f.FollowUpType,
		f.RecommendedDate, f.ScheduledDate, f.CompletedDate, f.Status, f.Results, f.Notes,
	).Scan(&f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return err
	}
	for _, tid := range f.TreatmentIDs {
		if _, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO follow_up_treatments (follow_up_id, treatment_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING`, f.ID, tid); err != nil {
			return fmt.Errorf("link treatment %s: %w", tid, err)
		}
	}
	return nil
}

func (r *followUpRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*FollowUp, error) {
	f, err := scanFollowUp(r.conn(ctx).QueryRow(ctx, `SELECT `+followUpCols+` FROM follow_ups f WHERE f.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrFollowUpNotFound
	}
	return f, err
}

func (r *followUpRepoPG) Update(ctx context.Context, f *FollowUp) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE follow_ups SET title = $2, description = $3, recommended_date = $4, scheduled_date = $5,
			completed_date = $6, status = $7, results = $8, notes = $9, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		f.ID, f.Title, f.Description, f.RecommendedDate, f.ScheduledDate, f.CompletedDate,
		f.Status, f.Results, f.Notes,
	).Scan(&f.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrFollowUpNotFound
	}
	return err
}

func (r *followUpRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM follow_ups WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrFollowUpNotFound
	}
	return nil
}

func (r *followUpRepoPG) Search(ctx context.Context, f FollowUpFilter, limit, offset int) ([]*FollowUp, int, error) {
	where := ` WHERE f.owner_id = $1`
	args := []interface{}{f.OwnerID}
	idx := 2

	if f.DiagnosisID != nil {
		where += fmt.Sprintf(` AND f.diagnosis_id = $%d`, idx)
		args = append(args, *f.DiagnosisID)
		idx++
	}
	if f.FollowUpType != "" {
		where += fmt.Sprintf(` AND f.follow_up_type = $%d`, idx)
		args = append(args, f.FollowUpType)
		idx++
	}
	if f.Status != "" {
		where += fmt.Sprintf(` AND f.status = $%d`, idx)
		args = append(args, f.Status)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM follow_ups f`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + followUpCols + ` FROM follow_ups f` + where +
		fmt.Sprintf(` ORDER BY f.recommended_date, f.created_at LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	items, err := collectFollowUps(rows)
	return items, total, err
}

func (r *followUpRepoPG) ListByDiagnosis(ctx context.Context, diagnosisID uuid.UUID) ([]*FollowUp, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+followUpCols+` FROM follow_ups f WHERE f.diagnosis_id = $1 ORDER BY f.recommended_date, f.created_at`, diagnosisID)
	if err != nil {
		return nil, err
	}
	return collectFollowUps(rows)
}
