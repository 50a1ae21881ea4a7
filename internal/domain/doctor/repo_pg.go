package doctor

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/healthmate/healthmate/internal/platform/db"
)

// =========== Profile Repository ===========

type profileRepoPG struct{ pool *pgxpool.Pool }

func NewProfileRepoPG(pool *pgxpool.Pool) ProfileRepository { return &profileRepoPG{pool: pool} }

func (r *profileRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const profileCols = `p.id, p.account_id, a.full_name, a.email, p.specialties, p.bio, p.education,
	p.experience_years, p.rating,
	(SELECT COUNT(*) FROM doctor_reviews dr WHERE dr.doctor_id = p.id),
	p.location, p.available_times, p.profile_picture_key, p.updated_at`

const profileFrom = ` FROM doctor_profiles p JOIN accounts a ON a.id = p.account_id`

func scanProfile(row pgx.Row) (*Profile, error) {
	var p Profile
	err := row.Scan(&p.ID, &p.AccountID, &p.FullName, &p.Email, &p.Specialties, &p.Bio, &p.Education,
		&p.ExperienceYears, &p.Rating, &p.ReviewCount,
		&p.Location, &p.AvailableTimes, &p.ProfilePictureKey, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.HasPicture = p.ProfilePictureKey != ""
	if p.Specialties == nil {
		p.Specialties = []string{}
	}
	if p.AvailableTimes == nil {
		p.AvailableTimes = map[string][]string{}
	}
	return &p, nil
}

func (r *profileRepoPG) Create(ctx context.Context, p *Profile) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Specialties == nil {
		p.Specialties = []string{}
	}
	if p.AvailableTimes == nil {
		p.AvailableTimes = map[string][]string{}
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO doctor_profiles (id, account_id, specialties, bio, education, experience_years,
			location, available_times)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING updated_at`,
		p.ID, p.AccountID, p.Specialties, p.Bio, p.Education, p.ExperienceYears,
		p.Location, p.AvailableTimes,
	).Scan(&p.UpdatedAt)
}

func (r *profileRepoPG) get(ctx context.Context, where string, arg interface{}) (*Profile, error) {
	p, err := scanProfile(r.conn(ctx).QueryRow(ctx, `SELECT `+profileCols+profileFrom+` WHERE `+where, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDoctorNotFound
	}
	return p, err
}

func (r *profileRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Profile, error) {
	return r.get(ctx, `p.id = $1`, id)
}

func (r *profileRepoPG) GetByAccount(ctx context.Context, accountID uuid.UUID) (*Profile, error) {
	return r.get(ctx, `p.account_id = $1`, accountID)
}

func (r *profileRepoPG) Update(ctx context.Context, p *Profile) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE doctor_profiles SET specialties=$2, bio=$3, education=$4, experience_years=$5,
			location=$6, available_times=$7, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.Specialties, p.Bio, p.Education, p.ExperienceYears, p.Location, p.AvailableTimes,
	).Scan(&p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrDoctorNotFound
	}
	return err
}

func (r *profileRepoPG) SetPicture(ctx context.Context, id uuid.UUID, key string) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE doctor_profiles SET profile_picture_key=$2, updated_at=NOW() WHERE id = $1`, id, key)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDoctorNotFound
	}
	return nil
}

func (r *profileRepoPG) Search(ctx context.Context, f Filter, limit, offset int) ([]*Profile, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.Specialty != "" {
		where += fmt.Sprintf(` AND $%d = ANY(p.specialties)`, idx)
		args = append(args, f.Specialty)
		idx++
	}
	if f.RatingMin != nil {
		where += fmt.Sprintf(` AND p.rating >= $%d`, idx)
		args = append(args, *f.RatingMin)
		idx++
	}
	if f.RatingMax != nil {
		where += fmt.Sprintf(` AND p.rating <= $%d`, idx)
		args = append(args, *f.RatingMax)
		idx++
	}
	if f.Location != "" {
		where += fmt.Sprintf(` AND p.location ILIKE '%%' || $%d || '%%'`, idx)
		args = append(args, f.Location)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*)`+profileFrom+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + profileCols + profileFrom + where +
		fmt.Sprintf(` ORDER BY p.rating DESC, a.full_name LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

// =========== Review Repository ===========

type reviewRepoPG struct{ pool *pgxpool.Pool }

func NewReviewRepoPG(pool *pgxpool.Pool) ReviewRepository { return &reviewRepoPG{pool: pool} }

func (r *reviewRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func (r *reviewRepoPG) LockDoctor(ctx context.Context, doctorID uuid.UUID) error {
	var id uuid.UUID
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT id FROM doctor_profiles WHERE id = $1 FOR UPDATE`, doctorID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrDoctorNotFound
	}
	return err
}

func (r *reviewRepoPG) Create(ctx context.Context, rv *Review) error {
	rv.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO doctor_reviews (id, doctor_id, patient_id, rating, comment)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at`,
		rv.ID, rv.DoctorID, rv.PatientID, rv.Rating, rv.Comment,
	).Scan(&rv.CreatedAt)
	if db.IsUniqueViolation(err) {
		return ErrAlreadyReviewed
	}
	if db.IsForeignKeyViolation(err) {
		return ErrDoctorNotFound
	}
	return err
}

func (r *reviewRepoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]*Review, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM doctor_reviews WHERE doctor_id = $1`, doctorID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT r.id, r.doctor_id, r.patient_id, a.full_name, r.rating, r.comment, r.created_at
		FROM doctor_reviews r JOIN accounts a ON a.id = r.patient_id
		WHERE r.doctor_id = $1
		ORDER BY r.created_at DESC
		LIMIT $2 OFFSET $3`, doctorID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Review
	for rows.Next() {
		var rv Review
		if err := rows.Scan(&rv.ID, &rv.DoctorID, &rv.PatientID, &rv.PatientName,
			&rv.Rating, &rv.Comment, &rv.CreatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, &rv)
	}
	return items, total, rows.Err()
}

func (r *reviewRepoPG) AverageRating(ctx context.Context, doctorID uuid.UUID) (float64, error) {
	var rating float64
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE doctor_profiles
		SET rating = COALESCE((SELECT AVG(rating) FROM doctor_reviews WHERE doctor_id = $1), 0),
			updated_at = NOW()
		WHERE id = $1
		RETURNING rating`, doctorID).Scan(&rating)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrDoctorNotFound
	}
	return rating, err
}
