package symptoms

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/healthmate/healthmate/internal/platform/advisory"
	"github.com/healthmate/healthmate/internal/platform/db"
)

// -- Catalog --

type catalogRepoPG struct {
	pool *pgxpool.Pool
}

func NewCatalogRepoPG(pool *pgxpool.Pool) CatalogRepository {
	return &catalogRepoPG{pool: pool}
}

func (r *catalogRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const symptomCols = `id, name, description, body_part, severity_scale, common_related_conditions`

func scanSymptom(row pgx.Row) (*Symptom, error) {
	var s Symptom
	if err := row.Scan(&s.ID, &s.Name, &s.Description, &s.BodyPart, &s.SeverityScale, &s.CommonRelatedConditions); err != nil {
		return nil, err
	}
	if s.CommonRelatedConditions == nil {
		s.CommonRelatedConditions = []string{}
	}
	return &s, nil
}

func collectSymptoms(rows pgx.Rows) ([]*Symptom, error) {
	defer rows.Close()
	var items []*Symptom
	for rows.Next() {
		s, err := scanSymptom(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

func (r *catalogRepoPG) Search(ctx context.Context, f CatalogFilter, limit, offset int) ([]*Symptom, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.Query != "" {
		where += fmt.Sprintf(` AND (name ILIKE $%d OR description ILIKE $%d OR body_part ILIKE $%d)`, idx, idx, idx)
		args = append(args, "%"+f.Query+"%")
		idx++
	}
	if f.BodyPart != "" {
		where += fmt.Sprintf(` AND body_part = $%d`, idx)
		args = append(args, f.BodyPart)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM symptoms`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + symptomCols + ` FROM symptoms` + where +
		fmt.Sprintf(` ORDER BY name LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	items, err := collectSymptoms(rows)
	return items, total, err
}

func (r *catalogRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Symptom, error) {
	s, err := scanSymptom(r.conn(ctx).QueryRow(ctx, `SELECT `+symptomCols+` FROM symptoms WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSymptomNotFound
	}
	return s, err
}

func (r *catalogRepoPG) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*Symptom, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+symptomCols+` FROM symptoms WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	return collectSymptoms(rows)
}

func (r *catalogRepoPG) Upsert(ctx context.Context, s *Symptom) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO symptoms (id, name, description, body_part, severity_scale, common_related_conditions)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (name) DO UPDATE SET
			description = EXCLUDED.description,
			body_part = EXCLUDED.body_part,
			severity_scale = EXCLUDED.severity_scale,
			common_related_conditions = EXCLUDED.common_related_conditions
		RETURNING id`,
		s.ID, s.Name, s.Description, s.BodyPart, s.SeverityScale, s.CommonRelatedConditions,
	).Scan(&s.ID)
}

// -- User symptoms --

type userSymptomRepoPG struct {
	pool *pgxpool.Pool
}

func NewUserSymptomRepoPG(pool *pgxpool.Pool) UserSymptomRepository {
	return &userSymptomRepoPG{pool: pool}
}

func (r *userSymptomRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const userSymptomCols = `us.id, us.owner_id, us.symptom_id, s.name, us.severity, us.onset_date,
	us.is_active, us.resolved_date, us.notes, us.created_at, us.updated_at`

const userSymptomFrom = ` FROM user_symptoms us JOIN symptoms s ON s.id = us.symptom_id`

func scanUserSymptom(row pgx.Row) (*UserSymptom, error) {
	var u UserSymptom
	err := row.Scan(&u.ID, &u.OwnerID, &u.SymptomID, &u.SymptomName, &u.Severity, &u.OnsetDate,
		&u.IsActive, &u.ResolvedDate, &u.Notes, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.setDisplay()
	return &u, nil
}

func collectUserSymptoms(rows pgx.Rows) ([]*UserSymptom, error) {
	defer rows.Close()
	var items []*UserSymptom
	for rows.Next() {
		u, err := scanUserSymptom(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, u)
	}
	return items, rows.Err()
}

func (r *userSymptomRepoPG) Create(ctx context.Context, u *UserSymptom) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO user_symptoms (id, owner_id, symptom_id, severity, onset_date, is_active, resolved_date, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		u.ID, u.OwnerID, u.SymptomID, u.Severity, u.OnsetDate, u.IsActive, u.ResolvedDate, u.Notes,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	if db.IsForeignKeyViolation(err) {
		return ErrSymptomNotFound
	}
	return err
}

func (r *userSymptomRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*UserSymptom, error) {
	u, err := scanUserSymptom(r.conn(ctx).QueryRow(ctx, `SELECT `+userSymptomCols+userSymptomFrom+` WHERE us.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserSymptomNotFound
	}
	return u, err
}

func (r *userSymptomRepoPG) Update(ctx context.Context, u *UserSymptom) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE user_symptoms SET symptom_id = $2, severity = $3, onset_date = $4, is_active = $5,
			resolved_date = $6, notes = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		u.ID, u.SymptomID, u.Severity, u.OnsetDate, u.IsActive, u.ResolvedDate, u.Notes,
	).Scan(&u.UpdatedAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return ErrUserSymptomNotFound
	case db.IsForeignKeyViolation(err):
		return ErrSymptomNotFound
	}
	return err
}

func (r *userSymptomRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM user_symptoms WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserSymptomNotFound
	}
	return nil
}

func (r *userSymptomRepoPG) Search(ctx context.Context, f UserSymptomFilter, limit, offset int) ([]*UserSymptom, int, error) {
	where := ` WHERE us.owner_id = $1`
	args := []interface{}{f.OwnerID}
	idx := 2

	if f.SymptomID != nil {
		where += fmt.Sprintf(` AND us.symptom_id = $%d`, idx)
		args = append(args, *f.SymptomID)
		idx++
	}
	if f.Severity != nil {
		where += fmt.Sprintf(` AND us.severity = $%d`, idx)
		args = append(args, *f.Severity)
		idx++
	}
	if f.IsActive != nil {
		where += fmt.Sprintf(` AND us.is_active = $%d`, idx)
		args = append(args, *f.IsActive)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM user_symptoms us`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + userSymptomCols + userSymptomFrom + where +
		fmt.Sprintf(` ORDER BY us.created_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	items, err := collectUserSymptoms(rows)
	return items, total, err
}

// -- Symptom checks --

type checkRepoPG struct {
	pool *pgxpool.Pool
}

func NewCheckRepoPG(pool *pgxpool.Pool) CheckRepository {
	return &checkRepoPG{pool: pool}
}

func (r *checkRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const checkCols = `id, owner_id, additional_info, ai_analysis, possible_conditions, recommendations,
	emergency_level, analyzed_at, created_at`

func scanCheck(row pgx.Row) (*Check, error) {
	var c Check
	err := row.Scan(&c.ID, &c.OwnerID, &c.AdditionalInfo, &c.AIAnalysis, &c.PossibleConditions,
		&c.Recommendations, &c.EmergencyLevel, &c.AnalyzedAt, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	if c.AdditionalInfo == nil {
		c.AdditionalInfo = map[string]interface{}{}
	}
	if c.PossibleConditions == nil {
		c.PossibleConditions = []advisory.Condition{}
	}
	return &c, nil
}

func (r *checkRepoPG) Create(ctx context.Context, c *Check) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.AdditionalInfo == nil {
		c.AdditionalInfo = map[string]interface{}{}
	}
	q := r.conn(ctx)
	err := q.QueryRow(ctx, `
		INSERT INTO symptom_checks (id, owner_id, additional_info)
		VALUES ($1, $2, $3)
		RETURNING created_at`,
		c.ID, c.OwnerID, c.AdditionalInfo,
	).Scan(&c.CreatedAt)
	if err != nil {
		return err
	}
	for _, us := range c.Symptoms {
		if _, err := q.Exec(ctx, `
			INSERT INTO symptom_check_items (symptom_check_id, user_symptom_id) VALUES ($1, $2)`,
			c.ID, us.ID); err != nil {
			return fmt.Errorf("link user symptom %s: %w", us.ID, err)
		}
	}
	return nil
}

func (r *checkRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Check, error) {
	c, err := scanCheck(r.conn(ctx).QueryRow(ctx, `SELECT `+checkCols+` FROM symptom_checks WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCheckNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := r.attachSymptoms(ctx, []*Check{c}); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *checkRepoPG) Latest(ctx context.Context, ownerID uuid.UUID) (*Check, error) {
	c, err := scanCheck(r.conn(ctx).QueryRow(ctx, `
		SELECT `+checkCols+` FROM symptom_checks WHERE owner_id = $1
		ORDER BY created_at DESC LIMIT 1`, ownerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoChecks
	}
	if err != nil {
		return nil, err
	}
	if err := r.attachSymptoms(ctx, []*Check{c}); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *checkRepoPG) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*Check, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM symptom_checks WHERE owner_id = $1`, ownerID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+checkCols+` FROM symptom_checks WHERE owner_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, ownerID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Check
	for rows.Next() {
		c, err := scanCheck(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if err := r.attachSymptoms(ctx, items); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *checkRepoPG) SaveAnalysis(ctx context.Context, id uuid.UUID, a advisory.SymptomAnalysis) (*Check, error) {
	conditions := a.PossibleConditions
	if conditions == nil {
		conditions = []advisory.Condition{}
	}
	var analyzedAt time.Time
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE symptom_checks SET ai_analysis = $2, possible_conditions = $3, recommendations = $4,
			emergency_level = $5, analyzed_at = NOW()
		WHERE id = $1 AND analyzed_at IS NULL
		RETURNING analyzed_at`,
		id, a.Analysis, conditions, a.Recommendations, a.Emergency,
	).Scan(&analyzedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAlreadyAnalyzed
	}
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// attachSymptoms loads the user symptoms of each check in one query.
func (r *checkRepoPG) attachSymptoms(ctx context.Context, checks []*Check) error {
	if len(checks) == 0 {
		return nil
	}
	byID := make(map[uuid.UUID]*Check, len(checks))
	ids := make([]uuid.UUID, 0, len(checks))
	for _, c := range checks {
		c.Symptoms = []*UserSymptom{}
		byID[c.ID] = c
		ids = append(ids, c.ID)
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT i.symptom_check_id, `+userSymptomCols+userSymptomFrom+`
		JOIN symptom_check_items i ON i.user_symptom_id = us.id
		WHERE i.symptom_check_id = ANY($1)
		ORDER BY us.created_at`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var checkID uuid.UUID
		var u UserSymptom
		err := rows.Scan(&checkID, &u.ID, &u.OwnerID, &u.SymptomID, &u.SymptomName, &u.Severity, &u.OnsetDate,
			&u.IsActive, &u.ResolvedDate, &u.Notes, &u.CreatedAt, &u.UpdatedAt)
		if err != nil {
			return err
		}
		u.setDisplay()
		byID[checkID].Symptoms = append(byID[checkID].Symptoms, &u)
	}
	return rows.Err()
}
