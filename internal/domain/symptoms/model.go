package symptoms

import (
	"time"

	"github.com/google/uuid"

	"github.com/healthmate/healthmate/internal/platform/advisory"
	"github.com/healthmate/healthmate/pkg/date"
)

const (
	MinSeverity     = 1
	MaxSeverity     = 10
	DefaultSeverity = 5
)

var severityLabels = [...]string{
	1:  "Very Mild",
	2:  "Mild",
	3:  "Moderate",
	4:  "Uncomfortable",
	5:  "Concerning",
	6:  "Severe",
	7:  "Very Severe",
	8:  "Extreme",
	9:  "Unbearable",
	10: "Emergency",
}

// SeverityLabel returns the display name of a 1..10 severity, or "" when
// out of range.
func SeverityLabel(severity int) string {
	if severity < MinSeverity || severity > MaxSeverity {
		return ""
	}
	return severityLabels[severity]
}

// Symptom is a catalog entry.
type Symptom struct {
	ID                      uuid.UUID `json:"id" yaml:"-"`
	Name                    string    `json:"name" yaml:"name"`
	Description             string    `json:"description" yaml:"description"`
	BodyPart                string    `json:"body_part" yaml:"body_part"`
	SeverityScale           int       `json:"severity_scale" yaml:"severity_scale"`
	CommonRelatedConditions []string  `json:"common_related_conditions" yaml:"common_related_conditions"`
}

type CatalogFilter struct {
	Query    string
	BodyPart string
}

// UserSymptom is one occurrence of a catalog symptom reported by an account.
type UserSymptom struct {
	ID              uuid.UUID `json:"id"`
	OwnerID         uuid.UUID `json:"owner_id"`
	SymptomID       uuid.UUID `json:"symptom_id"`
	SymptomName     string    `json:"symptom_name"`
	Severity        int       `json:"severity"`
	SeverityDisplay string    `json:"severity_display"`
	OnsetDate       date.Date `json:"onset_date"`
	IsActive        bool      `json:"is_active"`
	ResolvedDate    date.Date `json:"resolved_date"`
	Notes           string    `json:"notes"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (u *UserSymptom) setDisplay() {
	u.SeverityDisplay = SeverityLabel(u.Severity)
}

// UserSymptomRequest is the body of POST /user-symptoms.
type UserSymptomRequest struct {
	SymptomID    uuid.UUID `json:"symptom_id"`
	Severity     int       `json:"severity"`
	OnsetDate    date.Date `json:"onset_date"`
	IsActive     *bool     `json:"is_active"`
	ResolvedDate date.Date `json:"resolved_date"`
	Notes        string    `json:"notes"`
}

// UserSymptomUpdate is the body of PUT /user-symptoms/:id. Nil fields are
// left unchanged.
type UserSymptomUpdate struct {
	SymptomID    *uuid.UUID `json:"symptom_id"`
	Severity     *int       `json:"severity"`
	OnsetDate    *date.Date `json:"onset_date"`
	IsActive     *bool      `json:"is_active"`
	ResolvedDate *date.Date `json:"resolved_date"`
	Notes        *string    `json:"notes"`
}

type UserSymptomFilter struct {
	OwnerID   uuid.UUID
	SymptomID *uuid.UUID
	Severity  *int
	IsActive  *bool
}

// Check is a symptom check session and its advisory result.
type Check struct {
	ID                 uuid.UUID              `json:"id"`
	OwnerID            uuid.UUID              `json:"owner_id"`
	Symptoms           []*UserSymptom         `json:"symptoms"`
	AdditionalInfo     map[string]interface{} `json:"additional_info"`
	AIAnalysis         string                 `json:"ai_analysis"`
	PossibleConditions []advisory.Condition   `json:"possible_conditions"`
	Recommendations    string                 `json:"recommendations"`
	EmergencyLevel     bool                   `json:"emergency_level"`
	AnalyzedAt         *time.Time             `json:"analyzed_at,omitempty"`
	CreatedAt          time.Time              `json:"created_at"`
}

// CheckRequest is the body of POST /symptom-checks. Severities come from
// additional_info.severity, a list of {symptom_id, severity}.
type CheckRequest struct {
	SymptomIDs     []uuid.UUID            `json:"symptom_ids"`
	AdditionalInfo map[string]interface{} `json:"additional_info"`
}
