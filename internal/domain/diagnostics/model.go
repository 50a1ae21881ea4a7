package diagnostics

import (
	"time"

	"github.com/google/uuid"

	"github.com/healthmate/healthmate/pkg/date"
)

const (
	SourceAI             = "ai"
	SourceDoctor         = "doctor"
	SourceSelf           = "self"
	SourceSymptomChecker = "symptom_checker"
)

const (
	ConfidenceLow       = "low"
	ConfidenceMedium    = "medium"
	ConfidenceHigh      = "high"
	ConfidenceConfirmed = "confirmed"
)

const (
	DiagnosisActive   = "active"
	DiagnosisResolved = "resolved"
	DiagnosisChronic  = "chronic"
	DiagnosisRuledOut = "ruled_out"
)

const (
	TreatmentPlanned      = "planned"
	TreatmentActive       = "active"
	TreatmentCompleted    = "completed"
	TreatmentDiscontinued = "discontinued"
)

const (
	FollowUpRecommended = "recommended"
	FollowUpScheduled   = "scheduled"
	FollowUpCompleted   = "completed"
	FollowUpMissed      = "missed"
	FollowUpCancelled   = "cancelled"
)

const (
	MinRating = 1
	MaxRating = 10
)

var (
	validSources         = set(SourceAI, SourceDoctor, SourceSelf, SourceSymptomChecker)
	validConfidences     = set(ConfidenceLow, ConfidenceMedium, ConfidenceHigh, ConfidenceConfirmed)
	validDiagnosisStatus = set(DiagnosisActive, DiagnosisResolved, DiagnosisChronic, DiagnosisRuledOut)
	validTreatmentTypes  = set("medication", "procedure", "therapy", "lifestyle", "monitoring", "other")
	validTreatmentStatus = set(TreatmentPlanned, TreatmentActive, TreatmentCompleted, TreatmentDiscontinued)
	validFollowUpTypes   = set("check_up", "test", "specialist", "medication_review", "other")
	validFollowUpStatus  = set(FollowUpRecommended, FollowUpScheduled, FollowUpCompleted, FollowUpMissed, FollowUpCancelled)
)

func set(values ...string) map[string]bool {
	m := make(map[string]bool, len(values))
	for _, v := range values {
		m[v] = true
	}
	return m
}

type Diagnosis struct {
	ID              uuid.UUID  `json:"id"`
	OwnerID         uuid.UUID  `json:"owner_id"`
	Source          string     `json:"source"`
	DoctorID        *uuid.UUID `json:"doctor_id"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	ICDCode         string     `json:"icd_code"`
	Confidence      string     `json:"confidence"`
	DiagnosisDate   date.Date  `json:"diagnosis_date"`
	Status          string     `json:"status"`
	ResolvedDate    date.Date  `json:"resolved_date"`
	RelatedSymptoms []string   `json:"related_symptoms"`
	Notes           string     `json:"notes"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`

	// Populated on single reads.
	Treatments []*Treatment `json:"treatments,omitempty"`
	FollowUps  []*FollowUp  `json:"follow_ups,omitempty"`
}

type Treatment struct {
	ID                  uuid.UUID `json:"id"`
	OwnerID             uuid.UUID `json:"owner_id"`
	DiagnosisID         uuid.UUID `json:"diagnosis_id"`
	Title               string    `json:"title"`
	Description         string    `json:"description"`
	TreatmentType       string    `json:"treatment_type"`
	MedicationName      string    `json:"medication_name"`
	Dosage              string    `json:"dosage"`
	Frequency           string    `json:"frequency"`
	Duration            string    `json:"duration"`
	StartDate           date.Date `json:"start_date"`
	EndDate             date.Date `json:"end_date"`
	Status              string    `json:"status"`
	Instructions        string    `json:"instructions"`
	SideEffects         string    `json:"side_effects"`
	Precautions         string    `json:"precautions"`
	EffectivenessRating *int      `json:"effectiveness_rating"`
	AdherenceRating     *int      `json:"adherence_rating"`
	Notes               string    `json:"notes"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

type FollowUp struct {
	ID              uuid.UUID   `json:"id"`
	OwnerID         uuid.UUID   `json:"owner_id"`
	DiagnosisID     uuid.UUID   `json:"diagnosis_id"`
	TreatmentIDs    []uuid.UUID `json:"treatments"`
	Title           string      `json:"title"`
	Description     string      `json:"description"`
	FollowUpType    string      `json:"follow_up_type"`
	RecommendedDate date.Date   `json:"recommended_date"`
	ScheduledDate   date.Date   `json:"scheduled_date"`
	CompletedDate   date.Date   `json:"completed_date"`
	Status          string      `json:"status"`
	Results         string      `json:"results"`
	Notes           string      `json:"notes"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// DiagnosisRequest is the body of POST /diagnoses. New diagnoses start
// active.
type DiagnosisRequest struct {
	Source          string     `json:"source"`
	DoctorID        *uuid.UUID `json:"doctor_id"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	ICDCode         string     `json:"icd_code"`
	Confidence      string     `json:"confidence"`
	DiagnosisDate   date.Date  `json:"diagnosis_date"`
	RelatedSymptoms []string   `json:"related_symptoms"`
	Notes           string     `json:"notes"`
}

// DiagnosisUpdate edits descriptive fields. Status changes go through
// Resolve and MarkChronic.
type DiagnosisUpdate struct {
	Title           *string   `json:"title"`
	Description     *string   `json:"description"`
	ICDCode         *string   `json:"icd_code"`
	Confidence      *string   `json:"confidence"`
	RelatedSymptoms *[]string `json:"related_symptoms"`
	Notes           *string   `json:"notes"`
}

// TreatmentRequest is the body of POST /treatments. New treatments start
// planned.
type TreatmentRequest struct {
	DiagnosisID    uuid.UUID `json:"diagnosis_id"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	TreatmentType  string    `json:"treatment_type"`
	MedicationName string    `json:"medication_name"`
	Dosage         string    `json:"dosage"`
	Frequency      string    `json:"frequency"`
	Duration       string    `json:"duration"`
	StartDate      date.Date `json:"start_date"`
	EndDate        date.Date `json:"end_date"`
	Instructions   string    `json:"instructions"`
	SideEffects    string    `json:"side_effects"`
	Precautions    string    `json:"precautions"`
	Notes          string    `json:"notes"`
}

type TreatmentUpdate struct {
	Title          *string    `json:"title"`
	Description    *string    `json:"description"`
	MedicationName *string    `json:"medication_name"`
	Dosage         *string    `json:"dosage"`
	Frequency      *string    `json:"frequency"`
	Duration       *string    `json:"duration"`
	EndDate        *date.Date `json:"end_date"`
	Instructions   *string    `json:"instructions"`
	SideEffects    *string    `json:"side_effects"`
	Precautions    *string    `json:"precautions"`
	Notes          *string    `json:"notes"`
}

// RateRequest is the body of POST /treatments/:id/rate.
type RateRequest struct {
	Effectiveness *int `json:"effectiveness"`
	Adherence     *int `json:"adherence"`
}

// FollowUpRequest is the body of POST /follow-ups. New follow-ups start
// recommended.
type FollowUpRequest struct {
	DiagnosisID     uuid.UUID   `json:"diagnosis_id"`
	TreatmentIDs    []uuid.UUID `json:"treatments"`
	Title           string      `json:"title"`
	Description     string      `json:"description"`
	FollowUpType    string      `json:"follow_up_type"`
	RecommendedDate date.Date   `json:"recommended_date"`
	Notes           string      `json:"notes"`
}

type FollowUpUpdate struct {
	Title           *string    `json:"title"`
	Description     *string    `json:"description"`
	RecommendedDate *date.Date `json:"recommended_date"`
	Notes           *string    `json:"notes"`
}

type DiagnosisFilter struct {
	OwnerID    uuid.UUID
	Source     string
	Status     string
	Confidence string
}

type TreatmentFilter struct {
	OwnerID       uuid.UUID
	DiagnosisID   *uuid.UUID
	TreatmentType string
	Status        string
}

type FollowUpFilter struct {
	OwnerID      uuid.UUID
	DiagnosisID  *uuid.UUID
	FollowUpType string
	Status       string
}
