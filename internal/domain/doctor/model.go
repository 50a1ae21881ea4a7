package doctor

import (
	"time"

	"github.com/google/uuid"
)

// Profile is the public profile of a doctor account.
type Profile struct {
	ID                uuid.UUID           `json:"id"`
	AccountID         uuid.UUID           `json:"account_id"`
	FullName          string              `json:"full_name"`
	Email             string              `json:"email"`
	Specialties       []string            `json:"specialties"`
	Bio               string              `json:"bio"`
	Education         string              `json:"education"`
	ExperienceYears   int                 `json:"experience_years"`
	Rating            float64             `json:"rating"`
	ReviewCount       int                 `json:"review_count"`
	Location          string              `json:"location"`
	AvailableTimes    map[string][]string `json:"available_times"`
	ProfilePictureKey string              `json:"-"`
	HasPicture        bool                `json:"has_profile_picture"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

// Review is a patient's rating of a doctor.
type Review struct {
	ID          uuid.UUID `json:"id"`
	DoctorID    uuid.UUID `json:"doctor_id"`
	PatientID   uuid.UUID `json:"patient_id"`
	PatientName string    `json:"patient_name,omitempty"`
	Rating      int       `json:"rating"`
	Comment     string    `json:"comment"`
	CreatedAt   time.Time `json:"created_at"`
}

// Filter narrows a doctor listing. Zero values are ignored.
type Filter struct {
	Specialty string
	RatingMin *float64
	RatingMax *float64
	Location  string
}

// ProfileUpdate carries the fields a doctor may edit. Rating is derived from
// reviews and is never writable.
type ProfileUpdate struct {
	Specialties     []string            `json:"specialties"`
	Bio             *string             `json:"bio"`
	Education       *string             `json:"education"`
	ExperienceYears *int                `json:"experience_years"`
	Location        *string             `json:"location"`
	AvailableTimes  map[string][]string `json:"available_times"`
}

type ReviewRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

var weekdays = map[string]bool{
	"monday": true, "tuesday": true, "wednesday": true, "thursday": true,
	"friday": true, "saturday": true, "sunday": true,
}
