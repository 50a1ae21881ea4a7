package account

import (
	"time"

	"github.com/google/uuid"

	"github.com/healthmate/healthmate/internal/platform/auth"
)

const (
	RoleDoctor  = auth.RoleDoctor
	RolePatient = auth.RolePatient
)

// Account is a registered portal user. Its id is the bearer token subject.
type Account struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	FullName  string    `json:"full_name"`
	Age       *int      `json:"age,omitempty"`
	Gender    string    `json:"gender"`
	Location  string    `json:"location"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (a *Account) IsDoctor() bool  { return a.Role == RoleDoctor }
func (a *Account) IsPatient() bool { return a.Role == RolePatient }

// GenderLabel returns the display name of the gender code.
func (a *Account) GenderLabel() string {
	return genderLabels[a.Gender]
}

var validRoles = map[string]bool{
	RoleDoctor:  true,
	RolePatient: true,
}

var genderLabels = map[string]string{
	"":  "",
	"M": "Male",
	"F": "Female",
	"O": "Other",
	"N": "Prefer not to say",
}

// RegisterRequest is the body of POST /accounts.
type RegisterRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
	Age      *int   `json:"age"`
	Gender   string `json:"gender"`
	Location string `json:"location"`
	Role     string `json:"role"`
}

// UpdateRequest carries the editable profile fields. Role is not editable.
type UpdateRequest struct {
	Username *string `json:"username"`
	FullName *string `json:"full_name"`
	Age      *int    `json:"age"`
	Gender   *string `json:"gender"`
	Location *string `json:"location"`
}
