package user

import (
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/evodigital/academia/core"
)

// Roles. A closed enumeration: "admin" is never a role value. Elevated
// privilege is derived solely from the owner allow-list, not from Role.
const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
)

var Roles = []Role{
	{Name: "Student", Value: RoleStudent},
	{Name: "Teacher", Value: RoleTeacher},
}

func ValidRole(role string) bool {
	return role == RoleStudent || role == RoleTeacher
}

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// User is the application-level profile describing role and approval state
// for an identity. IsApproved is meaningful only for teachers: a teacher must
// be explicitly approved by an administrator before teacher-only capabilities
// are granted. Students are never gated on it.
type User struct {
	ID             string    `json:"id"`
	FullName       string    `json:"full_name"`
	Email          string    `json:"email"`
	WhatsAppNumber string    `json:"whatsapp_number,omitempty"`
	Role           string    `json:"role"`
	IsApproved     bool      `json:"is_approved"`
	IsActive       bool      `json:"is_active"`
	PasswordHash   []byte    `json:"-"`
	CreatedAt      time.Time `json:"created_at"` // UTC
	UpdatedAt      time.Time `json:"updated_at"` // UTC
	LastLogin      time.Time `json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) IsTeacher() bool { return u.Role == RoleTeacher }

func (u *User) IsStudent() bool { return u.Role == RoleStudent }

// NewUser contains information needed to register a new User.
type NewUser struct {
	FullName        string `json:"full_name" validate:"required"`
	Email           string `json:"email" validate:"required,email"`
	WhatsAppNumber  string `json:"whatsapp_number" validate:"omitempty,min=6"`
	Role            string `json:"role" validate:"required,role"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

func (nu *NewUser) Validate(validate *validator.Validate, svc Service) error {
	nu.FullName = core.CleanString(nu.FullName)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.WhatsAppNumber = core.CleanString(nu.WhatsAppNumber)

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckUniqueness(nu.Email)
}

// UpdateUser defines what information may be provided to modify an existing
// User. IsApproved and IsActive can only be flipped by an administrative
// action; the API layer enforces that before validation.
type UpdateUser struct {
	FullName        string `json:"full_name"`
	WhatsAppNumber  string `json:"whatsapp_number" validate:"omitempty,min=6"`
	IsApproved      *bool  `json:"is_approved"`
	IsActive        *bool  `json:"is_active"`
	Password        string `json:"password" validate:"omitempty"`
	PasswordConfirm string `json:"password_confirm" validate:"required_with=Password,eqfield=Password"`
}

func (uu *UpdateUser) Validate(origUsr User, validate *validator.Validate) error {
	name := core.CleanString(uu.FullName)
	if name != "" {
		uu.FullName = name
	} else {
		uu.FullName = origUsr.FullName
	}
	uu.WhatsAppNumber = core.CleanString(uu.WhatsAppNumber)

	return validate.Struct(uu)
}

type ResetUserPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"password_confirm,omitempty" validate:"required,eqfield=Password"`
}

func (rp ResetUserPassword) Validate(validate *validator.Validate) error {
	return validate.Struct(rp)
}

type QueryFilter struct {
	Search      string    `query:"search"`
	Role        string    `query:"role"`
	IsApproved  *bool     `query:"is_approved"`
	IsActive    *bool     `query:"is_active"`
	CreatedFrom time.Time `query:"created_from"`
	CreatedTo   time.Time `query:"created_to"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Role == "" && qf.IsApproved == nil && qf.IsActive == nil &&
		qf.CreatedFrom.IsZero() && qf.CreatedTo.IsZero()
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Role = core.CleanString(qf.Role, true /* lower */)
}
