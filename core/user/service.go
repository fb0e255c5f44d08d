package user

import (
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/evodigital/academia/core"
)

var (
	// errors
	ErrNotFound    = errors.New("user not found")
	ErrEmailExists = errors.New("a user with this email already exists")
)

type (
	Repository interface {
		CheckEmailUniqueness(email string, excludedUsers ...User) error
		CreateUser(usr User) (User, error)
		GetUserByID(id string) (User, error)
		GetUserByEmail(email string) (User, error)
		QueryAllUsers() ([]User, error)
		// FilterUsers applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of
		// User.FullName, User.Email or User.WhatsAppNumber.
		FilterUsers(filter QueryFilter, orderings ...core.DBOrdering) ([]User, error)
		UpdateUser(usr User, isApproved, isActive *bool) (User, error)
		DeleteUsersByID(ids ...string) error
	}

	Service interface {
		CheckUniqueness(email string, exclUsers ...User) error
		Register(nu NewUser) (User, error)
		GetByID(id string) (User, error)
		GetByEmail(email string) (User, error)
		QueryAll() ([]User, error)
		Filter(filter *QueryFilter, orderings ...core.DBOrdering) ([]User, error)
		Update(id string, uu UpdateUser) (User, error)
		SetApproval(id string, approved bool) (User, error)
		SetLastLogin(usr User) (User, error)
		Delete(ids ...string) error
		RequestPasswordReset(email string) error
		ResetPassword(rp ResetUserPassword) error
	}

	service struct {
		repo    Repository
		mailSvc core.EmailService
		conf    *core.Config
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, mailSvc core.EmailService, conf *core.Config) Service {
	return &service{
		repo:    repo,
		mailSvc: mailSvc,
		conf:    conf,
	}
}

func (svc *service) CheckUniqueness(email string, exclUsers ...User) error {
	if err := svc.repo.CheckEmailUniqueness(email, exclUsers...); err != nil {
		if errors.Cause(err) != ErrEmailExists {
			return err
		}
		return core.NewValidationError(err, core.FieldError{Field: "email", Error: err.Error()})
	}
	return nil
}

// Register creates a new profile. Teachers start unapproved: approval is an
// administrative action, and the owners are notified so they can review the
// request. Students are active immediately.
func (svc *service) Register(nu NewUser) (User, error) {
	now := time.Now().UTC()
	usr := User{
		ID:             uuid.New().String(),
		FullName:       nu.FullName,
		Email:          nu.Email,
		WhatsAppNumber: nu.WhatsAppNumber,
		Role:           nu.Role,
		IsApproved:     false,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}

	usr, err := svc.repo.CreateUser(usr)
	if err != nil {
		return User{}, err
	}

	svc.sendWelcomeMail(usr)
	if usr.IsTeacher() {
		svc.sendTeacherRegisteredMail(usr)
	}
	return usr, nil
}

func (svc *service) GetByID(id string) (User, error) {
	return svc.repo.GetUserByID(id)
}

func (svc *service) GetByEmail(email string) (User, error) {
	return svc.repo.GetUserByEmail(core.CleanString(email, true /* lower */))
}

func (svc *service) QueryAll() ([]User, error) {
	return svc.repo.QueryAllUsers()
}

func (svc *service) Filter(filter *QueryFilter, orderings ...core.DBOrdering) ([]User, error) {
	return svc.repo.FilterUsers(*filter, orderings...)
}

func (svc *service) Update(id string, uu UpdateUser) (User, error) {
	usr := User{
		ID:             id,
		FullName:       uu.FullName,
		WhatsAppNumber: uu.WhatsAppNumber,
		UpdatedAt:      time.Now().UTC(),
	}
	if uu.Password != "" {
		if err := usr.SetPassword(uu.Password); err != nil {
			return User{}, errors.Wrap(err, "setting password")
		}
	}
	return svc.repo.UpdateUser(usr, uu.IsApproved, uu.IsActive)
}

// SetApproval flips the teacher-only approval gate. Newly approved teachers
// are notified by email.
func (svc *service) SetApproval(id string, approved bool) (User, error) {
	orig, err := svc.repo.GetUserByID(id)
	if err != nil {
		return User{}, err
	}

	usr, err := svc.repo.UpdateUser(User{ID: id, UpdatedAt: time.Now().UTC()}, &approved, nil)
	if err != nil {
		return User{}, err
	}

	if approved && !orig.IsApproved && usr.IsTeacher() {
		svc.sendTeacherApprovedMail(usr)
	}
	return usr, nil
}

func (svc *service) SetLastLogin(usr User) (User, error) {
	usr.LastLogin = time.Now().UTC()
	return svc.repo.UpdateUser(usr, nil, nil)
}

func (svc *service) Delete(ids ...string) error {
	return svc.repo.DeleteUsersByID(ids...)
}

func (svc *service) RequestPasswordReset(email string) error {
	usr, err := svc.GetByEmail(email)
	if err != nil {
		return err
	}
	go svc.sendPasswordResetMail(usr)
	return nil
}

func (svc *service) ResetPassword(rp ResetUserPassword) error {
	id, err := decodeUID(rp.UID)
	if err != nil {
		return core.NewValidationError(errInvalidToken)
	}
	usr, err := svc.repo.GetUserByID(id)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return core.NewValidationError(errInvalidToken)
		}
		return err
	}
	if err := verifyToken(usr, rp.Token, svc.conf); err != nil {
		return core.NewValidationError(err)
	}

	if err := usr.SetPassword(rp.Password); err != nil {
		return errors.Wrap(err, "setting password")
	}
	usr.UpdatedAt = time.Now().UTC()
	_, err = svc.repo.UpdateUser(usr, nil, nil)
	return err
}

// mails

func (svc *service) sendWelcomeMail(usr User) {
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.FullName, Address: usr.Email}},
		Subject:      "Welcome to " + svc.conf.AppName,
		TemplateName: "welcome",
		TemplateData: struct {
			FullName  string
			IsTeacher bool
		}{usr.FullName, usr.IsTeacher()},
	})
}

// sendTeacherRegisteredMail notifies the owner allow-list that a teacher
// account awaits approval.
func (svc *service) sendTeacherRegisteredMail(usr User) {
	if len(svc.conf.OwnerEmails) == 0 {
		return
	}
	to := make([]mail.Address, 0, len(svc.conf.OwnerEmails))
	for _, e := range svc.conf.OwnerEmails {
		to = append(to, mail.Address{Address: e})
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           to,
		Subject:      "Teacher approval requested",
		TemplateName: "teacher-registered",
		TemplateData: struct {
			FullName       string
			Email          string
			WhatsAppNumber string
		}{usr.FullName, usr.Email, usr.WhatsAppNumber},
	})
}

func (svc *service) sendTeacherApprovedMail(usr User) {
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.FullName, Address: usr.Email}},
		Subject:      "Your teacher account has been approved",
		TemplateName: "teacher-approved",
		TemplateData: struct{ FullName string }{usr.FullName},
	})
}

func (svc *service) sendPasswordResetMail(usr User) {
	token, err := MakeToken(usr, svc.conf)
	if err != nil {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.FullName, Address: usr.Email}},
		Subject:      "Password Reset",
		TemplateName: "password-reset",
		TemplateData: struct {
			FullName string
			UID      string
			Token    string
		}{usr.FullName, EncodeUID(usr), token},
	})
}

// String implements fmt.Stringer for log output; never expose the hash.
func (u User) String() string {
	return fmt.Sprintf("User(%s <%s>)", u.ID, u.Email)
}
