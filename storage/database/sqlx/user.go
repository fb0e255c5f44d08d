package sqlxrepos

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/evodigital/academia/core"
	"github.com/evodigital/academia/core/user"
)

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) user.Repository {
	return &userRepository{db: db}
}

type userRow struct {
	ID             string      `db:"id"`
	FullName       string      `db:"full_name"`
	Email          string      `db:"email"`
	WhatsAppNumber null.String `db:"whatsapp_number"`
	Role           string      `db:"role"`
	IsApproved     bool        `db:"is_approved"`
	IsActive       bool        `db:"is_active"`
	PasswordHash   null.Bytes  `db:"password_hash"`
	CreatedAt      time.Time   `db:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at"`
	LastLogin      null.Time   `db:"last_login"`
}

func (r userRow) unmarshal() user.User {
	return user.User{
		ID:             r.ID,
		FullName:       r.FullName,
		Email:          r.Email,
		WhatsAppNumber: r.WhatsAppNumber.String,
		Role:           r.Role,
		IsApproved:     r.IsApproved,
		IsActive:       r.IsActive,
		PasswordHash:   r.PasswordHash.Bytes,
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
		LastLogin:      r.LastLogin.Time.UTC(),
	}
}

func unmarshalUsers(rows []userRow) []user.User {
	users := make([]user.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.unmarshal())
	}
	return users
}

const userColumns = `id, full_name, email, whatsapp_number, role, is_approved, is_active, password_hash, created_at, updated_at, last_login`

func (repo *userRepository) CheckEmailUniqueness(email string, excludedUsers ...user.User) error {
	q := `SELECT COUNT(*) FROM profiles WHERE email = $1`
	args := []interface{}{email}
	if len(excludedUsers) > 0 {
		ids := make([]string, 0, len(excludedUsers))
		for _, u := range excludedUsers {
			ids = append(ids, u.ID)
		}
		inQ, inArgs, err := sqlx.In(`SELECT COUNT(*) FROM profiles WHERE email = ? AND id NOT IN (?)`, email, ids)
		if err != nil {
			return errors.Wrap(err, "building uniqueness query")
		}
		q, args = repo.db.Rebind(inQ), inArgs
	}

	var count int
	if err := repo.db.Get(&count, q, args...); err != nil {
		return errors.Wrap(err, "checking email uniqueness")
	}
	if count > 0 {
		return user.ErrEmailExists
	}
	return nil
}

func (repo *userRepository) CreateUser(usr user.User) (user.User, error) {
	q := `
INSERT INTO profiles (` + userColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := repo.db.Exec(q,
		usr.ID, usr.FullName, usr.Email,
		null.NewString(usr.WhatsAppNumber, usr.WhatsAppNumber != ""),
		usr.Role, usr.IsApproved, usr.IsActive,
		null.BytesFrom(usr.PasswordHash),
		usr.CreatedAt.UTC(), usr.UpdatedAt.UTC(),
		null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()),
	)
	if err != nil {
		return user.User{}, errors.Wrap(err, "creating user")
	}
	return usr, nil
}

func (repo *userRepository) GetUserByID(id string) (user.User, error) {
	var row userRow
	if err := repo.db.Get(&row, `SELECT `+userColumns+` FROM profiles WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "getting user by id")
	}
	return row.unmarshal(), nil
}

func (repo *userRepository) GetUserByEmail(email string) (user.User, error) {
	var row userRow
	if err := repo.db.Get(&row, `SELECT `+userColumns+` FROM profiles WHERE email = $1`, email); err != nil {
		if err == sql.ErrNoRows {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "getting user by email")
	}
	return row.unmarshal(), nil
}

func (repo *userRepository) QueryAllUsers() ([]user.User, error) {
	var rows []userRow
	q := `SELECT ` + userColumns + ` FROM profiles ORDER BY created_at DESC`
	if err := repo.db.Select(&rows, q); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	return unmarshalUsers(rows), nil
}

func (repo *userRepository) FilterUsers(filter user.QueryFilter, orderings ...core.DBOrdering) ([]user.User, error) {
	where := make([]string, 0, 6)
	args := make([]interface{}, 0, 6)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Search != "" {
		p := arg("%" + filter.Search + "%")
		where = append(where, fmt.Sprintf(
			"(full_name ILIKE %[1]s OR email ILIKE %[1]s OR whatsapp_number ILIKE %[1]s)", p))
	}
	if filter.Role != "" {
		where = append(where, "role = "+arg(filter.Role))
	}
	if filter.IsApproved != nil {
		where = append(where, "is_approved = "+arg(*filter.IsApproved))
	}
	if filter.IsActive != nil {
		where = append(where, "is_active = "+arg(*filter.IsActive))
	}
	if !filter.CreatedFrom.IsZero() {
		where = append(where, "created_at >= "+arg(filter.CreatedFrom.UTC()))
	}
	if !filter.CreatedTo.IsZero() {
		where = append(where, "created_at <= "+arg(filter.CreatedTo.UTC()))
	}

	q := `SELECT ` + userColumns + ` FROM profiles`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += orderBy(orderings, "created_at DESC")

	var rows []userRow
	if err := repo.db.Select(&rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "filtering users")
	}
	return unmarshalUsers(rows), nil
}

func (repo *userRepository) UpdateUser(usr user.User, isApproved, isActive *bool) (user.User, error) {
	set := make([]string, 0, 7)
	args := make([]interface{}, 0, 8)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	// only save set fields
	if usr.FullName != "" {
		set = append(set, "full_name = "+arg(usr.FullName))
	}
	if usr.WhatsAppNumber != "" {
		set = append(set, "whatsapp_number = "+arg(usr.WhatsAppNumber))
	}
	if usr.PasswordHash != nil {
		set = append(set, "password_hash = "+arg(usr.PasswordHash))
	}
	if isApproved != nil {
		set = append(set, "is_approved = "+arg(*isApproved))
	}
	if isActive != nil {
		set = append(set, "is_active = "+arg(*isActive))
	}
	if !usr.LastLogin.IsZero() {
		set = append(set, "last_login = "+arg(usr.LastLogin.UTC()))
	}
	updatedAt := usr.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	set = append(set, "updated_at = "+arg(updatedAt.UTC()))

	q := `UPDATE profiles SET ` + strings.Join(set, ", ") + ` WHERE id = ` + arg(usr.ID)
	res, err := repo.db.Exec(q, args...)
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return repo.GetUserByID(usr.ID)
}

func (repo *userRepository) DeleteUsersByID(ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	q, args, err := sqlx.In(`DELETE FROM profiles WHERE id IN (?)`, ids)
	if err != nil {
		return errors.Wrap(err, "building delete query")
	}
	if _, err = repo.db.Exec(repo.db.Rebind(q), args...); err != nil {
		return errors.Wrap(err, "deleting users")
	}
	return nil
}

// orderBy renders an ORDER BY clause from orderings, falling back to def.
func orderBy(orderings []core.DBOrdering, def string) string {
	if len(orderings) == 0 {
		return " ORDER BY " + def
	}
	parts := make([]string, 0, len(orderings))
	for _, ord := range orderings {
		parts = append(parts, ord.String())
	}
	return " ORDER BY " + strings.Join(parts, ", ")
}
