package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// SuperUserID is the id of the built-in administrator account
const SuperUserID int64 = 0

// SuperUserName is the name of the built-in administrator account
const SuperUserName = "SuperUser"

// User is a registered account
type User struct {
	ID          int64
	Name        string
	CertHash    string
	Comment     string
	LastSeen    time.Time
	LastChannel uint32
	HasPassword bool
}

const userColumns = `id, name, cert_hash, comment, last_seen, last_channel, password_hash IS NOT NULL`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	u := &User{}
	var cert sql.NullString
	var lastSeen int64
	if err := row.Scan(&u.ID, &u.Name, &cert, &u.Comment, &lastSeen, &u.LastChannel, &u.HasPassword); err != nil {
		return nil, err
	}
	u.CertHash = cert.String
	u.LastSeen = unixTime(lastSeen)
	return u, nil
}

func hashPassword(password string) ([]byte, error) {
	if password == "" {
		return nil, nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	return hash, nil
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique
}

// RegisterUser creates an account. An empty password leaves the account
// usable by certificate only.
func (s *DB) RegisterUser(name, password, certHash string) (*User, error) {
	key := nameKey(name)
	if key == "" {
		return nil, ErrInvalidName
	}
	hash, err := hashPassword(password)
	if err != nil {
		return nil, err
	}

	res, err := s.db.Exec(
		`INSERT INTO users (name, name_key, password_hash, cert_hash) VALUES (?, ?, ?, NULLIF(?, ''))`,
		strings.TrimSpace(name), key, hash, certHash)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrUserExists, name)
		}
		return nil, fmt.Errorf("failed to register user: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read user id: %w", err)
	}
	s.log.Info("Registered user", zap.Int64("user_id", id), zap.String("name", name))
	return s.UserByID(id)
}

// EnsureSuperUser creates the SuperUser account if missing and, when
// password is non-empty, sets its password
func (s *DB) EnsureSuperUser(password string) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO users (id, name, name_key) VALUES (?, ?, ?)`,
		SuperUserID, SuperUserName, nameKey(SuperUserName))
	if err != nil {
		return fmt.Errorf("failed to create superuser: %w", err)
	}
	if password == "" {
		return nil
	}
	return s.SetPassword(SuperUserID, password)
}

// SetPassword replaces a user's password; empty clears it
func (s *DB) SetPassword(id int64, password string) error {
	hash, err := hashPassword(password)
	if err != nil {
		return err
	}
	return s.updateUser(`UPDATE users SET password_hash = ? WHERE id = ?`, hash, id)
}

// BindCertificate records the certificate hash that identifies a user
func (s *DB) BindCertificate(id int64, certHash string) error {
	return s.updateUser(`UPDATE users SET cert_hash = NULLIF(?, '') WHERE id = ?`, certHash, id)
}

// SetComment stores a user's comment
func (s *DB) SetComment(id int64, comment string) error {
	return s.updateUser(`UPDATE users SET comment = ? WHERE id = ?`, comment, id)
}

// TouchUser records that a user was seen in a channel
func (s *DB) TouchUser(id int64, channel uint32, now time.Time) error {
	return s.updateUser(`UPDATE users SET last_seen = ?, last_channel = ? WHERE id = ?`, timeUnix(now), channel, id)
}

func (s *DB) updateUser(query string, args ...any) error {
	res, err := s.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CheckPassword verifies a user's password. Accounts without a password
// never match.
func (s *DB) CheckPassword(id int64, password string) error {
	var hash []byte
	err := s.db.QueryRow(`SELECT password_hash FROM users WHERE id = ?`, id).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load password: %w", err)
	}
	if len(hash) == 0 || password == "" {
		return ErrInvalidPassword
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return ErrInvalidPassword
	}
	return nil
}

// UserByID returns the user with id
func (s *DB) UserByID(id int64) (*User, error) {
	return s.userWhere(`id = ?`, id)
}

// UserByName returns the user whose name matches case-insensitively
func (s *DB) UserByName(name string) (*User, error) {
	return s.userWhere(`name_key = ?`, nameKey(name))
}

// UserByCertHash returns the user bound to a certificate hash
func (s *DB) UserByCertHash(hash string) (*User, error) {
	if hash == "" {
		return nil, ErrNotFound
	}
	return s.userWhere(`cert_hash = ?`, hash)
}

func (s *DB) userWhere(cond string, arg any) (*User, error) {
	u, err := scanUser(s.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE `+cond, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// UsersByIDs returns the users among ids that exist, keyed by id
func (s *DB) UsersByIDs(ids []int64) (map[int64]*User, error) {
	out := make(map[int64]*User)
	if len(ids) == 0 {
		return out, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	users, err := s.queryUsers(`SELECT `+userColumns+` FROM users WHERE id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

// UsersByNames returns the users among names that exist, keyed by the
// name as given
func (s *DB) UsersByNames(names []string) (map[string]*User, error) {
	out := make(map[string]*User)
	if len(names) == 0 {
		return out, nil
	}
	args := make([]any, len(names))
	for i, n := range names {
		args[i] = nameKey(n)
	}
	users, err := s.queryUsers(`SELECT `+userColumns+` FROM users WHERE name_key IN (`+placeholders(len(names))+`)`, args...)
	if err != nil {
		return nil, err
	}
	byKey := make(map[string]*User, len(users))
	for _, u := range users {
		byKey[nameKey(u.Name)] = u
	}
	for _, n := range names {
		if u, ok := byKey[nameKey(n)]; ok {
			out[n] = u
		}
	}
	return out, nil
}

// ListUsers returns all users whose name contains filter, by id
func (s *DB) ListUsers(filter string) ([]*User, error) {
	return s.queryUsers(`SELECT `+userColumns+` FROM users WHERE name_key LIKE ? ORDER BY id`,
		"%"+nameKey(filter)+"%")
}

func (s *DB) queryUsers(query string, args ...any) ([]*User, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// RenameUser changes a user's name
func (s *DB) RenameUser(id int64, name string) error {
	key := nameKey(name)
	if key == "" {
		return ErrInvalidName
	}
	err := s.updateUser(`UPDATE users SET name = ?, name_key = ? WHERE id = ?`, strings.TrimSpace(name), key, id)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", ErrUserExists, name)
	}
	return err
}

// DeleteUser removes an account. SuperUser cannot be deleted.
func (s *DB) DeleteUser(id int64) error {
	if id == SuperUserID {
		return fmt.Errorf("cannot delete %s", SuperUserName)
	}
	res, err := s.db.Exec(`DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	s.log.Info("Deleted user", zap.Int64("user_id", id))
	return nil
}
