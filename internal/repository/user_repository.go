package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/puce-ride/appride/internal/apperrors"
	"github.com/puce-ride/appride/internal/model"
	"github.com/puce-ride/appride/internal/utils"
)

const userColumns = `id, email, password_hash, role, full_name, phone, vehicle_info, home_lat, home_lon, is_active, created_at, updated_at`

type UserRepo struct{ DB *sqlx.DB }

func NewUserRepo(db *sqlx.DB) *UserRepo { return &UserRepo{DB: db} }

// Create hashes password, inserts u and returns its ID.  The email is
// normalized in place.
func (r *UserRepo) Create(ctx context.Context, u *model.User, password string, cost int) (uint64, error) {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	u.PasswordHash = hash
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (email, password_hash, role, full_name, phone, vehicle_info, home_lat, home_lon) VALUES (?,?,?,?,?,?,?,?)",
		u.Email, u.PasswordHash, u.Role, u.FullName, u.Phone, u.VehicleInfo, u.HomeLat, u.HomeLon)
	if err != nil {
		mapped := mapMySQLError(err, "insert user")
		if errors.Is(mapped, apperrors.ErrConflict) {
			return 0, ErrEmailExists
		}
		return 0, mapped
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	u.ID = uint64(id)
	u.IsActive = true
	return u.ID, nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var u model.User
	err := r.DB.GetContext(ctx, &u, "SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email)
	return u, mapMySQLError(err, "user "+email)
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	var u model.User
	err := r.DB.GetContext(ctx, &u, "SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id)
	return u, mapMySQLError(err, fmt.Sprintf("user %d", id))
}

// UpdatePartial applies the non-nil fields of p to user id and returns the
// stored row.  A taken email yields ErrEmailExists.
func (r *UserRepo) UpdatePartial(ctx context.Context, id uint64, p model.UserPatch) (model.User, error) {
	var (
		sets []string
		args []interface{}
	)
	set := func(col string, v interface{}) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if p.Email != nil {
		set("email", strings.ToLower(strings.TrimSpace(*p.Email)))
	}
	if p.FullName != nil {
		set("full_name", strings.TrimSpace(*p.FullName))
	}
	if p.Phone != nil {
		set("phone", nullIfBlank(*p.Phone))
	}
	if p.VehicleInfo != nil {
		set("vehicle_info", nullIfBlank(*p.VehicleInfo))
	}
	if p.HomeLat != nil {
		set("home_lat", *p.HomeLat)
	}
	if p.HomeLon != nil {
		set("home_lon", *p.HomeLon)
	}
	if p.Role != nil {
		set("role", *p.Role)
	}
	if p.IsActive != nil {
		set("is_active", *p.IsActive)
	}
	if len(sets) == 0 {
		return r.GetByID(ctx, id)
	}

	args = append(args, id)
	_, err := r.DB.ExecContext(ctx, "UPDATE users SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		mapped := mapMySQLError(err, fmt.Sprintf("user %d", id))
		if errors.Is(mapped, apperrors.ErrConflict) {
			return model.User{}, ErrEmailExists
		}
		return model.User{}, mapped
	}
	// MySQL reports 0 affected rows for a no-op update, so existence is
	// decided by the read-back.
	return r.GetByID(ctx, id)
}

// List returns users newest first.
func (r *UserRepo) List(ctx context.Context, f model.UserFilter) ([]model.User, error) {
	q := "SELECT " + userColumns + " FROM users"
	var args []interface{}
	if f.Role != "" {
		q += " WHERE role = ?"
		args = append(args, f.Role)
	}
	q += " ORDER BY created_at DESC, id DESC"
	if f.Limit > 0 {
		q += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	}
	users := []model.User{}
	if err := r.DB.SelectContext(ctx, &users, q, args...); err != nil {
		return nil, mapMySQLError(err, "list users")
	}
	return users, nil
}

// Delete removes a user.  Users still referenced by trips or reservations
// yield ErrConflict; refresh tokens go with the user.
func (r *UserRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
	if err != nil {
		return mapMySQLError(err, fmt.Sprintf("user %d", id))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("user %d: %w", id, apperrors.ErrNotFound)
	}
	return nil
}

func nullIfBlank(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
