package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/puce-ride/appride/internal/apperrors"
	"github.com/puce-ride/appride/internal/model"
)

const (
	defaultUserLimit = 50
	maxUserLimit     = 200
)

// UserDirectory is the user persistence behind the profile and admin
// endpoints.
type UserDirectory interface {
	GetByID(ctx context.Context, id uint64) (model.User, error)
	List(ctx context.Context, f model.UserFilter) ([]model.User, error)
	UpdatePartial(ctx context.Context, id uint64, p model.UserPatch) (model.User, error)
	Delete(ctx context.Context, id uint64) error
}

// UserHandler serves self-service profile edits and admin user management.
type UserHandler struct {
	Users UserDirectory
}

func NewUserHandler(users UserDirectory) *UserHandler {
	return &UserHandler{Users: users}
}

type userPatchReq struct {
	Email       *string  `json:"email" validate:"omitempty,email"`
	FullName    *string  `json:"full_name" validate:"omitempty,max=120"`
	Phone       *string  `json:"phone" validate:"omitempty,max=30"`
	VehicleInfo *string  `json:"vehicle_info" validate:"omitempty,max=255"`
	HomeLat     *float64 `json:"home_lat" validate:"omitempty,gte=-90,lte=90"`
	HomeLon     *float64 `json:"home_lon" validate:"omitempty,gte=-180,lte=180"`
	Role        *string  `json:"role"`
	IsActive    *bool    `json:"is_active"`
	Password    *string  `json:"password"`
}

func (r userPatchReq) patch() (model.UserPatch, error) {
	if r.Password != nil {
		return model.UserPatch{}, validationf("password cannot be changed through this endpoint")
	}
	if r.FullName != nil && len(strings.TrimSpace(*r.FullName)) < 3 {
		return model.UserPatch{}, validationf("full_name is too short")
	}
	p := model.UserPatch{
		Email:       r.Email,
		FullName:    r.FullName,
		Phone:       r.Phone,
		VehicleInfo: r.VehicleInfo,
		HomeLat:     r.HomeLat,
		HomeLon:     r.HomeLon,
		IsActive:    r.IsActive,
	}
	if r.Role != nil {
		role, ok := model.ParseRole(*r.Role)
		if !ok {
			return model.UserPatch{}, validationf("unknown role %q", *r.Role)
		}
		p.Role = &role
	}
	if p.Empty() {
		return model.UserPatch{}, validationf("nothing to update")
	}
	return p, nil
}

func bindUserPatch(c echo.Context) (model.UserPatch, error) {
	var req userPatchReq
	if err := bindAndValidate(c, &req); err != nil {
		return model.UserPatch{}, err
	}
	return req.patch()
}

// UpdateMe serves PATCH /v1/me.  Role and account status stay with the
// admins.
func (h *UserHandler) UpdateMe(c echo.Context) error {
	actor, err := identity(c)
	if err != nil {
		return writeError(c, err)
	}
	p, err := bindUserPatch(c)
	if err != nil {
		return writeError(c, err)
	}
	if !actor.IsAdmin() && (p.Role != nil || p.IsActive != nil) {
		return writeError(c, fmt.Errorf("%w: only admins can change role or account status", apperrors.ErrForbidden))
	}
	u, err := h.Users.UpdatePartial(c.Request().Context(), actor.ID, p)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, u)
}

// List serves GET /v1/users.  Query parameters: role, limit and offset.
func (h *UserHandler) List(c echo.Context) error {
	f := model.UserFilter{Limit: defaultUserLimit}
	var role string
	if err := echo.QueryParamsBinder(c).
		String("role", &role).
		Int("limit", &f.Limit).
		Int("offset", &f.Offset).
		BindError(); err != nil {
		return writeError(c, validationf("invalid query: %v", err))
	}
	if role != "" {
		parsed, ok := model.ParseRole(role)
		if !ok {
			return writeError(c, validationf("unknown role %q", role))
		}
		f.Role = parsed
	}
	if f.Limit <= 0 || f.Limit > maxUserLimit {
		f.Limit = defaultUserLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	users, err := h.Users.List(c.Request().Context(), f)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": users, "count": len(users)})
}

// Get serves GET /v1/users/:id for the user themselves or an admin.
func (h *UserHandler) Get(c echo.Context) error {
	actor, err := identity(c)
	if err != nil {
		return writeError(c, err)
	}
	id, err := pathID(c)
	if err != nil {
		return writeError(c, err)
	}
	if !actor.IsAdmin() && actor.ID != id {
		return writeError(c, fmt.Errorf("%w: user %d", apperrors.ErrForbidden, id))
	}
	u, err := h.Users.GetByID(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, u)
}

// Update serves PUT and PATCH /v1/users/:id.  Both merge the given fields.
func (h *UserHandler) Update(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return writeError(c, err)
	}
	p, err := bindUserPatch(c)
	if err != nil {
		return writeError(c, err)
	}
	u, err := h.Users.UpdatePartial(c.Request().Context(), id, p)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, u)
}

// Delete serves DELETE /v1/users/:id.  Users that still own trips or
// reservations are kept and the request fails with 409.
func (h *UserHandler) Delete(c echo.Context) error {
	actor, err := identity(c)
	if err != nil {
		return writeError(c, err)
	}
	id, err := pathID(c)
	if err != nil {
		return writeError(c, err)
	}
	if id == actor.ID {
		return writeError(c, fmt.Errorf("%w: admins cannot delete their own account", apperrors.ErrConflict))
	}
	if err := h.Users.Delete(c.Request().Context(), id); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"id": id})
}

// Create rejects POST /v1/users; accounts come from the register endpoint.
func (h *UserHandler) Create(c echo.Context) error {
	return c.JSON(http.StatusMethodNotAllowed, echo.Map{"error": "use /v1/auth/register to create users"})
}
