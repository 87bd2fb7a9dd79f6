package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/puce-ride/appride/internal/apperrors"
	"github.com/puce-ride/appride/internal/middleware"
	"github.com/puce-ride/appride/internal/model"
)

// CacheBumper invalidates cached public responses after a write.
type CacheBumper interface {
	Bump(ctx context.Context) error
}

type noopBumper struct{}

func (noopBumper) Bump(context.Context) error { return nil }

// RequestValidator adapts go-playground/validator to echo.Validator.
type RequestValidator struct {
	v *validator.Validate
}

func NewValidator() *RequestValidator {
	return &RequestValidator{v: validator.New(validator.WithRequiredStructEnabled())}
}

// Validate returns an ErrValidation-wrapped error naming the first failing
// field.
func (rv *RequestValidator) Validate(i interface{}) error {
	err := rv.v.Struct(i)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Errorf("%w: %s failed %s", apperrors.ErrValidation, fe.Field(), fe.Tag())
	}
	return fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
}

// writeError maps err to its HTTP status and writes {"error": "..."}.
// Internal errors are logged and hidden from the client.
func writeError(c echo.Context, err error) error {
	status := apperrors.CheckError(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		c.Logger().Errorf("%s %s: %v", c.Request().Method, c.Path(), err)
		return c.JSON(status, echo.Map{"error": "internal error"})
	}
	if status == http.StatusServiceUnavailable {
		c.Response().Header().Set("Retry-After", "1")
	}
	return c.JSON(status, echo.Map{"error": err.Error()})
}

// bindAndValidate decodes the body into req and runs the struct tags.
func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return fmt.Errorf("%w: invalid body", apperrors.ErrValidation)
	}
	return c.Validate(req)
}

// pathID parses the :id path parameter.
func pathID(c echo.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: invalid id %q", apperrors.ErrValidation, c.Param("id"))
	}
	return id, nil
}

// identity returns the authenticated caller.
func identity(c echo.Context) (model.Identity, error) {
	ident, ok := middleware.CurrentIdentity(c)
	if !ok {
		return model.Identity{}, apperrors.ErrUnauthorized
	}
	return ident, nil
}

func validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{apperrors.ErrValidation}, args...)...)
}
