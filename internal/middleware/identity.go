package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/puce-ride/appride/internal/model"
)

// CurrentIdentity returns the caller stored by JWTAuth.  ok is false on
// routes that did not run JWTAuth.
func CurrentIdentity(c echo.Context) (model.Identity, bool) {
	ident, ok := c.Get(ctxIdentity).(model.Identity)
	return ident, ok
}

// currentUserID returns the caller id as a string for use in Redis keys,
// or "anon" for unauthenticated requests.
func currentUserID(c echo.Context) string {
	if id, ok := c.Get(ctxUserID).(uint64); ok && id != 0 {
		return strconv.FormatUint(id, 10)
	}
	return "anon"
}
