package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/labstack/echo/v4"
)

// Check tests one dependency.  A nil error means healthy.
type Check func(ctx context.Context) error

// Health reports "ok" when every required check passes.  Optional checks
// (Redis) are reported but never fail the check, since the API degrades
// without them.
type Health struct {
	Required map[string]Check
	Optional map[string]Check
}

func (h *Health) Handle(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := echo.Map{}
	for _, name := range sortedNames(h.Required) {
		if err := h.Required[name](ctx); err != nil {
			c.Logger().Warnf("health %s: %v", name, err)
			deps[name] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "up"
	}
	for _, name := range sortedNames(h.Optional) {
		if err := h.Optional[name](ctx); err != nil {
			deps[name] = "down"
			continue
		}
		deps[name] = "up"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	return c.JSON(status, echo.Map{"status": overall, "deps": deps})
}

func sortedNames(m map[string]Check) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
