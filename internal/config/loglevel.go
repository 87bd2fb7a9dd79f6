package config

import (
	"strings"

	"github.com/labstack/gommon/log"
)

// ParseLogLevel maps LOG_LEVEL to a gommon level.  Unknown values fall back
// to INFO.
func ParseLogLevel(s string) log.Lvl {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return log.DEBUG
	case "WARN", "WARNING":
		return log.WARN
	case "ERROR":
		return log.ERROR
	case "OFF":
		return log.OFF
	}
	return log.INFO
}
