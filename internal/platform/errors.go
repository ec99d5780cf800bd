package platform

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// ErrNotFound is returned when a schema object or item does not exist, or
// the caller lacks visibility over it. Callers treat it as "must create",
// not a hard failure.
var ErrNotFound = eris.New("platform: not found")

// IsNotFound reports whether err represents a missing or forbidden object.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") ||
		strings.Contains(msg, "does not exist") ||
		strings.Contains(msg, "permission")
}
