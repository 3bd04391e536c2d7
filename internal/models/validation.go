package models

import (
	"fmt"

	appErrors "github.com/noah-isme/course-scheduler/pkg/errors"
)

// EntityViolation names the offending entity field of an InvalidEntity error.
type EntityViolation struct {
	Entity string `json:"entity"`
	ID     string `json:"id"`
	Field  string `json:"field"`
}

func invalidEntity(entity, id, field, reason string) error {
	msg := fmt.Sprintf("%s %q: %s %s", entity, id, field, reason)
	return appErrors.WithDetails(appErrors.Clone(appErrors.ErrInvalidEntity, msg), EntityViolation{Entity: entity, ID: id, Field: field})
}
