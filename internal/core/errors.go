package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidBackup wraps every reason a backup document is refused.
	ErrInvalidBackup = errors.New("invalid backup")
	// ErrPendingSync refuses remote refreshes that would drop queued local edits.
	ErrPendingSync = errors.New("offline changes are still waiting to sync")
	// ErrNoRemote is returned by operations that need a remote gateway.
	ErrNoRemote = errors.New("no remote store configured")
	// ErrFeatureDisabled is returned when an optional collaborator was not configured.
	ErrFeatureDisabled = errors.New("feature not configured")
)

// FieldError is one failed input constraint.
type FieldError struct {
	Field string
	Rule  string
	Param string
}

// ValidationError reports invalid service input.
type ValidationError struct {
	Entity EntityType
	Fields []FieldError
}

func (e ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		if f.Param != "" {
			parts = append(parts, fmt.Sprintf("%s (%s=%s)", f.Field, f.Rule, f.Param))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s (%s)", f.Field, f.Rule))
	}
	return fmt.Sprintf("invalid %s: %s", e.Entity, strings.Join(parts, ", "))
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func validateEntity(entity EntityType, v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	verr := ValidationError{Entity: entity}
	for _, fe := range fieldErrs {
		verr.Fields = append(verr.Fields, FieldError{Field: fe.Field(), Rule: fe.Tag(), Param: fe.Param()})
	}
	return verr
}

func invalidField(entity EntityType, field, rule string) error {
	return ValidationError{Entity: entity, Fields: []FieldError{{Field: field, Rule: rule}}}
}
