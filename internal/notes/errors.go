package notes

import (
	"github.com/mdobak/go-xerrors"

	"github.com/siahsang/notes/internal/policy"
	"github.com/siahsang/notes/internal/validator"
)

var (
	ErrPermissionDenied   = xerrors.Message("Permission denied")
	ErrValidation         = xerrors.Message("Validation failed")
	ErrInvalidCredentials = xerrors.Message("Invalid credentials")
)

// PermissionError is a denied policy decision. It matches ErrPermissionDenied.
type PermissionError struct {
	Action policy.Action
	Reason string
}

func (e *PermissionError) Error() string {
	return "permission denied for " + string(e.Action) + ": " + e.Reason
}

func (e *PermissionError) Is(target error) bool {
	return target == ErrPermissionDenied
}

// ValidationError carries per-field messages. It matches ErrValidation.
type ValidationError struct {
	Errors map[string]string
}

func (e *ValidationError) Error() string {
	return "validation failed"
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(v *validator.Validator) error {
	return xerrors.New(&ValidationError{Errors: v.Errors})
}

func invalidField(field, message string) error {
	return xerrors.New(&ValidationError{Errors: map[string]string{field: message}})
}
