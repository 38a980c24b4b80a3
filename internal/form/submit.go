// internal/form/submit.go
//
// Concierge forms: consolidated Submit helper.
//
// Context
//   Handlers want one call that decodes the JSON body, validates it, and
//   returns either a Result or a ValidationError.  Submit and DecodeBody
//   provide that so the relay stays terse.
//
//------------------------------------------------------------------------------

package form

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrBadBody is returned by DecodeBody when the input is not a JSON object.
var ErrBadBody = errors.New("form: body is not a JSON object")

// ValidationError wraps the rule failure returned by ValidateForm.
type ValidationError struct {
	Fields []ErrorField
}

func (e ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "form: validation failed"
	}
	return e.Fields[0].Message
}

// Message returns the single user-facing message.
func (e ValidationError) Message() string { return e.Error() }

// IsValidationError reports whether err came from a failed ValidateForm.
func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

// DecodeBody reads one JSON object from r.  Trailing data after the object
// is rejected.
func DecodeBody(r io.Reader) (map[string]any, error) {
	var raw map[string]any
	dec := json.NewDecoder(r)
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadBody, err)
	}
	if raw == nil {
		return nil, ErrBadBody
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data", ErrBadBody)
	}
	return raw, nil
}

// Submit validates raw against formID.  On failure it returns a
// ValidationError (check with IsValidationError).
func Submit(formID string, raw map[string]any) (*Result, error) {
	res, errs := ValidateForm(formID, raw)
	if len(errs) > 0 {
		return nil, ValidationError{Fields: errs}
	}
	return res, nil
}
