// internal/form/validate.go
//
// Concierge forms: server-side validation and sanitization.
//
// Context
//   The browser posts a JSON object.  This file checks it against the
//   FormDef and returns either a Result the relay can trust or the first
//   rule that failed.  The client limits are never assumed; every field is
//   sanitized and bounded here.
//
// Workflow
//   Rules run in a fixed order and stop at the first failure, because the
//   client contract shows one message at a time:
//
//     1. honeypot         – filled means spam, nothing else is evaluated
//     2. captcha token    – present and a string
//     3. required fields  – one form-level message
//     4. formats          – email, phone, postal, in declaration order
//     5. enumerations     – select and multiselect, in declaration order
//
//   Unknown multiselect values are dropped, not rejected.  They are listed
//   in Result.Dropped so the caller can log and count them.
//
//------------------------------------------------------------------------------

package form

import (
	"strings"
)

// -----------------------------------------------------------------------------
// Error types
// -----------------------------------------------------------------------------

// ErrorField describes a single validation failure.  Name is empty for
// form-level failures.
type ErrorField struct {
	Name    string `json:"field"`
	Message string `json:"message"`
}

// Dropped records a multiselect value that was not in the allowed set.
type Dropped struct {
	Field string
	Value string
}

// Result is a validated submission.  When Spam is true only Form is set.
type Result struct {
	Form       *FormDef
	Spam       bool
	Submission Submission
	Dropped    []Dropped

	values map[string]string
	lists  map[string][]string
}

// Value returns the sanitized value of a scalar field.
func (r *Result) Value(name string) string { return r.values[name] }

// List returns the filtered values of a multiselect field.
func (r *Result) List(name string) []string { return r.lists[name] }

// -----------------------------------------------------------------------------
// Public API
// -----------------------------------------------------------------------------

// ValidateForm validates a decoded JSON body against the form registered as
// formID.
func ValidateForm(formID string, raw map[string]any) (*Result, []ErrorField) {
	fd, ok := GetFormDef(formID)
	if !ok {
		return nil, []ErrorField{{Name: "", Message: "Unknown form."}}
	}
	return fd.Validate(raw)
}

// Validate runs the rule pipeline described at the top of this file.  The
// error slice is either nil or holds exactly one entry.
func (fd *FormDef) Validate(raw map[string]any) (*Result, []ErrorField) {
	if fd.Honeypot != "" && filled(raw[fd.Honeypot]) {
		return &Result{Form: fd, Spam: true}, nil
	}

	var token string
	if fd.Captcha != "" {
		tok, ok := raw[fd.Captcha].(string)
		if !ok || tok == "" {
			return nil, fail(fd.Captcha, fd.CaptchaMessage)
		}
		token = tok
	}

	res := &Result{
		Form:   fd,
		values: make(map[string]string, len(fd.Fields)),
		lists:  make(map[string][]string),
	}

	// Sanitize everything up front.  Format-typed fields keep their full
	// length so an overlong value fails its check instead of being cut.
	for _, f := range fd.Fields {
		if f.Type == TypeMultiSelect {
			continue
		}
		s, _ := raw[f.Name].(string)
		switch f.Type {
		case TypeEmail, TypePhone, TypePostal:
			res.values[f.Name] = clean(s)
		default:
			res.values[f.Name] = Sanitize(s, f.MaxLength)
		}
	}

	// Required
	for _, f := range fd.Fields {
		if f.Required && f.Type != TypeMultiSelect && res.values[f.Name] == "" {
			return nil, fail(f.Name, fd.RequiredMessage)
		}
	}

	// Formats
	for _, f := range fd.Fields {
		v := res.values[f.Name]
		if v == "" {
			continue
		}
		var ok bool
		switch f.Type {
		case TypeEmail:
			ok = IsValidEmail(v)
		case TypePhone:
			ok = IsValidPhone(v)
		case TypePostal:
			ok = IsValidPostalCode(v, f.MaxLength)
		default:
			continue
		}
		if !ok {
			return nil, fail(f.Name, invalidMsg(&f))
		}
	}

	// Enumerations
	for _, f := range fd.Fields {
		switch f.Type {
		case TypeSelect:
			v := res.values[f.Name]
			if v == "" {
				res.values[f.Name] = f.Default
				continue
			}
			if !optionAllowed(f.Options, v) {
				return nil, fail(f.Name, invalidMsg(&f))
			}

		case TypeMultiSelect:
			kept, dropped := filterOptions(&f, raw[f.Name])
			res.Dropped = append(res.Dropped, dropped...)
			if f.Required && len(kept) == 0 {
				return nil, fail(f.Name, invalidMsg(&f))
			}
			res.lists[f.Name] = kept
		}
	}

	res.Submission = newSubmission(fd.Kind, res.values, res.lists, token)
	return res, nil
}

// -----------------------------------------------------------------------------
// Field-level helpers
// -----------------------------------------------------------------------------

func fail(name, msg string) []ErrorField {
	return []ErrorField{{Name: name, Message: msg}}
}

// filled mirrors a loose truthiness test: anything other than null, "",
// false, 0, or an empty container counts as filled.
func filled(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	case float64:
		return t != 0
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}

// filterOptions keeps the entries of raw that are allowed options, in order
// and without duplicates.  Everything else is reported as dropped.
func filterOptions(f *FieldDef, raw any) (kept []string, dropped []Dropped) {
	items, _ := raw.([]any)
	seen := make(map[string]bool, len(items))
	for _, it := range items {
		s, ok := it.(string)
		if !ok {
			dropped = append(dropped, Dropped{Field: f.Name, Value: describe(it)})
			continue
		}
		s = Sanitize(s, f.MaxLength)
		if !optionAllowed(f.Options, s) {
			dropped = append(dropped, Dropped{Field: f.Name, Value: s})
			continue
		}
		if !seen[s] {
			seen[s] = true
			kept = append(kept, s)
		}
	}
	return kept, dropped
}

func describe(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "<bool>"
	case float64:
		return "<number>"
	case []any:
		return "<array>"
	case map[string]any:
		return "<object>"
	default:
		return "<unknown>"
	}
}

func optionAllowed(opts []string, v string) bool {
	for _, o := range opts {
		if o == v {
			return true
		}
	}
	return false
}

func invalidMsg(f *FieldDef) string {
	if f.ErrorMsg != "" {
		return f.ErrorMsg
	}
	return "Invalid " + strings.ToLower(f.Label) + "."
}
