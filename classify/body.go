package classify

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrEmptyBody is returned when a body is required but missing
	ErrEmptyBody = errors.New("empty body")
	// ErrNotJSONObject is returned when the body is valid JSON but not an object
	ErrNotJSONObject = errors.New("body is not a JSON object")
)

// BodyValidator checks the shape of a successful response before it is returned.
type BodyValidator interface {
	Validate(body []byte) error
}

// BodyValidatorFunc adapts a function to BodyValidator.
type BodyValidatorFunc func(body []byte) error

// Validate calls f.
func (f BodyValidatorFunc) Validate(body []byte) error {
	return f(body)
}

// JSONBody requires the body to be well-formed JSON.
type JSONBody struct {
	// AllowEmpty accepts a zero-length body (e.g. 204 responses)
	AllowEmpty bool
	// RequireObject rejects arrays and scalars
	RequireObject bool
	// RequiredFields must be present at the top level; implies RequireObject
	RequiredFields []string
}

// Validate implements BodyValidator.
func (v JSONBody) Validate(body []byte) error {
	if len(body) == 0 {
		if v.AllowEmpty {
			return nil
		}
		return ErrEmptyBody
	}

	if !v.RequireObject && len(v.RequiredFields) == 0 {
		if !json.Valid(body) {
			return fmt.Errorf("invalid JSON body")
		}
		return nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return ErrNotJSONObject
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if obj == nil {
		// literal null
		return ErrNotJSONObject
	}
	for _, field := range v.RequiredFields {
		if _, ok := obj[field]; !ok {
			return fmt.Errorf("missing field %q", field)
		}
	}
	return nil
}

// CheckBody turns a success outcome into a Fatal one when the body fails validation.
// Non-success outcomes and a nil validator pass through unchanged.
func CheckBody(out Outcome, v BodyValidator, body []byte) Outcome {
	if v == nil || out.Kind != Success {
		return out
	}
	if err := v.Validate(body); err != nil {
		out.Kind = Fatal
		out.Reason = ReasonMalformedBody
		out.Err = err
	}
	return out
}
