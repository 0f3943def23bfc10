package notification

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/joshu-sajeev/notifyqueue/internal/dto"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidationError reports the first payload field that is absent or malformed.
type ValidationError struct {
	Field   string
	Missing bool
}

func (e *ValidationError) Error() string {
	if e.Missing {
		return "missing required field: " + e.Field
	}
	return "invalid field: " + e.Field
}

// ErrInvalidPayload wraps payloads that are not a JSON object.
var ErrInvalidPayload = errors.New("invalid payload")

// DecodeEmailPayload parses and validates an email payload. When the payload
// names no template, fallbackTemplate (the row's template column) is used.
func DecodeEmailPayload(raw []byte, fallbackTemplate string) (*dto.EmailPayload, error) {
	var p dto.EmailPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	if strings.TrimSpace(p.Template) == "" {
		p.Template = fallbackTemplate
	}
	p.To = strings.TrimSpace(p.To)

	if err := validate.Struct(&p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			first := verrs[0]
			return nil, &ValidationError{Field: first.Field(), Missing: first.Tag() == "required"}
		}
		return nil, fmt.Errorf("validate payload: %w", err)
	}

	return &p, nil
}
