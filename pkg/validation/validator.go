// Package validation checks replication configuration: struct-tag rules
// through go-playground/validator plus a fluent ConfigValidator for rules
// that span fields.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/dd0wney/replcore/pkg/dn"
	"github.com/dd0wney/replcore/pkg/logging"
)

// ErrInvalidConfig wraps every configuration validation failure
var ErrInvalidConfig = errors.New("invalid configuration")

// validate is a singleton validator instance
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// report yaml names so errors match the configuration file
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})

	mustRegister(v, "dn", func(fl validator.FieldLevel) bool {
		_, err := dn.Parse(fl.Field().String())
		return err == nil
	})
	mustRegister(v, "loglevel", func(fl validator.FieldLevel) bool {
		_, ok := logging.LookupLevel(fl.Field().String())
		return ok
	})
	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("validation: register %q: %v", tag, err))
	}
}

// Struct validates v against its struct tags and returns the first problem
func Struct(v any) error {
	errs := structErrors(v)
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errs[0])
}

func structErrors(v any) []error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return []error{err}
	}

	out := make([]error, 0, len(validationErrs))
	for _, e := range validationErrs {
		out = append(out, formatFieldError(e))
	}
	return out
}

// formatFieldError converts a validator error to a user-friendly message
func formatFieldError(e validator.FieldError) error {
	field := e.Namespace()
	// drop the root struct name
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}

	switch e.Tag() {
	case "required":
		return fmt.Errorf("%s: field is required", field)
	case "min", "gte":
		return fmt.Errorf("%s: must be at least %s", field, e.Param())
	case "max", "lte":
		return fmt.Errorf("%s: must not exceed %s", field, e.Param())
	case "oneof":
		return fmt.Errorf("%s: must be one of [%s]", field, e.Param())
	case "dn":
		return fmt.Errorf("%s: %q is not a valid DN", field, e.Value())
	case "loglevel":
		return fmt.Errorf("%s: unknown log level %q", field, e.Value())
	case "hostname_port":
		return fmt.Errorf("%s: %q is not a host:port address", field, e.Value())
	case "url":
		return fmt.Errorf("%s: %q is not a URL", field, e.Value())
	default:
		return fmt.Errorf("%s: validation failed (%s)", field, e.Tag())
	}
}
