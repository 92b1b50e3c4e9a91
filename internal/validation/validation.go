// Package validation checks request structs against their validate tags and
// reports failures as VALIDATION_FAILURE errors listing every offending field.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/example/casenotes/internal/errs"
)

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their JSON names so details match the wire format.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
}

// Struct validates v. A nil error means every constraint held.
func Struct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return errs.Wrap(errs.ValidationFailure, err, "invalid request")
	}

	details := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		details = append(details, describe(fe))
	}
	return errs.Validation("invalid request").WithDetails(details...)
}

// Slice validates each element of items, prefixing details with the index.
func Slice[T any](items []T) error {
	var details []string
	for i := range items {
		err := Struct(&items[i])
		if err == nil {
			continue
		}
		for _, d := range errs.DetailsOf(err) {
			details = append(details, fmt.Sprintf("[%d].%s", i, d))
		}
		if len(errs.DetailsOf(err)) == 0 {
			details = append(details, fmt.Sprintf("[%d]: %v", i, err))
		}
	}
	if len(details) == 0 {
		return nil
	}
	return errs.Validation("invalid request").WithDetails(details...)
}

func describe(fe validator.FieldError) string {
	field := fe.Namespace()
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}
	if fe.Param() != "" {
		return fmt.Sprintf("%s: %s=%s", field, fe.Tag(), fe.Param())
	}
	return fmt.Sprintf("%s: %s", field, fe.Tag())
}
