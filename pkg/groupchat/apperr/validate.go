package apperr

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their json name so messages match request bodies
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// ValidateStruct checks v's `validate` tags and converts the first failure
// into a Validation error.
func ValidateStruct(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err
	}

	fe := fieldErrs[0]
	switch fe.Tag() {
	case "required":
		return Validation("%s is required", fe.Field())
	case "max":
		return Validation("%s must be at most %s characters", fe.Field(), fe.Param())
	case "gte", "min":
		return Validation("%s must be at least %s", fe.Field(), fe.Param())
	case "lte":
		return Validation("%s must be at most %s", fe.Field(), fe.Param())
	case "oneof":
		return Validation("%s must be one of: %s", fe.Field(), fe.Param())
	default:
		return Validation("%s is invalid", fe.Field())
	}
}
