package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var mobilePattern = regexp.MustCompile(`^[6-9][0-9]{9}$`)

// New returns a validator with the project rules registered and json/form
// names used in error output.
func New() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		for _, tag := range []string{"json", "form"} {
			name := strings.SplitN(field.Tag.Get(tag), ",", 2)[0]
			if name != "" && name != "-" {
				return name
			}
		}
		return field.Name
	})
	_ = v.RegisterValidation("indian_mobile", func(fl validator.FieldLevel) bool {
		return mobilePattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("percentage", func(fl validator.FieldLevel) bool {
		switch fl.Field().Kind() {
		case reflect.Float32, reflect.Float64:
			f := fl.Field().Float()
			return f >= 0 && f <= 100
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			i := fl.Field().Int()
			return i >= 0 && i <= 100
		}
		return false
	})
	return v
}

// Describe turns validator errors into a single readable sentence.
func Describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s %s", fe.Field(), rule(fe)))
	}
	return strings.Join(parts, "; ")
}

func rule(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "indian_mobile":
		return "must be a 10 digit mobile number starting with 6-9"
	case "percentage":
		return "must be between 0 and 100"
	case "url":
		return "must be a valid URL"
	case "eqfield":
		return "must match " + strings.ToLower(fe.Param())
	case "oneof":
		return "must be one of " + fe.Param()
	default:
		return "is invalid (" + fe.Tag() + ")"
	}
}
