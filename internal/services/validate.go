package services

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ragyverse/apiserver/internal/apperr"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// validator's max counts runes; storage and bcrypt limits are in bytes.
	_ = v.RegisterValidation("maxbytes", func(fl validator.FieldLevel) bool {
		limit, err := strconv.Atoi(fl.Param())
		if err != nil {
			return false
		}
		return len(fl.Field().String()) <= limit
	})
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// validateInput maps the first failing rule onto the request error taxonomy.
func validateInput(input any) error {
	err := validate.Struct(input)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperr.ErrInvalidField.WithCause(err)
	}

	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return apperr.ErrMissingField.WithMessage("missing required field: " + fe.Field())
	case "maxbytes":
		return apperr.ErrInvalidField.WithMessage(fmt.Sprintf("%s must be at most %s bytes", fe.Field(), fe.Param()))
	case "max":
		return apperr.ErrInvalidField.WithMessage(fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param()))
	default:
		return apperr.ErrInvalidField.WithMessage("invalid " + fe.Field())
	}
}
