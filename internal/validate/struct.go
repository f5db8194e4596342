package validate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("redeemcode", func(fl validator.FieldLevel) bool {
		return ValidateCode(NormalizeCode(fl.Field().String()))
	})
	return v
}

// Struct validates request payloads by their `validate` tags and returns an
// error naming the first offending field.
func Struct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrors validator.ValidationErrors
	if errors.As(err, &fieldErrors) && len(fieldErrors) > 0 {
		fe := fieldErrors[0]
		return fmt.Errorf("field %s failed %s check", strings.ToLower(fe.Field()), fe.Tag())
	}
	return err
}
