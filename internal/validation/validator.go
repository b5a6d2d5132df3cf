package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"printshop/internal/apperror"
	"printshop/internal/pricing"
)

var (
	usernamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{2,31}$`)
	branchPattern   = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,31}$`)
)

// Validator checks request DTOs against their validate tags.
type Validator struct {
	validate *validator.Validate
}

// New creates a validator with the print shop rules registered.
func New() *Validator {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	v := &Validator{validate: validate}
	v.registerRules()
	return v
}

func (v *Validator) registerRules() {
	v.validate.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	})

	v.validate.RegisterValidation("branch", func(fl validator.FieldLevel) bool {
		return branchPattern.MatchString(fl.Field().String())
	})

	v.validate.RegisterValidation("pricing_mode", func(fl validator.FieldLevel) bool {
		return pricing.ValidMode(pricing.Mode(fl.Field().String()))
	})

	v.validate.RegisterValidation("discount_type", func(fl validator.FieldLevel) bool {
		return pricing.ValidDiscount(pricing.DiscountType(fl.Field().String()))
	})
}

// Struct validates s. Failures are reported as apperror.ErrInvalidInput
// naming the first offending field.
func (v *Validator) Struct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return apperror.ErrInvalidInput.WithMessage(err.Error())
	}
	fe := fieldErrs[0]
	msg := fmt.Sprintf("%s failed rule %q", fieldPath(fe.Namespace()), fe.Tag())
	if fe.Param() != "" {
		msg = fmt.Sprintf("%s failed rule %q (%s)", fieldPath(fe.Namespace()), fe.Tag(), fe.Param())
	}
	return apperror.ErrInvalidInput.WithMessage(msg)
}

// fieldPath drops the top-level struct name from a validator namespace.
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

var std = New()

// Struct validates s with the shared validator.
func Struct(s interface{}) error {
	return std.Struct(s)
}
