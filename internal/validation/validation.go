// Package validation checks and normalizes request input before any entity
// is loaded or authorized. Failures are reported as a field to message map.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/returnordie/til-i-allt-sub001/internal/metrics"
	"github.com/returnordie/til-i-allt-sub001/internal/utils"
)

// Errors maps a field name to its first failure message.
type Errors map[string]string

func (e Errors) Error() string {
	fields := make([]string, 0, len(e))
	for f := range e {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+e[f])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add records msg for field unless the field already failed.
func (e Errors) Add(field, msg string) {
	if _, ok := e[field]; !ok {
		e[field] = msg
	}
}

func (e Errors) Has(field string) bool {
	_, ok := e[field]
	return ok
}

// AsErrors extracts Errors from err.
func AsErrors(err error) (Errors, bool) {
	var errs Errors
	if errors.As(err, &errs) {
		return errs, true
	}
	return nil, false
}

// Single builds a one-field failure.
func Single(field, msg string) Errors {
	return Errors{field: msg}
}

var (
	usernamePattern = regexp.MustCompile(`^[a-z0-9_]+$`)
	slugPattern     = regexp.MustCompile(`^[a-z0-9-]+$`)
	bracketIndex    = regexp.MustCompile(`\[(\d+)\]`)
)

var validate = newValidate()

func newValidate() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	mustRegister(v, "username", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	})
	mustRegister(v, "slug", func(fl validator.FieldLevel) bool {
		return slugPattern.MatchString(fl.Field().String())
	})
	mustRegister(v, "sixid", func(fl validator.FieldLevel) bool {
		_, err := utils.ParseSixID(fl.Field().String())
		return err == nil
	})
	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register %s validation: %v", tag, err))
	}
}

// structErrors runs the struct tags of in and converts failures.
func structErrors(in any) Errors {
	errs := Errors{}
	err := validate.Struct(in)
	if err == nil {
		return errs
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		errs.Add("_", err.Error())
		return errs
	}
	for _, fe := range verrs {
		field := bracketIndex.ReplaceAllString(fe.Field(), ".$1")
		errs.Add(field, message(field, fe))
	}
	return errs
}

func label(field string) string {
	return strings.ReplaceAll(field, "_", " ")
}

func message(field string, fe validator.FieldError) string {
	name := label(field)
	kind := fe.Kind()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("The %s field is required.", name)
	case "min", "gte":
		switch kind {
		case reflect.String:
			return fmt.Sprintf("The %s must be at least %s characters.", name, fe.Param())
		case reflect.Slice, reflect.Map:
			return fmt.Sprintf("The %s must have at least %s items.", name, fe.Param())
		}
		return fmt.Sprintf("The %s must be at least %s.", name, fe.Param())
	case "max", "lte":
		switch kind {
		case reflect.String:
			return fmt.Sprintf("The %s may not be greater than %s characters.", name, fe.Param())
		case reflect.Slice, reflect.Map:
			return fmt.Sprintf("The %s may not have more than %s items.", name, fe.Param())
		}
		return fmt.Sprintf("The %s may not be greater than %s.", name, fe.Param())
	case "len":
		return fmt.Sprintf("The %s must be %s characters.", name, fe.Param())
	case "email":
		return fmt.Sprintf("The %s must be a valid email address.", name)
	case "oneof":
		return fmt.Sprintf("The selected %s is invalid.", name)
	case "eqfield":
		return fmt.Sprintf("The %s confirmation does not match.", name)
	case "alpha":
		return fmt.Sprintf("The %s may only contain letters.", name)
	case "username":
		return fmt.Sprintf("The %s may only contain lowercase letters, numbers and underscores.", name)
	case "slug":
		return fmt.Sprintf("The %s may only contain lowercase letters, numbers and dashes.", name)
	case "sixid":
		return fmt.Sprintf("The %s is not a valid id.", name)
	case "datetime":
		return fmt.Sprintf("The %s does not match the format %s.", name, fe.Param())
	}
	return fmt.Sprintf("The %s format is invalid.", name)
}

// result returns nil for an empty set and counts failures under op otherwise.
func result(op string, errs Errors) error {
	if len(errs) == 0 {
		return nil
	}
	metrics.ValidationFailures.WithLabelValues(op).Inc()
	return errs
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeUsername trims and lower-cases a username.
func NormalizeUsername(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
