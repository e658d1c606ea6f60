package utils

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/ttacon/libphonenumber"
	"gorm.io/datatypes"
)

const DateLayout = "2006-01-02"

var CountryCode = "IN"

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// GetValidator returns the shared validator. Decimals validate as float64 so numeric tags
// (gte, lte) work on money fields; field names in errors use the json tag.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterCustomTypeFunc(decimalTypeFunc, decimal.Decimal{})
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
		_ = validate.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
			return ValidatePhoneNumber(fl.Field().String(), CountryCode) == nil
		})
	})
	return validate
}

func decimalTypeFunc(field reflect.Value) interface{} {
	if d, ok := field.Interface().(decimal.Decimal); ok {
		f, _ := d.Float64()
		return f
	}
	return nil
}

// ValidationFields runs struct tags and returns field -> message (empty when valid).
func ValidationFields(input any) map[string]string {
	fields := make(map[string]string)
	if err := GetValidator().Struct(input); err != nil {
		for k, v := range ProcessValidationErrors(err) {
			fields[k] = v
		}
	}
	return fields
}

// ValidateStruct is ValidationFields as an error.
func ValidateStruct(input any) error {
	if fields := ValidationFields(input); len(fields) > 0 {
		return NewValidationError(fields)
	}
	return nil
}

// CheckMoney records a message when d is set and has more than two decimal places.
func CheckMoney(fields map[string]string, name string, d *decimal.Decimal) {
	if d == nil {
		return
	}
	if _, exists := fields[name]; exists {
		return
	}
	if !d.Equal(d.Round(2)) {
		fields[name] = "must have at most 2 decimal places"
	}
}

func ProcessValidationErrors(err error) map[string]string {

	errorResponse := make(map[string]string)

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		errorResponse["_"] = err.Error()
		return errorResponse
	}

	for _, ve := range validationErrors {
		errorResponse[ve.Field()] = describeTag(ve)
	}

	return errorResponse
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	case "lte":
		return "must be less than or equal to " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "datetime":
		return "must be a date in " + fe.Param() + " format"
	case "email":
		return "must be a valid email"
	case "phone":
		return "must be a valid phone number"
	case "len":
		return "must be exactly " + fe.Param() + " characters"
	case "numeric":
		return "must contain only digits"
	default:
		return fe.Tag()
	}
}

func ValidatePhoneNumber(phoneNumber, countryCode string) error {
	p, err := libphonenumber.Parse(phoneNumber, countryCode)
	if err != nil {
		return err
	}

	if !libphonenumber.IsValidNumber(p) {
		return fmt.Errorf("phone number is not valid")
	}

	return nil
}

// ParseDate parses YYYY-MM-DD into a UTC calendar date. Nil or blank input yields nil.
func ParseDate(s *string) (*datatypes.Date, error) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(*s), time.UTC)
	if err != nil {
		return nil, err
	}
	d := datatypes.Date(t)
	return &d, nil
}

// SameDate compares two optional dates by calendar day.
func SameDate(a, b *datatypes.Date) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := time.Time(*a).UTC(), time.Time(*b).UTC()
	return ta.Year() == tb.Year() && ta.Month() == tb.Month() && ta.Day() == tb.Day()
}

// SameDecimal compares two optional decimals by value (10 == 10.00).
func SameDecimal(a, b *decimal.Decimal) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// SameString compares two optional strings; nil and "" are distinct.
func SameString(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func NewString(s string) *string {
	return &s
}

func NewDecimal(d decimal.Decimal) *decimal.Decimal {
	return &d
}

func NewTrue() *bool {
	b := true
	return &b
}

func NewFalse() *bool {
	b := false
	return &b
}

// DerefString returns "" for nil.
func DerefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
