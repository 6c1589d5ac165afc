package core

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"sitescore/internal/types"
)

// Custom validation tags registered by NewValidator.
const (
	tagLatitude  = "lat"
	tagLongitude = "lon"
	tagYear      = "solar_year"
	tagMonth     = "calendar_month"
)

// ValidationError describes a single failed constraint.
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationResult collects hard errors and non-blocking warnings.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []string
}

// IsValid reports whether no hard errors were collected.
func (r ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// Warner is implemented by request structs that can flag inputs which are
// accepted but worth surfacing, such as a prediction year past the observed
// history.
type Warner interface {
	ValidationWarnings() []string
}

// Validator wraps go-playground/validator with the coordinate and calendar
// tags used by request bodies.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a Validator with the custom tags registered. Field
// names in errors use the json tag so they match the request body.
func NewValidator(logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})

	// Registration only fails for empty tags or nil funcs.
	_ = v.RegisterValidation(tagLatitude, floatInRange(types.MinLat, types.MaxLat))
	_ = v.RegisterValidation(tagLongitude, floatInRange(types.MinLon, types.MaxLon))
	_ = v.RegisterValidation(tagYear, intInRange(types.MinYear, types.MaxYear))
	_ = v.RegisterValidation(tagMonth, intInRange(types.MinMonth, types.MaxMonth))

	return &Validator{validate: v, logger: logger}
}

func floatInRange(lo, hi float64) validator.Func {
	return func(fl validator.FieldLevel) bool {
		f := fl.Field()
		switch f.Kind() {
		case reflect.Float32, reflect.Float64:
			v := f.Float()
			return v >= lo && v <= hi
		case reflect.Int, reflect.Int32, reflect.Int64:
			v := float64(f.Int())
			return v >= lo && v <= hi
		}
		return false
	}
}

func intInRange(lo, hi int) validator.Func {
	return func(fl validator.FieldLevel) bool {
		f := fl.Field()
		switch f.Kind() {
		case reflect.Int, reflect.Int32, reflect.Int64:
			v := f.Int()
			return v >= int64(lo) && v <= int64(hi)
		}
		return false
	}
}

// ValidateStruct validates s and returns an AppError describing every failed
// field. The error code is taken from the first failure.
func (v *Validator) ValidateStruct(s any) error {
	res := v.collect(s)
	if res.IsValid() {
		return nil
	}
	return v.toAppError(res)
}

// ValidateStructWithWarnings validates s and also gathers warnings from
// structs implementing Warner. Warnings are only reported for valid input.
func (v *Validator) ValidateStructWithWarnings(s any) (ValidationResult, error) {
	res := v.collect(s)
	if !res.IsValid() {
		return res, v.toAppError(res)
	}
	if w, ok := s.(Warner); ok {
		res.Warnings = append(res.Warnings, w.ValidationWarnings()...)
	}
	return res, nil
}

func (v *Validator) collect(s any) ValidationResult {
	var res ValidationResult
	err := v.validate.Struct(s)
	if err == nil {
		return res
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		// InvalidValidationError: the caller passed a non-struct.
		v.logger.Error("validator misuse", "error", err)
		res.Errors = append(res.Errors, ValidationError{
			Code:    string(types.ErrCodeValidationFailed),
			Message: err.Error(),
		})
		return res
	}

	for _, fe := range fieldErrs {
		res.Errors = append(res.Errors, ValidationError{
			Field:   fe.Field(),
			Code:    string(tagToErrorCode(fe.Tag())),
			Message: fieldMessage(fe),
		})
	}
	return res
}

func (v *Validator) toAppError(res ValidationResult) error {
	first := res.Errors[0]
	return types.NewAppErrorWithDetails(
		types.ErrorCode(first.Code),
		first.Message,
		nil,
		map[string]any{"validation_errors": res.Errors},
	)
}

// tagToErrorCode maps a failed validation tag to the error code clients see.
func tagToErrorCode(tag string) types.ErrorCode {
	switch tag {
	case "required":
		return types.ErrCodeValidationMissingField
	case tagLatitude:
		return types.ErrCodeValidationInvalidLat
	case tagLongitude:
		return types.ErrCodeValidationInvalidLon
	case tagYear:
		return types.ErrCodeValidationInvalidYear
	case tagMonth:
		return types.ErrCodeValidationInvalidMonth
	default:
		return types.ErrCodeValidationFailed
	}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case tagLatitude:
		return fmt.Sprintf("%s must be between %.0f and %.0f", fe.Field(), types.MinLat, types.MaxLat)
	case tagLongitude:
		return fmt.Sprintf("%s must be between %.0f and %.0f", fe.Field(), types.MinLon, types.MaxLon)
	case tagYear:
		return fmt.Sprintf("%s must be between %d and %d", fe.Field(), types.MinYear, types.MaxYear)
	case tagMonth:
		return fmt.Sprintf("%s must be between %d and %d", fe.Field(), types.MinMonth, types.MaxMonth)
	default:
		return fmt.Sprintf("%s failed the %q constraint", fe.Field(), fe.Tag())
	}
}
