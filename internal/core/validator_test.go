package core

import (
	"errors"
	"log/slog"
	"os"
	"testing"

	"sitescore/internal/types"
)

// testLogger returns a logger that only prints errors.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type testSiteRequest struct {
	Latitude  *float64 `json:"latitude" validate:"required,lat"`
	Longitude *float64 `json:"longitude" validate:"required,lon"`
	Year      *int     `json:"year,omitempty" validate:"omitempty,solar_year"`
	Month     *int     `json:"month,omitempty" validate:"omitempty,calendar_month"`
}

func (r testSiteRequest) ValidationWarnings() []string {
	if r.Year != nil && *r.Year > 2024 {
		return []string{"year is past the observed history"}
	}
	return nil
}

type testNamedStruct struct {
	Name string `json:"name" validate:"required,min=3"`
}

func f64(v float64) *float64 { return &v }
func intp(v int) *int        { return &v }

func TestValidationResult_IsValid(t *testing.T) {
	t.Run("empty result is valid", func(t *testing.T) {
		if !(ValidationResult{}).IsValid() {
			t.Error("expected empty ValidationResult to be valid")
		}
	})

	t.Run("result with errors is not valid", func(t *testing.T) {
		r := ValidationResult{Errors: []ValidationError{{Field: "latitude", Code: "x", Message: "x"}}}
		if r.IsValid() {
			t.Error("expected ValidationResult with errors to be invalid")
		}
	})

	t.Run("result with only warnings is valid", func(t *testing.T) {
		r := ValidationResult{Warnings: []string{"extrapolated"}}
		if !r.IsValid() {
			t.Error("expected ValidationResult with only warnings to be valid")
		}
	})
}

func TestNewValidator(t *testing.T) {
	v := NewValidator(testLogger())
	if v == nil || v.validate == nil || v.logger == nil {
		t.Fatal("NewValidator returned an incomplete validator")
	}
	if NewValidator(nil).logger == nil {
		t.Error("nil logger should fall back to the default logger")
	}
}

func TestValidateStruct_Success(t *testing.T) {
	v := NewValidator(testLogger())
	cases := []testSiteRequest{
		{Latitude: f64(0), Longitude: f64(0)},
		{Latitude: f64(-90), Longitude: f64(180)},
		{Latitude: f64(12.97), Longitude: f64(77.59), Year: intp(1981), Month: intp(12)},
	}
	for _, c := range cases {
		if err := v.ValidateStruct(c); err != nil {
			t.Errorf("ValidateStruct(%+v) = %v, want nil", c, err)
		}
	}
}

func TestValidateStruct_Failure_ReturnsAppError(t *testing.T) {
	tests := []struct {
		name      string
		input     testSiteRequest
		wantCode  types.ErrorCode
		wantField string
	}{
		{"missing latitude", testSiteRequest{Longitude: f64(1)}, types.ErrCodeValidationMissingField, "latitude"},
		{"latitude out of range", testSiteRequest{Latitude: f64(90.5), Longitude: f64(1)}, types.ErrCodeValidationInvalidLat, "latitude"},
		{"longitude out of range", testSiteRequest{Latitude: f64(1), Longitude: f64(-181)}, types.ErrCodeValidationInvalidLon, "longitude"},
		{"year too early", testSiteRequest{Latitude: f64(1), Longitude: f64(1), Year: intp(1980)}, types.ErrCodeValidationInvalidYear, "year"},
		{"month zero", testSiteRequest{Latitude: f64(1), Longitude: f64(1), Month: intp(0)}, types.ErrCodeValidationInvalidMonth, "month"},
		{"month thirteen", testSiteRequest{Latitude: f64(1), Longitude: f64(1), Month: intp(13)}, types.ErrCodeValidationInvalidMonth, "month"},
	}

	v := NewValidator(testLogger())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateStruct(tt.input)
			var appErr *types.AppError
			if !errors.As(err, &appErr) {
				t.Fatalf("expected *types.AppError, got %v", err)
			}
			if appErr.Code != tt.wantCode {
				t.Errorf("Code = %s, want %s", appErr.Code, tt.wantCode)
			}
			if appErr.HTTPStatus() != 400 {
				t.Errorf("HTTPStatus = %d, want 400", appErr.HTTPStatus())
			}
			ve, ok := appErr.Details["validation_errors"].([]ValidationError)
			if !ok || len(ve) == 0 {
				t.Fatalf("validation_errors = %#v", appErr.Details["validation_errors"])
			}
			if ve[0].Field != tt.wantField {
				t.Errorf("Field = %q, want %q", ve[0].Field, tt.wantField)
			}
		})
	}
}

func TestValidateStruct_CollectsEveryField(t *testing.T) {
	err := NewValidator(testLogger()).ValidateStruct(testSiteRequest{})
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %v", err)
	}
	ve := appErr.Details["validation_errors"].([]ValidationError)
	if len(ve) != 2 {
		t.Fatalf("got %d errors, want 2: %+v", len(ve), ve)
	}
}

func TestValidateStruct_BuiltinTagFallsBackToGenericCode(t *testing.T) {
	err := NewValidator(testLogger()).ValidateStruct(testNamedStruct{Name: "ab"})
	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeValidationFailed {
		t.Fatalf("err = %v, want %s", err, types.ErrCodeValidationFailed)
	}
}

func TestValidateStruct_NonStruct(t *testing.T) {
	if err := NewValidator(testLogger()).ValidateStruct(42); err == nil {
		t.Fatal("expected an error for a non-struct value")
	}
}

func TestValidateStructWithWarnings_Valid(t *testing.T) {
	v := NewValidator(testLogger())
	res, err := v.ValidateStructWithWarnings(testSiteRequest{Latitude: f64(1), Longitude: f64(1), Year: intp(2030)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Warnings) != 1 {
		t.Errorf("Warnings = %v, want one warning", res.Warnings)
	}
}

func TestValidateStructWithWarnings_Invalid(t *testing.T) {
	v := NewValidator(testLogger())
	res, err := v.ValidateStructWithWarnings(testSiteRequest{Latitude: f64(100), Longitude: f64(1), Year: intp(2030)})
	if err == nil {
		t.Fatal("expected error")
	}
	if res.IsValid() {
		t.Error("result should carry the errors")
	}
	if len(res.Warnings) != 0 {
		t.Errorf("warnings should not be reported for invalid input, got %v", res.Warnings)
	}
}

func TestTagToErrorCode(t *testing.T) {
	tests := map[string]types.ErrorCode{
		"required":       types.ErrCodeValidationMissingField,
		"lat":            types.ErrCodeValidationInvalidLat,
		"lon":            types.ErrCodeValidationInvalidLon,
		"solar_year":     types.ErrCodeValidationInvalidYear,
		"calendar_month": types.ErrCodeValidationInvalidMonth,
		"min":            types.ErrCodeValidationFailed,
	}
	for tag, want := range tests {
		if got := tagToErrorCode(tag); got != want {
			t.Errorf("tagToErrorCode(%q) = %s, want %s", tag, got, want)
		}
	}
}
