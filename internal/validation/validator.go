package validation

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// Canonical submission statuses, in the order they are reported to callers.
const (
	StatusSuccess    = "SUCCESS"
	StatusFailed     = "FAILED"
	StatusProcessing = "PROCESSING"
	StatusPending    = "PENDING"
	StatusRejected   = "REJECTED"
	StatusCancelled  = "CANCELLED"
)

// AllowedStatuses lists every accepted submissionStatus value.
var AllowedStatuses = []string{
	StatusSuccess,
	StatusFailed,
	StatusProcessing,
	StatusPending,
	StatusRejected,
	StatusCancelled,
}

// AllowedFormTypes lists the accepted GST return form types.
var AllowedFormTypes = []string{"F5", "F8"}

var (
	uenPattern       = regexp.MustCompile(`^\d{8}[A-Z]$|^\d{9}[A-Z]$`)
	taxPeriodPattern = regexp.MustCompile(`^[0-9]{6}$`)
)

// Failure is a client-caused rejection of a callback payload. Field is empty
// for payload-level problems such as missing fields or a non-JSON body.
type Failure struct {
	Message string
	Field   string
}

func (f *Failure) Error() string {
	return f.Message
}

// Fail returns a payload-level failure.
func Fail(message string) *Failure {
	return &Failure{Message: message}
}

// FieldFail returns a failure attributed to a single field.
func FieldFail(field, message string) *Failure {
	return &Failure{Message: message, Field: field}
}

// AsFailure reports whether err is (or wraps) a validation failure.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// IsBlank reports whether a decoded JSON value counts as "not provided":
// absent, null or the empty string.
func IsBlank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

// RequireFields fails listing every name in names that is blank in data.
func RequireFields(data map[string]any, names []string) error {
	var missing []string
	for _, name := range names {
		if IsBlank(data[name]) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return Fail("Missing required fields: " + strings.Join(missing, ", "))
	}
	return nil
}

// String reads field from data as a string. Absent and null values yield "".
func String(data map[string]any, field string) (string, error) {
	v, ok := data[field]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", FieldFail(field, field+" must be a string")
	}
	return s, nil
}

// NormalizeStatus upper-cases raw and checks it against AllowedStatuses.
func NormalizeStatus(raw string) (string, error) {
	if raw == "" {
		return "", FieldFail("submissionStatus", "submissionStatus is required")
	}
	status := strings.ToUpper(raw)
	for _, allowed := range AllowedStatuses {
		if status == allowed {
			return status, nil
		}
	}
	return "", FieldFail("submissionStatus",
		"Invalid status. Must be one of: "+strings.Join(AllowedStatuses, ", "))
}

// ValidateUEN checks the 8+1 or 9+1 digit/letter UEN shape. The trailing
// letter must already be upper-case; the value is returned unchanged.
func ValidateUEN(raw string) (string, error) {
	if raw == "" {
		return "", FieldFail("companyUEN", "companyUEN is required")
	}
	if !uenPattern.MatchString(raw) {
		return "", FieldFail("companyUEN", "Invalid UEN format. Expected format: 12345678A or 123456789A")
	}
	return raw, nil
}

// ValidateFormType upper-cases raw and requires F5 or F8.
func ValidateFormType(raw string) (string, error) {
	if raw == "" {
		return "", FieldFail("formType", "formType is required")
	}
	formType := strings.ToUpper(raw)
	for _, allowed := range AllowedFormTypes {
		if formType == allowed {
			return formType, nil
		}
	}
	return "", FieldFail("formType", "Invalid formType. Must be F5 or F8")
}

// ValidateTaxPeriod checks a YYYYMM period with year in [2000, 2100].
func ValidateTaxPeriod(raw string) (string, error) {
	if raw == "" {
		return "", FieldFail("taxPeriod", "taxPeriod is required")
	}
	if !taxPeriodPattern.MatchString(raw) {
		return "", FieldFail("taxPeriod", "Invalid taxPeriod format. Expected format: YYYYMM (e.g., 202412)")
	}
	year, _ := strconv.Atoi(raw[:4])
	month, _ := strconv.Atoi(raw[4:])
	if year < 2000 || year > 2100 {
		return "", FieldFail("taxPeriod", "Invalid year in taxPeriod")
	}
	if month < 1 || month > 12 {
		return "", FieldFail("taxPeriod", "Invalid month in taxPeriod")
	}
	return raw, nil
}
