package service

import (
	"fmt"
	"strings"
	"time"

	"taxcallback/internal/validation"
)

// Kind identifies one of the callback submission types.
type Kind string

const (
	KindGSTReturn         Kind = "gst-return"
	KindFormCS            Kind = "form-cs"
	KindCommissionRecords Kind = "commission-records"
	KindDonationRecords   Kind = "donation-records"
	KindEStamping         Kind = "e-stamping"
)

// DefaultKind is used by validate-only requests that name no type.
const DefaultKind = KindGSTReturn

// MockTagSuffix marks records produced by the mock generators.
const MockTagSuffix = "-TEST"

// FieldRule is a kind-specific format check on a required string field. The
// returned value replaces the raw one in the normalized payload.
type FieldRule struct {
	Field string
	Check func(raw string) (string, error)
}

// NumberField is an optional non-negative numeric field.
type NumberField struct {
	Name    string
	Integer bool
}

// Schema describes one callback kind: what it requires, how it is checked,
// how the acknowledgement reads and what its mock payload looks like.
type Schema struct {
	Kind        Kind
	Tag         string
	Path        string
	MockPath    string
	Title       string
	Description string

	Required    []string
	Rules       []FieldRule
	Numbers     []NumberField
	Passthrough []string

	message func(status string, p map[string]any) string
	details func(f *amountFormatter, p map[string]any) []string
	mock    func(now time.Time) map[string]any
}

// OptionalFields lists numeric and pass-through fields in documentation order.
func (s *Schema) OptionalFields() []string {
	var out []string
	for _, n := range s.Numbers {
		out = append(out, n.Name)
	}
	return append(out, s.Passthrough...)
}

// Message renders the acknowledgement text for a normalized payload.
func (s *Schema) Message(p map[string]any) string {
	return s.message(str(p, "submissionStatus"), p)
}

// normalize runs the validation pipeline. The submission id is returned as
// soon as it has been read so error responses can echo it.
func (s *Schema) normalize(data map[string]any) (map[string]any, string, error) {
	if err := validation.RequireFields(data, s.Required); err != nil {
		return nil, "", err
	}

	submissionID, err := validation.String(data, "submissionId")
	if err != nil {
		return nil, "", err
	}
	out := map[string]any{"submissionId": submissionID}

	rawStatus, err := validation.String(data, "submissionStatus")
	if err != nil {
		return nil, submissionID, err
	}
	status, err := validation.NormalizeStatus(rawStatus)
	if err != nil {
		return nil, submissionID, err
	}
	out["submissionStatus"] = status

	for _, rule := range s.Rules {
		raw, err := validation.String(data, rule.Field)
		if err != nil {
			return nil, submissionID, err
		}
		v, err := rule.Check(raw)
		if err != nil {
			return nil, submissionID, err
		}
		out[rule.Field] = v
	}

	for _, name := range s.Required {
		if _, done := out[name]; done {
			continue
		}
		v, err := validation.String(data, name)
		if err != nil {
			return nil, submissionID, err
		}
		out[name] = v
	}

	for _, nf := range s.Numbers {
		n, err := validation.CheckNumber(data, nf.Name, nf.Integer)
		if err != nil {
			return nil, submissionID, err
		}
		out[nf.Name] = n.JSONValue()
	}

	for _, name := range s.Passthrough {
		out[name] = data[name]
	}
	if out["errors"] == nil {
		out["errors"] = []any{}
	}
	return out, submissionID, nil
}

var baseRequired = []string{"submissionId", "submissionStatus", "submissionDateTime", "companyUEN"}

var uenRule = FieldRule{Field: "companyUEN", Check: validation.ValidateUEN}

var schemas = []*Schema{
	{
		Kind:        KindGSTReturn,
		Tag:         "GST-RETURN",
		Path:        "/iras/gst-return/callback",
		MockPath:    "/test/mock-gst-callback",
		Title:       "GST",
		Description: "GST Return submission callback (F5, F8)",
		Required:    []string{"submissionId", "submissionStatus", "formType", "submissionDateTime", "companyUEN", "taxPeriod"},
		Rules: []FieldRule{
			{Field: "formType", Check: validation.ValidateFormType},
			uenRule,
			{Field: "taxPeriod", Check: validation.ValidateTaxPeriod},
		},
		Numbers:     []NumberField{{Name: "totalTaxAmount"}},
		Passthrough: []string{"acknowledgementNumber", "errors"},
		message: func(status string, p map[string]any) string {
			subject := fmt.Sprintf("GST %s submission for period %s", str(p, "formType"), str(p, "taxPeriod"))
			return statusMessage(status, subject+" processed successfully", subject+" failed", subject)
		},
		details: func(f *amountFormatter, p map[string]any) []string {
			var out []string
			if ack := str(p, "acknowledgementNumber"); ack != "" {
				out = append(out, "ACK Number: "+ack)
			}
			if v, ok := positive(p, "totalTaxAmount"); ok {
				out = append(out, "Total Tax: "+f.amount(v))
			}
			return out
		},
		mock: func(now time.Time) map[string]any {
			stamp := now.Format("20060102150405")
			return map[string]any{
				"submissionId":          "GST" + stamp,
				"submissionStatus":      validation.StatusSuccess,
				"formType":              "F5",
				"submissionDateTime":    now.Format(time.RFC3339),
				"companyUEN":            "201234567D",
				"taxPeriod":             "202412",
				"acknowledgementNumber": "ACK" + stamp,
				"totalTaxAmount":        15000.50,
				"errors":                []any{},
			}
		},
	},
	{
		Kind:        KindFormCS,
		Tag:         "FORM-CS",
		Path:        "/iras/form-cs/callback",
		MockPath:    "/test/mock-form-cs-callback",
		Title:       "Form CS",
		Description: "Corporate Secretary form submission callback",
		Required:    append(append([]string{}, baseRequired...), "formVersion", "filingType"),
		Rules:       []FieldRule{uenRule},
		Passthrough: []string{"effectiveDate", "acknowledgementNumber", "errors"},
		message: func(status string, p map[string]any) string {
			subject := fmt.Sprintf("Form CS (%s) submission", str(p, "filingType"))
			return statusMessage(status, subject+" processed successfully", subject+" failed", subject)
		},
		details: func(_ *amountFormatter, p map[string]any) []string {
			out := []string{"Filing Type: " + str(p, "filingType")}
			if d := str(p, "effectiveDate"); d != "" {
				out = append(out, "Effective Date: "+d)
			}
			return out
		},
		mock: func(now time.Time) map[string]any {
			stamp := now.Format("20060102150405")
			return map[string]any{
				"submissionId":          "CS" + stamp,
				"submissionStatus":      validation.StatusSuccess,
				"submissionDateTime":    now.Format(time.RFC3339),
				"companyUEN":            "201234567D",
				"formVersion":           "2025.1",
				"filingType":            "ANNUAL_RETURN",
				"effectiveDate":         "2025-01-01",
				"acknowledgementNumber": "ACK" + stamp,
				"errors":                []any{},
			}
		},
	},
	{
		Kind:        KindCommissionRecords,
		Tag:         "COMMISSION-RECORDS",
		Path:        "/iras/commission-records/callback",
		MockPath:    "/test/mock-commission-records-callback",
		Title:       "Commission records",
		Description: "Commission records submission callback",
		Required:    append(append([]string{}, baseRequired...), "recordType", "recordPeriod"),
		Rules:       []FieldRule{uenRule},
		Numbers:     []NumberField{{Name: "totalRecords", Integer: true}, {Name: "totalCommissionAmount"}},
		Passthrough: []string{"acknowledgementNumber", "errors"},
		message: func(status string, p map[string]any) string {
			records := fmt.Sprintf("Commission records (%s)", str(p, "recordType"))
			return statusMessage(status,
				fmt.Sprintf("%s for %s processed successfully", records, str(p, "recordPeriod")),
				records+" submission failed",
				records+" submission")
		},
		details: func(f *amountFormatter, p map[string]any) []string {
			out := []string{"Record Type: " + str(p, "recordType"), "Period: " + str(p, "recordPeriod")}
			if v, ok := positive(p, "totalRecords"); ok {
				out = append(out, "Total Records: "+f.count(v))
			}
			if v, ok := positive(p, "totalCommissionAmount"); ok {
				out = append(out, "Total Commission: "+f.amount(v))
			}
			return out
		},
		mock: func(now time.Time) map[string]any {
			stamp := now.Format("20060102150405")
			return map[string]any{
				"submissionId":          "CR" + stamp,
				"submissionStatus":      validation.StatusSuccess,
				"submissionDateTime":    now.Format(time.RFC3339),
				"companyUEN":            "201234567D",
				"recordType":            "COMMISSION",
				"recordPeriod":          "2024",
				"totalRecords":          125,
				"totalCommissionAmount": 48250.75,
				"acknowledgementNumber": "ACK" + stamp,
				"errors":                []any{},
			}
		},
	},
	{
		Kind:        KindDonationRecords,
		Tag:         "DONATION-RECORDS",
		Path:        "/iras/donation-records/callback",
		MockPath:    "/test/mock-donation-records-callback",
		Title:       "Donation records",
		Description: "Donation records submission callback",
		Required:    append(append([]string{}, baseRequired...), "donationType", "donationPeriod"),
		Rules:       []FieldRule{uenRule},
		Numbers:     []NumberField{{Name: "totalDonations", Integer: true}, {Name: "totalDonationAmount"}},
		Passthrough: []string{"acknowledgementNumber", "errors"},
		message: func(status string, p map[string]any) string {
			records := fmt.Sprintf("Donation records (%s)", str(p, "donationType"))
			return statusMessage(status,
				fmt.Sprintf("%s for %s processed successfully", records, str(p, "donationPeriod")),
				records+" submission failed",
				records+" submission")
		},
		details: func(f *amountFormatter, p map[string]any) []string {
			out := []string{"Donation Type: " + str(p, "donationType"), "Period: " + str(p, "donationPeriod")}
			if v, ok := positive(p, "totalDonations"); ok {
				out = append(out, "Total Donations: "+f.count(v))
			}
			if v, ok := positive(p, "totalDonationAmount"); ok {
				out = append(out, "Total Amount: "+f.amount(v))
			}
			return out
		},
		mock: func(now time.Time) map[string]any {
			stamp := now.Format("20060102150405")
			return map[string]any{
				"submissionId":          "DR" + stamp,
				"submissionStatus":      validation.StatusSuccess,
				"submissionDateTime":    now.Format(time.RFC3339),
				"companyUEN":            "201234567D",
				"donationType":          "QUALIFYING",
				"donationPeriod":        "2024",
				"totalDonations":        42,
				"totalDonationAmount":   12500.00,
				"acknowledgementNumber": "ACK" + stamp,
				"errors":                []any{},
			}
		},
	},
	{
		Kind:        KindEStamping,
		Tag:         "E-STAMPING",
		Path:        "/iras/e-stamping/callback",
		MockPath:    "/test/mock-e-stamping-callback",
		Title:       "E-stamping",
		Description: "E-stamping submission callback",
		Required:    append(append([]string{}, baseRequired...), "documentType"),
		Rules:       []FieldRule{uenRule},
		Numbers:     []NumberField{{Name: "stampDuty"}},
		Passthrough: []string{"stampCertificateNumber", "acknowledgementNumber", "errors"},
		message: func(status string, p map[string]any) string {
			subject := "E-stamping for " + str(p, "documentType")
			return statusMessage(status, subject+" processed successfully", subject+" submission failed", subject+" submission")
		},
		details: func(f *amountFormatter, p map[string]any) []string {
			out := []string{"Document Type: " + str(p, "documentType")}
			if v, ok := positive(p, "stampDuty"); ok {
				out = append(out, "Stamp Duty: "+f.amount(v))
			}
			if c := str(p, "stampCertificateNumber"); c != "" {
				out = append(out, "Certificate Number: "+c)
			}
			return out
		},
		mock: func(now time.Time) map[string]any {
			stamp := now.Format("20060102150405")
			return map[string]any{
				"submissionId":           "ES" + stamp,
				"submissionStatus":       validation.StatusSuccess,
				"submissionDateTime":     now.Format(time.RFC3339),
				"companyUEN":             "201234567D",
				"documentType":           "LEASE_AGREEMENT",
				"stampDuty":              1250.00,
				"stampCertificateNumber": "SC" + stamp,
				"acknowledgementNumber":  "ACK" + stamp,
				"errors":                 []any{},
			}
		},
	},
}

var schemasByKind = func() map[Kind]*Schema {
	m := make(map[Kind]*Schema, len(schemas))
	for _, s := range schemas {
		m[s.Kind] = s
	}
	return m
}()

// Schemas returns every callback schema in route order.
func Schemas() []*Schema {
	return append([]*Schema(nil), schemas...)
}

// Lookup finds the schema for kind.
func Lookup(kind Kind) (*Schema, bool) {
	s, ok := schemasByKind[kind]
	return s, ok
}

// statusMessage picks the success, failure or in-flight wording. In-flight
// states read "<pending> is <status>" with the status lower-cased.
func statusMessage(status, success, failed, pending string) string {
	switch status {
	case validation.StatusSuccess:
		return success
	case validation.StatusFailed:
		return failed
	default:
		return pending + " is " + strings.ToLower(status)
	}
}

func str(p map[string]any, key string) string {
	if s, ok := p[key].(string); ok {
		return s
	}
	return ""
}

func positive(p map[string]any, key string) (float64, bool) {
	switch v := p[key].(type) {
	case float64:
		return v, v > 0
	case int64:
		return float64(v), v > 0
	}
	return 0, false
}
