package service

import (
	"fmt"
	"log"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"taxcallback/internal/validation"
	"taxcallback/storage/store"
)

// amountFormatter renders amounts and counts with thousands separators.
type amountFormatter struct {
	printer *message.Printer
}

func newAmountFormatter() *amountFormatter {
	return &amountFormatter{printer: message.NewPrinter(language.English)}
}

// amount renders v as "$15,000.50".
func (f *amountFormatter) amount(v float64) string {
	return f.printer.Sprintf("$%.2f", v)
}

func (f *amountFormatter) count(v float64) string {
	return f.printer.Sprintf("%d", int64(v))
}

// reportAccepted writes the operator view of an accepted callback.
func reportAccepted(logger *log.Logger, f *amountFormatter, schema *Schema, rec store.Record) {
	p := rec.Payload
	logger.Printf("Service: %s callback received - Request ID: %s", rec.Endpoint, rec.RequestID)
	logger.Printf("Service:    Submission ID: %s", rec.SubmissionID())
	logger.Printf("Service:    Status: %s", rec.Status)
	logger.Printf("Service:    Company UEN: %s", orNA(str(p, "companyUEN")))
	logger.Printf("Service:    Client IP: %s", rec.ClientAddress)

	switch rec.Status {
	case validation.StatusSuccess:
		logger.Printf("Service: %s submission successful", schema.Title)
		for _, line := range schema.details(f, p) {
			logger.Printf("Service:    %s", line)
		}
	case validation.StatusFailed:
		logger.Printf("Service: %s submission failed", schema.Title)
		if errs := joinErrors(p["errors"]); errs != "" {
			logger.Printf("Service:    Errors: %s", errs)
		}
	default:
		logger.Printf("Service: %s submission status: %s", schema.Title, rec.Status)
	}
}

func joinErrors(v any) string {
	list, ok := v.([]any)
	if !ok || len(list) == 0 {
		return ""
	}
	parts := make([]string, 0, len(list))
	for _, e := range list {
		parts = append(parts, fmt.Sprint(e))
	}
	return strings.Join(parts, ", ")
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
