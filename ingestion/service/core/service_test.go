package service

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"taxcallback/config"
	"taxcallback/internal/models"
	"taxcallback/internal/validation"
	"taxcallback/storage/store"
)

type fakeProducer struct {
	mu      sync.Mutex
	batches [][]*models.CallbackEvent
	err     error
}

func (f *fakeProducer) PublishBatch(_ context.Context, msgs []*models.CallbackEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, msgs)
	return f.err
}

func (f *fakeProducer) Close() error { return nil }

func (f *fakeProducer) events() []*models.CallbackEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.CallbackEvent
	for _, b := range f.batches {
		out = append(out, b...)
	}
	return out
}

func newTestService(t *testing.T, p *fakeProducer) (*Service, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore(store.DefaultMaxLogs)
	logger := log.New(io.Discard, "", 0)
	var svc *Service
	if p != nil {
		svc = NewService(st, p, logger, config.BatchProcessorConfig{BatchSize: 2, BatchTimeout: 10 * time.Millisecond, FlushChannelBuffer: 4})
	} else {
		svc = NewService(st, nil, logger, config.BatchProcessorConfig{})
	}
	svc.now = func() time.Time { return time.Date(2025, 1, 15, 14, 30, 0, 0, time.UTC) }
	t.Cleanup(svc.Close)
	return svc, st
}

func gstPayload() map[string]any {
	return map[string]any{
		"submissionId":          "GST202501001234",
		"submissionStatus":      "success",
		"formType":              "f5",
		"submissionDateTime":    "2025-01-15T14:30:00+08:00",
		"companyUEN":            "201234567D",
		"taxPeriod":             "202412",
		"acknowledgementNumber": "ACK123456789",
		"totalTaxAmount":        15000.50,
	}
}

func basePayload(extra map[string]any) map[string]any {
	p := map[string]any{
		"submissionId":       "SUB-1",
		"submissionStatus":   "SUCCESS",
		"submissionDateTime": "2025-01-15T14:30:00+08:00",
		"companyUEN":         "12345678A",
	}
	for k, v := range extra {
		p[k] = v
	}
	return p
}

func TestSubmitGSTReturnNormalizesAndRecords(t *testing.T) {
	svc, st := newTestService(t, nil)

	ack, err := svc.Submit(context.Background(), KindGSTReturn, gstPayload(), Origin{ClientIP: "10.0.0.9", Method: "POST"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ack.Status != "received" || ack.SubmissionID != "GST202501001234" || len(ack.RequestID) != 8 {
		t.Fatalf("unexpected ack %+v", ack)
	}
	if ack.Message != "GST F5 submission for period 202412 processed successfully" {
		t.Fatalf("unexpected message %q", ack.Message)
	}

	recs := st.Recent(10)
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	rec := recs[0]
	if rec.Endpoint != "GST-RETURN" || rec.Status != "SUCCESS" || rec.ClientAddress != "10.0.0.9" {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.RequestID != ack.RequestID || !rec.Timestamp.Equal(ack.Timestamp) {
		t.Fatalf("ack and record disagree: %+v vs %+v", ack, rec)
	}
	if rec.Payload["formType"] != "F5" || rec.Payload["totalTaxAmount"] != 15000.50 {
		t.Fatalf("unexpected payload %+v", rec.Payload)
	}
	if errs, ok := rec.Payload["errors"].([]any); !ok || len(errs) != 0 {
		t.Fatalf("expected errors to default to an empty list, got %#v", rec.Payload["errors"])
	}
}

func TestSubmitRejectionLeavesStoreUntouched(t *testing.T) {
	tests := []struct {
		name         string
		kind         Kind
		payload      map[string]any
		wantMessage  string
		wantField    string
		wantSubmitID string
	}{
		{
			name:        "all required missing",
			kind:        KindGSTReturn,
			payload:     map[string]any{},
			wantMessage: "Missing required fields: submissionId, submissionStatus, formType, submissionDateTime, companyUEN, taxPeriod",
		},
		{
			name:        "empty string counts as missing",
			kind:        KindEStamping,
			payload:     basePayload(map[string]any{"documentType": ""}),
			wantMessage: "Missing required fields: documentType",
		},
		{
			name:         "bad status",
			kind:         KindFormCS,
			payload:      basePayload(map[string]any{"submissionStatus": "DONE", "formVersion": "1", "filingType": "X"}),
			wantMessage:  "Invalid status. Must be one of: SUCCESS, FAILED, PROCESSING, PENDING, REJECTED, CANCELLED",
			wantField:    "submissionStatus",
			wantSubmitID: "SUB-1",
		},
		{
			name:         "lower-case uen suffix",
			kind:         KindFormCS,
			payload:      basePayload(map[string]any{"companyUEN": "12345678a", "formVersion": "1", "filingType": "X"}),
			wantMessage:  "Invalid UEN format. Expected format: 12345678A or 123456789A",
			wantField:    "companyUEN",
			wantSubmitID: "SUB-1",
		},
		{
			name: "tax period month",
			kind: KindGSTReturn,
			payload: func() map[string]any {
				p := gstPayload()
				p["taxPeriod"] = "202413"
				return p
			}(),
			wantMessage:  "Invalid month in taxPeriod",
			wantField:    "taxPeriod",
			wantSubmitID: "GST202501001234",
		},
		{
			name: "form type checked before uen",
			kind: KindGSTReturn,
			payload: func() map[string]any {
				p := gstPayload()
				p["formType"] = "F7"
				p["companyUEN"] = "bad"
				return p
			}(),
			wantMessage:  "Invalid formType. Must be F5 or F8",
			wantField:    "formType",
			wantSubmitID: "GST202501001234",
		},
		{
			name:         "integer count rejects text",
			kind:         KindCommissionRecords,
			payload:      basePayload(map[string]any{"recordType": "A", "recordPeriod": "2024", "totalRecords": "many"}),
			wantMessage:  "totalRecords must be a valid integer",
			wantField:    "totalRecords",
			wantSubmitID: "SUB-1",
		},
		{
			name:         "negative amount",
			kind:         KindDonationRecords,
			payload:      basePayload(map[string]any{"donationType": "A", "donationPeriod": "2024", "totalDonationAmount": -1.0}),
			wantMessage:  "totalDonationAmount must be non-negative",
			wantField:    "totalDonationAmount",
			wantSubmitID: "SUB-1",
		},
		{
			name:         "non-string field",
			kind:         KindEStamping,
			payload:      basePayload(map[string]any{"documentType": 42.0}),
			wantMessage:  "documentType must be a string",
			wantField:    "documentType",
			wantSubmitID: "SUB-1",
		},
		{
			name:        "non-string submission id",
			kind:        KindEStamping,
			payload:     basePayload(map[string]any{"submissionId": 7.0, "documentType": "LEASE"}),
			wantMessage: "submissionId must be a string",
			wantField:   "submissionId",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc, st := newTestService(t, nil)
			_, err := svc.Submit(context.Background(), tc.kind, tc.payload, Origin{})
			if err == nil {
				t.Fatal("expected rejection")
			}
			var subErr *SubmissionError
			if !errors.As(err, &subErr) {
				t.Fatalf("expected *SubmissionError, got %T", err)
			}
			if subErr.SubmissionID != tc.wantSubmitID {
				t.Fatalf("submission id = %q, want %q", subErr.SubmissionID, tc.wantSubmitID)
			}
			f, ok := validation.AsFailure(err)
			if !ok {
				t.Fatalf("expected validation failure, got %v", err)
			}
			if f.Message != tc.wantMessage || f.Field != tc.wantField {
				t.Fatalf("failure = %q/%q, want %q/%q", f.Message, f.Field, tc.wantMessage, tc.wantField)
			}
			if st.Count() != 0 {
				t.Fatalf("store should be untouched, has %d records", st.Count())
			}
		})
	}
}

func TestMessagesFollowStatus(t *testing.T) {
	tests := []struct {
		kind    Kind
		payload map[string]any
		status  string
		want    string
	}{
		{KindGSTReturn, gstPayload(), "FAILED", "GST F5 submission for period 202412 failed"},
		{KindGSTReturn, gstPayload(), "pending", "GST F5 submission for period 202412 is pending"},
		{KindFormCS, basePayload(map[string]any{"formVersion": "2025.1", "filingType": "ANNUAL_RETURN"}), "SUCCESS", "Form CS (ANNUAL_RETURN) submission processed successfully"},
		{KindFormCS, basePayload(map[string]any{"formVersion": "2025.1", "filingType": "ANNUAL_RETURN"}), "PROCESSING", "Form CS (ANNUAL_RETURN) submission is processing"},
		{KindCommissionRecords, basePayload(map[string]any{"recordType": "COMMISSION", "recordPeriod": "2024"}), "SUCCESS", "Commission records (COMMISSION) for 2024 processed successfully"},
		{KindCommissionRecords, basePayload(map[string]any{"recordType": "COMMISSION", "recordPeriod": "2024"}), "FAILED", "Commission records (COMMISSION) submission failed"},
		{KindDonationRecords, basePayload(map[string]any{"donationType": "QUALIFYING", "donationPeriod": "2024"}), "SUCCESS", "Donation records (QUALIFYING) for 2024 processed successfully"},
		{KindDonationRecords, basePayload(map[string]any{"donationType": "QUALIFYING", "donationPeriod": "2024"}), "CANCELLED", "Donation records (QUALIFYING) submission is cancelled"},
		{KindEStamping, basePayload(map[string]any{"documentType": "LEASE"}), "SUCCESS", "E-stamping for LEASE processed successfully"},
		{KindEStamping, basePayload(map[string]any{"documentType": "LEASE"}), "FAILED", "E-stamping for LEASE submission failed"},
		{KindEStamping, basePayload(map[string]any{"documentType": "LEASE"}), "REJECTED", "E-stamping for LEASE submission is rejected"},
	}

	for _, tc := range tests {
		t.Run(string(tc.kind)+"/"+tc.status, func(t *testing.T) {
			svc, _ := newTestService(t, nil)
			tc.payload["submissionStatus"] = tc.status
			ack, err := svc.Submit(context.Background(), tc.kind, tc.payload, Origin{})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ack.Message != tc.want {
				t.Fatalf("message = %q, want %q", ack.Message, tc.want)
			}
		})
	}
}

func TestOptionalNumbersAreTagged(t *testing.T) {
	svc, _ := newTestService(t, nil)

	out, err := svc.Validate(KindCommissionRecords, basePayload(map[string]any{
		"recordType":            "A",
		"recordPeriod":          "2024",
		"totalRecords":          "12",
		"totalCommissionAmount": nil,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["totalRecords"] != int64(12) {
		t.Fatalf("totalRecords = %#v, want int64(12)", out["totalRecords"])
	}
	if v, present := out["totalCommissionAmount"]; !present || v != nil {
		t.Fatalf("absent amount should be rendered as null, got %#v (present=%v)", v, present)
	}

	if _, err := svc.Validate(KindCommissionRecords, basePayload(map[string]any{
		"recordType": "A", "recordPeriod": "2024", "totalRecords": 1.5,
	})); err == nil {
		t.Fatal("expected non-integral count to be rejected")
	}
	if _, err := svc.Validate(KindEStamping, basePayload(map[string]any{
		"documentType": "LEASE", "stampDuty": true,
	})); err == nil || !strings.Contains(err.Error(), "stampDuty must be a valid number") {
		t.Fatalf("expected bool stamp duty to be rejected, got %v", err)
	}
}

func TestValidateNeverAppends(t *testing.T) {
	svc, st := newTestService(t, nil)

	out, err := svc.Validate(KindGSTReturn, gstPayload())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["submissionStatus"] != "SUCCESS" {
		t.Fatalf("expected normalized status, got %v", out["submissionStatus"])
	}
	if st.Count() != 0 {
		t.Fatalf("validate must not append, store has %d", st.Count())
	}

	_, err = svc.Validate(Kind("payroll"), gstPayload())
	f, ok := validation.AsFailure(err)
	if !ok || f.Field != "type" {
		t.Fatalf("expected type failure for unknown kind, got %v", err)
	}
}

func TestSubmitMockEveryKind(t *testing.T) {
	for _, schema := range Schemas() {
		t.Run(string(schema.Kind), func(t *testing.T) {
			svc, st := newTestService(t, nil)
			res, err := svc.SubmitMock(context.Background(), schema.Kind, Origin{ClientIP: "127.0.0.1"})
			if err != nil {
				t.Fatalf("mock rejected: %v", err)
			}
			if res.CallbackResponse == nil || res.CallbackResponse.Status != "received" {
				t.Fatalf("unexpected callback response %+v", res.CallbackResponse)
			}
			if res.MockData["submissionId"] != res.CallbackResponse.SubmissionID {
				t.Fatalf("mock data and ack disagree")
			}
			if !strings.HasPrefix(res.Message, "Mock "+schema.Title) {
				t.Fatalf("unexpected message %q", res.Message)
			}
			recs := st.Recent(1)
			if len(recs) != 1 || recs[0].Endpoint != schema.Tag+"-TEST" {
				t.Fatalf("expected one %s-TEST record, got %+v", schema.Tag, recs)
			}
		})
	}
}

func TestSubmitMockGSTUsesFixedSample(t *testing.T) {
	svc, _ := newTestService(t, nil)
	res, err := svc.SubmitMock(context.Background(), KindGSTReturn, Origin{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.MockData["submissionId"] != "GST20250115143000" || res.MockData["totalTaxAmount"] != 15000.50 {
		t.Fatalf("unexpected mock data %+v", res.MockData)
	}
	if res.CallbackResponse.Message != "GST F5 submission for period 202412 processed successfully" {
		t.Fatalf("unexpected message %q", res.CallbackResponse.Message)
	}
}

func TestAcceptedCallbacksReachEventStream(t *testing.T) {
	p := &fakeProducer{}
	svc, _ := newTestService(t, p)

	for i := 0; i < 3; i++ {
		if _, err := svc.Submit(context.Background(), KindGSTReturn, gstPayload(), Origin{ClientIP: "10.0.0.1"}); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	if _, err := svc.Submit(context.Background(), KindGSTReturn, map[string]any{}, Origin{}); err == nil {
		t.Fatal("expected rejection")
	}
	svc.Close()

	events := p.events()
	if len(events) != 3 {
		t.Fatalf("expected 3 published events, got %d", len(events))
	}
	ev := events[0]
	if ev.Endpoint != "GST-RETURN" || ev.SubmissionID != "GST202501001234" || ev.CompanyUEN != "201234567D" || ev.ClientIP != "10.0.0.1" {
		t.Fatalf("unexpected event %+v", ev)
	}
	if ev.Message != "GST F5 submission for period 202412 processed successfully" {
		t.Fatalf("unexpected event message %q", ev.Message)
	}
}

func TestPublishFailureDoesNotFailSubmission(t *testing.T) {
	p := &fakeProducer{err: errors.New("broker down")}
	svc, st := newTestService(t, p)

	if _, err := svc.Submit(context.Background(), KindGSTReturn, gstPayload(), Origin{}); err != nil {
		t.Fatalf("submission should not depend on the stream: %v", err)
	}
	svc.Close()
	if st.Count() != 1 {
		t.Fatalf("expected record to be kept, got %d", st.Count())
	}
}

func TestAmountFormatter(t *testing.T) {
	f := newAmountFormatter()
	if got := f.amount(15000.5); got != "$15,000.50" {
		t.Fatalf("amount = %q", got)
	}
	if got := f.count(1250); got != "1,250" {
		t.Fatalf("count = %q", got)
	}
}

func TestClearReportsRemoved(t *testing.T) {
	svc, _ := newTestService(t, nil)
	for i := 0; i < 4; i++ {
		if _, err := svc.SubmitMock(context.Background(), KindEStamping, Origin{}); err != nil {
			t.Fatalf("mock: %v", err)
		}
	}
	if n := svc.Clear(); n != 4 {
		t.Fatalf("Clear() = %d, want 4", n)
	}
	if svc.Count() != 0 || svc.Capacity() != store.DefaultMaxLogs {
		t.Fatalf("unexpected count/capacity %d/%d", svc.Count(), svc.Capacity())
	}
}
