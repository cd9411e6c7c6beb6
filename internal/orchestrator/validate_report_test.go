package orchestrator

import "testing"

func testReportSchema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []any{"summary", "confidence"},
		"properties": map[string]any{
			"summary":    map[string]any{"type": "string"},
			"confidence": map[string]any{"type": "number"},
		},
	}
}

func TestValidateReportAcceptsConformingReport(t *testing.T) {
	report := map[string]any{"summary": "looked fine", "confidence": 0.8}
	errs, err := ValidateReport(report, testReportSchema())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(errs) != 0 {
		t.Fatalf("errs = %v, want none", errs)
	}
}

func TestValidateReportRejectsMissingRequiredField(t *testing.T) {
	report := map[string]any{"summary": "looked fine"}
	errs, err := ValidateReport(report, testReportSchema())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(errs) == 0 {
		t.Fatalf("errs = empty, want at least one violation")
	}
}

func TestValidateReportRejectsWrongType(t *testing.T) {
	report := map[string]any{"summary": "looked fine", "confidence": "high"}
	errs, err := ValidateReport(report, testReportSchema())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(errs) == 0 {
		t.Fatalf("errs = empty, want at least one violation")
	}
}

func TestValidateReportNilSchemaAcceptsAnything(t *testing.T) {
	errs, err := ValidateReport(map[string]any{"anything": true}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(errs) != 0 {
		t.Fatalf("errs = %v, want none", errs)
	}
}
