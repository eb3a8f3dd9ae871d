package finding

import "testing"

func TestParseSeverity(t *testing.T) {
	tests := []struct {
		in   string
		want Severity
	}{
		{"critical", SeverityCritical},
		{" HIGH ", SeverityHigh},
		{"Moderate", SeverityMedium},
		{"low", SeverityLow},
		{"Informational", SeverityInformational},
		{"info", SeverityInformational},
		{"", SeverityLow},
		{"unknown", SeverityLow},
		{"高危", SeverityHigh},
	}
	for _, tt := range tests {
		if got := ParseSeverity(tt.in); got != tt.want {
			t.Errorf("ParseSeverity(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestMax(t *testing.T) {
	if got := Max(SeverityNone, SeverityLow); got != SeverityLow {
		t.Errorf("Max(none, low) = %s", got)
	}
	if got := Max(SeverityCritical, SeverityHigh); got != SeverityCritical {
		t.Errorf("Max(critical, high) = %s", got)
	}
}
