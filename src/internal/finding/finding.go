package finding

import "strings"

type Severity string

const (
	SeverityCritical      Severity = "critical"
	SeverityHigh          Severity = "high"
	SeverityMedium        Severity = "medium"
	SeverityLow           Severity = "low"
	SeverityInformational Severity = "informational"
	// SeverityNone is only produced by profit classification, never by analyzers.
	SeverityNone Severity = "none"
)

// Levels lists the histogram severities from most to least severe.
var Levels = []Severity{
	SeverityCritical,
	SeverityHigh,
	SeverityMedium,
	SeverityLow,
	SeverityInformational,
}

// Finding is the normalized record every analyzer reports.
type Finding struct {
	Type        string   `json:"type"`
	Severity    Severity `json:"severity"`
	Description string   `json:"description"`
	Location    string   `json:"location,omitempty"`
	Source      string   `json:"source,omitempty"`
}

// ParseSeverity maps free-form severity labels onto the five histogram levels.
// Empty or unrecognized labels fall back to low.
func ParseSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical", "严重":
		return SeverityCritical
	case "high", "高危", "高":
		return SeverityHigh
	case "medium", "moderate", "中危", "中":
		return SeverityMedium
	case "low", "低危", "低":
		return SeverityLow
	case "informational", "info", "information", "optimization":
		return SeverityInformational
	default:
		return SeverityLow
	}
}

// Rank orders severities for comparison; higher is more severe.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 5
	case SeverityHigh:
		return 4
	case SeverityMedium:
		return 3
	case SeverityLow:
		return 2
	case SeverityInformational:
		return 1
	default:
		return 0
	}
}

func (s Severity) String() string {
	return string(s)
}

// Max returns the more severe of a and b.
func Max(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}
