package parser

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/VectorBits/econaudit/src/internal/finding"
)

// AnalysisResult is the normalized model output. Models that answer with
// critical_vulnerabilities or overall_assessment are mapped onto the same
// fields.
type AnalysisResult struct {
	Vulnerabilities         []Vulnerability `json:"vulnerabilities"`
	CriticalVulnerabilities []Vulnerability `json:"critical_vulnerabilities,omitempty"`
	RiskScore               float64         `json:"-"`
	RawRiskScore            interface{}     `json:"risk_score,omitempty"`
	Summary                 string          `json:"summary,omitempty"`
	OverallAssessment       string          `json:"overall_assessment,omitempty"`
	Recommendations         []string        `json:"-"`
	RawRecommendations      json.RawMessage `json:"recommendations,omitempty"`
	RawResponse             string          `json:"-"`
	ParseError              string          `json:"parse_error,omitempty"`
	AnalysisDuration        time.Duration   `json:"-"`
}

type Vulnerability struct {
	Type        string `json:"type"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
	Location    string `json:"location,omitempty"`
	LineNumbers []int  `json:"line_numbers,omitempty"`
}

type Parser struct {
	jsonExtractor *regexp.Regexp
}

func NewParser() *Parser {
	return &Parser{
		jsonExtractor: regexp.MustCompile("(?s)```(?:json)?\\s*({.*?})\\s*```"),
	}
}

// Parse tries the raw response, a fenced block, then the first balanced
// object. A response with no usable JSON yields an empty result with
// ParseError set rather than an error.
func (p *Parser) Parse(response string) (*AnalysisResult, error) {
	candidates := []string{response, p.cleanResponse(response)}
	if obj, ok := extractFirstJSONObject(response); ok {
		candidates = append(candidates, obj)
	}

	for _, c := range candidates {
		var result AnalysisResult
		if err := json.Unmarshal([]byte(c), &result); err == nil {
			normalizeAnalysisResult(&result)
			result.RawResponse = response
			return &result, nil
		}

		var vulnsOnly []Vulnerability
		if err := json.Unmarshal([]byte(c), &vulnsOnly); err == nil {
			result.Vulnerabilities = vulnsOnly
			normalizeAnalysisResult(&result)
			result.RawResponse = response
			return &result, nil
		}
	}

	result := &AnalysisResult{
		RawResponse: response,
		ParseError:  "failed to parse JSON from model response",
	}
	normalizeAnalysisResult(result)
	return result, nil
}

func (p *Parser) cleanResponse(response string) string {
	matches := p.jsonExtractor.FindStringSubmatch(response)
	if len(matches) > 1 {
		return strings.TrimSpace(matches[1])
	}

	response = strings.TrimPrefix(strings.TrimSpace(response), "```json")
	response = strings.TrimPrefix(response, "```")
	response = strings.TrimSuffix(response, "```")
	return strings.TrimSpace(response)
}

func extractFirstJSONObject(s string) (string, bool) {
	start := -1
	depth := 0
	inString := false
	escape := false

	for i := 0; i < len(s); i++ {
		ch := s[i]

		if inString {
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start != -1 {
				return s[start : i+1], true
			}
		}
	}

	return "", false
}

func normalizeAnalysisResult(r *AnalysisResult) {
	if len(r.Vulnerabilities) == 0 && len(r.CriticalVulnerabilities) > 0 {
		r.Vulnerabilities = r.CriticalVulnerabilities
	}
	r.CriticalVulnerabilities = nil
	if r.Vulnerabilities == nil {
		r.Vulnerabilities = []Vulnerability{}
	}

	if strings.TrimSpace(r.Summary) == "" {
		r.Summary = r.OverallAssessment
	}
	if strings.TrimSpace(r.Summary) == "" {
		r.Summary = "No summary provided"
	}

	r.RiskScore = parseRiskScore(r.RawRiskScore)
	switch {
	case r.RiskScore < 0:
		r.RiskScore = 0
	case r.RiskScore > 100:
		r.RiskScore = 100
	}

	r.Recommendations = parseRecommendations(r.RawRecommendations)
	for i := range r.Vulnerabilities {
		normalizeVulnerability(&r.Vulnerabilities[i])
	}
}

// parseRiskScore accepts numbers and numeric strings like "85" or "85%".
func parseRiskScore(v interface{}) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case string:
		f, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(x), "%"), 64)
		if err == nil {
			return f
		}
	}
	return 0
}

// parseRecommendations accepts plain strings or {issue, solution} objects.
func parseRecommendations(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return []string{}
	}

	var plain []string
	if err := json.Unmarshal(raw, &plain); err == nil {
		return plain
	}

	var structured []struct {
		Priority string `json:"priority"`
		Issue    string `json:"issue"`
		Solution string `json:"solution"`
		Title    string `json:"title"`
	}
	if err := json.Unmarshal(raw, &structured); err != nil {
		return []string{}
	}

	out := make([]string, 0, len(structured))
	for _, s := range structured {
		issue := s.Issue
		if issue == "" {
			issue = s.Title
		}
		text := strings.TrimSpace(strings.Join([]string{issue, s.Solution}, ": "))
		text = strings.Trim(text, ": ")
		if s.Priority != "" && text != "" {
			text = fmt.Sprintf("[%s] %s", strings.ToLower(s.Priority), text)
		}
		if text != "" {
			out = append(out, text)
		}
	}
	return out
}

func normalizeVulnerability(v *Vulnerability) {
	if strings.TrimSpace(v.Type) == "" {
		v.Type = "Unknown"
	}
	v.Severity = string(finding.ParseSeverity(v.Severity))
	if strings.TrimSpace(v.Description) == "" {
		v.Description = "No description provided"
	}
	if v.Location == "" && len(v.LineNumbers) > 0 {
		v.Location = fmt.Sprintf("line %d", v.LineNumbers[0])
	}
}

// Findings converts the parsed vulnerabilities for risk aggregation.
func (r *AnalysisResult) Findings(source string) []finding.Finding {
	out := make([]finding.Finding, 0, len(r.Vulnerabilities))
	for _, v := range r.Vulnerabilities {
		out = append(out, finding.Finding{
			Type:        v.Type,
			Severity:    finding.Severity(v.Severity),
			Description: v.Description,
			Location:    v.Location,
			Source:      source,
		})
	}
	return out
}

// SchemaInstruction is appended to every prompt so models answer in the
// shape Parse expects.
func SchemaInstruction() string {
	return `Output ONLY one JSON object:
{"risk_score":0,"summary":"...","recommendations":["..."],"vulnerabilities":[{"type":"...","severity":"critical|high|medium|low|informational","description":"...","location":"..."}]}
No markdown, no extra text. Use [] for empty lists.`
}
