package prompts

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"text/template"
)

// maxContractChars keeps prompts inside small local model context windows.
const maxContractChars = 4000

// PromptVariables are the fields templates may reference.
type PromptVariables struct {
	ContractName string
	ContractCode string
	ToolFindings []string
	Context      string
	PriceData    string
}

var (
	templateCacheMu sync.Mutex
	templateCache   = map[string]*template.Template{}
)

func templateKey(templateContent string) string {
	sum := sha256.Sum256([]byte(templateContent))
	return hex.EncodeToString(sum[:])
}

// BuildPrompt renders templateContent with variables, caching parsed templates
// by content hash.
func BuildPrompt(templateContent string, variables interface{}) (string, error) {
	key := templateKey(templateContent)
	templateCacheMu.Lock()
	tmpl := templateCache[key]
	templateCacheMu.Unlock()

	if tmpl == nil {
		parsed, err := template.New("prompt").Parse(templateContent)
		if err != nil {
			return "", fmt.Errorf("failed to parse template: %w", err)
		}

		templateCacheMu.Lock()
		if templateCache[key] == nil {
			if len(templateCache) >= 64 {
				templateCache = map[string]*template.Template{}
			}
			templateCache[key] = parsed
		}
		tmpl = templateCache[key]
		templateCacheMu.Unlock()
	}

	var result strings.Builder
	if err := tmpl.Execute(&result, variables); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return result.String(), nil
}

// NewPromptVariables truncates the contract code and keeps at most ten tool
// findings, each cut to 100 characters.
func NewPromptVariables(name, code string, toolFindings []string) *PromptVariables {
	if len(code) > maxContractChars {
		code = code[:maxContractChars]
	}
	if len(toolFindings) > 10 {
		toolFindings = toolFindings[:10]
	}
	trimmed := make([]string, len(toolFindings))
	for i, f := range toolFindings {
		if len(f) > 100 {
			f = f[:100]
		}
		trimmed[i] = f
	}
	return &PromptVariables{
		ContractName: name,
		ContractCode: code,
		ToolFindings: trimmed,
	}
}
