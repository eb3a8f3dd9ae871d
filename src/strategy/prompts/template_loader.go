package prompts

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
)

//go:embed templates/*.tmpl
var builtin embed.FS

const (
	TemplateVulnerability = "vulnerability"
	TemplateEconomic      = "economic"
)

// LoadTemplate prefers an on-disk override under strategy/prompts/templates
// (relative to cwd or src/) and falls back to the embedded copy.
func LoadTemplate(name string) (string, error) {
	file := name + ".tmpl"
	for _, dir := range []string{
		filepath.Join("strategy", "prompts", "templates"),
		filepath.Join("src", "strategy", "prompts", "templates"),
	} {
		if content, err := os.ReadFile(filepath.Join(dir, file)); err == nil {
			return string(content), nil
		}
	}

	content, err := builtin.ReadFile("templates/" + file)
	if err != nil {
		return "", fmt.Errorf("unknown prompt template %q: %w", name, err)
	}
	return string(content), nil
}
