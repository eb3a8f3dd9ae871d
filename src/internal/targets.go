package internal

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// IsTargetList reports whether path names a batch file of audit targets
// rather than a contract source.
func IsTargetList(path string) bool {
	switch strings.ToLower(filepath.Ext(strings.TrimSpace(path))) {
	case ".txt", ".yaml", ".yml":
		return true
	}
	return false
}

// ReadTargets loads contract paths or addresses from a list file. YAML files
// may hold a plain list or a `targets:` key; text files take the first field of
// each non-comment line. Duplicates are dropped case-insensitively.
func ReadTargets(path string) ([]string, error) {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(path)))
	if ext == ".yaml" || ext == ".yml" {
		bs, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}

		var list []string
		if err := yaml.Unmarshal(bs, &list); err == nil && len(list) > 0 {
			return uniqueTargets(list), nil
		}

		var wrapper struct {
			Targets []string `yaml:"targets"`
		}
		if err := yaml.Unmarshal(bs, &wrapper); err != nil {
			return nil, err
		}
		return uniqueTargets(wrapper.Targets), nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		fields := strings.FieldsFunc(scanner.Text(), func(r rune) bool { return r == ',' || r == ' ' || r == '\t' })
		if len(fields) == 0 {
			continue
		}
		lines = append(lines, fields[0])
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return uniqueTargets(lines), nil
}

func uniqueTargets(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		v := strings.TrimSpace(it)
		if v == "" || strings.HasPrefix(v, "#") || strings.HasPrefix(v, "//") {
			continue
		}
		key := strings.ToLower(v)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}
