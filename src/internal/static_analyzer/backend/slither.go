package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

type SlitherDetector struct {
	Check       string `json:"check"`
	Impact      string `json:"impact"`
	Confidence  string `json:"confidence"`
	Description string `json:"description"`
	Elements    []struct {
		Name          string `json:"name"`
		SourceMapping struct {
			Lines            []int  `json:"lines"`
			FilenameRelative string `json:"filename_relative"`
		} `json:"source_mapping"`
	} `json:"elements"`
	FirstMarkdownElement string `json:"first_markdown_element"`
}

type slitherOutput struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Results struct {
		Detectors []SlitherDetector `json:"detectors"`
	} `json:"results"`
}

type SlitherBackend struct {
	path    string
	timeout time.Duration
	args    []string
	runner  Runner
}

func NewSlitherBackend(path string, timeout time.Duration, args []string, runner Runner) *SlitherBackend {
	if path == "" {
		path = "slither"
	}
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &SlitherBackend{path: path, timeout: timeout, args: args, runner: runner}
}

// Detect runs `slither <path> --json -` and returns its detector list. Slither
// exits non-zero whenever it reports findings, so the exit status only matters
// when stdout is not a JSON report.
func (b *SlitherBackend) Detect(ctx context.Context, contractPath string) ([]SlitherDetector, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	args := append([]string{contractPath, "--json", "-", "--exclude-dependencies"}, b.args...)
	stdout, stderr, runErr := b.runner.Run(ctx, b.path, args...)
	if errors.Is(runErr, exec.ErrNotFound) {
		return nil, fmt.Errorf("slither not found, install with: pip install slither-analyzer")
	}
	if ctx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("slither analysis timed out after %s", b.timeout)
	}

	var out slitherOutput
	if err := json.Unmarshal(stdout, &out); err != nil {
		if runErr != nil {
			return nil, fmt.Errorf("slither execution failed: %w, stderr: %s", runErr, truncate(stderr))
		}
		return nil, fmt.Errorf("parse slither output failed: %w", err)
	}
	if !out.Success && out.Error != "" {
		return nil, fmt.Errorf("slither error: %s", out.Error)
	}
	return out.Results.Detectors, nil
}

// Location returns "line N" (or "file:line N") from the first element mapping.
func (d SlitherDetector) Location() string {
	for _, el := range d.Elements {
		if len(el.SourceMapping.Lines) == 0 {
			continue
		}
		loc := fmt.Sprintf("line %d", el.SourceMapping.Lines[0])
		if el.SourceMapping.FilenameRelative != "" {
			loc = el.SourceMapping.FilenameRelative + ":" + loc
		}
		return loc
	}
	return d.FirstMarkdownElement
}

func (b *SlitherBackend) Close() error {
	return nil
}
