package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

type MythrilIssue struct {
	Title       string `json:"title"`
	SWCID       string `json:"swc-id"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
	Filename    string `json:"filename"`
	LineNo      int    `json:"lineno"`
	Code        string `json:"code"`
}

// jsonv2 wraps issues in a list of reports with structured descriptions.
type mythrilV2Report struct {
	Issues []struct {
		SWCID       string `json:"swcID"`
		SWCTitle    string `json:"swcTitle"`
		Severity    string `json:"severity"`
		Description struct {
			Head string `json:"head"`
			Tail string `json:"tail"`
		} `json:"description"`
		Extra struct {
			LineNo int `json:"lineno"`
		} `json:"extra"`
	} `json:"issues"`
}

type MythrilBackend struct {
	path        string
	timeout     time.Duration
	solcVersion string
	args        []string
	runner      Runner
}

func NewMythrilBackend(path string, timeout time.Duration, solcVersion string, args []string, runner Runner) *MythrilBackend {
	if path == "" {
		path = "myth"
	}
	if timeout <= 0 {
		timeout = 600 * time.Second
	}
	if solcVersion == "" {
		solcVersion = "0.8.0"
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &MythrilBackend{path: path, timeout: timeout, solcVersion: solcVersion, args: args, runner: runner}
}

func (b *MythrilBackend) Detect(ctx context.Context, contractPath string) ([]MythrilIssue, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	args := append([]string{
		"analyze", contractPath,
		"--solv", b.solcVersion,
		"--max-depth", "128",
		"--execution-timeout", "300",
		"-o", "jsonv2",
	}, b.args...)

	stdout, stderr, runErr := b.runner.Run(ctx, b.path, args...)
	if errors.Is(runErr, exec.ErrNotFound) {
		return nil, fmt.Errorf("mythril not found, install with: pip install mythril")
	}
	if ctx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("mythril analysis timed out after %s", b.timeout)
	}

	issues, err := parseMythril(stdout)
	if err != nil {
		if runErr != nil {
			return nil, fmt.Errorf("mythril execution failed: %w, stderr: %s", runErr, truncate(stderr))
		}
		return nil, err
	}
	return issues, nil
}

func parseMythril(stdout []byte) ([]MythrilIssue, error) {
	trimmed := strings.TrimSpace(string(stdout))
	if trimmed == "" {
		return nil, fmt.Errorf("mythril produced no output")
	}

	if strings.HasPrefix(trimmed, "[") {
		var reports []mythrilV2Report
		if err := json.Unmarshal([]byte(trimmed), &reports); err != nil {
			return nil, fmt.Errorf("parse mythril output failed: %w", err)
		}
		var out []MythrilIssue
		for _, r := range reports {
			for _, is := range r.Issues {
				issue := MythrilIssue{
					Title:       is.SWCTitle,
					SWCID:       is.SWCID,
					Severity:    is.Severity,
					Description: strings.TrimSpace(is.Description.Head + " " + is.Description.Tail),
					LineNo:      is.Extra.LineNo,
				}
				out = append(out, issue)
			}
		}
		return out, nil
	}

	var legacy struct {
		Issues []MythrilIssue `json:"issues"`
	}
	if err := json.Unmarshal([]byte(trimmed), &legacy); err != nil {
		return nil, fmt.Errorf("parse mythril output failed: %w", err)
	}
	return legacy.Issues, nil
}

func (b *MythrilBackend) Close() error {
	return nil
}
