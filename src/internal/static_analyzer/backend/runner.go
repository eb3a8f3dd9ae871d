package backend

import (
	"bytes"
	"context"
	"os/exec"
)

// Runner executes an external tool. Tests swap in canned output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

func truncate(b []byte) string {
	s := string(b)
	if len(s) > 4096 {
		s = s[:4096] + "...(truncated)"
	}
	return s
}
