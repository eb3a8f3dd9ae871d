package static_analyzer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/VectorBits/econaudit/src/internal/finding"
	"github.com/VectorBits/econaudit/src/internal/logger"
	"github.com/VectorBits/econaudit/src/internal/static_analyzer/backend"
)

type BackendType string

const (
	BackendSlither BackendType = "slither"
	BackendMythril BackendType = "mythril"
	BackendNoOp    BackendType = "noop"
)

type AnalyzerConfig struct {
	Backend     BackendType
	Path        string
	Timeout     time.Duration
	Args        []string
	SolcVersion string
	Enabled     bool
	// Runner overrides process execution; nil uses os/exec.
	Runner backend.Runner
}

func NewAnalyzer(cfg AnalyzerConfig) (Analyzer, error) {
	if !cfg.Enabled {
		return NewNoOpAnalyzer(), nil
	}

	switch cfg.Backend {
	case BackendSlither:
		return &slitherAdapter{backend: backend.NewSlitherBackend(cfg.Path, cfg.Timeout, cfg.Args, cfg.Runner)}, nil
	case BackendMythril:
		return &mythrilAdapter{backend: backend.NewMythrilBackend(cfg.Path, cfg.Timeout, cfg.SolcVersion, cfg.Args, cfg.Runner)}, nil
	case BackendNoOp:
		return NewNoOpAnalyzer(), nil
	default:
		return nil, fmt.Errorf("unsupported backend: %s (supported: slither, mythril, noop)", cfg.Backend)
	}
}

// MapSlitherImpact shifts slither impacts one level up: a slither "High" is a
// critical finding here.
func MapSlitherImpact(impact string) finding.Severity {
	switch impact {
	case "High":
		return finding.SeverityCritical
	case "Medium":
		return finding.SeverityHigh
	case "Low":
		return finding.SeverityMedium
	case "Informational":
		return finding.SeverityLow
	case "Optimization":
		return finding.SeverityInformational
	default:
		return finding.SeverityMedium
	}
}

func MapMythrilSeverity(severity string) finding.Severity {
	switch severity {
	case "High":
		return finding.SeverityCritical
	case "Medium":
		return finding.SeverityHigh
	case "Low":
		return finding.SeverityMedium
	default:
		return finding.SeverityMedium
	}
}

type slitherAdapter struct {
	backend *backend.SlitherBackend
}

func (a *slitherAdapter) Name() string {
	return string(BackendSlither)
}

func (a *slitherAdapter) Analyze(ctx context.Context, contractPath string) ([]finding.Finding, error) {
	detectors, err := a.backend.Detect(ctx, contractPath)
	if err != nil {
		return nil, err
	}

	out := make([]finding.Finding, 0, len(detectors))
	for _, d := range detectors {
		out = append(out, finding.Finding{
			Type:        d.Check,
			Severity:    MapSlitherImpact(d.Impact),
			Description: strings.TrimSpace(d.Description),
			Location:    d.Location(),
			Source:      a.Name(),
		})
	}
	logger.Debug("slither reported %d detectors for %s", len(out), contractPath)
	return out, nil
}

func (a *slitherAdapter) Close() error {
	return a.backend.Close()
}

type mythrilAdapter struct {
	backend *backend.MythrilBackend
}

func (a *mythrilAdapter) Name() string {
	return string(BackendMythril)
}

func (a *mythrilAdapter) Analyze(ctx context.Context, contractPath string) ([]finding.Finding, error) {
	issues, err := a.backend.Detect(ctx, contractPath)
	if err != nil {
		return nil, err
	}

	out := make([]finding.Finding, 0, len(issues))
	for _, is := range issues {
		typ := is.Title
		if is.SWCID != "" {
			typ = "SWC-" + strings.TrimPrefix(is.SWCID, "SWC-")
			if is.Title != "" {
				typ += " " + is.Title
			}
		}
		if typ == "" {
			typ = "Unknown issue"
		}
		loc := ""
		if is.LineNo > 0 {
			loc = fmt.Sprintf("line %d", is.LineNo)
		}
		out = append(out, finding.Finding{
			Type:        typ,
			Severity:    MapMythrilSeverity(is.Severity),
			Description: strings.TrimSpace(is.Description),
			Location:    loc,
			Source:      a.Name(),
		})
	}
	logger.Debug("mythril reported %d issues for %s", len(out), contractPath)
	return out, nil
}

func (a *mythrilAdapter) Close() error {
	return a.backend.Close()
}
