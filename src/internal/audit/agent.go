package audit

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/VectorBits/econaudit/src/internal"
	"github.com/VectorBits/econaudit/src/internal/economic"
	"github.com/VectorBits/econaudit/src/internal/explorer"
	"github.com/VectorBits/econaudit/src/internal/finding"
	"github.com/VectorBits/econaudit/src/internal/logger"
	"github.com/VectorBits/econaudit/src/internal/publish"
	"github.com/VectorBits/econaudit/src/internal/report"
	"github.com/VectorBits/econaudit/src/internal/risk"
	"github.com/VectorBits/econaudit/src/internal/sandbox"
	"github.com/VectorBits/econaudit/src/internal/static_analyzer"
	"github.com/VectorBits/econaudit/src/internal/ui"
)

const (
	EconomicAnalyzer = "economic"
	SandboxAnalyzer  = "sandbox"
)

var ErrNoContracts = errors.New("no Solidity sources found")

type Options struct {
	Chain        string
	AIProvider   string
	Threshold    float64
	MinProfitUSD float64
	Concurrency  int
	// WorkDir receives sources fetched for address targets.
	WorkDir string
	// Quiet disables the progress bar.
	Quiet bool
}

// SourceFetcher resolves a deployed address to verified source.
type SourceFetcher interface {
	FetchContract(ctx context.Context, address string) (*explorer.ContractInfo, error)
}

// Prober measures a contract's balance on a fork; *sandbox.Probe implements it.
type Prober interface {
	Measure(ctx context.Context, account string, minProfitUSD float64, action func(ctx context.Context) error) (*sandbox.ProbeResult, error)
}

type ResultStore interface {
	SaveResult(ctx context.Context, runID, chain string, c *report.ContractResult) (int64, error)
}

type Option func(*Agent)

func WithAnalyzers(analyzers ...static_analyzer.Analyzer) Option {
	return func(a *Agent) {
		for _, an := range analyzers {
			if an == nil || an.Name() == string(static_analyzer.BackendNoOp) {
				continue
			}
			a.analyzers = append(a.analyzers, an)
		}
	}
}

func WithFetcher(f SourceFetcher) Option {
	return func(a *Agent) { a.fetcher = f }
}

// WithSandbox probes address targets on fork. fork may be nil.
func WithSandbox(p Prober, fork *sandbox.Fork) Option {
	return func(a *Agent) {
		a.prober = p
		a.fork = fork
	}
}

func WithStore(s ResultStore) Option {
	return func(a *Agent) { a.store = s }
}

func WithPublisher(p publish.Publisher) Option {
	return func(a *Agent) { a.publisher = p }
}

func WithMetrics(m *Metrics) Option {
	return func(a *Agent) { a.metrics = m }
}

// Agent audits contracts: external analyzers run in parallel, then the
// economic and arbitrage passes, then risk aggregation.
type Agent struct {
	opts       Options
	runID      string
	analyzers  []static_analyzer.Analyzer
	comparator *economic.Comparator
	arbitrage  *economic.ArbitrageDetector
	fetcher    SourceFetcher
	prober     Prober
	fork       *sandbox.Fork
	store      ResultStore
	publisher  publish.Publisher
	metrics    *Metrics
}

func NewAgent(opts Options, options ...Option) *Agent {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.WorkDir == "" {
		opts.WorkDir = filepath.Join(os.TempDir(), "econaudit")
	}
	a := &Agent{
		opts:       opts,
		runID:      uuid.NewString(),
		comparator: economic.NewComparator(opts.Threshold),
		arbitrage:  economic.NewArbitrageDetector(opts.MinProfitUSD),
	}
	for _, o := range options {
		o(a)
	}
	return a
}

func (a *Agent) RunID() string { return a.runID }

// AnalyzerNames lists the external analyzers in run order.
func (a *Agent) AnalyzerNames() []string {
	names := make([]string, 0, len(a.analyzers))
	for _, an := range a.analyzers {
		names = append(names, an.Name())
	}
	return names
}

type target struct {
	path    string
	address string
}

func (t target) label() string {
	if t.address != "" {
		return t.address
	}
	return t.path
}

func contractName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

// AuditContract audits one source file. Only an unreadable source or a
// cancelled context is returned as an error; analyzer failures are recorded
// in the result.
func (a *Agent) AuditContract(ctx context.Context, path string, quotes []economic.MarketQuote) (*report.ContractResult, error) {
	return a.audit(ctx, target{path: path}, "", quotes)
}

// AuditAddress fetches verified source for address, saves it under WorkDir
// and audits it. The sandbox probe only runs for address targets.
func (a *Agent) AuditAddress(ctx context.Context, address string, quotes []economic.MarketQuote) (*report.ContractResult, error) {
	if a.fetcher == nil {
		return nil, fmt.Errorf("no explorer configured for address %s", address)
	}
	info, err := a.fetcher.FetchContract(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", address, err)
	}

	path := filepath.Join(a.opts.WorkDir, a.opts.Chain, strings.ToLower(address)+".sol")
	if err := explorer.SaveSource(info, path); err != nil {
		return nil, fmt.Errorf("save source for %s: %w", address, err)
	}
	logger.Info("Fetched %s (%s) to %s", info.Name, address, path)
	return a.audit(ctx, target{path: path, address: info.Address}, info.Name, quotes)
}

func (a *Agent) auditTarget(ctx context.Context, t target, quotes []economic.MarketQuote) (*report.ContractResult, error) {
	if t.address != "" && t.path == "" {
		return a.AuditAddress(ctx, t.address, quotes)
	}
	return a.audit(ctx, t, "", quotes)
}

func (a *Agent) audit(ctx context.Context, t target, name string, quotes []economic.MarketQuote) (*report.ContractResult, error) {
	start := time.Now()
	src, err := os.ReadFile(t.path)
	if err != nil {
		return nil, fmt.Errorf("read contract %s: %w", t.path, err)
	}
	if name == "" {
		name = contractName(t.path)
	}

	result := report.NewContractResult(name, t.path)
	result.Address = t.address

	findings, analyzers, err := a.runAnalyzers(ctx, t.path)
	if err != nil {
		return nil, err
	}
	run := make([]string, 0, len(analyzers)+2)
	for _, ar := range analyzers {
		if !ar.Failed() {
			run = append(run, ar.Name)
		}
	}

	econStart := time.Now()
	econ := a.comparator.AnalyzeContract(string(src), quotes)
	arb := a.arbitrage.Analyze(econ.Discrepancies, quotes)
	econFindings := econ.Findings()
	findings = append(findings, econFindings...)
	analyzers = append(analyzers, report.AnalyzerResult{
		Name:     EconomicAnalyzer,
		Findings: len(econFindings),
		Duration: time.Since(econStart),
	})
	run = append(run, EconomicAnalyzer)
	result.Economic = &econ
	result.Arbitrage = &arb

	if a.prober != nil && t.address != "" {
		probeStart := time.Now()
		ar := report.AnalyzerResult{Name: SandboxAnalyzer}
		probe, err := a.prober.Measure(ctx, t.address, a.opts.MinProfitUSD, nil)
		if err != nil {
			ar.Error = err.Error()
			logger.Warn("Sandbox probe failed for %s: %v", t.address, err)
		} else {
			probe.Fork = a.fork
			result.Sandbox = probe
			run = append(run, SandboxAnalyzer)
		}
		ar.Duration = time.Since(probeStart)
		analyzers = append(analyzers, ar)
	}

	result.Analyzers = analyzers
	result.Findings = findings
	result.Summary = risk.Aggregate(findings, run)
	result.Duration = time.Since(start)

	logger.Info("Audited %s: %d findings, risk %.1f/100, %d arbitrage opportunities",
		name, result.Summary.TotalVulnerabilities, result.Summary.RiskScore, arb.TotalOpportunities)
	a.record(ctx, &result)
	return &result, nil
}

// runAnalyzers runs every analyzer concurrently. A failing analyzer only
// loses its own findings.
func (a *Agent) runAnalyzers(ctx context.Context, path string) ([]finding.Finding, []report.AnalyzerResult, error) {
	results := make([]report.AnalyzerResult, len(a.analyzers))
	found := make([][]finding.Finding, len(a.analyzers))

	var g errgroup.Group
	for i, an := range a.analyzers {
		g.Go(func() error {
			start := time.Now()
			got, err := an.Analyze(ctx, path)
			results[i] = report.AnalyzerResult{Name: an.Name(), Duration: time.Since(start)}
			if err != nil {
				results[i].Error = err.Error()
				logger.Warn("%s failed on %s: %v", an.Name(), path, err)
				return nil
			}
			results[i].Findings = len(got)
			found[i] = got
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	var all []finding.Finding
	for _, got := range found {
		all = append(all, got...)
	}
	return all, results, nil
}

func (a *Agent) record(ctx context.Context, c *report.ContractResult) {
	if a.store != nil {
		if _, err := a.store.SaveResult(ctx, a.runID, a.opts.Chain, c); err != nil {
			logger.Warn("Failed to store result for %s: %v", c.Contract, err)
		}
	}
	if a.publisher != nil {
		if err := a.publisher.Publish(ctx, publish.NewSummaryEvent(a.runID, a.opts.Chain, c)); err != nil {
			logger.Warn("Failed to publish result for %s: %v", c.Contract, err)
		}
	}
	a.metrics.Observe(c)
}

// AuditDirectory audits every *.sol file under dir. Per-contract failures
// are reported as failed results.
func (a *Agent) AuditDirectory(ctx context.Context, dir string, quotes []economic.MarketQuote) ([]report.ContractResult, error) {
	files, err := CollectSources(dir)
	if err != nil {
		return nil, err
	}
	targets := make([]target, 0, len(files))
	for _, f := range files {
		targets = append(targets, target{path: f})
	}
	return a.auditAll(ctx, targets, quotes)
}

// Run resolves target (file, directory, address or target list) and audits
// everything it names into one report.
func (a *Agent) Run(ctx context.Context, targetSpec string, quotes []economic.MarketQuote) (*report.Report, error) {
	targets, err := a.resolve(targetSpec)
	if err != nil {
		return nil, err
	}

	rep := report.NewReport(a.runID, a.opts.Chain, a.opts.AIProvider)
	if len(targets) == 1 {
		res, err := a.auditTarget(ctx, targets[0], quotes)
		if err != nil {
			return nil, err
		}
		rep.AddResult(*res)
		return rep, nil
	}

	results, err := a.auditAll(ctx, targets, quotes)
	for _, r := range results {
		rep.AddResult(r)
	}
	return rep, err
}

func (a *Agent) resolve(input string) ([]target, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, errors.New("no audit target given")
	}

	if explorer.ValidateAddress(input) == nil {
		return []target{{address: input}}, nil
	}

	if internal.IsTargetList(input) {
		entries, err := internal.ReadTargets(input)
		if err != nil {
			return nil, fmt.Errorf("read target list %s: %w", input, err)
		}
		var out []target
		for _, e := range entries {
			ts, err := a.resolve(e)
			if err != nil {
				logger.Warn("Skipping target %s: %v", e, err)
				continue
			}
			out = append(out, ts...)
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("%w in %s", ErrNoContracts, input)
		}
		return out, nil
	}

	st, err := os.Stat(input)
	if err != nil {
		return nil, fmt.Errorf("contract source not found: %w", err)
	}
	if !st.IsDir() {
		return []target{{path: input}}, nil
	}
	files, err := CollectSources(input)
	if err != nil {
		return nil, err
	}
	out := make([]target, 0, len(files))
	for _, f := range files {
		out = append(out, target{path: f})
	}
	return out, nil
}

// CollectSources returns every .sol file under dir in lexical order, skipping
// hidden directories and node_modules.
func CollectSources(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != dir && (strings.HasPrefix(name, ".") || name == "node_modules") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ".sol") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w under %s", ErrNoContracts, dir)
	}
	return files, nil
}

func (a *Agent) auditAll(ctx context.Context, targets []target, quotes []economic.MarketQuote) ([]report.ContractResult, error) {
	results := make([]report.ContractResult, len(targets))
	done := make([]bool, len(targets))

	var bar *ui.ProgressBar
	if !a.opts.Quiet {
		bar = ui.NewProgressBar(len(targets), "Auditing")
	}

	var g errgroup.Group
	g.SetLimit(a.opts.Concurrency)
	for i, t := range targets {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			res, err := a.auditTarget(ctx, t, quotes)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				failed := report.NewContractResult(contractName(t.label()), t.path)
				failed.Address = t.address
				failed.Status = report.StatusFailed
				failed.Error = err.Error()
				a.metrics.Observe(&failed)
				res = &failed
				logger.Error("Audit of %s failed: %v", t.label(), err)
			}
			results[i] = *res
			done[i] = true
			if bar != nil {
				if res.Exploitable() {
					bar.AddVuln()
				}
				bar.Increment()
			}
			return nil
		})
	}
	_ = g.Wait()
	if bar != nil {
		bar.Finish()
	}

	out := make([]report.ContractResult, 0, len(targets))
	for i := range results {
		if done[i] {
			out = append(out, results[i])
		}
	}
	return out, ctx.Err()
}

// Close releases analyzer resources.
func (a *Agent) Close() error {
	var errs []error
	for _, an := range a.analyzers {
		if err := an.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", an.Name(), err))
		}
	}
	return errors.Join(errs...)
}
