package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/VectorBits/econaudit/src/internal/ai"
	"github.com/VectorBits/econaudit/src/internal/audit"
	"github.com/VectorBits/econaudit/src/internal/config"
	"github.com/VectorBits/econaudit/src/internal/dex"
	"github.com/VectorBits/econaudit/src/internal/economic"
	"github.com/VectorBits/econaudit/src/internal/explorer"
	"github.com/VectorBits/econaudit/src/internal/logger"
	"github.com/VectorBits/econaudit/src/internal/publish"
	"github.com/VectorBits/econaudit/src/internal/report"
	"github.com/VectorBits/econaudit/src/internal/sandbox"
	"github.com/VectorBits/econaudit/src/internal/static_analyzer"
	"github.com/VectorBits/econaudit/src/internal/store"
	"github.com/VectorBits/econaudit/src/internal/ui"
)

// session owns everything one audit run opens; close releases it in reverse
// order.
type session struct {
	closers []func()
}

func (s *session) onClose(fn func()) {
	s.closers = append(s.closers, fn)
}

func (s *session) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func loadAppConfig() *config.AppConfig {
	app, err := config.LoadConfig()
	if err != nil {
		if errors.Is(err, config.ErrConfigNotFound) {
			logger.Warn("%v, using defaults", err)
		} else {
			ui.LogWarn("Failed to load config: %v", err)
		}
		return config.Default()
	}
	return app
}

// withProviderSettings fills AI credentials the command line left empty from
// the provider's settings.yaml section.
func withProviderSettings(app *config.AppConfig, s config.AuditConfiguration) config.AuditConfiguration {
	p, err := app.GetAIConfig(s.AIProvider)
	if err != nil {
		return s
	}
	if s.APIKey == "" {
		s.APIKey = p.APIKey
	}
	if s.BaseURL == "" {
		s.BaseURL = p.BaseURL
	}
	if s.Model == "" {
		s.Model = p.Model
	}
	if p.Timeout > 0 && s.Timeout == config.DefaultAuditConfiguration().Timeout {
		s.Timeout = p.Timeout
	}
	return s
}

func buildAnalyzers(app *config.AppConfig, s config.AuditConfiguration, withAI bool) ([]static_analyzer.Analyzer, error) {
	tools := []struct {
		backend static_analyzer.BackendType
		tool    config.ToolConfig
	}{
		{static_analyzer.BackendSlither, app.Analyzers.Slither},
		{static_analyzer.BackendMythril, app.Analyzers.Mythril},
	}

	var out []static_analyzer.Analyzer
	for _, t := range tools {
		an, err := static_analyzer.NewAnalyzer(static_analyzer.AnalyzerConfig{
			Backend: t.backend,
			Path:    t.tool.Path,
			Timeout: t.tool.Timeout,
			Args:    t.tool.Args,
			Enabled: t.tool.Enabled,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, an)
	}

	if withAI {
		manager, err := ai.NewManager(ai.ManagerConfig{
			AIClientConfig: ai.AIClientConfig{
				Provider: s.AIProvider,
				APIKey:   s.APIKey,
				BaseURL:  s.BaseURL,
				Model:    s.Model,
				Timeout:  s.Timeout,
				Proxy:    s.Proxy,
			},
			Verbose: s.Verbose,
		})
		if err != nil {
			return nil, err
		}
		analyzer, err := ai.NewAnalyzer(manager)
		if err != nil {
			manager.Close()
			return nil, err
		}
		logger.Info("AI analyzer enabled: %s", manager.GetClientInfo())
		out = append(out, analyzer)
	}
	return out, nil
}

func newQuoteSource(ctx context.Context, sess *session, app *config.AppConfig, chain *config.ChainConfig, rpc *config.RPCManager) (audit.QuoteSource, error) {
	client, err := rpc.GetClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect to %s RPC: %w", chain.Name, err)
	}

	var opts []dex.Option
	if app.Cache.RedisAddr != "" {
		cache := dex.NewRedisCache(app.Cache.RedisAddr, app.Cache.Password, app.Cache.DB, app.Cache.TTL)
		if err := cache.Ping(ctx); err != nil {
			logger.Warn("Redis quote cache unavailable at %s: %v", app.Cache.RedisAddr, err)
			cache.Close()
		} else {
			sess.onClose(func() { cache.Close() })
			opts = append(opts, dex.WithCache(cache))
		}
	}
	return dex.NewFetcher(*chain, dex.NewEthReader(client), opts...), nil
}

func startSandbox(ctx context.Context, sess *session, app *config.AppConfig, s config.AuditConfiguration, chain *config.ChainConfig, rpc *config.RPCManager, block uint64) (audit.Option, error) {
	if _, err := rpc.GetClient(ctx); err != nil {
		return nil, fmt.Errorf("connect to %s RPC: %w", chain.Name, err)
	}
	forker, err := sandbox.NewForker(sandbox.ForkConfig{
		AnvilPath:   app.Sandbox.AnvilPath,
		RPCURL:      rpc.GetCurrentURL(),
		Chain:       chain.Name,
		Host:        app.Sandbox.Host,
		Port:        app.Sandbox.Port,
		BlockNumber: block,
	})
	if err != nil {
		return nil, err
	}

	stop := ui.StartSpinner("Starting anvil fork...")
	fork, err := forker.Start(ctx)
	stop <- true
	if err != nil {
		return nil, err
	}
	sess.onClose(func() {
		if err := forker.Stop(); err != nil {
			logger.Warn("Failed to stop fork: %v", err)
		}
	})
	ui.LogSuccess("Fork running at %s (pid %d)", fork.URL, fork.PID)

	client, err := ethclient.DialContext(ctx, fork.URL)
	if err != nil {
		return nil, fmt.Errorf("dial fork: %w", err)
	}
	sess.onClose(client.Close)

	calc := economic.NewProfitCalculator(economic.NativeToken{Symbol: chain.NativeSymbol, PriceUSD: s.NativePriceUSD})
	return audit.WithSandbox(sandbox.NewProbe(client, calc), fork), nil
}

func startMetrics(ctx context.Context, addr string) *audit.Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := audit.NewMetrics()
	m.Register(reg)

	go func() {
		if err := audit.ServeMetrics(ctx, addr, reg); err != nil {
			logger.Error("%v", err)
		}
	}()
	return m
}

// ExecuteAudit wires the configured collaborators into an agent, runs it over
// the target and writes the report.
func ExecuteAudit(ctx context.Context, cli *CLIConfig) error {
	app := loadAppConfig()
	settings := withProviderSettings(app, config.MergeConfigs(app, cli.Flags()))

	chain, err := app.GetChainConfig(settings.Chain)
	if err != nil {
		return err
	}
	if settings.NativePriceUSD == 0 {
		settings.NativePriceUSD = chain.NativePriceUSD
	}

	sess := &session{}
	defer sess.close()

	analyzers, err := buildAnalyzers(app, settings, cli.AIProvider != "" || app.Analyzers.AI)
	if err != nil {
		return fmt.Errorf("failed to create analyzers: %w", err)
	}
	sess.onClose(func() {
		for _, an := range analyzers {
			if err := an.Close(); err != nil {
				logger.Warn("Failed to close %s: %v", an.Name(), err)
			}
		}
	})
	opts := []audit.Option{audit.WithAnalyzers(analyzers...)}

	keys, err := app.GetAPIKeyManager(settings.Chain)
	if err != nil {
		return err
	}
	explorerClient, err := explorer.NewClient(explorer.Config{
		BaseURL: chain.Explorer.BaseURL,
		ChainID: chain.ChainID,
		Chain:   chain.Name,
		Keys:    keys,
		Proxy:   settings.Proxy,
	})
	if err != nil {
		return err
	}
	opts = append(opts, audit.WithFetcher(explorerClient))

	var rpc *config.RPCManager
	if settings.TokenAddr != "" || settings.Fork {
		rpc, err = app.GetRPCManager(settings.Chain, settings.Proxy)
		if err != nil {
			return fmt.Errorf("failed to create RPC manager: %w", err)
		}
		sess.onClose(rpc.Close)
	}

	var quoteSource audit.QuoteSource
	if settings.TokenAddr != "" {
		if quoteSource, err = newQuoteSource(ctx, sess, app, chain, rpc); err != nil {
			return err
		}
	}
	quotes, err := audit.CollectQuotes(ctx, settings.PricesFile, settings.TokenAddr, quoteSource)
	if err != nil {
		return err
	}
	logger.Info("Using %d market quotes", len(quotes))

	if settings.Fork {
		opt, err := startSandbox(ctx, sess, app, settings, chain, rpc, cli.ForkBlock)
		if err != nil {
			return fmt.Errorf("failed to start sandbox: %w", err)
		}
		opts = append(opts, opt)
	}

	if settings.Store {
		db, err := config.InitDB(ctx, app)
		if err != nil {
			return fmt.Errorf("init db failed: %w", err)
		}
		st := store.New(db)
		sess.onClose(func() { st.Close() })
		if err := st.Migrate(ctx); err != nil {
			return err
		}
		opts = append(opts, audit.WithStore(st))
	}

	if settings.Publish {
		pub, err := publish.NewKafkaPublisher(publish.KafkaConfig{Brokers: app.Publish.Brokers, Topic: app.Publish.Topic})
		if err != nil {
			return fmt.Errorf("init publisher failed: %w", err)
		}
		sess.onClose(func() { pub.Close() })
		opts = append(opts, audit.WithPublisher(pub))
	}

	if settings.MetricsAddr != "" {
		opts = append(opts, audit.WithMetrics(startMetrics(ctx, settings.MetricsAddr)))
	}

	agent := audit.NewAgent(audit.Options{
		Chain:        chain.Name,
		AIProvider:   settings.AIProvider,
		Threshold:    settings.Threshold,
		MinProfitUSD: settings.MinProfitUSD,
		Concurrency:  settings.Concurrency,
	}, opts...)

	analyzerNames := append(agent.AnalyzerNames(), audit.EconomicAnalyzer)
	ui.LogInfo("Run %s | chain %s | analyzers: %s", agent.RunID()[:8], chain.Name, strings.Join(analyzerNames, ", "))

	start := time.Now()
	rep, runErr := agent.Run(ctx, settings.Target, quotes)
	if rep == nil {
		return runErr
	}

	generator, err := report.NewGenerator(settings.Format)
	if err != nil {
		return err
	}
	reporter := report.NewReporter(generator, report.NewFileStorage(settings.ReportDir))
	path, err := reporter.GenerateAndSave(rep)
	if err != nil {
		return err
	}

	printSummary(rep, path, time.Since(start))
	return runErr
}

func printSummary(rep *report.Report, path string, elapsed time.Duration) {
	for _, r := range rep.Results {
		if r.Error != "" {
			ui.LogError("%s: %s", r.Contract, r.Error)
			continue
		}
		if r.Summary.TotalVulnerabilities > 0 {
			var types []string
			seen := make(map[string]bool)
			for _, f := range r.Findings {
				if !seen[f.Type] {
					seen[f.Type] = true
					types = append(types, f.Type)
				}
			}
			fmt.Println(ui.FormatVulnMsg(r.Contract, types))
		}
	}
	ui.PrintStats(rep.TotalContracts, rep.TotalContracts-rep.FailedContracts, rep.FailedContracts, rep.ExploitableContracts, elapsed)
	ui.LogSuccess("Report saved to %s", path)
	if p := logger.Path(); p != "" {
		ui.LogInfo("Log file: %s", p)
	}
}

func Execute(ctx context.Context, cfg *CLIConfig) error {
	logger.SetVerbose(cfg.Verbose)
	if err := logger.InitLogger("logs"); err != nil {
		ui.LogWarn("Failed to init logger: %v", err)
	}
	defer logger.Close()

	if cfg.Verbose {
		fmt.Printf(ui.Gray+"Running econaudit with config: %+v"+ui.Reset+"\n", *cfg)
	}
	return ExecuteAudit(ctx, cfg)
}
