package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/VectorBits/econaudit/src/internal/ai"
	"github.com/VectorBits/econaudit/src/internal/config"
	"github.com/VectorBits/econaudit/src/internal/report"
	"github.com/VectorBits/econaudit/src/internal/ui"
)

type CLIConfig struct {
	Target         string
	Chain          string
	AIProvider     string
	ReportDir      string
	Format         string
	PricesFile     string
	TokenAddr      string
	Threshold      float64
	MinProfitUSD   float64
	NativePriceUSD float64
	Concurrency    int
	Timeout        time.Duration
	Fork           bool
	ForkBlock      uint64
	MetricsAddr    string
	Store          bool
	Publish        bool
	Proxy          string
	Verbose        bool
}

func (c *CLIConfig) Validate() error {
	if c.Target == "" {
		return errors.New("-t is required: a .sol file, a directory, a 0x address or a target list")
	}
	if err := ai.ValidateProvider(c.AIProvider); err != nil {
		return err
	}
	if _, err := report.NewGenerator(c.Format); err != nil {
		return err
	}
	if c.Threshold < 0 || c.Threshold >= 10 {
		return fmt.Errorf("-threshold must be a ratio such as 0.1, got %v", c.Threshold)
	}
	if c.MinProfitUSD < 0 || c.NativePriceUSD < 0 {
		return errors.New("-min-profit and -native-price cannot be negative")
	}
	if _, ok := config.DefaultChains()[config.CanonicalChain(c.Chain)]; !ok && c.Chain != "" {
		return fmt.Errorf("unsupported chain: %s, supported chains: %s", c.Chain, strings.Join(supportedChains(), ", "))
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	return nil
}

// Flags converts the command line into the shape MergeConfigs layers over
// settings.yaml.
func (c *CLIConfig) Flags() config.AuditConfiguration {
	return config.AuditConfiguration{
		AIProvider:     c.AIProvider,
		Timeout:        c.Timeout,
		Target:         c.Target,
		Chain:          c.Chain,
		PricesFile:     c.PricesFile,
		TokenAddr:      c.TokenAddr,
		Concurrency:    c.Concurrency,
		Threshold:      c.Threshold,
		MinProfitUSD:   c.MinProfitUSD,
		NativePriceUSD: c.NativePriceUSD,
		ReportDir:      c.ReportDir,
		Format:         c.Format,
		MetricsAddr:    c.MetricsAddr,
		Store:          c.Store,
		Publish:        c.Publish,
		Fork:           c.Fork,
		Proxy:          c.Proxy,
		Verbose:        c.Verbose,
	}
}

func supportedChains() []string {
	chains := config.DefaultChains()
	names := make([]string, 0, len(chains))
	for name := range chains {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func showHelp(w io.Writer, topic string) {
	switch topic {
	case "t", "target":
		showTargetHelp(w)
	case "ai":
		showAIHelp(w)
	case "c", "chain":
		showChainHelp(w)
	case "prices", "token", "threshold", "min-profit", "native-price", "economic":
		showEconomicHelp(w)
	case "fork", "store", "publish", "metrics-addr", "outputs":
		showOutputHelp(w)
	default:
		showGeneralHelp(w)
	}
}

func showGeneralHelp(w io.Writer) {
	fmt.Fprintln(w, ui.Cyan+"USAGE:"+ui.Reset)
	fmt.Fprintln(w, "  econaudit -t <target> [OPTIONS]")
	fmt.Fprintln(w)

	fmt.Fprintln(w, ui.Cyan+"CORE OPTIONS:"+ui.Reset)
	fmt.Fprintf(w, "  %-25s %s\n", "-t  <target>", "Contract file, directory, 0x address or target list")
	fmt.Fprintf(w, "  %-25s %s\n", "-c  <chain>", "Blockchain network (default: ethereum)")
	fmt.Fprintf(w, "  %-25s %s\n", "-ai <provider>", "AI backend: stub|ollama|openai|deepseek")
	fmt.Fprintf(w, "  %-25s %s\n", "-r  <dir>", "Report output directory (default: reports)")
	fmt.Fprintf(w, "  %-25s %s\n", "-format <md|json>", "Report format (default: md)")
	fmt.Fprintf(w, "  %-25s %s\n", "-concurrency <n>", "Contracts audited in parallel (default: 4)")
	fmt.Fprintf(w, "  %-25s %s\n", "-proxy <url>", "Proxy URL (HTTP/SOCKS5)")
	fmt.Fprintf(w, "  %-25s %s\n", "-v", "Verbose output")
	fmt.Fprintln(w)

	fmt.Fprintln(w, ui.Cyan+"ECONOMIC OPTIONS:"+ui.Reset)
	fmt.Fprintf(w, "  %-25s %s\n", "-prices <file>", "Static market quotes (JSON)")
	fmt.Fprintf(w, "  %-25s %s\n", "-token <0x...>", "Fetch live DEX quotes for this token")
	fmt.Fprintf(w, "  %-25s %s\n", "-threshold <ratio>", "Price discrepancy threshold (default: 0.10)")
	fmt.Fprintf(w, "  %-25s %s\n", "-min-profit <usd>", "Minimum arbitrage profit (default: 100)")
	fmt.Fprintf(w, "  %-25s %s\n", "-native-price <usd>", "Override the native token price")
	fmt.Fprintln(w)

	fmt.Fprintln(w, ui.Cyan+"OUTPUTS:"+ui.Reset)
	fmt.Fprintf(w, "  %-25s %s\n", "-fork", "Probe address targets on a local anvil fork")
	fmt.Fprintf(w, "  %-25s %s\n", "-store", "Persist results to MySQL")
	fmt.Fprintf(w, "  %-25s %s\n", "-publish", "Publish summaries to Kafka")
	fmt.Fprintf(w, "  %-25s %s\n", "-metrics-addr <addr>", "Serve Prometheus metrics, e.g. :9102")
	fmt.Fprintln(w)

	fmt.Fprintln(w, ui.Cyan+"HELP:"+ui.Reset)
	fmt.Fprintln(w, "  econaudit [OPTION] --help   Show detailed help for one option")
	fmt.Fprintln(w)

	fmt.Fprintln(w, ui.Cyan+"EXAMPLES:"+ui.Reset)
	fmt.Fprintln(w, ui.Gray+"  # Audit a local contract against static quotes"+ui.Reset)
	fmt.Fprintln(w, "  econaudit -t contracts/Sale.sol -prices prices.json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, ui.Gray+"  # Audit a deployed contract with live quotes and a fork probe"+ui.Reset)
	fmt.Fprintln(w, "  econaudit -t 0x123... -c bsc -token 0xabc... -fork -ai openai")
}

func showTargetHelp(w io.Writer) {
	fmt.Fprintln(w, ui.Cyan+"🎯 AUDIT TARGETS (-t)"+ui.Reset)
	fmt.Fprintln(w, ui.Gray+"The target kind is detected automatically."+ui.Reset)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %-25s %s\n", "<file.sol>", "Audit one source file")
	fmt.Fprintf(w, "  %-25s %s\n", "<dir>", "Audit every *.sol under the directory")
	fmt.Fprintf(w, "  %-25s %s\n", "<0x...>", "Fetch verified source from the chain explorer")
	fmt.Fprintf(w, "  %-25s %s\n", "<targets.txt|yaml>", "One file, directory or address per entry")
}

func showAIHelp(w io.Writer) {
	fmt.Fprintln(w, ui.Cyan+"🤖 AI PROVIDER (-ai)"+ui.Reset)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %-25s %s\n", "stub", "Deterministic heuristics, no network (default)")
	fmt.Fprintf(w, "  %-25s %s\n", "ollama", "Local model via Ollama")
	fmt.Fprintf(w, "  %-25s %s\n", "openai", "OpenAI chat completions")
	fmt.Fprintf(w, "  %-25s %s\n", "deepseek", "DeepSeek (OpenAI compatible)")
	fmt.Fprintln(w)
	fmt.Fprintln(w, ui.Cyan+"CONFIGURATION:"+ui.Reset)
	fmt.Fprintln(w, "  Set keys in "+ui.Bold+"config/settings.yaml"+ui.Reset+" or OPENAI_API_KEY / OLLAMA_HOST")
}

func showChainHelp(w io.Writer) {
	fmt.Fprintln(w, ui.Cyan+"⛓️  BLOCKCHAIN NETWORK (-c)"+ui.Reset)
	fmt.Fprintln(w)
	for _, name := range supportedChains() {
		fmt.Fprintf(w, "  %s\n", name)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  Aliases: eth, mainnet, bnb, matic, arb, op")
	fmt.Fprintln(w, "  RPC override: ECONAUDIT_RPC_<CHAIN>")
}

func showEconomicHelp(w io.Writer) {
	fmt.Fprintln(w, ui.Cyan+"💰 ECONOMIC ANALYSIS"+ui.Reset)
	fmt.Fprintln(w, ui.Gray+"Contract prices are compared with the mean market quote."+ui.Reset)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  -prices takes a JSON list of quotes:")
	fmt.Fprintln(w, `    [{"price_usd": 1.01, "dex": "uniswap_v2", "token_address": "0x..."}]`)
	fmt.Fprintln(w, "  -token reads reserves from every configured DEX factory.")
	fmt.Fprintln(w, "  Both may be combined; without quotes only pattern checks run.")
}

func showOutputHelp(w io.Writer) {
	fmt.Fprintln(w, ui.Cyan+"📤 OUTPUTS"+ui.Reset)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %-25s %s\n", "-fork", "Start anvil, read the target balance as value at risk")
	fmt.Fprintf(w, "  %-25s %s\n", "-fork-block <n>", "Pin the fork to a block")
	fmt.Fprintf(w, "  %-25s %s\n", "-store", "MySQL settings from the database section or MYSQL_*")
	fmt.Fprintf(w, "  %-25s %s\n", "-publish", "Kafka brokers from the publish section or KAFKA_BROKERS")
	fmt.Fprintf(w, "  %-25s %s\n", "-metrics-addr <addr>", "Serves /metrics and /healthz while the audit runs")
}

// helpTopic returns the option named before --help, or "" for general help.
func helpTopic(args []string) (string, bool) {
	for i, arg := range args {
		if arg != "--help" && arg != "-h" {
			continue
		}
		if i > 0 && strings.HasPrefix(args[i-1], "-") {
			return strings.TrimLeft(args[i-1], "-"), true
		}
		return "", true
	}
	return "", false
}

// ParseFlags parses args (without the program name).
func ParseFlags(args []string, out io.Writer) (*CLIConfig, error) {
	if topic, ok := helpTopic(args); ok {
		showHelp(out, topic)
		return nil, flag.ErrHelp
	}

	fs := flag.NewFlagSet("econaudit", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.Usage = func() {
		showGeneralHelp(out)
	}

	target := fs.String("t", "", "Audit target: file, directory, address or target list")
	chain := fs.String("c", "ethereum", "Chain: ethereum | bsc | polygon | arbitrum | optimism")
	aiProvider := fs.String("ai", "", "AI provider: stub | ollama | openai | deepseek")
	reportDir := fs.String("r", "", "Report output directory (default: reports)")
	format := fs.String("format", "md", "Report format: md | json")
	prices := fs.String("prices", "", "JSON file with market quotes")
	token := fs.String("token", "", "Token address to quote on every configured DEX")
	threshold := fs.Float64("threshold", 0, "Price discrepancy threshold ratio (default 0.10)")
	minProfit := fs.Float64("min-profit", 0, "Minimum arbitrage profit in USD (default 100)")
	nativePrice := fs.Float64("native-price", 0, "Native token price in USD")
	concurrency := fs.Int("concurrency", 4, "Contracts audited in parallel")
	timeout := fs.Duration("timeout", 0, "Per-AI request timeout")
	fork := fs.Bool("fork", false, "Probe address targets on a local anvil fork")
	forkBlock := fs.Uint64("fork-block", 0, "Fork block number (default latest)")
	metricsAddr := fs.String("metrics-addr", "", "Serve Prometheus metrics on this address")
	store := fs.Bool("store", false, "Persist results to MySQL")
	publish := fs.Bool("publish", false, "Publish summaries to Kafka")
	proxy := fs.String("proxy", "", "Optional HTTP/SOCKS5 proxy for explorer, AI and RPC")
	verbose := fs.Bool("v", false, "Verbose output")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *target == "" && fs.NArg() == 1 {
		*target = fs.Arg(0)
	}

	cfg := &CLIConfig{
		Target:         strings.TrimSpace(*target),
		Chain:          config.CanonicalChain(*chain),
		AIProvider:     strings.TrimSpace(*aiProvider),
		ReportDir:      strings.TrimSpace(*reportDir),
		Format:         strings.ToLower(strings.TrimSpace(*format)),
		PricesFile:     strings.TrimSpace(*prices),
		TokenAddr:      strings.TrimSpace(*token),
		Threshold:      *threshold,
		MinProfitUSD:   *minProfit,
		NativePriceUSD: *nativePrice,
		Concurrency:    *concurrency,
		Timeout:        *timeout,
		Fork:           *fork,
		ForkBlock:      *forkBlock,
		MetricsAddr:    strings.TrimSpace(*metricsAddr),
		Store:          *store,
		Publish:        *publish,
		Proxy:          strings.TrimSpace(*proxy),
		Verbose:        *verbose,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Print shows the banner.
func Print() {
	ui.PrintBanner()
}

func Run() error {
	cfg, err := ParseFlags(os.Args[1:], os.Stdout)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		count := 0
		for range sigChan {
			count++
			if count == 1 {
				fmt.Fprintln(os.Stderr, "\nInterrupt received, stopping... (press Ctrl+C again to force exit)")
				cancel()
				continue
			}
			fmt.Fprintln(os.Stderr, "\nForce exiting...")
			os.Exit(130)
		}
	}()

	return Execute(ctx, cfg)
}

func PrintFatal(err error) {
	if err == nil {
		return
	}
	if errors.Is(err, context.Canceled) {
		return
	}

	fmt.Fprintln(os.Stderr, ui.Red+"Error:"+ui.Reset, err)
	os.Exit(1)
}
