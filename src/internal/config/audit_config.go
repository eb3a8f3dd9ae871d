package config

import (
	"time"
)

type AuditConfiguration struct {
	// AI
	AIProvider string
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration

	// Target
	Target      string
	Chain       string
	PricesFile  string
	TokenAddr   string
	Concurrency int

	// Economic thresholds
	Threshold      float64
	MinProfitUSD   float64
	FlashFeePct    float64
	NativePriceUSD float64

	// Outputs
	ReportDir   string
	Format      string
	MetricsAddr string
	Store       bool
	Publish     bool
	Fork        bool

	// System
	Proxy   string
	Verbose bool
}

func DefaultAuditConfiguration() AuditConfiguration {
	return AuditConfiguration{
		AIProvider:   "stub",
		Timeout:      120 * time.Second,
		Chain:        "ethereum",
		Concurrency:  4,
		Threshold:    0.10,
		MinProfitUSD: 100,
		FlashFeePct:  0.09,
		ReportDir:    "reports",
		Format:       "md",
	}
}

// MergeConfigs layers settings.yaml under explicit flag values. Zero values in
// flags leave the file (or default) value in place.
func MergeConfigs(app *AppConfig, flags AuditConfiguration) AuditConfiguration {
	out := DefaultAuditConfiguration()
	if app != nil {
		out.AIProvider = app.AI.Provider
		out.Threshold = app.Economic.Threshold
		out.MinProfitUSD = app.Economic.MinProfitUSD
		out.FlashFeePct = app.Economic.FlashLoanFeePct
		if app.Metrics.Addr != "" {
			out.MetricsAddr = app.Metrics.Addr
		}
	}

	if flags.AIProvider != "" {
		out.AIProvider = flags.AIProvider
	}
	if flags.APIKey != "" {
		out.APIKey = flags.APIKey
	}
	if flags.BaseURL != "" {
		out.BaseURL = flags.BaseURL
	}
	if flags.Model != "" {
		out.Model = flags.Model
	}
	if flags.Timeout > 0 {
		out.Timeout = flags.Timeout
	}
	if flags.Target != "" {
		out.Target = flags.Target
	}
	if flags.Chain != "" {
		out.Chain = CanonicalChain(flags.Chain)
	}
	if flags.PricesFile != "" {
		out.PricesFile = flags.PricesFile
	}
	if flags.TokenAddr != "" {
		out.TokenAddr = flags.TokenAddr
	}
	if flags.Concurrency > 0 {
		out.Concurrency = flags.Concurrency
	}
	if flags.Threshold > 0 {
		out.Threshold = flags.Threshold
	}
	if flags.MinProfitUSD > 0 {
		out.MinProfitUSD = flags.MinProfitUSD
	}
	if flags.FlashFeePct > 0 {
		out.FlashFeePct = flags.FlashFeePct
	}
	if flags.NativePriceUSD > 0 {
		out.NativePriceUSD = flags.NativePriceUSD
	}
	if flags.ReportDir != "" {
		out.ReportDir = flags.ReportDir
	}
	if flags.Format != "" {
		out.Format = flags.Format
	}
	if flags.MetricsAddr != "" {
		out.MetricsAddr = flags.MetricsAddr
	}
	if flags.Proxy != "" {
		out.Proxy = flags.Proxy
	}
	out.Store = flags.Store
	out.Publish = flags.Publish
	out.Fork = flags.Fork
	out.Verbose = flags.Verbose
	return out
}
