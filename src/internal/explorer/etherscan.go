package explorer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/VectorBits/econaudit/src/internal"
	"github.com/VectorBits/econaudit/src/internal/logger"
)

var (
	// ErrNotVerified means the explorer knows the address but has no source.
	ErrNotVerified = errors.New("contract source is not verified")
	ErrInvalidAddr = errors.New("invalid contract address")
)

// KeySource hands out explorer API keys; *config.APIKeyManager implements it.
type KeySource interface {
	GetKey() string
	GetNextKey() string
	GetKeyCount() int
}

type Config struct {
	BaseURL string
	ChainID int
	Chain   string
	APIKey  string
	Keys    KeySource
	Proxy   string
	Timeout time.Duration
}

type Client struct {
	cfg        Config
	httpClient *http.Client
}

type apiResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type sourceEntry struct {
	SourceCode       string `json:"SourceCode"`
	ABI              string `json:"ABI"`
	ContractName     string `json:"ContractName"`
	CompilerVersion  string `json:"CompilerVersion"`
	OptimizationUsed string `json:"OptimizationUsed"`
	Runs             string `json:"Runs"`
	EVMVersion       string `json:"EVMVersion"`
	LicenseType      string `json:"LicenseType"`
	Proxy            string `json:"Proxy"`
	Implementation   string `json:"Implementation"`
}

// ContractInfo is a verified contract. SourceCode holds the main file;
// Sources keeps every file of a multi-file submission.
type ContractInfo struct {
	Address        string
	Chain          string
	Name           string
	Compiler       string
	Optimization   bool
	Runs           int
	EVMVersion     string
	License        string
	ABI            string
	IsProxy        bool
	Implementation string
	SourceCode     string
	Sources        map[string]string
	FetchedAt      time.Time
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.etherscan.io/v2/api"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	httpClient, err := internal.HTTPClient(cfg.Proxy, cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to create explorer HTTP client: %w", err)
	}
	return &Client{cfg: cfg, httpClient: httpClient}, nil
}

// ValidateAddress requires 0x followed by 40 hex digits.
func ValidateAddress(address string) error {
	if !strings.HasPrefix(address, "0x") || len(address) != 42 {
		return fmt.Errorf("%w: %s", ErrInvalidAddr, address)
	}
	for _, r := range address[2:] {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return fmt.Errorf("%w: %s", ErrInvalidAddr, address)
		}
	}
	return nil
}

func (c *Client) apiKey() string {
	if c.cfg.Keys != nil && c.cfg.Keys.GetKeyCount() > 0 {
		return c.cfg.Keys.GetKey()
	}
	return c.cfg.APIKey
}

func (c *Client) rotateKey() bool {
	if c.cfg.Keys == nil || c.cfg.Keys.GetKeyCount() < 2 {
		return false
	}
	c.cfg.Keys.GetNextKey()
	return true
}

// FetchContract calls getsourcecode. Rate-limit answers rotate the API key
// and transient network errors back off before retrying.
func (c *Client) FetchContract(ctx context.Context, address string) (*ContractInfo, error) {
	address = strings.TrimSpace(address)
	if err := ValidateAddress(address); err != nil {
		return nil, err
	}

	const maxAttempts = 3
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt-1) * 500 * time.Millisecond):
			}
		}

		entry, retry, err := c.getSourceCode(ctx, address)
		if err == nil {
			return c.toInfo(address, entry)
		}
		lastErr = err
		if !retry {
			return nil, err
		}
	}
	return nil, fmt.Errorf("explorer request failed %d times: %w", maxAttempts, lastErr)
}

func (c *Client) getSourceCode(ctx context.Context, address string) (*sourceEntry, bool, error) {
	u, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return nil, false, fmt.Errorf("failed to parse explorer BaseURL: %w", err)
	}
	q := url.Values{}
	q.Set("module", "contract")
	q.Set("action", "getsourcecode")
	q.Set("address", address)
	q.Set("apikey", c.apiKey())
	if c.cfg.ChainID > 0 {
		q.Set("chainid", strconv.Itoa(c.cfg.ChainID))
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("User-Agent", "econaudit/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, isTemporaryNetErr(err), fmt.Errorf("failed to request explorer API: %w", err)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, true, fmt.Errorf("failed to read explorer response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		snippet := string(body)
		if len(snippet) > 1024 {
			snippet = snippet[:1024]
		}
		return nil, resp.StatusCode >= 500, fmt.Errorf("explorer returned status %d: %s", resp.StatusCode, snippet)
	}

	var apiResp apiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, true, fmt.Errorf("failed to parse explorer JSON: %w", err)
	}

	if apiResp.Status != "1" {
		var msg string
		_ = json.Unmarshal(apiResp.Result, &msg)
		if strings.Contains(strings.ToLower(msg), "rate limit") {
			logger.Warn("Explorer rate limited, rotating API key")
			return nil, c.rotateKey(), fmt.Errorf("explorer rate limited: %s", msg)
		}
		return nil, false, fmt.Errorf("explorer API error: %s %s", apiResp.Message, msg)
	}

	var entries []sourceEntry
	if err := json.Unmarshal(apiResp.Result, &entries); err != nil {
		return nil, false, fmt.Errorf("unexpected explorer result: %w", err)
	}
	if len(entries) == 0 {
		return nil, false, fmt.Errorf("%w: %s", ErrNotVerified, address)
	}
	return &entries[0], false, nil
}

func (c *Client) toInfo(address string, e *sourceEntry) (*ContractInfo, error) {
	if strings.TrimSpace(e.SourceCode) == "" {
		return nil, fmt.Errorf("%w: %s on %s", ErrNotVerified, address, c.cfg.Chain)
	}

	runs, _ := strconv.Atoi(e.Runs)
	info := &ContractInfo{
		Address:        address,
		Chain:          c.cfg.Chain,
		Name:           e.ContractName,
		Compiler:       e.CompilerVersion,
		Optimization:   e.OptimizationUsed == "1",
		Runs:           runs,
		EVMVersion:     e.EVMVersion,
		License:        e.LicenseType,
		ABI:            e.ABI,
		IsProxy:        e.Proxy == "1",
		Implementation: e.Implementation,
		SourceCode:     e.SourceCode,
		FetchedAt:      time.Now(),
	}
	if info.License == "" {
		info.License = "None"
	}

	if sources, ok := parseMultiFile(e.SourceCode); ok {
		info.Sources = sources
		info.SourceCode = mainSource(sources, e.ContractName)
	}
	return info, nil
}

// parseMultiFile accepts both the double-brace standard-json wrapper and a
// plain {"sources": ...} object.
func parseMultiFile(src string) (map[string]string, bool) {
	trimmed := strings.TrimSpace(src)
	if strings.HasPrefix(trimmed, "{{") && strings.HasSuffix(trimmed, "}}") {
		trimmed = trimmed[1 : len(trimmed)-1]
	}
	if !strings.HasPrefix(trimmed, "{") {
		return nil, false
	}

	var data struct {
		Sources map[string]struct {
			Content string `json:"content"`
		} `json:"sources"`
	}
	if err := json.Unmarshal([]byte(trimmed), &data); err == nil && len(data.Sources) > 0 {
		out := make(map[string]string, len(data.Sources))
		for path, f := range data.Sources {
			out[path] = f.Content
		}
		return out, true
	}

	// Older multi-file format: {"File.sol": {"content": ...}}
	var flat map[string]struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal([]byte(trimmed), &flat); err == nil && len(flat) > 0 {
		out := make(map[string]string, len(flat))
		for path, f := range flat {
			out[path] = f.Content
		}
		return out, true
	}
	return nil, false
}

func sortedPaths(sources map[string]string) []string {
	paths := make([]string, 0, len(sources))
	for p := range sources {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// mainSource picks the file declaring `contract <name>`, else the first file
// mentioning the name, else the first path.
func mainSource(sources map[string]string, name string) string {
	paths := sortedPaths(sources)
	if name != "" {
		decl := "contract " + name
		for _, p := range paths {
			if strings.Contains(sources[p], decl) {
				return sources[p]
			}
		}
		for _, p := range paths {
			if strings.Contains(sources[p], name) {
				return sources[p]
			}
		}
	}
	return sources[paths[0]]
}

// Flatten joins every source file with a path banner. Single-file contracts
// return SourceCode unchanged.
func (i *ContractInfo) Flatten() string {
	if len(i.Sources) == 0 {
		return i.SourceCode
	}
	var b strings.Builder
	for _, p := range sortedPaths(i.Sources) {
		fmt.Fprintf(&b, "// File: %s\n%s\n\n", p, i.Sources[p])
	}
	return b.String()
}

// SaveSource writes the flattened source under a metadata header.
func SaveSource(info *ContractInfo, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create source dir: %w", err)
	}
	header := fmt.Sprintf("// Contract: %s\n// Address: %s\n// Chain: %s\n// Compiler: %s\n// License: %s\n// Fetched: %s\n\n",
		info.Name, info.Address, info.Chain, info.Compiler, info.License, info.FetchedAt.Format("2006-01-02 15:04:05"))
	return os.WriteFile(path, []byte(header+info.Flatten()), 0644)
}

func isTemporaryNetErr(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF)
}
