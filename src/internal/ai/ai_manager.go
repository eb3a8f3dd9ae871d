package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/VectorBits/econaudit/src/internal/ai/parser"
	"github.com/VectorBits/econaudit/src/internal/logger"
)

// Manager wraps an AIClient with rate limiting, JSON-mode selection and a
// single reformat retry when the model answer is not parseable.
type Manager struct {
	client    AIClient
	parser    *parser.Parser
	rateLimit *rateLimiter
	timeout   time.Duration
	verbose   bool
}

type jsonAnalyzer interface {
	AnalyzeJSON(ctx context.Context, prompt string) (string, error)
}

type rateLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
}

func newRateLimiter(requestsPerMinute int) *rateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 1
	}
	return &rateLimiter{interval: time.Minute / time.Duration(requestsPerMinute)}
}

func (rl *rateLimiter) Wait(ctx context.Context) error {
	rl.mu.Lock()
	now := time.Now()
	wait := time.Duration(0)
	if !rl.last.IsZero() {
		if next := rl.last.Add(rl.interval); next.After(now) {
			wait = next.Sub(now)
		}
	}
	rl.last = now.Add(wait)
	rl.mu.Unlock()

	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// multiAIClient round-robins across clients built from a comma separated
// key list.
type multiAIClient struct {
	clients []AIClient
	next    uint64
}

func (m *multiAIClient) pick() AIClient {
	idx := atomic.AddUint64(&m.next, 1)
	return m.clients[int(idx%uint64(len(m.clients)))]
}

func (m *multiAIClient) Analyze(ctx context.Context, prompt string) (string, error) {
	return m.pick().Analyze(ctx, prompt)
}

func (m *multiAIClient) AnalyzeJSON(ctx context.Context, prompt string) (string, error) {
	c := m.pick()
	if jsonClient, ok := c.(jsonAnalyzer); ok {
		return jsonClient.AnalyzeJSON(ctx, prompt)
	}
	return c.Analyze(ctx, prompt)
}

func (m *multiAIClient) GetName() string {
	return fmt.Sprintf("multi[%d]-%s", len(m.clients), m.clients[0].GetName())
}

func (m *multiAIClient) Close() error {
	for _, c := range m.clients {
		_ = c.Close()
	}
	return nil
}

func parseAPIKeys(raw string) []string {
	parts := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';' || r == '\n' || r == '\t' || r == ' '
	})
	keys := make([]string, 0, len(parts))
	seen := map[string]struct{}{}
	for _, p := range parts {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		keys = append(keys, p)
	}
	return keys
}

type ManagerConfig struct {
	AIClientConfig
	RequestsPerMin int
	Verbose        bool
	// Client overrides the provider factory; tests inject fakes here.
	Client AIClient
}

func NewManager(cfg ManagerConfig) (*Manager, error) {
	client := cfg.Client
	if client == nil {
		keys := parseAPIKeys(cfg.APIKey)
		if len(keys) <= 1 {
			c, err := NewAIClient(cfg.AIClientConfig)
			if err != nil {
				return nil, fmt.Errorf("failed to create AI client: %w", err)
			}
			client = c
		} else {
			clients := make([]AIClient, 0, len(keys))
			for _, key := range keys {
				cc := cfg.AIClientConfig
				cc.APIKey = key
				c, err := NewAIClient(cc)
				if err != nil {
					return nil, fmt.Errorf("failed to create AI client: %w", err)
				}
				clients = append(clients, c)
			}
			client = &multiAIClient{clients: clients}
			cfg.RequestsPerMin *= len(keys)
		}
	}

	if cfg.RequestsPerMin <= 0 {
		cfg.RequestsPerMin = 20
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	return &Manager{
		client:    client,
		parser:    parser.NewParser(),
		rateLimit: newRateLimiter(cfg.RequestsPerMin),
		timeout:   cfg.Timeout,
		verbose:   cfg.Verbose,
	}, nil
}

func (m *Manager) ask(ctx context.Context, prompt string) (string, error) {
	if jsonClient, ok := m.client.(jsonAnalyzer); ok {
		return jsonClient.AnalyzeJSON(ctx, prompt)
	}
	return m.client.Analyze(ctx, prompt)
}

// AnalyzeContract sends prompt plus the response schema and parses the answer.
func (m *Manager) AnalyzeContract(ctx context.Context, prompt string) (*parser.AnalysisResult, error) {
	reqCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if err := m.rateLimit.Wait(reqCtx); err != nil {
		return nil, fmt.Errorf("rate limit wait failed: %w", err)
	}

	fullPrompt := prompt + "\n\n" + parser.SchemaInstruction()
	if m.verbose {
		logger.InfoFileOnly("Sending AI request to %s (prompt_len=%d)\n%s", m.client.GetName(), len(fullPrompt), fullPrompt)
	} else {
		logger.InfoFileOnly("Sending AI request to %s (prompt_len=%d prompt_sha256=%s)", m.client.GetName(), len(fullPrompt), hashForLog(fullPrompt))
	}

	start := time.Now()
	response, err := m.ask(reqCtx, fullPrompt)
	if err != nil {
		return nil, fmt.Errorf("AI analysis failed: %w", err)
	}
	logger.InfoFileOnly("AI response received (resp_len=%d resp_sha256=%s)", len(response), hashForLog(response))

	result, _ := m.parser.Parse(response)
	if result.ParseError != "" && canRetryParse(reqCtx) {
		retryResp, err := m.ask(reqCtx, buildReformatPrompt(response))
		if err == nil {
			if retry, _ := m.parser.Parse(retryResp); retry.ParseError == "" {
				result = retry
			}
		}
	}

	result.AnalysisDuration = time.Since(start)
	return result, nil
}

func hashForLog(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func canRetryParse(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	if deadline, ok := ctx.Deadline(); ok {
		return time.Until(deadline) > 2*time.Second
	}
	return true
}

func buildReformatPrompt(text string) string {
	const maxText = 64 * 1024
	if len(text) > maxText {
		text = text[:maxText]
	}
	return fmt.Sprintf("Convert the following text into the required JSON.\n\n%s\n\nTEXT:\n%s", parser.SchemaInstruction(), text)
}

func (m *Manager) GetClientInfo() string {
	return m.client.GetName()
}

func (m *Manager) Close() error {
	return m.client.Close()
}
