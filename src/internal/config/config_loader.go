package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var ErrConfigNotFound = errors.New("the configuration file settings.yaml was not found")

type DatabaseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

type AIConfig struct {
	Provider string     `yaml:"provider"`
	OpenAI   AIProvider `yaml:"openai"`
	LocalLLM AIProvider `yaml:"local_llm"`
}

type AIProvider struct {
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Model   string        `yaml:"model"`
	Proxy   string        `yaml:"proxy"`
	Timeout time.Duration `yaml:"timeout"`
}

type EconomicConfig struct {
	Threshold       float64 `yaml:"threshold"`
	MinProfitUSD    float64 `yaml:"min_profit_usd"`
	FlashLoanFeePct float64 `yaml:"flash_loan_fee_pct"`
}

type ToolConfig struct {
	Enabled bool          `yaml:"enabled"`
	Path    string        `yaml:"path"`
	Timeout time.Duration `yaml:"timeout"`
	Args    []string      `yaml:"args"`
}

type AnalyzersConfig struct {
	Slither ToolConfig `yaml:"slither"`
	Mythril ToolConfig `yaml:"mythril"`
	AI      bool       `yaml:"ai"`
}

type CacheConfig struct {
	RedisAddr string        `yaml:"redis_addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	TTL       time.Duration `yaml:"ttl"`
}

type PublishConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type SandboxConfig struct {
	AnvilPath string `yaml:"anvil_path"`
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
}

type AppConfig struct {
	AI        AIConfig               `yaml:"ai"`
	Chains    map[string]ChainConfig `yaml:"chains"`
	Economic  EconomicConfig         `yaml:"economic"`
	Analyzers AnalyzersConfig        `yaml:"analyzers"`
	Database  DatabaseConfig         `yaml:"database"`
	Cache     CacheConfig            `yaml:"cache"`
	Publish   PublishConfig          `yaml:"publish"`
	Metrics   MetricsConfig          `yaml:"metrics"`
	Sandbox   SandboxConfig          `yaml:"sandbox"`
}

var (
	loadOnce     sync.Once
	loadedConfig *AppConfig
	loadedErr    error
)

// LoadConfig reads .env and settings.yaml once per process.
func LoadConfig() (*AppConfig, error) {
	loadOnce.Do(func() {
		_ = godotenv.Load()

		configPath := findConfigFile()
		if configPath == "" {
			loadedErr = ErrConfigNotFound
			return
		}
		loadedConfig, loadedErr = LoadConfigFile(configPath)
	})

	if loadedErr != nil {
		return nil, loadedErr
	}
	return loadedConfig, nil
}

// LoadConfigFile parses one YAML file and applies defaults and environment
// overrides.
func LoadConfigFile(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file: %w", err)
	}

	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file: %w", err)
	}
	cfg.finalize()
	return &cfg, nil
}

// Default is the configuration used when no settings.yaml exists.
func Default() *AppConfig {
	cfg := &AppConfig{}
	cfg.finalize()
	return cfg
}

func (c *AppConfig) finalize() {
	chains := DefaultChains()
	if c.Chains == nil {
		c.Chains = make(map[string]ChainConfig, len(chains))
	}
	for name, cc := range c.Chains {
		key := CanonicalChain(name)
		if key != name {
			delete(c.Chains, name)
		}
		if def, ok := chains[key]; ok {
			cc = mergeChain(cc, def)
		}
		if cc.Name == "" {
			cc.Name = key
		}
		c.Chains[key] = cc
	}
	for name, def := range chains {
		if _, ok := c.Chains[name]; !ok {
			c.Chains[name] = def
		}
	}

	if c.Economic.Threshold <= 0 {
		c.Economic.Threshold = 0.10
	}
	if c.Economic.MinProfitUSD <= 0 {
		c.Economic.MinProfitUSD = 100
	}
	if c.Economic.FlashLoanFeePct <= 0 {
		c.Economic.FlashLoanFeePct = 0.09
	}

	if c.AI.Provider == "" {
		c.AI.Provider = "stub"
	}
	if c.Analyzers.Slither.Path == "" {
		c.Analyzers.Slither.Path = "slither"
	}
	if c.Analyzers.Slither.Timeout == 0 {
		c.Analyzers.Slither.Timeout = 300 * time.Second
	}
	if c.Analyzers.Mythril.Path == "" {
		c.Analyzers.Mythril.Path = "myth"
	}
	if c.Analyzers.Mythril.Timeout == 0 {
		c.Analyzers.Mythril.Timeout = 600 * time.Second
	}

	if c.Cache.TTL == 0 {
		c.Cache.TTL = 60 * time.Second
	}
	if c.Publish.Topic == "" {
		c.Publish.Topic = "econaudit.summaries"
	}
	if c.Sandbox.AnvilPath == "" {
		c.Sandbox.AnvilPath = "anvil"
	}
	if c.Sandbox.Host == "" {
		c.Sandbox.Host = "127.0.0.1"
	}
	if c.Sandbox.Port == 0 {
		c.Sandbox.Port = 8545
	}
	if c.Database.Port == "" {
		c.Database.Port = "3306"
	}
	if c.Database.Name == "" {
		c.Database.Name = "econaudit"
	}

	c.applyEnv()
}

func (c *AppConfig) applyEnv() {
	if key := os.Getenv("ETHERSCAN_API_KEY"); key != "" {
		for name, cc := range c.Chains {
			if cc.Explorer.APIKey == "" {
				cc.Explorer.APIKey = key
				c.Chains[name] = cc
			}
		}
	}
	for name, cc := range c.Chains {
		if rpc := os.Getenv("ECONAUDIT_RPC_" + strings.ToUpper(name)); rpc != "" {
			cc.RPCURLs = append([]string{rpc}, cc.RPCURLs...)
			c.Chains[name] = cc
		}
	}

	c.AI.OpenAI.APIKey = getEnv("OPENAI_API_KEY", c.AI.OpenAI.APIKey)
	c.AI.LocalLLM.BaseURL = getEnv("OLLAMA_HOST", c.AI.LocalLLM.BaseURL)

	c.Cache.RedisAddr = getEnv("REDIS_ADDR", c.Cache.RedisAddr)
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		c.Publish.Brokers = strings.Split(brokers, ",")
	}

	c.Database.Host = getEnv("MYSQL_HOST", c.Database.Host)
	c.Database.Port = getEnv("MYSQL_PORT", c.Database.Port)
	c.Database.User = getEnv("MYSQL_USER", c.Database.User)
	c.Database.Password = getEnv("MYSQL_PASSWORD", c.Database.Password)
	c.Database.Name = getEnv("MYSQL_DATABASE", c.Database.Name)

	if v, err := strconv.ParseFloat(os.Getenv("ECONAUDIT_MIN_PROFIT_USD"), 64); err == nil && v > 0 {
		c.Economic.MinProfitUSD = v
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func findConfigFile() string {
	possiblePaths := []string{
		"config/settings.yaml",
		"settings.yaml",
		"src/config/settings.yaml",
		"../config/settings.yaml",
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

func (c *AppConfig) GetChainConfig(chainName string) (*ChainConfig, error) {
	chain, exists := c.Chains[CanonicalChain(chainName)]
	if !exists {
		return nil, fmt.Errorf("unsupported chain: %s", chainName)
	}
	return &chain, nil
}

func (c *AppConfig) GetAIConfig(provider string) (*AIProvider, error) {
	switch strings.ToLower(provider) {
	case "openai", "gpt4", "chatgpt":
		p := c.AI.OpenAI
		return &p, nil
	case "local-llm", "ollama", "local_llm":
		p := c.AI.LocalLLM
		p.APIKey = ""
		return &p, nil
	case "stub", "mock", "":
		return &AIProvider{}, nil
	default:
		return nil, fmt.Errorf("unsupported AI provider: %s", provider)
	}
}

func (c *AppConfig) GetDatabaseDSN(includeDBName bool) string {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
	)
	if includeDBName {
		dsn += c.Database.Name
	}
	return dsn + "?parseTime=true&charset=utf8mb4"
}

func GetConfigDir() string {
	configPath := findConfigFile()
	if configPath == "" {
		return "config"
	}
	return filepath.Dir(configPath)
}
