// Package config provides configuration for the conclave service.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/xiaot623/conclave/internal/adapter/llm"
	"github.com/xiaot623/conclave/internal/domain"
)

// Supported inference backends.
const (
	BackendOllama = llm.BackendOllama
	BackendOpenAI = llm.BackendOpenAI
)

// EnvConfigFile names an optional YAML/TOML/JSON config file.
const EnvConfigFile = "CONCLAVE_CONFIG"

// Default trigger terms for keyword routing.
var (
	DefaultFinanceKeywords = []string{
		"finance", "stock", "market", "investment", "money",
		"trading", "economy", "business", "financial",
	}
	DefaultTechnicalKeywords = []string{
		"programming", "code", "software", "technology", "python",
		"javascript", "algorithm", "database", "api",
	}
)

// Config holds the service configuration. It is read once at startup.
type Config struct {
	// Server settings
	HTTPPort int
	RPCPort  int // 0 disables the JSON-RPC listener

	// Inference settings
	Backend      string
	BaseURL      string
	APIKey       string
	DefaultModel string
	Models       map[domain.RoleName]string

	// Pipeline settings
	CallTimeout       time.Duration
	ChunkDelay        time.Duration
	MaxParallel       int
	ClassifierEnabled bool
	MultiExpert       bool

	// Routing settings
	RoutingPolicyFile string
	Keywords          map[domain.RoleName][]string

	// WebSocket settings
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	MaxMessageSize int64

	// Trace store; empty disables tracing
	TraceDatabaseURL string
}

var modelKeys = map[domain.RoleName]string{
	domain.RoleClassifier: "router_model",
	domain.RoleFinance:    "finance_model",
	domain.RoleTechnical:  "technical_model",
	domain.RoleGeneral:    "general_model",
	domain.RoleAggregator: "aggregator_model",
	domain.RoleFallback:   "fallback_model",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_port", 8000)
	v.SetDefault("rpc_port", 0)

	v.SetDefault("inference_backend", BackendOllama)
	v.SetDefault("inference_base_url", "http://localhost:11434")
	v.SetDefault("inference_api_key", "")
	v.SetDefault("default_model", "mistral:7b")
	for _, key := range modelKeys {
		v.SetDefault(key, "")
	}

	v.SetDefault("call_timeout", 60*time.Second)
	v.SetDefault("chunk_delay", 50*time.Millisecond)
	v.SetDefault("max_parallel", 0)
	v.SetDefault("classifier_enabled", true)
	v.SetDefault("multi_expert", true)

	v.SetDefault("routing_policy_file", "")
	v.SetDefault("routing_finance_keywords", strings.Join(DefaultFinanceKeywords, ","))
	v.SetDefault("routing_technical_keywords", strings.Join(DefaultTechnicalKeywords, ","))

	v.SetDefault("ws_ping_interval", 30*time.Second)
	v.SetDefault("ws_write_timeout", 10*time.Second)
	v.SetDefault("ws_read_timeout", 60*time.Second)
	v.SetDefault("ws_max_message_size", 65536)

	v.SetDefault("trace_database_url", "conclave.db")
}

// Load reads configuration from .env, the optional config file and the environment.
// Environment variables win over the config file.
func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if path := os.Getenv(EnvConfigFile); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.AutomaticEnv()

	cfg := FromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper) *Config {
	cfg := &Config{
		HTTPPort:          v.GetInt("http_port"),
		RPCPort:           v.GetInt("rpc_port"),
		Backend:           strings.ToLower(strings.TrimSpace(v.GetString("inference_backend"))),
		BaseURL:           strings.TrimRight(v.GetString("inference_base_url"), "/"),
		APIKey:            v.GetString("inference_api_key"),
		DefaultModel:      v.GetString("default_model"),
		Models:            make(map[domain.RoleName]string, len(modelKeys)),
		CallTimeout:       v.GetDuration("call_timeout"),
		ChunkDelay:        v.GetDuration("chunk_delay"),
		MaxParallel:       v.GetInt("max_parallel"),
		ClassifierEnabled: v.GetBool("classifier_enabled"),
		MultiExpert:       v.GetBool("multi_expert"),
		RoutingPolicyFile: v.GetString("routing_policy_file"),
		Keywords: map[domain.RoleName][]string{
			domain.RoleFinance:   splitList(v.GetString("routing_finance_keywords")),
			domain.RoleTechnical: splitList(v.GetString("routing_technical_keywords")),
		},
		PingInterval:     v.GetDuration("ws_ping_interval"),
		WriteTimeout:     v.GetDuration("ws_write_timeout"),
		ReadTimeout:      v.GetDuration("ws_read_timeout"),
		MaxMessageSize:   v.GetInt64("ws_max_message_size"),
		TraceDatabaseURL: v.GetString("trace_database_url"),
	}

	for role, key := range modelKeys {
		model := strings.TrimSpace(v.GetString(key))
		if model == "" {
			model = cfg.DefaultModel
		}
		cfg.Models[role] = model
	}

	return cfg
}

// Default returns the built-in defaults without consulting the environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	return FromViper(v)
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Backend != BackendOllama && c.Backend != BackendOpenAI {
		errs = append(errs, fmt.Errorf("unknown inference backend %q", c.Backend))
	}
	if c.BaseURL == "" {
		errs = append(errs, errors.New("inference base url is required"))
	}
	if c.CallTimeout <= 0 {
		errs = append(errs, errors.New("call timeout must be positive"))
	}
	if c.ChunkDelay < 0 {
		errs = append(errs, errors.New("chunk delay must not be negative"))
	}
	if c.MaxParallel < 0 {
		errs = append(errs, errors.New("max parallel must not be negative"))
	}
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid http port %d", c.HTTPPort))
	}
	if c.RPCPort < 0 || c.RPCPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid rpc port %d", c.RPCPort))
	}
	if c.PingInterval <= 0 || c.WriteTimeout <= 0 || c.ReadTimeout <= 0 {
		errs = append(errs, errors.New("websocket timeouts must be positive"))
	}
	for role, model := range c.Models {
		if model == "" {
			errs = append(errs, fmt.Errorf("no model configured for %s", role))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Mode reports how answers are produced.
func (c *Config) Mode() domain.Mode {
	if c.MultiExpert {
		return domain.ModeMultiExpert
	}
	return domain.ModeSingleModel
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
