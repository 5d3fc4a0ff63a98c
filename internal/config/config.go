// Package config loads pipeline configuration from a YAML file and
// environment variables, and runs the startup "doctor" probe that converts
// deep runtime ToolchainMissing/ConfigMissing failures into precondition
// failures (spec.md §9 "External-tool availability → probe-on-startup").
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/hyperion-agent/contractforge/internal/model"
)

// Config holds all configuration for the pipeline.
type Config struct {
	Network    model.NetworkConfig `mapstructure:"network"`
	Deployer   DeployerConfig      `mapstructure:"deployer"`
	Explorer   ExplorerConfig      `mapstructure:"explorer"`
	LLM        LLMConfig           `mapstructure:"llm"`
	Symbolic   SymbolicConfig      `mapstructure:"symbolic"`
	Template   TemplateConfig      `mapstructure:"template"`
	Artifacts  ArtifactsConfig     `mapstructure:"artifacts"`
	History    HistoryConfig       `mapstructure:"history"`
	Redis      RedisConfig         `mapstructure:"redis"`
	Server     ServerConfig        `mapstructure:"server"`
	Workflow   WorkflowConfig      `mapstructure:"workflow"`
}

// DeployerConfig configures the compiler/deployer subprocess invocation.
type DeployerConfig struct {
	Binary         string        `mapstructure:"binary"`
	PrivateKeyEnv  string        `mapstructure:"private_key_env"`
	WorkspaceRoot  string        `mapstructure:"workspace_root"`
	Timeout        time.Duration `mapstructure:"timeout"`
	ShutdownGrace  time.Duration `mapstructure:"shutdown_grace"`
}

// ExplorerConfig configures the block-explorer verification API.
type ExplorerConfig struct {
	BaseURL     string `mapstructure:"base_url"`
	APIKeyEnv   string `mapstructure:"api_key_env"`
	SourcifyURL string `mapstructure:"sourcify_url"`
}

// LLMConfig configures the LLM provider key lookup (the provider itself is
// an out-of-scope collaborator, spec.md §1).
type LLMConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	ProviderKeyEnv string `mapstructure:"provider_key_env"`
	Model          string `mapstructure:"model"`
	MaxRetries     int    `mapstructure:"max_retries"`
}

// SymbolicConfig configures the external symbolic-analyzer subprocess
// (spec.md §4.2 "Symbolic runner"). An empty Binary skips the runner
// entirely, the same gating `buildRunners` applies to the LLM runner.
type SymbolicConfig struct {
	Binary  string        `mapstructure:"binary"`
	Args    []string      `mapstructure:"args"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// TemplateConfig configures the template fetcher's local cache and remote
// content-addressed gateway.
type TemplateConfig struct {
	CacheDir   string `mapstructure:"cache_dir"`
	GatewayURL string `mapstructure:"gateway_url"`
}

// ArtifactsConfig configures where workflow artifacts are persisted.
type ArtifactsConfig struct {
	RootDir  string `mapstructure:"root_dir"`
	Compress bool   `mapstructure:"compress"`
}

// HistoryConfig configures the optional durable run-history store.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DSN     string `mapstructure:"dsn"`
}

// RedisConfig configures the optional secondary template cache.
type RedisConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	DB      int    `mapstructure:"db"`
}

// ServerConfig configures the optional local status/metrics HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// WorkflowConfig configures orchestrator-wide ceilings.
type WorkflowConfig struct {
	Ceiling time.Duration `mapstructure:"ceiling"`
}

// Load reads configuration from config.yaml (if present) and environment
// variables, applying defaults for everything not set.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/contractforge")

	v.SetEnvPrefix("FORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, model.NewError(model.KindConfigInvalid, "failed to read config file", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, model.NewError(model.KindConfigInvalid, "failed to unmarshal config", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("network.name", "hyperion")
	v.SetDefault("deployer.binary", "forge-deployer")
	v.SetDefault("deployer.private_key_env", "FORGE_DEPLOYER_PRIVATE_KEY")
	v.SetDefault("deployer.workspace_root", "./artifacts/workspaces")
	v.SetDefault("deployer.timeout", 300*time.Second)
	v.SetDefault("deployer.shutdown_grace", 5*time.Second)
	v.SetDefault("explorer.api_key_env", "FORGE_EXPLORER_API_KEY")
	v.SetDefault("explorer.sourcify_url", "https://sourcify.dev/server")
	v.SetDefault("llm.base_url", "https://api.openai.com")
	v.SetDefault("llm.provider_key_env", "FORGE_LLM_API_KEY")
	v.SetDefault("llm.max_retries", 2)
	v.SetDefault("symbolic.timeout", 60*time.Second)
	v.SetDefault("template.cache_dir", "./.cache/templates")
	v.SetDefault("artifacts.root_dir", "./artifacts/workflows")
	v.SetDefault("artifacts.compress", true)
	v.SetDefault("server.port", 8090)
	v.SetDefault("workflow.ceiling", 30*time.Minute)
}

// RequiredEnv describes an environment variable the pipeline requires for a
// given stage; MissingEnv reports an unset one as ConfigMissing.
type RequiredEnv struct {
	Var   string
	Stage model.Stage
}

// MissingEnv scans env for required-but-empty variables, returning a
// ConfigMissing error naming the first offender (spec.md §6: "missing
// values cause fail-fast at workflow start").
func MissingEnv(lookup func(string) string, required []RequiredEnv) error {
	for _, r := range required {
		if lookup(r.Var) == "" {
			return model.NewError(model.KindConfigMissing,
				fmt.Sprintf("ConfigMissing:%s", r.Var), nil)
		}
	}
	return nil
}
