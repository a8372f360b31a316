// Package config loads CLI and server settings.
//
// Precedence, lowest first: built-in defaults, the YAML file, a .env file,
// NODEWEAVE_* environment variables. Command line flags are applied by the
// caller on top.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/nodeweave/internal/logging"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix namespaces every environment override.
const EnvPrefix = "NODEWEAVE_"

// DefaultFile is read when no config path is given and it exists.
const DefaultFile = "nodeweave.yaml"

type Config struct {
	LogLevel string       `yaml:"log_level"`
	Store    StoreConfig  `yaml:"store"`
	AI       AIConfig     `yaml:"ai"`
	Server   ServerConfig `yaml:"server"`
	Walker   WalkerConfig `yaml:"walker"`
	Nodes    NodesConfig  `yaml:"nodes"`
}

type StoreConfig struct {
	// Driver is memory, file or redis.
	Driver        string        `yaml:"driver"`
	Dir           string        `yaml:"dir"`
	Format        string        `yaml:"format"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	RedisPrefix   string        `yaml:"redis_prefix"`
	TTL           time.Duration `yaml:"ttl"`
	// EncryptionKey is a base64 AES-256 key. Empty disables encryption.
	EncryptionKey string   `yaml:"encryption_key"`
	PIIFields     []string `yaml:"pii_fields"`
}

type AIConfig struct {
	APIKey     string        `yaml:"api_key"`
	BaseURL    string        `yaml:"base_url"`
	Model      string        `yaml:"model"`
	ImageModel string        `yaml:"image_model"`
	Timeout    time.Duration `yaml:"timeout"`
}

type ServerConfig struct {
	Port    int  `yaml:"port"`
	MCPPort int  `yaml:"mcp_port"`
	Metrics bool `yaml:"metrics"`
}

type WalkerConfig struct {
	Concurrency int `yaml:"concurrency"`
}

type NodesConfig struct {
	// BaseDir anchors relative paths used by file nodes.
	BaseDir string `yaml:"base_dir"`
	// Commands is the allow-list file for shell.command nodes.
	Commands    string `yaml:"commands"`
	AllowInline bool   `yaml:"allow_inline"`
}

// Default returns the settings used when nothing is configured.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Store: StoreConfig{
			Driver:      "file",
			Dir:         ".nodeweave/graphs",
			Format:      "json",
			RedisAddr:   "localhost:6379",
			RedisPrefix: "nodeweave:graph:",
		},
		AI: AIConfig{
			Timeout: 60 * time.Second,
		},
		Server: ServerConfig{
			Port:    8080,
			MCPPort: 8081,
		},
		Walker: WalkerConfig{
			Concurrency: 4,
		},
		Nodes: NodesConfig{
			BaseDir:  ".",
			Commands: "commands.yaml",
		},
	}
}

// Load builds the configuration. An explicit path must exist; otherwise
// DefaultFile is read when present. envFile names the dotenv file, ".env"
// when empty; a missing dotenv file is not an error.
func Load(path, envFile string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case explicit || !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			*dst = v
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = d
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = b
		}
	}

	str("LOG_LEVEL", &c.LogLevel)
	str("STORE_DRIVER", &c.Store.Driver)
	str("STORE_DIR", &c.Store.Dir)
	str("STORE_FORMAT", &c.Store.Format)
	str("REDIS_ADDR", &c.Store.RedisAddr)
	str("REDIS_PASSWORD", &c.Store.RedisPassword)
	num("REDIS_DB", &c.Store.RedisDB)
	str("REDIS_PREFIX", &c.Store.RedisPrefix)
	dur("STORE_TTL", &c.Store.TTL)
	str("ENCRYPTION_KEY", &c.Store.EncryptionKey)
	if v, ok := os.LookupEnv(EnvPrefix + "PII_FIELDS"); ok {
		c.Store.PIIFields = splitList(v)
	}

	str("AI_API_KEY", &c.AI.APIKey)
	if c.AI.APIKey == "" {
		c.AI.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	str("AI_BASE_URL", &c.AI.BaseURL)
	str("AI_MODEL", &c.AI.Model)
	str("AI_IMAGE_MODEL", &c.AI.ImageModel)
	dur("AI_TIMEOUT", &c.AI.Timeout)

	num("PORT", &c.Server.Port)
	num("MCP_PORT", &c.Server.MCPPort)
	flag("METRICS", &c.Server.Metrics)
	num("WALK_CONCURRENCY", &c.Walker.Concurrency)

	str("BASE_DIR", &c.Nodes.BaseDir)
	str("COMMANDS", &c.Nodes.Commands)
	flag("ALLOW_INLINE", &c.Nodes.AllowInline)

	return errors.Join(errs...)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.Store.Driver {
	case "memory", "file":
	case "redis":
		if c.Store.RedisAddr == "" {
			return errors.New("store.redis_addr is required for the redis driver")
		}
	default:
		return fmt.Errorf("unknown store driver: %q", c.Store.Driver)
	}
	switch c.Store.Format {
	case "json", "yaml":
	default:
		return fmt.Errorf("unknown store format: %q", c.Store.Format)
	}
	if c.Store.TTL < 0 {
		return errors.New("store.ttl must not be negative")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Server.MCPPort <= 0 || c.Server.MCPPort > 65535 {
		return fmt.Errorf("server.mcp_port out of range: %d", c.Server.MCPPort)
	}
	if c.Walker.Concurrency <= 0 {
		return errors.New("walker.concurrency must be positive")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
