package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Profile  string         `yaml:"profile"`
	Log      LogConfig      `yaml:"log"`
	Model    ModelConfig    `yaml:"model"`
	Router   RouterConfig   `yaml:"router"`
	Agents   AgentsConfig   `yaml:"agents"`
	Tools    ToolsConfig    `yaml:"tools"`
	Turn     TurnConfig     `yaml:"turn"`
	History  HistoryConfig  `yaml:"history"`
	Store    StoreConfig    `yaml:"store"`
	Vault    VaultConfig    `yaml:"vault"`
	NATS     NATSConfig     `yaml:"nats"`
	Web      WebConfig      `yaml:"web"`
	Telegram TelegramConfig `yaml:"telegram"`
	SMS      SMSConfig      `yaml:"sms"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type ModelConfig struct {
	Name          string  `yaml:"name"`
	APIKey        string  `yaml:"api_key"`
	BaseURL       string  `yaml:"base_url"`
	MaxTokens     int64   `yaml:"max_tokens"`
	Temperature   float64 `yaml:"temperature"`
	MaxToolRounds int     `yaml:"max_tool_rounds"`
}

type RouterConfig struct {
	// HistoryWindow > 0 summarizes all but the last N messages before routing.
	HistoryWindow int `yaml:"history_window"`
}

type AgentsConfig struct {
	// Allow overrides the profile's allow-lists, per requesting agent.
	Allow map[string][]string `yaml:"allow"`
}

type ToolsConfig struct {
	SiteURL      string        `yaml:"site_url"`
	CatalogURL   string        `yaml:"catalog_url"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxPageBytes int           `yaml:"max_page_bytes"`
}

type TurnConfig struct {
	Budget time.Duration `yaml:"budget"`
}

type HistoryConfig struct {
	Limit         int           `yaml:"limit"`
	Retention     time.Duration `yaml:"retention"`
	PruneSchedule string        `yaml:"prune_schedule"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type VaultConfig struct {
	Passphrase string `yaml:"passphrase"`
}

type NATSConfig struct {
	Port int `yaml:"port"`
}

type WebConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Auth    string `yaml:"auth"`
}

type TelegramConfig struct {
	Token     string  `yaml:"token"`
	AllowFrom []int64 `yaml:"allow_from"`
}

type SMSConfig struct {
	AccountSID        string `yaml:"account_sid"`
	AuthToken         string `yaml:"auth_token"`
	FromNumber        string `yaml:"from_number"`
	ValidateSignature bool   `yaml:"validate_signature"`
	// PublicURL is the externally visible webhook URL used for signature checks.
	PublicURL string `yaml:"public_url"`
	BaseURL   string `yaml:"base_url"`
}

// Enabled reports whether outbound SMS can be sent.
func (c SMSConfig) Enabled() bool {
	return c.AccountSID != "" && c.AuthToken != "" && c.FromNumber != ""
}

func defaults() Config {
	return Config{
		Profile: "parts",
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Model: ModelConfig{
			Name:          "claude-sonnet-4-5-20250929",
			MaxTokens:     4096,
			MaxToolRounds: 8,
		},
		Tools: ToolsConfig{
			SiteURL:      "https://www.partselect.com",
			Timeout:      20 * time.Second,
			MaxPageBytes: 60000,
		},
		Turn: TurnConfig{
			Budget: 60 * time.Second,
		},
		History: HistoryConfig{
			Limit:         50,
			Retention:     30 * 24 * time.Hour,
			PruneSchedule: "@hourly",
		},
		Store: StoreConfig{
			Path: "data/counterman.db",
		},
		NATS: NATSConfig{
			Port: 4222,
		},
		Web: WebConfig{
			Enabled: true,
			Port:    8080,
		},
		SMS: SMSConfig{
			ValidateSignature: true,
		},
	}
}

func Load() (*Config, error) {
	cfg := defaults()

	path := os.Getenv("COUNTERMAN_CONFIG")
	if path == "" {
		path = "config/counterman.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file not found, use defaults + env
	} else {
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("COUNTERMAN_PROFILE"); v != "" {
		cfg.Profile = v
	}
	if v := os.Getenv("COUNTERMAN_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.Model.APIKey = v
	}
	if v := os.Getenv("COUNTERMAN_MODEL"); v != "" {
		cfg.Model.Name = v
	}
	if v := os.Getenv("COUNTERMAN_TELEGRAM_TOKEN"); v != "" {
		cfg.Telegram.Token = v
	}
	if v := os.Getenv("COUNTERMAN_WEB_PASSWORD"); v != "" {
		cfg.Web.Auth = v
	}
	if v := os.Getenv("COUNTERMAN_WEB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Web.Port = port
		}
	}
	if v := os.Getenv("COUNTERMAN_NATS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.NATS.Port = port
		}
	}
	if v := os.Getenv("COUNTERMAN_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("COUNTERMAN_VAULT_PASSPHRASE"); v != "" {
		cfg.Vault.Passphrase = v
	}
	if v := os.Getenv("COUNTERMAN_CATALOG_URL"); v != "" {
		cfg.Tools.CatalogURL = v
	}
	if v := os.Getenv("TWILIO_ACCOUNT_SID"); v != "" {
		cfg.SMS.AccountSID = v
	}
	if v := os.Getenv("TWILIO_AUTH_TOKEN"); v != "" {
		cfg.SMS.AuthToken = v
	}
	if v := os.Getenv("TWILIO_PHONE_NUMBER"); v != "" {
		cfg.SMS.FromNumber = v
	}
}

func (c *Config) Validate() error {
	switch c.Profile {
	case "parts", "pool":
	default:
		return fmt.Errorf("invalid profile %q: must be parts or pool", c.Profile)
	}
	if c.Turn.Budget <= 0 {
		return fmt.Errorf("invalid turn budget %v", c.Turn.Budget)
	}
	if c.Router.HistoryWindow < 0 {
		return fmt.Errorf("invalid router history_window %d", c.Router.HistoryWindow)
	}
	if c.History.Limit <= 0 {
		return fmt.Errorf("invalid history limit %d", c.History.Limit)
	}
	if c.Model.Temperature < 0 || c.Model.Temperature > 1 {
		return fmt.Errorf("invalid model temperature %v", c.Model.Temperature)
	}
	return nil
}
