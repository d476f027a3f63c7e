package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type Backend struct {
	BaseURL string `json:"base_url"`
	APIKey  string `json:"api_key"`
}

type Config struct {
	DataDir       string `json:"data_dir"`
	LogLevel      string `json:"log_level"`
	MaxConcurrent int    `json:"max_concurrent"`
	LLM           struct {
		OpenAI           Backend `json:"openai"`
		Anthropic        Backend `json:"anthropic"`
		DefaultModel     string  `json:"default_model"`
		ClassifierModel  string  `json:"classifier_model"`
		MaxTokens        int     `json:"max_tokens"`
		Temperature      float64 `json:"temperature"`
		MaxContextTokens int     `json:"max_context_tokens"`
		OutputReserve    int     `json:"output_reserve"`
	} `json:"llm"`
	Brave struct {
		APIKey string `json:"api_key"`
	} `json:"brave"`
	Search struct {
		ResultLimit int `json:"result_limit"`
	} `json:"search"`
	Sync struct {
		IntervalSeconds    int    `json:"interval_seconds"`
		MinUpdateSpacingMs int    `json:"min_update_spacing_ms"`
		SnapshotCap        int    `json:"snapshot_cap"`
		Remote             string `json:"remote"`
		RemoteURL          string `json:"remote_url"`
		RemoteToken        string `json:"remote_token"`
	} `json:"sync"`
	Editor struct {
		RequestTimeoutMs int `json:"request_timeout_ms"`
	} `json:"editor"`
	Storage struct {
		BaseURL       string `json:"base_url"`
		SigningKey    string `json:"signing_key"`
		URLTTLSeconds int    `json:"url_ttl_seconds"`
	} `json:"storage"`
	HTTP struct {
		Enabled bool   `json:"enabled"`
		Listen  string `json:"listen"`
	} `json:"http"`
	Telegram struct {
		Token  string `json:"token"`
		ChatID int64  `json:"chat_id"`
	} `json:"telegram"`
}

// Sync remote modes.
const (
	RemoteLocal = "local"
	RemoteHTTP  = "http"
)

// Defaults returns a Config populated with default values.
func Defaults() *Config {
	cfg := &Config{
		DataDir:       filepath.Join(os.Getenv("HOME"), ".inkpilot"),
		LogLevel:      "info",
		MaxConcurrent: 2,
	}
	cfg.LLM.OpenAI.BaseURL = "https://api.openai.com/v1"
	cfg.LLM.Anthropic.BaseURL = "https://api.anthropic.com"
	cfg.LLM.DefaultModel = "gpt-4o"
	cfg.LLM.ClassifierModel = "gpt-4o-mini"
	cfg.LLM.MaxTokens = 4096
	cfg.LLM.Temperature = 0.7
	cfg.LLM.MaxContextTokens = 128000
	cfg.LLM.OutputReserve = 4096
	cfg.Search.ResultLimit = 5
	cfg.Sync.IntervalSeconds = 30
	cfg.Sync.MinUpdateSpacingMs = 2000
	cfg.Sync.SnapshotCap = 20
	cfg.Sync.Remote = RemoteLocal
	cfg.Editor.RequestTimeoutMs = 3000
	cfg.Storage.URLTTLSeconds = 300
	cfg.HTTP.Enabled = true
	cfg.HTTP.Listen = "127.0.0.1:8484"
	return cfg
}

// Load reads the config at path over the defaults, writing the defaults
// when the file does not exist. Environment variables take precedence.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	} else if os.IsNotExist(err) {
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	overrides := []struct {
		env string
		dst *string
	}{
		{"OPENAI_API_KEY", &cfg.LLM.OpenAI.APIKey},
		{"OPENAI_BASE_URL", &cfg.LLM.OpenAI.BaseURL},
		{"ANTHROPIC_API_KEY", &cfg.LLM.Anthropic.APIKey},
		{"ANTHROPIC_BASE_URL", &cfg.LLM.Anthropic.BaseURL},
		{"BRAVE_API_KEY", &cfg.Brave.APIKey},
		{"TELEGRAM_BOT_TOKEN", &cfg.Telegram.Token},
		{"INKPILOT_REMOTE_TOKEN", &cfg.Sync.RemoteToken},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.dst = v
		}
	}
}

// Save writes cfg to path atomically, creating the parent directory.
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeFile(path, data)
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data = append(data, '\n')
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// ToMap converts cfg to its nested JSON map form.
func ToMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return m, nil
}

// ListValues returns cfg as a flat dot-keyed map, optionally masking secrets.
func ListValues(cfg *Config, mask bool) (map[string]any, error) {
	m, err := ToMap(cfg)
	if err != nil {
		return nil, err
	}
	flat := Flatten(m)
	if mask {
		flat = MaskSecrets(flat)
	}
	return flat, nil
}

func readRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return m, nil
}

// GetValue returns the value stored in the config file under a
// dot-separated key. The file is created with defaults if missing.
func GetValue(path, key string) (any, error) {
	if _, err := Load(path); err != nil {
		return nil, err
	}
	m, err := readRaw(path)
	if err != nil {
		return nil, err
	}
	v, ok := Flatten(m)[key]
	if !ok {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	return v, nil
}

// SetValue stores value under a dot-separated key. Only keys the Config
// defines are accepted, and the value is parsed to the key's type.
func SetValue(path, key, value string) error {
	m, err := readRaw(path)
	if err != nil {
		return err
	}
	defaults, err := ToMap(Defaults())
	if err != nil {
		return err
	}
	def, known := Flatten(defaults)[key]
	if !known {
		return fmt.Errorf("unknown config key: %s", key)
	}
	parsed, err := coerce(key, value, def)
	if err != nil {
		return err
	}
	setPath(m, strings.Split(key, "."), parsed)

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeFile(path, data)
}
