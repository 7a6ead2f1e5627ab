package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// ErrMissingToken is returned by RequireToken when no bot token is configured.
var ErrMissingToken = errors.New("the telegram bot token isn't set (telegram.token, $TELEGRAM_BOT_TOKEN or $TELOXIDE_TOKEN)")

// Config is the root configuration for telegramd.
type Config struct {
	Telegram    TelegramConfig    `json:"telegram" yaml:"telegram" toml:"telegram"`
	HTTP        HTTPConfig        `json:"http" yaml:"http" toml:"http"`
	Storage     StorageConfig     `json:"storage" yaml:"storage" toml:"storage"`
	Log         LogConfig         `json:"log" yaml:"log" toml:"log"`
	DeliveryLog DeliveryLogConfig `json:"deliveryLog" yaml:"deliveryLog" toml:"deliveryLog"`
}

// TelegramConfig configures the Bot API client. APIEndpoint is a format string
// with two %s verbs (token, method). Timeouts are in seconds. SendPerMinute and
// SendBurst size the bucket shared by all outbound sends; ChatPerMinute and
// ChatBurst size the bucket each chat gets.
type TelegramConfig struct {
	Token          string `json:"token" yaml:"token" toml:"token"`
	APIEndpoint    string `json:"apiEndpoint,omitempty" yaml:"apiEndpoint,omitempty" toml:"apiEndpoint,omitempty"`
	PollTimeout    int    `json:"pollTimeout" yaml:"pollTimeout" toml:"pollTimeout"`
	RequestTimeout int    `json:"requestTimeout" yaml:"requestTimeout" toml:"requestTimeout"`
	Debug          bool   `json:"debug,omitempty" yaml:"debug,omitempty" toml:"debug,omitempty"`
	SendPerMinute  int    `json:"sendPerMinute" yaml:"sendPerMinute" toml:"sendPerMinute"`
	SendBurst      int    `json:"sendBurst" yaml:"sendBurst" toml:"sendBurst"`
	ChatPerMinute  int    `json:"chatPerMinute" yaml:"chatPerMinute" toml:"chatPerMinute"`
	ChatBurst      int    `json:"chatBurst" yaml:"chatBurst" toml:"chatBurst"`
}

type HTTPConfig struct {
	Addr string `json:"addr" yaml:"addr" toml:"addr"`
}

// StorageConfig locates uploaded files. MaxFileBytes of 0 means unlimited.
type StorageConfig struct {
	UploadDir    string `json:"uploadDir" yaml:"uploadDir" toml:"uploadDir"`
	MaxFileBytes int64  `json:"maxFileBytes,omitempty" yaml:"maxFileBytes,omitempty" toml:"maxFileBytes,omitempty"`
}

// LogConfig sets the slog level. File, when set, receives logs instead of stderr.
type LogConfig struct {
	Level string `json:"level" yaml:"level" toml:"level"`
	File  string `json:"file,omitempty" yaml:"file,omitempty" toml:"file,omitempty"`
}

// DeliveryLogConfig controls the sqlite audit trail. RetentionDays of 0 keeps
// rows forever.
type DeliveryLogConfig struct {
	Enabled       bool   `json:"enabled" yaml:"enabled" toml:"enabled"`
	DBPath        string `json:"dbPath" yaml:"dbPath" toml:"dbPath"`
	RetentionDays int    `json:"retentionDays" yaml:"retentionDays" toml:"retentionDays"`
}

// DefaultConfigDir returns the default config directory (~/.telegramd).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".telegramd"
	}
	return filepath.Join(home, ".telegramd")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// Load reads the file at path, substitutes ${VAR} references, applies
// environment overrides and validates the result. The format follows the
// file extension: .json, .yaml/.yml or .toml.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := decode(path, data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}
	return finish(cfg)
}

// LoadRaw decodes the file at path onto the defaults exactly as written:
// ${VAR} references, ~ paths and environment overrides are left alone. It is
// the view to edit and Save back without leaking the environment into the file.
func LoadRaw(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}
	cfg := Defaults()
	if err := decode(path, data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Resolve returns the effective configuration for a raw one: ${VAR}
// references substituted, environment overrides applied, paths expanded and
// the result validated. raw is not modified.
func Resolve(raw *Config) (*Config, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot resolve config: %w", err)
	}
	return finish(cfg)
}

// LoadOrDefaults behaves like Load but falls back to defaults plus
// environment overrides when the file does not exist.
func LoadOrDefaults(path string) (*Config, bool, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, true, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, false, err
	}
	cfg, err = finish(Defaults())
	return cfg, false, err
}

func finish(cfg *Config) (*Config, error) {
	ApplyEnv(cfg)
	cfg.Storage.UploadDir = ExpandPath(cfg.Storage.UploadDir)
	cfg.DeliveryLog.DBPath = ExpandPath(cfg.DeliveryLog.DBPath)
	cfg.Log.File = ExpandPath(cfg.Log.File)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

type format int

const (
	formatJSON format = iota
	formatYAML
	formatTOML
)

func formatOf(path string) format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return formatYAML
	case ".toml":
		return formatTOML
	default:
		return formatJSON
	}
}

func decode(path string, data []byte, cfg *Config) error {
	switch formatOf(path) {
	case formatYAML:
		return yaml.Unmarshal(data, cfg)
	case formatTOML:
		return toml.Unmarshal(data, cfg)
	default:
		return json.Unmarshal(data, cfg)
	}
}

// Marshal encodes cfg in the format implied by path's extension.
func Marshal(path string, cfg *Config) ([]byte, error) {
	switch formatOf(path) {
	case formatYAML:
		return yaml.Marshal(cfg)
	case formatTOML:
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	}
}

// Environment variables that override file values when set and non-empty.
const (
	EnvToken       = "TELEGRAM_BOT_TOKEN"
	EnvLegacyToken = "TELOXIDE_TOKEN"
	EnvHTTPAddr    = "TELEGRAMD_HTTP_ADDR"
	EnvUploadDir   = "TELEGRAMD_UPLOAD_DIR"
	EnvLogLevel    = "TELEGRAMD_LOG_LEVEL"
	EnvLegacyLevel = "LOG_LEVEL"
	EnvDBPath      = "TELEGRAMD_DB_PATH"
)

// ApplyEnv copies environment overrides into cfg.
func ApplyEnv(cfg *Config) {
	if v := firstEnv(EnvToken, EnvLegacyToken); v != "" {
		cfg.Telegram.Token = v
	}
	if v := firstEnv(EnvHTTPAddr); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := firstEnv(EnvUploadDir); v != "" {
		cfg.Storage.UploadDir = v
	}
	if v := firstEnv(EnvLogLevel, EnvLegacyLevel); v != "" {
		cfg.Log.Level = strings.ToLower(v)
	}
	if v := firstEnv(EnvDBPath); v != "" {
		cfg.DeliveryLog.DBPath = v
	}
}

func firstEnv(names ...string) string {
	for _, n := range names {
		if v := strings.TrimSpace(os.Getenv(n)); v != "" {
			return v
		}
	}
	return ""
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // Keep original if no env var and no default
		}
		return val
	})
}

// Save writes cfg to path, creating the directory if needed.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := Marshal(path, cfg)
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values. The bot token is not
// checked here; see RequireToken.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
		// valid
	default:
		errs = append(errs, "log.level must be one of: debug, info, warn, error")
	}

	if _, _, err := net.SplitHostPort(cfg.HTTP.Addr); err != nil {
		errs = append(errs, fmt.Sprintf("http.addr %q is not host:port", cfg.HTTP.Addr))
	}

	if strings.TrimSpace(cfg.Storage.UploadDir) == "" {
		errs = append(errs, "storage.uploadDir must not be empty")
	}
	if cfg.Storage.MaxFileBytes < 0 {
		errs = append(errs, "storage.maxFileBytes must be >= 0")
	}

	if cfg.Telegram.PollTimeout < 0 {
		errs = append(errs, "telegram.pollTimeout must be >= 0")
	}
	if cfg.Telegram.RequestTimeout < 1 {
		errs = append(errs, "telegram.requestTimeout must be >= 1")
	}
	if cfg.Telegram.SendPerMinute < 1 || cfg.Telegram.SendBurst < 1 {
		errs = append(errs, "telegram.sendPerMinute and telegram.sendBurst must be >= 1")
	}
	if cfg.Telegram.ChatPerMinute < 1 || cfg.Telegram.ChatBurst < 1 {
		errs = append(errs, "telegram.chatPerMinute and telegram.chatBurst must be >= 1")
	}
	if cfg.Telegram.APIEndpoint != "" && strings.Count(cfg.Telegram.APIEndpoint, "%s") != 2 {
		errs = append(errs, "telegram.apiEndpoint must contain two %s placeholders (token, method)")
	}

	if cfg.DeliveryLog.Enabled && strings.TrimSpace(cfg.DeliveryLog.DBPath) == "" {
		errs = append(errs, "deliveryLog.dbPath is required when the delivery log is enabled")
	}
	if cfg.DeliveryLog.RetentionDays < 0 {
		errs = append(errs, "deliveryLog.retentionDays must be >= 0")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// RequireToken fails when no bot token is configured.
func RequireToken(cfg *Config) error {
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return ErrMissingToken
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
