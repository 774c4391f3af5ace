package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"amocrm-relay/internal/common/phone"
	"amocrm-relay/internal/common/validation"
)

// legacyEnv maps the flat variable names of earlier deployments onto config
// keys whose derived env name differs. They only apply when the derived
// variable is unset.
var legacyEnv = map[string]string{
	"server.port":            "PORT",
	"cf.contact_fields_json": "CONTACT_CF_FIELDS_JSON",
}

func Load() (*Config, error) {
	envFile := loadEnvFile()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig()

	cfg, err := build(v)
	if err != nil {
		return nil, err
	}
	cfg.EnvFile = envFile
	return cfg, nil
}

// LoadFromFile reads a single YAML file plus environment overrides.
func LoadFromFile(path string) (*Config, error) {
	envFile := loadEnvFile()

	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg, err := build(v)
	if err != nil {
		return nil, err
	}
	cfg.EnvFile = envFile
	return cfg, nil
}

// LoadFromEnv builds the configuration from defaults and environment only.
func LoadFromEnv() (*Config, error) {
	return build(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func build(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)
	applyLegacyEnv(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	normalize(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func loadEnvFile() string {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
		"../../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return path
			}
		}
	}
	return ""
}

func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			if expanded := os.ExpandEnv(strVal); expanded != strVal && expanded != "" {
				v.Set(key, expanded)
			}
		}
	}
}

func applyLegacyEnv(v *viper.Viper) {
	replacer := strings.NewReplacer(".", "_", "-", "_")
	for key, legacy := range legacyEnv {
		derived := strings.ToUpper(replacer.Replace(key))
		if _, set := os.LookupEnv(derived); set {
			continue
		}
		if val, ok := os.LookupEnv(legacy); ok && val != "" {
			v.Set(key, val)
		}
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "amocrm-relay")
	v.SetDefault("app.version", "dev")
	v.SetDefault("app.environment", "development")

	v.SetDefault("server.port", 8000)
	v.SetDefault("server.webhook_path", "/webhooks/amocrm/stage")
	v.SetDefault("server.read_header_timeout", 15000)
	v.SetDefault("server.shutdown_timeout", 30000)

	v.SetDefault("amo.base_url", "")
	v.SetDefault("amo.access_token", "")
	v.SetDefault("amo.webhook_secret", "")
	v.SetDefault("amo.timeout", 30000)

	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.api_endpoint", "https://api.telegram.org/bot%s/%s")
	v.SetDefault("telegram.timeout", 20000)
	v.SetDefault("telegram.message_limit", 4096)

	v.SetDefault("cf.training_day_id", "1057359")
	v.SetDefault("cf.fields_json", "")
	v.SetDefault("cf.contact_fields_json", "")
	v.SetDefault("cf.contact_limit", 3)
	v.SetDefault("cf.phone_region", "")

	v.SetDefault("card.title", "Сделка")
	v.SetDefault("card.untitled", "Без названия")
	v.SetDefault("card.placeholder", "—")

	v.SetDefault("notifications.sns.enabled", false)
	v.SetDefault("notifications.sns.region", "")
	v.SetDefault("notifications.sns.topic_arn", "")
	v.SetDefault("notifications.sns.subject", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.output", "stdout")
}

// normalize trims values and derives the parsed field maps.
func normalize(cfg *Config) {
	cfg.Amo.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Amo.BaseURL), "/")
	cfg.Amo.AccessToken = strings.TrimSpace(cfg.Amo.AccessToken)
	cfg.Telegram.ChatID = strings.TrimSpace(cfg.Telegram.ChatID)
	cfg.CF.PhoneRegion = strings.ToUpper(strings.TrimSpace(cfg.CF.PhoneRegion))
	cfg.Logging.Level = strings.ToLower(cfg.Logging.Level)
	cfg.Logging.Format = strings.ToLower(cfg.Logging.Format)
	cfg.Tracing.Output = strings.ToLower(strings.TrimSpace(cfg.Tracing.Output))

	var warn string
	cfg.LeadFields, warn = resolveFieldMap("cf.fields_json", cfg.CF.FieldsJSON, DefaultLeadFields(cfg.CF.TrainingDayID))
	if warn != "" {
		cfg.Warnings = append(cfg.Warnings, warn)
	}
	cfg.ContactFields, warn = resolveFieldMap("cf.contact_fields_json", cfg.CF.ContactFieldsJSON, DefaultContactFields())
	if warn != "" {
		cfg.Warnings = append(cfg.Warnings, warn)
	}

	if cfg.Amo.BaseURL == "" || cfg.Amo.AccessToken == "" {
		cfg.Warnings = append(cfg.Warnings, "amo.base_url or amo.access_token is empty; CRM enrichment disabled")
	}
	if !cfg.Telegram.Configured() {
		cfg.Warnings = append(cfg.Warnings, "telegram.bot_token or telegram.chat_id is empty; chat delivery disabled")
	}
}

func validateConfig(cfg *Config) error {
	v := validation.NewValidator()
	if err := v.RegisterValidation("phone_region", func(fl validator.FieldLevel) bool {
		return phone.KnownRegion(fl.Field().String())
	}); err != nil {
		return err
	}
	return v.Struct(cfg)
}

func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
