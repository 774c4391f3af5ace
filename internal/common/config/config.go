// internal/common/config/config.go
package config

// Config is the main application configuration struct. It is built once by
// Load and shared read-only afterwards.
type Config struct {
	App           AppConfig          `mapstructure:"app"`
	Server        ServerConfig       `mapstructure:"server"`
	Amo           AmoConfig          `mapstructure:"amo"`
	Telegram      TelegramConfig     `mapstructure:"telegram"`
	CF            CustomFieldsConfig `mapstructure:"cf"`
	Card          CardConfig         `mapstructure:"card"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Logging       LoggingConfig      `mapstructure:"logging"`
	Tracing       TracingConfig      `mapstructure:"tracing"`

	// Parsed from CF.FieldsJSON and CF.ContactFieldsJSON.
	LeadFields    FieldMap `mapstructure:"-"`
	ContactFields FieldMap `mapstructure:"-"`

	// Non-fatal problems found while loading, e.g. a malformed field map
	// that was replaced by its default.
	Warnings []string `mapstructure:"-"`
	EnvFile  string   `mapstructure:"-"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Port              int    `mapstructure:"port" validate:"min=1,max=65535"`
	WebhookPath       string `mapstructure:"webhook_path" validate:"required,startswith=/"`
	ReadHeaderTimeout int    `mapstructure:"read_header_timeout" validate:"gt=0"` // milliseconds
	ShutdownTimeout   int    `mapstructure:"shutdown_timeout" validate:"gt=0"`    // milliseconds
}

// AmoConfig holds the amoCRM account settings. An empty BaseURL or
// AccessToken disables CRM calls.
type AmoConfig struct {
	BaseURL       string `mapstructure:"base_url" validate:"omitempty,url"`
	AccessToken   string `mapstructure:"access_token"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	Timeout       int    `mapstructure:"timeout" validate:"gt=0"` // milliseconds
}

// Configured reports whether CRM calls can be made.
func (a AmoConfig) Configured() bool {
	return a.BaseURL != "" && a.AccessToken != ""
}

type TelegramConfig struct {
	BotToken     string `mapstructure:"bot_token"`
	ChatID       string `mapstructure:"chat_id"`
	APIEndpoint  string `mapstructure:"api_endpoint" validate:"required,contains=%s"`
	Timeout      int    `mapstructure:"timeout" validate:"gt=0"` // milliseconds
	MessageLimit int    `mapstructure:"message_limit" validate:"min=1,max=4096"`
}

func (t TelegramConfig) Configured() bool {
	return t.BotToken != "" && t.ChatID != ""
}

// CustomFieldsConfig selects which custom fields are read from leads and
// contacts.
type CustomFieldsConfig struct {
	TrainingDayID     string `mapstructure:"training_day_id"`
	FieldsJSON        string `mapstructure:"fields_json"`
	ContactFieldsJSON string `mapstructure:"contact_fields_json"`
	ContactLimit      int    `mapstructure:"contact_limit" validate:"min=1"`
	PhoneRegion       string `mapstructure:"phone_region" validate:"omitempty,len=2,uppercase,phone_region"`
}

// CardConfig holds the fixed texts of the chat card.
type CardConfig struct {
	Title       string `mapstructure:"title" validate:"required"`
	Untitled    string `mapstructure:"untitled" validate:"required"`
	Placeholder string `mapstructure:"placeholder" validate:"required"`
}

type NotificationConfig struct {
	SNS SNSConfig `mapstructure:"sns"`
}

// SNSConfig enables mirroring every card to an SNS topic.
type SNSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Region   string `mapstructure:"region" validate:"required_if=Enabled true"`
	TopicARN string `mapstructure:"topic_arn" validate:"required_if=Enabled true"`
	Subject  string `mapstructure:"subject"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
	Output string `mapstructure:"output"`
}

// TracingConfig exports spans as JSON lines to stdout or stderr.
type TracingConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Output  string `mapstructure:"output" validate:"oneof=stdout stderr"`
}
