package leadstagenotify

import (
	"fmt"
	"strings"
	"time"

	"amocrm-relay/internal/common/config"
)

type Config struct {
	WebhookSecret string
	AmoBaseURL    string
	LeadFields    config.FieldMap
	ContactFields config.FieldMap
	ContactLimit  int
	Labels        Labels
	// Upper bound for one whole webhook call, CRM and chat requests included.
	Timeout time.Duration
}

func DefaultConfig() *Config {
	return &Config{
		LeadFields:    config.DefaultLeadFields("1057359"),
		ContactFields: config.DefaultContactFields(),
		ContactLimit:  3,
		Labels:        DefaultLabels(),
		Timeout:       2 * time.Minute,
	}
}

func (c *Config) Validate() error {
	if c.ContactLimit <= 0 {
		return fmt.Errorf("contact_limit must be positive")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.Labels.Title == "" || c.Labels.Untitled == "" || c.Labels.Placeholder == "" {
		return fmt.Errorf("card labels are required")
	}
	return nil
}

func createConfigFromAppConfig(appConfig *config.Config, customConfig *Config) *Config {
	if customConfig != nil {
		return customConfig
	}

	cfg := DefaultConfig()
	if appConfig == nil {
		return cfg
	}

	cfg.WebhookSecret = appConfig.Amo.WebhookSecret
	cfg.AmoBaseURL = strings.TrimRight(appConfig.Amo.BaseURL, "/")
	if len(appConfig.LeadFields) > 0 {
		cfg.LeadFields = appConfig.LeadFields
	}
	if len(appConfig.ContactFields) > 0 {
		cfg.ContactFields = appConfig.ContactFields
	}
	if appConfig.CF.ContactLimit > 0 {
		cfg.ContactLimit = appConfig.CF.ContactLimit
	}
	if appConfig.Card.Title != "" {
		cfg.Labels.Title = appConfig.Card.Title
	}
	if appConfig.Card.Untitled != "" {
		cfg.Labels.Untitled = appConfig.Card.Untitled
	}
	if appConfig.Card.Placeholder != "" {
		cfg.Labels.Placeholder = appConfig.Card.Placeholder
	}
	return cfg
}
