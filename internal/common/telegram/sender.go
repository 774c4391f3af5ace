// Package telegram delivers HTML formatted messages to one Telegram chat.
package telegram

import (
	"context"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"amocrm-relay/internal/common/errors"
	commonhttp "amocrm-relay/internal/common/http"
	"amocrm-relay/internal/common/logger"
	"amocrm-relay/internal/common/metrics"
)

const (
	ChannelName = "telegram"

	// MaxMessageLength is the Bot API limit for one text message, in characters.
	MaxMessageLength = 4096
)

type Config struct {
	BotToken     string
	ChatID       string
	APIEndpoint  string
	Timeout      time.Duration
	MessageLimit int
}

// Sender posts messages through the Bot API sendMessage method.
type Sender struct {
	config     Config
	httpClient *commonhttp.Client
	logger     logger.Logger
}

func NewSender(cfg Config, log logger.Logger) *Sender {
	if cfg.APIEndpoint == "" {
		cfg.APIEndpoint = tgbotapi.APIEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.MessageLimit <= 0 || cfg.MessageLimit > MaxMessageLength {
		cfg.MessageLimit = MaxMessageLength
	}
	return &Sender{
		config:     cfg,
		httpClient: commonhttp.NewClient(cfg.Timeout),
		logger:     log.WithFields(map[string]interface{}{"channel": ChannelName}),
	}
}

func (s *Sender) Name() string { return ChannelName }

func (s *Sender) Configured() bool {
	return s.config.BotToken != "" && s.config.ChatID != ""
}

// Notify sends text, split into chunks of at most MessageLimit characters.
// Every chunk is attempted; failures are logged and the first one is
// returned. An unconfigured sender logs a warning and returns a
// CONFIGURATION_MISSING error without any network call.
func (s *Sender) Notify(ctx context.Context, text string) error {
	if !s.Configured() {
		s.logger.Warn("Telegram bot token or chat id not set; skip sending", nil)
		metrics.NotificationsSent.WithLabelValues(ChannelName, "skipped").Inc()
		return errors.NewConfigurationMissingError(ChannelName, "bot token or chat id is empty")
	}

	bot := s.bot(ctx)
	chunks := SplitMessage(text, s.config.MessageLimit)

	var firstErr error
	for i, chunk := range chunks {
		if _, err := bot.Send(s.message(chunk)); err != nil {
			metrics.NotificationsSent.WithLabelValues(ChannelName, "failed").Inc()
			s.logger.Error("Telegram send error", map[string]interface{}{
				"chunk":  i + 1,
				"chunks": len(chunks),
				"error":  err.Error(),
			})
			if firstErr == nil {
				firstErr = errors.NewNotificationSendFailedError(ChannelName, err)
			}
			continue
		}
		metrics.NotificationsSent.WithLabelValues(ChannelName, "sent").Inc()
	}
	return firstErr
}

// bot builds a client bound to ctx. The struct is filled directly because
// NewBotAPI performs a getMe round trip on every construction.
func (s *Sender) bot(ctx context.Context) *tgbotapi.BotAPI {
	bot := &tgbotapi.BotAPI{
		Token:  s.config.BotToken,
		Client: s.httpClient.Bind(ctx),
		Buffer: 100,
	}
	bot.SetAPIEndpoint(s.config.APIEndpoint)
	return bot
}

func (s *Sender) message(text string) tgbotapi.MessageConfig {
	var msg tgbotapi.MessageConfig
	if id, err := strconv.ParseInt(s.config.ChatID, 10, 64); err == nil {
		msg = tgbotapi.NewMessage(id, text)
	} else {
		msg = tgbotapi.NewMessageToChannel(s.config.ChatID, text)
	}
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	return msg
}

// SplitMessage cuts text into consecutive pieces of at most limit runes.
// Empty text yields no pieces.
func SplitMessage(text string, limit int) []string {
	if text == "" {
		return nil
	}
	if limit <= 0 {
		limit = MaxMessageLength
	}
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var chunks []string
	var b strings.Builder
	n := 0
	for _, r := range text {
		b.WriteRune(r)
		n++
		if n == limit {
			chunks = append(chunks, b.String())
			b.Reset()
			n = 0
		}
	}
	if b.Len() > 0 {
		chunks = append(chunks, b.String())
	}
	return chunks
}
