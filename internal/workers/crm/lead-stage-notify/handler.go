package leadstagenotify

import (
	"context"
	"crypto/subtle"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"amocrm-relay/internal/common/config"
	"amocrm-relay/internal/common/errors"
	"amocrm-relay/internal/common/logger"
	"amocrm-relay/internal/common/metrics"
	"amocrm-relay/internal/common/observability"
	"amocrm-relay/internal/common/phone"
)

const (
	Name = "lead-stage-notify"

	SecretQueryParam = "secret"
	SecretHeader     = "X-Webhook-Secret"

	maxBodyBytes  = 10 << 20
	maxFieldBytes = 1 << 20
)

type Handler struct {
	config   *Config
	logger   logger.Logger
	service  *Service
	errors   *errors.ErrorHandler
	obs      *observability.Observability
	validate *responseValidator
}

type HandlerOptions struct {
	AppConfig     *config.Config
	CustomConfig  *Config
	Logger        logger.Logger
	CRM           CRM
	Notifiers     []Notifier
	Phones        *phone.Normalizer
	Observability *observability.Observability
}

func NewHandler(opts HandlerOptions) (*Handler, error) {
	workerConfig := createConfigFromAppConfig(opts.AppConfig, opts.CustomConfig)

	if err := workerConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration for %s: %w", Name, err)
	}
	if opts.CRM == nil {
		return nil, fmt.Errorf("invalid configuration for %s: crm client is required", Name)
	}

	var loggerInstance logger.Logger
	if opts.Logger != nil {
		loggerInstance = opts.Logger
	} else {
		loggerInstance = logger.NewStructured("info", "json")
	}
	loggerInstance = loggerInstance.WithFields(map[string]interface{}{"worker": Name})

	h := &Handler{
		config:   workerConfig,
		logger:   loggerInstance,
		errors:   errors.NewErrorHandler(loggerInstance),
		obs:      opts.Observability,
		validate: newResponseValidator(),
	}
	h.service = NewService(ServiceDependencies{
		Logger:        loggerInstance,
		CRM:           opts.CRM,
		Notifiers:     opts.Notifiers,
		Phones:        opts.Phones,
		Observability: opts.Observability,
	}, workerConfig)

	if workerConfig.WebhookSecret == "" {
		loggerInstance.Warn("Webhook secret not set; every caller is accepted", nil)
	}
	return h, nil
}

// Register mounts the webhook on GET and POST path.
func (h *Handler) Register(router gin.IRoutes, path string) {
	router.GET(path, h.Handle)
	router.POST(path, h.Handle)
	h.logger.Info("Webhook route registered", map[string]interface{}{
		"path":      path,
		"leadKeys":  h.config.LeadFields.String(),
		"contacts":  h.config.ContactFields.String(),
		"secretSet": h.config.WebhookSecret != "",
	})
}

// Handle authenticates the call, collects the payload and answers with the
// normalized payload and every enriched lead. Only a secret mismatch fails
// the call.
func (h *Handler) Handle(c *gin.Context) {
	startTime := time.Now()
	metrics.WebhooksActive.Inc()
	defer metrics.WebhooksActive.Dec()

	requestID := uuid.NewString()
	log := h.logger.WithFields(map[string]interface{}{"requestId": requestID})

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.config.Timeout)
	defer cancel()
	ctx, span := h.obs.StartSpan(ctx, "webhook.handle",
		attribute.String("request.id", requestID),
		attribute.String("http.method", c.Request.Method),
	)
	defer span.End()

	if !h.authorized(c) {
		h.finish(ctx, "unauthorized", startTime)
		h.errors.Respond(c, errors.NewAuthenticationError("webhook secret mismatch"))
		return
	}

	payload := h.collect(c, log)
	log.Info("Processing amoCRM webhook", map[string]interface{}{
		"method": c.Request.Method,
		"keys":   payload.Len(),
	})

	leads := h.service.Process(ctx, payload)
	response := &WebhookResponse{OK: true, WebhookMinimal: payload, LeadsFull: leads}
	if err := h.validate.check(response); err != nil {
		log.Warn("Webhook response does not match its schema", map[string]interface{}{
			"error": err.Error(),
		})
	}

	span.SetAttributes(attribute.Int("leads.enriched", len(leads)))
	h.finish(ctx, "ok", startTime)
	log.Info("Webhook processed", map[string]interface{}{
		"leads":      len(leads),
		"durationMs": time.Since(startTime).Milliseconds(),
	})
	c.JSON(http.StatusOK, response)
}

// authorized compares the supplied secret with the configured one. The query
// parameter wins over the header when both are non-empty.
func (h *Handler) authorized(c *gin.Context) bool {
	if h.config.WebhookSecret == "" {
		return true
	}
	supplied := c.Query(SecretQueryParam)
	if supplied == "" {
		supplied = c.GetHeader(SecretHeader)
	}
	return subtle.ConstantTimeCompare([]byte(supplied), []byte(h.config.WebhookSecret)) == 1
}

func (h *Handler) finish(ctx context.Context, status string, startTime time.Time) {
	duration := time.Since(startTime)
	metrics.WebhooksReceived.WithLabelValues(status).Inc()
	metrics.WebhookDuration.WithLabelValues(status).Observe(duration.Seconds())
	h.obs.RecordWebhook(ctx, status, duration)
}

// collect reads the JSON body, the form fields and the query string of the
// request. Unreadable parts are logged and treated as empty.
func (h *Handler) collect(c *gin.Context, log logger.Logger) *RawPayload {
	if c.Request.Body == nil {
		c.Request.Body = http.NoBody
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)

	var jsonBody []byte
	var form []KeyValue

	mediaType, _, _ := mime.ParseMediaType(c.GetHeader("Content-Type"))
	if mediaType == "multipart/form-data" {
		form = h.multipartFields(c, log)
	} else {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			log.Warn("Failed to read webhook body", map[string]interface{}{"error": err.Error()})
			body = nil
		}
		switch {
		case isJSONMediaType(mediaType):
			jsonBody = body
		case mediaType == "application/x-www-form-urlencoded":
			form = ParseOrderedQuery(string(body))
		}
	}

	payload, err := CollectPayload(jsonBody, form, ParseOrderedQuery(c.Request.URL.RawQuery))
	if err != nil {
		log.Warn("Ignoring malformed webhook body", map[string]interface{}{
			"code":  string(errors.CodeOf(err)),
			"error": err.Error(),
		})
	}
	return payload
}

// multipartFields reads the text fields of a multipart body in wire order.
// File parts are skipped.
func (h *Handler) multipartFields(c *gin.Context, log logger.Logger) []KeyValue {
	reader, err := c.Request.MultipartReader()
	if err != nil {
		log.Warn("Failed to parse multipart webhook body", map[string]interface{}{"error": err.Error()})
		return nil
	}

	var out []KeyValue
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			return out
		}
		if err != nil {
			log.Warn("Failed to read multipart webhook body", map[string]interface{}{"error": err.Error()})
			return out
		}

		name := part.FormName()
		if name == "" || part.FileName() != "" {
			part.Close()
			continue
		}
		value, err := io.ReadAll(io.LimitReader(part, maxFieldBytes))
		part.Close()
		if err != nil {
			log.Warn("Failed to read multipart field", map[string]interface{}{"field": name, "error": err.Error()})
			return out
		}
		out = append(out, KeyValue{Key: name, Value: string(value)})
	}
}

func isJSONMediaType(mediaType string) bool {
	if mediaType == "application/json" {
		return true
	}
	return strings.HasPrefix(mediaType, "application/") && strings.HasSuffix(mediaType, "+json")
}

func (h *Handler) GetConfig() *Config {
	return h.config
}
