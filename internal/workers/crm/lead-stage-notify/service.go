package leadstagenotify

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"amocrm-relay/internal/common/errors"
	"amocrm-relay/internal/common/logger"
	"amocrm-relay/internal/common/metrics"
	"amocrm-relay/internal/common/observability"
)

const (
	LeadResultEnriched = "enriched"
	LeadResultSkipped  = "skipped"

	ContactLookupOK            = "ok"
	ContactLookupNotConfigured = "not_configured"
	ContactLookupFailed        = "failed"
)

type Service struct {
	config    *Config
	logger    logger.Logger
	crm       CRM
	contacts  *ContactEnricher
	notifiers []Notifier
	obs       *observability.Observability
}

func NewService(deps ServiceDependencies, config *Config) *Service {
	log := deps.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Service{
		config:    config,
		logger:    log,
		crm:       deps.CRM,
		contacts:  NewContactEnricher(deps.CRM, config.ContactFields, deps.Phones, log),
		notifiers: deps.Notifiers,
		obs:       deps.Observability,
	}
}

// Process enriches every lead referenced by payload, in extraction order,
// and sends one card per enriched lead to every notifier. Leads that cannot
// be fetched are skipped. The result is never nil.
func (s *Service) Process(ctx context.Context, payload *RawPayload) []EnrichedLead {
	leadIDs := ExtractLeadIDs(payload)
	enriched := make([]EnrichedLead, 0, len(leadIDs))

	if len(leadIDs) == 0 {
		s.logger.Info("No lead ids in webhook payload", map[string]interface{}{
			"keys": payload.Len(),
		})
		return enriched
	}

	for _, leadID := range leadIDs {
		item, ok := s.processLead(ctx, leadID)
		if !ok {
			continue
		}
		enriched = append(enriched, *item)
	}
	return enriched
}

func (s *Service) processLead(ctx context.Context, leadID string) (*EnrichedLead, bool) {
	ctx, span := s.obs.StartSpan(ctx, "lead.process", attribute.String("lead.id", leadID))
	defer span.End()

	lead, err := s.crm.GetLead(ctx, leadID)
	if err == nil && lead == nil {
		err = errors.NewResourceNotFoundError("amocrm", "lead "+leadID+" is empty")
	}
	if err != nil {
		fields := map[string]interface{}{
			"leadId":    leadID,
			"errorCode": string(errors.CodeOf(err)),
			"error":     err.Error(),
		}
		switch errors.CodeOf(err) {
		case errors.ErrCodeResourceNotFound, errors.ErrCodeConfigurationMissing:
			s.logger.Info("Lead skipped", fields)
		default:
			s.logger.Warn("Lead fetch failed, skipping", fields)
		}
		span.SetStatus(codes.Error, err.Error())
		s.recordLead(ctx, LeadResultSkipped)
		return nil, false
	}

	contactIDs := lead.ContactIDs()
	if len(contactIDs) > s.config.ContactLimit {
		contactIDs = contactIDs[:s.config.ContactLimit]
	}
	contacts, err := s.contacts.Enrich(ctx, contactIDs)
	if len(contactIDs) > 0 {
		s.recordContactLookup(span, err)
	}

	item := &EnrichedLead{
		ID:           leadID,
		Name:         lead.Name,
		Price:        passThrough(lead.Price),
		PipelineID:   passThrough(lead.PipelineID),
		StatusID:     passThrough(lead.StatusID),
		CustomFields: ReadLeadFields(lead, s.config.LeadFields),
		Contacts:     contacts.Records(),
		Link:         LeadLink(s.config.AmoBaseURL, leadID),
	}
	span.SetAttributes(attribute.Int("lead.contacts", len(item.Contacts)))

	s.notify(ctx, leadID, FormatNotification(item, s.config.Labels))
	s.recordLead(ctx, LeadResultEnriched)

	s.logger.Info("Lead enriched", map[string]interface{}{
		"leadId":   leadID,
		"contacts": len(item.Contacts),
		"fields":   len(item.CustomFields),
	})
	return item, true
}

// notify hands the card to every notifier. Failures are logged and never
// stop the remaining notifiers.
func (s *Service) notify(ctx context.Context, leadID, text string) {
	for _, n := range s.notifiers {
		err := n.Notify(ctx, text)
		if err == nil {
			continue
		}
		if errors.HasCode(err, errors.ErrCodeConfigurationMissing) {
			continue
		}
		s.logger.Warn("Notification failed", map[string]interface{}{
			"leadId":    leadID,
			"channel":   n.Name(),
			"errorCode": string(errors.CodeOf(err)),
			"error":     err.Error(),
		})
	}
}

// recordContactLookup counts one contact lookup. A failed lookup still
// leaves the lead enriched with an empty contact list.
func (s *Service) recordContactLookup(span trace.Span, err error) {
	switch {
	case err == nil:
		metrics.ContactLookups.WithLabelValues(ContactLookupOK).Inc()
	case errors.HasCode(err, errors.ErrCodeConfigurationMissing):
		metrics.ContactLookups.WithLabelValues(ContactLookupNotConfigured).Inc()
	default:
		metrics.ContactLookups.WithLabelValues(ContactLookupFailed).Inc()
		span.RecordError(err, trace.WithAttributes(attribute.String("error.code", string(errors.CodeOf(err)))))
	}
}

func (s *Service) recordLead(ctx context.Context, result string) {
	metrics.LeadsProcessed.WithLabelValues(result).Inc()
	s.obs.RecordLead(ctx, result)
}

// passThrough keeps a missing attribute as JSON null.
func passThrough(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	return raw
}
