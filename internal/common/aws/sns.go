// internal/common/aws/sns.go
package aws

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"amocrm-relay/internal/common/errors"
	"amocrm-relay/internal/common/metrics"
)

const ChannelName = "sns"

// snsMaxMessageBytes is the SNS Publish payload limit.
const snsMaxMessageBytes = 256 * 1024

// PublishAPI is the part of the SNS client the notifier uses.
type PublishAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSNotifier mirrors notification cards to an SNS topic.
type SNSNotifier struct {
	client   PublishAPI
	topicARN string
	subject  string
}

// NewSNSNotifier loads the default AWS credential chain for region.
func NewSNSNotifier(ctx context.Context, region, topicARN, subject string) (*SNSNotifier, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewSNSNotifierWithClient(sns.NewFromConfig(cfg), topicARN, subject), nil
}

func NewSNSNotifierWithClient(client PublishAPI, topicARN, subject string) *SNSNotifier {
	return &SNSNotifier{client: client, topicARN: topicARN, subject: subject}
}

func (s *SNSNotifier) Name() string { return ChannelName }

// Notify publishes text as one message. Cards larger than the SNS limit are
// cut at the last rune boundary below the limit.
func (s *SNSNotifier) Notify(ctx context.Context, text string) error {
	if s.topicARN == "" {
		return errors.NewConfigurationMissingError(ChannelName, "topic ARN is empty")
	}
	if len(text) > snsMaxMessageBytes {
		cut := snsMaxMessageBytes
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}

	input := &sns.PublishInput{
		TopicArn: aws.String(s.topicARN),
		Message:  aws.String(text),
	}
	if s.subject != "" {
		input.Subject = aws.String(s.subject)
	}

	if _, err := s.client.Publish(ctx, input); err != nil {
		metrics.NotificationsSent.WithLabelValues(ChannelName, "failed").Inc()
		return errors.NewNotificationSendFailedError(ChannelName, err)
	}
	metrics.NotificationsSent.WithLabelValues(ChannelName, "sent").Inc()
	return nil
}
