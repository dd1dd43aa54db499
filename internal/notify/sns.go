// Package notify publishes recommendation events for the notification subsystem.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	commonerrors "welfare-recommender/internal/common/errors"
	"welfare-recommender/internal/common/logger"
	"welfare-recommender/internal/common/metrics"
	"welfare-recommender/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// Publisher is the subset of the SNS client used here.
type Publisher interface {
	Publish(ctx context.Context, input *sns.PublishInput) (*sns.PublishOutput, error)
}

// SNSPublisher sends RecommendationsRefreshed events to a topic as JSON with
// eventType and userId message attributes for subscription filtering.
type SNSPublisher struct {
	client   Publisher
	topicARN string
	logger   logger.Logger
}

func NewSNSPublisher(client Publisher, topicARN string, log logger.Logger) *SNSPublisher {
	return &SNSPublisher{
		client:   client,
		topicARN: topicARN,
		logger:   log.WithFields(map[string]interface{}{"component": "notify-sns"}),
	}
}

func (p *SNSPublisher) PublishRefreshed(ctx context.Context, event models.RecommendationsRefreshed) error {
	body, err := json.Marshal(event)
	if err != nil {
		return commonerrors.NewInternalError(fmt.Errorf("encode event: %w", err))
	}

	out, err := p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]snstypes.MessageAttributeValue{
			"eventType": {DataType: aws.String("String"), StringValue: aws.String(event.EventType)},
			"userId":    {DataType: aws.String("String"), StringValue: aws.String(event.UserID)},
		},
	})
	if err != nil {
		metrics.RefreshEventsPublished.WithLabelValues("error").Inc()
		return commonerrors.NewNotificationSendFailedError("sns", err)
	}

	metrics.RefreshEventsPublished.WithLabelValues("ok").Inc()
	p.logger.Info("refresh event published", map[string]interface{}{
		"eventId":   event.EventID,
		"userId":    event.UserID,
		"messageId": aws.ToString(out.MessageId),
	})
	return nil
}
