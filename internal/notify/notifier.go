// internal/notify/notifier.go
package notify

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"assistant-router/internal/common/config"
	stderrors "assistant-router/internal/common/errors"
	"assistant-router/internal/common/logger"
	"assistant-router/internal/models"
)

// Notifier raises an operator alert when a question arrives with URGENT
// priority. Delivery is best-effort; a failed publish never affects the
// request that triggered it.
type Notifier struct {
	client   *sns.Client
	topicARN string
	enabled  bool
	logger   logger.Logger
}

func New(ctx context.Context, cfg config.NotificationConfig, log logger.Logger) (*Notifier, error) {
	n := &Notifier{
		enabled:  cfg.Enabled,
		topicARN: cfg.TopicARN,
		logger:   log.With(map[string]interface{}{"component": "notify"}),
	}
	if !cfg.Enabled {
		return n, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	n.client = sns.NewFromConfig(awsCfg)
	return n, nil
}

// NotifyUrgent publishes an alert for an urgent question.
func (n *Notifier) NotifyUrgent(ctx context.Context, analysis *models.AnalysisResult) error {
	if !n.enabled || n.client == nil {
		return nil
	}

	subject := "Question urgente reçue"
	message := fmt.Sprintf("Question: %s\nIntention: %s\nAgent: %s",
		analysis.CorrectedQuestion, analysis.Intention, analysis.TargetAgent)

	_, err := n.client.Publish(ctx, &sns.PublishInput{
		TopicArn: &n.topicARN,
		Subject:  &subject,
		Message:  &message,
	})
	if err != nil {
		n.logger.Warn("urgent notification failed", map[string]interface{}{
			"error": err.Error(),
		})
		return stderrors.NewNotificationSendFailedError(err)
	}

	n.logger.Info("urgent notification published", map[string]interface{}{
		"topic": n.topicARN,
	})
	return nil
}
