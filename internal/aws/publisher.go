package aws

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// Notification event types carried on the queue.
const (
	EventPaymentConfirmed = "payment_confirmed"
	EventStatusChanged    = "status_changed"
)

// NotificationEvent is the message body the API publishes and the worker consumes.
type NotificationEvent struct {
	Type      string `json:"type"`
	OrderID   string `json:"order_id"`
	NewStatus string `json:"new_status,omitempty"`
	Note      string `json:"note,omitempty"`
}

// Publisher wraps an SQS client and the notifications queue URL.
type Publisher struct {
	SQS      SQSAPI
	QueueURL string
}

// NewPublisher returns a Publisher bound to a queue URL.
func NewPublisher(sqsClient SQSAPI, queueURL string) *Publisher {
	return &Publisher{
		SQS:      sqsClient,
		QueueURL: queueURL,
	}
}

// PublishNotification sends a notification event to SQS.
// attributes map[string]string -> sent as MessageAttributes.
func (p *Publisher) PublishNotification(ctx context.Context, ev NotificationEvent, attributes map[string]string) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	messageBody := string(body)

	input := &sqs.SendMessageInput{
		QueueUrl:    &p.QueueURL,
		MessageBody: &messageBody,
	}
	if len(attributes) > 0 {
		msgAttrs := map[string]sqstypes.MessageAttributeValue{}
		for k, v := range attributes {
			// using string type for all attrs
			msgAttrs[k] = sqstypes.MessageAttributeValue{
				DataType:    awsString("String"),
				StringValue: &v,
			}
		}
		input.MessageAttributes = msgAttrs
	}

	_, err = p.SQS.SendMessage(ctx, input)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// awsString helper
func awsString(s string) *string { return &s }
