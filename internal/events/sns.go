package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/example/reservationd/internal/reservation"
)

type snsAPI interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSSink publishes events to an SNS topic. The topic passed by the Notifier
// is the topic ARN.
type SNSSink struct {
	client snsAPI
}

func NewSNSSink(ctx context.Context) (*SNSSink, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &SNSSink{client: sns.NewFromConfig(cfg)}, nil
}

func (s *SNSSink) Publish(ctx context.Context, topic string, ev reservation.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	_, err = s.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(topic),
		Message:  aws.String(string(body)),
		Subject:  aws.String(string(ev.Type)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event_type": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(ev.Type)),
			},
			"restaurant_id": {
				DataType:    aws.String("String"),
				StringValue: aws.String(ev.RestaurantID),
			},
			"reservation_id": {
				DataType:    aws.String("Number"),
				StringValue: aws.String(strconv.FormatInt(ev.ReservationID, 10)),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("sns publish: %w", err)
	}
	return nil
}
