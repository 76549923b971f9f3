// SPDX-License-Identifier: AGPL-3.0-or-later
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/aws/smithy-go"

	"github.com/skyfunnel/warmup-worker/internal/domain/models"
	"github.com/skyfunnel/warmup-worker/internal/infrastructure/config"
	"github.com/skyfunnel/warmup-worker/internal/infrastructure/logger"
)

// SQSAdapter implements Adapter over Amazon SQS (or an SQS-compatible
// endpoint for local testing).
type SQSAdapter struct {
	client   *sqs.Client
	queueURL string
}

// NewSQSAdapter builds an AWS config the way pkg/storage.NewS3Provider does:
// region + optional static credentials override + optional custom endpoint
// for SQS-compatible local test servers (e.g. localstack, elasticmq).
func NewSQSAdapter(ctx context.Context, cfg config.QueueConfig) (*SQSAdapter, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("queue URL is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}

	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	sqsOpts := []func(*sqs.Options){}
	if cfg.Endpoint != "" {
		sqsOpts = append(sqsOpts, func(o *sqs.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	client := sqs.NewFromConfig(awsCfg, sqsOpts...)

	logger.Component("queue").Info("SQS adapter initialized", "queue_url", cfg.URL)

	return &SQSAdapter{client: client, queueURL: cfg.URL}, nil
}

func (a *SQSAdapter) Receive(ctx context.Context, maxMessages int) ([]Envelope, error) {
	out, err := a.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:              aws.String(a.queueURL),
		MaxNumberOfMessages:   int32(maxMessages),
		WaitTimeSeconds:       10,
		MessageSystemAttributeNames: []types.MessageSystemAttributeName{
			types.MessageSystemAttributeNameApproximateReceiveCount,
		},
	})
	if err != nil {
		return nil, classifyErr(err)
	}

	envelopes := make([]Envelope, 0, len(out.Messages))
	for _, msg := range out.Messages {
		envelope := Envelope{
			Body:          aws.ToString(msg.Body),
			ReceiptHandle: aws.ToString(msg.ReceiptHandle),
		}
		if raw, ok := msg.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)]; ok {
			fmt.Sscanf(raw, "%d", &envelope.ApproximateReceiveCount)
		}
		envelopes = append(envelopes, envelope)
	}

	return envelopes, nil
}

func (a *SQSAdapter) Delete(ctx context.Context, receiptHandle string) error {
	_, err := a.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(a.queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return classifyErr(err)
	}
	return nil
}

func (a *SQSAdapter) Hide(ctx context.Context, receiptHandle string, duration time.Duration) error {
	seconds := clampSeconds(duration, MaxVisibilitySeconds)
	_, err := a.client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(a.queueURL),
		ReceiptHandle:     aws.String(receiptHandle),
		VisibilityTimeout: seconds,
	})
	if err != nil {
		return classifyErr(err)
	}
	return nil
}

// DelayRequeue publishes body as a new message via SendMessage, delayed by
// delay (capped at MaxDelaySeconds). This is a genuine republish, independent
// of any receipt handle the original message held — the caller deletes the
// original separately once this succeeds.
func (a *SQSAdapter) DelayRequeue(ctx context.Context, body string, delay time.Duration) error {
	seconds := clampSeconds(delay, MaxDelaySeconds)
	_, err := a.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:     aws.String(a.queueURL),
		MessageBody:  aws.String(body),
		DelaySeconds: seconds,
	})
	if err != nil {
		return classifyErr(err)
	}
	return nil
}

// ScheduleFuture publishes body as a new message that becomes visible at a
// specific future instant, via the same SendMessage+DelaySeconds mechanism
// as DelayRequeue.
func (a *SQSAdapter) ScheduleFuture(ctx context.Context, body string, at time.Time) error {
	delay := time.Until(at)
	if delay < 0 {
		delay = 0
	}
	return a.DelayRequeue(ctx, body, delay)
}

func clampSeconds(d time.Duration, max int32) int32 {
	seconds := int32(d.Seconds())
	if seconds < 0 {
		seconds = 0
	}
	if seconds > max {
		seconds = max
	}
	return seconds
}

// classifyErr maps an SQS SDK error into models.ErrTransientQueue or
// models.ErrPermanentQueue by inspecting the smithy API error code, mirroring
// the teacher's habit of wrapping SDK errors with fmt.Errorf("...: %w", err).
func classifyErr(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ReceiptHandleIsInvalid", "InvalidParameterValue", "QueueDoesNotExist", "AWS.SimpleQueueService.NonExistentQueue":
			return fmt.Errorf("%w: %s", models.ErrPermanentQueue, err)
		}
	}
	return fmt.Errorf("%w: %s", models.ErrTransientQueue, err)
}
