// Package report publishes failed reconciliation outcomes so operators can
// see definitions that are not converging.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/dwsmith1983/dqsync/internal/metrics"
	"github.com/dwsmith1983/dqsync/pkg/types"
)

// Reporter receives outcomes that failed or need operator attention.
type Reporter interface {
	Report(ctx context.Context, outcome types.Outcome) error
}

// Message is the wire form of a reported outcome.
type Message struct {
	DefinitionID string              `json:"definitionId"`
	Action       types.OutcomeAction `json:"action"`
	JobName      string              `json:"jobName,omitempty"`
	Reason       string              `json:"reason,omitempty"`
	Error        string              `json:"error,omitempty"`
	Timestamp    time.Time           `json:"timestamp"`
}

func newMessage(o types.Outcome) Message {
	m := Message{
		DefinitionID: o.DefinitionID,
		Action:       o.Action,
		JobName:      o.JobName,
		Reason:       o.Reason,
		Timestamp:    time.Now().UTC(),
	}
	if o.Err != nil {
		m.Error = o.Err.Error()
	}
	return m
}

// LogReporter writes outcomes to a structured logger.
type LogReporter struct {
	logger *slog.Logger
}

// NewLogReporter creates a LogReporter; nil uses slog.Default().
func NewLogReporter(logger *slog.Logger) *LogReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogReporter{logger: logger}
}

func (r *LogReporter) Report(_ context.Context, o types.Outcome) error {
	r.logger.Error("reconciliation outcome needs attention",
		"check", o.DefinitionID,
		"action", o.Action,
		"job", o.JobName,
		"reason", o.Reason,
		"error", o.Err,
	)
	return nil
}

// SQSAPI is the subset of the SQS client used for reporting.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSReporter sends one JSON message per outcome to a queue.
type SQSReporter struct {
	client   SQSAPI
	queueURL string
}

// NewSQSReporter creates an SQSReporter for queueURL.
func NewSQSReporter(client SQSAPI, queueURL string) *SQSReporter {
	return &SQSReporter{client: client, queueURL: queueURL}
}

func (r *SQSReporter) Report(ctx context.Context, o types.Outcome) error {
	body, err := json.Marshal(newMessage(o))
	if err != nil {
		return fmt.Errorf("marshaling outcome report: %w", err)
	}
	_, err = r.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(r.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("sending outcome report for %q: %w", o.DefinitionID, err)
	}
	return nil
}

// Multi fans an outcome out to every reporter. A failing reporter is logged
// and counted and does not stop the others.
type Multi struct {
	reporters []Reporter
	logger    *slog.Logger
}

// NewMulti combines reporters.
func NewMulti(logger *slog.Logger, reporters ...Reporter) *Multi {
	if logger == nil {
		logger = slog.Default()
	}
	return &Multi{reporters: reporters, logger: logger}
}

func (m *Multi) Report(ctx context.Context, o types.Outcome) error {
	for _, r := range m.reporters {
		if err := r.Report(ctx, o); err != nil {
			metrics.ReportsFailed.Add(1)
			m.logger.Warn("failure report not delivered", "check", o.DefinitionID, "error", err)
		}
	}
	return nil
}
