// Package ddbstream implements the change feed over the definitions table's
// DynamoDB stream, in pull mode with durable per-shard checkpoints, plus the
// conversion used by the Lambda stream trigger in push mode.
package ddbstream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodbstreams"
	streamtypes "github.com/aws/aws-sdk-go-v2/service/dynamodbstreams/types"

	"github.com/dwsmith1983/dqsync/internal/provider"
	"github.com/dwsmith1983/dqsync/pkg/types"
)

var _ provider.ChangeFeed = (*Feed)(nil)

const defaultRecordLimit = 1000

// StreamsAPI is the subset of the DynamoDB Streams client used by the feed.
type StreamsAPI interface {
	DescribeStream(ctx context.Context, params *dynamodbstreams.DescribeStreamInput, optFns ...func(*dynamodbstreams.Options)) (*dynamodbstreams.DescribeStreamOutput, error)
	GetShardIterator(ctx context.Context, params *dynamodbstreams.GetShardIteratorInput, optFns ...func(*dynamodbstreams.Options)) (*dynamodbstreams.GetShardIteratorOutput, error)
	GetRecords(ctx context.Context, params *dynamodbstreams.GetRecordsInput, optFns ...func(*dynamodbstreams.Options)) (*dynamodbstreams.GetRecordsOutput, error)
}

// CheckpointStore persists the last acknowledged sequence number per shard.
type CheckpointStore interface {
	GetCheckpoints(ctx context.Context, streamARN string) (map[string]string, error)
	PutCheckpoint(ctx context.Context, streamARN, shardID, seq string) error
}

// Feed reads definition changes from a DynamoDB stream. Records read by
// HasPending or Drain stay buffered until their batch is acknowledged, so an
// unacknowledged batch is delivered again; after a restart, reading resumes
// after the last checkpoint.
type Feed struct {
	client      StreamsAPI
	checkpoints CheckpointStore
	streamARN   string
	limit       int32
	logger      *slog.Logger

	mu        sync.Mutex
	loaded    bool
	committed map[string]string // shard -> last acknowledged sequence
	iterators map[string]string // shard -> next iterator
	closed    map[string]bool   // shards read to their end
	buffer    []types.ChangeEvent
	bufferEnd map[string]string // shard -> last sequence in buffer
}

// cursor is the Batch.Cursor of a drained batch.
type cursor struct {
	positions map[string]string
}

// New creates a Feed for streamARN.
func New(client StreamsAPI, checkpoints CheckpointStore, streamARN string, logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{
		client:      client,
		checkpoints: checkpoints,
		streamARN:   streamARN,
		limit:       defaultRecordLimit,
		logger:      logger,
		iterators:   make(map[string]string),
		closed:      make(map[string]bool),
		bufferEnd:   make(map[string]string),
	}
}

// HasPending reports whether a batch is waiting. It reads ahead from the
// stream when nothing is buffered.
func (f *Feed) HasPending(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.buffer) == 0 {
		if err := f.fill(ctx); err != nil {
			return false, err
		}
		if len(f.buffer) == 0 {
			f.advanceSkipped(ctx)
		}
	}
	return len(f.buffer) > 0, nil
}

// advanceSkipped checkpoints positions covering only non-definition records.
// A failed write leaves the positions buffered for the next Ack or pass.
// Callers hold f.mu.
func (f *Feed) advanceSkipped(ctx context.Context) {
	shards := make([]string, 0, len(f.bufferEnd))
	for shard, seq := range f.bufferEnd {
		if f.committed[shard] != seq {
			shards = append(shards, shard)
		}
	}
	sort.Strings(shards)
	for _, shard := range shards {
		seq := f.bufferEnd[shard]
		if err := f.checkpoints.PutCheckpoint(ctx, f.streamARN, shard, seq); err != nil {
			f.logger.Warn("checkpointing skipped records failed", "shard", shard, "error", err)
			return
		}
		f.committed[shard] = seq
		delete(f.bufferEnd, shard)
	}
}

// Drain returns every buffered event, reading from the stream first when the
// buffer is empty.
func (f *Feed) Drain(ctx context.Context) (provider.Batch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.buffer) == 0 {
		if err := f.fill(ctx); err != nil {
			return provider.Batch{}, err
		}
	}
	positions := make(map[string]string, len(f.bufferEnd))
	for shard, seq := range f.bufferEnd {
		positions[shard] = seq
	}
	events := append([]types.ChangeEvent(nil), f.buffer...)
	return provider.Batch{Events: events, Cursor: cursor{positions: positions}}, nil
}

// Ack checkpoints the batch's shard positions and releases its events.
func (f *Feed) Ack(ctx context.Context, batch provider.Batch) error {
	c, ok := batch.Cursor.(cursor)
	if !ok {
		return fmt.Errorf("ddbstream: unexpected cursor %T", batch.Cursor)
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	shards := make([]string, 0, len(c.positions))
	for shard := range c.positions {
		shards = append(shards, shard)
	}
	sort.Strings(shards)
	for _, shard := range shards {
		seq := c.positions[shard]
		if err := f.checkpoints.PutCheckpoint(ctx, f.streamARN, shard, seq); err != nil {
			return fmt.Errorf("checkpointing shard %s: %w", shard, err)
		}
		f.committed[shard] = seq
	}
	f.buffer = nil
	f.bufferEnd = make(map[string]string)
	return nil
}

// fill reads one page from every readable shard into the buffer. Callers
// hold f.mu.
func (f *Feed) fill(ctx context.Context) error {
	if !f.loaded {
		cps, err := f.checkpoints.GetCheckpoints(ctx, f.streamARN)
		if err != nil {
			return fmt.Errorf("loading stream checkpoints: %w", err)
		}
		if cps == nil {
			cps = make(map[string]string)
		}
		f.committed = cps
		f.loaded = true
	}

	shards, err := f.describe(ctx)
	if err != nil {
		return err
	}
	present := make(map[string]bool, len(shards))
	for _, s := range shards {
		present[aws.ToString(s.ShardId)] = true
	}

	for _, s := range shards {
		id := aws.ToString(s.ShardId)
		if f.closed[id] {
			continue
		}
		// Children wait for their parent so per-key order survives splits.
		if parent := aws.ToString(s.ParentShardId); parent != "" && present[parent] && !f.closed[parent] {
			continue
		}
		if err := f.readShard(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (f *Feed) describe(ctx context.Context) ([]streamtypes.Shard, error) {
	input := &dynamodbstreams.DescribeStreamInput{StreamArn: aws.String(f.streamARN)}
	var shards []streamtypes.Shard
	for {
		out, err := f.client.DescribeStream(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("describing stream: %w", err)
		}
		if out.StreamDescription == nil {
			break
		}
		shards = append(shards, out.StreamDescription.Shards...)
		if out.StreamDescription.LastEvaluatedShardId == nil {
			break
		}
		input.ExclusiveStartShardId = out.StreamDescription.LastEvaluatedShardId
	}
	return shards, nil
}

func (f *Feed) readShard(ctx context.Context, shard string) error {
	iter, ok := f.iterators[shard]
	if !ok {
		var err error
		if iter, err = f.newIterator(ctx, shard); err != nil {
			return err
		}
	}

	out, err := f.client.GetRecords(ctx, &dynamodbstreams.GetRecordsInput{
		ShardIterator: aws.String(iter),
		Limit:         aws.Int32(f.limit),
	})
	if err != nil {
		var expired *streamtypes.ExpiredIteratorException
		if errors.As(err, &expired) {
			f.logger.Warn("shard iterator expired, resuming from checkpoint", "shard", shard)
			delete(f.iterators, shard)
			return nil
		}
		return fmt.Errorf("reading shard %s: %w", shard, err)
	}

	for _, rec := range out.Records {
		if rec.Dynamodb == nil {
			continue
		}
		seq := aws.ToString(rec.Dynamodb.SequenceNumber)
		if seq != "" {
			f.bufferEnd[shard] = seq
		}
		ev, ok := fromRecord(rec)
		if !ok {
			continue
		}
		f.buffer = append(f.buffer, ev)
	}

	if out.NextShardIterator == nil {
		f.closed[shard] = true
		delete(f.iterators, shard)
		f.logger.Debug("shard closed", "shard", shard)
		return nil
	}
	f.iterators[shard] = aws.ToString(out.NextShardIterator)
	return nil
}

func (f *Feed) newIterator(ctx context.Context, shard string) (string, error) {
	input := &dynamodbstreams.GetShardIteratorInput{
		StreamArn:         aws.String(f.streamARN),
		ShardId:           aws.String(shard),
		ShardIteratorType: streamtypes.ShardIteratorTypeTrimHorizon,
	}
	if seq, ok := f.committed[shard]; ok && seq != "" {
		input.ShardIteratorType = streamtypes.ShardIteratorTypeAfterSequenceNumber
		input.SequenceNumber = aws.String(seq)
	}
	out, err := f.client.GetShardIterator(ctx, input)
	if err != nil {
		var trimmed *streamtypes.TrimmedDataAccessException
		if errors.As(err, &trimmed) && input.SequenceNumber != nil {
			// The checkpoint fell off the stream's retention window.
			f.logger.Warn("checkpoint trimmed, restarting shard from trim horizon", "shard", shard)
			input.ShardIteratorType = streamtypes.ShardIteratorTypeTrimHorizon
			input.SequenceNumber = nil
			out, err = f.client.GetShardIterator(ctx, input)
		}
		if err != nil {
			return "", fmt.Errorf("getting iterator for shard %s: %w", shard, err)
		}
	}
	return aws.ToString(out.ShardIterator), nil
}
