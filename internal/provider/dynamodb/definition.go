package dynamodb

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dwsmith1983/dqsync/pkg/types"
)

// definitionItem is the stored shape of a definition row. Parameters are
// top-level attributes so stream images and console edits stay readable;
// the filter is JSON to keep predicate value types exact.
type definitionItem struct {
	PK     string `dynamodbav:"PK"`
	SK     string `dynamodbav:"SK"`
	GSI1PK string `dynamodbav:"GSI1PK"`
	GSI1SK string `dynamodbav:"GSI1SK"`

	ID             string   `dynamodbav:"id"`
	Name           string   `dynamodbav:"name"`
	Type           string   `dynamodbav:"type"`
	Target         string   `dynamodbav:"target,omitempty"`
	KeyColumns     []string `dynamodbav:"keyColumns,omitempty"`
	Filter         string   `dynamodbav:"filter,omitempty"`
	SLAMinutes     int      `dynamodbav:"slaMinutes"`
	SourceQuery    string   `dynamodbav:"sourceQuery,omitempty"`
	TargetQuery    string   `dynamodbav:"targetQuery,omitempty"`
	ThresholdRatio float64  `dynamodbav:"thresholdRatio"`
	Schedule       string   `dynamodbav:"schedule"`
	Active         bool     `dynamodbav:"active"`

	JobName string `dynamodbav:"jobName,omitempty"`
	JobType string `dynamodbav:"jobType,omitempty"`

	CreatedBy string    `dynamodbav:"createdBy,omitempty"`
	CreatedAt time.Time `dynamodbav:"createdAt"`
	UpdatedBy string    `dynamodbav:"updatedBy,omitempty"`
	UpdatedAt time.Time `dynamodbav:"updatedAt"`
}

// bindingAttrs are owned by the synchronizer and never overwritten by upserts.
var bindingAttrs = map[string]bool{"jobName": true, "jobType": true}

// optionalAttrs are definition parameters omitted when empty. An upsert
// removes any of them the new definition leaves out.
var optionalAttrs = []string{"filter", "keyColumns", "sourceQuery", "target", "targetQuery"}

// keyAttrs identify the row and are never part of an update expression.
var keyAttrs = map[string]bool{"PK": true, "SK": true}

func toItem(def types.CheckDefinition) (definitionItem, error) {
	item := definitionItem{
		PK:             checkPK(def.ID),
		SK:             definitionSK(),
		GSI1PK:         definitionGSI1PK(),
		GSI1SK:         checkPK(def.ID),
		ID:             def.ID,
		Name:           def.Name,
		Type:           string(def.Type),
		Target:         def.Target,
		KeyColumns:     def.KeyColumns,
		SLAMinutes:     def.SLAMinutes,
		SourceQuery:    def.SourceQuery,
		TargetQuery:    def.TargetQuery,
		ThresholdRatio: def.ThresholdRatio,
		Schedule:       def.Schedule,
		Active:         def.Active,
		JobName:        def.JobName,
		JobType:        string(def.JobType),
		CreatedBy:      def.CreatedBy,
		CreatedAt:      def.CreatedAt.UTC(),
		UpdatedBy:      def.UpdatedBy,
		UpdatedAt:      def.UpdatedAt.UTC(),
	}
	if len(def.Filter) > 0 {
		b, err := json.Marshal(def.Filter)
		if err != nil {
			return definitionItem{}, fmt.Errorf("marshaling filter: %w", err)
		}
		item.Filter = string(b)
	}
	return item, nil
}

func (it definitionItem) toDefinition() (*types.CheckDefinition, error) {
	def := &types.CheckDefinition{
		ID:             it.ID,
		Name:           it.Name,
		Type:           types.CheckType(it.Type),
		Target:         it.Target,
		KeyColumns:     it.KeyColumns,
		SLAMinutes:     it.SLAMinutes,
		SourceQuery:    it.SourceQuery,
		TargetQuery:    it.TargetQuery,
		ThresholdRatio: it.ThresholdRatio,
		Schedule:       it.Schedule,
		Active:         it.Active,
		JobName:        it.JobName,
		JobType:        types.CheckType(it.JobType),
		CreatedBy:      it.CreatedBy,
		CreatedAt:      it.CreatedAt,
		UpdatedBy:      it.UpdatedBy,
		UpdatedAt:      it.UpdatedAt,
	}
	if def.ID == "" {
		def.ID, _ = CheckIDFromKey(it.PK)
	}
	if it.Filter != "" {
		if err := json.Unmarshal([]byte(it.Filter), &def.Filter); err != nil {
			return nil, fmt.Errorf("unmarshaling filter for %q: %w", def.ID, err)
		}
	}
	return def, nil
}

// DecodeDefinition converts a raw definition item, such as a stream image,
// into a CheckDefinition.
func DecodeDefinition(av map[string]ddbtypes.AttributeValue) (*types.CheckDefinition, error) {
	var it definitionItem
	if err := attributevalue.UnmarshalMap(av, &it); err != nil {
		return nil, fmt.Errorf("unmarshaling definition: %w", err)
	}
	return it.toDefinition()
}

// GetDefinition retrieves a definition row.
func (s *Store) GetDefinition(ctx context.Context, id string) (*types.CheckDefinition, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]ddbtypes.AttributeValue{
			"PK": &ddbtypes.AttributeValueMemberS{Value: checkPK(id)},
			"SK": &ddbtypes.AttributeValueMemberS{Value: definitionSK()},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, storeErr(fmt.Sprintf("getting definition %q", id), err)
	}
	if out.Item == nil {
		return nil, fmt.Errorf("definition %q: %w", id, types.ErrNotFound)
	}
	return DecodeDefinition(out.Item)
}

// PutDefinition upserts a definition. An existing job binding is preserved
// and createdAt/createdBy are only set on first write.
func (s *Store) PutDefinition(ctx context.Context, def types.CheckDefinition) error {
	now := time.Now().UTC()
	if def.CreatedAt.IsZero() {
		def.CreatedAt = now
	}
	if def.UpdatedAt.IsZero() {
		def.UpdatedAt = now
	}
	item, err := toItem(def)
	if err != nil {
		return err
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshaling definition %q: %w", def.ID, err)
	}

	names := make([]string, 0, len(av))
	for name := range av {
		if keyAttrs[name] || bindingAttrs[name] {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	exprNames := make(map[string]string, len(names))
	exprValues := make(map[string]ddbtypes.AttributeValue, len(names))
	sets := make([]string, 0, len(names))
	for i, name := range names {
		n, v := fmt.Sprintf("#a%d", i), fmt.Sprintf(":v%d", i)
		exprNames[n] = name
		exprValues[v] = av[name]
		switch name {
		case "createdAt", "createdBy":
			sets = append(sets, fmt.Sprintf("%s = if_not_exists(%s, %s)", n, n, v))
		default:
			sets = append(sets, fmt.Sprintf("%s = %s", n, v))
		}
	}

	var removes []string
	for i, name := range optionalAttrs {
		if _, ok := av[name]; ok {
			continue
		}
		n := fmt.Sprintf("#r%d", i)
		exprNames[n] = name
		removes = append(removes, n)
	}
	update := "SET " + strings.Join(sets, ", ")
	if len(removes) > 0 {
		update += " REMOVE " + strings.Join(removes, ", ")
	}

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]ddbtypes.AttributeValue{
			"PK": av["PK"],
			"SK": av["SK"],
		},
		UpdateExpression:          aws.String(update),
		ExpressionAttributeNames:  exprNames,
		ExpressionAttributeValues: exprValues,
	})
	if err != nil {
		return storeErr(fmt.Sprintf("putting definition %q", def.ID), err)
	}
	return nil
}

// ListDefinitions returns every definition via GSI1.
func (s *Store) ListDefinitions(ctx context.Context) ([]types.CheckDefinition, error) {
	input := &dynamodb.QueryInput{
		TableName:              &s.tableName,
		IndexName:              aws.String(gsi1),
		KeyConditionExpression: aws.String("GSI1PK = :pk"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":pk": &ddbtypes.AttributeValueMemberS{Value: definitionGSI1PK()},
		},
	}

	var defs []types.CheckDefinition
	for {
		out, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, storeErr("listing definitions", err)
		}
		for _, item := range out.Items {
			def, err := DecodeDefinition(item)
			if err != nil {
				s.logger.Warn("skipping corrupt definition", "error", err)
				continue
			}
			defs = append(defs, *def)
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
	return defs, nil
}

// DeleteDefinition removes a definition row. Deleting an absent row succeeds.
func (s *Store) DeleteDefinition(ctx context.Context, id string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: &s.tableName,
		Key: map[string]ddbtypes.AttributeValue{
			"PK": &ddbtypes.AttributeValueMemberS{Value: checkPK(id)},
			"SK": &ddbtypes.AttributeValueMemberS{Value: definitionSK()},
		},
	})
	if err != nil {
		return storeErr(fmt.Sprintf("deleting definition %q", id), err)
	}
	return nil
}

// BindJob records the job currently materializing a definition. The row must
// exist; a concurrently deleted row yields types.ErrNotFound.
func (s *Store) BindJob(ctx context.Context, id, jobName string, jobType types.CheckType) error {
	input := &dynamodb.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]ddbtypes.AttributeValue{
			"PK": &ddbtypes.AttributeValueMemberS{Value: checkPK(id)},
			"SK": &ddbtypes.AttributeValueMemberS{Value: definitionSK()},
		},
		ConditionExpression: aws.String("attribute_exists(PK)"),
	}
	if jobName == "" {
		input.UpdateExpression = aws.String("REMOVE jobName, jobType")
	} else {
		input.UpdateExpression = aws.String("SET jobName = :n, jobType = :t")
		input.ExpressionAttributeValues = map[string]ddbtypes.AttributeValue{
			":n": &ddbtypes.AttributeValueMemberS{Value: jobName},
			":t": &ddbtypes.AttributeValueMemberS{Value: string(jobType)},
		}
	}

	_, err := s.client.UpdateItem(ctx, input)
	if err != nil {
		if isConditionalCheckFailed(err) {
			return fmt.Errorf("binding job for %q: %w", id, types.ErrNotFound)
		}
		return storeErr(fmt.Sprintf("binding job for %q", id), err)
	}
	return nil
}
