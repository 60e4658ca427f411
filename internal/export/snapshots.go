package export

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/ignite/campaign-core/internal/domain"
)

// DynamoAPI is the subset of *dynamodb.Client used by SnapshotStore.
type DynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

const (
	snapshotTTL   = 400 * 24 * time.Hour
	sortKeyFormat = "2006-01-02T15:04:05Z"
)

// snapshotItem is the stored DynamoDB item. PK is CAMPAIGN#<id>, SK the
// UTC capture time.
type snapshotItem struct {
	PK       string `dynamodbav:"PK"`
	SK       string `dynamodbav:"SK"`
	ClientID string `dynamodbav:"ClientID"`
	Data     string `dynamodbav:"Data"`
	TTL      int64  `dynamodbav:"TTL,omitempty"`
}

// Snapshot is one captured campaign summary.
type Snapshot struct {
	At      time.Time                       `json:"at"`
	Summary domain.CampaignAnalyticsSummary `json:"summary"`
}

// SnapshotStore keeps a time series of campaign summaries so reports can
// show how rates moved between exports.
type SnapshotStore struct {
	client DynamoAPI
	table  string
}

func NewSnapshotStore(client DynamoAPI, table string) *SnapshotStore {
	return &SnapshotStore{client: client, table: table}
}

func snapshotPK(campaignID string) string { return "CAMPAIGN#" + campaignID }

// Save records s as captured at at.
func (st *SnapshotStore) Save(ctx context.Context, clientID string, s domain.CampaignAnalyticsSummary, at time.Time) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshaling summary: %w", err)
	}
	av, err := attributevalue.MarshalMap(snapshotItem{
		PK:       snapshotPK(s.CampaignID),
		SK:       at.UTC().Format(sortKeyFormat),
		ClientID: clientID,
		Data:     string(data),
		TTL:      at.Add(snapshotTTL).Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshaling item: %w", err)
	}
	_, err = st.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(st.table),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("putting item to DynamoDB: %w", err)
	}
	return nil
}

// History returns a campaign's snapshots captured in [from, to], oldest
// first.
func (st *SnapshotStore) History(ctx context.Context, campaignID string, from, to time.Time) ([]Snapshot, error) {
	out, err := st.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(st.table),
		KeyConditionExpression: aws.String("PK = :pk AND SK BETWEEN :from AND :to"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":   &types.AttributeValueMemberS{Value: snapshotPK(campaignID)},
			":from": &types.AttributeValueMemberS{Value: from.UTC().Format(sortKeyFormat)},
			":to":   &types.AttributeValueMemberS{Value: to.UTC().Format(sortKeyFormat)},
		},
		ScanIndexForward: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("querying DynamoDB: %w", err)
	}

	snaps := make([]Snapshot, 0, len(out.Items))
	for _, item := range out.Items {
		var it snapshotItem
		if err := attributevalue.UnmarshalMap(item, &it); err != nil {
			return nil, fmt.Errorf("unmarshaling item: %w", err)
		}
		at, err := time.Parse(sortKeyFormat, it.SK)
		if err != nil {
			return nil, fmt.Errorf("snapshot sort key %q: %w", it.SK, err)
		}
		var s domain.CampaignAnalyticsSummary
		if err := json.Unmarshal([]byte(it.Data), &s); err != nil {
			return nil, fmt.Errorf("unmarshaling summary: %w", err)
		}
		snaps = append(snaps, Snapshot{At: at, Summary: s})
	}
	return snaps, nil
}
