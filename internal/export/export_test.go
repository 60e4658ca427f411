package export

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sort"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-core/internal/domain"
	"github.com/ignite/campaign-core/internal/service/analytics"
)

type memEvents []domain.EmailEvent

func (m memEvents) ListByCampaign(_ context.Context, id string) ([]domain.EmailEvent, error) {
	var out []domain.EmailEvent
	for _, e := range m {
		if e.CampaignID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m memEvents) ListByClient(_ context.Context, id string) ([]domain.EmailEvent, error) {
	var out []domain.EmailEvent
	for _, e := range m {
		if e.ClientID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeS3 struct {
	objects map[string][]byte
	err     error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

// fakeDynamo stores items by PK and SK and answers the BETWEEN query
// issued by SnapshotStore.History.
type fakeDynamo struct {
	mu    sync.Mutex
	items []map[string]types.AttributeValue
}

func str(av types.AttributeValue) string {
	if s, ok := av.(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, in.Item)
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pk := str(in.ExpressionAttributeValues[":pk"])
	from := str(in.ExpressionAttributeValues[":from"])
	to := str(in.ExpressionAttributeValues[":to"])
	var out []map[string]types.AttributeValue
	for _, it := range f.items {
		sk := str(it["SK"])
		if str(it["PK"]) == pk && sk >= from && sk <= to {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return str(out[i]["SK"]) < str(out[j]["SK"]) })
	return &dynamodb.QueryOutput{Items: out}, nil
}

var genTime = time.Date(2026, 10, 14, 6, 30, 0, 0, time.UTC)

func testEvents() memEvents {
	at := time.Date(2026, 10, 13, 23, 0, 0, 0, time.UTC)
	return memEvents{
		{ID: "1", ClientID: "client-1", CampaignID: "camp-a", ContactEmail: "a@example.com", EventType: domain.EventSent, Timestamp: at},
		{ID: "2", ClientID: "client-1", CampaignID: "camp-a", ContactEmail: "a@example.com", EventType: domain.EventDelivered, Timestamp: at.Add(time.Minute)},
		{ID: "3", ClientID: "client-1", CampaignID: "camp-b", ContactEmail: "b@example.com", EventType: domain.EventSent, Timestamp: at.Add(2 * time.Hour)},
		{ID: "4", ClientID: "client-2", CampaignID: "camp-c", ContactEmail: "c@example.com", EventType: domain.EventSent, Timestamp: at},
	}
}

func newTestBuilder() *Builder {
	b := NewBuilder(analytics.NewService(testEvents()))
	b.now = func() time.Time { return genTime }
	return b
}

func TestBuilder_Build(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	r, err := newTestBuilder().Build(context.Background(), "client-1", tokyo)
	require.NoError(t, err)
	assert.Equal(t, "client-1", r.ClientID)
	assert.Equal(t, genTime, r.GeneratedAt)
	assert.Equal(t, "Asia/Tokyo", r.Timezone)
	assert.Equal(t, 2, r.Summary.Campaigns)
	require.Len(t, r.Campaigns, 2)
	assert.InDelta(t, 50.0, r.Summary.DeliveryRate, 0.001)

	// 23:00 UTC on the 13th is the 14th in Tokyo.
	require.Len(t, r.Daily["camp-a"], 1)
	assert.Equal(t, "2026-10-14", r.Daily["camp-a"][0].Date)

	require.Len(t, r.Contacts["camp-a"], 1)
	assert.Equal(t, domain.EventDelivered, r.Contacts["camp-a"][0].Status)
}

func TestS3Sink_Write(t *testing.T) {
	store := &fakeS3{objects: map[string][]byte{}}
	sink := NewS3Sink(store, "reports-bucket", "reports")

	r, err := newTestBuilder().Build(context.Background(), "client-1", nil)
	require.NoError(t, err)
	key, err := sink.Write(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, "reports/client-1/2026/10/14/063000.json", key)

	var got Report
	require.NoError(t, json.Unmarshal(store.objects["reports-bucket/"+key], &got))
	assert.Equal(t, r.Summary, got.Summary)

	store.err = errors.New("access denied")
	_, err = sink.Write(context.Background(), r)
	assert.Error(t, err)
}

func TestSnapshotStore_History(t *testing.T) {
	db := &fakeDynamo{}
	st := NewSnapshotStore(db, "snapshots")
	ctx := context.Background()

	s := domain.CampaignAnalyticsSummary{CampaignID: "camp-a", Contacts: 10}
	for i := 0; i < 3; i++ {
		s.Contacts = 10 + i
		require.NoError(t, st.Save(ctx, "client-1", s, genTime.Add(time.Duration(i)*24*time.Hour)))
	}
	require.NoError(t, st.Save(ctx, "client-1", domain.CampaignAnalyticsSummary{CampaignID: "camp-b"}, genTime))

	snaps, err := st.History(ctx, "camp-a", genTime, genTime.Add(36*time.Hour))
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, genTime, snaps[0].At)
	assert.Equal(t, 10, snaps[0].Summary.Contacts)
	assert.Equal(t, 11, snaps[1].Summary.Contacts)
}

func TestExporter_Run(t *testing.T) {
	store := &fakeS3{objects: map[string][]byte{}}
	db := &fakeDynamo{}
	ex := NewExporter(newTestBuilder(), NewS3Sink(store, "b", "reports"), NewSnapshotStore(db, "snapshots"))

	res, err := ex.Run(context.Background(), "client-1", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Campaigns)
	assert.Equal(t, 2, res.Snapshots)
	assert.Len(t, store.objects, 1)
	assert.Len(t, db.items, 2)

	// Without a snapshot table only the report is written.
	res, err = NewExporter(newTestBuilder(), NewS3Sink(store, "b", "reports"), nil).Run(context.Background(), "client-2", nil)
	require.NoError(t, err)
	assert.Zero(t, res.Snapshots)
}
