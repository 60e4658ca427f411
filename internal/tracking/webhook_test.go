package tracking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-core/internal/domain"
)

var received = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

func TestParseWebhook_SparkPost(t *testing.T) {
	body := []byte(`[
		{"msys":{"message_event":{"type":"delivery","event_id":"e1","campaign_id":"camp-1",
			"rcpt_to":"A@Example.com","timestamp":"1760443200","subaccount_id":7}}},
		{"msys":{"track_event":{"type":"click","event_id":"e2","campaign_id":"camp-1",
			"rcpt_to":"a@example.com","timestamp":"2026-10-14T11:30:00Z","rcpt_meta":{"client_id":"client-9"}}}},
		{"msys":{"message_event":{"type":"bounce","event_id":"e3","campaign_id":"camp-1",
			"rcpt_to":"b@example.com","timestamp":1760443200.5,"raw_reason":"550 mailbox unavailable"}}},
		{"msys":{"message_event":{"type":"delay","event_id":"e4","campaign_id":"camp-1","rcpt_to":"c@example.com"}}},
		{"msys":{"unsubscribe_event":{"event_id":"e5","campaign_id":"camp-1","rcpt_to":"d@example.com"}}}
	]`)

	batch, err := ParseWebhook(body, received)
	require.NoError(t, err)
	require.Len(t, batch.Events, 4)
	assert.Equal(t, 1, batch.Ignored)

	delivered := batch.Events[0]
	assert.Equal(t, domain.EventDelivered, delivered.EventType)
	assert.Equal(t, "e1", delivered.ID)
	assert.Equal(t, "7", delivered.ClientID)
	assert.Equal(t, time.Unix(1760443200, 0).UTC(), delivered.Timestamp)

	click := batch.Events[1]
	assert.Equal(t, domain.EventClicked, click.EventType)
	assert.Equal(t, "client-9", click.ClientID)
	assert.Equal(t, time.Date(2026, 10, 14, 11, 30, 0, 0, time.UTC), click.Timestamp)

	bounce := batch.Events[2]
	assert.Equal(t, domain.EventBounced, bounce.EventType)
	assert.Equal(t, "550 mailbox unavailable", bounce.ErrorMessage)
	assert.Equal(t, time.Unix(1760443200, 500*int64(time.Millisecond)).UTC(), bounce.Timestamp)

	unsub := batch.Events[3]
	assert.Equal(t, domain.EventUnsubscribed, unsub.EventType)
	assert.Equal(t, received, unsub.Timestamp)
}

func TestParseWebhook_PlainEvents(t *testing.T) {
	body := []byte(`[
		{"campaign_id":"camp-1","contact_email":"a@example.com","event_type":"opened","timestamp":"2026-10-14T10:00:00Z"},
		{"campaign_id":"camp-1","contact_email":"a@example.com","event_type":"FORWARDED","timestamp":"2026-10-14T10:00:00Z"},
		{"campaign_id":"camp-1","contact_email":"b@example.com","event_type":"SENT"}
	]`)

	batch, err := ParseWebhook(body, received)
	require.NoError(t, err)
	require.Len(t, batch.Events, 2)
	assert.Equal(t, 1, batch.Ignored)
	assert.Equal(t, domain.EventOpened, batch.Events[0].EventType)
	assert.Equal(t, received, batch.Events[1].Timestamp)
}

func TestParseWebhook_Malformed(t *testing.T) {
	for _, body := range []string{
		``,
		`{"msys":{}}`,
		`[1, 2]`,
		`[{"msys":{"message_event":{"type":"delivery","timestamp":"yesterday"}}}]`,
	} {
		_, err := ParseWebhook([]byte(body), received)
		assert.ErrorIs(t, err, ErrMalformedPayload, body)
	}
}

func TestParseWebhook_Empty(t *testing.T) {
	batch, err := ParseWebhook([]byte(`[]`), received)
	require.NoError(t, err)
	assert.Empty(t, batch.Events)
	assert.Zero(t, batch.Ignored)
}
