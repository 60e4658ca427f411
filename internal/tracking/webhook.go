package tracking

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ignite/campaign-core/internal/domain"
)

// ErrMalformedPayload is returned when a webhook body is not a JSON array.
var ErrMalformedPayload = errors.New("malformed webhook payload")

// sparkPostTypes maps SparkPost event types to the event model. Types not
// listed (delay, policy_rejection, generation_failure, ...) are ignored.
var sparkPostTypes = map[string]domain.EventType{
	"injection":        domain.EventSent,
	"delivery":         domain.EventDelivered,
	"open":             domain.EventOpened,
	"initial_open":     domain.EventOpened,
	"amp_open":         domain.EventOpened,
	"amp_initial_open": domain.EventOpened,
	"click":            domain.EventClicked,
	"amp_click":        domain.EventClicked,
	"bounce":           domain.EventBounced,
	"out_of_band":      domain.EventBounced,
	"spam_complaint":   domain.EventSpamReported,
	"list_unsubscribe": domain.EventUnsubscribed,
	"link_unsubscribe": domain.EventUnsubscribed,
}

// sparkPostEvent holds the fields read from one msys category body.
type sparkPostEvent struct {
	Type       string          `json:"type"`
	EventID    string          `json:"event_id"`
	CampaignID string          `json:"campaign_id"`
	RcptTo     string          `json:"rcpt_to"`
	Timestamp  json.RawMessage `json:"timestamp"`
	RawReason  string          `json:"raw_reason"`
	Reason     string          `json:"reason"`
	RcptMeta   struct {
		ClientID string `json:"client_id"`
	} `json:"rcpt_meta"`
	SubaccountID json.Number `json:"subaccount_id"`
}

// WebhookBatch is the result of parsing one webhook delivery.
type WebhookBatch struct {
	Events  []domain.EmailEvent
	Ignored int
}

// ParseWebhook decodes a JSON array of either SparkPost msys envelopes or
// plain email events; the two may be mixed. Events without a timestamp get
// received.
func ParseWebhook(body []byte, received time.Time) (WebhookBatch, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		return WebhookBatch{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	var batch WebhookBatch
	for i, item := range items {
		var probe struct {
			Msys map[string]json.RawMessage `json:"msys"`
		}
		if err := json.Unmarshal(item, &probe); err != nil {
			return WebhookBatch{}, fmt.Errorf("%w: item %d: %v", ErrMalformedPayload, i, err)
		}
		if probe.Msys != nil {
			for category, raw := range probe.Msys {
				e, ok, err := parseSparkPost(category, raw, received)
				if err != nil {
					return WebhookBatch{}, fmt.Errorf("%w: item %d: %v", ErrMalformedPayload, i, err)
				}
				if !ok {
					batch.Ignored++
					continue
				}
				batch.Events = append(batch.Events, e)
			}
			continue
		}

		var e domain.EmailEvent
		if err := json.Unmarshal(item, &e); err != nil {
			return WebhookBatch{}, fmt.Errorf("%w: item %d: %v", ErrMalformedPayload, i, err)
		}
		t, ok := domain.ParseEventType(string(e.EventType))
		if !ok {
			batch.Ignored++
			continue
		}
		e.EventType = t
		if e.Timestamp.IsZero() {
			e.Timestamp = received
		}
		batch.Events = append(batch.Events, e)
	}
	return batch, nil
}

func parseSparkPost(category string, raw json.RawMessage, received time.Time) (domain.EmailEvent, bool, error) {
	var ev sparkPostEvent
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&ev); err != nil {
		return domain.EmailEvent{}, false, err
	}
	typ := ev.Type
	if typ == "" && category == "unsubscribe_event" {
		typ = "list_unsubscribe"
	}
	et, ok := sparkPostTypes[typ]
	if !ok {
		return domain.EmailEvent{}, false, nil
	}

	ts, err := parseSparkPostTime(ev.Timestamp)
	if err != nil {
		return domain.EmailEvent{}, false, err
	}
	if ts.IsZero() {
		ts = received
	}

	clientID := ev.RcptMeta.ClientID
	if clientID == "" {
		clientID = ev.SubaccountID.String()
	}
	msg := ev.RawReason
	if msg == "" {
		msg = ev.Reason
	}
	return domain.EmailEvent{
		ID:           ev.EventID,
		ClientID:     clientID,
		CampaignID:   ev.CampaignID,
		ContactEmail: ev.RcptTo,
		EventType:    et,
		Timestamp:    ts.UTC(),
		ErrorMessage: msg,
	}, true, nil
}

// parseSparkPostTime accepts a unix seconds string or number, with optional
// fraction, or an RFC 3339 string.
func parseSparkPostTime(raw json.RawMessage) (time.Time, error) {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" || s == "null" {
		return time.Time{}, nil
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		whole := int64(secs)
		return time.Unix(whole, int64((secs-float64(whole))*1e9)).Round(time.Millisecond), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp %q: %w", s, err)
	}
	return t, nil
}
