package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ignite/campaign-core/internal/pkg/httpretry"
	"github.com/ignite/campaign-core/internal/pkg/logger"
)

// FireRecorder persists fires by idempotency key. postgres.FireLog
// implements it.
type FireRecorder interface {
	Record(ctx context.Context, key, ruleID, campaignID string, slot time.Time) (bool, error)
}

// RecordingDispatcher writes each fire to a FireRecorder and logs it. A
// repeated key is not an error.
type RecordingDispatcher struct {
	fires FireRecorder
	log   *logger.Logger
}

func NewRecordingDispatcher(fires FireRecorder) *RecordingDispatcher {
	return &RecordingDispatcher{fires: fires, log: logger.Default().With("component", "fire_log")}
}

func (d *RecordingDispatcher) Dispatch(ctx context.Context, req FireRequest) error {
	fresh, err := d.fires.Record(ctx, req.IdempotencyKey, req.RuleID, req.CampaignID, req.Slot)
	if err != nil {
		return err
	}
	if !fresh {
		d.log.Debug("fire already recorded", "idempotency_key", req.IdempotencyKey)
		return nil
	}
	d.log.Info("fire recorded",
		"rule_id", req.RuleID, "campaign_id", req.CampaignID,
		"slot", req.Slot.Format(time.RFC3339), "idempotency_key", req.IdempotencyKey)
	return nil
}

// WebhookDispatcher POSTs each fire as JSON to a downstream sender. The
// Idempotency-Key header carries the fire's key; 409 Conflict counts as
// already delivered.
type WebhookDispatcher struct {
	client httpretry.HTTPDoer
	url    string
}

// NewWebhookDispatcher creates a dispatcher. A nil client gets a retrying
// client with default settings.
func NewWebhookDispatcher(client httpretry.HTTPDoer, url string) *WebhookDispatcher {
	if client == nil {
		client = httpretry.NewRetryClient(nil, 0)
	}
	return &WebhookDispatcher{client: client, url: url}
}

func (d *WebhookDispatcher) Dispatch(ctx context.Context, req FireRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal fire request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build fire request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("post fire request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode/100 == 2 || resp.StatusCode == http.StatusConflict {
		return nil
	}
	return fmt.Errorf("post fire request: downstream returned %d", resp.StatusCode)
}

// Chain runs dispatchers in order and stops at the first error.
type Chain []Dispatcher

func (c Chain) Dispatch(ctx context.Context, req FireRequest) error {
	for _, d := range c {
		if err := d.Dispatch(ctx, req); err != nil {
			return err
		}
	}
	return nil
}
