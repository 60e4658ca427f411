package export

import (
	"context"
	"time"

	"github.com/ignite/campaign-core/internal/pkg/logger"
)

// Result describes one export run.
type Result struct {
	ClientID  string `json:"client_id"`
	Key       string `json:"key"`
	Campaigns int    `json:"campaigns"`
	Snapshots int    `json:"snapshots"`
}

// Exporter builds a client report, uploads it and snapshots each campaign
// summary. Snapshots are optional.
type Exporter struct {
	builder   *Builder
	sink      *S3Sink
	snapshots *SnapshotStore
	log       *logger.Logger
}

func NewExporter(builder *Builder, sink *S3Sink, snapshots *SnapshotStore) *Exporter {
	return &Exporter{
		builder:   builder,
		sink:      sink,
		snapshots: snapshots,
		log:       logger.Default().With("component", "export"),
	}
}

// Run exports one client. A snapshot failure is logged and does not fail
// the run once the report is uploaded.
func (e *Exporter) Run(ctx context.Context, clientID string, loc *time.Location) (Result, error) {
	r, err := e.builder.Build(ctx, clientID, loc)
	if err != nil {
		return Result{}, err
	}
	key, err := e.sink.Write(ctx, r)
	if err != nil {
		return Result{}, err
	}
	res := Result{ClientID: clientID, Key: key, Campaigns: len(r.Campaigns)}

	if e.snapshots != nil {
		for _, c := range r.Campaigns {
			if err := e.snapshots.Save(ctx, clientID, c, r.GeneratedAt); err != nil {
				e.log.Warn("snapshot failed", "campaign_id", c.CampaignID, "error", err)
				continue
			}
			res.Snapshots++
		}
	}
	e.log.Info("exported", "client_id", clientID, "key", key, "campaigns", res.Campaigns, "snapshots", res.Snapshots)
	return res, nil
}
