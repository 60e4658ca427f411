package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/campaign-core/internal/domain"
	"github.com/ignite/campaign-core/internal/pkg/httputil"
)

// ValidateResponse is returned for a rule that passes validation.
type ValidateResponse struct {
	Valid bool             `json:"valid"`
	Rule  domain.RuleInput `json:"rule"`
}

// ScheduleResponse is a stored rule with its next fire time, if any.
type ScheduleResponse struct {
	Rule     domain.RuleInput `json:"rule"`
	NextFire *time.Time       `json:"next_fire"`
}

// ValidateSchedule checks a rule from the campaign editor.
//
//	POST /api/schedules/validate
func (h *Handlers) ValidateSchedule(w http.ResponseWriter, r *http.Request) {
	var in domain.RuleInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	norm, err := h.schedules.Validate(in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, ValidateResponse{Valid: true, Rule: norm})
}

// PreviewSchedule lists the next fire times of an unsaved rule.
//
//	POST /api/schedules/preview?count=10&from=2026-01-01T00:00:00Z
func (h *Handlers) PreviewSchedule(w http.ResponseWriter, r *http.Request) {
	count := 0
	if v := r.URL.Query().Get("count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			httputil.BadRequest(w, "count must be an integer")
			return
		}
		count = n
	}
	var from time.Time
	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httputil.BadRequest(w, "from must be an RFC 3339 timestamp")
			return
		}
		from = t
	}

	var in domain.RuleInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	preview, err := h.schedules.Preview(in, from, count)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, preview)
}

// GetSchedule returns a stored rule by ID.
//
//	GET /api/schedules/{id}
func (h *Handlers) GetSchedule(w http.ResponseWriter, r *http.Request) {
	rule, err := h.schedules.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.writeSchedule(w, r, rule)
}

// GetCampaignSchedule returns the rule attached to a campaign.
//
//	GET /api/campaigns/{id}/schedule
func (h *Handlers) GetCampaignSchedule(w http.ResponseWriter, r *http.Request) {
	rule, err := h.schedules.ForCampaign(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.writeSchedule(w, r, rule)
}

// PutCampaignSchedule creates or replaces a campaign's rule.
//
//	PUT /api/campaigns/{id}/schedule
func (h *Handlers) PutCampaignSchedule(w http.ResponseWriter, r *http.Request) {
	var in domain.RuleInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	in.CampaignID = chi.URLParam(r, "id")
	saved, err := h.schedules.Save(r.Context(), in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.writeSchedule(w, r, saved)
}

func (h *Handlers) writeSchedule(w http.ResponseWriter, r *http.Request, rule domain.RuleInput) {
	resp := ScheduleResponse{Rule: rule}
	next, ok, err := h.schedules.NextFire(r.Context(), rule.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if ok {
		resp.NextFire = &next
	}
	httputil.OK(w, resp)
}
