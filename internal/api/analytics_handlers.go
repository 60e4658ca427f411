package api

import (
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/campaign-core/internal/engagement"
	"github.com/ignite/campaign-core/internal/pkg/httputil"
	"github.com/ignite/campaign-core/internal/recurrence"
)

// GetCampaignAnalytics returns a campaign's engagement summary.
//
//	GET /api/campaigns/{id}/analytics
func (h *Handlers) GetCampaignAnalytics(w http.ResponseWriter, r *http.Request) {
	summary, err := h.analytics.CampaignSummary(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, summary)
}

// GetCampaignTimeline returns a campaign's events, optionally filtered.
//
//	GET /api/campaigns/{id}/timeline?type=OPENED
func (h *Handlers) GetCampaignTimeline(w http.ResponseWriter, r *http.Request) {
	filter, err := engagement.ParseTimelineFilter(r.URL.Query().Get("type"))
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	tl, err := h.analytics.Timeline(r.Context(), chi.URLParam(r, "id"), filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, tl)
}

// GetCampaignContacts resolves every contact of a campaign.
//
//	GET /api/campaigns/{id}/contacts
func (h *Handlers) GetCampaignContacts(w http.ResponseWriter, r *http.Request) {
	contacts, err := h.analytics.Contacts(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{
		"contacts": contacts,
		"total":    len(contacts),
	})
}

// GetCampaignContact resolves one contact.
//
//	GET /api/campaigns/{id}/contacts/{email}
func (h *Handlers) GetCampaignContact(w http.ResponseWriter, r *http.Request) {
	email, err := url.PathUnescape(chi.URLParam(r, "email"))
	if err != nil {
		httputil.BadRequest(w, "invalid email")
		return
	}
	st, err := h.analytics.Contact(r.Context(), chi.URLParam(r, "id"), email)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, st)
}

// GetCampaignDaily returns per-day totals in the requested zone.
//
//	GET /api/campaigns/{id}/daily?tz=America/New_York
func (h *Handlers) GetCampaignDaily(w http.ResponseWriter, r *http.Request) {
	loc := time.UTC
	if tz := r.URL.Query().Get("tz"); tz != "" {
		l, err := recurrence.LoadLocation(tz)
		if err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		loc = l
	}
	days, err := h.analytics.Daily(r.Context(), chi.URLParam(r, "id"), loc)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{
		"timezone": loc.String(),
		"days":     days,
	})
}

// GetClientAnalytics aggregates every campaign of a client.
//
//	GET /api/clients/{id}/analytics
func (h *Handlers) GetClientAnalytics(w http.ResponseWriter, r *http.Request) {
	report, err := h.analytics.ClientSummary(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, report)
}
