package tracking

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/campaign-core/internal/domain"
	"github.com/ignite/campaign-core/internal/pkg/httputil"
	"github.com/ignite/campaign-core/internal/pkg/logger"
	"github.com/ignite/campaign-core/internal/service/analytics"
)

// pixelGIF is a transparent 1x1 GIF89a.
var pixelGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00,
	0x80, 0x00, 0x00, 0xff, 0xff, 0xff, 0x00, 0x00, 0x00, 0x2c,
	0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x02,
	0x02, 0x44, 0x01, 0x00, 0x3b,
}

// maxWebhookBody caps a single webhook delivery.
const maxWebhookBody = 10 << 20

var unsubscribedPage = []byte(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>Unsubscribed</title></head>
<body style="font-family:sans-serif;text-align:center;padding:48px">
<h1>You have been unsubscribed</h1>
<p>This address will not receive further messages from this sender.</p>
</body></html>`)

// Handler serves tracking links and provider webhooks. Link payloads are
// client|campaign|email, with the target URL as a fourth field on clicks.
type Handler struct {
	sink   analytics.Sink
	signer *Signer
	log    *logger.Logger
	now    func() time.Time
}

func NewHandler(sink analytics.Sink, signer *Signer) *Handler {
	if signer == nil {
		signer = NewSigner("")
	}
	return &Handler{
		sink:   sink,
		signer: signer,
		log:    logger.Default().With("component", "tracking"),
		now:    time.Now,
	}
}

// Routes mounts the link endpoints. The webhook endpoint is mounted
// separately by the API router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/open/{data}/{sig}", h.HandleOpen)
	r.Get("/click/{data}/{sig}", h.HandleClick)
	r.Get("/unsubscribe/{data}/{sig}", h.HandleUnsubscribe)
	return r
}

func (h *Handler) linkEvent(r *http.Request, typ domain.EventType, min int) (domain.EmailEvent, []string, error) {
	parts, err := h.signer.Decode(chi.URLParam(r, "data"), chi.URLParam(r, "sig"), min)
	if err != nil {
		return domain.EmailEvent{}, nil, err
	}
	return domain.EmailEvent{
		ClientID:     parts[0],
		CampaignID:   parts[1],
		ContactEmail: parts[2],
		EventType:    typ,
		Timestamp:    h.now().UTC(),
	}, parts, nil
}

func (h *Handler) record(r *http.Request, e domain.EmailEvent) {
	prepared, err := analytics.PrepareEvents([]domain.EmailEvent{e})
	if err == nil {
		_, err = h.sink.Append(r.Context(), prepared)
	}
	if err != nil {
		h.log.Warn("tracking event not recorded", "event_type", e.EventType, "campaign_id", e.CampaignID, "error", err)
		return
	}
	h.log.Debug("tracked", "event_type", e.EventType, "campaign_id", e.CampaignID, "contact_email", e.ContactEmail)
}

func (h *Handler) HandleOpen(w http.ResponseWriter, r *http.Request) {
	// Always serve the pixel so mail clients never show a broken image.
	if e, _, err := h.linkEvent(r, domain.EventOpened, 3); err == nil {
		h.record(r, e)
	}
	h.servePixel(w)
}

func (h *Handler) HandleClick(w http.ResponseWriter, r *http.Request) {
	e, parts, err := h.linkEvent(r, domain.EventClicked, 4)
	if err != nil {
		http.Error(w, "bad link", http.StatusBadRequest)
		return
	}
	target, err := url.Parse(parts[3])
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") {
		http.Error(w, "bad link", http.StatusBadRequest)
		return
	}
	h.record(r, e)
	http.Redirect(w, r, target.String(), http.StatusTemporaryRedirect)
}

func (h *Handler) HandleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	e, _, err := h.linkEvent(r, domain.EventUnsubscribed, 3)
	if err != nil {
		http.Error(w, "bad link", http.StatusBadRequest)
		return
	}
	h.record(r, e)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(unsubscribedPage)
}

// WebhookResult is the response body of a webhook delivery.
type WebhookResult struct {
	Received int `json:"received"`
	Accepted int `json:"accepted"`
	Ignored  int `json:"ignored"`
}

// HandleWebhook ingests a provider webhook batch. Bodies over 10MB are
// 413s, parse and validation failures are 400s, and storage failures are
// 500s so the provider retries.
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.Error(w, http.StatusRequestEntityTooLarge, "webhook body exceeds 10MB")
			return
		}
		httputil.BadRequest(w, "failed to read body")
		return
	}
	batch, err := ParseWebhook(body, h.now().UTC())
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	prepared, err := analytics.PrepareEvents(batch.Events)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	accepted, err := h.sink.Append(r.Context(), prepared)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	h.log.Info("webhook ingested", "received", len(prepared), "accepted", accepted, "ignored", batch.Ignored)
	httputil.OK(w, WebhookResult{Received: len(prepared), Accepted: accepted, Ignored: batch.Ignored})
}

func (h *Handler) servePixel(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.Write(pixelGIF)
}

// LinkURL builds a full tracking URL under base for the given kind (open,
// click or unsubscribe).
func (s *Signer) LinkURL(base, kind string, fields ...string) string {
	data, sig := s.Encode(fields...)
	return strings.TrimRight(base, "/") + "/track/" + kind + "/" + data + "/" + sig
}
