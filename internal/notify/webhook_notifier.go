package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/amezina/salonbook/internal/model"
)

// WebhookNotifier posts booking summaries to the operator's webhook (the
// messaging bridge that reaches the salon owner). Best-effort only.
type WebhookNotifier struct {
	url    string
	token  string
	http   *http.Client
	logger *slog.Logger
}

func NewWebhookNotifier(url, token string, logger *slog.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		url:    strings.TrimSpace(url),
		token:  strings.TrimSpace(token),
		http:   &http.Client{Timeout: 5 * time.Second},
		logger: logger,
	}
}

func (n *WebhookNotifier) BookingCreated(ctx context.Context, appt model.Appointment) {
	n.post(ctx, map[string]any{
		"event":          "booking_created",
		"appointment_id": appt.ID,
		"user_id":        appt.UserID,
		"date":           appt.Date,
		"time":           appt.Time,
		"contact":        appt.Contact,
		"display_name":   displayOrDash(appt.DisplayName),
	})
}

func (n *WebhookNotifier) BookingCancelled(ctx context.Context, appt model.Appointment, actorUserID int64) {
	n.post(ctx, map[string]any{
		"event":          "booking_cancelled",
		"appointment_id": appt.ID,
		"user_id":        appt.UserID,
		"actor_user_id":  actorUserID,
		"date":           appt.Date,
		"time":           appt.Time,
		"contact":        appt.Contact,
		"display_name":   displayOrDash(appt.DisplayName),
	})
}

func (n *WebhookNotifier) post(ctx context.Context, payload map[string]any) {
	if n.url == "" {
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		n.logger.Error("failed to build webhook payload", "err", err)
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(raw))
	if err != nil {
		n.logger.Error("failed to build webhook request", "err", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if n.token != "" {
		req.Header.Set("Authorization", "Bearer "+n.token)
	}
	resp, err := n.http.Do(req)
	if err != nil {
		n.logger.Warn("operator webhook unreachable", "err", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		n.logger.Warn("operator webhook returned non-2xx", "status", resp.StatusCode)
	}
}

// displayOrDash is display-only; storage keeps absent names empty.
func displayOrDash(name string) string {
	if name == "" {
		return "-"
	}
	return name
}
