package notify

import (
	"context"
	"log/slog"

	"github.com/erazemk/darilo/internal/model"
)

// LogSink writes every event to a structured logger.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s LogSink) Notify(ctx context.Context, userID int64, ev model.Event) {
	s.logger().InfoContext(ctx, "event", append(eventAttrs(ev), "user_id", userID)...)
}

func (s LogSink) Broadcast(ctx context.Context, ev model.Event) {
	s.logger().InfoContext(ctx, "event", append(eventAttrs(ev), "broadcast", true)...)
}

func eventAttrs(ev model.Event) []any {
	attrs := []any{"kind", ev.Kind, "event_id", ev.ID}
	if ev.DonationID != "" {
		attrs = append(attrs, "donation_id", ev.DonationID)
	}
	if ev.ShelterRequestID != "" {
		attrs = append(attrs, "shelter_request_id", ev.ShelterRequestID)
	}
	if ev.ClaimID != "" {
		attrs = append(attrs, "claim_id", ev.ClaimID)
	}
	if ev.Status != "" {
		attrs = append(attrs, "status", ev.Status)
	}
	return attrs
}
