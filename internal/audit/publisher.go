package audit

import (
	"context"
	"log/slog"

	"dcp/pkg/requestcontext"
)

// LogPublisher writes events to structured logs. It is the default sink when
// no Kafka brokers are configured.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, event Event) {
	requestID := event.RequestID
	if requestID == "" {
		requestID = requestcontext.RequestID(ctx)
	}
	attrs := []any{
		"event", string(event.Type),
		"subject_id", event.SubjectID,
		"actor_id", event.ActorID,
		"occurred_at", event.OccurredAt,
		"request_id", requestID,
		"log_type", "audit",
	}
	for k, v := range event.Details {
		attrs = append(attrs, "detail_"+k, v)
	}
	p.logger.InfoContext(ctx, string(event.Type), attrs...)
}

// ChannelPublisher hands events to a buffered channel consumed by a Worker.
// A full buffer drops the event rather than blocking the caller.
type ChannelPublisher struct {
	inbox  chan<- Event
	logger *slog.Logger
}

func NewChannelPublisher(inbox chan<- Event, logger *slog.Logger) *ChannelPublisher {
	return &ChannelPublisher{inbox: inbox, logger: logger}
}

func (p *ChannelPublisher) Publish(ctx context.Context, event Event) {
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	select {
	case p.inbox <- event:
	default:
		if p.logger != nil {
			p.logger.WarnContext(ctx, "audit buffer full, event dropped",
				"event_type", event.Type,
				"subject_id", event.SubjectID,
			)
		}
	}
}

// Fanout publishes each event to every configured sink.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, event Event) {
	for _, p := range f {
		p.Publish(ctx, event)
	}
}
