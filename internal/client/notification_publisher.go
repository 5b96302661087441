// Package client holds outbound integrations. The only one today is the
// NATS notification publisher.
package client

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/bastion-ehs/be-ehs-hazards/internal/workflow"
)

// NotificationPublisher publishes hazard workflow events to NATS for the
// notifications service.
//
// Subject convention: notifications.ehs.<event_type>
//
// All publish operations are non-fatal — errors are logged but never
// propagated to the caller, so notification failures never interrupt
// dispatch operations.
type NotificationPublisher struct {
	nc  *nats.Conn
	log zerolog.Logger
}

// NotificationEvent is the JSON schema published to NATS.
type NotificationEvent struct {
	EventType    string         `json:"event_type"`
	HazardID     string         `json:"hazard_id"`
	HazardCode   string         `json:"hazard_code,omitempty"`
	ActorID      string         `json:"actor_id,omitempty"`
	Recipients   []string       `json:"recipients"`
	Title        string         `json:"title,omitempty"`
	Body         string         `json:"body,omitempty"`
	IsActionable bool           `json:"is_actionable,omitempty"`
	Severity     string         `json:"severity,omitempty"`
	Category     string         `json:"category,omitempty"`
	Payload      map[string]any `json:"payload,omitempty"`
}

// NewNotificationPublisher creates a publisher backed by the given NATS
// connection. A nil connection disables publishing.
func NewNotificationPublisher(nc *nats.Conn, log zerolog.Logger) *NotificationPublisher {
	return &NotificationPublisher{nc: nc, log: log}
}

// PublishBatch publishes each engine notification intent, grouped by kind.
func (p *NotificationPublisher) PublishBatch(hazardCode, actorID string, notifications []workflow.Notification) {
	grouped := make(map[workflow.NotificationKind][]workflow.Notification)
	var order []workflow.NotificationKind
	for _, n := range notifications {
		if _, ok := grouped[n.Kind]; !ok {
			order = append(order, n.Kind)
		}
		grouped[n.Kind] = append(grouped[n.Kind], n)
	}

	for _, kind := range order {
		batch := grouped[kind]
		recipients := make([]string, 0, len(batch))
		for _, n := range batch {
			recipients = append(recipients, n.UserID)
		}
		p.publish(&NotificationEvent{
			EventType:    string(kind),
			HazardID:     batch[0].HazardID,
			HazardCode:   hazardCode,
			ActorID:      actorID,
			Recipients:   recipients,
			Title:        batch[0].Title,
			Body:         batch[0].Body,
			IsActionable: kind != workflow.NotifyCC && kind != workflow.NotifyClosed,
			Severity:     "info",
			Category:     "ehs_hazard",
		})
	}
}

func (p *NotificationPublisher) publish(event *NotificationEvent) {
	if p.nc == nil || len(event.Recipients) == 0 {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn().Err(err).Str("event_type", event.EventType).Msg("notification: failed to marshal event")
		return
	}

	subject := fmt.Sprintf("notifications.ehs.%s", event.EventType)
	if err := p.nc.Publish(subject, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("hazard_id", event.HazardID).
			Msg("notification: failed to publish NATS event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Str("hazard_id", event.HazardID).
		Int("recipients", len(event.Recipients)).
		Msg("notification: event published")
}
