package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/bastion-ehs/be-ehs-hazards/internal/client"
	"github.com/bastion-ehs/be-ehs-hazards/internal/repository"
	"github.com/bastion-ehs/be-ehs-hazards/internal/workflow"
)

// OverdueMonitor periodically sweeps rectifying hazards whose deadline has
// passed and nudges the outstanding handlers plus the reporter. It never
// mutates hazard state; escalation stays a human decision.
type OverdueMonitor struct {
	hazards  *repository.HazardRepository
	notifier *client.NotificationPublisher
	interval time.Duration
	log      zerolog.Logger
}

func NewOverdueMonitor(hazards *repository.HazardRepository, notifier *client.NotificationPublisher, interval time.Duration, log zerolog.Logger) *OverdueMonitor {
	return &OverdueMonitor{hazards: hazards, notifier: notifier, interval: interval, log: log}
}

// Run sweeps on the configured interval until the context is canceled.
func (m *OverdueMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.log.Info().Dur("interval", m.interval).Msg("overdue monitor started")
	for {
		select {
		case <-ctx.Done():
			m.log.Info().Msg("overdue monitor stopped")
			return
		case <-ticker.C:
			if err := m.Sweep(ctx); err != nil {
				m.log.Error().Err(err).Msg("overdue sweep failed")
			}
		}
	}
}

// Sweep performs one pass.
func (m *OverdueMonitor) Sweep(ctx context.Context) error {
	overdue, err := m.hazards.ListOverdue(ctx, time.Now())
	if err != nil {
		return err
	}
	for _, h := range overdue {
		recipients := map[string]struct{}{h.ReporterID: {}}
		for _, c := range h.Candidates {
			if !c.HasOperated {
				recipients[c.UserID] = struct{}{}
			}
		}
		var notifications []workflow.Notification
		for uid := range recipients {
			notifications = append(notifications, workflow.Notification{
				UserID:   uid,
				Kind:     workflow.NotifyProgress,
				Title:    "Hazard rectification overdue",
				Body:     "Hazard " + h.Code + " has passed its rectification deadline",
				HazardID: h.ID,
			})
		}
		m.notifier.PublishBatch(h.Code, "", notifications)
		m.log.Warn().
			Str("hazard_id", h.ID).
			Str("code", h.Code).
			Time("deadline", *h.Deadline).
			Msg("hazard rectification overdue")
	}
	if len(overdue) > 0 {
		m.log.Info().Int("count", len(overdue)).Msg("overdue sweep complete")
	}
	return nil
}
