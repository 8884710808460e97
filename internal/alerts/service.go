package alerts

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/obakengshepherd/RiskSentinel/internal/events"
	"github.com/obakengshepherd/RiskSentinel/internal/httpapi"
	"github.com/obakengshepherd/RiskSentinel/internal/models"
	"github.com/obakengshepherd/RiskSentinel/internal/repositories"
)

// UpdateRequest carries the analyst-editable alert fields. Nil means leave
// unchanged.
type UpdateRequest struct {
	Status     *string `json:"status"`
	AssignedTo *string `json:"assigned_to"`
}

// Service handles the analyst review workflow over alerts.
type Service struct {
	alerts   *repositories.AlertRepository
	audit    *repositories.AuditRepository
	producer *events.Producer
}

// NewService wires the alert service.
func NewService(alerts *repositories.AlertRepository, audit *repositories.AuditRepository, producer *events.Producer) *Service {
	return &Service{alerts: alerts, audit: audit, producer: producer}
}

// List returns alerts with the severity filter normalized to upper case.
// An empty status filter defaults to open, the analyst work queue.
func (s *Service) List(ctx context.Context, page, pageSize int, severity, status string) ([]*models.Alert, int, error) {
	if status == "" {
		status = models.AlertStatusOpen
	}
	severity = strings.ToUpper(severity)

	alerts, total, err := s.alerts.List(ctx, page, pageSize, severity, status)
	if err != nil {
		return nil, 0, httpapi.Database("failed to list alerts", err)
	}
	return alerts, total, nil
}

// Get returns one alert.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Alert, error) {
	alert, err := s.alerts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrAlertNotFound) {
			return nil, httpapi.NotFound("alert not found")
		}
		return nil, httpapi.Database("failed to load alert", err)
	}
	return alert, nil
}

// Update applies analyst changes. Moving to resolved stamps resolved_at;
// every change writes an ALERT_UPDATED audit entry, and status changes are
// re-emitted on the alert topic.
func (s *Service) Update(ctx context.Context, id uuid.UUID, req *UpdateRequest, actor string) (*models.Alert, error) {
	if req.Status == nil && req.AssignedTo == nil {
		return nil, httpapi.Validation("at least one of status or assigned_to is required")
	}

	alert, err := s.alerts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrAlertNotFound) {
			return nil, httpapi.NotFound("alert not found")
		}
		return nil, httpapi.Database("failed to load alert", err)
	}

	changes := models.JSONB{}
	statusChanged := false

	if req.Status != nil {
		status := *req.Status
		if !models.ValidAlertStatuses[status] {
			return nil, httpapi.Validation("status must be one of: open, acknowledged, resolved, closed")
		}
		if status != alert.Status {
			changes["status"] = models.JSONB{"from": alert.Status, "to": status}
			alert.Status = status
			statusChanged = true

			if status == models.AlertStatusResolved {
				now := time.Now().UTC()
				alert.ResolvedAt = &now
			}
		}
	}

	if req.AssignedTo != nil && *req.AssignedTo != alert.AssignedTo {
		changes["assigned_to"] = models.JSONB{"from": alert.AssignedTo, "to": *req.AssignedTo}
		alert.AssignedTo = *req.AssignedTo
	}

	if len(changes) == 0 {
		return alert, nil
	}

	if err := s.alerts.Update(ctx, alert); err != nil {
		return nil, httpapi.Database("failed to update alert", err)
	}

	if err := s.audit.Create(ctx, &models.AuditLog{
		TransactionID: &alert.TransactionID,
		Actor:         actor,
		Action:        models.AuditActionAlertUpdated,
		Details: models.JSONB{
			"alert_id": alert.ID.String(),
			"changes":  map[string]interface{}(changes),
		},
	}); err != nil {
		return nil, httpapi.Database("failed to write audit log", err)
	}

	if statusChanged {
		if err := s.producer.PublishAlert(alert); err != nil {
			log.Warn().Err(err).Str("alert_id", alert.ID.String()).Msg("Kafka alert publish failed")
		}
	}

	return alert, nil
}
