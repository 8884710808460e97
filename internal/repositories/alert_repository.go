package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/obakengshepherd/RiskSentinel/internal/models"
)

var ErrAlertNotFound = errors.New("alert not found")

// AlertRepository handles alert database operations
type AlertRepository struct {
	q Querier
}

// NewAlertRepository creates a new alert repository
func NewAlertRepository(db *Database) *AlertRepository {
	return &AlertRepository{q: db.Pool}
}

// WithTx returns a copy of the repository bound to an open transaction.
func (r *AlertRepository) WithTx(tx pgx.Tx) *AlertRepository {
	return &AlertRepository{q: tx}
}

const alertColumns = `id, transaction_id, severity, alert_type, message, status,
	   assigned_to, resolved_at, created_at, updated_at`

// Create inserts a new open alert.
func (r *AlertRepository) Create(ctx context.Context, alert *models.Alert) error {
	query := `
		INSERT INTO alerts (
			id, transaction_id, severity, alert_type, message, status,
			assigned_to, resolved_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	alert.ID = uuid.New()
	alert.CreatedAt = time.Now().UTC()
	alert.UpdatedAt = alert.CreatedAt
	if alert.Status == "" {
		alert.Status = models.AlertStatusOpen
	}

	_, err := r.q.Exec(ctx, query,
		alert.ID,
		alert.TransactionID,
		alert.Severity,
		alert.AlertType,
		alert.Message,
		alert.Status,
		alert.AssignedTo,
		alert.ResolvedAt,
		alert.CreatedAt,
		alert.UpdatedAt,
	)

	return err
}

// GetByID retrieves an alert by ID
func (r *AlertRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE id = $1`

	alert, err := scanAlert(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAlertNotFound
		}
		return nil, err
	}
	return alert, nil
}

// GetByTransactionID retrieves all alerts raised for a transaction.
func (r *AlertRepository) GetByTransactionID(ctx context.Context, transactionID uuid.UUID) ([]*models.Alert, error) {
	query := `
		SELECT ` + alertColumns + `
		FROM alerts
		WHERE transaction_id = $1
		ORDER BY created_at ASC
	`

	rows, err := r.q.Query(ctx, query, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanAlerts(rows)
}

// List retrieves alerts with optional severity/status filters, newest first.
func (r *AlertRepository) List(ctx context.Context, page, pageSize int, severity, status string) ([]*models.Alert, int, error) {
	offset := (page - 1) * pageSize

	countQuery := `
		SELECT COUNT(*) FROM alerts
		WHERE ($1 = '' OR severity = $1)
		AND ($2 = '' OR status = $2)
	`
	var total int
	if err := r.q.QueryRow(ctx, countQuery, severity, status).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT ` + alertColumns + `
		FROM alerts
		WHERE ($1 = '' OR severity = $1)
		AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`

	rows, err := r.q.Query(ctx, query, severity, status, pageSize, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	alerts, err := scanAlerts(rows)
	return alerts, total, err
}

// Update persists analyst changes to status and assignment.
func (r *AlertRepository) Update(ctx context.Context, alert *models.Alert) error {
	query := `
		UPDATE alerts
		SET status = $2, assigned_to = $3, resolved_at = $4, updated_at = $5
		WHERE id = $1
	`

	alert.UpdatedAt = time.Now().UTC()

	result, err := r.q.Exec(ctx, query,
		alert.ID,
		alert.Status,
		alert.AssignedTo,
		alert.ResolvedAt,
		alert.UpdatedAt,
	)
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return ErrAlertNotFound
	}

	return nil
}

// CountByStatus returns the number of alerts in the given status, optionally
// restricted to a severity.
func (r *AlertRepository) CountByStatus(ctx context.Context, status, severity string) (int, error) {
	query := `
		SELECT COUNT(*) FROM alerts
		WHERE status = $1
		AND ($2 = '' OR severity = $2)
	`

	var count int
	err := r.q.QueryRow(ctx, query, status, severity).Scan(&count)
	return count, err
}

// OpenSeverityDistribution groups open alerts by severity.
func (r *AlertRepository) OpenSeverityDistribution(ctx context.Context) (map[string]int, error) {
	query := `
		SELECT severity, COUNT(*)
		FROM alerts
		WHERE status = 'open'
		GROUP BY severity
	`

	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	distribution := make(map[string]int)
	for rows.Next() {
		var severity string
		var count int
		if err := rows.Scan(&severity, &count); err != nil {
			return nil, err
		}
		distribution[severity] = count
	}

	return distribution, rows.Err()
}

// CountVelocityBreaches counts HIGH/CRITICAL velocity-breach alerts created
// after the given instant.
func (r *AlertRepository) CountVelocityBreaches(ctx context.Context, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM alerts
		WHERE alert_type = $1
		AND severity IN ('HIGH', 'CRITICAL')
		AND created_at >= $2
	`

	var count int
	err := r.q.QueryRow(ctx, query, models.AlertTypeVelocityBreach, since).Scan(&count)
	return count, err
}

func scanAlert(row pgx.Row) (*models.Alert, error) {
	alert := &models.Alert{}

	if err := row.Scan(
		&alert.ID,
		&alert.TransactionID,
		&alert.Severity,
		&alert.AlertType,
		&alert.Message,
		&alert.Status,
		&alert.AssignedTo,
		&alert.ResolvedAt,
		&alert.CreatedAt,
		&alert.UpdatedAt,
	); err != nil {
		return nil, err
	}

	return alert, nil
}

func scanAlerts(rows pgx.Rows) ([]*models.Alert, error) {
	var alerts []*models.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}

	return alerts, rows.Err()
}
