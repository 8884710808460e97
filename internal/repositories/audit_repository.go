package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/obakengshepherd/RiskSentinel/internal/models"
)

// AuditRepository handles the append-only audit trail. Entries are never
// updated or deleted.
type AuditRepository struct {
	q Querier
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *Database) *AuditRepository {
	return &AuditRepository{q: db.Pool}
}

// WithTx returns a copy of the repository bound to an open transaction.
func (r *AuditRepository) WithTx(tx pgx.Tx) *AuditRepository {
	return &AuditRepository{q: tx}
}

// Create appends a new audit log entry
func (r *AuditRepository) Create(ctx context.Context, entry *models.AuditLog) error {
	query := `
		INSERT INTO audit_logs (
			id, transaction_id, actor, action, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)
	`

	entry.ID = uuid.New()
	entry.CreatedAt = time.Now().UTC()

	detailsBytes, _ := entry.Details.Value()

	_, err := r.q.Exec(ctx, query,
		entry.ID,
		entry.TransactionID,
		entry.Actor,
		entry.Action,
		detailsBytes,
		entry.CreatedAt,
	)

	return err
}

// GetByTransactionID retrieves the audit trail for a transaction, oldest first.
func (r *AuditRepository) GetByTransactionID(ctx context.Context, transactionID uuid.UUID) ([]*models.AuditLog, error) {
	query := `
		SELECT id, transaction_id, actor, action, details, created_at
		FROM audit_logs
		WHERE transaction_id = $1
		ORDER BY created_at ASC
	`

	rows, err := r.q.Query(ctx, query, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanAuditLogs(rows)
}

// GetRecent retrieves recent audit logs across all transactions.
func (r *AuditRepository) GetRecent(ctx context.Context, limit int) ([]*models.AuditLog, error) {
	query := `
		SELECT id, transaction_id, actor, action, details, created_at
		FROM audit_logs
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := r.q.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanAuditLogs(rows)
}

func scanAuditLogs(rows pgx.Rows) ([]*models.AuditLog, error) {
	var logs []*models.AuditLog
	for rows.Next() {
		entry := &models.AuditLog{}
		var detailsBytes []byte

		if err := rows.Scan(
			&entry.ID,
			&entry.TransactionID,
			&entry.Actor,
			&entry.Action,
			&detailsBytes,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}

		entry.Details.Scan(detailsBytes)
		logs = append(logs, entry)
	}

	return logs, rows.Err()
}
