package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/obakengshepherd/RiskSentinel/internal/models"
)

var (
	ErrTransactionNotFound  = errors.New("transaction not found")
	ErrDuplicateTransaction = errors.New("duplicate transaction (external_id exists)")
)

// TransactionRepository handles transaction database operations
type TransactionRepository struct {
	q Querier
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *Database) *TransactionRepository {
	return &TransactionRepository{q: db.Pool}
}

// WithTx returns a copy of the repository bound to an open transaction.
func (r *TransactionRepository) WithTx(tx pgx.Tx) *TransactionRepository {
	return &TransactionRepository{q: tx}
}

const transactionColumns = `id, external_id, sender_id, receiver_id, amount_zar, currency,
	   channel, merchant_category, ip_address, device_fingerprint, geolocation,
	   status, metadata, created_at, updated_at`

// Create inserts a new transaction in pending state.
func (r *TransactionRepository) Create(ctx context.Context, txn *models.Transaction) error {
	query := `
		INSERT INTO transactions (
			id, external_id, sender_id, receiver_id, amount_zar, currency,
			channel, merchant_category, ip_address, device_fingerprint,
			geolocation, status, metadata, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}
	txn.CreatedAt = time.Now().UTC()
	txn.UpdatedAt = txn.CreatedAt
	if txn.Status == "" {
		txn.Status = models.TransactionStatusPending
	}
	if txn.Currency == "" {
		txn.Currency = "ZAR"
	}

	geoBytes, _ := txn.Geolocation.Value()
	metadataBytes, _ := txn.Metadata.Value()

	_, err := r.q.Exec(ctx, query,
		txn.ID,
		txn.ExternalID,
		txn.SenderID,
		txn.ReceiverID,
		txn.AmountZAR,
		txn.Currency,
		txn.Channel,
		txn.MerchantCategory,
		txn.IPAddress,
		txn.DeviceFingerprint,
		geoBytes,
		txn.Status,
		metadataBytes,
		txn.CreatedAt,
		txn.UpdatedAt,
	)

	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateTransaction
		}
		return err
	}

	return nil
}

// GetByID retrieves a transaction by ID
func (r *TransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`

	row := r.q.QueryRow(ctx, query, id)
	txn, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return txn, nil
}

// GetByExternalID retrieves a transaction by its upstream reference.
func (r *TransactionRepository) GetByExternalID(ctx context.Context, externalID string) (*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE external_id = $1`

	row := r.q.QueryRow(ctx, query, externalID)
	txn, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return txn, nil
}

// UpdateStatus updates a transaction's status and bumps updated_at.
func (r *TransactionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	query := `
		UPDATE transactions
		SET status = $2, updated_at = $3
		WHERE id = $1
	`

	result, err := r.q.Exec(ctx, query, id, status, time.Now().UTC())
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}

	return nil
}

// List retrieves transactions with optional status/sender filters, newest first.
func (r *TransactionRepository) List(ctx context.Context, page, pageSize int, statusFilter, senderID string) ([]*models.Transaction, int, error) {
	offset := (page - 1) * pageSize

	countQuery := `
		SELECT COUNT(*) FROM transactions
		WHERE ($1 = '' OR status = $1)
		AND ($2 = '' OR sender_id = $2)
	`
	var total int
	if err := r.q.QueryRow(ctx, countQuery, statusFilter, senderID).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE ($1 = '' OR status = $1)
		AND ($2 = '' OR sender_id = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`

	rows, err := r.q.Query(ctx, query, statusFilter, senderID, pageSize, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	return scanTransactions(rows, total)
}

// WindowStats aggregates the sender's committed transactions inside the
// velocity window, excluding the transaction under evaluation.
func (r *TransactionRepository) WindowStats(ctx context.Context, senderID string, excludeID uuid.UUID, since time.Time) (int, float64, error) {
	query := `
		SELECT COUNT(*), COALESCE(SUM(amount_zar), 0)
		FROM transactions
		WHERE sender_id = $1 AND id != $2 AND created_at >= $3
	`

	var count int
	var total float64
	if err := r.q.QueryRow(ctx, query, senderID, excludeID, since).Scan(&count, &total); err != nil {
		return 0, 0, err
	}

	return count, total, nil
}

// AmountStats returns the sender's amount distribution over the lookback
// period, excluding the transaction under evaluation. Mean and stddev are
// nil when the sender has no history.
func (r *TransactionRepository) AmountStats(ctx context.Context, senderID string, excludeID uuid.UUID, since time.Time) (mean, stddev *float64, n int, err error) {
	query := `
		SELECT AVG(amount_zar), STDDEV_POP(amount_zar), COUNT(*)
		FROM transactions
		WHERE sender_id = $1 AND id != $2 AND created_at >= $3
	`

	if err = r.q.QueryRow(ctx, query, senderID, excludeID, since).Scan(&mean, &stddev, &n); err != nil {
		return nil, nil, 0, err
	}

	return mean, stddev, n, nil
}

// CountAll returns the total number of transactions.
func (r *TransactionRepository) CountAll(ctx context.Context) (int, error) {
	var total int
	err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&total)
	return total, err
}

func scanTransaction(row pgx.Row) (*models.Transaction, error) {
	txn := &models.Transaction{}
	var geoBytes, metadataBytes []byte

	if err := row.Scan(
		&txn.ID,
		&txn.ExternalID,
		&txn.SenderID,
		&txn.ReceiverID,
		&txn.AmountZAR,
		&txn.Currency,
		&txn.Channel,
		&txn.MerchantCategory,
		&txn.IPAddress,
		&txn.DeviceFingerprint,
		&geoBytes,
		&txn.Status,
		&metadataBytes,
		&txn.CreatedAt,
		&txn.UpdatedAt,
	); err != nil {
		return nil, err
	}

	txn.Geolocation.Scan(geoBytes)
	txn.Metadata.Scan(metadataBytes)
	return txn, nil
}

func scanTransactions(rows pgx.Rows, total int) ([]*models.Transaction, int, error) {
	var transactions []*models.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, err
		}
		transactions = append(transactions, txn)
	}

	return transactions, total, rows.Err()
}
