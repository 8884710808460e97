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
	ErrRuleNotFound      = errors.New("rule not found")
	ErrDuplicateRuleCode = errors.New("rule code already exists")
)

// RuleRepository handles fraud rule database operations
type RuleRepository struct {
	q Querier
}

// NewRuleRepository creates a new rule repository
func NewRuleRepository(db *Database) *RuleRepository {
	return &RuleRepository{q: db.Pool}
}

// WithTx returns a copy of the repository bound to an open transaction.
func (r *RuleRepository) WithTx(tx pgx.Tx) *RuleRepository {
	return &RuleRepository{q: tx}
}

const ruleColumns = `id, code, name, description, weight, condition, is_active, created_at, updated_at`

// Create inserts a new rule. A duplicate code yields ErrDuplicateRuleCode.
func (r *RuleRepository) Create(ctx context.Context, rule *models.FraudRule) error {
	query := `
		INSERT INTO fraud_rules (
			id, code, name, description, weight, condition, is_active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	rule.ID = uuid.New()
	rule.CreatedAt = time.Now().UTC()
	rule.UpdatedAt = rule.CreatedAt

	conditionBytes, _ := rule.Condition.Value()

	_, err := r.q.Exec(ctx, query,
		rule.ID,
		rule.Code,
		rule.Name,
		rule.Description,
		rule.Weight,
		conditionBytes,
		rule.IsActive,
		rule.CreatedAt,
		rule.UpdatedAt,
	)

	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateRuleCode
		}
		return err
	}

	return nil
}

// GetByID retrieves a rule by ID
func (r *RuleRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.FraudRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM fraud_rules WHERE id = $1`

	rule, err := scanRule(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRuleNotFound
		}
		return nil, err
	}
	return rule, nil
}

// List retrieves all rules, optionally restricted to active ones.
func (r *RuleRepository) List(ctx context.Context, activeOnly bool) ([]*models.FraudRule, error) {
	query := `
		SELECT ` + ruleColumns + `
		FROM fraud_rules
		WHERE NOT $1 OR is_active
		ORDER BY created_at ASC
	`

	rows, err := r.q.Query(ctx, query, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRules(rows)
}

// GetActive retrieves the active rule set in creation order, the order the
// evaluator preserves for triggered codes.
func (r *RuleRepository) GetActive(ctx context.Context) ([]*models.FraudRule, error) {
	return r.List(ctx, true)
}

// Update replaces the mutable fields of a rule.
func (r *RuleRepository) Update(ctx context.Context, rule *models.FraudRule) error {
	query := `
		UPDATE fraud_rules
		SET name = $2, description = $3, weight = $4, condition = $5,
			is_active = $6, updated_at = $7
		WHERE id = $1
	`

	rule.UpdatedAt = time.Now().UTC()
	conditionBytes, _ := rule.Condition.Value()

	result, err := r.q.Exec(ctx, query,
		rule.ID,
		rule.Name,
		rule.Description,
		rule.Weight,
		conditionBytes,
		rule.IsActive,
		rule.UpdatedAt,
	)
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return ErrRuleNotFound
	}

	return nil
}

// Deactivate soft-deletes a rule by flipping is_active. The row survives.
func (r *RuleRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE fraud_rules
		SET is_active = false, updated_at = $2
		WHERE id = $1
	`

	result, err := r.q.Exec(ctx, query, id, time.Now().UTC())
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return ErrRuleNotFound
	}

	return nil
}

// Count returns the total number of rules, active or not.
func (r *RuleRepository) Count(ctx context.Context) (int, error) {
	var total int
	err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM fraud_rules`).Scan(&total)
	return total, err
}

func scanRule(row pgx.Row) (*models.FraudRule, error) {
	rule := &models.FraudRule{}
	var conditionBytes []byte

	if err := row.Scan(
		&rule.ID,
		&rule.Code,
		&rule.Name,
		&rule.Description,
		&rule.Weight,
		&conditionBytes,
		&rule.IsActive,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	); err != nil {
		return nil, err
	}

	rule.Condition.Scan(conditionBytes)
	return rule, nil
}

func scanRules(rows pgx.Rows) ([]*models.FraudRule, error) {
	var rules []*models.FraudRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}

	return rules, rows.Err()
}
