package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Transaction represents a payment transaction under evaluation.
// Immutable after creation except Status and UpdatedAt.
type Transaction struct {
	ID                uuid.UUID `json:"id"`
	ExternalID        string    `json:"external_id,omitempty"`
	SenderID          string    `json:"sender_id"`
	ReceiverID        string    `json:"receiver_id"`
	AmountZAR         float64   `json:"amount_zar"`
	Currency          string    `json:"currency"`
	Channel           string    `json:"channel"` // api, mobile_banking, pos, ussd
	MerchantCategory  string    `json:"merchant_category,omitempty"`
	IPAddress         string    `json:"ip_address,omitempty"`
	DeviceFingerprint string    `json:"device_fingerprint,omitempty"`
	Geolocation       JSONB     `json:"geolocation,omitempty"`
	Status            string    `json:"status"` // pending, approved, declined, flagged
	Metadata          JSONB     `json:"metadata,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// TransactionStatus enum values
const (
	TransactionStatusPending  = "pending"
	TransactionStatusApproved = "approved"
	TransactionStatusDeclined = "declined"
	TransactionStatusFlagged  = "flagged"
)

// TransactionChannel enum values
const (
	ChannelAPI           = "api"
	ChannelMobileBanking = "mobile_banking"
	ChannelPOS           = "pos"
	ChannelUSSD          = "ussd"
)

// ValidChannels is the closed channel set accepted at ingestion.
var ValidChannels = map[string]bool{
	ChannelAPI:           true,
	ChannelMobileBanking: true,
	ChannelPOS:           true,
	ChannelUSSD:          true,
}

// RiskScore is the scoring verdict for a transaction, exactly one per transaction.
type RiskScore struct {
	ID             uuid.UUID `json:"id"`
	TransactionID  uuid.UUID `json:"transaction_id"`
	CompositeScore float64   `json:"composite_score"` // 0-1 blended score
	RuleScore      float64   `json:"rule_score"`
	VelocityScore  float64   `json:"velocity_score"`
	AnomalyScore   float64   `json:"anomaly_score"`
	MLScore        *float64  `json:"ml_score"` // nullable, absent when the model is unavailable
	RiskLevel      string    `json:"risk_level"`
	TriggeredRules []string  `json:"triggered_rules"` // rule codes in rule-set order
	Explanation    JSONB     `json:"explanation"`     // per-signal detail
	ScoredAt       time.Time `json:"scored_at"`
}

// RiskLevel enum values
const (
	RiskLevelLow      = "LOW"
	RiskLevelMedium   = "MEDIUM"
	RiskLevelHigh     = "HIGH"
	RiskLevelCritical = "CRITICAL"
)

// FraudRule is a CRUD-managed scoring rule. Condition holds the predicate
// tree in its JSON form; internal/rules parses and evaluates it.
type FraudRule struct {
	ID          uuid.UUID `json:"id"`
	Code        string    `json:"code"` // unique, UPPER_SNAKE
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Weight      float64   `json:"weight"` // (0,1]
	Condition   JSONB     `json:"condition"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Alert is raised for HIGH/CRITICAL verdicts and tracked by analysts.
type Alert struct {
	ID            uuid.UUID  `json:"id"`
	TransactionID uuid.UUID  `json:"transaction_id"`
	Severity      string     `json:"severity"`   // risk level at creation
	AlertType     string     `json:"alert_type"` // FRAUD_SUSPECTED, VELOCITY_BREACH, ANOMALY_DETECTED
	Message       string     `json:"message"`
	Status        string     `json:"status"` // open, acknowledged, resolved, closed
	AssignedTo    string     `json:"assigned_to,omitempty"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// AlertType enum values
const (
	AlertTypeFraudSuspected  = "FRAUD_SUSPECTED"
	AlertTypeVelocityBreach  = "VELOCITY_BREACH"
	AlertTypeAnomalyDetected = "ANOMALY_DETECTED"
)

// AlertStatus enum values
const (
	AlertStatusOpen         = "open"
	AlertStatusAcknowledged = "acknowledged"
	AlertStatusResolved     = "resolved"
	AlertStatusClosed       = "closed"
)

// ValidAlertStatuses is the closed set accepted on alert updates.
var ValidAlertStatuses = map[string]bool{
	AlertStatusOpen:         true,
	AlertStatusAcknowledged: true,
	AlertStatusResolved:     true,
	AlertStatusClosed:       true,
}

// AuditLog is an append-only trail entry. TransactionID is nullable for
// actions not tied to a specific transaction.
type AuditLog struct {
	ID            uuid.UUID  `json:"id"`
	TransactionID *uuid.UUID `json:"transaction_id,omitempty"`
	Actor         string     `json:"actor"` // "system", "api:<subject>", "analyst:<subject>"
	Action        string     `json:"action"`
	Details       JSONB      `json:"details,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// AuditAction enum values
const (
	AuditActionTransactionCreated = "TRANSACTION_CREATED"
	AuditActionTransactionScored  = "TRANSACTION_SCORED"
	AuditActionAlertUpdated       = "ALERT_UPDATED"
	AuditActionRuleCreated        = "RULE_CREATED"
	AuditActionRuleUpdated        = "RULE_UPDATED"
	AuditActionRuleDeactivated    = "RULE_DEACTIVATED"
)

// JSONB is a helper type for PostgreSQL JSONB columns
type JSONB map[string]interface{}

func (j JSONB) Value() ([]byte, error) {
	if j == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}

// Pagination represents pagination parameters
type Pagination struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
	Total    int `json:"total"`
}

// PaginatedResponse wraps paginated results
type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	Pagination Pagination  `json:"pagination"`
}

// TransactionBundle is the detail view: the transaction together with its
// verdict, alerts, and audit trail.
type TransactionBundle struct {
	Transaction *Transaction `json:"transaction"`
	RiskScore   *RiskScore   `json:"risk_score,omitempty"`
	Alerts      []*Alert     `json:"alerts"`
	AuditLogs   []*AuditLog  `json:"audit_logs"`
}

// TransactionSummary is the list/dashboard projection of a transaction
// joined with its verdict.
type TransactionSummary struct {
	ID             uuid.UUID `json:"id"`
	ExternalID     string    `json:"external_id,omitempty"`
	SenderID       string    `json:"sender_id"`
	ReceiverID     string    `json:"receiver_id"`
	AmountZAR      float64   `json:"amount_zar"`
	Currency       string    `json:"currency"`
	Channel        string    `json:"channel"`
	Status         string    `json:"status"`
	RiskLevel      *string   `json:"risk_level"`
	CompositeScore *float64  `json:"composite_score"`
	CreatedAt      time.Time `json:"created_at"`
}

// DashboardSummary aggregates the analyst-panel KPIs.
type DashboardSummary struct {
	TotalTransactions        int                   `json:"total_transactions"`
	TotalAlertsOpen          int                   `json:"total_alerts_open"`
	TotalAlertsCritical      int                   `json:"total_alerts_critical"`
	AvgRiskScore             float64               `json:"avg_risk_score"`
	TopRiskTransactions      []*TransactionSummary `json:"top_risk_transactions"`
	AlertDistribution        map[string]int        `json:"alert_distribution"`
	VelocityBreachesLastHour int                   `json:"velocity_breaches_last_hour"`
}

// RiskTrendBucket is one hourly bucket of the risk-trend series.
type RiskTrendBucket struct {
	Hour     time.Time `json:"hour"`
	AvgScore float64   `json:"avg_score"`
	TxnCount int       `json:"txn_count"`
}
