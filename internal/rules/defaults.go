package rules

import "github.com/obakengshepherd/RiskSentinel/internal/models"

// DefaultRules is the seed rule set inserted at first run when the
// fraud_rules table is empty. Tuned for South African payment flows
// (ZAR amounts, common channels).
func DefaultRules() []*models.FraudRule {
	return []*models.FraudRule{
		{
			Code:        "RULE_HIGH_AMOUNT",
			Name:        "High-Value Transaction",
			Description: "Single transaction exceeds ZAR 50 000, uncommon for retail.",
			Weight:      0.25,
			IsActive:    true,
			Condition: models.JSONB{
				"field":     "amount_zar",
				"operator":  "gt",
				"threshold": 50000.0,
			},
		},
		{
			Code:        "RULE_CRITICAL_AMOUNT",
			Name:        "Critical-Value Transaction",
			Description: "Single transaction exceeds ZAR 200 000.",
			Weight:      0.45,
			IsActive:    true,
			Condition: models.JSONB{
				"field":     "amount_zar",
				"operator":  "gt",
				"threshold": 200000.0,
			},
		},
		{
			Code:        "RULE_SUSPICIOUS_MERCHANT",
			Name:        "Suspicious Merchant Category",
			Description: "Transaction to a high-risk merchant category.",
			Weight:      0.20,
			IsActive:    true,
			Condition: models.JSONB{
				"field":    "merchant_category",
				"operator": "in",
				"list": []interface{}{
					"cryptocurrency_exchange",
					"online_gambling",
					"adult_entertainment",
					"prepaid_cards",
					"money_transfer_unlicensed",
				},
			},
		},
		{
			Code:        "RULE_API_NO_FINGERPRINT",
			Name:        "API Channel Without Device Fingerprint",
			Description: "API transaction submitted without a device fingerprint is suspicious.",
			Weight:      0.15,
			IsActive:    true,
			Condition: models.JSONB{
				"and": []interface{}{
					map[string]interface{}{"field": "channel", "operator": "eq", "target": "api"},
					map[string]interface{}{"field": "device_fingerprint", "operator": "eq", "target": ""},
				},
			},
		},
		{
			Code:        "RULE_FOREIGN_IP_FLAG",
			Name:        "Foreign IP Flag",
			Description: "IP address flagged as non-South-African by upstream enrichment.",
			Weight:      0.18,
			IsActive:    true,
			Condition: models.JSONB{
				"field":    "metadata.ip_country_flagged",
				"operator": "eq",
				"target":   "true",
			},
		},
		{
			Code:        "RULE_REPEAT_RECEIVER",
			Name:        "Repeat Receiver",
			Description: "Upstream enrichment flagged this sender-receiver pair as repeated.",
			Weight:      0.15,
			IsActive:    true,
			Condition: models.JSONB{
				"field":    "metadata.repeat_receiver",
				"operator": "eq",
				"target":   "true",
			},
		},
		{
			Code:        "RULE_ZERO_AMOUNT",
			Name:        "Zero-Amount Probe",
			Description: "Transactions with ZAR 0.00 are often card-validation probes.",
			Weight:      0.30,
			IsActive:    true,
			Condition: models.JSONB{
				"field":     "amount_zar",
				"operator":  "lte",
				"threshold": 0.0,
			},
		},
	}
}
